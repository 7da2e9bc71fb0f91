package rawcodec

import (
	"bytes"
	"testing"

	"github.com/alxayo/svr/internal/svr/codec"
	"github.com/alxayo/svr/internal/svr/frameprops"
)

func TestRoundTrip(t *testing.T) {
	props := frameprops.Props{Width: 4, Height: 2, Depth: frameprops.DepthU8, Channels: 1}
	e, ok := codec.Get(Name)
	if !ok {
		t.Fatalf("raw codec not registered")
	}
	enc, err := e.MakeEncoder(props, nil)
	if err != nil {
		t.Fatalf("MakeEncoder: %v", err)
	}
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if err := enc.Encode(codec.Frame{Props: props, Data: data}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := enc.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if enc.DataReady() != len(data) {
		t.Fatalf("DataReady = %d, want %d", enc.DataReady(), len(data))
	}
	buf := make([]byte, enc.DataReady())
	n, err := enc.ReadData(buf)
	if err != nil {
		t.Fatalf("ReadData: %v", err)
	}
	if !bytes.Equal(buf[:n], data) {
		t.Fatalf("round trip mismatch: %v", buf[:n])
	}

	dec, err := e.MakeDecoder(props, nil)
	if err != nil {
		t.Fatalf("MakeDecoder: %v", err)
	}
	if _, err := dec.WriteData(buf[:n]); err != nil {
		t.Fatalf("WriteData: %v", err)
	}
	if !dec.FrameReady() {
		t.Fatalf("expected frame ready")
	}
	got, err := dec.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(got.Data, data) {
		t.Fatalf("decoded frame mismatch: %v", got.Data)
	}
}

func TestEncodeRejectsWrongSize(t *testing.T) {
	props := frameprops.Props{Width: 2, Height: 2, Depth: frameprops.DepthU8, Channels: 1}
	e, _ := codec.Get(Name)
	enc, _ := e.MakeEncoder(props, nil)
	if err := enc.Encode(codec.Frame{Props: props, Data: []byte{1, 2, 3}}); err == nil {
		t.Fatalf("expected error for wrong-sized frame")
	}
}
