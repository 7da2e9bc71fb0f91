package message

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := New(3)
	m.SetComponent(0, "Source.open")
	m.SetComponent(1, "cam")
	m.SetComponent(2, "server")
	m.RequestID = 42
	m.IsBoundary = true
	m.Payload = []byte{1, 2, 3, 4}

	buf, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.RequestID != 42 {
		t.Fatalf("RequestID = %d", got.RequestID)
	}
	if got.IsResponse {
		t.Fatalf("expected IsResponse=false")
	}
	if !got.IsBoundary {
		t.Fatalf("expected IsBoundary=true")
	}
	if len(got.Components) != 3 || got.Component(0) != "Source.open" || got.Component(1) != "cam" {
		t.Fatalf("unexpected components: %+v", got.Components)
	}
	if !bytes.Equal(got.Payload, []byte{1, 2, 3, 4}) {
		t.Fatalf("payload mismatch: %v", got.Payload)
	}
}

func TestReaderReadsFramedStream(t *testing.T) {
	m1 := New(1)
	m1.SetComponent(0, "Data")
	m1.Payload = []byte("frame-one")
	m2 := New(1)
	m2.SetComponent(0, "Data")
	m2.Payload = []byte("frame-two")

	var buf bytes.Buffer
	if err := Write(&buf, m1); err != nil {
		t.Fatalf("Write m1: %v", err)
	}
	if err := Write(&buf, m2); err != nil {
		t.Fatalf("Write m2: %v", err)
	}

	r := NewReader(&buf)
	got1, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage 1: %v", err)
	}
	if string(got1.Payload) != "frame-one" {
		t.Fatalf("frame 1 payload = %q", got1.Payload)
	}
	got2, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage 2: %v", err)
	}
	if string(got2.Payload) != "frame-two" {
		t.Fatalf("frame 2 payload = %q", got2.Payload)
	}
}

func TestReaderRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	var big [4]byte
	big[0], big[1], big[2], big[3] = 0xFF, 0xFF, 0xFF, 0x7F // huge total_len, no body
	buf.Write(big[:])
	r := NewReader(&buf)
	if _, err := r.ReadMessage(); err == nil {
		t.Fatalf("expected error for oversized total_len")
	}
}

func TestNewResponse(t *testing.T) {
	req := &Message{RequestID: 7}
	resp := NewResponse(req, 3, "cam", "ok")
	if !resp.IsResponse {
		t.Fatalf("expected IsResponse=true")
	}
	if resp.RequestID != 7 {
		t.Fatalf("RequestID mismatch")
	}
	if resp.Component(0) != "3" || resp.Component(1) != "cam" || resp.Component(2) != "ok" {
		t.Fatalf("unexpected components: %+v", resp.Components)
	}
}

func TestDecodeRejectsMismatchedLength(t *testing.T) {
	m := New(0)
	buf, _ := Encode(m)
	buf = append(buf, 0) // trailing garbage breaks the total_len invariant
	if _, err := Decode(buf); err == nil {
		t.Fatalf("expected error for mismatched total_len")
	}
}
