package reencoder

import (
	"bytes"
	"testing"

	"github.com/alxayo/svr/internal/svr/codec"
	_ "github.com/alxayo/svr/internal/svr/codec/rawcodec"
	"github.com/alxayo/svr/internal/svr/frameprops"
)

func TestSelectDirectCopyOnMatchingEncoding(t *testing.T) {
	raw, ok := codec.Get("raw")
	if !ok {
		t.Fatalf("raw codec not registered")
	}
	spec := Spec{
		SourceEncoding: raw,
		StreamEncoding: raw,
		Props:          frameprops.Props{Width: 2, Height: 2, Depth: frameprops.DepthU8, Channels: 1},
	}
	r, err := Select(spec)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if r.Kind() != KindDirectCopy {
		t.Fatalf("Kind() = %v, want DirectCopy", r.Kind())
	}
	in := []byte{1, 2, 3, 4}
	out, err := r.Reencode(in, true)
	if err != nil {
		t.Fatalf("Reencode: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("DirectCopy must be byte-identical: got %v", out)
	}
}

func TestSelectDecodeEncodeOnMismatch(t *testing.T) {
	raw, _ := codec.Get("raw")
	other := codec.Encoding{
		Name:        "other-raw-alias",
		MakeEncoder: raw.MakeEncoder,
		MakeDecoder: raw.MakeDecoder,
	}
	codec.Register(other)
	spec := Spec{
		SourceEncoding: raw,
		StreamEncoding: other,
		Props:          frameprops.Props{Width: 2, Height: 2, Depth: frameprops.DepthU8, Channels: 1},
	}
	r, err := Select(spec)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if r.Kind() != KindDecodeEncode {
		t.Fatalf("Kind() = %v, want DecodeEncode", r.Kind())
	}
	in := []byte{5, 6, 7, 8}
	out, err := r.Reencode(in, true)
	if err != nil {
		t.Fatalf("Reencode: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("raw-to-raw decode/encode should round-trip identically: got %v", out)
	}
}
