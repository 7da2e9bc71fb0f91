// Package reencoder implements the adapter between a source's encoded byte
// stream and a stream's requested encoding (spec §4.7): a tagged variant
// with a shared Reencoder contract, selected deterministically from
// (source encoding, stream encoding, options, frame properties).
package reencoder

import (
	"sync"

	"github.com/alxayo/svr/internal/svr/codec"
	"github.com/alxayo/svr/internal/svr/frameprops"
	"github.com/alxayo/svr/internal/svrerr"
)

// Kind tags which variant a Reencoder is, for inspection and tests.
type Kind int

const (
	KindDirectCopy Kind = iota
	KindCodecNative
	KindDecodeEncode
)

func (k Kind) String() string {
	switch k {
	case KindDirectCopy:
		return "DirectCopy"
	case KindCodecNative:
		return "CodecNative"
	case KindDecodeEncode:
		return "DecodeEncode"
	default:
		return "unknown"
	}
}

// Reencoder converts chunks of a source's encoded stream into chunks of a
// stream's requested encoding, preserving frame-boundary semantics.
type Reencoder interface {
	Kind() Kind
	// Reencode consumes one chunk of source-encoded bytes and returns zero
	// or more bytes of stream-encoded output. isBoundary marks the chunk as
	// completing a source frame.
	Reencode(in []byte, isBoundary bool) ([]byte, error)
}

// Spec is the immutable key a Reencoder is built from (spec §3: "bound to
// the current (source.encoding, requested_encoding, source.props) triple").
type Spec struct {
	SourceEncoding codec.Encoding
	SourceOptions  map[string]string
	StreamEncoding codec.Encoding
	StreamOptions  map[string]string
	Props          frameprops.Props
}

// nativeKey identifies a registered CodecNative (in, out) pair.
type nativeKey struct {
	in, out string
}

// NativeFactory builds a CodecNative reencoder for a registered pair.
type NativeFactory func(spec Spec) (Reencoder, error)

// NativeRegistry holds codec-pair-specific native recode paths (spec §4.7
// item 3, e.g. in-place FFV1 metadata rewrite). Empty by default: none of
// the wired codecs (raw, jpeg, zraw) have an in-place recode path, so this
// registry exists as the mechanism without shipping entries — see
// DESIGN.md.
type NativeRegistry struct {
	mu    sync.RWMutex
	table map[nativeKey]NativeFactory
}

var defaultNative = &NativeRegistry{table: make(map[nativeKey]NativeFactory)}

// RegisterNative adds a CodecNative path for the (in, out) encoding pair.
func RegisterNative(in, out string, f NativeFactory) {
	defaultNative.mu.Lock()
	defer defaultNative.mu.Unlock()
	defaultNative.table[nativeKey{in, out}] = f
}

func lookupNative(in, out string) (NativeFactory, bool) {
	defaultNative.mu.RLock()
	defer defaultNative.mu.RUnlock()
	f, ok := defaultNative.table[nativeKey{in, out}]
	return f, ok
}

// Select implements the deterministic selection algorithm of spec §4.7:
// DirectCopy, else CodecNative, else DecodeEncode.
func Select(spec Spec) (Reencoder, error) {
	if spec.SourceEncoding.Name == spec.StreamEncoding.Name &&
		spec.SourceEncoding.OptionsEquivalent(spec.SourceOptions, spec.StreamOptions) {
		return newDirectCopy(), nil
	}
	if factory, ok := lookupNative(spec.SourceEncoding.Name, spec.StreamEncoding.Name); ok {
		return factory(spec)
	}
	return newDecodeEncode(spec)
}

type directCopy struct{}

func newDirectCopy() Reencoder { return directCopy{} }

func (directCopy) Kind() Kind { return KindDirectCopy }

func (directCopy) Reencode(in []byte, _ bool) ([]byte, error) {
	return in, nil
}

// decodeEncode holds a Decoder bound to the source's encoding and an
// Encoder bound to the stream's requested encoding, both bound to the
// shared frame properties (spec §4.7 item 2).
type decodeEncode struct {
	dec codec.Decoder
	enc codec.Encoder
}

func newDecodeEncode(spec Spec) (Reencoder, error) {
	if spec.SourceEncoding.MakeDecoder == nil {
		return nil, svrerr.NewNoSuchEncoding("reencoder.Select", nil)
	}
	if spec.StreamEncoding.MakeEncoder == nil {
		return nil, svrerr.NewNoSuchEncoding("reencoder.Select", nil)
	}
	dec, err := spec.SourceEncoding.MakeDecoder(spec.Props, spec.SourceOptions)
	if err != nil {
		return nil, err
	}
	enc, err := spec.StreamEncoding.MakeEncoder(spec.Props, spec.StreamOptions)
	if err != nil {
		return nil, err
	}
	return &decodeEncode{dec: dec, enc: enc}, nil
}

func (d *decodeEncode) Kind() Kind { return KindDecodeEncode }

func (d *decodeEncode) Reencode(in []byte, isBoundary bool) ([]byte, error) {
	if len(in) > 0 {
		if _, err := d.dec.WriteData(in); err != nil {
			return nil, err
		}
	}
	var out []byte
	for d.dec.FrameReady() {
		frame, err := d.dec.ReadFrame()
		if err != nil {
			return out, err
		}
		if err := d.enc.Encode(frame); err != nil {
			return out, err
		}
	}
	if isBoundary {
		if err := d.enc.Flush(); err != nil {
			return out, err
		}
	}
	for d.enc.DataReady() > 0 {
		buf := make([]byte, d.enc.DataReady())
		n, err := d.enc.ReadData(buf)
		if err != nil {
			return out, err
		}
		out = append(out, buf[:n]...)
	}
	return out, nil
}
