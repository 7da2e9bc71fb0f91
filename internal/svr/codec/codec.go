// Package codec implements the Encoder/Decoder registry of spec §4.3: named
// codecs, each a factory producing a streaming encode or decode engine
// bound to fixed frame properties and an option set.
package codec

import "github.com/alxayo/svr/internal/svr/frameprops"

// Frame is one uncompressed frame pushed into an Encoder or read out of a
// Decoder. Data is laid out row-major, channel-interleaved, matching Props.
type Frame struct {
	Props frameprops.Props
	Data  []byte
}

// Flags advertise capabilities the Reencoder planner uses (spec §3):
// byte-exact passthrough possible, interframe-friendly, lossless.
type Flags struct {
	BytePassthrough    bool
	InterframeFriendly bool
	Lossless           bool
}

// Encoder is a push-in/pull-out streaming engine bound to fixed frame
// properties (spec §4.3/§4.4).
type Encoder interface {
	// Encode pushes one uncompressed frame.
	Encode(f Frame) error
	// Flush asserts an explicit frame boundary, for codecs that can signal
	// one (spec §4.4: "a flush op on the encoder at the end of the frame").
	Flush() error
	// DataReady reports how many encoded bytes are available to drain.
	DataReady() int
	// ReadData drains up to len(buf) encoded bytes into buf.
	ReadData(buf []byte) (int, error)
	// FrameBoundaryAfterDrain is true for codecs that cannot produce an
	// explicit boundary signal; the source then asserts a boundary itself
	// when DataReady() returns zero right after a push (spec §4.4).
	FrameBoundaryAfterDrain() bool
}

// Decoder is the dual of Encoder (spec §4.3).
type Decoder interface {
	WriteData(buf []byte) (int, error)
	FrameReady() bool
	ReadFrame() (Frame, error)
}

// EquivFunc reports whether two option sets for the same encoding describe
// byte-compatible streams, used by the DirectCopy reencoder fast path
// (spec §4.7).
type EquivFunc func(a, b map[string]string) bool

// Encoding is a named codec factory (spec §3).
type Encoding struct {
	Name         string
	MakeEncoder  func(props frameprops.Props, opts map[string]string) (Encoder, error)
	MakeDecoder  func(props frameprops.Props, opts map[string]string) (Decoder, error)
	Flags        Flags
	Equiv        EquivFunc // nil means "options must be identical"
}

// equivOptions is the default EquivFunc: exact key/value equality.
func equivOptions(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

// OptionsEquivalent applies e.Equiv (or the default) to a and b.
func (e Encoding) OptionsEquivalent(a, b map[string]string) bool {
	if e.Equiv != nil {
		return e.Equiv(a, b)
	}
	return equivOptions(a, b)
}
