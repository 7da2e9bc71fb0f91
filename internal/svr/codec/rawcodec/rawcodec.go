// Package rawcodec registers the "raw" encoding: an identity passthrough
// that copies frame bytes verbatim, with no compression or reframing. It
// exists as the zero-cost baseline encoding and as the simplest possible
// DirectCopy target for the reencoder (spec §4.7).
package rawcodec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/alxayo/svr/internal/svr/codec"
	"github.com/alxayo/svr/internal/svr/frameprops"
	"github.com/alxayo/svr/internal/svrerr"
)

const Name = "raw"

func init() {
	if err := codec.Register(codec.Encoding{
		Name:        Name,
		MakeEncoder: newEncoder,
		MakeDecoder: newDecoder,
		Flags: codec.Flags{
			BytePassthrough:    true,
			InterframeFriendly: true,
			Lossless:           true,
		},
	}); err != nil {
		panic(err)
	}
}

type encoder struct {
	props frameprops.Props
	out   bytes.Buffer
}

func newEncoder(props frameprops.Props, _ map[string]string) (codec.Encoder, error) {
	return &encoder{props: props}, nil
}

func (e *encoder) Encode(f codec.Frame) error {
	if want := e.props.FrameBytes(); len(f.Data) != want {
		return svrerr.NewInvalidArgument("rawcodec.Encode",
			fmt.Errorf("frame is %d bytes, want %d", len(f.Data), want))
	}
	e.out.Write(f.Data)
	return nil
}

func (e *encoder) Flush() error { return nil }

func (e *encoder) DataReady() int { return e.out.Len() }

func (e *encoder) ReadData(buf []byte) (int, error) {
	return e.out.Read(buf)
}

// FrameBoundaryAfterDrain is true: raw has no in-band marker, so the source
// infers a boundary once a full frame's bytes have been drained.
func (e *encoder) FrameBoundaryAfterDrain() bool { return true }

type decoder struct {
	props frameprops.Props
	buf   bytes.Buffer
}

func newDecoder(props frameprops.Props, _ map[string]string) (codec.Decoder, error) {
	return &decoder{props: props}, nil
}

func (d *decoder) WriteData(buf []byte) (int, error) {
	return d.buf.Write(buf)
}

func (d *decoder) FrameReady() bool {
	return d.buf.Len() >= d.props.FrameBytes()
}

func (d *decoder) ReadFrame() (codec.Frame, error) {
	n := d.props.FrameBytes()
	if d.buf.Len() < n {
		return codec.Frame{}, io.ErrNoProgress
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(&d.buf, data); err != nil {
		return codec.Frame{}, err
	}
	return codec.Frame{Props: d.props, Data: data}, nil
}
