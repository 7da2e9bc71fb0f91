// Package zrawcodec registers the "zraw" encoding: DEFLATE-compressed raw
// samples via klauspost/compress/flate, sharing one compression window
// across the whole stream (spec §3's InterframeFriendly) and using the
// writer's sync flush as the explicit frame-boundary signal instead of the
// drain-then-empty inference raw/jpeg rely on.
package zrawcodec

import (
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"

	"github.com/alxayo/svr/internal/svr/codec"
	"github.com/alxayo/svr/internal/svr/frameprops"
	"github.com/alxayo/svr/internal/svrerr"
)

const Name = "zraw"

const levelKey = "level"

func init() {
	if err := codec.Register(codec.Encoding{
		Name:        Name,
		MakeEncoder: newEncoder,
		MakeDecoder: newDecoder,
		Flags: codec.Flags{
			BytePassthrough:    false,
			InterframeFriendly: true,
			Lossless:           true,
		},
	}); err != nil {
		panic(err)
	}
}

func parseLevel(opts map[string]string) (int, error) {
	if opts == nil {
		return flate.DefaultCompression, nil
	}
	v, ok := opts[levelKey]
	if !ok {
		return flate.DefaultCompression, nil
	}
	var lvl int
	if _, err := fmt.Sscanf(v, "%d", &lvl); err != nil || lvl < flate.HuffmanOnly || lvl > flate.BestCompression {
		return 0, svrerr.NewInvalidArgument("zrawcodec", fmt.Errorf("level %q out of range", v))
	}
	return lvl, nil
}

type drainBuffer struct {
	data []byte
}

func (b *drainBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *drainBuffer) Len() int { return len(b.data) }

func (b *drainBuffer) Read(p []byte) (int, error) {
	if len(b.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, b.data)
	b.data = b.data[n:]
	return n, nil
}

type encoder struct {
	props frameprops.Props
	fw    *flate.Writer
	out   drainBuffer
}

func newEncoder(props frameprops.Props, opts map[string]string) (codec.Encoder, error) {
	lvl, err := parseLevel(opts)
	if err != nil {
		return nil, err
	}
	e := &encoder{props: props}
	fw, err := flate.NewWriter(&e.out, lvl)
	if err != nil {
		return nil, svrerr.NewInternal("zrawcodec.MakeEncoder", err)
	}
	e.fw = fw
	return e, nil
}

func (e *encoder) Encode(f codec.Frame) error {
	if want := e.props.FrameBytes(); len(f.Data) != want {
		return svrerr.NewInvalidArgument("zrawcodec.Encode",
			fmt.Errorf("frame is %d bytes, want %d", len(f.Data), want))
	}
	if _, err := e.fw.Write(f.Data); err != nil {
		return svrerr.NewInternal("zrawcodec.Encode", err)
	}
	return nil
}

// Flush performs a DEFLATE sync flush: it emits the buffered compressed
// bytes up through an empty stored block, letting the decoder recover the
// frame written so far without waiting for the stream to close.
func (e *encoder) Flush() error {
	if err := e.fw.Flush(); err != nil {
		return svrerr.NewInternal("zrawcodec.Flush", err)
	}
	return nil
}

func (e *encoder) DataReady() int { return e.out.Len() }

func (e *encoder) ReadData(buf []byte) (int, error) {
	return e.out.Read(buf)
}

// FrameBoundaryAfterDrain is false: Flush is a real, explicit boundary
// signal here, unlike raw/jpeg which have none.
func (e *encoder) FrameBoundaryAfterDrain() bool { return false }

// decoder runs the flate reader on a background goroutine fed through an
// io.Pipe, since flate.Reader blocks for input rather than supporting a
// non-blocking "not enough bytes yet" read.
type decoder struct {
	props frameprops.Props
	pw    *io.PipeWriter
	fr    io.ReadCloser

	mu     sync.Mutex
	frames []codec.Frame
	dead   error
}

func newDecoder(props frameprops.Props, _ map[string]string) (codec.Decoder, error) {
	pr, pw := io.Pipe()
	d := &decoder{props: props, pw: pw, fr: flate.NewReader(pr)}
	go d.pump()
	return d, nil
}

func (d *decoder) pump() {
	n := d.props.FrameBytes()
	for {
		buf := make([]byte, n)
		if _, err := io.ReadFull(d.fr, buf); err != nil {
			d.mu.Lock()
			d.dead = err
			d.mu.Unlock()
			return
		}
		d.mu.Lock()
		d.frames = append(d.frames, codec.Frame{Props: d.props, Data: buf})
		d.mu.Unlock()
	}
}

func (d *decoder) WriteData(buf []byte) (int, error) {
	n, err := d.pw.Write(buf)
	if err != nil {
		return n, svrerr.NewInternal("zrawcodec.WriteData", err)
	}
	return n, nil
}

func (d *decoder) FrameReady() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.frames) > 0
}

func (d *decoder) ReadFrame() (codec.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.frames) == 0 {
		if d.dead != nil && d.dead != io.EOF {
			return codec.Frame{}, svrerr.NewInternal("zrawcodec.ReadFrame", d.dead)
		}
		return codec.Frame{}, io.ErrNoProgress
	}
	f := d.frames[0]
	d.frames = d.frames[1:]
	return f, nil
}

// Close releases the pipe and background goroutine. Not part of the
// Decoder interface; callers that own a decoder's full lifecycle (source
// teardown) should type-assert io.Closer and call it.
func (d *decoder) Close() error {
	d.fr.Close()
	return d.pw.Close()
}
