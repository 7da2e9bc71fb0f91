// Package jpegcodec registers the "jpeg" encoding, a lossy still-image
// codec built on the standard library's image/jpeg. Each frame is encoded
// whole (JPEG has no meaningful sub-frame streaming unit), so Encode
// buffers a complete frame into an image.Image before handing it to
// image/jpeg and queuing the result for drain.
package jpegcodec

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"strconv"

	"github.com/alxayo/svr/internal/svr/codec"
	"github.com/alxayo/svr/internal/svr/frameprops"
	"github.com/alxayo/svr/internal/svrerr"
)

const Name = "jpeg"

// quality option key, per spec §6 option-string grammar ("name:key=value").
const qualityKey = "quality"

const defaultQuality = 85

func init() {
	if err := codec.Register(codec.Encoding{
		Name:        Name,
		MakeEncoder: newEncoder,
		MakeDecoder: newDecoder,
		Flags: codec.Flags{
			BytePassthrough:    false,
			InterframeFriendly: false,
			Lossless:           false,
		},
	}); err != nil {
		panic(err)
	}
}

func parseQuality(opts map[string]string) (int, error) {
	if opts == nil {
		return defaultQuality, nil
	}
	v, ok := opts[qualityKey]
	if !ok {
		return defaultQuality, nil
	}
	q, err := strconv.Atoi(v)
	if err != nil || q < 1 || q > 100 {
		return 0, svrerr.NewInvalidArgument("jpegcodec", fmt.Errorf("quality %q out of range 1-100", v))
	}
	return q, nil
}

type encoder struct {
	props   frameprops.Props
	quality int
	out     bytes.Buffer
}

func newEncoder(props frameprops.Props, opts map[string]string) (codec.Encoder, error) {
	if props.Depth != frameprops.DepthU8 {
		return nil, svrerr.NewInvalidArgument("jpegcodec.MakeEncoder", fmt.Errorf("depth %s unsupported, jpeg requires u8", props.Depth))
	}
	if props.Channels != 1 && props.Channels != 3 {
		return nil, svrerr.NewInvalidArgument("jpegcodec.MakeEncoder", fmt.Errorf("channels=%d unsupported, jpeg supports 1 or 3", props.Channels))
	}
	q, err := parseQuality(opts)
	if err != nil {
		return nil, err
	}
	return &encoder{props: props, quality: q}, nil
}

func frameToImage(props frameprops.Props, data []byte) (image.Image, error) {
	if len(data) != props.FrameBytes() {
		return nil, svrerr.NewInvalidArgument("jpegcodec", fmt.Errorf("frame is %d bytes, want %d", len(data), props.FrameBytes()))
	}
	switch props.Channels {
	case 1:
		img := &image.Gray{Pix: data, Stride: props.Width, Rect: image.Rect(0, 0, props.Width, props.Height)}
		return img, nil
	case 3:
		img := image.NewRGBA(image.Rect(0, 0, props.Width, props.Height))
		for y := 0; y < props.Height; y++ {
			for x := 0; x < props.Width; x++ {
				i := (y*props.Width + x) * 3
				img.SetRGBA(x, y, color.RGBA{R: data[i], G: data[i+1], B: data[i+2], A: 0xFF})
			}
		}
		return img, nil
	default:
		return nil, svrerr.NewInvalidArgument("jpegcodec", fmt.Errorf("channels=%d unsupported", props.Channels))
	}
}

func imageToFrame(props frameprops.Props, img image.Image) []byte {
	bounds := img.Bounds()
	data := make([]byte, props.FrameBytes())
	switch props.Channels {
	case 1:
		for y := 0; y < props.Height; y++ {
			for x := 0; x < props.Width; x++ {
				r, _, _, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
				data[y*props.Width+x] = uint8(r >> 8)
			}
		}
	case 3:
		for y := 0; y < props.Height; y++ {
			for x := 0; x < props.Width; x++ {
				r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
				i := (y*props.Width + x) * 3
				data[i] = uint8(r >> 8)
				data[i+1] = uint8(g >> 8)
				data[i+2] = uint8(b >> 8)
			}
		}
	}
	return data
}

func (e *encoder) Encode(f codec.Frame) error {
	img, err := frameToImage(e.props, f.Data)
	if err != nil {
		return err
	}
	return jpeg.Encode(&e.out, img, &jpeg.Options{Quality: e.quality})
}

// Flush is a no-op: jpeg.Encode already wrote a complete, self-delimited
// stream per frame.
func (e *encoder) Flush() error { return nil }

func (e *encoder) DataReady() int { return e.out.Len() }

func (e *encoder) ReadData(buf []byte) (int, error) {
	return e.out.Read(buf)
}

// FrameBoundaryAfterDrain is true: JPEG's end-of-image marker is implicit
// in the stream itself, so the source infers the boundary once a frame's
// encoded bytes are fully drained.
func (e *encoder) FrameBoundaryAfterDrain() bool { return true }

type decoder struct {
	props  frameprops.Props
	buf    bytes.Buffer
	frames []codec.Frame
}

func newDecoder(props frameprops.Props, _ map[string]string) (codec.Decoder, error) {
	return &decoder{props: props}, nil
}

func (d *decoder) WriteData(buf []byte) (int, error) {
	n, err := d.buf.Write(buf)
	if err != nil {
		return n, err
	}
	d.tryDecode()
	return n, nil
}

// tryDecode decodes every complete JPEG image currently buffered. A single
// WriteData call may carry more than one frame's worth of bytes, so this
// locates each image's end-of-image marker explicitly and only consumes
// that image's bytes, leaving any trailing bytes buffered for the next
// image instead of discarding them.
func (d *decoder) tryDecode() {
	for {
		b := d.buf.Bytes()
		end := findEOI(b)
		if end < 0 {
			return
		}
		img, err := jpeg.Decode(bytes.NewReader(b[:end]))
		if err != nil {
			return
		}
		d.frames = append(d.frames, codec.Frame{Props: d.props, Data: imageToFrame(d.props, img)})
		rest := append([]byte(nil), b[end:]...)
		d.buf.Reset()
		d.buf.Write(rest)
	}
}

// findEOI returns the index just past the first end-of-image marker
// (0xFFD9) in b, or -1 if none is present yet. JPEG entropy-coded scan
// data byte-stuffs any literal 0xFF as 0xFF 0x00, so an unescaped 0xFF
// followed by 0xD9 can only be the real marker.
func findEOI(b []byte) int {
	for i := 0; i+1 < len(b); i++ {
		if b[i] == 0xFF && b[i+1] == 0xD9 {
			return i + 2
		}
	}
	return -1
}

func (d *decoder) FrameReady() bool { return len(d.frames) > 0 }

func (d *decoder) ReadFrame() (codec.Frame, error) {
	if len(d.frames) == 0 {
		return codec.Frame{}, io.ErrNoProgress
	}
	f := d.frames[0]
	d.frames = d.frames[1:]
	return f, nil
}
