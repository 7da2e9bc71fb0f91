package message

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Reader incrementally decodes TLV frames off an io.Reader, mirroring the
// teacher's chunk.Reader: a small buffered reader driving ReadMessage in a
// loop, one frame per call. The 4 KiB read buffer may already hold bytes of
// the following frames; they are returned by later calls.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r (typically a net.Conn) for message-at-a-time reads.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 4096)}
}

// ReadMessage blocks until one complete frame is available, or returns an
// error (including io.EOF on clean close). Frames whose declared total_len
// exceeds MaxTotalLen are a protocol violation; the caller must close the
// connection.
func (r *Reader) ReadMessage() (*Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r.r, lenBuf[:]); err != nil {
		return nil, err
	}
	totalLen := binary.LittleEndian.Uint32(lenBuf[:])
	if totalLen > MaxTotalLen {
		return nil, fmt.Errorf("message.ReadMessage: total_len %d exceeds max %d", totalLen, MaxTotalLen)
	}
	if totalLen < 7 {
		return nil, fmt.Errorf("message.ReadMessage: total_len %d too small for header", totalLen)
	}

	body := make([]byte, totalLen)
	if _, err := io.ReadFull(r.r, body); err != nil {
		return nil, fmt.Errorf("message.ReadMessage: body: %w", err)
	}

	return decodeBody(body)
}

func decodeBody(body []byte) (*Message, error) {
	if len(body) < 7 {
		return nil, fmt.Errorf("message.decodeBody: short header (%d bytes)", len(body))
	}
	nComponents := binary.LittleEndian.Uint16(body[0:2])
	requestID := binary.LittleEndian.Uint32(body[2:6])
	flags := body[6]
	pos := 7

	m := New(int(nComponents))
	m.RequestID = requestID
	m.IsResponse = flags&FlagIsResponse != 0
	m.IsBoundary = flags&FlagIsBoundary != 0

	for i := 0; i < int(nComponents); i++ {
		if pos+4 > len(body) {
			return nil, fmt.Errorf("message.decodeBody: truncated component %d length", i)
		}
		clen := int(binary.LittleEndian.Uint32(body[pos : pos+4]))
		pos += 4
		if clen < 0 || pos+clen > len(body) {
			return nil, fmt.Errorf("message.decodeBody: truncated component %d body (len=%d)", i, clen)
		}
		m.Components[i] = string(body[pos : pos+clen])
		pos += clen
	}

	if pos+4 > len(body) {
		return nil, fmt.Errorf("message.decodeBody: truncated payload length")
	}
	plen := int(binary.LittleEndian.Uint32(body[pos : pos+4]))
	pos += 4
	if plen < 0 || pos+plen > len(body) {
		return nil, fmt.Errorf("message.decodeBody: truncated payload (len=%d)", plen)
	}
	if plen > 0 {
		m.Payload = body[pos : pos+plen]
	}

	return m, nil
}

// Decode parses one complete wire frame exactly as Encode returned it,
// including the leading total_len field, which must equal len(buf)-4.
func Decode(buf []byte) (*Message, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("message.Decode: buffer too short")
	}
	totalLen := binary.LittleEndian.Uint32(buf[0:4])
	if int(totalLen) != len(buf)-4 {
		return nil, fmt.Errorf("message.Decode: total_len %d does not match buffer", totalLen)
	}
	return decodeBody(buf[4:])
}
