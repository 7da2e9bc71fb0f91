package message

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Encode serializes m into the TLV wire format of spec §6:
//
//	u32 total_len | u16 n_components | u32 request_id | u8 flags |
//	for each component: u32 len, bytes | u32 payload_len, payload_bytes
//
// total_len counts every byte following the total_len field itself.
func Encode(m *Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("message.Encode: nil message")
	}
	if len(m.Components) > 0xFFFF {
		return nil, fmt.Errorf("message.Encode: too many components (%d)", len(m.Components))
	}

	body := make([]byte, 0, 64+len(m.Payload))
	var hdr [7]byte
	binary.LittleEndian.PutUint16(hdr[0:2], uint16(len(m.Components)))
	binary.LittleEndian.PutUint32(hdr[2:6], m.RequestID)
	hdr[6] = encodeFlags(m)
	body = append(body, hdr[:]...)

	for _, c := range m.Components {
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(c)))
		body = append(body, lenBuf[:]...)
		body = append(body, c...)
	}

	var payloadLen [4]byte
	binary.LittleEndian.PutUint32(payloadLen[:], uint32(len(m.Payload)))
	body = append(body, payloadLen[:]...)
	body = append(body, m.Payload...)

	totalLen := uint64(len(body))
	if totalLen > MaxTotalLen {
		return nil, fmt.Errorf("message.Encode: total_len %d exceeds max %d", totalLen, MaxTotalLen)
	}

	out := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(out[0:4], uint32(totalLen))
	copy(out[4:], body)
	return out, nil
}

// Write encodes and writes m to w in a single call.
func Write(w io.Writer, m *Message) error {
	buf, err := Encode(m)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

func encodeFlags(m *Message) uint8 {
	var f uint8
	if m.IsResponse {
		f |= FlagIsResponse
	}
	if m.IsBoundary {
		f |= FlagIsBoundary
	}
	return f
}
