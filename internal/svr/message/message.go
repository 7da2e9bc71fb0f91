// Package message implements the wire-level Message type and its TLV
// framing (spec §3, §6): an ordered sequence of UTF-8 components plus an
// optional opaque payload, correlated by a request id.
//
// The seed's "arena" allocator freed a message's component strings on
// release. Idiomatic Go has no equivalent need — the GC reclaims a
// Message's []string the moment nothing references it — so Message here
// is a plain value type with no explicit Release step; the component
// slice is populated once at parse time and never copied again, which is
// the part of the arena design worth keeping.
package message

import "strconv"

// MaxTotalLen is the largest total_len the wire format allows (spec §6);
// frames exceeding it are a protocol violation and close the connection.
const MaxTotalLen = 16 << 20 // 16 MiB

// Flag bits within the header's single flags byte (spec §6, extended here
// per SPEC_FULL.md to resolve the frame-boundary open question in spec §9).
const (
	FlagIsResponse uint8 = 1 << 0
	FlagIsBoundary uint8 = 1 << 1
)

// Message is one TLV frame: an ordered list of text components, a request
// id for response correlation, and an optional opaque payload.
type Message struct {
	Components []string
	RequestID  uint32
	IsResponse bool
	IsBoundary bool
	Payload    []byte
}

// New allocates a Message with n empty components.
func New(n int) *Message {
	return &Message{Components: make([]string, n)}
}

// SetComponent assigns the i-th component.
func (m *Message) SetComponent(i int, s string) {
	for len(m.Components) <= i {
		m.Components = append(m.Components, "")
	}
	m.Components[i] = s
}

// Component returns the i-th component, or "" if out of range.
func (m *Message) Component(i int) string {
	if i < 0 || i >= len(m.Components) {
		return ""
	}
	return m.Components[i]
}

// SetPayload replaces the opaque payload.
func (m *Message) SetPayload(buf []byte) { m.Payload = buf }

// Verb returns the leading component, used by the router to dispatch by
// verb (spec §4.6).
func (m *Message) Verb() string { return m.Component(0) }

// NewResponse builds a response message correlated to req, with status as
// component 0 (spec §6: "Responses carry a status integer in component 0
// and optional result components after").
func NewResponse(req *Message, status int32, results ...string) *Message {
	resp := New(1 + len(results))
	resp.RequestID = req.RequestID
	resp.IsResponse = true
	resp.SetComponent(0, strconv.FormatInt(int64(status), 10))
	for i, r := range results {
		resp.SetComponent(1+i, r)
	}
	return resp
}
