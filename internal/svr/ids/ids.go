// Package ids defines the identifier types threaded through the broker
// (spec §3): opaque client identifiers and stream identifiers. Source
// identity is its name string directly, per spec §4.4's "list" contract
// returning prefixed names rather than a synthetic id.
package ids

import "github.com/google/uuid"

// ClientId opaquely identifies a connected peer (spec §3's ClientId). It
// carries no authentication meaning beyond distinguishing sessions (spec
// §1 Non-goals: "authentication beyond an opaque client identifier").
type ClientId string

// NewClientId mints a fresh, process-unique client identifier.
func NewClientId() ClientId {
	return ClientId(uuid.NewString())
}

// StreamId identifies a stream within the process. Streams are locked in
// ascending StreamId order to satisfy the global lock ordering of spec §5.
type StreamId uint64
