// Package stream implements the per-subscriber egress side of the broker
// (spec §4.5, C6): a Stream owns a reencoder bound lazily to the current
// (source encoding, requested encoding, source properties) triple, a
// destination outbox, and pause/orphan/drop-policy state.
package stream

import (
	"log/slog"

	"github.com/alxayo/svr/internal/svr/codec"
	"github.com/alxayo/svr/internal/svr/frameprops"
	"github.com/alxayo/svr/internal/svr/ids"
	"github.com/alxayo/svr/internal/svr/lockable"
	"github.com/alxayo/svr/internal/svr/optstring"
	"github.com/alxayo/svr/internal/svr/reencoder"
	"github.com/alxayo/svr/internal/svrerr"
)

// State is the stream lifecycle state (spec §4.5).
type State int

const (
	StateFlowing State = iota
	StatePaused
	StateOrphaned
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateFlowing:
		return "flowing"
	case StatePaused:
		return "paused"
	case StateOrphaned:
		return "orphaned"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DropPolicy governs what happens when the subscriber's outbox is full
// (spec §4.5). DropNewest is the default.
type DropPolicy int

const (
	DropNewest DropPolicy = iota
	DropOldest
	Block
)

// Outbox is the subscriber-facing bounded queue a Stream delivers into.
// Implemented by the client session (spec §5's "client outbox"); kept as
// an interface here so stream has no dependency on session/router.
type Outbox interface {
	// TryEnqueue attempts a non-blocking enqueue; false means full.
	TryEnqueue(data []byte, isBoundary bool) bool
	// Enqueue blocks until space frees; it returns an error if the
	// subscriber disconnects or (in the session's implementation) a timeout
	// elapses first.
	Enqueue(data []byte, isBoundary bool) error
	// DropOldest evicts the oldest queued chunk, reporting whether anything
	// was evicted.
	DropOldest() bool
}

// Stream is the per-subscriber egress object (spec §3).
type Stream struct {
	lock *lockable.Lockable

	id         ids.StreamId
	subscriber ids.ClientId
	sourceName string
	outbox     Outbox
	logger     *slog.Logger

	requestedEncoding codec.Encoding
	requestedOptions  map[string]string

	state      State
	dropPolicy DropPolicy

	reenc     reencoder.Reencoder
	boundSpec reencoder.Spec
	haveSpec  bool

	dropping    bool // drop_newest: discarding until next boundary
	needsResync bool // drop_oldest: set after an eviction, cleared when a boundary chunk is enqueued; no separate prefix chunk is sent
}

// New constructs a Stream in the flowing state, bound to subscriber and
// sourceName, requesting the encoding described by descriptor (spec §6
// option-string grammar).
func New(id ids.StreamId, subscriber ids.ClientId, sourceName string, descriptor string, outbox Outbox, logger *slog.Logger) (*Stream, error) {
	desc, err := optstring.Parse(descriptor)
	if err != nil {
		return nil, svrerr.NewParseError("Stream.open", err)
	}
	enc, ok := codec.Get(desc.Name)
	if !ok {
		return nil, svrerr.NewNoSuchEncoding("Stream.open", nil)
	}
	return &Stream{
		lock:              lockable.New(),
		id:                id,
		subscriber:        subscriber,
		sourceName:        sourceName,
		outbox:            outbox,
		logger:            logger,
		requestedEncoding: enc,
		requestedOptions:  desc.Options,
		state:             StateFlowing,
		dropPolicy:        DropNewest,
	}, nil
}

// ID returns the stream's identifier.
func (s *Stream) ID() ids.StreamId { return s.id }

// Subscriber returns the owning client.
func (s *Stream) Subscriber() ids.ClientId { return s.subscriber }

// SourceName returns the name of the source this stream is attached to.
func (s *Stream) SourceName() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.sourceName
}

// SetSourceName updates the name of the source this stream delivers from,
// called by Stream.attach after a successful re-attach so a later detach
// (Stream.close, Session.Close) targets the stream's current source
// instead of the one it was opened against (spec §8 "No leaked sources").
func (s *Stream) SetSourceName(name string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.sourceName = name
}

// Lock and Unlock expose the stream's lock directly so the source can hold
// it across a DeliverLocked call, per the lock-ordering discipline of spec
// §5 (Source → Stream ascending id → Client outbox → Router pending).
func (s *Stream) Lock()   { s.lock.Lock() }
func (s *Stream) Unlock() { s.lock.Unlock() }

// State reports the current lifecycle state.
func (s *Stream) State() State {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state
}

// SetDropPolicy changes the drop policy (not part of the wire verb
// vocabulary in spec §6, but needed to exercise Block/DropOldest in
// tests and by a future administrative verb).
func (s *Stream) SetDropPolicy(p DropPolicy) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.dropPolicy = p
}

// SetEncoding reparses descriptor and installs a new requested encoding,
// tearing down the reencoder so it rebuilds lazily on next delivery (spec
// §4.4's set_encoding lazy-rebuild policy, applied symmetrically here).
func (s *Stream) SetEncoding(descriptor string) error {
	desc, err := optstring.Parse(descriptor)
	if err != nil {
		return svrerr.NewParseError("Stream.setEncoding", err)
	}
	enc, ok := codec.Get(desc.Name)
	if !ok {
		return svrerr.NewNoSuchEncoding("Stream.setEncoding", nil)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.requestedEncoding = enc
	s.requestedOptions = desc.Options
	s.reenc = nil
	s.haveSpec = false
	return nil
}

// Pause transitions flowing -> paused. A paused stream drops chunks
// without buffering (spec §4.5).
func (s *Stream) Pause() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.state != StateFlowing {
		return svrerr.NewInvalidState("Stream.pause", nil)
	}
	s.state = StatePaused
	return nil
}

// Resume transitions paused -> flowing.
func (s *Stream) Resume() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.state != StatePaused {
		return svrerr.NewInvalidState("Stream.resume", nil)
	}
	s.state = StateFlowing
	return nil
}

// Close transitions {any} -> closed and releases the reencoder.
func (s *Stream) Close() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.closeLocked()
}

func (s *Stream) closeLocked() {
	s.state = StateClosed
	s.reenc = nil
	s.haveSpec = false
}

// OrphanLocked transitions flowing or paused -> orphaned when the stream's
// source closes (spec §4.5). The caller must hold the stream's lock.
func (s *Stream) OrphanLocked() {
	if s.state == StateFlowing || s.state == StatePaused {
		s.state = StateOrphaned
		s.reenc = nil
		s.haveSpec = false
	}
}

// rebuildLocked (re)selects the reencoder if the bound spec has changed
// or none exists yet (spec §3: "if any of those change the reencoder is
// torn down and rebuilt lazily").
func (s *Stream) rebuildLocked(spec reencoder.Spec) error {
	if s.haveSpec && s.reenc != nil &&
		s.boundSpec.SourceEncoding.Name == spec.SourceEncoding.Name &&
		s.boundSpec.StreamEncoding.Name == spec.StreamEncoding.Name &&
		s.boundSpec.Props.Equal(spec.Props) &&
		s.boundSpec.SourceEncoding.OptionsEquivalent(s.boundSpec.SourceOptions, spec.SourceOptions) &&
		s.boundSpec.StreamEncoding.OptionsEquivalent(s.boundSpec.StreamOptions, spec.StreamOptions) {
		return nil
	}
	r, err := reencoder.Select(spec)
	if err != nil {
		return err
	}
	s.reenc = r
	s.boundSpec = spec
	s.haveSpec = true
	return nil
}

// DeliverLocked drives the stream's reencoder with one chunk of the
// source's encoded bytes and enqueues the result per drop policy (spec
// §4.5). The caller (Source) must hold this stream's lock, acquired in
// ascending stream-id order relative to sibling streams.
func (s *Stream) DeliverLocked(chunk []byte, isBoundary bool, srcEncoding codec.Encoding, srcOptions map[string]string, props frameprops.Props) error {
	if s.state != StateFlowing {
		return nil
	}
	if err := s.rebuildLocked(reencoder.Spec{
		SourceEncoding: srcEncoding,
		SourceOptions:  srcOptions,
		StreamEncoding: s.requestedEncoding,
		StreamOptions:  s.requestedOptions,
		Props:          props,
	}); err != nil {
		s.logger.Warn("reencoder rebuild failed, stream stays flowing with no output", "stream_id", uint64(s.id), "error", err)
		return nil
	}
	out, err := s.reenc.Reencode(chunk, isBoundary)
	if err != nil {
		s.logger.Warn("reencode failed, discarding up to next boundary", "stream_id", uint64(s.id), "error", err)
		s.dropping = true
		return nil
	}
	if isBoundary {
		s.dropping = false
	}
	if s.dropping || len(out) == 0 {
		return nil
	}
	return s.enqueueLocked(out, isBoundary)
}

func (s *Stream) enqueueLocked(out []byte, isBoundary bool) error {
	if s.needsResync {
		// drop_oldest truncated a prior frame; nothing to prefix with here
		// beyond clearing the flag once a boundary-aligned chunk goes out,
		// since the wire header already carries is_boundary explicitly
		// (spec §9 open question resolution) instead of an in-band marker.
		if isBoundary {
			s.needsResync = false
		}
	}
	if s.outbox.TryEnqueue(out, isBoundary) {
		return nil
	}
	switch s.dropPolicy {
	case Block:
		if err := s.outbox.Enqueue(out, isBoundary); err != nil {
			s.logger.Warn("block-policy enqueue exceeded timeout, closing stream", "stream_id", uint64(s.id), "error", err)
			s.closeLocked()
			return svrerr.NewPeerDisconnected("Stream.enqueue", err)
		}
		return nil
	case DropOldest:
		s.outbox.DropOldest()
		s.needsResync = true
		s.outbox.TryEnqueue(out, isBoundary)
		return nil
	default: // DropNewest
		s.dropping = !isBoundary
		return nil
	}
}
