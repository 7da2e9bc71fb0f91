// Package source implements the named-ingress side of the broker (spec
// §4.4, C5): a Source owns its current encoding, encoder, frame
// properties, and the set of attached streams, and drives the hot-path
// fan-out described in spec §4.4/§4.5.
package source

import (
	"log/slog"
	"sort"

	"github.com/alxayo/svr/internal/bufpool"
	"github.com/alxayo/svr/internal/svr/codec"
	"github.com/alxayo/svr/internal/svr/frameprops"
	"github.com/alxayo/svr/internal/svr/ids"
	"github.com/alxayo/svr/internal/svr/lockable"
	"github.com/alxayo/svr/internal/svr/optstring"
	"github.com/alxayo/svr/internal/svr/stream"
	"github.com/alxayo/svr/internal/svrerr"
)

// Kind distinguishes client-owned from server-owned sources (spec §3).
type Kind int

const (
	KindServer Kind = iota
	KindClient
)

func (k Kind) Prefix() string {
	if k == KindClient {
		return "c:"
	}
	return "s:"
}

// drainChunkSize is the source's payload-buffer drain granularity (spec
// §4.4 hot path step (e)).
const drainChunkSize = 65536

// Source is the named ingress object (spec §3).
type Source struct {
	lock *lockable.Lockable

	name  string
	kind  Kind
	owner *ids.ClientId

	props     frameprops.Props
	havePropsSet bool

	encoding        codec.Encoding
	encodingOptions map[string]string
	haveEncoding    bool

	encoder codec.Encoder

	streams map[ids.StreamId]*stream.Stream

	closed bool
	logger *slog.Logger
}

// New constructs a Source in the given kind and, if descriptor is
// non-empty, installs its encoding up front (spec §4.4 open's optional
// descriptor).
func New(name string, kind Kind, owner *ids.ClientId, descriptor string, logger *slog.Logger) (*Source, error) {
	s := &Source{
		lock:    lockable.New(),
		name:    name,
		kind:    kind,
		owner:   owner,
		streams: make(map[ids.StreamId]*stream.Stream),
		logger:  logger,
	}
	if descriptor != "" {
		if err := s.setEncodingLocked(descriptor); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Name returns the source's name (without kind prefix).
func (s *Source) Name() string { return s.name }

// Kind returns whether this is a client or server source.
func (s *Source) Kind() Kind { return s.kind }

// Owner returns the owning client id, or nil for a server source.
func (s *Source) Owner() *ids.ClientId { return s.owner }

func (s *Source) setEncodingLocked(descriptor string) error {
	desc, err := optstring.Parse(descriptor)
	if err != nil {
		return svrerr.NewParseError("Source.setEncoding", err)
	}
	enc, ok := codec.Get(desc.Name)
	if !ok {
		return svrerr.NewNoSuchEncoding("Source.setEncoding", nil)
	}
	s.encoding = enc
	s.encodingOptions = desc.Options
	s.haveEncoding = true
	s.encoder = nil // discarded; rebuilt lazily on next send_frame (spec §4.4)
	return nil
}

// SetEncoding implements Source.setEncoding (spec §4.4). Existing streams
// observe the change and rebuild their reencoders lazily on next delivery.
func (s *Source) SetEncoding(descriptor string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return svrerr.NewInvalidState("Source.setEncoding", nil)
	}
	return s.setEncodingLocked(descriptor)
}

// SetFrameProperties implements Source.set_frame_properties (spec §4.4).
func (s *Source) SetFrameProperties(encoded string) error {
	props, err := frameprops.Parse(encoded)
	if err != nil {
		return svrerr.NewParseError("Source.setFrameProperties", err)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return svrerr.NewInvalidState("Source.setFrameProperties", nil)
	}
	s.props = props
	s.havePropsSet = true
	s.encoder = nil // discarded; shape changed (spec §4.4)
	return nil
}

// SendFrame implements the hot path of spec §4.4. frame carries the
// uncompressed sample data and, if the source has no installed
// properties yet, the shape to install.
func (s *Source) SendFrame(frame codec.Frame) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return svrerr.NewInvalidState("Source.sendFrame", nil)
	}
	if !s.havePropsSet {
		s.props = frame.Props
		s.havePropsSet = true
	} else if !s.props.Equal(frame.Props) {
		return svrerr.NewInvalidArgument("Source.sendFrame", nil)
	}
	if !s.haveEncoding {
		return svrerr.NewNoSuchEncoding("Source.sendFrame", nil)
	}
	if s.encoder == nil {
		enc, err := s.encoding.MakeEncoder(s.props, s.encodingOptions)
		if err != nil {
			return err
		}
		s.encoder = enc
	}
	if err := s.encoder.Encode(frame); err != nil {
		return err
	}
	if err := s.encoder.Flush(); err != nil {
		return err
	}
	return s.drainLocked()
}

// SendEncodedChunk is the server-side analogue of the drain step for
// sources whose producer already encoded the bytes itself (spec §4.6:
// "Data messages are dispatched to the named source's send_encoded_chunk
// fast path ... when the source's encoder is external").
func (s *Source) SendEncodedChunk(chunk []byte, isBoundary bool) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return svrerr.NewInvalidState("Source.sendEncodedChunk", nil)
	}
	if !s.haveEncoding {
		return svrerr.NewNoSuchEncoding("Source.sendEncodedChunk", nil)
	}
	s.deliverToStreamsLocked(chunk, isBoundary)
	return nil
}

// drainLocked pulls encoded bytes out of the source's own encoder in
// drainChunkSize chunks and fans each chunk out to attached streams,
// asserting a boundary on the final chunk of the push (spec §4.4 step e).
// The final chunk is held back by one iteration so it can be marked as the
// boundary itself, rather than followed by a separate empty boundary-only
// chunk that a stream's reencoder could drop before it ever reaches the
// outbox.
func (s *Source) drainLocked() error {
	buf := bufpool.Get(drainChunkSize)
	defer bufpool.Put(buf)

	var pending []byte
	for {
		ready := s.encoder.DataReady()
		if ready == 0 {
			break
		}
		want := ready
		if want > len(buf) {
			want = len(buf)
		}
		n, err := s.encoder.ReadData(buf[:want])
		if err != nil {
			return svrerr.NewInternal("Source.drain", err)
		}
		if pending != nil {
			s.deliverToStreamsLocked(pending, false)
		}
		pending = append([]byte(nil), buf[:n]...)
	}
	if pending != nil {
		s.deliverToStreamsLocked(pending, true)
	} else if s.encoder.FrameBoundaryAfterDrain() {
		s.deliverToStreamsLocked(nil, true)
	}
	return nil
}

// deliverToStreamsLocked fans a chunk out to every attached stream,
// acquiring each stream's lock in ascending id order to satisfy the
// global lock ordering of spec §5.
func (s *Source) deliverToStreamsLocked(chunk []byte, isBoundary bool) {
	ordered := make([]*stream.Stream, 0, len(s.streams))
	for _, st := range s.streams {
		ordered = append(ordered, st)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID() < ordered[j].ID() })
	for _, st := range ordered {
		st.Lock()
		if err := st.DeliverLocked(chunk, isBoundary, s.encoding, s.encodingOptions, s.props); err != nil {
			s.logger.Warn("stream delivery failed", "source", s.name, "stream_id", uint64(st.ID()), "error", err)
		}
		st.Unlock()
	}
}

// AttachStream registers st as consuming this source's output. The
// stream's source-name field must already name this source.
func (s *Source) AttachStream(st *stream.Stream) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return svrerr.NewInvalidState("Source.attach", nil)
	}
	s.streams[st.ID()] = st
	return nil
}

// DetachStream removes a stream from the fan-out set.
func (s *Source) DetachStream(id ids.StreamId) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.streams, id)
}

// Close implements Source.close (spec §4.4): transitions to closed,
// orphans attached streams, releases the encoder and properties.
func (s *Source) Close() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.encoder = nil
	s.havePropsSet = false
	ordered := make([]*stream.Stream, 0, len(s.streams))
	for _, st := range s.streams {
		ordered = append(ordered, st)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID() < ordered[j].ID() })
	for _, st := range ordered {
		st.Lock()
		st.OrphanLocked()
		st.Unlock()
	}
}

// Closed reports whether Close has been called.
func (s *Source) Closed() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.closed
}

// HasNoAttachedStreams reports whether every attached stream has
// transitioned out of active delivery, satisfying spec §5's resource
// lifetime rule for reclaiming a closed source from the registry.
func (s *Source) HasNoAttachedStreams() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, st := range s.streams {
		switch st.State() {
		case stream.StateClosed, stream.StateOrphaned:
			continue
		default:
			return false
		}
	}
	return true
}
