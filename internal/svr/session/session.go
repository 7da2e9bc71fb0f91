// Package session implements the per-connected-client state of spec §4
// component C9: an inbox/outbox pair, the set of sources and streams the
// client owns, and disconnect-driven destruction of both.
package session

import (
	"errors"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/alxayo/svr/internal/svr/ids"
	"github.com/alxayo/svr/internal/svr/message"
	"github.com/alxayo/svr/internal/svr/router"
	"github.com/alxayo/svr/internal/svr/source"
	"github.com/alxayo/svr/internal/svr/stream"
	"github.com/alxayo/svr/internal/svr/workerpool"
)

// defaultOutboxCapacity bounds the per-client outbox queue (spec §4.5's
// drop policy operates against this bound).
const defaultOutboxCapacity = 256

// Session is the per-connected-peer object of spec §3/§9 (C9).
type Session struct {
	id     ids.ClientId
	conn   net.Conn
	logger *slog.Logger
	router *router.Router
	reader *message.Reader
	pool   *workerpool.Pool

	outbox  *boundedQueue
	closing atomic.Bool

	mu           sync.Mutex
	ownedStreams map[ids.StreamId]*stream.Stream

	sources *source.Registry
	wg      sync.WaitGroup
}

// New wraps an accepted connection as a Session with the default outbox
// capacity. The caller must call Run to start its I/O goroutines (spec
// §5: "at minimum one I/O thread per connected client").
func New(conn net.Conn, r *router.Router, sources *source.Registry, pool *workerpool.Pool, logger *slog.Logger) *Session {
	return NewWithOutboxCapacity(conn, r, sources, pool, defaultOutboxCapacity, logger)
}

// NewWithOutboxCapacity is New with an explicit outbox capacity (spec
// §4.5's drop policy operates against this bound).
func NewWithOutboxCapacity(conn net.Conn, r *router.Router, sources *source.Registry, pool *workerpool.Pool, outboxCapacity int, logger *slog.Logger) *Session {
	id := ids.NewClientId()
	return &Session{
		id:           id,
		conn:         conn,
		logger:       logger.With("client_id", string(id)),
		router:       r,
		reader:       message.NewReader(conn),
		pool:         pool,
		outbox:       newBoundedQueue(outboxCapacity),
		ownedStreams: make(map[ids.StreamId]*stream.Stream),
		sources:      sources,
	}
}

// ID returns the client's opaque identifier.
func (s *Session) ID() ids.ClientId { return s.id }

// Run drives the session's read and write loops until the connection
// closes, then tears down everything the client owned.
func (s *Session) Run() {
	s.wg.Add(1)
	go s.writeLoop()

	s.readLoop()

	s.Close()
	s.wg.Wait()
}

func (s *Session) readLoop() {
	for {
		if s.closing.Load() {
			return
		}
		msg, err := s.reader.ReadMessage()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("connection read ended", "error", err)
			}
			return
		}
		s.dispatch(msg)
	}
}

// dispatch answers msg on a worker-pool goroutine (spec §4.6: "answered by
// the handler synchronously on a worker thread"), keeping the read loop
// free to keep draining the connection.
func (s *Session) dispatch(msg *message.Message) {
	work := func() {
		resp := s.router.Dispatch(s.id, msg)
		if resp == nil {
			return
		}
		resp.RequestID = msg.RequestID
		s.outbox.push(resp)
	}
	if s.pool == nil {
		work()
		return
	}
	s.pool.Submit(work)
}

func (s *Session) writeLoop() {
	defer s.wg.Done()
	for {
		msg, ok := s.outbox.popFront()
		if !ok {
			return
		}
		if err := message.Write(s.conn, msg); err != nil {
			s.logger.Debug("connection write failed", "error", err)
			s.Close()
			return
		}
	}
}

// Close tears the session down: stops I/O, releases every source and
// stream the client owned (spec §3: "destruction of that client destroys
// the source").
func (s *Session) Close() {
	if !s.closing.CompareAndSwap(false, true) {
		return
	}
	s.conn.Close()
	s.outbox.close()

	s.mu.Lock()
	owned := make([]*stream.Stream, 0, len(s.ownedStreams))
	for _, st := range s.ownedStreams {
		owned = append(owned, st)
	}
	s.ownedStreams = make(map[ids.StreamId]*stream.Stream)
	s.mu.Unlock()
	for _, st := range owned {
		if src, ok := s.sources.Get(st.SourceName()); ok {
			src.DetachStream(st.ID())
		}
		st.Close()
	}

	s.sources.CloseOwnedBy(s.id)
}

// RegisterStream tracks a stream as owned by this client.
func (s *Session) RegisterStream(st *stream.Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ownedStreams[st.ID()] = st
}

// UnregisterStream stops tracking a stream (explicit Stream.close verb).
func (s *Session) UnregisterStream(id ids.StreamId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ownedStreams, id)
}

// streamOutbox adapts a Session's shared outbox queue into the per-stream
// stream.Outbox contract (spec §4.5), tagging each chunk with the
// destination stream id.
type streamOutbox struct {
	session  *Session
	streamID ids.StreamId
}

// NewStreamOutbox returns the stream.Outbox a Stream attached to this
// session should deliver into.
func (s *Session) NewStreamOutbox(id ids.StreamId) stream.Outbox {
	return &streamOutbox{session: s, streamID: id}
}

func (o *streamOutbox) buildMessage(data []byte, isBoundary bool) *message.Message {
	m := message.New(2)
	m.SetComponent(0, "Data")
	m.SetComponent(1, strconv.FormatUint(uint64(o.streamID), 10))
	m.IsBoundary = isBoundary
	m.Payload = data
	return m
}

func (o *streamOutbox) TryEnqueue(data []byte, isBoundary bool) bool {
	return o.session.outbox.tryPush(o.buildMessage(data, isBoundary))
}

func (o *streamOutbox) Enqueue(data []byte, isBoundary bool) error {
	if !o.session.outbox.pushTimeout(o.buildMessage(data, isBoundary), message.DefaultTimeout) {
		return net.ErrClosed
	}
	return nil
}

func (o *streamOutbox) DropOldest() bool {
	return o.session.outbox.dropOldest()
}
