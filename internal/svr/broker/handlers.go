// Package broker wires the message router's verb table to the source
// registry and stream lifecycle (spec §6's verb vocabulary), and owns the
// per-process stream id counter. It is the glue layer the seed left
// implicit in server.go's command dispatch.
package broker

import (
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/alxayo/svr/internal/svr/ids"
	"github.com/alxayo/svr/internal/svr/message"
	"github.com/alxayo/svr/internal/svr/router"
	"github.com/alxayo/svr/internal/svr/source"
	"github.com/alxayo/svr/internal/svr/stream"
	"github.com/alxayo/svr/internal/svrerr"
)

// SessionRegistry is the subset of session.Session a handler needs,
// expressed as an interface so the handlers depend only on these methods;
// Server's lookupSession supplies a *session.Session.
type SessionRegistry interface {
	NewStreamOutbox(id ids.StreamId) stream.Outbox
	RegisterStream(st *stream.Stream)
	UnregisterStream(id ids.StreamId)
}

// Lookup resolves the caller's Session object from its ClientId, used by
// handlers that need to register/unregister owned streams.
type Lookup func(ids.ClientId) (SessionRegistry, bool)

// Broker owns the source registry, the active stream table, and the
// verb handlers registered into a Router.
type Broker struct {
	sources *source.Registry
	lookup  Lookup
	logger  *slog.Logger

	mu      sync.Mutex
	streams map[ids.StreamId]*stream.Stream
	nextID  atomic.Uint64
}

// NewBroker constructs a Broker and registers its handlers into r.
func NewBroker(r *router.Router, sources *source.Registry, lookup Lookup, logger *slog.Logger) *Broker {
	b := &Broker{sources: sources, streams: make(map[ids.StreamId]*stream.Stream), lookup: lookup, logger: logger}
	b.registerHandlers(r)
	return b
}

func statusResponse(msg *message.Message, err error) *message.Message {
	return message.NewResponse(msg, int32(svrerr.CodeOf(err)))
}

func (b *Broker) registerHandlers(r *router.Router) {
	r.Register("Source.open", b.handleSourceOpen)
	r.Register("Source.close", b.handleSourceClose)
	r.Register("Source.setEncoding", b.handleSourceSetEncoding)
	r.Register("Source.setFrameProperties", b.handleSourceSetFrameProperties)
	r.Register("Source.getSourcesList", b.handleSourceList)
	r.Register("Stream.open", b.handleStreamOpen)
	r.Register("Stream.close", b.handleStreamClose)
	r.Register("Stream.setEncoding", b.handleStreamSetEncoding)
	r.Register("Stream.pause", b.handleStreamPause)
	r.Register("Stream.resume", b.handleStreamResume)
	r.Register("Stream.attach", b.handleStreamAttach)
	r.Register(router.DataVerb, b.handleData)
}

// handleSourceOpen implements Source.open(name, kind, [descriptor]).
func (b *Broker) handleSourceOpen(caller ids.ClientId, msg *message.Message) *message.Message {
	name := msg.Component(1)
	kindTok := msg.Component(2)
	descriptor := msg.Component(3)
	var kind source.Kind
	switch kindTok {
	case "client":
		kind = source.KindClient
	case "server":
		kind = source.KindServer
	default:
		return statusResponse(msg, svrerr.NewParseError("Source.open", nil))
	}
	var owner *ids.ClientId
	if kind == source.KindClient {
		c := caller
		owner = &c
	}
	_, err := b.sources.Open(name, kind, owner, descriptor)
	return statusResponse(msg, err)
}

func (b *Broker) handleSourceClose(caller ids.ClientId, msg *message.Message) *message.Message {
	err := b.sources.Close(msg.Component(1))
	return statusResponse(msg, err)
}

func (b *Broker) handleSourceSetEncoding(caller ids.ClientId, msg *message.Message) *message.Message {
	src, ok := b.sources.Get(msg.Component(1))
	if !ok {
		return statusResponse(msg, svrerr.NewNoSuchSource("Source.setEncoding", nil))
	}
	return statusResponse(msg, src.SetEncoding(msg.Component(2)))
}

func (b *Broker) handleSourceSetFrameProperties(caller ids.ClientId, msg *message.Message) *message.Message {
	src, ok := b.sources.Get(msg.Component(1))
	if !ok {
		return statusResponse(msg, svrerr.NewNoSuchSource("Source.setFrameProperties", nil))
	}
	return statusResponse(msg, src.SetFrameProperties(msg.Component(2)))
}

func (b *Broker) handleSourceList(caller ids.ClientId, msg *message.Message) *message.Message {
	names := b.sources.List()
	resp := message.New(1 + len(names))
	resp.SetComponent(0, strconv.FormatInt(int64(svrerr.CodeSuccess), 10))
	for i, n := range names {
		resp.SetComponent(1+i, n)
	}
	resp.RequestID = msg.RequestID
	resp.IsResponse = true
	return resp
}

// handleStreamOpen implements Stream.open(source_name,
// requested_encoding_descriptor). The stream id is assigned by the
// broker and returned as a result component; subscriber is the calling
// session, never taken from the wire (spec §1 Non-goal: no authentication
// beyond the opaque ClientId already bound to the connection).
func (b *Broker) handleStreamOpen(caller ids.ClientId, msg *message.Message) *message.Message {
	sess, ok := b.lookup(caller)
	if !ok {
		return statusResponse(msg, svrerr.NewInternal("Stream.open", nil))
	}
	sourceName := msg.Component(1)
	descriptor := msg.Component(2)
	src, ok := b.sources.Get(sourceName)
	if !ok {
		return statusResponse(msg, svrerr.NewNoSuchSource("Stream.open", nil))
	}
	id := ids.StreamId(b.nextID.Add(1))
	st, err := stream.New(id, caller, sourceName, descriptor, sess.NewStreamOutbox(id), b.logger)
	if err != nil {
		return statusResponse(msg, err)
	}
	if err := src.AttachStream(st); err != nil {
		return statusResponse(msg, err)
	}
	sess.RegisterStream(st)
	b.mu.Lock()
	b.streams[id] = st
	b.mu.Unlock()

	resp := message.NewResponse(msg, int32(svrerr.CodeSuccess), strconv.FormatUint(uint64(id), 10))
	return resp
}

func (b *Broker) resolveStream(msg *message.Message) (*stream.Stream, error) {
	n, err := strconv.ParseUint(msg.Component(1), 10, 64)
	if err != nil {
		return nil, svrerr.NewParseError("Stream", err)
	}
	b.mu.Lock()
	st, ok := b.streams[ids.StreamId(n)]
	b.mu.Unlock()
	if !ok {
		return nil, svrerr.NewNoSuchStream("Stream", nil)
	}
	return st, nil
}

func (b *Broker) handleStreamClose(caller ids.ClientId, msg *message.Message) *message.Message {
	st, err := b.resolveStream(msg)
	if err != nil {
		return statusResponse(msg, err)
	}
	if src, ok := b.sources.Get(st.SourceName()); ok {
		src.DetachStream(st.ID())
	}
	st.Close()
	b.mu.Lock()
	delete(b.streams, st.ID())
	b.mu.Unlock()
	if sess, ok := b.lookup(caller); ok {
		sess.UnregisterStream(st.ID())
	}
	return statusResponse(msg, nil)
}

func (b *Broker) handleStreamSetEncoding(caller ids.ClientId, msg *message.Message) *message.Message {
	st, err := b.resolveStream(msg)
	if err != nil {
		return statusResponse(msg, err)
	}
	return statusResponse(msg, st.SetEncoding(msg.Component(2)))
}

func (b *Broker) handleStreamPause(caller ids.ClientId, msg *message.Message) *message.Message {
	st, err := b.resolveStream(msg)
	if err != nil {
		return statusResponse(msg, err)
	}
	return statusResponse(msg, st.Pause())
}

func (b *Broker) handleStreamResume(caller ids.ClientId, msg *message.Message) *message.Message {
	st, err := b.resolveStream(msg)
	if err != nil {
		return statusResponse(msg, err)
	}
	return statusResponse(msg, st.Resume())
}

// handleStreamAttach implements Stream.attach(streamID, source_name):
// detaches from the current source (if any) and attaches to the named
// one, going through the weak-reference re-resolution the registry lock
// provides (spec §5).
func (b *Broker) handleStreamAttach(caller ids.ClientId, msg *message.Message) *message.Message {
	st, err := b.resolveStream(msg)
	if err != nil {
		return statusResponse(msg, err)
	}
	newName := msg.Component(2)
	newSrc, ok := b.sources.Get(newName)
	if !ok {
		return statusResponse(msg, svrerr.NewNoSuchSource("Stream.attach", nil))
	}
	if oldSrc, ok := b.sources.Get(st.SourceName()); ok {
		oldSrc.DetachStream(st.ID())
	}
	if err := newSrc.AttachStream(st); err != nil {
		return statusResponse(msg, err)
	}
	st.SetSourceName(newName)
	return statusResponse(msg, nil)
}

// handleData implements the Data fast path of spec §4.6: bytes already
// encoded by a client producer go straight to the named source's
// send_encoded_chunk.
func (b *Broker) handleData(caller ids.ClientId, msg *message.Message) *message.Message {
	src, ok := b.sources.Get(msg.Component(1))
	if !ok {
		b.logger.Warn("Data message for unknown source", "source", msg.Component(1))
		return nil
	}
	if err := src.SendEncodedChunk(msg.Payload, msg.IsBoundary); err != nil {
		b.logger.Warn("send_encoded_chunk failed", "source", msg.Component(1), "error", err)
	}
	return nil
}
