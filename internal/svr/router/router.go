// Package router implements the message router of spec §4.6, C8: a
// process-wide verb table dispatches inbound messages by their leading
// component to handlers, correlates outbound request/response pairs, and
// treats "Data" as a fast-path verb that never elicits a response.
package router

import (
	"log/slog"
	"sync"

	"github.com/alxayo/svr/internal/svr/ids"
	"github.com/alxayo/svr/internal/svr/message"
	"github.com/alxayo/svr/internal/svrerr"
)

// DataVerb is the one verb that never elicits a response (spec §6): it is
// dispatched to the named source's send_encoded_chunk fast path (spec
// §4.6) instead of the synchronous request/response handler contract.
const DataVerb = "Data"

// Handler answers one request from caller. Verbs other than DataVerb must
// return a non-nil response; the session stamps it with the request's id
// before writing it out.
type Handler func(caller ids.ClientId, msg *message.Message) *message.Message

// Router is the process-wide verb dispatch table (spec §9: a process-wide
// singleton with explicit init/shutdown ordering).
type Router struct {
	mu         sync.RWMutex
	handlers   map[string]Handler
	correlator *message.Correlator
	logger     *slog.Logger
}

// New returns an empty router bound to correlator for outbound
// request/response waits.
func New(correlator *message.Correlator, logger *slog.Logger) *Router {
	return &Router{handlers: make(map[string]Handler), correlator: correlator, logger: logger}
}

// Register binds verb to a handler. Intended to run during process init,
// before any network I/O (spec §9).
func (r *Router) Register(verb string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[verb] = h
}

// Dispatch routes one inbound message. If msg.IsResponse it is handed to
// the correlator; otherwise its verb (first component) selects a
// handler. DataVerb handlers run but their return value, if any, is
// discarded — Data never elicits a response (spec §6).
func (r *Router) Dispatch(caller ids.ClientId, msg *message.Message) *message.Message {
	if msg.IsResponse {
		if !r.correlator.Resolve(msg) {
			r.logger.Warn("response for unknown request id discarded", "request_id", msg.RequestID)
		}
		return nil
	}

	verb := msg.Verb()
	r.mu.RLock()
	h, ok := r.handlers[verb]
	r.mu.RUnlock()
	if !ok {
		return message.NewResponse(msg, int32(svrerr.CodeParseError))
	}

	resp := h(caller, msg)
	if verb == DataVerb {
		return nil
	}
	if resp == nil {
		resp = message.NewResponse(msg, int32(svrerr.CodeInternal))
	}
	return resp
}

// Correlator exposes the router's response correlator, for code that
// sends outbound requests and must await their reply.
func (r *Router) Correlator() *message.Correlator { return r.correlator }
