package message

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/alxayo/svr/internal/svrerr"
)

// Correlator implements request/response correlation for C1's
// send(expect_response=true) contract (spec §4.1): a monotonically
// increasing request id is stamped on outbound requests, and a
// pending-responses map routes the eventual reply back to the blocked
// caller. Mirrors the teacher's pairing of an outbound queue with a
// connection-scoped handler, generalized to an explicit wait map since the
// wire protocol here is request/response by design rather than push-only.
type Correlator struct {
	mu      sync.Mutex
	pending map[uint32]chan *Message
	nextID  atomic.Uint32
}

// NewCorrelator returns an empty Correlator.
func NewCorrelator() *Correlator {
	return &Correlator{pending: make(map[uint32]chan *Message)}
}

// NextRequestID returns the next request id to stamp on an outbound request.
func (c *Correlator) NextRequestID() uint32 {
	return c.nextID.Add(1)
}

// Register records that requestID is awaiting a response and returns the
// channel the response will be delivered on.
func (c *Correlator) Register(requestID uint32) chan *Message {
	ch := make(chan *Message, 1)
	c.mu.Lock()
	c.pending[requestID] = ch
	c.mu.Unlock()
	return ch
}

// Forget removes a pending registration without resolving it (used on
// timeout so a late reply does not leak the channel).
func (c *Correlator) Forget(requestID uint32) {
	c.mu.Lock()
	delete(c.pending, requestID)
	c.mu.Unlock()
}

// Resolve delivers resp to its waiter, if one is still registered. Returns
// false if the request id is not pending — the caller should log and
// discard the response (spec §4.6: "A response whose id is not pending is
// discarded with a log entry").
func (c *Correlator) Resolve(resp *Message) bool {
	c.mu.Lock()
	ch, ok := c.pending[resp.RequestID]
	if ok {
		delete(c.pending, resp.RequestID)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	ch <- resp
	return true
}

// Await blocks until a response for requestID arrives or timeout elapses.
// On timeout it forgets the registration and returns a synthetic failure
// response carrying svrerr.CodeTimeout (spec §4.1: "send(expect_response=true)
// ... then returns a synthetic failure response" on connection failure;
// applied here uniformly to the timeout case per spec §5's default 5s).
func (c *Correlator) Await(requestID uint32, ch chan *Message, timeout time.Duration) *Message {
	select {
	case resp := <-ch:
		return resp
	case <-time.After(timeout):
		c.Forget(requestID)
		return NewResponse(&Message{RequestID: requestID}, int32(svrerr.CodeTimeout))
	}
}

// DefaultTimeout is the request/response wait timeout (spec §5: "Timeouts
// apply only to request/response waits (configurable, default 5 s)").
const DefaultTimeout = 5 * time.Second
