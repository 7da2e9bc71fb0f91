package broker

import (
	"log/slog"
	"os"
	"strconv"
	"testing"

	"github.com/alxayo/svr/internal/svr/codec"
	"github.com/alxayo/svr/internal/svr/frameprops"
	"github.com/alxayo/svr/internal/svr/ids"
	"github.com/alxayo/svr/internal/svr/message"
	"github.com/alxayo/svr/internal/svr/router"
	"github.com/alxayo/svr/internal/svr/source"
	"github.com/alxayo/svr/internal/svr/stream"

	_ "github.com/alxayo/svr/internal/svr/codec/rawcodec"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeSession is a minimal SessionRegistry used to exercise Stream.open
// without standing up a full session.Session.
type fakeSession struct {
	outboxes   map[ids.StreamId]*fakeOutbox
	registered map[ids.StreamId]*stream.Stream
}

func newFakeSession() *fakeSession {
	return &fakeSession{outboxes: make(map[ids.StreamId]*fakeOutbox), registered: make(map[ids.StreamId]*stream.Stream)}
}

func (f *fakeSession) NewStreamOutbox(id ids.StreamId) stream.Outbox {
	out := &fakeOutbox{}
	f.outboxes[id] = out
	return out
}

func (f *fakeSession) RegisterStream(st *stream.Stream) { f.registered[st.ID()] = st }
func (f *fakeSession) UnregisterStream(id ids.StreamId) { delete(f.registered, id) }

type fakeOutbox struct {
	chunks [][]byte
}

func (o *fakeOutbox) TryEnqueue(data []byte, isBoundary bool) bool {
	o.chunks = append(o.chunks, append([]byte(nil), data...))
	return true
}
func (o *fakeOutbox) Enqueue(data []byte, isBoundary bool) error {
	o.chunks = append(o.chunks, append([]byte(nil), data...))
	return nil
}
func (o *fakeOutbox) DropOldest() bool { return false }

func newTestBroker() (*router.Router, *source.Registry, *fakeSession, ids.ClientId) {
	logger := testLogger()
	r := router.New(message.NewCorrelator(), logger)
	sources := source.NewRegistry(logger)
	caller := ids.NewClientId()
	sess := newFakeSession()
	lookup := func(c ids.ClientId) (SessionRegistry, bool) {
		if c == caller {
			return sess, true
		}
		return nil, false
	}
	NewBroker(r, sources, lookup, logger)
	return r, sources, sess, caller
}

func call(r *router.Router, caller ids.ClientId, verb string, components ...string) *message.Message {
	msg := message.New(1 + len(components))
	msg.SetComponent(0, verb)
	for i, c := range components {
		msg.SetComponent(1+i, c)
	}
	msg.RequestID = 1
	return r.Dispatch(caller, msg)
}

func statusOf(t *testing.T, resp *message.Message) int {
	t.Helper()
	n, err := strconv.Atoi(resp.Component(0))
	if err != nil {
		t.Fatalf("status component not an int: %q", resp.Component(0))
	}
	return n
}

func TestSourceOpenCloseRoundTrip(t *testing.T) {
	r, _, _, caller := newTestBroker()

	resp := call(r, caller, "Source.open", "cam1", "server", "raw")
	if statusOf(t, resp) != 0 {
		t.Fatalf("Source.open failed: %+v", resp)
	}

	resp = call(r, caller, "Source.open", "cam1", "server", "raw")
	if statusOf(t, resp) == 0 {
		t.Fatal("expected NameInUse on duplicate Source.open")
	}

	resp = call(r, caller, "Source.close", "cam1")
	if statusOf(t, resp) != 0 {
		t.Fatalf("Source.close failed: %+v", resp)
	}
}

func TestSourceOpenRejectsBadKind(t *testing.T) {
	r, _, _, caller := newTestBroker()

	resp := call(r, caller, "Source.open", "cam1", "bogus", "raw")
	if statusOf(t, resp) == 0 {
		t.Fatal("expected failure for unknown source kind")
	}
}

func TestStreamOpenAttachesAndDelivers(t *testing.T) {
	r, sources, sess, caller := newTestBroker()

	if resp := call(r, caller, "Source.open", "cam1", "server", "raw"); statusOf(t, resp) != 0 {
		t.Fatalf("Source.open failed: %+v", resp)
	}

	resp := call(r, caller, "Stream.open", "cam1", "raw")
	if statusOf(t, resp) != 0 {
		t.Fatalf("Stream.open failed: %+v", resp)
	}
	streamIDStr := resp.Component(1)
	streamID, err := strconv.ParseUint(streamIDStr, 10, 64)
	if err != nil {
		t.Fatalf("bad stream id %q: %v", streamIDStr, err)
	}

	src, ok := sources.Get("cam1")
	if !ok {
		t.Fatal("source not found")
	}
	props := frameprops.Props{Width: 2, Height: 2, Depth: frameprops.DepthU8, Channels: 1}
	frame := codec.Frame{Props: props, Data: make([]byte, props.FrameBytes())}
	if err := src.SendFrame(frame); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}

	out := sess.outboxes[ids.StreamId(streamID)]
	if out == nil || len(out.chunks) == 0 {
		t.Fatal("expected delivered chunk on the attached stream's outbox")
	}
}

func TestStreamCloseDetachesFromSource(t *testing.T) {
	r, sources, sess, caller := newTestBroker()

	call(r, caller, "Source.open", "cam1", "server", "raw")
	resp := call(r, caller, "Stream.open", "cam1", "raw")
	streamIDStr := resp.Component(1)

	resp = call(r, caller, "Stream.close", streamIDStr)
	if statusOf(t, resp) != 0 {
		t.Fatalf("Stream.close failed: %+v", resp)
	}
	streamID, _ := strconv.ParseUint(streamIDStr, 10, 64)
	if _, ok := sess.registered[ids.StreamId(streamID)]; ok {
		t.Fatal("expected stream to be unregistered from session")
	}
	if _, ok := sources.Get("cam1"); !ok {
		t.Fatal("source should remain open after stream close")
	}
}

func TestDataVerbNeverProducesResponse(t *testing.T) {
	r, _, _, caller := newTestBroker()

	call(r, caller, "Source.open", "cam1", "server", "raw")

	msg := message.New(2)
	msg.SetComponent(0, "Data")
	msg.SetComponent(1, "cam1")
	msg.Payload = []byte("hello")
	msg.IsBoundary = true
	if resp := r.Dispatch(caller, msg); resp != nil {
		t.Fatalf("Data verb must never produce a response, got %+v", resp)
	}
}
