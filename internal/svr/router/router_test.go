package router

import (
	"log/slog"
	"os"
	"testing"

	"github.com/alxayo/svr/internal/svr/ids"
	"github.com/alxayo/svr/internal/svr/message"
	"github.com/alxayo/svr/internal/svrerr"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestDispatchUnknownVerb(t *testing.T) {
	r := New(message.NewCorrelator(), testLogger())
	m := message.New(1)
	m.SetComponent(0, "Nonexistent.verb")
	resp := r.Dispatch(ids.NewClientId(), m)
	if resp == nil || resp.Component(0) != "1" { // ParseError == 1
		t.Fatalf("expected ParseError response, got %+v", resp)
	}
}

func TestDispatchRegisteredVerb(t *testing.T) {
	r := New(message.NewCorrelator(), testLogger())
	r.Register("Source.open", func(caller ids.ClientId, msg *message.Message) *message.Message {
		return message.NewResponse(msg, int32(svrerr.CodeSuccess), "ok")
	})
	m := message.New(1)
	m.SetComponent(0, "Source.open")
	resp := r.Dispatch(ids.NewClientId(), m)
	if resp == nil || resp.Component(0) != "0" || resp.Component(1) != "ok" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestDataVerbNeverRespondsEvenWhenRegistered(t *testing.T) {
	r := New(message.NewCorrelator(), testLogger())
	called := false
	r.Register(DataVerb, func(caller ids.ClientId, msg *message.Message) *message.Message {
		called = true
		return message.NewResponse(msg, int32(svrerr.CodeSuccess))
	})
	m := message.New(1)
	m.SetComponent(0, DataVerb)
	resp := r.Dispatch(ids.NewClientId(), m)
	if resp != nil {
		t.Fatalf("Data verb must never elicit a response, got %+v", resp)
	}
	if !called {
		t.Fatalf("handler should still run")
	}
}

func TestDispatchResponseResolvesCorrelator(t *testing.T) {
	correlator := message.NewCorrelator()
	r := New(correlator, testLogger())
	id := correlator.NextRequestID()
	ch := correlator.Register(id)

	resp := message.NewResponse(&message.Message{RequestID: id}, int32(svrerr.CodeSuccess))
	if got := r.Dispatch(ids.NewClientId(), resp); got != nil {
		t.Fatalf("Dispatch of a response should return nil")
	}
	select {
	case got := <-ch:
		if got.RequestID != id {
			t.Fatalf("correlator delivered wrong response")
		}
	default:
		t.Fatalf("correlator did not resolve pending waiter")
	}
}
