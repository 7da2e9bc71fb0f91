package session

import (
	"log/slog"
	"net"
	"os"
	"testing"
	"time"

	"github.com/alxayo/svr/internal/svr/ids"
	"github.com/alxayo/svr/internal/svr/message"
	"github.com/alxayo/svr/internal/svr/router"
	"github.com/alxayo/svr/internal/svr/source"
	"github.com/alxayo/svr/internal/svrerr"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestSessionRoundTripsRequestResponse(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	r := router.New(message.NewCorrelator(), testLogger())
	r.Register("Ping", func(caller ids.ClientId, msg *message.Message) *message.Message {
		return message.NewResponse(msg, int32(svrerr.CodeSuccess), "pong")
	})
	sources := source.NewRegistry(testLogger())
	sess := New(serverConn, r, sources, nil, testLogger())
	go sess.Run()
	defer sess.Close()

	req := message.New(1)
	req.SetComponent(0, "Ping")
	req.RequestID = 5
	if err := message.Write(clientConn, req); err != nil {
		t.Fatalf("Write request: %v", err)
	}

	clientConn.SetReadDeadline(time.Now().Add(time.Second))
	resp, err := message.NewReader(clientConn).ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if resp.RequestID != 5 {
		t.Fatalf("RequestID = %d, want 5", resp.RequestID)
	}
	if resp.Component(0) != "0" || resp.Component(1) != "pong" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}
