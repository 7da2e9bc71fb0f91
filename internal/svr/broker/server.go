package broker

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/alxayo/svr/internal/svr/ids"
	"github.com/alxayo/svr/internal/svr/message"
	"github.com/alxayo/svr/internal/svr/router"
	"github.com/alxayo/svr/internal/svr/session"
	"github.com/alxayo/svr/internal/svr/source"
	"github.com/alxayo/svr/internal/svr/workerpool"
)

// Config holds the listener and concurrency knobs for Server (spec §5's
// scheduling model: one I/O goroutine per client plus a bounded worker
// pool for handler execution).
type Config struct {
	ListenAddr     string
	WorkerPoolSize int
	OutboxCapacity int
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":9575"
	}
	if c.WorkerPoolSize <= 0 {
		c.WorkerPoolSize = 16
	}
	if c.OutboxCapacity <= 0 {
		c.OutboxCapacity = 256
	}
}

// Server is the broker's network entry point: it accepts connections,
// wraps each as a Session, and drives the process-wide Router, source
// Registry, and Broker handler wiring (spec §9's process-wide
// singletons).
type Server struct {
	cfg     Config
	logger  *slog.Logger
	l       net.Listener
	router  *router.Router
	sources *source.Registry
	broker  *Broker
	pool    *workerpool.Pool

	mu          sync.RWMutex
	sessions    map[ids.ClientId]*session.Session
	closing     bool
	acceptingWg sync.WaitGroup
}

// New constructs an unstarted Server.
func New(cfg Config, logger *slog.Logger) *Server {
	cfg.applyDefaults()
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		sources:  source.NewRegistry(logger),
		pool:     workerpool.New(cfg.WorkerPoolSize, logger),
		sessions: make(map[ids.ClientId]*session.Session),
	}
	s.router = router.New(message.NewCorrelator(), logger)
	s.broker = NewBroker(s.router, s.sources, s.lookupSession, logger)
	return s
}

func (s *Server) lookupSession(c ids.ClientId) (SessionRegistry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[c]
	return sess, ok
}

// Sources exposes the source registry, e.g. for the stats reporter (C11)
// and the source file loader (C10).
func (s *Server) Sources() *source.Registry { return s.sources }

// Start begins listening and launches the accept loop.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.l != nil {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	s.l = ln
	s.mu.Unlock()

	s.logger.Info("svr broker listening", "addr", ln.Addr().String())
	s.acceptingWg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.acceptingWg.Done()
	for {
		s.mu.RLock()
		l := s.l
		closing := s.closing
		s.mu.RUnlock()
		if l == nil || closing {
			return
		}
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept error", "error", err)
			continue
		}
		sess := session.NewWithOutboxCapacity(conn, s.router, s.sources, s.pool, s.cfg.OutboxCapacity, s.logger)
		s.mu.Lock()
		s.sessions[sess.ID()] = sess
		s.mu.Unlock()
		s.logger.Info("client connected", "client_id", string(sess.ID()), "remote", conn.RemoteAddr().String())

		go func() {
			sess.Run()
			s.mu.Lock()
			delete(s.sessions, sess.ID())
			s.mu.Unlock()
		}()
	}
}

// Stop stops accepting new connections, closes every live session, and
// waits for the accept loop and worker pool to drain (spec §9's
// shutdown() ordered after all client sessions close).
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.l == nil {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	l := s.l
	s.l = nil
	sessions := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	l.Close()
	for _, sess := range sessions {
		sess.Close()
	}
	s.acceptingWg.Wait()
	s.pool.Wait()
	s.logger.Info("svr broker stopped")
	return nil
}

// Addr returns the bound listener address, or nil if not started.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.l == nil {
		return nil
	}
	return s.l.Addr()
}

// SessionCount reports the number of currently connected clients.
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
