package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"chatrelay/internal/auth"
	"chatrelay/internal/registry"
	"chatrelay/internal/transport"
	"chatrelay/pkg/protocol"
)

// Server accepts TCP connections and runs one session goroutine per
// connection. The accept loop uses a bounded deadline so it can
// observe the one-shot shutdown signal between accepts.
type Server struct {
	addr          string
	acceptTimeout time.Duration
	writeBuffer   int

	auth     *auth.Authenticator
	registry *registry.Registry
	router   *Router
	log      *zap.Logger

	shutdown  chan struct{}
	ready     chan struct{}
	boundAddr string
	stopOnce  sync.Once
	wg        sync.WaitGroup

	connsMu sync.Mutex
	conns   map[string]*transport.Channel
}

// NewServer creates a relay server. acceptTimeout bounds how long the
// accept loop blocks before re-checking for shutdown.
func NewServer(addr string, acceptTimeout time.Duration, writeBuffer int, authenticator *auth.Authenticator, reg *registry.Registry, router *Router, log *zap.Logger) *Server {
	if acceptTimeout <= 0 {
		acceptTimeout = time.Second
	}
	return &Server{
		addr:          addr,
		acceptTimeout: acceptTimeout,
		writeBuffer:   writeBuffer,
		auth:          authenticator,
		registry:      reg,
		router:        router,
		log:           log,
		shutdown:      make(chan struct{}),
		ready:         make(chan struct{}),
		conns:         make(map[string]*transport.Channel),
	}
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listen address. Valid after Ready.
func (s *Server) Addr() string {
	return s.boundAddr
}

// ListenAndServe accepts connections until Shutdown is called or ctx
// is cancelled, then closes every active connection and waits for all
// session goroutines to unwind through their finalizers.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	tcpLn := ln.(*net.TCPListener)
	defer tcpLn.Close()

	s.boundAddr = tcpLn.Addr().String()
	close(s.ready)
	s.log.Info("relay listening", zap.String("addr", s.boundAddr))

	for {
		select {
		case <-s.shutdown:
			return s.drain()
		case <-ctx.Done():
			s.Shutdown()
			return s.drain()
		default:
		}

		if err := tcpLn.SetDeadline(time.Now().Add(s.acceptTimeout)); err != nil {
			return fmt.Errorf("set accept deadline: %w", err)
		}

		conn, err := tcpLn.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return s.drain()
			}
			s.log.Error("accept failed", zap.Error(err))
			continue
		}

		s.log.Info("new connection", zap.String("remote", conn.RemoteAddr().String()))

		channel := transport.NewChannel(conn, s.writeBuffer, s.log)
		session := NewSession(channel, s.auth, s.registry, s.router, s.log)
		s.track(channel)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(channel)
			session.Run(ctx)
		}()
	}
}

// Shutdown raises the one-shot shutdown signal. Connected clients are
// told first; the accept loop then stops and tears the rest down.
func (s *Server) Shutdown() {
	s.stopOnce.Do(func() {
		s.log.Info("shutting down relay")
		s.router.Broadcast(protocol.StatusEvent("Server is shutting down..."), "")
		close(s.shutdown)
	})
}

// drain closes every live connection and waits for the session
// workers. The tracked set covers sessions still in the login phase,
// which never reach the registry; registered sinks from other
// listeners sharing the registry are closed too.
func (s *Server) drain() error {
	s.connsMu.Lock()
	channels := make([]*transport.Channel, 0, len(s.conns))
	for _, channel := range s.conns {
		channels = append(channels, channel)
	}
	s.connsMu.Unlock()

	// Close in parallel: a graceful close flushes queued frames and may
	// wait out a stalled peer's write deadline.
	var closers sync.WaitGroup
	for _, channel := range channels {
		channel := channel
		closers.Add(1)
		go func() {
			defer closers.Done()
			_ = channel.Close()
		}()
	}
	for _, entry := range s.registry.Snapshot() {
		entry := entry
		closers.Add(1)
		go func() {
			defer closers.Done()
			_ = entry.Sink.Close()
		}()
	}
	closers.Wait()
	s.wg.Wait()
	s.log.Info("closed all connections")
	return nil
}

func (s *Server) track(channel *transport.Channel) {
	s.connsMu.Lock()
	s.conns[channel.ID()] = channel
	s.connsMu.Unlock()
}

func (s *Server) untrack(channel *transport.Channel) {
	s.connsMu.Lock()
	delete(s.conns, channel.ID())
	s.connsMu.Unlock()
}
