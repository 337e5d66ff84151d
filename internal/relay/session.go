package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"chatrelay/internal/auth"
	"chatrelay/internal/registry"
	"chatrelay/pkg/protocol"
)

// Conn is what a session needs from its connection: framed receive,
// serialized send, and teardown. Both the TCP channel and the
// WebSocket gateway connection satisfy it.
type Conn interface {
	Receive(v any) error
	Send(v any) error
	Close() error
	ID() string
	RemoteAddr() string
}

// State is the connection session state.
type State int

const (
	StateConnecting State = iota
	StateAuthenticating
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session drives one connection through authentication and the
// message loop. It is the unit of concurrency: one session goroutine
// per connection, blocked in Receive most of its life. The session
// exclusively owns the connection; the registry only holds the write
// side for routing.
type Session struct {
	conn     Conn
	auth     *auth.Authenticator
	registry *registry.Registry
	router   *Router
	log      *zap.Logger

	state      State
	username   string
	registered bool
}

// NewSession creates a session for one accepted connection.
func NewSession(conn Conn, authenticator *auth.Authenticator, reg *registry.Registry, router *Router, log *zap.Logger) *Session {
	return &Session{
		conn:     conn,
		auth:     authenticator,
		registry: reg,
		router:   router,
		log: log.With(
			zap.String("conn_id", conn.ID()),
			zap.String("remote", conn.RemoteAddr()),
		),
	}
}

// Run processes the connection until it closes. Every exit path,
// whether a graceful exit, a peer disconnect, malformed input, or an
// I/O fault, funnels through the deferred finalizer, so cleanup runs
// exactly once.
func (s *Session) Run(ctx context.Context) {
	defer s.finalize()

	if err := s.authenticate(ctx); err != nil {
		if !errors.Is(err, io.EOF) {
			s.log.Debug("session ended before authentication", zap.Error(err))
		}
		return
	}

	s.state = StateAuthenticated
	s.loop()
}

// authenticate is the login phase: commands are read until a valid
// login succeeds or the connection dies. A wrong password terminates
// the connection with no retry; a structurally invalid login is
// equally fatal.
func (s *Session) authenticate(ctx context.Context) error {
	s.state = StateConnecting

	for {
		var cmd protocol.Command
		if err := s.conn.Receive(&cmd); err != nil {
			return err
		}

		if cmd.Command != protocol.CommandLogin {
			s.send(protocol.ErrorEvent("Log in first."))
			continue
		}

		s.state = StateAuthenticating
		if err := cmd.Validate(); err != nil {
			return fmt.Errorf("invalid login command: %w", err)
		}

		outcome, err := s.auth.Authenticate(ctx, cmd.Username, cmd.Password)
		if err != nil {
			s.send(protocol.ErrorEvent("Registration failed."))
			return err
		}
		if outcome == auth.Rejected {
			s.send(protocol.ErrorEvent("Invalid password."))
			return ErrAuthRejected
		}

		username := strings.TrimSpace(cmd.Username)
		if !s.registry.PutIfAbsent(username, s.conn) {
			s.send(protocol.ErrorEvent(fmt.Sprintf("User %s is already logged in.", username)))
			return ErrAlreadyLoggedIn
		}
		s.username = username
		s.registered = true

		switch outcome {
		case auth.Registered:
			s.send(protocol.StatusEvent("New user registered successfully."))
		case auth.Accepted:
			s.send(protocol.StatusEvent("Login successful."))
		}

		s.log.Info("user connected",
			zap.String("user", username),
			zap.String("outcome", outcome.String()))
		s.router.AnnounceJoin(username)
		return nil
	}
}

// loop is the messaging phase. A malformed payload (structural decode
// failure or a missing required field) is fatal to the connection; an
// unknown command only earns an error event.
func (s *Session) loop() {
	for {
		var cmd protocol.Command
		if err := s.conn.Receive(&cmd); err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug("receive failed", zap.Error(err))
			}
			return
		}

		if cmd.Command == protocol.CommandLogin {
			s.send(protocol.ErrorEvent("Already logged in."))
			continue
		}

		if err := cmd.Validate(); err != nil {
			s.log.Warn("malformed command",
				zap.String("command", cmd.Command),
				zap.Error(err))
			return
		}

		if s.router.Route(s.username, cmd, s.conn) {
			return
		}
	}
}

// finalize tears the session down: deregister, announce the departure,
// release the connection. Only sessions that actually registered touch
// the registry, so a rejected duplicate login never evicts the live
// session for that name.
func (s *Session) finalize() {
	s.state = StateClosed
	_ = s.conn.Close()

	if s.registered {
		s.registry.Remove(s.username)
		s.router.AnnounceLeave(s.username)
		s.log.Info("user disconnected", zap.String("user", s.username))
	}
}

// send writes one event to this session's own peer, swallowing the
// error; a dead connection surfaces in the receive loop.
func (s *Session) send(event protocol.Event) {
	if err := s.conn.Send(event); err != nil {
		s.log.Debug("send failed",
			zap.String("event", event.Type),
			zap.Error(err))
	}
}
