// Package gateway exposes the relay to WebSocket clients. Browser
// peers join the same roster and message space as TCP clients: the
// gateway only swaps the framing layer and runs the identical session
// state machine.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chatrelay/internal/auth"
	"chatrelay/internal/config"
	"chatrelay/internal/registry"
	"chatrelay/internal/relay"
)

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin: func(r *http.Request) bool {
		// The relay has no transport security anywhere; the gateway
		// does not pretend otherwise.
		return true
	},
}

// Gateway is the HTTP server hosting the /ws endpoint.
type Gateway struct {
	cfg      *config.GatewayConfig
	auth     *auth.Authenticator
	registry *registry.Registry
	router   *relay.Router
	log      *zap.Logger

	server *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a gateway sharing the relay's authenticator, registry,
// and router.
func New(cfg *config.GatewayConfig, authenticator *auth.Authenticator, reg *registry.Registry, router *relay.Router, log *zap.Logger) *Gateway {
	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		cfg:      cfg,
		auth:     authenticator,
		registry: reg,
		router:   router,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(g.requestLogging)
	r.Get("/healthz", g.handleHealth)
	r.Get("/ws", g.handleWS)

	g.server = &http.Server{
		Addr:        cfg.Addr(),
		Handler:     r,
		ReadTimeout: cfg.ReadTimeout,
	}

	return g
}

// Start serves until Shutdown.
func (g *Gateway) Start() error {
	g.log.Info("gateway listening", zap.String("addr", g.cfg.Addr()))
	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Shutdown stops accepting upgrades and waits for the WebSocket
// sessions to unwind.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.cancel()
	err := g.server.Shutdown(ctx)
	g.wg.Wait()
	return err
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleWS upgrades the request and hands the connection to a relay
// session. The session runs on the gateway's context, not the
// request's: the request context dies with the HTTP handler while the
// WebSocket lives on.
func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := newWSConn(ws, 64, g.cfg.WriteTimeout, g.log)
	session := relay.NewSession(conn, g.auth, g.registry, g.router, g.log)

	g.log.Info("new websocket connection", zap.String("remote", conn.RemoteAddr()))

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		session.Run(g.ctx)
	}()
}

func (g *Gateway) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.log.Debug("gateway request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr))
		next.ServeHTTP(w, r)
	})
}
