package gateway

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chatrelay/internal/auth"
	"chatrelay/internal/config"
	"chatrelay/internal/registry"
	"chatrelay/internal/relay"
	"chatrelay/internal/store"
	"chatrelay/pkg/protocol"
)

const testWait = 3 * time.Second

func startGateway(t *testing.T) (*Gateway, string, *registry.Registry) {
	t.Helper()

	credStore := store.NewFileStore(filepath.Join(t.TempDir(), "users.txt"))
	authenticator, err := auth.New(credStore, zap.NewNop())
	require.NoError(t, err)

	reg := registry.New()
	router := relay.NewRouter(reg, zap.NewNop())
	cfg := &config.GatewayConfig{
		Host:         "127.0.0.1",
		Port:         0,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	g := New(cfg, authenticator, reg, router, zap.NewNop())

	ts := httptest.NewServer(g.server.Handler)
	t.Cleanup(func() {
		g.cancel()
		ts.Close()
		g.wg.Wait()
	})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	return g, wsURL, reg
}

// wsPeer is one WebSocket client with a background event pump.
type wsPeer struct {
	t      *testing.T
	conn   *websocket.Conn
	events chan protocol.Event
	closed chan struct{}
}

func dialWS(t *testing.T, wsURL string) *wsPeer {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL+"/ws", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	p := &wsPeer{
		t:      t,
		conn:   conn,
		events: make(chan protocol.Event, 64),
		closed: make(chan struct{}),
	}
	go func() {
		defer close(p.closed)
		for {
			var event protocol.Event
			if err := conn.ReadJSON(&event); err != nil {
				return
			}
			p.events <- event
		}
	}()

	t.Cleanup(func() { _ = conn.Close() })
	return p
}

func (p *wsPeer) send(cmd protocol.Command) {
	p.t.Helper()
	require.NoError(p.t, p.conn.WriteJSON(cmd))
}

func (p *wsPeer) waitFor(pred func(protocol.Event) bool) protocol.Event {
	p.t.Helper()
	deadline := time.After(testWait)
	for {
		select {
		case event := <-p.events:
			if pred(event) {
				return event
			}
		case <-deadline:
			p.t.Fatal("timed out waiting for matching event")
			return protocol.Event{}
		}
	}
}

func (p *wsPeer) waitClosed() {
	p.t.Helper()
	select {
	case <-p.closed:
	case <-time.After(testWait):
		p.t.Fatal("websocket did not close")
	}
}

func TestGateway_Healthz(t *testing.T) {
	_, wsURL, _ := startGateway(t)
	httpURL := "http" + strings.TrimPrefix(wsURL, "ws")

	resp, err := http.Get(httpURL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestGateway_LoginOverWebSocket(t *testing.T) {
	_, wsURL, reg := startGateway(t)

	alice := dialWS(t, wsURL)
	alice.send(protocol.Command{Command: protocol.CommandLogin, Username: "alice", Password: "pw"})

	alice.waitFor(func(e protocol.Event) bool {
		return e.Type == protocol.EventStatus && e.Message == "New user registered successfully."
	})
	alice.waitFor(func(e protocol.Event) bool {
		return e.Type == protocol.EventUserList && len(e.Users) == 1 && e.Users[0] == "alice"
	})

	_, ok := reg.Get("alice")
	assert.True(t, ok)
}

func TestGateway_PeersShareTheRelay(t *testing.T) {
	_, wsURL, _ := startGateway(t)

	alice := dialWS(t, wsURL)
	alice.send(protocol.Command{Command: protocol.CommandLogin, Username: "alice", Password: "pw"})
	alice.waitFor(func(e protocol.Event) bool { return e.Type == protocol.EventUserList })

	bob := dialWS(t, wsURL)
	bob.send(protocol.Command{Command: protocol.CommandLogin, Username: "bob", Password: "pw"})
	bob.waitFor(func(e protocol.Event) bool {
		return e.Type == protocol.EventUserList && len(e.Users) == 2
	})

	alice.send(protocol.Command{Command: protocol.CommandPublic, Message: "hello from ws"})
	assert.Equal(t, protocol.BroadcastEvent("alice", "hello from ws"),
		bob.waitFor(func(e protocol.Event) bool { return e.Type == protocol.EventBroadcast }))

	bob.send(protocol.Command{Command: protocol.CommandDirect, To: "alice", Message: "just you"})
	assert.Equal(t, protocol.DirectEvent("bob", "just you"),
		alice.waitFor(func(e protocol.Event) bool { return e.Type == protocol.EventDirect }))
}

func TestGateway_NonJSONFrameTerminatesSession(t *testing.T) {
	_, wsURL, reg := startGateway(t)

	alice := dialWS(t, wsURL)
	alice.send(protocol.Command{Command: protocol.CommandLogin, Username: "alice", Password: "pw"})
	alice.waitFor(func(e protocol.Event) bool { return e.Type == protocol.EventUserList })

	require.NoError(t, alice.conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	alice.waitClosed()

	require.Eventually(t, func() bool {
		_, ok := reg.Get("alice")
		return !ok
	}, testWait, 10*time.Millisecond)
}

func TestGateway_ExitClosesConnection(t *testing.T) {
	_, wsURL, _ := startGateway(t)

	alice := dialWS(t, wsURL)
	alice.send(protocol.Command{Command: protocol.CommandLogin, Username: "alice", Password: "pw"})
	alice.waitFor(func(e protocol.Event) bool { return e.Type == protocol.EventUserList })

	alice.send(protocol.Command{Command: protocol.CommandExit})
	alice.waitFor(func(e protocol.Event) bool {
		return e.Type == protocol.EventStatus && e.Message == "Exiting chat..."
	})
	alice.waitClosed()
}
