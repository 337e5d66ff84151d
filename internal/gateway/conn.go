package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chatrelay/pkg/protocol"
)

// wsConn adapts a WebSocket connection to the relay's connection
// contract. Each text frame carries exactly one JSON message, so the
// WebSocket framing replaces the stream codec; everything above the
// framing layer is shared with TCP clients.
type wsConn struct {
	id           string
	ws           *websocket.Conn
	log          *zap.Logger
	writeCh      chan []byte
	writeTimeout time.Duration

	ctx        context.Context
	cancel     context.CancelFunc
	closeOnce  sync.Once
	writerDone chan struct{}
}

func newWSConn(ws *websocket.Conn, bufferSize int, writeTimeout time.Duration, log *zap.Logger) *wsConn {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &wsConn{
		id:           uuid.New().String(),
		ws:           ws,
		log:          log,
		writeCh:      make(chan []byte, bufferSize),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
		writerDone:   make(chan struct{}),
	}

	go c.writeLoop()

	return c
}

func (c *wsConn) ID() string {
	return c.id
}

func (c *wsConn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// writeLoop is the single writer, mirroring the TCP channel's write
// discipline: every frame leaves through here, and frames queued
// before a graceful close are flushed before the socket drops.
func (c *wsConn) writeLoop() {
	defer close(c.writerDone)
	for {
		select {
		case data := <-c.writeCh:
			if err := c.writeFrame(data); err != nil {
				c.teardown(false)
				return
			}
		case <-c.ctx.Done():
			c.flush()
			return
		}
	}
}

// flush drains whatever is queued at shutdown, stopping at the first
// write error.
func (c *wsConn) flush() {
	for {
		select {
		case data := <-c.writeCh:
			if c.writeFrame(data) != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *wsConn) writeFrame(data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Send encodes v and queues it for the writer goroutine.
func (c *wsConn) Send(v any) error {
	select {
	case <-c.ctx.Done():
		return ErrGatewayConnClosed
	default:
	}

	data, err := protocol.Encode(v)
	if err != nil {
		return fmt.Errorf("encode outbound message: %w", err)
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(c.writeTimeout):
		return ErrGatewayWriteTimeout
	case <-c.ctx.Done():
		return ErrGatewayConnClosed
	}
}

// Receive blocks for the next text frame and decodes it into v. An
// orderly close is reported as io.EOF so the session's teardown path
// matches the TCP channel's.
func (c *wsConn) Receive(v any) error {
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			c.teardown(false)
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return io.EOF
			}
			return fmt.Errorf("read frame: %w", err)
		}
		if msgType != websocket.TextMessage {
			continue
		}

		if err := json.Unmarshal(data, v); err != nil {
			c.teardown(false)
			return fmt.Errorf("%w: %v", ErrGatewayMalformed, err)
		}
		return nil
	}
}

// teardown closes the socket. A graceful close waits for the writer to
// flush queued frames first; a fault closes immediately.
func (c *wsConn) teardown(graceful bool) {
	c.closeOnce.Do(func() {
		c.cancel()
		if graceful {
			select {
			case <-c.writerDone:
			case <-time.After(c.writeTimeout):
			}
		}
		_ = c.ws.Close()
	})
}

// Close releases the connection. Idempotent.
func (c *wsConn) Close() error {
	c.teardown(true)
	return nil
}
