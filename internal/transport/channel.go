// Package transport frames application messages over a raw byte-stream
// connection. The stream carries no length prefixes or delimiters; one
// message is decoded at a time from a pending-bytes buffer using the
// self-delimiting protocol codec.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatrelay/pkg/protocol"
)

const (
	readChunkSize = 4096
	writeTimeout  = 5 * time.Second
)

// Channel wraps a net.Conn as a framed message stream. Receives are
// driven by a single reader (the connection's session goroutine);
// sends may come from any goroutine and are serialized through one
// writer goroutine so concurrent writes never interleave on the wire.
type Channel struct {
	id      string
	conn    net.Conn
	log     *zap.Logger
	writeCh chan []byte
	pending []byte

	ctx        context.Context
	cancel     context.CancelFunc
	closeOnce  sync.Once
	writerDone chan struct{}
}

// NewChannel wraps conn and starts the writer goroutine. bufferSize is
// the number of encoded outbound messages that may queue before Send
// blocks.
func NewChannel(conn net.Conn, bufferSize int, log *zap.Logger) *Channel {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		id:         uuid.New().String(),
		conn:       conn,
		log:        log,
		writeCh:    make(chan []byte, bufferSize),
		ctx:        ctx,
		cancel:     cancel,
		writerDone: make(chan struct{}),
	}

	go c.writeLoop()

	return c
}

// ID returns the channel's connection identifier.
func (c *Channel) ID() string {
	return c.id
}

// RemoteAddr returns the peer address.
func (c *Channel) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// writeLoop is the single writer. Every encoded frame leaves through
// here, which is what makes Send atomic per channel. On shutdown it
// flushes frames already queued before exiting, so a status sent just
// before Close still reaches the peer.
func (c *Channel) writeLoop() {
	defer close(c.writerDone)
	for {
		select {
		case data := <-c.writeCh:
			if err := c.writeFrame(data); err != nil {
				c.teardown(err)
				return
			}
		case <-c.ctx.Done():
			c.flush()
			return
		}
	}
}

// flush drains whatever is queued at shutdown. Each frame keeps its
// write deadline, so a stuck peer cannot hold teardown open; a write
// error means the conn is gone and the rest is dropped.
func (c *Channel) flush() {
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

func (c *Channel) writeFrame(data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	_, err := c.conn.Write(data)
	return err
}

// Send encodes v and queues it for the writer goroutine.
func (c *Channel) Send(v any) error {
	select {
	case <-c.ctx.Done():
		return ErrChannelClosed
	default:
	}

	data, err := protocol.Encode(v)
	if err != nil {
		return fmt.Errorf("encode outbound message: %w", err)
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrChannelClosed
	}
}

// Receive blocks until one complete message has been decoded into v.
// A partial read is retained in the pending buffer and retried once
// more bytes arrive; bytes are never skipped. An orderly peer shutdown
// is reported as io.EOF, distinct from a truncated message. Structural
// decode failures return ErrMalformed and poison the channel.
func (c *Channel) Receive(v any) error {
	for {
		if len(c.pending) > 0 {
			consumed, status, err := protocol.DecodeNext(c.pending, v)
			switch status {
			case protocol.DecodeComplete:
				c.pending = c.pending[consumed:]
				return nil
			case protocol.DecodeMalformed:
				c.teardown(err)
				return fmt.Errorf("%w: %v", ErrMalformed, err)
			}
			// DecodeIncomplete: fall through and read more.
		}

		buf := make([]byte, readChunkSize)
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.pending = append(c.pending, buf[:n]...)
			continue
		}
		if err != nil {
			c.teardown(err)
			if errors.Is(err, io.EOF) {
				return io.EOF
			}
			return fmt.Errorf("read from %s: %w", c.RemoteAddr(), err)
		}
	}
}

// teardown closes both directions. A graceful close (nil cause) waits
// for the writer to flush queued frames before releasing the conn; a
// fault closes immediately, since the conn is already unusable.
func (c *Channel) teardown(cause error) {
	c.closeOnce.Do(func() {
		if cause != nil && !errors.Is(cause, io.EOF) && !errors.Is(cause, net.ErrClosed) {
			c.log.Debug("channel fault",
				zap.String("conn_id", c.id),
				zap.Error(cause))
		}
		c.cancel()
		if cause == nil {
			select {
			case <-c.writerDone:
			case <-time.After(writeTimeout):
			}
		}
		_ = c.conn.Close()
	})
}

// Close releases the connection. Safe to call more than once and
// concurrently with Send and Receive.
func (c *Channel) Close() error {
	c.teardown(nil)
	return nil
}
