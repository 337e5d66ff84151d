package transport

import (
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chatrelay/pkg/protocol"
)

func newTestChannel(t *testing.T) (*Channel, net.Conn) {
	t.Helper()
	local, remote := net.Pipe()
	ch := NewChannel(local, 16, zap.NewNop())
	t.Cleanup(func() {
		_ = ch.Close()
		_ = remote.Close()
	})
	return ch, remote
}

func TestChannel_SendEncodesOneFrame(t *testing.T) {
	ch, remote := newTestChannel(t)

	require.NoError(t, ch.Send(protocol.StatusEvent("hello")))

	buf := make([]byte, 1024)
	require.NoError(t, remote.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err := remote.Read(buf)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"status","message":"hello"}`, string(buf[:n]))
}

func TestChannel_ReceiveReassemblesChunks(t *testing.T) {
	ch, remote := newTestChannel(t)

	payload := []byte(`{"command":"pm","message":"hello"}`)
	go func() {
		for _, b := range payload {
			if _, err := remote.Write([]byte{b}); err != nil {
				return
			}
		}
	}()

	var cmd protocol.Command
	require.NoError(t, ch.Receive(&cmd))
	assert.Equal(t, protocol.CommandPublic, cmd.Command)
	assert.Equal(t, "hello", cmd.Message)
}

func TestChannel_ReceiveSplitsConcatenatedMessages(t *testing.T) {
	ch, remote := newTestChannel(t)

	go func() {
		_, _ = remote.Write([]byte(`{"command":"pm","message":"one"}{"command":"pm","message":"two"}`))
	}()

	var first, second protocol.Command
	require.NoError(t, ch.Receive(&first))
	require.NoError(t, ch.Receive(&second))
	assert.Equal(t, "one", first.Message)
	assert.Equal(t, "two", second.Message)
}

func TestChannel_ReceiveReportsEOFOnPeerClose(t *testing.T) {
	ch, remote := newTestChannel(t)

	go func() {
		_ = remote.Close()
	}()

	var cmd protocol.Command
	err := ch.Receive(&cmd)
	assert.ErrorIs(t, err, io.EOF)
}

func TestChannel_ReceiveFailsOnMalformedInput(t *testing.T) {
	ch, remote := newTestChannel(t)

	go func() {
		_, _ = remote.Write([]byte(`}not json{`))
	}()

	var cmd protocol.Command
	err := ch.Receive(&cmd)
	assert.ErrorIs(t, err, ErrMalformed)

	// The channel is poisoned; sends fail from now on.
	assert.Error(t, ch.Send(protocol.StatusEvent("late")))
}

func TestChannel_ConcurrentSendsDoNotInterleave(t *testing.T) {
	local, remote := net.Pipe()
	ch := NewChannel(local, 64, zap.NewNop())
	defer ch.Close()

	reader := NewChannel(remote, 1, zap.NewNop())
	defer reader.Close()

	const senders = 8
	const perSender = 10

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				event := protocol.BroadcastEvent(
					fmt.Sprintf("sender-%d", id),
					fmt.Sprintf("message-%d", j))
				if err := ch.Send(event); err != nil {
					t.Errorf("send failed: %v", err)
					return
				}
			}
		}(i)
	}

	// Every frame decodes cleanly only if concurrent writes never
	// interleaved on the wire.
	received := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for received < senders*perSender {
			var event protocol.Event
			if err := reader.Receive(&event); err != nil {
				t.Errorf("receive failed after %d messages: %v", received, err)
				return
			}
			if event.Type != protocol.EventBroadcast {
				t.Errorf("unexpected event type %q", event.Type)
				return
			}
			received++
		}
	}()

	wg.Wait()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out, received %d messages", received)
	}
	assert.Equal(t, senders*perSender, received)
}

func TestChannel_CloseDeliversQueuedFrames(t *testing.T) {
	// A frame queued right before Close must still reach the peer: the
	// writer flushes its backlog before the conn drops. This is the
	// exit path, where the closing status is sent and the channel is
	// closed on the very next step.
	for i := 0; i < 25; i++ {
		local, remote := net.Pipe()
		writer := NewChannel(local, 8, zap.NewNop())
		reader := NewChannel(remote, 8, zap.NewNop())

		got := make(chan protocol.Event, 1)
		readErr := make(chan error, 1)
		go func() {
			var event protocol.Event
			if err := reader.Receive(&event); err != nil {
				readErr <- err
				return
			}
			got <- event
		}()

		require.NoError(t, writer.Send(protocol.StatusEvent("Exiting chat...")))
		require.NoError(t, writer.Close())

		select {
		case event := <-got:
			assert.Equal(t, "Exiting chat...", event.Message)
		case err := <-readErr:
			t.Fatalf("iteration %d: frame dropped: %v", i, err)
		case <-time.After(2 * time.Second):
			t.Fatalf("iteration %d: timed out waiting for the frame", i)
		}

		_ = reader.Close()
	}
}

func TestChannel_CloseIsIdempotent(t *testing.T) {
	ch, _ := newTestChannel(t)

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	assert.ErrorIs(t, ch.Send(protocol.StatusEvent("x")), ErrChannelClosed)
}
