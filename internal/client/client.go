// Package client implements the terminal chat client: connection and
// login handling plus the event pump feeding the UI.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"go.uber.org/zap"

	"chatrelay/internal/transport"
	"chatrelay/pkg/protocol"
)

// Client is one connection to the relay. It reuses the same framed
// channel as the server side, so partial and concatenated messages on
// the wire are handled identically in both directions.
type Client struct {
	channel  *transport.Channel
	username string
	events   chan protocol.Event
}

// Dial connects to the relay at addr.
func Dial(addr string, log *zap.Logger) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	return &Client{
		channel: transport.NewChannel(conn, 64, log),
		events:  make(chan protocol.Event, 64),
	}, nil
}

// Login authenticates or registers and returns the server's greeting
// status. An error event from the server (wrong password, duplicate
// login) closes the connection and is returned as an error.
func (c *Client) Login(ctx context.Context, username, password string) (protocol.Event, error) {
	cmd := protocol.Command{
		Command:  protocol.CommandLogin,
		Username: username,
		Password: password,
	}
	if err := c.channel.Send(cmd); err != nil {
		return protocol.Event{}, fmt.Errorf("send login: %w", err)
	}

	var event protocol.Event
	if err := c.channel.Receive(&event); err != nil {
		return protocol.Event{}, fmt.Errorf("read login response: %w", err)
	}
	if event.Type == protocol.EventError {
		_ = c.channel.Close()
		return event, fmt.Errorf("login refused: %s", event.Message)
	}

	c.username = username
	return event, nil
}

// Username returns the name used at login.
func (c *Client) Username() string {
	return c.username
}

// Events starts the receive loop and returns the channel of incoming
// server events. The channel closes when the connection ends.
func (c *Client) Events() <-chan protocol.Event {
	go func() {
		defer close(c.events)
		for {
			var event protocol.Event
			if err := c.channel.Receive(&event); err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, transport.ErrChannelClosed) {
					c.events <- protocol.ErrorEvent(fmt.Sprintf("connection lost: %v", err))
				}
				return
			}
			c.events <- event
		}
	}()
	return c.events
}

// SendPublic broadcasts a message to everyone.
func (c *Client) SendPublic(message string) error {
	return c.channel.Send(protocol.Command{
		Command: protocol.CommandPublic,
		Message: message,
	})
}

// SendDirect sends a private message to one user.
func (c *Client) SendDirect(to, message string) error {
	return c.channel.Send(protocol.Command{
		Command: protocol.CommandDirect,
		To:      to,
		Message: message,
	})
}

// Exit asks the server for a graceful disconnect.
func (c *Client) Exit() error {
	return c.channel.Send(protocol.Command{Command: protocol.CommandExit})
}

// Close tears the connection down.
func (c *Client) Close() error {
	return c.channel.Close()
}
