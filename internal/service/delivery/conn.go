package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultWriteWait = 10 * time.Second

// WSConn serializes writes to a gorilla websocket connection. All writers on
// the socket, including ping loops, must go through it.
type WSConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWSConn(conn *websocket.Conn) *WSConn {
	return &WSConn{conn: conn}
}

func (c *WSConn) Send(ctx context.Context, env Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(defaultWriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	if err := c.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}
	return nil
}

// Ping writes a ping control frame.
func (c *WSConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(defaultWriteWait))
}

// SSEConn queues envelopes for an SSE response loop. The loop owning the
// ResponseWriter drains Events and calls Write.
type SSEConn struct {
	events chan Envelope
	done   chan struct{}
	once   sync.Once
}

func NewSSEConn(buffer int) *SSEConn {
	if buffer <= 0 {
		buffer = 8
	}
	return &SSEConn{events: make(chan Envelope, buffer), done: make(chan struct{})}
}

func (c *SSEConn) Send(ctx context.Context, env Envelope) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.events <- env:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events yields queued envelopes.
func (c *SSEConn) Events() <-chan Envelope {
	return c.events
}

// Close stops further sends.
func (c *SSEConn) Close() {
	c.once.Do(func() { close(c.done) })
}
