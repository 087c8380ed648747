package ipc

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"sync/atomic"

	"github.com/hedworth/mcpc/internal/errkind"
)

// NotificationHandler receives server-initiated events relayed by the bridge.
type NotificationHandler func(Notification)

// Client is one connection to a bridge daemon. It multiplexes concurrent
// requests over the single connection and dispatches notifications to an
// optional handler.
type Client struct {
	conn   net.Conn
	nextID atomic.Uint64

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uint64]chan *Message
	closed  bool
	readErr error

	onNotification NotificationHandler
}

// NewClient wraps an established connection and starts the read loop.
func NewClient(conn net.Conn, onNotification NotificationHandler) *Client {
	c := &Client{
		conn:           conn,
		pending:        make(map[uint64]chan *Message),
		onNotification: onNotification,
	}
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	for {
		msg, err := ReadMessage(c.conn)
		if err != nil {
			c.failAll(err)
			return
		}
		switch msg.Type {
		case TypeResponse:
			c.mu.Lock()
			ch, ok := c.pending[msg.ID]
			if ok {
				delete(c.pending, msg.ID)
			}
			c.mu.Unlock()
			if ok {
				ch <- msg
			}
		case TypeNotification:
			if c.onNotification != nil && msg.Notification != nil {
				c.onNotification(*msg.Notification)
			}
		}
	}
}

// failAll wakes every pending caller with a transport error after the read
// loop dies. Later Calls fail immediately.
func (c *Client) failAll(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.readErr = err
	for id, ch := range c.pending {
		delete(c.pending, id)
		close(ch)
	}
}

// Call sends a request and blocks until the matching response arrives, the
// connection dies, or ctx is done. Errors reported by the bridge are
// reconstructed with their original kind; connection failures are Transport.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	id := c.nextID.Add(1)
	msg, err := NewRequest(id, method, params)
	if err != nil {
		return errkind.Wrap(errkind.Client, err, "encode %s params", method)
	}

	ch := make(chan *Message, 1)
	c.mu.Lock()
	if c.closed {
		readErr := c.readErr
		c.mu.Unlock()
		return errkind.Wrap(errkind.Transport, readErr, "bridge connection closed")
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.send(msg); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return errkind.Wrap(errkind.Transport, err, "send %s", method)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			c.mu.Lock()
			readErr := c.readErr
			c.mu.Unlock()
			return errkind.Wrap(errkind.Transport, readErr, "bridge connection lost during %s", method)
		}
		if resp.Error != nil {
			return errkind.FromWire(resp.Error.Code, resp.Error.Message, resp.Error.Hint)
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return errkind.Wrap(errkind.Client, err, "decode %s result", method)
			}
		}
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return errkind.Wrap(errkind.Transport, ctx.Err(), "%s", method)
	}
}

func (c *Client) send(msg *Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteMessage(c.conn, msg)
}

// Close tears down the connection; pending calls fail with a transport error.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Ping round-trips a ping request.
func (c *Client) Ping(ctx context.Context) error {
	return c.Call(ctx, MethodPing, nil, nil)
}

// Shutdown asks the bridge to exit. The frame is one-way; the bridge closes
// the connection as it goes down, so no response is awaited.
func (c *Client) Shutdown() error {
	if err := c.send(NewShutdown()); err != nil {
		return errkind.Wrap(errkind.Transport, err, "send shutdown")
	}
	return nil
}

// SetCredentialsParams updates the bridge's auth material in place after a
// login or header change, without a restart.
type SetCredentialsParams struct {
	Headers     map[string]string `json:"headers,omitempty"`
	AccessToken string            `json:"accessToken,omitempty"`
}

// SetCredentials pushes fresh credentials to a running bridge. Like
// shutdown, the frame is one-way and gets no response.
func (c *Client) SetCredentials(p SetCredentialsParams) error {
	msg, err := NewSetCredentials(p)
	if err != nil {
		return errkind.Wrap(errkind.Client, err, "encode credentials")
	}
	if err := c.send(msg); err != nil {
		return errkind.Wrap(errkind.Transport, err, "send credentials")
	}
	return nil
}
