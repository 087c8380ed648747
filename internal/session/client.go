// Package session exposes an MCP-shaped client that forwards every call
// over IPC to the session's bridge daemon.
package session

import (
	"context"
	"encoding/json"
	"net"
	"sync"

	"github.com/hedworth/mcpc/internal/bridge"
	"github.com/hedworth/mcpc/internal/errkind"
	"github.com/hedworth/mcpc/internal/ipc"
)

// Bridger is the slice of the bridge manager the client needs. Tests
// substitute a fake.
type Bridger interface {
	Dial(session string) (net.Conn, error)
	RestartBridge(ctx context.Context, session string) error
}

// Client forwards MCP operations to a bridge. Recovery policy: MCP-level
// and auth errors propagate untouched; a transport error triggers exactly
// one bridge restart, reconnect, and retry. A second transport failure
// propagates.
type Client struct {
	session string
	mgr     Bridger

	// onNotification receives server-push events relayed by the bridge.
	onNotification ipc.NotificationHandler

	mu  sync.Mutex
	ipc *ipc.Client
}

// New returns a client for a session. onNotification may be nil.
func New(session string, mgr Bridger, onNotification ipc.NotificationHandler) *Client {
	return &Client{session: session, mgr: mgr, onNotification: onNotification}
}

// conn returns the live IPC client, dialing on first use.
func (c *Client) conn() (*ipc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ipc != nil {
		return c.ipc, nil
	}
	raw, err := c.mgr.Dial(c.session)
	if err != nil {
		return nil, err
	}
	c.ipc = ipc.NewClient(raw, c.onNotification)
	return c.ipc, nil
}

func (c *Client) drop(failed *ipc.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ipc == failed || failed == nil {
		if c.ipc != nil {
			c.ipc.Close()
		}
		c.ipc = nil
	}
}

func (c *Client) tryCall(ctx context.Context, method string, params, result any) error {
	cl, err := c.conn()
	if err != nil {
		return err
	}
	if err := cl.Call(ctx, method, params, result); err != nil {
		if errkind.Is(err, errkind.Transport) {
			c.drop(cl)
		}
		return err
	}
	return nil
}

// call applies the one-shot recovery policy around tryCall.
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	err := c.tryCall(ctx, method, params, result)
	if err == nil || !errkind.Is(err, errkind.Transport) {
		return err
	}

	c.drop(nil)
	if rerr := c.mgr.RestartBridge(ctx, c.session); rerr != nil {
		return rerr
	}
	return c.tryCall(ctx, method, params, result)
}

// Close tears down the IPC connection. The bridge keeps running.
func (c *Client) Close() {
	c.drop(nil)
}

// Ping round-trips through the bridge to the upstream server.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, ipc.MethodPing, nil, nil)
}

// ServerDetails returns the bridge's cached upstream snapshot.
func (c *Client) ServerDetails(ctx context.Context) (*bridge.ServerDetails, error) {
	var d bridge.ServerDetails
	if err := c.call(ctx, ipc.MethodGetServerDetails, nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListTools returns the upstream tool list as raw JSON.
func (c *Client) ListTools(ctx context.Context) (json.RawMessage, error) {
	return c.raw(ctx, ipc.MethodListTools, nil)
}

// CallTool invokes a tool by name.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	return c.raw(ctx, ipc.MethodCallTool, ipc.CallToolParams{Name: name, Arguments: args})
}

// ListResources returns the upstream resource list.
func (c *Client) ListResources(ctx context.Context) (json.RawMessage, error) {
	return c.raw(ctx, ipc.MethodListResources, nil)
}

// ListResourceTemplates returns the upstream resource template list.
func (c *Client) ListResourceTemplates(ctx context.Context) (json.RawMessage, error) {
	return c.raw(ctx, ipc.MethodListResourceTmpls, nil)
}

// ReadResource reads one resource by URI.
func (c *Client) ReadResource(ctx context.Context, uri string) (json.RawMessage, error) {
	return c.raw(ctx, ipc.MethodReadResource, ipc.ReadResourceParams{URI: uri})
}

// Subscribe registers for update notifications on a resource URI.
func (c *Client) Subscribe(ctx context.Context, uri string) error {
	return c.call(ctx, ipc.MethodSubscribeResource, ipc.SubscribeParams{URI: uri}, nil)
}

// Unsubscribe drops a resource subscription.
func (c *Client) Unsubscribe(ctx context.Context, uri string) error {
	return c.call(ctx, ipc.MethodUnsubscribeResource, ipc.SubscribeParams{URI: uri}, nil)
}

// ListPrompts returns the upstream prompt list.
func (c *Client) ListPrompts(ctx context.Context) (json.RawMessage, error) {
	return c.raw(ctx, ipc.MethodListPrompts, nil)
}

// GetPrompt fetches a prompt by name.
func (c *Client) GetPrompt(ctx context.Context, name string, args map[string]string) (json.RawMessage, error) {
	return c.raw(ctx, ipc.MethodGetPrompt, ipc.GetPromptParams{Name: name, Arguments: args})
}

// SetLoggingLevel adjusts the upstream server's logging level.
func (c *Client) SetLoggingLevel(ctx context.Context, level string) error {
	return c.call(ctx, ipc.MethodSetLoggingLevel, ipc.SetLevelParams{Level: level}, nil)
}

// SetCredentials pushes fresh headers or an access token to the bridge.
// The frame is one-way; no recovery applies since the bridge reloads from
// the keychain on its next refresh anyway.
func (c *Client) SetCredentials(p ipc.SetCredentialsParams) error {
	cl, err := c.conn()
	if err != nil {
		return err
	}
	if err := cl.SetCredentials(p); err != nil {
		c.drop(cl)
		return err
	}
	return nil
}

// Shutdown asks the bridge to exit. No recovery applies; a dead bridge is
// the desired outcome.
func (c *Client) Shutdown() error {
	cl, err := c.conn()
	if err != nil {
		return err
	}
	defer c.drop(cl)
	return cl.Shutdown()
}

func (c *Client) raw(ctx context.Context, method string, params any) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.call(ctx, method, params, &out); err != nil {
		return nil, err
	}
	return out, nil
}
