package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/hedworth/mcpc/internal/bridge"
	"github.com/hedworth/mcpc/internal/config"
	"github.com/hedworth/mcpc/internal/errkind"
	"github.com/hedworth/mcpc/internal/ipc"
)

// MCP is the capability set every command target provides. The bridge-backed
// Client and the in-process Direct client both implement it.
type MCP interface {
	Ping(ctx context.Context) error
	ServerDetails(ctx context.Context) (*bridge.ServerDetails, error)
	ListTools(ctx context.Context) (json.RawMessage, error)
	CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error)
	ListResources(ctx context.Context) (json.RawMessage, error)
	ListResourceTemplates(ctx context.Context) (json.RawMessage, error)
	ReadResource(ctx context.Context, uri string) (json.RawMessage, error)
	Subscribe(ctx context.Context, uri string) error
	Unsubscribe(ctx context.Context, uri string) error
	ListPrompts(ctx context.Context) (json.RawMessage, error)
	GetPrompt(ctx context.Context, name string, args map[string]string) (json.RawMessage, error)
	SetLoggingLevel(ctx context.Context, level string) error
	Close()
}

var (
	_ MCP = (*Client)(nil)
	_ MCP = (*Direct)(nil)
)

// Direct owns an in-process MCP connection for one-shot commands against a
// transient target (a URL or a local command). No bridge daemon, registry
// entry, or socket is involved; the connection lives for one CLI invocation.
type Direct struct {
	cfg            config.ServerConfig
	factory        bridge.UpstreamFactory
	onNotification ipc.NotificationHandler

	mu      sync.Mutex
	up      bridge.Upstream
	details *bridge.ServerDetails
}

// NewDirect returns a client for a transient target. The config must already
// be validated. onNotification may be nil.
func NewDirect(cfg config.ServerConfig, onNotification ipc.NotificationHandler) *Direct {
	return &Direct{cfg: cfg, factory: bridge.NewUpstream, onNotification: onNotification}
}

// upstream connects and initializes on first use.
func (d *Direct) upstream(ctx context.Context) (bridge.Upstream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.up != nil {
		return d.up, nil
	}

	up, err := d.factory(ctx, d.cfg, nil)
	if err != nil {
		return nil, err
	}
	if d.onNotification != nil {
		up.OnNotification(func(method string, params json.RawMessage) {
			d.onNotification(ipc.Notification{Method: method, Params: params})
		})
	}

	details, err := up.Initialize(ctx)
	if err != nil {
		up.Close()
		return nil, classifyDirect(err)
	}
	d.up = up
	d.details = details
	return up, nil
}

// classifyDirect mirrors the bridge's wire classification so a direct call
// and a session call fail with the same exit code: tagged errors keep their
// kind, everything else is a server-side failure.
func classifyDirect(err error) error {
	var ke *errkind.Error
	if errors.As(err, &ke) {
		return err
	}
	return errkind.Wrap(errkind.Server, err, "mcp request")
}

func (d *Direct) call(ctx context.Context, method string, params, result any) error {
	up, err := d.upstream(ctx)
	if err != nil {
		return err
	}

	var raw json.RawMessage
	if params != nil {
		raw, err = json.Marshal(params)
		if err != nil {
			return errkind.Wrap(errkind.Client, err, "encode %s params", method)
		}
	}

	res, err := up.Do(ctx, method, raw)
	if err != nil {
		return classifyDirect(err)
	}
	if result == nil {
		return nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return errkind.Wrap(errkind.Client, err, "encode %s result", method)
	}
	if err := json.Unmarshal(data, result); err != nil {
		return errkind.Wrap(errkind.Client, err, "decode %s result", method)
	}
	return nil
}

// Close tears down the upstream connection.
func (d *Direct) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.up != nil {
		d.up.Close()
		d.up = nil
	}
}

func (d *Direct) Ping(ctx context.Context) error {
	return d.call(ctx, ipc.MethodPing, nil, nil)
}

// ServerDetails returns the snapshot taken at initialize time.
func (d *Direct) ServerDetails(ctx context.Context) (*bridge.ServerDetails, error) {
	if _, err := d.upstream(ctx); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.details, nil
}

func (d *Direct) ListTools(ctx context.Context) (json.RawMessage, error) {
	return d.raw(ctx, ipc.MethodListTools, nil)
}

func (d *Direct) CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	return d.raw(ctx, ipc.MethodCallTool, ipc.CallToolParams{Name: name, Arguments: args})
}

func (d *Direct) ListResources(ctx context.Context) (json.RawMessage, error) {
	return d.raw(ctx, ipc.MethodListResources, nil)
}

func (d *Direct) ListResourceTemplates(ctx context.Context) (json.RawMessage, error) {
	return d.raw(ctx, ipc.MethodListResourceTmpls, nil)
}

func (d *Direct) ReadResource(ctx context.Context, uri string) (json.RawMessage, error) {
	return d.raw(ctx, ipc.MethodReadResource, ipc.ReadResourceParams{URI: uri})
}

func (d *Direct) Subscribe(ctx context.Context, uri string) error {
	return d.call(ctx, ipc.MethodSubscribeResource, ipc.SubscribeParams{URI: uri}, nil)
}

func (d *Direct) Unsubscribe(ctx context.Context, uri string) error {
	return d.call(ctx, ipc.MethodUnsubscribeResource, ipc.SubscribeParams{URI: uri}, nil)
}

func (d *Direct) ListPrompts(ctx context.Context) (json.RawMessage, error) {
	return d.raw(ctx, ipc.MethodListPrompts, nil)
}

func (d *Direct) GetPrompt(ctx context.Context, name string, args map[string]string) (json.RawMessage, error) {
	return d.raw(ctx, ipc.MethodGetPrompt, ipc.GetPromptParams{Name: name, Arguments: args})
}

func (d *Direct) SetLoggingLevel(ctx context.Context, level string) error {
	return d.call(ctx, ipc.MethodSetLoggingLevel, ipc.SetLevelParams{Level: level}, nil)
}

func (d *Direct) raw(ctx context.Context, method string, params any) (json.RawMessage, error) {
	var out json.RawMessage
	if err := d.call(ctx, method, params, &out); err != nil {
		return nil, err
	}
	return out, nil
}
