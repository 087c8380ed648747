// Package bridge implements the per-session daemon that owns the MCP
// connection to one server, and the manager that spawns, probes, restarts,
// and stops those daemons.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hedworth/mcpc/internal/config"
	"github.com/hedworth/mcpc/internal/errkind"
	"github.com/hedworth/mcpc/internal/ipc"
)

const protocolVersion = "2024-11-05"

// ServerDetails is the snapshot of the upstream server taken at initialize
// time and served from cache afterwards.
type ServerDetails struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	ProtocolVersion string `json:"protocolVersion"`
	Capabilities    any    `json:"capabilities,omitempty"`
	Instructions    string `json:"instructions,omitempty"`
}

// Upstream is the slice of an MCP client the bridge needs. The production
// implementation wraps the mcp-go client; tests substitute a stub.
type Upstream interface {
	// Initialize performs the MCP handshake and returns the server snapshot.
	Initialize(ctx context.Context) (*ServerDetails, error)

	// Do dispatches one bridge method to the upstream server. The result
	// must be JSON-marshalable.
	Do(ctx context.Context, method string, params json.RawMessage) (any, error)

	// OnNotification registers the handler for server-push notifications.
	OnNotification(fn func(method string, params json.RawMessage))

	Close() error
}

// UpstreamFactory builds the upstream for a server config. The round
// tripper, when non-nil, carries auth header injection for HTTP transports.
type UpstreamFactory func(ctx context.Context, cfg config.ServerConfig, rt http.RoundTripper) (Upstream, error)

// NewUpstream is the production UpstreamFactory.
func NewUpstream(ctx context.Context, cfg config.ServerConfig, rt http.RoundTripper) (Upstream, error) {
	var (
		c   *client.Client
		err error
	)
	switch {
	case cfg.IsStdio():
		env := make([]string, 0, len(cfg.Env))
		for k, v := range cfg.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		c, err = client.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
		if err != nil {
			return nil, errkind.Wrap(errkind.Transport, err, "start stdio server %s", cfg.Command)
		}
	default:
		var opts []transport.StreamableHTTPCOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(cfg.Headers))
		}
		if rt != nil {
			opts = append(opts, transport.WithHTTPBasicClient(&http.Client{Transport: rt}))
		}
		c, err = client.NewStreamableHttpClient(cfg.URL, opts...)
		if err != nil {
			return nil, errkind.Wrap(errkind.Transport, err, "create client for %s", cfg.URL)
		}
		if err := c.Start(ctx); err != nil {
			c.Close()
			return nil, errkind.Wrap(errkind.Transport, err, "connect to %s", cfg.URL)
		}
	}
	return &mcpUpstream{c: c}, nil
}

// mcpUpstream adapts the mcp-go client to the Upstream interface.
type mcpUpstream struct {
	c *client.Client
}

func (u *mcpUpstream) Initialize(ctx context.Context) (*ServerDetails, error) {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = protocolVersion
	req.Params.ClientInfo = mcp.Implementation{Name: "mcpc-bridge", Version: "1.0.0"}
	req.Params.Capabilities = mcp.ClientCapabilities{}

	res, err := u.c.Initialize(ctx, req)
	if err != nil {
		return nil, err
	}
	return &ServerDetails{
		Name:            res.ServerInfo.Name,
		Version:         res.ServerInfo.Version,
		ProtocolVersion: res.ProtocolVersion,
		Capabilities:    res.Capabilities,
		Instructions:    res.Instructions,
	}, nil
}

func (u *mcpUpstream) OnNotification(fn func(method string, params json.RawMessage)) {
	u.c.OnNotification(func(n mcp.JSONRPCNotification) {
		params, _ := json.Marshal(n.Params)
		fn(n.Method, params)
	})
}

func (u *mcpUpstream) Close() error {
	return u.c.Close()
}

// Do maps bridge methods onto mcp-go calls. Unknown methods are a client
// error so a newer CLI degrades cleanly against an older bridge.
func (u *mcpUpstream) Do(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case ipc.MethodPing:
		return nil, u.c.Ping(ctx)

	case ipc.MethodListTools:
		return u.c.ListTools(ctx, mcp.ListToolsRequest{})

	case ipc.MethodCallTool:
		var p ipc.CallToolParams
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		req := mcp.CallToolRequest{}
		req.Params.Name = p.Name
		req.Params.Arguments = p.Arguments
		return u.c.CallTool(ctx, req)

	case ipc.MethodListResources:
		return u.c.ListResources(ctx, mcp.ListResourcesRequest{})

	case ipc.MethodListResourceTmpls:
		return u.c.ListResourceTemplates(ctx, mcp.ListResourceTemplatesRequest{})

	case ipc.MethodReadResource:
		var p ipc.ReadResourceParams
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		req := mcp.ReadResourceRequest{}
		req.Params.URI = p.URI
		return u.c.ReadResource(ctx, req)

	case ipc.MethodSubscribeResource:
		var p ipc.SubscribeParams
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		req := mcp.SubscribeRequest{}
		req.Params.URI = p.URI
		return nil, u.c.Subscribe(ctx, req)

	case ipc.MethodUnsubscribeResource:
		var p ipc.SubscribeParams
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		req := mcp.UnsubscribeRequest{}
		req.Params.URI = p.URI
		return nil, u.c.Unsubscribe(ctx, req)

	case ipc.MethodListPrompts:
		return u.c.ListPrompts(ctx, mcp.ListPromptsRequest{})

	case ipc.MethodGetPrompt:
		var p ipc.GetPromptParams
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		req := mcp.GetPromptRequest{}
		req.Params.Name = p.Name
		req.Params.Arguments = p.Arguments
		return u.c.GetPrompt(ctx, req)

	case ipc.MethodSetLoggingLevel:
		var p ipc.SetLevelParams
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		req := mcp.SetLevelRequest{}
		req.Params.Level = mcp.LoggingLevel(p.Level)
		return nil, u.c.SetLevel(ctx, req)

	default:
		return nil, errkind.New(errkind.Client, "unknown method %q", method)
	}
}

func unmarshalParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errkind.New(errkind.Client, "missing params")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errkind.Wrap(errkind.Client, err, "decode params")
	}
	return nil
}
