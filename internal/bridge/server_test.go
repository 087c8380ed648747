package bridge

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hedworth/mcpc/internal/config"
	"github.com/hedworth/mcpc/internal/errkind"
	"github.com/hedworth/mcpc/internal/ipc"
	"github.com/hedworth/mcpc/internal/logging"
	"github.com/hedworth/mcpc/internal/paths"
	"github.com/hedworth/mcpc/internal/registry"
)

// stubUpstream answers bridge requests without a real MCP server.
type stubUpstream struct {
	mu     sync.Mutex
	notify func(method string, params json.RawMessage)
	err    error
	calls  []string
	closed bool
}

func (u *stubUpstream) Initialize(ctx context.Context) (*ServerDetails, error) {
	return &ServerDetails{Name: "stub", Version: "1.0", ProtocolVersion: protocolVersion}, nil
}

func (u *stubUpstream) Do(ctx context.Context, method string, params json.RawMessage) (any, error) {
	u.mu.Lock()
	u.calls = append(u.calls, method)
	err := u.err
	u.mu.Unlock()
	if err != nil {
		return nil, err
	}
	switch method {
	case ipc.MethodPing:
		return nil, nil
	case ipc.MethodListTools:
		return map[string]any{"tools": []map[string]string{{"name": "echo"}}}, nil
	case ipc.MethodCallTool:
		var p ipc.CallToolParams
		json.Unmarshal(params, &p)
		return map[string]any{"called": p.Name}, nil
	default:
		return map[string]any{}, nil
	}
}

func (u *stubUpstream) OnNotification(fn func(method string, params json.RawMessage)) {
	u.mu.Lock()
	u.notify = fn
	u.mu.Unlock()
}

func (u *stubUpstream) Close() error {
	u.mu.Lock()
	u.closed = true
	u.mu.Unlock()
	return nil
}

func (u *stubUpstream) push(method string) {
	u.mu.Lock()
	fn := u.notify
	u.mu.Unlock()
	if fn != nil {
		fn(method, nil)
	}
}

func (u *stubUpstream) setErr(err error) {
	u.mu.Lock()
	u.err = err
	u.mu.Unlock()
}

type testBridge struct {
	home     string
	session  string
	reg      *registry.Registry
	upstream *stubUpstream
	server   *Server
	done     chan error
}

// startTestBridge runs a bridge with the stub upstream over a real socket.
func startTestBridge(t *testing.T, opts ServerOptions) *testBridge {
	t.Helper()
	home := t.TempDir()
	session := "@test"

	reg := registry.New(home)
	if err := reg.Put(registry.Record{
		Name:   session,
		Server: config.ServerConfig{URL: "https://srv.example"},
	}); err != nil {
		t.Fatal(err)
	}

	up := &stubUpstream{}
	opts.Home = home
	opts.Registry = reg
	opts.Logger = logging.NewWriterLogger(io.Discard, true)
	opts.Factory = func(ctx context.Context, cfg config.ServerConfig, rt http.RoundTripper) (Upstream, error) {
		return up, nil
	}

	srv := NewServer(Handshake{
		SessionName: session,
		Server:      config.ServerConfig{URL: "https://srv.example"},
	}, opts)

	tb := &testBridge{home: home, session: session, reg: reg, upstream: up, server: srv, done: make(chan error, 1)}
	go func() { tb.done <- srv.Run(context.Background()) }()

	// Wait for the socket to appear.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if conn, err := ipc.Dial(home, session, 200*time.Millisecond); err == nil {
			conn.Close()
			return tb
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("bridge never became reachable")
	return nil
}

func (tb *testBridge) client(t *testing.T, onNotify ipc.NotificationHandler) *ipc.Client {
	t.Helper()
	conn, err := ipc.Dial(tb.home, tb.session, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	c := ipc.NewClient(conn, onNotify)
	t.Cleanup(func() { c.Close() })
	return c
}

func (tb *testBridge) waitStopped(t *testing.T) {
	t.Helper()
	select {
	case <-tb.done:
	case <-time.After(5 * time.Second):
		t.Fatal("bridge did not stop")
	}
}

func TestBridge_RequestRoundTrip(t *testing.T) {
	tb := startTestBridge(t, ServerOptions{})
	defer func() { tb.server.Shutdown("test over"); tb.waitStopped(t) }()

	c := tb.client(t, nil)

	var tools map[string]any
	if err := c.Call(context.Background(), ipc.MethodListTools, nil, &tools); err != nil {
		t.Fatalf("listTools: %v", err)
	}
	if _, ok := tools["tools"]; !ok {
		t.Errorf("result = %v", tools)
	}

	var called map[string]string
	err := c.Call(context.Background(), ipc.MethodCallTool, ipc.CallToolParams{Name: "echo"}, &called)
	if err != nil {
		t.Fatalf("callTool: %v", err)
	}
	if called["called"] != "echo" {
		t.Errorf("result = %v", called)
	}

	// PID was recorded.
	rec, err := tb.reg.Get(tb.session)
	if err != nil {
		t.Fatal(err)
	}
	if rec.PID != os.Getpid() {
		t.Errorf("pid = %d, want %d", rec.PID, os.Getpid())
	}

	// Socket is owner-only.
	info, err := os.Stat(paths.SocketPath(tb.home, tb.session))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("socket mode = %o", perm)
	}
}

func TestBridge_ServerDetailsServedFromCache(t *testing.T) {
	tb := startTestBridge(t, ServerOptions{})
	defer func() { tb.server.Shutdown("test over"); tb.waitStopped(t) }()

	c := tb.client(t, nil)

	var details ServerDetails
	if err := c.Call(context.Background(), ipc.MethodGetServerDetails, nil, &details); err != nil {
		t.Fatalf("getServerDetails: %v", err)
	}
	if details.Name != "stub" {
		t.Errorf("details = %+v", details)
	}

	tb.upstream.mu.Lock()
	calls := len(tb.upstream.calls)
	tb.upstream.mu.Unlock()
	if calls != 0 {
		t.Errorf("upstream hit %d times for cached details", calls)
	}
}

func TestBridge_NotificationFanOut(t *testing.T) {
	tb := startTestBridge(t, ServerOptions{})
	defer func() { tb.server.Shutdown("test over"); tb.waitStopped(t) }()

	got1 := make(chan ipc.Notification, 1)
	got2 := make(chan ipc.Notification, 1)
	c1 := tb.client(t, func(n ipc.Notification) { got1 <- n })
	c2 := tb.client(t, func(n ipc.Notification) { got2 <- n })

	// Make sure both connections are registered before pushing.
	if err := c1.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c2.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}

	tb.upstream.push("notifications/resources/updated")

	for i, ch := range []chan ipc.Notification{got1, got2} {
		select {
		case n := <-ch:
			if n.Method != "notifications/resources/updated" {
				t.Errorf("client %d method = %q", i+1, n.Method)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("client %d never saw the notification", i+1)
		}
	}
}

func TestBridge_ShutdownRequest(t *testing.T) {
	tb := startTestBridge(t, ServerOptions{})

	c := tb.client(t, nil)
	if err := c.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	tb.waitStopped(t)

	if _, err := os.Stat(paths.SocketPath(tb.home, tb.session)); !os.IsNotExist(err) {
		t.Error("socket not removed on shutdown")
	}
	rec, err := tb.reg.Get(tb.session)
	if err != nil {
		t.Fatal(err)
	}
	if rec.ComputedStatus() != registry.StatusDead {
		t.Errorf("status = %q after clean shutdown", rec.ComputedStatus())
	}
	tb.upstream.mu.Lock()
	closed := tb.upstream.closed
	tb.upstream.mu.Unlock()
	if !closed {
		t.Error("upstream not closed")
	}
}

func TestBridge_AuthErrorMarksExpiredAndStops(t *testing.T) {
	tb := startTestBridge(t, ServerOptions{})

	c := tb.client(t, nil)
	tb.upstream.setErr(errkind.New(errkind.Auth, "token refresh failed"))

	err := c.Call(context.Background(), ipc.MethodListTools, nil, nil)
	if !errkind.Is(err, errkind.Auth) {
		t.Fatalf("kind = %v, want auth (%v)", errkind.Of(err), err)
	}

	tb.waitStopped(t)
	rec, err := tb.reg.Get(tb.session)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != registry.StatusExpired {
		t.Errorf("status = %q, want expired", rec.Status)
	}
}

func TestBridge_IdleTimeout(t *testing.T) {
	tb := startTestBridge(t, ServerOptions{IdleTimeout: 150 * time.Millisecond})

	// No clients connect; the bridge should fold on its own.
	tb.waitStopped(t)
}

func TestBridge_UpstreamErrorIsServerKind(t *testing.T) {
	tb := startTestBridge(t, ServerOptions{})
	defer func() { tb.server.Shutdown("test over"); tb.waitStopped(t) }()

	c := tb.client(t, nil)
	tb.upstream.setErr(io.ErrUnexpectedEOF)

	err := c.Call(context.Background(), ipc.MethodListTools, nil, nil)
	if !errkind.Is(err, errkind.Server) {
		t.Fatalf("kind = %v, want server (%v)", errkind.Of(err), err)
	}
	tb.upstream.setErr(nil)
}

func TestReadHandshake(t *testing.T) {
	hs, err := ReadHandshake(strings.NewReader(`{"sessionName":"@s","server":{"url":"https://srv.example"}}`))
	if err != nil {
		t.Fatalf("ReadHandshake: %v", err)
	}
	if hs.SessionName != "@s" || hs.Server.URL != "https://srv.example" {
		t.Errorf("handshake = %+v", hs)
	}

	if _, err := ReadHandshake(strings.NewReader(`{"sessionName":"bad","server":{"url":"https://x"}}`)); err == nil {
		t.Error("invalid session name accepted")
	}
	if _, err := ReadHandshake(strings.NewReader(`{"sessionName":"@s","server":{}}`)); err == nil {
		t.Error("empty server config accepted")
	}
}

func TestBridge_CredentialsUpdateFrame(t *testing.T) {
	tb := startTestBridge(t, ServerOptions{})
	defer func() { tb.server.Shutdown("test over"); tb.waitStopped(t) }()

	c := tb.client(t, nil)
	err := c.SetCredentials(ipc.SetCredentialsParams{
		Headers:     map[string]string{"X-Team": "core"},
		AccessToken: "tok2",
	})
	if err != nil {
		t.Fatalf("SetCredentials: %v", err)
	}
	// The frame is one-way; a round-trip behind it proves it was consumed
	// in order without desyncing the stream.
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("ping after credentials frame: %v", err)
	}

	tb.server.auth.mu.RLock()
	headers := tb.server.auth.headers
	override := tb.server.auth.tokenOverride
	tb.server.auth.mu.RUnlock()
	if headers["X-Team"] != "core" {
		t.Errorf("headers = %v", headers)
	}
	if override != "tok2" {
		t.Errorf("token override = %q, want tok2", override)
	}
}
