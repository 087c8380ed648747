package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hedworth/mcpc/internal/config"
	"github.com/hedworth/mcpc/internal/errkind"
	"github.com/hedworth/mcpc/internal/ipc"
	"github.com/hedworth/mcpc/internal/logging"
	"github.com/hedworth/mcpc/internal/oauth"
	"github.com/hedworth/mcpc/internal/paths"
	"github.com/hedworth/mcpc/internal/registry"
)

const (
	// DefaultIdleTimeout shuts the bridge down after this long with zero
	// connected clients.
	DefaultIdleTimeout = 30 * time.Minute

	// drainTimeout bounds how long shutdown waits for in-flight requests.
	drainTimeout = 5 * time.Second

	initRetries       = 3
	initRetryBaseWait = 500 * time.Millisecond
	initTimeout       = 30 * time.Second
)

// Handshake is the startup message a bridge reads from stdin. The server
// config carries real header values; they never touch the registry.
type Handshake struct {
	SessionName string              `json:"sessionName"`
	Server      config.ServerConfig `json:"server"`
	ProfileName string              `json:"profileName,omitempty"`
	Verbose     bool                `json:"verbose,omitempty"`
}

// ReadHandshake decodes the handshake from the given reader.
func ReadHandshake(r io.Reader) (*Handshake, error) {
	var hs Handshake
	if err := json.NewDecoder(r).Decode(&hs); err != nil {
		return nil, errkind.Wrap(errkind.Client, err, "read handshake")
	}
	if err := paths.ValidateSessionName(hs.SessionName); err != nil {
		return nil, err
	}
	if err := hs.Server.Validate(); err != nil {
		return nil, err
	}
	return &hs, nil
}

// Server is one running bridge daemon: a socket listener multiplexing CLI
// connections onto a single upstream MCP client.
type Server struct {
	hs      Handshake
	home    string
	reg     *registry.Registry
	log     *logging.Logger
	factory UpstreamFactory

	// ready, when non-nil, receives one byte once the socket is
	// listening. The spawning CLI blocks on it.
	ready io.WriteCloser

	idleTimeout time.Duration

	upstream Upstream
	details  *ServerDetails
	auth     *AuthCoordinator

	mu       sync.Mutex
	listener net.Listener
	conns    map[string]*clientConn
	inflight sync.WaitGroup

	shutdownOnce sync.Once
	shutdownCh   chan struct{}

	idleMu    sync.Mutex
	idleTimer *time.Timer
}

type clientConn struct {
	id      string
	conn    net.Conn
	writeMu sync.Mutex
}

func (cc *clientConn) send(msg *ipc.Message) error {
	cc.writeMu.Lock()
	defer cc.writeMu.Unlock()
	return ipc.WriteMessage(cc.conn, msg)
}

// ServerOptions configures a bridge server.
type ServerOptions struct {
	Home        string
	Logger      *logging.Logger
	Registry    *registry.Registry
	Factory     UpstreamFactory
	Ready       io.WriteCloser
	IdleTimeout time.Duration
}

// NewServer builds a bridge server for a handshake.
func NewServer(hs Handshake, opts ServerOptions) *Server {
	factory := opts.Factory
	if factory == nil {
		factory = NewUpstream
	}
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &Server{
		hs:          hs,
		home:        opts.Home,
		reg:         opts.Registry,
		log:         opts.Logger,
		factory:     factory,
		ready:       opts.Ready,
		idleTimeout: idle,
		conns:       make(map[string]*clientConn),
		shutdownCh:  make(chan struct{}),
	}
}

// Run connects upstream, binds the socket, signals readiness, and serves
// until shutdown. It returns after cleanup is complete.
func (s *Server) Run(ctx context.Context) error {
	name := s.hs.SessionName
	s.log.Printf("bridge starting: session=%s server=%s", name, s.hs.Server.String())

	var rt http.RoundTripper
	if s.hs.Server.IsHTTP() {
		auth, err := NewAuthCoordinator(s.hs.Server.URL, s.hs.ProfileName, s.hs.Server.Headers,
			oauth.NewProfileStore(paths.ProfilesFile(s.home)))
		if err != nil {
			s.log.Errorf("credentials unavailable: %v", err)
			return err
		}
		s.auth = auth
		if auth.HasOAuth() {
			rt = auth.RoundTripper(nil)
		}
		if len(s.hs.Server.Headers) > 0 {
			s.log.Debugf("request headers: %s", logging.FormatHeaders(s.hs.Server.Headers))
		}
	}

	upstream, err := s.factory(ctx, s.hs.Server, rt)
	if err != nil {
		s.log.Errorf("upstream connect failed: %v", err)
		return err
	}
	s.upstream = upstream

	if err := s.initializeUpstream(ctx); err != nil {
		upstream.Close()
		if errkind.Is(err, errkind.Auth) {
			s.reg.MarkExpired(name)
		}
		return err
	}

	listener, err := listen(s.home, name)
	if err != nil {
		upstream.Close()
		return err
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	if err := s.reg.SetPID(name, os.Getpid()); err != nil {
		s.log.Errorf("record pid: %v", err)
	}

	upstream.OnNotification(s.broadcast)

	if s.ready != nil {
		io.WriteString(s.ready, "ok\n")
		s.ready.Close()
	}
	s.log.Printf("bridge ready: session=%s", name)

	s.resetIdleTimer()
	s.acceptLoop(ctx, listener)

	// acceptLoop returns once the listener is closed by shutdown.
	s.cleanup()
	return nil
}

func (s *Server) initializeUpstream(ctx context.Context) error {
	var err error
	for attempt := 1; attempt <= initRetries; attempt++ {
		initCtx, cancel := context.WithTimeout(ctx, initTimeout)
		s.details, err = s.upstream.Initialize(initCtx)
		cancel()
		if err == nil {
			return nil
		}
		s.log.Errorf("initialize attempt %d/%d: %v", attempt, initRetries, err)
		if errkind.Is(err, errkind.Auth) {
			break
		}
		if attempt < initRetries {
			time.Sleep(initRetryBaseWait * time.Duration(1<<(attempt-1)))
		}
	}
	return err
}

func (s *Server) acceptLoop(ctx context.Context, listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdownCh:
			default:
				s.log.Errorf("accept: %v", err)
			}
			return
		}

		cc := &clientConn{id: uuid.NewString(), conn: conn}
		s.mu.Lock()
		s.conns[cc.id] = cc
		n := len(s.conns)
		s.mu.Unlock()
		s.stopIdleTimer()
		s.log.Debugf("client connected: id=%s total=%d", cc.id, n)
		s.reg.Touch(s.hs.SessionName)

		go s.serveConn(ctx, cc)
	}
}

func (s *Server) serveConn(ctx context.Context, cc *clientConn) {
	defer func() {
		cc.conn.Close()
		s.mu.Lock()
		delete(s.conns, cc.id)
		n := len(s.conns)
		s.mu.Unlock()
		s.log.Debugf("client disconnected: id=%s total=%d", cc.id, n)
		if n == 0 {
			s.resetIdleTimer()
		}
	}()

	for {
		msg, err := ipc.ReadMessage(cc.conn)
		if err != nil {
			if err != io.EOF {
				s.log.Debugf("read from %s: %v", cc.id, err)
			}
			return
		}
		switch msg.Type {
		case ipc.TypeShutdown:
			s.shutdown("requested")
			continue
		case ipc.TypeSetCredentials:
			s.applyCredentials(msg.Params)
			continue
		case ipc.TypeRequest:
		default:
			continue
		}
		s.inflight.Add(1)
		go func(req *ipc.Message) {
			defer s.inflight.Done()
			s.handleRequest(ctx, cc, req)
		}(msg)
	}
}

func (s *Server) handleRequest(ctx context.Context, cc *clientConn, req *ipc.Message) {
	s.log.Debugf("request: id=%d method=%s", req.ID, req.Method)

	switch req.Method {
	case ipc.MethodGetServerDetails:
		resp, err := ipc.NewResponse(req.ID, s.details)
		if err != nil {
			cc.send(ipc.NewErrorResponse(req.ID, errkind.Server.ExitCode(), err.Error(), ""))
			return
		}
		cc.send(resp)
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(s.hs.Server.TimeoutSeconds())*time.Second)
	defer cancel()

	result, err := s.upstream.Do(reqCtx, req.Method, req.Params)
	if err != nil {
		kind := classifyUpstream(err)
		s.log.Errorf("%s failed (%s): %v", req.Method, kind, err)
		cc.send(ipc.NewErrorResponse(req.ID, kind.ExitCode(), err.Error(), errkind.HintOf(err)))
		if kind == errkind.Auth {
			// Credentials are terminally bad; no future request can
			// succeed until the user logs in again.
			s.reg.MarkExpired(s.hs.SessionName)
			s.shutdown("credentials expired")
		}
		return
	}

	resp, err := ipc.NewResponse(req.ID, result)
	if err != nil {
		cc.send(ipc.NewErrorResponse(req.ID, errkind.Server.ExitCode(), "encode result: "+err.Error(), ""))
		return
	}
	cc.send(resp)
}

// applyCredentials handles a set-auth-credentials frame: the auth
// coordinator swaps in the new material and subsequent requests use it. No
// MCP reconnect happens unless the upstream rejects the old credentials.
func (s *Server) applyCredentials(raw json.RawMessage) {
	var p ipc.SetCredentialsParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			s.log.Errorf("decode credentials update: %v", err)
			return
		}
	}
	if s.auth != nil {
		s.auth.UpdateCredentials(p.Headers, p.AccessToken)
	}
	s.log.Debugf("credentials updated")
}

// classifyUpstream maps an upstream error to a wire kind: tagged errors
// keep their kind, everything else is a server-side failure.
func classifyUpstream(err error) errkind.Kind {
	var ke *errkind.Error
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return errkind.Server
}

// broadcast fans one upstream notification out to every connected client.
func (s *Server) broadcast(method string, params json.RawMessage) {
	msg := ipc.NewNotification(method, params)

	s.mu.Lock()
	targets := make([]*clientConn, 0, len(s.conns))
	for _, cc := range s.conns {
		targets = append(targets, cc)
	}
	s.mu.Unlock()

	s.log.Debugf("notification %s to %d client(s)", method, len(targets))
	for _, cc := range targets {
		if err := cc.send(msg); err != nil {
			s.log.Debugf("notify %s: %v", cc.id, err)
		}
	}
}

func (s *Server) stopIdleTimer() {
	s.idleMu.Lock()
	defer s.idleMu.Unlock()
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
}

func (s *Server) resetIdleTimer() {
	s.idleMu.Lock()
	defer s.idleMu.Unlock()
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	s.idleTimer = time.AfterFunc(s.idleTimeout, func() {
		s.mu.Lock()
		idle := len(s.conns) == 0
		s.mu.Unlock()
		if idle {
			s.shutdown("idle timeout")
		}
	})
}

// shutdown initiates teardown exactly once; Run finishes the cleanup.
func (s *Server) shutdown(reason string) {
	s.shutdownOnce.Do(func() {
		s.log.Printf("bridge shutting down: %s", reason)
		close(s.shutdownCh)
		s.mu.Lock()
		if s.listener != nil {
			s.listener.Close()
		}
		s.mu.Unlock()
	})
}

func (s *Server) cleanup() {
	// Let in-flight requests finish, bounded.
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainTimeout):
		s.log.Errorf("drain timeout; dropping in-flight requests")
	}

	s.mu.Lock()
	for _, cc := range s.conns {
		cc.conn.Close()
	}
	s.mu.Unlock()

	s.stopIdleTimer()
	s.upstream.Close()
	removeEndpoint(s.home, s.hs.SessionName)

	// A cleanly stopped bridge reads as dead (restartable), not live.
	if rec, err := s.reg.Get(s.hs.SessionName); err == nil && rec.Status == registry.StatusActive {
		s.reg.SetPID(s.hs.SessionName, 0)
	}
	s.log.Printf("bridge stopped: session=%s", s.hs.SessionName)
	s.log.Close()
}

// Shutdown allows external callers (signal handlers) to stop the bridge.
func (s *Server) Shutdown(reason string) {
	s.shutdown(reason)
}
