package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/hedworth/mcpc/internal/config"
	"github.com/hedworth/mcpc/internal/errkind"
	"github.com/hedworth/mcpc/internal/ipc"
	"github.com/hedworth/mcpc/internal/keychain"
	"github.com/hedworth/mcpc/internal/paths"
	"github.com/hedworth/mcpc/internal/registry"
)

const (
	// DialTimeout bounds one connection attempt to a bridge endpoint.
	DialTimeout = 2 * time.Second

	// startTimeout is how long a spawned bridge gets to signal readiness.
	startTimeout = 10 * time.Second

	// stopGracePeriod is how long to wait after the shutdown request
	// before escalating to signals.
	stopGracePeriod = 2 * time.Second

	// termGracePeriod is how long SIGTERM gets before SIGKILL.
	termGracePeriod = 3 * time.Second
)

// Manager starts, probes, restarts, and stops bridge daemons. It runs in
// the CLI process; the daemons are re-executions of the mcpc binary with
// the hidden bridge subcommand.
type Manager struct {
	home string
	reg  *registry.Registry

	// bridgeArgs lets tests substitute the spawned command.
	bridgeArgs []string
}

// NewManager returns a manager rooted at the given mcpc home.
func NewManager(home string, reg *registry.Registry) *Manager {
	return &Manager{home: home, reg: reg, bridgeArgs: []string{"bridge"}}
}

// Dial connects to a session's bridge endpoint.
func (m *Manager) Dial(session string) (net.Conn, error) {
	conn, err := ipc.Dial(m.home, session, DialTimeout)
	if err != nil {
		return nil, errkind.Wrap(errkind.Transport, err, "connect to bridge for %s", session)
	}
	return conn, nil
}

// StartBridge makes sure a bridge is running for the session: if the
// current one answers a ping it is reused, otherwise a fresh daemon is
// spawned and awaited.
func (m *Manager) StartBridge(ctx context.Context, session string) error {
	if m.probe(ctx, session) == nil {
		return nil
	}

	rec, err := m.reg.Get(session)
	if err != nil {
		return err
	}
	if rec.Status == registry.StatusExpired {
		return errkind.WithHint(
			errkind.New(errkind.Auth, "session %s is expired", session),
			"reconnect with: mcpc connect "+session+" "+rec.Server.String())
	}

	server, err := m.resolveServer(rec)
	if err != nil {
		return err
	}

	hs := Handshake{
		SessionName: session,
		Server:      server,
		ProfileName: rec.ProfileName,
		Verbose:     paths.Verbose(),
	}
	if err := m.spawn(ctx, hs); err != nil {
		return err
	}
	return m.probe(ctx, session)
}

// EnsureBridgeReady probes the session's bridge and restarts it when the
// process is gone or unresponsive.
func (m *Manager) EnsureBridgeReady(ctx context.Context, session string) error {
	rec, err := m.reg.Get(session)
	if err != nil {
		return err
	}
	if rec.PID > 0 && registry.IsProcessAlive(rec.PID) {
		if m.probe(ctx, session) == nil {
			return nil
		}
	}
	return m.RestartBridge(ctx, session)
}

// RestartBridge stops any current bridge for the session and starts a new
// one.
func (m *Manager) RestartBridge(ctx context.Context, session string) error {
	if err := m.StopBridge(ctx, session); err != nil {
		return err
	}
	return m.StartBridge(ctx, session)
}

// StopBridge brings a session's bridge down: a shutdown request first,
// then SIGTERM, then SIGKILL. Stopping an already-stopped bridge is a
// no-op.
func (m *Manager) StopBridge(ctx context.Context, session string) error {
	rec, err := m.reg.Get(session)
	if err != nil {
		return err
	}

	if conn, err := m.Dial(session); err == nil {
		c := ipc.NewClient(conn, nil)
		c.Shutdown()
		c.Close()
		if waitGone(rec.PID, stopGracePeriod) {
			removeEndpoint(m.home, session)
			return nil
		}
	}

	if rec.PID > 0 && registry.IsProcessAlive(rec.PID) {
		terminateProcess(rec.PID)
		if !waitGone(rec.PID, termGracePeriod) {
			killProcess(rec.PID)
			waitGone(rec.PID, time.Second)
		}
	}

	removeEndpoint(m.home, session)
	return nil
}

// probe dials the bridge and round-trips a ping.
func (m *Manager) probe(ctx context.Context, session string) error {
	conn, err := m.Dial(session)
	if err != nil {
		return err
	}
	c := ipc.NewClient(conn, nil)
	defer c.Close()

	pingCtx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()
	return c.Ping(pingCtx)
}

// resolveServer swaps redacted header placeholders for the real values
// held in the keychain.
func (m *Manager) resolveServer(rec registry.Record) (config.ServerConfig, error) {
	cfg := rec.Server
	if !cfg.HasRedactedHeaders() {
		return cfg, nil
	}
	var real map[string]string
	if err := keychain.GetJSON(keychain.SessionHeadersKey(rec.Name), &real); err != nil {
		return cfg, errkind.WithHint(
			errkind.Wrap(errkind.Auth, err, "load headers for %s", rec.Name),
			"reconnect with: mcpc connect "+rec.Name+" "+cfg.String()+" --header ...")
	}
	cfg.Headers = real
	return cfg, nil
}

// spawn launches the bridge daemon detached and waits for its readiness
// signal.
func (m *Manager) spawn(ctx context.Context, hs Handshake) error {
	payload, err := json.Marshal(hs)
	if err != nil {
		return errkind.Wrap(errkind.Client, err, "encode handshake")
	}

	exe, err := os.Executable()
	if err != nil {
		return errkind.Wrap(errkind.Client, err, "locate executable")
	}

	logPath := paths.LogPath(m.home, hs.SessionName)
	if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err != nil {
		return errkind.Wrap(errkind.Client, err, "create log dir")
	}
	// Panics and anything written before the logger opens land in the
	// same file the bridge logs to.
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return errkind.Wrap(errkind.Client, err, "open bridge log")
	}
	defer logFile.Close()

	cmd := exec.Command(exe, m.bridgeArgs...)
	cmd.Env = append(os.Environ(), paths.EnvHomeDir+"="+m.home)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	detach(cmd)

	await, err := prepareReadiness(cmd)
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return errkind.Wrap(errkind.Client, err, "spawn bridge for %s", hs.SessionName)
	}
	// The daemon outlives us; reap it if it exits while we still do.
	go cmd.Wait()

	if err := await(m.home, hs.SessionName, startTimeout); err != nil {
		return errkind.WithHint(err, "see log: "+logPath)
	}
	return nil
}

// waitGone polls for process exit.
func waitGone(pid int, timeout time.Duration) bool {
	if pid <= 0 {
		return true
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !registry.IsProcessAlive(pid) {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return !registry.IsProcessAlive(pid)
}
