//go:build !windows

package bridge

import (
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hedworth/mcpc/internal/errkind"
	"github.com/hedworth/mcpc/internal/paths"
)

// listen binds the session's unix socket. A leftover socket from a dead
// bridge is removed; one that still answers means another bridge owns the
// session.
func listen(home, session string) (net.Listener, error) {
	sock := paths.SocketPath(home, session)
	if err := os.MkdirAll(filepath.Dir(sock), 0o700); err != nil {
		return nil, errkind.Wrap(errkind.Client, err, "create bridge dir")
	}

	if _, err := os.Stat(sock); err == nil {
		if conn, err := net.DialTimeout("unix", sock, time.Second); err == nil {
			conn.Close()
			return nil, errkind.New(errkind.Client, "a bridge for %s is already running", session)
		}
		if err := os.Remove(sock); err != nil {
			return nil, errkind.Wrap(errkind.Client, err, "remove stale socket")
		}
	}

	l, err := net.Listen("unix", sock)
	if err != nil {
		return nil, errkind.Wrap(errkind.Client, err, "listen on %s", sock)
	}
	if err := os.Chmod(sock, 0o600); err != nil {
		l.Close()
		return nil, errkind.Wrap(errkind.Client, err, "restrict socket mode")
	}
	return l, nil
}

func removeEndpoint(home, session string) {
	os.Remove(paths.SocketPath(home, session))
}
