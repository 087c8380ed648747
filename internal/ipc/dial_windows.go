//go:build windows

package ipc

import (
	"net"
	"time"

	"github.com/Microsoft/go-winio"

	"github.com/hedworth/mcpc/internal/paths"
)

// Dial connects to the bridge endpoint for a session.
func Dial(home, session string, timeout time.Duration) (net.Conn, error) {
	return winio.DialPipe(paths.PipeName(home, session), &timeout)
}
