//go:build windows

package bridge

import (
	"net"

	"github.com/Microsoft/go-winio"

	"github.com/hedworth/mcpc/internal/errkind"
	"github.com/hedworth/mcpc/internal/paths"
)

// listen binds the session's named pipe. Pipe names are scoped to the mcpc
// home directory, so two homes never collide. A second listener on the same
// name fails, which covers the already-running case.
func listen(home, session string) (net.Listener, error) {
	name := paths.PipeName(home, session)
	l, err := winio.ListenPipe(name, &winio.PipeConfig{
		// Owner-only access, matching the 0600 unix socket.
		SecurityDescriptor: "D:P(A;;GA;;;OW)",
	})
	if err != nil {
		return nil, errkind.Wrap(errkind.Client, err, "listen on %s", name)
	}
	return l, nil
}

// removeEndpoint is a no-op on Windows; named pipes vanish with their
// listener.
func removeEndpoint(home, session string) {}
