//go:build windows

package bridge

import (
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/hedworth/mcpc/internal/errkind"
	"github.com/hedworth/mcpc/internal/ipc"
)

// detach starts the bridge outside the CLI's console and process group.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | 0x00000008, // DETACHED_PROCESS
	}
}

// prepareReadiness on Windows polls the named pipe until it accepts a
// connection; fd inheritance tricks are not portable here.
func prepareReadiness(cmd *exec.Cmd) (func(home, session string, timeout time.Duration) error, error) {
	return func(home, session string, timeout time.Duration) error {
		deadline := time.Now().Add(timeout)
		for time.Now().Before(deadline) {
			conn, err := ipc.Dial(home, session, 500*time.Millisecond)
			if err == nil {
				conn.Close()
				return nil
			}
			time.Sleep(100 * time.Millisecond)
		}
		return errkind.New(errkind.Transport, "bridge for %s did not become ready", session)
	}, nil
}

// ReadyPipe is unused on Windows; readiness is observed by polling the
// pipe.
func ReadyPipe() *os.File { return nil }

func terminateProcess(pid int) {
	// No SIGTERM equivalent; go straight to termination.
	if p, err := os.FindProcess(pid); err == nil {
		p.Kill()
	}
}

func killProcess(pid int) {
	terminateProcess(pid)
}
