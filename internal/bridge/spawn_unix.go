//go:build !windows

package bridge

import (
	"bufio"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/hedworth/mcpc/internal/errkind"
)

// detach puts the bridge in its own session so terminal signals aimed at
// the CLI never reach it.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// prepareReadiness hands the child the write end of a pipe as fd 3. The
// bridge writes "ok" once its socket is listening; EOF without it means
// the bridge died during startup.
func prepareReadiness(cmd *exec.Cmd) (func(home, session string, timeout time.Duration) error, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, errkind.Wrap(errkind.Client, err, "create readiness pipe")
	}
	cmd.ExtraFiles = append(cmd.ExtraFiles, w)

	return func(home, session string, timeout time.Duration) error {
		// The parent's copy of the write end must go, or EOF never comes.
		w.Close()
		defer r.Close()

		r.SetReadDeadline(time.Now().Add(timeout))
		line, err := bufio.NewReader(r).ReadString('\n')
		if strings.HasPrefix(line, "ok") {
			return nil
		}
		if err != nil {
			return errkind.New(errkind.Transport, "bridge for %s did not become ready: %v", session, err)
		}
		return errkind.New(errkind.Transport, "bridge for %s failed during startup", session)
	}, nil
}

// ReadyPipe returns the readiness pipe inherited from the spawning CLI,
// or nil when the bridge was started by hand.
func ReadyPipe() *os.File {
	f := os.NewFile(3, "ready")
	if f == nil {
		return nil
	}
	// Probe: Stat fails when fd 3 was not passed in.
	if _, err := f.Stat(); err != nil {
		return nil
	}
	return f
}

func terminateProcess(pid int) {
	syscall.Kill(pid, syscall.SIGTERM)
}

func killProcess(pid int) {
	syscall.Kill(pid, syscall.SIGKILL)
}
