//go:build !windows

package registry

import (
	"os"
	"syscall"
)

// IsProcessAlive reports whether a process with the given pid exists.
// Signal 0 probes without delivering anything; EPERM still means the
// process is there.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}
