package registry

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/hedworth/mcpc/internal/paths"
)

// orphanLogMaxAge is how old an orphan bridge log must be before
// consolidation unlinks it.
const orphanLogMaxAge = 7 * 24 * time.Hour

// bridgeLogPattern matches bridge-@name.log and its rotated backups, which
// carry a -2006-01-02T15-04-05.000 timestamp infix.
var bridgeLogPattern = regexp.MustCompile(`^bridge-(@.+?)(-\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}\.\d{3})?\.log$`)

// Pinger checks that a live bridge actually answers. Used by forced
// consolidation; nil skips the check.
type Pinger func(ctx context.Context, home, session string) error

// ConsolidateResult reports what a consolidation pass did.
type ConsolidateResult struct {
	Sessions       []Record
	Removed        []string
	SocketsSwept   []string
	OrphanLogsGone []string
}

// Consolidate sweeps the registry against reality: expired entries are
// removed along with their socket files, stale sockets of dead bridges are
// unlinked, and orphan log files older than a week are deleted. Dead
// entries are kept so the user can restart them. With force, entries whose
// process is alive but unresponsive to ping are treated as dead.
func (rg *Registry) Consolidate(ctx context.Context, force bool, ping Pinger) (*ConsolidateResult, error) {
	res := &ConsolidateResult{}

	all, err := rg.List()
	if err != nil {
		return nil, err
	}

	keep := make(map[string]bool, len(all))
	for _, r := range all {
		status := r.ComputedStatus()
		if status == StatusLive && force && ping != nil {
			if err := ping(ctx, rg.home, r.Name); err != nil {
				status = StatusDead
			}
		}
		switch status {
		case StatusExpired:
			if err := rg.Delete(r.Name); err != nil {
				return nil, err
			}
			res.Removed = append(res.Removed, r.Name)
			if removeSocket(rg.home, r.Name) {
				res.SocketsSwept = append(res.SocketsSwept, r.Name)
			}
		case StatusDead:
			// Keep the record; the next use restarts the bridge. The
			// socket is stale, so sweep it.
			keep[r.Name] = true
			if removeSocket(rg.home, r.Name) {
				res.SocketsSwept = append(res.SocketsSwept, r.Name)
			}
		default:
			keep[r.Name] = true
		}
	}

	res.OrphanLogsGone = sweepOrphanLogs(paths.LogDir(rg.home), keep, rg.now())

	res.Sessions, err = rg.List()
	if err != nil {
		return nil, err
	}
	return res, nil
}

func removeSocket(home, session string) bool {
	return os.Remove(paths.SocketPath(home, session)) == nil
}

// sweepOrphanLogs unlinks bridge logs whose session is no longer in the
// registry and whose mtime is past the age cutoff.
func sweepOrphanLogs(logDir string, keep map[string]bool, now time.Time) []string {
	entries, err := os.ReadDir(logDir)
	if err != nil {
		return nil
	}

	var removed []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		session := sessionFromLogName(e.Name())
		if session == "" || keep[session] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < orphanLogMaxAge {
			continue
		}
		if os.Remove(filepath.Join(logDir, e.Name())) == nil {
			removed = append(removed, e.Name())
		}
	}
	return removed
}

// sessionFromLogName extracts "@name" from "bridge-@name.log" or a rotated
// variant; empty when the file is not a bridge log.
func sessionFromLogName(name string) string {
	if !strings.HasPrefix(name, "bridge-@") || !strings.HasSuffix(name, ".log") {
		return ""
	}
	m := bridgeLogPattern.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return m[1]
}
