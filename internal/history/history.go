// Package history records executed commands in a plain-text file under the
// mcpc home directory, keeping only the most recent entries.
package history

import (
	"strings"

	"github.com/hedworth/mcpc/internal/paths"
	"github.com/hedworth/mcpc/internal/store"
)

// MaxEntries is the number of history lines retained after trimming.
const MaxEntries = 1000

// Append records one command line. Empty and whitespace-only lines are
// ignored. The file is trimmed to MaxEntries on every append.
func Append(home, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	return store.WithFileLock(paths.HistoryFile(home), nil, func(data []byte) ([]byte, error) {
		lines := append(splitLines(data), line)
		if len(lines) > MaxEntries {
			lines = lines[len(lines)-MaxEntries:]
		}
		return []byte(strings.Join(lines, "\n") + "\n"), nil
	})
}

// Load returns the recorded history, oldest first.
func Load(home string) ([]string, error) {
	data, err := store.Read(paths.HistoryFile(home), nil)
	if err != nil {
		return nil, err
	}
	return splitLines(data), nil
}

func splitLines(data []byte) []string {
	var lines []string
	for _, l := range strings.Split(string(data), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
