// Package testutil provides common test utilities.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hedworth/mcpc/internal/paths"
)

// SetupHome points MCPC_HOME_DIR at an isolated temp directory for the
// duration of the test. This is critical because:
// - the registry reads/writes <home>/sessions.json
// - profile storage reads/writes <home>/profiles.json
// - bridge sockets and logs land under <home>/bridges and <home>/logs
//
// The directory is removed automatically when the test ends.
func SetupHome(t *testing.T) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv(paths.EnvHomeDir, home)
	return home
}

// WriteSessions writes a sessions.json payload into the isolated home.
func WriteSessions(t *testing.T, home, sessionsJSON string) string {
	t.Helper()

	path := filepath.Join(home, "sessions.json")
	if err := os.WriteFile(path, []byte(sessionsJSON), 0o600); err != nil {
		t.Fatalf("write test sessions file: %v", err)
	}
	return path
}
