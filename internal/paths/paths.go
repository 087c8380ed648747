// Package paths locates the mcpc home directory and derives the per-session
// socket, pipe, and log paths from it.
package paths

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hedworth/mcpc/internal/errkind"
)

const (
	// EnvHomeDir overrides the default ~/.mcpc root.
	EnvHomeDir = "MCPC_HOME_DIR"
	// EnvVerbose enables verbose output when set to a truthy string.
	EnvVerbose = "MCPC_VERBOSE"
	// EnvJSON enables JSON output when set to a truthy string.
	EnvJSON = "MCPC_JSON"
)

var (
	sessionNameRe = regexp.MustCompile(`^@[A-Za-z0-9_-]{1,64}$`)
	profileNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

// Home returns the mcpc root directory, honoring MCPC_HOME_DIR.
func Home() (string, error) {
	if dir := os.Getenv(EnvHomeDir); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".mcpc"), nil
}

// SessionsFile returns the path of the session registry file.
func SessionsFile(home string) string { return filepath.Join(home, "sessions.json") }

// ProfilesFile returns the path of the OAuth profile file.
func ProfilesFile(home string) string { return filepath.Join(home, "profiles.json") }

// HistoryFile returns the path of the shell history file.
func HistoryFile(home string) string { return filepath.Join(home, "history") }

// BridgeDir returns the directory holding per-session sockets.
func BridgeDir(home string) string { return filepath.Join(home, "bridges") }

// LogDir returns the directory holding per-session bridge logs.
func LogDir(home string) string { return filepath.Join(home, "logs") }

// SocketPath returns the Unix socket path for a session. The path is derived
// from the session name alone; it is never stored in the registry.
func SocketPath(home, session string) string {
	return filepath.Join(BridgeDir(home), session+".sock")
}

// PipeName returns the Windows named-pipe name for a session. Pipes are
// global on Windows, so the name is scoped by a hash of the home directory.
func PipeName(home, session string) string {
	return `\\.\pipe\mcpc-` + homeHash(home) + "-" + session
}

// LogPath returns the bridge log path for a session.
func LogPath(home, session string) string {
	return filepath.Join(LogDir(home), "bridge-"+session+".log")
}

// homeHash returns the first 8 hex chars of SHA-256 of the home dir path.
func homeHash(home string) string {
	sum := sha256.Sum256([]byte(home))
	return hex.EncodeToString(sum[:])[:8]
}

// ValidateSessionName checks a session name (`@` plus 1-64 word chars).
// Invalid names are rejected before any side effect.
func ValidateSessionName(name string) error {
	if !sessionNameRe.MatchString(name) {
		return errkind.New(errkind.Client,
			"invalid session name %q: must match @[A-Za-z0-9_-]{1,64}", name)
	}
	return nil
}

// ValidateProfileName checks an OAuth profile name (1-64 word chars).
func ValidateProfileName(name string) error {
	if !profileNameRe.MatchString(name) {
		return errkind.New(errkind.Client,
			"invalid profile name %q: must match [A-Za-z0-9_-]{1,64}", name)
	}
	return nil
}

// Truthy reports whether an environment value means "on".
func Truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// Verbose reports whether MCPC_VERBOSE is set.
func Verbose() bool { return Truthy(os.Getenv(EnvVerbose)) }

// JSONOutput reports whether MCPC_JSON is set.
func JSONOutput() bool { return Truthy(os.Getenv(EnvJSON)) }
