package registry

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hedworth/mcpc/internal/config"
	"github.com/hedworth/mcpc/internal/errkind"
	"github.com/hedworth/mcpc/internal/paths"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return New(t.TempDir())
}

func httpRecord(name string) Record {
	return Record{
		Name:   name,
		Server: config.ServerConfig{URL: "https://srv.example"},
	}
}

func TestPutGetDelete(t *testing.T) {
	rg := newTestRegistry(t)

	if err := rg.Put(httpRecord("@work")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := rg.Get("@work")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusActive || got.CreatedAt.IsZero() || got.LastSeenAt.IsZero() {
		t.Errorf("record = %+v", got)
	}

	if err := rg.Delete("@work"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := rg.Get("@work"); !errkind.Is(err, errkind.Client) {
		t.Errorf("Get after delete: %v", err)
	}

	// Deleting again is fine.
	if err := rg.Delete("@work"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestPutRedactsSensitiveHeaders(t *testing.T) {
	rg := newTestRegistry(t)

	rec := httpRecord("@work")
	rec.Server.Headers = map[string]string{"Authorization": "Bearer secret"}
	if err := rg.Put(rec); err != nil {
		t.Fatal(err)
	}

	// The secret must not appear anywhere in the file.
	data, err := os.ReadFile(paths.SessionsFile(rg.Home()))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "Bearer secret") {
		t.Errorf("sessions.json contains secret: %s", data)
	}

	got, _ := rg.Get("@work")
	if got.Server.Headers["Authorization"] != config.RedactedValue {
		t.Errorf("stored header = %q", got.Server.Headers["Authorization"])
	}
}

func TestSetPIDAndComputedStatus(t *testing.T) {
	rg := newTestRegistry(t)
	if err := rg.Put(httpRecord("@s")); err != nil {
		t.Fatal(err)
	}

	// Our own pid is definitely alive.
	if err := rg.SetPID("@s", os.Getpid()); err != nil {
		t.Fatalf("SetPID: %v", err)
	}
	got, _ := rg.Get("@s")
	if got.ComputedStatus() != StatusLive {
		t.Errorf("status = %q, want live", got.ComputedStatus())
	}

	// A pid that cannot exist reads as dead.
	if err := rg.SetPID("@s", 1<<30); err != nil {
		t.Fatal(err)
	}
	got, _ = rg.Get("@s")
	if got.ComputedStatus() != StatusDead {
		t.Errorf("status = %q, want dead", got.ComputedStatus())
	}

	if err := rg.MarkExpired("@s"); err != nil {
		t.Fatalf("MarkExpired: %v", err)
	}
	got, _ = rg.Get("@s")
	if got.ComputedStatus() != StatusExpired || got.PID != 0 {
		t.Errorf("record = %+v", got)
	}
}

func TestMutateMissingSession(t *testing.T) {
	rg := newTestRegistry(t)
	if err := rg.SetPID("@ghost", 1); !errkind.Is(err, errkind.Client) {
		t.Errorf("SetPID on missing session: %v", err)
	}
}

func TestConsolidate_RemovesExpiredAndSweepsSocket(t *testing.T) {
	rg := newTestRegistry(t)
	if err := rg.Put(httpRecord("@gone")); err != nil {
		t.Fatal(err)
	}
	if err := rg.MarkExpired("@gone"); err != nil {
		t.Fatal(err)
	}

	sock := paths.SocketPath(rg.Home(), "@gone")
	if err := os.MkdirAll(filepath.Dir(sock), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(sock, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	res, err := rg.Consolidate(context.Background(), false, nil)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if len(res.Removed) != 1 || res.Removed[0] != "@gone" {
		t.Errorf("Removed = %v", res.Removed)
	}
	if _, err := os.Stat(sock); !os.IsNotExist(err) {
		t.Error("socket not swept")
	}
	if len(res.Sessions) != 0 {
		t.Errorf("sessions left: %+v", res.Sessions)
	}
}

func TestConsolidate_KeepsDeadEntries(t *testing.T) {
	rg := newTestRegistry(t)
	if err := rg.Put(httpRecord("@dead")); err != nil {
		t.Fatal(err)
	}
	if err := rg.SetPID("@dead", 1<<30); err != nil {
		t.Fatal(err)
	}

	res, err := rg.Consolidate(context.Background(), false, nil)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if len(res.Removed) != 0 {
		t.Errorf("Removed = %v", res.Removed)
	}
	if len(res.Sessions) != 1 || res.Sessions[0].Name != "@dead" {
		t.Errorf("sessions = %+v", res.Sessions)
	}
}

func TestConsolidate_OrphanLogSweep(t *testing.T) {
	rg := newTestRegistry(t)
	logDir := paths.LogDir(rg.Home())
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		t.Fatal(err)
	}

	old := filepath.Join(logDir, "bridge-@gone.log")
	recent := filepath.Join(logDir, "bridge-@new.log")
	for _, p := range []string{old, recent} {
		if err := os.WriteFile(p, []byte("log"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	tenDaysAgo := time.Now().Add(-10 * 24 * time.Hour)
	if err := os.Chtimes(old, tenDaysAgo, tenDaysAgo); err != nil {
		t.Fatal(err)
	}

	res, err := rg.Consolidate(context.Background(), false, nil)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if len(res.OrphanLogsGone) != 1 || res.OrphanLogsGone[0] != "bridge-@gone.log" {
		t.Errorf("OrphanLogsGone = %v", res.OrphanLogsGone)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("old orphan log still present")
	}
	if _, err := os.Stat(recent); err != nil {
		t.Error("recent orphan log was removed")
	}
}

func TestConsolidate_LogOfLiveSessionKept(t *testing.T) {
	rg := newTestRegistry(t)
	if err := rg.Put(httpRecord("@live")); err != nil {
		t.Fatal(err)
	}
	if err := rg.SetPID("@live", os.Getpid()); err != nil {
		t.Fatal(err)
	}

	logDir := paths.LogDir(rg.Home())
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		t.Fatal(err)
	}
	logPath := filepath.Join(logDir, "bridge-@live.log")
	if err := os.WriteFile(logPath, []byte("log"), 0o600); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-30 * 24 * time.Hour)
	if err := os.Chtimes(logPath, old, old); err != nil {
		t.Fatal(err)
	}

	if _, err := rg.Consolidate(context.Background(), false, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(logPath); err != nil {
		t.Error("live session's log was removed")
	}
}

func TestConsolidate_ForcePingDemotesUnresponsive(t *testing.T) {
	rg := newTestRegistry(t)
	if err := rg.Put(httpRecord("@stuck")); err != nil {
		t.Fatal(err)
	}
	if err := rg.SetPID("@stuck", os.Getpid()); err != nil {
		t.Fatal(err)
	}

	failPing := func(ctx context.Context, home, session string) error {
		return errkind.New(errkind.Transport, "no answer")
	}
	res, err := rg.Consolidate(context.Background(), true, failPing)
	if err != nil {
		t.Fatal(err)
	}
	// Demoted to dead: kept, but its socket would be swept.
	if len(res.Sessions) != 1 {
		t.Errorf("sessions = %+v", res.Sessions)
	}
}

func TestSessionFromLogName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"bridge-@work.log", "@work"},
		{"bridge-@work-2026-01-02T15-04-05.000.log", "@work"},
		{"bridge-work.log", ""},
		{"other.log", ""},
		{"bridge-@work.txt", ""},
	}
	for _, tt := range tests {
		if got := sessionFromLogName(tt.in); got != tt.want {
			t.Errorf("sessionFromLogName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
