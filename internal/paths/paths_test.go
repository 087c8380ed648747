package paths

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateSessionName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"@work", true},
		{"@a", true},
		{"@" + strings.Repeat("x", 64), true},
		{"@my-session_2", true},
		{"work", false},
		{"@", false},
		{"@" + strings.Repeat("x", 65), false},
		{"@bad name", false},
		{"@bad/name", false},
		{"@bad.name", false},
		{"", false},
	}

	for _, tt := range tests {
		err := ValidateSessionName(tt.name)
		if tt.valid && err != nil {
			t.Errorf("ValidateSessionName(%q): unexpected error %v", tt.name, err)
		}
		if !tt.valid && err == nil {
			t.Errorf("ValidateSessionName(%q): expected error", tt.name)
		}
	}
}

func TestValidateProfileName(t *testing.T) {
	for _, valid := range []string{"default", "work-1", strings.Repeat("p", 64)} {
		if err := ValidateProfileName(valid); err != nil {
			t.Errorf("ValidateProfileName(%q): unexpected error %v", valid, err)
		}
	}
	for _, invalid := range []string{"", "@p", "has space", strings.Repeat("p", 65)} {
		if err := ValidateProfileName(invalid); err == nil {
			t.Errorf("ValidateProfileName(%q): expected error", invalid)
		}
	}
}

func TestHomeOverride(t *testing.T) {
	t.Setenv(EnvHomeDir, "/tmp/custom-mcpc")
	home, err := Home()
	if err != nil {
		t.Fatalf("Home: %v", err)
	}
	if home != "/tmp/custom-mcpc" {
		t.Errorf("Home = %q, want /tmp/custom-mcpc", home)
	}
}

func TestSocketPathDerivation(t *testing.T) {
	got := SocketPath("/home/u/.mcpc", "@work")
	want := filepath.Join("/home/u/.mcpc", "bridges", "@work.sock")
	if got != want {
		t.Errorf("SocketPath = %q, want %q", got, want)
	}
}

func TestPipeNameScopedByHome(t *testing.T) {
	a := PipeName("/home/a/.mcpc", "@work")
	b := PipeName("/home/b/.mcpc", "@work")
	if a == b {
		t.Errorf("pipe names for different homes should differ: %q", a)
	}
	if !strings.HasPrefix(a, `\\.\pipe\mcpc-`) || !strings.HasSuffix(a, "-@work") {
		t.Errorf("unexpected pipe name shape: %q", a)
	}
	// hash8 is 8 hex chars
	mid := strings.TrimSuffix(strings.TrimPrefix(a, `\\.\pipe\mcpc-`), "-@work")
	if len(mid) != 8 {
		t.Errorf("expected 8-char hash, got %q", mid)
	}
}

func TestTruthy(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", "Yes", " yes "} {
		if !Truthy(v) {
			t.Errorf("Truthy(%q) = false, want true", v)
		}
	}
	for _, v := range []string{"", "0", "no", "false", "on"} {
		if Truthy(v) {
			t.Errorf("Truthy(%q) = true, want false", v)
		}
	}
}
