package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBridgeLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bridge-@work.log")

	lg, err := NewBridgeLogger(path, false)
	if err != nil {
		t.Fatalf("NewBridgeLogger: %v", err)
	}
	lg.Printf("bridge started for %s", "@work")
	if err := lg.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "bridge started for @work") {
		t.Errorf("log content = %q", data)
	}
}

func TestDebugfGatedByVerbose(t *testing.T) {
	var quiet, chatty bytes.Buffer

	NewWriterLogger(&quiet, false).Debugf("hidden %d", 1)
	NewWriterLogger(&chatty, true).Debugf("shown %d", 2)

	if quiet.Len() != 0 {
		t.Errorf("non-verbose logger wrote debug line: %q", quiet.String())
	}
	if !strings.Contains(chatty.String(), "debug: shown 2") {
		t.Errorf("verbose logger output = %q", chatty.String())
	}
}

func TestFormatHeadersMasksSecrets(t *testing.T) {
	out := FormatHeaders(map[string]string{"Authorization": "Bearer tok"})
	if strings.Contains(out, "tok") {
		t.Errorf("secret leaked into log rendering: %q", out)
	}
	if !strings.Contains(out, "Authorization=<redacted>") {
		t.Errorf("FormatHeaders = %q", out)
	}

	if got := FormatHeaders(nil); got != "{}" {
		t.Errorf("FormatHeaders(nil) = %q", got)
	}
}
