// Package logging provides the rotating file logger used by bridge daemons.
// CLI-side diagnostics go to stderr; bridges write to
// <home>/logs/bridge-<session>.log with size-based rotation.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/hedworth/mcpc/internal/config"
)

const (
	maxSizeMB  = 10
	maxBackups = 5
)

// Logger writes timestamped lines to a rotating log file. Debugf lines are
// suppressed unless verbose is set.
type Logger struct {
	l       *log.Logger
	closer  io.Closer
	verbose bool
}

// NewBridgeLogger opens the rotating log file for a session's bridge. The
// logs directory is created on demand.
func NewBridgeLogger(path string, verbose bool) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB, // megabytes
		MaxBackups: maxBackups,
	}
	return &Logger{
		l:       log.New(lj, "", log.LstdFlags|log.Lmicroseconds),
		closer:  lj,
		verbose: verbose,
	}, nil
}

// NewWriterLogger wraps an arbitrary writer; used by tests and by the CLI
// for stderr diagnostics.
func NewWriterLogger(w io.Writer, verbose bool) *Logger {
	return &Logger{l: log.New(w, "", log.LstdFlags|log.Lmicroseconds), verbose: verbose}
}

// Printf logs unconditionally.
func (lg *Logger) Printf(format string, args ...any) {
	lg.l.Printf(format, args...)
}

// Debugf logs only when verbose logging is enabled.
func (lg *Logger) Debugf(format string, args ...any) {
	if lg.verbose {
		lg.l.Printf("debug: "+format, args...)
	}
}

// Errorf logs with an error prefix.
func (lg *Logger) Errorf(format string, args ...any) {
	lg.l.Printf("error: "+format, args...)
}

// Close flushes and closes the underlying file, if any.
func (lg *Logger) Close() error {
	if lg.closer != nil {
		return lg.closer.Close()
	}
	return nil
}

// FormatHeaders renders a header map for logging with secret values masked.
func FormatHeaders(h map[string]string) string {
	if len(h) == 0 {
		return "{}"
	}
	red := config.RedactHeaders(h)
	parts := make([]string, 0, len(red))
	for k, v := range red {
		parts = append(parts, k+"="+v)
	}
	return "{" + strings.Join(parts, " ") + "}"
}
