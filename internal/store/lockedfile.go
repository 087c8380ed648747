// Package store provides atomic, file-locked read/modify/write access to
// the JSON files under the mcpc home directory.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/hedworth/mcpc/internal/errkind"
)

// ErrBusy is returned when the advisory lock cannot be acquired within the
// retry budget. Callers should surface it rather than block forever.
var ErrBusy = errors.New("store: file is locked by another process")

// Lock acquisition retry schedule. Overridable in tests.
var (
	lockRetries      = 5
	lockInitialDelay = 100 * time.Millisecond
	lockMaxDelay     = 5 * time.Second
)

// WithFileLock runs fn with an exclusive advisory lock held on path.
//
// The file is seeded with defaultContent if it does not exist. fn receives
// the current content and returns the content to write back, or nil to skip
// the write. Writes go to a temp file in the same directory and are renamed
// into place, so a crash mid-write leaves the prior file intact.
func WithFileLock(path string, defaultContent []byte, fn func(data []byte) ([]byte, error)) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	// Seed the file so the lock has something stable to attach to.
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeAtomic(path, defaultContent); err != nil {
			return fmt.Errorf("seed %s: %w", filepath.Base(path), err)
		}
	} else if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	// The lock lives in a sibling file: the data file itself is replaced by
	// rename on every write, which would silently drop a lock on its inode.
	fl := flock.New(path + ".lock")
	if err := acquire(fl); err != nil {
		return err
	}
	defer func() { _ = fl.Unlock() }()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	out, err := fn(data)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := writeAtomic(path, out); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// acquire tries the lock with exponential backoff: 5 retries starting at
// 100ms, capped at 5s.
func acquire(fl *flock.Flock) error {
	delay := lockInitialDelay
	for attempt := 0; ; attempt++ {
		ok, err := fl.TryLock()
		if err != nil {
			return fmt.Errorf("acquire lock %s: %w", fl.Path(), err)
		}
		if ok {
			return nil
		}
		if attempt >= lockRetries {
			return errkind.Wrap(errkind.Client, ErrBusy, "lock %s", fl.Path())
		}
		time.Sleep(delay)
		delay *= 2
		if delay > lockMaxDelay {
			delay = lockMaxDelay
		}
	}
}

// writeAtomic writes data via a temp file + rename in the target directory.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// Read returns the current content of path under the shared default,
// seeding it if absent. It takes the lock to avoid observing a writer.
func Read(path string, defaultContent []byte) ([]byte, error) {
	var out []byte
	err := WithFileLock(path, defaultContent, func(data []byte) ([]byte, error) {
		out = append([]byte(nil), data...)
		return nil, nil
	})
	return out, err
}
