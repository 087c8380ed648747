// Package registry persists the named-session table in sessions.json and
// answers liveness questions about the bridge processes behind it.
package registry

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/hedworth/mcpc/internal/config"
	"github.com/hedworth/mcpc/internal/errkind"
	"github.com/hedworth/mcpc/internal/paths"
	"github.com/hedworth/mcpc/internal/store"
)

// Stored status values. "active" means the bridge was running when last
// seen; "expired" means its upstream credentials or connection went bad and
// the bridge exited on purpose.
const (
	StatusActive  = "active"
	StatusExpired = "expired"
)

// Computed status values returned by Status: a stored "active" entry whose
// process is gone reports as dead.
const (
	StatusLive = "live"
	StatusDead = "dead"
)

// Record is one named session.
type Record struct {
	Name        string              `json:"name"`
	Server      config.ServerConfig `json:"server"`
	ProfileName string              `json:"profileName,omitempty"`
	PID         int                 `json:"pid,omitempty"`
	Status      string              `json:"status"`
	CreatedAt   time.Time           `json:"createdAt"`
	LastSeenAt  time.Time           `json:"lastSeenAt"`
}

// ComputedStatus resolves the stored status against process liveness.
func (r *Record) ComputedStatus() string {
	if r.Status == StatusExpired {
		return StatusExpired
	}
	if r.PID > 0 && IsProcessAlive(r.PID) {
		return StatusLive
	}
	return StatusDead
}

type sessionsFile struct {
	Sessions map[string]Record `json:"sessions"`
}

var emptySessions = []byte(`{"sessions":{}}` + "\n")

// Registry reads and writes sessions.json under the file lock.
type Registry struct {
	home string
	now  func() time.Time
}

// New returns a registry rooted at the given mcpc home directory.
func New(home string) *Registry {
	return &Registry{home: home, now: time.Now}
}

// Home returns the mcpc home directory the registry is rooted at.
func (rg *Registry) Home() string { return rg.home }

func (rg *Registry) path() string { return paths.SessionsFile(rg.home) }

// Get returns the record for a session name.
func (rg *Registry) Get(name string) (Record, error) {
	var out Record
	found := false
	err := rg.read(func(f *sessionsFile) {
		if r, ok := f.Sessions[name]; ok {
			out, found = r, true
		}
	})
	if err != nil {
		return Record{}, err
	}
	if !found {
		return Record{}, errkind.WithHint(
			errkind.New(errkind.Client, "no session named %s", name),
			"list sessions with: mcpc sessions")
	}
	return out, nil
}

// List returns every record, sorted by name.
func (rg *Registry) List() ([]Record, error) {
	var out []Record
	err := rg.read(func(f *sessionsFile) {
		for _, r := range f.Sessions {
			out = append(out, r)
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Put creates or replaces a record. The server config is stored redacted;
// real header values belong in the keychain.
func (rg *Registry) Put(r Record) error {
	r.Server = r.Server.Redacted()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = rg.now()
	}
	r.LastSeenAt = rg.now()
	if r.Status == "" {
		r.Status = StatusActive
	}
	return rg.update(func(f *sessionsFile) error {
		f.Sessions[r.Name] = r
		return nil
	})
}

// Delete removes a record. Deleting a missing record is not an error.
func (rg *Registry) Delete(name string) error {
	return rg.update(func(f *sessionsFile) error {
		delete(f.Sessions, name)
		return nil
	})
}

// SetPID records the bridge process id for a session and marks it active.
func (rg *Registry) SetPID(name string, pid int) error {
	return rg.mutate(name, func(r *Record) {
		r.PID = pid
		r.Status = StatusActive
	})
}

// Touch bumps a session's last-seen time.
func (rg *Registry) Touch(name string) error {
	return rg.mutate(name, func(r *Record) {})
}

// MarkExpired flags a session whose upstream is permanently gone. The
// record is kept so the user can see what happened and reconnect.
func (rg *Registry) MarkExpired(name string) error {
	return rg.mutate(name, func(r *Record) {
		r.Status = StatusExpired
		r.PID = 0
	})
}

func (rg *Registry) mutate(name string, fn func(*Record)) error {
	return rg.update(func(f *sessionsFile) error {
		r, ok := f.Sessions[name]
		if !ok {
			return errkind.New(errkind.Client, "no session named %s", name)
		}
		fn(&r)
		r.LastSeenAt = rg.now()
		f.Sessions[name] = r
		return nil
	})
}

func (rg *Registry) read(fn func(*sessionsFile)) error {
	return store.WithFileLock(rg.path(), emptySessions, func(data []byte) ([]byte, error) {
		var f sessionsFile
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, errkind.Wrap(errkind.Client, err, "parse %s", rg.path())
		}
		fn(&f)
		return nil, nil
	})
}

func (rg *Registry) update(fn func(*sessionsFile) error) error {
	return store.WithFileLock(rg.path(), emptySessions, func(data []byte) ([]byte, error) {
		var f sessionsFile
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, errkind.Wrap(errkind.Client, err, "parse %s", rg.path())
		}
		if f.Sessions == nil {
			f.Sessions = make(map[string]Record)
		}
		if err := fn(&f); err != nil {
			return nil, err
		}
		out, err := json.MarshalIndent(&f, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(out, '\n'), nil
	})
}
