// Package oauth manages OAuth profiles for MCP servers: profile metadata in
// profiles.json, client registrations and token sets in the OS keychain, and
// access-token refresh with expiry buffering.
package oauth

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/hedworth/mcpc/internal/errkind"
	"github.com/hedworth/mcpc/internal/keychain"
	"github.com/hedworth/mcpc/internal/store"
)

// DefaultProfileName is used when a command does not name a profile.
const DefaultProfileName = "default"

// AuthTypeOAuth is the only auth type profiles carry today.
const AuthTypeOAuth = "oauth"

// Profile is the non-secret record of an OAuth login against a server.
// Tokens and client credentials live in the keychain.
type Profile struct {
	Name            string    `json:"name"`
	ServerURL       string    `json:"serverUrl"`
	AuthType        string    `json:"authType"`
	OAuthIssuer     string    `json:"oauthIssuer,omitempty"`
	Scopes          []string  `json:"scopes,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	AuthenticatedAt time.Time `json:"authenticatedAt,omitempty"`
	LastRefreshedAt time.Time `json:"lastRefreshedAt,omitempty"`
}

// profilesFile is the on-disk shape: server URL -> profile name -> profile.
type profilesFile struct {
	Profiles map[string]map[string]Profile `json:"profiles"`
}

var emptyProfiles = []byte(`{"profiles":{}}` + "\n")

// ProfileStore reads and writes profiles.json under the file lock.
type ProfileStore struct {
	path string
}

// NewProfileStore returns a store backed by the given profiles.json path.
func NewProfileStore(path string) *ProfileStore {
	return &ProfileStore{path: path}
}

// Get returns the named profile for a server.
func (s *ProfileStore) Get(serverURL, name string) (Profile, error) {
	var out Profile
	found := false
	err := store.WithFileLock(s.path, emptyProfiles, func(data []byte) ([]byte, error) {
		var f profilesFile
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, errkind.Wrap(errkind.Client, err, "parse %s", s.path)
		}
		if p, ok := f.Profiles[serverURL][name]; ok {
			out, found = p, true
		}
		return nil, nil
	})
	if err != nil {
		return Profile{}, err
	}
	if !found {
		return Profile{}, errkind.WithHint(
			errkind.New(errkind.Auth, "no profile %q for %s", name, serverURL),
			"run: mcpc auth set "+serverURL)
	}
	return out, nil
}

// List returns every profile for a server, sorted by name.
func (s *ProfileStore) List(serverURL string) ([]Profile, error) {
	var out []Profile
	err := store.WithFileLock(s.path, emptyProfiles, func(data []byte) ([]byte, error) {
		var f profilesFile
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, errkind.Wrap(errkind.Client, err, "parse %s", s.path)
		}
		for _, p := range f.Profiles[serverURL] {
			out = append(out, p)
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Put creates or replaces a profile.
func (s *ProfileStore) Put(p Profile) error {
	return s.update(func(f *profilesFile) error {
		byName := f.Profiles[p.ServerURL]
		if byName == nil {
			byName = make(map[string]Profile)
			f.Profiles[p.ServerURL] = byName
		}
		byName[p.Name] = p
		return nil
	})
}

// StampRefreshed records a successful token refresh on the profile. Missing
// profiles are ignored; the refresh itself already succeeded.
func (s *ProfileStore) StampRefreshed(serverURL, name string, at time.Time) error {
	return s.update(func(f *profilesFile) error {
		if p, ok := f.Profiles[serverURL][name]; ok {
			p.LastRefreshedAt = at
			f.Profiles[serverURL][name] = p
		}
		return nil
	})
}

// Delete removes a profile and its keychain records.
func (s *ProfileStore) Delete(serverURL, name string) error {
	err := s.update(func(f *profilesFile) error {
		byName := f.Profiles[serverURL]
		if _, ok := byName[name]; !ok {
			return errkind.New(errkind.Client, "no profile %q for %s", name, serverURL)
		}
		delete(byName, name)
		if len(byName) == 0 {
			delete(f.Profiles, serverURL)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := keychain.Delete(keychain.ProfileTokenKey(serverURL, name)); err != nil {
		return err
	}
	return keychain.Delete(keychain.ProfileClientKey(serverURL, name))
}

func (s *ProfileStore) update(fn func(*profilesFile) error) error {
	return store.WithFileLock(s.path, emptyProfiles, func(data []byte) ([]byte, error) {
		var f profilesFile
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, errkind.Wrap(errkind.Client, err, "parse %s", s.path)
		}
		if f.Profiles == nil {
			f.Profiles = make(map[string]map[string]Profile)
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
