// Package keychain stores named secrets in the OS keychain (Secret Service,
// macOS Keychain, Windows Credential Manager) under the mcpc service name.
// It is the single source of truth for secrets: nothing stored here is ever
// written to a file under the mcpc home directory.
package keychain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// service is the service name used in the system keychain.
const service = "mcpc"

// ErrNotFound is returned when no secret exists under a key.
var ErrNotFound = errors.New("keychain: secret not found")

// Set stores a secret under key.
func Set(key, value string) error {
	if err := keyring.Set(service, key, value); err != nil {
		return fmt.Errorf("keychain set %s: %w", key, err)
	}
	return nil
}

// Get retrieves the secret stored under key.
func Get(key string) (string, error) {
	v, err := keyring.Get(service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("keychain get %s: %w", key, err)
	}
	return v, nil
}

// Delete removes the secret stored under key. Deleting a missing key is
// not an error.
func Delete(key string) error {
	if err := keyring.Delete(service, key); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("keychain delete %s: %w", key, err)
	}
	return nil
}

// SetJSON marshals v and stores it under key.
func SetJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal secret %s: %w", key, err)
	}
	return Set(key, string(data))
}

// GetJSON retrieves the secret under key and unmarshals it into v.
func GetJSON(key string, v any) error {
	data, err := Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("parse secret %s: %w", key, err)
	}
	return nil
}

// ProfileClientKey returns the key holding OAuth client info for a profile.
func ProfileClientKey(serverURL, profileName string) string {
	return "profile:" + serverURL + ":" + profileName + ":client"
}

// ProfileTokenKey returns the key holding OAuth tokens for a profile.
func ProfileTokenKey(serverURL, profileName string) string {
	return "profile:" + serverURL + ":" + profileName + ":tokens"
}

// SessionHeadersKey returns the key holding the real (unredacted) header
// values for a session.
func SessionHeadersKey(sessionName string) string {
	return "session:" + sessionName + ":headers"
}
