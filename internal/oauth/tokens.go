package oauth

import (
	"errors"
	"time"

	"github.com/hedworth/mcpc/internal/errkind"
	"github.com/hedworth/mcpc/internal/keychain"
)

// expiryBuffer treats tokens expiring within the next minute as already
// expired, so a token cannot lapse mid-request.
const expiryBuffer = 60 * time.Second

// ClientInfo is the OAuth client registration for a profile, stored in the
// keychain.
type ClientInfo struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret,omitempty"`
}

// TokenSet is the token material for a profile, stored in the keychain.
type TokenSet struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	TokenType    string    `json:"tokenType,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// IsExpired reports whether the access token is missing, expired, or will
// expire within the buffer. A set with only a refresh token counts as
// expired so the first use triggers a refresh. A zero ExpiresAt on a
// present token means it never expires.
func (t *TokenSet) IsExpired(now time.Time) bool {
	if t.AccessToken == "" {
		return true
	}
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(expiryBuffer).Before(t.ExpiresAt)
}

// LoadTokens reads a profile's token set from the keychain.
func LoadTokens(serverURL, profileName string) (*TokenSet, error) {
	var t TokenSet
	err := keychain.GetJSON(keychain.ProfileTokenKey(serverURL, profileName), &t)
	if err != nil {
		if errors.Is(err, keychain.ErrNotFound) {
			return nil, errkind.WithHint(
				errkind.New(errkind.Auth, "no tokens stored for profile %q on %s", profileName, serverURL),
				"run: mcpc auth set "+serverURL)
		}
		return nil, errkind.Wrap(errkind.Auth, err, "load tokens for %s", serverURL)
	}
	return &t, nil
}

// SaveTokens writes a profile's token set to the keychain.
func SaveTokens(serverURL, profileName string, t *TokenSet) error {
	if err := keychain.SetJSON(keychain.ProfileTokenKey(serverURL, profileName), t); err != nil {
		return errkind.Wrap(errkind.Auth, err, "save tokens for %s", serverURL)
	}
	return nil
}

// LoadClientInfo reads a profile's client registration from the keychain.
func LoadClientInfo(serverURL, profileName string) (*ClientInfo, error) {
	var c ClientInfo
	err := keychain.GetJSON(keychain.ProfileClientKey(serverURL, profileName), &c)
	if err != nil {
		if errors.Is(err, keychain.ErrNotFound) {
			return nil, errkind.WithHint(
				errkind.New(errkind.Auth, "no client registration for profile %q on %s", profileName, serverURL),
				"run: mcpc auth set "+serverURL)
		}
		return nil, errkind.Wrap(errkind.Auth, err, "load client info for %s", serverURL)
	}
	return &c, nil
}

// SaveClientInfo writes a profile's client registration to the keychain.
func SaveClientInfo(serverURL, profileName string, c *ClientInfo) error {
	if err := keychain.SetJSON(keychain.ProfileClientKey(serverURL, profileName), c); err != nil {
		return errkind.Wrap(errkind.Auth, err, "save client info for %s", serverURL)
	}
	return nil
}
