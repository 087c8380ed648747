package bridge

import (
	"net/http"
	"sync"
	"time"

	"github.com/hedworth/mcpc/internal/oauth"
)

// AuthCoordinator owns the bridge's credential state: static headers from
// the handshake and, when a profile is bound, OAuth access tokens kept
// fresh by the token manager. It is safe for concurrent use by every
// in-flight upstream request.
type AuthCoordinator struct {
	serverURL   string
	profileName string
	manager     *oauth.TokenManager

	mu      sync.RWMutex
	headers map[string]string

	// tokenOverride, when set via a set-auth-credentials frame, is used
	// instead of the keychain until the next refresh.
	tokenOverride string
}

// NewAuthCoordinator builds the coordinator for a bridge. profileName may
// be empty for header-only or unauthenticated servers. When a profile is
// bound, stored credentials must exist; the bridge refuses to start
// otherwise so the failure surfaces at connect time, not mid-call.
func NewAuthCoordinator(serverURL, profileName string, headers map[string]string, profiles *oauth.ProfileStore) (*AuthCoordinator, error) {
	a := &AuthCoordinator{
		serverURL:   serverURL,
		profileName: profileName,
		headers:     headers,
	}
	if profileName != "" {
		if _, err := oauth.LoadClientInfo(serverURL, profileName); err != nil {
			return nil, err
		}
		if _, err := oauth.LoadTokens(serverURL, profileName); err != nil {
			return nil, err
		}
		a.manager = oauth.NewTokenManager(serverURL, profileName, func(t *oauth.TokenSet) {
			a.mu.Lock()
			a.tokenOverride = ""
			a.mu.Unlock()
			if profiles != nil {
				profiles.StampRefreshed(serverURL, profileName, time.Now())
			}
		})
	}
	return a, nil
}

// HasOAuth reports whether the coordinator manages OAuth tokens.
func (a *AuthCoordinator) HasOAuth() bool { return a.manager != nil }

// UpdateCredentials replaces the header set and/or injects an access token
// pushed over IPC, without restarting the bridge.
func (a *AuthCoordinator) UpdateCredentials(headers map[string]string, accessToken string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if headers != nil {
		a.headers = headers
	}
	if accessToken != "" {
		a.tokenOverride = accessToken
	}
}

// RoundTripper wraps base with header and bearer-token injection. base may
// be nil for http.DefaultTransport.
func (a *AuthCoordinator) RoundTripper(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &authTransport{auth: a, base: base}
}

type authTransport struct {
	auth *AuthCoordinator
	base http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())

	t.auth.mu.RLock()
	for k, v := range t.auth.headers {
		out.Header.Set(k, v)
	}
	override := t.auth.tokenOverride
	t.auth.mu.RUnlock()

	if t.auth.manager != nil {
		token := override
		if token == "" {
			var err error
			token, err = t.auth.manager.GetValidAccessToken(req.Context())
			if err != nil {
				return nil, err
			}
		}
		out.Header.Set("Authorization", "Bearer "+token)
	}
	return t.base.RoundTrip(out)
}
