package oauth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hedworth/mcpc/internal/errkind"
)

const tokenRequestTimeout = 30 * time.Second

// tokenResponse is the token endpoint's JSON payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// TokenManager hands out valid access tokens for one server/profile pair,
// refreshing through the server's token endpoint when the stored token is
// expired. Concurrent callers share a single refresh.
type TokenManager struct {
	serverURL   string
	profileName string

	// onRefresh is called with the new token set after a successful refresh
	// has been persisted.
	onRefresh func(*TokenSet)

	now   func() time.Time
	group singleflight.Group

	// tokenEndpoint, when set, skips discovery. Tests use this.
	tokenEndpoint string
}

// NewTokenManager returns a manager for the given server and profile.
// onRefresh may be nil.
func NewTokenManager(serverURL, profileName string, onRefresh func(*TokenSet)) *TokenManager {
	return &TokenManager{
		serverURL:   serverURL,
		profileName: profileName,
		onRefresh:   onRefresh,
		now:         time.Now,
	}
}

// GetValidAccessToken returns an access token that is good for at least the
// expiry buffer. It refreshes at most once regardless of how many callers
// arrive at the same time.
func (m *TokenManager) GetValidAccessToken(ctx context.Context) (string, error) {
	tokens, err := LoadTokens(m.serverURL, m.profileName)
	if err != nil {
		return "", err
	}
	if !tokens.IsExpired(m.now()) {
		return tokens.AccessToken, nil
	}

	v, err, _ := m.group.Do("refresh", func() (any, error) {
		// Re-read under the flight: another process may have refreshed
		// while we waited.
		current, err := LoadTokens(m.serverURL, m.profileName)
		if err != nil {
			return nil, err
		}
		if !current.IsExpired(m.now()) {
			return current.AccessToken, nil
		}
		refreshed, err := m.refresh(ctx, current)
		if err != nil {
			return nil, err
		}
		return refreshed.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Refresh forces a token refresh regardless of expiry.
func (m *TokenManager) Refresh(ctx context.Context) (*TokenSet, error) {
	tokens, err := LoadTokens(m.serverURL, m.profileName)
	if err != nil {
		return nil, err
	}
	return m.refresh(ctx, tokens)
}

func (m *TokenManager) refresh(ctx context.Context, tokens *TokenSet) (*TokenSet, error) {
	if tokens.RefreshToken == "" {
		return nil, errkind.WithHint(
			errkind.New(errkind.Auth, "access token for %s expired and no refresh token is stored", m.serverURL),
			"run: mcpc auth set "+m.serverURL+" --profile "+m.profileName)
	}

	client, err := LoadClientInfo(m.serverURL, m.profileName)
	if err != nil {
		return nil, err
	}

	endpoint := m.tokenEndpoint
	if endpoint == "" {
		meta, err := Discover(ctx, m.serverURL)
		if err != nil {
			return nil, err
		}
		endpoint = meta.TokenEndpoint
	}

	params := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {tokens.RefreshToken},
	}
	resp, err := postTokenRequest(ctx, endpoint, params, client)
	if err != nil {
		return nil, m.classifyRefreshError(err)
	}

	next := &TokenSet{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		Scope:        resp.Scope,
	}
	// Servers that rotate refresh tokens return a new one; keep the old
	// token when they do not.
	if next.RefreshToken == "" {
		next.RefreshToken = tokens.RefreshToken
	}
	expiresIn := resp.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	next.ExpiresAt = m.now().Add(time.Duration(expiresIn) * time.Second)

	if err := SaveTokens(m.serverURL, m.profileName, next); err != nil {
		return nil, err
	}
	if m.onRefresh != nil {
		m.onRefresh(next)
	}
	return next, nil
}

func (m *TokenManager) classifyRefreshError(err error) error {
	if errkind.Is(err, errkind.Auth) {
		return errkind.WithHint(err, "run: mcpc auth set "+m.serverURL+" --profile "+m.profileName)
	}
	return err
}

// postTokenRequest POSTs a form to the token endpoint with client
// authentication. Status 400/401 means the grant was rejected; anything
// else non-2xx is a transport problem.
func postTokenRequest(ctx context.Context, endpoint string, params url.Values, client *ClientInfo) (*tokenResponse, error) {
	params.Set("client_id", client.ClientID)
	if client.ClientSecret != "" {
		params.Set("client_secret", client.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, errkind.Wrap(errkind.Client, err, "build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("MCP-Protocol-Version", mcpProtocolVersion)

	httpClient := &http.Client{Timeout: tokenRequestTimeout}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, errkind.Wrap(errkind.Transport, err, "token request to %s", endpoint)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, metadataBodyLimit))
	if err != nil {
		return nil, errkind.Wrap(errkind.Transport, err, "read token response")
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		return nil, errkind.New(errkind.Auth, "token endpoint rejected the request: HTTP %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	default:
		return nil, errkind.New(errkind.Transport, "token endpoint returned HTTP %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, errkind.Wrap(errkind.Transport, err, "parse token response")
	}
	if tr.AccessToken == "" {
		return nil, errkind.New(errkind.Transport, "token response missing access_token")
	}
	return &tr, nil
}
