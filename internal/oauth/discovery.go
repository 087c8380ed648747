package oauth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hedworth/mcpc/internal/errkind"
)

const (
	discoveryTimeout = 5 * time.Second

	// mcpProtocolVersion is sent on discovery and token requests.
	mcpProtocolVersion = "2024-11-05"

	metadataBodyLimit = 1 << 20
)

// ServerMetadata is the subset of RFC 8414 / OpenID Connect discovery
// metadata the client needs.
type ServerMetadata struct {
	Issuer                   string   `json:"issuer"`
	AuthorizationEndpoint    string   `json:"authorization_endpoint"`
	TokenEndpoint            string   `json:"token_endpoint"`
	RegistrationEndpoint     string   `json:"registration_endpoint,omitempty"`
	ScopesSupported          []string `json:"scopes_supported,omitempty"`
	CodeChallengeMethods     []string `json:"code_challenge_methods_supported,omitempty"`
	TokenEndpointAuthMethods []string `json:"token_endpoint_auth_methods_supported,omitempty"`
}

// Discover fetches authorization server metadata for an MCP server URL. It
// tries the OAuth well-known paths first (including the path-aware variants
// from the MCP authorization spec), then falls back to OpenID Connect
// discovery.
func Discover(ctx context.Context, serverURL string) (*ServerMetadata, error) {
	parsed, err := url.Parse(serverURL)
	if err != nil {
		return nil, errkind.Wrap(errkind.Client, err, "parse server url")
	}

	client := &http.Client{Timeout: discoveryTimeout}

	var lastErr error
	for _, candidate := range discoveryURLs(parsed) {
		meta, err := fetchMetadata(ctx, client, candidate)
		if err != nil {
			lastErr = err
			continue
		}
		return meta, nil
	}
	// No token endpoint means no way to refresh: an auth failure, not a
	// transport one, so the session client does not restart-and-retry it.
	return nil, errkind.WithHint(
		errkind.Wrap(errkind.Auth, lastErr, "oauth discovery for %s", serverURL),
		"run: mcpc auth set "+serverURL)
}

func discoveryURLs(serverURL *url.URL) []string {
	base := serverURL.Scheme + "://" + serverURL.Host
	path := strings.TrimSuffix(serverURL.Path, "/")

	var urls []string
	if path != "" {
		urls = append(urls,
			base+"/.well-known/oauth-authorization-server"+path,
			base+path+"/.well-known/oauth-authorization-server",
		)
	}
	urls = append(urls,
		base+"/.well-known/oauth-authorization-server",
		base+"/.well-known/openid-configuration",
	)
	return urls
}

func fetchMetadata(ctx context.Context, client *http.Client, metadataURL string) (*ServerMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return nil, errkind.Wrap(errkind.Client, err, "build discovery request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("MCP-Protocol-Version", mcpProtocolVersion)

	resp, err := client.Do(req)
	if err != nil {
		return nil, errkind.Wrap(errkind.Transport, err, "fetch %s", metadataURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errkind.New(errkind.Transport, "fetch %s: HTTP %d", metadataURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, metadataBodyLimit))
	if err != nil {
		return nil, errkind.Wrap(errkind.Transport, err, "read %s", metadataURL)
	}

	var meta ServerMetadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, errkind.Wrap(errkind.Transport, err, "parse metadata from %s", metadataURL)
	}
	if meta.TokenEndpoint == "" {
		return nil, errkind.New(errkind.Transport, "metadata from %s missing token_endpoint", metadataURL)
	}
	return &meta, nil
}
