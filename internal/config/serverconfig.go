// Package config defines the server configuration handed to the transport
// factory, plus the validation and redaction rules applied at the boundary.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/hedworth/mcpc/internal/errkind"
)

// RedactedValue replaces sensitive header values in anything written to disk
// or logged. Real values live in the keychain.
const RedactedValue = "<redacted>"

// DefaultTimeoutSeconds applies when an HTTP server config omits timeout.
const DefaultTimeoutSeconds = 30

// ServerConfig describes how to reach an MCP server. Exactly one of Command
// (stdio transport) or URL (streamable-HTTP transport) must be set.
type ServerConfig struct {
	// Stdio transport.
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	// HTTP transport.
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Timeout int               `json:"timeout,omitempty"` // seconds
}

// IsStdio reports whether the config describes a stdio server.
func (c *ServerConfig) IsStdio() bool { return c.Command != "" }

// IsHTTP reports whether the config describes an HTTP server.
func (c *ServerConfig) IsHTTP() bool { return c.URL != "" }

// Validate enforces the exactly-one-of rule and normalizes the URL in place.
func (c *ServerConfig) Validate() error {
	switch {
	case c.Command == "" && c.URL == "":
		return errkind.New(errkind.Client, "server config: one of command or url is required")
	case c.Command != "" && c.URL != "":
		return errkind.New(errkind.Client, "server config: command and url are mutually exclusive")
	}
	if c.URL != "" {
		normalized, err := NormalizeURL(c.URL)
		if err != nil {
			return err
		}
		c.URL = normalized
	}
	if c.Timeout < 0 {
		return errkind.New(errkind.Client, "server config: timeout must be non-negative")
	}
	return nil
}

// TimeoutSeconds returns the configured request timeout, defaulted.
func (c *ServerConfig) TimeoutSeconds() int {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeoutSeconds
}

// NormalizeURL canonicalizes an MCP server URL: http/https scheme only,
// lowercased host, userinfo and fragment stripped, trailing slash removed
// when the path is empty.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", errkind.Wrap(errkind.Client, err, "parse url %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errkind.New(errkind.Client, "url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return "", errkind.New(errkind.Client, "url %q: missing host", raw)
	}
	u.Host = strings.ToLower(u.Host)
	u.User = nil
	u.Fragment = ""
	if u.Path == "/" {
		u.Path = ""
	}
	return u.String(), nil
}

// sensitiveHeaders are header names whose values never reach disk or logs.
var sensitiveHeaders = map[string]struct{}{
	"authorization":       {},
	"proxy-authorization": {},
	"cookie":              {},
	"set-cookie":          {},
	"x-api-key":           {},
}

// IsSensitiveHeader reports whether a header name carries a secret.
func IsSensitiveHeader(name string) bool {
	_, ok := sensitiveHeaders[strings.ToLower(name)]
	return ok
}

// Redacted returns a copy of the config safe to persist in the registry:
// sensitive header values are replaced with RedactedValue. The full header
// map is stored separately in the keychain.
func (c ServerConfig) Redacted() ServerConfig {
	out := c
	if len(c.Headers) > 0 {
		out.Headers = RedactHeaders(c.Headers)
	}
	if len(c.Env) > 0 {
		out.Env = make(map[string]string, len(c.Env))
		for k, v := range c.Env {
			out.Env[k] = v
		}
	}
	if len(c.Args) > 0 {
		out.Args = append([]string(nil), c.Args...)
	}
	return out
}

// RedactHeaders masks sensitive values in a header map.
func RedactHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if IsSensitiveHeader(k) {
			out[k] = RedactedValue
		} else {
			out[k] = v
		}
	}
	return out
}

// HasRedactedHeaders reports whether the config carries placeholder values
// that must be resolved from the keychain before use.
func (c *ServerConfig) HasRedactedHeaders() bool {
	for _, v := range c.Headers {
		if v == RedactedValue {
			return true
		}
	}
	return false
}

// String renders the target for logs without exposing secrets.
func (c *ServerConfig) String() string {
	if c.IsStdio() {
		if len(c.Args) > 0 {
			return fmt.Sprintf("%s %s", c.Command, strings.Join(c.Args, " "))
		}
		return c.Command
	}
	return c.URL
}
