// Package errkind classifies errors so they survive the CLI/bridge boundary
// and map onto process exit codes.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is the error taxonomy. Each kind maps to one exit code.
type Kind int

const (
	// Client covers malformed input, unknown methods, invalid names,
	// and missing registry entries.
	Client Kind = 1
	// Server covers error responses from the upstream MCP server.
	Server Kind = 2
	// Transport covers socket, DNS/TCP, framing, and spawn failures.
	Transport Kind = 3
	// Auth covers token refresh failures and missing credentials.
	Auth Kind = 4
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case Client:
		return "client"
	case Server:
		return "server"
	case Transport:
		return "transport"
	case Auth:
		return "auth"
	default:
		return "client"
	}
}

// ExitCode returns the process exit code for the kind.
func (k Kind) ExitCode() int {
	if k < Client || k > Auth {
		return int(Client)
	}
	return int(k)
}

// Error is a classified error. Hint, when set, is a command the user can
// run to recover (auth errors carry the re-login command).
type Error struct {
	Kind    Kind
	Message string
	Hint    string
	cause   error
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s (run %q)", e.Message, e.Hint)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a classified error.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error, preserving it for errors.Is/As.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...) + ": " + err.Error(),
		cause:   err,
	}
}

// WithHint attaches a recovery command to an error. Unclassified errors
// come back as Client errors carrying the hint.
func WithHint(err error, hint string) *Error {
	var e *Error
	if errors.As(err, &e) {
		h := *e
		h.Hint = hint
		return &h
	}
	return &Error{Kind: Client, Message: err.Error(), Hint: hint, cause: err}
}

// Of returns the kind of err. Unclassified errors default to Client.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Client
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// HintOf returns the recovery hint carried by err, if any.
func HintOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Hint
	}
	return ""
}

// FromWire reconstructs a classified error from an IPC error code and
// message. Unknown codes come back as Client errors.
func FromWire(code int, message, hint string) *Error {
	k := Kind(code)
	if k < Client || k > Auth {
		k = Client
	}
	return &Error{Kind: k, Message: message, Hint: hint}
}
