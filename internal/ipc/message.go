// Package ipc implements the framed JSON protocol spoken between the CLI
// and a session's bridge daemon over a unix socket or Windows named pipe.
package ipc

import "encoding/json"

// Message types carried on the wire. Shutdown and credential updates are
// their own types, not request methods: they are one-way and get no
// response frame.
const (
	TypeRequest        = "request"
	TypeResponse       = "response"
	TypeNotification   = "notification"
	TypeShutdown       = "shutdown"
	TypeSetCredentials = "set-auth-credentials"
)

// Well-known bridge methods. Anything else is rejected by the bridge with a
// client error.
const (
	MethodPing                = "ping"
	MethodGetServerDetails    = "getServerDetails"
	MethodListTools           = "listTools"
	MethodCallTool            = "callTool"
	MethodListResources       = "listResources"
	MethodListResourceTmpls   = "listResourceTemplates"
	MethodReadResource        = "readResource"
	MethodSubscribeResource   = "subscribeResource"
	MethodUnsubscribeResource = "unsubscribeResource"
	MethodListPrompts         = "listPrompts"
	MethodGetPrompt           = "getPrompt"
	MethodSetLoggingLevel     = "setLoggingLevel"
)

// Message is the single frame shape for requests, responses, and
// notifications. Type discriminates which fields are populated.
type Message struct {
	Type   string          `json:"type"`
	ID     uint64          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorInfo      `json:"error,omitempty"`

	// Notification payload, set when Type is TypeNotification.
	Notification *Notification `json:"notification,omitempty"`
}

// ErrorInfo carries a failure across the socket. Code is one of the process
// exit codes so the CLI can classify without string matching.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// Notification is a server-initiated event relayed by the bridge to every
// connected client.
type Notification struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// NewRequest builds a request frame, marshaling params if non-nil.
func NewRequest(id uint64, method string, params any) (*Message, error) {
	msg := &Message{Type: TypeRequest, ID: id, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		msg.Params = raw
	}
	return msg, nil
}

// NewResponse builds a success response frame for a request id.
func NewResponse(id uint64, result any) (*Message, error) {
	msg := &Message{Type: TypeResponse, ID: id}
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return nil, err
		}
		msg.Result = raw
	}
	return msg, nil
}

// NewErrorResponse builds an error response frame for a request id.
func NewErrorResponse(id uint64, code int, message, hint string) *Message {
	return &Message{
		Type:  TypeResponse,
		ID:    id,
		Error: &ErrorInfo{Code: code, Message: message, Hint: hint},
	}
}

// NewNotification builds a notification frame.
func NewNotification(method string, params json.RawMessage) *Message {
	return &Message{
		Type:         TypeNotification,
		Notification: &Notification{Method: method, Params: params},
	}
}

// NewShutdown builds a shutdown frame. It carries no id; the bridge exits
// instead of replying.
func NewShutdown() *Message {
	return &Message{Type: TypeShutdown}
}

// NewSetCredentials builds a set-auth-credentials frame.
func NewSetCredentials(p SetCredentialsParams) (*Message, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return &Message{Type: TypeSetCredentials, Params: raw}, nil
}
