package ipc

// Request parameter shapes shared by the CLI and the bridge. Results are
// passed through as raw JSON from the upstream MCP library.

// CallToolParams invokes a named tool.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ReadResourceParams reads one resource by URI.
type ReadResourceParams struct {
	URI string `json:"uri"`
}

// SubscribeParams subscribes to (or unsubscribes from) update notifications
// for a resource URI.
type SubscribeParams struct {
	URI string `json:"uri"`
}

// GetPromptParams fetches a prompt by name.
type GetPromptParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// SetLevelParams adjusts the upstream server's logging level.
type SetLevelParams struct {
	Level string `json:"level"`
}
