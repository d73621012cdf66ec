// Package tools defines the shared [Tool] type used by all MCP tool packages.
// Each sub-package exports a constructor function that returns a slice of
// [Tool] values ready for registration with the MCP server.
package tools

import "context"

// Handler executes a tool with JSON-encoded args and returns a JSON-encoded
// result string on success, or a descriptive error. Errors are reported to
// the MCP client as tool errors, not protocol failures.
type Handler func(ctx context.Context, args string) (string, error)

// Tool represents a tool ready for registration with the MCP server.
type Tool struct {
	// Name is the unique tool name advertised to MCP clients.
	Name string

	// Description tells the calling model what the tool does.
	Description string

	// InputSchema is the JSON Schema of the tool arguments. It must describe
	// an object; nil is treated as an object without properties.
	InputSchema map[string]any

	// ReadOnly marks tools that never modify backend state.
	ReadOnly bool

	// Handler is invoked for every call. Implementations must be safe for
	// concurrent use and must respect context cancellation.
	Handler Handler
}

// ObjectSchema builds an object JSON Schema from property schemas. Names in
// required must appear in props.
func ObjectSchema(props map[string]any, required ...string) map[string]any {
	if props == nil {
		props = map[string]any{}
	}
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// StringProp returns a string property schema with a description.
func StringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// IntegerProp returns an integer property schema with a description.
func IntegerProp(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}
