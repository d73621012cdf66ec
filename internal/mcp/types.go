// Package mcp holds the types shared between the MCP server wiring and the
// tool packages it serves.
package mcp

// Transport selects how the server exchanges MCP messages with its client.
type Transport string

const (
	// TransportStdio serves a single session over the process's stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP serves sessions via the MCP Streamable HTTP protocol.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}
