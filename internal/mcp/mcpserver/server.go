// Package mcpserver exposes [tools.Tool] values over the Model Context
// Protocol using the official MCP Go SDK
// (github.com/modelcontextprotocol/go-sdk).
//
// Typical usage:
//
//	s := mcpserver.New(mcpserver.Config{Name: "secops", Version: "1.0.0"})
//	if err := s.Register(secops.Tools(r)...); err != nil {
//	    return err
//	}
//	err := s.Run(ctx) // stdio
//
// For the streamable HTTP transport mount [Server.HTTPHandler] instead.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/secops-mcp/internal/mcp/tools"
)

// Config describes the server identity advertised during initialisation.
type Config struct {
	Name    string
	Version string

	// Logger receives registration and transport diagnostics. Default: [slog.Default].
	Logger *slog.Logger
}

// Server wraps an SDK server with a duplicate-checked tool registry.
//
// The zero value is NOT usable; create instances with [New].
type Server struct {
	sdk    *mcpsdk.Server
	logger *slog.Logger

	mu    sync.Mutex
	names map[string]struct{}
}

// New creates a [Server] with no tools.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sdk := mcpsdk.NewServer(&mcpsdk.Implementation{Name: cfg.Name, Version: cfg.Version}, nil)
	return &Server{
		sdk:    sdk,
		logger: logger,
		names:  make(map[string]struct{}),
	}
}

// Register adds ts to the server. It fails without registering anything when
// a tool has an empty name, no handler, a non-object schema, or a name that
// is already registered.
func (s *Server) Register(ts ...tools.Tool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(ts))
	for _, t := range ts {
		if t.Name == "" {
			return errors.New("mcpserver: tool name must not be empty")
		}
		if t.Handler == nil {
			return fmt.Errorf("mcpserver: tool %q has no handler", t.Name)
		}
		if typ, ok := t.InputSchema["type"]; t.InputSchema != nil && (!ok || typ != "object") {
			return fmt.Errorf("mcpserver: tool %q input schema must be of type object", t.Name)
		}
		if _, dup := s.names[t.Name]; dup {
			return fmt.Errorf("mcpserver: tool %q already registered", t.Name)
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("mcpserver: tool %q registered twice", t.Name)
		}
		seen[t.Name] = struct{}{}
	}

	for _, t := range ts {
		schema := t.InputSchema
		if schema == nil {
			schema = tools.ObjectSchema(nil)
		}
		s.sdk.AddTool(&mcpsdk.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
			Annotations: &mcpsdk.ToolAnnotations{ReadOnlyHint: t.ReadOnly},
		}, s.handler(t))
		s.names[t.Name] = struct{}{}
		s.logger.Debug("registered MCP tool", "tool", t.Name)
	}
	return nil
}

// handler adapts a tool handler to the SDK. Handler errors are reported as
// tool results with IsError set so the calling model can see them.
func (s *Server) handler(t tools.Tool) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		args := "{}"
		if req.Params != nil && len(req.Params.Arguments) > 0 {
			args = string(req.Params.Arguments)
		}
		out, err := t.Handler(ctx, args)
		if err != nil {
			return &mcpsdk.CallToolResult{
				IsError: true,
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
			}, nil
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: out}},
		}, nil
	}
}

// Names returns the registered tool names, sorted.
func (s *Server) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.names))
	for n := range s.names {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Run serves MCP over stdin/stdout until ctx is cancelled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("serving MCP over stdio", "tools", len(s.Names()))
	err := s.sdk.Run(ctx, &mcpsdk.StdioTransport{})
	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return err
}

// HTTPHandler returns a streamable HTTP handler serving this server.
func (s *Server) HTTPHandler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return s.sdk }, nil)
}

// Connect starts a session over t without blocking. Used with in-memory
// transports.
func (s *Server) Connect(ctx context.Context, t mcpsdk.Transport) (*mcpsdk.ServerSession, error) {
	return s.sdk.Connect(ctx, t, nil)
}
