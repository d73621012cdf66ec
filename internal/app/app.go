// Package app wires the SecOps MCP server subsystems into a running
// application.
//
// New builds the resolver, the instrumented tool set, the MCP server and
// the optional HTTP listener. Run serves until the context is cancelled or
// the stdio client disconnects, and Shutdown releases what is still open.
//
// No Chronicle client is built at startup. Credential and configuration
// problems surface per tool call and on /readyz, never as a startup failure.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/secops-mcp/internal/config"
	"github.com/MrWong99/secops-mcp/internal/credential"
	"github.com/MrWong99/secops-mcp/internal/health"
	"github.com/MrWong99/secops-mcp/internal/mcp"
	"github.com/MrWong99/secops-mcp/internal/mcp/mcpserver"
	"github.com/MrWong99/secops-mcp/internal/mcp/tools/secops"
	"github.com/MrWong99/secops-mcp/internal/observe"
	"github.com/MrWong99/secops-mcp/internal/resolver"
)

// shutdownTimeout bounds the HTTP server drain once Run is cancelled.
const shutdownTimeout = 10 * time.Second

// ClientResolver resolves a Chronicle client for a set of overrides.
type ClientResolver interface {
	secops.ClientProvider
	health.ClientResolver
}

// App owns the server lifetime.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *observe.Metrics
	resolver ClientResolver

	mcp      *mcpserver.Server
	http     *http.Server
	listener net.Listener

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithResolver injects the client resolver instead of building one from config.
func WithResolver(r ClientResolver) Option {
	return func(a *App) { a.resolver = r }
}

// WithMetrics sets the metric instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogger sets the application logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// New creates an App from cfg. cfg must already have defaults applied. When
// cfg.Server.ListenAddr is set the listener is bound here, so a bad address
// fails New rather than Run.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.resolver == nil {
		a.resolver = NewResolver(cfg, a.metrics, a.logger)
	}

	a.mcp = mcpserver.New(mcpserver.Config{
		Name:    cfg.Server.Name,
		Version: cfg.Server.Version,
		Logger:  a.logger,
	})
	toolset := observe.WrapTools(a.metrics, secops.Tools(a.resolver))
	if err := a.mcp.Register(toolset...); err != nil {
		return nil, fmt.Errorf("app: register tools: %w", err)
	}

	if cfg.Server.ListenAddr != "" {
		var lc net.ListenConfig
		ln, err := lc.Listen(ctx, "tcp", cfg.Server.ListenAddr)
		if err != nil {
			return nil, fmt.Errorf("app: listen on %q: %w", cfg.Server.ListenAddr, err)
		}
		a.listener = ln
		a.http = &http.Server{
			Handler:           observe.Middleware(a.metrics)(a.routes()),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	return a, nil
}

// NewResolver builds the production resolver for cfg: the configured
// credential source and the config file's tenant values as defaults.
func NewResolver(cfg *config.Config, m *observe.Metrics, logger *slog.Logger) *resolver.Resolver {
	return resolver.New(
		resolver.WithDefaults(cfg.DefaultsRecord()),
		resolver.WithSource(credentialSource(cfg.Chronicle.Credentials)),
		resolver.WithMetrics(m),
		resolver.WithLogger(logger),
	)
}

func credentialSource(c config.CredentialsConfig) credential.Source {
	switch {
	case c.Source == config.CredentialEmbedded:
		return credential.EmbeddedSource{}
	case c.File != "":
		return credential.FileSourceFromPath(c.File)
	default:
		return credential.DefaultFileSource()
	}
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()
	health.New(health.ChronicleClient(a.resolver)).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	if a.cfg.Server.Transport == mcp.TransportStreamableHTTP {
		mux.Handle("/mcp", a.mcp.HTTPHandler())
	}
	return mux
}

// Addr returns the bound HTTP address, or "" when no listener is configured.
func (a *App) Addr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// ToolNames returns the registered MCP tool names.
func (a *App) ToolNames() []string {
	return a.mcp.Names()
}

// Run serves until ctx is cancelled. With the stdio transport Run also
// returns once the client closes stdin.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if a.http != nil {
		a.logger.Info("http listener started", "addr", a.Addr(), "transport", a.cfg.Server.Transport)
		g.Go(func() error {
			if err := a.http.Serve(a.listener); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http serve: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer scancel()
			return a.http.Shutdown(sctx)
		})
	}

	if a.cfg.Server.Transport == mcp.TransportStdio {
		g.Go(func() error {
			defer cancel()
			if err := a.mcp.Run(gctx); err != nil {
				return fmt.Errorf("app: mcp stdio: %w", err)
			}
			a.logger.Info("mcp client disconnected")
			return nil
		})
	}

	return g.Wait()
}

// Shutdown closes the HTTP server if it is still running. It is safe to
// call more than once and after Run has returned.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		if a.http == nil {
			return
		}
		if e := a.http.Shutdown(ctx); e != nil && !errors.Is(e, http.ErrServerClosed) {
			err = e
		}
		// Serve may never have run.
		_ = a.listener.Close()
		a.logger.Info("shutdown complete")
	})
	return err
}
