// Package resolver turns environment configuration and a service-account
// source into a tenant-scoped Chronicle client.
//
// [Resolver.Resolve] never fails past its own boundary: it returns a
// [Result] holding either a usable client or a tagged [Reason] explaining
// why no client is available. Every call re-reads the environment and the
// credential source, so calls are independent and need no locking.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/MrWong99/secops-mcp/internal/chronicle"
	"github.com/MrWong99/secops-mcp/internal/config"
	"github.com/MrWong99/secops-mcp/internal/credential"
	"github.com/MrWong99/secops-mcp/internal/observe"
)

// Reason tags why a [Result] carries no client.
type Reason int

const (
	// ReasonNone marks a successful resolution.
	ReasonNone Reason = iota

	// ReasonInvalidConfiguration: project or customer id missing after resolution.
	ReasonInvalidConfiguration

	// ReasonCredentialNotFound: the credential document does not exist.
	ReasonCredentialNotFound

	// ReasonCredentialParse: the document is malformed or lacks required fields.
	ReasonCredentialParse

	// ReasonClientConstruction: the client rejected the key or the tenant scope.
	ReasonClientConstruction
)

// String returns the snake-case name of the reason.
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonInvalidConfiguration:
		return "invalid_configuration"
	case ReasonCredentialNotFound:
		return "credential_not_found"
	case ReasonCredentialParse:
		return "credential_parse_failure"
	case ReasonClientConstruction:
		return "client_construction_failure"
	default:
		return "unknown"
	}
}

var (
	// ErrInvalidConfiguration matches results tagged [ReasonInvalidConfiguration].
	ErrInvalidConfiguration = config.ErrInvalidConfiguration

	// ErrCredentialNotFound matches results tagged [ReasonCredentialNotFound].
	ErrCredentialNotFound = credential.ErrNotFound

	// ErrCredentialParse matches results tagged [ReasonCredentialParse].
	ErrCredentialParse = credential.ErrParse

	// ErrClientConstruction matches results tagged [ReasonClientConstruction].
	ErrClientConstruction = errors.New("client construction failure")
)

// Result is the outcome of a resolution: a client, or the reason there is none.
type Result struct {
	// Client is non-nil only when Reason is [ReasonNone].
	Client *chronicle.Client

	// Settings is the resolved tenant scope, populated on every outcome.
	Settings config.Settings

	// Reason tags the failure; [ReasonNone] on success.
	Reason Reason

	// Err carries diagnostic detail for a failure. It wraps the sentinel
	// matching Reason.
	Err error
}

// OK reports whether the result holds a usable client.
func (r Result) OK() bool {
	return r.Reason == ReasonNone && r.Client != nil
}

// Unavailable returns an error describing why no client is available, or
// nil when the result is OK.
func (r Result) Unavailable() error {
	if r.OK() {
		return nil
	}
	if r.Err != nil {
		return fmt.Errorf("chronicle client unavailable (%s): %w", r.Reason, r.Err)
	}
	return fmt.Errorf("chronicle client unavailable (%s)", r.Reason)
}

// Factory builds a Chronicle client. [chronicle.New] is the production factory.
type Factory func(ctx context.Context, opts chronicle.Options) (*chronicle.Client, error)

// Resolver resolves a Chronicle client on demand. The zero value is NOT
// usable; create instances with [New].
type Resolver struct {
	env      config.LookupFunc
	defaults config.Settings
	source   credential.Source
	factory  Factory
	logger   *slog.Logger
	metrics  *observe.Metrics
}

// Option configures a [Resolver].
type Option func(*Resolver)

// WithEnv sets the environment accessor. Default: [os.LookupEnv].
func WithEnv(env config.LookupFunc) Option {
	return func(r *Resolver) { r.env = env }
}

// WithDefaults sets the defaults record. Default: [config.Defaults].
func WithDefaults(d config.Settings) Option {
	return func(r *Resolver) { r.defaults = d }
}

// WithSource sets the credential source. Default: [credential.DefaultFileSource].
func WithSource(s credential.Source) Option {
	return func(r *Resolver) { r.source = s }
}

// WithFactory sets the client factory. Default: [chronicle.New].
func WithFactory(f Factory) Option {
	return func(r *Resolver) { r.factory = f }
}

// WithLogger sets the diagnostic logger. Default: [slog.Default], also used
// when l is nil.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithMetrics records every outcome on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// New creates a [Resolver].
func New(opts ...Option) *Resolver {
	r := &Resolver{
		env:      os.LookupEnv,
		defaults: config.Defaults(),
		source:   credential.DefaultFileSource(),
		factory:  chronicle.New,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.source == nil {
		r.source = credential.DefaultFileSource()
	}
	if r.factory == nil {
		r.factory = chronicle.New
	}
	return r
}

// Resolve produces a client for the tenant scope given by o, the
// environment and the defaults record, in that order of precedence.
//
// Missing identifiers are logged and reported as [ReasonInvalidConfiguration]
// rather than returned as an error, on every call alike.
func (r *Resolver) Resolve(ctx context.Context, o config.Overrides) Result {
	res := r.guard(ctx, o)
	if r.metrics != nil {
		r.metrics.RecordClientResolution(ctx, res.Reason.String())
	}
	return res
}

// guard runs resolve and turns a panic anywhere in it into a failure tagged
// with the stage that was running.
func (r *Resolver) guard(ctx context.Context, o config.Overrides) (res Result) {
	stage := ReasonInvalidConfiguration
	var settings config.Settings
	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("%w: panic: %v\n%s", stageErr(stage), p, debug.Stack())
			r.logger.Error("chronicle client resolution panicked", "stage", stage.String(), "err", err)
			res = failure(settings, stage, err)
		}
	}()
	return r.resolve(ctx, o, &stage, &settings)
}

func stageErr(stage Reason) error {
	switch stage {
	case ReasonCredentialParse:
		return ErrCredentialParse
	case ReasonClientConstruction:
		return ErrClientConstruction
	default:
		return ErrInvalidConfiguration
	}
}

// resolve advances *stage before each step so that guard can tag a panic.
func (r *Resolver) resolve(ctx context.Context, o config.Overrides, stage *Reason, out *config.Settings) Result {
	settings := config.Resolve(o, r.env, r.defaults)
	*out = settings
	log := r.logger.With(
		slog.String("project_id", settings.ProjectID),
		slog.String("customer_id", settings.CustomerID),
		slog.String("region", settings.Region),
	)

	if err := settings.Validate(); err != nil {
		log.Error("chronicle configuration incomplete", "err", err)
		return failure(settings, ReasonInvalidConfiguration, err)
	}

	*stage = ReasonCredentialParse
	raw, err := r.source.Read()
	if err != nil {
		var nf *credential.NotFoundError
		if errors.As(err, &nf) {
			log.Error("service account file not found",
				"path", nf.Path,
				"dir_entries", nf.DirEntries,
			)
			return failure(settings, ReasonCredentialNotFound, err)
		}
		if errors.Is(err, credential.ErrNotFound) {
			log.Error("service account not found", "source", r.source.Name(), "err", err)
			return failure(settings, ReasonCredentialNotFound, err)
		}
		log.Error("service account could not be read", "source", r.source.Name(), "err", err)
		return failure(settings, ReasonCredentialParse, fmt.Errorf("%w: %w", ErrCredentialParse, err))
	}
	defer credential.Zero(raw)

	sa, err := credential.Parse(raw)
	if err != nil {
		log.Error("service account could not be parsed", "source", r.source.Name(), "err", err)
		return failure(settings, ReasonCredentialParse, err)
	}
	defer sa.Wipe()

	doc, err := sa.JSON()
	if err != nil {
		log.Error("service account could not be re-encoded", "err", err)
		return failure(settings, ReasonCredentialParse, fmt.Errorf("%w: %w", ErrCredentialParse, err))
	}
	defer credential.Zero(doc)

	*stage = ReasonClientConstruction
	client, err := r.build(ctx, chronicle.Options{
		CustomerID:  settings.CustomerID,
		ProjectID:   settings.ProjectID,
		Region:      settings.Region,
		Credentials: doc,
	})
	if err != nil {
		log.Error("chronicle client construction failed", "source", r.source.Name(), "err", err)
		return failure(settings, ReasonClientConstruction, fmt.Errorf("%w: %w", ErrClientConstruction, err))
	}

	log.Debug("chronicle client resolved", "source", r.source.Name())
	return Result{Client: client, Settings: settings}
}

func (r *Resolver) build(ctx context.Context, opts chronicle.Options) (*chronicle.Client, error) {
	client, err := r.factory(ctx, opts)
	if err == nil && client == nil {
		err = errors.New("factory returned no client")
	}
	return client, err
}

func failure(s config.Settings, reason Reason, err error) Result {
	return Result{Settings: s, Reason: reason, Err: err}
}
