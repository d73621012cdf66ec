// Package config provides the configuration schema, loader, and the
// override → environment → default resolution chain for the SecOps MCP server.
package config

import "github.com/MrWong99/secops-mcp/internal/mcp"

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// CredentialSourceKind selects where the service-account document comes from.
type CredentialSourceKind string

const (
	// CredentialFile reads a service-account JSON file from local storage.
	CredentialFile CredentialSourceKind = "file"

	// CredentialEmbedded uses the document compiled into the binary.
	CredentialEmbedded CredentialSourceKind = "embedded"
)

// IsValid reports whether k is a recognised credential source.
func (k CredentialSourceKind) IsValid() bool {
	return k == CredentialFile || k == CredentialEmbedded
}

// Built-in server identity. The name matches the one advertised to MCP clients.
const (
	DefaultServerName    = "Google Security Operations MCP server"
	DefaultServerVersion = "1.0.0"
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
// The zero value is a valid configuration: every field has a default.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Chronicle ChronicleConfig `yaml:"chronicle"`
}

// ServerConfig holds MCP transport and logging settings.
type ServerConfig struct {
	// Name is the implementation name advertised during MCP initialisation.
	Name string `yaml:"name"`

	// Version is the implementation version advertised during MCP initialisation.
	Version string `yaml:"version"`

	// LogLevel controls verbosity. Defaults to "error".
	LogLevel LogLevel `yaml:"log_level"`

	// Transport selects how MCP messages are exchanged. Defaults to stdio.
	Transport mcp.Transport `yaml:"transport"`

	// ListenAddr is the TCP address for the HTTP listener (e.g., ":8080").
	// When set, /healthz, /readyz and /metrics are served on it; with the
	// streamable-http transport the MCP endpoint is mounted at /mcp as well.
	ListenAddr string `yaml:"listen_addr"`

	// TraceSpans writes finished trace spans to stderr as JSON.
	TraceSpans bool `yaml:"trace_spans"`
}

// ChronicleConfig overrides the built-in tenant defaults and the credential
// location. Environment variables still take precedence over these values.
type ChronicleConfig struct {
	ProjectID   string            `yaml:"project_id"`
	CustomerID  string            `yaml:"customer_id"`
	Region      string            `yaml:"region"`
	Credentials CredentialsConfig `yaml:"credentials"`
}

// CredentialsConfig selects the service-account source.
type CredentialsConfig struct {
	// Source is "file" (default) or "embedded".
	Source CredentialSourceKind `yaml:"source"`

	// File is an explicit path to the service-account JSON document. When
	// empty, service_account.json next to the running executable is used.
	File string `yaml:"file"`
}

// ApplyDefaults fills unset fields with their built-in values.
func (c *Config) ApplyDefaults() {
	if c.Server.Name == "" {
		c.Server.Name = DefaultServerName
	}
	if c.Server.Version == "" {
		c.Server.Version = DefaultServerVersion
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogError
	}
	if c.Server.Transport == "" {
		c.Server.Transport = mcp.TransportStdio
	}
	if c.Chronicle.Credentials.Source == "" {
		c.Chronicle.Credentials.Source = CredentialFile
	}
}

// DefaultsRecord returns the built-in [Defaults] with any non-empty tenant
// values from the config file laid on top.
func (c *Config) DefaultsRecord() Settings {
	d := Defaults()
	if c.Chronicle.ProjectID != "" {
		d.ProjectID = c.Chronicle.ProjectID
	}
	if c.Chronicle.CustomerID != "" {
		d.CustomerID = c.Chronicle.CustomerID
	}
	if c.Chronicle.Region != "" {
		d.Region = c.Chronicle.Region
	}
	return d
}
