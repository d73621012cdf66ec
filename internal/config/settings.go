package config

import (
	"errors"
	"fmt"
	"strings"
)

// Environment variables consulted by [Resolve].
const (
	EnvProjectID  = "CHRONICLE_PROJECT_ID"
	EnvCustomerID = "CHRONICLE_CUSTOMER_ID"
	EnvRegion     = "CHRONICLE_REGION"
)

// Built-in tenant defaults used when neither an override nor the
// environment provides a value.
const (
	DefaultProjectID  = "725716774503"
	DefaultCustomerID = "c3c6260c1c9340dcbbb802603bbf9636"
	DefaultRegion     = "us"
)

// ErrInvalidConfiguration is returned by [Settings.Validate] when a required
// tenant identifier is missing after resolution.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Settings is the resolved tenant scope a Chronicle client is bound to.
type Settings struct {
	ProjectID  string
	CustomerID string
	Region     string
}

// Overrides carries per-call values that take precedence over the
// environment. An empty field means "not overridden".
type Overrides struct {
	ProjectID  string
	CustomerID string
	Region     string
}

// LookupFunc reads an environment variable. [os.LookupEnv] satisfies it.
type LookupFunc func(key string) (string, bool)

// MapLookup returns a [LookupFunc] backed by m. Useful in tests.
func MapLookup(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// Defaults returns the built-in defaults record.
func Defaults() Settings {
	return Settings{
		ProjectID:  DefaultProjectID,
		CustomerID: DefaultCustomerID,
		Region:     DefaultRegion,
	}
}

// Resolve builds the effective [Settings]. For each field the override wins
// when non-empty, then the environment variable when it is set, then d. A
// variable that is set to the empty string yields an empty field, which
// [Settings.Validate] rejects. A nil env is treated as an empty environment.
func Resolve(o Overrides, env LookupFunc, d Settings) Settings {
	return Settings{
		ProjectID:  pick(o.ProjectID, env, EnvProjectID, d.ProjectID),
		CustomerID: pick(o.CustomerID, env, EnvCustomerID, d.CustomerID),
		Region:     pick(o.Region, env, EnvRegion, d.Region),
	}
}

func pick(override string, env LookupFunc, key, def string) string {
	if override != "" {
		return override
	}
	if env != nil {
		if v, ok := env(key); ok {
			return v
		}
	}
	return def
}

// Validate reports whether the project and customer identifiers are both
// present. The returned error wraps [ErrInvalidConfiguration].
func (s Settings) Validate() error {
	var missing []string
	if strings.TrimSpace(s.ProjectID) == "" {
		missing = append(missing, "project_id")
	}
	if strings.TrimSpace(s.CustomerID) == "" {
		missing = append(missing, "customer_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: %w: chronicle %s must be provided", ErrInvalidConfiguration, strings.Join(missing, " and "))
	}
	return nil
}
