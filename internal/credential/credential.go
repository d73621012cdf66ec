// Package credential loads and parses Google service-account documents used
// to authenticate against Chronicle.
//
// A document is obtained from a [Source], either the one compiled into the
// binary ([EmbeddedSource]) or a JSON file on local storage ([FileSource]),
// and decoded with [Parse]. Parsed documents are transient: callers re-encode
// them with [ServiceAccount.JSON] for client construction and then call
// [ServiceAccount.Wipe].
package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ServiceAccountType is the only document type accepted by [Parse].
const ServiceAccountType = "service_account"

var (
	// ErrNotFound is returned by a [Source] when no credential document exists
	// at the expected location.
	ErrNotFound = errors.New("credential not found")

	// ErrParse is returned by [Parse] when the document is not valid JSON or
	// lacks a required field.
	ErrParse = errors.New("credential parse failure")
)

// ServiceAccount is a Google service-account key document.
type ServiceAccount struct {
	Type                    string `json:"type"`
	ProjectID               string `json:"project_id"`
	PrivateKeyID            string `json:"private_key_id"`
	PrivateKey              string `json:"private_key"`
	ClientEmail             string `json:"client_email"`
	ClientID                string `json:"client_id"`
	AuthURI                 string `json:"auth_uri"`
	TokenURI                string `json:"token_uri"`
	AuthProviderX509CertURL string `json:"auth_provider_x509_cert_url"`
	ClientX509CertURL       string `json:"client_x509_cert_url"`
	UniverseDomain          string `json:"universe_domain,omitempty"`
}

// Parse decodes a service-account document. Literal two-character "\n"
// sequences in the private key are replaced with real newlines, so documents
// whose key was escaped twice still yield valid PEM text.
//
// All errors wrap [ErrParse].
func Parse(data []byte) (*ServiceAccount, error) {
	var sa ServiceAccount
	if err := json.Unmarshal(data, &sa); err != nil {
		return nil, fmt.Errorf("credential: %w: decode json: %w", ErrParse, err)
	}
	sa.PrivateKey = UnescapeKey(sa.PrivateKey)

	var missing []string
	if sa.PrivateKey == "" {
		missing = append(missing, "private_key")
	}
	if sa.ClientEmail == "" {
		missing = append(missing, "client_email")
	}
	if sa.TokenURI == "" {
		missing = append(missing, "token_uri")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("credential: %w: missing required fields: %s", ErrParse, strings.Join(missing, ", "))
	}
	if sa.Type != ServiceAccountType {
		return nil, fmt.Errorf("credential: %w: type %q is not %q", ErrParse, sa.Type, ServiceAccountType)
	}
	return &sa, nil
}

// UnescapeKey converts literal backslash-n sequences into newline characters.
func UnescapeKey(key string) string {
	return strings.ReplaceAll(key, `\n`, "\n")
}

// JSON re-encodes the document for consumption by an OAuth2 library.
func (sa *ServiceAccount) JSON() ([]byte, error) {
	data, err := json.Marshal(sa)
	if err != nil {
		return nil, fmt.Errorf("credential: encode json: %w", err)
	}
	return data, nil
}

// Wipe drops the private key material from the document.
func (sa *ServiceAccount) Wipe() {
	if sa == nil {
		return
	}
	sa.PrivateKey = ""
	sa.PrivateKeyID = ""
}

// Zero overwrites b in place. Used on raw document buffers once a client
// has been built from them.
func Zero(b []byte) {
	clear(b)
}
