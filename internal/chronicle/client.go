// Package chronicle is a minimal REST client for the Google Security
// Operations (Chronicle) API.
//
// A [Client] is bound to a single tenant scope (customer id, project id,
// region) and authenticates with an OAuth2 token source derived from a
// service-account document. Only the endpoints used by the MCP tools are
// implemented. Clients perform no retries and cache nothing.
//
// Typical usage:
//
//	c, err := chronicle.New(ctx, chronicle.Options{
//	    CustomerID:  "c3c6...",
//	    ProjectID:   "725716774503",
//	    Region:      "us",
//	    Credentials: serviceAccountJSON,
//	})
//	rules, err := c.ListRules(ctx, 50, "")
package chronicle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	// Scope is the OAuth2 scope requested for service-account tokens.
	Scope = "https://www.googleapis.com/auth/cloud-platform"

	// APIVersion is the Chronicle API version prefix.
	APIVersion = "v1alpha"

	// maxErrorBody caps how much of an error response body is retained.
	maxErrorBody = 4 << 10
)

var (
	// ErrInvalidRegion is returned by [New] for a region outside [Regions].
	ErrInvalidRegion = errors.New("chronicle: unsupported region")

	// ErrInvalidCredentials is returned by [New] when the service-account
	// document or its private key is rejected.
	ErrInvalidCredentials = errors.New("chronicle: invalid credentials")

	// ErrInvalidScope is returned by [New] when the customer or project id is empty.
	ErrInvalidScope = errors.New("chronicle: invalid tenant scope")
)

// Regions lists the Chronicle regions a client can be bound to.
var Regions = []string{
	"us",
	"eu",
	"africa-south1",
	"asia-northeast1",
	"asia-south1",
	"asia-southeast1",
	"australia-southeast1",
	"europe-west2",
	"europe-west3",
	"europe-west6",
	"europe-west9",
	"europe-west12",
	"me-central1",
	"me-central2",
	"me-west1",
	"northamerica-northeast2",
	"southamerica-east1",
}

// ValidRegion reports whether region is a recognised Chronicle region.
func ValidRegion(region string) bool {
	return slices.Contains(Regions, region)
}

// Options configures [New].
type Options struct {
	CustomerID string
	ProjectID  string
	Region     string

	// Credentials is a service-account JSON document. Ignored when
	// TokenSource is set.
	Credentials []byte

	// TokenSource overrides the token source derived from Credentials.
	TokenSource oauth2.TokenSource

	// BaseURL overrides the regional endpoint (e.g., for tests). It must not
	// include the API version.
	BaseURL string

	// HTTPClient is the underlying client used for API and token requests.
	// Defaults to [http.DefaultClient].
	HTTPClient *http.Client
}

// Client is a tenant-scoped Chronicle API client. It is safe for concurrent use.
type Client struct {
	http       *http.Client
	baseURL    string
	instance   string
	customerID string
	projectID  string
	region     string
}

// New validates opts and builds a [Client]. No network calls are made; the
// first token is fetched lazily on the first API request.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.CustomerID == "" || opts.ProjectID == "" {
		return nil, fmt.Errorf("%w: customer id and project id are required", ErrInvalidScope)
	}
	if !ValidRegion(opts.Region) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRegion, opts.Region)
	}

	base := opts.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	// Token fetches ignore ctx cancellation.
	tokenCtx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, base)

	ts := opts.TokenSource
	if ts == nil {
		conf, err := google.JWTConfigFromJSON(opts.Credentials, Scope)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
		}
		if _, err := jwt.ParseRSAPrivateKeyFromPEM(conf.PrivateKey); err != nil {
			return nil, fmt.Errorf("%w: private key: %w", ErrInvalidCredentials, err)
		}
		ts = conf.TokenSource(tokenCtx)
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s-chronicle.googleapis.com", opts.Region)
	}

	return &Client{
		http:       oauth2.NewClient(tokenCtx, ts),
		baseURL:    strings.TrimRight(baseURL, "/") + "/" + APIVersion,
		instance:   InstancePath(opts.ProjectID, opts.Region, opts.CustomerID),
		customerID: opts.CustomerID,
		projectID:  opts.ProjectID,
		region:     opts.Region,
	}, nil
}

// InstancePath returns the resource name of a Chronicle instance.
func InstancePath(projectID, region, customerID string) string {
	return fmt.Sprintf("projects/%s/locations/%s/instances/%s", projectID, region, customerID)
}

// CustomerID returns the customer the client is bound to.
func (c *Client) CustomerID() string { return c.customerID }

// ProjectID returns the project the client is bound to.
func (c *Client) ProjectID() string { return c.projectID }

// Region returns the region the client is bound to.
func (c *Client) Region() string { return c.region }

// InstancePath returns the instance resource name the client is bound to.
func (c *Client) InstancePath() string { return c.instance }

// APIError is returned for non-2xx API responses.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

// Error implements error.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("chronicle: api error %d (%s): %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("chronicle: api error %d", e.StatusCode)
}

// googleError is the standard Google API error envelope.
type googleError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// get issues a GET request for path, appended to the instance resource name
// (e.g. "/rules" or ":udmSearch"), and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + "/" + c.instance + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("chronicle: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("chronicle: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
		var ge googleError
		if json.Unmarshal(body, &ge) == nil && ge.Error.Message != "" {
			apiErr.Message = ge.Error.Message
			if ge.Error.Status != "" {
				apiErr.Status = ge.Error.Status
			}
		} else {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("chronicle: decode %s response: %w", path, err)
	}
	return nil
}

// userAgent identifies the server in API requests.
const userAgent = "secops-mcp/1.0"
