// Package secops provides the MCP tools that query Google Security
// Operations through a lazily resolved Chronicle client.
//
// Tools exported via [Tools]:
//   - "list_security_rules" lists detection rules.
//   - "get_security_rule" fetches one rule including its YARA-L text.
//   - "search_udm" runs a UDM event search over a time window.
//   - "list_data_tables" lists data tables.
//   - "get_client_status" reports whether a client can be resolved.
//
// Every tool accepts optional project_id, customer_id and region arguments
// that override the environment for that call only. The client is resolved
// on each call; when none is available the call fails with the reason.
package secops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/secops-mcp/internal/chronicle"
	"github.com/MrWong99/secops-mcp/internal/config"
	"github.com/MrWong99/secops-mcp/internal/mcp/tools"
	"github.com/MrWong99/secops-mcp/internal/resolver"
)

const (
	defaultPageSize  = 50
	maxPageSize      = 1000
	defaultHoursBack = 24
	maxHoursBack     = 24 * 366 * 10
	defaultUDMLimit  = 100
	maxUDMLimit      = 10000
)

// ClientProvider resolves a Chronicle client for a set of overrides.
// [*resolver.Resolver] satisfies it.
type ClientProvider interface {
	Resolve(ctx context.Context, o config.Overrides) resolver.Result
}

// Option customises [Tools].
type Option func(*toolset)

// WithClock sets the time source used for relative search windows.
func WithClock(now func() time.Time) Option {
	return func(ts *toolset) { ts.now = now }
}

type toolset struct {
	provider ClientProvider
	now      func() time.Time
}

// scopeArgs are the per-call tenant overrides shared by all tools.
type scopeArgs struct {
	ProjectID  string `json:"project_id"`
	CustomerID string `json:"customer_id"`
	Region     string `json:"region"`
}

func (a scopeArgs) overrides() config.Overrides {
	return config.Overrides{ProjectID: a.ProjectID, CustomerID: a.CustomerID, Region: a.Region}
}

type pageArgs struct {
	scopeArgs
	PageSize  int    `json:"page_size"`
	PageToken string `json:"page_token"`
}

func (a pageArgs) size() (int, error) {
	switch {
	case a.PageSize == 0:
		return defaultPageSize, nil
	case a.PageSize < 0 || a.PageSize > maxPageSize:
		return 0, fmt.Errorf("secops: page_size must be between 1 and %d, got %d", maxPageSize, a.PageSize)
	}
	return a.PageSize, nil
}

type getRuleArgs struct {
	scopeArgs
	RuleID string `json:"rule_id"`
}

type searchArgs struct {
	scopeArgs
	Query     string `json:"query"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	HoursBack int    `json:"hours_back"`
	Limit     int    `json:"limit"`
}

type searchResult struct {
	Query             string               `json:"query"`
	StartTime         string               `json:"start_time"`
	EndTime           string               `json:"end_time"`
	Count             int                  `json:"count"`
	MoreDataAvailable bool                 `json:"more_data_available"`
	Events            []chronicle.UDMEvent `json:"events"`
}

type statusResult struct {
	Available  bool   `json:"available"`
	Reason     string `json:"reason"`
	ProjectID  string `json:"project_id"`
	CustomerID string `json:"customer_id"`
	Region     string `json:"region"`
	Instance   string `json:"instance,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Tools returns the security-operations tools backed by p.
func Tools(p ClientProvider, opts ...Option) []tools.Tool {
	ts := &toolset{provider: p, now: time.Now}
	for _, o := range opts {
		o(ts)
	}

	pageProps := func(noun string) map[string]any {
		return withScope(map[string]any{
			"page_size":  tools.IntegerProp(fmt.Sprintf("Maximum number of %s to return (1-%d, default %d).", noun, maxPageSize, defaultPageSize)),
			"page_token": tools.StringProp("Token from a previous response to fetch the next page."),
		})
	}

	return []tools.Tool{
		{
			Name:        "list_security_rules",
			Description: "List detection rules configured in Google Security Operations. Returns rule names, display names, severities and a next_page_token when more rules exist.",
			InputSchema: tools.ObjectSchema(pageProps("rules")),
			ReadOnly:    true,
			Handler:     ts.listRules,
		},
		{
			Name:        "get_security_rule",
			Description: "Get a single detection rule by id (e.g. ru_1234) or full resource name, including its YARA-L rule text.",
			InputSchema: tools.ObjectSchema(withScope(map[string]any{
				"rule_id": tools.StringProp("Rule id or resource name."),
			}), "rule_id"),
			ReadOnly: true,
			Handler:  ts.getRule,
		},
		{
			Name:        "search_udm",
			Description: "Search UDM events with a UDM query such as metadata.event_type = \"NETWORK_CONNECTION\". The window is start_time..end_time (RFC 3339) or the last hours_back hours (default 24).",
			InputSchema: tools.ObjectSchema(withScope(map[string]any{
				"query":      tools.StringProp("UDM search query."),
				"start_time": tools.StringProp("Window start in RFC 3339 format. Overrides hours_back."),
				"end_time":   tools.StringProp("Window end in RFC 3339 format. Defaults to now."),
				"hours_back": tools.IntegerProp(fmt.Sprintf("Window length in hours ending at end_time (1-%d, default %d).", maxHoursBack, defaultHoursBack)),
				"limit":      tools.IntegerProp(fmt.Sprintf("Maximum number of events (1-%d, default %d).", maxUDMLimit, defaultUDMLimit)),
			}), "query"),
			ReadOnly: true,
			Handler:  ts.searchUDM,
		},
		{
			Name:        "list_data_tables",
			Description: "List data tables available to detection rules in Google Security Operations.",
			InputSchema: tools.ObjectSchema(pageProps("data tables")),
			ReadOnly:    true,
			Handler:     ts.listDataTables,
		},
		{
			Name:        "get_client_status",
			Description: "Report whether a Google Security Operations client can be created for the effective project, customer and region, and why not when it cannot.",
			InputSchema: tools.ObjectSchema(withScope(nil)),
			ReadOnly:    true,
			Handler:     ts.clientStatus,
		},
	}
}

func withScope(props map[string]any) map[string]any {
	if props == nil {
		props = map[string]any{}
	}
	props["project_id"] = tools.StringProp("Google Cloud project id. Overrides CHRONICLE_PROJECT_ID.")
	props["customer_id"] = tools.StringProp("Chronicle customer id. Overrides CHRONICLE_CUSTOMER_ID.")
	props["region"] = tools.StringProp("Chronicle region (e.g. us, eu). Overrides CHRONICLE_REGION.")
	return props
}

// decode parses args into v. Empty args decode as an empty object.
func decode(args string, v any) error {
	if strings.TrimSpace(args) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(args), v); err != nil {
		return fmt.Errorf("secops: failed to parse arguments: %w", err)
	}
	return nil
}

// client resolves a client or returns the reason none is available.
func (ts *toolset) client(ctx context.Context, s scopeArgs) (*chronicle.Client, error) {
	res := ts.provider.Resolve(ctx, s.overrides())
	if err := res.Unavailable(); err != nil {
		return nil, err
	}
	return res.Client, nil
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("secops: failed to encode result: %w", err)
	}
	return string(b), nil
}

func (ts *toolset) listRules(ctx context.Context, args string) (string, error) {
	var a pageArgs
	if err := decode(args, &a); err != nil {
		return "", err
	}
	size, err := a.size()
	if err != nil {
		return "", err
	}
	c, err := ts.client(ctx, a.scopeArgs)
	if err != nil {
		return "", err
	}
	page, err := c.ListRules(ctx, size, a.PageToken)
	if err != nil {
		return "", fmt.Errorf("secops: list rules: %w", err)
	}
	if page.Rules == nil {
		page.Rules = []chronicle.Rule{}
	}
	return encode(page)
}

func (ts *toolset) getRule(ctx context.Context, args string) (string, error) {
	var a getRuleArgs
	if err := decode(args, &a); err != nil {
		return "", err
	}
	if strings.TrimSpace(a.RuleID) == "" {
		return "", errors.New("secops: rule_id must not be empty")
	}
	c, err := ts.client(ctx, a.scopeArgs)
	if err != nil {
		return "", err
	}
	rule, err := c.GetRule(ctx, a.RuleID)
	if err != nil {
		return "", fmt.Errorf("secops: get rule %q: %w", a.RuleID, err)
	}
	return encode(rule)
}

// window returns the search range described by a.
func (a searchArgs) window(now time.Time) (start, end time.Time, err error) {
	end = now
	if a.EndTime != "" {
		if end, err = time.Parse(time.RFC3339, a.EndTime); err != nil {
			return start, end, fmt.Errorf("secops: end_time: %w", err)
		}
	}
	if a.StartTime != "" {
		if start, err = time.Parse(time.RFC3339, a.StartTime); err != nil {
			return start, end, fmt.Errorf("secops: start_time: %w", err)
		}
	} else {
		hours := a.HoursBack
		if hours == 0 {
			hours = defaultHoursBack
		}
		if hours < 0 || hours > maxHoursBack {
			return start, end, fmt.Errorf("secops: hours_back must be between 1 and %d, got %d", maxHoursBack, hours)
		}
		start = end.Add(-time.Duration(hours) * time.Hour)
	}
	if !start.Before(end) {
		return start, end, errors.New("secops: start_time must be before end_time")
	}
	return start, end, nil
}

func (ts *toolset) searchUDM(ctx context.Context, args string) (string, error) {
	var a searchArgs
	if err := decode(args, &a); err != nil {
		return "", err
	}
	if strings.TrimSpace(a.Query) == "" {
		return "", errors.New("secops: query must not be empty")
	}
	limit := a.Limit
	if limit == 0 {
		limit = defaultUDMLimit
	}
	if limit < 0 || limit > maxUDMLimit {
		return "", fmt.Errorf("secops: limit must be between 1 and %d, got %d", maxUDMLimit, limit)
	}
	start, end, err := a.window(ts.now())
	if err != nil {
		return "", err
	}

	c, err := ts.client(ctx, a.scopeArgs)
	if err != nil {
		return "", err
	}
	resp, err := c.SearchUDM(ctx, chronicle.UDMQuery{Query: a.Query, Start: start, End: end, Limit: limit})
	if err != nil {
		return "", fmt.Errorf("secops: udm search: %w", err)
	}

	events := resp.Events
	if events == nil {
		events = []chronicle.UDMEvent{}
	}
	return encode(searchResult{
		Query:             a.Query,
		StartTime:         start.UTC().Format(time.RFC3339),
		EndTime:           end.UTC().Format(time.RFC3339),
		Count:             len(events),
		MoreDataAvailable: resp.MoreDataAvailable,
		Events:            events,
	})
}

func (ts *toolset) listDataTables(ctx context.Context, args string) (string, error) {
	var a pageArgs
	if err := decode(args, &a); err != nil {
		return "", err
	}
	size, err := a.size()
	if err != nil {
		return "", err
	}
	c, err := ts.client(ctx, a.scopeArgs)
	if err != nil {
		return "", err
	}
	page, err := c.ListDataTables(ctx, size, a.PageToken)
	if err != nil {
		return "", fmt.Errorf("secops: list data tables: %w", err)
	}
	if page.DataTables == nil {
		page.DataTables = []chronicle.DataTable{}
	}
	return encode(page)
}

// clientStatus never fails on an absent client; it reports the reason instead.
func (ts *toolset) clientStatus(ctx context.Context, args string) (string, error) {
	var a scopeArgs
	if err := decode(args, &a); err != nil {
		return "", err
	}
	res := ts.provider.Resolve(ctx, a.overrides())
	out := statusResult{
		Available:  res.OK(),
		Reason:     res.Reason.String(),
		ProjectID:  res.Settings.ProjectID,
		CustomerID: res.Settings.CustomerID,
		Region:     res.Settings.Region,
	}
	if res.OK() {
		out.Instance = res.Client.InstancePath()
	} else if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return encode(out)
}
