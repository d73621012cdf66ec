package chronicle

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Rule is a detection rule.
type Rule struct {
	Name               string            `json:"name"`
	RevisionID         string            `json:"revisionId,omitempty"`
	DisplayName        string            `json:"displayName,omitempty"`
	Text               string            `json:"text,omitempty"`
	Author             string            `json:"author,omitempty"`
	Severity           *RuleSeverity     `json:"severity,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	CreateTime         string            `json:"createTime,omitempty"`
	RevisionCreateTime string            `json:"revisionCreateTime,omitempty"`
	CompilationState   string            `json:"compilationState,omitempty"`
	Type               string            `json:"type,omitempty"`
}

// RuleSeverity is the severity attached to a rule.
type RuleSeverity struct {
	DisplayName string `json:"displayName"`
}

// ListRulesResponse is a page of rules.
type ListRulesResponse struct {
	Rules         []Rule `json:"rules"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}

// ListRules returns one page of the instance's detection rules. A pageSize
// of zero uses the server default.
func (c *Client) ListRules(ctx context.Context, pageSize int, pageToken string) (*ListRulesResponse, error) {
	var out ListRulesResponse
	if err := c.get(ctx, "/rules", pageQuery(pageSize, pageToken), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRule returns a single rule. ruleID is the bare id (e.g. "ru_...") or a
// full resource name.
func (c *Client) GetRule(ctx context.Context, ruleID string) (*Rule, error) {
	ruleID = strings.TrimSpace(ruleID)
	if i := strings.LastIndex(ruleID, "/rules/"); i >= 0 {
		ruleID = ruleID[i+len("/rules/"):]
	}
	if ruleID == "" {
		return nil, errors.New("chronicle: rule id must not be empty")
	}
	var out Rule
	if err := c.get(ctx, "/rules/"+url.PathEscape(ruleID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UDMQuery describes a UDM event search.
type UDMQuery struct {
	// Query is a UDM search expression (e.g. `metadata.event_type = "NETWORK_CONNECTION"`).
	Query string

	// Start and End bound the event time range.
	Start time.Time
	End   time.Time

	// Limit caps the number of returned events. Zero uses the server default.
	Limit int
}

// UDMEvent is a single matched event. The UDM payload is passed through
// unmodified.
type UDMEvent struct {
	Name string          `json:"name,omitempty"`
	UDM  json.RawMessage `json:"udm,omitempty"`
}

// UDMSearchResponse holds the events matched by [Client.SearchUDM].
type UDMSearchResponse struct {
	Events            []UDMEvent `json:"events"`
	MoreDataAvailable bool       `json:"moreDataAvailable,omitempty"`
}

// SearchUDM runs a UDM search over the given time range.
func (c *Client) SearchUDM(ctx context.Context, q UDMQuery) (*UDMSearchResponse, error) {
	if strings.TrimSpace(q.Query) == "" {
		return nil, errors.New("chronicle: udm query must not be empty")
	}
	if q.Start.IsZero() || q.End.IsZero() || !q.Start.Before(q.End) {
		return nil, errors.New("chronicle: udm search requires a start time before the end time")
	}

	v := url.Values{}
	v.Set("query", q.Query)
	v.Set("timeRange.start_time", q.Start.UTC().Format(time.RFC3339))
	v.Set("timeRange.end_time", q.End.UTC().Format(time.RFC3339))
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}

	var out UDMSearchResponse
	if err := c.get(ctx, ":udmSearch", v, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DataTable is a Chronicle data table.
type DataTable struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	Description string `json:"description,omitempty"`
	CreateTime  string `json:"createTime,omitempty"`
	UpdateTime  string `json:"updateTime,omitempty"`
}

// ListDataTablesResponse is a page of data tables.
type ListDataTablesResponse struct {
	DataTables    []DataTable `json:"dataTables"`
	NextPageToken string      `json:"nextPageToken,omitempty"`
}

// ListDataTables returns one page of the instance's data tables.
func (c *Client) ListDataTables(ctx context.Context, pageSize int, pageToken string) (*ListDataTablesResponse, error) {
	var out ListDataTablesResponse
	if err := c.get(ctx, "/dataTables", pageQuery(pageSize, pageToken), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func pageQuery(pageSize int, pageToken string) url.Values {
	v := url.Values{}
	if pageSize > 0 {
		v.Set("pageSize", strconv.Itoa(pageSize))
	}
	if pageToken != "" {
		v.Set("pageToken", pageToken)
	}
	return v
}
