package secops

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/MrWong99/secops-mcp/internal/chronicle"
	"github.com/MrWong99/secops-mcp/internal/config"
	"github.com/MrWong99/secops-mcp/internal/credential"
	"github.com/MrWong99/secops-mcp/internal/credential/credentialtest"
	"github.com/MrWong99/secops-mcp/internal/mcp/tools"
	"github.com/MrWong99/secops-mcp/internal/resolver"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeAPI is a minimal Chronicle backend. It records every request.
type fakeAPI struct {
	mu       sync.Mutex
	requests []*http.Request
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/rules"):
		_, _ = io.WriteString(w, `{"rules":[{"name":"r/ru_1","displayName":"Suspicious login"}],"nextPageToken":"p2"}`)
	case strings.Contains(r.URL.Path, "/rules/ru_missing"):
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"code":404,"message":"rule not found","status":"NOT_FOUND"}}`)
	case strings.Contains(r.URL.Path, "/rules/"):
		_, _ = io.WriteString(w, `{"name":"r/ru_1","text":"rule test { condition: true }"}`)
	case strings.HasSuffix(r.URL.Path, ":udmSearch"):
		_, _ = io.WriteString(w, `{"events":[{"name":"e1","udm":{"metadata":{"eventType":"USER_LOGIN"}}}],"moreDataAvailable":true}`)
	case strings.HasSuffix(r.URL.Path, "/dataTables"):
		_, _ = io.WriteString(w, `{}`)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeAPI) last(t *testing.T) *http.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("no request reached the API")
	}
	return f.requests[len(f.requests)-1]
}

func (f *fakeAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// newTools returns the tool set backed by a real resolver whose factory
// points clients at api.
func newTools(t *testing.T, api http.Handler, env map[string]string, src credential.Source) map[string]tools.Tool {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	if src == nil {
		src = credential.EmbeddedSource{Document: string(credentialtest.Document(t, nil))}
	}
	r := resolver.New(
		resolver.WithEnv(config.MapLookup(env)),
		resolver.WithSource(src),
		resolver.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		resolver.WithFactory(func(ctx context.Context, opts chronicle.Options) (*chronicle.Client, error) {
			opts.BaseURL = srv.URL
			opts.HTTPClient = srv.Client()
			opts.TokenSource = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"})
			return chronicle.New(ctx, opts)
		}),
	)

	out := make(map[string]tools.Tool)
	for _, tool := range Tools(r, WithClock(func() time.Time { return fixedNow })) {
		out[tool.Name] = tool
	}
	return out
}

func call(t *testing.T, ts map[string]tools.Tool, name, args string) (string, error) {
	t.Helper()
	tool, ok := ts[name]
	if !ok {
		t.Fatalf("tool %q not registered", name)
	}
	return tool.Handler(context.Background(), args)
}

func TestTools_Metadata(t *testing.T) {
	t.Parallel()

	want := []string{"list_security_rules", "get_security_rule", "search_udm", "list_data_tables", "get_client_status"}
	got := Tools(nil)
	if len(got) != len(want) {
		t.Fatalf("len(Tools) = %d, want %d", len(got), len(want))
	}
	for i, tool := range got {
		if tool.Name != want[i] {
			t.Errorf("tool %d = %q, want %q", i, tool.Name, want[i])
		}
		if !tool.ReadOnly {
			t.Errorf("%s: ReadOnly = false", tool.Name)
		}
		if tool.InputSchema["type"] != "object" {
			t.Errorf("%s: schema type = %v", tool.Name, tool.InputSchema["type"])
		}
		props, _ := tool.InputSchema["properties"].(map[string]any)
		for _, p := range []string{"project_id", "customer_id", "region"} {
			if _, ok := props[p]; !ok {
				t.Errorf("%s: missing %s property", tool.Name, p)
			}
		}
	}
}

func TestListSecurityRules(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{}
	ts := newTools(t, api, nil, nil)

	out, err := call(t, ts, "list_security_rules", `{"page_size":5,"page_token":"abc"}`)
	if err != nil {
		t.Fatalf("list_security_rules: %v", err)
	}
	var page chronicle.ListRulesResponse
	if err := json.Unmarshal([]byte(out), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Rules) != 1 || page.Rules[0].DisplayName != "Suspicious login" || page.NextPageToken != "p2" {
		t.Errorf("page = %+v", page)
	}

	req := api.last(t)
	wantPath := "/v1alpha/" + chronicle.InstancePath(config.DefaultProjectID, config.DefaultRegion, config.DefaultCustomerID) + "/rules"
	if req.URL.Path != wantPath {
		t.Errorf("path = %q, want %q", req.URL.Path, wantPath)
	}
	if q := req.URL.Query(); q.Get("pageSize") != "5" || q.Get("pageToken") != "abc" {
		t.Errorf("query = %v", q)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer test-token" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestListSecurityRules_ScopeOverrides(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{}
	ts := newTools(t, api, map[string]string{config.EnvRegion: "eu"}, nil)

	if _, err := call(t, ts, "list_security_rules", `{"project_id":"p-arg"}`); err != nil {
		t.Fatalf("list_security_rules: %v", err)
	}
	want := "/v1alpha/" + chronicle.InstancePath("p-arg", "eu", config.DefaultCustomerID) + "/rules"
	if got := api.last(t).URL.Path; got != want {
		t.Errorf("path = %q, want %q", got, want)
	}
	if got := api.last(t).URL.Query().Get("pageSize"); got != "50" {
		t.Errorf("default pageSize = %q, want 50", got)
	}
}

func TestGetSecurityRule(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{}
	ts := newTools(t, api, nil, nil)

	out, err := call(t, ts, "get_security_rule", `{"rule_id":"ru_1"}`)
	if err != nil {
		t.Fatalf("get_security_rule: %v", err)
	}
	if !strings.Contains(out, "condition: true") {
		t.Errorf("output = %s", out)
	}

	_, err = call(t, ts, "get_security_rule", `{"rule_id":"ru_missing"}`)
	if err == nil || !strings.Contains(err.Error(), "rule not found") {
		t.Errorf("missing rule err = %v", err)
	}

	before := api.count()
	if _, err := call(t, ts, "get_security_rule", `{}`); err == nil {
		t.Error("empty rule_id accepted")
	}
	if api.count() != before {
		t.Error("empty rule_id reached the API")
	}
}

func TestSearchUDM(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{}
	ts := newTools(t, api, nil, nil)

	out, err := call(t, ts, "search_udm", `{"query":"metadata.event_type = \"USER_LOGIN\"","hours_back":2,"limit":10}`)
	if err != nil {
		t.Fatalf("search_udm: %v", err)
	}
	var res searchResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Count != 1 || !res.MoreDataAvailable {
		t.Errorf("result = %+v", res)
	}
	if res.StartTime != "2026-03-01T10:00:00Z" || res.EndTime != "2026-03-01T12:00:00Z" {
		t.Errorf("window = %s..%s", res.StartTime, res.EndTime)
	}

	q := api.last(t).URL.Query()
	if q.Get("timeRange.start_time") != "2026-03-01T10:00:00Z" || q.Get("limit") != "10" {
		t.Errorf("query = %v", q)
	}
}

func TestSearchUDM_ExplicitWindow(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{}
	ts := newTools(t, api, nil, nil)

	_, err := call(t, ts, "search_udm", `{"query":"x","start_time":"2026-01-01T00:00:00Z","end_time":"2026-01-02T00:00:00+01:00"}`)
	if err != nil {
		t.Fatalf("search_udm: %v", err)
	}
	q := api.last(t).URL.Query()
	if q.Get("timeRange.end_time") != "2026-01-01T23:00:00Z" {
		t.Errorf("end_time = %q", q.Get("timeRange.end_time"))
	}
	if q.Get("limit") != "100" {
		t.Errorf("default limit = %q", q.Get("limit"))
	}
}

func TestSearchUDM_InvalidArguments(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{}
	ts := newTools(t, api, nil, nil)

	tests := []struct {
		name string
		args string
	}{
		{"malformed json", `{"query":`},
		{"empty query", `{"query":"  "}`},
		{"bad start", `{"query":"x","start_time":"yesterday"}`},
		{"bad end", `{"query":"x","end_time":"now"}`},
		{"inverted window", `{"query":"x","start_time":"2026-03-02T00:00:00Z"}`},
		{"negative hours", `{"query":"x","hours_back":-1}`},
		{"hours above maximum", `{"query":"x","hours_back":87841}`},
		{"limit too large", `{"query":"x","limit":10001}`},
	}
	for _, tt := range tests {
		if _, err := call(t, ts, "search_udm", tt.args); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}

	// Large enough to overflow time.Duration if multiplied unchecked.
	_, err := call(t, ts, "search_udm", `{"query":"x","hours_back":3000000}`)
	if err == nil || !strings.Contains(err.Error(), "hours_back must be between 1 and 87840") {
		t.Errorf("huge hours_back err = %v", err)
	}
	if api.count() != 0 {
		t.Errorf("invalid arguments reached the API %d times", api.count())
	}
}

func TestListDataTables_EmptyPage(t *testing.T) {
	t.Parallel()
	ts := newTools(t, &fakeAPI{}, nil, nil)

	out, err := call(t, ts, "list_data_tables", "")
	if err != nil {
		t.Fatalf("list_data_tables: %v", err)
	}
	if out != `{"dataTables":[]}` {
		t.Errorf("output = %s", out)
	}
}

func TestPageSizeBounds(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{}
	ts := newTools(t, api, nil, nil)

	for _, args := range []string{`{"page_size":-1}`, `{"page_size":1001}`} {
		if _, err := call(t, ts, "list_data_tables", args); err == nil {
			t.Errorf("%s accepted", args)
		}
	}
	if api.count() != 0 {
		t.Error("invalid page size reached the API")
	}
}

func TestTools_AbsentClient(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{}
	ts := newTools(t, api, nil, credential.FileSource{Dir: t.TempDir()})

	for _, name := range []string{"list_security_rules", "list_data_tables"} {
		_, err := call(t, ts, name, `{}`)
		if err == nil || !strings.Contains(err.Error(), "credential_not_found") {
			t.Errorf("%s: err = %v, want credential_not_found", name, err)
		}
	}
	_, err := call(t, ts, "search_udm", `{"query":"x"}`)
	if err == nil || !strings.Contains(err.Error(), "unavailable") {
		t.Errorf("search_udm: err = %v", err)
	}
	if api.count() != 0 {
		t.Error("absent client reached the API")
	}
}

func TestGetClientStatus(t *testing.T) {
	t.Parallel()

	t.Run("available", func(t *testing.T) {
		t.Parallel()
		ts := newTools(t, &fakeAPI{}, nil, nil)
		out, err := call(t, ts, "get_client_status", `{"region":"eu"}`)
		if err != nil {
			t.Fatalf("get_client_status: %v", err)
		}
		var st statusResult
		if err := json.Unmarshal([]byte(out), &st); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !st.Available || st.Reason != "none" || st.Region != "eu" {
			t.Errorf("status = %+v", st)
		}
		if st.Instance != chronicle.InstancePath(config.DefaultProjectID, "eu", config.DefaultCustomerID) {
			t.Errorf("instance = %q", st.Instance)
		}
	})

	t.Run("invalid configuration", func(t *testing.T) {
		t.Parallel()
		ts := newTools(t, &fakeAPI{}, map[string]string{config.EnvCustomerID: ""}, nil)
		out, err := call(t, ts, "get_client_status", "")
		if err != nil {
			t.Fatalf("get_client_status: %v", err)
		}
		var st statusResult
		if err := json.Unmarshal([]byte(out), &st); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if st.Available || st.Reason != "invalid_configuration" || !strings.Contains(st.Error, "customer_id") {
			t.Errorf("status = %+v", st)
		}
	})
}
