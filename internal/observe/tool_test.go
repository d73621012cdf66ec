package observe

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/secops-mcp/internal/mcp/tools"
)

func TestWrapTool_Success(t *testing.T) {
	m, reader, exp := setupTelemetry(t)

	var gotArgs string
	tool := WrapTool(m, tools.Tool{
		Name: "list_security_rules",
		Handler: func(ctx context.Context, args string) (string, error) {
			gotArgs = args
			if TraceID(ctx) == "" {
				t.Error("handler context has no active span")
			}
			return "3 rules", nil
		},
	})

	out, err := tool.Handler(context.Background(), `{"page_size":3}`)
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	if out != "3 rules" || gotArgs != `{"page_size":3}` {
		t.Errorf("out = %q, args = %q", out, gotArgs)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "tool list_security_rules" {
		t.Fatalf("spans = %+v", spans)
	}
	if spans[0].Status.Code == codes.Error {
		t.Error("successful call marked span as error")
	}

	rm := collect(t, reader)
	if got := sumByAttr(t, rm, "secops_mcp.tool.calls", "status", StatusOK); got != 1 {
		t.Errorf("ok calls = %d, want 1", got)
	}
	met := findMetric(rm, "secops_mcp.tool_execution.duration")
	if met == nil {
		t.Fatal("duration not recorded")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if v, _ := hist.DataPoints[0].Attributes.Value("tool"); v.AsString() != "list_security_rules" {
		t.Errorf("tool attribute = %q", v.AsString())
	}
}

func TestWrapTool_ErrorPassesThrough(t *testing.T) {
	m, reader, exp := setupTelemetry(t)
	captureDefaultLogger(t)

	want := errors.New("chronicle client unavailable")
	tool := WrapTool(m, tools.Tool{
		Name:    "search_udm",
		Handler: func(context.Context, string) (string, error) { return "", want },
	})

	if _, err := tool.Handler(context.Background(), "{}"); !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Status.Code != codes.Error {
		t.Fatalf("span status = %+v, want error", spans)
	}
	if got := sumByAttr(t, collect(t, reader), "secops_mcp.tool.calls", "status", StatusError); got != 1 {
		t.Errorf("error calls = %d, want 1", got)
	}
}

func TestWrapTools_PreservesMetadata(t *testing.T) {
	m, _, _ := setupTelemetry(t)

	in := []tools.Tool{
		{Name: "a", Description: "first", ReadOnly: true, Handler: func(context.Context, string) (string, error) { return "a", nil }},
		{Name: "b", Description: "second", Handler: func(context.Context, string) (string, error) { return "b", nil }},
	}
	out := WrapTools(m, in)
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i].Name != in[i].Name || out[i].Description != in[i].Description || out[i].ReadOnly != in[i].ReadOnly {
			t.Errorf("tool %d metadata changed: %+v", i, out[i])
		}
		got, _ := out[i].Handler(context.Background(), "")
		if got != in[i].Name {
			t.Errorf("tool %d handler returned %q", i, got)
		}
	}
}
