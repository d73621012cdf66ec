package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTelemetry installs an in-memory tracer provider as the global one and
// returns metrics backed by a manual reader.
func setupTelemetry(t *testing.T) (*Metrics, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	m, reader := newTestMetrics(t)

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })

	return m, reader, exp
}

func serve(h http.Handler, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_EchoesTraceID(t *testing.T) {
	m, _, _ := setupTelemetry(t)

	var inner string
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = TraceID(r.Context())
	}))

	rec := serve(h, http.MethodGet, "/healthz", nil)

	if len(inner) != 32 {
		t.Fatalf("trace ID in handler = %q, want 32 hex chars", inner)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != inner {
		t.Errorf("X-Correlation-ID = %q, want %q", got, inner)
	}
	if rec.Header().Get("traceparent") == "" {
		t.Error("traceparent not injected into response headers")
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	m, _, _ := setupTelemetry(t)
	const incoming = "4bf92f3577b34da6a3ce929d0e0e4736"

	var inner string
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = TraceID(r.Context())
	}))

	hdr := http.Header{}
	hdr.Set("traceparent", "00-"+incoming+"-00f067aa0ba902b7-01")
	rec := serve(h, http.MethodPost, "/mcp", hdr)

	if inner != incoming {
		t.Errorf("trace ID = %q, want %q", inner, incoming)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != incoming {
		t.Errorf("X-Correlation-ID = %q, want %q", got, incoming)
	}
}

func TestMiddleware_SpanCarriesStatus(t *testing.T) {
	m, _, exp := setupTelemetry(t)

	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	rec := serve(h, http.MethodGet, "/readyz", nil)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Name != "HTTP GET /readyz" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	var status int64
	for _, a := range spans[0].Attributes {
		if a.Key == "http.response.status_code" {
			status = a.Value.AsInt64()
		}
	}
	if status != http.StatusServiceUnavailable {
		t.Errorf("span http.response.status_code = %d, want 503", status)
	}
}

func TestMiddleware_TagsMCPSession(t *testing.T) {
	m, _, exp := setupTelemetry(t)

	h := Middleware(m)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	hdr := http.Header{}
	hdr.Set("Mcp-Session-Id", "sess-42")
	serve(h, http.MethodPost, "/mcp", hdr)
	serve(h, http.MethodGet, "/healthz", nil)

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	session := func(i int) string {
		for _, a := range spans[i].Attributes {
			if a.Key == AttrSessionID {
				return a.Value.AsString()
			}
		}
		return ""
	}
	if got := session(0); got != "sess-42" {
		t.Errorf("mcp.session.id = %q, want sess-42", got)
	}
	if got := session(1); got != "" {
		t.Errorf("request without session tagged %q", got)
	}
}

func TestMiddleware_RecordsRequestDuration(t *testing.T) {
	m, reader, _ := setupTelemetry(t)

	h := Middleware(m)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	serve(h, http.MethodGet, "/metrics", nil)
	serve(h, http.MethodGet, "/metrics", nil)

	met := findMetric(collect(t, reader), "secops_mcp.http.request.duration")
	if met == nil {
		t.Fatal("secops_mcp.http.request.duration not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 {
		t.Fatalf("unexpected histogram data: %+v", met.Data)
	}
	dp := hist.DataPoints[0]
	if dp.Count != 2 {
		t.Errorf("count = %d, want 2", dp.Count)
	}
	if v, _ := dp.Attributes.Value("path"); v.AsString() != "/metrics" {
		t.Errorf("path attribute = %q, want /metrics", v.AsString())
	}
	if v, _ := dp.Attributes.Value("method"); v.AsString() != http.MethodGet {
		t.Errorf("method attribute = %q, want GET", v.AsString())
	}
}

func TestStatusRecorder_Flush(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec, statusCode: http.StatusOK}
	sr.Flush()
	if !rec.Flushed {
		t.Error("Flush was not forwarded to the wrapped writer")
	}
	if sr.Unwrap() != rec {
		t.Error("Unwrap did not return the wrapped writer")
	}
}
