package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the server tracer.
const tracerName = "github.com/MrWong99/secops-mcp"

// Span attributes attached to MCP work.
const (
	AttrToolName  = attribute.Key("mcp.tool.name")
	AttrSessionID = attribute.Key("mcp.session.id")
)

type toolKey struct{}

// Tracer returns the server tracer from the global [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span named name. The caller must end it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartToolSpan starts the server span for one call of the named MCP tool
// and records the tool name in the returned context, where [ToolName] and
// [Logger] pick it up.
func StartToolSpan(ctx context.Context, tool string) (context.Context, trace.Span) {
	ctx = context.WithValue(ctx, toolKey{}, tool)
	return StartSpan(ctx, "tool "+tool,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(AttrToolName.String(tool)),
	)
}

// ToolName returns the tool whose call ctx belongs to, or "".
func ToolName(ctx context.Context) string {
	name, _ := ctx.Value(toolKey{}).(string)
	return name
}

// TraceID returns the hex trace ID of the active span in ctx, or "".
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns [slog.Default] carrying the tool name of the current call
// and the trace_id and span_id of the active span, whichever are present.
func Logger(ctx context.Context) *slog.Logger {
	var attrs []any
	if tool := ToolName(ctx); tool != "" {
		attrs = append(attrs, slog.String("tool", tool))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if len(attrs) == 0 {
		return slog.Default()
	}
	return slog.Default().With(attrs...)
}
