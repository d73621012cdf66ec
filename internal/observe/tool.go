package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/secops-mcp/internal/mcp/tools"
)

// Tool call statuses recorded on [Metrics.ToolCalls].
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// WrapTool returns t with its handler instrumented: every call runs inside a
// "tool <name>" span, is counted on [Metrics.ToolCalls], has its latency
// recorded on [Metrics.ToolExecutionDuration] and is logged with trace
// context. Errors from the handler are passed through unchanged.
func WrapTool(m *Metrics, t tools.Tool) tools.Tool {
	next := t.Handler
	name := t.Name
	t.Handler = func(ctx context.Context, args string) (string, error) {
		ctx, span := StartToolSpan(ctx, name)
		defer span.End()

		start := time.Now()
		out, err := next(ctx, args)
		elapsed := time.Since(start)

		status := StatusOK
		if err != nil {
			status = StatusError
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		m.RecordToolCall(ctx, name, status)
		m.ToolExecutionDuration.Record(ctx, elapsed.Seconds(),
			metric.WithAttributes(attribute.String("tool", name)),
		)

		log := Logger(ctx).With("duration", elapsed)
		if err != nil {
			log.Warn("tool call failed", "err", err)
		} else {
			log.Debug("tool call completed")
		}
		return out, err
	}
	return t
}

// WrapTools applies [WrapTool] to every tool in ts.
func WrapTools(m *Metrics, ts []tools.Tool) []tools.Tool {
	out := make([]tools.Tool, len(ts))
	for i, t := range ts {
		out[i] = WrapTool(m, t)
	}
	return out
}
