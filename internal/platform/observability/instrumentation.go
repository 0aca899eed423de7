package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type spanKey struct{}

// EndFunc finishes a span. attrs are added to the end record, e.g. the login
// result code.
type EndFunc func(err error, attrs ...slog.Attr)

// SpanID returns the id of the innermost span carried by ctx, or "".
func SpanID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(spanKey{}).(string)
	return id
}

// StartSpan logs the start of operation and returns a context carrying the new
// span id, so nested spans record their parent.
func StartSpan(ctx context.Context, component, operation string, attrs ...slog.Attr) (context.Context, EndFunc) {
	logger, _ := currentLogger()
	if logger == nil {
		return ctx, func(error, ...slog.Attr) {}
	}

	id := uuid.NewString()
	base := []slog.Attr{
		slog.String("component", component),
		slog.String("operation", operation),
		slog.String("span_id", id),
	}
	if parent := SpanID(ctx); parent != "" {
		base = append(base, slog.String("parent_id", parent))
	}
	base = append(base, attrs...)
	ctx = context.WithValue(ctx, spanKey{}, id)

	start := time.Now()
	logger.LogAttrs(ctx, slog.LevelDebug, "obs span start", base...)

	return ctx, func(err error, extra ...slog.Attr) {
		level := slog.LevelDebug
		end := append(append([]slog.Attr{}, base...), slog.Duration("duration", time.Since(start)))
		end = append(end, extra...)
		if err != nil {
			level = slog.LevelError
			end = append(end, slog.Any("error", err))
		}
		logger.LogAttrs(ctx, level, "obs span end", end...)
	}
}

// RecordMetric logs a metric datapoint, tagged with the current span.
func RecordMetric(ctx context.Context, name string, value float64, labels map[string]string) {
	logger, _ := currentLogger()
	if logger == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("metric", name),
		slog.Float64("value", value),
	}
	if id := SpanID(ctx); id != "" {
		attrs = append(attrs, slog.String("span_id", id))
	}
	for k, v := range labels {
		attrs = append(attrs, slog.String(k, v))
	}

	logger.LogAttrs(ctx, slog.LevelDebug, "obs metric", attrs...)
}
