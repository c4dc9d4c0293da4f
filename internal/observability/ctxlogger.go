package observability

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// LoggerWithTrace returns a logger enriched with the context's trace and
// span ids, so log lines correlate with exported spans.
func LoggerWithTrace(ctx context.Context) *zerolog.Logger {
	l := log.Logger
	if ctx == nil {
		return &l
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return &l
	}
	lc := l.With().Str("trace_id", sc.TraceID().String())
	if sc.HasSpanID() {
		lc = lc.Str("span_id", sc.SpanID().String())
	}
	if sc.IsSampled() {
		lc = lc.Bool("trace_sampled", true)
	}
	l = lc.Logger()
	return &l
}
