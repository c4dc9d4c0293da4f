package llm

import (
	"context"
	"encoding/json"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/shadabshaukat/spaces-ai/internal/observability"
)

var (
	payloadMu            sync.RWMutex
	enablePayloadLogging bool

	tokenOnce         sync.Once
	promptCounter     otelmetric.Int64Counter
	completionCounter otelmetric.Int64Counter
)

// ConfigurePayloadLogging enables debug-level logging of redacted prompts.
// Off by default: prompts carry user document content.
func ConfigurePayloadLogging(enable bool) {
	payloadMu.Lock()
	defer payloadMu.Unlock()
	enablePayloadLogging = enable
}

func payloadLoggingEnabled() bool {
	payloadMu.RLock()
	defer payloadMu.RUnlock()
	return enablePayloadLogging
}

func ensureTokenInstruments() {
	tokenOnce.Do(func() {
		m := otel.Meter("spaces-ai/llm")
		promptCounter, _ = m.Int64Counter("llm.prompt_tokens",
			otelmetric.WithDescription("Cumulative prompt tokens by model"))
		completionCounter, _ = m.Int64Counter("llm.completion_tokens",
			otelmetric.WithDescription("Cumulative completion tokens by model"))
	})
}

// RecordTokenUsage adds one call's token counts to the per-model OTel
// counters. Providers call this after every successful completion.
func RecordTokenUsage(ctx context.Context, model string, promptTokens, completionTokens int) {
	if model == "" || (promptTokens == 0 && completionTokens == 0) {
		return
	}
	ensureTokenInstruments()
	attrs := otelmetric.WithAttributes(attribute.String("llm.model", model))
	if promptCounter != nil && promptTokens > 0 {
		promptCounter.Add(ctx, int64(promptTokens), attrs)
	}
	if completionCounter != nil && completionTokens > 0 {
		completionCounter.Add(ctx, int64(completionTokens), attrs)
	}
}

// StartRequestSpan opens a client span for one provider call, carrying the
// model and prompt size so a Deep Research turn's LLM fan-out is legible in
// a trace.
func StartRequestSpan(ctx context.Context, operation, model string, messages int) (context.Context, trace.Span) {
	return otel.Tracer("spaces-ai/llm").Start(ctx, operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.model", model),
			attribute.Int("llm.messages", messages),
		),
	)
}

// LogCallResult emits the per-call debug line every provider shares.
func LogCallResult(ctx context.Context, provider, model string, promptTokens, completionTokens int) {
	observability.LoggerWithTrace(ctx).Debug().
		Str("provider", provider).
		Str("model", model).
		Int("prompt_tokens", promptTokens).
		Int("completion_tokens", completionTokens).
		Msg("llm_chat_ok")
}

// LogRedactedPrompt logs a redacted copy of the outgoing messages at debug
// level when payload logging is on.
func LogRedactedPrompt(ctx context.Context, msgs []Message) {
	if !payloadLoggingEnabled() {
		return
	}
	b, err := json.Marshal(msgs)
	if err != nil {
		return
	}
	l := observability.LoggerWithTrace(ctx).With().
		RawJSON("prompt", observability.RedactJSON(b)).Logger()
	l.Debug().Msg("llm_request")
}
