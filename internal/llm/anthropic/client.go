// Package anthropic implements llm.Provider against the Anthropic Messages
// API.
package anthropic

import (
	"context"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/shadabshaukat/spaces-ai/internal/config"
	"github.com/shadabshaukat/spaces-ai/internal/llm"
	"github.com/shadabshaukat/spaces-ai/internal/observability"
)

const defaultMaxTokens int64 = 1024

type Client struct {
	sdk         anthropic.Client
	model       string
	maxTokens   int64
	cacheSystem bool
}

func New(cfg config.AnthropicConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Client{
		sdk:         anthropic.NewClient(opts...),
		model:       model,
		maxTokens:   maxTokens,
		cacheSystem: cfg.CacheSystemPrompt,
	}
}

func (c *Client) pickModel(model string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return c.model
}

func (c *Client) Chat(ctx context.Context, msgs []llm.Message, model string) (llm.Message, error) {
	effectiveModel := c.pickModel(model)
	ctx, span := llm.StartRequestSpan(ctx, "Anthropic Chat", effectiveModel, len(msgs))
	defer span.End()
	llm.LogRedactedPrompt(ctx, msgs)

	system, converted := c.adaptMessages(msgs)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(effectiveModel),
		Messages:  converted,
		System:    system,
		MaxTokens: c.maxTokens,
	}
	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		span.RecordError(err)
		observability.LoggerWithTrace(ctx).Warn().Err(err).
			Str("model", effectiveModel).Msg("anthropic_chat_failed")
		return llm.Message{}, err
	}

	llm.RecordTokenUsage(ctx, effectiveModel,
		int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens))
	llm.LogCallResult(ctx, "anthropic", effectiveModel,
		int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens))

	var b strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	return llm.Message{Role: "assistant", Content: b.String()}, nil
}

// adaptMessages splits system turns out into the Messages API's top-level
// system field; the Anthropic API rejects a "system" role inside messages.
func (c *Client) adaptMessages(msgs []llm.Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(m.Role)) {
		case "system":
			block := anthropic.TextBlockParam{Text: content}
			if c.cacheSystem {
				block.CacheControl = anthropic.CacheControlEphemeralParam{}
			}
			system = append(system, block)
		case "assistant":
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(content)))
		}
	}
	return system, out
}
