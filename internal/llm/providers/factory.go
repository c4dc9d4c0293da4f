package providers

import (
	"fmt"
	"net/http"

	"github.com/shadabshaukat/spaces-ai/internal/config"
	"github.com/shadabshaukat/spaces-ai/internal/llm"
	"github.com/shadabshaukat/spaces-ai/internal/llm/anthropic"
	"github.com/shadabshaukat/spaces-ai/internal/llm/google"
	openaillm "github.com/shadabshaukat/spaces-ai/internal/llm/openai"
)

// Build constructs an llm.Provider based on the configured provider name.
// Self-hosted OpenAI-compatible servers use the openai arm with base_url
// pointed at them. OCI and Ollama resolve to stub providers with no wired
// SDK, see internal/llm/{oci,ollama}.go.
func Build(cfg config.Config, httpClient *http.Client) (llm.Provider, error) {
	switch cfg.LLMClient.Provider {
	case "", "openai":
		return openaillm.New(cfg.LLMClient.OpenAI, httpClient), nil
	case "anthropic":
		return anthropic.New(cfg.LLMClient.Anthropic, httpClient), nil
	case "google":
		return google.New(cfg.LLMClient.Google, httpClient)
	case "oci":
		return llm.NewOCIProvider(), nil
	case "ollama":
		return llm.NewOllamaProvider(), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.LLMClient.Provider)
	}
}
