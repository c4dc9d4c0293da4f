package llm

import "context"

// OllamaProvider is a placeholder for a locally-hosted Ollama model. No
// Ollama client is wired into this module, so Chat always degrades rather
// than erroring, matching OCIProvider's contract.
type OllamaProvider struct{}

func NewOllamaProvider() *OllamaProvider { return &OllamaProvider{} }

func (p *OllamaProvider) Chat(_ context.Context, _ []Message, _ string) (Message, error) {
	return Message{}, nil
}
