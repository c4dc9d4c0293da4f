package llm

import "context"

// OCIProvider is a placeholder for Oracle Cloud Infrastructure's Generative
// AI service. No OCI SDK is wired into this module, so Chat always degrades
// rather than erroring: callers treat an empty response as "no answer
// available" and fall back to raw context.
type OCIProvider struct{}

func NewOCIProvider() *OCIProvider { return &OCIProvider{} }

func (p *OCIProvider) Chat(_ context.Context, _ []Message, _ string) (Message, error) {
	return Message{}, nil
}
