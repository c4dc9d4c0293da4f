package llm

import "context"

// Message is one turn of a provider conversation.
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// Provider is the chat-completion contract consumed by the RAG answerer and
// the Deep Research orchestrator. A provider that cannot answer returns an
// empty Message rather than fabricating an error the caller would have to
// classify; callers treat an empty Content as "no LLM available" and degrade
// to their raw retrieval context.
type Provider interface {
	Chat(ctx context.Context, msgs []Message, model string) (Message, error)
}
