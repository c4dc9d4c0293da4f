// Package urlingest crawls user-supplied URLs into a conversation-scoped
// corpus: bounded BFS, HTML cleaning, chunking, embedding, and persistence
// into ConversationExternalDoc, with vector-ranked retrieval back out.
package urlingest

import "time"

// ExternalDoc is one chunk of a fetched external URL, scoped to a
// conversation rather than a space.
type ExternalDoc struct {
	ID           string
	UserID       string
	SpaceID      string
	ConversationID string
	URL          string
	ParentURL    string
	Depth        int
	ChunkIndex   int
	Title        string
	Content      string
	Snippet      string
	ContentHash  string
	Embedding    []float32
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Envelope is the retrieval-facing shape returned to callers: title, url,
// snippet, and content capped at 2000 characters.
type Envelope struct {
	Title   string
	URL     string
	Snippet string
	Content string
}

const maxEnvelopeContent = 2000
