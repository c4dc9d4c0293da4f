// Package convstore is the durable home for Deep Research conversations:
// headers, ordered steps, and notebook entries, all ownership-checked.
package convstore

import "time"

// Conversation is a Deep Research conversation header.
type Conversation struct {
	ID        string
	UserID    string
	SpaceID   string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time

	// StepCount and FirstQuestion are populated by ListConversations only.
	StepCount     int
	FirstQuestion string
}

// Role identifies who produced a conversation step.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Step is one dense, strictly ordered entry in a conversation.
type Step struct {
	ConversationID string
	StepIndex      int
	Role           Role
	Content        string
	ContextRefs    []string
	Metadata       map[string]any
	CreatedAt      time.Time
}

// NotebookEntry is a user-curated note attached to a conversation.
type NotebookEntry struct {
	ID             string
	ConversationID string
	Title          string
	Content        string
	Source         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Detail is the full conversation read model: header, ordered steps, and
// notebook entries.
type Detail struct {
	Conversation Conversation
	Steps        []Step
	Notebook     []NotebookEntry
}
