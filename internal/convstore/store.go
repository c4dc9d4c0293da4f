package convstore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shadabshaukat/spaces-ai/internal/apperr"
)

// Store is the Postgres-backed Conversation Store.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the conversation/step/notebook tables on first use.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS deep_research_conversations (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	space_id TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS deep_research_steps (
	conversation_id TEXT NOT NULL REFERENCES deep_research_conversations(id) ON DELETE CASCADE,
	step_index INT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	context_refs TEXT[] NOT NULL DEFAULT '{}',
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (conversation_id, step_index)
);

CREATE TABLE IF NOT EXISTS notebook_entries (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES deep_research_conversations(id) ON DELETE CASCADE,
	title TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS deep_research_conversations_user_updated_idx
	ON deep_research_conversations(user_id, updated_at DESC);
`)
	if err != nil {
		return apperr.New("convstore.EnsureSchema", apperr.Internal, err)
	}
	return nil
}

// hasAccess reports whether userID may act on a conversation owned by owner.
func hasAccess(userID, owner string) bool {
	return userID != "" && userID == owner
}

func (s *Store) scanConversation(row pgx.Row) (Conversation, error) {
	var c Conversation
	if err := row.Scan(&c.ID, &c.UserID, &c.SpaceID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Conversation{}, err
	}
	return c, nil
}

// EnsureConversation idempotently upserts a conversation by id: the first
// caller's title wins, later callers only touch updated_at.
func (s *Store) EnsureConversation(ctx context.Context, userID, spaceID, id, title string) (Conversation, error) {
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	row := s.pool.QueryRow(ctx, `
WITH ins AS (
  INSERT INTO deep_research_conversations (id, user_id, space_id, title)
  VALUES ($1, $2, $3, $4)
  ON CONFLICT (id) DO UPDATE SET updated_at = now()
  WHERE deep_research_conversations.user_id = EXCLUDED.user_id
  RETURNING id, user_id, space_id, title, created_at, updated_at
)
SELECT id, user_id, space_id, title, created_at, updated_at FROM ins
UNION ALL
SELECT id, user_id, space_id, title, created_at, updated_at
FROM deep_research_conversations WHERE id = $1
LIMIT 1`, id, userID, spaceID, title)
	c, err := s.scanConversation(row)
	if err != nil {
		return Conversation{}, apperr.New("convstore.EnsureConversation", apperr.Internal, err)
	}
	if !hasAccess(userID, c.UserID) {
		return Conversation{}, apperr.New("convstore.EnsureConversation", apperr.NotFound, apperr.ErrNotFound)
	}
	return c, nil
}

func (s *Store) verifyOwnership(ctx context.Context, userID, conversationID string) error {
	row := s.pool.QueryRow(ctx, `SELECT user_id FROM deep_research_conversations WHERE id = $1`, conversationID)
	var owner string
	if err := row.Scan(&owner); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.New("convstore.verifyOwnership", apperr.NotFound, apperr.ErrNotFound)
		}
		return apperr.New("convstore.verifyOwnership", apperr.Internal, err)
	}
	if !hasAccess(userID, owner) {
		return apperr.New("convstore.verifyOwnership", apperr.NotFound, apperr.ErrNotFound)
	}
	return nil
}

// AppendStep atomically computes the next dense step_index for the
// conversation and inserts the step, touching the conversation's
// updated_at in the same transaction.
func (s *Store) AppendStep(ctx context.Context, userID, conversationID string, role Role, content string, contextRefs []string, metadata map[string]any) (Step, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Step{}, apperr.New("convstore.AppendStep", apperr.Internal, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var owner string
	if err := tx.QueryRow(ctx, `SELECT user_id FROM deep_research_conversations WHERE id = $1 FOR UPDATE`, conversationID).Scan(&owner); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Step{}, apperr.New("convstore.AppendStep", apperr.NotFound, apperr.ErrNotFound)
		}
		return Step{}, apperr.New("convstore.AppendStep", apperr.Internal, err)
	}
	if !hasAccess(userID, owner) {
		return Step{}, apperr.New("convstore.AppendStep", apperr.NotFound, apperr.ErrNotFound)
	}

	var nextIndex int
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(step_index) + 1, 0) FROM deep_research_steps WHERE conversation_id = $1`, conversationID).Scan(&nextIndex); err != nil {
		return Step{}, apperr.New("convstore.AppendStep", apperr.Internal, err)
	}

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return Step{}, apperr.New("convstore.AppendStep", apperr.InvalidArgument, err)
	}
	createdAt := time.Now().UTC()
	if _, err := tx.Exec(ctx, `
INSERT INTO deep_research_steps (conversation_id, step_index, role, content, context_refs, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		conversationID, nextIndex, string(role), content, contextRefs, metaJSON, createdAt); err != nil {
		return Step{}, apperr.New("convstore.AppendStep", apperr.Internal, err)
	}

	if _, err := tx.Exec(ctx, `UPDATE deep_research_conversations SET updated_at = now() WHERE id = $1`, conversationID); err != nil {
		return Step{}, apperr.New("convstore.AppendStep", apperr.Internal, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Step{}, apperr.New("convstore.AppendStep", apperr.Internal, err)
	}

	return Step{
		ConversationID: conversationID,
		StepIndex:      nextIndex,
		Role:           role,
		Content:        content,
		ContextRefs:    contextRefs,
		Metadata:       metadata,
		CreatedAt:      createdAt,
	}, nil
}

// ListConversations returns a user's conversations, optionally narrowed to
// a space, most-recently-updated first, capped at 100, with step count and
// first user question attached.
func (s *Store) ListConversations(ctx context.Context, userID, spaceID string) ([]Conversation, error) {
	query := `
SELECT c.id, c.user_id, c.space_id, c.title, c.created_at, c.updated_at,
       COALESCE((SELECT COUNT(*) FROM deep_research_steps st WHERE st.conversation_id = c.id), 0),
       COALESCE((SELECT st.content FROM deep_research_steps st WHERE st.conversation_id = c.id AND st.role = 'user' ORDER BY st.step_index ASC LIMIT 1), '')
FROM deep_research_conversations c
WHERE c.user_id = $1`
	args := []any{userID}
	if spaceID != "" {
		query += ` AND c.space_id = $2`
		args = append(args, spaceID)
	}
	query += ` ORDER BY c.updated_at DESC LIMIT 100`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.New("convstore.ListConversations", apperr.Internal, err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.SpaceID, &c.Title, &c.CreatedAt, &c.UpdatedAt, &c.StepCount, &c.FirstQuestion); err != nil {
			return nil, apperr.New("convstore.ListConversations", apperr.Internal, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetConversationDetail loads the conversation header, its steps in index
// order, and its notebook entries.
func (s *Store) GetConversationDetail(ctx context.Context, userID, conversationID string) (Detail, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, user_id, space_id, title, created_at, updated_at FROM deep_research_conversations WHERE id = $1`, conversationID)
	conv, err := s.scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Detail{}, apperr.New("convstore.GetConversationDetail", apperr.NotFound, apperr.ErrNotFound)
		}
		return Detail{}, apperr.New("convstore.GetConversationDetail", apperr.Internal, err)
	}
	if !hasAccess(userID, conv.UserID) {
		return Detail{}, apperr.New("convstore.GetConversationDetail", apperr.NotFound, apperr.ErrNotFound)
	}

	steps, err := s.listSteps(ctx, conversationID)
	if err != nil {
		return Detail{}, err
	}
	notebook, err := s.listNotebook(ctx, conversationID)
	if err != nil {
		return Detail{}, err
	}
	return Detail{Conversation: conv, Steps: steps, Notebook: notebook}, nil
}

func (s *Store) listSteps(ctx context.Context, conversationID string) ([]Step, error) {
	rows, err := s.pool.Query(ctx, `
SELECT conversation_id, step_index, role, content, context_refs, metadata, created_at
FROM deep_research_steps
WHERE conversation_id = $1
ORDER BY step_index ASC`, conversationID)
	if err != nil {
		return nil, apperr.New("convstore.listSteps", apperr.Internal, err)
	}
	defer rows.Close()

	var out []Step
	for rows.Next() {
		var st Step
		var role string
		var metaRaw []byte
		if err := rows.Scan(&st.ConversationID, &st.StepIndex, &role, &st.Content, &st.ContextRefs, &metaRaw, &st.CreatedAt); err != nil {
			return nil, apperr.New("convstore.listSteps", apperr.Internal, err)
		}
		st.Role = Role(role)
		if len(metaRaw) > 0 {
			_ = json.Unmarshal(metaRaw, &st.Metadata)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) listNotebook(ctx context.Context, conversationID string) ([]NotebookEntry, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, conversation_id, title, content, source, created_at, updated_at
FROM notebook_entries
WHERE conversation_id = $1
ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, apperr.New("convstore.listNotebook", apperr.Internal, err)
	}
	defer rows.Close()

	var out []NotebookEntry
	for rows.Next() {
		var n NotebookEntry
		if err := rows.Scan(&n.ID, &n.ConversationID, &n.Title, &n.Content, &n.Source, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, apperr.New("convstore.listNotebook", apperr.Internal, err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// UpdateTitle renames a conversation the caller owns.
func (s *Store) UpdateTitle(ctx context.Context, userID, conversationID, title string) error {
	cmd, err := s.pool.Exec(ctx, `
UPDATE deep_research_conversations SET title = $3, updated_at = now()
WHERE id = $1 AND user_id = $2`, conversationID, userID, title)
	if err != nil {
		return apperr.New("convstore.UpdateTitle", apperr.Internal, err)
	}
	if cmd.RowsAffected() == 0 {
		return apperr.New("convstore.UpdateTitle", apperr.NotFound, apperr.ErrNotFound)
	}
	return nil
}

// AddNotebookEntry inserts a note on a conversation the caller owns.
func (s *Store) AddNotebookEntry(ctx context.Context, userID, conversationID, title, content, source string) (NotebookEntry, error) {
	if err := s.verifyOwnership(ctx, userID, conversationID); err != nil {
		return NotebookEntry{}, err
	}
	id := uuid.NewString()
	now := time.Now().UTC()
	if _, err := s.pool.Exec(ctx, `
INSERT INTO notebook_entries (id, conversation_id, title, content, source, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)`, id, conversationID, title, content, source, now); err != nil {
		return NotebookEntry{}, apperr.New("convstore.AddNotebookEntry", apperr.Internal, err)
	}
	return NotebookEntry{ID: id, ConversationID: conversationID, Title: title, Content: content, Source: source, CreatedAt: now, UpdatedAt: now}, nil
}

// DeleteNotebookEntry removes a note, verifying the caller owns its parent
// conversation.
func (s *Store) DeleteNotebookEntry(ctx context.Context, userID, conversationID, entryID string) error {
	if err := s.verifyOwnership(ctx, userID, conversationID); err != nil {
		return err
	}
	cmd, err := s.pool.Exec(ctx, `DELETE FROM notebook_entries WHERE id = $1 AND conversation_id = $2`, entryID, conversationID)
	if err != nil {
		return apperr.New("convstore.DeleteNotebookEntry", apperr.Internal, err)
	}
	if cmd.RowsAffected() == 0 {
		return apperr.New("convstore.DeleteNotebookEntry", apperr.NotFound, apperr.ErrNotFound)
	}
	return nil
}
