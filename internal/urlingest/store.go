package urlingest

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shadabshaukat/spaces-ai/internal/apperr"
	"github.com/shadabshaukat/spaces-ai/internal/vecutil"
)

// Store is the Postgres-backed home for ConversationExternalDoc rows.
type Store struct {
	pool *pgxpool.Pool
	dim  int
}

func NewStore(pool *pgxpool.Pool, dimensions int) *Store {
	return &Store{pool: pool, dim: dimensions}
}

// EnsureSchema creates conversation_external_docs on first use.
func (s *Store) EnsureSchema(ctx context.Context) error {
	vecType := "vector"
	if s.dim > 0 {
		vecType = fmt.Sprintf("vector(%d)", s.dim)
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS conversation_external_docs (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			space_id TEXT NOT NULL DEFAULT '',
			conversation_id TEXT NOT NULL,
			url TEXT NOT NULL,
			parent_url TEXT NOT NULL DEFAULT '',
			depth INT NOT NULL DEFAULT 0,
			chunk_index INT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			snippet TEXT NOT NULL DEFAULT '',
			content_hash TEXT NOT NULL,
			embedding ` + vecType + `,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS conversation_external_docs_unique
			ON conversation_external_docs (user_id, conversation_id, url, chunk_index)`,
	}
	for _, st := range stmts {
		if _, err := s.pool.Exec(ctx, st); err != nil {
			return apperr.New("urlingest.EnsureSchema", apperr.Internal, err)
		}
	}
	return nil
}

// Upsert writes one external chunk, replacing any prior chunk with the same
// (user, conversation, url, chunk_index) key.
func (s *Store) Upsert(ctx context.Context, d ExternalDoc) error {
	var vecLit *string
	if len(d.Embedding) > 0 {
		v := vecutil.ToVecLiteral(vecutil.NormalizeVector(d.Embedding))
		vecLit = &v
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO conversation_external_docs
	(id, user_id, space_id, conversation_id, url, parent_url, depth, chunk_index,
	 title, content, snippet, content_hash, embedding, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13::vector,now())
ON CONFLICT (user_id, conversation_id, url, chunk_index) DO UPDATE SET
	title = EXCLUDED.title,
	content = EXCLUDED.content,
	snippet = EXCLUDED.snippet,
	content_hash = EXCLUDED.content_hash,
	embedding = EXCLUDED.embedding,
	updated_at = now()`,
		d.ID, d.UserID, d.SpaceID, d.ConversationID, d.URL, d.ParentURL, d.Depth, d.ChunkIndex,
		d.Title, d.Content, d.Snippet, d.ContentHash, vecLit)
	if err != nil {
		return apperr.New("urlingest.Upsert", apperr.Internal, err)
	}
	return nil
}

// Scope narrows retrieval to a user's conversation, optionally further to a
// space.
type Scope struct {
	UserID         string
	ConversationID string
	SpaceID        string
}

func (sc Scope) where(argBase int) (string, []any) {
	if sc.SpaceID != "" {
		return fmt.Sprintf("user_id = $%d AND conversation_id = $%d AND space_id = $%d", argBase, argBase+1, argBase+2),
			[]any{sc.UserID, sc.ConversationID, sc.SpaceID}
	}
	return fmt.Sprintf("user_id = $%d AND conversation_id = $%d", argBase, argBase+1),
		[]any{sc.UserID, sc.ConversationID}
}

// Retrieve embeds the caller's query vector against stored chunks, ordered
// by cosine distance ascending, and returns envelopes capped at 2000 chars
// of content.
func (s *Store) Retrieve(ctx context.Context, sc Scope, queryVec []float32, topK int) ([]Envelope, error) {
	if topK <= 0 {
		topK = 10
	}
	vecLit := vecutil.ToVecLiteral(vecutil.NormalizeVector(queryVec))
	whereOwner, ownerArgs := sc.where(3)
	args := append([]any{vecLit, topK}, ownerArgs...)
	sqlStr := fmt.Sprintf(`
SELECT title, url, snippet, content
FROM conversation_external_docs
WHERE %s
ORDER BY embedding <=> $1::vector ASC
LIMIT $2`, whereOwner)
	rows, err := s.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, apperr.New("urlingest.Retrieve", apperr.Internal, err)
	}
	defer rows.Close()
	return scanEnvelopes(rows)
}

func scanEnvelopes(rows pgx.Rows) ([]Envelope, error) {
	var out []Envelope
	for rows.Next() {
		var e Envelope
		if err := rows.Scan(&e.Title, &e.URL, &e.Snippet, &e.Content); err != nil {
			return nil, apperr.New("urlingest.scanEnvelopes", apperr.Internal, err)
		}
		if r := []rune(e.Content); len(r) > maxEnvelopeContent {
			e.Content = string(r[:maxEnvelopeContent])
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
