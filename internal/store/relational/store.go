package relational

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"

	"github.com/shadabshaukat/spaces-ai/internal/apperr"
	"github.com/shadabshaukat/spaces-ai/internal/vecutil"
)

// VectorMetric selects the distance operator used by similarity queries.
type VectorMetric string

const (
	MetricCosine VectorMetric = "cosine"
	MetricL2     VectorMetric = "l2"
	MetricIP     VectorMetric = "ip"
)

// Store is the authoritative relational Chunk Store.
type Store struct {
	pool      *pgxpool.Pool
	dim       int
	metric    VectorMetric
	defProbes int
}

// New constructs a Store bound to an existing pool.
func New(pool *pgxpool.Pool, dimensions int, metric VectorMetric, defaultProbes int) *Store {
	if defaultProbes <= 0 {
		defaultProbes = 10
	}
	return &Store{pool: pool, dim: dimensions, metric: metric, defProbes: defaultProbes}
}

// EnsureSchema creates the tables this store needs on first use,
// idempotently, following the bootstrap-on-first-use idiom used elsewhere
// in this codebase's persistence layer.
func (s *Store) EnsureSchema(ctx context.Context) error {
	vecType := "vector"
	if s.dim > 0 {
		vecType = fmt.Sprintf("vector(%d)", s.dim)
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE EXTENSION IF NOT EXISTS pg_trgm`,
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			space_id TEXT NOT NULL DEFAULT '',
			file_name TEXT NOT NULL DEFAULT '',
			source_url TEXT NOT NULL DEFAULT '',
			file_type TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			tags TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(user_id, space_id)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			chunk_index INT NOT NULL,
			text TEXT NOT NULL,
			tsv tsvector GENERATED ALWAYS AS (to_tsvector('english', text)) STORED,
			embedding %s,
			user_id TEXT NOT NULL,
			space_id TEXT NOT NULL DEFAULT ''
		)`, vecType),
		`CREATE INDEX IF NOT EXISTS idx_chunks_tsv ON chunks USING GIN(tsv)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_owner ON chunks(user_id, space_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_chunks_doc_index ON chunks(document_id, chunk_index)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS image_assets (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			space_id TEXT NOT NULL DEFAULT '',
			path TEXT NOT NULL,
			thumbnail_path TEXT NOT NULL DEFAULT '',
			width INT NOT NULL DEFAULT 0,
			height INT NOT NULL DEFAULT 0,
			caption TEXT NOT NULL DEFAULT '',
			ocr_text TEXT NOT NULL DEFAULT '',
			tags TEXT[] NOT NULL DEFAULT '{}',
			embedding %s,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, vecType),
		`CREATE INDEX IF NOT EXISTS idx_image_assets_owner ON image_assets(user_id, space_id)`,
		`CREATE INDEX IF NOT EXISTS idx_image_assets_caption_trgm ON image_assets USING GIN(caption gin_trgm_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return apperr.New("relational.EnsureSchema", apperr.Internal, err)
		}
	}
	return nil
}

// InsertDocument upserts a document row.
func (s *Store) InsertDocument(ctx context.Context, d Document) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO documents(id, user_id, space_id, file_name, source_url, file_type, status, tags)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
  file_name=EXCLUDED.file_name, source_url=EXCLUDED.source_url, file_type=EXCLUDED.file_type,
  status=EXCLUDED.status, tags=EXCLUDED.tags, updated_at=now()
`, d.ID, d.UserID, d.SpaceID, d.FileName, d.SourceURL, d.FileType, orDefault(d.Status, "pending"), d.Tags)
	if err != nil {
		return apperr.New("relational.InsertDocument", apperr.Internal, err)
	}
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// InsertChunks batch-inserts chunks for a document in a single round trip.
func (s *Store) InsertChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range chunks {
		var vec any
		if len(c.Embedding) > 0 {
			vec = pgvector.NewVector(vecutil.NormalizeVector(c.Embedding))
		}
		batch.Queue(`
INSERT INTO chunks(id, document_id, chunk_index, text, embedding, user_id, space_id)
VALUES ($1,$2,$3,$4,$5::vector,$6,$7)
ON CONFLICT (id) DO UPDATE SET text=EXCLUDED.text, embedding=EXCLUDED.embedding
`, c.ID, c.DocumentID, c.Index, c.Text, vec, c.UserID, c.SpaceID)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range chunks {
		if _, err := br.Exec(); err != nil {
			return apperr.New("relational.InsertChunks", apperr.Internal, err)
		}
	}
	return nil
}

// ChunksForDocument loads every chunk of a document ordered by index, used
// by the reindex coordinator to rebuild the secondary mirror from the
// authoritative store.
func (s *Store) ChunksForDocument(ctx context.Context, docID string) ([]Chunk, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, document_id, chunk_index, text, user_id, space_id FROM chunks
WHERE document_id=$1 ORDER BY chunk_index`, docID)
	if err != nil {
		return nil, apperr.New("relational.ChunksForDocument", apperr.Internal, err)
	}
	defer rows.Close()
	var out []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Text, &c.UserID, &c.SpaceID); err != nil {
			return nil, apperr.New("relational.ChunksForDocument", apperr.Internal, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Result is one retrieval hit from either the fulltext or semantic path.
type Result struct {
	ChunkID    string
	DocumentID string
	ChunkIndex int
	Text       string
	Score      float64
}

// Scope filters every query to chunks owned by userID, further narrowed to
// spaceID when non-empty.
type Scope struct {
	UserID  string
	SpaceID string
}

func (sc Scope) where(argBase int) (string, []any) {
	if sc.SpaceID != "" {
		return fmt.Sprintf("user_id = $%d AND space_id = $%d", argBase, argBase+1), []any{sc.UserID, sc.SpaceID}
	}
	return fmt.Sprintf("user_id = $%d", argBase), []any{sc.UserID}
}

// Fulltext runs a BM25-flavored ranked query over the generated tsvector
// column.
func (s *Store) Fulltext(ctx context.Context, sc Scope, query string, k int) ([]Result, error) {
	if k <= 0 {
		k = 10
	}
	whereOwner, ownerArgs := sc.where(3)
	args := append([]any{query, k}, ownerArgs...)
	sqlStr := fmt.Sprintf(`
SELECT id, document_id, chunk_index, text, ts_rank_cd(tsv, plainto_tsquery('english', $1)) AS score
FROM chunks
WHERE tsv @@ plainto_tsquery('english', $1) AND %s
ORDER BY score DESC
LIMIT $2`, whereOwner)
	rows, err := s.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, apperr.New("relational.Fulltext", apperr.Internal, err)
	}
	defer rows.Close()
	return scanResults(rows)
}

// Semantic runs an ANN similarity query using the configured distance
// metric, applying the current probe/candidate tuning via SET LOCAL inside
// the same transaction as the query.
func (s *Store) Semantic(ctx context.Context, sc Scope, queryVec []float32, k int, probes int) ([]Result, error) {
	if k <= 0 {
		k = 10
	}
	if probes <= 0 {
		probes = s.defProbes
	}
	op, scoreExpr := s.metricOps()
	vecLit := vecutil.ToVecLiteral(vecutil.NormalizeVector(queryVec))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.New("relational.Semantic", apperr.Internal, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf(`SET LOCAL ivfflat.probes = %d`, probes)); err != nil {
		// Non-ivfflat index (e.g. HNSW) or extension without the GUC; not fatal.
		_ = err
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(`SET LOCAL hnsw.ef_search = %d`, probes)); err != nil {
		_ = err
	}

	whereOwner, ownerArgs := sc.where(3)
	args := append([]any{vecLit, k}, ownerArgs...)
	sqlStr := fmt.Sprintf(`
SELECT id, document_id, chunk_index, text, %s AS score
FROM chunks
WHERE embedding IS NOT NULL AND %s
ORDER BY embedding %s $1::vector
LIMIT $2`, scoreExpr, whereOwner, op)
	rows, err := tx.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, apperr.New("relational.Semantic", apperr.Internal, err)
	}
	res, err := scanResults(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.New("relational.Semantic", apperr.Internal, err)
	}
	if len(res) == 0 {
		// Deployments that skip storing embeddings relationally rely on
		// the secondary index for vectors; an empty result here is the
		// contract, not a failure.
		log.Warn().Str("user_id", sc.UserID).Msg("relational_semantic_no_embedded_chunks")
	}
	return res, nil
}

func (s *Store) metricOps() (op, scoreExpr string) {
	switch s.metric {
	case MetricL2:
		return "<->", "-(embedding <-> $1::vector)"
	case MetricIP:
		return "<#>", "-(embedding <#> $1::vector)"
	default:
		return "<=>", "1 - (embedding <=> $1::vector)"
	}
}

func scanResults(rows pgx.Rows) ([]Result, error) {
	var out []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.ChunkIndex, &r.Text, &r.Score); err != nil {
			return nil, apperr.New("relational.scanResults", apperr.Internal, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetDocumentsByID loads document metadata for a set of document ids, used
// to attach titles/urls to retrieval results.
func (s *Store) GetDocumentsByID(ctx context.Context, ids []string) (map[string]Document, error) {
	if len(ids) == 0 {
		return map[string]Document{}, nil
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, user_id, space_id, file_name, source_url, file_type, status, created_at, updated_at
FROM documents WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, apperr.New("relational.GetDocumentsByID", apperr.Internal, err)
	}
	defer rows.Close()
	out := map[string]Document{}
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.UserID, &d.SpaceID, &d.FileName, &d.SourceURL, &d.FileType, &d.Status, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, apperr.New("relational.GetDocumentsByID", apperr.Internal, err)
		}
		out[d.ID] = d
	}
	return out, rows.Err()
}

// ListDocumentIDs returns every document id in the given tenant scope,
// oldest first. Used by bulk reindex to replay a whole space.
func (s *Store) ListDocumentIDs(ctx context.Context, sc Scope) ([]string, error) {
	where, args := sc.where(1)
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM documents WHERE `+where+` ORDER BY created_at`, args...)
	if err != nil {
		return nil, apperr.New("relational.ListDocumentIDs", apperr.Internal, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.New("relational.ListDocumentIDs", apperr.Internal, err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// UpdateDocumentStatus transitions a document's ingestion status.
func (s *Store) UpdateDocumentStatus(ctx context.Context, docID, status string) error {
	_, err := s.pool.Exec(ctx, `UPDATE documents SET status=$2, updated_at=now() WHERE id=$1`, docID, status)
	if err != nil {
		return apperr.New("relational.UpdateDocumentStatus", apperr.Internal, err)
	}
	return nil
}

// DeleteDocumentCascade removes a document and its chunks/images in one
// transaction, scoped to the owning user so a caller can't delete across
// tenants by guessing an id.
func (s *Store) DeleteDocumentCascade(ctx context.Context, docID, userID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.New("relational.DeleteDocumentCascade", apperr.Internal, err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM documents WHERE id=$1 AND user_id=$2`, docID, userID)
	if err != nil {
		return apperr.New("relational.DeleteDocumentCascade", apperr.Internal, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New("relational.DeleteDocumentCascade", apperr.NotFound, nil)
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.New("relational.DeleteDocumentCascade", apperr.Internal, err)
	}
	return nil
}

// ImagesForDocument returns every image asset belonging to a document, for
// display or for the reindex coordinator to rebuild the secondary mirror.
func (s *Store) ImagesForDocument(ctx context.Context, docID string) ([]ImageAsset, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, document_id, user_id, space_id, path, thumbnail_path, width, height, caption, ocr_text, tags, created_at
FROM image_assets WHERE document_id=$1`, docID)
	if err != nil {
		return nil, apperr.New("relational.ImagesForDocument", apperr.Internal, err)
	}
	defer rows.Close()
	var out []ImageAsset
	for rows.Next() {
		var im ImageAsset
		if err := rows.Scan(&im.ID, &im.DocumentID, &im.UserID, &im.SpaceID, &im.Path, &im.ThumbnailPath, &im.Width, &im.Height, &im.Caption, &im.OCRText, &im.Tags, &im.CreatedAt); err != nil {
			return nil, apperr.New("relational.ImagesForDocument", apperr.Internal, err)
		}
		out = append(out, im)
	}
	return out, rows.Err()
}

// InsertImageAsset upserts one image asset row.
func (s *Store) InsertImageAsset(ctx context.Context, im ImageAsset) error {
	var vec any
	if len(im.Embedding) > 0 {
		vec = pgvector.NewVector(vecutil.NormalizeVector(im.Embedding))
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO image_assets(id, document_id, user_id, space_id, path, thumbnail_path, width, height, caption, ocr_text, tags, embedding)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12::vector)
ON CONFLICT (id) DO UPDATE SET
  path=EXCLUDED.path, thumbnail_path=EXCLUDED.thumbnail_path, width=EXCLUDED.width, height=EXCLUDED.height,
  caption=EXCLUDED.caption, ocr_text=EXCLUDED.ocr_text, tags=EXCLUDED.tags, embedding=EXCLUDED.embedding
`, im.ID, im.DocumentID, im.UserID, im.SpaceID, im.Path, im.ThumbnailPath, im.Width, im.Height, im.Caption, im.OCRText, im.Tags, vec)
	if err != nil {
		return apperr.New("relational.InsertImageAsset", apperr.Internal, err)
	}
	return nil
}

// SearchImagesSemantic runs an ANN similarity query over image_assets.embedding,
// the relational fallback path for image search when a query or reference
// vector is available.
func (s *Store) SearchImagesSemantic(ctx context.Context, sc Scope, queryVec []float32, tags []string, k int) ([]ImageResult, error) {
	if k <= 0 {
		k = 10
	}
	op, scoreExpr := s.metricOps()
	vecLit := vecutil.ToVecLiteral(vecutil.NormalizeVector(queryVec))
	whereOwner, ownerArgs := sc.where(3)
	args := append([]any{vecLit, k}, ownerArgs...)
	where := whereOwner
	if len(tags) > 0 {
		args = append(args, tags)
		where = fmt.Sprintf("%s AND tags && $%d", where, len(args))
	}
	sqlStr := fmt.Sprintf(`
SELECT document_id, id, path, thumbnail_path, caption, tags, %s AS score
FROM image_assets
WHERE %s AND embedding IS NOT NULL
ORDER BY embedding %s $1::vector
LIMIT $2`, scoreExpr, where, op)
	rows, err := s.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, apperr.New("relational.SearchImagesSemantic", apperr.Internal, err)
	}
	defer rows.Close()
	return scanImageResults(rows)
}

// SearchImagesText runs an ILIKE/trigram-similarity query over caption and
// OCR text, used when only a text query (no vector) is available.
func (s *Store) SearchImagesText(ctx context.Context, sc Scope, query string, tags []string, k int) ([]ImageResult, error) {
	if k <= 0 {
		k = 10
	}
	pattern := "%" + query + "%"
	whereOwner, ownerArgs := sc.where(4)
	args := append([]any{pattern, query, k}, ownerArgs...)
	where := whereOwner
	if len(tags) > 0 {
		args = append(args, tags)
		where = fmt.Sprintf("%s AND tags && $%d", where, len(args))
	}
	sqlStr := fmt.Sprintf(`
SELECT document_id, id, path, thumbnail_path, caption, tags,
       similarity(caption, $2) + similarity(ocr_text, $2) AS score
FROM image_assets
WHERE (caption ILIKE $1 OR ocr_text ILIKE $1) AND %s
ORDER BY score DESC
LIMIT $3`, where)
	rows, err := s.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, apperr.New("relational.SearchImagesText", apperr.Internal, err)
	}
	defer rows.Close()
	return scanImageResults(rows)
}

func scanImageResults(rows pgx.Rows) ([]ImageResult, error) {
	var out []ImageResult
	for rows.Next() {
		var r ImageResult
		if err := rows.Scan(&r.DocumentID, &r.ImageID, &r.FilePath, &r.ThumbnailPath, &r.Caption, &r.Tags, &r.Score); err != nil {
			return nil, apperr.New("relational.scanImageResults", apperr.Internal, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
