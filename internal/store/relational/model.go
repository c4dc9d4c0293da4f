// Package relational implements the authoritative Postgres-backed Chunk
// Store: documents, their chunks (with both a BM25-ready tsvector column
// and a pgvector embedding column), and image assets, all scoped by owner
// user and optional space.
package relational

import "time"

// Document is a single ingested source: a file, pasted text, or a crawled
// page.
type Document struct {
	ID        string
	UserID    string
	SpaceID   string // empty when the document is private to the user
	FileName  string
	SourceURL string
	FileType  string
	Status    string // pending|ready|failed
	CreatedAt time.Time
	UpdatedAt time.Time
	Tags      []string
}

// Chunk is one retrievable unit of a Document's text.
type Chunk struct {
	ID         string
	DocumentID string
	Index      int
	Text       string
	Embedding  []float32
	UserID     string
	SpaceID    string
}

// ImageAsset is one retrievable image belonging to a Document.
type ImageAsset struct {
	ID            string
	DocumentID    string
	UserID        string
	SpaceID       string
	Path          string
	ThumbnailPath string
	Width         int
	Height        int
	Caption       string
	OCRText       string
	Tags          []string
	Embedding     []float32
	CreatedAt     time.Time
}

// User is an account row. Email compares case-insensitively (citext).
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Space is a named bag of documents owned by one user. Exactly one space
// per user carries IsDefault, enforced by a partial unique index.
type Space struct {
	ID        string
	UserID    string
	Name      string
	IsDefault bool
	CreatedAt time.Time
}

// ImageResult is one image search hit, carrying everything a result
// needs to render: document and image ids, file and thumbnail paths,
// caption, tags, and score.
type ImageResult struct {
	DocumentID    string
	ImageID       string
	FilePath      string
	ThumbnailPath string
	Caption       string
	Tags          []string
	Score         float64
}
