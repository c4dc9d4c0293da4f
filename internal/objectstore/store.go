// Package objectstore persists uploaded source files and image assets. The
// retrieval core only needs three operations: save an upload, mint a
// pre-authenticated download URL, and delete.
package objectstore

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("object not found")

// Store is the upload contract document and image ingestion flow through.
type Store interface {
	// SaveUpload persists the uploaded bytes under a per-user key derived
	// from userEmail and filename. It returns the local working path the
	// parsers read from and, when remote storage is configured, the object
	// URL the stored copy lives at.
	SaveUpload(ctx context.Context, data []byte, filename, userEmail string) (localPath, objectURL string, err error)

	// CreatePAR returns a pre-authenticated URL for objectName that expires
	// after expire.
	CreatePAR(ctx context.Context, objectName string, expire time.Duration) (string, error)

	// Delete removes objectName. Deleting a missing object returns
	// ErrNotFound.
	Delete(ctx context.Context, objectName string) error
}

// ObjectName derives the stable storage key for a user's upload. Email is
// lowercased so the same account always lands in the same prefix.
func ObjectName(userEmail, filename string) string {
	return sanitize(userEmail) + "/" + sanitize(filename)
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
