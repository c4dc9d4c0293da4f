// Package chunker slices document text into the character-bounded chunks the
// retrieval engine indexes. The same splitter is shared by upload ingestion
// and the external URL ingestor so both corpora chunk identically.
package chunker

import (
	"fmt"

	"github.com/shadabshaukat/spaces-ai/internal/config"
)

// Splitter turns one document's text into ordered chunks. Chunk order is the
// chunk_index: callers persist chunk i of the returned slice at index i.
type Splitter interface {
	Split(text string) []string
}

// New builds the configured splitter strategy.
func New(cfg config.ChunkerConfig) (Splitter, error) {
	size := cfg.Size
	if size <= 0 {
		size = 1200
	}
	overlap := cfg.Overlap
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunker: overlap %d must be smaller than size %d", overlap, size)
	}
	switch cfg.Strategy {
	case "", "fixed":
		return &Fixed{Size: size, Overlap: overlap}, nil
	case "markdown":
		return &Markdown{Fixed: Fixed{Size: size, Overlap: overlap}}, nil
	case "recursive":
		return &Recursive{Size: size, Overlap: overlap}, nil
	default:
		return nil, fmt.Errorf("chunker: unknown strategy %q", cfg.Strategy)
	}
}
