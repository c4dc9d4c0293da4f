// Package embedder exposes the embedding contracts the retrieval engine
// consumes: text to D_text vectors, and the cross-modal image encoder whose
// D_img space holds both image pixels and image-describing text.
package embedder

import (
	"context"
	"hash/fnv"
	"math"
)

// Embedder converts text to embedding vectors. Implementations must be
// deterministic for identical input.
type Embedder interface {
	// EmbedBatch returns one embedding per input text.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Name returns a model identifier string.
	Name() string
	// Dimension returns the embedding dimensionality (0 for unknown).
	Dimension() int
	// Ping checks that the backing service is reachable.
	Ping(ctx context.Context) error
}

// ImageEmbedder is the cross-modal encoder: images and short image
// descriptions embed into the same D_img space, so a text query can rank
// indexed images by vector distance.
type ImageEmbedder interface {
	// EmbedImagePaths embeds image files by path.
	EmbedImagePaths(ctx context.Context, paths []string) ([][]float32, error)
	// EmbedImageTexts embeds text into the image vector space.
	EmbedImageTexts(ctx context.Context, texts []string) ([][]float32, error)
	// ImageDimension returns D_img (0 for unknown).
	ImageDimension() int
}

// CrossModalText adapts an ImageEmbedder's text arm to the Embedder
// interface, for callers that embed queries without caring which space the
// vector lands in.
type CrossModalText struct {
	Inner ImageEmbedder
	Model string
}

func (c *CrossModalText) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.Inner.EmbedImageTexts(ctx, texts)
}

func (c *CrossModalText) Name() string                 { return c.Model }
func (c *CrossModalText) Dimension() int               { return c.Inner.ImageDimension() }
func (c *CrossModalText) Ping(_ context.Context) error { return nil }

// deterministicEmbedder hashes byte 3-grams into a fixed-size vector.
// Deterministic and dependency-free; used by tests and local development.
type deterministicEmbedder struct {
	dim       int
	normalize bool
	seed      uint64
	name      string
}

// NewDeterministic constructs a deterministic embedder with the given
// dimension. If normalize is true, vectors are L2-normalized.
func NewDeterministic(dim int, normalize bool, seed uint64) Embedder {
	if dim <= 0 {
		dim = 64
	}
	return &deterministicEmbedder{dim: dim, normalize: normalize, seed: seed, name: "deterministic"}
}

func (d *deterministicEmbedder) Name() string                 { return d.name }
func (d *deterministicEmbedder) Dimension() int               { return d.dim }
func (d *deterministicEmbedder) Ping(_ context.Context) error { return nil }

func (d *deterministicEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = d.embedOne(t)
	}
	return out, nil
}

func (d *deterministicEmbedder) embedOne(s string) []float32 {
	v := make([]float32, d.dim)
	if len(s) == 0 {
		return v
	}
	b := []byte(s)
	if len(b) < 3 {
		d.add(b, v)
	} else {
		for i := 0; i <= len(b)-3; i++ {
			d.add(b[i:i+3], v)
		}
	}
	if d.normalize {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		if sum > 0 {
			inv := float32(1.0 / math.Sqrt(sum))
			for i := range v {
				v[i] *= inv
			}
		}
	}
	return v
}

func (d *deterministicEmbedder) add(gram []byte, v []float32) {
	h := fnv.New64a()
	if d.seed != 0 {
		var tmp [8]byte
		for i := 0; i < 8; i++ {
			tmp[i] = byte(d.seed >> (8 * i))
		}
		_, _ = h.Write(tmp[:])
	}
	_, _ = h.Write(gram)
	hv := h.Sum64()
	idx := int(hv % uint64(len(v)))
	// Map the hash to a signed weight in [-1, 1].
	w := float32(int32(hv>>32)) / float32(1<<31)
	v[idx] += w
}
