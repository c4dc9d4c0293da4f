package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/shadabshaukat/spaces-ai/internal/apperr"
	"github.com/shadabshaukat/spaces-ai/internal/querycache"
	"github.com/shadabshaukat/spaces-ai/internal/store/relational"
	"github.com/shadabshaukat/spaces-ai/internal/store/secondary"
	"github.com/shadabshaukat/spaces-ai/internal/tenantcache"
)

// ImageQuery is a cross-modal image search request: text-to-image when only
// QueryText is set, image-to-image when QueryVector is an explicit
// reference embedding. When both are given, QueryVector wins and QueryText
// is dropped entirely (no caption clause is added) since the caller has
// already supplied the more precise signal.
type ImageQuery struct {
	UserID      string
	SpaceID     string
	QueryText   string
	QueryVector []float32
	Tags        []string
	TopK        int
}

func (q ImageQuery) scope() relational.Scope {
	return relational.Scope{UserID: q.UserID, SpaceID: q.SpaceID}
}

// ImageHit is one image search result.
type ImageHit struct {
	DocumentID    string
	ImageID       string
	FilePath      string
	ThumbnailPath string
	Caption       string
	Tags          []string
	Score         float64
}

func (e *Engine) imageTopK(q ImageQuery) int {
	if q.TopK > 0 {
		return q.TopK
	}
	if e.tuning != nil {
		return int(e.tuning.DefaultTopK())
	}
	return 10
}

// imageCacheScope mirrors cacheScope but reads the "image" revision, so an
// image upload (which bumps rev:image) invalidates only image search
// results, not text ones.
func (e *Engine) imageCacheScope(ctx context.Context, q ImageQuery) string {
	rev, _ := e.cache.GetRevision(ctx, revKindImage, q.UserID, q.SpaceID)
	return tenantcache.Scope(q.UserID, q.SpaceID, rev)
}

// imageFingerprint embeds a "vec|novec" marker so a cached text-to-image
// result (no explicit vector) never serves a later request that supplies an
// explicit reference vector for the same text, and vice versa.
func (e *Engine) imageFingerprint(q ImageQuery) string {
	marker := "novec"
	if len(q.QueryVector) > 0 {
		marker = "vec"
	}
	params := map[string]string{
		"q":    strings.ToLower(strings.TrimSpace(q.QueryText)),
		"k":    fmt.Sprintf("%d", e.imageTopK(q)),
		"vec":  marker,
		"tags": fmt.Sprintf("%v", q.Tags),
	}
	return querycache.Fingerprint("image", params)
}

// Image runs a cross-modal image search over the configured backend,
// resolving a query vector from an explicit reference embedding or, when
// absent, by cross-modally embedding the query text.
func (e *Engine) Image(ctx context.Context, q ImageQuery) ([]ImageHit, error) {
	scope := e.imageCacheScope(ctx, q)
	fp := e.imageFingerprint(q)
	var cached []ImageHit
	if querycache.Get(ctx, e.cache, querycache.KindResult, scope, fp, &cached) {
		return cached, nil
	}

	vec := q.QueryVector
	textDerivedVector := false
	if len(vec) == 0 && q.QueryText != "" && e.imageEmbedder != nil {
		embedded, err := e.embedQuery(ctx, e.imageEmbedder, q.QueryText)
		if err != nil {
			log.Warn().Err(err).Msg("retrieval_image_embed_failed_falling_back_to_caption_text")
		} else {
			vec = embedded
			textDerivedVector = true
		}
	}

	hits, err := e.imageCandidates(ctx, q, vec, textDerivedVector)
	if err != nil {
		return nil, err
	}
	querycache.Set(ctx, e.cache, querycache.KindResult, scope, fp, hits)
	return hits, nil
}

func (e *Engine) imageCandidates(ctx context.Context, q ImageQuery, vec []float32, textDerivedVector bool) ([]ImageHit, error) {
	k := e.imageTopK(q)
	switch e.backend {
	case BackendSecondary:
		return e.imageCandidatesSecondary(ctx, q, vec, textDerivedVector, k)
	default:
		return e.imageCandidatesRelational(ctx, q, vec, k)
	}
}

func (e *Engine) imageCandidatesSecondary(ctx context.Context, q ImageQuery, vec []float32, textDerivedVector bool, k int) ([]ImageHit, error) {
	if e.secondaryImages == nil {
		return nil, apperr.New("retrieval.Image", apperr.Unavailable, fmt.Errorf("secondary image backend not configured"))
	}
	switch {
	case len(vec) > 0 && textDerivedVector && q.QueryText != "":
		vecHits, err := e.secondaryImages.Search(ctx, vec, q.UserID, q.SpaceID, k, nil)
		if err != nil {
			return nil, err
		}
		textHits, err := e.secondaryImages.SearchImageText(ctx, q.QueryText, q.UserID, q.SpaceID, k)
		if err != nil {
			log.Warn().Err(err).Msg("retrieval_image_caption_search_failed_using_vector_only")
			return fromImageHits(truncateHits(vecHits, k)), nil
		}
		combined := combineWeighted(vecHits, textHits, e.imageVectorWeight, e.imageTextWeight)
		return fromImageHits(truncateHits(combined, k)), nil
	case len(vec) > 0:
		hits, err := e.secondaryImages.Search(ctx, vec, q.UserID, q.SpaceID, k, nil)
		if err != nil {
			return nil, err
		}
		return fromImageHits(truncateHits(hits, k)), nil
	case q.QueryText != "":
		hits, err := e.secondaryImages.SearchImageText(ctx, q.QueryText, q.UserID, q.SpaceID, k)
		if err != nil {
			return nil, err
		}
		return fromImageHits(truncateHits(hits, k)), nil
	default:
		return nil, apperr.New("retrieval.Image", apperr.InvalidArgument, fmt.Errorf("image search requires a query vector or text"))
	}
}

func (e *Engine) imageCandidatesRelational(ctx context.Context, q ImageQuery, vec []float32, k int) ([]ImageHit, error) {
	switch {
	case len(vec) > 0:
		results, err := e.relational.SearchImagesSemantic(ctx, q.scope(), vec, q.Tags, k)
		if err != nil {
			return nil, err
		}
		return fromImageResults(results), nil
	case q.QueryText != "":
		results, err := e.relational.SearchImagesText(ctx, q.scope(), q.QueryText, q.Tags, k)
		if err != nil {
			return nil, err
		}
		return fromImageResults(results), nil
	default:
		return nil, apperr.New("retrieval.Image", apperr.InvalidArgument, fmt.Errorf("image search requires a query vector or text"))
	}
}

// combineWeighted merges the KNN and caption-text legs of secondary-backend
// image search additively by id, the client-side equivalent of the
// original's OpenSearch function-score (knn clause + multi_match clause in
// one request body).
func combineWeighted(vecHits, textHits []secondary.Hit, vectorWeight, textWeight float64) []secondary.Hit {
	byID := make(map[string]secondary.Hit, len(vecHits)+len(textHits))
	order := make([]string, 0, len(vecHits)+len(textHits))
	for _, h := range vecHits {
		h.Score *= vectorWeight
		byID[h.ID] = h
		order = append(order, h.ID)
	}
	for _, h := range textHits {
		if existing, ok := byID[h.ID]; ok {
			existing.Score += h.Score * textWeight
			byID[h.ID] = existing
			continue
		}
		h.Score *= textWeight
		byID[h.ID] = h
		order = append(order, h.ID)
	}
	out := make([]secondary.Hit, 0, len(order))
	seen := map[string]struct{}{}
	for _, id := range order {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, byID[id])
	}
	sortHitsByScoreDesc(out)
	return out
}

func sortHitsByScoreDesc(hits []secondary.Hit) {
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0; j-- {
			if hits[j-1].Score >= hits[j].Score {
				break
			}
			hits[j-1], hits[j] = hits[j], hits[j-1]
		}
	}
}

func truncateHits(hits []secondary.Hit, k int) []secondary.Hit {
	if len(hits) > k {
		return hits[:k]
	}
	return hits
}

func fromImageHits(hits []secondary.Hit) []ImageHit {
	out := make([]ImageHit, 0, len(hits))
	for _, h := range hits {
		out = append(out, ImageHit{
			DocumentID:    h.DocumentID,
			ImageID:       h.ImageID,
			FilePath:      h.FilePath,
			ThumbnailPath: h.ThumbnailPath,
			Caption:       h.Caption,
			Tags:          h.Tags,
			Score:         h.Score,
		})
	}
	return out
}

func fromImageResults(results []relational.ImageResult) []ImageHit {
	out := make([]ImageHit, 0, len(results))
	for _, r := range results {
		out = append(out, ImageHit{
			DocumentID:    r.DocumentID,
			ImageID:       r.ImageID,
			FilePath:      r.FilePath,
			ThumbnailPath: r.ThumbnailPath,
			Caption:       r.Caption,
			Tags:          r.Tags,
			Score:         r.Score,
		})
	}
	return out
}
