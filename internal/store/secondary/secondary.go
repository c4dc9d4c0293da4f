// Package secondary mirrors the relational Chunk Store into Qdrant and
// reconciles Qdrant's multi-shape query surface against the hybrid
// retrieval engine's single logical "similarity search" call.
package secondary

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog/log"

	"github.com/shadabshaukat/spaces-ai/internal/apperr"
)

// payloadOriginalID stores the caller-supplied id for points whose id
// isn't itself a UUID, matching qdrant's UUID/positive-integer-only point
// id constraint.
const payloadOriginalID = "_original_id"

// textField is the payload field carrying chunk text; it is indexed for
// full-text payload matching so SearchText can filter candidates.
const textField = "text"

// captionField is the payload field carrying image captions, used as the
// lexical clause of the image search function-score.
const captionField = "caption"

// Metric selects the collection's distance function.
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricL2     Metric = "l2"
	MetricIP     Metric = "ip"
)

// Index is the secondary ANN mirror for one collection (chunks or images).
type Index struct {
	client     *qdrant.Client
	collection string
	dimension  int
	metric     Metric
}

// Dial parses a qdrant DSN (host[:port][?api_key=...]) and connects over
// gRPC (qdrant's default wire port is 6334, unlike its HTTP API on 6333).
func Dial(dsn, collection string, dimension int, metric Metric) (*Index, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, apperr.New("secondary.Dial", apperr.InvalidArgument, err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	portStr := parsed.Port()
	if portStr == "" {
		portStr = "6334"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, apperr.New("secondary.Dial", apperr.InvalidArgument, err)
	}
	cfg := &qdrant.Config{Host: host, Port: port}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if key := parsed.Query().Get("api_key"); key != "" {
		cfg.APIKey = key
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, apperr.New("secondary.Dial", apperr.Unavailable, err)
	}
	return &Index{client: client, collection: collection, dimension: dimension, metric: metric}, nil
}

// EnsureIndex creates the collection if absent, or recreates it when
// forceRecreate is set (used after an embedding-model dimension change). It
// also creates a payload text index over the lexical field so SearchText's
// MatchText filter has something to use; the field name differs between
// the chunks collection (text) and the images collection (caption), so
// both are indexed (a missing field is simply never populated for that
// collection's documents).
func (idx *Index) EnsureIndex(ctx context.Context, forceRecreate bool) error {
	exists, err := idx.client.CollectionExists(ctx, idx.collection)
	if err != nil {
		return apperr.New("secondary.EnsureIndex", apperr.Unavailable, err)
	}
	if exists {
		if !forceRecreate {
			return idx.ensureTextIndexes(ctx)
		}
		if err := idx.client.DeleteCollection(ctx, idx.collection); err != nil {
			return apperr.New("secondary.EnsureIndex", apperr.Internal, err)
		}
	}
	if idx.dimension <= 0 {
		return apperr.New("secondary.EnsureIndex", apperr.InvalidArgument, fmt.Errorf("dimension must be > 0"))
	}
	err = idx.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: idx.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(idx.dimension),
			Distance: distanceOf(idx.metric),
		}),
	})
	if err != nil {
		return apperr.New("secondary.EnsureIndex", apperr.Internal, err)
	}
	return idx.ensureTextIndexes(ctx)
}

func (idx *Index) ensureTextIndexes(ctx context.Context) error {
	for _, field := range []string{textField, captionField} {
		_, err := idx.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: idx.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeText.Enum(),
		})
		if err != nil {
			log.Warn().Err(err).Str("field", field).Msg("secondary_text_index_create_failed")
		}
	}
	return nil
}

func distanceOf(m Metric) qdrant.Distance {
	switch m {
	case MetricL2:
		return qdrant.Distance_Euclid
	case MetricIP:
		return qdrant.Distance_Dot
	default:
		return qdrant.Distance_Cosine
	}
}

// pointID derives a qdrant-legal point id: the id itself when it's already
// a UUID, otherwise a deterministic UUIDv5-style id over it so replays of
// the same chunk id are idempotent upserts, not duplicates.
func pointID(id string) (uuidStr string, original string) {
	if _, err := uuid.Parse(id); err == nil {
		return id, ""
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String(), id
}

// Point is one chunk or image vector to mirror into the secondary index.
// DocID/ChunkIndex/Text are populated for chunk points; DocID/Caption for
// image points.
type Point struct {
	ID            string
	Vector        []float32
	UserID        string
	SpaceID       string
	DocID         string
	ImageID       string
	ChunkIndex    int
	Text          string
	Caption       string
	FilePath      string
	ThumbnailPath string
	Tags          []string
	CreatedAt     time.Time
}

func (p Point) toPayload() map[string]any {
	payload := map[string]any{
		"user_id":    p.UserID,
		"space_id":   p.SpaceID,
		"tags":       p.Tags,
		"created_at": p.CreatedAt.Unix(),
	}
	if p.DocID != "" {
		payload["doc_id"] = p.DocID
	}
	if p.ImageID != "" {
		payload["image_id"] = p.ImageID
	}
	if p.Text != "" {
		payload["chunk_index"] = p.ChunkIndex
		payload[textField] = p.Text
	}
	if p.Caption != "" {
		payload[captionField] = p.Caption
	}
	if p.FilePath != "" {
		payload["file_path"] = p.FilePath
	}
	if p.ThumbnailPath != "" {
		payload["thumbnail_path"] = p.ThumbnailPath
	}
	return payload
}

// Upsert mirrors one point. The caller's id is preserved in the payload
// when it isn't itself UUID-shaped.
func (idx *Index) Upsert(ctx context.Context, p Point) error {
	return idx.upsertBatch(ctx, []Point{p})
}

func (idx *Index) upsertBatch(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		uuidStr, original := pointID(p.ID)
		payload := p.toPayload()
		if original != "" {
			payload[payloadOriginalID] = original
		}
		structs = append(structs, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(uuidStr),
			Vectors: qdrant.NewVectorsDense(p.Vector),
			Payload: qdrant.NewValueMap(payload),
		})
	}
	_, err := idx.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: idx.collection,
		Points:         structs,
	})
	if err != nil {
		return apperr.New("secondary.Upsert", apperr.Internal, err)
	}
	return nil
}

// ChunkVector is one chunk to mirror, paired with its embedding.
type ChunkVector struct {
	Index     int
	Text      string
	Vector    []float32
	CreatedAt time.Time
}

// IndexChunks mirrors a document's chunks into the secondary index in one
// batch upsert, using the deterministic id "{doc_id}#{chunk_index}" so a
// reindex replay is idempotent rather than duplicating points.
func (idx *Index) IndexChunks(ctx context.Context, docID, userID, spaceID string, chunks []ChunkVector) error {
	if len(chunks) == 0 {
		return nil
	}
	points := make([]Point, 0, len(chunks))
	for _, c := range chunks {
		points = append(points, Point{
			ID:         fmt.Sprintf("%s#%d", docID, c.Index),
			Vector:     c.Vector,
			UserID:     userID,
			SpaceID:    spaceID,
			DocID:      docID,
			ChunkIndex: c.Index,
			Text:       c.Text,
			CreatedAt:  c.CreatedAt,
		})
	}
	return idx.upsertBatch(ctx, points)
}

// ImageAsset is one image to mirror into the images collection.
type ImageAsset struct {
	ImageID       string
	Vector        []float32
	Caption       string
	FilePath      string
	ThumbnailPath string
	Tags          []string
	CreatedAt     time.Time
}

// IndexImageAsset mirrors one image asset, using the deterministic id
// "{doc_id}:{image_id}" so a reindex replay is idempotent.
func (idx *Index) IndexImageAsset(ctx context.Context, docID, userID, spaceID string, im ImageAsset) error {
	return idx.Upsert(ctx, Point{
		ID:            fmt.Sprintf("%s:%s", docID, im.ImageID),
		Vector:        im.Vector,
		UserID:        userID,
		SpaceID:       spaceID,
		DocID:         docID,
		ImageID:       im.ImageID,
		Caption:       im.Caption,
		FilePath:      im.FilePath,
		ThumbnailPath: im.ThumbnailPath,
		Tags:          im.Tags,
		CreatedAt:     im.CreatedAt,
	})
}

// Delete removes a point by caller id (resolved to its qdrant id).
func (idx *Index) Delete(ctx context.Context, id string) error {
	uuidStr, _ := pointID(id)
	_, err := idx.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: idx.collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(uuidStr)),
	})
	if err != nil {
		return apperr.New("secondary.Delete", apperr.Internal, err)
	}
	return nil
}

// DeleteByOwner removes every point owned by userID (and spaceID, when
// set); used for whole-tenant offboarding, not document deletion.
func (idx *Index) DeleteByOwner(ctx context.Context, userID, spaceID string) error {
	_, err := idx.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: idx.collection,
		Points:         qdrant.NewPointsSelectorFilter(ownerFilter(userID, spaceID)),
	})
	if err != nil {
		return apperr.New("secondary.DeleteByOwner", apperr.Internal, err)
	}
	return nil
}

// DeleteDocument issues a true delete-by-query scoped to one document,
// filtering on the doc_id payload field set by IndexChunks/IndexImageAsset.
// Best-effort: the caller logs and swallows a failure rather than failing
// the whole document delete, matching the original adapter's
// conflicts=proceed semantics.
func (idx *Index) DeleteDocument(ctx context.Context, docID, userID string) error {
	filter := &qdrant.Filter{Must: []*qdrant.Condition{
		qdrant.NewMatch("doc_id", docID),
		qdrant.NewMatch("user_id", userID),
	}}
	_, err := idx.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: idx.collection,
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return apperr.New("secondary.DeleteDocument", apperr.Internal, err)
	}
	return nil
}

// Hit is one similarity or lexical result. DocumentID/ChunkIndex/Text apply
// to chunk hits; ImageID/Caption/Tags apply to image hits. Rank is set by
// SearchText (position within the returned list); vector-search hits leave
// it zero since their ordering is carried by Score.
type Hit struct {
	ID            string
	Score         float64
	SpaceID       string
	UserID        string
	CreateAt      time.Time
	DocumentID    string
	ChunkIndex    int
	Text          string
	ImageID       string
	Caption       string
	FilePath      string
	ThumbnailPath string
	Tags          []string
	Rank          int
}

// RecencyOptions applies an additive exponential recency boost to scores,
// the client-side equivalent of the function-score query the original
// OpenSearch-backed implementation used (qdrant's unified query API has no
// function-score DSL).
type RecencyOptions struct {
	Boost        float64
	HalfLifeDays float64
	Now          time.Time
}

// Search tries, in order, two real qdrant call shapes before giving up:
// (1) the unified Query API with a dense vector + filter; (2) the legacy
// Search RPC. Callers whose vector query fails entirely should fall back
// to SearchText themselves; the resilience chain ends in BM25, not a
// vector-less scroll masquerading as one.
func (idx *Index) Search(ctx context.Context, vector []float32, userID, spaceID string, k int, recency *RecencyOptions) ([]Hit, error) {
	if k <= 0 {
		k = 10
	}
	filter := ownerFilter(userID, spaceID)

	hits, err := idx.queryUnified(ctx, vector, filter, k)
	if err != nil {
		log.Warn().Err(err).Msg("secondary_query_unified_failed_falling_back_to_search")
		hits, err = idx.queryLegacySearch(ctx, vector, filter, k)
	}
	if err != nil {
		return nil, apperr.New("secondary.Search", apperr.Unavailable, err)
	}
	if recency != nil {
		applyRecency(hits, *recency)
	}
	return hits, nil
}

// SearchText ranks candidates matched by a payload full-text filter with a
// client-side BM25 score (k1=1.2, b=0.75) over the candidate pool. qdrant
// has no native BM25-ranking endpoint in this codebase's dependency
// corpus, so this is the documented lexical fallback used when the vector
// paths in Search fail or when no query embedding is available at all
// (see DESIGN.md).
func (idx *Index) SearchText(ctx context.Context, query, userID, spaceID string, k int) ([]Hit, error) {
	if k <= 0 {
		k = 10
	}
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, apperr.New("secondary.SearchText", apperr.InvalidArgument, fmt.Errorf("empty query"))
	}
	filter := ownerFilter(userID, spaceID)
	filter.Must = append(filter.Must, qdrant.NewMatchText(textField, query))

	pool := k * 5
	if pool < 50 {
		pool = 50
	}
	candidates, err := idx.queryFilterOnly(ctx, filter, pool)
	if err != nil {
		return nil, apperr.New("secondary.SearchText", apperr.Unavailable, err)
	}
	return rankByBM25(candidates, terms, k), nil
}

// SearchImageText ranks image hits by a caption full-text match, the
// relational-fallback-equivalent lexical leg used when image search has
// neither a reference vector nor an embeddable query text.
func (idx *Index) SearchImageText(ctx context.Context, query, userID, spaceID string, k int) ([]Hit, error) {
	if k <= 0 {
		k = 10
	}
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, apperr.New("secondary.SearchImageText", apperr.InvalidArgument, fmt.Errorf("empty query"))
	}
	filter := ownerFilter(userID, spaceID)
	filter.Must = append(filter.Must, qdrant.NewMatchText(captionField, query))

	pool := k * 5
	if pool < 50 {
		pool = 50
	}
	candidates, err := idx.queryFilterOnly(ctx, filter, pool)
	if err != nil {
		return nil, apperr.New("secondary.SearchImageText", apperr.Unavailable, err)
	}
	return rankByBM25Captions(candidates, terms, k), nil
}

func ownerFilter(userID, spaceID string) *qdrant.Filter {
	must := []*qdrant.Condition{qdrant.NewMatch("user_id", userID)}
	if spaceID != "" {
		must = append(must, qdrant.NewMatch("space_id", spaceID))
	}
	return &qdrant.Filter{Must: must}
}

func (idx *Index) queryUnified(ctx context.Context, vector []float32, filter *qdrant.Filter, k int) ([]Hit, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("no query vector for unified query path")
	}
	limit := uint64(k)
	points, err := idx.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: idx.collection,
		Query:          qdrant.NewQueryDense(vector),
		Filter:         filter,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	return toHits(points), nil
}

func (idx *Index) queryLegacySearch(ctx context.Context, vector []float32, filter *qdrant.Filter, k int) ([]Hit, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("no query vector for legacy search path")
	}
	resp, err := idx.client.GetPointsClient().Search(ctx, &qdrant.SearchPoints{
		CollectionName: idx.collection,
		Vector:         vector,
		Filter:         filter,
		Limit:          uint64(k),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	return toScoredHits(resp.GetResult()), nil
}

func (idx *Index) queryFilterOnly(ctx context.Context, filter *qdrant.Filter, k int) ([]Hit, error) {
	limit := uint64(k)
	points, err := idx.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: idx.collection,
		Filter:         filter,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	return toHits(points), nil
}

func toHits(points []*qdrant.ScoredPoint) []Hit {
	out := make([]Hit, 0, len(points))
	for _, p := range points {
		out = append(out, hitFromScored(p))
	}
	return out
}

func toScoredHits(points []*qdrant.ScoredPoint) []Hit {
	return toHits(points)
}

func hitFromScored(p *qdrant.ScoredPoint) Hit {
	h := Hit{Score: float64(p.GetScore())}
	if p.Id != nil {
		h.ID = p.Id.GetUuid()
	}
	if p.Payload != nil {
		if v, ok := p.Payload[payloadOriginalID]; ok {
			h.ID = v.GetStringValue()
		}
		if v, ok := p.Payload["user_id"]; ok {
			h.UserID = v.GetStringValue()
		}
		if v, ok := p.Payload["space_id"]; ok {
			h.SpaceID = v.GetStringValue()
		}
		if v, ok := p.Payload["created_at"]; ok {
			h.CreateAt = time.Unix(v.GetIntegerValue(), 0)
		}
		if v, ok := p.Payload["doc_id"]; ok {
			h.DocumentID = v.GetStringValue()
		}
		if v, ok := p.Payload["image_id"]; ok {
			h.ImageID = v.GetStringValue()
		}
		if v, ok := p.Payload["chunk_index"]; ok {
			h.ChunkIndex = int(v.GetIntegerValue())
		}
		if v, ok := p.Payload[textField]; ok {
			h.Text = v.GetStringValue()
		}
		if v, ok := p.Payload[captionField]; ok {
			h.Caption = v.GetStringValue()
		}
		if v, ok := p.Payload["file_path"]; ok {
			h.FilePath = v.GetStringValue()
		}
		if v, ok := p.Payload["thumbnail_path"]; ok {
			h.ThumbnailPath = v.GetStringValue()
		}
		if v, ok := p.Payload["tags"]; ok {
			for _, t := range v.GetListValue().GetValues() {
				h.Tags = append(h.Tags, t.GetStringValue())
			}
		}
	}
	return h
}

func applyRecency(hits []Hit, opt RecencyOptions) {
	if opt.HalfLifeDays <= 0 {
		opt.HalfLifeDays = 30
	}
	now := opt.Now
	if now.IsZero() {
		now = time.Now()
	}
	for i := range hits {
		if hits[i].CreateAt.IsZero() {
			continue
		}
		ageDays := now.Sub(hits[i].CreateAt).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		decay := math.Exp(-math.Ln2 * ageDays / opt.HalfLifeDays)
		hits[i].Score += opt.Boost * decay
	}
}

// Dimension returns the configured vector dimension.
func (idx *Index) Dimension() int { return idx.dimension }

// Close releases the underlying gRPC connection.
func (idx *Index) Close() error { return idx.client.Close() }
