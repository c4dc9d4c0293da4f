package retrieval

import (
	"context"
	"testing"

	"github.com/shadabshaukat/spaces-ai/internal/store/secondary"
	"github.com/stretchr/testify/require"
)

type fakeSecondaryImages struct {
	vecHits  []secondary.Hit
	textHits []secondary.Hit
	calls    map[string]int
}

func (f *fakeSecondaryImages) Search(_ context.Context, _ []float32, _, _ string, _ int, _ *secondary.RecencyOptions) ([]secondary.Hit, error) {
	f.calls["search"]++
	return f.vecHits, nil
}

func (f *fakeSecondaryImages) SearchImageText(_ context.Context, _, _, _ string, _ int) ([]secondary.Hit, error) {
	f.calls["search_text"]++
	return f.textHits, nil
}

func TestImageCandidatesRelationalUsesVectorWhenPresent(t *testing.T) {
	rel := &fakeRelational{calls: map[string]int{}}
	e := &Engine{relational: rel, backend: BackendRelational}
	_, err := e.imageCandidatesRelational(context.Background(), ImageQuery{UserID: "u1"}, []float32{0.1}, 5)
	require.NoError(t, err)
	require.Equal(t, 1, rel.calls["images_semantic"])
	require.Equal(t, 0, rel.calls["images_text"])
}

func TestImageCandidatesRelationalUsesTextWhenNoVector(t *testing.T) {
	rel := &fakeRelational{calls: map[string]int{}}
	e := &Engine{relational: rel, backend: BackendRelational}
	_, err := e.imageCandidatesRelational(context.Background(), ImageQuery{UserID: "u1", QueryText: "a cat"}, nil, 5)
	require.NoError(t, err)
	require.Equal(t, 0, rel.calls["images_semantic"])
	require.Equal(t, 1, rel.calls["images_text"])
}

func TestImageCandidatesRelationalErrorsWithoutVectorOrText(t *testing.T) {
	rel := &fakeRelational{calls: map[string]int{}}
	e := &Engine{relational: rel, backend: BackendRelational}
	_, err := e.imageCandidatesRelational(context.Background(), ImageQuery{UserID: "u1"}, nil, 5)
	require.Error(t, err)
}

func TestImageCandidatesSecondaryExplicitVectorSkipsCaptionClause(t *testing.T) {
	sec := &fakeSecondaryImages{
		vecHits: []secondary.Hit{{ID: "a", Score: 0.9, ImageID: "img1"}},
		calls:   map[string]int{},
	}
	e := &Engine{secondaryImages: sec, backend: BackendSecondary, imageVectorWeight: 0.7, imageTextWeight: 0.3}
	hits, err := e.imageCandidatesSecondary(context.Background(), ImageQuery{UserID: "u1", QueryVector: []float32{0.1}}, []float32{0.1}, false, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, 1, sec.calls["search"])
	require.Equal(t, 0, sec.calls["search_text"])
}

func TestImageCandidatesSecondaryTextDerivedVectorCombinesBothLegs(t *testing.T) {
	sec := &fakeSecondaryImages{
		vecHits:  []secondary.Hit{{ID: "a", Score: 1.0, ImageID: "img1"}},
		textHits: []secondary.Hit{{ID: "a", Score: 1.0, ImageID: "img1"}, {ID: "b", Score: 0.5, ImageID: "img2"}},
		calls:    map[string]int{},
	}
	e := &Engine{secondaryImages: sec, backend: BackendSecondary, imageVectorWeight: 0.7, imageTextWeight: 0.3}
	hits, err := e.imageCandidatesSecondary(context.Background(), ImageQuery{UserID: "u1", QueryText: "a cat"}, []float32{0.1}, true, 5)
	require.NoError(t, err)
	require.Equal(t, 1, sec.calls["search"])
	require.Equal(t, 1, sec.calls["search_text"])
	require.Len(t, hits, 2)
	// "a" scores 0.7*1.0 + 0.3*1.0 = 1.0, "b" scores 0.3*0.5 = 0.15; "a" must rank first.
	require.Equal(t, "img1", hits[0].ImageID)
	require.InDelta(t, 1.0, hits[0].Score, 1e-9)
}

func TestImageCandidatesSecondaryTextOnlyUsesCaptionSearch(t *testing.T) {
	sec := &fakeSecondaryImages{
		textHits: []secondary.Hit{{ID: "a", Score: 0.4, ImageID: "img1"}},
		calls:    map[string]int{},
	}
	e := &Engine{secondaryImages: sec, backend: BackendSecondary}
	hits, err := e.imageCandidatesSecondary(context.Background(), ImageQuery{UserID: "u1", QueryText: "a cat"}, nil, false, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, 0, sec.calls["search"])
	require.Equal(t, 1, sec.calls["search_text"])
}

func TestCombineWeightedSumsSharedIDs(t *testing.T) {
	vecHits := []secondary.Hit{{ID: "a", Score: 1.0}}
	textHits := []secondary.Hit{{ID: "a", Score: 1.0}, {ID: "b", Score: 1.0}}
	out := combineWeighted(vecHits, textHits, 0.7, 0.3)
	require.Len(t, out, 2)
	require.Equal(t, "a", out[0].ID)
	require.InDelta(t, 1.0, out[0].Score, 1e-9)
	require.InDelta(t, 0.3, out[1].Score, 1e-9)
}

func TestImageFingerprintDistinguishesVecFromNovec(t *testing.T) {
	e := &Engine{}
	withVec := e.imageFingerprint(ImageQuery{QueryText: "cat", QueryVector: []float32{0.1}})
	withoutVec := e.imageFingerprint(ImageQuery{QueryText: "cat"})
	require.NotEqual(t, withVec, withoutVec)
}
