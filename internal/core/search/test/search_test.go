// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package search_test contains unit tests for the retrieval and ranking core:
// cosine similarity, the query router, the vector index, the retriever, the
// enricher, and the search service facade on top of them. Everything runs
// against the in-memory stores and the deterministic local embedding.
package search_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/embed"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/model"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/search"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/store"
	test "github.com/jaycherian/gcp-go-ad-scene-search/internal/testutil"
)

const testDim = 64

// fixture wires a full search stack over in-memory stores, seeded with the
// shared campaign, video, and three analyzed scenes, all embedded and
// indexed.
type fixture struct {
	scenes     store.SceneStore
	videos     store.VideoStore
	embeddings store.EmbeddingStore
	provider   *embed.Provider
	index      *search.VectorIndex
	service    *search.Service
	objects    *test.FakeObjectStore
	seeded     []*model.Scene
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		scenes:     store.NewMemorySceneStore(),
		videos:     store.NewMemoryVideoStore(),
		embeddings: store.NewMemoryEmbeddingStore(),
		objects:    test.NewFakeObjectStore(),
	}
	f.provider = test.NewTestProvider(nil, testDim)
	f.index = search.NewVectorIndex(f.embeddings, testDim)
	retriever := search.NewRetriever(f.provider, f.index, f.scenes, 0)
	enricher := search.NewEnricher(f.videos, f.objects, 0)
	f.service = search.NewService(f.provider, f.index, retriever, enricher, f.scenes, 5)

	campaign := test.TestCampaign()
	video := test.TestVideo(campaign.ID)
	require.NoError(t, f.videos.Put(ctx, video))

	for _, scene := range test.TestScenes(video.ID, campaign.ID) {
		require.NoError(t, f.scenes.Put(ctx, scene))
		id, err := f.index.Upsert(ctx, scene, f.provider.Embed(ctx, scene.ComposedText()))
		require.NoError(t, err)
		scene.EmbeddingID = id
		require.NoError(t, f.scenes.Put(ctx, scene))
		f.seeded = append(f.seeded, scene)
	}
	return f
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}
	c := []float32{1, 0, 0}

	// Orthogonal vectors score 0, identical vectors score 1.
	sim, err := search.CosineSimilarity(a, b)
	assert.NoError(t, err)
	assert.InDelta(t, 0.0, sim, 1e-9)

	sim, err = search.CosineSimilarity(a, c)
	assert.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-9)

	// Opposite vectors score -1, the lower bound.
	sim, err = search.CosineSimilarity(a, []float32{-1, 0, 0})
	assert.NoError(t, err)
	assert.InDelta(t, -1.0, sim, 1e-9)

	// A zero vector has no direction; similarity is defined as 0.
	sim, err = search.CosineSimilarity(a, []float32{0, 0, 0})
	assert.NoError(t, err)
	assert.Zero(t, sim)
}

func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	_, err := search.CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0})
	assert.ErrorIs(t, err, search.ErrDimensionMismatch)
}

// TestClassify exercises the routing table with representative queries.
func TestClassify(t *testing.T) {
	cases := []struct {
		query string
		want  search.Strategy
	}{
		{"campaign:camp-001", search.StrategyFiltered},
		{"mood:energetic", search.StrategyFiltered},
		{"exact id:vid-001-scene-001", search.StrategyFiltered},
		{"happy moments with people smiling", search.StrategySemantic},
		{"scenes similar to the sunset drive", search.StrategySemantic},
		{"energetic car scenes", search.StrategySemantic},
		{"a red car on a coastal road at dusk", search.StrategySemantic},
		{"car", search.StrategyGeneral},
		{"beach sunset", search.StrategyGeneral},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, search.Classify(tc.query), "query %q", tc.query)
	}
}

// TestVectorIndexUpsertIsIdempotent verifies re-embedding a scene overwrites
// its entry instead of duplicating it, and that the latest vector wins.
func TestVectorIndexUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	embeddings := store.NewMemoryEmbeddingStore()
	index := search.NewVectorIndex(embeddings, 3)

	scene := test.TestScenes("vid-001", "camp-001")[0]

	first := []float32{1, 0, 0}
	id1, err := index.Upsert(ctx, scene, first)
	require.NoError(t, err)

	second := []float32{0, 1, 0}
	id2, err := index.Upsert(ctx, scene, second)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	stored, err := embeddings.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, second, stored[0].Vector)
}

func TestVectorIndexRejectsWrongDimension(t *testing.T) {
	ctx := context.Background()
	index := search.NewVectorIndex(store.NewMemoryEmbeddingStore(), 3)
	scene := test.TestScenes("vid-001", "camp-001")[0]

	_, err := index.Upsert(ctx, scene, []float32{1, 0})
	assert.ErrorIs(t, err, search.ErrDimensionMismatch)

	_, err = index.Search(ctx, []float32{1, 0}, 5, "", 0)
	assert.ErrorIs(t, err, search.ErrDimensionMismatch)
}

// TestVectorIndexDeleteIsIdempotent verifies deleting an absent embedding is
// not an error, so deletion retries stay safe.
func TestVectorIndexDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	index := search.NewVectorIndex(store.NewMemoryEmbeddingStore(), 3)

	assert.NoError(t, index.Delete(ctx, "emb-never-existed"))
}

// TestVectorIndexCampaignFilter verifies campaign scoping happens before
// ranking, so another campaign's scenes never appear.
func TestVectorIndexCampaignFilter(t *testing.T) {
	ctx := context.Background()
	embeddings := store.NewMemoryEmbeddingStore()
	index := search.NewVectorIndex(embeddings, 3)

	inside := test.TestScenes("vid-001", "camp-001")[0]
	outside := test.TestScenes("vid-900", "camp-900")[0]
	_, err := index.Upsert(ctx, inside, []float32{1, 0, 0})
	require.NoError(t, err)
	_, err = index.Upsert(ctx, outside, []float32{1, 0, 0})
	require.NoError(t, err)

	hits, err := index.Search(ctx, []float32{1, 0, 0}, 10, "camp-001", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, inside.ID, hits[0].SceneID)
}

// TestQuerySceneSemanticEndToEnd runs the full pipeline on a descriptive
// query and checks ranking, scoring, and highlights on the top result.
func TestQuerySceneSemanticEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	results, err := f.service.QueryScenes(ctx, "energetic car scenes", search.Options{CampaignID: "camp-001"})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	top := results[0]
	assert.Equal(t, f.seeded[0].ID, top.Scene.ID)
	assert.Greater(t, top.Score, 0.0)
	assert.LessOrEqual(t, top.Score, 1.0)
	assert.Contains(t, top.Highlights, "energetic")
	assert.Contains(t, top.Highlights, "car")
	assert.Equal(t, "summer-launch-hero.mp4", top.Video.FileName)

	// Results are in descending score order.
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

// TestQueryScenesFilteredStrategy verifies a structured query skips the
// vector path and filters on the parsed field.
func TestQueryScenesFilteredStrategy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	results, err := f.service.QueryScenes(ctx, "mood:energetic", search.Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "energetic", results[0].Scene.Analysis.Mood)
}

// TestQueryScenesSceneIDLookup verifies the id: form resolves a single scene
// directly, and that an unknown id yields empty results, not an error.
func TestQueryScenesSceneIDLookup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	results, err := f.service.QueryScenes(ctx, "id:"+f.seeded[1].ID, search.Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, f.seeded[1].ID, results[0].Scene.ID)

	results, err = f.service.QueryScenes(ctx, "id:no-such-scene", search.Options{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

// TestQueryScenesConfidenceFilter verifies the post-filter drops scenes below
// the confidence threshold regardless of strategy.
func TestQueryScenesConfidenceFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	results, err := f.service.QueryScenes(ctx, "energetic car scenes", search.Options{
		Filters: &search.Filters{MinConfidence: 0.9},
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Scene.Analysis.Confidence, 0.9)
	}
}

// TestFindSimilarScenes verifies the source scene is excluded and the limit
// is respected.
func TestFindSimilarScenes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	results, err := f.service.FindSimilarScenes(ctx, f.seeded[0].ID, 2, "camp-001")
	require.NoError(t, err)
	assert.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 2)
	for _, r := range results {
		assert.NotEqual(t, f.seeded[0].ID, r.Scene.ID)
	}
}

func TestFindSimilarScenesUnknownSource(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.FindSimilarScenes(context.Background(), "no-such-scene", 2, "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// TestSearchByVisualElements covers both the any-of and all-of modes.
func TestSearchByVisualElements(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Any-of: "car" appears in the driving scene and the crowd scene.
	results, err := f.service.SearchByVisualElements(ctx, []string{"car"}, "camp-001", false, 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	// All-of: only the crowd scene has both car and confetti.
	results, err = f.service.SearchByVisualElements(ctx, []string{"car", "confetti"}, "camp-001", true, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, f.seeded[2].ID, results[0].Scene.ID)
}

// TestEnricherSkipsOrphanScenes verifies a scene whose parent video is gone
// is silently dropped from results instead of failing the query.
func TestEnricherSkipsOrphanScenes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	orphan := test.TestScenes("vid-gone", "camp-001")[0]
	require.NoError(t, f.scenes.Put(ctx, orphan))
	_, err := f.index.Upsert(ctx, orphan, f.provider.Embed(ctx, orphan.ComposedText()))
	require.NoError(t, err)

	results, err := f.service.QueryScenes(ctx, "energetic car scenes", search.Options{CampaignID: "camp-001"})
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, orphan.ID, r.Scene.ID)
	}
}

// TestEnricherSignedURLs verifies clip and thumbnail URLs are signed when the
// objects exist and degrade to empty strings when signing fails.
func TestEnricherSignedURLs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	results, err := f.service.QueryScenes(ctx, "energetic car scenes", search.Options{CampaignID: "camp-001"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	top := results[0]
	assert.Equal(t, "https://signed.example.com/"+top.Scene.ClipObject, top.ClipURL)
	assert.Equal(t, "https://signed.example.com/"+top.Scene.ThumbnailObject, top.ThumbnailURL)

	f.objects.SignErr = assert.AnError
	results, err = f.service.QueryScenes(ctx, "energetic car scenes", search.Options{CampaignID: "camp-001"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Empty(t, results[0].ClipURL)
	assert.Empty(t, results[0].ThumbnailURL)
}

// slowSigner wraps an object store and records how many SignedURL calls are
// in flight at once. Each signing takes long enough that two sequential calls
// could never overlap.
type slowSigner struct {
	*test.FakeObjectStore
	mu       sync.Mutex
	inFlight int
	peak     int
}

func (s *slowSigner) SignedURL(path string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.peak {
		s.peak = s.inFlight
	}
	s.mu.Unlock()

	time.Sleep(50 * time.Millisecond)

	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
	return s.FakeObjectStore.SignedURL(path, ttl)
}

// TestEnricherSignsURLsInParallel verifies the clip and thumbnail URLs of one
// scene are signed concurrently, not one after the other.
func TestEnricherSignsURLsInParallel(t *testing.T) {
	ctx := context.Background()
	videos := store.NewMemoryVideoStore()
	signer := &slowSigner{FakeObjectStore: test.NewFakeObjectStore()}
	enricher := search.NewEnricher(videos, signer, 0)

	campaign := test.TestCampaign()
	video := test.TestVideo(campaign.ID)
	require.NoError(t, videos.Put(ctx, video))
	scene := test.TestScenes(video.ID, campaign.ID)[0]
	require.NotEmpty(t, scene.ClipObject)
	require.NotEmpty(t, scene.ThumbnailObject)

	results, err := enricher.Enrich(ctx, []*model.SceneMatch{
		{Scene: scene, MatchScore: 0.5, HasVectorScore: true},
	}, "car")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NotEmpty(t, results[0].ClipURL)
	assert.NotEmpty(t, results[0].ThumbnailURL)
	assert.Equal(t, 2, signer.peak, "both signings should overlap")
}

// TestEnricherKeepsZeroVectorScore verifies a true cosine similarity of zero
// is used as the score instead of being replaced by the lexical heuristic.
func TestEnricherKeepsZeroVectorScore(t *testing.T) {
	ctx := context.Background()
	videos := store.NewMemoryVideoStore()
	enricher := search.NewEnricher(videos, test.NewFakeObjectStore(), 0)

	campaign := test.TestCampaign()
	video := test.TestVideo(campaign.ID)
	require.NoError(t, videos.Put(ctx, video))
	scene := test.TestScenes(video.ID, campaign.ID)[0]

	// The query matches the scene, so the lexical heuristic would be
	// positive; the zero vector score must win anyway.
	require.Greater(t, search.LexicalScore(scene, "car"), 0.0)

	results, err := enricher.Enrich(ctx, []*model.SceneMatch{
		{Scene: scene, MatchScore: 0, HasVectorScore: true},
	}, "car")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Zero(t, results[0].Score)

	// Without a vector score the same match falls back to the heuristic.
	results, err = enricher.Enrich(ctx, []*model.SceneMatch{
		{Scene: scene, MatchScore: 0},
	}, "car")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Greater(t, results[0].Score, 0.0)
}

// TestSearchByVisualElementsRanksBeforeLimit verifies the limit keeps the
// best-scoring scenes, not the first-inserted ones.
func TestSearchByVisualElementsRanksBeforeLimit(t *testing.T) {
	ctx := context.Background()
	scenes := store.NewMemorySceneStore()
	videos := store.NewMemoryVideoStore()
	embeddings := store.NewMemoryEmbeddingStore()
	provider := test.NewTestProvider(nil, testDim)
	index := search.NewVectorIndex(embeddings, testDim)
	retriever := search.NewRetriever(provider, index, scenes, 0)
	enricher := search.NewEnricher(videos, test.NewFakeObjectStore(), 0)
	service := search.NewService(provider, index, retriever, enricher, scenes, 5)

	// The weaker scene is inserted first; with a limit of one, only ranking
	// can surface the stronger one.
	weak := test.TestScenes("vid-a", "camp-001")[0]
	weak.Analysis.Confidence = 0.2
	strong := test.TestScenes("vid-b", "camp-001")[0]
	strong.Analysis.Confidence = 0.95
	for _, scene := range []*model.Scene{weak, strong} {
		require.NoError(t, scenes.Put(ctx, scene))
		video := test.TestVideo("camp-001")
		video.ID = scene.VideoID
		require.NoError(t, videos.Put(ctx, video))
	}

	results, err := service.SearchByVisualElements(ctx, []string{"car"}, "camp-001", false, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, strong.ID, results[0].Scene.ID)
}

// TestLexicalScoreClamped verifies the heuristic stays inside [0, 1] even
// when every bonus fires.
func TestLexicalScoreClamped(t *testing.T) {
	scene := test.TestScenes("vid-001", "camp-001")[0]
	scene.Analysis.Confidence = 1.0
	scene.Description = "car"
	scene.Transcript = "car"

	score := search.LexicalScore(scene, "car")
	assert.LessOrEqual(t, score, 1.0)
	assert.Greater(t, score, 0.5)
}
