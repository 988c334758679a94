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

// Package services_test contains unit tests for the library service, with a
// focus on the video deletion cascade: scenes, embeddings, and stored media
// must all go with the video, and search must never surface a deleted scene.
package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/model"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/search"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/services"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/store"
	test "github.com/jaycherian/gcp-go-ad-scene-search/internal/testutil"
)

const testDim = 32

type fixture struct {
	campaigns  store.CampaignStore
	videos     store.VideoStore
	scenes     store.SceneStore
	embeddings store.EmbeddingStore
	objects    *test.FakeObjectStore
	index      *search.VectorIndex
	library    *services.LibraryService
	seeded     []*model.Scene
}

// newFixture seeds a campaign with one fully embedded video, including a clip
// object per scene in the fake object store.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		campaigns:  store.NewMemoryCampaignStore(),
		videos:     store.NewMemoryVideoStore(),
		scenes:     store.NewMemorySceneStore(),
		embeddings: store.NewMemoryEmbeddingStore(),
		objects:    test.NewFakeObjectStore(),
	}
	f.index = search.NewVectorIndex(f.embeddings, testDim)
	f.library = services.NewLibraryService(f.campaigns, f.videos, f.scenes, f.embeddings, f.objects)

	campaign := test.TestCampaign()
	require.NoError(t, f.campaigns.Put(ctx, campaign))
	video := test.TestVideo(campaign.ID)
	require.NoError(t, f.videos.Put(ctx, video))

	provider := test.NewTestProvider(nil, testDim)
	for _, scene := range test.TestScenes(video.ID, campaign.ID) {
		id, err := f.index.Upsert(ctx, scene, provider.Embed(ctx, scene.ComposedText()))
		require.NoError(t, err)
		scene.EmbeddingID = id
		require.NoError(t, f.scenes.Put(ctx, scene))
		if scene.ClipObject != "" {
			_, err = f.objects.Upload(ctx, []byte("clip"), scene.ClipObject)
			require.NoError(t, err)
		}
		f.seeded = append(f.seeded, scene)
	}
	return f
}

func TestLibraryCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	campaigns, err := f.library.CountCampaigns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, campaigns)

	videos, err := f.library.CountVideos(ctx, "camp-001")
	require.NoError(t, err)
	assert.Equal(t, 1, videos)

	scenes, err := f.library.CountScenes(ctx, "camp-001")
	require.NoError(t, err)
	assert.Equal(t, 3, scenes)

	// Campaign scoping: a different campaign counts zero.
	scenes, err = f.library.CountScenes(ctx, "camp-999")
	require.NoError(t, err)
	assert.Zero(t, scenes)
}

// TestDeleteVideoCascades verifies deleting a video removes its scenes, their
// embeddings, and its stored media objects, and that the video itself is
// gone.
func TestDeleteVideoCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.library.DeleteVideo(ctx, "vid-001"))

	_, err := f.library.GetVideo(ctx, "vid-001")
	assert.ErrorIs(t, err, store.ErrNotFound)

	scenes, err := f.scenes.ListByVideo(ctx, "vid-001")
	require.NoError(t, err)
	assert.Empty(t, scenes)

	embeddings, err := f.embeddings.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, embeddings)

	assert.Empty(t, f.objects.Objects)
}

// TestDeleteVideoRemovesScenesFromSearch verifies the invariant the cascade
// exists for: a deleted video's scenes never come back from the index.
func TestDeleteVideoRemovesScenesFromSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	provider := test.NewTestProvider(nil, testDim)
	query := provider.Embed(ctx, f.seeded[0].ComposedText())

	hits, err := f.index.Search(ctx, query, 10, "", 0)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	require.NoError(t, f.library.DeleteVideo(ctx, "vid-001"))

	hits, err = f.index.Search(ctx, query, 10, "", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestDeleteVideoUnknownID(t *testing.T) {
	f := newFixture(t)

	err := f.library.DeleteVideo(context.Background(), "vid-404")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// TestAnalyticsQueriesBindCampaignID verifies the campaign id reaches BigQuery
// as a named query parameter, never spliced into the SQL text.
func TestAnalyticsQueriesBindCampaignID(t *testing.T) {
	for _, query := range []string{services.QryCampaignSummary, services.QryTopMoods} {
		assert.Contains(t, query, "campaign_id = @campaign_id")
		assert.NotContains(t, query, "'%s'")
	}
}

// TestNewSceneRow verifies the BigQuery mirror row carries the aggregate
// fields verbatim from the scene document.
func TestNewSceneRow(t *testing.T) {
	scene := test.TestScenes("vid-001", "camp-001")[0]
	row := services.NewSceneRow(scene)

	assert.Equal(t, scene.ID, row.SceneID)
	assert.Equal(t, scene.VideoID, row.VideoID)
	assert.Equal(t, scene.CampaignID, row.CampaignID)
	assert.Equal(t, scene.Duration, row.Duration)
	assert.Equal(t, scene.Analysis.Mood, row.Mood)
	assert.Equal(t, scene.Analysis.Product, row.Product)
	assert.Equal(t, scene.Analysis.Confidence, row.Confidence)
}
