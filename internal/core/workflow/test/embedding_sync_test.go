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

// Package workflow_test contains tests for the embedding sync workflow in
// both of its forms: the timer-driven sweep over scenes still missing an
// embedding, and the event-triggered chain the Pub/Sub listener runs per
// scene-analyzed message.
package workflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/cor"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/embed"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/model"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/search"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/store"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/workflow"
	test "github.com/jaycherian/gcp-go-ad-scene-search/internal/testutil"
)

const testDim = 32

type fixture struct {
	scenes     store.SceneStore
	embeddings store.EmbeddingStore
	provider   *embed.Provider
	index      *search.VectorIndex
	seeded     []*model.Scene
}

// newFixture seeds three analyzed scenes, none of which has an embedding yet.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		scenes:     store.NewMemorySceneStore(),
		embeddings: store.NewMemoryEmbeddingStore(),
	}
	f.provider = test.NewTestProvider(nil, testDim)
	f.index = search.NewVectorIndex(f.embeddings, testDim)

	for _, scene := range test.TestScenes("vid-001", "camp-001") {
		require.NoError(t, f.scenes.Put(ctx, scene))
		f.seeded = append(f.seeded, scene)
	}
	return f
}

// TestSweepEmbedsPendingScenes verifies one sweep embeds every pending scene,
// stamps its embedding id, and leaves the index searchable.
func TestSweepEmbedsPendingScenes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sync := workflow.NewEmbeddingSyncWorkflow(f.scenes, f.provider, f.index, nil, 10, time.Minute)
	require.NoError(t, sync.RunOnce(ctx))

	for _, seeded := range f.seeded {
		scene, err := f.scenes.Get(ctx, seeded.ID)
		require.NoError(t, err)
		assert.Equal(t, model.EmbeddingID(scene.ID), scene.EmbeddingID)
	}

	stored, err := f.embeddings.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, stored, len(f.seeded))

	hits, err := f.index.Search(ctx, f.provider.Embed(ctx, f.seeded[0].ComposedText()), 1, "", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, f.seeded[0].ID, hits[0].SceneID)
}

// TestSweepIsIdempotent verifies a second sweep finds nothing pending and
// changes nothing.
func TestSweepIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sync := workflow.NewEmbeddingSyncWorkflow(f.scenes, f.provider, f.index, nil, 10, time.Minute)
	require.NoError(t, sync.RunOnce(ctx))
	require.NoError(t, sync.RunOnce(ctx))

	stored, err := f.embeddings.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, stored, len(f.seeded))
}

// TestSweepRespectsBatchSize verifies the per-run bound: a batch of one
// embeds exactly one scene per sweep.
func TestSweepRespectsBatchSize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sync := workflow.NewEmbeddingSyncWorkflow(f.scenes, f.provider, f.index, nil, 1, time.Minute)
	require.NoError(t, sync.RunOnce(ctx))

	stored, err := f.embeddings.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

// runTrigger executes the event-triggered chain against one raw message and
// returns the chain context for assertions.
func runTrigger(f *fixture, payload string) cor.Context {
	chain := workflow.NewEmbeddingTriggerChain(f.scenes, f.provider, f.index, nil)
	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(context.Background())
	chainCtx.Add(cor.CtxIn, payload)
	chain.Execute(chainCtx)
	return chainCtx
}

// TestTriggerChainEmbedsNamedScene verifies a scene-analyzed event embeds
// exactly the named scene.
func TestTriggerChainEmbedsNamedScene(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	target := f.seeded[1]
	chainCtx := runTrigger(f, test.TestSceneEventText(target.CampaignID, target.VideoID, target.ID))
	assert.False(t, chainCtx.HasErrors())

	scene, err := f.scenes.Get(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EmbeddingID(target.ID), scene.EmbeddingID)

	stored, err := f.embeddings.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

// TestTriggerChainToleratesDeletedScene verifies an event for a scene that no
// longer exists completes clean, so the message is acked instead of
// redelivering forever.
func TestTriggerChainToleratesDeletedScene(t *testing.T) {
	f := newFixture(t)

	chainCtx := runTrigger(f, test.TestSceneEventText("camp-001", "vid-001", "vid-001-scene-999"))
	assert.False(t, chainCtx.HasErrors())

	stored, err := f.embeddings.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

// TestTriggerChainRejectsBadPayload verifies an unparseable message fails the
// chain so it is not acked.
func TestTriggerChainRejectsBadPayload(t *testing.T) {
	f := newFixture(t)

	assert.True(t, runTrigger(f, "not json").HasErrors())
	assert.True(t, runTrigger(f, `{"campaign_id": "camp-001"}`).HasErrors())
}
