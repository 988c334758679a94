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

// Package chat_test contains unit tests for the conversation layer: the turn
// orchestrator with its bounded function-calling loop, the tool dispatcher,
// and the conversation service. The language model is a scripted fake; the
// library underneath is the real services over in-memory stores.
package chat_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/chat"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/model"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/search"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/services"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/store"
	test "github.com/jaycherian/gcp-go-ad-scene-search/internal/testutil"
)

const (
	testDim           = 64
	testContextSize   = 3
	testHistoryTurns  = 2
	testMaxIterations = 3
)

// fixture wires the chat stack: a scripted generator over the real toolset,
// search service, and conversation store, with the shared scene fixtures
// seeded and indexed.
type fixture struct {
	generator     *test.FakeGenerator
	conversations store.ConversationStore
	service       *chat.Service
	toolset       *chat.Toolset
	library       *services.LibraryService
	seeded        []*model.Scene
}

func newFixture(t *testing.T, generator *test.FakeGenerator) *fixture {
	t.Helper()
	ctx := context.Background()

	campaigns := store.NewMemoryCampaignStore()
	videos := store.NewMemoryVideoStore()
	scenes := store.NewMemorySceneStore()
	embeddings := store.NewMemoryEmbeddingStore()
	objects := test.NewFakeObjectStore()

	provider := test.NewTestProvider(nil, testDim)
	index := search.NewVectorIndex(embeddings, testDim)
	retriever := search.NewRetriever(provider, index, scenes, 0)
	enricher := search.NewEnricher(videos, objects, 0)
	searchService := search.NewService(provider, index, retriever, enricher, scenes, 5)

	library := services.NewLibraryService(campaigns, videos, scenes, embeddings, objects)

	campaign := test.TestCampaign()
	require.NoError(t, campaigns.Put(ctx, campaign))
	video := test.TestVideo(campaign.ID)
	require.NoError(t, videos.Put(ctx, video))

	f := &fixture{
		generator:     generator,
		conversations: store.NewMemoryConversationStore(),
		library:       library,
	}
	for _, scene := range test.TestScenes(video.ID, campaign.ID) {
		require.NoError(t, scenes.Put(ctx, scene))
		_, err := index.Upsert(ctx, scene, provider.Embed(ctx, scene.ComposedText()))
		require.NoError(t, err)
		f.seeded = append(f.seeded, scene)
	}

	f.toolset = chat.NewToolset(library, nil, searchService)
	orchestrator := chat.NewOrchestrator(generator, searchService, f.toolset,
		testContextSize, testHistoryTurns, testMaxIterations)
	f.service = chat.NewService(f.conversations, orchestrator)
	return f
}

// TestSendMessageAppendsOneTurn verifies the success path: the conversation
// grows by exactly two messages, the revision advances, and the assistant
// message carries a retrieved-scene snapshot drawn from the library.
func TestSendMessageAppendsOneTurn(t *testing.T) {
	f := newFixture(t, &test.FakeGenerator{
		Responses: []*genai.GenerateContentResponse{test.TextResponse("The driving scene is the most energetic.")},
	})
	ctx := context.Background()

	conversation, err := f.service.CreateConversation(ctx, "camp-001")
	require.NoError(t, err)

	updated, reply, err := f.service.SendMessage(ctx, conversation.ID, "which scene feels most energetic?")
	require.NoError(t, err)

	require.Len(t, updated.Messages, 2)
	assert.Equal(t, model.RoleUser, updated.Messages[0].Role)
	assert.Equal(t, model.RoleAssistant, updated.Messages[1].Role)
	assert.Equal(t, int64(1), updated.Revision)
	assert.Equal(t, "The driving scene is the most energetic.", reply.Content)

	// The context snapshot holds retrieved scenes, capped by the context size,
	// and every entry is a real library scene.
	require.NotNil(t, reply.Context)
	assert.NotEmpty(t, reply.Context.Scenes)
	assert.LessOrEqual(t, len(reply.Context.Scenes), testContextSize)
	known := map[string]bool{}
	for _, scene := range f.seeded {
		known[scene.ID] = true
	}
	for _, scene := range reply.Context.Scenes {
		assert.True(t, known[scene.ID], "context scene %s is not in the library", scene.ID)
	}
}

// TestSendMessageFunctionCallRoundTrip verifies a tool request is executed
// and its result fed back to the model before the final answer.
func TestSendMessageFunctionCallRoundTrip(t *testing.T) {
	f := newFixture(t, &test.FakeGenerator{
		Responses: []*genai.GenerateContentResponse{
			test.FunctionCallResponse(chat.ToolCountScenes, map[string]any{}),
			test.TextResponse("The campaign has 3 analyzed scenes."),
		},
	})
	ctx := context.Background()

	conversation, err := f.service.CreateConversation(ctx, "camp-001")
	require.NoError(t, err)

	_, reply, err := f.service.SendMessage(ctx, conversation.ID, "how many scenes do we have?")
	require.NoError(t, err)
	assert.Equal(t, "The campaign has 3 analyzed scenes.", reply.Content)

	// Two model calls; the second prompt carries the function call and its
	// response appended after the first prompt.
	require.Len(t, f.generator.Calls, 2)
	first, second := f.generator.Calls[0], f.generator.Calls[1]
	require.Len(t, second, len(first)+2)
	assert.NotNil(t, second[len(second)-2].Parts[0].FunctionCall)
	response := second[len(second)-1].Parts[0].FunctionResponse
	require.NotNil(t, response)
	assert.Equal(t, chat.ToolCountScenes, response.Name)
	assert.Equal(t, map[string]any{"count": 3}, response.Response)
}

// TestSendMessageIterationBudget verifies a model that keeps requesting tools
// fails the turn with ErrMaxIterations after exactly the budgeted number of
// round trips, leaving the conversation untouched.
func TestSendMessageIterationBudget(t *testing.T) {
	// A single scripted response replays forever: always another tool call.
	f := newFixture(t, &test.FakeGenerator{
		Responses: []*genai.GenerateContentResponse{
			test.FunctionCallResponse(chat.ToolCountVideos, map[string]any{}),
		},
	})
	ctx := context.Background()

	conversation, err := f.service.CreateConversation(ctx, "camp-001")
	require.NoError(t, err)

	_, _, err = f.service.SendMessage(ctx, conversation.ID, "count everything forever")
	assert.ErrorIs(t, err, chat.ErrMaxIterations)

	// The budget allows maxIterations executions, so the model was consulted
	// maxIterations+1 times before the turn failed.
	assert.Len(t, f.generator.Calls, testMaxIterations+1)

	stored, err := f.service.GetConversation(ctx, conversation.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Messages)
	assert.Equal(t, int64(0), stored.Revision)
}

// TestSendMessageUnknownFunction verifies a request for an undeclared tool
// fails the turn rather than being echoed back to the model.
func TestSendMessageUnknownFunction(t *testing.T) {
	f := newFixture(t, &test.FakeGenerator{
		Responses: []*genai.GenerateContentResponse{
			test.FunctionCallResponse("drop_all_tables", map[string]any{}),
		},
	})
	ctx := context.Background()

	conversation, err := f.service.CreateConversation(ctx, "camp-001")
	require.NoError(t, err)

	_, _, err = f.service.SendMessage(ctx, conversation.ID, "hello")
	assert.ErrorIs(t, err, chat.ErrUnknownFunction)
}

// TestSendMessageGenerationFailureFallsBack verifies an upstream generation
// failure still completes the turn with a non-empty assistant answer.
func TestSendMessageGenerationFailureFallsBack(t *testing.T) {
	f := newFixture(t, &test.FakeGenerator{Err: assert.AnError})
	ctx := context.Background()

	conversation, err := f.service.CreateConversation(ctx, "camp-001")
	require.NoError(t, err)

	updated, reply, err := f.service.SendMessage(ctx, conversation.ID, "anything energetic?")
	require.NoError(t, err)
	assert.NotEmpty(t, reply.Content)
	assert.Len(t, updated.Messages, 2)
}

// TestToolsetExecuteDispatch exercises each tool against the seeded library.
func TestToolsetExecuteDispatch(t *testing.T) {
	f := newFixture(t, &test.FakeGenerator{})
	ctx := context.Background()

	// Explicit campaign_id argument.
	result, err := f.toolset.Execute(ctx, chat.ToolGetCampaign,
		map[string]any{"campaign_id": "camp-001"}, "")
	require.NoError(t, err)
	campaign, ok := result["campaign"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Summer Launch", campaign["name"])

	// Missing campaign_id falls back to the conversation scope.
	result, err = f.toolset.Execute(ctx, chat.ToolCountVideos, map[string]any{}, "camp-001")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"count": 1}, result)

	result, err = f.toolset.Execute(ctx, chat.ToolListCampaigns, map[string]any{"limit": float64(5)}, "")
	require.NoError(t, err)
	campaigns, ok := result["campaigns"].([]any)
	require.True(t, ok)
	assert.Len(t, campaigns, 1)

	result, err = f.toolset.Execute(ctx, chat.ToolCountCampaigns, map[string]any{}, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"count": 1}, result)

	result, err = f.toolset.Execute(ctx, chat.ToolSearchScenes,
		map[string]any{"query": "energetic car scenes"}, "camp-001")
	require.NoError(t, err)
	assert.Contains(t, result, "results")

	// A nil analytics backend reports unavailability instead of erroring.
	result, err = f.toolset.Execute(ctx, chat.ToolGetCampaignAnalytics,
		map[string]any{"campaign_id": "camp-001"}, "")
	require.NoError(t, err)
	assert.Contains(t, result, "error")

	_, err = f.toolset.Execute(ctx, "no_such_tool", map[string]any{}, "")
	assert.ErrorIs(t, err, chat.ErrUnknownFunction)
}

// TestToolsetDeclaresEveryTool verifies each named tool is declared to the
// model, campaign counting included.
func TestToolsetDeclaresEveryTool(t *testing.T) {
	f := newFixture(t, &test.FakeGenerator{})

	declared := map[string]bool{}
	for _, declaration := range f.toolset.Declarations() {
		declared[declaration.Name] = true
	}
	for _, name := range []string{
		chat.ToolListCampaigns,
		chat.ToolCountCampaigns,
		chat.ToolGetCampaign,
		chat.ToolGetCampaignAnalytics,
		chat.ToolSearchScenes,
		chat.ToolCountVideos,
		chat.ToolCountScenes,
	} {
		assert.True(t, declared[name], "tool %s is not declared", name)
	}
}

// TestHistoryWindow verifies only the configured number of prior turns is
// replayed to the model.
func TestHistoryWindow(t *testing.T) {
	f := newFixture(t, &test.FakeGenerator{
		Responses: []*genai.GenerateContentResponse{test.TextResponse("ok")},
	})
	ctx := context.Background()

	conversation, err := f.service.CreateConversation(ctx, "camp-001")
	require.NoError(t, err)

	// Four prior turns; only the last testHistoryTurns (2) should replay.
	for i := 0; i < 4; i++ {
		_, _, err = f.service.SendMessage(ctx, conversation.ID, "question")
		require.NoError(t, err)
	}

	last := f.generator.Calls[len(f.generator.Calls)-1]
	// testHistoryTurns*2 history messages plus the new user message.
	assert.Len(t, last, testHistoryTurns*2+1)
}
