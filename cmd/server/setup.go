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

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"google.golang.org/genai"

	"github.com/jaycherian/gcp-go-ad-scene-search/internal/cloud"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/chat"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/embed"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/search"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/services"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/store"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/workflow"
)

// StateManager holds the shared components for the application.
type StateManager struct {
	config           *cloud.Config
	cloud            *cloud.ServiceClients
	searchService    *search.Service
	chatService      *chat.Service
	libraryService   *services.LibraryService
	analyticsService *services.AnalyticsService
	syncWorkflow     *workflow.EmbeddingSyncWorkflow
}

var state = &StateManager{}

// stores groups the document-store handles behind their interfaces so setup
// can swap the whole set between Firestore and in-memory at once.
type stores struct {
	campaigns     store.CampaignStore
	videos        store.VideoStore
	scenes        store.SceneStore
	embeddings    store.EmbeddingStore
	conversations store.ConversationStore
}

func SetupOS() (err error) {
	err = os.Setenv(cloud.EnvConfigFilePrefix, "configs")
	if err != nil {
		return err
	}
	err = os.Setenv(cloud.EnvConfigRuntime, "local")
	return err
}

func GetConfig() *cloud.Config {
	if state.config == nil {
		err := SetupOS()
		if err != nil {
			log.Fatalf("failed to setup os: %v\n", err)
		}
		config := cloud.NewConfig()
		cloud.LoadConfig(&config)
		state.config = config
	}
	return state.config
}

// buildStores returns Firestore-backed stores when the database answers a
// probe read, otherwise in-memory stores. The in-memory fallback keeps local
// development working without a live project; nothing survives a restart, so
// the downgrade is logged loudly.
func buildStores(ctx context.Context, config *cloud.Config, clients *cloud.ServiceClients) *stores {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	collections := config.Firestore
	_, err := clients.FirestoreClient.Collection(collections.Campaigns).Limit(1).Documents(probeCtx).GetAll()
	if err != nil {
		slog.WarnContext(ctx, "firestore unreachable, falling back to in-memory stores", "error", err)
		return &stores{
			campaigns:     store.NewMemoryCampaignStore(),
			videos:        store.NewMemoryVideoStore(),
			scenes:        store.NewMemorySceneStore(),
			embeddings:    store.NewMemoryEmbeddingStore(),
			conversations: store.NewMemoryConversationStore(),
		}
	}
	return &stores{
		campaigns:     store.NewFirestoreCampaignStore(clients.FirestoreClient, collections.Campaigns),
		videos:        store.NewFirestoreVideoStore(clients.FirestoreClient, collections.Videos),
		scenes:        store.NewFirestoreSceneStore(clients.FirestoreClient, collections.Scenes),
		embeddings:    store.NewFirestoreEmbeddingStore(clients.FirestoreClient, collections.Embeddings),
		conversations: store.NewFirestoreConversationStore(clients.FirestoreClient, collections.Conversations),
	}
}

// InitState initializes the application state and dependencies.
func InitState(ctx context.Context) {
	config := GetConfig()

	cloudClients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		panic(err)
	}
	state.cloud = cloudClients

	db := buildStores(ctx, config, cloudClients)

	objects := cloud.NewGCSObjectStore(
		cloudClients.StorageClient,
		cloudClients.IAMClient,
		config.Storage.MediaBucket,
		config.Application.SignerServiceAccountEmail,
	)

	embeddingModel := config.EmbeddingModels["scene-text"]
	limiter := embed.NewAdaptiveLimiter(
		time.Duration(embeddingModel.BaseDelayMillis)*time.Millisecond,
		time.Duration(embeddingModel.MaxDelayMillis)*time.Millisecond,
	)
	provider := embed.NewProvider(
		cloudClients.EmbeddingBackends["scene-text"],
		limiter,
		config.Search.Dimension,
	)

	index := search.NewVectorIndex(db.embeddings, config.Search.Dimension)
	retriever := search.NewRetriever(provider, index, db.scenes, config.Search.MinSimilarity)
	enricher := search.NewEnricher(db.videos, objects, config.SignedURLTTL())
	state.searchService = search.NewService(provider, index, retriever, enricher, db.scenes, config.Search.DefaultLimit)

	state.libraryService = services.NewLibraryService(db.campaigns, db.videos, db.scenes, db.embeddings, objects)
	state.analyticsService = &services.AnalyticsService{
		BigqueryClient: cloudClients.BigQueryClient,
		DatasetName:    config.BigQueryDataSource.DatasetName,
		SceneTable:     config.BigQueryDataSource.SceneTable,
	}

	toolset := chat.NewToolset(state.libraryService, state.analyticsService, state.searchService)
	agentModel := cloudClients.AgentModels["scene-agent"]
	agentModel.GenerativeContentConfig.Tools = []*genai.Tool{
		{FunctionDeclarations: toolset.Declarations()},
	}
	orchestrator := chat.NewOrchestrator(
		agentModel,
		state.searchService,
		toolset,
		config.Search.ContextSize,
		config.Search.HistoryTurns,
		config.Search.MaxIterations,
	)
	state.chatService = chat.NewService(db.conversations, orchestrator)

	state.syncWorkflow = workflow.NewEmbeddingSyncWorkflow(
		db.scenes,
		provider,
		index,
		state.analyticsService,
		config.Search.SyncBatchSize,
		time.Duration(config.Search.SyncIntervalSeconds)*time.Second,
	)
	state.syncWorkflow.StartTimer()

	SetupListeners(ctx, db, provider, index)
}

// SetupListeners attaches the event-triggered embedding chain to the
// scene-analyzed subscription and starts receiving.
func SetupListeners(ctx context.Context, db *stores, provider *embed.Provider, index *search.VectorIndex) {
	listener, ok := state.cloud.PubSubListeners["scene_analyzed"]
	if !ok {
		slog.WarnContext(ctx, "no scene_analyzed subscription configured, event-triggered sync disabled")
		return
	}
	trigger := workflow.NewEmbeddingTriggerChain(db.scenes, provider, index, state.analyticsService)
	listener.SetCommand(trigger)
	listener.Listen(ctx)
}
