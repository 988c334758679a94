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

// Package cloud provides the Google Cloud integration layer: configuration,
// service clients, and the wrappers the core depends on. This file defines
// the configuration structs loaded from the hierarchical TOML files (.env.toml
// overlaid by .env.<runtime>.toml).
package cloud

import "google.golang.org/genai"

// DefaultSafetySettings are the content-safety thresholds applied to every
// agent model. The library holds trusted, pre-reviewed advertising footage,
// so all categories pass through unblocked.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
}

// FirestoreCollections names the document collections backing each store.
type FirestoreCollections struct {
	Campaigns     string `toml:"campaigns"`
	Videos        string `toml:"videos"`
	Scenes        string `toml:"scenes"`
	Embeddings    string `toml:"embeddings"`
	Conversations string `toml:"conversations"`
}

// BigQueryDataSource configures the analytics mirror.
type BigQueryDataSource struct {
	DatasetName string `toml:"dataset"`
	SceneTable  string `toml:"scene_table"`
}

// Storage configures the media bucket holding scene clips and thumbnails.
type Storage struct {
	MediaBucket         string `toml:"media_bucket"`
	SignedURLTTLMinutes int    `toml:"signed_url_ttl_minutes"`
}

// Search tunes the retrieval core.
type Search struct {
	// Dimension is the fixed embedding dimensionality; every vector in the
	// system must have exactly this length.
	Dimension int `toml:"dimension"`
	// MinSimilarity is the vector-search cutoff. The default of 0 keeps every
	// scored candidate visible to downstream ranking.
	MinSimilarity float64 `toml:"min_similarity"`
	// DefaultLimit caps search results when the caller does not say.
	DefaultLimit int `toml:"default_limit"`
	// ContextSize is how many retrieved scenes seed a chat prompt.
	ContextSize int `toml:"context_size"`
	// HistoryTurns is how many prior turns are replayed per chat message.
	HistoryTurns int `toml:"history_turns"`
	// MaxIterations bounds function-call round trips per chat message.
	MaxIterations int `toml:"max_iterations"`
	// SyncBatchSize bounds how many scenes one embedding sweep processes.
	SyncBatchSize int `toml:"sync_batch_size"`
	// SyncIntervalSeconds is the embedding sweep period.
	SyncIntervalSeconds int `toml:"sync_interval_seconds"`
}

// VertexAiEmbeddingModel configures one embedding model and its pacing.
type VertexAiEmbeddingModel struct {
	Model           string `toml:"model"`
	TaskType        string `toml:"task_type"`
	BaseDelayMillis int    `toml:"base_delay_millis"`
	MaxDelayMillis  int    `toml:"max_delay_millis"`
}

// VertexAiLLMModel configures one agent (chat) model.
type VertexAiLLMModel struct {
	Model              string  `toml:"model"`
	SystemInstructions string  `toml:"system_instructions"`
	Temperature        float32 `toml:"temperature"`
	TopP               float32 `toml:"top_p"`
	TopK               float32 `toml:"top_k"`
	MaxTokens          int32   `toml:"max_tokens"`
	RateLimit          int     `toml:"rate_limit"`
}

// TopicSubscription configures one Pub/Sub subscription.
type TopicSubscription struct {
	Name             string `toml:"name"`
	DeadLetterTopic  string `toml:"dead_letter_topic"`
	TimeoutInSeconds int    `toml:"timeout_in_seconds"`
}

// Config is the root configuration object.
type Config struct {
	Application struct {
		Name                      string `toml:"name"`
		GoogleProjectId           string `toml:"google_project_id"`
		GoogleLocation            string `toml:"location"`
		SignerServiceAccountEmail string `toml:"signer_service_account_email"`
	} `toml:"application"`
	Firestore          FirestoreCollections              `toml:"firestore"`
	Storage            Storage                           `toml:"storage"`
	BigQueryDataSource BigQueryDataSource                `toml:"big_query_data_source"`
	Search             Search                            `toml:"search"`
	TopicSubscriptions map[string]TopicSubscription      `toml:"topic_subscriptions"`
	EmbeddingModels    map[string]VertexAiEmbeddingModel `toml:"embedding_models"`
	AgentModels        map[string]VertexAiLLMModel       `toml:"agent_models"`
}

// NewConfig returns a Config with its maps initialized so the TOML decoder
// can populate them.
func NewConfig() *Config {
	return &Config{
		TopicSubscriptions: make(map[string]TopicSubscription),
		EmbeddingModels:    make(map[string]VertexAiEmbeddingModel),
		AgentModels:        make(map[string]VertexAiLLMModel),
	}
}
