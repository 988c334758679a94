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

// Package cloud provides the Google Cloud integration layer. This file builds
// the ServiceClients container: every external client the application talks
// to, initialized once at startup from the configuration and injected
// downward. Nothing else in the codebase constructs a cloud client.
package cloud

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/firestore"
	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"google.golang.org/genai"
)

// ServiceClients holds every external service connection plus the configured
// model wrappers, acting as the dependency container for the rest of the
// application.
type ServiceClients struct {
	StorageClient   *storage.Client
	PubsubClient    *pubsub.Client
	GenAIClient     *genai.Client
	BigQueryClient  *bigquery.Client
	FirestoreClient *firestore.Client
	IAMClient       *credentials.IamCredentialsClient

	// PubSubListeners are created per configured subscription with no command
	// attached; the workflows attach their chains during setup.
	PubSubListeners map[string]*PubSubListener
	// EmbeddingBackends are raw Vertex AI embedding adapters keyed by the
	// logical names from the config; the core's provider wraps them with
	// pacing and fallback.
	EmbeddingBackends map[string]*GenAIEmbeddingBackend
	// AgentModels are the quota-aware chat models keyed by logical name.
	AgentModels map[string]*QuotaAwareGenerativeAIModel
}

// Close releases every client connection. Used by tests and graceful
// shutdown.
func (c *ServiceClients) Close() {
	_ = c.StorageClient.Close()
	_ = c.PubsubClient.Close()
	_ = c.BigQueryClient.Close()
	_ = c.FirestoreClient.Close()
	_ = c.IAMClient.Close()
}

// NewCloudServiceClients initializes all Google Cloud clients from the
// configuration. Any single failure aborts startup; a half-connected server
// is worse than a crashed one.
func NewCloudServiceClients(ctx context.Context, config *Config) (*ServiceClients, error) {
	projectID := config.Application.GoogleProjectId

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	pubsubClient, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: config.Application.GoogleLocation,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	bigqueryClient, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	firestoreClient, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}
	iamClient, err := credentials.NewIamCredentialsClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating iam credentials client: %w", err)
	}

	listeners := make(map[string]*PubSubListener)
	for key, sub := range config.TopicSubscriptions {
		listener, err := NewPubSubListener(pubsubClient, sub.Name, nil)
		if err != nil {
			return nil, fmt.Errorf("creating listener for %s: %w", sub.Name, err)
		}
		listeners[key] = listener
	}

	embeddingBackends := make(map[string]*GenAIEmbeddingBackend)
	for key, em := range config.EmbeddingModels {
		embeddingBackends[key] = NewGenAIEmbeddingBackend(genaiClient.Models, em.Model, em.TaskType)
	}

	agentModels := make(map[string]*QuotaAwareGenerativeAIModel)
	for key, am := range config.AgentModels {
		generationConfig := &genai.GenerateContentConfig{
			Temperature:       genai.Ptr[float32](am.Temperature),
			TopP:              genai.Ptr[float32](am.TopP),
			TopK:              genai.Ptr[float32](am.TopK),
			MaxOutputTokens:   am.MaxTokens,
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: am.SystemInstructions}}},
			SafetySettings:    DefaultSafetySettings,
			Tools:             []*genai.Tool{},
		}
		agentModels[key] = NewQuotaAwareModel(generationConfig, am.Model, genaiClient.Models, am.RateLimit)
	}

	return &ServiceClients{
		StorageClient:     storageClient,
		PubsubClient:      pubsubClient,
		GenAIClient:       genaiClient,
		BigQueryClient:    bigqueryClient,
		FirestoreClient:   firestoreClient,
		IAMClient:         iamClient,
		PubSubListeners:   listeners,
		EmbeddingBackends: embeddingBackends,
		AgentModels:       agentModels,
	}, nil
}

// SignedURLTTL returns the configured signed-URL lifetime with a sane
// default.
func (c *Config) SignedURLTTL() time.Duration {
	if c.Storage.SignedURLTTLMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.Storage.SignedURLTTLMinutes) * time.Minute
}
