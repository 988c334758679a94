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

// Package cloud provides the Google Cloud integration layer. This file is the
// Vertex AI implementation of the embedding backend: a thin adapter from the
// core's one-text-in, one-vector-out boundary to the genai EmbedContent API.
// Pacing, retries, and the deterministic fallback all live in the core's
// provider, not here.
package cloud

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GenAIEmbeddingBackend calls Vertex AI for text embeddings.
type GenAIEmbeddingBackend struct {
	ModelHandle *genai.Models
	ModelName   string
	// TaskType hints the model how the vector will be used (e.g.
	// "RETRIEVAL_DOCUMENT", "RETRIEVAL_QUERY"). Empty uses the model default.
	TaskType string
}

// NewGenAIEmbeddingBackend creates a backend for one embedding model.
func NewGenAIEmbeddingBackend(handle *genai.Models, modelName, taskType string) *GenAIEmbeddingBackend {
	return &GenAIEmbeddingBackend{ModelHandle: handle, ModelName: modelName, TaskType: taskType}
}

// EmbedText returns the embedding vector for one text.
func (b *GenAIEmbeddingBackend) EmbedText(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}

	var config *genai.EmbedContentConfig
	if b.TaskType != "" {
		config = &genai.EmbedContentConfig{TaskType: b.TaskType}
	}

	result, err := b.ModelHandle.EmbedContent(ctx, b.ModelName, contents, config)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if result == nil || len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("embed content: empty embedding from model %s", b.ModelName)
	}
	return result.Embeddings[0].Values, nil
}
