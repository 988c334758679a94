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

// Package search implements the retrieval and ranking core. This file holds
// the vector index: a similarity search over embeddings persisted in the
// document store. The scan is deliberately linear — at the corpus sizes this
// system targets (thousands of scenes per deployment) a brute-force cosine
// pass is simpler and fast enough, and the ranking contract (descending
// similarity, ties in insertion order) is trivial to guarantee. An ANN
// backend can replace this as long as it preserves that contract.
package search

import (
	"context"
	"fmt"
	"sort"

	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/model"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/store"
)

// Match is one scored index hit. The metadata snapshot rides along so most
// callers can render or filter a hit without re-reading the scene document.
type Match struct {
	SceneID    string
	Similarity float64
	Metadata   model.EmbeddingMetadata
}

// VectorIndex persists scene vectors and answers similarity queries against
// them.
type VectorIndex struct {
	embeddings store.EmbeddingStore
	dim        int
}

// NewVectorIndex creates an index over the given embedding store with a
// fixed, system-wide dimensionality.
func NewVectorIndex(embeddings store.EmbeddingStore, dim int) *VectorIndex {
	return &VectorIndex{embeddings: embeddings, dim: dim}
}

// Upsert writes the vector for a scene and returns the embedding id. The id
// is derived from the scene id, so re-running generation for the same scene
// overwrites the previous entry rather than duplicating it.
func (x *VectorIndex) Upsert(ctx context.Context, scene *model.Scene, vector []float32) (string, error) {
	if len(vector) != x.dim {
		return "", fmt.Errorf("%w: upsert for scene %s: %d vs %d",
			ErrDimensionMismatch, scene.ID, len(vector), x.dim)
	}
	embedding := model.NewEmbedding(scene, vector)
	if err := x.embeddings.Put(ctx, embedding); err != nil {
		return "", err
	}
	return embedding.ID, nil
}

// Delete removes an embedding. Deleting an id that does not exist is a no-op.
func (x *VectorIndex) Delete(ctx context.Context, embeddingID string) error {
	return x.embeddings.Delete(ctx, embeddingID)
}

// Search scans every stored vector (optionally pre-filtered to one campaign),
// keeps hits with similarity >= minSimilarity, and returns them in descending
// similarity order truncated to limit. Ties keep the store's stable insertion
// order. A stored vector of the wrong length is a data-integrity error, not
// something to skip silently.
func (x *VectorIndex) Search(ctx context.Context, queryVector []float32, limit int, campaignID string, minSimilarity float64) ([]*Match, error) {
	if len(queryVector) != x.dim {
		return nil, fmt.Errorf("%w: query vector: %d vs %d",
			ErrDimensionMismatch, len(queryVector), x.dim)
	}
	embeddings, err := x.embeddings.List(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	out := make([]*Match, 0, len(embeddings))
	for _, embedding := range embeddings {
		similarity, err := CosineSimilarity(queryVector, embedding.Vector)
		if err != nil {
			return nil, fmt.Errorf("stored vector %s: %w", embedding.ID, err)
		}
		if similarity < minSimilarity {
			continue
		}
		out = append(out, &Match{
			SceneID:    embedding.SceneID,
			Similarity: similarity,
			Metadata:   embedding.Metadata,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
