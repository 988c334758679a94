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

// Package search implements the retrieval and ranking core: cosine
// similarity, the linear-scan vector index, query routing, scene retrieval,
// and result enrichment. This file holds the similarity primitive and the
// package's error values.
package search

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDimensionMismatch reports an attempt to compare vectors of
	// different lengths. This is a data-integrity failure and is never
	// coerced by truncation or padding.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrRetrieval wraps document-store failures during retrieval. There is
	// no retry at this layer; the embedding provider and the store clients
	// already retry what is worth retrying.
	ErrRetrieval = errors.New("scene retrieval failed")
)

// CosineSimilarity returns the cosine of the angle between a and b, in
// [-1, 1]. A zero-magnitude operand yields 0 — "no similarity", not an error
// and never NaN. Mismatched lengths yield ErrDimensionMismatch.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
