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

// Package embed turns text into fixed-length vectors. This file implements
// the deterministic local embedding used when the upstream provider is
// exhausted: a bag of hashed tokens with position-decayed weights. It is a
// pure function of its input, so identical text always produces the identical
// vector, and similarity degrades gracefully to token overlap instead of the
// pipeline stalling.
package embed

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// tokenSpread is how many vector positions each token contributes to, and
// tokenStride the step between those positions. Spreading one token over
// several positions reduces collision damage at small dimensionalities.
const (
	tokenSpread = 10
	tokenStride = 97
)

// LocalEmbedder produces the deterministic fallback embedding at a fixed
// dimensionality.
type LocalEmbedder struct {
	dim int
}

// NewLocalEmbedder creates a fallback embedder for the given dimensionality.
func NewLocalEmbedder(dim int) *LocalEmbedder {
	return &LocalEmbedder{dim: dim}
}

// Embed hashes each token to tokenSpread positions of the output vector,
// accumulates a weight that decays with the token's position in the text,
// and L2-normalizes the result. Empty or token-free input yields the zero
// vector, whose norm is 0 by definition.
func (e *LocalEmbedder) Embed(text string) []float32 {
	vec := make([]float32, e.dim)
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return vec
	}

	for wordIndex, token := range tokens {
		weight := 1.0 / float64(wordIndex+1)
		h := fnv.New64a()
		_, _ = h.Write([]byte(token))
		base := h.Sum64()
		for i := 0; i < tokenSpread; i++ {
			pos := (base + uint64(i)*tokenStride) % uint64(e.dim)
			vec[pos] += float32(weight)
		}
	}

	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sumSquares))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// Tokenize lower-cases the input and splits it on any run of
// non-alphanumeric characters.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
