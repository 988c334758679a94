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
// the query router, which picks a search strategy for a free-text query. The
// routing is a lexical heuristic, not a trained classifier: it only has to be
// cheap, deterministic, and right often enough that vector search handles the
// rest. The surrounding contract (a query in, a strategy out) is the stable
// part; the rules inside are expected to be tuned or replaced.
package search

import "strings"

// Strategy names how a query will be executed.
type Strategy string

const (
	// StrategySemantic embeds the query and ranks scenes by vector
	// similarity.
	StrategySemantic Strategy = "semantic"
	// StrategyFiltered queries the scene store with equality filters parsed
	// from structured tokens, with no embedding call.
	StrategyFiltered Strategy = "filtered"
	// StrategyGeneral is the short-query default. It still routes to vector
	// search: embedding similarity beats brittle keyword matching even for a
	// one-word query.
	StrategyGeneral Strategy = "general"
)

// structuredTokens mark a query that names fields explicitly and should skip
// the embedding path entirely.
var structuredTokens = []string{"id:", "campaign:", "product:", "mood:"}

// semanticKeywords are words that signal descriptive, similarity-style
// intent. The set is tuned for advertising-footage queries (moods and
// comparison phrasing) and is expected to grow.
var semanticKeywords = map[string]struct{}{
	"like": {}, "similar": {}, "showing": {}, "with": {}, "about": {},
	"featuring": {}, "mood": {}, "feel": {}, "happy": {}, "sad": {},
	"energetic": {}, "calm": {}, "exciting": {}, "emotional": {},
}

// Classify routes a free-text query to a strategy. Pure function. Rules in
// priority order: a structured-filter token (or the literal word "exact")
// forces filtered; a semantic-intent keyword or more than 3 whitespace
// tokens selects semantic; everything else is general.
func Classify(query string) Strategy {
	lower := strings.ToLower(query)
	for _, token := range structuredTokens {
		if strings.Contains(lower, token) {
			return StrategyFiltered
		}
	}

	words := strings.Fields(lower)
	for _, word := range words {
		if word == "exact" {
			return StrategyFiltered
		}
	}
	for _, word := range words {
		if _, ok := semanticKeywords[word]; ok {
			return StrategySemantic
		}
	}
	if len(words) > 3 {
		return StrategySemantic
	}
	return StrategyGeneral
}
