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
// the scene retriever, which executes the strategy chosen by the router and
// returns ranked scene candidates.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/embed"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/model"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/store"
)

// Filters are optional caller-supplied post-filters applied to candidates
// from either strategy.
type Filters struct {
	// MinConfidence drops scenes whose analysis confidence is below the
	// threshold. Zero disables the filter.
	MinConfidence float64
	// RequiredElements drops scenes whose visual elements do not intersect
	// this set. Matching is case-insensitive. Empty disables the filter.
	RequiredElements []string
}

// Options scope one retrieval call.
type Options struct {
	// CampaignID restricts retrieval to one campaign. Empty searches all
	// campaigns.
	CampaignID string
	// Limit caps the number of candidates returned. Zero means no cap.
	Limit int
	// Filters are optional post-filters.
	Filters *Filters
}

// Retriever turns a free-text query into a ranked list of scene candidates.
type Retriever struct {
	provider      *embed.Provider
	index         *VectorIndex
	scenes        store.SceneStore
	minSimilarity float64
}

// NewRetriever creates a retriever. minSimilarity is the vector-search
// cutoff; the shipped default is 0 so that every scored candidate survives to
// ranking and the relevance decision stays downstream where it is visible.
func NewRetriever(provider *embed.Provider, index *VectorIndex, scenes store.SceneStore, minSimilarity float64) *Retriever {
	return &Retriever{
		provider:      provider,
		index:         index,
		scenes:        scenes,
		minSimilarity: minSimilarity,
	}
}

// Retrieve classifies the query, executes the matching strategy, applies the
// post-filters, and returns candidates in descending match score. Embedding
// failure never surfaces here (the provider falls back internally); a
// document-store failure is wrapped in ErrRetrieval.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) ([]*model.SceneMatch, error) {
	var (
		matches []*model.SceneMatch
		err     error
	)
	switch Classify(query) {
	case StrategyFiltered:
		matches, err = r.retrieveFiltered(ctx, query, opts)
	default:
		matches, err = r.retrieveSemantic(ctx, query, opts)
	}
	if err != nil {
		return nil, err
	}

	matches = applyFilters(matches, opts.Filters)
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].MatchScore > matches[j].MatchScore
	})
	if opts.Limit > 0 && len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}
	return matches, nil
}

// retrieveSemantic embeds the query and ranks scenes by vector similarity.
// Scene ids returned by the index but missing from the scene store are
// skipped with a warning; they indicate a partially completed deletion, not a
// broken query.
func (r *Retriever) retrieveSemantic(ctx context.Context, query string, opts Options) ([]*model.SceneMatch, error) {
	vector := r.provider.Embed(ctx, query)
	hits, err := r.index.Search(ctx, vector, opts.Limit, opts.CampaignID, r.minSimilarity)
	if err != nil {
		return nil, fmt.Errorf("%w: vector search: %w", ErrRetrieval, err)
	}

	matches := make([]*model.SceneMatch, 0, len(hits))
	for _, hit := range hits {
		scene, err := r.scenes.Get(ctx, hit.SceneID)
		if errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "embedding references a missing scene, skipping",
				"scene_id", hit.SceneID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: loading scene %s: %w", ErrRetrieval, hit.SceneID, err)
		}
		matches = append(matches, &model.SceneMatch{Scene: scene, MatchScore: hit.Similarity, HasVectorScore: true})
	}
	return matches, nil
}

// retrieveFiltered queries the scene store with equality filters parsed from
// the structured tokens. No embedding call is made; the match score is the
// lexical heuristic so filtered results still rank sensibly.
func (r *Retriever) retrieveFiltered(ctx context.Context, query string, opts Options) ([]*model.SceneMatch, error) {
	sceneID, filter := parseStructuredQuery(query)
	if filter.CampaignID == "" {
		filter.CampaignID = opts.CampaignID
	}

	if sceneID != "" {
		scene, err := r.scenes.Get(ctx, sceneID)
		if errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "structured query names an unknown scene", "scene_id", sceneID)
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: loading scene %s: %w", ErrRetrieval, sceneID, err)
		}
		return []*model.SceneMatch{{Scene: scene, MatchScore: LexicalScore(scene, query)}}, nil
	}

	scenes, err := r.scenes.Query(ctx, filter, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("%w: filtered query: %w", ErrRetrieval, err)
	}
	matches := make([]*model.SceneMatch, 0, len(scenes))
	for _, scene := range scenes {
		matches = append(matches, &model.SceneMatch{Scene: scene, MatchScore: LexicalScore(scene, query)})
	}
	return matches, nil
}

// parseStructuredQuery extracts the id: target and the equality filters from
// a filtered-strategy query. Unrecognized words are ignored; they already did
// their job steering the router.
func parseStructuredQuery(query string) (sceneID string, filter store.SceneFilter) {
	for _, word := range strings.Fields(strings.ToLower(query)) {
		key, value, found := strings.Cut(word, ":")
		if !found || value == "" {
			continue
		}
		switch key {
		case "id":
			sceneID = value
		case "campaign":
			filter.CampaignID = value
		case "product":
			filter.Product = value
		case "mood":
			filter.Mood = value
		}
	}
	return sceneID, filter
}

// applyFilters drops candidates below the confidence threshold or missing
// every required visual element.
func applyFilters(matches []*model.SceneMatch, filters *Filters) []*model.SceneMatch {
	if filters == nil {
		return matches
	}
	out := matches[:0]
	for _, match := range matches {
		if filters.MinConfidence > 0 && match.Scene.Analysis.Confidence < filters.MinConfidence {
			continue
		}
		if len(filters.RequiredElements) > 0 && !intersectsFold(match.Scene.Analysis.VisualElements, filters.RequiredElements) {
			continue
		}
		out = append(out, match)
	}
	return out
}

// intersectsFold reports whether the two string sets share at least one
// member, ignoring case.
func intersectsFold(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if strings.EqualFold(x, y) {
				return true
			}
		}
	}
	return false
}
