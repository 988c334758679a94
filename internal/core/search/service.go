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
// the search service, the facade the API layer and the chat orchestrator call
// into. It composes the retriever and the enricher and adds the two derived
// operations: similar-scene lookup and visual-element search.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/embed"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/model"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/store"
)

// Service is the query-side entry point for scene search.
type Service struct {
	provider     *embed.Provider
	index        *VectorIndex
	retriever    *Retriever
	enricher     *Enricher
	scenes       store.SceneStore
	defaultLimit int
}

// NewService wires the search facade.
func NewService(provider *embed.Provider, index *VectorIndex, retriever *Retriever, enricher *Enricher, scenes store.SceneStore, defaultLimit int) *Service {
	return &Service{
		provider:     provider,
		index:        index,
		retriever:    retriever,
		enricher:     enricher,
		scenes:       scenes,
		defaultLimit: defaultLimit,
	}
}

// QueryScenes runs the full pipeline: route, retrieve, enrich.
func (s *Service) QueryScenes(ctx context.Context, query string, opts Options) ([]*model.SearchResult, error) {
	if opts.Limit <= 0 {
		opts.Limit = s.defaultLimit
	}
	matches, err := s.retriever.Retrieve(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	return s.enricher.Enrich(ctx, matches, query)
}

// FindSimilarScenes ranks the corpus against an existing scene's composed
// text and returns the closest scenes, excluding the source itself. A missing
// source scene surfaces as store.ErrNotFound.
func (s *Service) FindSimilarScenes(ctx context.Context, sceneID string, limit int, campaignID string) ([]*model.SearchResult, error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	source, err := s.scenes.Get(ctx, sceneID)
	if err != nil {
		return nil, err
	}

	vector := s.provider.Embed(ctx, source.ComposedText())
	// Ask for one extra hit since the source scene ranks first against itself.
	hits, err := s.index.Search(ctx, vector, limit+1, campaignID, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: similarity search: %w", ErrRetrieval, err)
	}

	matches := make([]*model.SceneMatch, 0, limit)
	for _, hit := range hits {
		if hit.SceneID == sceneID {
			continue
		}
		if len(matches) == limit {
			break
		}
		scene, err := s.scenes.Get(ctx, hit.SceneID)
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
	return s.enricher.Enrich(ctx, matches, source.ComposedText())
}

// SearchByVisualElements returns scenes tagged with the given visual
// elements. matchAll requires every element; otherwise one is enough.
// Matching is case-insensitive. Ranking uses the lexical heuristic with the
// elements joined as a pseudo-query.
func (s *Service) SearchByVisualElements(ctx context.Context, elements []string, campaignID string, matchAll bool, limit int) ([]*model.SearchResult, error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	scenes, err := s.scenes.Query(ctx, store.SceneFilter{CampaignID: campaignID}, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: element query: %w", ErrRetrieval, err)
	}

	query := strings.Join(elements, " ")
	matches := make([]*model.SceneMatch, 0, len(scenes))
	for _, scene := range scenes {
		if !elementsMatch(scene.Analysis.VisualElements, elements, matchAll) {
			continue
		}
		matches = append(matches, &model.SceneMatch{
			Scene:      scene,
			MatchScore: LexicalScore(scene, query),
		})
	}
	// Every match is scored and sorted by the enricher before the limit is
	// applied, so truncation keeps the best-scoring scenes rather than the
	// first-inserted ones.
	results, err := s.enricher.Enrich(ctx, matches, query)
	if err != nil {
		return nil, err
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func elementsMatch(have, want []string, matchAll bool) bool {
	if len(want) == 0 {
		return false
	}
	for _, w := range want {
		found := false
		for _, h := range have {
			if strings.EqualFold(h, w) || strings.Contains(strings.ToLower(h), strings.ToLower(w)) {
				found = true
				break
			}
		}
		if matchAll && !found {
			return false
		}
		if !matchAll && found {
			return true
		}
	}
	return matchAll
}
