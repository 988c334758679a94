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
// the result enricher, which turns ranked scene candidates into presentable
// search results: parent-video metadata, signed clip and thumbnail URLs,
// relevance highlights, and a final score clamped to [0, 1].
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/model"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/store"
)

// Enricher decorates scene matches with video metadata and time-limited
// media URLs.
type Enricher struct {
	videos  store.VideoStore
	objects store.ObjectStore
	urlTTL  time.Duration
}

// NewEnricher creates an enricher over the given video store and object
// store. urlTTL bounds the lifetime of the signed media URLs.
func NewEnricher(videos store.VideoStore, objects store.ObjectStore, urlTTL time.Duration) *Enricher {
	return &Enricher{videos: videos, objects: objects, urlTTL: urlTTL}
}

// Enrich builds a SearchResult per match. A match whose parent video is gone
// is an orphan left behind by a partial deletion: it is skipped with a
// warning, not an error. A failure to sign a media URL degrades that result
// (empty URL) rather than dropping it. Results come back sorted descending by
// score, stable, so enrichment never reorders equal-scored candidates.
func (e *Enricher) Enrich(ctx context.Context, matches []*model.SceneMatch, query string) ([]*model.SearchResult, error) {
	results := make([]*model.SearchResult, 0, len(matches))
	for _, match := range matches {
		video, err := e.videos.Get(ctx, match.Scene.VideoID)
		if errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "scene has no parent video, skipping orphan",
				"scene_id", match.Scene.ID, "video_id", match.Scene.VideoID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: loading video %s: %w", ErrRetrieval, match.Scene.VideoID, err)
		}

		// A vector score is used as-is, even when the similarity is exactly
		// zero; only matches that never went through the index fall back to
		// the lexical heuristic.
		score := match.MatchScore
		if !match.HasVectorScore {
			score = LexicalScore(match.Scene, query)
		}

		// The two signings are independent calls to the object store, so
		// they run in parallel per scene.
		var clipURL, thumbnailURL string
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			clipURL = e.signedURL(ctx, match.Scene.ClipObject)
		}()
		go func() {
			defer wg.Done()
			thumbnailURL = e.signedURL(ctx, match.Scene.ThumbnailObject)
		}()
		wg.Wait()

		results = append(results, &model.SearchResult{
			Scene: match.Scene,
			Video: model.VideoRef{
				ID:       video.ID,
				FileName: video.FileName,
				Duration: video.Duration,
			},
			Score:        clamp01(score),
			Highlights:   Highlights(match.Scene, query),
			ClipURL:      clipURL,
			ThumbnailURL: thumbnailURL,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

func (e *Enricher) signedURL(ctx context.Context, object string) string {
	if object == "" {
		return ""
	}
	url, err := e.objects.SignedURL(object, e.urlTTL)
	if err != nil {
		slog.WarnContext(ctx, "signing media url failed", "object", object, "error", err)
		return ""
	}
	return url
}

// LexicalScore is the fallback relevance heuristic for scenes that carry no
// vector similarity: half the analysis confidence as a base, a bonus when the
// whole query appears in the description or transcript, and a smaller bonus
// per query word that matches a visual element. The sum is clamped to [0, 1].
func LexicalScore(scene *model.Scene, query string) float64 {
	lowerQuery := strings.ToLower(strings.TrimSpace(query))
	score := 0.5 * scene.Analysis.Confidence
	if lowerQuery != "" {
		if strings.Contains(strings.ToLower(scene.Description), lowerQuery) {
			score += 0.2
		}
		if strings.Contains(strings.ToLower(scene.Transcript), lowerQuery) {
			score += 0.15
		}
		for _, word := range strings.Fields(lowerQuery) {
			for _, element := range scene.Analysis.VisualElements {
				if strings.Contains(strings.ToLower(element), word) {
					score += 0.1
					break
				}
			}
		}
	}
	return clamp01(score)
}

// Highlights collects the analysis strings (visual elements, mood, product)
// that lexically match a query token, deduplicated, in the order they appear
// on the scene.
func Highlights(scene *model.Scene, query string) []string {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return nil
	}

	var out []string
	seen := make(map[string]struct{})
	add := func(candidate string) {
		if candidate == "" {
			return
		}
		lower := strings.ToLower(candidate)
		if _, dup := seen[lower]; dup {
			return
		}
		for _, word := range words {
			if strings.Contains(lower, word) || strings.Contains(word, lower) {
				seen[lower] = struct{}{}
				out = append(out, candidate)
				return
			}
		}
	}

	for _, element := range scene.Analysis.VisualElements {
		add(element)
	}
	add(scene.Analysis.Mood)
	add(scene.Analysis.Product)
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
