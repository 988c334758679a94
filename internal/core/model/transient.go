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

// Package model defines the core data structures for the application.
// This file, `transient.go`, contains structs that only live in memory while
// a request or workflow executes. They are produced fresh per query and are
// never persisted to the document store.
package model

// SceneMatch pairs a retrieved scene with the score the retriever assigned to
// it: the cosine similarity for vector strategies, or the lexical heuristic
// for filtered searches. HasVectorScore records which of the two produced the
// score, so a legitimate similarity of exactly zero is never mistaken for an
// unscored match downstream.
type SceneMatch struct {
	Scene          *Scene  `json:"scene"`
	MatchScore     float64 `json:"match_score"`
	HasVectorScore bool    `json:"-"`
}

// VideoRef is the slice of parent-video metadata that travels with a search
// result.
type VideoRef struct {
	ID       string  `json:"id"`
	FileName string  `json:"file_name"`
	Duration float64 `json:"duration"`
}

// SearchResult is the fully enriched answer to one scene query: the scene,
// its parent video, time-limited access URLs, lexical highlights, and the
// final relevance score in [0,1].
type SearchResult struct {
	Scene        *Scene   `json:"scene"`
	Video        VideoRef `json:"video"`
	Score        float64  `json:"score"`
	Highlights   []string `json:"highlights"`
	ClipURL      string   `json:"clip_url,omitempty"`
	ThumbnailURL string   `json:"thumbnail_url,omitempty"`
}

// SceneAnalyzedEvent is the Pub/Sub payload published by the (out-of-scope)
// analysis pipeline once a scene's transcript and analysis have been written.
// Receiving one triggers the embedding sync workflow.
type SceneAnalyzedEvent struct {
	CampaignID string `json:"campaign_id"`
	VideoID    string `json:"video_id"`
	SceneID    string `json:"scene_id"`
}
