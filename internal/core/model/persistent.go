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
// This file, `persistent.go`, contains the documents that are written to the
// backing document store: campaigns, videos, scenes and their AI-derived
// analysis, scene embeddings, and chat conversations.
//
// Identifier conventions are deterministic on purpose:
//   - a Scene id is derived from its parent video id plus the scene ordinal,
//   - an Embedding id is derived from its scene id,
//
// so that re-running analysis or embedding generation is idempotent and
// overwrites prior records instead of duplicating them.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Campaign is the partition key for the whole system. Videos, scenes,
// embeddings, and (optionally) conversations are scoped to one campaign.
type Campaign struct {
	ID          string    `json:"id" firestore:"id"`
	Name        string    `json:"name" firestore:"name"`
	Description string    `json:"description,omitempty" firestore:"description"`
	CreatedAt   time.Time `json:"created_at" firestore:"created_at"`
}

// Video is the parent record for a set of scenes. The media file itself lives
// in object storage; this document only carries the metadata the search and
// chat paths need.
type Video struct {
	ID         string    `json:"id" firestore:"id"`
	CampaignID string    `json:"campaign_id" firestore:"campaign_id"`
	FileName   string    `json:"file_name" firestore:"file_name"`
	Duration   float64   `json:"duration" firestore:"duration"`
	SceneCount int       `json:"scene_count" firestore:"scene_count"`
	CreatedAt  time.Time `json:"created_at" firestore:"created_at"`
}

// SceneAnalysis holds the structured output of the AI analysis for one scene.
// Fields are explicitly optional rather than an open map so that unknown data
// is rejected at the boundary instead of flowing through the core untyped.
type SceneAnalysis struct {
	VisualElements []string `json:"visual_elements" firestore:"visual_elements"`
	Actions        []string `json:"actions" firestore:"actions"`
	Mood           string   `json:"mood" firestore:"mood"`
	Composition    string   `json:"composition" firestore:"composition"`
	Product        string   `json:"product,omitempty" firestore:"product"`
	CTA            string   `json:"cta,omitempty" firestore:"cta"`
	Colors         []string `json:"colors" firestore:"colors"`
	Confidence     float64  `json:"confidence" firestore:"confidence"`
}

// Scene is a contiguous time interval of one video, together with its
// transcript and analysis. A scene always belongs to exactly one video and
// one campaign; the campaign id is denormalized here so scene queries never
// need a join against the video collection.
type Scene struct {
	ID          string        `json:"id" firestore:"id"`
	VideoID     string        `json:"video_id" firestore:"video_id"`
	CampaignID  string        `json:"campaign_id" firestore:"campaign_id"`
	SceneNumber int           `json:"scene_number" firestore:"scene_number"`
	StartTime   float64       `json:"start_time" firestore:"start_time"`
	EndTime     float64       `json:"end_time" firestore:"end_time"`
	Duration    float64       `json:"duration" firestore:"duration"`
	Transcript  string        `json:"transcript" firestore:"transcript"`
	Description string        `json:"description" firestore:"description"`
	Analysis    SceneAnalysis `json:"analysis" firestore:"analysis"`
	// ClipObject and ThumbnailObject are object-storage paths for the scene's
	// extracted clip and poster frame, written by the media pipeline. Either
	// may be empty while extraction is still pending.
	ClipObject      string `json:"clip_object,omitempty" firestore:"clip_object"`
	ThumbnailObject string `json:"thumbnail_object,omitempty" firestore:"thumbnail_object"`
	// EmbeddingID is set once the embedding sync workflow has generated and
	// stored a vector for this scene. Empty means "pending".
	EmbeddingID string    `json:"embedding_id,omitempty" firestore:"embedding_id"`
	CreatedAt   time.Time `json:"created_at" firestore:"created_at"`
}

// SceneID derives the stable identifier for the n-th scene of a video.
func SceneID(videoID string, sceneNumber int) string {
	return fmt.Sprintf("%s-scene-%03d", videoID, sceneNumber)
}

// ComposedText flattens the scene's searchable text into a single string.
// This is the exact text that gets embedded, so query-time and index-time
// representations stay consistent.
func (s *Scene) ComposedText() string {
	parts := make([]string, 0, 6)
	if s.Description != "" {
		parts = append(parts, s.Description)
	}
	if s.Transcript != "" {
		parts = append(parts, s.Transcript)
	}
	if s.Analysis.Mood != "" {
		parts = append(parts, "mood: "+s.Analysis.Mood)
	}
	if len(s.Analysis.VisualElements) > 0 {
		parts = append(parts, strings.Join(s.Analysis.VisualElements, " "))
	}
	if len(s.Analysis.Actions) > 0 {
		parts = append(parts, strings.Join(s.Analysis.Actions, " "))
	}
	if s.Analysis.Product != "" {
		parts = append(parts, "product: "+s.Analysis.Product)
	}
	return strings.Join(parts, "\n")
}

// EmbeddingMetadata is a denormalized snapshot of the owning scene that is
// stored alongside the vector. It lets filtered search and result assembly
// avoid a join back to the scene collection on the hot path.
type EmbeddingMetadata struct {
	CampaignID     string   `json:"campaign_id" firestore:"campaign_id"`
	VideoID        string   `json:"video_id" firestore:"video_id"`
	StartTime      float64  `json:"start_time" firestore:"start_time"`
	EndTime        float64  `json:"end_time" firestore:"end_time"`
	Description    string   `json:"description" firestore:"description"`
	Transcript     string   `json:"transcript" firestore:"transcript"`
	VisualElements []string `json:"visual_elements" firestore:"visual_elements"`
	Mood           string   `json:"mood" firestore:"mood"`
	Product        string   `json:"product,omitempty" firestore:"product"`
}

// Embedding is the vector representation of one scene's composed text.
// The vector dimensionality is fixed system-wide and validated whenever two
// vectors are compared.
type Embedding struct {
	ID        string            `json:"id" firestore:"id"`
	SceneID   string            `json:"scene_id" firestore:"scene_id"`
	Vector    []float32         `json:"vector" firestore:"vector"`
	Metadata  EmbeddingMetadata `json:"metadata" firestore:"metadata"`
	CreatedAt time.Time         `json:"created_at" firestore:"created_at"`
}

// EmbeddingID derives the stable identifier for a scene's embedding, making
// upserts idempotent by construction.
func EmbeddingID(sceneID string) string {
	return "emb-" + sceneID
}

// NewEmbedding builds an embedding record for a scene with the deterministic
// id and a metadata snapshot taken from the scene at generation time.
func NewEmbedding(scene *Scene, vector []float32) *Embedding {
	return &Embedding{
		ID:      EmbeddingID(scene.ID),
		SceneID: scene.ID,
		Vector:  vector,
		Metadata: EmbeddingMetadata{
			CampaignID:     scene.CampaignID,
			VideoID:        scene.VideoID,
			StartTime:      scene.StartTime,
			EndTime:        scene.EndTime,
			Description:    scene.Description,
			Transcript:     scene.Transcript,
			VisualElements: scene.Analysis.VisualElements,
			Mood:           scene.Analysis.Mood,
			Product:        scene.Analysis.Product,
		},
		CreatedAt: time.Now().UTC(),
	}
}
