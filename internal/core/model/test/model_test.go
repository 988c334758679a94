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

// Package model_test contains unit tests for the core data models: the
// deterministic identifier scheme, the composed embedding text, and the
// conversation turn bookkeeping.
package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/model"
)

// TestSceneIDIsDeterministic verifies the id scheme: stable, zero-padded, and
// derived from the parent video.
func TestSceneIDIsDeterministic(t *testing.T) {
	assert.Equal(t, "vid-001-scene-007", model.SceneID("vid-001", 7))
	assert.Equal(t, "vid-001-scene-042", model.SceneID("vid-001", 42))
	assert.Equal(t, model.SceneID("vid-001", 7), model.SceneID("vid-001", 7))
}

func TestEmbeddingIDDerivesFromScene(t *testing.T) {
	assert.Equal(t, "emb-vid-001-scene-007", model.EmbeddingID("vid-001-scene-007"))
}

// TestComposedText verifies the embedded text includes each populated field
// and skips empty ones, so index-time and query-time text stay consistent.
func TestComposedText(t *testing.T) {
	scene := &model.Scene{
		Description: "A red sports car on a highway",
		Transcript:  "feel the road",
		Analysis: model.SceneAnalysis{
			Mood:           "energetic",
			VisualElements: []string{"car", "highway"},
			Actions:        []string{"driving"},
			Product:        "roadster-x",
		},
	}

	text := scene.ComposedText()
	assert.Contains(t, text, "A red sports car on a highway")
	assert.Contains(t, text, "feel the road")
	assert.Contains(t, text, "mood: energetic")
	assert.Contains(t, text, "car highway")
	assert.Contains(t, text, "driving")
	assert.Contains(t, text, "product: roadster-x")

	// An empty scene composes to an empty string, not labeled empty sections.
	assert.Empty(t, (&model.Scene{}).ComposedText())
}

// TestNewEmbeddingSnapshotsScene verifies the embedding record gets the
// deterministic id and a metadata copy of the owning scene.
func TestNewEmbeddingSnapshotsScene(t *testing.T) {
	scene := &model.Scene{
		ID:         model.SceneID("vid-001", 1),
		VideoID:    "vid-001",
		CampaignID: "camp-001",
		StartTime:  1.5,
		EndTime:    9.5,
		Analysis: model.SceneAnalysis{
			Mood:           "calm",
			VisualElements: []string{"beach"},
		},
	}

	embedding := model.NewEmbedding(scene, []float32{1, 0})
	assert.Equal(t, model.EmbeddingID(scene.ID), embedding.ID)
	assert.Equal(t, scene.ID, embedding.SceneID)
	assert.Equal(t, []float32{1, 0}, embedding.Vector)
	assert.Equal(t, "camp-001", embedding.Metadata.CampaignID)
	assert.Equal(t, "calm", embedding.Metadata.Mood)
	assert.Equal(t, []string{"beach"}, embedding.Metadata.VisualElements)
	assert.WithinDuration(t, time.Now(), embedding.CreatedAt, time.Second)
}

// TestNewConversation verifies the constructor produces an empty session with
// a fresh id.
func TestNewConversation(t *testing.T) {
	conversation := model.NewConversation("camp-001")

	assert.NotEmpty(t, conversation.ID)
	assert.Equal(t, "camp-001", conversation.CampaignID)
	assert.Empty(t, conversation.Messages)
	assert.Zero(t, conversation.Revision)
	assert.NotEqual(t, conversation.ID, model.NewConversation("").ID)
}

// TestAppendTurn verifies a turn lands as a user/assistant pair and advances
// the revision every time.
func TestAppendTurn(t *testing.T) {
	conversation := model.NewConversation("")
	before := conversation.UpdatedAt

	user := model.NewUserMessage("show me the beach scene")
	assistant := model.NewAssistantMessage("Here it is.", nil)
	conversation.AppendTurn(user, assistant)

	assert.Len(t, conversation.Messages, 2)
	assert.Equal(t, model.RoleUser, conversation.Messages[0].Role)
	assert.Equal(t, model.RoleAssistant, conversation.Messages[1].Role)
	assert.Equal(t, int64(1), conversation.Revision)
	assert.False(t, conversation.UpdatedAt.Before(before))

	conversation.AppendTurn(model.NewUserMessage("and the car?"), model.NewAssistantMessage("Scene one.", nil))
	assert.Len(t, conversation.Messages, 4)
	assert.Equal(t, int64(2), conversation.Revision)
}
