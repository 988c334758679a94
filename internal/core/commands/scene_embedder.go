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

// Package commands provides the concrete command implementations that make up
// the background workflows. This file defines the command that turns pending
// scenes into vectors.
package commands

import (
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/cor"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/embed"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/model"
)

// EmbeddedScene pairs a scene with the vector generated for its composed
// text. It is the unit piped between the embedder and the persister.
type EmbeddedScene struct {
	Scene  *model.Scene
	Vector []float32
}

// SceneEmbedder embeds each pending scene's composed text through the shared
// provider. The provider absorbs upstream failure (rate pushback, outages)
// with its deterministic fallback, so this command cannot fail on the
// embedding dependency and the chain always advances.
type SceneEmbedder struct {
	cor.BaseCommand
	provider *embed.Provider
}

// NewSceneEmbedder creates the embedding command.
func NewSceneEmbedder(name string, provider *embed.Provider) *SceneEmbedder {
	return &SceneEmbedder{BaseCommand: *cor.NewBaseCommand(name), provider: provider}
}

// Execute embeds every scene in the input batch.
func (c *SceneEmbedder) Execute(context cor.Context) {
	scenes := context.Get(c.GetInputParam()).([]*model.Scene)

	embedded := make([]*EmbeddedScene, 0, len(scenes))
	for _, scene := range scenes {
		vector := c.provider.Embed(context.GetContext(), scene.ComposedText())
		embedded = append(embedded, &EmbeddedScene{Scene: scene, Vector: vector})
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(c.GetOutputParam(), embedded)
}
