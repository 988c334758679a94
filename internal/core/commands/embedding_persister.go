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
// the background workflows. This file defines the command that writes
// generated vectors to the index and marks their scenes embedded.
package commands

import (
	"fmt"

	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/cor"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/model"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/search"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/store"
)

// EmbeddingPersister upserts each generated vector into the index and stamps
// the owning scene with its embedding id. The vector goes first: if the scene
// update then fails, the next sweep simply regenerates and overwrites the
// same embedding id, so the two writes need no transaction.
type EmbeddingPersister struct {
	cor.BaseCommand
	index  *search.VectorIndex
	scenes store.SceneStore
}

// NewEmbeddingPersister creates the persistence command.
func NewEmbeddingPersister(name string, index *search.VectorIndex, scenes store.SceneStore) *EmbeddingPersister {
	return &EmbeddingPersister{
		BaseCommand: *cor.NewBaseCommand(name),
		index:       index,
		scenes:      scenes,
	}
}

// Execute persists the batch. It outputs the scenes whose vectors landed so
// the analytics mirror only sees fully synced scenes.
func (c *EmbeddingPersister) Execute(context cor.Context) {
	embedded := context.Get(c.GetInputParam()).([]*EmbeddedScene)

	persisted := make([]*model.Scene, 0, len(embedded))
	for _, item := range embedded {
		embeddingID, err := c.index.Upsert(context.GetContext(), item.Scene, item.Vector)
		if err != nil {
			c.GetErrorCounter().Add(context.GetContext(), 1)
			context.AddError(c.GetName(), fmt.Errorf("upserting embedding for scene %s: %w", item.Scene.ID, err))
			return
		}

		item.Scene.EmbeddingID = embeddingID
		if err := c.scenes.Put(context.GetContext(), item.Scene); err != nil {
			c.GetErrorCounter().Add(context.GetContext(), 1)
			context.AddError(c.GetName(), fmt.Errorf("marking scene %s embedded: %w", item.Scene.ID, err))
			return
		}
		persisted = append(persisted, item.Scene)
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(c.GetOutputParam(), persisted)
}
