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
// the background workflows. This file defines the command that decides which
// scenes need an embedding in this run.
package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/cor"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/model"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/store"
)

// PendingSceneFinder resolves the scenes an embedding-sync run should
// process. Triggered by a scene-analyzed event, it loads that one scene;
// run from the timer with no input, it sweeps the store for every scene still
// missing its embedding. The sweep is what makes the sync self-healing: a
// dropped event only delays a scene until the next tick.
type PendingSceneFinder struct {
	cor.BaseCommand
	scenes    store.SceneStore
	batchSize int
}

// NewPendingSceneFinder creates the finder. batchSize bounds a timer sweep so
// one run cannot monopolize the embedding quota.
func NewPendingSceneFinder(name string, scenes store.SceneStore, batchSize int) *PendingSceneFinder {
	return &PendingSceneFinder{
		BaseCommand: *cor.NewBaseCommand(name),
		scenes:      scenes,
		batchSize:   batchSize,
	}
}

// IsExecutable always allows the finder to run; absent input means a sweep.
func (c *PendingSceneFinder) IsExecutable(context cor.Context) bool {
	return context != nil && context.GetContext() != nil
}

// Execute outputs the scenes to embed. A scene named by an event that no
// longer exists ends the chain without error: the deletion won the race and
// there is nothing to do.
func (c *PendingSceneFinder) Execute(context cor.Context) {
	var pending []*model.Scene

	if event, ok := context.Get(c.GetInputParam()).(*model.SceneAnalyzedEvent); ok {
		scene, err := c.scenes.Get(context.GetContext(), event.SceneID)
		if errors.Is(err, store.ErrNotFound) {
			slog.InfoContext(context.GetContext(), "scene deleted before embedding sync, nothing to do",
				"scene_id", event.SceneID)
			c.GetSuccessCounter().Add(context.GetContext(), 1)
			return
		}
		if err != nil {
			c.GetErrorCounter().Add(context.GetContext(), 1)
			context.AddError(c.GetName(), fmt.Errorf("loading scene %s: %w", event.SceneID, err))
			return
		}
		pending = []*model.Scene{scene}
	} else {
		scenes, err := c.scenes.ListMissingEmbeddings(context.GetContext(), c.batchSize)
		if err != nil {
			c.GetErrorCounter().Add(context.GetContext(), 1)
			context.AddError(c.GetName(), fmt.Errorf("listing pending scenes: %w", err))
			return
		}
		pending = scenes
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	if len(pending) == 0 {
		return
	}
	context.Add(c.GetOutputParam(), pending)
}
