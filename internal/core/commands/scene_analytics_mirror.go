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
// the background workflows. This file defines the command that mirrors synced
// scenes into the BigQuery analytics table.
package commands

import (
	"log/slog"

	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/cor"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/model"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/services"
)

// SceneAnalyticsMirror streams just-synced scenes into the analytics table.
// The mirror is best effort: search works without it, so a BigQuery failure
// logs and keeps the chain green rather than forcing the whole batch to
// re-run.
type SceneAnalyticsMirror struct {
	cor.BaseCommand
	analytics *services.AnalyticsService
}

// NewSceneAnalyticsMirror creates the mirror command. analytics may be nil
// when no BigQuery backend is configured; the command then passes scenes
// through untouched.
func NewSceneAnalyticsMirror(name string, analytics *services.AnalyticsService) *SceneAnalyticsMirror {
	return &SceneAnalyticsMirror{BaseCommand: *cor.NewBaseCommand(name), analytics: analytics}
}

// Execute mirrors the batch.
func (c *SceneAnalyticsMirror) Execute(context cor.Context) {
	scenes := context.Get(c.GetInputParam()).([]*model.Scene)

	if c.analytics != nil {
		if err := c.analytics.InsertScenes(context.GetContext(), scenes); err != nil {
			c.GetErrorCounter().Add(context.GetContext(), 1)
			slog.WarnContext(context.GetContext(), "mirroring scenes to analytics failed",
				"scenes", len(scenes), "error", err)
		}
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(c.GetOutputParam(), scenes)
}
