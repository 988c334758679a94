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
// the background workflows. This file defines the entry command of the
// Pub/Sub-triggered embedding sync: it parses the scene-analyzed event the
// media pipeline publishes when a scene's analysis lands, so the rest of the
// chain can work from a typed event instead of raw message bytes.
package commands

import (
	"encoding/json"
	"fmt"

	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/cor"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/model"
)

// SceneEventReader parses a scene-analyzed Pub/Sub message into a typed
// event.
type SceneEventReader struct {
	cor.BaseCommand
}

// NewSceneEventReader creates the event-parsing command.
func NewSceneEventReader(name string) *SceneEventReader {
	return &SceneEventReader{BaseCommand: *cor.NewBaseCommand(name)}
}

// Execute unmarshals the raw JSON message from the input parameter. A message
// that does not parse, or that names no scene, fails the chain: an
// unparseable trigger must surface rather than ack silently.
func (c *SceneEventReader) Execute(context cor.Context) {
	in := context.Get(c.GetInputParam()).(string)

	var event model.SceneAnalyzedEvent
	if err := json.Unmarshal([]byte(in), &event); err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("failed to unmarshal scene event: %w", err))
		return
	}
	if event.SceneID == "" {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), fmt.Errorf("scene event carries no scene id"))
		return
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(c.GetOutputParam(), &event)
}
