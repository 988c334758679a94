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
// This file provides factory functions for hardcoded example instances.
// They serve two purposes: few-shot material for prompt construction (showing
// the language model the exact JSON shape of a scene), and ready-made
// fixtures for tests.
package model

import "time"

// GetExampleScene returns a fully populated advertising scene. The JSON
// rendering of this object is embedded in prompts so the model sees a
// concrete example of the scene structure it will be asked to reason about.
func GetExampleScene() *Scene {
	return &Scene{
		ID:          SceneID("vid-spring-launch-01", 2),
		VideoID:     "vid-spring-launch-01",
		CampaignID:  "cmp-spring-launch",
		SceneNumber: 2,
		StartTime:   12.5,
		EndTime:     18.0,
		Duration:    5.5,
		Transcript:  "Feel the road like never before. The all-new Velo X.",
		Description: "A red sports car accelerates down a coastal highway at sunset.",
		Analysis: SceneAnalysis{
			VisualElements: []string{"car", "highway", "ocean", "sunset"},
			Actions:        []string{"driving", "accelerating"},
			Mood:           "energetic",
			Composition:    "wide tracking shot",
			Product:        "Velo X",
			CTA:            "Test drive today",
			Colors:         []string{"red", "orange", "blue"},
			Confidence:     0.92,
		},
		CreatedAt: time.Date(2024, 10, 11, 3, 4, 8, 0, time.UTC),
	}
}

// GetExampleCampaign returns a sample campaign matching the example scene.
func GetExampleCampaign() *Campaign {
	return &Campaign{
		ID:          "cmp-spring-launch",
		Name:        "Spring Launch",
		Description: "Q2 hero spots for the Velo X roadster.",
		CreatedAt:   time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC),
	}
}
