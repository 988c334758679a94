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

// Package cloud_test contains unit tests for the configuration layer: the
// hierarchical TOML loading where the runtime overlay wins over the base
// file.
package cloud_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zeebo/assert"

	"github.com/jaycherian/gcp-go-ad-scene-search/internal/cloud"
)

const baseToml = `
[application]
name = "ad-scene-search"
google_project_id = "base-project"
location = "us-central1"

[search]
dimension = 768
default_limit = 10
max_iterations = 5

[storage]
media_bucket = "base-bucket"

[embedding_models.scene-text]
model = "text-embedding-004"
task_type = "RETRIEVAL_DOCUMENT"
`

const overlayToml = `
[application]
google_project_id = "overlay-project"

[search]
dimension = 8
`

// writeConfigDir lays out a base file and a "unittest" runtime overlay in a
// temp directory and points the loader environment at it.
func writeConfigDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env.toml"), []byte(baseToml), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env.unittest.toml"), []byte(overlayToml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(cloud.EnvConfigFilePrefix, dir)
	t.Setenv(cloud.EnvConfigRuntime, "unittest")
}

// TestLoadConfigOverlay verifies the runtime overlay replaces what it
// declares and the base file fills in the rest.
func TestLoadConfigOverlay(t *testing.T) {
	writeConfigDir(t)

	config := cloud.NewConfig()
	cloud.LoadConfig(&config)

	// Overlay wins where both declare a value.
	assert.Equal(t, "overlay-project", config.Application.GoogleProjectId)
	assert.Equal(t, 8, config.Search.Dimension)

	// Base values survive where the overlay is silent.
	assert.Equal(t, "ad-scene-search", config.Application.Name)
	assert.Equal(t, "base-bucket", config.Storage.MediaBucket)
	assert.Equal(t, 10, config.Search.DefaultLimit)
	assert.Equal(t, 5, config.Search.MaxIterations)

	embedding, ok := config.EmbeddingModels["scene-text"]
	assert.True(t, ok)
	assert.Equal(t, "text-embedding-004", embedding.Model)
	assert.Equal(t, "RETRIEVAL_DOCUMENT", embedding.TaskType)
}

// TestSignedURLTTLDefault verifies the unset TTL falls back to 15 minutes.
func TestSignedURLTTLDefault(t *testing.T) {
	config := cloud.NewConfig()
	assert.Equal(t, 15*time.Minute, config.SignedURLTTL())

	config.Storage.SignedURLTTLMinutes = 5
	assert.Equal(t, 5*time.Minute, config.SignedURLTTL())
}
