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

// Package test provides utility functions and mock data to support the
// application's test suite: a cached test configuration, fake model and
// storage backends, and fixture campaigns, videos, and scenes shared across
// package tests.
package test

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/jaycherian/gcp-go-ad-scene-search/internal/cloud"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/embed"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/model"
)

// StateManager acts as a simple in-memory cache for the application
// configuration during test runs so the TOML files load once per test binary.
type StateManager struct {
	config *cloud.Config
}

var state = &StateManager{}

// HandleErr fails the test when err is set. Convenience to keep fixture setup
// terse.
func HandleErr(err error, t *testing.T) {
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// SetupOS points the configuration loader at the test TOML files
// (configs/.env.toml overlaid by configs/.env.test.toml).
func SetupOS() (err error) {
	err = os.Setenv(cloud.EnvConfigFilePrefix, "configs")
	if err != nil {
		return err
	}
	err = os.Setenv(cloud.EnvConfigRuntime, "test")
	return err
}

// GetConfig is a singleton accessor for the test configuration.
func GetConfig() *cloud.Config {
	if state.config == nil {
		if err := SetupOS(); err != nil {
			log.Fatalf("failed to setup environment for test: %v\n", err)
		}
		config := cloud.NewConfig()
		cloud.LoadConfig(&config)
		state.config = config
	}
	return state.config
}

// NewTestLimiter returns an adaptive limiter with near-zero delays so tests
// do not sleep.
func NewTestLimiter() *embed.AdaptiveLimiter {
	return embed.NewAdaptiveLimiter(time.Microsecond, 10*time.Microsecond)
}

// NewTestProvider wires an embedding provider around the given backend with a
// fast limiter. A nil backend is replaced with a deterministic fake so the
// provider always succeeds on the first attempt.
func NewTestProvider(backend embed.Backend, dim int) *embed.Provider {
	if backend == nil {
		backend = &FakeEmbeddingBackend{Dim: dim}
	}
	return embed.NewProvider(backend, NewTestLimiter(), dim)
}

// FakeEmbeddingBackend is a scripted embed.Backend. Each EmbedText call pops
// one error from Errs (nil means success); on success it returns Vector when
// set, otherwise a vector derived from the local fallback embedder so results
// stay deterministic per input text.
type FakeEmbeddingBackend struct {
	mu     sync.Mutex
	Vector []float32
	Errs   []error
	Dim    int
	Calls  []string
}

func (f *FakeEmbeddingBackend) EmbedText(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, text)
	if len(f.Errs) > 0 {
		err := f.Errs[0]
		f.Errs = f.Errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if f.Vector != nil {
		return f.Vector, nil
	}
	dim := f.Dim
	if dim <= 0 {
		dim = 8
	}
	local := embed.NewLocalEmbedder(dim)
	return local.Embed(text), nil
}

// FakeGenerator is a scripted chat model. Each GenerateContent call records
// the prompt contents and pops the next response; when the script runs out it
// keeps replaying the last response, which makes "always requests a function
// call" loops trivial to stage.
type FakeGenerator struct {
	mu        sync.Mutex
	Responses []*genai.GenerateContentResponse
	Err       error
	Calls     [][]*genai.Content
}

func (f *FakeGenerator) GenerateContent(_ context.Context, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, contents)
	if f.Err != nil {
		return nil, f.Err
	}
	if len(f.Responses) == 0 {
		return TextResponse(""), nil
	}
	response := f.Responses[0]
	if len(f.Responses) > 1 {
		f.Responses = f.Responses[1:]
	}
	return response, nil
}

// TextResponse builds a single-candidate model response carrying plain text.
func TextResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{Text: text}},
			},
		}},
	}
}

// FunctionCallResponse builds a single-candidate model response requesting a
// tool invocation.
func FunctionCallResponse(name string, args map[string]any) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role: genai.RoleModel,
				Parts: []*genai.Part{{
					FunctionCall: &genai.FunctionCall{Name: name, Args: args},
				}},
			},
		}},
	}
}

// FakeObjectStore is an in-memory store.ObjectStore. Signed URLs are
// deterministic from the object path so assertions can predict them.
type FakeObjectStore struct {
	mu      sync.Mutex
	Objects map[string][]byte
	// SignErr, when set, makes SignedURL fail; the enricher should degrade to
	// an empty URL rather than dropping the result.
	SignErr error
}

func NewFakeObjectStore() *FakeObjectStore {
	return &FakeObjectStore{Objects: make(map[string][]byte)}
}

func (f *FakeObjectStore) Upload(_ context.Context, data []byte, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Objects[path] = data
	return path, nil
}

func (f *FakeObjectStore) Delete(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Objects, path)
	return nil
}

func (f *FakeObjectStore) DeleteByPrefix(_ context.Context, prefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for path := range f.Objects {
		if strings.HasPrefix(path, prefix) {
			delete(f.Objects, path)
		}
	}
	return nil
}

func (f *FakeObjectStore) SignedURL(path string, _ time.Duration) (string, error) {
	if f.SignErr != nil {
		return "", f.SignErr
	}
	return "https://signed.example.com/" + path, nil
}

// TestCampaign returns the fixture campaign used across suites.
func TestCampaign() *model.Campaign {
	return &model.Campaign{
		ID:          "camp-001",
		Name:        "Summer Launch",
		Description: "Q3 automotive launch creative",
		CreatedAt:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

// TestVideo returns a fixture video in the given campaign.
func TestVideo(campaignID string) *model.Video {
	return &model.Video{
		ID:         "vid-001",
		CampaignID: campaignID,
		FileName:   "summer-launch-hero.mp4",
		Duration:   30.0,
		SceneCount: 3,
		CreatedAt:  time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC),
	}
}

// TestScenes returns three analyzed fixture scenes for a video: an energetic
// driving scene, a calm beach scene, and an upbeat crowd scene. The mix gives
// search tests distinct moods, products, and visual elements to rank on.
func TestScenes(videoID, campaignID string) []*model.Scene {
	created := time.Date(2024, 6, 2, 1, 0, 0, 0, time.UTC)
	return []*model.Scene{
		{
			ID:          model.SceneID(videoID, 1),
			VideoID:     videoID,
			CampaignID:  campaignID,
			SceneNumber: 1,
			StartTime:   0.0,
			EndTime:     10.0,
			Duration:    10.0,
			Transcript:  "feel the road come alive",
			Description: "A red sports car speeds along a coastal highway at sunset",
			Analysis: model.SceneAnalysis{
				VisualElements: []string{"car", "highway", "sunset"},
				Actions:        []string{"driving", "accelerating"},
				Mood:           "energetic",
				Composition:    "tracking shot",
				Product:        "roadster-x",
				Colors:         []string{"red", "orange"},
				Confidence:     0.92,
			},
			ClipObject:      fmt.Sprintf("campaigns/%s/videos/%s/scenes/001/clip.mp4", campaignID, videoID),
			ThumbnailObject: fmt.Sprintf("campaigns/%s/videos/%s/scenes/001/thumb.jpg", campaignID, videoID),
			CreatedAt:       created,
		},
		{
			ID:          model.SceneID(videoID, 2),
			VideoID:     videoID,
			CampaignID:  campaignID,
			SceneNumber: 2,
			StartTime:   10.0,
			EndTime:     20.0,
			Duration:    10.0,
			Transcript:  "",
			Description: "Gentle waves roll onto an empty beach in the early morning",
			Analysis: model.SceneAnalysis{
				VisualElements: []string{"beach", "ocean", "sky"},
				Actions:        []string{"waves rolling"},
				Mood:           "calm",
				Composition:    "wide shot",
				Colors:         []string{"blue", "white"},
				Confidence:     0.85,
			},
			CreatedAt: created,
		},
		{
			ID:          model.SceneID(videoID, 3),
			VideoID:     videoID,
			CampaignID:  campaignID,
			SceneNumber: 3,
			StartTime:   20.0,
			EndTime:     30.0,
			Duration:    10.0,
			Transcript:  "this summer, drive happy",
			Description: "A crowd of happy people smiling and cheering around the car",
			Analysis: model.SceneAnalysis{
				VisualElements: []string{"people", "car", "confetti"},
				Actions:        []string{"cheering", "smiling"},
				Mood:           "happy",
				Composition:    "medium shot",
				Product:        "roadster-x",
				CTA:            "Drive happy this summer",
				Colors:         []string{"yellow", "red"},
				Confidence:     0.78,
			},
			CreatedAt: created,
		},
	}
}

// TestSceneEventText returns the JSON payload of a scene-analyzed Pub/Sub
// notification for the given scene, mirroring what the analysis pipeline
// publishes when a scene document is written.
func TestSceneEventText(campaignID, videoID, sceneID string) string {
	return fmt.Sprintf(`{
  "campaign_id": %q,
  "video_id": %q,
  "scene_id": %q
}`, campaignID, videoID, sceneID)
}
