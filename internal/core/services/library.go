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

// Package services contains the business logic for interacting with data
// sources. This file defines the LibraryService, the read/delete surface over
// the campaign, video, and scene collections. The chat tools and the HTTP API
// both go through it, so counting and listing semantics live in exactly one
// place.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/model"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/store"
)

// LibraryService exposes the ad-footage library: campaigns, their videos, and
// the analyzed scenes inside them.
type LibraryService struct {
	campaigns  store.CampaignStore
	videos     store.VideoStore
	scenes     store.SceneStore
	embeddings store.EmbeddingStore
	objects    store.ObjectStore
}

// NewLibraryService wires a library service over the given stores.
func NewLibraryService(campaigns store.CampaignStore, videos store.VideoStore, scenes store.SceneStore, embeddings store.EmbeddingStore, objects store.ObjectStore) *LibraryService {
	return &LibraryService{
		campaigns:  campaigns,
		videos:     videos,
		scenes:     scenes,
		embeddings: embeddings,
		objects:    objects,
	}
}

// GetCampaign returns one campaign by id.
func (s *LibraryService) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	return s.campaigns.Get(ctx, id)
}

// ListCampaigns returns up to limit campaigns.
func (s *LibraryService) ListCampaigns(ctx context.Context, limit int) ([]*model.Campaign, error) {
	return s.campaigns.List(ctx, limit)
}

// CountCampaigns returns the total number of campaigns.
func (s *LibraryService) CountCampaigns(ctx context.Context) (int, error) {
	return s.campaigns.Count(ctx)
}

// SaveCampaign creates or overwrites a campaign.
func (s *LibraryService) SaveCampaign(ctx context.Context, campaign *model.Campaign) error {
	return s.campaigns.Put(ctx, campaign)
}

// GetVideo returns one video by id.
func (s *LibraryService) GetVideo(ctx context.Context, id string) (*model.Video, error) {
	return s.videos.Get(ctx, id)
}

// ListVideos returns the videos of one campaign.
func (s *LibraryService) ListVideos(ctx context.Context, campaignID string) ([]*model.Video, error) {
	return s.videos.ListByCampaign(ctx, campaignID)
}

// CountVideos counts videos, optionally scoped to a campaign.
func (s *LibraryService) CountVideos(ctx context.Context, campaignID string) (int, error) {
	return s.videos.Count(ctx, campaignID)
}

// GetScene returns one scene by id.
func (s *LibraryService) GetScene(ctx context.Context, id string) (*model.Scene, error) {
	return s.scenes.Get(ctx, id)
}

// ListScenes returns the scenes of one video in scene order.
func (s *LibraryService) ListScenes(ctx context.Context, videoID string) ([]*model.Scene, error) {
	return s.scenes.ListByVideo(ctx, videoID)
}

// CountScenes counts scenes, optionally scoped to a campaign.
func (s *LibraryService) CountScenes(ctx context.Context, campaignID string) (int, error) {
	return s.scenes.Count(ctx, campaignID)
}

// DeleteVideo removes a video and everything derived from it: its scenes,
// their embeddings, and the extracted clip and thumbnail objects. The cascade
// runs leaf-first so a crash mid-way leaves orphaned scenes (which search
// skips with a warning) rather than a video whose children are gone.
func (s *LibraryService) DeleteVideo(ctx context.Context, id string) error {
	video, err := s.videos.Get(ctx, id)
	if err != nil {
		return err
	}

	scenes, err := s.scenes.ListByVideo(ctx, id)
	if err != nil {
		return fmt.Errorf("listing scenes for video %s: %w", id, err)
	}

	// Embeddings first so a half-finished delete can never leave vectors
	// pointing at scenes that no longer exist.
	for _, scene := range scenes {
		if err := s.embeddings.Delete(ctx, model.EmbeddingID(scene.ID)); err != nil {
			return fmt.Errorf("deleting embedding for scene %s: %w", scene.ID, err)
		}
	}

	sceneIDs := make([]string, 0, len(scenes))
	for _, scene := range scenes {
		sceneIDs = append(sceneIDs, scene.ID)
	}
	if err := s.scenes.BatchDelete(ctx, sceneIDs); err != nil {
		return fmt.Errorf("deleting scenes for video %s: %w", id, err)
	}

	if err := s.objects.DeleteByPrefix(ctx, videoObjectPrefix(video)); err != nil {
		// Blob cleanup failure is not worth failing the whole delete over;
		// the objects are unreachable once the documents are gone.
		slog.WarnContext(ctx, "deleting media objects failed",
			"video_id", id, "error", err)
	}

	if err := s.videos.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting video %s: %w", id, err)
	}
	slog.InfoContext(ctx, "video deleted",
		"video_id", id, "campaign_id", video.CampaignID, "scenes", len(scenes))
	return nil
}

// videoObjectPrefix is the object-storage prefix holding everything extracted
// from one video.
func videoObjectPrefix(video *model.Video) string {
	return fmt.Sprintf("campaigns/%s/videos/%s/", video.CampaignID, video.ID)
}
