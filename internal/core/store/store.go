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

// Package store defines the persistence boundary of the core. Each document
// collection gets a small, typed interface; the Firestore implementations in
// this package are the production backend, and the in-memory implementations
// double as the startup fallback for non-critical collections and as test
// doubles.
//
// All implementations must return ErrNotFound (possibly wrapped) for a
// missing document so callers can distinguish "absent" from "broken".
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/model"
)

// ErrNotFound reports that a requested document does not exist.
var ErrNotFound = errors.New("document not found")

// SceneFilter holds the equality filters supported by structured scene
// queries. Zero-valued fields are ignored.
type SceneFilter struct {
	CampaignID string
	Mood       string
	Product    string
}

// SceneStore persists scenes.
type SceneStore interface {
	Get(ctx context.Context, id string) (*model.Scene, error)
	Put(ctx context.Context, scene *model.Scene) error
	// Query returns scenes matching every non-zero filter field, up to limit.
	Query(ctx context.Context, filter SceneFilter, limit int) ([]*model.Scene, error)
	ListByVideo(ctx context.Context, videoID string) ([]*model.Scene, error)
	// ListMissingEmbeddings returns scenes whose embedding has not been
	// generated yet, oldest first.
	ListMissingEmbeddings(ctx context.Context, limit int) ([]*model.Scene, error)
	BatchDelete(ctx context.Context, ids []string) error
	// Count counts scenes, optionally scoped to one campaign.
	Count(ctx context.Context, campaignID string) (int, error)
}

// VideoStore persists videos.
type VideoStore interface {
	Get(ctx context.Context, id string) (*model.Video, error)
	Put(ctx context.Context, video *model.Video) error
	Delete(ctx context.Context, id string) error
	ListByCampaign(ctx context.Context, campaignID string) ([]*model.Video, error)
	Count(ctx context.Context, campaignID string) (int, error)
}

// CampaignStore persists campaigns.
type CampaignStore interface {
	Get(ctx context.Context, id string) (*model.Campaign, error)
	Put(ctx context.Context, campaign *model.Campaign) error
	List(ctx context.Context, limit int) ([]*model.Campaign, error)
	Count(ctx context.Context) (int, error)
}

// ConversationStore persists chat sessions. Put is a full-document overwrite:
// conversation writes are last-write-wins by design (see the revision field
// on model.Conversation).
type ConversationStore interface {
	Get(ctx context.Context, id string) (*model.Conversation, error)
	Put(ctx context.Context, conversation *model.Conversation) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, campaignID string, limit int) ([]*model.Conversation, error)
}

// EmbeddingStore persists scene embeddings. List must return embeddings in a
// stable order (insertion/creation order) so that similarity ties rank
// deterministically.
type EmbeddingStore interface {
	Get(ctx context.Context, id string) (*model.Embedding, error)
	Put(ctx context.Context, embedding *model.Embedding) error
	// Delete is idempotent; deleting an id that does not exist is not an error.
	Delete(ctx context.Context, id string) error
	// List returns all embeddings, optionally pre-filtered to one campaign.
	List(ctx context.Context, campaignID string) ([]*model.Embedding, error)
}

// ObjectStore is the boundary to blob storage: clips and thumbnails live
// behind it, addressed by path, and are served to clients through short-lived
// signed URLs.
type ObjectStore interface {
	Upload(ctx context.Context, data []byte, path string) (string, error)
	Delete(ctx context.Context, path string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	SignedURL(path string, ttl time.Duration) (string, error)
}
