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

// Package store defines the persistence boundary of the core. This file holds
// the in-memory implementations. They keep insertion order where the
// interface demands a stable order, guard all state with a mutex, and are
// used both as test doubles and as the explicit fallback backend when the
// document store is unreachable at startup.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/model"
)

// MemorySceneStore is a mutex-guarded, map-backed SceneStore.
type MemorySceneStore struct {
	mu     sync.RWMutex
	scenes map[string]*model.Scene
	order  []string
}

// NewMemorySceneStore creates an empty in-memory scene store.
func NewMemorySceneStore() *MemorySceneStore {
	return &MemorySceneStore{scenes: make(map[string]*model.Scene)}
}

func (s *MemorySceneStore) Get(_ context.Context, id string) (*model.Scene, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scene, ok := s.scenes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *scene
	return &cp, nil
}

func (s *MemorySceneStore) Put(_ context.Context, scene *model.Scene) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scenes[scene.ID]; !ok {
		s.order = append(s.order, scene.ID)
	}
	cp := *scene
	s.scenes[scene.ID] = &cp
	return nil
}

func (s *MemorySceneStore) Query(_ context.Context, filter SceneFilter, limit int) ([]*model.Scene, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Scene, 0)
	for _, id := range s.order {
		scene, ok := s.scenes[id]
		if !ok {
			continue
		}
		if filter.CampaignID != "" && scene.CampaignID != filter.CampaignID {
			continue
		}
		if filter.Mood != "" && !strings.EqualFold(scene.Analysis.Mood, filter.Mood) {
			continue
		}
		if filter.Product != "" && !strings.EqualFold(scene.Analysis.Product, filter.Product) {
			continue
		}
		cp := *scene
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemorySceneStore) ListByVideo(_ context.Context, videoID string) ([]*model.Scene, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Scene, 0)
	for _, id := range s.order {
		if scene, ok := s.scenes[id]; ok && scene.VideoID == videoID {
			cp := *scene
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SceneNumber < out[j].SceneNumber })
	return out, nil
}

func (s *MemorySceneStore) ListMissingEmbeddings(_ context.Context, limit int) ([]*model.Scene, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Scene, 0)
	for _, id := range s.order {
		if scene, ok := s.scenes[id]; ok && scene.EmbeddingID == "" {
			cp := *scene
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemorySceneStore) BatchDelete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.scenes, id)
	}
	// Prune the deleted ids from the order slice too, so a later re-insert
	// of the same id cannot leave a duplicate slot behind.
	kept := s.order[:0]
	for _, id := range s.order {
		if _, ok := s.scenes[id]; ok {
			kept = append(kept, id)
		}
	}
	s.order = kept
	return nil
}

func (s *MemorySceneStore) Count(_ context.Context, campaignID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if campaignID == "" {
		return len(s.scenes), nil
	}
	n := 0
	for _, scene := range s.scenes {
		if scene.CampaignID == campaignID {
			n++
		}
	}
	return n, nil
}

// MemoryVideoStore is a mutex-guarded, map-backed VideoStore.
type MemoryVideoStore struct {
	mu     sync.RWMutex
	videos map[string]*model.Video
}

// NewMemoryVideoStore creates an empty in-memory video store.
func NewMemoryVideoStore() *MemoryVideoStore {
	return &MemoryVideoStore{videos: make(map[string]*model.Video)}
}

func (s *MemoryVideoStore) Get(_ context.Context, id string) (*model.Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	video, ok := s.videos[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *video
	return &cp, nil
}

func (s *MemoryVideoStore) Put(_ context.Context, video *model.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *video
	s.videos[video.ID] = &cp
	return nil
}

func (s *MemoryVideoStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.videos, id)
	return nil
}

func (s *MemoryVideoStore) ListByCampaign(_ context.Context, campaignID string) ([]*model.Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Video, 0)
	for _, video := range s.videos {
		if campaignID == "" || video.CampaignID == campaignID {
			cp := *video
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryVideoStore) Count(_ context.Context, campaignID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if campaignID == "" {
		return len(s.videos), nil
	}
	n := 0
	for _, video := range s.videos {
		if video.CampaignID == campaignID {
			n++
		}
	}
	return n, nil
}

// MemoryCampaignStore is a mutex-guarded, map-backed CampaignStore.
type MemoryCampaignStore struct {
	mu        sync.RWMutex
	campaigns map[string]*model.Campaign
	order     []string
}

// NewMemoryCampaignStore creates an empty in-memory campaign store.
func NewMemoryCampaignStore() *MemoryCampaignStore {
	return &MemoryCampaignStore{campaigns: make(map[string]*model.Campaign)}
}

func (s *MemoryCampaignStore) Get(_ context.Context, id string) (*model.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	campaign, ok := s.campaigns[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *campaign
	return &cp, nil
}

func (s *MemoryCampaignStore) Put(_ context.Context, campaign *model.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[campaign.ID]; !ok {
		s.order = append(s.order, campaign.ID)
	}
	cp := *campaign
	s.campaigns[campaign.ID] = &cp
	return nil
}

func (s *MemoryCampaignStore) List(_ context.Context, limit int) ([]*model.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Campaign, 0, len(s.order))
	for _, id := range s.order {
		if campaign, ok := s.campaigns[id]; ok {
			cp := *campaign
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryCampaignStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.campaigns), nil
}

// MemoryConversationStore is a mutex-guarded, map-backed ConversationStore.
// It is the designated fallback backend for chat sessions when the document
// store is unavailable at startup.
type MemoryConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]*model.Conversation
}

// NewMemoryConversationStore creates an empty in-memory conversation store.
func NewMemoryConversationStore() *MemoryConversationStore {
	return &MemoryConversationStore{conversations: make(map[string]*model.Conversation)}
}

func (s *MemoryConversationStore) Get(_ context.Context, id string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conversation, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *conversation
	cp.Messages = append([]*model.Message(nil), conversation.Messages...)
	return &cp, nil
}

func (s *MemoryConversationStore) Put(_ context.Context, conversation *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *conversation
	cp.Messages = append([]*model.Message(nil), conversation.Messages...)
	s.conversations[conversation.ID] = &cp
	return nil
}

func (s *MemoryConversationStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, id)
	return nil
}

func (s *MemoryConversationStore) List(_ context.Context, campaignID string, limit int) ([]*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Conversation, 0)
	for _, conversation := range s.conversations {
		if campaignID != "" && conversation.CampaignID != campaignID {
			continue
		}
		cp := *conversation
		cp.Messages = append([]*model.Message(nil), conversation.Messages...)
		out = append(out, &cp)
	}
	// Most recently updated first, mirroring the Firestore ordering.
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MemoryEmbeddingStore is a mutex-guarded EmbeddingStore that preserves
// insertion order, which is what makes similarity ties rank deterministically
// in tests.
type MemoryEmbeddingStore struct {
	mu         sync.RWMutex
	embeddings map[string]*model.Embedding
	order      []string
}

// NewMemoryEmbeddingStore creates an empty in-memory embedding store.
func NewMemoryEmbeddingStore() *MemoryEmbeddingStore {
	return &MemoryEmbeddingStore{embeddings: make(map[string]*model.Embedding)}
}

func (s *MemoryEmbeddingStore) Get(_ context.Context, id string) (*model.Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	embedding, ok := s.embeddings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *embedding
	return &cp, nil
}

func (s *MemoryEmbeddingStore) Put(_ context.Context, embedding *model.Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.embeddings[embedding.ID]; !ok {
		s.order = append(s.order, embedding.ID)
	}
	cp := *embedding
	s.embeddings[embedding.ID] = &cp
	return nil
}

func (s *MemoryEmbeddingStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.embeddings, id)
	return nil
}

func (s *MemoryEmbeddingStore) List(_ context.Context, campaignID string) ([]*model.Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Embedding, 0, len(s.order))
	for _, id := range s.order {
		embedding, ok := s.embeddings[id]
		if !ok {
			continue
		}
		if campaignID != "" && embedding.Metadata.CampaignID != campaignID {
			continue
		}
		cp := *embedding
		out = append(out, &cp)
	}
	return out, nil
}
