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
// the Firestore-backed implementations. Firestore was chosen because the
// scene analysis uses nested optional fields (`analysis.mood`,
// `analysis.product`) and Firestore supports equality filters one level into
// a document without a schema migration.
package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/model"
)

// Collections names the Firestore collections used by the application. The
// values come from configuration so test and production datasets can live in
// the same project.
type Collections struct {
	Campaigns     string
	Videos        string
	Scenes        string
	Embeddings    string
	Conversations string
}

// translateErr maps a Firestore lookup error onto the package's ErrNotFound
// sentinel while preserving the original error for diagnostics.
func translateErr(err error, id string) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return err
}

// count runs a query and counts its results. A simple scan keeps the
// implementation uniform across backends and is fine at the corpus sizes this
// system targets.
func count(ctx context.Context, q firestore.Query) (int, error) {
	it := q.Select("id").Documents(ctx)
	defer it.Stop()
	n := 0
	for {
		_, err := it.Next()
		if err == iterator.Done {
			return n, nil
		}
		if err != nil {
			return 0, err
		}
		n++
	}
}

// FirestoreSceneStore implements SceneStore on a Firestore collection.
type FirestoreSceneStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreSceneStore creates a scene store over the named collection.
func NewFirestoreSceneStore(client *firestore.Client, collection string) *FirestoreSceneStore {
	return &FirestoreSceneStore{client: client, collection: collection}
}

func (s *FirestoreSceneStore) Get(ctx context.Context, id string) (*model.Scene, error) {
	snap, err := s.client.Collection(s.collection).Doc(id).Get(ctx)
	if err != nil {
		return nil, translateErr(err, id)
	}
	scene := &model.Scene{}
	if err := snap.DataTo(scene); err != nil {
		return nil, err
	}
	return scene, nil
}

func (s *FirestoreSceneStore) Put(ctx context.Context, scene *model.Scene) error {
	_, err := s.client.Collection(s.collection).Doc(scene.ID).Set(ctx, scene)
	return err
}

func (s *FirestoreSceneStore) Query(ctx context.Context, filter SceneFilter, limit int) ([]*model.Scene, error) {
	q := s.client.Collection(s.collection).Query
	if filter.CampaignID != "" {
		q = q.Where("campaign_id", "==", filter.CampaignID)
	}
	if filter.Mood != "" {
		q = q.Where("analysis.mood", "==", filter.Mood)
	}
	if filter.Product != "" {
		q = q.Where("analysis.product", "==", filter.Product)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	return s.readAll(ctx, q)
}

func (s *FirestoreSceneStore) ListByVideo(ctx context.Context, videoID string) ([]*model.Scene, error) {
	q := s.client.Collection(s.collection).
		Where("video_id", "==", videoID).
		OrderBy("scene_number", firestore.Asc)
	return s.readAll(ctx, q)
}

func (s *FirestoreSceneStore) ListMissingEmbeddings(ctx context.Context, limit int) ([]*model.Scene, error) {
	q := s.client.Collection(s.collection).Where("embedding_id", "==", "")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return s.readAll(ctx, q)
}

func (s *FirestoreSceneStore) BatchDelete(ctx context.Context, ids []string) error {
	bw := s.client.BulkWriter(ctx)
	for _, id := range ids {
		if _, err := bw.Delete(s.client.Collection(s.collection).Doc(id)); err != nil {
			return err
		}
	}
	bw.End()
	return nil
}

func (s *FirestoreSceneStore) Count(ctx context.Context, campaignID string) (int, error) {
	q := s.client.Collection(s.collection).Query
	if campaignID != "" {
		q = q.Where("campaign_id", "==", campaignID)
	}
	return count(ctx, q)
}

func (s *FirestoreSceneStore) readAll(ctx context.Context, q firestore.Query) ([]*model.Scene, error) {
	it := q.Documents(ctx)
	defer it.Stop()
	out := make([]*model.Scene, 0)
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		scene := &model.Scene{}
		if err := snap.DataTo(scene); err != nil {
			return nil, err
		}
		out = append(out, scene)
	}
}

// FirestoreVideoStore implements VideoStore on a Firestore collection.
type FirestoreVideoStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreVideoStore creates a video store over the named collection.
func NewFirestoreVideoStore(client *firestore.Client, collection string) *FirestoreVideoStore {
	return &FirestoreVideoStore{client: client, collection: collection}
}

func (s *FirestoreVideoStore) Get(ctx context.Context, id string) (*model.Video, error) {
	snap, err := s.client.Collection(s.collection).Doc(id).Get(ctx)
	if err != nil {
		return nil, translateErr(err, id)
	}
	video := &model.Video{}
	if err := snap.DataTo(video); err != nil {
		return nil, err
	}
	return video, nil
}

func (s *FirestoreVideoStore) Put(ctx context.Context, video *model.Video) error {
	_, err := s.client.Collection(s.collection).Doc(video.ID).Set(ctx, video)
	return err
}

func (s *FirestoreVideoStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.Collection(s.collection).Doc(id).Delete(ctx)
	return err
}

func (s *FirestoreVideoStore) ListByCampaign(ctx context.Context, campaignID string) ([]*model.Video, error) {
	q := s.client.Collection(s.collection).Query
	if campaignID != "" {
		q = q.Where("campaign_id", "==", campaignID)
	}
	it := q.Documents(ctx)
	defer it.Stop()
	out := make([]*model.Video, 0)
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		video := &model.Video{}
		if err := snap.DataTo(video); err != nil {
			return nil, err
		}
		out = append(out, video)
	}
}

func (s *FirestoreVideoStore) Count(ctx context.Context, campaignID string) (int, error) {
	q := s.client.Collection(s.collection).Query
	if campaignID != "" {
		q = q.Where("campaign_id", "==", campaignID)
	}
	return count(ctx, q)
}

// FirestoreCampaignStore implements CampaignStore on a Firestore collection.
type FirestoreCampaignStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreCampaignStore creates a campaign store over the named collection.
func NewFirestoreCampaignStore(client *firestore.Client, collection string) *FirestoreCampaignStore {
	return &FirestoreCampaignStore{client: client, collection: collection}
}

func (s *FirestoreCampaignStore) Get(ctx context.Context, id string) (*model.Campaign, error) {
	snap, err := s.client.Collection(s.collection).Doc(id).Get(ctx)
	if err != nil {
		return nil, translateErr(err, id)
	}
	campaign := &model.Campaign{}
	if err := snap.DataTo(campaign); err != nil {
		return nil, err
	}
	return campaign, nil
}

func (s *FirestoreCampaignStore) Put(ctx context.Context, campaign *model.Campaign) error {
	_, err := s.client.Collection(s.collection).Doc(campaign.ID).Set(ctx, campaign)
	return err
}

func (s *FirestoreCampaignStore) List(ctx context.Context, limit int) ([]*model.Campaign, error) {
	q := s.client.Collection(s.collection).OrderBy("created_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	it := q.Documents(ctx)
	defer it.Stop()
	out := make([]*model.Campaign, 0)
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		campaign := &model.Campaign{}
		if err := snap.DataTo(campaign); err != nil {
			return nil, err
		}
		out = append(out, campaign)
	}
}

func (s *FirestoreCampaignStore) Count(ctx context.Context) (int, error) {
	return count(ctx, s.client.Collection(s.collection).Query)
}

// FirestoreConversationStore implements ConversationStore on a Firestore
// collection. Writes are full-document Sets: last-write-wins, as documented
// on the interface.
type FirestoreConversationStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreConversationStore creates a conversation store over the named
// collection.
func NewFirestoreConversationStore(client *firestore.Client, collection string) *FirestoreConversationStore {
	return &FirestoreConversationStore{client: client, collection: collection}
}

func (s *FirestoreConversationStore) Get(ctx context.Context, id string) (*model.Conversation, error) {
	snap, err := s.client.Collection(s.collection).Doc(id).Get(ctx)
	if err != nil {
		return nil, translateErr(err, id)
	}
	conversation := &model.Conversation{}
	if err := snap.DataTo(conversation); err != nil {
		return nil, err
	}
	return conversation, nil
}

func (s *FirestoreConversationStore) Put(ctx context.Context, conversation *model.Conversation) error {
	_, err := s.client.Collection(s.collection).Doc(conversation.ID).Set(ctx, conversation)
	return err
}

func (s *FirestoreConversationStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.Collection(s.collection).Doc(id).Delete(ctx)
	return err
}

func (s *FirestoreConversationStore) List(ctx context.Context, campaignID string, limit int) ([]*model.Conversation, error) {
	q := s.client.Collection(s.collection).Query
	if campaignID != "" {
		q = q.Where("campaign_id", "==", campaignID)
	}
	q = q.OrderBy("updated_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	it := q.Documents(ctx)
	defer it.Stop()
	out := make([]*model.Conversation, 0)
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		conversation := &model.Conversation{}
		if err := snap.DataTo(conversation); err != nil {
			return nil, err
		}
		out = append(out, conversation)
	}
}

// FirestoreEmbeddingStore implements EmbeddingStore on a Firestore
// collection. List orders by creation time (document id as tiebreak) so the
// linear-scan index sees a stable ordering.
type FirestoreEmbeddingStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreEmbeddingStore creates an embedding store over the named
// collection.
func NewFirestoreEmbeddingStore(client *firestore.Client, collection string) *FirestoreEmbeddingStore {
	return &FirestoreEmbeddingStore{client: client, collection: collection}
}

func (s *FirestoreEmbeddingStore) Get(ctx context.Context, id string) (*model.Embedding, error) {
	snap, err := s.client.Collection(s.collection).Doc(id).Get(ctx)
	if err != nil {
		return nil, translateErr(err, id)
	}
	embedding := &model.Embedding{}
	if err := snap.DataTo(embedding); err != nil {
		return nil, err
	}
	return embedding, nil
}

func (s *FirestoreEmbeddingStore) Put(ctx context.Context, embedding *model.Embedding) error {
	_, err := s.client.Collection(s.collection).Doc(embedding.ID).Set(ctx, embedding)
	return err
}

func (s *FirestoreEmbeddingStore) Delete(ctx context.Context, id string) error {
	// Firestore deletes are already idempotent: removing a missing document
	// succeeds, which is exactly the contract the index relies on.
	_, err := s.client.Collection(s.collection).Doc(id).Delete(ctx)
	return err
}

func (s *FirestoreEmbeddingStore) List(ctx context.Context, campaignID string) ([]*model.Embedding, error) {
	q := s.client.Collection(s.collection).Query
	if campaignID != "" {
		q = q.Where("metadata.campaign_id", "==", campaignID)
	}
	q = q.OrderBy("created_at", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
	it := q.Documents(ctx)
	defer it.Stop()
	out := make([]*model.Embedding, 0)
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		embedding := &model.Embedding{}
		if err := snap.DataTo(embedding); err != nil {
			return nil, err
		}
		out = append(out, embedding)
	}
}
