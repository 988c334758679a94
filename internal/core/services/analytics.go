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
// sources. This file defines the AnalyticsService, which reads campaign-level
// aggregates out of BigQuery. Firestore holds the operational documents; a
// flat scene-row mirror is streamed into BigQuery by the embedding sync
// workflow so aggregate questions ("how much footage, what moods") never scan
// the document store.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/model"
)

// topMoodLimit caps the mood ranking returned per campaign.
const topMoodLimit = 5

// SceneRow is the flattened BigQuery mirror of one analyzed scene. Only the
// fields aggregate queries need are mirrored.
type SceneRow struct {
	SceneID    string    `bigquery:"scene_id"`
	VideoID    string    `bigquery:"video_id"`
	CampaignID string    `bigquery:"campaign_id"`
	StartTime  float64   `bigquery:"start_time"`
	EndTime    float64   `bigquery:"end_time"`
	Duration   float64   `bigquery:"duration"`
	Mood       string    `bigquery:"mood"`
	Product    string    `bigquery:"product"`
	Confidence float64   `bigquery:"confidence"`
	CreatedAt  time.Time `bigquery:"created_at"`
}

// NewSceneRow flattens a scene document into its BigQuery mirror row.
func NewSceneRow(scene *model.Scene) *SceneRow {
	return &SceneRow{
		SceneID:    scene.ID,
		VideoID:    scene.VideoID,
		CampaignID: scene.CampaignID,
		StartTime:  scene.StartTime,
		EndTime:    scene.EndTime,
		Duration:   scene.Duration,
		Mood:       scene.Analysis.Mood,
		Product:    scene.Analysis.Product,
		Confidence: scene.Analysis.Confidence,
		CreatedAt:  scene.CreatedAt,
	}
}

// MoodCount is one entry in a campaign's mood ranking.
type MoodCount struct {
	Mood       string `bigquery:"mood" json:"mood"`
	SceneCount int64  `bigquery:"scene_count" json:"scene_count"`
}

// CampaignAnalytics is the aggregate view of one campaign's footage.
type CampaignAnalytics struct {
	CampaignID    string      `json:"campaign_id"`
	VideoCount    int64       `json:"video_count"`
	SceneCount    int64       `json:"scene_count"`
	TotalDuration float64     `json:"total_duration"`
	AvgConfidence float64     `json:"avg_confidence"`
	TopMoods      []MoodCount `json:"top_moods"`
}

// AnalyticsService answers campaign-level aggregate queries from BigQuery.
type AnalyticsService struct {
	BigqueryClient *bigquery.Client
	DatasetName    string
	SceneTable     string
}

// GetFQN returns the fully qualified scene-table name with dots instead of
// colons so it can be interpolated into standard SQL.
func (s *AnalyticsService) GetFQN() string {
	fqn := s.BigqueryClient.Dataset(s.DatasetName).Table(s.SceneTable).FullyQualifiedName()
	return strings.Replace(fqn, ":", ".", -1)
}

// InsertScenes streams scene mirror rows into the analytics table. Rows keyed
// by scene id are appended, not deduplicated; the aggregate queries are
// insensitive to occasional re-inserts from a re-run workflow at the scale
// this table sees.
func (s *AnalyticsService) InsertScenes(ctx context.Context, scenes []*model.Scene) error {
	if len(scenes) == 0 {
		return nil
	}
	rows := make([]*SceneRow, 0, len(scenes))
	for _, scene := range scenes {
		rows = append(rows, NewSceneRow(scene))
	}
	inserter := s.BigqueryClient.Dataset(s.DatasetName).Table(s.SceneTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("streaming scene rows: %w", err)
	}
	return nil
}

// GetCampaignAnalytics aggregates one campaign: headline counts plus the top
// moods by scene count.
func (s *AnalyticsService) GetCampaignAnalytics(ctx context.Context, campaignID string) (*CampaignAnalytics, error) {
	fqn := s.GetFQN()

	var summary struct {
		VideoCount    int64   `bigquery:"video_count"`
		SceneCount    int64   `bigquery:"scene_count"`
		TotalDuration float64 `bigquery:"total_duration"`
		AvgConfidence float64 `bigquery:"avg_confidence"`
	}
	campaignParam := []bigquery.QueryParameter{{Name: "campaign_id", Value: campaignID}}

	summaryQry := s.BigqueryClient.Query(fmt.Sprintf(QryCampaignSummary, fqn))
	summaryQry.Parameters = campaignParam
	itr, err := summaryQry.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("campaign summary query: %w", err)
	}
	if err := itr.Next(&summary); err != nil {
		return nil, fmt.Errorf("campaign summary row: %w", err)
	}

	moodQry := s.BigqueryClient.Query(fmt.Sprintf(QryTopMoods, fqn, topMoodLimit))
	moodQry.Parameters = campaignParam
	moodItr, err := moodQry.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("top moods query: %w", err)
	}
	var moods []MoodCount
	for {
		var mood MoodCount
		err := moodItr.Next(&mood)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("top moods row: %w", err)
		}
		moods = append(moods, mood)
	}

	return &CampaignAnalytics{
		CampaignID:    campaignID,
		VideoCount:    summary.VideoCount,
		SceneCount:    summary.SceneCount,
		TotalDuration: summary.TotalDuration,
		AvgConfidence: summary.AvgConfidence,
		TopMoods:      moods,
	}, nil
}
