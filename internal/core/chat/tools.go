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

// Package chat implements the conversation orchestrator. This file defines
// the fixed, read-only toolset the language model may call during a turn: the
// declarations handed to the model and the dispatcher that executes a
// requested call against the library, analytics, and search services. Every
// tool is a read — the model can look things up but never mutate the library.
package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/model"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/search"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/services"
)

// Tool names, as declared to the model.
const (
	ToolListCampaigns        = "list_campaigns"
	ToolCountCampaigns       = "count_campaigns"
	ToolGetCampaign          = "get_campaign"
	ToolGetCampaignAnalytics = "get_campaign_analytics"
	ToolSearchScenes         = "search_scenes"
	ToolCountVideos          = "count_videos"
	ToolCountScenes          = "count_scenes"
)

// defaultToolLimit caps list/search tool results so a single tool response
// stays small enough to feed back into the prompt.
const defaultToolLimit = 10

// Library is the slice of the library service the tools need.
type Library interface {
	GetCampaign(ctx context.Context, id string) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, limit int) ([]*model.Campaign, error)
	CountCampaigns(ctx context.Context) (int, error)
	CountVideos(ctx context.Context, campaignID string) (int, error)
	CountScenes(ctx context.Context, campaignID string) (int, error)
}

// Analytics is the slice of the analytics service the tools need.
type Analytics interface {
	GetCampaignAnalytics(ctx context.Context, campaignID string) (*services.CampaignAnalytics, error)
}

// Searcher is the slice of the search service the tools need.
type Searcher interface {
	QueryScenes(ctx context.Context, query string, opts search.Options) ([]*model.SearchResult, error)
}

// Toolset executes the model's function calls.
type Toolset struct {
	library   Library
	analytics Analytics
	searcher  Searcher
}

// NewToolset wires the tool dispatcher. analytics may be nil when no
// analytics backend is configured; the analytics tool then reports itself
// unavailable instead of failing the turn.
func NewToolset(library Library, analytics Analytics, searcher Searcher) *Toolset {
	return &Toolset{library: library, analytics: analytics, searcher: searcher}
}

// Declarations returns the function declarations to hand to the model.
func (t *Toolset) Declarations() []*genai.FunctionDeclaration {
	campaignIDProp := &genai.Schema{
		Type:        genai.TypeString,
		Description: "Campaign id. Omit to use the conversation's campaign scope.",
	}
	return []*genai.FunctionDeclaration{
		{
			Name:        ToolListCampaigns,
			Description: "List the ad campaigns in the library.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"limit": {Type: genai.TypeInteger, Description: "Maximum campaigns to return."},
				},
			},
		},
		{
			Name:        ToolCountCampaigns,
			Description: "Count the ad campaigns in the library.",
			Parameters:  &genai.Schema{Type: genai.TypeObject},
		},
		{
			Name:        ToolGetCampaign,
			Description: "Get one campaign's details by id.",
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: map[string]*genai.Schema{"campaign_id": campaignIDProp},
				Required:   []string{"campaign_id"},
			},
		},
		{
			Name:        ToolGetCampaignAnalytics,
			Description: "Get aggregate analytics for a campaign: video and scene counts, total footage duration, and top moods.",
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: map[string]*genai.Schema{"campaign_id": campaignIDProp},
				Required:   []string{"campaign_id"},
			},
		},
		{
			Name:        ToolSearchScenes,
			Description: "Search analyzed video scenes by free-text query. Returns ranked scenes with descriptions, moods, and relevance scores.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"query":       {Type: genai.TypeString, Description: "Free-text search query."},
					"campaign_id": campaignIDProp,
					"limit":       {Type: genai.TypeInteger, Description: "Maximum scenes to return."},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        ToolCountVideos,
			Description: "Count videos, optionally within one campaign.",
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: map[string]*genai.Schema{"campaign_id": campaignIDProp},
			},
		},
		{
			Name:        ToolCountScenes,
			Description: "Count analyzed scenes, optionally within one campaign.",
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: map[string]*genai.Schema{"campaign_id": campaignIDProp},
			},
		},
	}
}

// Execute dispatches one function call. campaignScope is the conversation's
// campaign id and is used whenever the call omits an explicit campaign_id.
// An unknown name returns ErrUnknownFunction; any other failure is returned
// for the orchestrator to feed back to the model.
func (t *Toolset) Execute(ctx context.Context, name string, args map[string]any, campaignScope string) (map[string]any, error) {
	campaignID := stringArg(args, "campaign_id")
	if campaignID == "" {
		campaignID = campaignScope
	}

	switch name {
	case ToolListCampaigns:
		campaigns, err := t.library.ListCampaigns(ctx, intArg(args, "limit", defaultToolLimit))
		if err != nil {
			return nil, err
		}
		return toResultMap("campaigns", campaigns)

	case ToolCountCampaigns:
		count, err := t.library.CountCampaigns(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"count": count}, nil

	case ToolGetCampaign:
		campaign, err := t.library.GetCampaign(ctx, campaignID)
		if err != nil {
			return nil, err
		}
		return toResultMap("campaign", campaign)

	case ToolGetCampaignAnalytics:
		if t.analytics == nil {
			return map[string]any{"error": "analytics backend is not configured"}, nil
		}
		analytics, err := t.analytics.GetCampaignAnalytics(ctx, campaignID)
		if err != nil {
			return nil, err
		}
		return toResultMap("analytics", analytics)

	case ToolSearchScenes:
		results, err := t.searcher.QueryScenes(ctx, stringArg(args, "query"), search.Options{
			CampaignID: campaignID,
			Limit:      intArg(args, "limit", defaultToolLimit),
		})
		if err != nil {
			return nil, err
		}
		return toResultMap("results", results)

	case ToolCountVideos:
		count, err := t.library.CountVideos(ctx, campaignID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"count": count}, nil

	case ToolCountScenes:
		count, err := t.library.CountScenes(ctx, campaignID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"count": count}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, name)
	}
}

// toResultMap wraps a value under a key, converted through JSON so the
// function-response payload only contains plain maps, slices, and scalars.
func toResultMap(key string, value any) (map[string]any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decoding tool result: %w", err)
	}
	return map[string]any{key: decoded}, nil
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}
