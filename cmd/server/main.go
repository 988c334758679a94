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

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/chat"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/model"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/search"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/store"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/telemetry"
)

func main() {
	telemetry.SetupLogging()
	slog.Info("Logging initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	config := GetConfig()

	otelShutdown, err := telemetry.SetupOpenTelemetry(ctx, config)
	if err != nil {
		slog.Error("Failed to setup OpenTelemetry", "error", err)
		log.Fatal(err)
	}
	slog.Info("Tracing initialized")

	InitState(ctx)
	slog.Info("Initialized State")

	r := gin.Default()
	r.Use(otelgin.Middleware("ad-scene-search-server"))
	r.Use(cors.Default())

	apiV1 := r.Group("/api/v1")
	{
		SearchRouter(apiV1)
		CampaignRouter(apiV1)
		VideoRouter(apiV1)
		SceneRouter(apiV1)
		ConversationRouter(apiV1)
	}

	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to listen", "error", err)
		}
	}()
	slog.Info("Server Ready on port 8080")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutdown Server ...")

	state.syncWorkflow.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server Shutdown Failed:", "error", err)
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Error("Telemetry Shutdown Failed:", "error", err)
	}

	log.Println("Server exiting")
}

// writeError maps domain errors onto HTTP statuses: missing documents are
// 404, an exhausted tool budget is 502 (the model, not the caller, failed),
// everything else is 500.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrMaxIterations):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		slog.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func intQuery(c *gin.Context, name string, fallback int) int {
	v, err := strconv.Atoi(c.DefaultQuery(name, strconv.Itoa(fallback)))
	if err != nil {
		return fallback
	}
	return v
}

// SearchRouter sets up the scene search routes.
func SearchRouter(r *gin.RouterGroup) {
	sr := r.Group("/search")
	{
		// GET /search?q=...&campaign_id=...&limit=...&min_confidence=...&elements=a,b
		sr.GET("", func(c *gin.Context) {
			query := c.Query("q")
			if len(query) == 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q is required"})
				return
			}
			opts := search.Options{
				CampaignID: c.Query("campaign_id"),
				Limit:      intQuery(c, "limit", 0),
			}
			minConfidence, _ := strconv.ParseFloat(c.DefaultQuery("min_confidence", "0"), 64)
			var elements []string
			if raw := c.Query("elements"); raw != "" {
				elements = strings.Split(raw, ",")
			}
			if minConfidence > 0 || len(elements) > 0 {
				opts.Filters = &search.Filters{
					MinConfidence:    minConfidence,
					RequiredElements: elements,
				}
			}
			results, err := state.searchService.QueryScenes(c.Request.Context(), query, opts)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, results)
		})

		// POST /search/elements {"elements": [...], "campaign_id": "", "match_all": false, "limit": 0}
		sr.POST("/elements", func(c *gin.Context) {
			var body struct {
				Elements   []string `json:"elements"`
				CampaignID string   `json:"campaign_id"`
				MatchAll   bool     `json:"match_all"`
				Limit      int      `json:"limit"`
			}
			if err := c.ShouldBindJSON(&body); err != nil || len(body.Elements) == 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "elements list is required"})
				return
			}
			results, err := state.searchService.SearchByVisualElements(
				c.Request.Context(), body.Elements, body.CampaignID, body.MatchAll, body.Limit)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, results)
		})
	}
}

// CampaignRouter sets up campaign metadata, stats, and analytics routes.
func CampaignRouter(r *gin.RouterGroup) {
	campaigns := r.Group("/campaigns")
	{
		campaigns.GET("", func(c *gin.Context) {
			out, err := state.libraryService.ListCampaigns(c.Request.Context(), intQuery(c, "limit", 0))
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
		})

		campaigns.POST("", func(c *gin.Context) {
			var campaign model.Campaign
			if err := c.ShouldBindJSON(&campaign); err != nil || campaign.ID == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "campaign with an id is required"})
				return
			}
			if err := state.libraryService.SaveCampaign(c.Request.Context(), &campaign); err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, campaign)
		})

		campaigns.GET("/:id", func(c *gin.Context) {
			out, err := state.libraryService.GetCampaign(c.Request.Context(), c.Param("id"))
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
		})

		campaigns.GET("/:id/videos", func(c *gin.Context) {
			out, err := state.libraryService.ListVideos(c.Request.Context(), c.Param("id"))
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
		})

		campaigns.GET("/:id/stats", func(c *gin.Context) {
			ctx := c.Request.Context()
			id := c.Param("id")
			videos, err := state.libraryService.CountVideos(ctx, id)
			if err != nil {
				writeError(c, err)
				return
			}
			scenes, err := state.libraryService.CountScenes(ctx, id)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"campaign_id": id, "video_count": videos, "scene_count": scenes})
		})

		campaigns.GET("/:id/analytics", func(c *gin.Context) {
			out, err := state.analyticsService.GetCampaignAnalytics(c.Request.Context(), c.Param("id"))
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
		})
	}
}

// VideoRouter sets up video retrieval and deletion routes.
func VideoRouter(r *gin.RouterGroup) {
	videos := r.Group("/videos")
	{
		videos.GET("/:id", func(c *gin.Context) {
			out, err := state.libraryService.GetVideo(c.Request.Context(), c.Param("id"))
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
		})

		videos.GET("/:id/scenes", func(c *gin.Context) {
			out, err := state.libraryService.ListScenes(c.Request.Context(), c.Param("id"))
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
		})

		videos.DELETE("/:id", func(c *gin.Context) {
			if err := state.libraryService.DeleteVideo(c.Request.Context(), c.Param("id")); err != nil {
				writeError(c, err)
				return
			}
			c.Status(http.StatusNoContent)
		})
	}
}

// SceneRouter sets up scene retrieval and similarity routes.
func SceneRouter(r *gin.RouterGroup) {
	scenes := r.Group("/scenes")
	{
		scenes.GET("/:id", func(c *gin.Context) {
			out, err := state.libraryService.GetScene(c.Request.Context(), c.Param("id"))
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
		})

		scenes.GET("/:id/similar", func(c *gin.Context) {
			results, err := state.searchService.FindSimilarScenes(
				c.Request.Context(),
				c.Param("id"),
				intQuery(c, "limit", 0),
				c.Query("campaign_id"),
			)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, results)
		})
	}
}

// ConversationRouter sets up the chat routes.
func ConversationRouter(r *gin.RouterGroup) {
	conversations := r.Group("/conversations")
	{
		conversations.POST("", func(c *gin.Context) {
			var body struct {
				CampaignID string `json:"campaign_id"`
			}
			_ = c.ShouldBindJSON(&body)
			out, err := state.chatService.CreateConversation(c.Request.Context(), body.CampaignID)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusCreated, out)
		})

		conversations.GET("", func(c *gin.Context) {
			out, err := state.chatService.ListConversations(
				c.Request.Context(), c.Query("campaign_id"), intQuery(c, "limit", 0))
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
		})

		conversations.GET("/:id", func(c *gin.Context) {
			out, err := state.chatService.GetConversation(c.Request.Context(), c.Param("id"))
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
		})

		conversations.DELETE("/:id", func(c *gin.Context) {
			if err := state.chatService.DeleteConversation(c.Request.Context(), c.Param("id")); err != nil {
				writeError(c, err)
				return
			}
			c.Status(http.StatusNoContent)
		})

		conversations.POST("/:id/messages", func(c *gin.Context) {
			var body struct {
				Text string `json:"text"`
			}
			if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.Text) == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "message text is required"})
				return
			}
			conversation, reply, err := state.chatService.SendMessage(
				c.Request.Context(), c.Param("id"), body.Text)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"conversation_id": conversation.ID,
				"revision":        conversation.Revision,
				"message":         reply,
			})
		})
	}
}
