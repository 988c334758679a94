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

// Package workflow assembles commands into the background pipelines. This
// file implements the embedding sync: the process that keeps the vector index
// caught up with the scene collection. It runs two ways over the same command
// chain — a Pub/Sub trigger embeds one scene as soon as its analysis lands,
// and a periodic sweep picks up anything the triggers missed.
package workflow

import (
	goctx "context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/commands"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/cor"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/embed"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/search"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/services"
	"github.com/jaycherian/gcp-go-ad-scene-search/internal/core/store"
)

// EmbeddingSyncWorkflow owns the sweep side of the sync: find scenes missing
// embeddings, embed, persist, mirror.
type EmbeddingSyncWorkflow struct {
	cor.BaseCommand
	chain       cor.Chain
	interval    time.Duration
	closeTicker chan struct{}
}

// NewEmbeddingSyncWorkflow builds the sweep workflow. batchSize bounds how
// many scenes one sweep embeds; interval is the tick period. analytics may be
// nil when no BigQuery backend is configured.
func NewEmbeddingSyncWorkflow(
	scenes store.SceneStore,
	provider *embed.Provider,
	index *search.VectorIndex,
	analytics *services.AnalyticsService,
	batchSize int,
	interval time.Duration,
) *EmbeddingSyncWorkflow {
	chain := cor.NewBaseChain("embedding-sync").
		AddCommand(commands.NewPendingSceneFinder("pending-scene-finder", scenes, batchSize)).
		AddCommand(commands.NewSceneEmbedder("scene-embedder", provider)).
		AddCommand(commands.NewEmbeddingPersister("embedding-persister", index, scenes)).
		AddCommand(commands.NewSceneAnalyticsMirror("scene-analytics-mirror", analytics))

	return &EmbeddingSyncWorkflow{
		BaseCommand: *cor.NewBaseCommand("embedding-sync-workflow"),
		chain:       chain,
		interval:    interval,
		closeTicker: make(chan struct{}),
	}
}

// NewEmbeddingTriggerChain builds the event-triggered variant of the sync
// chain for the Pub/Sub listener: the raw message is parsed into a scene
// event, then flows through the same embed/persist/mirror steps as a sweep.
func NewEmbeddingTriggerChain(
	scenes store.SceneStore,
	provider *embed.Provider,
	index *search.VectorIndex,
	analytics *services.AnalyticsService,
) cor.Chain {
	return cor.NewBaseChain("embedding-trigger").
		AddCommand(commands.NewSceneEventReader("scene-event-reader")).
		AddCommand(commands.NewPendingSceneFinder("triggered-scene-finder", scenes, 1)).
		AddCommand(commands.NewSceneEmbedder("scene-embedder", provider)).
		AddCommand(commands.NewEmbeddingPersister("embedding-persister", index, scenes)).
		AddCommand(commands.NewSceneAnalyticsMirror("scene-analytics-mirror", analytics))
}

// IsExecutable always holds; the sweep seeds its own input.
func (w *EmbeddingSyncWorkflow) IsExecutable(_ cor.Context) bool {
	return true
}

// Execute runs one sweep inside a chain context.
func (w *EmbeddingSyncWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

// RunOnce executes a single sweep and returns the first chain error, if any.
// The HTTP admin surface uses it to force a sync without waiting for a tick.
func (w *EmbeddingSyncWorkflow) RunOnce(ctx goctx.Context) error {
	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(ctx)
	w.Execute(chainCtx)
	if chainCtx.HasErrors() {
		errs := make([]error, 0, len(chainCtx.GetErrors()))
		for _, err := range chainCtx.GetErrors() {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	}
	return nil
}

// StartTimer runs the sweep on a ticker until Stop is called. Each tick gets
// its own trace span and a fresh chain context.
func (w *EmbeddingSyncWorkflow) StartTimer() {
	tracer := otel.Tracer("embedding-sync-timer")
	ticker := time.NewTicker(w.interval)

	go func() {
		for {
			select {
			case <-ticker.C:
				traceCtx, span := tracer.Start(goctx.Background(), "embedding-sync-sweep")
				chainCtx := cor.NewBaseContext()
				chainCtx.SetContext(traceCtx)

				w.Execute(chainCtx)

				if chainCtx.HasErrors() {
					span.SetStatus(codes.Error, "embedding sync sweep failed")
				} else {
					span.SetStatus(codes.Ok, "embedding sync sweep completed")
				}
				span.End()
			case <-w.closeTicker:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop ends the background sweep.
func (w *EmbeddingSyncWorkflow) Stop() {
	close(w.closeTicker)
}
