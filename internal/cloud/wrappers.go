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

// Package cloud provides the Google Cloud integration layer. This file wraps
// the Vertex AI generation API with quota awareness: a token-bucket rate
// limiter in front of every call plus bounded retries with backoff. The
// wrapper carries its generation config (system instruction, sampling
// parameters, tool declarations) so callers only supply conversation
// contents; it satisfies the chat orchestrator's Generator interface.
package cloud

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// generateMaxRetries bounds retry attempts per GenerateContent call.
const generateMaxRetries = 3

// QuotaAwareGenerativeAIModel decorates the raw model handle with rate
// limiting and retries.
type QuotaAwareGenerativeAIModel struct {
	GenerativeContentConfig *genai.GenerateContentConfig
	ModelName               string
	ModelHandle             *genai.Models
	RateLimit               *rate.Limiter
	// retryBackoff is the wait between failed attempts; tests shrink it.
	retryBackoff time.Duration
}

// NewQuotaAwareModel wraps a model with a limiter allowing requestsPerSecond
// sustained calls (with an equal burst).
func NewQuotaAwareModel(config *genai.GenerateContentConfig, name string, handle *genai.Models, requestsPerSecond int) *QuotaAwareGenerativeAIModel {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &QuotaAwareGenerativeAIModel{
		GenerativeContentConfig: config,
		ModelName:               name,
		ModelHandle:             handle,
		RateLimit:               rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		retryBackoff:            5 * time.Second,
	}
}

// GenerateContent waits for a limiter token, then calls the model, retrying
// failed calls up to generateMaxRetries times with a fixed backoff. The
// context bounds both the limiter wait and the backoff sleeps.
func (q *QuotaAwareGenerativeAIModel) GenerateContent(ctx context.Context, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= generateMaxRetries; attempt++ {
		if err := q.RateLimit.Wait(ctx); err != nil {
			return nil, err
		}
		response, err := q.ModelHandle.GenerateContent(ctx, q.ModelName, contents, q.GenerativeContentConfig)
		if err == nil {
			return response, nil
		}
		lastErr = err
		if attempt < generateMaxRetries {
			select {
			case <-time.After(q.retryBackoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("generation failed after %d attempts: %w", generateMaxRetries+1, lastErr)
}
