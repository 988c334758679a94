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

// Package embed turns text into fixed-length vectors. This file implements
// the Provider, the one entry point the rest of the system uses to obtain an
// embedding. The provider wraps the remote backend with bounded retries and
// the shared adaptive limiter, and degrades to the deterministic local
// embedding when the upstream is exhausted — Embed never fails, so retrieval
// and ingestion never stall on the embedding dependency.
package embed

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Backend is the upstream embedding API boundary. The production
// implementation calls Vertex AI through the genai client; tests substitute
// a scripted fake.
type Backend interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Provider retry policy.
const (
	maxAttempts = 3
	baseBackoff = 250 * time.Millisecond
)

// Provider produces embeddings of a fixed dimensionality, retrying the
// backend with exponential backoff and falling back to the local hashed-token
// embedding once the attempts are exhausted.
type Provider struct {
	backend  Backend
	limiter  *AdaptiveLimiter
	fallback *LocalEmbedder
	dim      int
	// sleep is swapped out in tests so retry paths run instantly.
	sleep func(time.Duration)
}

// NewProvider creates a provider over the given backend and shared limiter.
func NewProvider(backend Backend, limiter *AdaptiveLimiter, dim int) *Provider {
	return &Provider{
		backend:  backend,
		limiter:  limiter,
		fallback: NewLocalEmbedder(dim),
		dim:      dim,
		sleep:    time.Sleep,
	}
}

// Dimension reports the fixed vector dimensionality of this provider.
func (p *Provider) Dimension() int {
	return p.dim
}

// Embed returns a vector for the text. External-service failure is absorbed
// here: after maxAttempts failed calls (doubling backoff between them, and
// widening the shared limiter on throttle responses), the deterministic local
// embedding is returned instead. Callers never see an upstream error.
func (p *Provider) Embed(ctx context.Context, text string) []float32 {
	backoff := baseBackoff
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := p.limiter.Wait(ctx); err != nil {
			break
		}
		vec, err := p.backend.EmbedText(ctx, text)
		if err == nil && len(vec) == p.dim {
			p.limiter.Success()
			return vec
		}
		if err == nil {
			// A wrong-sized vector would poison every later comparison, so a
			// misconfigured backend is treated the same as a failed call.
			slog.WarnContext(ctx, "embedding backend returned unexpected dimensionality",
				"want", p.dim, "got", len(vec))
		} else {
			if isThrottled(err) {
				p.limiter.Throttle()
			}
			slog.WarnContext(ctx, "embedding request failed",
				"attempt", attempt+1, "error", err)
		}
		if attempt < maxAttempts-1 {
			p.sleep(backoff)
			backoff *= 2
		}
	}
	slog.WarnContext(ctx, "embedding backend exhausted, using local fallback")
	return p.fallback.Embed(text)
}

// isThrottled detects upstream rate-limit pushback in its common shapes:
// a gRPC ResourceExhausted status or an HTTP 429 surfaced as message text.
func isThrottled(err error) bool {
	if status.Code(err) == codes.ResourceExhausted {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "resource exhausted") ||
		strings.Contains(msg, "rate limit")
}
