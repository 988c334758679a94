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
// the adaptive rate limiter shared by everything that calls the upstream
// embedding API: one quota, one pacing state. The minimum inter-request delay
// doubles whenever the upstream pushes back and decays back toward the base
// delay after a run of successes.
package embed

import (
	"context"
	"sync"
	"time"
)

// successesPerDecay is how many consecutive successful requests it takes
// before the current delay is halved one step back toward the base delay.
const successesPerDecay = 10

// AdaptiveLimiter coordinates request pacing across all callers that share
// one upstream quota. All state is guarded by the mutex; a single instance is
// injected wherever embedding calls are issued so tests can substitute a
// zero-delay variant.
type AdaptiveLimiter struct {
	mu            sync.Mutex
	baseDelay     time.Duration
	maxDelay      time.Duration
	currentDelay  time.Duration
	successStreak int
	lastRequest   time.Time
}

// NewAdaptiveLimiter creates a limiter with the given floor and ceiling for
// the inter-request delay. A zero base delay yields a limiter that never
// waits until the upstream starts throttling.
func NewAdaptiveLimiter(baseDelay, maxDelay time.Duration) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		baseDelay:    baseDelay,
		maxDelay:     maxDelay,
		currentDelay: baseDelay,
	}
}

// Wait blocks until at least the current minimum delay has passed since the
// previous request, or until the context is done.
func (l *AdaptiveLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	wait := l.currentDelay - time.Since(l.lastRequest)
	l.lastRequest = time.Now()
	l.mu.Unlock()

	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Throttle reacts to an upstream rate-limit signal by doubling the minimum
// delay up to the ceiling.
func (l *AdaptiveLimiter) Throttle() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.successStreak = 0
	next := l.currentDelay * 2
	if next == 0 {
		next = 100 * time.Millisecond
	}
	if next > l.maxDelay {
		next = l.maxDelay
	}
	l.currentDelay = next
}

// Success records a successful request. After a sustained run of successes
// the delay decays one halving step back toward the base delay, so a
// temporary quota squeeze does not slow the pipeline forever.
func (l *AdaptiveLimiter) Success() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.successStreak++
	if l.successStreak < successesPerDecay || l.currentDelay <= l.baseDelay {
		return
	}
	l.successStreak = 0
	next := l.currentDelay / 2
	if next < l.baseDelay {
		next = l.baseDelay
	}
	l.currentDelay = next
}

// Delay reports the current minimum inter-request delay.
func (l *AdaptiveLimiter) Delay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentDelay
}
