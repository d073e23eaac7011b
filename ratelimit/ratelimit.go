// Copyright 2025 deepset GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package ratelimit provides a blocking token-bucket gate used to keep
// outbound storage writes under a fixed requests-per-second ceiling.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

const (
	// DefaultRate is the default refill rate in tokens per second.
	// AWS allows 3500 PUT/POST/DELETE requests per second per prefix,
	// shared across all clients; 500 leaves margin.
	DefaultRate = 500

	// DefaultCapacity is the default bucket capacity.
	DefaultCapacity = 500

	// pollInterval is how long a blocked caller sleeps before checking
	// the bucket again.
	pollInterval = 100 * time.Millisecond
)

// Limiter is a token-bucket rate limiter. Acquire blocks until a token is
// available, so callers never observe a rejected request; they are simply
// delayed. There is no fairness guarantee between concurrently blocked
// callers.
//
// A Limiter is safe for concurrent use. It must not be shared across
// unrelated upload batches unless a single global ceiling is intended.
type Limiter struct {
	mu        sync.Mutex
	capacity  float64
	rate      float64
	tokens    float64
	updatedAt time.Time
}

// New creates a limiter with the given bucket capacity and refill rate in
// tokens per second. The bucket starts full. Non-positive arguments fall
// back to the defaults.
func New(capacity int, refillPerSecond float64) *Limiter {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if refillPerSecond <= 0 {
		refillPerSecond = DefaultRate
	}
	return &Limiter{
		capacity:  float64(capacity),
		rate:      refillPerSecond,
		tokens:    float64(capacity),
		updatedAt: time.Now(),
	}
}

// Default returns a limiter configured with DefaultCapacity and DefaultRate.
func Default() *Limiter {
	return New(DefaultCapacity, DefaultRate)
}

// Acquire blocks until a token is available, then consumes it. It returns
// early with the context's error if ctx is canceled while waiting.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		if l.tryAcquire() {
			return nil
		}

		timer := time.NewTimer(pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAcquire refills the bucket and consumes a token if one is available.
func (l *Limiter) tryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}

// refill grants whole tokens for the time elapsed since the last grant.
// The timestamp only advances when tokens are actually added, so fractional
// progress toward the next token is never discarded.
func (l *Limiter) refill() {
	now := time.Now()
	elapsed := now.Sub(l.updatedAt).Seconds()
	newTokens := math.Floor(elapsed * l.rate)

	if l.tokens+newTokens >= 1 {
		l.tokens = math.Min(l.tokens+newTokens, l.capacity)
		l.updatedAt = now
	}
}
