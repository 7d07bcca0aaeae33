// Copyright 2026 Wandercast
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ratelimit implements token-bucket request pacing for provider calls.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Bucket is a classical token bucket. One bucket guards one provider; all
// operations on a bucket are mutually exclusive.
type Bucket struct {
	mu         sync.Mutex
	rate       float64 // tokens added per period
	period     time.Duration
	tokens     float64
	lastRefill time.Time
}

// NewBucket creates a full bucket granting rate tokens per period.
func NewBucket(rate float64, period time.Duration) *Bucket {
	if rate <= 0 {
		rate = 1
	}
	if period <= 0 {
		period = time.Second
	}
	return &Bucket{
		rate:       rate,
		period:     period,
		tokens:     rate,
		lastRefill: time.Now(),
	}
}

// refillLocked adds tokens for the wall-time elapsed since the last refill,
// capped at rate. Caller must hold mu.
func (b *Bucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * b.rate / b.period.Seconds()
	if b.tokens > b.rate {
		b.tokens = b.rate
	}
	b.lastRefill = now
}

// TryAcquire takes a token if one is available without waiting.
func (b *Bucket) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(time.Now())
	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		return true
	}
	return false
}

// Acquire blocks until a token is available or ctx is done. A cancelled
// caller aborts without deducting a token.
func (b *Bucket) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		b.mu.Lock()
		now := time.Now()
		b.refillLocked(now)
		if b.tokens >= 1.0 {
			b.tokens -= 1.0
			b.mu.Unlock()
			return nil
		}
		// Time until one whole token has accumulated.
		wait := time.Duration((1.0 - b.tokens) * float64(b.period) / b.rate)
		b.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			// Re-check under the lock; a concurrent caller may have
			// taken the refilled token first.
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Tokens reports the current token count after refill. Used by the
// operational snapshot endpoint.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(time.Now())
	return b.tokens
}

// Registry hands out one shared bucket per provider name.
type Registry struct {
	mu      sync.Mutex
	buckets map[string]*Bucket
}

// NewRegistry creates an empty bucket registry.
func NewRegistry() *Registry {
	return &Registry{buckets: make(map[string]*Bucket)}
}

// Get returns the bucket for name, creating it with the given limits on
// first use. Limits of an existing bucket are not changed.
func (r *Registry) Get(name string, rate float64, period time.Duration) *Bucket {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.buckets[name]; ok {
		return b
	}
	b := NewBucket(rate, period)
	r.buckets[name] = b
	return b
}

// Snapshot reports current token levels by provider name.
func (r *Registry) Snapshot() map[string]float64 {
	r.mu.Lock()
	names := make(map[string]*Bucket, len(r.buckets))
	for name, b := range r.buckets {
		names[name] = b
	}
	r.mu.Unlock()

	out := make(map[string]float64, len(names))
	for name, b := range names {
		out[name] = b.Tokens()
	}
	return out
}
