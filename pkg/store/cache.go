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

package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// MemoryCache is an in-process CacheRepo with TTL expiry. It is both the
// development cache and the degradation target when Redis is unreachable.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryCacheEntry
}

type memoryCacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryCacheEntry)}
}

func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return nil, ErrNotFound
	}
	return entry.value, nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryCacheEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Prune drops expired entries and returns how many were removed. Invoked
// periodically by the janitor.
func (m *MemoryCache) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, entry := range m.entries {
		if now.After(entry.expiresAt) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of live entries (including not-yet-pruned expired
// ones); used by tests and the operational snapshot.
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

var _ CacheRepo = (*MemoryCache)(nil)

// RedisCache is a CacheRepo backed by Redis with an in-process fallback.
// Any Redis failure degrades to the fallback map; callers never see a
// backend outage.
type RedisCache struct {
	client   *redis.Client
	fallback *MemoryCache
	logger   *zap.Logger

	mu       sync.Mutex
	degraded bool
}

// NewRedisCache connects to addr. The connection is verified lazily; a dead
// backend only means every operation runs on the fallback.
func NewRedisCache(addr string, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{
		client:   redis.NewClient(&redis.Options{Addr: addr}),
		fallback: NewMemoryCache(),
		logger:   logger,
	}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, key).Bytes()
	if err == nil {
		r.markHealthy()
		return value, nil
	}
	if errors.Is(err, redis.Nil) {
		r.markHealthy()
		return nil, ErrNotFound
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	r.markDegraded(err)
	return r.fallback.Get(ctx, key)
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.markDegraded(err)
		return r.fallback.Set(ctx, key, value, ttl)
	}
	r.markHealthy()
	return nil
}

// Fallback exposes the in-process map so the janitor can prune it.
func (r *RedisCache) Fallback() *MemoryCache {
	return r.fallback
}

// Degraded reports whether the last Redis operation failed.
func (r *RedisCache) Degraded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.degraded
}

// Close releases the Redis connection.
func (r *RedisCache) Close() error {
	return r.client.Close()
}

func (r *RedisCache) markDegraded(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.degraded {
		r.logger.Warn("cache backend unreachable, degrading to in-process map", zap.Error(err))
	}
	r.degraded = true
}

func (r *RedisCache) markHealthy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.degraded {
		r.logger.Info("cache backend recovered")
	}
	r.degraded = false
}

var _ CacheRepo = (*RedisCache)(nil)
