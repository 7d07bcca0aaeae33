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
package janitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wandercast/wandercast/pkg/costs"
	"github.com/wandercast/wandercast/pkg/store"
)

func TestJanitor_PrunesCaches(t *testing.T) {
	cache := store.NewMemoryCache()
	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, "stale", []byte("v"), time.Millisecond))
	require.NoError(t, cache.Set(ctx, "fresh", []byte("v"), time.Hour))
	time.Sleep(5 * time.Millisecond)

	j, err := New(Config{
		Caches:        []Pruner{cache},
		PruneSchedule: "@every 10ms",
		Logger:        zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	j.Start()
	defer j.Stop()

	deadline := time.After(2 * time.Second)
	for cache.Len() != 1 {
		select {
		case <-deadline:
			t.Fatalf("cache never pruned, %d entries remain", cache.Len())
		case <-time.After(5 * time.Millisecond):
		}
	}

	_, err = cache.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestJanitor_SweepRuns(t *testing.T) {
	ledger := costs.NewLedger(zaptest.NewLogger(t))
	ledger.Track("europeana", 0.9, "spender", "search", true)

	j, err := New(Config{
		Ledger:        ledger,
		SweepSchedule: "@every 10ms",
		Budget:        func(string) float64 { return 1.0 },
		Logger:        zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	j.Start()
	time.Sleep(50 * time.Millisecond)
	j.Stop()

	// The sweep only observes; totals are untouched.
	assert.InDelta(t, 0.9, ledger.OwnerTotal("spender"), 1e-9)
}

func TestJanitor_RequiresWork(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestJanitor_RejectsBadSchedule(t *testing.T) {
	_, err := New(Config{
		Caches:        []Pruner{store.NewMemoryCache()},
		PruneSchedule: "not a schedule",
	})
	assert.Error(t, err)
}
