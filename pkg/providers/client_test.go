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
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wandercast/wandercast/pkg/content"
	"github.com/wandercast/wandercast/pkg/store"
)

type echoItem struct {
	Title string `json:"title"`
}

func echoBuild(q Query) (string, url.Values) {
	params := url.Values{}
	params.Set("q", q.Text)
	return "", params
}

func echoTransform(q Query, payload []byte) ([]*content.CandidateItem, error) {
	var raw []echoItem
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	items := make([]*content.CandidateItem, 0, len(raw))
	for _, r := range raw {
		item := &content.CandidateItem{
			Title:      r.Title,
			SourceName: "echo",
		}
		item.Fingerprint = content.Fingerprint(item.Title, item.SourceName, "")
		items = append(items, item)
	}
	return items, nil
}

func newTestClient(t *testing.T, serverURL string, cache store.CacheRepo, mutate func(*content.ProviderDescriptor)) *Client {
	t.Helper()

	desc := content.ProviderDescriptor{
		Name:       "echo",
		Category:   content.CategoryCultural,
		Tier:       content.TierFree,
		BaseURL:    serverURL,
		RateLimit:  1000,
		RatePeriod: time.Second,
		CacheTTL:   time.Minute,
		Timeout:    2 * time.Second,
		MaxRetries: 2,
	}
	if mutate != nil {
		mutate(&desc)
	}

	c, err := NewClient(Config{
		Descriptor:  desc,
		Build:       echoBuild,
		Transform:   echoTransform,
		Cache:       cache,
		Logger:      zaptest.NewLogger(t),
		BackoffBase: time.Millisecond,
		BackoffCap:  5 * time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestClient_SearchAndCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "lisbon", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`[{"title":"Tower of Belem"}]`))
	}))
	defer srv.Close()

	cache := store.NewMemoryCache()
	c := newTestClient(t, srv.URL, cache, nil)
	ctx := context.Background()

	items, meta, err := c.Search(ctx, Query{Text: "lisbon"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Tower of Belem", items[0].Title)
	assert.NotEmpty(t, items[0].Fingerprint)
	assert.False(t, meta.Cached)
	assert.True(t, meta.ReplyReceived)

	// Second identical search is served from the cache.
	items, meta, err = c.Search(ctx, Query{Text: "lisbon"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, meta.Cached)
	assert.Zero(t, meta.Cost)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`[{"title":"ok"}]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil, nil)

	items, meta, err := c.Search(context.Background(), Query{Text: "x"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, meta.ReplyReceived)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_RetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil, nil)

	_, meta, err := c.Search(context.Background(), Query{Text: "x"})
	require.Error(t, err)
	assert.Equal(t, KindTransport, KindOf(err))
	assert.True(t, TripsBreaker(err))
	assert.True(t, meta.ReplyReceived)
}

func TestClient_AuthFailureDisables(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil, nil)
	ctx := context.Background()

	_, _, err := c.Search(ctx, Query{Text: "x"})
	require.Error(t, err)
	assert.Equal(t, KindAuthFailure, KindOf(err))
	assert.False(t, TripsBreaker(err))
	assert.True(t, c.Disabled())
	assert.False(t, c.Available())

	// Subsequent calls fail fast without touching the network.
	_, _, err = c.Search(ctx, Query{Text: "y"})
	require.Error(t, err)
	assert.Equal(t, KindAuthFailure, KindOf(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_UpstreamRateLimitHonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	var secondCall time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		secondCall = time.Now()
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil, nil)
	// Retry-After of 1s exceeds the cap, so the wait is clamped to the cap.
	c.backoffCap = 50 * time.Millisecond

	start := time.Now()
	_, _, err := c.Search(context.Background(), Query{Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.GreaterOrEqual(t, secondCall.Sub(start), 50*time.Millisecond)
}

func TestClient_ClientErrorDoesNotRetryOrTrip(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil, nil)

	_, meta, err := c.Search(context.Background(), Query{Text: "x"})
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))
	assert.False(t, TripsBreaker(err))
	assert.Equal(t, int32(1), calls.Load())
	// The upstream answered, so the call still costs money.
	assert.True(t, meta.ReplyReceived)
}

func TestClient_ParseFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`this is not json`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil, nil)

	_, _, err := c.Search(context.Background(), Query{Text: "x"})
	require.Error(t, err)
	assert.Equal(t, KindParseFailure, KindOf(err))
	assert.True(t, TripsBreaker(err))
}

func TestClient_TransportFailureCostsNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening

	c := newTestClient(t, srv.URL, nil, func(d *content.ProviderDescriptor) {
		d.CostPerRequest = 0.01
		d.MaxRetries = 0
	})

	_, meta, err := c.Search(context.Background(), Query{Text: "x"})
	require.Error(t, err)
	assert.Equal(t, KindTransport, KindOf(err))
	assert.False(t, meta.ReplyReceived)
	assert.Zero(t, meta.Cost)
}

func TestClient_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := c.Search(ctx, Query{Text: "x"})
	require.Error(t, err)
	assert.Equal(t, KindCancelled, KindOf(err))
	assert.False(t, TripsBreaker(err))
}

func TestClient_MissingKeyMeansUnavailable(t *testing.T) {
	c := newTestClient(t, "http://example.invalid", nil, func(d *content.ProviderDescriptor) {
		d.AuthMode = content.AuthQueryKey
		d.AuthName = "key"
		d.KeyEnvVar = "WANDERCAST_TEST_NO_SUCH_KEY"
	})
	assert.False(t, c.Available())
	assert.False(t, c.Disabled())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	wrapped := NewError(KindBudgetExceeded, "p", errors.New("over"))
	assert.Equal(t, KindBudgetExceeded, KindOf(wrapped))
}
