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
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wandercast/wandercast/pkg/content"
	"github.com/wandercast/wandercast/pkg/costs"
	"github.com/wandercast/wandercast/pkg/providers"
	"github.com/wandercast/wandercast/pkg/research"
	"github.com/wandercast/wandercast/pkg/scoring"
	"github.com/wandercast/wandercast/pkg/store"
)

type stubItem struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Authority string `json:"authority"`
	Date      string `json:"date"`
}

func stubTransform(source string) providers.Transform {
	return func(q providers.Query, payload []byte) ([]*content.CandidateItem, error) {
		var raw []stubItem
		if err := json.Unmarshal(payload, &raw); err != nil {
			return nil, err
		}
		items := make([]*content.CandidateItem, 0, len(raw))
		for _, r := range raw {
			item := &content.CandidateItem{
				Title:           r.Title,
				Body:            r.Body,
				SourceName:      source,
				SourceAuthority: r.Authority,
				Date:            r.Date,
				Kind:            "place",
			}
			item.Fingerprint = content.Fingerprint(item.Title, item.SourceName, item.Date)
			items = append(items, item)
		}
		return items, nil
	}
}

// newStubProvider registers a provider backed by an httptest server that
// serves the given items.
func newStubProvider(t *testing.T, registry *providers.Registry, name string, tier content.ProviderTier, cost float64, items []stubItem) *httptest.Server {
	t.Helper()

	payload, err := json.Marshal(items)
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)

	registerStub(t, registry, name, tier, cost, srv.URL)
	return srv
}

func registerStub(t *testing.T, registry *providers.Registry, name string, tier content.ProviderTier, cost float64, baseURL string) {
	t.Helper()

	client, err := providers.NewClient(providers.Config{
		Descriptor: content.ProviderDescriptor{
			Name:           name,
			Category:       content.CategoryCultural,
			Tier:           tier,
			BaseURL:        baseURL,
			RateLimit:      1000,
			RatePeriod:     time.Second,
			CostPerRequest: cost,
			Timeout:        time.Second,
			MaxRetries:     0,
		},
		Build: func(q providers.Query) (string, url.Values) {
			params := url.Values{}
			params.Set("q", q.Text)
			return "", params
		},
		Transform:   stubTransform(name),
		Logger:      zaptest.NewLogger(t),
		BackoffBase: time.Millisecond,
		BackoffCap:  2 * time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, registry.Register(client))
}

func newTestOrchestrator(t *testing.T, registry *providers.Registry, prefs store.PreferenceRepo, res DeepResearcher) *Orchestrator {
	t.Helper()

	o, err := New(Config{
		Registry:   registry,
		Breakers:   NewBreakerRegistry(),
		Ledger:     costs.NewLedger(zaptest.NewLogger(t)),
		Preference: scoring.NewPreferenceAdapter(prefs, zaptest.NewLogger(t)),
		Researcher: res,
		Logger:     zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return o
}

func TestRun_PlaceFanout(t *testing.T) {
	registry := providers.NewRegistry()
	newStubProvider(t, registry, "alpha", content.TierFree, 0, []stubItem{
		{Title: "Old Lighthouse", Body: "The only lighthouse of its kind, hidden from the coast road.", Authority: "government", Date: "1877"},
		{Title: "Harbor market", Body: "A weekly market.", Authority: "community"},
	})
	newStubProvider(t, registry, "beta", content.TierFree, 0, []stubItem{
		{Title: "Old Lighthouse", Body: "Duplicate from another source.", Authority: "museum", Date: "1877"},
		{Title: "Cliff walk", Body: "A coastal path.", Authority: "community"},
	})

	o := newTestOrchestrator(t, registry, nil, nil)
	var checkpoints []int
	result, err := o.Run(context.Background(), Request{
		Query:     "lighthouse town",
		Kind:      content.RequestPlace,
		OwnerTier: "free",
		Progress:  func(p int) { checkpoints = append(checkpoints, p) },
	})
	require.NoError(t, err)

	// The duplicate title collapses; three distinct items survive.
	require.Len(t, result.Items, 3)
	assert.Equal(t, []int{10, 40, 70, 90}, checkpoints)
	assert.Equal(t, content.RequestPlace, result.Kind)
	assert.Len(t, result.Sources, 2)

	// The merged lighthouse carries both authority classes.
	var lighthouse *content.RankedItem
	for i := range result.Items {
		if result.Items[i].Title == "Old Lighthouse" {
			lighthouse = &result.Items[i]
		}
	}
	require.NotNil(t, lighthouse)
	assert.Contains(t, lighthouse.SourceAuthority, "government")
	assert.Contains(t, lighthouse.SourceAuthority, "museum")

	// Ranked output is ordered by the documented composite.
	for i := 1; i < len(result.Items); i++ {
		prev, cur := result.Items[i-1], result.Items[i]
		assert.GreaterOrEqual(t, prev.PersonalScore, cur.PersonalScore)
	}
}

func TestRun_SingleFailureIsNotFatal(t *testing.T) {
	registry := providers.NewRegistry()
	newStubProvider(t, registry, "alpha", content.TierFree, 0, []stubItem{
		{Title: "Town square", Authority: "community"},
	})

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(broken.Close)
	registerStub(t, registry, "beta", content.TierFree, 0, broken.URL)

	o := newTestOrchestrator(t, registry, nil, nil)
	result, err := o.Run(context.Background(), Request{Query: "town", Kind: content.RequestPlace, OwnerTier: "free"})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)

	errored := 0
	for _, s := range result.Sources {
		if s.ErrorKind != "" {
			errored++
			assert.Equal(t, string(providers.KindTransport), s.ErrorKind)
		}
	}
	assert.Equal(t, 1, errored)
}

func TestRun_NoSources(t *testing.T) {
	registry := providers.NewRegistry()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(broken.Close)
	registerStub(t, registry, "alpha", content.TierFree, 0, broken.URL)

	o := newTestOrchestrator(t, registry, nil, nil)
	_, err := o.Run(context.Background(), Request{Query: "town", Kind: content.RequestPlace, OwnerTier: "free"})
	require.Error(t, err)
	assert.Equal(t, providers.KindNoSources, providers.KindOf(err))
}

func TestRun_BudgetStopsPaidCalls(t *testing.T) {
	registry := providers.NewRegistry()
	newStubProvider(t, registry, "free1", content.TierFree, 0, []stubItem{
		{Title: "Free fact", Authority: "community"},
	})
	newStubProvider(t, registry, "paid1", content.TierFreemium, 0.50, []stubItem{
		{Title: "Paid fact", Authority: "commercial"},
	})

	ledger := costs.NewLedger(zaptest.NewLogger(t))
	o, err := New(Config{
		Registry: registry,
		Ledger:   ledger,
		Logger:   zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	// Free tier allows at most $0.05 per request; the $0.50 call is denied
	// but the free contribution still comes back.
	result, err := o.Run(context.Background(), Request{
		Query: "town", Kind: content.RequestPlace, OwnerID: "u1", OwnerTier: "free",
	})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "Free fact", result.Items[0].Title)
	assert.Zero(t, ledger.OwnerTotal("u1"))

	var paidSummary *content.SourceSummary
	for i := range result.Sources {
		if result.Sources[i].Provider == "paid1" {
			paidSummary = &result.Sources[i]
		}
	}
	require.NotNil(t, paidSummary)
	assert.Equal(t, string(providers.KindBudgetExceeded), paidSummary.ErrorKind)
}

func TestRun_BudgetIsPerRequest(t *testing.T) {
	registry := providers.NewRegistry()
	newStubProvider(t, registry, "paid1", content.TierFreemium, 0.04, []stubItem{
		{Title: "Paid fact", Authority: "commercial"},
	})

	ledger := costs.NewLedger(zaptest.NewLogger(t))
	o, err := New(Config{Registry: registry, Ledger: ledger, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	ctx := context.Background()

	// Each request spends $0.04 against the free tier's $0.05 cap. The cap
	// applies per request, so accumulated lifetime spend never locks the
	// owner out of later requests.
	for i := 0; i < 2; i++ {
		result, err := o.Run(ctx, Request{
			Query: "town", Kind: content.RequestPlace, OwnerID: "u1", OwnerTier: "free",
		})
		require.NoError(t, err)
		require.Len(t, result.Items, 1)
		for _, s := range result.Sources {
			assert.Empty(t, s.ErrorKind)
		}
	}
	assert.InDelta(t, 0.08, ledger.OwnerTotal("u1"), 1e-9)
}

func TestRun_PaidCallTracksCost(t *testing.T) {
	registry := providers.NewRegistry()
	newStubProvider(t, registry, "paid1", content.TierFreemium, 0.01, []stubItem{
		{Title: "Archive entry", Authority: "museum"},
	})

	ledger := costs.NewLedger(zaptest.NewLogger(t))
	o, err := New(Config{Registry: registry, Ledger: ledger, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	result, err := o.Run(context.Background(), Request{
		Query: "archive", Kind: content.RequestPlace, OwnerID: "u1", OwnerTier: "premium",
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.01, ledger.OwnerTotal("u1"), 1e-9)
	assert.InDelta(t, 0.01, result.TotalCost, 1e-9)
}

func TestRun_PersonalizationChangesOrder(t *testing.T) {
	registry := providers.NewRegistry()
	newStubProvider(t, registry, "alpha", content.TierFree, 0, []stubItem{
		{Title: "The impossible floating stone, the only one of its kind", Body: "A sacred ritual surrounds this hidden, bizarre site.", Authority: "community"},
		{Title: "City library opening hours", Body: "Open weekdays.", Authority: "government"},
	})

	prefs := store.NewMemoryPreferenceRepo()
	prefs.SetSurprise("cautious", 0)
	o := newTestOrchestrator(t, registry, prefs, nil)
	ctx := context.Background()

	base, err := o.Run(ctx, Request{Query: "stones", Kind: content.RequestPlace, OwnerTier: "free"})
	require.NoError(t, err)
	personalized, err := o.Run(ctx, Request{Query: "stones", Kind: content.RequestPlace, OwnerID: "cautious", OwnerTier: "free"})
	require.NoError(t, err)

	findScore := func(rs *content.ResultSet, title string) float64 {
		for _, item := range rs.Items {
			if item.Title == title {
				return item.PersonalScore
			}
		}
		t.Fatalf("item %q not found", title)
		return 0
	}

	title := "The impossible floating stone, the only one of its kind"
	assert.Less(t, findScore(personalized, title), findScore(base, title))
}

type fakeResearcher struct {
	item     *content.CandidateItem
	artifact *research.Artifact
	err      error
	cost     float64 // flat estimate override; 0 means the depth-scaled default
	calls    int
	depth    int
}

func (f *fakeResearcher) Available() bool { return true }

func (f *fakeResearcher) Cost(depth int) float64 {
	if f.cost > 0 {
		return f.cost
	}
	return 0.01 * float64(depth)
}
func (f *fakeResearcher) Research(ctx context.Context, query string, depth int, focus []string) (*content.CandidateItem, *research.Artifact, error) {
	f.calls++
	f.depth = depth
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.item, f.artifact, nil
}

func TestRun_QuestionDelegatesToResearch(t *testing.T) {
	item := &content.CandidateItem{
		Title:           "Why did the Roman Empire fall?",
		Body:            "A structured research brief on the fall of Rome, assembled from academic sources.",
		SourceName:      "research",
		SourceAuthority: "research",
		Kind:            "research",
	}
	item.Fingerprint = content.Fingerprint(item.Title, item.SourceName, "")
	fake := &fakeResearcher{item: item, artifact: &research.Artifact{Overview: "o", Confidence: 0.8}}

	registry := providers.NewRegistry()
	o := newTestOrchestrator(t, registry, nil, fake)

	result, err := o.Run(context.Background(), Request{
		Query: "Why did the Roman Empire fall?", Kind: content.RequestPlace, OwnerID: "u1", OwnerTier: "premium",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, research.DefaultDepth, fake.depth)
	require.Len(t, result.Items, 1)
	assert.Equal(t, content.RequestQuestion, result.Kind)
	assert.Equal(t, "research", result.Items[0].SourceName)
	assert.GreaterOrEqual(t, result.Items[0].Quality.Confidence, 0.5)
	assert.Greater(t, result.TotalCost, 0.0)
}

func TestRun_QuestionWithoutResearcherDegrades(t *testing.T) {
	registry := providers.NewRegistry()
	newStubProvider(t, registry, "alpha", content.TierFree, 0, []stubItem{
		{Title: "Fall of Rome overview", Authority: "community"},
	})

	o := newTestOrchestrator(t, registry, nil, nil)
	result, err := o.Run(context.Background(), Request{
		Query: "Why did the Roman Empire fall?", Kind: content.RequestPlace, OwnerTier: "free",
	})
	require.NoError(t, err)
	assert.Equal(t, content.RequestTopic, result.Kind)
	require.Len(t, result.Items, 1)
}

func TestRun_QuestionOverBudgetDegrades(t *testing.T) {
	fake := &fakeResearcher{cost: 1.0}
	registry := providers.NewRegistry()
	newStubProvider(t, registry, "alpha", content.TierFree, 0, []stubItem{
		{Title: "Fall of Rome overview", Authority: "community"},
	})

	o := newTestOrchestrator(t, registry, nil, fake)
	result, err := o.Run(context.Background(), Request{
		Query: "Why did the Roman Empire fall?", Kind: content.RequestPlace, OwnerID: "u1", OwnerTier: "free",
	})

	// A research estimate over the tier budget falls back to the free
	// fan-out instead of failing the job.
	require.NoError(t, err)
	assert.Equal(t, 0, fake.calls)
	assert.Equal(t, content.RequestTopic, result.Kind)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "Fall of Rome overview", result.Items[0].Title)
}

func TestRun_ResearchFailure(t *testing.T) {
	fake := &fakeResearcher{err: errors.New("endpoint down")}
	o := newTestOrchestrator(t, providers.NewRegistry(), nil, fake)

	_, err := o.Run(context.Background(), Request{
		Query: "Why did the Roman Empire fall?", OwnerTier: "premium",
	})
	require.Error(t, err)
	assert.Equal(t, providers.KindNoSources, providers.KindOf(err))
}

func TestRun_Cancellation(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(slow.Close)

	registry := providers.NewRegistry()
	registerStub(t, registry, "slow", content.TierFree, 0, slow.URL)

	o := newTestOrchestrator(t, registry, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := o.Run(ctx, Request{Query: "town", Kind: content.RequestPlace, OwnerTier: "free"})
	require.Error(t, err)
	assert.Equal(t, providers.KindCancelled, providers.KindOf(err))
}

func TestStrategyFor(t *testing.T) {
	tests := []struct {
		kind content.RequestKind
		min  int
		max  int
		want time.Duration
	}{
		{content.RequestPlace, 2, 5, 5 * time.Second},
		{content.RequestStandout, 3, 7, 8 * time.Second},
		{content.RequestTopic, 2, 4, 6 * time.Second},
		{content.RequestEnrichment, 1, 3, 4 * time.Second},
		{content.RequestKind("mystery"), 2, 5, 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s", tt.kind), func(t *testing.T) {
			s := strategyFor(tt.kind)
			assert.Equal(t, tt.min, s.MinSources)
			assert.Equal(t, tt.max, s.MaxSources)
			assert.Equal(t, tt.want, s.Timeout)
		})
	}
}
