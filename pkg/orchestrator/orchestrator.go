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

// Package orchestrator runs the provider fan-out: strategy selection,
// concurrent acquisition guarded by budget and breaker, deduplication,
// scoring, personalization, and ranking.
package orchestrator

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wandercast/wandercast/pkg/breaker"
	"github.com/wandercast/wandercast/pkg/content"
	"github.com/wandercast/wandercast/pkg/costs"
	"github.com/wandercast/wandercast/pkg/providers"
	"github.com/wandercast/wandercast/pkg/research"
	"github.com/wandercast/wandercast/pkg/scoring"
)

// Progress checkpoints reported to the job controller.
const (
	ProgressStrategyChosen  = 10
	ProgressFanoutComplete  = 40
	ProgressScoringComplete = 70
	ProgressPersonalized    = 90
)

// ProgressFunc receives checkpoint updates during a run. May be nil.
type ProgressFunc func(percent int)

// Request is one acquisition request.
type Request struct {
	Query     string
	Kind      content.RequestKind
	OwnerID   string
	OwnerTier string
	Location  *content.Location
	Overrides *scoring.Overrides
	Progress  ProgressFunc
}

// DeepResearcher is the slice of the research package the orchestrator
// needs; satisfied by *research.Researcher.
type DeepResearcher interface {
	Available() bool
	Cost(depth int) float64
	Research(ctx context.Context, query string, depth int, focusAreas []string) (*content.CandidateItem, *research.Artifact, error)
}

// Config assembles an orchestrator.
type Config struct {
	Registry   *providers.Registry
	Breakers   *breaker.Registry
	Ledger     *costs.Ledger
	Quality    *scoring.QualityAssessor
	Standout   *scoring.StandoutScorer
	Preference *scoring.PreferenceAdapter
	Researcher DeepResearcher
	Logger     *zap.Logger
}

// Orchestrator coordinates one fan-out per Run call. It is stateless across
// runs; all shared state lives in the registries and the ledger.
type Orchestrator struct {
	registry   *providers.Registry
	breakers   *breaker.Registry
	ledger     *costs.Ledger
	quality    *scoring.QualityAssessor
	standout   *scoring.StandoutScorer
	preference *scoring.PreferenceAdapter
	researcher DeepResearcher
	logger     *zap.Logger
}

// NewBreakerRegistry creates a breaker registry classifying failures the
// way the fan-out needs: only transport and parse failures trip a circuit.
func NewBreakerRegistry() *breaker.Registry {
	return breaker.NewRegistry(breaker.Config{IsFailure: providers.TripsBreaker})
}

// New builds an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Registry == nil {
		return nil, errors.New("orchestrator requires a provider registry")
	}
	if cfg.Breakers == nil {
		cfg.Breakers = breaker.NewRegistry(breaker.Config{IsFailure: providers.TripsBreaker})
	}
	if cfg.Ledger == nil {
		cfg.Ledger = costs.NewLedger(nil)
	}
	if cfg.Quality == nil {
		cfg.Quality = scoring.NewQualityAssessor()
	}
	if cfg.Standout == nil {
		cfg.Standout = scoring.NewStandoutScorer()
	}
	if cfg.Preference == nil {
		cfg.Preference = scoring.NewPreferenceAdapter(nil, nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Orchestrator{
		registry:   cfg.Registry,
		breakers:   cfg.Breakers,
		ledger:     cfg.Ledger,
		quality:    cfg.Quality,
		standout:   cfg.Standout,
		preference: cfg.Preference,
		researcher: cfg.Researcher,
		logger:     cfg.Logger,
	}, nil
}

// contribution is one provider's settled outcome.
type contribution struct {
	client  *providers.Client
	items   []*content.CandidateItem
	meta    providers.CallMeta
	err     error
	skipped bool
}

// requestSpend accumulates the paid spend of one fan-out. The per-request
// budget cap is checked against this, not against the owner's lifetime
// totals.
type requestSpend struct {
	mu    sync.Mutex
	total float64
}

func (s *requestSpend) Add(amount float64) {
	s.mu.Lock()
	s.total += amount
	s.mu.Unlock()
}

func (s *requestSpend) Total() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Run executes one acquisition request end to end and returns the ranked
// result set.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*content.ResultSet, error) {
	if classification := research.Classify(req.Query); classification.IsQuestion {
		switch {
		case o.researcher == nil || !o.researcher.Available():
			// Degrade to a topic fan-out when no research endpoint is
			// configured; a missing key never fails the request outright.
			o.logger.Warn("question query without research endpoint, degrading to fan-out",
				zap.String("query", req.Query))
			req.Kind = content.RequestTopic
		default:
			result, err := o.runResearch(ctx, req)
			if providers.KindOf(err) != providers.KindBudgetExceeded {
				return result, err
			}
			// A budget deny is not a job failure: fall back to the free
			// fan-out, same as a missing key.
			o.logger.Warn("research denied by budget, degrading to fan-out",
				zap.String("query", req.Query))
			req.Kind = content.RequestTopic
		}
	}

	budget := costs.BudgetForTier(req.OwnerTier)
	strat := strategyFor(req.Kind)
	primary := compose(strat, budget, o.registry)
	spend := &requestSpend{}
	report(req.Progress, ProgressStrategyChosen)

	contributions := o.fanOut(ctx, req, strat, primary, budget, spend)

	succeeded := 0
	for _, c := range contributions {
		if c.err == nil && !c.skipped {
			succeeded++
		}
	}
	if succeeded < strat.MinSources {
		contributions = append(contributions,
			o.fallbackRound(ctx, req, strat, primary, budget, spend, strat.MinSources-succeeded)...)
	}
	report(req.Progress, ProgressFanoutComplete)

	if err := ctx.Err(); err != nil {
		return nil, providers.NewError(providers.KindCancelled, "", err)
	}

	candidates, summaries, totalCost := o.aggregate(contributions)
	if len(candidates) == 0 {
		return nil, providers.NewError(providers.KindNoSources, "",
			errors.New("no provider returned content and nothing was cached"))
	}

	ranked := o.score(candidates)
	report(req.Progress, ProgressScoringComplete)

	o.personalize(ctx, req, ranked)
	report(req.Progress, ProgressPersonalized)

	o.sortRanked(ranked)
	return &content.ResultSet{
		Items:     ranked,
		Sources:   summaries,
		TotalCost: totalCost,
		Query:     req.Query,
		Kind:      strat.Kind,
	}, nil
}

// fanOut issues the primary calls concurrently under the strategy deadline.
func (o *Orchestrator) fanOut(ctx context.Context, req Request, strat Strategy, primary []*providers.Client, budget costs.BudgetConfig, spend *requestSpend) []contribution {
	fanCtx, cancel := context.WithTimeout(ctx, strat.Timeout)
	defer cancel()

	contributions := make([]contribution, len(primary))
	g, gctx := errgroup.WithContext(fanCtx)
	for i, client := range primary {
		g.Go(func() error {
			contributions[i] = o.callOne(gctx, req, client, budget, spend)
			return nil
		})
	}
	_ = g.Wait()
	return contributions
}

// fallbackRound issues remaining clients sequentially until `needed` more
// successes arrive or the candidates run out.
func (o *Orchestrator) fallbackRound(ctx context.Context, req Request, strat Strategy, primary []*providers.Client, budget costs.BudgetConfig, spend *requestSpend, needed int) []contribution {
	var out []contribution
	for _, client := range fallbacks(primary, o.registry) {
		if needed <= 0 || ctx.Err() != nil {
			break
		}
		callCtx, cancel := context.WithTimeout(ctx, strat.Timeout)
		c := o.callOne(callCtx, req, client, budget, spend)
		cancel()

		out = append(out, c)
		if c.err == nil && !c.skipped {
			needed--
		}
	}
	return out
}

// callOne runs the per-call pipeline: cost check, breaker guard, then the
// client's cache/rate-limit/HTTP flow. Every outcome is recorded; no error
// escapes the contribution.
func (o *Orchestrator) callOne(ctx context.Context, req Request, client *providers.Client, budget costs.BudgetConfig, spend *requestSpend) contribution {
	c := contribution{client: client}
	desc := client.Descriptor()

	if desc.CostPerRequest > 0 {
		decision := o.ledger.Check(req.OwnerID, spend.Total(), desc.CostPerRequest, budget.MaxCostPerRequest)
		if decision == costs.Deny {
			c.err = providers.NewError(providers.KindBudgetExceeded, desc.Name,
				errors.New("budget exhausted"))
			c.skipped = true
			return c
		}
	}

	br := o.breakers.Get(desc.Name)
	err := br.Call(func() error {
		items, meta, searchErr := client.Search(ctx, providers.Query{
			Text:     req.Query,
			Kind:     req.Kind,
			Location: req.Location,
		})
		c.items = items
		c.meta = meta
		return searchErr
	})
	if err != nil {
		if errors.Is(err, breaker.ErrCircuitOpen) {
			err = providers.NewError(providers.KindCircuitOpen, desc.Name, err)
			c.skipped = true
		}
		c.err = err
	}

	// Money was spent whenever an HTTP reply arrived, success or not.
	if c.meta.ReplyReceived && c.meta.Cost > 0 {
		spend.Add(c.meta.Cost)
		o.ledger.Track(desc.Name, c.meta.Cost, req.OwnerID, "search", c.err == nil)
	}

	if c.err != nil {
		o.logger.Debug("provider contribution failed",
			zap.String("provider", desc.Name),
			zap.String("kind", string(providers.KindOf(c.err))),
			zap.Error(c.err),
		)
	}
	return c
}

// aggregate merges contributions: dedup by fingerprint with a
// case-insensitive title pass, building per-source summaries as it goes.
func (o *Orchestrator) aggregate(contributions []contribution) ([]*content.CandidateItem, []content.SourceSummary, float64) {
	var (
		candidates []*content.CandidateItem
		summaries  []content.SourceSummary
		totalCost  float64

		byFingerprint = make(map[string]*content.CandidateItem)
		byTitle       = make(map[string]*content.CandidateItem)
	)

	for _, c := range contributions {
		desc := c.client.Descriptor()
		summary := content.SourceSummary{
			Provider:  desc.Name,
			Items:     len(c.items),
			LatencyMs: c.meta.Elapsed.Milliseconds(),
			Cost:      c.meta.Cost,
			Cached:    c.meta.Cached,
			Tier:      desc.Tier,
			Elapsed:   c.meta.Elapsed,
		}
		if c.err != nil {
			summary.ErrorKind = string(providers.KindOf(c.err))
		}
		summaries = append(summaries, summary)
		totalCost += c.meta.Cost

		if c.err != nil {
			continue
		}
		for _, item := range c.items {
			title := strings.ToLower(strings.TrimSpace(item.Title))
			if existing, ok := byTitle[title]; ok && title != "" {
				mergeAuthority(existing, item)
				continue
			}
			if _, ok := byFingerprint[item.Fingerprint]; ok {
				continue
			}
			byFingerprint[item.Fingerprint] = item
			if title != "" {
				byTitle[title] = item
			}
			candidates = append(candidates, item)
		}
	}
	return candidates, summaries, totalCost
}

// mergeAuthority folds a duplicate's authority class and media into the
// surviving item so cross-source corroboration is not lost.
func mergeAuthority(dst, src *content.CandidateItem) {
	if src.SourceAuthority != "" && !strings.Contains(dst.SourceAuthority, src.SourceAuthority) {
		dst.SourceAuthority = dst.SourceAuthority + "," + src.SourceAuthority
	}
	if len(dst.Media) == 0 {
		dst.Media = src.Media
	}
	if dst.Body == "" {
		dst.Body = src.Body
	}
	if dst.Date == "" {
		dst.Date = src.Date
	}
}

func (o *Orchestrator) score(candidates []*content.CandidateItem) []content.RankedItem {
	ranked := make([]content.RankedItem, 0, len(candidates))
	for _, item := range candidates {
		quality := o.quality.Assess(item, candidates)
		standout := o.standout.Score(item, candidates)
		ranked = append(ranked, content.RankedItem{
			CandidateItem: *item,
			Quality:       quality,
			Standout:      standout,
			PersonalScore: standout.Personalized,
		})
	}
	return ranked
}

func (o *Orchestrator) personalize(ctx context.Context, req Request, ranked []content.RankedItem) {
	for i := range ranked {
		ranked[i].PersonalScore = o.preference.Personalize(
			ctx, req.OwnerID, req.Overrides, &ranked[i].CandidateItem, &ranked[i].Standout)
	}
}

// sortRanked orders items by personalized standout, then overall quality,
// then source name for stability.
func (o *Orchestrator) sortRanked(ranked []content.RankedItem) {
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].PersonalScore != ranked[j].PersonalScore {
			return ranked[i].PersonalScore > ranked[j].PersonalScore
		}
		if ranked[i].Quality.Overall != ranked[j].Quality.Overall {
			return ranked[i].Quality.Overall > ranked[j].Quality.Overall
		}
		return ranked[i].SourceName < ranked[j].SourceName
	})
}

// runResearch answers a question query with one deep research call and
// returns its single-candidate ranked set.
func (o *Orchestrator) runResearch(ctx context.Context, req Request) (*content.ResultSet, error) {
	budget := costs.BudgetForTier(req.OwnerTier)
	depth := o.preference.Depth(ctx, req.OwnerID, req.Overrides)

	estimated := o.researcher.Cost(depth)
	if o.ledger.Check(req.OwnerID, 0, estimated, budget.MaxCostPerRequest) == costs.Deny {
		return nil, providers.NewError(providers.KindBudgetExceeded, "research",
			errors.New("budget exhausted before research call"))
	}

	item, artifact, err := o.researcher.Research(ctx, req.Query, depth, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, providers.NewError(providers.KindCancelled, "research", ctx.Err())
		}
		return nil, providers.NewError(providers.KindNoSources, "research", err)
	}
	o.ledger.Track("research", estimated, req.OwnerID, "research", true)

	quality := o.quality.Assess(item, nil)
	if artifact.Confidence > quality.Confidence {
		quality.Confidence = artifact.Confidence
	}
	standout := o.standout.Score(item, nil)
	ranked := content.RankedItem{
		CandidateItem: *item,
		Quality:       quality,
		Standout:      standout,
		PersonalScore: o.preference.Personalize(ctx, req.OwnerID, req.Overrides, item, &standout),
	}
	ranked.Standout = standout

	return &content.ResultSet{
		Items: []content.RankedItem{ranked},
		Sources: []content.SourceSummary{{
			Provider: "research",
			Items:    1,
			Cost:     estimated,
		}},
		TotalCost: estimated,
		Query:     req.Query,
		Kind:      content.RequestQuestion,
	}, nil
}

func report(fn ProgressFunc, percent int) {
	if fn != nil {
		fn(percent)
	}
}
