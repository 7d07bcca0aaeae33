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

// Package janitor runs the periodic background maintenance: cache pruning
// and the owner budget sweep.
package janitor

import (
	"errors"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/wandercast/wandercast/pkg/costs"
)

// Pruner is a cache that can drop its expired entries.
type Pruner interface {
	Prune() int
}

// Config assembles a janitor.
type Config struct {
	// Caches to prune on PruneSchedule. A Redis-backed cache contributes
	// its in-process fallback map here.
	Caches []Pruner

	// Ledger to sweep on SweepSchedule.
	Ledger *costs.Ledger

	// Budget resolves the per-owner spending budget for the sweep. Defaults
	// to the free-tier budget for every owner.
	Budget func(owner string) float64

	// Cron expressions; defaults prune every 5 minutes and sweep hourly.
	PruneSchedule string
	SweepSchedule string

	Logger *zap.Logger
}

// Janitor owns the cron scheduler for background maintenance.
type Janitor struct {
	cron   *cron.Cron
	caches []Pruner
	ledger *costs.Ledger
	budget func(owner string) float64
	logger *zap.Logger
}

// New wires the maintenance jobs onto a cron scheduler. Start must be
// called to begin running them.
func New(cfg Config) (*Janitor, error) {
	if len(cfg.Caches) == 0 && cfg.Ledger == nil {
		return nil, errors.New("janitor requires at least one cache or a ledger")
	}
	if cfg.PruneSchedule == "" {
		cfg.PruneSchedule = "@every 5m"
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = "@every 1h"
	}
	if cfg.Budget == nil {
		cfg.Budget = func(string) float64 {
			return costs.BudgetForTier("free").MaxCostPerRequest
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	j := &Janitor{
		cron:   cron.New(),
		caches: cfg.Caches,
		ledger: cfg.Ledger,
		budget: cfg.Budget,
		logger: cfg.Logger,
	}

	if len(j.caches) > 0 {
		if _, err := j.cron.AddFunc(cfg.PruneSchedule, j.pruneCaches); err != nil {
			return nil, err
		}
	}
	if j.ledger != nil {
		if _, err := j.cron.AddFunc(cfg.SweepSchedule, j.sweepBudgets); err != nil {
			return nil, err
		}
	}
	return j, nil
}

// Start begins running the scheduled jobs.
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts the scheduler and waits for any running job to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// pruneCaches drops expired entries from every registered cache.
func (j *Janitor) pruneCaches() {
	removed := 0
	for _, c := range j.caches {
		removed += c.Prune()
	}
	if removed > 0 {
		j.logger.Debug("pruned expired cache entries", zap.Int("removed", removed))
	}
}

// sweepBudgets logs every owner whose accumulated spend sits above the
// warning threshold of their budget. The sweep observes; the ledger's Check
// is what actually denies calls.
func (j *Janitor) sweepBudgets() {
	for owner, total := range j.ledger.Owners() {
		budget := j.budget(owner)
		if budget <= 0 {
			continue
		}
		if total >= costs.WarningThreshold*budget {
			j.logger.Warn("owner spend above warning threshold",
				zap.String("owner", owner),
				zap.Float64("spent", total),
				zap.Float64("budget", budget),
			)
		}
	}
	j.logger.Debug("budget sweep complete",
		zap.Int("owners", len(j.ledger.Owners())),
		zap.Float64("total", j.ledger.Total()),
	)
}
