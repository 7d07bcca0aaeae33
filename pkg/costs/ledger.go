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

// Package costs tracks per-owner provider spend and enforces tier budgets.
package costs

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Alert thresholds as fractions of an owner budget.
const (
	WarningThreshold  = 0.80
	CriticalThreshold = 0.95
)

// Decision is the ledger's answer to "may this paid call be issued".
type Decision int

const (
	Allow Decision = iota
	Warn
	Deny
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Warn:
		return "warn"
	case Deny:
		return "deny"
	default:
		return "unknown"
	}
}

// BudgetConfig is the per-tier spending policy.
type BudgetConfig struct {
	MaxCostPerRequest  float64 `json:"max_cost_per_request"`
	PreferredFreeRatio float64 `json:"preferred_free_ratio"`
	MinQuality         float64 `json:"min_quality"`
}

// BudgetForTier returns the budget policy for a user tier. Unknown tiers
// get the free policy.
func BudgetForTier(tier string) BudgetConfig {
	switch tier {
	case "premium":
		return BudgetConfig{MaxCostPerRequest: 1.00, PreferredFreeRatio: 0.4, MinQuality: 0.5}
	case "plus":
		return BudgetConfig{MaxCostPerRequest: 0.25, PreferredFreeRatio: 0.6, MinQuality: 0.4}
	default: // free
		return BudgetConfig{MaxCostPerRequest: 0.05, PreferredFreeRatio: 0.8, MinQuality: 0.3}
	}
}

// Entry is one append-only spend record.
type Entry struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	Amount    float64   `json:"amount"`
	OwnerID   string    `json:"owner_id,omitempty"`
	Kind      string    `json:"kind"` // search, research
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// Ledger is the process-wide spend accumulator. Owner counters are updated
// atomically under the ledger lock; entries are append-only.
type Ledger struct {
	logger *zap.Logger

	mu          sync.Mutex
	entries     []Entry
	ownerTotals map[string]float64
	total       float64
	warned      map[string]bool
}

// NewLedger creates an empty ledger.
func NewLedger(logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		logger:      logger,
		ownerTotals: make(map[string]float64),
		warned:      make(map[string]bool),
	}
}

// Track appends a spend record. Failed calls are still recorded: the money
// was spent even when the upstream errored. Failure rates feed the breaker,
// not the ledger.
func (l *Ledger) Track(provider string, amount float64, owner, kind string, success bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, Entry{
		ID:        uuid.NewString(),
		Provider:  provider,
		Amount:    amount,
		OwnerID:   owner,
		Kind:      kind,
		Success:   success,
		Timestamp: time.Now(),
	})
	l.total += amount
	if owner != "" {
		l.ownerTotals[owner] += amount
	}
}

// Check decides whether a paid call with the given estimated cost may be
// issued. The budget is a per-request cap, so spent is the paid spend
// already committed within the current request, supplied by the caller; the
// ledger's lifetime owner totals feed alerting, never admission. Once
// request spend crosses the critical threshold the answer is deny; the
// caller must stop issuing paid calls but keep what was already gathered.
func (l *Ledger) Check(owner string, spent, estimated, budget float64) Decision {
	if estimated <= 0 {
		return Allow
	}
	if budget <= 0 {
		return Deny
	}
	if spent >= CriticalThreshold*budget {
		return Deny
	}
	if spent+estimated > budget {
		return Deny
	}
	if spent+estimated >= WarningThreshold*budget {
		l.mu.Lock()
		if !l.warned[owner] {
			l.warned[owner] = true
			l.logger.Warn("request spend approaching budget",
				zap.String("owner", owner),
				zap.Float64("spent", spent),
				zap.Float64("budget", budget),
				zap.Float64("lifetime", l.ownerTotals[owner]),
			)
		}
		l.mu.Unlock()
		return Warn
	}
	return Allow
}

// OwnerTotal reports the accumulated spend for one owner.
func (l *Ledger) OwnerTotal(owner string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ownerTotals[owner]
}

// Total reports the process-wide spend.
func (l *Ledger) Total() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Entries returns a copy of all spend records.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Owners returns a copy of the per-owner totals; used by the janitor's
// periodic budget sweep.
func (l *Ledger) Owners() map[string]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]float64, len(l.ownerTotals))
	for owner, total := range l.ownerTotals {
		out[owner] = total
	}
	return out
}
