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
	"time"

	"github.com/wandercast/wandercast/pkg/content"
	"github.com/wandercast/wandercast/pkg/costs"
	"github.com/wandercast/wandercast/pkg/providers"
)

// Strategy is the fan-out plan for one request kind.
type Strategy struct {
	Kind       content.RequestKind
	MinSources int
	MaxSources int
	Timeout    time.Duration
}

// strategyFor maps a request kind onto its fan-out plan. Unknown kinds run
// the place plan.
func strategyFor(kind content.RequestKind) Strategy {
	switch kind {
	case content.RequestStandout:
		return Strategy{Kind: kind, MinSources: 3, MaxSources: 7, Timeout: 8 * time.Second}
	case content.RequestTopic:
		return Strategy{Kind: kind, MinSources: 2, MaxSources: 4, Timeout: 6 * time.Second}
	case content.RequestEnrichment:
		return Strategy{Kind: kind, MinSources: 1, MaxSources: 3, Timeout: 4 * time.Second}
	default:
		return Strategy{Kind: content.RequestPlace, MinSources: 2, MaxSources: 5, Timeout: 5 * time.Second}
	}
}

// compose picks the primary client set for a strategy from the registry,
// respecting the tier mix the plan asks for.
func compose(s Strategy, budget costs.BudgetConfig, registry *providers.Registry) []*providers.Client {
	free := registry.Available(content.TierFree)
	freemium := registry.Available(content.TierFreemium)
	premium := registry.Available(content.TierPremium)

	var primary []*providers.Client
	switch s.Kind {
	case content.RequestStandout:
		freeCount := int(budget.PreferredFreeRatio*5 + 0.5)
		primary = append(primary, take(free, freeCount)...)
		remainder := s.MaxSources - len(primary)
		primary = append(primary, take(append(premium, freemium...), remainder)...)
	case content.RequestTopic:
		primary = append(take(free, 2), take(freemium, 2)...)
	case content.RequestEnrichment:
		primary = take(free, 2)
	default: // place
		primary = append(take(free, 3), take(freemium, 2)...)
	}

	if len(primary) > s.MaxSources {
		primary = primary[:s.MaxSources]
	}
	return primary
}

// fallbacks returns the available clients not already in the primary set,
// cheapest tier first.
func fallbacks(primary []*providers.Client, registry *providers.Registry) []*providers.Client {
	used := make(map[string]bool, len(primary))
	for _, c := range primary {
		used[c.Name()] = true
	}

	var out []*providers.Client
	for _, tier := range []content.ProviderTier{content.TierFree, content.TierFreemium, content.TierPremium} {
		for _, c := range registry.Available(tier) {
			if !used[c.Name()] {
				out = append(out, c)
			}
		}
	}
	return out
}

func take(clients []*providers.Client, n int) []*providers.Client {
	if n <= 0 {
		return nil
	}
	if n > len(clients) {
		n = len(clients)
	}
	return clients[:n]
}
