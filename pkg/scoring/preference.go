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

package scoring

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/wandercast/wandercast/pkg/content"
	"github.com/wandercast/wandercast/pkg/store"
)

// surpriseFactors maps a surprise tolerance level (0-5) to the multiplier
// applied to the base standout score.
var surpriseFactors = [6]float64{0.7, 0.85, 1.0, 1.12, 1.20, 1.25}

// topicBonus is added to the personal score when an item matches one of the
// owner's preferred topics.
const topicBonus = 0.5

// Overrides is the request-time preference object. It is a one-shot
// override of the stored model and is never written back.
type Overrides struct {
	Surprise *int     `json:"surprise_tolerance,omitempty"`
	Topics   []string `json:"topics,omitempty"`
	Depth    *int     `json:"depth,omitempty"`
}

// PreferenceAdapter reads the learned preference model and personalizes
// standout scores. The model store is read-only from the core's point of
// view; lookup failure always falls through to the unmodified base score.
type PreferenceAdapter struct {
	prefs  store.PreferenceRepo
	logger *zap.Logger
}

// NewPreferenceAdapter creates an adapter over the given preference store.
func NewPreferenceAdapter(prefs store.PreferenceRepo, logger *zap.Logger) *PreferenceAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PreferenceAdapter{prefs: prefs, logger: logger}
}

// SurpriseFactor maps a tolerance level to its multiplier. Out-of-range
// levels clamp to the nearest defined level.
func SurpriseFactor(level int) float64 {
	if level < 0 {
		level = 0
	}
	if level > 5 {
		level = 5
	}
	return surpriseFactors[level]
}

// Personalize applies the owner's surprise tolerance to a standout score
// and returns the personal composite used as the primary sort key. Without
// an owner, or when the model cannot be read, the personalized score equals
// the base and the composite carries no topic bonus.
func (p *PreferenceAdapter) Personalize(ctx context.Context, owner string, ov *Overrides, item *content.CandidateItem, standout *content.StandoutScore) float64 {
	standout.Personalized = standout.Base
	if owner == "" && ov == nil {
		return standout.Base
	}

	level, levelKnown := p.surpriseLevel(ctx, owner, ov)
	if levelKnown {
		standout.Personalized = saturate(standout.Base * SurpriseFactor(level))
	}

	personal := standout.Personalized
	for _, topic := range p.topics(ctx, owner, ov) {
		if itemHasTopic(item, topic) {
			personal += topicBonus
			break
		}
	}
	return saturate(personal)
}

// Depth resolves the research depth preference (1-6), defaulting to 3.
func (p *PreferenceAdapter) Depth(ctx context.Context, owner string, ov *Overrides) int {
	if ov != nil && ov.Depth != nil {
		return clampDepth(*ov.Depth)
	}
	if owner == "" || p.prefs == nil {
		return 3
	}
	depth, err := p.prefs.GetDepth(ctx, owner)
	if err != nil {
		return 3
	}
	return clampDepth(depth)
}

func (p *PreferenceAdapter) surpriseLevel(ctx context.Context, owner string, ov *Overrides) (int, bool) {
	if ov != nil && ov.Surprise != nil {
		return *ov.Surprise, true
	}
	if owner == "" || p.prefs == nil {
		return 0, false
	}
	level, err := p.prefs.GetSurprise(ctx, owner)
	if err != nil {
		// Store unavailable or no model yet: fall through, never fail.
		p.logger.Debug("preference lookup failed, using base score",
			zap.String("owner", owner), zap.Error(err))
		return 0, false
	}
	return level, true
}

func (p *PreferenceAdapter) topics(ctx context.Context, owner string, ov *Overrides) []string {
	if ov != nil && len(ov.Topics) > 0 {
		return ov.Topics
	}
	if owner == "" || p.prefs == nil {
		return nil
	}
	topics, err := p.prefs.GetTopics(ctx, owner)
	if err != nil {
		return nil
	}
	return topics
}

func itemHasTopic(item *content.CandidateItem, topic string) bool {
	for _, t := range item.Topics {
		if strings.EqualFold(t, topic) {
			return true
		}
	}
	return false
}

func clampDepth(d int) int {
	if d < 1 {
		return 1
	}
	if d > 6 {
		return 6
	}
	return d
}
