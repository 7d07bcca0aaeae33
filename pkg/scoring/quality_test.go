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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wandercast/wandercast/pkg/content"
)

func fixedClock(year int) func() time.Time {
	return func() time.Time {
		return time.Date(year, time.June, 1, 0, 0, 0, 0, time.UTC)
	}
}

func TestQuality_OverallIsWeightedSum(t *testing.T) {
	a := NewQualityAssessor()
	a.now = fixedClock(2026)

	item := &content.CandidateItem{
		Fingerprint:     "f1",
		Title:           "Sailing Stones of Racetrack Playa",
		Body:            "Rocks that move across the desert floor leaving long trails, first documented in 1915 by prospectors who could not explain the phenomenon at all.",
		SourceName:      "wikipedia",
		SourceAuthority: "community",
		URL:             "https://example.org/stones",
		Kind:            "place",
		Date:            "1915-01-01",
		Location:        &content.Location{Name: "Death Valley"},
	}

	got := a.Assess(item, nil)

	want := WeightAuthority*got.SourceAuthority +
		WeightCompleteness*got.Completeness +
		WeightAgreement*got.CrossSourceAgreement +
		WeightFreshness*got.Freshness +
		WeightEngagement*got.EngagementPotential
	assert.InDelta(t, want, got.Overall, 1e-12)

	for name, v := range map[string]float64{
		"authority":    got.SourceAuthority,
		"completeness": got.Completeness,
		"agreement":    got.CrossSourceAgreement,
		"freshness":    got.Freshness,
		"engagement":   got.EngagementPotential,
		"overall":      got.Overall,
		"confidence":   got.Confidence,
	} {
		assert.GreaterOrEqual(t, v, 0.0, name)
		assert.LessOrEqual(t, v, 1.0, name)
	}
}

func TestQuality_SourceAuthority(t *testing.T) {
	a := NewQualityAssessor()

	tests := []struct {
		name      string
		authority string
		want      float64
	}{
		{"government", "government", 1.0},
		{"academic", "academic", 0.9},
		{"community", "community", 0.5},
		{"unknown class", "blog", 0.3},
		{"empty", "", 0.3},
		{"merged list takes max", "community, government", 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := &content.CandidateItem{SourceAuthority: tt.authority}
			assert.InDelta(t, tt.want, a.sourceAuthority(item), 1e-9)
		})
	}
}

func TestQuality_Completeness(t *testing.T) {
	a := NewQualityAssessor()

	empty := &content.CandidateItem{}
	assert.InDelta(t, 0.0, a.completeness(empty), 1e-9)

	full := &content.CandidateItem{
		Title:      "t",
		Body:       "b",
		Location:   &content.Location{Name: "x"},
		Date:       "1900",
		SourceName: "s",
		URL:        "u",
		Kind:       "place",
	}
	assert.InDelta(t, 1.0, a.completeness(full), 1e-9)

	titleOnly := &content.CandidateItem{Title: "t"}
	assert.InDelta(t, 0.30, a.completeness(titleOnly), 1e-9)
}

func TestQuality_CrossSourceAgreement(t *testing.T) {
	a := NewQualityAssessor()

	item := &content.CandidateItem{
		Fingerprint: "f1",
		Title:       "Great Wall of China",
		Date:        "1368",
		Location:    &content.Location{Name: "China"},
		SourceName:  "wikipedia",
	}

	t.Run("no peers is neutral", func(t *testing.T) {
		score, agreeing := a.crossSourceAgreement(item, nil)
		assert.InDelta(t, 0.7, score, 1e-9)
		assert.Zero(t, agreeing)
	})

	t.Run("self is excluded from peers", func(t *testing.T) {
		score, agreeing := a.crossSourceAgreement(item, []*content.CandidateItem{item})
		assert.InDelta(t, 0.7, score, 1e-9)
		assert.Zero(t, agreeing)
	})

	t.Run("full agreement", func(t *testing.T) {
		peer := &content.CandidateItem{
			Fingerprint: "f2",
			Title:       "Great Wall of China",
			Date:        "1368",
			Location:    &content.Location{Name: "northern China"},
			SourceName:  "wikivoyage",
		}
		score, agreeing := a.crossSourceAgreement(item, []*content.CandidateItem{peer})
		assert.InDelta(t, 1.0, score, 1e-9)
		assert.Equal(t, 1, agreeing)
	})

	t.Run("disagreeing peer lowers the score", func(t *testing.T) {
		peer := &content.CandidateItem{
			Fingerprint: "f3",
			Title:       "Eiffel Tower nighttime illumination schedule",
			Date:        "1889",
			Location:    &content.Location{Name: "Paris"},
			SourceName:  "gdelt",
		}
		score, agreeing := a.crossSourceAgreement(item, []*content.CandidateItem{peer})
		assert.InDelta(t, 0.0, score, 1e-9)
		assert.Zero(t, agreeing)
	})
}

func TestQuality_Freshness(t *testing.T) {
	a := NewQualityAssessor()
	a.now = fixedClock(2026)

	t.Run("no date is neutral", func(t *testing.T) {
		assert.InDelta(t, 0.5, a.freshness(&content.CandidateItem{}), 1e-9)
	})

	t.Run("current year is fully fresh", func(t *testing.T) {
		assert.InDelta(t, 1.0, a.freshness(&content.CandidateItem{Date: "2026-03-01"}), 1e-9)
	})

	t.Run("older dates decay but never reach zero", func(t *testing.T) {
		recent := a.freshness(&content.CandidateItem{Date: "2020"})
		old := a.freshness(&content.CandidateItem{Date: "1850"})
		require.Greater(t, recent, old)
		assert.Greater(t, old, 0.0)
	})
}

func TestQuality_Engagement(t *testing.T) {
	a := NewQualityAssessor()

	plain := &content.CandidateItem{Title: "budget report"}
	rich := &content.CandidateItem{
		Title: "The Mysterious Hidden Tomb of Qin Shi Huang",
		Body:  "An ancient and legendary burial complex discovered in 1974, guarded by thousands of terracotta soldiers and still largely unexcavated because of fears about rivers of mercury described in early accounts.",
		Media: []content.MediaRef{{Kind: "image", URL: "https://example.org/i.jpg"}},
	}

	assert.Greater(t, a.engagementPotential(rich), a.engagementPotential(plain))
	assert.LessOrEqual(t, a.engagementPotential(rich), 1.0)
}

func TestQuality_ConfidenceGrowsWithAgreeingSources(t *testing.T) {
	a := NewQualityAssessor()
	a.now = fixedClock(2026)

	item := &content.CandidateItem{
		Fingerprint:     "f1",
		Title:           "Oracle of Delphi",
		Body:            "sanctuary",
		SourceName:      "wikipedia",
		SourceAuthority: "community",
		Date:            "1900",
	}
	peer := &content.CandidateItem{
		Fingerprint: "f2",
		Title:       "Oracle of Delphi",
		Date:        "1900",
		SourceName:  "europeana",
	}

	alone := a.Assess(item, nil)
	corroborated := a.Assess(item, []*content.CandidateItem{peer})
	assert.Greater(t, corroborated.Confidence, alone.Confidence)
}

func TestTitleJaccard(t *testing.T) {
	assert.InDelta(t, 1.0, titleJaccard("Great Wall", "great wall"), 1e-9)
	assert.InDelta(t, 0.0, titleJaccard("alpha beta", "gamma delta"), 1e-9)
	assert.Zero(t, titleJaccard("", "anything"))

	partial := titleJaccard("Great Wall of China", "Great Wall")
	assert.Greater(t, partial, 0.0)
	assert.Less(t, partial, 1.0)
}
