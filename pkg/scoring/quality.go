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

// Package scoring holds the quality assessor, the standout scorer, and the
// preference adapter that together rank candidate items.
package scoring

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/wandercast/wandercast/pkg/content"
)

// Quality dimension weights. Overall is exactly this weighted sum.
const (
	WeightAuthority    = 0.25
	WeightCompleteness = 0.20
	WeightAgreement    = 0.25
	WeightFreshness    = 0.15
	WeightEngagement   = 0.15
)

// authorityScores maps a source authority class to its score.
var authorityScores = map[string]float64{
	"government": 1.0,
	"academic":   0.9,
	"museum":     0.85,
	"research":   0.85,
	"major_news": 0.8,
	"commercial": 0.7,
	"community":  0.5,
}

const unknownAuthority = 0.3

var (
	yearPattern       = regexp.MustCompile(`\b(1\d{3}|20\d{2})\b`)
	properNounPattern = regexp.MustCompile(`\b[A-Z][a-z]+ [A-Z][a-z]+\b`)
)

// engagementKeywords are the fixed "interesting" signals, worth 0.1 each up
// to 0.3.
var engagementKeywords = []string{
	"mysterious", "ancient", "secret", "hidden", "unique",
	"famous", "legendary", "haunted", "forbidden", "lost",
}

// QualityAssessor computes the five-dimensional quality score of an item
// relative to its cross-reference peers.
type QualityAssessor struct {
	now func() time.Time
}

// NewQualityAssessor creates an assessor using the wall clock for freshness.
func NewQualityAssessor() *QualityAssessor {
	return &QualityAssessor{now: time.Now}
}

// Assess scores item against the other items of the same fan-out.
func (a *QualityAssessor) Assess(item *content.CandidateItem, peers []*content.CandidateItem) content.QualityScore {
	authority := a.sourceAuthority(item)
	completeness := a.completeness(item)
	agreement, agreeing := a.crossSourceAgreement(item, peers)
	freshness := a.freshness(item)
	engagement := a.engagementPotential(item)

	overall := WeightAuthority*authority +
		WeightCompleteness*completeness +
		WeightAgreement*agreement +
		WeightFreshness*freshness +
		WeightEngagement*engagement

	numSources := 1 + agreeing
	confidence := clip01((authority+completeness+agreement)/3 + math.Min(0.1*float64(numSources), 0.3))

	return content.QualityScore{
		SourceAuthority:      authority,
		Completeness:         completeness,
		CrossSourceAgreement: agreement,
		Freshness:            freshness,
		EngagementPotential:  engagement,
		Overall:              overall,
		Confidence:           confidence,
	}
}

func (a *QualityAssessor) sourceAuthority(item *content.CandidateItem) float64 {
	best := unknownAuthority
	// Items merged from several sources carry a comma-joined class list;
	// the maximum wins.
	for _, class := range strings.Split(item.SourceAuthority, ",") {
		if score, ok := authorityScores[strings.TrimSpace(class)]; ok && score > best {
			best = score
		}
	}
	return best
}

func (a *QualityAssessor) completeness(item *content.CandidateItem) float64 {
	score := 0.0
	if item.Title != "" {
		score += 0.30
	}
	if item.Body != "" {
		score += 0.30
	}
	if item.Location != nil {
		score += 0.15
	}
	if item.Date != "" {
		score += 0.10
	}
	if item.SourceName != "" {
		score += 0.05
	}
	if item.URL != "" {
		score += 0.05
	}
	if item.Kind != "" {
		score += 0.05
	}
	return clip01(score)
}

// crossSourceAgreement returns the averaged per-peer agreement and the count
// of peers showing any agreement. With no peers the score is the neutral 0.7.
func (a *QualityAssessor) crossSourceAgreement(item *content.CandidateItem, peers []*content.CandidateItem) (float64, int) {
	others := make([]*content.CandidateItem, 0, len(peers))
	for _, p := range peers {
		if p.Fingerprint != item.Fingerprint {
			others = append(others, p)
		}
	}
	if len(others) == 0 {
		return 0.7, 0
	}

	sum := 0.0
	agreeing := 0
	for _, peer := range others {
		signals := 0
		matched := 0

		signals++
		if titleJaccard(item.Title, peer.Title) > 0.7 {
			matched++
		}
		if item.Date != "" && peer.Date != "" {
			signals++
			if item.Date == peer.Date {
				matched++
			}
		}
		if item.Location != nil && peer.Location != nil &&
			item.Location.Name != "" && peer.Location.Name != "" {
			signals++
			if locationMatches(item.Location.Name, peer.Location.Name) {
				matched++
			}
		}

		peerScore := float64(matched) / float64(signals)
		sum += peerScore
		if matched > 0 {
			agreeing++
		}
	}
	return sum / float64(len(others)), agreeing
}

func (a *QualityAssessor) freshness(item *content.CandidateItem) float64 {
	year := extractYear(item.Date)
	if year == 0 {
		return 0.5
	}
	age := float64(a.now().Year() - year)
	if age < 0 {
		age = 0
	}
	return math.Exp(-age / 20.0)
}

func (a *QualityAssessor) engagementPotential(item *content.CandidateItem) float64 {
	score := 0.0
	if len(item.Media) > 0 {
		score += 0.3
	}
	switch {
	case len(item.Body) > 200:
		score += 0.2
	case len(item.Body) > 80:
		score += 0.1
	}

	text := strings.ToLower(item.CombinedText())
	keywordBonus := 0.0
	for _, kw := range engagementKeywords {
		if strings.Contains(text, kw) {
			keywordBonus += 0.1
		}
	}
	score += math.Min(keywordBonus, 0.3)

	raw := item.CombinedText()
	if yearPattern.MatchString(raw) {
		score += 0.1
	}
	if properNounPattern.MatchString(raw) {
		score += 0.1
	}
	return clip01(score)
}

// titleJaccard computes word-set Jaccard similarity of two titles.
func titleJaccard(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,;:!?()\"'")
		if w != "" {
			out[w] = true
		}
	}
	return out
}

func locationMatches(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	return strings.Contains(la, lb) || strings.Contains(lb, la)
}

func extractYear(date string) int {
	match := yearPattern.FindString(date)
	if match == "" {
		return 0
	}
	year := 0
	for _, r := range match {
		year = year*10 + int(r-'0')
	}
	return year
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
