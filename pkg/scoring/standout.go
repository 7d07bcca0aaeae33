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
	"regexp"
	"strconv"
	"strings"

	"github.com/wandercast/wandercast/pkg/content"
)

// Standout method names. Each method scores 0-10.
const (
	MethodImpossibility = "impossibility"
	MethodUniqueness    = "uniqueness"
	MethodTemporal      = "temporal"
	MethodCultural      = "cultural"
	MethodAtlas         = "atlas_obscura"
	MethodHistorical    = "historical"
	MethodGeographic    = "geographic"
	MethodLinguistic    = "linguistic"
	MethodCrossCultural = "cross_cultural"
)

// Tier boundaries on the combined base score.
const (
	tierExceptional = 4.5
	tierVeryGood    = 3.5
	tierGood        = 2.0
)

// Per-hit weight of a lexicon match. Three independent markers saturate a
// method near its ceiling.
const hitWeight = 3.0

var standoutLexicons = map[string][]string{
	MethodImpossibility: {
		"defies", "impossible", "unexplained", "inexplicable", "paradox",
		"floats", "never melts", "perpetual", "against the laws",
	},
	MethodUniqueness: {
		"the only", "nowhere else", "one of a kind", "unique in the world",
		"sole surviving", "last remaining", "found nowhere",
	},
	MethodTemporal: {
		"since time immemorial", "oldest", "millennia", "centuries-old",
		"prehistoric", "immemorial", "continuously inhabited",
	},
	MethodCultural: {
		"ritual", "tradition", "taboo", "ceremony", "sacred",
		"folklore", "custom", "pilgrimage",
	},
	MethodAtlas: {
		"hidden", "secret", "bizarre", "curious", "obscure",
		"forgotten", "mysterious", "strange", "peculiar",
	},
	MethodHistorical: {
		"battle", "revolution", "empire", "dynasty", "treaty",
		"founded", "conquered", "siege", "coronation",
	},
	MethodGeographic: {
		"highest", "deepest", "largest", "smallest", "northernmost",
		"southernmost", "westernmost", "easternmost", "remotest", "lowest point",
	},
	MethodLinguistic: {
		"endangered language", "etymology", "dialect", "last speaker",
		"untranslatable", "derives its name", "loanword",
	},
}

var anyYear = regexp.MustCompile(`\b(\d{3,4})\b`)

// StandoutScorer runs the nine novelty classifiers over an item's text.
type StandoutScorer struct{}

// NewStandoutScorer creates a standout scorer.
func NewStandoutScorer() *StandoutScorer {
	return &StandoutScorer{}
}

// Score computes the nine method sub-scores and the combined base. Peers
// are consulted only by the cross-cultural method. Personalized is
// initialized to the base; the preference adapter overwrites it when an
// owner is attached.
func (s *StandoutScorer) Score(item *content.CandidateItem, peers []*content.CandidateItem) content.StandoutScore {
	text := strings.ToLower(item.CombinedText())

	methods := make(map[string]float64, 9)
	for method, lexicon := range standoutLexicons {
		methods[method] = lexiconScore(text, lexicon)
	}

	// Verifiably very old dates strengthen the temporal method beyond its
	// lexicon.
	if year := earliestYear(text); year > 0 && year < 1500 {
		methods[MethodTemporal] = saturate(methods[MethodTemporal] + 4.0)
	}
	// Dated events of attested significance: a year plus an event marker.
	if methods[MethodHistorical] > 0 && anyYear.MatchString(text) {
		methods[MethodHistorical] = saturate(methods[MethodHistorical] + 2.0)
	}

	methods[MethodCrossCultural] = s.crossCultural(item, peers)

	base := combine(methods)
	return content.StandoutScore{
		Methods:      methods,
		Base:         base,
		Tier:         tierFor(base),
		Personalized: base,
	}
}

// crossCultural scores an item that appears in independent cultural corpora:
// peers from at least two distinct sources with similar titles.
func (s *StandoutScorer) crossCultural(item *content.CandidateItem, peers []*content.CandidateItem) float64 {
	sources := make(map[string]bool)
	for _, peer := range peers {
		if peer.Fingerprint == item.Fingerprint || peer.SourceName == item.SourceName {
			continue
		}
		if titleJaccard(item.Title, peer.Title) > 0.5 {
			sources[peer.SourceName] = true
		}
	}
	switch len(sources) {
	case 0:
		return 0
	case 1:
		return 3.0
	default:
		return saturate(3.0 * float64(len(sources)))
	}
}

// combine aggregates the nine sub-scores: the strongest method dominates
// and each additional distinct nonzero method adds a diversity bonus. The
// aggregate is monotone in every sub-score and saturates at 10.
func combine(methods map[string]float64) float64 {
	max := 0.0
	nonzero := 0
	for _, score := range methods {
		if score > max {
			max = score
		}
		if score > 0 {
			nonzero++
		}
	}
	if nonzero == 0 {
		return 0
	}
	return saturate(max + 0.5*float64(nonzero-1))
}

func tierFor(base float64) content.StandoutTier {
	switch {
	case base >= tierExceptional:
		return content.TierExceptional
	case base >= tierVeryGood:
		return content.TierVeryGood
	case base >= tierGood:
		return content.TierGood
	default:
		return content.TierMundane
	}
}

func lexiconScore(text string, lexicon []string) float64 {
	hits := 0
	for _, marker := range lexicon {
		if strings.Contains(text, marker) {
			hits++
		}
	}
	return saturate(hitWeight * float64(hits))
}

func earliestYear(text string) int {
	earliest := 0
	for _, match := range anyYear.FindAllString(text, -1) {
		year, err := strconv.Atoi(match)
		if err != nil || year < 100 || year > 2100 {
			continue
		}
		if earliest == 0 || year < earliest {
			earliest = year
		}
	}
	return earliest
}

func saturate(v float64) float64 {
	if v > 10 {
		return 10
	}
	if v < 0 {
		return 0
	}
	return v
}
