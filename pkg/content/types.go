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

// Package content defines the shared record types that flow through the
// acquisition pipeline: candidate items returned by providers, the scores
// attached to them, and the descriptors that configure provider clients.
package content

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// RequestKind classifies what a generation request is asking for.
type RequestKind string

const (
	RequestPlace        RequestKind = "place"
	RequestQuestion     RequestKind = "question"
	RequestTopic        RequestKind = "topic"
	RequestStandout     RequestKind = "standout"
	RequestEnrichment   RequestKind = "enrichment"
	RequestPersonalized RequestKind = "personalized"
)

// ProviderCategory groups providers by the kind of content they serve.
type ProviderCategory string

const (
	CategoryHistorical ProviderCategory = "historical"
	CategoryCultural   ProviderCategory = "cultural"
	CategoryTourism    ProviderCategory = "tourism"
	CategoryGeographic ProviderCategory = "geographic"
	CategoryAcademic   ProviderCategory = "academic"
	CategoryNews       ProviderCategory = "news"
	CategoryGovernment ProviderCategory = "government"
)

// ProviderTier is the pricing tier of an external provider.
type ProviderTier string

const (
	TierFree     ProviderTier = "free"
	TierFreemium ProviderTier = "freemium"
	TierPremium  ProviderTier = "premium"
)

// AuthMode describes how a provider API key is injected into requests.
type AuthMode string

const (
	AuthNone      AuthMode = "none"
	AuthHeaderKey AuthMode = "header_key"
	AuthQueryKey  AuthMode = "query_key"
	AuthBearer    AuthMode = "bearer"
)

// ProviderDescriptor is the process-lifetime configuration of one external
// provider. URLs and auth names are configuration, never code.
type ProviderDescriptor struct {
	Name           string           `json:"name"`
	Category       ProviderCategory `json:"category"`
	Tier           ProviderTier     `json:"tier"`
	BaseURL        string           `json:"base_url"`
	AuthMode       AuthMode         `json:"auth_mode"`
	AuthName       string           `json:"auth_name,omitempty"` // header or query param name
	KeyEnvVar      string           `json:"key_env_var,omitempty"`
	RateLimit      float64          `json:"rate_limit"`  // requests per RatePeriod
	RatePeriod     time.Duration    `json:"rate_period"` // default 1s
	CostPerRequest float64          `json:"cost_per_request"`
	CacheTTL       time.Duration    `json:"cache_ttl"`
	Timeout        time.Duration    `json:"timeout"`
	MaxRetries     int              `json:"max_retries"`
}

// MediaRef points at an image, audio, or video asset attached to an item.
type MediaRef struct {
	Kind string `json:"kind"` // image, audio, video
	URL  string `json:"url"`
}

// Location is a normalized place reference.
type Location struct {
	Name      string  `json:"name,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Country   string  `json:"country,omitempty"`
}

// CandidateItem is one normalized item returned by a provider, pre-ranking.
// Items are created by provider transforms and read-only afterwards.
type CandidateItem struct {
	Fingerprint     string     `json:"fingerprint"`
	Title           string     `json:"title"`
	Body            string     `json:"body,omitempty"`
	SourceName      string     `json:"source_name"`
	SourceAuthority string     `json:"source_authority"` // government, academic, museum, ...
	URL             string     `json:"url,omitempty"`
	Kind            string     `json:"kind,omitempty"` // article, place, event, dataset, research
	Media           []MediaRef `json:"media,omitempty"`
	Date            string     `json:"date,omitempty"`
	Location        *Location  `json:"location,omitempty"`
	Topics          []string   `json:"topics,omitempty"`

	// RawPayload preserves the provider's original response fragment as an
	// opaque blob for forward compatibility with new providers.
	RawPayload []byte `json:"raw_payload,omitempty"`
}

// QualityScore is the multi-dimensional quality assessment of one item.
// Overall is always the documented weighted sum of the five sub-scores.
type QualityScore struct {
	SourceAuthority      float64 `json:"source_authority"`
	Completeness         float64 `json:"completeness"`
	CrossSourceAgreement float64 `json:"cross_source_agreement"`
	Freshness            float64 `json:"freshness"`
	EngagementPotential  float64 `json:"engagement_potential"`
	Overall              float64 `json:"overall"`
	Confidence           float64 `json:"confidence"`
}

// StandoutTier is the coarse novelty banding of an item.
type StandoutTier string

const (
	TierMundane     StandoutTier = "mundane"
	TierGood        StandoutTier = "good"
	TierVeryGood    StandoutTier = "very_good"
	TierExceptional StandoutTier = "exceptional"
)

// StandoutScore holds the nine method sub-scores (each 0-10), the combined
// base, the coarse tier, and the per-user personalized score.
type StandoutScore struct {
	Methods      map[string]float64 `json:"methods"`
	Base         float64            `json:"base"`
	Tier         StandoutTier       `json:"tier"`
	Personalized float64            `json:"personalized"`
}

// RankedItem is a candidate plus its scores and ranking explanation.
type RankedItem struct {
	CandidateItem
	Quality       QualityScore  `json:"quality"`
	Standout      StandoutScore `json:"standout"`
	PersonalScore float64       `json:"personal_score"`
	Explanation   string        `json:"explanation,omitempty"`
}

// SourceSummary reports how one provider contributed to a fan-out.
type SourceSummary struct {
	Provider  string        `json:"provider"`
	Items     int           `json:"items"`
	LatencyMs int64         `json:"latency_ms"`
	Cost      float64       `json:"cost"`
	Cached    bool          `json:"cached"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Tier      ProviderTier  `json:"tier"`
	Elapsed   time.Duration `json:"-"`
}

// ResultSet is the ranked output of one fan-out.
type ResultSet struct {
	Items     []RankedItem    `json:"items"`
	Sources   []SourceSummary `json:"sources"`
	TotalCost float64         `json:"total_cost"`
	Query     string          `json:"query"`
	Kind      RequestKind     `json:"kind"`
}

// Fingerprint computes the stable content hash used for deduplication.
// It hashes the lowercased title with the source name and the canonical
// location or date, so the same story from the same source always collides.
func Fingerprint(title, source, locationOrDate string) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(title))))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(source))))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(locationOrDate))))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// CacheKey computes the fingerprint of one provider call for response caching.
func CacheKey(provider, endpoint, params string) string {
	h := sha256.New()
	h.Write([]byte(provider))
	h.Write([]byte{0})
	h.Write([]byte(endpoint))
	h.Write([]byte{0})
	h.Write([]byte(params))
	return "resp:" + hex.EncodeToString(h.Sum(nil))[:40]
}

// CombinedText returns the searchable text of an item for the pattern
// classifiers (standout methods, engagement signals).
func (c *CandidateItem) CombinedText() string {
	parts := []string{c.Title, c.Body}
	parts = append(parts, c.Topics...)
	return strings.Join(parts, " ")
}
