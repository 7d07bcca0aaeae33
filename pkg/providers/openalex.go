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

package providers

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/wandercast/wandercast/pkg/content"
)

// OpenAlexDescriptor configures the OpenAlex scholarly works provider.
func OpenAlexDescriptor() content.ProviderDescriptor {
	return content.ProviderDescriptor{
		Name:       "openalex",
		Category:   content.CategoryAcademic,
		Tier:       content.TierFree,
		BaseURL:    "https://api.openalex.org/works",
		AuthMode:   content.AuthNone,
		RateLimit:  10,
		RatePeriod: time.Second,
		CacheTTL:   24 * time.Hour,
		Timeout:    8 * time.Second,
		MaxRetries: 2,
	}
}

func openalexBuild(q Query) (string, url.Values) {
	params := url.Values{}
	params.Set("search", q.Text)
	params.Set("per-page", strconv.Itoa(limitOr(q.Limit, 8)))
	params.Set("sort", "relevance_score:desc")
	return "", params
}

type openalexResponse struct {
	Results []struct {
		Title           string `json:"title"`
		PublicationDate string `json:"publication_date"`
		DOI             string `json:"doi"`
		ID              string `json:"id"`
		Concepts        []struct {
			DisplayName string  `json:"display_name"`
			Score       float64 `json:"score"`
		} `json:"concepts"`
		PrimaryLocation struct {
			Source struct {
				DisplayName string `json:"display_name"`
			} `json:"source"`
		} `json:"primary_location"`
	} `json:"results"`
}

func openalexTransform(q Query, payload []byte) ([]*content.CandidateItem, error) {
	var resp openalexResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("decoding openalex response: %w", err)
	}

	items := make([]*content.CandidateItem, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Title == "" {
			continue
		}
		itemURL := r.DOI
		if itemURL == "" {
			itemURL = r.ID
		}
		item := &content.CandidateItem{
			Title:           r.Title,
			Body:            r.PrimaryLocation.Source.DisplayName,
			SourceName:      "openalex",
			SourceAuthority: "academic",
			URL:             itemURL,
			Kind:            "research",
			Date:            r.PublicationDate,
			Location:        q.Location,
		}
		for _, concept := range r.Concepts {
			if concept.Score >= 0.5 {
				item.Topics = append(item.Topics, concept.DisplayName)
			}
		}
		item.Fingerprint = content.Fingerprint(item.Title, item.SourceName, locationOrDate(item))
		items = append(items, item)
	}
	return items, nil
}
