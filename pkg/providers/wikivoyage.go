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

// WikivoyageDescriptor configures the Wikivoyage travel-guide provider.
func WikivoyageDescriptor() content.ProviderDescriptor {
	return content.ProviderDescriptor{
		Name:       "wikivoyage",
		Category:   content.CategoryTourism,
		Tier:       content.TierFree,
		BaseURL:    "https://en.wikivoyage.org/w/api.php",
		AuthMode:   content.AuthNone,
		RateLimit:  5,
		RatePeriod: time.Second,
		CacheTTL:   6 * time.Hour,
		Timeout:    8 * time.Second,
		MaxRetries: 2,
	}
}

func wikivoyageBuild(q Query) (string, url.Values) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("generator", "search")
	params.Set("gsrsearch", q.Text)
	params.Set("gsrlimit", strconv.Itoa(limitOr(q.Limit, 8)))
	params.Set("prop", "extracts|coordinates")
	params.Set("exintro", "1")
	params.Set("explaintext", "1")
	params.Set("format", "json")
	return "", params
}

type wikivoyageResponse struct {
	Query struct {
		Pages map[string]struct {
			Title       string `json:"title"`
			Extract     string `json:"extract"`
			Coordinates []struct {
				Lat float64 `json:"lat"`
				Lon float64 `json:"lon"`
			} `json:"coordinates"`
		} `json:"pages"`
	} `json:"query"`
}

func wikivoyageTransform(q Query, payload []byte) ([]*content.CandidateItem, error) {
	var resp wikivoyageResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("decoding wikivoyage response: %w", err)
	}

	items := make([]*content.CandidateItem, 0, len(resp.Query.Pages))
	for _, page := range resp.Query.Pages {
		if page.Title == "" {
			continue
		}
		item := &content.CandidateItem{
			Title:           page.Title,
			Body:            page.Extract,
			SourceName:      "wikivoyage",
			SourceAuthority: "community",
			URL:             "https://en.wikivoyage.org/wiki/" + url.PathEscape(page.Title),
			Kind:            "place",
			Location:        q.Location,
		}
		if len(page.Coordinates) > 0 {
			item.Location = &content.Location{
				Name:      page.Title,
				Latitude:  page.Coordinates[0].Lat,
				Longitude: page.Coordinates[0].Lon,
			}
		}
		item.Fingerprint = content.Fingerprint(item.Title, item.SourceName, locationOrDate(item))
		items = append(items, item)
	}
	return items, nil
}
