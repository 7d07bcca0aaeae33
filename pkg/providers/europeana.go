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
	"strings"
	"time"

	"github.com/wandercast/wandercast/pkg/content"
)

// EuropeanaDescriptor configures the Europeana cultural heritage provider.
// Europeana requires a registered API key passed as the wskey parameter.
func EuropeanaDescriptor() content.ProviderDescriptor {
	return content.ProviderDescriptor{
		Name:           "europeana",
		Category:       content.CategoryCultural,
		Tier:           content.TierFreemium,
		BaseURL:        "https://api.europeana.eu/record/v2/search.json",
		AuthMode:       content.AuthQueryKey,
		AuthName:       "wskey",
		KeyEnvVar:      "EUROPEANA_API_KEY",
		RateLimit:      3,
		RatePeriod:     time.Second,
		CostPerRequest: 0.002,
		CacheTTL:       12 * time.Hour,
		Timeout:        8 * time.Second,
		MaxRetries:     2,
	}
}

func europeanaBuild(q Query) (string, url.Values) {
	params := url.Values{}
	params.Set("query", q.Text)
	params.Set("rows", strconv.Itoa(limitOr(q.Limit, 10)))
	params.Set("profile", "rich")
	return "", params
}

type europeanaResponse struct {
	Items []struct {
		Title        []string `json:"title"`
		DcDescription []string `json:"dcDescription"`
		Year         []string `json:"year"`
		GUID         string   `json:"guid"`
		DataProvider []string `json:"dataProvider"`
		EdmPreview   []string `json:"edmPreview"`
		Country      []string `json:"country"`
		Type         string   `json:"type"`
	} `json:"items"`
}

func europeanaTransform(q Query, payload []byte) ([]*content.CandidateItem, error) {
	var resp europeanaResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("decoding europeana response: %w", err)
	}

	items := make([]*content.CandidateItem, 0, len(resp.Items))
	for _, r := range resp.Items {
		if len(r.Title) == 0 || r.Title[0] == "" {
			continue
		}
		item := &content.CandidateItem{
			Title:           r.Title[0],
			Body:            strings.Join(r.DcDescription, " "),
			SourceName:      "europeana",
			SourceAuthority: "museum",
			URL:             r.GUID,
			Kind:            strings.ToLower(r.Type),
			Location:        q.Location,
		}
		if len(r.Year) > 0 {
			item.Date = r.Year[0]
		}
		if len(r.Country) > 0 {
			item.Location = &content.Location{Name: r.Country[0], Country: r.Country[0]}
		}
		for _, preview := range r.EdmPreview {
			item.Media = append(item.Media, content.MediaRef{Kind: "image", URL: preview})
		}
		item.Fingerprint = content.Fingerprint(item.Title, item.SourceName, locationOrDate(item))
		items = append(items, item)
	}
	return items, nil
}
