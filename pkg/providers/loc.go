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

// LibraryOfCongressDescriptor configures the loc.gov search provider.
func LibraryOfCongressDescriptor() content.ProviderDescriptor {
	return content.ProviderDescriptor{
		Name:       "loc",
		Category:   content.CategoryHistorical,
		Tier:       content.TierFree,
		BaseURL:    "https://www.loc.gov/search/",
		AuthMode:   content.AuthNone,
		RateLimit:  2,
		RatePeriod: time.Second,
		CacheTTL:   12 * time.Hour,
		Timeout:    10 * time.Second,
		MaxRetries: 2,
	}
}

func locBuild(q Query) (string, url.Values) {
	params := url.Values{}
	params.Set("q", q.Text)
	params.Set("fo", "json")
	params.Set("c", strconv.Itoa(limitOr(q.Limit, 10)))
	return "", params
}

type locResponse struct {
	Results []struct {
		Title       string   `json:"title"`
		Description []string `json:"description"`
		Date        string   `json:"date"`
		URL         string   `json:"url"`
		Subjects    []string `json:"subject"`
		ImageURL    []string `json:"image_url"`
		Format      []string `json:"original_format"`
	} `json:"results"`
}

func locTransform(q Query, payload []byte) ([]*content.CandidateItem, error) {
	var resp locResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("decoding loc response: %w", err)
	}

	items := make([]*content.CandidateItem, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Title == "" {
			continue
		}
		item := &content.CandidateItem{
			Title:           r.Title,
			Body:            strings.Join(r.Description, " "),
			SourceName:      "loc",
			SourceAuthority: "government",
			URL:             r.URL,
			Kind:            "archive",
			Date:            r.Date,
			Topics:          r.Subjects,
			Location:        q.Location,
		}
		for _, img := range r.ImageURL {
			item.Media = append(item.Media, content.MediaRef{Kind: "image", URL: img})
		}
		item.Fingerprint = content.Fingerprint(item.Title, item.SourceName, locationOrDate(item))
		items = append(items, item)
	}
	return items, nil
}
