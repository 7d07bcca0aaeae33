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

// GDELTDescriptor configures the GDELT global news provider.
func GDELTDescriptor() content.ProviderDescriptor {
	return content.ProviderDescriptor{
		Name:       "gdelt",
		Category:   content.CategoryNews,
		Tier:       content.TierFree,
		BaseURL:    "https://api.gdeltproject.org/api/v2/doc/doc",
		AuthMode:   content.AuthNone,
		RateLimit:  1,
		RatePeriod: 2 * time.Second,
		CacheTTL:   30 * time.Minute,
		Timeout:    10 * time.Second,
		MaxRetries: 1,
	}
}

func gdeltBuild(q Query) (string, url.Values) {
	params := url.Values{}
	params.Set("query", q.Text)
	params.Set("mode", "artlist")
	params.Set("maxrecords", strconv.Itoa(limitOr(q.Limit, 10)))
	params.Set("format", "json")
	params.Set("sort", "hybridrel")
	return "", params
}

type gdeltResponse struct {
	Articles []struct {
		Title          string `json:"title"`
		URL            string `json:"url"`
		SeenDate       string `json:"seendate"` // 20260122T133000Z
		SourceCountry  string `json:"sourcecountry"`
		Domain         string `json:"domain"`
		SocialImageURL string `json:"socialimage"`
	} `json:"articles"`
}

func gdeltTransform(q Query, payload []byte) ([]*content.CandidateItem, error) {
	var resp gdeltResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("decoding gdelt response: %w", err)
	}

	items := make([]*content.CandidateItem, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		if a.Title == "" {
			continue
		}
		item := &content.CandidateItem{
			Title:           a.Title,
			SourceName:      "gdelt",
			SourceAuthority: "major_news",
			URL:             a.URL,
			Kind:            "article",
			Date:            gdeltDate(a.SeenDate),
			Location:        q.Location,
		}
		if a.SourceCountry != "" && item.Location == nil {
			item.Location = &content.Location{Country: a.SourceCountry}
		}
		if a.SocialImageURL != "" {
			item.Media = append(item.Media, content.MediaRef{Kind: "image", URL: a.SocialImageURL})
		}
		item.Fingerprint = content.Fingerprint(item.Title, item.SourceName, locationOrDate(item))
		items = append(items, item)
	}
	return items, nil
}

// gdeltDate converts GDELT's compact timestamp to an ISO date.
func gdeltDate(seen string) string {
	t, err := time.Parse("20060102T150405Z", seen)
	if err != nil {
		return ""
	}
	return t.Format("2006-01-02")
}
