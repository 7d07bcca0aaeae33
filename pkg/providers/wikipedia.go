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
	"regexp"
	"strconv"
	"time"

	"github.com/wandercast/wandercast/pkg/content"
)

var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)

// WikipediaDescriptor configures the Wikipedia search provider.
func WikipediaDescriptor() content.ProviderDescriptor {
	return content.ProviderDescriptor{
		Name:       "wikipedia",
		Category:   content.CategoryCultural,
		Tier:       content.TierFree,
		BaseURL:    "https://en.wikipedia.org/w/api.php",
		AuthMode:   content.AuthNone,
		RateLimit:  5,
		RatePeriod: time.Second,
		CacheTTL:   time.Hour,
		Timeout:    8 * time.Second,
		MaxRetries: 2,
	}
}

func wikipediaBuild(q Query) (string, url.Values) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "search")
	params.Set("srsearch", q.Text)
	params.Set("srlimit", strconv.Itoa(limitOr(q.Limit, 10)))
	params.Set("srprop", "snippet|timestamp")
	params.Set("format", "json")
	return "", params
}

type wikipediaResponse struct {
	Query struct {
		Search []struct {
			Title     string `json:"title"`
			PageID    int    `json:"pageid"`
			Snippet   string `json:"snippet"`
			Timestamp string `json:"timestamp"`
		} `json:"search"`
	} `json:"query"`
}

func wikipediaTransform(q Query, payload []byte) ([]*content.CandidateItem, error) {
	var resp wikipediaResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("decoding wikipedia response: %w", err)
	}

	items := make([]*content.CandidateItem, 0, len(resp.Query.Search))
	for _, hit := range resp.Query.Search {
		if hit.Title == "" {
			continue
		}
		item := &content.CandidateItem{
			Title:           hit.Title,
			Body:            htmlTagPattern.ReplaceAllString(hit.Snippet, ""),
			SourceName:      "wikipedia",
			SourceAuthority: "community",
			URL:             "https://en.wikipedia.org/?curid=" + strconv.Itoa(hit.PageID),
			Kind:            "article",
			Location:        q.Location,
		}
		item.Fingerprint = content.Fingerprint(item.Title, item.SourceName, locationOrDate(item))
		items = append(items, item)
	}
	return items, nil
}
