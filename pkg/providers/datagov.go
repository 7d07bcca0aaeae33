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

// DataGovDescriptor configures the data.gov CKAN catalog provider. An API
// key raises the rate allowance but is not required.
func DataGovDescriptor() content.ProviderDescriptor {
	return content.ProviderDescriptor{
		Name:       "datagov",
		Category:   content.CategoryGovernment,
		Tier:       content.TierFree,
		BaseURL:    "https://catalog.data.gov/api/3/action/package_search",
		AuthMode:   content.AuthHeaderKey,
		AuthName:   "X-Api-Key",
		RateLimit:  2,
		RatePeriod: time.Second,
		CacheTTL:   24 * time.Hour,
		Timeout:    10 * time.Second,
		MaxRetries: 2,
	}
}

func datagovBuild(q Query) (string, url.Values) {
	params := url.Values{}
	params.Set("q", q.Text)
	params.Set("rows", strconv.Itoa(limitOr(q.Limit, 8)))
	return "", params
}

type datagovResponse struct {
	Success bool `json:"success"`
	Result  struct {
		Results []struct {
			Title        string `json:"title"`
			Notes        string `json:"notes"`
			Name         string `json:"name"`
			MetadataDate string `json:"metadata_modified"`
			Organization struct {
				Title string `json:"title"`
			} `json:"organization"`
			Tags []struct {
				Name string `json:"name"`
			} `json:"tags"`
		} `json:"results"`
	} `json:"result"`
}

func datagovTransform(q Query, payload []byte) ([]*content.CandidateItem, error) {
	var resp datagovResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("decoding data.gov response: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("data.gov reported an unsuccessful query")
	}

	items := make([]*content.CandidateItem, 0, len(resp.Result.Results))
	for _, r := range resp.Result.Results {
		if r.Title == "" {
			continue
		}
		item := &content.CandidateItem{
			Title:           r.Title,
			Body:            r.Notes,
			SourceName:      "datagov",
			SourceAuthority: "government",
			URL:             "https://catalog.data.gov/dataset/" + r.Name,
			Kind:            "dataset",
			Date:            r.MetadataDate,
			Location:        q.Location,
		}
		for _, tag := range r.Tags {
			item.Topics = append(item.Topics, tag.Name)
		}
		item.Fingerprint = content.Fingerprint(item.Title, item.SourceName, locationOrDate(item))
		items = append(items, item)
	}
	return items, nil
}
