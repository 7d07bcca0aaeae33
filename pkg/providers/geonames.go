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

// GeoNamesDescriptor configures the GeoNames gazetteer provider. GeoNames
// authenticates with a registered username passed as a query parameter.
func GeoNamesDescriptor() content.ProviderDescriptor {
	return content.ProviderDescriptor{
		Name:       "geonames",
		Category:   content.CategoryGeographic,
		Tier:       content.TierFree,
		BaseURL:    "https://secure.geonames.org/searchJSON",
		AuthMode:   content.AuthQueryKey,
		AuthName:   "username",
		KeyEnvVar:  "GEONAMES_USERNAME",
		RateLimit:  1,
		RatePeriod: time.Second,
		CacheTTL:   24 * time.Hour,
		Timeout:    6 * time.Second,
		MaxRetries: 2,
	}
}

func geonamesBuild(q Query) (string, url.Values) {
	params := url.Values{}
	params.Set("q", q.Text)
	params.Set("maxRows", strconv.Itoa(limitOr(q.Limit, 10)))
	params.Set("style", "FULL")
	return "", params
}

type geonamesResponse struct {
	Geonames []struct {
		Name        string  `json:"name"`
		ToponymName string  `json:"toponymName"`
		CountryName string  `json:"countryName"`
		Lat         string  `json:"lat"`
		Lng         string  `json:"lng"`
		FeatureName string  `json:"fclName"`
		Population  int64   `json:"population"`
		Elevation   float64 `json:"elevation"`
	} `json:"geonames"`
}

func geonamesTransform(q Query, payload []byte) ([]*content.CandidateItem, error) {
	var resp geonamesResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("decoding geonames response: %w", err)
	}

	items := make([]*content.CandidateItem, 0, len(resp.Geonames))
	for _, g := range resp.Geonames {
		name := g.Name
		if name == "" {
			name = g.ToponymName
		}
		if name == "" {
			continue
		}
		lat, _ := strconv.ParseFloat(g.Lat, 64)
		lng, _ := strconv.ParseFloat(g.Lng, 64)

		body := g.FeatureName
		if g.CountryName != "" {
			body = fmt.Sprintf("%s in %s", body, g.CountryName)
		}
		if g.Population > 0 {
			body = fmt.Sprintf("%s, population %d", body, g.Population)
		}

		item := &content.CandidateItem{
			Title:           name,
			Body:            body,
			SourceName:      "geonames",
			SourceAuthority: "community",
			Kind:            "place",
			Location: &content.Location{
				Name:      name,
				Latitude:  lat,
				Longitude: lng,
				Country:   g.CountryName,
			},
		}
		item.Fingerprint = content.Fingerprint(item.Title, item.SourceName, locationOrDate(item))
		items = append(items, item)
	}
	return items, nil
}
