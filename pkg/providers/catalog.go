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
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/wandercast/wandercast/pkg/content"
	"github.com/wandercast/wandercast/pkg/store"
)

// catalogEntry binds a descriptor to its builder and transform.
type catalogEntry struct {
	descriptor content.ProviderDescriptor
	build      RequestBuilder
	transform  Transform
}

func catalogEntries() []catalogEntry {
	return []catalogEntry{
		{WikipediaDescriptor(), wikipediaBuild, wikipediaTransform},
		{WikivoyageDescriptor(), wikivoyageBuild, wikivoyageTransform},
		{GeoNamesDescriptor(), geonamesBuild, geonamesTransform},
		{LibraryOfCongressDescriptor(), locBuild, locTransform},
		{EuropeanaDescriptor(), europeanaBuild, europeanaTransform},
		{GDELTDescriptor(), gdeltBuild, gdeltTransform},
		{DataGovDescriptor(), datagovBuild, datagovTransform},
		{OpenAlexDescriptor(), openalexBuild, openalexTransform},
	}
}

// NewCatalog builds a registry holding every known provider. Providers whose
// key is absent still register; they report unavailable until configured.
func NewCatalog(cache store.CacheRepo, httpClient *http.Client, logger *zap.Logger) (*Registry, error) {
	registry := NewRegistry()
	for _, entry := range catalogEntries() {
		client, err := NewClient(Config{
			Descriptor: entry.descriptor,
			Build:      entry.build,
			Transform:  entry.transform,
			Cache:      cache,
			HTTPClient: httpClient,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("building provider %s: %w", entry.descriptor.Name, err)
		}
		if err := registry.Register(client); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func limitOr(limit, fallback int) int {
	if limit > 0 {
		return limit
	}
	return fallback
}

// locationOrDate picks the fingerprint discriminator for an item: the
// location name when one exists, the date otherwise.
func locationOrDate(item *content.CandidateItem) string {
	if item.Location != nil && item.Location.Name != "" {
		return item.Location.Name
	}
	return item.Date
}
