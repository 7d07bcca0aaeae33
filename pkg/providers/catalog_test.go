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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wandercast/wandercast/pkg/content"
	"github.com/wandercast/wandercast/pkg/store"
)

func TestNewCatalog(t *testing.T) {
	registry, err := NewCatalog(store.NewMemoryCache(), nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	names := registry.Names()
	assert.Equal(t, []string{
		"wikipedia", "wikivoyage", "geonames", "loc",
		"europeana", "gdelt", "datagov", "openalex",
	}, names)

	// Keyless providers are always available.
	wiki, ok := registry.Get("wikipedia")
	require.True(t, ok)
	assert.True(t, wiki.Available())

	free := registry.Available(content.TierFree)
	assert.NotEmpty(t, free)
	for _, c := range free {
		assert.Equal(t, content.TierFree, c.Descriptor().Tier)
	}

	news := registry.ByCategory(content.CategoryNews)
	require.Len(t, news, 1)
	assert.Equal(t, "gdelt", news[0].Name())
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	registry := NewRegistry()
	c, err := NewClient(Config{
		Descriptor: WikipediaDescriptor(),
		Build:      wikipediaBuild,
		Transform:  wikipediaTransform,
		Logger:     zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	require.NoError(t, registry.Register(c))
	assert.Error(t, registry.Register(c))
}

func TestWikipediaTransform(t *testing.T) {
	payload := []byte(`{"query":{"search":[
		{"title":"Sailing stones","pageid":42,"snippet":"Rocks that <span>move</span> by themselves","timestamp":"2024-01-01T00:00:00Z"},
		{"title":"","pageid":7,"snippet":"dropped"}
	]}}`)

	items, err := wikipediaTransform(Query{Text: "stones"}, payload)
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, "Sailing stones", items[0].Title)
	assert.Equal(t, "Rocks that move by themselves", items[0].Body)
	assert.Equal(t, "wikipedia", items[0].SourceName)
	assert.Equal(t, "community", items[0].SourceAuthority)
	assert.NotEmpty(t, items[0].Fingerprint)
}

func TestGDELTTransform(t *testing.T) {
	payload := []byte(`{"articles":[
		{"title":"Festival returns","url":"https://news.example/1","seendate":"20260122T133000Z","sourcecountry":"Portugal","socialimage":"https://news.example/1.jpg"}
	]}`)

	items, err := gdeltTransform(Query{Text: "festival"}, payload)
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, "2026-01-22", items[0].Date)
	assert.Equal(t, "major_news", items[0].SourceAuthority)
	require.Len(t, items[0].Media, 1)
	assert.Equal(t, "image", items[0].Media[0].Kind)
	require.NotNil(t, items[0].Location)
	assert.Equal(t, "Portugal", items[0].Location.Country)
}

func TestLocTransform(t *testing.T) {
	payload := []byte(`{"results":[
		{"title":"Civil War map","description":["Hand drawn map"],"date":"1863","url":"https://loc.gov/item/1","subject":["maps","war"],"image_url":["https://loc.gov/1.jpg"]}
	]}`)

	items, err := locTransform(Query{Text: "civil war"}, payload)
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, "government", items[0].SourceAuthority)
	assert.Equal(t, "1863", items[0].Date)
	assert.Equal(t, []string{"maps", "war"}, items[0].Topics)
}

func TestDatagovTransform_UnsuccessfulQuery(t *testing.T) {
	_, err := datagovTransform(Query{}, []byte(`{"success":false,"result":{}}`))
	assert.Error(t, err)
}

func TestOpenalexTransform(t *testing.T) {
	payload := []byte(`{"results":[
		{"title":"Archaeology of the Azores","publication_date":"2021-05-01","doi":"https://doi.org/10.1/x",
		 "concepts":[{"display_name":"Archaeology","score":0.9},{"display_name":"Noise","score":0.1}],
		 "primary_location":{"source":{"display_name":"Journal of Island Studies"}}}
	]}`)

	items, err := openalexTransform(Query{Text: "azores"}, payload)
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, "academic", items[0].SourceAuthority)
	assert.Equal(t, "research", items[0].Kind)
	assert.Equal(t, []string{"Archaeology"}, items[0].Topics)
}
