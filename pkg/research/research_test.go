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
package research

import (
	"context"
	"errors"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeMessages struct {
	reply string
	err   error
	calls int
	last  anthropic.MessageNewParams
}

func (f *fakeMessages) New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error) {
	f.calls++
	f.last = params
	if f.err != nil {
		return nil, f.err
	}
	return &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: f.reply},
		},
	}, nil
}

func newTestResearcher(t *testing.T, fake *fakeMessages) *Researcher {
	t.Helper()
	return &Researcher{
		messages:  fake,
		model:     "claude-sonnet-4-5",
		maxTokens: 1024,
		logger:    zaptest.NewLogger(t),
		available: true,
	}
}

const artifactJSON = `{
	"overview": "The fall of Rome was a centuries-long process.",
	"key_findings": ["Overextension", "Economic decline", "External pressure"],
	"detailed_body": "The Western Roman Empire dissolved over the fifth century.",
	"conclusion": "No single cause explains the collapse.",
	"sources": ["https://example.org/gibbon"],
	"confidence": 0.8
}`

func TestResearcher_Research(t *testing.T) {
	fake := &fakeMessages{reply: artifactJSON}
	r := newTestResearcher(t, fake)

	item, artifact, err := r.Research(context.Background(), "Why did the Roman Empire fall?", 4, []string{"economics"})
	require.NoError(t, err)
	require.NotNil(t, artifact)

	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, "research", item.SourceName)
	assert.Equal(t, "research", item.SourceAuthority)
	assert.Equal(t, "Why did the Roman Empire fall?", item.Title)
	assert.Contains(t, item.Body, "Overextension")
	assert.Contains(t, item.Body, "No single cause")
	assert.Equal(t, "https://example.org/gibbon", item.URL)
	assert.NotEmpty(t, item.Fingerprint)
	assert.NotEmpty(t, item.RawPayload)

	assert.InDelta(t, 0.8, artifact.Confidence, 1e-9)
	assert.Len(t, artifact.KeyFindings, 3)
}

func TestResearcher_PromptCarriesDepthAndFocus(t *testing.T) {
	fake := &fakeMessages{reply: artifactJSON}
	r := newTestResearcher(t, fake)

	_, _, err := r.Research(context.Background(), "q", 6, []string{"trade", "language"})
	require.NoError(t, err)

	require.Len(t, fake.last.Messages, 1)
	blocks := fake.last.Messages[0].Content
	require.NotEmpty(t, blocks)
	prompt := blocks[0].OfText.Text
	assert.Contains(t, prompt, "exhaustive survey")
	assert.Contains(t, prompt, "trade, language")
}

func TestResearcher_ToleratesFencedReply(t *testing.T) {
	fake := &fakeMessages{reply: "Here is the brief:\n```json\n" + artifactJSON + "\n```"}
	r := newTestResearcher(t, fake)

	_, artifact, err := r.Research(context.Background(), "q", 3, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, artifact.Overview)
}

func TestResearcher_ErrorPaths(t *testing.T) {
	t.Run("upstream error", func(t *testing.T) {
		fake := &fakeMessages{err: errors.New("boom")}
		r := newTestResearcher(t, fake)
		_, _, err := r.Research(context.Background(), "q", 3, nil)
		assert.Error(t, err)
	})

	t.Run("unparseable reply", func(t *testing.T) {
		fake := &fakeMessages{reply: "I cannot answer that."}
		r := newTestResearcher(t, fake)
		_, _, err := r.Research(context.Background(), "q", 3, nil)
		assert.Error(t, err)
	})

	t.Run("unconfigured researcher", func(t *testing.T) {
		r := NewResearcher(Config{Logger: zaptest.NewLogger(t)})
		assert.False(t, r.Available())
		_, _, err := r.Research(context.Background(), "q", 3, nil)
		assert.Error(t, err)
	})
}

func TestResearcher_CostScalesWithDepth(t *testing.T) {
	r := NewResearcher(Config{APIKey: "test-key"})
	assert.True(t, r.Available())
	assert.Less(t, r.Cost(1), r.Cost(6))
	assert.InDelta(t, r.Cost(MinDepth), r.Cost(-5), 1e-9)
	assert.InDelta(t, r.Cost(MaxDepth), r.Cost(50), 1e-9)
}
