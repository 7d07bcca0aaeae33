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
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/wandercast/wandercast/pkg/content"
)

// Depth bounds for a research request. Depth 1 is a brief answer, depth 6
// an exhaustive survey.
const (
	MinDepth     = 1
	MaxDepth     = 6
	DefaultDepth = 3
)

// costPerDepthUnit prices one research call proportionally to its depth.
const costPerDepthUnit = 0.01

// Artifact is the structured long-form answer produced by one research call.
type Artifact struct {
	Overview     string   `json:"overview"`
	KeyFindings  []string `json:"key_findings"`
	DetailedBody string   `json:"detailed_body"`
	Conclusion   string   `json:"conclusion"`
	Sources      []string `json:"sources"`
	Confidence   float64  `json:"confidence"`
}

// messagesAPI is the slice of the Anthropic SDK the researcher uses.
type messagesAPI interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Config assembles a researcher.
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int64
	Logger    *zap.Logger
}

func (c *Config) withDefaults() {
	if c.Model == "" {
		c.Model = "claude-sonnet-4-5"
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Researcher issues single-shot deep research calls against an LLM endpoint.
// Without an API key it reports unavailable; startup never fails on a
// missing key.
type Researcher struct {
	messages  messagesAPI
	model     string
	maxTokens int64
	logger    *zap.Logger
	available bool
}

// NewResearcher builds a researcher. A missing API key leaves the
// researcher constructed but unavailable.
func NewResearcher(cfg Config) *Researcher {
	cfg.withDefaults()

	r := &Researcher{
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    cfg.Logger,
	}
	if cfg.APIKey != "" {
		client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
		r.messages = &client.Messages
		r.available = true
	}
	return r
}

// Available reports whether research calls can be issued.
func (r *Researcher) Available() bool {
	return r.available && r.messages != nil
}

// Cost estimates the spend of one research call at the given depth.
func (r *Researcher) Cost(depth int) float64 {
	return costPerDepthUnit * float64(clampDepth(depth))
}

// Research answers a question with one LLM call and wraps the structured
// artifact as a single candidate item.
func (r *Researcher) Research(ctx context.Context, query string, depth int, focusAreas []string) (*content.CandidateItem, *Artifact, error) {
	if !r.Available() {
		return nil, nil, errors.New("research endpoint not configured")
	}
	depth = clampDepth(depth)

	message, err := r.messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(r.model),
		MaxTokens: r.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt(query, depth, focusAreas))),
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("research call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	artifact, err := parseArtifact(text.String())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing research artifact: %w", err)
	}

	item := artifactItem(query, artifact)
	r.logger.Info("research call completed",
		zap.Int("depth", depth),
		zap.Int("findings", len(artifact.KeyFindings)),
		zap.Float64("confidence", artifact.Confidence),
	)
	return item, artifact, nil
}

const systemPrompt = `You are a research assistant producing structured research briefs.
Respond with a single JSON object and nothing else, using exactly these keys:
{"overview": string, "key_findings": [string], "detailed_body": string,
 "conclusion": string, "sources": [string], "confidence": number between 0 and 1}`

var depthLabels = map[int]string{
	1: "a brief summary",
	2: "a short overview",
	3: "a standard research brief",
	4: "a detailed analysis",
	5: "a comprehensive report",
	6: "an exhaustive survey",
}

func userPrompt(query string, depth int, focusAreas []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research the following question and produce %s.\n\nQuestion: %s\n", depthLabels[depth], query)
	if len(focusAreas) > 0 {
		fmt.Fprintf(&b, "\nFocus areas: %s\n", strings.Join(focusAreas, ", "))
	}
	return b.String()
}

// parseArtifact decodes the model's JSON reply, tolerating surrounding prose
// or code fences by slicing out the outermost object.
func parseArtifact(text string) (*Artifact, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, errors.New("reply contains no JSON object")
	}

	var artifact Artifact
	if err := json.Unmarshal([]byte(text[start:end+1]), &artifact); err != nil {
		return nil, err
	}
	if artifact.Overview == "" && artifact.DetailedBody == "" {
		return nil, errors.New("artifact carries no content")
	}
	if artifact.Confidence < 0 {
		artifact.Confidence = 0
	}
	if artifact.Confidence > 1 {
		artifact.Confidence = 1
	}
	return &artifact, nil
}

func artifactItem(query string, artifact *Artifact) *content.CandidateItem {
	var body strings.Builder
	body.WriteString(artifact.Overview)
	for _, finding := range artifact.KeyFindings {
		body.WriteString("\n- ")
		body.WriteString(finding)
	}
	if artifact.DetailedBody != "" {
		body.WriteString("\n\n")
		body.WriteString(artifact.DetailedBody)
	}
	if artifact.Conclusion != "" {
		body.WriteString("\n\n")
		body.WriteString(artifact.Conclusion)
	}

	raw, _ := json.Marshal(artifact)
	item := &content.CandidateItem{
		Title:           query,
		Body:            body.String(),
		SourceName:      "research",
		SourceAuthority: "research",
		Kind:            "research",
		RawPayload:      raw,
	}
	if len(artifact.Sources) > 0 {
		item.URL = artifact.Sources[0]
	}
	item.Fingerprint = content.Fingerprint(item.Title, item.SourceName, "")
	return item
}

func clampDepth(depth int) int {
	if depth < MinDepth {
		return MinDepth
	}
	if depth > MaxDepth {
		return MaxDepth
	}
	return depth
}
