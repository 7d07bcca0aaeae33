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

// Package research detects interrogative queries and answers them with a
// single LLM-backed deep research call instead of a multi-source fan-out.
package research

import "strings"

// Classification is the result of scoring one query string.
type Classification struct {
	IsQuestion bool    `json:"is_question"`
	Confidence float64 `json:"confidence"`
}

// Rule weights for the question classifier.
const (
	weightQuestionMark = 0.5
	weightLexeme       = 0.4
	weightPhrase       = 0.3
	questionThreshold  = 0.3
)

// questionLexemes are the openers that mark interrogative intent.
var questionLexemes = []string{
	"what", "why", "how", "when", "where", "who", "which",
	"tell me about", "explain", "describe",
}

// questionPhrases mark implicit questions ("history of rome").
var questionPhrases = []string{
	"history of", "origin of", "meaning of", "story of",
	"reason for", "cause of", "purpose of", "about",
}

// Classify scores a raw query string with the additive rule set. A query is
// a question when the score reaches the threshold, or when it ends with a
// question mark and is longer than two tokens.
func Classify(query string) Classification {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return Classification{}
	}
	lower := strings.ToLower(trimmed)
	tokens := strings.Fields(lower)

	confidence := 0.0
	endsWithMark := strings.HasSuffix(trimmed, "?")
	if endsWithMark {
		confidence += weightQuestionMark
	}
	if startsWithLexeme(lower) {
		confidence += weightLexeme
	}
	if containsPhrase(lower) {
		confidence += weightPhrase
	}
	if confidence > 1 {
		confidence = 1
	}

	isQuestion := confidence >= questionThreshold || (endsWithMark && len(tokens) > 2)
	return Classification{IsQuestion: isQuestion, Confidence: confidence}
}

func startsWithLexeme(lower string) bool {
	for _, lexeme := range questionLexemes {
		if lower == lexeme || strings.HasPrefix(lower, lexeme+" ") {
			return true
		}
	}
	return false
}

func containsPhrase(lower string) bool {
	for _, phrase := range questionPhrases {
		if strings.Contains(lower, " "+phrase+" ") ||
			strings.HasPrefix(lower, phrase+" ") {
			return true
		}
	}
	return false
}
