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
	"errors"
	"fmt"
)

// ErrorKind classifies a provider failure for routing decisions: which
// failures trip the breaker, which are retried, and which disable a client.
type ErrorKind string

const (
	KindTransport           ErrorKind = "transport"
	KindRateLimitedUpstream ErrorKind = "rate_limited_upstream"
	KindAuthFailure         ErrorKind = "auth_failure"
	KindParseFailure        ErrorKind = "parse_failure"
	KindCircuitOpen         ErrorKind = "circuit_open"
	KindBudgetExceeded      ErrorKind = "budget_exceeded"
	KindNoSources           ErrorKind = "no_sources"
	KindCancelled           ErrorKind = "cancelled"
	KindInternal            ErrorKind = "internal"
)

// Error is a provider failure tagged with its kind and origin.
type Error struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind and provider tag.
func NewError(kind ErrorKind, provider string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Err: err}
}

// KindOf extracts the error kind, defaulting to internal for untagged errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// TripsBreaker reports whether a failure should count against the circuit.
// Transport failures and unparseable payloads indicate an unhealthy
// upstream. Upstream throttling, auth problems, budget stops, and
// cancellation say nothing about upstream health and must not trip it.
func TripsBreaker(err error) bool {
	switch KindOf(err) {
	case KindTransport, KindParseFailure:
		return true
	default:
		return false
	}
}
