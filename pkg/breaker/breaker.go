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

// Package breaker implements the per-provider circuit breaker that fails
// fast when an upstream is known-bad.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a call is rejected without invoking the
// wrapped function because the circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// State is the health state of one breaker.
type State int

const (
	// StateClosed - normal operation, requests allowed
	StateClosed State = iota
	// StateOpen - failing, requests blocked
	StateOpen
	// StateHalfOpen - testing if recovered, limited requests
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config configures a circuit breaker.
type Config struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// circuit. Default: 5.
	FailureThreshold int

	// RecoveryTimeout is how long the circuit stays open before a probe
	// call is allowed through. Default: 60s.
	RecoveryTimeout time.Duration

	// SuccessThreshold is the consecutive-success count in half-open that
	// closes the circuit. Default: 2.
	SuccessThreshold int

	// IsFailure classifies an error as a breaker failure. Cancellation and
	// client-side errors (4xx) should not trip the breaker. Default: any
	// non-nil error except context cancellation.
	IsFailure func(error) bool
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 60 * time.Second
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.IsFailure == nil {
		c.IsFailure = func(err error) bool {
			if err == nil {
				return false
			}
			return !errors.Is(err, context.Canceled)
		}
	}
	return c
}

// Breaker is a per-provider health state machine.
//
// Transitions:
//   - closed -> open: after FailureThreshold consecutive failures
//   - open -> half_open: first attempted call after RecoveryTimeout
//   - half_open -> closed: after SuccessThreshold consecutive successes
//   - half_open -> open: any failure (resets the recovery timer)
//   - any -> closed: explicit Reset
type Breaker struct {
	name   string
	config Config

	mu           sync.Mutex
	state        State
	failures     int
	successes    int
	lastFailure  time.Time
	stateChanged time.Time
}

// New creates a closed breaker for the named provider.
func New(name string, config Config) *Breaker {
	return &Breaker{
		name:         name,
		config:       config.withDefaults(),
		state:        StateClosed,
		stateChanged: time.Now(),
	}
}

// Call invokes fn under breaker protection. If the circuit is open and the
// recovery timer has not elapsed, fn is not invoked and ErrCircuitOpen is
// returned. Otherwise fn runs and its result is recorded.
func (b *Breaker) Call(fn func() error) error {
	if !b.allow() {
		return fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)
	}

	err := fn()
	if b.config.IsFailure(err) {
		b.RecordFailure()
	} else if err == nil {
		b.RecordSuccess()
	}
	// An aborted or non-tripping error leaves counters intact.
	return err
}

// allow reports whether a call may proceed, transitioning open -> half_open
// when the recovery timer has elapsed.
func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if time.Since(b.lastFailure) >= b.config.RecoveryTimeout {
			b.state = StateHalfOpen
			b.failures = 0
			b.successes = 0
			b.stateChanged = time.Now()
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess notes a successful provider call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == StateHalfOpen {
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.state = StateClosed
			b.successes = 0
			b.stateChanged = time.Now()
		}
	}
}

// RecordFailure notes a failed provider call.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.successes = 0
	b.lastFailure = time.Now()

	switch b.state {
	case StateClosed:
		if b.failures >= b.config.FailureThreshold {
			b.state = StateOpen
			b.stateChanged = time.Now()
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.stateChanged = time.Now()
	}
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = 0
	b.successes = 0
	b.stateChanged = time.Now()
}

// State returns the current state without transitioning.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats is a point-in-time snapshot of one breaker.
type Stats struct {
	Name                 string    `json:"name"`
	State                string    `json:"state"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	LastFailure          time.Time `json:"last_failure,omitempty"`
}

// Stats returns a snapshot for the operational endpoint.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		Name:                 b.name,
		State:                b.state.String(),
		ConsecutiveFailures:  b.failures,
		ConsecutiveSuccesses: b.successes,
		LastFailure:          b.lastFailure,
	}
}

// Registry hands out one shared breaker per provider name.
type Registry struct {
	mu       sync.Mutex
	config   Config
	breakers map[string]*Breaker
}

// NewRegistry creates a registry whose breakers share the given config.
func NewRegistry(config Config) *Registry {
	return &Registry{
		config:   config,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for name, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := New(name, r.config)
	r.breakers[name] = b
	return b
}

// Snapshot returns stats for every known breaker.
func (r *Registry) Snapshot() []Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Stats, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Stats())
	}
	return out
}
