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
	"sync"

	"github.com/wandercast/wandercast/pkg/content"
)

// Registry holds the process-wide set of provider clients in registration
// order. Selection strategies read it; registration happens at startup.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Register adds a client. Duplicate names are rejected.
func (r *Registry) Register(c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if _, exists := r.clients[name]; exists {
		return fmt.Errorf("provider %s already registered", name)
	}
	r.clients[name] = c
	r.order = append(r.order, name)
	return nil
}

// Get returns the named client.
func (r *Registry) Get(name string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[name]
	return c, ok
}

// All returns every registered client in registration order.
func (r *Registry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.clients[name])
	}
	return out
}

// Available returns the clients that can currently serve requests,
// optionally restricted to a tier.
func (r *Registry) Available(tier content.ProviderTier) []*Client {
	out := make([]*Client, 0)
	for _, c := range r.All() {
		if !c.Available() {
			continue
		}
		if tier != "" && c.Descriptor().Tier != tier {
			continue
		}
		out = append(out, c)
	}
	return out
}

// ByCategory returns the available clients serving one content category.
func (r *Registry) ByCategory(category content.ProviderCategory) []*Client {
	out := make([]*Client, 0)
	for _, c := range r.All() {
		if c.Available() && c.Descriptor().Category == category {
			out = append(out, c)
		}
	}
	return out
}

// Names returns registered provider names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}
