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

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryJobRepo is an in-memory JobRepo. Thread-safe; suitable for
// development and testing.
type MemoryJobRepo struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryJobRepo creates an empty in-memory job repository.
func NewMemoryJobRepo() *MemoryJobRepo {
	return &MemoryJobRepo{jobs: make(map[string]*Job)}
}

func (m *MemoryJobRepo) Create(ctx context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *MemoryJobRepo) Get(ctx context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *MemoryJobRepo) UpdateStatus(ctx context.Context, id string, status JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status.Terminal() {
		return ErrTerminalStatus
	}
	job.Status = status
	job.UpdatedAt = time.Now()
	if status.Terminal() {
		t := job.UpdatedAt
		job.CompletedAt = &t
	}
	return nil
}

func (m *MemoryJobRepo) UpdateProgress(ctx context.Context, id string, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	job.Progress = progress
	job.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryJobRepo) SetResult(ctx context.Context, id string, result []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	job.Result = result
	job.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryJobRepo) SetError(ctx context.Context, id string, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	job.Error = message
	job.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryJobRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[id]; !ok {
		return ErrNotFound
	}
	delete(m.jobs, id)
	return nil
}

func (m *MemoryJobRepo) ListByOwner(ctx context.Context, owner string, skip, limit int, status JobStatus) ([]*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*Job, 0)
	for _, job := range m.jobs {
		if job.OwnerID != owner {
			continue
		}
		if status != "" && job.Status != status {
			continue
		}
		cp := *job
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if skip >= len(matched) {
		return []*Job{}, nil
	}
	matched = matched[skip:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

var _ JobRepo = (*MemoryJobRepo)(nil)

// MemoryUserRepo is an in-memory UserRepo seeded at startup.
type MemoryUserRepo struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byToken map[string]*User
}

// NewMemoryUserRepo creates a user repository seeded with the given users.
func NewMemoryUserRepo(users ...*User) *MemoryUserRepo {
	r := &MemoryUserRepo{
		byID:    make(map[string]*User),
		byToken: make(map[string]*User),
	}
	for _, u := range users {
		r.Add(u)
	}
	return r
}

// Add registers a user.
func (m *MemoryUserRepo) Add(u *User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[u.ID] = u
	if u.Token != "" {
		m.byToken[u.Token] = u
	}
}

func (m *MemoryUserRepo) GetByID(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryUserRepo) GetByToken(ctx context.Context, token string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

var _ UserRepo = (*MemoryUserRepo)(nil)

// MemoryPreferenceRepo is an in-memory PreferenceRepo.
type MemoryPreferenceRepo struct {
	mu       sync.RWMutex
	surprise map[string]int
	topics   map[string][]string
	depth    map[string]int
}

// NewMemoryPreferenceRepo creates an empty preference repository.
func NewMemoryPreferenceRepo() *MemoryPreferenceRepo {
	return &MemoryPreferenceRepo{
		surprise: make(map[string]int),
		topics:   make(map[string][]string),
		depth:    make(map[string]int),
	}
}

// SetSurprise seeds a surprise tolerance for tests and fixtures.
func (m *MemoryPreferenceRepo) SetSurprise(owner string, level int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.surprise[owner] = level
}

// SetTopics seeds topic preferences.
func (m *MemoryPreferenceRepo) SetTopics(owner string, topics []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics[owner] = topics
}

// SetDepth seeds a research depth preference.
func (m *MemoryPreferenceRepo) SetDepth(owner string, depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depth[owner] = depth
}

func (m *MemoryPreferenceRepo) GetSurprise(ctx context.Context, owner string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.surprise[owner]
	if !ok {
		return 0, ErrNotFound
	}
	return v, nil
}

func (m *MemoryPreferenceRepo) GetTopics(ctx context.Context, owner string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.topics[owner]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]string(nil), v...), nil
}

func (m *MemoryPreferenceRepo) GetDepth(ctx context.Context, owner string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.depth[owner]
	if !ok {
		return 0, ErrNotFound
	}
	return v, nil
}

var _ PreferenceRepo = (*MemoryPreferenceRepo)(nil)
