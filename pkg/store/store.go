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

// Package store defines the repository interfaces the core depends on and
// their memory, SQLite, and Redis-backed implementations. The core never
// talks to a database directly.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/wandercast/wandercast/pkg/content"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrTerminalStatus is returned by UpdateStatus when the job already sits in
// a terminal status. A job never moves out of completed, failed, or
// cancelled.
var ErrTerminalStatus = errors.New("job already in a terminal status")

// JobStatus is the lifecycle state of a generation job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// Terminal reports whether a job can never change status again.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Job is the durable record of one generation request. Jobs are the only
// entities that persist past process exit.
type Job struct {
	ID                  string              `json:"id"`
	OwnerID             string              `json:"owner_id"`
	QueryText           string              `json:"query_text"`
	RequestKind         content.RequestKind `json:"request_kind"`
	PreferencesSnapshot []byte              `json:"preferences_snapshot,omitempty"`
	Status              JobStatus           `json:"status"`
	Progress            int                 `json:"progress"`
	Result              []byte              `json:"result,omitempty"` // serialized content.ResultSet
	ScriptText          string              `json:"script_text,omitempty"`
	AudioURL            string              `json:"audio_url,omitempty"`
	Error               string              `json:"error,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
	CompletedAt         *time.Time          `json:"completed_at,omitempty"`
}

// User is the slice of the user record the core needs: identity and tier.
type User struct {
	ID    string `json:"id"`
	Tier  string `json:"tier"` // free, premium
	Token string `json:"-"`    // bearer token, resolved by the API layer
}

// JobRepo persists generation jobs. UpdateStatus refuses to move a job out
// of a terminal status, returning ErrTerminalStatus.
type JobRepo interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	UpdateStatus(ctx context.Context, id string, status JobStatus) error
	UpdateProgress(ctx context.Context, id string, progress int) error
	SetResult(ctx context.Context, id string, result []byte) error
	SetError(ctx context.Context, id string, message string) error
	Delete(ctx context.Context, id string) error
	ListByOwner(ctx context.Context, owner string, skip, limit int, status JobStatus) ([]*Job, error)
}

// UserRepo resolves users by id or bearer token.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByToken(ctx context.Context, token string) (*User, error)
}

// PreferenceRepo reads the learned per-user preference model. The core only
// reads it; every method may return ErrNotFound for users without a model.
type PreferenceRepo interface {
	GetSurprise(ctx context.Context, owner string) (int, error)
	GetTopics(ctx context.Context, owner string) ([]string, error)
	GetDepth(ctx context.Context, owner string) (int, error)
}

// CacheRepo stores provider responses by fingerprint key. Implementations
// must degrade, never fail, when the backing store is unreachable.
type CacheRepo interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
