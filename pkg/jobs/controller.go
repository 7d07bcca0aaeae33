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

// Package jobs drives the durable job state machine around the acquisition
// fan-out: pending, processing, and the terminal completed, failed, and
// cancelled states.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wandercast/wandercast/pkg/content"
	"github.com/wandercast/wandercast/pkg/orchestrator"
	"github.com/wandercast/wandercast/pkg/providers"
	"github.com/wandercast/wandercast/pkg/scoring"
	"github.com/wandercast/wandercast/pkg/store"
)

// DefaultJobTimeout bounds one job end to end.
const DefaultJobTimeout = 10 * time.Minute

// ErrNotCancellable is returned when cancel targets a job that is not
// processing.
var ErrNotCancellable = errors.New("job is not processing")

// Runner executes one acquisition request; satisfied by the orchestrator.
type Runner interface {
	Run(ctx context.Context, req orchestrator.Request) (*content.ResultSet, error)
}

// Config assembles a controller.
type Config struct {
	Jobs       store.JobRepo
	Users      store.UserRepo
	Runner     Runner
	JobTimeout time.Duration
	Logger     *zap.Logger
}

// Controller owns every job transition. It holds no lock across I/O; the
// only in-memory state is the cancel handle of each running job.
type Controller struct {
	jobs       store.JobRepo
	users      store.UserRepo
	runner     Runner
	jobTimeout time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewController builds a controller.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Jobs == nil {
		return nil, errors.New("controller requires a job repository")
	}
	if cfg.Runner == nil {
		return nil, errors.New("controller requires a runner")
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Controller{
		jobs:       cfg.Jobs,
		users:      cfg.Users,
		runner:     cfg.Runner,
		jobTimeout: cfg.JobTimeout,
		logger:     cfg.Logger,
		running:    make(map[string]context.CancelFunc),
	}, nil
}

// CreateParams describes a new job.
type CreateParams struct {
	OwnerID   string
	Query     string
	Kind      content.RequestKind
	Overrides *scoring.Overrides
}

// Create inserts a pending job and returns it.
func (c *Controller) Create(ctx context.Context, p CreateParams) (*store.Job, error) {
	if p.Query == "" {
		return nil, errors.New("job requires a query")
	}
	if p.Kind == "" {
		p.Kind = content.RequestPlace
	}

	snapshot := []byte(nil)
	if p.Overrides != nil {
		var err error
		snapshot, err = json.Marshal(p.Overrides)
		if err != nil {
			return nil, fmt.Errorf("encoding preference snapshot: %w", err)
		}
	}

	job := &store.Job{
		ID:                  uuid.NewString(),
		OwnerID:             p.OwnerID,
		QueryText:           p.Query,
		RequestKind:         p.Kind,
		PreferencesSnapshot: snapshot,
		Status:              store.JobPending,
	}
	if err := c.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("persisting job: %w", err)
	}
	return job, nil
}

// Start moves a pending job to processing and launches the fan-out as a
// detached task. Starting an already-processing job is a no-op.
func (c *Controller) Start(ctx context.Context, id string) error {
	job, err := c.jobs.Get(ctx, id)
	if err != nil {
		return err
	}

	switch job.Status {
	case store.JobProcessing:
		return nil
	case store.JobPending:
	default:
		return fmt.Errorf("job %s is %s and cannot start", id, job.Status)
	}

	if err := c.jobs.UpdateStatus(ctx, id, store.JobProcessing); err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(context.Background(), c.jobTimeout)
	c.mu.Lock()
	c.running[id] = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(runCtx, job)
	return nil
}

// Cancel aborts a processing job. In-flight provider calls observe the
// cancellation at their next suspension point.
func (c *Controller) Cancel(ctx context.Context, id string) error {
	job, err := c.jobs.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != store.JobProcessing {
		return fmt.Errorf("%w: job %s is %s", ErrNotCancellable, id, job.Status)
	}

	if err := c.jobs.UpdateStatus(ctx, id, store.JobCancelled); err != nil {
		return err
	}

	c.mu.Lock()
	cancel, ok := c.running[id]
	c.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

// Get returns one job.
func (c *Controller) Get(ctx context.Context, id string) (*store.Job, error) {
	return c.jobs.Get(ctx, id)
}

// List returns the owner's jobs, newest first.
func (c *Controller) List(ctx context.Context, owner string, skip, limit int, status store.JobStatus) ([]*store.Job, error) {
	return c.jobs.ListByOwner(ctx, owner, skip, limit, status)
}

// Delete removes one job record.
func (c *Controller) Delete(ctx context.Context, id string) error {
	return c.jobs.Delete(ctx, id)
}

// Regenerate creates and starts a fresh job reusing a stored job's query,
// kind, and preference snapshot.
func (c *Controller) Regenerate(ctx context.Context, id string) (*store.Job, error) {
	prior, err := c.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var overrides *scoring.Overrides
	if len(prior.PreferencesSnapshot) > 0 {
		overrides = &scoring.Overrides{}
		if err := json.Unmarshal(prior.PreferencesSnapshot, overrides); err != nil {
			return nil, fmt.Errorf("decoding preference snapshot: %w", err)
		}
	}

	job, err := c.Create(ctx, CreateParams{
		OwnerID:   prior.OwnerID,
		Query:     prior.QueryText,
		Kind:      prior.RequestKind,
		Overrides: overrides,
	})
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx, job.ID); err != nil {
		return nil, err
	}
	return job, nil
}

// Wait blocks until every detached job task has finished. Used by shutdown
// and tests.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// run executes the fan-out for one job and persists the terminal state.
func (c *Controller) run(ctx context.Context, job *store.Job) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		if cancel, ok := c.running[job.ID]; ok {
			delete(c.running, job.ID)
			cancel()
		}
		c.mu.Unlock()
	}()

	req := orchestrator.Request{
		Query:    job.QueryText,
		Kind:     job.RequestKind,
		OwnerID:  job.OwnerID,
		Progress: c.progressFunc(ctx, job.ID),
	}
	if len(job.PreferencesSnapshot) > 0 {
		overrides := &scoring.Overrides{}
		if err := json.Unmarshal(job.PreferencesSnapshot, overrides); err == nil {
			req.Overrides = overrides
		}
	}
	if c.users != nil && job.OwnerID != "" {
		if user, err := c.users.GetByID(ctx, job.OwnerID); err == nil {
			req.OwnerTier = user.Tier
		}
	}

	result, err := c.runner.Run(ctx, req)
	if err != nil {
		c.finishWithError(job.ID, err)
		return
	}

	artifact, err := json.Marshal(result)
	if err != nil {
		c.finishWithError(job.ID, providers.NewError(providers.KindInternal, "", err))
		return
	}

	persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// A concurrent cancel may have persisted a terminal status while the
	// runner was still producing; a terminal job never changes again.
	current, err := c.jobs.Get(persistCtx, job.ID)
	if err != nil {
		c.logger.Error("reading job after run", zap.String("job", job.ID), zap.Error(err))
		return
	}
	if current.Status.Terminal() {
		c.logger.Info("discarding result for terminal job",
			zap.String("job", job.ID),
			zap.String("status", string(current.Status)),
		)
		return
	}

	if err := c.jobs.SetResult(persistCtx, job.ID, artifact); err != nil {
		c.finishWithError(job.ID, providers.NewError(providers.KindInternal, "", err))
		return
	}
	if err := c.jobs.UpdateProgress(persistCtx, job.ID, 100); err != nil {
		c.logger.Warn("final progress write failed", zap.String("job", job.ID), zap.Error(err))
	}
	if err := c.jobs.UpdateStatus(persistCtx, job.ID, store.JobCompleted); err != nil {
		if errors.Is(err, store.ErrTerminalStatus) {
			// Lost the race to a cancel between the re-read and the write;
			// the repository kept the terminal status.
			c.logger.Info("discarding result for terminal job", zap.String("job", job.ID))
			return
		}
		c.logger.Error("completing job failed", zap.String("job", job.ID), zap.Error(err))
		return
	}
	c.logger.Info("job completed",
		zap.String("job", job.ID),
		zap.Int("items", len(result.Items)),
		zap.Float64("cost", result.TotalCost),
	)
}

// finishWithError persists the terminal state for a failed or cancelled
// run, unless a concurrent cancel already wrote it.
func (c *Controller) finishWithError(id string, runErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	job, err := c.jobs.Get(ctx, id)
	if err != nil {
		c.logger.Error("reading job after failed run", zap.String("job", id), zap.Error(err))
		return
	}
	if job.Status.Terminal() {
		return
	}

	status := store.JobFailed
	if providers.KindOf(runErr) == providers.KindCancelled {
		status = store.JobCancelled
	}

	if err := c.jobs.SetError(ctx, id, userMessage(runErr)); err != nil {
		c.logger.Error("persisting job error", zap.String("job", id), zap.Error(err))
	}
	if err := c.jobs.UpdateStatus(ctx, id, status); err != nil {
		if errors.Is(err, store.ErrTerminalStatus) {
			return
		}
		c.logger.Error("persisting terminal status", zap.String("job", id), zap.Error(err))
	}
	c.logger.Info("job finished without result",
		zap.String("job", id),
		zap.String("status", string(status)),
		zap.Error(runErr),
	)
}

// progressFunc returns a monotone progress reporter for one job.
func (c *Controller) progressFunc(ctx context.Context, id string) orchestrator.ProgressFunc {
	var mu sync.Mutex
	last := 0
	return func(percent int) {
		mu.Lock()
		if percent <= last {
			mu.Unlock()
			return
		}
		last = percent
		mu.Unlock()

		if err := c.jobs.UpdateProgress(ctx, id, percent); err != nil {
			c.logger.Debug("progress write failed", zap.String("job", id), zap.Error(err))
		}
	}
}

// userMessage maps an internal error onto the stable, sanitized message
// stored on the job record.
func userMessage(err error) string {
	switch providers.KindOf(err) {
	case providers.KindNoSources:
		return "no content sources were available for this request"
	case providers.KindCancelled:
		return "the request was cancelled"
	case providers.KindBudgetExceeded:
		return "the request exceeded the spending budget for your plan"
	default:
		return "an internal error prevented this request from completing"
	}
}
