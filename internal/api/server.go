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

// Package api exposes the authenticated job API over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/wandercast/wandercast/pkg/breaker"
	"github.com/wandercast/wandercast/pkg/content"
	"github.com/wandercast/wandercast/pkg/costs"
	"github.com/wandercast/wandercast/pkg/jobs"
	"github.com/wandercast/wandercast/pkg/ratelimit"
	"github.com/wandercast/wandercast/pkg/scoring"
	"github.com/wandercast/wandercast/pkg/store"
)

// Per-tier request quotas, requests per minute.
var tierQuotas = map[string]float64{
	"free":    5,
	"plus":    20,
	"premium": 60,
}

const quotaPeriod = time.Minute

// Config assembles the API server.
type Config struct {
	Controller *jobs.Controller
	Users      store.UserRepo
	Breakers   *breaker.Registry
	Ledger     *costs.Ledger
	Quotas     *ratelimit.Registry
	Logger     *zap.Logger
}

// Server routes the job API.
type Server struct {
	controller *jobs.Controller
	users      store.UserRepo
	breakers   *breaker.Registry
	ledger     *costs.Ledger
	quotas     *ratelimit.Registry
	logger     *zap.Logger
	router     chi.Router
}

// NewServer builds the HTTP server around a job controller.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Controller == nil {
		return nil, errors.New("api server requires a job controller")
	}
	if cfg.Users == nil {
		return nil, errors.New("api server requires a user repository")
	}
	if cfg.Quotas == nil {
		cfg.Quotas = ratelimit.NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &Server{
		controller: cfg.Controller,
		users:      cfg.Users,
		breakers:   cfg.Breakers,
		ledger:     cfg.Ledger,
		quotas:     cfg.Quotas,
		logger:     cfg.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics-lite", s.handleHealth)

	r.Route("/podcasts", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.quota)
		r.Post("/generate", s.handleGenerate)
		r.Get("/status/{jobID}", s.handleStatus)
		r.Get("/", s.handleList)
		r.Get("/{jobID}", s.handleGet)
		r.Delete("/{jobID}", s.handleDelete)
		r.Post("/{jobID}/regenerate", s.handleRegenerate)
	})
	s.router = r
	return s, nil
}

// Handler returns the router for mounting.
func (s *Server) Handler() http.Handler {
	return s.router
}

type ctxKey int

const userKey ctxKey = iota

func userFrom(ctx context.Context) *store.User {
	u, _ := ctx.Value(userKey).(*store.User)
	return u
}

// authenticate resolves the bearer token to a user record.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			s.writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		user, err := s.users.GetByToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				s.writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			s.logger.Error("token lookup failed", zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "authentication unavailable")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

// quota enforces the per-tier request rate. Exceeding it returns 429 with a
// Retry-After hint.
func (s *Server) quota(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r.Context())
		rate, ok := tierQuotas[user.Tier]
		if !ok {
			rate = tierQuotas["free"]
		}

		bucket := s.quotas.Get("user:"+user.ID, rate, quotaPeriod)
		if !bucket.TryAcquire() {
			retryAfter := int(quotaPeriod.Seconds() / rate)
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			s.writeError(w, http.StatusTooManyRequests, "request quota exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type generateRequest struct {
	Location    string             `json:"location,omitempty"`
	Query       string             `json:"query,omitempty"`
	PodcastType string             `json:"podcast_type,omitempty"`
	Preferences *scoring.Overrides `json:"preferences,omitempty"`
}

type generateResponse struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	PodcastID string `json:"podcast_id"`
}

// requestKindFor maps the API's podcast_type onto the internal request kind.
func requestKindFor(podcastType string) (content.RequestKind, bool) {
	switch podcastType {
	case "", "base":
		return content.RequestPlace, true
	case "standout":
		return content.RequestStandout, true
	case "topic":
		return content.RequestTopic, true
	case "personalized":
		return content.RequestPersonalized, true
	default:
		return "", false
	}
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	query := req.Query
	if query == "" {
		query = req.Location
	}
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "location or query is required")
		return
	}
	kind, ok := requestKindFor(req.PodcastType)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "unknown podcast_type")
		return
	}
	// Personalized requests run the place strategy with the preference
	// adapter active; the kind only differs in intent.
	if kind == content.RequestPersonalized {
		kind = content.RequestPlace
	}

	user := userFrom(r.Context())
	job, err := s.controller.Create(r.Context(), jobs.CreateParams{
		OwnerID:   user.ID,
		Query:     query,
		Kind:      kind,
		Overrides: req.Preferences,
	})
	if err != nil {
		s.logger.Error("job create failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "could not create job")
		return
	}
	if err := s.controller.Start(r.Context(), job.ID); err != nil {
		s.logger.Error("job start failed", zap.String("job", job.ID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "could not start job")
		return
	}

	s.writeJSON(w, http.StatusAccepted, generateResponse{
		JobID:     job.ID,
		Status:    string(store.JobProcessing),
		PodcastID: job.ID,
	})
}

type statusResponse struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	PodcastID string `json:"podcast_id"`
	Progress  int    `json:"progress"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.ownedJob(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, statusResponse{
		JobID:     job.ID,
		Status:    string(job.Status),
		Message:   job.Error,
		PodcastID: job.ID,
		Progress:  job.Progress,
	})
}

type jobResponse struct {
	JobID       string              `json:"job_id"`
	Status      string              `json:"status"`
	Kind        content.RequestKind `json:"kind"`
	Query       string              `json:"query"`
	Progress    int                 `json:"progress"`
	Result      json.RawMessage     `json:"result,omitempty"`
	ScriptText  string              `json:"script_text,omitempty"`
	AudioURL    string              `json:"audio_url,omitempty"`
	Error       string              `json:"error,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
}

func jobView(job *store.Job) jobResponse {
	return jobResponse{
		JobID:       job.ID,
		Status:      string(job.Status),
		Kind:        job.RequestKind,
		Query:       job.QueryText,
		Progress:    job.Progress,
		Result:      json.RawMessage(job.Result),
		ScriptText:  job.ScriptText,
		AudioURL:    job.AudioURL,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
	}
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	job, ok := s.ownedJob(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, jobView(job))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	skip := queryInt(r, "skip", 0)
	limit := queryInt(r, "limit", 20)
	status := store.JobStatus(r.URL.Query().Get("status_filter"))

	list, err := s.controller.List(r.Context(), user.ID, skip, limit, status)
	if err != nil {
		s.logger.Error("job list failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "could not list jobs")
		return
	}

	out := make([]jobResponse, 0, len(list))
	for _, job := range list {
		out = append(out, jobView(job))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  out,
		"skip":  skip,
		"limit": limit,
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	job, ok := s.ownedJob(w, r)
	if !ok {
		return
	}

	// A processing job is cancelled first so its task stops writing.
	if job.Status == store.JobProcessing {
		if err := s.controller.Cancel(r.Context(), job.ID); err != nil && !errors.Is(err, jobs.ErrNotCancellable) {
			s.logger.Warn("cancel before delete failed", zap.String("job", job.ID), zap.Error(err))
		}
	}
	if err := s.controller.Delete(r.Context(), job.ID); err != nil {
		s.logger.Error("job delete failed", zap.String("job", job.ID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "could not delete job")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.ownedJob(w, r); !ok {
		return
	}

	job, err := s.controller.Regenerate(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.logger.Error("job regenerate failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "could not regenerate job")
		return
	}
	s.writeJSON(w, http.StatusAccepted, generateResponse{
		JobID:     job.ID,
		Status:    string(store.JobProcessing),
		PodcastID: job.ID,
	})
}

// healthSnapshot is the operational state exposed on /healthz.
type healthSnapshot struct {
	Status    string             `json:"status"`
	Breakers  []breaker.Stats    `json:"breakers,omitempty"`
	Buckets   map[string]float64 `json:"buckets,omitempty"`
	TotalCost float64            `json:"total_cost"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snapshot := healthSnapshot{Status: "ok"}
	if s.breakers != nil {
		snapshot.Breakers = s.breakers.Snapshot()
	}
	if s.quotas != nil {
		snapshot.Buckets = s.quotas.Snapshot()
	}
	if s.ledger != nil {
		snapshot.TotalCost = s.ledger.Total()
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

// ownedJob loads the path's job and enforces ownership. Foreign jobs are
// indistinguishable from missing ones.
func (s *Server) ownedJob(w http.ResponseWriter, r *http.Request) (*store.Job, bool) {
	id := chi.URLParam(r, "jobID")
	job, err := s.controller.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
			return nil, false
		}
		s.logger.Error("job lookup failed", zap.String("job", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "could not load job")
		return nil, false
	}

	user := userFrom(r.Context())
	if job.OwnerID != user.ID {
		s.writeError(w, http.StatusNotFound, "job not found")
		return nil, false
	}
	return job, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encoding failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
