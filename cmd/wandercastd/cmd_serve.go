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
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wandercast/wandercast/internal/api"
	"github.com/wandercast/wandercast/internal/janitor"
	"github.com/wandercast/wandercast/internal/log"
	"github.com/wandercast/wandercast/pkg/costs"
	"github.com/wandercast/wandercast/pkg/jobs"
	"github.com/wandercast/wandercast/pkg/orchestrator"
	"github.com/wandercast/wandercast/pkg/providers"
	"github.com/wandercast/wandercast/pkg/research"
	"github.com/wandercast/wandercast/pkg/scoring"
	"github.com/wandercast/wandercast/pkg/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Wandercast HTTP server",
	Long: `Start the Wandercast server.

The server will:
- Register the provider catalog and its rate limits
- Set up job persistence with SQLite (or in memory)
- Enable deep research (if an Anthropic key is configured)
- Listen for HTTP requests on the specified port

Press Ctrl+C to gracefully shutdown.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := log.Init(config.Logging.Level, config.Logging.Format); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	logger := log.Logger()
	defer func() { _ = log.Sync() }()

	// Job persistence: SQLite when a path is configured, memory otherwise.
	var jobRepo store.JobRepo
	if config.Database.Path != "" {
		sqlite, err := store.NewSQLiteJobRepo(config.Database.Path)
		if err != nil {
			return fmt.Errorf("opening job database: %w", err)
		}
		defer func() { _ = sqlite.Close() }()
		jobRepo = sqlite
		logger.Info("job store ready", zap.String("backend", "sqlite"), zap.String("path", config.Database.Path))
	} else {
		jobRepo = store.NewMemoryJobRepo()
		logger.Warn("job store is in-memory; jobs will not survive restart")
	}

	// Provider cache: Redis with in-process fallback, or plain in-process.
	var cache store.CacheRepo
	pruners := []janitor.Pruner{}
	if config.Cache.RedisAddr != "" {
		redisCache := store.NewRedisCache(config.Cache.RedisAddr, logger)
		defer func() { _ = redisCache.Close() }()
		cache = redisCache
		pruners = append(pruners, redisCache.Fallback())
		logger.Info("provider cache ready", zap.String("backend", "redis"), zap.String("addr", config.Cache.RedisAddr))
	} else {
		memCache := store.NewMemoryCache()
		cache = memCache
		pruners = append(pruners, memCache)
		logger.Info("provider cache ready", zap.String("backend", "memory"))
	}

	users := userRepoFromConfig(config.Auth, logger)
	prefs := store.NewMemoryPreferenceRepo()

	registry, err := providers.NewCatalog(cache, nil, logger)
	if err != nil {
		return fmt.Errorf("building provider catalog: %w", err)
	}
	logger.Info("provider catalog registered",
		zap.Strings("providers", registry.Names()),
		zap.Int("available", len(registry.Available(""))),
	)

	ledger := costs.NewLedger(logger)
	breakers := orchestrator.NewBreakerRegistry()

	researcher := research.NewResearcher(research.Config{
		APIKey:    config.Research.AnthropicAPIKey,
		Model:     config.Research.AnthropicModel,
		MaxTokens: config.Research.MaxTokens,
		Logger:    logger,
	})
	if !researcher.Available() {
		logger.Warn("no anthropic key configured; question queries degrade to provider fan-out")
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Registry:   registry,
		Breakers:   breakers,
		Ledger:     ledger,
		Quality:    scoring.NewQualityAssessor(),
		Standout:   scoring.NewStandoutScorer(),
		Preference: scoring.NewPreferenceAdapter(prefs, logger),
		Researcher: researcher,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("building orchestrator: %w", err)
	}

	controller, err := jobs.NewController(jobs.Config{
		Jobs:       jobRepo,
		Users:      users,
		Runner:     orch,
		JobTimeout: time.Duration(config.Jobs.TimeoutSeconds) * time.Second,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("building job controller: %w", err)
	}

	server, err := api.NewServer(api.Config{
		Controller: controller,
		Users:      users,
		Breakers:   breakers,
		Ledger:     ledger,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("building api server: %w", err)
	}

	maintenance, err := janitor.New(janitor.Config{
		Caches:        pruners,
		Ledger:        ledger,
		PruneSchedule: config.Janitor.PruneSchedule,
		SweepSchedule: config.Janitor.SweepSchedule,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("building janitor: %w", err)
	}
	maintenance.Start()
	defer maintenance.Stop()

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(config.Server.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	// Let in-flight jobs persist their terminal state before the stores
	// close.
	controller.Wait()
	logger.Info("shutdown complete", zap.Float64("total_spend", ledger.Total()))
	return nil
}

// userRepoFromConfig seeds the static token table. Without tokens the API
// rejects every request, which is the safe default.
func userRepoFromConfig(auth AuthConfig, logger *zap.Logger) *store.MemoryUserRepo {
	users := store.NewMemoryUserRepo()
	for _, tc := range auth.Tokens {
		if tc.Token == "" || tc.UserID == "" {
			logger.Warn("skipping auth token entry without token or user_id")
			continue
		}
		tier := tc.Tier
		if tier == "" {
			tier = "free"
		}
		users.Add(&store.User{ID: tc.UserID, Tier: tier, Token: tc.Token})
	}
	if len(auth.Tokens) == 0 {
		logger.Warn("no auth tokens configured; all API requests will be rejected")
	}
	return users
}
