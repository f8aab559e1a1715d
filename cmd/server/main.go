// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Calendar Archive Service
//
// Entry point for the archive service. It:
//  1. Loads multi-tenant configuration from config.yaml
//  2. Connects to PostgreSQL (archive) and Redis (review queue)
//  3. Builds OAuth2 Graph clients per tenant
//  4. Runs the archive job for every tenant on a daily cron schedule
//  5. Serves /health and /runs
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/archiver/internal/archive"
	"github.com/bcem/archiver/internal/config"
	"github.com/bcem/archiver/internal/dedup"
	"github.com/bcem/archiver/internal/job"
	"github.com/bcem/archiver/internal/pipeline"
	"github.com/bcem/archiver/internal/queue"
	"github.com/bcem/archiver/internal/scheduler"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting calendar archive service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"tenants", len(cfg.Tenants),
		"ics_feeds", len(cfg.ICS),
		"schedule", cfg.Schedule,
		"timezone", cfg.Timezone,
		"lookback_days", cfg.LookbackDays,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	store, err := archive.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise archive store", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)

	publisher := queue.NewPublisher(rdb, cfg.ReviewQueue)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	filter := dedup.NewFilter(rdb, cfg.ReviewDedupTTL)

	// --- Archive job ---
	runner := job.NewRunner(job.RunnerConfig{
		Pipeline:            pipeline.New(),
		Archive:             store,
		Review:              publisher,
		Dedup:               filter,
		MarkPrivateInSource: cfg.MarkPrivateInSource,
		Location:            cfg.Location,
	})
	planner := scheduler.NewPlanner(cfg, scheduler.GraphClients(ctx, cfg.Tenants), nil)

	sched, err := scheduler.New(cfg.Schedule, cfg.Location, cfg.LookbackDays, func(ctx context.Context, from, to time.Time) {
		results := planner.RunAll(ctx, runner, from, to)
		var archived, failed int
		for _, r := range results {
			archived += r.TotalArchived
			failed += r.FailedUsers
		}
		slog.Info("daily archive complete",
			"tenants", len(results),
			"archived", archived,
			"failed_users", failed,
		)
	})
	if err != nil {
		slog.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}
	sched.Start(ctx)

	// --- Health Check Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		// Check Redis
		if err := publisher.Ping(r.Context()); err != nil {
			http.Error(w, "redis unhealthy", http.StatusServiceUnavailable)
			return
		}
		// Check Postgres
		if err := store.Ping(r.Context()); err != nil {
			http.Error(w, "postgres unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status":   "healthy",
			"next_run": sched.Next().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/runs", func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 500 {
				http.Error(w, "limit must be between 1 and 500", http.StatusBadRequest)
				return
			}
			limit = n
		}
		runs, err := store.RecentRuns(r.Context(), limit)
		if err != nil {
			slog.Error("failed to list runs", "error", err)
			http.Error(w, "failed to list runs", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(runs)
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel() // Stop any running archive job

		sched.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}

		rdb.Close()
		pgPool.Close()
	}()

	slog.Info("archive service listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("archive service stopped")
}
