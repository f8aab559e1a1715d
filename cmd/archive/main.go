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

// Calendar Archive Command
//
// Standalone CLI that archives one tenant's calendars for a date range and
// prints a summary. Useful for catching up on missed days and for dry runs
// against a new tenant.
//
// Usage:
//
//	go run ./cmd/archive/ --tenant <alias> [--users a@org.com,b@org.com] [--from 2026-10-01] [--to 2026-10-08] [--dry-run]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
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
	"github.com/bcem/archiver/internal/report"
	"github.com/bcem/archiver/internal/scheduler"
)

const dateLayout = "2006-01-02"

func main() {
	// Logs go to stderr so the report can be piped.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	tenantFlag := flag.String("tenant", "", "Tenant alias to archive (required)")
	usersFlag := flag.String("users", "", "Comma-separated list of users (optional; empty = all discovered users and feeds)")
	fromFlag := flag.String("from", "", "First day to archive, YYYY-MM-DD (default: the configured lookback before today)")
	toFlag := flag.String("to", "", "Day after the last day to archive, YYYY-MM-DD (default: today)")
	dryRunFlag := flag.Bool("dry-run", false, "Run the pipeline and print the result without writing anything")
	detailsFlag := flag.Bool("details", false, "List conflicts and issues")
	archivedFlag := flag.Bool("list-archived", false, "List the appointments that were (or would be) archived")
	flag.Parse()

	if *tenantFlag == "" {
		fmt.Fprintf(os.Stderr, "Error: --tenant is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	from, to := scheduler.DailyRange(time.Now(), cfg.Location, cfg.LookbackDays)
	if *toFlag != "" {
		if to, err = time.ParseInLocation(dateLayout, *toFlag, cfg.Location); err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid --to date %q: %v\n", *toFlag, err)
			os.Exit(1)
		}
		if *fromFlag == "" {
			from = to.AddDate(0, 0, -cfg.LookbackDays)
		}
	}
	if *fromFlag != "" {
		if from, err = time.ParseInLocation(dateLayout, *fromFlag, cfg.Location); err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid --from date %q: %v\n", *fromFlag, err)
			os.Exit(1)
		}
	}
	if !to.After(from) {
		fmt.Fprintf(os.Stderr, "Error: --to (%s) must be after --from (%s)\n", to.Format(dateLayout), from.Format(dateLayout))
		os.Exit(1)
	}

	var users []string
	for _, u := range strings.Split(*usersFlag, ",") {
		if u = strings.TrimSpace(u); u != "" {
			users = append(users, u)
		}
	}

	slog.Info("starting archive",
		"tenant", *tenantFlag,
		"from", from.Format(dateLayout),
		"to", to.Format(dateLayout),
		"dry_run", *dryRunFlag,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runnerCfg := job.RunnerConfig{
		Pipeline:            pipeline.New(),
		MarkPrivateInSource: cfg.MarkPrivateInSource,
		Location:            cfg.Location,
	}

	if !*dryRunFlag {
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
		runnerCfg.Archive = store

		// --- Connect to Redis ---
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()

		publisher := queue.NewPublisher(rdb, cfg.ReviewQueue)
		if err := publisher.Ping(ctx); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		runnerCfg.Review = publisher
		runnerCfg.Dedup = dedup.NewFilter(rdb, cfg.ReviewDedupTTL)
	}

	planner := scheduler.NewPlanner(cfg, scheduler.GraphClients(ctx, cfg.Tenants), nil)
	req, err := planner.Request(ctx, *tenantFlag, users, from, to)
	if err != nil {
		slog.Error("failed to plan archive run", "error", err)
		os.Exit(1)
	}
	if len(req.Users) == 0 {
		slog.Error("no users to archive")
		os.Exit(1)
	}
	req.DryRun = *dryRunFlag

	result, err := job.NewRunner(runnerCfg).Run(ctx, req)
	if err != nil {
		slog.Error("archive failed", "error", err)
		if result == nil {
			os.Exit(1)
		}
	}

	fmt.Print(report.Render(result, report.Options{
		Details:  *detailsFlag,
		Archived: *archivedFlag,
	}))

	if err != nil || result.FailedUsers > 0 {
		os.Exit(2)
	}
}
