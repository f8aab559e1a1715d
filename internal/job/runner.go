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

// Package job runs the archive pipeline for a tenant's calendars over a date
// range: fetch, reject malformed records, run the pipeline, then hand the
// result to the archive, the review queue and the source calendar.
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bcem/archiver/internal/archive"
	"github.com/bcem/archiver/internal/models"
	"github.com/bcem/archiver/internal/pipeline"
	"github.com/bcem/archiver/internal/queue"
)

// Source lists a user's appointments in [from, to), recurrence expanded.
type Source interface {
	Appointments(ctx context.Context, user string, from, to time.Time) ([]models.Appointment, error)
}

// PrivacyWriter flags an event as private in the source calendar.
type PrivacyWriter interface {
	MarkPrivate(ctx context.Context, user, eventID string) error
}

// ArchiveSink persists archived appointments and the run ledger.
type ArchiveSink interface {
	Archive(ctx context.Context, tenantID, runID string, appts []models.Appointment) (int, error)
	RecordRun(ctx context.Context, r archive.Run) error
}

// ReviewSink accepts items for human review.
type ReviewSink interface {
	PublishReview(ctx context.Context, item queue.ReviewItem) error
}

// Deduper suppresses review items already queued by an earlier run.
type Deduper interface {
	IsNew(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// Request defines the scope of one archive run.
type Request struct {
	TenantID    string
	TenantAlias string
	Users       []string
	From        time.Time
	To          time.Time
	DryRun      bool

	Source Source
	// Writer receives privacy write-backs; nil disables them.
	Writer PrivacyWriter
}

// UserResult tracks one user's run.
type UserResult struct {
	UserID        string
	RunID         string
	Fetched       int
	Rejected      int
	Archived      int
	Inserted      int
	Conflicts     int
	Issues        int
	Reviewed      int
	MarkedPrivate int
	WrittenBack   int
	Errors        int
	Err           error

	// Pipeline is kept for reporting; it is empty when fetching failed.
	Pipeline models.PipelineResult
}

// Result summarises a completed tenant run.
type Result struct {
	TenantAlias string
	From        time.Time
	To          time.Time
	DryRun      bool
	Users       []UserResult

	TotalArchived  int
	TotalInserted  int
	TotalConflicts int
	TotalIssues    int
	FailedUsers    int
	Elapsed        time.Duration
}

// Runner performs archive runs.
type Runner struct {
	pipeline    *pipeline.Pipeline
	archive     ArchiveSink
	review      ReviewSink
	dedup       Deduper
	markPrivate bool
	loc         *time.Location
	now         func() time.Time
}

// RunnerConfig holds dependencies for the runner. Review and Dedup may be
// nil; Archive may be nil only for dry runs.
type RunnerConfig struct {
	Pipeline            *pipeline.Pipeline
	Archive             ArchiveSink
	Review              ReviewSink
	Dedup               Deduper
	MarkPrivateInSource bool

	// Location is the zone calendar days are judged in (same-day matching
	// of modifications). Nil means UTC.
	Location *time.Location
}

// NewRunner creates an archive runner.
func NewRunner(cfg RunnerConfig) *Runner {
	p := cfg.Pipeline
	if p == nil {
		p = pipeline.New()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Runner{
		pipeline:    p,
		archive:     cfg.Archive,
		review:      cfg.Review,
		dedup:       cfg.Dedup,
		markPrivate: cfg.MarkPrivateInSource,
		loc:         loc,
		now:         time.Now,
	}
}

// Run archives every user in req. A failing user is logged and counted, and
// the run continues with the others; only an invalid request is an error.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	if !req.To.After(req.From) {
		return nil, fmt.Errorf("invalid range: %s is not after %s", req.To.Format(time.RFC3339), req.From.Format(time.RFC3339))
	}
	if req.Source == nil {
		return nil, errors.New("no appointment source")
	}
	if r.archive == nil && !req.DryRun {
		return nil, errors.New("no archive sink configured (use a dry run)")
	}

	start := r.now()
	slog.Info("starting archive run",
		"tenant", req.TenantAlias,
		"users", len(req.Users),
		"from", req.From.Format(time.RFC3339),
		"to", req.To.Format(time.RFC3339),
		"dry_run", req.DryRun,
	)

	result := &Result{
		TenantAlias: req.TenantAlias,
		From:        req.From,
		To:          req.To,
		DryRun:      req.DryRun,
	}

	for _, user := range req.Users {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("archive run interrupted: %w", err)
		}

		ur := r.runUser(ctx, req, user)
		if ur.Err != nil {
			slog.Error("archive failed for user",
				"tenant", req.TenantAlias,
				"user", user,
				"run_id", ur.RunID,
				"error", ur.Err,
			)
			result.FailedUsers++
		}

		result.Users = append(result.Users, ur)
		result.TotalArchived += ur.Archived
		result.TotalInserted += ur.Inserted
		result.TotalConflicts += ur.Conflicts
		result.TotalIssues += ur.Issues
	}

	result.Elapsed = r.now().Sub(start)

	slog.Info("archive run complete",
		"tenant", req.TenantAlias,
		"archived", result.TotalArchived,
		"inserted", result.TotalInserted,
		"conflicts", result.TotalConflicts,
		"issues", result.TotalIssues,
		"failed_users", result.FailedUsers,
		"elapsed", result.Elapsed,
	)
	return result, nil
}

func (r *Runner) runUser(ctx context.Context, req Request, user string) UserResult {
	ur := UserResult{UserID: user, RunID: uuid.New().String()}
	started := r.now()

	run := archive.Run{
		ID:          ur.RunID,
		TenantID:    req.TenantID,
		TenantAlias: req.TenantAlias,
		UserID:      user,
		RangeStart:  req.From,
		RangeEnd:    req.To,
		StartedAt:   started,
	}
	finish := func(status string) {
		if req.DryRun {
			return
		}
		run.Fetched, run.Rejected = ur.Fetched, ur.Rejected
		run.Archived, run.Inserted = ur.Archived, ur.Inserted
		run.Conflicts, run.Issues, run.MarkedPrivate = ur.Conflicts, ur.Issues, ur.MarkedPrivate
		run.Status = status
		if ur.Err != nil {
			run.Error = ur.Err.Error()
		}
		run.FinishedAt = r.now()
		if err := r.archive.RecordRun(ctx, run); err != nil {
			slog.Warn("record run failed", "run_id", ur.RunID, "error", err)
		}
	}

	appts, err := req.Source.Appointments(ctx, user, req.From, req.To)
	if err != nil {
		ur.Err = fmt.Errorf("fetch appointments: %w", err)
		finish(archive.StatusFailed)
		return ur
	}
	ur.Fetched = len(appts)

	batch := make([]models.Appointment, 0, len(appts))
	for _, a := range appts {
		if !a.Valid() {
			slog.Warn("rejecting appointment with end not after start",
				"user", user,
				"source_id", a.ID,
				"start", a.Start,
				"end", a.End,
			)
			ur.Rejected++
			continue
		}
		if a.UserID == "" {
			a.UserID = user
		}
		a.Start, a.End = a.Start.In(r.loc), a.End.In(r.loc)
		batch = append(batch, a)
	}

	res := r.pipeline.Run(batch)
	ur.Pipeline = res
	ur.Archived = len(res.Archived)
	ur.Conflicts = len(res.Conflicts)
	ur.Issues = len(res.Issues)
	ur.MarkedPrivate = len(res.MarkedPrivate)

	if req.DryRun {
		return ur
	}

	inserted, err := r.archive.Archive(ctx, req.TenantID, ur.RunID, res.Archived)
	ur.Inserted = inserted
	if err != nil {
		ur.Err = fmt.Errorf("archive appointments: %w", err)
		finish(archive.StatusFailed)
		return ur
	}

	for _, item := range reviewItems(req, ur.RunID, user, res) {
		r.publishReview(ctx, item, &ur)
	}

	if r.markPrivate && req.Writer != nil {
		for _, id := range res.MarkedPrivate {
			if err := req.Writer.MarkPrivate(ctx, user, id); err != nil {
				if errors.Is(err, ErrReadOnly) {
					continue
				}
				slog.Warn("privacy write-back failed",
					"user", user,
					"source_id", id,
					"error", err,
				)
				ur.Errors++
				continue
			}
			ur.WrittenBack++
		}
	}

	slog.Info("user archive complete",
		"tenant", req.TenantAlias,
		"user", user,
		"run_id", ur.RunID,
		"fetched", ur.Fetched,
		"rejected", ur.Rejected,
		"archived", ur.Archived,
		"inserted", ur.Inserted,
		"conflicts", ur.Conflicts,
		"issues", ur.Issues,
		"reviewed", ur.Reviewed,
		"marked_private", ur.MarkedPrivate,
		"written_back", ur.WrittenBack,
		"errors", ur.Errors,
	)
	finish(archive.StatusSucceeded)
	return ur
}

func (r *Runner) publishReview(ctx context.Context, item queue.ReviewItem, ur *UserResult) {
	if r.review == nil {
		slog.Info("review item",
			"user", item.UserID,
			"kind", item.Kind,
			"source_id", item.SourceID,
			"message", item.Message,
		)
		return
	}

	key := item.Key()
	if r.dedup != nil {
		isNew, err := r.dedup.IsNew(ctx, key)
		if err != nil {
			// Publishing twice beats losing the item.
			slog.Warn("review dedup check failed", "error", err)
		} else if !isNew {
			return
		}
	}

	if err := r.review.PublishReview(ctx, item); err != nil {
		slog.Warn("review publish failed",
			"source_id", item.SourceID,
			"kind", item.Kind,
			"error", err,
		)
		ur.Errors++
		if r.dedup != nil {
			if err := r.dedup.Forget(ctx, key); err != nil {
				slog.Warn("review dedup reset failed", "error", err)
			}
		}
		return
	}
	ur.Reviewed++
}

// reviewItems flattens issues and conflicts into queue items.
func reviewItems(req Request, runID, user string, res models.PipelineResult) []queue.ReviewItem {
	base := queue.ReviewItem{
		TenantAlias: req.TenantAlias,
		UserID:      user,
		RunID:       runID,
		RangeStart:  req.From,
		RangeEnd:    req.To,
	}

	items := make([]queue.ReviewItem, 0, len(res.Issues)+len(res.Conflicts))
	for _, is := range res.Issues {
		it := base
		it.SourceID, it.Kind, it.Message = is.SourceID, is.Kind, is.Message
		items = append(items, it)
	}
	for _, c := range res.Conflicts {
		is := c.Issue()
		it := base
		it.SourceID, it.Kind, it.Message = is.SourceID, is.Kind, is.Message
		it.Members = models.IDs(c.Members)
		items = append(items, it)
	}
	return items
}
