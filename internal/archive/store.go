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

// Package archive is the Postgres-backed, append-only appointment archive
// and the ledger of archive runs.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/archiver/internal/models"
)

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusDryRun    = "dry_run"
)

// Run is one (tenant, user, range) archive run.
type Run struct {
	ID            string    `json:"run_id"`
	TenantID      string    `json:"tenant_id"`
	TenantAlias   string    `json:"tenant_alias"`
	UserID        string    `json:"user_id"`
	RangeStart    time.Time `json:"range_start"`
	RangeEnd      time.Time `json:"range_end"`
	Fetched       int       `json:"fetched"`
	Rejected      int       `json:"rejected"`
	Archived      int       `json:"archived"`
	Inserted      int       `json:"inserted"`
	Conflicts     int       `json:"conflicts"`
	Issues        int       `json:"issues"`
	MarkedPrivate int       `json:"marked_private"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Store writes archived appointments and run records to Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an archive store and ensures its tables exist.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure archive schema: %w", err)
	}
	slog.Info("archive store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS archived_appointments (
			id                  BIGSERIAL PRIMARY KEY,
			tenant_id           TEXT NOT NULL,
			user_id             TEXT NOT NULL,
			source_id           TEXT NOT NULL,
			start_at            TIMESTAMPTZ NOT NULL,
			end_at              TIMESTAMPTZ NOT NULL,
			subject             TEXT DEFAULT '',
			location            TEXT DEFAULT '',
			categories          TEXT[] DEFAULT '{}',
			show_as             TEXT NOT NULL,
			sensitivity         TEXT NOT NULL,
			importance          TEXT NOT NULL,
			customer            TEXT DEFAULT '',
			billing_type        TEXT DEFAULT '',
			is_special_category BOOLEAN DEFAULT FALSE,
			is_private          BOOLEAN DEFAULT FALSE,
			merge_source        TEXT[] DEFAULT '{}',
			supersedes          TEXT[] DEFAULT '{}',
			run_id              TEXT NOT NULL,
			archived_at         TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE(tenant_id, user_id, source_id)
		);
		CREATE INDEX IF NOT EXISTS idx_archived_user_start ON archived_appointments(tenant_id, user_id, start_at);
		CREATE INDEX IF NOT EXISTS idx_archived_customer ON archived_appointments(customer);

		CREATE TABLE IF NOT EXISTS archive_runs (
			run_id         TEXT PRIMARY KEY,
			tenant_id      TEXT NOT NULL,
			tenant_alias   TEXT DEFAULT '',
			user_id        TEXT NOT NULL,
			range_start    TIMESTAMPTZ NOT NULL,
			range_end      TIMESTAMPTZ NOT NULL,
			fetched        INTEGER DEFAULT 0,
			rejected       INTEGER DEFAULT 0,
			archived       INTEGER DEFAULT 0,
			inserted       INTEGER DEFAULT 0,
			conflicts      INTEGER DEFAULT 0,
			issues         INTEGER DEFAULT 0,
			marked_private INTEGER DEFAULT 0,
			status         TEXT NOT NULL,
			error          TEXT DEFAULT '',
			started_at     TIMESTAMPTZ NOT NULL,
			finished_at    TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_started ON archive_runs(started_at);
	`)
	return err
}

const insertAppointment = `
	INSERT INTO archived_appointments
		(tenant_id, user_id, source_id, start_at, end_at, subject, location,
		 categories, show_as, sensitivity, importance, customer, billing_type,
		 is_special_category, is_private, merge_source, supersedes, run_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	ON CONFLICT (tenant_id, user_id, source_id) DO NOTHING
`

// Archive inserts appts in one batch and returns how many rows were new.
// Rows already archived for the same (tenant, user, source id) are left
// untouched, so re-running a range is harmless.
func (s *Store) Archive(ctx context.Context, tenantID, runID string, appts []models.Appointment) (int, error) {
	if len(appts) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, a := range appts {
		batch.Queue(insertAppointment, insertArgs(tenantID, runID, a)...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	inserted := 0
	for _, a := range appts {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("insert appointment %s: %w", a.ID, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// insertArgs lists the insertAppointment parameters for a.
func insertArgs(tenantID, runID string, a models.Appointment) []any {
	return []any{
		tenantID, a.UserID, a.ID, a.Start.UTC(), a.End.UTC(), a.Subject, a.Location,
		nonNil(a.Categories), a.ShowAs.String(), a.Sensitivity.String(), a.Importance.String(),
		a.Customer, string(a.BillingType), a.IsSpecialCategory, a.IsPrivate,
		nonNil(a.MergeSource), nonNil(a.Supersedes), runID,
	}
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

// RecordRun inserts or replaces the ledger row for r.
func (s *Store) RecordRun(ctx context.Context, r Run) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO archive_runs
			(run_id, tenant_id, tenant_alias, user_id, range_start, range_end,
			 fetched, rejected, archived, inserted, conflicts, issues, marked_private,
			 status, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (run_id) DO UPDATE SET
			fetched        = EXCLUDED.fetched,
			rejected       = EXCLUDED.rejected,
			archived       = EXCLUDED.archived,
			inserted       = EXCLUDED.inserted,
			conflicts      = EXCLUDED.conflicts,
			issues         = EXCLUDED.issues,
			marked_private = EXCLUDED.marked_private,
			status         = EXCLUDED.status,
			error          = EXCLUDED.error,
			finished_at    = EXCLUDED.finished_at
	`, r.ID, r.TenantID, r.TenantAlias, r.UserID, r.RangeStart, r.RangeEnd,
		r.Fetched, r.Rejected, r.Archived, r.Inserted, r.Conflicts, r.Issues, r.MarkedPrivate,
		r.Status, r.Error, r.StartedAt, r.FinishedAt)
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.ID, err)
	}
	return nil
}

// RecentRuns returns the latest runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, tenant_id, tenant_alias, user_id, range_start, range_end,
		       fetched, rejected, archived, inserted, conflicts, issues, marked_private,
		       status, error, started_at, finished_at
		FROM archive_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(
			&r.ID, &r.TenantID, &r.TenantAlias, &r.UserID, &r.RangeStart, &r.RangeEnd,
			&r.Fetched, &r.Rejected, &r.Archived, &r.Inserted, &r.Conflicts, &r.Issues, &r.MarkedPrivate,
			&r.Status, &r.Error, &r.StartedAt, &r.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Ping checks the Postgres connection.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}
