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

// Package scheduler triggers the daily archive run and turns tenant
// configuration into job requests.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RunFunc archives every tenant for [from, to).
type RunFunc func(ctx context.Context, from, to time.Time)

// Scheduler fires RunFunc on a cron schedule evaluated in a fixed location.
// A run still in progress when the next tick fires causes that tick to be
// skipped.
type Scheduler struct {
	cron     *cron.Cron
	loc      *time.Location
	lookback int
	run      RunFunc
	now      func() time.Time

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New parses a standard five-field cron spec. lookbackDays below 1 is
// treated as 1.
func New(spec string, loc *time.Location, lookbackDays int, run RunFunc) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	if lookbackDays < 1 {
		lookbackDays = 1
	}

	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	s := &Scheduler{
		cron:     c,
		loc:      loc,
		lookback: lookbackDays,
		run:      run,
		now:      time.Now,
	}
	if _, err := c.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins firing. The context bounds every run started by the
// scheduler.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.cron.Start()
	slog.Info("archive scheduler started",
		"timezone", s.loc.String(),
		"lookback_days", s.lookback,
		"next_run", s.Next(),
	)
}

// Stop cancels any running archive and waits for it to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	slog.Info("archive scheduler stopped")
}

// Next returns the time of the next scheduled run.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	if !entries[0].Next.IsZero() {
		return entries[0].Next
	}
	return entries[0].Schedule.Next(s.now().In(s.loc))
}

// RunNow archives the range ending at the most recent midnight, outside
// the schedule.
func (s *Scheduler) RunNow(ctx context.Context) {
	from, to := DailyRange(s.now(), s.loc, s.lookback)
	s.run(ctx, from, to)
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	from, to := DailyRange(s.now(), s.loc, s.lookback)
	slog.Info("scheduled archive run",
		"from", from.Format(time.RFC3339),
		"to", to.Format(time.RFC3339),
	)
	s.run(ctx, from, to)
}

// DailyRange returns [midnight - lookbackDays, midnight) where midnight is
// the start of now's day in loc. Calendar days are used, so a range that
// spans a DST change is 23 or 25 hours per day.
func DailyRange(now time.Time, loc *time.Location, lookbackDays int) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	if lookbackDays < 1 {
		lookbackDays = 1
	}
	local := now.In(loc)
	to := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return to.AddDate(0, 0, -lookbackDays), to
}

// cronLogger routes cron's own messages through slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
