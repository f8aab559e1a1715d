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

// Package pipeline runs the archive transformations over one user's batch of
// appointments: classification, privacy marking, modification merging,
// de-duplication and overlap resolution. It performs no I/O.
package pipeline

import (
	"log/slog"

	"github.com/bcem/archiver/internal/category"
	"github.com/bcem/archiver/internal/models"
	"github.com/bcem/archiver/internal/modification"
	"github.com/bcem/archiver/internal/overlap"
	"github.com/bcem/archiver/internal/privacy"
)

// Pipeline is safe for concurrent use; Run keeps no state between calls.
type Pipeline struct {
	merger *modification.Merger
	logger *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithDetector replaces the subject convention used to recognise
// modification appointments.
func WithDetector(d modification.Detector) Option {
	return func(p *Pipeline) { p.merger = modification.NewMerger(d) }
}

// WithLogger sets the logger for the per-run summary line.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a pipeline with the keyword modification detector.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{merger: modification.NewMerger(nil)}
	for _, o := range opts {
		o(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Run processes batch and always returns a result; problems are reported in
// the result's Issues and Conflicts. batch is not modified.
func (p *Pipeline) Run(batch []models.Appointment) models.PipelineResult {
	var res models.PipelineResult
	flipped := make(map[string]bool)

	classified := make([]models.Appointment, 0, len(batch))
	for _, in := range batch {
		a := in.Clone()
		cats := category.ParseAll(a)
		res.Issues = append(res.Issues, cats.Issues...)
		a = cats.Apply(a)

		var changed bool
		a, changed = privacy.Apply(a, cats)
		if changed {
			flipped[a.ID] = true
		}
		classified = append(classified, a)
	}

	merged := p.merger.Merge(classified)
	res.Issues = append(res.Issues, merged.Issues...)
	res.Modifications = merged.Records

	unique := dedupe(merged.Merged)

	groups, singles := overlap.Partition(unique)
	res.Archived = append(res.Archived, singles...)
	var resolved int
	for _, g := range groups {
		for _, out := range overlap.ResolveAll(g) {
			res.Archived = append(res.Archived, out.Archive()...)
			switch out.Kind {
			case overlap.Conflict:
				res.Conflicts = append(res.Conflicts, out.AsConflict())
			case overlap.Resolved:
				resolved++
			}
		}
	}
	models.SortByStart(res.Archived)

	for _, a := range res.Archived {
		if flipped[a.ID] {
			res.MarkedPrivate = append(res.MarkedPrivate, a.ID)
		}
	}
	res.Issues = dedupeIssues(res.Issues)

	p.logger.Debug("pipeline run complete",
		"input", len(batch),
		"archived", len(res.Archived),
		"merged_modifications", len(res.Modifications),
		"orphaned_modifications", len(merged.Orphaned),
		"overlap_groups", len(groups),
		"resolved_groups", resolved,
		"conflicts", len(res.Conflicts),
		"issues", len(res.Issues),
		"marked_private", len(res.MarkedPrivate),
	)
	return res
}

// dedupe collapses appointments sharing a source identifier; the last copy
// wins and takes the position of the first. Records without an identifier
// are kept as they are.
func dedupe(appts []models.Appointment) []models.Appointment {
	out := make([]models.Appointment, 0, len(appts))
	pos := make(map[string]int, len(appts))
	for _, a := range appts {
		if a.ID == "" {
			out = append(out, a)
			continue
		}
		if i, ok := pos[a.ID]; ok {
			out[i] = a
			continue
		}
		pos[a.ID] = len(out)
		out = append(out, a)
	}
	return out
}

func dedupeIssues(issues []models.Issue) []models.Issue {
	if len(issues) == 0 {
		return nil
	}
	seen := make(map[models.Issue]bool, len(issues))
	out := make([]models.Issue, 0, len(issues))
	for _, is := range issues {
		if seen[is] {
			continue
		}
		seen[is] = true
		out = append(out, is)
	}
	return out
}
