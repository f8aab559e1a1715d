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

package modification

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bcem/archiver/internal/models"
)

// MergeResult is the outcome of folding modifications into their originals.
// Merged keeps the input order of the plain appointments. Modifications
// never appear in Merged: they are either applied (see Records) or orphaned.
type MergeResult struct {
	Merged   []models.Appointment
	Orphaned []models.Appointment
	Records  []models.ModificationRecord
	Issues   []models.Issue
}

// Merger matches modification appointments to their originals.
type Merger struct {
	detector Detector
}

// NewMerger creates a merger. A nil detector selects KeywordDetector.
func NewMerger(d Detector) *Merger {
	if d == nil {
		d = KeywordDetector{}
	}
	return &Merger{detector: d}
}

type candidate struct {
	appt models.Appointment
	typ  models.ModificationType
	root string
}

// Merge partitions appts into plain appointments and modifications, pairs
// each modification with the nearest same-day plain appointment sharing its
// normalized subject, and applies the time arithmetic in ascending start
// order. Inputs are never mutated.
func (m *Merger) Merge(appts []models.Appointment) MergeResult {
	var res MergeResult

	plain := make([]models.Appointment, 0, len(appts))
	var mods []candidate
	modIndex := make(map[string]int)

	for _, a := range appts {
		typ, root := m.detector.Detect(a.Subject)
		if typ == models.ModificationNone {
			plain = append(plain, a.Clone())
			continue
		}
		c := candidate{appt: a.Clone(), typ: typ, root: root}
		// A re-fetched modification must only apply once; last seen wins.
		if i, ok := modIndex[a.ID]; ok {
			mods[i] = c
			continue
		}
		modIndex[a.ID] = len(mods)
		mods = append(mods, c)
	}

	sort.SliceStable(mods, func(i, j int) bool {
		if !mods[i].appt.Start.Equal(mods[j].appt.Start) {
			return mods[i].appt.Start.Before(mods[j].appt.Start)
		}
		return mods[i].appt.ID < mods[j].appt.ID
	})

	roots := make([]string, len(plain))
	lastByID := make(map[string]int, len(plain))
	for i, p := range plain {
		roots[i] = NormalizeSubject(p.Subject)
		lastByID[p.ID] = i
	}

	for _, mod := range mods {
		target, issue := findOriginal(plain, roots, lastByID, mod)
		if target < 0 {
			res.Orphaned = append(res.Orphaned, mod.appt)
			res.Issues = append(res.Issues, issue)
			continue
		}

		rec, err := apply(&plain[target], mod)
		if err != nil {
			res.Issues = append(res.Issues, models.Issue{
				SourceID: mod.appt.ID,
				Kind:     models.IssueInvertedInterval,
				Message:  err.Error(),
			})
			continue
		}
		res.Records = append(res.Records, rec)
	}

	res.Merged = plain
	return res
}

// findOriginal returns the index of the matching plain appointment, or -1 and
// the issue explaining why none was chosen.
func findOriginal(plain []models.Appointment, roots []string, lastByID map[string]int, mod candidate) (int, models.Issue) {
	best := -1
	var bestDist time.Duration
	var tied []string

	for i, p := range plain {
		if lastByID[p.ID] != i || roots[i] != mod.root || !sameDay(p.Start, mod.appt.Start) {
			continue
		}
		d := gap(p, mod.appt)
		switch {
		case best < 0 || d < bestDist:
			best, bestDist = i, d
			tied = []string{p.ID}
		case d == bestDist:
			tied = append(tied, p.ID)
		}
	}

	if best < 0 {
		return -1, models.Issue{
			SourceID: mod.appt.ID,
			Kind:     models.IssueOrphanedModification,
			Message:  fmt.Sprintf("modification without match: no same-day appointment titled %q", mod.root),
		}
	}
	if len(tied) > 1 {
		return -1, models.Issue{
			SourceID: mod.appt.ID,
			Kind:     models.IssueOrphanedModification,
			Message:  fmt.Sprintf("ambiguous modification: %d appointments equally near (%s)", len(tied), strings.Join(tied, ", ")),
		}
	}
	return best, models.Issue{}
}

// apply folds mod into orig in place. A shortening that would leave end at
// or before start is reported as an error and orig is left unchanged; the
// archive never holds zero-length appointments.
func apply(orig *models.Appointment, mod candidate) (models.ModificationRecord, error) {
	d := mod.appt.Duration()
	rec := models.ModificationRecord{
		ModificationID: mod.appt.ID,
		OriginalID:     orig.ID,
		Type:           mod.typ,
	}

	switch mod.typ {
	case models.ModificationExtension:
		orig.End = orig.End.Add(d)
		rec.Delta = d
	case models.ModificationShortened:
		end := orig.End.Add(-d)
		if !end.After(orig.Start) {
			return rec, fmt.Errorf("shortening %s by %s would end it at or before its start", orig.ID, d)
		}
		orig.End = end
		rec.Delta = -d
	case models.ModificationEarlyStart:
		orig.Start = orig.Start.Add(-d)
		orig.End = orig.End.Add(-d)
		rec.Delta = -d
	case models.ModificationLateStart:
		orig.Start = orig.Start.Add(d)
		orig.End = orig.End.Add(d)
		rec.Delta = d
	}

	orig.MergeSource = append(orig.MergeSource, mod.appt.ID)
	return rec, nil
}

// gap is the distance between two intervals; touching or overlapping
// intervals are at distance zero.
func gap(a, b models.Appointment) time.Duration {
	switch {
	case b.Start.After(a.End):
		return b.Start.Sub(a.End)
	case a.Start.After(b.End):
		return a.Start.Sub(b.End)
	default:
		return 0
	}
}

// sameDay compares calendar dates in the modification's own location.
func sameDay(a, b time.Time) bool {
	loc := b.Location()
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
