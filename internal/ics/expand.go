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

package ics

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/bcem/archiver/internal/models"
)

// maxOccurrences caps how many instances one series may produce per range.
const maxOccurrences = 5000

// Expand turns parsed events into the concrete appointments overlapping
// [from, to), applying EXDATEs and RECURRENCE-ID overrides. Cancelled
// instances are dropped. Occurrences of a series are identified as
// "<uid>/<start in UTC>" so re-fetches map onto the same archive row.
func Expand(events []Event, userID string, from, to time.Time) []models.Appointment {
	series := make(map[string][]Event)
	overrides := make(map[string]map[int64]Event)
	var uids []string

	for _, ev := range events {
		if ev.RecurrenceID != nil {
			if overrides[ev.UID] == nil {
				overrides[ev.UID] = make(map[int64]Event)
			}
			overrides[ev.UID][ev.RecurrenceID.Unix()] = ev
			continue
		}
		if _, ok := series[ev.UID]; !ok {
			uids = append(uids, ev.UID)
		}
		series[ev.UID] = append(series[ev.UID], ev)
	}

	var out []models.Appointment
	for _, uid := range uids {
		for _, ev := range series[uid] {
			if ev.RRule == "" {
				if !ev.Cancelled && overlaps(ev.Start, ev.End, from, to) {
					out = append(out, toAppointment(ev, ev.UID, userID))
				}
				continue
			}
			out = append(out, expandSeries(ev, overrides[uid], userID, from, to)...)
		}
	}

	models.SortByStart(out)
	return out
}

func expandSeries(ev Event, overrides map[int64]Event, userID string, from, to time.Time) []models.Appointment {
	r, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		slog.Warn("skipping series with unreadable RRULE",
			"uid", ev.UID,
			"rrule", ev.RRule,
			"error", err,
		)
		return nil
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	length := ev.End.Sub(ev.Start)
	// An occurrence that starts before from can still reach into the range.
	starts := set.Between(from.Add(-length).In(ev.Start.Location()), to.In(ev.Start.Location()), true)
	if len(starts) > maxOccurrences {
		slog.Warn("truncating series expansion", "uid", ev.UID, "cap", maxOccurrences)
		starts = starts[:maxOccurrences]
	}

	var out []models.Appointment
	for _, s := range starts {
		inst := ev
		inst.Start = s
		inst.End = s.Add(length)
		inst.RRule = ""

		if ov, ok := overrides[s.Unix()]; ok {
			inst = ov
		}
		if inst.Cancelled || !overlaps(inst.Start, inst.End, from, to) {
			continue
		}
		id := fmt.Sprintf("%s/%s", ev.UID, s.UTC().Format("20060102T150405Z"))
		out = append(out, toAppointment(inst, id, userID))
	}
	return out
}

func toAppointment(ev Event, id, userID string) models.Appointment {
	return models.Appointment{
		ID:          id,
		UserID:      userID,
		Start:       ev.Start,
		End:         ev.End,
		Subject:     ev.Summary,
		Location:    ev.Location,
		Categories:  append([]string(nil), ev.Categories...),
		ShowAs:      ev.ShowAs,
		Sensitivity: ev.Sensitivity,
		Importance:  ev.Importance,
	}
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if !aEnd.After(aStart) {
		// Zero-length entries are kept when they start inside the range so
		// ingestion can reject them visibly.
		return !aStart.Before(bStart) && aStart.Before(bEnd)
	}
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
