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

// Package ics reads appointments from iCalendar feeds and expands recurring
// series into concrete occurrences for a date range.
package ics

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/bcem/archiver/internal/models"
)

// Event is one VEVENT before recurrence expansion.
type Event struct {
	UID      string
	Summary  string
	Location string

	Start  time.Time
	End    time.Time
	AllDay bool

	Categories  []string
	ShowAs      models.ShowAs
	Sensitivity models.Sensitivity
	Importance  models.Importance
	Cancelled   bool

	RRule   string
	ExDates []time.Time
	// RecurrenceID is set on a VEVENT that overrides one occurrence of a
	// series sharing its UID.
	RecurrenceID *time.Time
}

// Parse decodes an iCalendar payload. A VEVENT that cannot be read is
// logged and skipped; only an unreadable calendar is an error.
func Parse(body []byte) ([]Event, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	var events []Event
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(ve)
		if err != nil {
			slog.Warn("skipping unreadable VEVENT", "error", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseVEvent(ve *ical.VEvent) (Event, error) {
	var ev Event

	ev.UID = value(ve.GetProperty(ical.ComponentPropertyUniqueId))
	if ev.UID == "" {
		return ev, errors.New("missing UID")
	}
	ev.Summary = strings.TrimSpace(value(ve.GetProperty(ical.ComponentPropertySummary)))
	ev.Location = strings.TrimSpace(value(ve.GetProperty(ical.ComponentPropertyLocation)))

	start, err := ve.GetStartAt()
	if err != nil {
		return ev, fmt.Errorf("event %s: DTSTART: %w", ev.UID, err)
	}
	ev.Start = start
	ev.AllDay = isAllDay(ve.GetProperty(ical.ComponentPropertyDtStart))

	end, err := ve.GetEndAt()
	switch {
	case err == nil:
		ev.End = end
	case ev.AllDay:
		ev.End = start.AddDate(0, 0, 1)
	default:
		// A date-time DTSTART without DTEND lasts zero time; ingestion
		// rejects it later.
		ev.End = start
	}

	for _, p := range ve.GetProperties(ical.ComponentProperty("CATEGORIES")) {
		ev.Categories = append(ev.Categories, splitList(p.Value)...)
	}

	status := strings.ToUpper(strings.TrimSpace(value(ve.GetProperty(ical.ComponentPropertyStatus))))
	ev.Cancelled = status == "CANCELLED"
	ev.ShowAs = showAs(ve, status)
	ev.Sensitivity = sensitivity(value(ve.GetProperty(ical.ComponentPropertyClass)))
	ev.Importance = importance(ve)

	ev.RRule = strings.TrimSpace(value(ve.GetProperty(ical.ComponentPropertyRrule)))
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseTime(part, p.ICalParameters); err == nil {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRecurrenceId); p != nil {
		t, err := parseTime(p.Value, p.ICalParameters)
		if err != nil {
			return ev, fmt.Errorf("event %s: RECURRENCE-ID: %w", ev.UID, err)
		}
		ev.RecurrenceID = &t
	}

	return ev, nil
}

// showAs prefers Outlook's busy-status extension, then TRANSP and STATUS.
func showAs(ve *ical.VEvent, status string) models.ShowAs {
	if v := value(ve.GetProperty(ical.ComponentProperty("X-MICROSOFT-CDO-BUSYSTATUS"))); v != "" {
		return models.ParseShowAs(v)
	}
	if strings.EqualFold(strings.TrimSpace(value(ve.GetProperty(ical.ComponentProperty("TRANSP")))), "TRANSPARENT") {
		return models.ShowAsFree
	}
	if status == "TENTATIVE" {
		return models.ShowAsTentative
	}
	return models.ShowAsBusy
}

func sensitivity(class string) models.Sensitivity {
	switch strings.ToUpper(strings.TrimSpace(class)) {
	case "PRIVATE":
		return models.SensitivityPrivate
	case "CONFIDENTIAL":
		return models.SensitivityConfidential
	default:
		return models.SensitivityNormal
	}
}

// importance reads Outlook's X-MICROSOFT-CDO-IMPORTANCE (0 low, 1 normal,
// 2 high) and falls back to PRIORITY (1-4 high, 5 normal, 6-9 low).
func importance(ve *ical.VEvent) models.Importance {
	switch strings.TrimSpace(value(ve.GetProperty(ical.ComponentProperty("X-MICROSOFT-CDO-IMPORTANCE")))) {
	case "0":
		return models.ImportanceLow
	case "2":
		return models.ImportanceHigh
	case "1":
		return models.ImportanceNormal
	}

	n, err := strconv.Atoi(strings.TrimSpace(value(ve.GetProperty(ical.ComponentProperty("PRIORITY")))))
	switch {
	case err != nil || n == 0 || n == 5:
		return models.ImportanceNormal
	case n < 5:
		return models.ImportanceHigh
	default:
		return models.ImportanceLow
	}
}

// splitList splits a TEXT list on unescaped commas.
func splitList(v string) []string {
	var out []string
	var cur strings.Builder
	escaped := false
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}
	for _, r := range v {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ',':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}

func isAllDay(p *ical.IANAProperty) bool {
	if p == nil {
		return false
	}
	for _, v := range p.ICalParameters["VALUE"] {
		if strings.EqualFold(strings.TrimSpace(v), "DATE") {
			return true
		}
	}
	return len(strings.TrimSpace(p.Value)) == 8
}

// parseTime reads a DATE or DATE-TIME value, honouring a TZID parameter.
// Floating times are read as UTC.
func parseTime(v string, params map[string][]string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	loc := time.UTC
	if tz := params["TZID"]; len(tz) > 0 {
		if l, err := time.LoadLocation(strings.TrimSpace(tz[0])); err == nil {
			loc = l
		}
	}

	for _, layout := range []string{"20060102T150405Z", "20060102T150405", "20060102"} {
		if strings.HasSuffix(layout, "Z") {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
			continue
		}
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse time value %q", v)
}

func value(p *ical.IANAProperty) string {
	if p == nil {
		return ""
	}
	return p.Value
}
