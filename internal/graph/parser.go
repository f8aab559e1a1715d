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

package graph

import (
	"fmt"
	"time"

	"github.com/bcem/archiver/internal/models"
)

// graphDateTime is Graph's dateTimeTimeZone: a wall-clock time without an
// offset plus the zone it is expressed in.
type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// graphEvent represents the relevant fields of a Graph event resource.
type graphEvent struct {
	ID       string        `json:"id"`
	Subject  string        `json:"subject"`
	Start    graphDateTime `json:"start"`
	End      graphDateTime `json:"end"`
	Location struct {
		DisplayName string `json:"displayName"`
	} `json:"location"`
	Categories  []string `json:"categories"`
	ShowAs      string   `json:"showAs"`
	Sensitivity string   `json:"sensitivity"`
	Importance  string   `json:"importance"`
	IsCancelled bool     `json:"isCancelled"`
	IsAllDay    bool     `json:"isAllDay"`
	Type        string   `json:"type"`
}

// graphTimeLayout has no fraction; Graph sends seven digits, which
// time.Parse accepts after the seconds field.
const graphTimeLayout = "2006-01-02T15:04:05"

func (dt graphDateTime) parse() (time.Time, error) {
	loc := time.UTC
	if dt.TimeZone != "" && dt.TimeZone != "UTC" {
		// Windows zone names ("W. Europe Standard Time") are not in the
		// IANA database; requests ask for UTC so this only matters for
		// foreign payloads.
		if l, err := time.LoadLocation(dt.TimeZone); err == nil {
			loc = l
		}
	}
	t, err := time.ParseInLocation(graphTimeLayout, dt.DateTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", dt.DateTime, err)
	}
	return t, nil
}

// toAppointment converts a Graph event into the canonical Appointment.
func (ev graphEvent) toAppointment(userID string) (models.Appointment, error) {
	start, err := ev.Start.parse()
	if err != nil {
		return models.Appointment{}, fmt.Errorf("start: %w", err)
	}
	end, err := ev.End.parse()
	if err != nil {
		return models.Appointment{}, fmt.Errorf("end: %w", err)
	}

	return models.Appointment{
		ID:          ev.ID,
		UserID:      userID,
		Start:       start,
		End:         end,
		Subject:     ev.Subject,
		Location:    ev.Location.DisplayName,
		Categories:  ev.Categories,
		ShowAs:      models.ParseShowAs(ev.ShowAs),
		Sensitivity: models.ParseSensitivity(ev.Sensitivity),
		Importance:  models.ParseImportance(ev.Importance),
	}, nil
}
