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

// Package models defines the canonical appointment record shared by the
// input feeds, the archive pipeline and the archive/review sinks.
package models

import (
	"sort"
	"time"
)

// Appointment is a single concrete calendar entry (already recurrence
// expanded). The fields below Importance are derived by the pipeline.
type Appointment struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id,omitempty"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Subject  string    `json:"subject"`
	Location string    `json:"location,omitempty"`

	Categories  []string    `json:"categories"`
	ShowAs      ShowAs      `json:"show_as"`
	Sensitivity Sensitivity `json:"sensitivity"`
	Importance  Importance  `json:"importance"`

	Customer          string      `json:"customer,omitempty"`
	BillingType       BillingType `json:"billing_type,omitempty"`
	IsSpecialCategory bool        `json:"is_special_category"`
	IsPrivate         bool        `json:"is_private"`
	MergeSource       []string    `json:"merge_source"`
	Supersedes        []string    `json:"supersedes,omitempty"`
}

// Duration returns End - Start.
func (a Appointment) Duration() time.Duration {
	return a.End.Sub(a.Start)
}

// HasCustomer reports whether a customer/billing pair was resolved.
func (a Appointment) HasCustomer() bool {
	return a.Customer != ""
}

// Valid reports whether the interval is well formed (End after Start).
func (a Appointment) Valid() bool {
	return a.End.After(a.Start)
}

// Clone returns a deep copy so pipeline stages never alias caller slices.
func (a Appointment) Clone() Appointment {
	out := a
	out.Categories = cloneStrings(a.Categories)
	out.MergeSource = cloneStrings(a.MergeSource)
	out.Supersedes = cloneStrings(a.Supersedes)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// SortByStart orders appointments by start, then end, then ID.
func SortByStart(items []Appointment) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Start.Equal(items[j].Start) {
			return items[i].Start.Before(items[j].Start)
		}
		if !items[i].End.Equal(items[j].End) {
			return items[i].End.Before(items[j].End)
		}
		return items[i].ID < items[j].ID
	})
}

// IDs returns the identifiers of items in order.
func IDs(items []Appointment) []string {
	ids := make([]string, 0, len(items))
	for _, a := range items {
		ids = append(ids, a.ID)
	}
	return ids
}
