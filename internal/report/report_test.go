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

package report

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bcem/archiver/internal/job"
	"github.com/bcem/archiver/internal/models"
)

func sampleResult() *job.Result {
	day := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	archived := models.Appointment{
		ID: "C", Subject: "Client X - billable", Start: day.Add(14 * time.Hour), End: day.Add(14*time.Hour + 35*time.Minute),
		Customer: "Client X", BillingType: models.Billable, MergeSource: []string{"D"},
	}
	conflict := models.Conflict{
		Members: []models.Appointment{
			{ID: "X", Subject: "Board", Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour)},
			{ID: "Y", Subject: "Audit", Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour)},
		},
	}

	return &job.Result{
		TenantAlias: "acme",
		From:        day,
		To:          day.Add(24 * time.Hour),
		Users: []job.UserResult{
			{
				UserID: "alice@acme.com", Fetched: 4, Archived: 1, Inserted: 1, Conflicts: 1, Issues: 1,
				Pipeline: models.PipelineResult{
					Archived:  []models.Appointment{archived},
					Conflicts: []models.Conflict{conflict},
					Issues: []models.Issue{
						{SourceID: "Z", Kind: models.IssueOrphanedModification, Message: "no original found"},
					},
				},
			},
			{UserID: "bob@acme.com", Err: errors.New("fetch appointments: HTTP 403")},
		},
		TotalArchived:  1,
		TotalInserted:  1,
		TotalConflicts: 1,
		TotalIssues:    1,
		FailedUsers:    1,
		Elapsed:        1500 * time.Millisecond,
	}
}

func TestRender_SummaryTable(t *testing.T) {
	out := Render(sampleResult(), Options{})

	for _, want := range []string{
		"Archive run: acme",
		"USER",
		"alice@acme.com",
		"bob@acme.com",
		"failed",
		"review",
		"2 users, 1 archived, 1 inserted, 1 conflicts, 1 issues in 1.5s",
		"1 users failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Review") || strings.Contains(out, "Archived\n") {
		t.Errorf("details rendered without being requested:\n%s", out)
	}
}

func TestRender_Details(t *testing.T) {
	out := Render(sampleResult(), Options{Details: true, Archived: true})

	for _, want := range []string{
		"Review",
		`conflict "Board" 09:00-10:00, "Audit" 09:00-10:00`,
		"Z [OrphanedModification]: no original found",
		"bob@acme.com: fetch appointments: HTTP 403",
		"Client X/billable",
		"merged D",
		"14:00-14:35",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRender_DryRun(t *testing.T) {
	res := sampleResult()
	res.DryRun = true

	if out := Render(res, Options{}); !strings.Contains(out, "dry run") {
		t.Errorf("dry run not flagged:\n%s", out)
	}
}

func TestRender_Nil(t *testing.T) {
	if out := Render(nil, Options{}); out != "" {
		t.Errorf("expected empty output, got %q", out)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"a-very-long-address@example.com", 10, "a-very-lo…"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
