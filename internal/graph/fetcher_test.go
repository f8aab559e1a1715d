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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bcem/archiver/internal/models"
)

func graphEventJSON(id, subject, start, end string) map[string]interface{} {
	return map[string]interface{}{
		"id":          id,
		"subject":     subject,
		"start":       map[string]string{"dateTime": start, "timeZone": "UTC"},
		"end":         map[string]string{"dateTime": end, "timeZone": "UTC"},
		"location":    map[string]string{"displayName": "Room 1"},
		"categories":  []string{"Acme - billable"},
		"showAs":      "tentative",
		"sensitivity": "normal",
		"importance":  "high",
		"isCancelled": false,
	}
}

// TestAppointments_FollowsNextLink verifies paging and field mapping.
func TestAppointments_FollowsNextLink(t *testing.T) {
	var server *httptest.Server
	var pages int
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		w.Header().Set("Content-Type", "application/json")

		if r.URL.Path == "/page2" {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"value": []interface{}{
					graphEventJSON("evt-2", "Review", "2026-10-16T11:00:00.0000000", "2026-10-16T12:00:00.0000000"),
				},
			})
			return
		}

		if !strings.HasSuffix(r.URL.Path, "/users/alice@example.com/calendarView") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("startDateTime"); got != "2026-10-16T00:00:00Z" {
			t.Errorf("startDateTime = %q", got)
		}
		if !strings.Contains(r.Header.Get("Prefer"), `outlook.timezone="UTC"`) {
			t.Errorf("missing timezone preference: %q", r.Header.Get("Prefer"))
		}

		cancelled := graphEventJSON("evt-x", "Cancelled", "2026-10-16T08:00:00.0000000", "2026-10-16T09:00:00.0000000")
		cancelled["isCancelled"] = true
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value": []interface{}{
				graphEventJSON("evt-1", "Team Sync", "2026-10-16T09:00:00.0000000", "2026-10-16T09:30:00.0000000"),
				cancelled,
			},
			"@odata.nextLink": server.URL + "/page2",
		})
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL, 0)
	from := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

	appts, err := c.Appointments(context.Background(), "alice@example.com", from, from.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pages != 2 {
		t.Errorf("expected 2 page requests, got %d", pages)
	}
	if len(appts) != 2 {
		t.Fatalf("expected 2 appointments (cancelled skipped), got %d", len(appts))
	}

	a := appts[0]
	if a.ID != "evt-1" || a.UserID != "alice@example.com" || a.Location != "Room 1" {
		t.Errorf("unexpected identity fields: %+v", a)
	}
	if !a.Start.Equal(from.Add(9*time.Hour)) || !a.End.Equal(from.Add(9*time.Hour+30*time.Minute)) {
		t.Errorf("interval = %s - %s", a.Start, a.End)
	}
	if a.ShowAs != models.ShowAsTentative || a.Importance != models.ImportanceHigh || a.Sensitivity != models.SensitivityNormal {
		t.Errorf("enums = %s/%s/%s", a.ShowAs, a.Importance, a.Sensitivity)
	}
	if len(a.Categories) != 1 || a.Categories[0] != "Acme - billable" {
		t.Errorf("categories = %v", a.Categories)
	}
}

// TestAppointments_HTTPError verifies non-200 responses surface as errors.
func TestAppointments_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "throttled", http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL, 0)
	_, err := c.Appointments(context.Background(), "bob", time.Now(), time.Now().Add(time.Hour))
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected HTTP 429 error, got %v", err)
	}
}

// TestAppointments_SkipsUnparseableEvent verifies one bad event does not fail the page.
func TestAppointments_SkipsUnparseableEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value": []interface{}{
				graphEventJSON("bad", "Bad", "yesterday", "today"),
				graphEventJSON("ok", "Ok", "2026-10-16T09:00:00", "2026-10-16T10:00:00"),
			},
		})
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL, 0)
	appts, err := c.Appointments(context.Background(), "bob", time.Now(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(appts) != 1 || appts[0].ID != "ok" {
		t.Errorf("expected only the parseable event, got %v", models.IDs(appts))
	}
}

// TestMarkPrivate_PatchesSensitivity verifies the PATCH request shape.
func TestMarkPrivate_PatchesSensitivity(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL, 0)
	if err := c.MarkPrivate(context.Background(), "alice", "evt-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotMethod != http.MethodPatch {
		t.Errorf("method = %s, want PATCH", gotMethod)
	}
	if gotPath != "/users/alice/events/evt-1" {
		t.Errorf("path = %s", gotPath)
	}
	if gotBody["sensitivity"] != "private" {
		t.Errorf("body = %v", gotBody)
	}
}

// TestMarkPrivate_NotFoundIsIgnored verifies a deleted event is not an error.
func TestMarkPrivate_NotFoundIsIgnored(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL, 0)
	if err := c.MarkPrivate(context.Background(), "alice", "gone"); err != nil {
		t.Errorf("expected nil for 404, got %v", err)
	}
}

// TestMarkPrivate_ServerError verifies other statuses are reported.
func TestMarkPrivate_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL, 0)
	if err := c.MarkPrivate(context.Background(), "alice", "evt-1"); err == nil {
		t.Error("expected error for HTTP 403")
	}
}
