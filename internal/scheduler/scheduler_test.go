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

package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/bcem/archiver/internal/config"
	"github.com/bcem/archiver/internal/job"
)

func mustLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}

// TestDailyRange_PreviousDay verifies the default one-day lookback.
func TestDailyRange_PreviousDay(t *testing.T) {
	loc := mustLocation(t, "Europe/Amsterdam")
	now := time.Date(2026, 10, 17, 1, 30, 0, 0, loc)

	from, to := DailyRange(now, loc, 1)

	if want := time.Date(2026, 10, 16, 0, 0, 0, 0, loc); !from.Equal(want) {
		t.Errorf("from = %s, want %s", from, want)
	}
	if want := time.Date(2026, 10, 17, 0, 0, 0, 0, loc); !to.Equal(want) {
		t.Errorf("to = %s, want %s", to, want)
	}
}

// TestDailyRange_UsesLocationNotUTC verifies midnight is taken in the
// configured zone.
func TestDailyRange_UsesLocationNotUTC(t *testing.T) {
	loc := mustLocation(t, "America/New_York")
	// 02:00 UTC on the 17th is still the 16th in New York.
	now := time.Date(2026, 10, 17, 2, 0, 0, 0, time.UTC)

	_, to := DailyRange(now, loc, 1)

	if want := time.Date(2026, 10, 16, 0, 0, 0, 0, loc); !to.Equal(want) {
		t.Errorf("to = %s, want %s", to, want)
	}
}

// TestDailyRange_SpansDSTChange verifies calendar-day arithmetic.
func TestDailyRange_SpansDSTChange(t *testing.T) {
	loc := mustLocation(t, "Europe/Amsterdam")
	// Clocks go back on 2026-10-25.
	now := time.Date(2026, 10, 26, 3, 0, 0, 0, loc)

	from, to := DailyRange(now, loc, 1)

	if got := to.Sub(from); got != 25*time.Hour {
		t.Errorf("range length = %s, want 25h", got)
	}
}

// TestDailyRange_LookbackClamp verifies non-positive lookbacks act as one day.
func TestDailyRange_LookbackClamp(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	from, to := DailyRange(now, nil, 0)
	if to.Sub(from) != 24*time.Hour {
		t.Errorf("range = %s - %s", from, to)
	}

	from, _ = DailyRange(now, time.UTC, 7)
	if want := time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC); !from.Equal(want) {
		t.Errorf("from = %s, want %s", from, want)
	}
}

// TestNew_InvalidSchedule verifies cron parse errors surface.
func TestNew_InvalidSchedule(t *testing.T) {
	if _, err := New("every day at noon", time.UTC, 1, func(context.Context, time.Time, time.Time) {}); err == nil {
		t.Error("expected error for an invalid cron spec")
	}
}

// TestScheduler_NextInLocation verifies the schedule is evaluated in the
// configured zone.
func TestScheduler_NextInLocation(t *testing.T) {
	loc := mustLocation(t, "Asia/Tokyo")
	s, err := New("30 1 * * *", loc, 1, func(context.Context, time.Time, time.Time) {})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.now = func() time.Time { return time.Date(2026, 10, 17, 12, 0, 0, 0, loc) }

	next := s.Next().In(loc)
	if want := time.Date(2026, 10, 18, 1, 30, 0, 0, loc); !next.Equal(want) {
		t.Errorf("next = %s, want %s", next, want)
	}
}

// TestScheduler_RunNow verifies the manual trigger passes the daily range.
func TestScheduler_RunNow(t *testing.T) {
	var gotFrom, gotTo time.Time
	s, err := New("30 1 * * *", time.UTC, 2, func(_ context.Context, from, to time.Time) {
		gotFrom, gotTo = from, to
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.now = func() time.Time { return time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC) }

	s.RunNow(context.Background())

	if !gotFrom.Equal(time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)) || !gotTo.Equal(time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("range = %s - %s", gotFrom, gotTo)
	}
}

// --- Planner ---

type mockRunner struct {
	mu   sync.Mutex
	reqs []job.Request
	err  error
}

func (m *mockRunner) Run(_ context.Context, req job.Request) (*job.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs = append(m.reqs, req)
	if m.err != nil {
		return nil, m.err
	}
	return &job.Result{TenantAlias: req.TenantAlias}, nil
}

func testConfig(graphURL string) *config.Config {
	return &config.Config{
		GraphBaseURL: graphURL,
		Tenants: []config.TenantConfig{
			{Alias: "acme", Provider: "m365", TenantID: "tid-acme", ExcludeUsers: []string{"bot@acme.com"}},
			{Alias: "globex", Provider: "m365", TenantID: "tid-globex", IncludeUsers: []string{"hank@globex.com"}},
		},
		ICS: []config.ICSFeed{
			{Tenant: "acme", User: "carol@acme.com", URL: "https://feeds.example.com/carol.ics"},
			{Tenant: "freelance", User: "dave", URL: "https://feeds.example.com/dave.ics"},
			{Tenant: "freelance", User: "erin", URL: "https://feeds.example.com/erin.ics"},
		},
	}
}

func usersServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value": []map[string]string{
				{"id": "1", "mail": "alice@acme.com", "userPrincipalName": "alice@acme.com"},
				{"id": "2", "mail": "bot@acme.com", "userPrincipalName": "bot@acme.com"},
				{"id": "3", "mail": "carol@acme.com", "userPrincipalName": "carol@acme.com"},
			},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

// TestPlanner_Aliases verifies Graph tenants come first, then ICS-only ones.
func TestPlanner_Aliases(t *testing.T) {
	p := NewPlanner(testConfig("http://unused"), map[string]*http.Client{
		"acme":   http.DefaultClient,
		"globex": http.DefaultClient,
	}, nil)

	if got := p.Aliases(); !reflect.DeepEqual(got, []string{"acme", "globex", "freelance"}) {
		t.Errorf("aliases = %v", got)
	}
}

// TestPlanner_GraphTenantDiscoversUsers verifies discovery, exclusions and
// feed users being merged without duplicates.
func TestPlanner_GraphTenantDiscoversUsers(t *testing.T) {
	server := usersServer(t)
	p := NewPlanner(testConfig(server.URL), map[string]*http.Client{"acme": server.Client()}, nil)

	from := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	req, err := p.Request(context.Background(), "acme", nil, from, from.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if req.TenantID != "tid-acme" || req.TenantAlias != "acme" {
		t.Errorf("tenant = %s/%s", req.TenantID, req.TenantAlias)
	}
	if !reflect.DeepEqual(req.Users, []string{"alice@acme.com", "carol@acme.com"}) {
		t.Errorf("users = %v", req.Users)
	}

	router, ok := req.Source.(job.Router)
	if !ok || router.Feeds == nil || router.Graph == nil {
		t.Fatalf("expected a router with feeds and graph, got %#v", req.Source)
	}
	if !router.Feeds.Has("carol@acme.com") || router.Feeds.Has("alice@acme.com") {
		t.Error("feeds should serve carol only")
	}
}

// TestPlanner_ExplicitUsers verifies an explicit list skips discovery.
func TestPlanner_ExplicitUsers(t *testing.T) {
	p := NewPlanner(testConfig("http://127.0.0.1:1"), map[string]*http.Client{"globex": http.DefaultClient}, nil)

	req, err := p.Request(context.Background(), "globex", nil, time.Now(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(req.Users, []string{"hank@globex.com"}) {
		t.Errorf("users = %v", req.Users)
	}

	req, err = p.Request(context.Background(), "globex", []string{"ivy@globex.com"}, time.Now(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(req.Users, []string{"ivy@globex.com"}) {
		t.Errorf("users = %v", req.Users)
	}
}

// TestPlanner_ICSOnlyTenant verifies a feeds-only tenant needs no Graph client.
func TestPlanner_ICSOnlyTenant(t *testing.T) {
	p := NewPlanner(testConfig("http://unused"), nil, nil)

	req, err := p.Request(context.Background(), "freelance", nil, time.Now(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.TenantID != "freelance" || !reflect.DeepEqual(req.Users, []string{"dave", "erin"}) {
		t.Errorf("request = %+v", req)
	}

	err = req.Writer.MarkPrivate(context.Background(), "dave", "x")
	if !errors.Is(err, job.ErrReadOnly) {
		t.Errorf("expected read-only feeds, got %v", err)
	}
}

// TestPlanner_UnknownTenant verifies planning errors.
func TestPlanner_UnknownTenant(t *testing.T) {
	p := NewPlanner(testConfig("http://unused"), nil, nil)

	if _, err := p.Request(context.Background(), "initech", nil, time.Now(), time.Now()); err == nil {
		t.Error("expected error for an unknown tenant")
	}
	if _, err := p.Request(context.Background(), "globex", nil, time.Now(), time.Now()); err == nil {
		t.Error("expected error for a tenant without a Graph client")
	}
}

// TestPlanner_RunAllContinuesPastFailures verifies every tenant is attempted.
func TestPlanner_RunAllContinuesPastFailures(t *testing.T) {
	// globex has no client and is not listed; acme fails discovery.
	p := NewPlanner(testConfig("http://127.0.0.1:1"), map[string]*http.Client{"acme": http.DefaultClient}, nil)
	runner := &mockRunner{}

	results := p.RunAll(context.Background(), runner, time.Now(), time.Now().Add(time.Hour))

	if len(runner.reqs) != 1 || runner.reqs[0].TenantAlias != "freelance" {
		t.Errorf("runner requests = %+v", runner.reqs)
	}
	if len(results) != 1 {
		t.Errorf("results = %d, want 1", len(results))
	}
}

// TestGraphClients_TokenPerTenant verifies each tenant authenticates against
// its own token endpoint.
func TestGraphClients_TokenPerTenant(t *testing.T) {
	var mu sync.Mutex
	var tokenPaths []string
	tokens := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		tokenPaths = append(tokenPaths, r.URL.Path)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokens.Close()

	var gotAuth string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer api.Close()

	orig := tokenURLFormat
	tokenURLFormat = tokens.URL + "/%s/token"
	defer func() { tokenURLFormat = orig }()

	clients := GraphClients(context.Background(), []config.TenantConfig{
		{Alias: "acme", Provider: "m365", TenantID: "tid-acme", ClientID: "id", ClientSecret: "secret"},
		{Alias: "other", Provider: "google"},
	})
	if len(clients) != 1 || clients["acme"] == nil {
		t.Fatalf("clients = %v", clients)
	}

	resp, err := clients["acme"].Get(api.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if gotAuth != "Bearer tok" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if len(tokenPaths) != 1 || tokenPaths[0] != "/tid-acme/token" {
		t.Errorf("token requests = %v", tokenPaths)
	}
}
