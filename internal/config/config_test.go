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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"DATABASE_URL", "REDIS_URL", "REVIEW_QUEUE", "REVIEW_DEDUP_TTL",
		"ARCHIVE_SCHEDULE", "ARCHIVE_TIMEZONE", "PORT"} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFile_FullConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("ACME_SECRET", "s3cret")
	t.Setenv("PORT", "9090")

	path := writeConfig(t, `
tenants:
  - alias: acme
    tenant_id: 11111111-2222-3333-4444-555555555555
    client_id: app-id
    client_secret: ${ACME_SECRET}
    include_users: [alice@acme.example]
    exclude_users: [noreply@acme.example]
  - alias: disabled
    tenant_id: ""
    client_id: ""
    client_secret: ""
ics:
  - user: carol@example.com
    url: https://calendar.example.com/carol.ics
    name: carol
  - tenant: acme
    user: dave@acme.example
    url: https://calendar.example.com/dave.ics
database:
  url: postgres://archiver@db/archive
redis:
  url: redis://cache:6379/1
  queues:
    review: calendar-review
archive:
  schedule: "15 2 * * *"
  timezone: Europe/Berlin
  lookback_days: 3
  mark_private_in_source: true
  page_delay: 250ms
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Tenants) != 1 {
		t.Fatalf("expected 1 tenant (empty credentials skipped), got %d", len(cfg.Tenants))
	}
	tc := cfg.Tenants[0]
	if tc.ClientSecret != "s3cret" {
		t.Errorf("client secret not expanded: %q", tc.ClientSecret)
	}
	if tc.Provider != "m365" {
		t.Errorf("provider = %q, want m365 default", tc.Provider)
	}
	if len(tc.IncludeUsers) != 1 || len(tc.ExcludeUsers) != 1 {
		t.Errorf("user lists = %v / %v", tc.IncludeUsers, tc.ExcludeUsers)
	}

	if cfg.DatabaseURL != "postgres://archiver@db/archive" || cfg.RedisURL != "redis://cache:6379/1" {
		t.Errorf("urls = %q, %q", cfg.DatabaseURL, cfg.RedisURL)
	}
	if cfg.ReviewQueue != "calendar-review" {
		t.Errorf("review queue = %q", cfg.ReviewQueue)
	}
	if cfg.Schedule != "15 2 * * *" || cfg.Location.String() != "Europe/Berlin" {
		t.Errorf("schedule = %q in %s", cfg.Schedule, cfg.Location)
	}
	if cfg.LookbackDays != 3 || !cfg.MarkPrivateInSource || cfg.PageDelay != 250*time.Millisecond {
		t.Errorf("archive settings = %d, %v, %s", cfg.LookbackDays, cfg.MarkPrivateInSource, cfg.PageDelay)
	}
	if cfg.Port != 9090 {
		t.Errorf("port = %d, want 9090 from env", cfg.Port)
	}
	if cfg.GraphBaseURL != DefaultGraphBaseURL {
		t.Errorf("graph base url = %q", cfg.GraphBaseURL)
	}

	if feeds := cfg.FeedsFor("ACME"); len(feeds) != 1 || feeds[0].User != "dave@acme.example" {
		t.Errorf("acme feeds = %+v", feeds)
	}
	if got := cfg.ICSOnlyTenants(); len(got) != 1 || got[0] != "ics" {
		t.Errorf("ics-only tenants = %v, want [ics]", got)
	}
}

func TestLoadFile_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFile(writeConfig(t, `
ics:
  - user: carol@example.com
    url: https://calendar.example.com/carol.ics
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LookbackDays != 1 {
		t.Errorf("lookback = %d, want 1", cfg.LookbackDays)
	}
	if cfg.Schedule != "30 1 * * *" || cfg.Location != time.UTC {
		t.Errorf("schedule = %q in %s", cfg.Schedule, cfg.Location)
	}
	if cfg.ReviewQueue != "review" || cfg.ReviewDedupTTL != 7*24*time.Hour {
		t.Errorf("review = %q ttl %s", cfg.ReviewQueue, cfg.ReviewDedupTTL)
	}
	if cfg.Port != 8080 {
		t.Errorf("port = %d", cfg.Port)
	}
}

func TestLoadFile_EnvFallbacks(t *testing.T) {
	clearEnv(t)
	t.Setenv("ARCHIVE_SCHEDULE", "0 3 * * 1-5")
	t.Setenv("ARCHIVE_TIMEZONE", "America/New_York")
	t.Setenv("REVIEW_DEDUP_TTL", "48h")

	cfg, err := LoadFile(writeConfig(t, "ics:\n  - user: a\n    url: https://x/a.ics\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Schedule != "0 3 * * 1-5" || cfg.Timezone != "America/New_York" || cfg.ReviewDedupTTL != 48*time.Hour {
		t.Errorf("env fallbacks not applied: %q %q %s", cfg.Schedule, cfg.Timezone, cfg.ReviewDedupTTL)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"nothing configured", "redis:\n  url: redis://x\n", "no tenants"},
		{"bad schedule", "ics:\n  - user: a\n    url: u\narchive:\n  schedule: every day\n", "archive.schedule"},
		{"bad timezone", "ics:\n  - user: a\n    url: u\narchive:\n  timezone: Mars/Olympus\n", "archive.timezone"},
		{"bad page delay", "ics:\n  - user: a\n    url: u\narchive:\n  page_delay: soon\n", "archive.page_delay"},
		{"ics without url", "ics:\n  - user: a\n", "ics[0]"},
		{"unsupported provider", "tenants:\n  - tenant_id: t\n    client_id: c\n    client_secret: s\n    provider: google\n", "unsupported provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := LoadFile(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
