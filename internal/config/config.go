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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // archive.timezone must resolve in minimal containers

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// DefaultGraphBaseURL is the Microsoft Graph v1.0 endpoint.
const DefaultGraphBaseURL = "https://graph.microsoft.com/v1.0"

// TenantConfig holds credentials and calendar selection for a single tenant.
type TenantConfig struct {
	Alias        string
	Provider     string // "m365"
	TenantID     string
	ClientID     string
	ClientSecret string
	IncludeUsers []string
	ExcludeUsers []string
}

// ICSFeed is a calendar read from an iCalendar URL instead of Graph.
type ICSFeed struct {
	Tenant string
	User   string
	URL    string
	Name   string
}

// Config holds all configuration for the archive service.
type Config struct {
	Tenants []TenantConfig
	ICS     []ICSFeed

	GraphBaseURL string

	// Postgres archive
	DatabaseURL string

	// Redis review queue
	RedisURL       string
	ReviewQueue    string
	ReviewDedupTTL time.Duration

	// Archive job
	Schedule            string
	Timezone            string
	Location            *time.Location
	LookbackDays        int
	MarkPrivateInSource bool
	PageDelay           time.Duration

	// Server (health check only)
	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Tenants []struct {
		Alias        string   `yaml:"alias"`
		Provider     string   `yaml:"provider"`
		TenantID     string   `yaml:"tenant_id"`
		ClientID     string   `yaml:"client_id"`
		ClientSecret string   `yaml:"client_secret"`
		IncludeUsers []string `yaml:"include_users"`
		ExcludeUsers []string `yaml:"exclude_users"`
	} `yaml:"tenants"`
	ICS []struct {
		Tenant string `yaml:"tenant"`
		User   string `yaml:"user"`
		URL    string `yaml:"url"`
		Name   string `yaml:"name"`
	} `yaml:"ics"`
	Graph struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"graph"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Review string `yaml:"review"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Archive struct {
		Schedule            string `yaml:"schedule"`
		Timezone            string `yaml:"timezone"`
		LookbackDays        int    `yaml:"lookback_days"`
		MarkPrivateInSource bool   `yaml:"mark_private_in_source"`
		PageDelay           string `yaml:"page_delay"`
	} `yaml:"archive"`
}

// Load reads configuration from CONFIG_PATH (default
// /app/config/config.yaml).
func Load() (*Config, error) {
	return LoadFile(envOrDefault("CONFIG_PATH", "/app/config/config.yaml"))
}

// LoadFile reads configuration from path (with env var expansion) and
// environment variables for non-YAML settings.
func LoadFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}
	return parse(data)
}

func parse(data []byte) (*Config, error) {
	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg := &Config{
		GraphBaseURL:        firstNonEmpty(raw.Graph.BaseURL, DefaultGraphBaseURL),
		DatabaseURL:         firstNonEmpty(raw.Database.URL, envOrDefault("DATABASE_URL", "")),
		RedisURL:            firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		ReviewQueue:         firstNonEmpty(raw.Redis.Queues.Review, envOrDefault("REVIEW_QUEUE", "review")),
		ReviewDedupTTL:      envOrDefaultDuration("REVIEW_DEDUP_TTL", 7*24*time.Hour),
		Schedule:            firstNonEmpty(raw.Archive.Schedule, envOrDefault("ARCHIVE_SCHEDULE", "30 1 * * *")),
		Timezone:            firstNonEmpty(raw.Archive.Timezone, envOrDefault("ARCHIVE_TIMEZONE", "UTC")),
		LookbackDays:        raw.Archive.LookbackDays,
		MarkPrivateInSource: raw.Archive.MarkPrivateInSource,
		PageDelay:           500 * time.Millisecond,
		Port:                envOrDefaultInt("PORT", 8080),
	}

	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 1
	}
	if raw.Archive.PageDelay != "" {
		d, err := time.ParseDuration(raw.Archive.PageDelay)
		if err != nil {
			return nil, fmt.Errorf("archive.page_delay: %w", err)
		}
		cfg.PageDelay = d
	}

	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("archive.schedule %q: %w", cfg.Schedule, err)
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("archive.timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	// Build tenant configs
	for _, t := range raw.Tenants {
		tc := TenantConfig{
			Alias:        t.Alias,
			Provider:     t.Provider,
			TenantID:     t.TenantID,
			ClientID:     t.ClientID,
			ClientSecret: t.ClientSecret,
			IncludeUsers: t.IncludeUsers,
			ExcludeUsers: t.ExcludeUsers,
		}

		// Skip tenants with empty credentials (commented out in YAML)
		if tc.TenantID == "" || tc.ClientID == "" || tc.ClientSecret == "" {
			continue
		}

		if tc.Alias == "" {
			tc.Alias = tc.TenantID[:min(8, len(tc.TenantID))]
		}
		if tc.Provider == "" {
			tc.Provider = "m365"
		}
		if tc.Provider != "m365" {
			return nil, fmt.Errorf("tenant %s: unsupported provider %q", tc.Alias, tc.Provider)
		}

		cfg.Tenants = append(cfg.Tenants, tc)
	}

	for i, f := range raw.ICS {
		if f.User == "" || f.URL == "" {
			return nil, fmt.Errorf("ics[%d]: user and url are required", i)
		}
		cfg.ICS = append(cfg.ICS, ICSFeed{
			Tenant: firstNonEmpty(f.Tenant, "ics"),
			User:   f.User,
			URL:    f.URL,
			Name:   f.Name,
		})
	}

	if len(cfg.Tenants) == 0 && len(cfg.ICS) == 0 {
		return nil, errors.New("no tenants or ics feeds configured: check config.yaml and environment variables")
	}

	return cfg, nil
}

// Tenant returns the tenant with the given alias.
func (c *Config) Tenant(alias string) (TenantConfig, bool) {
	for _, t := range c.Tenants {
		if strings.EqualFold(t.Alias, alias) {
			return t, true
		}
	}
	return TenantConfig{}, false
}

// FeedsFor returns the ICS feeds assigned to a tenant alias.
func (c *Config) FeedsFor(alias string) []ICSFeed {
	var out []ICSFeed
	for _, f := range c.ICS {
		if strings.EqualFold(f.Tenant, alias) {
			out = append(out, f)
		}
	}
	return out
}

// ICSOnlyTenants returns the tenant aliases that appear only on ICS feeds.
func (c *Config) ICSOnlyTenants() []string {
	var out []string
	seen := make(map[string]bool)
	for _, f := range c.ICS {
		key := strings.ToLower(f.Tenant)
		if seen[key] {
			continue
		}
		seen[key] = true
		if _, ok := c.Tenant(f.Tenant); !ok {
			out = append(out, f.Tenant)
		}
	}
	return out
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
