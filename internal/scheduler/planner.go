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
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bcem/archiver/internal/config"
	"github.com/bcem/archiver/internal/discovery"
	"github.com/bcem/archiver/internal/graph"
	"github.com/bcem/archiver/internal/ics"
	"github.com/bcem/archiver/internal/job"
)

// JobRunner executes one tenant request.
type JobRunner interface {
	Run(ctx context.Context, req job.Request) (*job.Result, error)
}

// Planner builds job requests from configuration. Graph tenants get a
// router that serves ICS users from their feeds and everyone else from
// Graph; tenants that only appear on feeds get a feeds-only router.
type Planner struct {
	cfg          *config.Config
	disc         *discovery.Discovery
	graphClients map[string]*http.Client
	feedClient   *http.Client
}

// NewPlanner creates a planner. graphClients is keyed by tenant alias and
// must carry each tenant's OAuth2 token source. feedClient may be nil.
func NewPlanner(cfg *config.Config, graphClients map[string]*http.Client, feedClient *http.Client) *Planner {
	return &Planner{
		cfg:          cfg,
		disc:         discovery.NewDiscovery(cfg.GraphBaseURL),
		graphClients: graphClients,
		feedClient:   feedClient,
	}
}

// Aliases returns every tenant alias that can be archived: configured
// Graph tenants first, then ICS-only tenants.
func (p *Planner) Aliases() []string {
	var out []string
	for _, t := range p.cfg.Tenants {
		if _, ok := p.graphClients[t.Alias]; ok {
			out = append(out, t.Alias)
		}
	}
	return append(out, p.cfg.ICSOnlyTenants()...)
}

// Request builds the request for one tenant. An empty users list means
// every discovered calendar owner plus every feed user.
func (p *Planner) Request(ctx context.Context, alias string, users []string, from, to time.Time) (job.Request, error) {
	req := job.Request{TenantAlias: alias, From: from, To: to}

	var feeds *ics.Source
	if cfgFeeds := p.cfg.FeedsFor(alias); len(cfgFeeds) > 0 {
		list := make([]ics.Feed, 0, len(cfgFeeds))
		for _, f := range cfgFeeds {
			list = append(list, ics.Feed{User: f.User, URL: f.URL, Name: f.Name})
		}
		feeds = ics.NewSource(p.feedClient, list)
	}

	tenant, ok := p.cfg.Tenant(alias)
	if !ok {
		if feeds == nil {
			return req, fmt.Errorf("unknown tenant %q", alias)
		}
		req.TenantID = alias
		req.Users = users
		if len(req.Users) == 0 {
			req.Users = feeds.Users()
		}
		router := job.Router{Feeds: feeds}
		req.Source, req.Writer = router, router
		return req, nil
	}

	httpClient, ok := p.graphClients[tenant.Alias]
	if !ok {
		return req, fmt.Errorf("no Graph client for tenant %q", alias)
	}
	req.TenantAlias = tenant.Alias
	req.TenantID = tenant.TenantID

	router := job.Router{Graph: graph.NewClient(httpClient, p.cfg.GraphBaseURL, p.cfg.PageDelay)}
	if feeds != nil {
		router.Feeds = feeds
	}
	req.Source, req.Writer = router, router

	req.Users = users
	if len(req.Users) == 0 {
		owners, err := p.disc.CalendarOwners(ctx, httpClient, tenant.Alias, tenant.IncludeUsers, tenant.ExcludeUsers)
		if err != nil {
			return req, fmt.Errorf("discover calendar owners: %w", err)
		}
		req.Users = discovery.Keys(owners)
		if feeds != nil {
			req.Users = appendMissing(req.Users, feeds.Users())
		}
	}
	return req, nil
}

// RunAll archives every tenant for [from, to). A tenant that cannot be
// planned is logged and skipped.
func (p *Planner) RunAll(ctx context.Context, runner JobRunner, from, to time.Time) []*job.Result {
	var results []*job.Result
	for _, alias := range p.Aliases() {
		if ctx.Err() != nil {
			break
		}
		req, err := p.Request(ctx, alias, nil, from, to)
		if err != nil {
			slog.Error("failed to plan archive run",
				"tenant", alias,
				"error", err,
			)
			continue
		}
		res, err := runner.Run(ctx, req)
		if err != nil {
			slog.Error("archive run failed",
				"tenant", alias,
				"error", err,
			)
		}
		if res != nil {
			results = append(results, res)
		}
	}
	return results
}

func appendMissing(users, extra []string) []string {
	seen := make(map[string]bool, len(users))
	for _, u := range users {
		seen[strings.ToLower(u)] = true
	}
	for _, u := range extra {
		if !seen[strings.ToLower(u)] {
			seen[strings.ToLower(u)] = true
			users = append(users, u)
		}
	}
	return users
}
