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

// Package discovery resolves which calendars a tenant run archives: an
// explicit include list from config, or every licensed user with a mailbox.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// Owner is a user whose calendar is archived.
type Owner struct {
	ID                string `json:"id"`
	Mail              string `json:"mail"`
	DisplayName       string `json:"displayName"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// Key returns the identifier used in Graph paths and archive rows. Graph
// accepts a userPrincipalName wherever it accepts the object ID.
func (o Owner) Key() string {
	switch {
	case o.UserPrincipalName != "":
		return o.UserPrincipalName
	case o.Mail != "":
		return o.Mail
	default:
		return o.ID
	}
}

// Discovery lists calendar owners for a tenant.
type Discovery struct {
	graphBaseURL string
}

// NewDiscovery creates a discovery instance.
func NewDiscovery(graphBaseURL string) *Discovery {
	return &Discovery{graphBaseURL: graphBaseURL}
}

type usersPage struct {
	Value    []Owner `json:"value"`
	NextLink string  `json:"@odata.nextLink"`
}

// CalendarOwners returns the users to archive.
//
//   - A non-empty include list is used as-is and Graph is not called.
//   - Otherwise enabled, licensed users with a mailbox are listed from Graph.
//   - Exclusions (case-insensitive, by mail or UPN) apply in both modes.
func (d *Discovery) CalendarOwners(
	ctx context.Context,
	httpClient *http.Client,
	tenantAlias string,
	include []string,
	exclude []string,
) ([]Owner, error) {
	excluded := make(map[string]bool, len(exclude))
	for _, u := range exclude {
		excluded[strings.ToLower(strings.TrimSpace(u))] = true
	}
	isExcluded := func(o Owner) bool {
		return excluded[strings.ToLower(o.Mail)] || excluded[strings.ToLower(o.UserPrincipalName)]
	}

	var owners []Owner

	if len(include) > 0 {
		slog.Info("using explicit calendar list",
			"tenant", tenantAlias,
			"count", len(include),
		)
		for _, mail := range include {
			o := Owner{Mail: mail, UserPrincipalName: mail}
			if isExcluded(o) {
				continue
			}
			owners = append(owners, o)
		}
		return owners, nil
	}

	slog.Info("discovering calendar owners", "tenant", tenantAlias)

	params := url.Values{}
	params.Set("$filter", "accountEnabled eq true and assignedLicenses/$count ne 0")
	params.Set("$count", "true")
	params.Set("$select", "id,mail,displayName,userPrincipalName")
	params.Set("$top", "100")

	for nextURL := fmt.Sprintf("%s/users?%s", d.graphBaseURL, params.Encode()); nextURL != ""; {
		page, err := d.fetchPage(ctx, httpClient, nextURL)
		if err != nil {
			return nil, err
		}

		for _, o := range page.Value {
			// No mailbox, no calendar.
			if o.Mail == "" {
				continue
			}
			if isExcluded(o) {
				slog.Debug("excluding user", "mail", o.Mail, "tenant", tenantAlias)
				continue
			}
			owners = append(owners, o)
		}

		nextURL = page.NextLink
	}

	slog.Info("calendar discovery complete",
		"tenant", tenantAlias,
		"discovered", len(owners),
	)
	return owners, nil
}

func (d *Discovery) fetchPage(ctx context.Context, httpClient *http.Client, pageURL string) (*usersPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build users request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("ConsistencyLevel", "eventual") // required for $count

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch users: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("graph /users returned HTTP %d", resp.StatusCode)
	}

	var page usersPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode users response: %w", err)
	}
	return &page, nil
}

// Keys returns Owner.Key for each owner.
func Keys(owners []Owner) []string {
	keys := make([]string, 0, len(owners))
	for _, o := range owners {
		keys = append(keys, o.Key())
	}
	return keys
}
