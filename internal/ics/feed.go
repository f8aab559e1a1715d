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

package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bcem/archiver/internal/models"
)

// maxFeedBytes bounds a single feed download.
var maxFeedBytes int64 = 32 << 20

// Feed is an ICS subscription archived on behalf of a user.
type Feed struct {
	User string
	URL  string
	Name string
}

// Source serves appointments for users whose calendars are ICS feeds.
type Source struct {
	client *http.Client
	feeds  map[string][]Feed
	users  []string
}

// NewSource creates a feed source. A nil client gets a 30s timeout client.
func NewSource(client *http.Client, feeds []Feed) *Source {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	s := &Source{client: client, feeds: make(map[string][]Feed)}
	for _, f := range feeds {
		key := strings.ToLower(f.User)
		if _, ok := s.feeds[key]; !ok {
			s.users = append(s.users, f.User)
		}
		s.feeds[key] = append(s.feeds[key], f)
	}
	return s
}

// Has reports whether user has at least one feed.
func (s *Source) Has(user string) bool {
	return len(s.feeds[strings.ToLower(user)]) > 0
}

// Users returns the users with feeds, in configuration order.
func (s *Source) Users() []string {
	return append([]string(nil), s.users...)
}

// Appointments downloads every feed of user and returns the occurrences in
// [from, to). A feed that fails aborts the call so the user's archive run is
// not written from partial data.
func (s *Source) Appointments(ctx context.Context, user string, from, to time.Time) ([]models.Appointment, error) {
	feeds := s.feeds[strings.ToLower(user)]
	if len(feeds) == 0 {
		return nil, fmt.Errorf("no ICS feed configured for %s", user)
	}

	var out []models.Appointment
	for _, f := range feeds {
		body, err := s.fetch(ctx, f.URL)
		if err != nil {
			return nil, fmt.Errorf("fetch feed %s: %w", feedName(f), err)
		}
		events, err := Parse(body)
		if err != nil {
			return nil, fmt.Errorf("parse feed %s: %w", feedName(f), err)
		}
		appts := Expand(events, user, from, to)

		slog.Debug("ics feed expanded",
			"user", user,
			"feed", feedName(f),
			"events", len(events),
			"appointments", len(appts),
		)
		out = append(out, appts...)
	}

	models.SortByStart(out)
	return out, nil
}

func (s *Source) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if strings.HasPrefix(rawURL, "webcal://") {
		rawURL = "https://" + strings.TrimPrefix(rawURL, "webcal://")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/calendar")

	resp, err := s.client.Do(req)
	if err != nil {
		// *url.Error repeats the full URL.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > maxFeedBytes {
		return nil, fmt.Errorf("feed exceeds %d bytes", maxFeedBytes)
	}
	return body, nil
}

// feedName is the configured name or the feed host; feed URLs usually embed
// a secret token and are never logged in full.
func feedName(f Feed) string {
	if f.Name != "" {
		return f.Name
	}
	u, err := url.Parse(f.URL)
	if err != nil || u.Host == "" {
		return "ics://(redacted)"
	}
	return u.Host + "/(redacted)"
}
