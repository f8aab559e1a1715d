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

// Package graph reads calendar appointments from the Microsoft Graph API and
// writes privacy flags back to the source calendar.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/bcem/archiver/internal/models"
)

const (
	pageSize = 50

	eventFields = "id,subject,start,end,location,categories,showAs,sensitivity,importance,isCancelled,isAllDay,type"
)

// Client talks to one tenant's Graph endpoint. The http.Client is expected
// to carry the tenant's OAuth2 token source.
type Client struct {
	httpClient   *http.Client
	graphBaseURL string
	pageDelay    time.Duration
}

// NewClient creates a Graph calendar client.
func NewClient(httpClient *http.Client, graphBaseURL string, pageDelay time.Duration) *Client {
	return &Client{
		httpClient:   httpClient,
		graphBaseURL: graphBaseURL,
		pageDelay:    pageDelay,
	}
}

// eventsResponse is one page of a calendarView listing.
type eventsResponse struct {
	Value    []graphEvent `json:"value"`
	NextLink string       `json:"@odata.nextLink"`
}

// Appointments lists the user's calendarView for [from, to). Graph expands
// recurring series into occurrences for this endpoint, so the result is
// ready for the pipeline. Cancelled occurrences are skipped.
func (c *Client) Appointments(ctx context.Context, userID string, from, to time.Time) ([]models.Appointment, error) {
	params := url.Values{}
	params.Set("startDateTime", from.UTC().Format(time.RFC3339))
	params.Set("endDateTime", to.UTC().Format(time.RFC3339))
	params.Set("$select", eventFields)
	params.Set("$orderby", "start/dateTime")
	params.Set("$top", fmt.Sprint(pageSize))

	listURL := fmt.Sprintf("%s/users/%s/calendarView?%s", c.graphBaseURL, url.PathEscape(userID), params.Encode())

	var out []models.Appointment
	pageCount := 0
	for nextURL := listURL; nextURL != ""; {
		if pageCount > 0 && c.pageDelay > 0 {
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case <-time.After(c.pageDelay):
			}
		}

		page, err := c.fetchPage(ctx, nextURL)
		if err != nil {
			return out, fmt.Errorf("fetch calendar page %d: %w", pageCount, err)
		}
		pageCount++

		for _, ev := range page.Value {
			if ev.IsCancelled {
				continue
			}
			appt, err := ev.toAppointment(userID)
			if err != nil {
				slog.Warn("skipping unparseable event",
					"user", userID,
					"event_id", ev.ID,
					"error", err,
				)
				continue
			}
			out = append(out, appt)
		}

		nextURL = page.NextLink
	}

	slog.Debug("calendar view fetched",
		"user", userID,
		"pages", pageCount,
		"appointments", len(out),
	)
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, pageURL string) (*eventsResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", fmt.Sprintf(`outlook.timezone="UTC", odata.maxpagesize=%d`, pageSize))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch calendar view: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("calendar view returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var page eventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode calendar view: %w", err)
	}
	return &page, nil
}

// MarkPrivate sets sensitivity=private on the source event. An event that no
// longer exists is logged and ignored.
func (c *Client) MarkPrivate(ctx context.Context, userID, eventID string) error {
	eventURL := fmt.Sprintf("%s/users/%s/events/%s", c.graphBaseURL, url.PathEscape(userID), url.PathEscape(eventID))

	body, err := json.Marshal(map[string]string{"sensitivity": "private"})
	if err != nil {
		return fmt.Errorf("marshal patch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, eventURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("patch event: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		slog.Warn("event not found (may have been deleted)",
			"user", userID,
			"event_id", eventID,
		)
		return nil
	default:
		return fmt.Errorf("graph API returned HTTP %d patching event %s", resp.StatusCode, eventID)
	}
}
