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

package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bcem/archiver/internal/models"
)

// ErrReadOnly is returned by a PrivacyWriter for calendars it cannot modify.
var ErrReadOnly = errors.New("calendar is read-only")

// FeedSource is a Source that serves only some users.
type FeedSource interface {
	Source
	Has(user string) bool
}

// Router serves users with an ICS feed from Feeds and everyone else from
// Graph. Privacy write-back only reaches Graph calendars.
type Router struct {
	Feeds FeedSource
	Graph interface {
		Source
		PrivacyWriter
	}
}

// Appointments implements Source.
func (r Router) Appointments(ctx context.Context, user string, from, to time.Time) ([]models.Appointment, error) {
	if r.Feeds != nil && r.Feeds.Has(user) {
		return r.Feeds.Appointments(ctx, user, from, to)
	}
	if r.Graph == nil {
		return nil, fmt.Errorf("no calendar source for %s", user)
	}
	return r.Graph.Appointments(ctx, user, from, to)
}

// MarkPrivate implements PrivacyWriter.
func (r Router) MarkPrivate(ctx context.Context, user, eventID string) error {
	if (r.Feeds != nil && r.Feeds.Has(user)) || r.Graph == nil {
		return ErrReadOnly
	}
	return r.Graph.MarkPrivate(ctx, user, eventID)
}
