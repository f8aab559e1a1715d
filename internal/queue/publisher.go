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

// Package queue publishes review items (category problems, orphaned
// modifications, unresolved overlaps) to Redis as Celery-compatible tasks
// for the review workers.
package queue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/archiver/internal/models"
)

// reviewTask is the task name the review workers register.
const reviewTask = "review.tasks.record_item"

// ReviewItem is one record for human review, with the run it came from.
type ReviewItem struct {
	TenantAlias string           `json:"tenant_alias"`
	UserID      string           `json:"user_id"`
	RunID       string           `json:"run_id"`
	RangeStart  time.Time        `json:"range_start"`
	RangeEnd    time.Time        `json:"range_end"`
	SourceID    string           `json:"source_id"`
	Kind        models.IssueKind `json:"kind"`
	Message     string           `json:"message"`
	// Members lists the appointments of an unresolved overlap.
	Members []string `json:"members,omitempty"`
}

// Key identifies the item across runs so the same problem is not queued
// every day. Messages are deterministic, so they take part in the key.
func (i ReviewItem) Key() string {
	sum := sha256.Sum256([]byte(i.Message))
	return fmt.Sprintf("%s:%s:%s:%s:%s", i.TenantAlias, i.UserID, i.Kind, i.SourceID, hex.EncodeToString(sum[:8]))
}

// Publisher sends review items to Redis in Celery task format.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher creates a new Redis publisher targeting the specified queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
	}
}

// celeryTask represents a Celery-compatible task message.
type celeryTask struct {
	ID      string        `json:"id"`
	Task    string        `json:"task"`
	Args    []interface{} `json:"args"`
	Kwargs  interface{}   `json:"kwargs"`
	Retries int           `json:"retries"`
	ETA     *string       `json:"eta"`
}

// celeryMessage wraps a task for Redis transport.
type celeryMessage struct {
	Body            string                 `json:"body"`
	ContentEncoding string                 `json:"content-encoding"`
	ContentType     string                 `json:"content-type"`
	Headers         map[string]interface{} `json:"headers"`
	Properties      map[string]interface{} `json:"properties"`
}

// PublishReview queues item for the review workers.
func (p *Publisher) PublishReview(ctx context.Context, item ReviewItem) error {
	taskID := uuid.New().String()

	msg, err := encodeTask(p.queueName, taskID, item)
	if err != nil {
		return err
	}

	// Celery consumes with BRPOP, so producers LPUSH.
	if err := p.rdb.LPush(ctx, p.queueName, msg).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published review item",
		"task_id", taskID,
		"kind", item.Kind,
		"source_id", item.SourceID,
		"tenant", item.TenantAlias,
		"user", item.UserID,
		"queue", p.queueName,
	)
	return nil
}

func encodeTask(queueName, taskID string, item ReviewItem) (string, error) {
	itemJSON, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("marshal review item: %w", err)
	}

	taskBody, err := json.Marshal(celeryTask{
		ID:     taskID,
		Task:   reviewTask,
		Args:   []interface{}{string(itemJSON)},
		Kwargs: map[string]interface{}{},
	})
	if err != nil {
		return "", fmt.Errorf("marshal celery task: %w", err)
	}

	msg, err := json.Marshal(celeryMessage{
		Body:            string(taskBody),
		ContentEncoding: "utf-8",
		ContentType:     "application/json",
		Headers: map[string]interface{}{
			"lang":    "py",
			"task":    reviewTask,
			"id":      taskID,
			"retries": 0,
		},
		Properties: map[string]interface{}{
			"correlation_id": taskID,
			"delivery_mode":  2,
			"delivery_tag":   taskID,
			"body_encoding":  "utf-8",
			"exchange":       queueName,
			"routing_key":    queueName,
			"delivery_info": map[string]string{
				"exchange":    queueName,
				"routing_key": queueName,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal celery message: %w", err)
	}
	return string(msg), nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
