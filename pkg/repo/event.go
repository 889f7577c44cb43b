/*
Copyright 2023-2024 EscherCloud.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package repo

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/eschercloudai/cumulus/pkg/models"
)

// EventRepo stores object change events awaiting webhook delivery.
type EventRepo struct {
	q Queryer
}

func (r *EventRepo) Create(ctx context.Context, event *models.ObjectEvent) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO object_events (event_id, bucket_name, object_name, generation, event_type,
			payload, delivered, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.EventID, event.BucketName, event.ObjectName, event.Generation, event.EventType,
		event.Payload, event.Delivered, event.CreatedAt)

	return translate(err)
}

// ListUndelivered returns pending events oldest first.
func (r *EventRepo) ListUndelivered(ctx context.Context, limit int) ([]models.ObjectEvent, error) {
	var events []models.ObjectEvent

	if err := sqlx.SelectContext(ctx, r.q, &events,
		`SELECT * FROM object_events WHERE delivered = 0 ORDER BY created_at LIMIT ?`, limit); err != nil {
		return nil, translate(err)
	}

	return events, nil
}

// ListByBucket returns all events for a bucket, oldest first.
func (r *EventRepo) ListByBucket(ctx context.Context, bucketName string) ([]models.ObjectEvent, error) {
	var events []models.ObjectEvent

	if err := sqlx.SelectContext(ctx, r.q, &events,
		`SELECT * FROM object_events WHERE bucket_name = ? ORDER BY created_at`, bucketName); err != nil {
		return nil, translate(err)
	}

	return events, nil
}

func (r *EventRepo) DeleteByBucket(ctx context.Context, bucketName string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM object_events WHERE bucket_name = ?`, bucketName)

	return translate(err)
}

func (r *EventRepo) MarkDelivered(ctx context.Context, eventID string) error {
	_, err := r.q.ExecContext(ctx, `UPDATE object_events SET delivered = 1 WHERE event_id = ?`, eventID)

	return translate(err)
}
