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

package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/eschercloudai/cumulus/pkg/errors"
	"github.com/eschercloudai/cumulus/pkg/models"
	"github.com/eschercloudai/cumulus/pkg/repo"
	"github.com/eschercloudai/cumulus/pkg/util/log"
)

// eventPayload is the webhook body, shaped like the provider's notification
// message.
type eventPayload struct {
	Kind           string            `json:"kind"`
	EventType      models.EventType  `json:"eventType"`
	Bucket         string            `json:"bucket"`
	Name           string            `json:"name"`
	Generation     string            `json:"generation"`
	Metageneration string            `json:"metageneration"`
	Size           string            `json:"size"`
	ContentType    string            `json:"contentType,omitempty"`
	MD5Hash        string            `json:"md5Hash,omitempty"`
	CRC32C         string            `json:"crc32c,omitempty"`
	TimeCreated    time.Time         `json:"timeCreated"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// enqueueEvent records a change event inside the mutating transaction so
// events and mutations commit or roll back together.
func (s *Service) enqueueEvent(ctx context.Context, repos *repo.Repositories, bucketName string, object *models.Object, eventType models.EventType) error {
	payload := eventPayload{
		Kind:           "storage#notification",
		EventType:      eventType,
		Bucket:         bucketName,
		Name:           object.Name,
		Generation:     strconv.FormatInt(object.Generation, 10),
		Metageneration: strconv.FormatInt(object.Metageneration, 10),
		Size:           strconv.FormatInt(object.Size, 10),
		ContentType:    object.ContentType,
		MD5Hash:        object.MD5,
		CRC32C:         object.CRC32C,
		TimeCreated:    object.TimeCreated,
		Metadata:       object.CustomMetadata,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	event := &models.ObjectEvent{
		EventID:    uuid.New().String(),
		BucketName: bucketName,
		ObjectName: object.Name,
		Generation: object.Generation,
		EventType:  eventType,
		Payload:    string(body),
		Delivered:  false,
		CreatedAt:  s.clock.Now(),
	}

	return repos.Events.Create(ctx, event)
}

// ListEvents returns a bucket's change events, newest last.
func (s *Service) ListEvents(ctx context.Context, bucketName string) ([]models.ObjectEvent, error) {
	if _, err := s.GetBucket(ctx, bucketName); err != nil {
		return nil, err
	}

	events, err := s.repos.Events.ListByBucket(ctx, bucketName)
	if err != nil {
		return nil, errors.Internal("failed to list events").WithError(err)
	}

	return events, nil
}

// Deliverer is the background fan-out worker.  Delivery is best effort, a
// webhook gets the original attempt plus one retry and the event is marked
// delivered either way so a dead endpoint cannot wedge the queue.
type Deliverer struct {
	service *Service
	client  *http.Client

	// Interval is the poll period.
	Interval time.Duration
}

// NewDeliverer creates the event delivery worker.
func NewDeliverer(service *Service) *Deliverer {
	return &Deliverer{
		service: service,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		Interval: 2 * time.Second,
	}
}

// Run polls for undelivered events until the context is cancelled.
func (d *Deliverer) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := d.deliverPending(ctx); err != nil {
				log.FromContext(ctx).Error(err, "event delivery pass failed")
			}
		}
	}
}

// deliverPending drains one batch of undelivered events.
func (d *Deliverer) deliverPending(ctx context.Context) error {
	events, err := d.service.repos.Events.ListUndelivered(ctx, 100)
	if err != nil {
		return err
	}

	for i := range events {
		event := &events[i]

		bucket, err := d.service.repos.Buckets.GetByName(ctx, event.BucketName)
		if err != nil {
			// Bucket deleted after the event was enqueued, nothing to
			// notify.
			if markErr := d.service.repos.Events.MarkDelivered(ctx, event.EventID); markErr != nil {
				return markErr
			}

			continue
		}

		for _, config := range bucket.NotificationConfigs {
			if !config.Matches(string(event.EventType), event.ObjectName) {
				continue
			}

			d.post(ctx, config.WebhookURL, event)
		}

		if err := d.service.repos.Events.MarkDelivered(ctx, event.EventID); err != nil {
			return err
		}
	}

	return nil
}

// post delivers one event to one webhook, retrying once.
func (d *Deliverer) post(ctx context.Context, url string, event *models.ObjectEvent) {
	for attempt := 0; attempt < 2; attempt++ {
		err := d.postOnce(ctx, url, event)
		if err == nil {
			eventsDeliveredTotal.WithLabelValues("ok").Inc()

			return
		}

		log.FromContext(ctx).V(1).Info("webhook delivery failed", "url", url, "event", event.EventID, "attempt", attempt, "error", err.Error())
	}

	eventsDeliveredTotal.WithLabelValues("failed").Inc()
}

func (d *Deliverer) postOnce(ctx context.Context, url string, event *models.ObjectEvent) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte(event.Payload)))
	if err != nil {
		return err
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("X-Cumulus-Event-Id", event.EventID)
	request.Header.Set("X-Cumulus-Event-Type", string(event.EventType))

	response, err := d.client.Do(request)
	if err != nil {
		return err
	}

	defer response.Body.Close()

	if response.StatusCode >= 300 {
		return errors.Internal("webhook returned " + strconv.Itoa(response.StatusCode))
	}

	return nil
}
