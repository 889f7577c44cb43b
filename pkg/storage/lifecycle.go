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
	"context"
	"time"

	"github.com/eschercloudai/cumulus/pkg/models"
	"github.com/eschercloudai/cumulus/pkg/util/log"
)

// archiveStorageClass is what the Archive lifecycle action transitions to.
const archiveStorageClass = "ARCHIVE"

// LifecycleExecutor ages objects out of buckets that carry lifecycle rules.
// Runs are idempotent, an already archived object is skipped and a deleted
// one is simply no longer listed.
type LifecycleExecutor struct {
	service *Service
}

// NewLifecycleExecutor creates the lifecycle worker.
func NewLifecycleExecutor(service *Service) *LifecycleExecutor {
	return &LifecycleExecutor{
		service: service,
	}
}

// Run evaluates lifecycle rules at the configured interval until cancelled.
// Expired resumable sessions ride along on the same tick.
func (e *LifecycleExecutor) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.service.options.LifecycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := e.RunOnce(ctx); err != nil {
				log.FromContext(ctx).Error(err, "lifecycle pass failed")
			}

			if err := e.service.SweepExpiredSessions(ctx); err != nil {
				log.FromContext(ctx).Error(err, "session sweep failed")
			}
		}
	}
}

// RunOnce evaluates every rule of every configured bucket once.
func (e *LifecycleExecutor) RunOnce(ctx context.Context) error {
	buckets, err := e.service.repos.Buckets.ListWithLifecycle(ctx)
	if err != nil {
		return err
	}

	for i := range buckets {
		if err := e.runBucket(ctx, &buckets[i]); err != nil {
			log.FromContext(ctx).Error(err, "lifecycle pass failed for bucket", "bucket", buckets[i].Name)
		}
	}

	return nil
}

func (e *LifecycleExecutor) runBucket(ctx context.Context, bucket *models.Bucket) error {
	now := e.service.clock.Now()

	var deleted, archived int

	for _, rule := range bucket.LifecycleConfig {
		objects, err := e.service.repos.Objects.ListLive(ctx, bucket.ID, "")
		if err != nil {
			return err
		}

		cutoff := now.Add(-time.Duration(rule.AgeDays) * 24 * time.Hour)

		for j := range objects {
			object := &objects[j]

			if object.TimeCreated.After(cutoff) {
				continue
			}

			switch rule.Action {
			case models.LifecycleActionDelete:
				if err := e.service.Delete(ctx, bucket.Name, object.Name, nil); err != nil {
					return err
				}

				deleted++

				lifecycleActionsTotal.WithLabelValues("delete").Inc()

			case models.LifecycleActionArchive:
				if object.StorageClass == archiveStorageClass {
					continue
				}

				if err := e.service.repos.Objects.SetStorageClass(ctx, bucket.ID, object.Name, archiveStorageClass); err != nil {
					return err
				}

				archived++

				lifecycleActionsTotal.WithLabelValues("archive").Inc()
			}
		}
	}

	if deleted > 0 || archived > 0 {
		log.FromContext(ctx).Info("lifecycle actions applied", "bucket", bucket.Name, "deleted", deleted, "archived", archived)
	}

	return nil
}
