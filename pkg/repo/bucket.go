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

// BucketRepo stores buckets.  Bucket names are globally unique.
type BucketRepo struct {
	q Queryer
}

func (r *BucketRepo) Create(ctx context.Context, bucket *models.Bucket) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO buckets (id, project_id, name, location, storage_class, versioning_enabled, acl,
			labels, lifecycle_config, notification_configs, cors_config, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		bucket.ID, bucket.ProjectID, bucket.Name, bucket.Location, bucket.StorageClass,
		bucket.VersioningEnabled, bucket.ACL, bucket.Labels, bucket.LifecycleConfig,
		bucket.NotificationConfigs, bucket.CORSConfig, bucket.CreatedAt, bucket.UpdatedAt)

	return translate(err)
}

func (r *BucketRepo) GetByName(ctx context.Context, name string) (*models.Bucket, error) {
	var bucket models.Bucket

	if err := sqlx.GetContext(ctx, r.q, &bucket, `SELECT * FROM buckets WHERE name = ?`, name); err != nil {
		return nil, translate(err)
	}

	return &bucket, nil
}

func (r *BucketRepo) ListByProject(ctx context.Context, projectID string) ([]models.Bucket, error) {
	var buckets []models.Bucket

	if err := sqlx.SelectContext(ctx, r.q, &buckets, `SELECT * FROM buckets WHERE project_id = ? ORDER BY name`, projectID); err != nil {
		return nil, translate(err)
	}

	return buckets, nil
}

// ListWithLifecycle returns buckets that have at least one lifecycle rule.
func (r *BucketRepo) ListWithLifecycle(ctx context.Context) ([]models.Bucket, error) {
	var buckets []models.Bucket

	if err := sqlx.SelectContext(ctx, r.q, &buckets, `SELECT * FROM buckets WHERE lifecycle_config != '[]' ORDER BY name`); err != nil {
		return nil, translate(err)
	}

	return buckets, nil
}

// ListWithNotifications returns buckets carrying notification configs.
func (r *BucketRepo) ListWithNotifications(ctx context.Context) ([]models.Bucket, error) {
	var buckets []models.Bucket

	if err := sqlx.SelectContext(ctx, r.q, &buckets, `SELECT * FROM buckets WHERE notification_configs != '[]' ORDER BY name`); err != nil {
		return nil, translate(err)
	}

	return buckets, nil
}

func (r *BucketRepo) Update(ctx context.Context, bucket *models.Bucket) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE buckets SET versioning_enabled = ?, acl = ?, labels = ?, lifecycle_config = ?,
			notification_configs = ?, cors_config = ?, storage_class = ?, updated_at = ?
		 WHERE id = ?`,
		bucket.VersioningEnabled, bucket.ACL, bucket.Labels, bucket.LifecycleConfig,
		bucket.NotificationConfigs, bucket.CORSConfig, bucket.StorageClass, bucket.UpdatedAt,
		bucket.ID)
	if err != nil {
		return translate(err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *BucketRepo) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM buckets WHERE id = ?`, id)
	if err != nil {
		return translate(err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}
