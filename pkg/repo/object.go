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

// ObjectRepo stores object heads and their immutable versions.
type ObjectRepo struct {
	q Queryer
}

// GetLiveHead returns the current object for (bucket, name).
func (r *ObjectRepo) GetLiveHead(ctx context.Context, bucketID, name string) (*models.Object, error) {
	var object models.Object

	if err := sqlx.GetContext(ctx, r.q, &object,
		`SELECT * FROM objects WHERE bucket_id = ? AND name = ? AND is_latest = 1 AND deleted = 0`,
		bucketID, name); err != nil {
		return nil, translate(err)
	}

	return &object, nil
}

// UpsertHead replaces the head row for (bucket, name).  The unique index on
// (bucket_id, name) guarantees at most one head per pair.
func (r *ObjectRepo) UpsertHead(ctx context.Context, object *models.Object) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO objects (id, bucket_id, name, generation, metageneration, size, content_type,
			md5, crc32c, storage_class, acl, file_path, is_latest, deleted, time_created, updated_at, custom_metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (bucket_id, name) DO UPDATE SET
			id = excluded.id,
			generation = excluded.generation,
			metageneration = excluded.metageneration,
			size = excluded.size,
			content_type = excluded.content_type,
			md5 = excluded.md5,
			crc32c = excluded.crc32c,
			storage_class = excluded.storage_class,
			acl = excluded.acl,
			file_path = excluded.file_path,
			is_latest = excluded.is_latest,
			deleted = excluded.deleted,
			time_created = excluded.time_created,
			updated_at = excluded.updated_at,
			custom_metadata = excluded.custom_metadata`,
		object.ID, object.BucketID, object.Name, object.Generation, object.Metageneration,
		object.Size, object.ContentType, object.MD5, object.CRC32C, object.StorageClass,
		object.ACL, object.FilePath, object.IsLatest, object.Deleted, object.TimeCreated,
		object.UpdatedAt, object.CustomMetadata)

	return translate(err)
}

// UpdateHeadMetadata bumps the metageneration and patches mutable metadata.
func (r *ObjectRepo) UpdateHeadMetadata(ctx context.Context, object *models.Object) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE objects SET metageneration = ?, content_type = ?, acl = ?, storage_class = ?,
			custom_metadata = ?, updated_at = ? WHERE id = ?`,
		object.Metageneration, object.ContentType, object.ACL, object.StorageClass,
		object.CustomMetadata, object.UpdatedAt, object.ID)
	if err != nil {
		return translate(err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}

// MarkHeadDeleted tombstones the head, prior versions stay behind.
func (r *ObjectRepo) MarkHeadDeleted(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `UPDATE objects SET deleted = 1, is_latest = 0 WHERE id = ?`, id)
	if err != nil {
		return translate(err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteHead physically removes the head row.
func (r *ObjectRepo) DeleteHead(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM objects WHERE id = ?`, id)

	return translate(err)
}

// DeleteByBucket removes every head row in a bucket, bucket purge only.
func (r *ObjectRepo) DeleteByBucket(ctx context.Context, bucketID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM objects WHERE bucket_id = ?`, bucketID)

	return translate(err)
}

// ListAllVersions returns every version row in a bucket, tombstones
// included.  Bucket purge walks this for payload removal.
func (r *ObjectRepo) ListAllVersions(ctx context.Context, bucketID string) ([]models.ObjectVersion, error) {
	var versions []models.ObjectVersion

	if err := sqlx.SelectContext(ctx, r.q, &versions,
		`SELECT * FROM object_versions WHERE bucket_id = ?`, bucketID); err != nil {
		return nil, translate(err)
	}

	return versions, nil
}

// DeleteVersionsByBucket removes every version row in a bucket, bucket purge
// only.
func (r *ObjectRepo) DeleteVersionsByBucket(ctx context.Context, bucketID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM object_versions WHERE bucket_id = ?`, bucketID)

	return translate(err)
}

// ListLive returns current objects whose name starts with prefix, ordered by
// name ascending.
func (r *ObjectRepo) ListLive(ctx context.Context, bucketID, prefix string) ([]models.Object, error) {
	var objects []models.Object

	if err := sqlx.SelectContext(ctx, r.q, &objects,
		`SELECT * FROM objects
		 WHERE bucket_id = ? AND is_latest = 1 AND deleted = 0 AND name >= ? AND name GLOB ?
		 ORDER BY name`,
		bucketID, prefix, globEscape(prefix)+"*"); err != nil {
		return nil, translate(err)
	}

	return objects, nil
}

// InsertVersion appends an immutable version row.
func (r *ObjectRepo) InsertVersion(ctx context.Context, version *models.ObjectVersion) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO object_versions (id, bucket_id, object_id, name, generation, metageneration,
			size, content_type, md5, crc32c, storage_class, file_path, created_at, deleted, custom_metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		version.ID, version.BucketID, version.ObjectID, version.Name, version.Generation,
		version.Metageneration, version.Size, version.ContentType, version.MD5, version.CRC32C,
		version.StorageClass, version.FilePath, version.CreatedAt, version.Deleted,
		version.CustomMetadata)

	return translate(err)
}

// GetVersion returns the exact generation of an object.
func (r *ObjectRepo) GetVersion(ctx context.Context, bucketID, name string, generation int64) (*models.ObjectVersion, error) {
	var version models.ObjectVersion

	if err := sqlx.GetContext(ctx, r.q, &version,
		`SELECT * FROM object_versions WHERE bucket_id = ? AND name = ? AND generation = ? AND deleted = 0`,
		bucketID, name, generation); err != nil {
		return nil, translate(err)
	}

	return &version, nil
}

// ListVersions returns non-deleted versions matching the prefix ordered by
// name ascending, generation descending.
func (r *ObjectRepo) ListVersions(ctx context.Context, bucketID, prefix string) ([]models.ObjectVersion, error) {
	var versions []models.ObjectVersion

	if err := sqlx.SelectContext(ctx, r.q, &versions,
		`SELECT * FROM object_versions
		 WHERE bucket_id = ? AND deleted = 0 AND name GLOB ?
		 ORDER BY name ASC, generation DESC`,
		bucketID, globEscape(prefix)+"*"); err != nil {
		return nil, translate(err)
	}

	return versions, nil
}

// ListVersionsForName returns all versions of one object, newest first.
func (r *ObjectRepo) ListVersionsForName(ctx context.Context, bucketID, name string) ([]models.ObjectVersion, error) {
	var versions []models.ObjectVersion

	if err := sqlx.SelectContext(ctx, r.q, &versions,
		`SELECT * FROM object_versions WHERE bucket_id = ? AND name = ? AND deleted = 0 ORDER BY generation DESC`,
		bucketID, name); err != nil {
		return nil, translate(err)
	}

	return versions, nil
}

// DeleteVersion physically removes one version row.
func (r *ObjectRepo) DeleteVersion(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM object_versions WHERE id = ?`, id)
	if err != nil {
		return translate(err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}

// MaxGeneration returns the highest generation ever used for (bucket, name).
// Generations never regress, even across deletes, so the version table is
// consulted as well as the head.
func (r *ObjectRepo) MaxGeneration(ctx context.Context, bucketID, name string) (int64, error) {
	var max int64

	if err := sqlx.GetContext(ctx, r.q, &max,
		`SELECT COALESCE(MAX(generation), 0) FROM (
			SELECT generation FROM object_versions WHERE bucket_id = ? AND name = ?
			UNION ALL
			SELECT generation FROM objects WHERE bucket_id = ? AND name = ?
		 )`,
		bucketID, name, bucketID, name); err != nil {
		return 0, translate(err)
	}

	return max, nil
}

// CountLiveVersions counts non-deleted version rows in a bucket.  Bucket
// deletion requires this to be zero.
func (r *ObjectRepo) CountLiveVersions(ctx context.Context, bucketID string) (int64, error) {
	var count int64

	if err := sqlx.GetContext(ctx, r.q, &count,
		`SELECT COUNT(*) FROM object_versions WHERE bucket_id = ? AND deleted = 0`, bucketID); err != nil {
		return 0, translate(err)
	}

	return count, nil
}

// SetStorageClass rewrites the storage class for the head and every version
// of an object.  Used by lifecycle Archive, idempotent by construction.
func (r *ObjectRepo) SetStorageClass(ctx context.Context, bucketID, name, storageClass string) error {
	if _, err := r.q.ExecContext(ctx,
		`UPDATE objects SET storage_class = ? WHERE bucket_id = ? AND name = ?`,
		storageClass, bucketID, name); err != nil {
		return translate(err)
	}

	if _, err := r.q.ExecContext(ctx,
		`UPDATE object_versions SET storage_class = ? WHERE bucket_id = ? AND name = ?`,
		storageClass, bucketID, name); err != nil {
		return translate(err)
	}

	return nil
}

// globEscape neutralises GLOB metacharacters in a literal prefix.
func globEscape(s string) string {
	var out []rune

	for _, r := range s {
		switch r {
		case '*', '?', '[', ']':
			out = append(out, '[', r, ']')
		default:
			out = append(out, r)
		}
	}

	return string(out)
}
