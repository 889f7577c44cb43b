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
	goerrors "errors"
	"regexp"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/eschercloudai/cumulus/pkg/db"
	"github.com/eschercloudai/cumulus/pkg/errors"
	"github.com/eschercloudai/cumulus/pkg/models"
	"github.com/eschercloudai/cumulus/pkg/repo"
	"github.com/eschercloudai/cumulus/pkg/util/log"
)

// bucketNameRegex follows the provider's bucket naming rules, lowercase
// alphanumerics with dots, dashes and underscores, 3 to 63 characters.
var bucketNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{1,61}[a-z0-9]$`)

// BucketParams describes a bucket to create.
type BucketParams struct {
	Name                string
	Location            string
	StorageClass        string
	VersioningEnabled   bool
	ACL                 models.BucketACL
	Labels              map[string]string
	LifecycleConfig     models.LifecycleRules
	NotificationConfigs models.NotificationConfigs
	CORSConfig          models.CORSRules
}

// CreateBucket creates a bucket.  Names are globally unique, a duplicate is
// a conflict regardless of owning project.
func (s *Service) CreateBucket(ctx context.Context, projectID string, params *BucketParams) (*models.Bucket, error) {
	if !bucketNameRegex.MatchString(params.Name) {
		return nil, errors.InvalidArgument("invalid bucket name").WithValues("bucket", params.Name)
	}

	location := params.Location
	if location == "" {
		location = "US"
	}

	storageClass := params.StorageClass
	if storageClass == "" {
		storageClass = "STANDARD"
	}

	acl := params.ACL
	if acl == "" {
		acl = models.ACLPrivate
	}

	now := s.clock.Now()

	bucket := &models.Bucket{
		ID:                  uuid.New().String(),
		ProjectID:           projectID,
		Name:                params.Name,
		Location:            location,
		StorageClass:        storageClass,
		VersioningEnabled:   params.VersioningEnabled,
		ACL:                 acl,
		Labels:              params.Labels,
		LifecycleConfig:     params.LifecycleConfig,
		NotificationConfigs: params.NotificationConfigs,
		CORSConfig:          params.CORSConfig,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.repos.Buckets.Create(ctx, bucket); err != nil {
		if goerrors.Is(err, repo.ErrConflict) {
			return nil, errors.AlreadyExists("bucket name already taken").WithValues("bucket", params.Name)
		}

		return nil, errors.Internal("failed to create bucket").WithError(err)
	}

	return bucket, nil
}

// GetBucket resolves a bucket by name.
func (s *Service) GetBucket(ctx context.Context, name string) (*models.Bucket, error) {
	bucket, err := s.repos.Buckets.GetByName(ctx, name)
	if err != nil {
		if goerrors.Is(err, repo.ErrNotFound) {
			return nil, errors.NotFound("bucket not found").WithValues("bucket", name)
		}

		return nil, errors.Internal("failed to read bucket").WithError(err)
	}

	return bucket, nil
}

// ListBuckets returns a project's buckets.
func (s *Service) ListBuckets(ctx context.Context, projectID string) ([]models.Bucket, error) {
	buckets, err := s.repos.Buckets.ListByProject(ctx, projectID)
	if err != nil {
		return nil, errors.Internal("failed to list buckets").WithError(err)
	}

	return buckets, nil
}

// BucketPatch is the mutable bucket surface.  Nil fields are left alone.
type BucketPatch struct {
	VersioningEnabled   *bool
	ACL                 *models.BucketACL
	Labels              map[string]string
	LifecycleConfig     *models.LifecycleRules
	NotificationConfigs *models.NotificationConfigs
	CORSConfig          *models.CORSRules
}

// PatchBucket applies a partial update.
func (s *Service) PatchBucket(ctx context.Context, name string, patch *BucketPatch) (*models.Bucket, error) {
	bucket, err := s.GetBucket(ctx, name)
	if err != nil {
		return nil, err
	}

	if patch.VersioningEnabled != nil {
		bucket.VersioningEnabled = *patch.VersioningEnabled
	}

	if patch.ACL != nil {
		bucket.ACL = *patch.ACL
	}

	if patch.Labels != nil {
		bucket.Labels = patch.Labels
	}

	if patch.LifecycleConfig != nil {
		bucket.LifecycleConfig = *patch.LifecycleConfig
	}

	if patch.NotificationConfigs != nil {
		bucket.NotificationConfigs = *patch.NotificationConfigs
	}

	if patch.CORSConfig != nil {
		bucket.CORSConfig = *patch.CORSConfig
	}

	bucket.UpdatedAt = s.clock.Now()

	if err := s.repos.Buckets.Update(ctx, bucket); err != nil {
		return nil, errors.Internal("failed to update bucket").WithError(err)
	}

	return bucket, nil
}

// DeleteBucket removes an empty bucket.  A bucket holding any live object or
// archived version cannot be deleted.
func (s *Service) DeleteBucket(ctx context.Context, name string) error {
	bucket, err := s.GetBucket(ctx, name)
	if err != nil {
		return err
	}

	count, err := s.repos.Objects.CountLiveVersions(ctx, bucket.ID)
	if err != nil {
		return errors.Internal("failed to count bucket contents").WithError(err)
	}

	if count > 0 {
		return errors.FailedPrecondition("bucket is not empty").
			WithValues("bucket", name, "objects", count)
	}

	err = db.WithTx(ctx, s.database, func(tx *sqlx.Tx) error {
		return repo.New(tx).Buckets.Delete(ctx, bucket.ID)
	})
	if err != nil {
		return errors.Internal("failed to delete bucket").WithError(err)
	}

	return nil
}

// PurgeBucket removes a bucket with everything it contains, payloads
// included.  Project teardown uses this, the empty-bucket precondition of
// DeleteBucket does not apply.
func (s *Service) PurgeBucket(ctx context.Context, name string) error {
	bucket, err := s.GetBucket(ctx, name)
	if err != nil {
		return err
	}

	versions, err := s.repos.Objects.ListAllVersions(ctx, bucket.ID)
	if err != nil {
		return errors.Internal("failed to list object versions").WithError(err)
	}

	sessions, err := s.repos.Sessions.ListByBucket(ctx, bucket.ID)
	if err != nil {
		return errors.Internal("failed to list resumable sessions").WithError(err)
	}

	err = db.WithTx(ctx, s.database, func(tx *sqlx.Tx) error {
		repos := repo.New(tx)

		if err := repos.Events.DeleteByBucket(ctx, bucket.Name); err != nil {
			return err
		}

		if err := repos.Sessions.DeleteByBucket(ctx, bucket.ID); err != nil {
			return err
		}

		if err := repos.Objects.DeleteVersionsByBucket(ctx, bucket.ID); err != nil {
			return err
		}

		if err := repos.Objects.DeleteByBucket(ctx, bucket.ID); err != nil {
			return err
		}

		return repos.Buckets.Delete(ctx, bucket.ID)
	})
	if err != nil {
		return errors.Internal("failed to purge bucket").WithError(err)
	}

	// Payload removal is best effort once the rows are gone, an orphaned
	// file is harmless.
	for i := range versions {
		if err := s.content.Remove(versions[i].FilePath); err != nil {
			log.FromContext(ctx).Info("bucket purge left a payload behind", "path", versions[i].FilePath, "error", err.Error())
		}
	}

	for i := range sessions {
		//nolint:errcheck
		s.content.RemoveTemp(sessions[i].SessionID)
	}

	return nil
}
