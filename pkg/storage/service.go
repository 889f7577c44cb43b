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

// Package storage implements the object store service: generation and
// metageneration semantics, conditional writes, resumable and multipart
// uploads, signed URLs, change events and lifecycle execution.
package storage

import (
	"context"
	"crypto/md5" //nolint:gosec
	"encoding/base64"
	"encoding/binary"
	goerrors "errors"
	"hash/crc32"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/pflag"

	"github.com/eschercloudai/cumulus/pkg/content"
	"github.com/eschercloudai/cumulus/pkg/db"
	"github.com/eschercloudai/cumulus/pkg/errors"
	"github.com/eschercloudai/cumulus/pkg/models"
	"github.com/eschercloudai/cumulus/pkg/repo"
	"github.com/eschercloudai/cumulus/pkg/util/clock"
	"github.com/eschercloudai/cumulus/pkg/util/lock"
	"github.com/eschercloudai/cumulus/pkg/util/log"
)

// Options configures the object store service.
type Options struct {
	// EmulatorHost is the base URL signed URLs point at.
	EmulatorHost string

	// SignedURLSecret is the process wide HMAC secret.
	SignedURLSecret string

	// LifecycleInterval is how often lifecycle rules run.
	LifecycleInterval time.Duration

	// SessionExpiry is how long an idle resumable session survives.
	SessionExpiry time.Duration
}

// AddFlags registers object store options, environment variables provide the
// defaults so SDK-style configuration keeps working.
func (o *Options) AddFlags(f *pflag.FlagSet) {
	host := os.Getenv("STORAGE_EMULATOR_HOST")
	if host == "" {
		host = "http://localhost:6080"
	}

	secret := os.Getenv("SIGNED_URL_SECRET")
	if secret == "" {
		secret = "cumulus-signed-url-secret"
	}

	interval := 10 * time.Minute

	if minutes := os.Getenv("LIFECYCLE_INTERVAL_MINUTES"); minutes != "" {
		if parsed, err := time.ParseDuration(minutes + "m"); err == nil {
			interval = parsed
		}
	}

	f.StringVar(&o.EmulatorHost, "storage-emulator-host", host, "Base URL used when generating signed URLs.")
	f.StringVar(&o.SignedURLSecret, "signed-url-secret", secret, "HMAC secret for signed URL generation and verification.")
	f.DurationVar(&o.LifecycleInterval, "lifecycle-interval", interval, "How often bucket lifecycle rules are evaluated.")
	f.DurationVar(&o.SessionExpiry, "resumable-session-expiry", 24*time.Hour, "How long an idle resumable upload session survives.")
}

// Service is the object store.  Writes to the same (bucket, name) serialise
// on a striped lock, reads are lock free and see committed state.
type Service struct {
	database *sqlx.DB
	repos    *repo.Repositories
	content  *content.Store
	clock    clock.Clock
	locks    *lock.Striped
	options  *Options
}

// New creates the object store service.
func New(database *sqlx.DB, store *content.Store, clk clock.Clock, options *Options) *Service {
	return &Service{
		database: database,
		repos:    repo.New(database),
		content:  store,
		clock:    clk,
		locks:    lock.NewStriped(256),
		options:  options,
	}
}

// Preconditions are the optimistic concurrency constraints a client may
// attach to a write.
type Preconditions struct {
	IfGenerationMatch        *int64
	IfGenerationNotMatch     *int64
	IfMetagenerationMatch    *int64
	IfMetagenerationNotMatch *int64
}

// check evaluates the preconditions against the live head, in the order the
// wire protocol defines.  A nil head means "no current object", generation 0.
func (p *Preconditions) check(head *models.Object) error {
	var generation, metageneration int64

	if head != nil {
		generation = head.Generation
		metageneration = head.Metageneration
	}

	if p.IfGenerationMatch != nil && generation != *p.IfGenerationMatch {
		return errors.PreconditionFailed("generation precondition does not hold").
			WithValues("expected", *p.IfGenerationMatch, "actual", generation)
	}

	if p.IfGenerationNotMatch != nil && generation == *p.IfGenerationNotMatch {
		return errors.PreconditionFailed("generation matches excluded value").
			WithValues("excluded", *p.IfGenerationNotMatch)
	}

	if p.IfMetagenerationMatch != nil && metageneration != *p.IfMetagenerationMatch {
		return errors.PreconditionFailed("metageneration precondition does not hold").
			WithValues("expected", *p.IfMetagenerationMatch, "actual", metageneration)
	}

	if p.IfMetagenerationNotMatch != nil && metageneration == *p.IfMetagenerationNotMatch {
		return errors.PreconditionFailed("metageneration matches excluded value").
			WithValues("excluded", *p.IfMetagenerationNotMatch)
	}

	return nil
}

// UploadParams describes a simple upload.
type UploadParams struct {
	Bucket         string
	Name           string
	Data           []byte
	ContentType    string
	CustomMetadata map[string]string
	Preconditions  Preconditions
}

// lockKey serialises writers per (bucket, name).
func lockKey(bucket, name string) string {
	return bucket + "/" + name
}

// md5Sum is the wire encoding of the payload MD5.
func md5Sum(data []byte) string {
	sum := md5.Sum(data) //nolint:gosec

	return base64.StdEncoding.EncodeToString(sum[:])
}

// crc32cSum is the wire encoding of the payload CRC32C (Castagnoli,
// big-endian, base64).
func crc32cSum(data []byte) string {
	sum := crc32.Checksum(data, crc32.MakeTable(crc32.Castagnoli))

	var buf [4]byte

	binary.BigEndian.PutUint32(buf[:], sum)

	return base64.StdEncoding.EncodeToString(buf[:])
}

// Upload writes a new generation of (bucket, name).  Preconditions are
// evaluated before any byte reaches persistent storage.
func (s *Service) Upload(ctx context.Context, params *UploadParams) (*models.Object, error) {
	log.Stage(ctx, log.StageService)

	bucket, err := s.GetBucket(ctx, params.Bucket)
	if err != nil {
		return nil, err
	}

	key := lockKey(bucket.Name, params.Name)

	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	return s.uploadLocked(ctx, bucket, params)
}

// uploadLocked is the write path, callers must hold the per-key lock.
func (s *Service) uploadLocked(ctx context.Context, bucket *models.Bucket, params *UploadParams) (*models.Object, error) {
	head, err := s.repos.Objects.GetLiveHead(ctx, bucket.ID, params.Name)
	if err != nil && !goerrors.Is(err, repo.ErrNotFound) {
		return nil, errors.Internal("failed to resolve object head").WithError(err)
	}

	if err := params.Preconditions.check(head); err != nil {
		return nil, err
	}

	// Generations never regress, even across deletes, so consult the
	// full version history rather than the live head.
	maxGeneration, err := s.repos.Objects.MaxGeneration(ctx, bucket.ID, params.Name)
	if err != nil {
		return nil, errors.Internal("failed to allocate generation").WithError(err)
	}

	generation := maxGeneration + 1

	contentType := params.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	now := s.clock.Now()

	path, err := s.content.Write(bucket.ID, params.Data)
	if err != nil {
		return nil, errors.Internal("failed to persist object payload").WithError(err)
	}

	object := &models.Object{
		ID:             uuid.New().String(),
		BucketID:       bucket.ID,
		Name:           params.Name,
		Generation:     generation,
		Metageneration: 1,
		Size:           int64(len(params.Data)),
		ContentType:    contentType,
		MD5:            md5Sum(params.Data),
		CRC32C:         crc32cSum(params.Data),
		StorageClass:   bucket.StorageClass,
		ACL:            bucket.ACL,
		FilePath:       path,
		IsLatest:       true,
		Deleted:        false,
		TimeCreated:    now,
		UpdatedAt:      now,
		CustomMetadata: params.CustomMetadata,
	}

	version := versionFromObject(object)

	// Bytes freed only after a successful commit.
	var obsolete []string

	err = db.WithTx(ctx, s.database, func(tx *sqlx.Tx) error {
		repos := repo.New(tx)

		if !bucket.VersioningEnabled {
			// Purge prior versions, the new generation is the only
			// survivor.
			priors, err := repos.Objects.ListVersionsForName(ctx, bucket.ID, params.Name)
			if err != nil {
				return err
			}

			for i := range priors {
				if err := repos.Objects.DeleteVersion(ctx, priors[i].ID); err != nil {
					return err
				}

				obsolete = append(obsolete, priors[i].FilePath)
			}
		}

		if err := repos.Objects.InsertVersion(ctx, version); err != nil {
			return err
		}

		if err := repos.Objects.UpsertHead(ctx, object); err != nil {
			return err
		}

		return s.enqueueEvent(ctx, repos, bucket.Name, object, models.EventFinalize)
	})
	if err != nil {
		// The payload was orphaned by the failed transaction.
		//nolint:errcheck
		s.content.Remove(path)

		return nil, errors.Internal("failed to commit object").WithError(err)
	}

	for _, path := range obsolete {
		//nolint:errcheck
		s.content.Remove(path)
	}

	uploadsTotal.WithLabelValues(bucket.Name).Inc()

	return object, nil
}

// versionFromObject snapshots a head into its immutable version row.
func versionFromObject(object *models.Object) *models.ObjectVersion {
	return &models.ObjectVersion{
		ID:             uuid.New().String(),
		BucketID:       object.BucketID,
		ObjectID:       object.ID,
		Name:           object.Name,
		Generation:     object.Generation,
		Metageneration: object.Metageneration,
		Size:           object.Size,
		ContentType:    object.ContentType,
		MD5:            object.MD5,
		CRC32C:         object.CRC32C,
		StorageClass:   object.StorageClass,
		FilePath:       object.FilePath,
		CreatedAt:      object.TimeCreated,
		Deleted:        false,
		CustomMetadata: object.CustomMetadata,
	}
}

// objectFromVersion presents an archived version through the object view.
func objectFromVersion(version *models.ObjectVersion) *models.Object {
	return &models.Object{
		ID:             version.ObjectID,
		BucketID:       version.BucketID,
		Name:           version.Name,
		Generation:     version.Generation,
		Metageneration: version.Metageneration,
		Size:           version.Size,
		ContentType:    version.ContentType,
		MD5:            version.MD5,
		CRC32C:         version.CRC32C,
		StorageClass:   version.StorageClass,
		FilePath:       version.FilePath,
		IsLatest:       false,
		Deleted:        version.Deleted,
		TimeCreated:    version.CreatedAt,
		UpdatedAt:      version.CreatedAt,
		CustomMetadata: version.CustomMetadata,
	}
}

// GetObject returns object metadata, either the live head or an exact
// generation.
func (s *Service) GetObject(ctx context.Context, bucketName, name string, generation *int64) (*models.Object, error) {
	bucket, err := s.GetBucket(ctx, bucketName)
	if err != nil {
		return nil, err
	}

	if generation == nil {
		head, err := s.repos.Objects.GetLiveHead(ctx, bucket.ID, name)
		if err != nil {
			if goerrors.Is(err, repo.ErrNotFound) {
				return nil, errors.NotFound("object not found").WithValues("bucket", bucketName, "object", name)
			}

			return nil, errors.Internal("failed to read object").WithError(err)
		}

		return head, nil
	}

	version, err := s.repos.Objects.GetVersion(ctx, bucket.ID, name, *generation)
	if err != nil {
		if goerrors.Is(err, repo.ErrNotFound) {
			return nil, errors.NotFound("object generation not found").
				WithValues("bucket", bucketName, "object", name, "generation", *generation)
		}

		return nil, errors.Internal("failed to read object version").WithError(err)
	}

	return objectFromVersion(version), nil
}

// Download returns metadata and bytes.  Downloading the same generation
// twice returns byte-identical content.
func (s *Service) Download(ctx context.Context, bucketName, name string, generation *int64) (*models.Object, []byte, error) {
	log.Stage(ctx, log.StageService)

	object, err := s.GetObject(ctx, bucketName, name, generation)
	if err != nil {
		return nil, nil, err
	}

	data, err := s.content.Read(object.FilePath)
	if err != nil {
		return nil, nil, errors.Internal("failed to read object payload").WithError(err)
	}

	return object, data, nil
}

// MetadataPatch is the mutable metadata surface.
type MetadataPatch struct {
	ContentType    *string
	CustomMetadata map[string]string
	ACL            *models.BucketACL
}

// UpdateMetadata bumps the metageneration, the generation never changes.
func (s *Service) UpdateMetadata(ctx context.Context, bucketName, name string, patch *MetadataPatch, ifMetagenerationMatch *int64) (*models.Object, error) {
	bucket, err := s.GetBucket(ctx, bucketName)
	if err != nil {
		return nil, err
	}

	key := lockKey(bucket.Name, name)

	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	head, err := s.repos.Objects.GetLiveHead(ctx, bucket.ID, name)
	if err != nil {
		if goerrors.Is(err, repo.ErrNotFound) {
			return nil, errors.NotFound("object not found").WithValues("bucket", bucketName, "object", name)
		}

		return nil, errors.Internal("failed to read object").WithError(err)
	}

	preconditions := Preconditions{IfMetagenerationMatch: ifMetagenerationMatch}

	if err := preconditions.check(head); err != nil {
		return nil, err
	}

	head.Metageneration++
	head.UpdatedAt = s.clock.Now()

	if patch.ContentType != nil {
		head.ContentType = *patch.ContentType
	}

	if patch.CustomMetadata != nil {
		head.CustomMetadata = patch.CustomMetadata
	}

	if patch.ACL != nil {
		head.ACL = *patch.ACL
	}

	err = db.WithTx(ctx, s.database, func(tx *sqlx.Tx) error {
		repos := repo.New(tx)

		if err := repos.Objects.UpdateHeadMetadata(ctx, head); err != nil {
			return err
		}

		return s.enqueueEvent(ctx, repos, bucket.Name, head, models.EventMetadataUpdate)
	})
	if err != nil {
		return nil, errors.Internal("failed to update object metadata").WithError(err)
	}

	return head, nil
}

// Delete removes an object.  Semantics depend on bucket versioning and on
// whether an exact generation was named, see the version table invariants.
func (s *Service) Delete(ctx context.Context, bucketName, name string, generation *int64) error {
	bucket, err := s.GetBucket(ctx, bucketName)
	if err != nil {
		return err
	}

	key := lockKey(bucket.Name, name)

	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	return s.deleteLocked(ctx, bucket, name, generation)
}

func (s *Service) deleteLocked(ctx context.Context, bucket *models.Bucket, name string, generation *int64) error {
	if bucket.VersioningEnabled && generation != nil {
		return s.deleteExactVersion(ctx, bucket, name, *generation)
	}

	head, err := s.repos.Objects.GetLiveHead(ctx, bucket.ID, name)
	if err != nil {
		if goerrors.Is(err, repo.ErrNotFound) {
			return errors.NotFound("object not found").WithValues("bucket", bucket.Name, "object", name)
		}

		return errors.Internal("failed to read object").WithError(err)
	}

	if bucket.VersioningEnabled {
		// Tombstone the head, versions stay behind.
		err := db.WithTx(ctx, s.database, func(tx *sqlx.Tx) error {
			repos := repo.New(tx)

			if err := repos.Objects.MarkHeadDeleted(ctx, head.ID); err != nil {
				return err
			}

			return s.enqueueEvent(ctx, repos, bucket.Name, head, models.EventDelete)
		})
		if err != nil {
			return errors.Internal("failed to delete object").WithError(err)
		}

		return nil
	}

	// Versioning disabled, physically remove everything.
	versions, err := s.repos.Objects.ListVersionsForName(ctx, bucket.ID, name)
	if err != nil {
		return errors.Internal("failed to list object versions").WithError(err)
	}

	err = db.WithTx(ctx, s.database, func(tx *sqlx.Tx) error {
		repos := repo.New(tx)

		for i := range versions {
			if err := repos.Objects.DeleteVersion(ctx, versions[i].ID); err != nil {
				return err
			}
		}

		if err := repos.Objects.DeleteHead(ctx, head.ID); err != nil {
			return err
		}

		return s.enqueueEvent(ctx, repos, bucket.Name, head, models.EventDelete)
	})
	if err != nil {
		return errors.Internal("failed to delete object").WithError(err)
	}

	for i := range versions {
		//nolint:errcheck
		s.content.Remove(versions[i].FilePath)
	}

	return nil
}

// deleteExactVersion removes exactly one archived generation.
func (s *Service) deleteExactVersion(ctx context.Context, bucket *models.Bucket, name string, generation int64) error {
	version, err := s.repos.Objects.GetVersion(ctx, bucket.ID, name, generation)
	if err != nil {
		if goerrors.Is(err, repo.ErrNotFound) {
			return errors.NotFound("object generation not found").
				WithValues("bucket", bucket.Name, "object", name, "generation", generation)
		}

		return errors.Internal("failed to read object version").WithError(err)
	}

	err = db.WithTx(ctx, s.database, func(tx *sqlx.Tx) error {
		repos := repo.New(tx)

		if err := repos.Objects.DeleteVersion(ctx, version.ID); err != nil {
			return err
		}

		// Deleting the generation backing the live head tombstones the
		// head too.
		head, err := repos.Objects.GetLiveHead(ctx, bucket.ID, name)
		if err == nil && head.Generation == generation {
			if err := repos.Objects.MarkHeadDeleted(ctx, head.ID); err != nil {
				return err
			}
		}

		return s.enqueueEvent(ctx, repos, bucket.Name, objectFromVersion(version), models.EventDelete)
	})
	if err != nil {
		return errors.Internal("failed to delete object version").WithError(err)
	}

	//nolint:errcheck
	s.content.Remove(version.FilePath)

	return nil
}

// ListParams selects objects.
type ListParams struct {
	Bucket    string
	Prefix    string
	Delimiter string
	Versions  bool
}

// ListResult is the listing, items or versions plus rolled up prefixes.
type ListResult struct {
	Items    []models.Object
	Versions []models.ObjectVersion
	Prefixes []string
}

// List returns objects under a prefix, optionally rolling up names behind a
// delimiter, optionally listing all non-deleted versions.
func (s *Service) List(ctx context.Context, params *ListParams) (*ListResult, error) {
	bucket, err := s.GetBucket(ctx, params.Bucket)
	if err != nil {
		return nil, err
	}

	if params.Versions {
		versions, err := s.repos.Objects.ListVersions(ctx, bucket.ID, params.Prefix)
		if err != nil {
			return nil, errors.Internal("failed to list object versions").WithError(err)
		}

		return &ListResult{Versions: versions}, nil
	}

	objects, err := s.repos.Objects.ListLive(ctx, bucket.ID, params.Prefix)
	if err != nil {
		return nil, errors.Internal("failed to list objects").WithError(err)
	}

	if params.Delimiter == "" {
		return &ListResult{Items: objects}, nil
	}

	result := &ListResult{}
	seen := map[string]bool{}

	for i := range objects {
		remainder := strings.TrimPrefix(objects[i].Name, params.Prefix)

		index := strings.Index(remainder, params.Delimiter)
		if index < 0 {
			result.Items = append(result.Items, objects[i])

			continue
		}

		prefix := params.Prefix + remainder[:index+len(params.Delimiter)]

		if !seen[prefix] {
			seen[prefix] = true
			result.Prefixes = append(result.Prefixes, prefix)
		}
	}

	sort.Strings(result.Prefixes)

	return result, nil
}

// Copy atomically reads the latest source version and writes a new
// generation at the destination, preserving content type and custom
// metadata.  Locks are taken in stable order to avoid deadlocks with a
// concurrent reverse copy.
func (s *Service) Copy(ctx context.Context, srcBucket, srcName, dstBucket, dstName string) (*models.Object, error) {
	source, err := s.GetBucket(ctx, srcBucket)
	if err != nil {
		return nil, err
	}

	destination, err := s.GetBucket(ctx, dstBucket)
	if err != nil {
		return nil, err
	}

	srcKey, dstKey := lockKey(srcBucket, srcName), lockKey(dstBucket, dstName)

	s.locks.LockPair(srcKey, dstKey)
	defer s.locks.UnlockPair(srcKey, dstKey)

	head, err := s.repos.Objects.GetLiveHead(ctx, source.ID, srcName)
	if err != nil {
		if goerrors.Is(err, repo.ErrNotFound) {
			return nil, errors.NotFound("source object not found").WithValues("bucket", srcBucket, "object", srcName)
		}

		return nil, errors.Internal("failed to read source object").WithError(err)
	}

	data, err := s.content.Read(head.FilePath)
	if err != nil {
		return nil, errors.Internal("failed to read source payload").WithError(err)
	}

	return s.uploadLocked(ctx, destination, &UploadParams{
		Bucket:         dstBucket,
		Name:           dstName,
		Data:           data,
		ContentType:    head.ContentType,
		CustomMetadata: head.CustomMetadata,
	})
}
