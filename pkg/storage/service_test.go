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

package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eschercloudai/cumulus/pkg/content"
	"github.com/eschercloudai/cumulus/pkg/db"
	"github.com/eschercloudai/cumulus/pkg/errors"
	"github.com/eschercloudai/cumulus/pkg/models"
	"github.com/eschercloudai/cumulus/pkg/storage"
	"github.com/eschercloudai/cumulus/pkg/util/clock"
)

const testProject = "default"

func newTestService(t *testing.T) (*storage.Service, *clock.Fake) {
	t.Helper()

	ctx := context.Background()

	database, err := db.Open(ctx, &db.Options{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)

	t.Cleanup(func() {
		database.Close()
	})

	store, err := content.New(&content.Options{Root: t.TempDir()})
	require.NoError(t, err)

	clk := clock.NewFake(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	_, err = database.ExecContext(ctx, `INSERT INTO projects (id, display_name, project_number, created_at) VALUES (?, ?, ?, ?)`,
		testProject, "Default project", 1, clk.Now())
	require.NoError(t, err)

	service := storage.New(database, store, clk, &storage.Options{
		EmulatorHost:      "http://localhost:6080",
		SignedURLSecret:   "test-secret",
		LifecycleInterval: time.Minute,
		SessionExpiry:     time.Hour,
	})

	return service, clk
}

func createBucket(t *testing.T, service *storage.Service, params *storage.BucketParams) *models.Bucket {
	t.Helper()

	bucket, err := service.CreateBucket(context.Background(), testProject, params)
	require.NoError(t, err)

	return bucket
}

func int64Ptr(v int64) *int64 {
	return &v
}

func TestCreateBucketDefaults(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t)

	bucket := createBucket(t, service, &storage.BucketParams{Name: "my-bucket"})

	assert.Equal(t, "US", bucket.Location)
	assert.Equal(t, "STANDARD", bucket.StorageClass)
	assert.Equal(t, models.ACLPrivate, bucket.ACL)
	assert.False(t, bucket.VersioningEnabled)
}

func TestCreateBucketNameConflict(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t)

	createBucket(t, service, &storage.BucketParams{Name: "my-bucket"})

	_, err := service.CreateBucket(context.Background(), testProject, &storage.BucketParams{Name: "my-bucket"})
	require.Error(t, err)
	assert.True(t, errors.IsAlreadyExists(err))
}

func TestCreateBucketInvalidName(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t)

	for _, name := range []string{"", "a", "UPPER", "-leading", "trailing-"} {
		_, err := service.CreateBucket(context.Background(), testProject, &storage.BucketParams{Name: name})
		assert.Error(t, err, name)
	}
}

func TestDeleteBucketNotEmpty(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t)
	ctx := context.Background()

	createBucket(t, service, &storage.BucketParams{Name: "my-bucket"})

	_, err := service.Upload(ctx, &storage.UploadParams{Bucket: "my-bucket", Name: "a.txt", Data: []byte("hello")})
	require.NoError(t, err)

	err = service.DeleteBucket(ctx, "my-bucket")
	require.Error(t, err)
	assert.Equal(t, 400, errors.StatusOf(err))

	require.NoError(t, service.Delete(ctx, "my-bucket", "a.txt", nil))
	require.NoError(t, service.DeleteBucket(ctx, "my-bucket"))
}

func TestPurgeBucket(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t)
	ctx := context.Background()

	createBucket(t, service, &storage.BucketParams{Name: "full-bucket", VersioningEnabled: true})

	_, err := service.Upload(ctx, &storage.UploadParams{Bucket: "full-bucket", Name: "a.txt", Data: []byte("v1")})
	require.NoError(t, err)

	_, err = service.Upload(ctx, &storage.UploadParams{Bucket: "full-bucket", Name: "a.txt", Data: []byte("v2")})
	require.NoError(t, err)

	// Versioned delete leaves a tombstone, the purge must reap it too.
	require.NoError(t, service.Delete(ctx, "full-bucket", "a.txt", nil))

	require.NoError(t, service.PurgeBucket(ctx, "full-bucket"))

	_, err = service.GetBucket(ctx, "full-bucket")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	err = service.PurgeBucket(ctx, "full-bucket")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t)
	ctx := context.Background()

	createBucket(t, service, &storage.BucketParams{Name: "my-bucket"})

	uploaded, err := service.Upload(ctx, &storage.UploadParams{
		Bucket:         "my-bucket",
		Name:           "docs/readme.txt",
		Data:           []byte("hello world"),
		ContentType:    "text/plain",
		CustomMetadata: map[string]string{"owner": "tests"},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), uploaded.Generation)
	assert.Equal(t, int64(1), uploaded.Metageneration)
	assert.Equal(t, int64(11), uploaded.Size)
	assert.NotEmpty(t, uploaded.MD5)
	assert.NotEmpty(t, uploaded.CRC32C)

	object, data, err := service.Download(ctx, "my-bucket", "docs/readme.txt", nil)
	require.NoError(t, err)

	assert.Equal(t, []byte("hello world"), data)
	assert.Equal(t, "text/plain", object.ContentType)
	assert.Equal(t, "tests", object.CustomMetadata["owner"])
}

func TestUploadGenerationsMonotonic(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t)
	ctx := context.Background()

	createBucket(t, service, &storage.BucketParams{Name: "my-bucket", VersioningEnabled: true})

	first, err := service.Upload(ctx, &storage.UploadParams{Bucket: "my-bucket", Name: "a", Data: []byte("one")})
	require.NoError(t, err)

	second, err := service.Upload(ctx, &storage.UploadParams{Bucket: "my-bucket", Name: "a", Data: []byte("two")})
	require.NoError(t, err)

	assert.Greater(t, second.Generation, first.Generation)

	// A delete must not allow generation reuse.
	require.NoError(t, service.Delete(ctx, "my-bucket", "a", nil))

	third, err := service.Upload(ctx, &storage.UploadParams{Bucket: "my-bucket", Name: "a", Data: []byte("three")})
	require.NoError(t, err)

	assert.Greater(t, third.Generation, second.Generation)
}

func TestVersionedDownloadByGeneration(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t)
	ctx := context.Background()

	createBucket(t, service, &storage.BucketParams{Name: "my-bucket", VersioningEnabled: true})

	first, err := service.Upload(ctx, &storage.UploadParams{Bucket: "my-bucket", Name: "a", Data: []byte("one")})
	require.NoError(t, err)

	_, err = service.Upload(ctx, &storage.UploadParams{Bucket: "my-bucket", Name: "a", Data: []byte("two")})
	require.NoError(t, err)

	_, head, err := service.Download(ctx, "my-bucket", "a", nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), head)

	_, old, err := service.Download(ctx, "my-bucket", "a", int64Ptr(first.Generation))
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), old)
}

func TestVersionedDeleteTombstonesHead(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t)
	ctx := context.Background()

	createBucket(t, service, &storage.BucketParams{Name: "my-bucket", VersioningEnabled: true})

	first, err := service.Upload(ctx, &storage.UploadParams{Bucket: "my-bucket", Name: "a", Data: []byte("one")})
	require.NoError(t, err)

	require.NoError(t, service.Delete(ctx, "my-bucket", "a", nil))

	// The head is gone.
	_, err = service.GetObject(ctx, "my-bucket", "a", nil)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	// Archived generations remain reachable.
	_, data, err := service.Download(ctx, "my-bucket", "a", int64Ptr(first.Generation))
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), data)
}

func TestUnversionedUploadPurgesPriors(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t)
	ctx := context.Background()

	createBucket(t, service, &storage.BucketParams{Name: "my-bucket"})

	first, err := service.Upload(ctx, &storage.UploadParams{Bucket: "my-bucket", Name: "a", Data: []byte("one")})
	require.NoError(t, err)

	_, err = service.Upload(ctx, &storage.UploadParams{Bucket: "my-bucket", Name: "a", Data: []byte("two")})
	require.NoError(t, err)

	_, err = service.GetObject(ctx, "my-bucket", "a", int64Ptr(first.Generation))
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestUploadPreconditions(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t)
	ctx := context.Background()

	createBucket(t, service, &storage.BucketParams{Name: "my-bucket"})

	// ifGenerationMatch=0 means create only.
	created, err := service.Upload(ctx, &storage.UploadParams{
		Bucket:        "my-bucket",
		Name:          "a",
		Data:          []byte("one"),
		Preconditions: storage.Preconditions{IfGenerationMatch: int64Ptr(0)},
	})
	require.NoError(t, err)

	_, err = service.Upload(ctx, &storage.UploadParams{
		Bucket:        "my-bucket",
		Name:          "a",
		Data:          []byte("two"),
		Preconditions: storage.Preconditions{IfGenerationMatch: int64Ptr(0)},
	})
	require.Error(t, err)
	assert.True(t, errors.IsPreconditionFailed(err))
	assert.Equal(t, 412, errors.StatusOf(err))

	// Matching the live generation allows the overwrite.
	_, err = service.Upload(ctx, &storage.UploadParams{
		Bucket:        "my-bucket",
		Name:          "a",
		Data:          []byte("two"),
		Preconditions: storage.Preconditions{IfGenerationMatch: int64Ptr(created.Generation)},
	})
	require.NoError(t, err)

	// Excluded generation is refused.
	head, err := service.GetObject(ctx, "my-bucket", "a", nil)
	require.NoError(t, err)

	_, err = service.Upload(ctx, &storage.UploadParams{
		Bucket:        "my-bucket",
		Name:          "a",
		Data:          []byte("three"),
		Preconditions: storage.Preconditions{IfGenerationNotMatch: int64Ptr(head.Generation)},
	})
	require.Error(t, err)
	assert.True(t, errors.IsPreconditionFailed(err))
}

func TestUpdateMetadata(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t)
	ctx := context.Background()

	createBucket(t, service, &storage.BucketParams{Name: "my-bucket"})

	uploaded, err := service.Upload(ctx, &storage.UploadParams{Bucket: "my-bucket", Name: "a", Data: []byte("one")})
	require.NoError(t, err)

	contentType := "application/json"

	updated, err := service.UpdateMetadata(ctx, "my-bucket", "a", &storage.MetadataPatch{
		ContentType:    &contentType,
		CustomMetadata: map[string]string{"k": "v"},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, uploaded.Generation, updated.Generation)
	assert.Equal(t, uploaded.Metageneration+1, updated.Metageneration)
	assert.Equal(t, "application/json", updated.ContentType)

	// Stale metageneration precondition is refused.
	_, err = service.UpdateMetadata(ctx, "my-bucket", "a", &storage.MetadataPatch{
		CustomMetadata: map[string]string{"k": "v2"},
	}, int64Ptr(uploaded.Metageneration))
	require.Error(t, err)
	assert.True(t, errors.IsPreconditionFailed(err))
}

func TestListWithDelimiter(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t)
	ctx := context.Background()

	createBucket(t, service, &storage.BucketParams{Name: "my-bucket"})

	for _, name := range []string{"a.txt", "docs/b.txt", "docs/c.txt", "docs/sub/d.txt", "images/e.png"} {
		_, err := service.Upload(ctx, &storage.UploadParams{Bucket: "my-bucket", Name: name, Data: []byte("x")})
		require.NoError(t, err)
	}

	result, err := service.List(ctx, &storage.ListParams{Bucket: "my-bucket", Delimiter: "/"})
	require.NoError(t, err)

	require.Len(t, result.Items, 1)
	assert.Equal(t, "a.txt", result.Items[0].Name)
	assert.Equal(t, []string{"docs/", "images/"}, result.Prefixes)

	result, err = service.List(ctx, &storage.ListParams{Bucket: "my-bucket", Prefix: "docs/", Delimiter: "/"})
	require.NoError(t, err)

	require.Len(t, result.Items, 2)
	assert.Equal(t, []string{"docs/sub/"}, result.Prefixes)
}

func TestCopyPreservesMetadata(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t)
	ctx := context.Background()

	createBucket(t, service, &storage.BucketParams{Name: "src-bucket"})
	createBucket(t, service, &storage.BucketParams{Name: "dst-bucket"})

	_, err := service.Upload(ctx, &storage.UploadParams{
		Bucket:         "src-bucket",
		Name:           "a",
		Data:           []byte("payload"),
		ContentType:    "text/plain",
		CustomMetadata: map[string]string{"origin": "src"},
	})
	require.NoError(t, err)

	copied, err := service.Copy(ctx, "src-bucket", "a", "dst-bucket", "b")
	require.NoError(t, err)

	assert.Equal(t, "text/plain", copied.ContentType)
	assert.Equal(t, "src", copied.CustomMetadata["origin"])

	_, data, err := service.Download(ctx, "dst-bucket", "b", nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestUploadEnqueuesEvents(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t)
	ctx := context.Background()

	createBucket(t, service, &storage.BucketParams{Name: "my-bucket"})

	_, err := service.Upload(ctx, &storage.UploadParams{Bucket: "my-bucket", Name: "a", Data: []byte("one")})
	require.NoError(t, err)

	require.NoError(t, service.Delete(ctx, "my-bucket", "a", nil))

	events, err := service.ListEvents(ctx, "my-bucket")
	require.NoError(t, err)
	require.Len(t, events, 2)

	types := []models.EventType{events[0].EventType, events[1].EventType}
	assert.Contains(t, types, models.EventFinalize)
	assert.Contains(t, types, models.EventDelete)
}
