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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eschercloudai/cumulus/pkg/errors"
	"github.com/eschercloudai/cumulus/pkg/models"
	"github.com/eschercloudai/cumulus/pkg/storage"
)

func TestLifecycleDelete(t *testing.T) {
	t.Parallel()

	service, clk := newTestService(t)
	ctx := context.Background()

	createBucket(t, service, &storage.BucketParams{
		Name: "aging-bucket",
		LifecycleConfig: models.LifecycleRules{
			{Action: models.LifecycleActionDelete, AgeDays: 30},
		},
	})

	_, err := service.Upload(ctx, &storage.UploadParams{Bucket: "aging-bucket", Name: "old", Data: []byte("x")})
	require.NoError(t, err)

	clk.Advance(31 * 24 * time.Hour)

	_, err = service.Upload(ctx, &storage.UploadParams{Bucket: "aging-bucket", Name: "new", Data: []byte("x")})
	require.NoError(t, err)

	executor := storage.NewLifecycleExecutor(service)
	require.NoError(t, executor.RunOnce(ctx))

	_, err = service.GetObject(ctx, "aging-bucket", "old", nil)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	_, err = service.GetObject(ctx, "aging-bucket", "new", nil)
	require.NoError(t, err)
}

func TestLifecycleArchive(t *testing.T) {
	t.Parallel()

	service, clk := newTestService(t)
	ctx := context.Background()

	createBucket(t, service, &storage.BucketParams{
		Name: "archive-bucket",
		LifecycleConfig: models.LifecycleRules{
			{Action: models.LifecycleActionArchive, AgeDays: 7},
		},
	})

	_, err := service.Upload(ctx, &storage.UploadParams{Bucket: "archive-bucket", Name: "a", Data: []byte("x")})
	require.NoError(t, err)

	clk.Advance(8 * 24 * time.Hour)

	executor := storage.NewLifecycleExecutor(service)

	// Idempotent, a second pass leaves the object archived.
	require.NoError(t, executor.RunOnce(ctx))
	require.NoError(t, executor.RunOnce(ctx))

	object, err := service.GetObject(ctx, "archive-bucket", "a", nil)
	require.NoError(t, err)
	assert.Equal(t, "ARCHIVE", object.StorageClass)

	// Archive does not touch the payload.
	_, data, err := service.Download(ctx, "archive-bucket", "a", nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)
}

func TestLifecycleIgnoresUnconfiguredBuckets(t *testing.T) {
	t.Parallel()

	service, clk := newTestService(t)
	ctx := context.Background()

	createBucket(t, service, &storage.BucketParams{Name: "plain-bucket"})

	_, err := service.Upload(ctx, &storage.UploadParams{Bucket: "plain-bucket", Name: "a", Data: []byte("x")})
	require.NoError(t, err)

	clk.Advance(365 * 24 * time.Hour)

	require.NoError(t, storage.NewLifecycleExecutor(service).RunOnce(ctx))

	_, err = service.GetObject(ctx, "plain-bucket", "a", nil)
	require.NoError(t, err)
}
