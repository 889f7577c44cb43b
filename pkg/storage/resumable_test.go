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
	"github.com/eschercloudai/cumulus/pkg/storage"
)

func TestResumableLinearAppend(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t)
	ctx := context.Background()

	createBucket(t, service, &storage.BucketParams{Name: "my-bucket"})

	session, err := service.StartResumable(ctx, &storage.ResumableParams{
		Bucket:      "my-bucket",
		Name:        "big.bin",
		ContentType: "application/octet-stream",
	})
	require.NoError(t, err)
	require.NotEmpty(t, session.SessionID)

	result, err := service.UploadChunk(ctx, session.SessionID, 0, []byte("hello "), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(6), result.Offset)
	assert.False(t, result.Completed)

	// The final chunk carries the total, triggering finalize.
	result, err = service.UploadChunk(ctx, session.SessionID, 6, []byte("world"), int64Ptr(11))
	require.NoError(t, err)
	assert.True(t, result.Completed)
	assert.Equal(t, "my-bucket", result.Bucket)

	require.NotNil(t, result.Object)
	assert.Equal(t, int64(11), result.Object.Size)
	assert.Equal(t, "application/octet-stream", result.Object.ContentType)

	_, data, err := service.Download(ctx, "my-bucket", "big.bin", nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), data)

	// The session is gone once finalized.
	_, err = service.GetSession(ctx, session.SessionID)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestResumableOffsetMismatch(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t)
	ctx := context.Background()

	createBucket(t, service, &storage.BucketParams{Name: "my-bucket"})

	session, err := service.StartResumable(ctx, &storage.ResumableParams{Bucket: "my-bucket", Name: "a"})
	require.NoError(t, err)

	_, err = service.UploadChunk(ctx, session.SessionID, 0, []byte("aaaa"), nil)
	require.NoError(t, err)

	// Replays and gaps are both rejected.
	_, err = service.UploadChunk(ctx, session.SessionID, 0, []byte("aaaa"), nil)
	require.Error(t, err)
	assert.Equal(t, 400, errors.StatusOf(err))

	_, err = service.UploadChunk(ctx, session.SessionID, 8, []byte("bbbb"), nil)
	require.Error(t, err)
	assert.Equal(t, 400, errors.StatusOf(err))

	// The committed offset is unchanged.
	probe, err := service.GetSession(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), probe.CurrentOffset)
}

func TestResumableDeclaredSizeEnforced(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t)
	ctx := context.Background()

	createBucket(t, service, &storage.BucketParams{Name: "my-bucket"})

	session, err := service.StartResumable(ctx, &storage.ResumableParams{
		Bucket:    "my-bucket",
		Name:      "a",
		TotalSize: int64Ptr(4),
	})
	require.NoError(t, err)

	_, err = service.UploadChunk(ctx, session.SessionID, 0, []byte("toolong"), nil)
	require.Error(t, err)
	assert.Equal(t, 400, errors.StatusOf(err))

	result, err := service.UploadChunk(ctx, session.SessionID, 0, []byte("four"), nil)
	require.NoError(t, err)
	assert.True(t, result.Completed)
}

func TestResumablePreconditionAtFinalize(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t)
	ctx := context.Background()

	createBucket(t, service, &storage.BucketParams{Name: "my-bucket"})

	session, err := service.StartResumable(ctx, &storage.ResumableParams{
		Bucket:        "my-bucket",
		Name:          "a",
		Preconditions: storage.Preconditions{IfGenerationMatch: int64Ptr(0)},
	})
	require.NoError(t, err)

	// Concurrent simple upload claims the name first.
	_, err = service.Upload(ctx, &storage.UploadParams{Bucket: "my-bucket", Name: "a", Data: []byte("x")})
	require.NoError(t, err)

	_, err = service.UploadChunk(ctx, session.SessionID, 0, []byte("data"), int64Ptr(4))
	require.Error(t, err)
	assert.True(t, errors.IsPreconditionFailed(err))
}

func TestSweepExpiredSessions(t *testing.T) {
	t.Parallel()

	service, clk := newTestService(t)
	ctx := context.Background()

	createBucket(t, service, &storage.BucketParams{Name: "my-bucket"})

	stale, err := service.StartResumable(ctx, &storage.ResumableParams{Bucket: "my-bucket", Name: "stale"})
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)

	fresh, err := service.StartResumable(ctx, &storage.ResumableParams{Bucket: "my-bucket", Name: "fresh"})
	require.NoError(t, err)

	require.NoError(t, service.SweepExpiredSessions(ctx))

	_, err = service.GetSession(ctx, stale.SessionID)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	_, err = service.GetSession(ctx, fresh.SessionID)
	require.NoError(t, err)
}
