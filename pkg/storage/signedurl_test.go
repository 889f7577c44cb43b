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
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eschercloudai/cumulus/pkg/errors"
	"github.com/eschercloudai/cumulus/pkg/storage"
)

func signedQuery(t *testing.T, signed string) (string, url.Values) {
	t.Helper()

	parsed, err := url.Parse(signed)
	require.NoError(t, err)

	return parsed.Path, parsed.Query()
}

func TestSignURLRoundTrip(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t)
	ctx := context.Background()

	createBucket(t, service, &storage.BucketParams{Name: "my-bucket"})

	_, err := service.Upload(ctx, &storage.UploadParams{Bucket: "my-bucket", Name: "docs/a.txt", Data: []byte("x")})
	require.NoError(t, err)

	signed, err := service.SignURL(ctx, "my-bucket", "docs/a.txt", "GET", 600)
	require.NoError(t, err)

	path, query := signedQuery(t, signed)
	assert.Equal(t, "/signed/my-bucket/docs/a.txt", path)

	require.NoError(t, service.VerifySignedURL("GET", "my-bucket", "docs/a.txt", query))

	// The signature binds the method.
	err = service.VerifySignedURL("PUT", "my-bucket", "docs/a.txt", query)
	require.Error(t, err)
	assert.Equal(t, 403, errors.StatusOf(err))

	// And the object path.
	err = service.VerifySignedURL("GET", "my-bucket", "docs/b.txt", query)
	require.Error(t, err)
	assert.Equal(t, 403, errors.StatusOf(err))
}

func TestSignURLPutNeedsNoObject(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t)
	ctx := context.Background()

	createBucket(t, service, &storage.BucketParams{Name: "my-bucket"})

	_, err := service.SignURL(ctx, "my-bucket", "new-object", "PUT", 600)
	require.NoError(t, err)

	// GET requires the object to exist up front.
	_, err = service.SignURL(ctx, "my-bucket", "new-object", "GET", 600)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestSignURLExpiry(t *testing.T) {
	t.Parallel()

	service, clk := newTestService(t)
	ctx := context.Background()

	createBucket(t, service, &storage.BucketParams{Name: "my-bucket"})

	_, err := service.Upload(ctx, &storage.UploadParams{Bucket: "my-bucket", Name: "a", Data: []byte("x")})
	require.NoError(t, err)

	signed, err := service.SignURL(ctx, "my-bucket", "a", "GET", 60)
	require.NoError(t, err)

	_, query := signedQuery(t, signed)

	require.NoError(t, service.VerifySignedURL("GET", "my-bucket", "a", query))

	clk.Advance(2 * time.Minute)

	err = service.VerifySignedURL("GET", "my-bucket", "a", query)
	require.Error(t, err)
	assert.Equal(t, 403, errors.StatusOf(err))
}

func TestSignURLValidation(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t)
	ctx := context.Background()

	createBucket(t, service, &storage.BucketParams{Name: "my-bucket"})

	_, err := service.SignURL(ctx, "my-bucket", "a", "DELETE", 600)
	require.Error(t, err)
	assert.Equal(t, 400, errors.StatusOf(err))

	// Seven days is the cap.
	_, err = service.SignURL(ctx, "my-bucket", "a", "PUT", 8*24*60*60)
	require.Error(t, err)
	assert.Equal(t, 400, errors.StatusOf(err))

	_, err = service.SignURL(ctx, "my-bucket", "a", "PUT", 0)
	require.Error(t, err)
	assert.Equal(t, 400, errors.StatusOf(err))
}
