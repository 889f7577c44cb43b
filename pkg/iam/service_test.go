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

package iam_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eschercloudai/cumulus/pkg/db"
	"github.com/eschercloudai/cumulus/pkg/errors"
	"github.com/eschercloudai/cumulus/pkg/iam"
	"github.com/eschercloudai/cumulus/pkg/models"
	"github.com/eschercloudai/cumulus/pkg/util/clock"
)

const testProject = "default"

func newTestService(t *testing.T) (*iam.Service, *clock.Fake) {
	t.Helper()

	ctx := context.Background()

	database, err := db.Open(ctx, &db.Options{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)

	t.Cleanup(func() {
		database.Close()
	})

	clk := clock.NewFake(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	_, err = database.ExecContext(ctx, `INSERT INTO projects (id, display_name, project_number, created_at) VALUES (?, ?, ?, ?)`,
		testProject, "Default project", 1, clk.Now())
	require.NoError(t, err)

	service := iam.New(database, clk, &iam.Options{
		JWTSecret:   "test-secret",
		TokenExpiry: time.Hour,
	})

	return service, clk
}

func TestServiceAccountLifecycle(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t)
	ctx := context.Background()

	account, err := service.CreateServiceAccount(ctx, testProject, "deployer", "CI deployer")
	require.NoError(t, err)
	assert.Equal(t, "deployer@default.iam.cumulus.local", account.Email)
	assert.NotEmpty(t, account.UniqueID)

	_, err = service.CreateServiceAccount(ctx, testProject, "deployer", "again")
	require.Error(t, err)
	assert.True(t, errors.IsAlreadyExists(err))

	accounts, err := service.ListServiceAccounts(ctx, testProject)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	require.NoError(t, service.DeleteServiceAccount(ctx, account.Email))

	_, err = service.GetServiceAccount(ctx, account.Email)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestServiceAccountKeys(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t)
	ctx := context.Background()

	account, err := service.CreateServiceAccount(ctx, testProject, "deployer", "")
	require.NoError(t, err)

	key, err := service.CreateKey(ctx, account.Email)
	require.NoError(t, err)
	assert.NotEmpty(t, key.PrivateKeyData)
	assert.Equal(t, "KEY_ALG_RSA_2048", key.KeyAlgorithm)
	assert.True(t, key.ValidBefore.After(key.ValidAfter))

	keys, err := service.ListKeys(ctx, account.Email)
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	require.NoError(t, service.DeleteKey(ctx, key.ID))

	err = service.DeleteKey(ctx, key.ID)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	_, err = service.CreateKey(ctx, "ghost@default.iam.cumulus.local")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestPolicyEtag(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t)
	ctx := context.Background()

	// Unset policies read back empty with a usable etag.
	policy, err := service.GetPolicy(ctx, "project", testProject)
	require.NoError(t, err)
	assert.Empty(t, policy.Bindings)
	require.NotEmpty(t, policy.Etag)

	bindings := models.Bindings{
		{Role: "roles/viewer", Members: []string{"user:alice@example.com"}},
	}

	updated, err := service.SetPolicy(ctx, "project", testProject, policy.Etag, bindings)
	require.NoError(t, err)
	assert.NotEqual(t, policy.Etag, updated.Etag)

	// The old etag no longer matches.
	_, err = service.SetPolicy(ctx, "project", testProject, policy.Etag, bindings)
	require.Error(t, err)
	assert.True(t, errors.IsPreconditionFailed(err))

	// An empty etag means unconditional.
	_, err = service.SetPolicy(ctx, "project", testProject, "", models.Bindings{})
	require.NoError(t, err)
}

func TestCheckPermission(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.SetPolicy(ctx, "project", testProject, "", models.Bindings{
		{Role: "roles/owner", Members: []string{"user:alice@example.com"}},
		{Role: "roles/viewer", Members: []string{"user:bob@example.com"}},
		{Role: "roles/storage.admin", Members: []string{"serviceAccount:deployer@default.iam.cumulus.local"}},
		{Role: "roles/compute.instances.start", Members: []string{"user:operator@example.com"}},
	})
	require.NoError(t, err)

	cases := []struct {
		identity   string
		permission string
		want       bool
	}{
		// Owner holds everything.
		{"alice@example.com", "storage.buckets.delete", true},
		{"alice@example.com", "compute.instances.start", true},

		// Viewer holds read verbs only.
		{"bob@example.com", "storage.buckets.get", true},
		{"bob@example.com", "storage.objects.list", true},
		{"bob@example.com", "storage.buckets.delete", false},

		// Family admin covers its family, nothing else.
		{"deployer@default.iam.cumulus.local", "storage.objects.create", true},
		{"deployer@default.iam.cumulus.local", "compute.instances.start", false},

		// Exact permission role.
		{"operator@example.com", "compute.instances.start", true},
		{"operator@example.com", "compute.instances.stop", false},

		// Unknown identity.
		{"mallory@example.com", "storage.buckets.get", false},
	}

	for _, c := range cases {
		granted, err := service.CheckPermission(ctx, c.identity, "project", testProject, c.permission)
		require.NoError(t, err)
		assert.Equal(t, c.want, granted, "%s %s", c.identity, c.permission)
	}
}

func TestCheckPermissionPublicPrincipals(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.SetPolicy(ctx, "bucket", "public-bucket", "", models.Bindings{
		{Role: "roles/viewer", Members: []string{"allUsers"}},
	})
	require.NoError(t, err)

	granted, err := service.CheckPermission(ctx, "anonymous", "bucket", "public-bucket", "storage.objects.get")
	require.NoError(t, err)
	assert.True(t, granted)

	_, err = service.SetPolicy(ctx, "bucket", "authed-bucket", "", models.Bindings{
		{Role: "roles/viewer", Members: []string{"allAuthenticatedUsers"}},
	})
	require.NoError(t, err)

	granted, err = service.CheckPermission(ctx, "anonymous", "bucket", "authed-bucket", "storage.objects.get")
	require.NoError(t, err)
	assert.False(t, granted)

	granted, err = service.CheckPermission(ctx, "alice@example.com", "bucket", "authed-bucket", "storage.objects.get")
	require.NoError(t, err)
	assert.True(t, granted)

	// No policy at all denies.
	granted, err = service.CheckPermission(ctx, "alice@example.com", "bucket", "missing-bucket", "storage.objects.get")
	require.NoError(t, err)
	assert.False(t, granted)
}

func TestTokenIssueVerify(t *testing.T) {
	t.Parallel()

	service, clk := newTestService(t)

	token, err := service.IssueToken("deployer@default.iam.cumulus.local", "storage compute")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.Equal(t, int64(3600), token.ExpiresIn)

	claims, err := service.VerifyToken(token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "deployer@default.iam.cumulus.local", claims.Subject)
	assert.Equal(t, "storage compute", claims.Scope)

	// Expired tokens fail with 401.
	clk.Advance(2 * time.Hour)

	_, err = service.VerifyToken(token.AccessToken)
	require.Error(t, err)
	assert.Equal(t, 401, errors.StatusOf(err))

	_, err = service.IssueToken("", "")
	require.Error(t, err)
}

func TestTokenRevocation(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t)

	token, err := service.IssueToken("alice@example.com", "")
	require.NoError(t, err)

	_, err = service.VerifyToken(token.AccessToken)
	require.NoError(t, err)

	service.RevokeToken(token.AccessToken)

	_, err = service.VerifyToken(token.AccessToken)
	require.Error(t, err)
	assert.Equal(t, 401, errors.StatusOf(err))

	// Garbage revokes without complaint.
	service.RevokeToken("not-a-token")
}

func TestVerifyTokenRejectsForgeries(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t)

	_, err := service.VerifyToken("garbage")
	require.Error(t, err)
	assert.Equal(t, 401, errors.StatusOf(err))

	// A tampered signature fails verification.
	token, err := service.IssueToken("alice@example.com", "")
	require.NoError(t, err)

	tampered := token.AccessToken[:len(token.AccessToken)-2] + "xx"

	_, err = service.VerifyToken(tampered)
	require.Error(t, err)
	assert.Equal(t, 401, errors.StatusOf(err))
}
