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

package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eschercloudai/cumulus/pkg/db"
	"github.com/eschercloudai/cumulus/pkg/iam"
	"github.com/eschercloudai/cumulus/pkg/server/middleware"
	"github.com/eschercloudai/cumulus/pkg/util/clock"
)

func newIAMService(t *testing.T) *iam.Service {
	t.Helper()

	database, err := db.Open(context.Background(), &db.Options{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)

	t.Cleanup(func() {
		database.Close()
	})

	return iam.New(database, clock.NewFake(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)), &iam.Options{
		JWTSecret:   "test-secret",
		TokenExpiry: time.Hour,
	})
}

// echoIdentity reports the resolved identity for assertions.
func echoIdentity() (http.Handler, *middleware.Identity) {
	captured := &middleware.Identity{}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = *middleware.IdentityFromContext(r.Context())

		w.WriteHeader(http.StatusOK)
	})

	return handler, captured
}

func TestAuthDisabled(t *testing.T) {
	t.Parallel()

	iamService := newIAMService(t)
	authenticator := middleware.NewAuthenticator(&middleware.AuthOptions{Mode: "disabled"}, iamService, "")

	next, identity := echoIdentity()
	handler := authenticator.Middleware(next)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodDelete, "/storage/v1/b/secret", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, middleware.Anonymous, identity.Principal)
	assert.False(t, identity.Authenticated)
}

func TestAuthOptionalAttachesIdentity(t *testing.T) {
	t.Parallel()

	iamService := newIAMService(t)
	authenticator := middleware.NewAuthenticator(&middleware.AuthOptions{Mode: "optional"}, iamService, "")

	next, identity := echoIdentity()
	handler := authenticator.Middleware(next)

	token, err := iamService.IssueToken("alice@example.com", "")
	require.NoError(t, err)

	request := httptest.NewRequest(http.MethodGet, "/compute/v1/projects/default/zones", nil)
	request.Header.Set("Authorization", "Bearer "+token.AccessToken)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "alice@example.com", identity.Principal)
	assert.True(t, identity.Authenticated)

	// No credential still passes through, anonymous.
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/compute/v1/projects/default/zones", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, middleware.Anonymous, identity.Principal)

	// A bad credential is rejected even in optional mode.
	request = httptest.NewRequest(http.MethodGet, "/compute/v1/projects/default/zones", nil)
	request.Header.Set("Authorization", "Bearer garbage")

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()

	iamService := newIAMService(t)
	authenticator := middleware.NewAuthenticator(&middleware.AuthOptions{Mode: "required"}, iamService, "")

	next, _ := echoIdentity()
	handler := authenticator.Middleware(next)

	do := func(method, path, authorization string) int {
		request := httptest.NewRequest(method, path, nil)

		if authorization != "" {
			request.Header.Set("Authorization", authorization)
		}

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)

		return recorder.Code
	}

	// Mutations need credentials.
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodPost, "/storage/v1/b", ""))
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodPost, "/compute/v1/projects/default/zones/us-central1-a/instances", ""))

	// Self-authorized surfaces stay open.
	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/token", ""))
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/healthz", ""))
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/signed/my-bucket/a.txt", ""))

	// Storage reads pass through anonymous for public ACL evaluation.
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/storage/v1/b/my-bucket/o/a.txt", ""))

	token, err := iamService.IssueToken("alice@example.com", "")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/storage/v1/b", "Bearer "+token.AccessToken))
}

func TestAuthAPIKey(t *testing.T) {
	t.Parallel()

	iamService := newIAMService(t)
	authenticator := middleware.NewAuthenticator(&middleware.AuthOptions{Mode: "required"}, iamService, "the-key")

	next, identity := echoIdentity()
	handler := authenticator.Middleware(next)

	request := httptest.NewRequest(http.MethodPost, "/storage/v1/b", nil)
	request.Header.Set("X-Api-Key", "the-key")

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "api-key", identity.Principal)
	assert.True(t, identity.Authenticated)

	request = httptest.NewRequest(http.MethodPost, "/storage/v1/b", nil)
	request.Header.Set("X-Api-Key", "wrong")

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestAuthRevokedToken(t *testing.T) {
	t.Parallel()

	iamService := newIAMService(t)
	authenticator := middleware.NewAuthenticator(&middleware.AuthOptions{Mode: "required"}, iamService, "")

	next, _ := echoIdentity()
	handler := authenticator.Middleware(next)

	token, err := iamService.IssueToken("alice@example.com", "")
	require.NoError(t, err)

	iamService.RevokeToken(token.AccessToken)

	request := httptest.NewRequest(http.MethodPost, "/storage/v1/b", nil)
	request.Header.Set("Authorization", "Bearer "+token.AccessToken)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}
