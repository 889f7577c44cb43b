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
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eschercloudai/cumulus/pkg/server/middleware"
)

func newLimitedHandler(t *testing.T, requests int, window time.Duration) http.Handler {
	t.Helper()

	limiter, err := middleware.NewRateLimiter(&middleware.RateLimitOptions{
		Enabled:  true,
		Requests: requests,
		Window:   window,
	})
	require.NoError(t, err)

	return limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestRateLimiterEnforces(t *testing.T) {
	t.Parallel()

	handler := newLimitedHandler(t, 3, time.Minute)

	get := func() *httptest.ResponseRecorder {
		recorder := httptest.NewRecorder()

		request := httptest.NewRequest(http.MethodGet, "/storage/v1/b", nil)
		request.RemoteAddr = "192.0.2.10:55000"

		handler.ServeHTTP(recorder, request)

		return recorder
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, get().Code)
	}

	rejected := get()
	assert.Equal(t, http.StatusTooManyRequests, rejected.Code)
	assert.NotEmpty(t, rejected.Header().Get("Retry-After"))
}

func TestRateLimiterIsolatesClients(t *testing.T) {
	t.Parallel()

	handler := newLimitedHandler(t, 1, time.Minute)

	get := func(addr, apiKey string) int {
		recorder := httptest.NewRecorder()

		request := httptest.NewRequest(http.MethodGet, "/storage/v1/b", nil)
		request.RemoteAddr = addr

		if apiKey != "" {
			request.Header.Set("X-Api-Key", apiKey)
		}

		handler.ServeHTTP(recorder, request)

		return recorder.Code
	}

	assert.Equal(t, http.StatusOK, get("192.0.2.10:55000", ""))
	assert.Equal(t, http.StatusTooManyRequests, get("192.0.2.10:55001", ""))

	// A different source address has its own window.
	assert.Equal(t, http.StatusOK, get("192.0.2.11:55000", ""))

	// An API key identifies the client regardless of address.
	assert.Equal(t, http.StatusOK, get("192.0.2.10:55002", "some-long-api-key"))
	assert.Equal(t, http.StatusTooManyRequests, get("192.0.2.99:55000", "some-long-api-key"))
}

func TestRateLimiterIsolatesEndpoints(t *testing.T) {
	t.Parallel()

	limiter, err := middleware.NewRateLimiter(&middleware.RateLimitOptions{
		Enabled:  true,
		Requests: 1,
		Window:   time.Minute,
	})
	require.NoError(t, err)

	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(method, path string) int {
		recorder := httptest.NewRecorder()

		request := httptest.NewRequest(method, path, nil)
		request.RemoteAddr = "192.0.2.10:55000"

		handler.ServeHTTP(recorder, request)

		return recorder.Code
	}

	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/storage/v1/b"))
	assert.Equal(t, http.StatusTooManyRequests, do(http.MethodGet, "/storage/v1/b"))

	// Same path, different method or different path, fresh windows.
	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/storage/v1/b"))
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/healthz"))
}

func TestRateLimiterDisabled(t *testing.T) {
	t.Parallel()

	limiter, err := middleware.NewRateLimiter(&middleware.RateLimitOptions{
		Enabled:  false,
		Requests: 1,
		Window:   time.Minute,
	})
	require.NoError(t, err)

	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 10; i++ {
		recorder := httptest.NewRecorder()

		request := httptest.NewRequest(http.MethodGet, "/storage/v1/b", nil)
		request.RemoteAddr = "192.0.2.10:55000"

		handler.ServeHTTP(recorder, request)

		assert.Equal(t, http.StatusOK, recorder.Code)
	}
}
