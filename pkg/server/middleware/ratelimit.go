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

package middleware

import (
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/pflag"

	"github.com/eschercloudai/cumulus/pkg/errors"
)

// RateLimitOptions configures the sliding window limiter.
type RateLimitOptions struct {
	Enabled  bool
	Requests int
	Window   time.Duration
}

// AddFlags registers rate limiting options, RATE_LIMITING_ENABLED provides
// the default.
func (o *RateLimitOptions) AddFlags(f *pflag.FlagSet) {
	enabled := os.Getenv("RATE_LIMITING_ENABLED") == "true"

	f.BoolVar(&o.Enabled, "rate-limiting-enabled", enabled, "Whether per-client rate limiting is enforced.")
	f.IntVar(&o.Requests, "rate-limit-requests", 100, "Requests allowed per client per endpoint per window.")
	f.DurationVar(&o.Window, "rate-limit-window", time.Minute, "Sliding window length.")
}

// clientWindow holds one client+endpoint's recent request times.
type clientWindow struct {
	mu    sync.Mutex
	times []time.Time
}

// RateLimiter is a process-local sliding window limiter.  The LRU bounds
// memory, an evicted client simply starts a fresh window.
type RateLimiter struct {
	options *RateLimitOptions
	windows *lru.Cache[string, *clientWindow]
}

// NewRateLimiter creates the limiter.
func NewRateLimiter(options *RateLimitOptions) (*RateLimiter, error) {
	windows, err := lru.New[string, *clientWindow](4096)
	if err != nil {
		return nil, err
	}

	return &RateLimiter{
		options: options,
		windows: windows,
	}, nil
}

// clientKey identifies a caller, the API key when present, source address
// otherwise.
func clientKey(r *http.Request) string {
	if key := r.Header.Get("X-Api-Key"); key != "" {
		if len(key) > 8 {
			key = key[:8]
		}

		return "key:" + key
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "addr:" + r.RemoteAddr
	}

	return "addr:" + host
}

// allow records a hit and reports whether it fits the window, returning the
// seconds to wait when it does not.
func (l *RateLimiter) allow(key string, now time.Time) (bool, int) {
	fresh := &clientWindow{}

	window, found, _ := l.windows.PeekOrAdd(key, fresh)
	if !found {
		window = fresh
	}

	window.mu.Lock()
	defer window.mu.Unlock()

	cutoff := now.Add(-l.options.Window)

	kept := window.times[:0]

	for _, t := range window.times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	window.times = kept

	if len(window.times) >= l.options.Requests {
		retryAfter := int(window.times[0].Add(l.options.Window).Sub(now).Seconds()) + 1

		return false, retryAfter
	}

	window.times = append(window.times, now)

	return true, 0
}

// Middleware enforces the limit per client and endpoint.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.options.Enabled {
			next.ServeHTTP(w, r)

			return
		}

		key := clientKey(r) + "|" + r.Method + " " + r.URL.Path

		ok, retryAfter := l.allow(key, time.Now())
		if !ok {
			rateLimitRejectsTotal.Inc()

			errors.HandleError(w, r, errors.ResourceExhausted("rate limit exceeded").WithRetryAfter(retryAfter))

			return
		}

		next.ServeHTTP(w, r)
	})
}
