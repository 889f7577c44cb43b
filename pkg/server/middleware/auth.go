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
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/eschercloudai/cumulus/pkg/errors"
	"github.com/eschercloudai/cumulus/pkg/iam"
	"github.com/eschercloudai/cumulus/pkg/util/log"
)

// AuthMode selects how strictly credentials are handled.
type AuthMode string

const (
	// AuthDisabled treats every caller as anonymous, the emulator default.
	AuthDisabled AuthMode = "disabled"

	// AuthOptional attaches an identity when credentials are present.
	AuthOptional AuthMode = "optional"

	// AuthRequired rejects requests without valid credentials, except on
	// endpoints that carry their own authorization.
	AuthRequired AuthMode = "required"
)

// AuthOptions configures the authentication middleware.
type AuthOptions struct {
	Mode string
}

// AddFlags registers authentication options, AUTH_MODE provides the default.
func (o *AuthOptions) AddFlags(f *pflag.FlagSet) {
	mode := os.Getenv("AUTH_MODE")
	if mode == "" {
		mode = string(AuthDisabled)
	}

	f.StringVar(&o.Mode, "auth-mode", mode, "Authentication mode, one of disabled, optional or required.")
}

// Identity is the resolved caller.
type Identity struct {
	// Principal is the caller's stable name, "anonymous" without
	// credentials.
	Principal string

	// Authenticated is true when a credential was presented and verified.
	Authenticated bool
}

// Anonymous is the identity of an uncredentialed caller.
const Anonymous = "anonymous"

type identityKeyType int

const identityKey identityKeyType = 0

// IdentityFromContext returns the caller identity, anonymous by default.
func IdentityFromContext(ctx context.Context) *Identity {
	if identity, ok := ctx.Value(identityKey).(*Identity); ok {
		return identity
	}

	return &Identity{Principal: Anonymous}
}

// withIdentity stashes the identity for handlers.
func withIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// Authenticator resolves and enforces caller credentials.
type Authenticator struct {
	options *AuthOptions
	iam     *iam.Service
	apiKey  string
}

// NewAuthenticator creates the authentication middleware.
func NewAuthenticator(options *AuthOptions, iamService *iam.Service, apiKey string) *Authenticator {
	return &Authenticator{
		options: options,
		iam:     iamService,
		apiKey:  apiKey,
	}
}

// selfAuthorizedPath reports whether an endpoint carries its own
// authorization and must stay reachable without credentials: signed URLs,
// token issue, liveness and metrics.
func selfAuthorizedPath(path string) bool {
	for _, prefix := range []string{"/signed/", "/token", "/oauth2/", "/healthz", "/metrics"} {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}

	return false
}

// resolve extracts and verifies whatever credential the request carries.
func (a *Authenticator) resolve(r *http.Request) (*Identity, error) {
	if key := r.Header.Get("X-Api-Key"); key != "" {
		if a.apiKey == "" || key != a.apiKey {
			return nil, errors.Unauthenticated("invalid API key")
		}

		return &Identity{Principal: "api-key", Authenticated: true}, nil
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return &Identity{Principal: Anonymous}, nil
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return nil, errors.Unauthenticated("malformed authorization header")
	}

	claims, err := a.iam.VerifyToken(token)
	if err != nil {
		return nil, err
	}

	return &Identity{Principal: claims.Subject, Authenticated: true}, nil
}

// Middleware attaches identity to the request context and enforces the
// configured mode.  GET requests on storage objects pass through anonymous
// in required mode so public ACLs can grant access downstream.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Stage(r.Context(), log.StageOptions)

		if AuthMode(a.options.Mode) == AuthDisabled {
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), &Identity{Principal: Anonymous})))

			return
		}

		identity, err := a.resolve(r)
		if err != nil {
			errors.HandleError(w, r, err)

			return
		}

		if AuthMode(a.options.Mode) == AuthRequired && !identity.Authenticated {
			allowAnonymous := selfAuthorizedPath(r.URL.Path) ||
				(r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/storage/"))

			if !allowAnonymous {
				errors.HandleError(w, r, errors.Unauthenticated("authentication required"))

				return
			}
		}

		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
	})
}
