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

package handler

import (
	"net/http"
	"strings"

	"github.com/eschercloudai/cumulus/pkg/errors"
	"github.com/eschercloudai/cumulus/pkg/server/middleware"
	"github.com/eschercloudai/cumulus/pkg/server/util"
)

// issueToken is the client_credentials grant.  The subject is the client id,
// typically a service account email.
func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		errors.HandleError(w, r, errors.OAuth2InvalidRequest("unable to parse form data").WithError(err))

		return
	}

	if grant := r.Form.Get("grant_type"); grant != "client_credentials" {
		errors.HandleError(w, r, errors.OAuth2InvalidRequest("unsupported grant type").WithValues("grant_type", grant))

		return
	}

	subject := r.Form.Get("client_id")
	if subject == "" {
		errors.HandleError(w, r, errors.OAuth2InvalidRequest("client_id is required"))

		return
	}

	// Service account identities must exist, anything else is refused.
	if strings.Contains(subject, "@") {
		if _, err := h.iam.GetServiceAccount(r.Context(), subject); err != nil {
			errors.HandleError(w, r, errors.OAuth2AccessDenied("unknown client").WithError(err))

			return
		}
	}

	token, err := h.iam.IssueToken(subject, r.Form.Get("scope"))
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, token)
}

// revokeToken implements RFC 7009 semantics, revocation always succeeds.
func (h *Handler) revokeToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		errors.HandleError(w, r, errors.OAuth2InvalidRequest("unable to parse form data").WithError(err))

		return
	}

	if token := r.Form.Get("token"); token != "" {
		h.iam.RevokeToken(token)
	}

	w.WriteHeader(http.StatusOK)
}

// userinfo reflects the authenticated caller back at them.
func (h *Handler) userinfo(w http.ResponseWriter, r *http.Request) {
	raw := r.Header.Get("Authorization")

	token, ok := strings.CutPrefix(raw, "Bearer ")
	if !ok {
		errors.HandleError(w, r, errors.Unauthenticated("bearer token is required"))

		return
	}

	claims, err := h.iam.VerifyToken(token)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, map[string]string{
		"sub":   claims.Subject,
		"scope": claims.Scope,
	})
}

// whoami reports the identity the middleware resolved, mostly for debugging
// auth configurations.
func (h *Handler) whoami(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())

	util.WriteJSONResponse(w, r, http.StatusOK, identity)
}
