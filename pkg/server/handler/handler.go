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

// Package handler terminates the wire protocol: request decoding,
// validation, authorization, service dispatch and response shaping.
package handler

import (
	"net/http"

	"github.com/eschercloudai/cumulus/pkg/compute"
	"github.com/eschercloudai/cumulus/pkg/errors"
	"github.com/eschercloudai/cumulus/pkg/iam"
	"github.com/eschercloudai/cumulus/pkg/project"
	"github.com/eschercloudai/cumulus/pkg/server/middleware"
	"github.com/eschercloudai/cumulus/pkg/storage"
	"github.com/eschercloudai/cumulus/pkg/vpc"
)

// Handler dispatches requests to the domain services.
type Handler struct {
	projects *project.Service
	storage  *storage.Service
	compute  *compute.Service
	vpc      *vpc.Service
	iam      *iam.Service

	authOptions *middleware.AuthOptions
}

// New creates the handler.
func New(projects *project.Service, storageService *storage.Service, computeService *compute.Service, vpcService *vpc.Service, iamService *iam.Service, authOptions *middleware.AuthOptions) *Handler {
	return &Handler{
		projects:    projects,
		storage:     storageService,
		compute:     computeService,
		vpc:         vpcService,
		iam:         iamService,
		authOptions: authOptions,
	}
}

// NotFound is the catch-all route.
func NotFound(w http.ResponseWriter, r *http.Request) {
	errors.HandleError(w, r, errors.NotFound("no such endpoint").WithValues("path", r.URL.Path))
}

// MethodNotAllowed handles routes hit with the wrong verb.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	errors.HandleError(w, r, errors.InvalidArgument("method not allowed").WithValues("method", r.Method, "path", r.URL.Path))
}

// Healthz is the liveness probe.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)

	//nolint:errcheck
	w.Write([]byte("ok"))
}

// authorize enforces a permission on a resource when auth is required.
// Anything short of required mode allows, policy evaluation distinguishes
// missing credentials from insufficient ones.
func (h *Handler) authorize(r *http.Request, resourceType, resourceID, permission string) error {
	if middleware.AuthMode(h.authOptions.Mode) != middleware.AuthRequired {
		return nil
	}

	identity := middleware.IdentityFromContext(r.Context())

	ok, err := h.iam.CheckPermission(r.Context(), identity.Principal, resourceType, resourceID, permission)
	if err != nil {
		return err
	}

	if !ok {
		if !identity.Authenticated {
			return errors.Unauthenticated("authentication required").WithValues("permission", permission)
		}

		return errors.PermissionDenied("caller lacks permission").
			WithValues("permission", permission, "principal", identity.Principal)
	}

	return nil
}
