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

	"github.com/go-chi/chi/v5"

	"github.com/eschercloudai/cumulus/pkg/errors"
	"github.com/eschercloudai/cumulus/pkg/server/middleware"
	"github.com/eschercloudai/cumulus/pkg/server/util"
	"github.com/eschercloudai/cumulus/pkg/server/validation"
)

type serviceAccountRequest struct {
	AccountID      string `json:"accountId"`
	ServiceAccount struct {
		DisplayName string `json:"displayName"`
	} `json:"serviceAccount"`
}

func (h *Handler) createServiceAccount(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")

	if err := h.authorize(r, "project", projectID, "iam.serviceAccounts.create"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	var request serviceAccountRequest

	if err := util.ReadJSONBody(r, &request); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if err := validation.New().
		Required("accountId", request.AccountID).
		Pattern("accountId", request.AccountID, validation.ResourceName).
		NoSQL("accountId", request.AccountID).
		Error(); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	account, err := h.iam.CreateServiceAccount(r.Context(), projectID, request.AccountID, request.ServiceAccount.DisplayName)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, serviceAccountToResource(account))
}

func (h *Handler) listServiceAccounts(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")

	if err := h.authorize(r, "project", projectID, "iam.serviceAccounts.list"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	accounts, err := h.iam.ListServiceAccounts(r.Context(), projectID)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	response := &listResponse{
		Kind:  "iam#serviceAccounts",
		Items: make([]interface{}, 0, len(accounts)),
	}

	for i := range accounts {
		response.Items = append(response.Items, serviceAccountToResource(&accounts[i]))
	}

	util.WriteJSONResponse(w, r, http.StatusOK, response)
}

func (h *Handler) getServiceAccount(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	email := chi.URLParam(r, "email")

	if err := h.authorize(r, "project", projectID, "iam.serviceAccounts.get"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	account, err := h.iam.GetServiceAccount(r.Context(), email)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, serviceAccountToResource(account))
}

func (h *Handler) deleteServiceAccount(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	email := chi.URLParam(r, "email")

	if err := h.authorize(r, "project", projectID, "iam.serviceAccounts.delete"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if err := h.iam.DeleteServiceAccount(r.Context(), email); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createServiceAccountKey(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	email := chi.URLParam(r, "email")

	if err := h.authorize(r, "project", projectID, "iam.serviceAccountKeys.create"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	key, err := h.iam.CreateKey(r.Context(), email)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	// Key material is only ever returned at creation.
	util.WriteJSONResponse(w, r, http.StatusOK, serviceAccountKeyToResource(key, true))
}

func (h *Handler) listServiceAccountKeys(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	email := chi.URLParam(r, "email")

	if err := h.authorize(r, "project", projectID, "iam.serviceAccountKeys.list"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	keys, err := h.iam.ListKeys(r.Context(), email)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	response := &listResponse{
		Kind:  "iam#serviceAccountKeys",
		Items: make([]interface{}, 0, len(keys)),
	}

	for i := range keys {
		response.Items = append(response.Items, serviceAccountKeyToResource(&keys[i], false))
	}

	util.WriteJSONResponse(w, r, http.StatusOK, response)
}

func (h *Handler) deleteServiceAccountKey(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	keyID := chi.URLParam(r, "key")

	if err := h.authorize(r, "project", projectID, "iam.serviceAccountKeys.delete"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if err := h.iam.DeleteKey(r.Context(), keyID); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getProjectPolicy(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")

	if err := h.authorize(r, "project", projectID, "resourcemanager.projects.getIamPolicy"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	policy, err := h.iam.GetPolicy(r.Context(), "project", projectID)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, policyToResource(policy))
}

func (h *Handler) setProjectPolicy(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")

	if err := h.authorize(r, "project", projectID, "resourcemanager.projects.setIamPolicy"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	var request policyResource

	if err := util.ReadJSONBody(r, &request); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	policy, err := h.iam.SetPolicy(r.Context(), "project", projectID, request.Etag, request.Bindings)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, policyToResource(policy))
}

// testPermissions evaluates a permission list for the caller against a
// project, useful for probing before attempting a mutation.
func (h *Handler) testPermissions(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")

	var request struct {
		Permissions []string `json:"permissions"`
	}

	if err := util.ReadJSONBody(r, &request); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	identity := middleware.IdentityFromContext(r.Context())

	granted := make([]string, 0, len(request.Permissions))

	for _, permission := range request.Permissions {
		ok, err := h.iam.CheckPermission(r.Context(), identity.Principal, "project", projectID, permission)
		if err != nil {
			errors.HandleError(w, r, err)

			return
		}

		if ok {
			granted = append(granted, permission)
		}
	}

	util.WriteJSONResponse(w, r, http.StatusOK, map[string][]string{
		"permissions": granted,
	})
}

type projectRequest struct {
	ProjectID   string `json:"projectId"`
	DisplayName string `json:"displayName"`
}

func (h *Handler) createProject(w http.ResponseWriter, r *http.Request) {
	var request projectRequest

	if err := util.ReadJSONBody(r, &request); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if err := validation.New().
		Required("projectId", request.ProjectID).
		Pattern("projectId", request.ProjectID, validation.ProjectID).
		NoSQL("projectId", request.ProjectID).
		MaxLength("displayName", request.DisplayName, 100).
		Error(); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	created, err := h.projects.Create(r.Context(), request.ProjectID, request.DisplayName)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, projectToResource(created))
}

func (h *Handler) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.List(r.Context())
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	response := &listResponse{
		Kind:  "cumulus#projects",
		Items: make([]interface{}, 0, len(projects)),
	}

	for i := range projects {
		response.Items = append(response.Items, projectToResource(&projects[i]))
	}

	util.WriteJSONResponse(w, r, http.StatusOK, response)
}

func (h *Handler) getProject(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")

	if err := h.authorize(r, "project", projectID, "resourcemanager.projects.get"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	found, err := h.projects.Get(r.Context(), projectID)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, projectToResource(found))
}

func (h *Handler) deleteProject(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")

	if err := h.authorize(r, "project", projectID, "resourcemanager.projects.delete"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if err := h.projects.Delete(r.Context(), projectID); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}
