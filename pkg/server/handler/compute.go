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

	"github.com/eschercloudai/cumulus/pkg/compute"
	"github.com/eschercloudai/cumulus/pkg/errors"
	"github.com/eschercloudai/cumulus/pkg/server/util"
	"github.com/eschercloudai/cumulus/pkg/server/validation"
)

// instanceRequest is the compute#instance insert wire shape.
type instanceRequest struct {
	Name              string             `json:"name"`
	MachineType       string             `json:"machineType"`
	Image             string             `json:"image"`
	Metadata          map[string]string  `json:"metadata"`
	Labels            map[string]string  `json:"labels"`
	Tags              []string           `json:"tags"`
	NetworkInterfaces []instanceNICParam `json:"networkInterfaces"`
}

type instanceNICParam struct {
	Network       string                 `json:"network"`
	Subnetwork    string                 `json:"subnetwork"`
	AccessConfigs []accessConfigResource `json:"accessConfigs"`
}

func (h *Handler) createInstance(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	zone := chi.URLParam(r, "zone")

	if err := h.authorize(r, "project", projectID, "compute.instances.create"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	var request instanceRequest

	if err := util.ReadJSONBody(r, &request); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if err := validation.New().
		Required("name", request.Name).
		Pattern("name", request.Name, validation.ResourceName).
		Pattern("zone", zone, validation.Zone).
		NoSQL("name", request.Name).
		Error(); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	params := &compute.RunParams{
		Name:        request.Name,
		Zone:        zone,
		MachineType: request.MachineType,
		Image:       request.Image,
		Metadata:    request.Metadata,
		Labels:      request.Labels,
		Tags:        request.Tags,
	}

	if len(request.NetworkInterfaces) != 0 {
		nic := request.NetworkInterfaces[0]

		params.Network = nic.Network
		params.Subnetwork = nic.Subnetwork
		params.AllocateExternal = len(nic.AccessConfigs) != 0
	}

	instance, err := h.compute.RunInstance(r.Context(), projectID, params)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, newOperation("insert", instanceSelfLink(projectID, instance.Zone, instance.Name)))
}

func instanceSelfLink(projectID, zone, name string) string {
	return "/compute/v1/projects/" + projectID + "/zones/" + zone + "/instances/" + name
}

func (h *Handler) listInstances(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	zone := chi.URLParam(r, "zone")

	if err := h.authorize(r, "project", projectID, "compute.instances.list"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	instances, err := h.compute.ListInstances(r.Context(), projectID, zone)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	response := &listResponse{
		Kind:  "compute#instanceList",
		Items: make([]interface{}, 0, len(instances)),
	}

	for i := range instances {
		response.Items = append(response.Items, instanceToResource(&instances[i]))
	}

	util.WriteJSONResponse(w, r, http.StatusOK, response)
}

// listAllInstances lists across zones, the aggregated form.
func (h *Handler) listAllInstances(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")

	if err := h.authorize(r, "project", projectID, "compute.instances.list"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	instances, err := h.compute.ListInstances(r.Context(), projectID, "")
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	response := &listResponse{
		Kind:  "compute#instanceAggregatedList",
		Items: make([]interface{}, 0, len(instances)),
	}

	for i := range instances {
		response.Items = append(response.Items, instanceToResource(&instances[i]))
	}

	util.WriteJSONResponse(w, r, http.StatusOK, response)
}

func (h *Handler) getInstance(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	zone := chi.URLParam(r, "zone")
	name := chi.URLParam(r, "instance")

	if err := h.authorize(r, "project", projectID, "compute.instances.get"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	instance, err := h.compute.GetInstance(r.Context(), projectID, zone, name)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, instanceToResource(instance))
}

func (h *Handler) startInstance(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	zone := chi.URLParam(r, "zone")
	name := chi.URLParam(r, "instance")

	if err := h.authorize(r, "project", projectID, "compute.instances.start"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	instance, err := h.compute.StartInstance(r.Context(), projectID, zone, name)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, newOperation("start", instanceSelfLink(projectID, instance.Zone, instance.Name)))
}

func (h *Handler) stopInstance(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	zone := chi.URLParam(r, "zone")
	name := chi.URLParam(r, "instance")

	if err := h.authorize(r, "project", projectID, "compute.instances.stop"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	instance, err := h.compute.StopInstance(r.Context(), projectID, zone, name)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, newOperation("stop", instanceSelfLink(projectID, instance.Zone, instance.Name)))
}

func (h *Handler) deleteInstance(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	zone := chi.URLParam(r, "zone")
	name := chi.URLParam(r, "instance")

	if err := h.authorize(r, "project", projectID, "compute.instances.delete"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	instance, err := h.compute.DeleteInstance(r.Context(), projectID, zone, name)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, newOperation("delete", instanceSelfLink(projectID, instance.Zone, instance.Name)))
}

func (h *Handler) addAccessConfig(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	zone := chi.URLParam(r, "zone")
	name := chi.URLParam(r, "instance")

	if err := h.authorize(r, "project", projectID, "compute.instances.update"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	var request struct {
		AddressName string `json:"addressName"`
	}

	if err := util.ReadJSONBody(r, &request); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	instance, err := h.compute.AddAccessConfig(r.Context(), projectID, zone, name, request.AddressName)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, instanceToResource(instance))
}

func (h *Handler) deleteAccessConfig(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	zone := chi.URLParam(r, "zone")
	name := chi.URLParam(r, "instance")

	if err := h.authorize(r, "project", projectID, "compute.instances.update"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	instance, err := h.compute.DeleteAccessConfig(r.Context(), projectID, zone, name)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, instanceToResource(instance))
}

func (h *Handler) listMachineTypes(w http.ResponseWriter, r *http.Request) {
	machineTypes := compute.ListMachineTypes()

	response := &listResponse{
		Kind:  "compute#machineTypeList",
		Items: make([]interface{}, 0, len(machineTypes)),
	}

	for i := range machineTypes {
		response.Items = append(response.Items, machineTypes[i])
	}

	util.WriteJSONResponse(w, r, http.StatusOK, response)
}

func (h *Handler) listZones(w http.ResponseWriter, r *http.Request) {
	zones := compute.ListZones()

	response := &listResponse{
		Kind:  "compute#zoneList",
		Items: make([]interface{}, 0, len(zones)),
	}

	for _, zone := range zones {
		response.Items = append(response.Items, map[string]string{
			"kind":   "compute#zone",
			"name":   zone,
			"region": compute.RegionForZone(zone),
			"status": "UP",
		})
	}

	util.WriteJSONResponse(w, r, http.StatusOK, response)
}
