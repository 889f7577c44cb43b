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
	"github.com/eschercloudai/cumulus/pkg/models"
	"github.com/eschercloudai/cumulus/pkg/server/util"
	"github.com/eschercloudai/cumulus/pkg/server/validation"
	"github.com/eschercloudai/cumulus/pkg/vpc"
)

type networkRequest struct {
	Name                  string         `json:"name"`
	AutoCreateSubnetworks bool           `json:"autoCreateSubnetworks"`
	RoutingConfig         *routingConfig `json:"routingConfig"`
	MTU                   int            `json:"mtu"`
}

func (h *Handler) createNetwork(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")

	if err := h.authorize(r, "project", projectID, "compute.networks.create"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	var request networkRequest

	if err := util.ReadJSONBody(r, &request); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if err := validation.New().
		Required("name", request.Name).
		Pattern("name", request.Name, validation.ResourceName).
		NoSQL("name", request.Name).
		Error(); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	params := &vpc.NetworkParams{
		Name:              request.Name,
		AutoCreateSubnets: request.AutoCreateSubnetworks,
		MTU:               request.MTU,
	}

	if request.RoutingConfig != nil {
		params.RoutingMode = request.RoutingConfig.RoutingMode
	}

	network, err := h.vpc.CreateNetwork(r.Context(), projectID, params)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, newOperation("insert", networkSelfLink(projectID, network.Name)))
}

func networkSelfLink(projectID, name string) string {
	return "/compute/v1/projects/" + projectID + "/global/networks/" + name
}

func (h *Handler) listNetworks(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")

	if err := h.authorize(r, "project", projectID, "compute.networks.list"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	networks, err := h.vpc.ListNetworks(r.Context(), projectID)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	response := &listResponse{
		Kind:  "compute#networkList",
		Items: make([]interface{}, 0, len(networks)),
	}

	for i := range networks {
		peerings, err := h.vpc.ListPeerings(r.Context(), projectID, networks[i].Name)
		if err != nil {
			errors.HandleError(w, r, err)

			return
		}

		response.Items = append(response.Items, networkToResource(&networks[i], peeringPointers(peerings)))
	}

	util.WriteJSONResponse(w, r, http.StatusOK, response)
}

func peeringPointers(peerings []models.VPCPeering) []*models.VPCPeering {
	out := make([]*models.VPCPeering, len(peerings))

	for i := range peerings {
		out[i] = &peerings[i]
	}

	return out
}

func (h *Handler) getNetwork(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	name := chi.URLParam(r, "network")

	if err := h.authorize(r, "project", projectID, "compute.networks.get"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	network, err := h.vpc.GetNetwork(r.Context(), projectID, name)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	peerings, err := h.vpc.ListPeerings(r.Context(), projectID, name)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, networkToResource(network, peeringPointers(peerings)))
}

func (h *Handler) deleteNetwork(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	name := chi.URLParam(r, "network")

	if err := h.authorize(r, "project", projectID, "compute.networks.delete"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if err := h.vpc.DeleteNetwork(r.Context(), projectID, name); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, newOperation("delete", networkSelfLink(projectID, name)))
}

func (h *Handler) addPeering(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	networkName := chi.URLParam(r, "network")

	if err := h.authorize(r, "project", projectID, "compute.networks.addPeering"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	var request struct {
		Name        string `json:"name"`
		PeerNetwork string `json:"peerNetwork"`
	}

	if err := util.ReadJSONBody(r, &request); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if err := validation.New().
		Required("name", request.Name).
		Required("peerNetwork", request.PeerNetwork).
		Error(); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if _, err := h.vpc.AddPeering(r.Context(), projectID, networkName, &vpc.PeeringParams{
		Name:        request.Name,
		PeerNetwork: request.PeerNetwork,
	}); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, newOperation("addPeering", networkSelfLink(projectID, networkName)))
}

func (h *Handler) removePeering(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	networkName := chi.URLParam(r, "network")

	if err := h.authorize(r, "project", projectID, "compute.networks.removePeering"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	var request struct {
		Name string `json:"name"`
	}

	if err := util.ReadJSONBody(r, &request); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if err := h.vpc.RemovePeering(r.Context(), projectID, networkName, request.Name); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, newOperation("removePeering", networkSelfLink(projectID, networkName)))
}

type subnetworkRequest struct {
	Name        string `json:"name"`
	Network     string `json:"network"`
	IPCIDRRange string `json:"ipCidrRange"`
}

func (h *Handler) createSubnetwork(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	region := chi.URLParam(r, "region")

	if err := h.authorize(r, "project", projectID, "compute.subnetworks.create"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	var request subnetworkRequest

	if err := util.ReadJSONBody(r, &request); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if err := validation.New().
		Required("name", request.Name).
		Pattern("name", request.Name, validation.ResourceName).
		Required("network", request.Network).
		Required("ipCidrRange", request.IPCIDRRange).
		CIDR("ipCidrRange", request.IPCIDRRange).
		Pattern("region", region, validation.Region).
		Error(); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	subnet, err := h.vpc.CreateSubnet(r.Context(), projectID, request.Network, &vpc.SubnetParams{
		Name:   request.Name,
		Region: region,
		CIDR:   request.IPCIDRRange,
	})
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, subnetToResource(subnet))
}

func (h *Handler) listSubnetworks(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	region := chi.URLParam(r, "region")

	if err := h.authorize(r, "project", projectID, "compute.subnetworks.list"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	networkName := r.URL.Query().Get("network")
	if networkName == "" {
		errors.HandleError(w, r, errors.InvalidArgument("network query parameter is required"))

		return
	}

	subnets, err := h.vpc.ListSubnets(r.Context(), projectID, networkName)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	response := &listResponse{
		Kind:  "compute#subnetworkList",
		Items: []interface{}{},
	}

	for i := range subnets {
		if region != "" && subnets[i].Region != region {
			continue
		}

		response.Items = append(response.Items, subnetToResource(&subnets[i]))
	}

	util.WriteJSONResponse(w, r, http.StatusOK, response)
}

func (h *Handler) getSubnetwork(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	name := chi.URLParam(r, "subnetwork")

	if err := h.authorize(r, "project", projectID, "compute.subnetworks.get"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	networkName := r.URL.Query().Get("network")
	if networkName == "" {
		errors.HandleError(w, r, errors.InvalidArgument("network query parameter is required"))

		return
	}

	subnet, err := h.vpc.GetSubnet(r.Context(), projectID, networkName, name)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, subnetToResource(subnet))
}

func (h *Handler) deleteSubnetwork(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	name := chi.URLParam(r, "subnetwork")

	if err := h.authorize(r, "project", projectID, "compute.subnetworks.delete"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	networkName := r.URL.Query().Get("network")
	if networkName == "" {
		errors.HandleError(w, r, errors.InvalidArgument("network query parameter is required"))

		return
	}

	if err := h.vpc.DeleteSubnet(r.Context(), projectID, networkName, name); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, newOperation("delete", "/compute/v1/projects/"+projectID+"/regions/"+chi.URLParam(r, "region")+"/subnetworks/"+name))
}

type firewallRequest struct {
	Name              string                 `json:"name"`
	Network           string                 `json:"network"`
	Priority          *int                   `json:"priority"`
	Direction         string                 `json:"direction"`
	Allowed           models.ProtocolEntries `json:"allowed"`
	Denied            models.ProtocolEntries `json:"denied"`
	SourceRanges      []string               `json:"sourceRanges"`
	DestinationRanges []string               `json:"destinationRanges"`
	SourceTags        []string               `json:"sourceTags"`
	TargetTags        []string               `json:"targetTags"`
}

func (h *Handler) createFirewall(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")

	if err := h.authorize(r, "project", projectID, "compute.firewalls.create"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	var request firewallRequest

	if err := util.ReadJSONBody(r, &request); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if err := validation.New().
		Required("name", request.Name).
		Pattern("name", request.Name, validation.ResourceName).
		Required("network", request.Network).
		Error(); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	params := &vpc.FirewallParams{
		Name:         request.Name,
		Network:      request.Network,
		Direction:    request.Direction,
		SourceRanges: request.SourceRanges,
		DestRanges:   request.DestinationRanges,
		SourceTags:   request.SourceTags,
		TargetTags:   request.TargetTags,
	}

	if request.Priority != nil {
		params.Priority = *request.Priority
	} else {
		params.Priority = 1000
	}

	if len(request.Denied) != 0 {
		params.Action = "DENY"
		params.ProtocolEntries = request.Denied
	} else {
		params.Action = "ALLOW"
		params.ProtocolEntries = request.Allowed
	}

	rule, err := h.vpc.CreateFirewall(r.Context(), projectID, params)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, firewallToResource(rule))
}

func (h *Handler) listFirewalls(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")

	if err := h.authorize(r, "project", projectID, "compute.firewalls.list"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	rules, err := h.vpc.ListFirewalls(r.Context(), projectID)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	response := &listResponse{
		Kind:  "compute#firewallList",
		Items: make([]interface{}, 0, len(rules)),
	}

	for i := range rules {
		response.Items = append(response.Items, firewallToResource(&rules[i]))
	}

	util.WriteJSONResponse(w, r, http.StatusOK, response)
}

func (h *Handler) getFirewall(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	name := chi.URLParam(r, "firewall")

	if err := h.authorize(r, "project", projectID, "compute.firewalls.get"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	rule, err := h.vpc.GetFirewall(r.Context(), projectID, name)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, firewallToResource(rule))
}

func (h *Handler) deleteFirewall(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	name := chi.URLParam(r, "firewall")

	if err := h.authorize(r, "project", projectID, "compute.firewalls.delete"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if err := h.vpc.DeleteFirewall(r.Context(), projectID, name); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, newOperation("delete", "/compute/v1/projects/"+projectID+"/global/firewalls/"+name))
}

type routeRequest struct {
	Name            string   `json:"name"`
	Network         string   `json:"network"`
	DestRange       string   `json:"destRange"`
	Priority        *int     `json:"priority"`
	NextHopGateway  string   `json:"nextHopGateway"`
	NextHopIP       string   `json:"nextHopIp"`
	NextHopInstance string   `json:"nextHopInstance"`
	Tags            []string `json:"tags"`
}

func (h *Handler) createRoute(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")

	if err := h.authorize(r, "project", projectID, "compute.routes.create"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	var request routeRequest

	if err := util.ReadJSONBody(r, &request); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if err := validation.New().
		Required("name", request.Name).
		Pattern("name", request.Name, validation.ResourceName).
		Required("network", request.Network).
		Required("destRange", request.DestRange).
		CIDR("destRange", request.DestRange).
		Error(); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	params := &vpc.RouteParams{
		Name:      request.Name,
		Network:   request.Network,
		DestRange: request.DestRange,
		Tags:      request.Tags,
	}

	if request.Priority != nil {
		params.Priority = *request.Priority
	} else {
		params.Priority = 1000
	}

	switch {
	case request.NextHopGateway != "":
		params.NextHopType = "gateway"
		params.NextHop = request.NextHopGateway
	case request.NextHopIP != "":
		params.NextHopType = "ip"
		params.NextHop = request.NextHopIP
	case request.NextHopInstance != "":
		params.NextHopType = "instance"
		params.NextHop = request.NextHopInstance
	}

	route, err := h.vpc.CreateRoute(r.Context(), projectID, params)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, routeToResource(route))
}

func (h *Handler) listRoutes(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")

	if err := h.authorize(r, "project", projectID, "compute.routes.list"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	routes, err := h.vpc.ListRoutes(r.Context(), projectID)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	response := &listResponse{
		Kind:  "compute#routeList",
		Items: make([]interface{}, 0, len(routes)),
	}

	for i := range routes {
		response.Items = append(response.Items, routeToResource(&routes[i]))
	}

	util.WriteJSONResponse(w, r, http.StatusOK, response)
}

func (h *Handler) deleteRoute(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	name := chi.URLParam(r, "route")

	if err := h.authorize(r, "project", projectID, "compute.routes.delete"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if err := h.vpc.DeleteRoute(r.Context(), projectID, name); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, newOperation("delete", "/compute/v1/projects/"+projectID+"/global/routes/"+name))
}

type addressRequest struct {
	Name        string `json:"name"`
	NetworkTier string `json:"networkTier"`
}

func (h *Handler) createAddress(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	region := chi.URLParam(r, "region")

	if err := h.authorize(r, "project", projectID, "compute.addresses.create"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	var request addressRequest

	if err := util.ReadJSONBody(r, &request); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if err := validation.New().
		Required("name", request.Name).
		Pattern("name", request.Name, validation.ResourceName).
		Pattern("region", region, validation.Region).
		Error(); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	address, err := h.vpc.ReserveAddress(r.Context(), projectID, &vpc.AddressParams{
		Name:        request.Name,
		Region:      region,
		NetworkTier: request.NetworkTier,
	})
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, addressToResource(address))
}

func (h *Handler) listAddresses(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	region := chi.URLParam(r, "region")

	if err := h.authorize(r, "project", projectID, "compute.addresses.list"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	addresses, err := h.vpc.ListAddresses(r.Context(), projectID, region)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	response := &listResponse{
		Kind:  "compute#addressList",
		Items: make([]interface{}, 0, len(addresses)),
	}

	for i := range addresses {
		response.Items = append(response.Items, addressToResource(&addresses[i]))
	}

	util.WriteJSONResponse(w, r, http.StatusOK, response)
}

func (h *Handler) getAddress(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	region := chi.URLParam(r, "region")
	name := chi.URLParam(r, "address")

	if err := h.authorize(r, "project", projectID, "compute.addresses.get"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	address, err := h.vpc.GetAddress(r.Context(), projectID, region, name)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, addressToResource(address))
}

func (h *Handler) deleteAddress(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	region := chi.URLParam(r, "region")
	name := chi.URLParam(r, "address")

	if err := h.authorize(r, "project", projectID, "compute.addresses.delete"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if err := h.vpc.DeleteAddress(r.Context(), projectID, region, name); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, newOperation("delete", "/compute/v1/projects/"+projectID+"/regions/"+region+"/addresses/"+name))
}

type routerRequest struct {
	Name    string       `json:"name"`
	Network string       `json:"network"`
	BGP     *bgpResource `json:"bgp"`
}

func (h *Handler) createRouter(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	region := chi.URLParam(r, "region")

	if err := h.authorize(r, "project", projectID, "compute.routers.create"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	var request routerRequest

	if err := util.ReadJSONBody(r, &request); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if err := validation.New().
		Required("name", request.Name).
		Pattern("name", request.Name, validation.ResourceName).
		Required("network", request.Network).
		Pattern("region", region, validation.Region).
		Error(); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	params := &vpc.RouterParams{
		Name:    request.Name,
		Network: request.Network,
		Region:  region,
	}

	if request.BGP != nil {
		params.BGPASN = request.BGP.ASN
		params.KeepaliveSec = request.BGP.KeepaliveInterval
	}

	router, err := h.vpc.CreateRouter(r.Context(), projectID, params)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, routerToResource(router))
}

func (h *Handler) listRouters(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	region := chi.URLParam(r, "region")

	if err := h.authorize(r, "project", projectID, "compute.routers.list"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	routers, err := h.vpc.ListRouters(r.Context(), projectID, region)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	response := &listResponse{
		Kind:  "compute#routerList",
		Items: make([]interface{}, 0, len(routers)),
	}

	for i := range routers {
		response.Items = append(response.Items, routerToResource(&routers[i]))
	}

	util.WriteJSONResponse(w, r, http.StatusOK, response)
}

func (h *Handler) deleteRouter(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	region := chi.URLParam(r, "region")
	name := chi.URLParam(r, "router")

	if err := h.authorize(r, "project", projectID, "compute.routers.delete"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if err := h.vpc.DeleteRouter(r.Context(), projectID, region, name); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, newOperation("delete", "/compute/v1/projects/"+projectID+"/regions/"+region+"/routers/"+name))
}

type vpnTunnelRequest struct {
	Name    string `json:"name"`
	Network string `json:"network"`
	PeerIP  string `json:"peerIp"`
}

func (h *Handler) createVPNTunnel(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	region := chi.URLParam(r, "region")

	if err := h.authorize(r, "project", projectID, "compute.vpnTunnels.create"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	var request vpnTunnelRequest

	if err := util.ReadJSONBody(r, &request); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if err := validation.New().
		Required("name", request.Name).
		Pattern("name", request.Name, validation.ResourceName).
		Required("network", request.Network).
		Required("peerIp", request.PeerIP).
		Error(); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	tunnel, err := h.vpc.CreateVPNTunnel(r.Context(), projectID, &vpc.VPNTunnelParams{
		Name:    request.Name,
		Network: request.Network,
		Region:  region,
		PeerIP:  request.PeerIP,
	})
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, vpnTunnelToResource(tunnel))
}

func (h *Handler) listVPNTunnels(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	region := chi.URLParam(r, "region")

	if err := h.authorize(r, "project", projectID, "compute.vpnTunnels.list"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	tunnels, err := h.vpc.ListVPNTunnels(r.Context(), projectID, region)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	response := &listResponse{
		Kind:  "compute#vpnTunnelList",
		Items: make([]interface{}, 0, len(tunnels)),
	}

	for i := range tunnels {
		response.Items = append(response.Items, vpnTunnelToResource(&tunnels[i]))
	}

	util.WriteJSONResponse(w, r, http.StatusOK, response)
}
