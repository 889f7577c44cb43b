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
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/eschercloudai/cumulus/pkg/models"
)

// timestampFormat is RFC 3339 with millisecond precision, always UTC.
const timestampFormat = "2006-01-02T15:04:05.000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampFormat)
}

func formatInt64(v int64) string {
	return strconv.FormatInt(v, 10)
}

// bucketResource is the storage#bucket wire shape.
type bucketResource struct {
	Kind                string                      `json:"kind"`
	ID                  string                      `json:"id"`
	SelfLink            string                      `json:"selfLink"`
	Name                string                      `json:"name"`
	ProjectNumber       string                      `json:"projectNumber,omitempty"`
	Location            string                      `json:"location"`
	StorageClass        string                      `json:"storageClass"`
	Versioning          *versioningResource         `json:"versioning,omitempty"`
	ACL                 string                      `json:"acl,omitempty"`
	Labels              map[string]string           `json:"labels,omitempty"`
	Lifecycle           *lifecycleResource          `json:"lifecycle,omitempty"`
	NotificationConfigs models.NotificationConfigs  `json:"notificationConfigs,omitempty"`
	CORS                models.CORSRules            `json:"cors,omitempty"`
	TimeCreated         string                      `json:"timeCreated"`
	Updated             string                      `json:"updated"`
}

type versioningResource struct {
	Enabled bool `json:"enabled"`
}

type lifecycleResource struct {
	Rule models.LifecycleRules `json:"rule"`
}

func bucketToResource(bucket *models.Bucket) *bucketResource {
	resource := &bucketResource{
		Kind:                "storage#bucket",
		ID:                  bucket.Name,
		SelfLink:            "/storage/v1/b/" + bucket.Name,
		Name:                bucket.Name,
		Location:            bucket.Location,
		StorageClass:        bucket.StorageClass,
		ACL:                 string(bucket.ACL),
		Labels:              bucket.Labels,
		NotificationConfigs: bucket.NotificationConfigs,
		CORS:                bucket.CORSConfig,
		TimeCreated:         formatTime(bucket.CreatedAt),
		Updated:             formatTime(bucket.UpdatedAt),
	}

	if bucket.VersioningEnabled {
		resource.Versioning = &versioningResource{Enabled: true}
	}

	if len(bucket.LifecycleConfig) != 0 {
		resource.Lifecycle = &lifecycleResource{Rule: bucket.LifecycleConfig}
	}

	return resource
}

// objectResource is the storage#object wire shape.  Generations and sizes
// are string typed as 64 bit integers lose precision in JSON consumers.
type objectResource struct {
	Kind           string            `json:"kind"`
	ID             string            `json:"id"`
	SelfLink       string            `json:"selfLink"`
	MediaLink      string            `json:"mediaLink"`
	Name           string            `json:"name"`
	Bucket         string            `json:"bucket"`
	Generation     string            `json:"generation"`
	Metageneration string            `json:"metageneration"`
	ContentType    string            `json:"contentType,omitempty"`
	StorageClass   string            `json:"storageClass"`
	Size           string            `json:"size"`
	MD5Hash        string            `json:"md5Hash"`
	CRC32C         string            `json:"crc32c"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	TimeCreated    string            `json:"timeCreated"`
	Updated        string            `json:"updated"`
	TimeDeleted    string            `json:"timeDeleted,omitempty"`
}

func objectToResource(bucketName string, object *models.Object) *objectResource {
	selfLink := fmt.Sprintf("/storage/v1/b/%s/o/%s", bucketName, object.Name)

	return &objectResource{
		Kind:           "storage#object",
		ID:             fmt.Sprintf("%s/%s/%d", bucketName, object.Name, object.Generation),
		SelfLink:       selfLink,
		MediaLink:      selfLink + "?alt=media",
		Name:           object.Name,
		Bucket:         bucketName,
		Generation:     formatInt64(object.Generation),
		Metageneration: formatInt64(object.Metageneration),
		ContentType:    object.ContentType,
		StorageClass:   object.StorageClass,
		Size:           formatInt64(object.Size),
		MD5Hash:        object.MD5,
		CRC32C:         object.CRC32C,
		Metadata:       object.CustomMetadata,
		TimeCreated:    formatTime(object.TimeCreated),
		Updated:        formatTime(object.UpdatedAt),
	}
}

func versionToResource(bucketName string, version *models.ObjectVersion) *objectResource {
	selfLink := fmt.Sprintf("/storage/v1/b/%s/o/%s", bucketName, version.Name)

	resource := &objectResource{
		Kind:           "storage#object",
		ID:             fmt.Sprintf("%s/%s/%d", bucketName, version.Name, version.Generation),
		SelfLink:       selfLink,
		MediaLink:      selfLink + "?alt=media&generation=" + formatInt64(version.Generation),
		Name:           version.Name,
		Bucket:         bucketName,
		Generation:     formatInt64(version.Generation),
		Metageneration: formatInt64(version.Metageneration),
		ContentType:    version.ContentType,
		StorageClass:   version.StorageClass,
		Size:           formatInt64(version.Size),
		MD5Hash:        version.MD5,
		CRC32C:         version.CRC32C,
		Metadata:       version.CustomMetadata,
		TimeCreated:    formatTime(version.CreatedAt),
		Updated:        formatTime(version.CreatedAt),
	}

	if version.Deleted {
		resource.TimeDeleted = formatTime(version.CreatedAt)
	}

	return resource
}

// listResponse is the common paged collection envelope.
type listResponse struct {
	Kind     string        `json:"kind"`
	Items    []interface{} `json:"items"`
	Prefixes []string      `json:"prefixes,omitempty"`
}

// operationResource wraps mutating control plane calls.  The emulator is
// synchronous so operations are born DONE.
type operationResource struct {
	Kind          string `json:"kind"`
	ID            string `json:"id"`
	Name          string `json:"name"`
	OperationType string `json:"operationType"`
	TargetLink    string `json:"targetLink,omitempty"`
	Status        string `json:"status"`
	Progress      int    `json:"progress"`
	InsertTime    string `json:"insertTime"`
	EndTime       string `json:"endTime"`
}

func newOperation(operationType, targetLink string) *operationResource {
	now := formatTime(time.Now())

	return &operationResource{
		Kind:          "compute#operation",
		ID:            uuid.New().String(),
		Name:          "operation-" + uuid.New().String()[:8],
		OperationType: operationType,
		TargetLink:    targetLink,
		Status:        "DONE",
		Progress:      100,
		InsertTime:    now,
		EndTime:       now,
	}
}

// instanceResource is the compute#instance wire shape.
type instanceResource struct {
	Kind              string               `json:"kind"`
	ID                string               `json:"id"`
	Name              string               `json:"name"`
	Zone              string               `json:"zone"`
	MachineType       string               `json:"machineType"`
	Status            string               `json:"status"`
	NetworkInterfaces []interfaceResource  `json:"networkInterfaces"`
	Metadata          map[string]string    `json:"metadata,omitempty"`
	Labels            map[string]string    `json:"labels,omitempty"`
	Tags              []string             `json:"tags,omitempty"`
	CreationTimestamp string               `json:"creationTimestamp"`
}

type interfaceResource struct {
	Name          string                 `json:"name"`
	Network       string                 `json:"network"`
	Subnetwork    string                 `json:"subnetwork"`
	NetworkIP     string                 `json:"networkIP"`
	AccessConfigs []accessConfigResource `json:"accessConfigs,omitempty"`
}

type accessConfigResource struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	NatIP string `json:"natIP"`
}

func instanceToResource(instance *models.Instance) *instanceResource {
	nic := interfaceResource{
		Name:       "nic0",
		Network:    instance.NetworkID,
		Subnetwork: instance.SubnetID,
		NetworkIP:  instance.InternalIP,
	}

	if instance.ExternalIP != nil && *instance.ExternalIP != "" {
		nic.AccessConfigs = []accessConfigResource{{
			Type:  "ONE_TO_ONE_NAT",
			Name:  "External NAT",
			NatIP: *instance.ExternalIP,
		}}
	}

	return &instanceResource{
		Kind:              "compute#instance",
		ID:                instance.ID,
		Name:              instance.Name,
		Zone:              instance.Zone,
		MachineType:       instance.MachineType,
		Status:            string(instance.Status),
		NetworkInterfaces: []interfaceResource{nic},
		Metadata:          instance.Metadata,
		Labels:            instance.Labels,
		Tags:              instance.Tags,
		CreationTimestamp: formatTime(instance.CreatedAt),
	}
}

// networkResource is the compute#network wire shape, peerings inline.
type networkResource struct {
	Kind                  string            `json:"kind"`
	ID                    string            `json:"id"`
	Name                  string            `json:"name"`
	AutoCreateSubnetworks bool              `json:"autoCreateSubnetworks"`
	RoutingConfig         routingConfig     `json:"routingConfig"`
	MTU                   int               `json:"mtu"`
	Peerings              []peeringResource `json:"peerings,omitempty"`
	CreationTimestamp     string            `json:"creationTimestamp"`
}

type routingConfig struct {
	RoutingMode string `json:"routingMode"`
}

type peeringResource struct {
	Name                 string `json:"name"`
	Network              string `json:"network"`
	State                string `json:"state"`
	AutoCreateRoutes     bool   `json:"autoCreateRoutes"`
	ExchangeSubnetRoutes bool   `json:"exchangeSubnetRoutes"`
}

func networkToResource(network *models.Network, peerings []*models.VPCPeering) *networkResource {
	resource := &networkResource{
		Kind:                  "compute#network",
		ID:                    network.ID,
		Name:                  network.Name,
		AutoCreateSubnetworks: network.AutoCreateSubnets,
		RoutingConfig:         routingConfig{RoutingMode: network.RoutingMode},
		MTU:                   network.MTU,
		CreationTimestamp:     formatTime(network.CreatedAt),
	}

	for _, peering := range peerings {
		resource.Peerings = append(resource.Peerings, peeringResource{
			Name:                 peering.Name,
			Network:              peering.PeerNetworkID,
			State:                peering.State,
			AutoCreateRoutes:     peering.AutoCreateRoutes,
			ExchangeSubnetRoutes: peering.ExchangeSubnetRoutes,
		})
	}

	return resource
}

type subnetworkResource struct {
	Kind              string `json:"kind"`
	ID                string `json:"id"`
	Name              string `json:"name"`
	Network           string `json:"network"`
	Region            string `json:"region"`
	IPCIDRRange       string `json:"ipCidrRange"`
	GatewayAddress    string `json:"gatewayAddress"`
	CreationTimestamp string `json:"creationTimestamp"`
}

func subnetToResource(subnet *models.Subnetwork) *subnetworkResource {
	return &subnetworkResource{
		Kind:              "compute#subnetwork",
		ID:                subnet.ID,
		Name:              subnet.Name,
		Network:           subnet.NetworkID,
		Region:            subnet.Region,
		IPCIDRRange:       subnet.CIDR,
		GatewayAddress:    subnet.GatewayIP,
		CreationTimestamp: formatTime(subnet.CreatedAt),
	}
}

type firewallResource struct {
	Kind              string                 `json:"kind"`
	ID                string                 `json:"id"`
	Name              string                 `json:"name"`
	Network           string                 `json:"network"`
	Priority          int                    `json:"priority"`
	Direction         string                 `json:"direction"`
	Allowed           models.ProtocolEntries `json:"allowed,omitempty"`
	Denied            models.ProtocolEntries `json:"denied,omitempty"`
	SourceRanges      []string               `json:"sourceRanges,omitempty"`
	DestinationRanges []string               `json:"destinationRanges,omitempty"`
	SourceTags        []string               `json:"sourceTags,omitempty"`
	TargetTags        []string               `json:"targetTags,omitempty"`
	CreationTimestamp string                 `json:"creationTimestamp"`
}

func firewallToResource(rule *models.FirewallRule) *firewallResource {
	resource := &firewallResource{
		Kind:              "compute#firewall",
		ID:                rule.ID,
		Name:              rule.Name,
		Network:           rule.NetworkID,
		Priority:          rule.Priority,
		Direction:         rule.Direction,
		SourceRanges:      rule.SourceRanges,
		DestinationRanges: rule.DestRanges,
		SourceTags:        rule.SourceTags,
		TargetTags:        rule.TargetTags,
		CreationTimestamp: formatTime(rule.CreatedAt),
	}

	if rule.Action == "DENY" {
		resource.Denied = rule.ProtocolEntries
	} else {
		resource.Allowed = rule.ProtocolEntries
	}

	return resource
}

type routeResource struct {
	Kind              string   `json:"kind"`
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Network           string   `json:"network"`
	DestRange         string   `json:"destRange"`
	Priority          int      `json:"priority"`
	NextHopType       string   `json:"nextHopType"`
	NextHop           string   `json:"nextHop"`
	Tags              []string `json:"tags,omitempty"`
	CreationTimestamp string   `json:"creationTimestamp"`
}

func routeToResource(route *models.Route) *routeResource {
	return &routeResource{
		Kind:              "compute#route",
		ID:                route.ID,
		Name:              route.Name,
		Network:           route.NetworkID,
		DestRange:         route.DestRange,
		Priority:          route.Priority,
		NextHopType:       route.NextHopType,
		NextHop:           route.NextHop,
		Tags:              route.Tags,
		CreationTimestamp: formatTime(route.CreatedAt),
	}
}

type addressResource struct {
	Kind              string `json:"kind"`
	ID                string `json:"id"`
	Name              string `json:"name,omitempty"`
	Address           string `json:"address"`
	AddressType       string `json:"addressType"`
	Status            string `json:"status"`
	Region            string `json:"region"`
	NetworkTier       string `json:"networkTier"`
	Users             []string `json:"users,omitempty"`
	CreationTimestamp string `json:"creationTimestamp"`
}

func addressToResource(address *models.Address) *addressResource {
	resource := &addressResource{
		Kind:              "compute#address",
		ID:                address.ID,
		Address:           address.IP,
		AddressType:       address.Type,
		Status:            string(address.Status),
		Region:            address.Region,
		NetworkTier:       address.NetworkTier,
		CreationTimestamp: formatTime(address.CreatedAt),
	}

	if address.Name != nil {
		resource.Name = *address.Name
	}

	if address.UserInstanceID != nil {
		resource.Users = []string{*address.UserInstanceID}
	}

	return resource
}

type routerResource struct {
	Kind              string `json:"kind"`
	ID                string `json:"id"`
	Name              string `json:"name"`
	Network           string `json:"network"`
	Region            string `json:"region"`
	BGP               bgpResource `json:"bgp"`
	CreationTimestamp string `json:"creationTimestamp"`
}

type bgpResource struct {
	ASN               int64 `json:"asn"`
	KeepaliveInterval int   `json:"keepaliveInterval"`
}

func routerToResource(router *models.Router) *routerResource {
	return &routerResource{
		Kind:    "compute#router",
		ID:      router.ID,
		Name:    router.Name,
		Network: router.NetworkID,
		Region:  router.Region,
		BGP: bgpResource{
			ASN:               router.BGPASN,
			KeepaliveInterval: router.KeepaliveSec,
		},
		CreationTimestamp: formatTime(router.CreatedAt),
	}
}

type vpnTunnelResource struct {
	Kind              string `json:"kind"`
	ID                string `json:"id"`
	Name              string `json:"name"`
	Region            string `json:"region"`
	PeerIP            string `json:"peerIp"`
	GatewayIP         string `json:"gatewayIp"`
	Status            string `json:"status"`
	CreationTimestamp string `json:"creationTimestamp"`
}

func vpnTunnelToResource(tunnel *models.VPNTunnel) *vpnTunnelResource {
	return &vpnTunnelResource{
		Kind:              "compute#vpnTunnel",
		ID:                tunnel.ID,
		Name:              tunnel.Name,
		Region:            tunnel.Region,
		PeerIP:            tunnel.PeerIP,
		GatewayIP:         tunnel.GatewayIP,
		Status:            tunnel.Status,
		CreationTimestamp: formatTime(tunnel.CreatedAt),
	}
}

type projectResource struct {
	Kind          string `json:"kind"`
	ProjectID     string `json:"projectId"`
	ProjectNumber string `json:"projectNumber"`
	DisplayName   string `json:"displayName"`
	CreateTime    string `json:"createTime"`
}

func projectToResource(p *models.Project) *projectResource {
	return &projectResource{
		Kind:          "cumulus#project",
		ProjectID:     p.ID,
		ProjectNumber: formatInt64(p.ProjectNumber),
		DisplayName:   p.DisplayName,
		CreateTime:    formatTime(p.CreatedAt),
	}
}

type serviceAccountResource struct {
	Name        string `json:"name"`
	ProjectID   string `json:"projectId"`
	UniqueID    string `json:"uniqueId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
	Disabled    bool   `json:"disabled"`
}

func serviceAccountToResource(account *models.ServiceAccount) *serviceAccountResource {
	return &serviceAccountResource{
		Name:        fmt.Sprintf("projects/%s/serviceAccounts/%s", account.ProjectID, account.Email),
		ProjectID:   account.ProjectID,
		UniqueID:    account.UniqueID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
		Disabled:    account.Disabled,
	}
}

type serviceAccountKeyResource struct {
	Name            string `json:"name"`
	PrivateKeyData  string `json:"privateKeyData,omitempty"`
	KeyAlgorithm    string `json:"keyAlgorithm"`
	ValidAfterTime  string `json:"validAfterTime"`
	ValidBeforeTime string `json:"validBeforeTime"`
	Disabled        bool   `json:"disabled"`
}

func serviceAccountKeyToResource(key *models.ServiceAccountKey, includePrivate bool) *serviceAccountKeyResource {
	resource := &serviceAccountKeyResource{
		Name:            fmt.Sprintf("serviceAccounts/%s/keys/%s", key.ServiceAccountEmail, key.ID),
		KeyAlgorithm:    key.KeyAlgorithm,
		ValidAfterTime:  formatTime(key.ValidAfter),
		ValidBeforeTime: formatTime(key.ValidBefore),
		Disabled:        key.Disabled,
	}

	if includePrivate {
		resource.PrivateKeyData = key.PrivateKeyData
	}

	return resource
}

type policyResource struct {
	Version  int             `json:"version"`
	Etag     string          `json:"etag"`
	Bindings models.Bindings `json:"bindings"`
}

func policyToResource(policy *models.IamPolicy) *policyResource {
	return &policyResource{
		Version:  policy.Version,
		Etag:     policy.Etag,
		Bindings: policy.Bindings,
	}
}
