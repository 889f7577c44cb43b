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

// Package models defines the persisted entities.  These map 1:1 onto the
// database schema, the wire shapes live with the handlers.
package models

import (
	"time"
)

// Project is the root of ownership for all other resources.
type Project struct {
	ID            string    `db:"id"`
	DisplayName   string    `db:"display_name"`
	ProjectNumber int64     `db:"project_number"`
	CreatedAt     time.Time `db:"created_at"`
}

// BucketACL is the coarse bucket/object ACL model.
type BucketACL string

const (
	ACLPrivate    BucketACL = "private"
	ACLPublicRead BucketACL = "publicRead"
)

// Bucket is an object storage bucket.  Names are globally unique and
// immutable.
type Bucket struct {
	ID                  string              `db:"id"`
	ProjectID           string              `db:"project_id"`
	Name                string              `db:"name"`
	Location            string              `db:"location"`
	StorageClass        string              `db:"storage_class"`
	VersioningEnabled   bool                `db:"versioning_enabled"`
	ACL                 BucketACL           `db:"acl"`
	Labels              StringMap           `db:"labels"`
	LifecycleConfig     LifecycleRules      `db:"lifecycle_config"`
	NotificationConfigs NotificationConfigs `db:"notification_configs"`
	CORSConfig          CORSRules           `db:"cors_config"`
	CreatedAt           time.Time           `db:"created_at"`
	UpdatedAt           time.Time           `db:"updated_at"`
}

// Object is the head record for a (bucket, name) pair.  At most one row per
// pair, the isLatest/deleted flags say whether a current object exists.
type Object struct {
	ID             string    `db:"id"`
	BucketID       string    `db:"bucket_id"`
	Name           string    `db:"name"`
	Generation     int64     `db:"generation"`
	Metageneration int64     `db:"metageneration"`
	Size           int64     `db:"size"`
	ContentType    string    `db:"content_type"`
	MD5            string    `db:"md5"`
	CRC32C         string    `db:"crc32c"`
	StorageClass   string    `db:"storage_class"`
	ACL            BucketACL `db:"acl"`
	FilePath       string    `db:"file_path"`
	IsLatest       bool      `db:"is_latest"`
	Deleted        bool      `db:"deleted"`
	TimeCreated    time.Time `db:"time_created"`
	UpdatedAt      time.Time `db:"updated_at"`
	CustomMetadata StringMap `db:"custom_metadata"`
}

// ObjectVersion is one immutable generation of an object.
type ObjectVersion struct {
	ID             string    `db:"id"`
	BucketID       string    `db:"bucket_id"`
	ObjectID       string    `db:"object_id"`
	Name           string    `db:"name"`
	Generation     int64     `db:"generation"`
	Metageneration int64     `db:"metageneration"`
	Size           int64     `db:"size"`
	ContentType    string    `db:"content_type"`
	MD5            string    `db:"md5"`
	CRC32C         string    `db:"crc32c"`
	StorageClass   string    `db:"storage_class"`
	FilePath       string    `db:"file_path"`
	CreatedAt      time.Time `db:"created_at"`
	Deleted        bool      `db:"deleted"`
	CustomMetadata StringMap `db:"custom_metadata"`
}

// ResumableSession accumulates chunks for a single upload.
type ResumableSession struct {
	SessionID     string    `db:"session_id"`
	BucketID      string    `db:"bucket_id"`
	ObjectName    string    `db:"object_name"`
	MetadataJSON  string    `db:"metadata_json"`
	CurrentOffset int64     `db:"current_offset"`
	TotalSize     *int64    `db:"total_size"`
	TempPath      string    `db:"temp_path"`
	CreatedAt     time.Time `db:"created_at"`
}

// EventType enumerates object change events.
type EventType string

const (
	EventFinalize       EventType = "OBJECT_FINALIZE"
	EventDelete         EventType = "OBJECT_DELETE"
	EventMetadataUpdate EventType = "OBJECT_METADATA_UPDATE"
)

// ObjectEvent is a change record enqueued on object mutations.
type ObjectEvent struct {
	EventID    string    `db:"event_id"`
	BucketName string    `db:"bucket_name"`
	ObjectName string    `db:"object_name"`
	Generation int64     `db:"generation"`
	EventType  EventType `db:"event_type"`
	Payload    string    `db:"payload"`
	Delivered  bool      `db:"delivered"`
	CreatedAt  time.Time `db:"created_at"`
}

// InstanceStatus is the instance lifecycle state.
type InstanceStatus string

const (
	InstanceProvisioning InstanceStatus = "PROVISIONING"
	InstanceRunning      InstanceStatus = "RUNNING"
	InstanceStopping     InstanceStatus = "STOPPING"
	InstanceStopped      InstanceStatus = "STOPPED"
	InstanceTerminated   InstanceStatus = "TERMINATED"
)

// Instance is a VM instance backed by a container.
type Instance struct {
	ID              string         `db:"id"`
	ProjectID       string         `db:"project_id"`
	Name            string         `db:"name"`
	Zone            string         `db:"zone"`
	MachineType     string         `db:"machine_type"`
	Status          InstanceStatus `db:"status"`
	ContainerHandle string         `db:"container_handle"`
	InternalIP      string         `db:"internal_ip"`
	ExternalIP      *string        `db:"external_ip"`
	NetworkID       string         `db:"network_id"`
	SubnetID        string         `db:"subnet_id"`
	Metadata        StringMap      `db:"metadata"`
	Labels          StringMap      `db:"labels"`
	Tags            StringList     `db:"tags"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

// Network is a VPC network.
type Network struct {
	ID                string    `db:"id"`
	ProjectID         string    `db:"project_id"`
	Name              string    `db:"name"`
	AutoCreateSubnets bool      `db:"auto_create_subnets"`
	RoutingMode       string    `db:"routing_mode"`
	MTU               int       `db:"mtu"`
	CreatedAt         time.Time `db:"created_at"`
}

// Subnetwork is a regional CIDR carved out of a network.
type Subnetwork struct {
	ID                  string    `db:"id"`
	NetworkID           string    `db:"network_id"`
	Name                string    `db:"name"`
	Region              string    `db:"region"`
	CIDR                string    `db:"cidr"`
	GatewayIP           string    `db:"gateway_ip"`
	PrivateGoogleAccess bool      `db:"private_google_access"`
	NextIPIndex         int64     `db:"next_ip_index"`
	CreatedAt           time.Time `db:"created_at"`
}

// NetworkInterface attaches an instance to a subnet.  nic0 always exists and
// cannot be detached.
type NetworkInterface struct {
	ID         string    `db:"id"`
	InstanceID string    `db:"instance_id"`
	NetworkID  string    `db:"network_id"`
	SubnetID   string    `db:"subnet_id"`
	Name       string    `db:"name"`
	InternalIP string    `db:"internal_ip"`
	NICIndex   int       `db:"nic_index"`
	CreatedAt  time.Time `db:"created_at"`
}

// AddressStatus is the static IP lifecycle state.
type AddressStatus string

const (
	AddressReserved AddressStatus = "RESERVED"
	AddressInUse    AddressStatus = "IN_USE"
)

// Address is a reserved external IP.  Ephemeral IPs are never persisted.
type Address struct {
	ID             string        `db:"id"`
	ProjectID      string        `db:"project_id"`
	Region         string        `db:"region"`
	Name           *string       `db:"name"`
	IP             string        `db:"ip"`
	Type           string        `db:"type"`
	Status         AddressStatus `db:"status"`
	NetworkTier    string        `db:"network_tier"`
	UserInstanceID *string       `db:"user_instance_id"`
	CreatedAt      time.Time     `db:"created_at"`
}

// FirewallRule is pure metadata, never enforced on packets.
type FirewallRule struct {
	ID              string          `db:"id"`
	NetworkID       string          `db:"network_id"`
	Name            string          `db:"name"`
	Priority        int             `db:"priority"`
	Direction       string          `db:"direction"`
	Action          string          `db:"action"`
	ProtocolEntries ProtocolEntries `db:"protocol_entries"`
	SourceRanges    StringList      `db:"source_ranges"`
	DestRanges      StringList      `db:"dest_ranges"`
	SourceTags      StringList      `db:"source_tags"`
	TargetTags      StringList      `db:"target_tags"`
	CreatedAt       time.Time       `db:"created_at"`
}

// Route is pure metadata.
type Route struct {
	ID          string     `db:"id"`
	NetworkID   string     `db:"network_id"`
	Name        string     `db:"name"`
	DestRange   string     `db:"dest_range"`
	Priority    int        `db:"priority"`
	NextHopType string     `db:"next_hop_type"`
	NextHop     string     `db:"next_hop"`
	Tags        StringList `db:"tags"`
	CreatedAt   time.Time  `db:"created_at"`
}

// VPCPeering is a directed peering edge between two networks.
type VPCPeering struct {
	ID                   string    `db:"id"`
	NetworkID            string    `db:"network_id"`
	Name                 string    `db:"name"`
	PeerNetworkID        string    `db:"peer_network_id"`
	State                string    `db:"state"`
	AutoCreateRoutes     bool      `db:"auto_create_routes"`
	ExchangeSubnetRoutes bool      `db:"exchange_subnet_routes"`
	CreatedAt            time.Time `db:"created_at"`
}

// Router is metadata only, no BGP sessions are ever established.
type Router struct {
	ID           string    `db:"id"`
	NetworkID    string    `db:"network_id"`
	Name         string    `db:"name"`
	Region       string    `db:"region"`
	BGPASN       int64     `db:"bgp_asn"`
	KeepaliveSec int       `db:"keepalive_sec"`
	CreatedAt    time.Time `db:"created_at"`
}

// VPNTunnel is metadata only with a synthesized gateway IP.
type VPNTunnel struct {
	ID        string    `db:"id"`
	NetworkID string    `db:"network_id"`
	Name      string    `db:"name"`
	Region    string    `db:"region"`
	PeerIP    string    `db:"peer_ip"`
	GatewayIP string    `db:"gateway_ip"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
}

// ServiceAccount is a project scoped robot identity.
type ServiceAccount struct {
	Email       string    `db:"email"`
	ProjectID   string    `db:"project_id"`
	DisplayName string    `db:"display_name"`
	UniqueID    string    `db:"unique_id"`
	Disabled    bool      `db:"disabled"`
	CreatedAt   time.Time `db:"created_at"`
}

// ServiceAccountKey carries synthetic key material, nothing is ever signed
// with it.
type ServiceAccountKey struct {
	ID                  string    `db:"id"`
	ServiceAccountEmail string    `db:"service_account_email"`
	PrivateKeyData      string    `db:"private_key_data"`
	KeyAlgorithm        string    `db:"key_algorithm"`
	ValidAfter          time.Time `db:"valid_after"`
	ValidBefore         time.Time `db:"valid_before"`
	Disabled            bool      `db:"disabled"`
}

// IamPolicy binds roles to members on a resource.  The etag is refreshed on
// every write for optimistic concurrency.
type IamPolicy struct {
	ResourceType string   `db:"resource_type"`
	ResourceID   string   `db:"resource_id"`
	Version      int      `db:"version"`
	Etag         string   `db:"etag"`
	Bindings     Bindings `db:"bindings"`
}
