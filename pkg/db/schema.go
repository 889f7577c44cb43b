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

package db

// schema is the whole data model.  Idempotent, applied on every startup.
const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id             TEXT PRIMARY KEY,
	display_name   TEXT NOT NULL,
	project_number INTEGER NOT NULL,
	created_at     TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS buckets (
	id                   TEXT PRIMARY KEY,
	project_id           TEXT NOT NULL REFERENCES projects(id),
	name                 TEXT NOT NULL UNIQUE,
	location             TEXT NOT NULL,
	storage_class        TEXT NOT NULL,
	versioning_enabled   INTEGER NOT NULL DEFAULT 0,
	acl                  TEXT NOT NULL DEFAULT 'private',
	labels               TEXT NOT NULL DEFAULT '{}',
	lifecycle_config     TEXT NOT NULL DEFAULT '[]',
	notification_configs TEXT NOT NULL DEFAULT '[]',
	cors_config          TEXT NOT NULL DEFAULT '[]',
	created_at           TIMESTAMP NOT NULL,
	updated_at           TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS objects (
	id              TEXT PRIMARY KEY,
	bucket_id       TEXT NOT NULL REFERENCES buckets(id),
	name            TEXT NOT NULL,
	generation      INTEGER NOT NULL,
	metageneration  INTEGER NOT NULL,
	size            INTEGER NOT NULL,
	content_type    TEXT NOT NULL,
	md5             TEXT NOT NULL,
	crc32c          TEXT NOT NULL,
	storage_class   TEXT NOT NULL,
	acl             TEXT NOT NULL DEFAULT 'private',
	file_path       TEXT NOT NULL,
	is_latest       INTEGER NOT NULL,
	deleted         INTEGER NOT NULL DEFAULT 0,
	time_created    TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL,
	custom_metadata TEXT NOT NULL DEFAULT '{}',
	UNIQUE (bucket_id, name)
);

CREATE INDEX IF NOT EXISTS idx_objects_bucket_name ON objects (bucket_id, name);

CREATE TABLE IF NOT EXISTS object_versions (
	id              TEXT PRIMARY KEY,
	bucket_id       TEXT NOT NULL REFERENCES buckets(id),
	object_id       TEXT NOT NULL,
	name            TEXT NOT NULL,
	generation      INTEGER NOT NULL,
	metageneration  INTEGER NOT NULL,
	size            INTEGER NOT NULL,
	content_type    TEXT NOT NULL,
	md5             TEXT NOT NULL,
	crc32c          TEXT NOT NULL,
	storage_class   TEXT NOT NULL,
	file_path       TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL,
	deleted         INTEGER NOT NULL DEFAULT 0,
	custom_metadata TEXT NOT NULL DEFAULT '{}',
	UNIQUE (bucket_id, name, generation)
);

CREATE INDEX IF NOT EXISTS idx_versions_bucket_name ON object_versions (bucket_id, name, generation);

CREATE TABLE IF NOT EXISTS resumable_sessions (
	session_id     TEXT PRIMARY KEY,
	bucket_id      TEXT NOT NULL REFERENCES buckets(id),
	object_name    TEXT NOT NULL,
	metadata_json  TEXT NOT NULL DEFAULT '{}',
	current_offset INTEGER NOT NULL DEFAULT 0,
	total_size     INTEGER,
	temp_path      TEXT NOT NULL,
	created_at     TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS object_events (
	event_id    TEXT PRIMARY KEY,
	bucket_name TEXT NOT NULL,
	object_name TEXT NOT NULL,
	generation  INTEGER NOT NULL,
	event_type  TEXT NOT NULL,
	payload     TEXT NOT NULL,
	delivered   INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS instances (
	id               TEXT PRIMARY KEY,
	project_id       TEXT NOT NULL REFERENCES projects(id),
	name             TEXT NOT NULL,
	zone             TEXT NOT NULL,
	machine_type     TEXT NOT NULL,
	status           TEXT NOT NULL,
	container_handle TEXT NOT NULL DEFAULT '',
	internal_ip      TEXT NOT NULL DEFAULT '',
	external_ip      TEXT,
	network_id       TEXT NOT NULL DEFAULT '',
	subnet_id        TEXT NOT NULL DEFAULT '',
	metadata         TEXT NOT NULL DEFAULT '{}',
	labels           TEXT NOT NULL DEFAULT '{}',
	tags             TEXT NOT NULL DEFAULT '[]',
	created_at       TIMESTAMP NOT NULL,
	updated_at       TIMESTAMP NOT NULL,
	UNIQUE (project_id, zone, name)
);

CREATE TABLE IF NOT EXISTS networks (
	id                  TEXT PRIMARY KEY,
	project_id          TEXT NOT NULL REFERENCES projects(id),
	name                TEXT NOT NULL,
	auto_create_subnets INTEGER NOT NULL DEFAULT 0,
	routing_mode        TEXT NOT NULL DEFAULT 'REGIONAL',
	mtu                 INTEGER NOT NULL DEFAULT 1460,
	created_at          TIMESTAMP NOT NULL,
	UNIQUE (project_id, name)
);

CREATE TABLE IF NOT EXISTS subnetworks (
	id                    TEXT PRIMARY KEY,
	network_id            TEXT NOT NULL REFERENCES networks(id),
	name                  TEXT NOT NULL,
	region                TEXT NOT NULL,
	cidr                  TEXT NOT NULL,
	gateway_ip            TEXT NOT NULL,
	private_google_access INTEGER NOT NULL DEFAULT 0,
	next_ip_index         INTEGER NOT NULL DEFAULT 2,
	created_at            TIMESTAMP NOT NULL,
	UNIQUE (network_id, name)
);

CREATE TABLE IF NOT EXISTS network_interfaces (
	id          TEXT PRIMARY KEY,
	instance_id TEXT NOT NULL REFERENCES instances(id),
	network_id  TEXT NOT NULL,
	subnet_id   TEXT NOT NULL,
	name        TEXT NOT NULL,
	internal_ip TEXT NOT NULL,
	nic_index   INTEGER NOT NULL,
	created_at  TIMESTAMP NOT NULL,
	UNIQUE (instance_id, nic_index)
);

CREATE INDEX IF NOT EXISTS idx_nics_subnet ON network_interfaces (subnet_id);

CREATE TABLE IF NOT EXISTS addresses (
	id               TEXT PRIMARY KEY,
	project_id       TEXT NOT NULL REFERENCES projects(id),
	region           TEXT NOT NULL,
	name             TEXT,
	ip               TEXT NOT NULL UNIQUE,
	type             TEXT NOT NULL DEFAULT 'EXTERNAL',
	status           TEXT NOT NULL DEFAULT 'RESERVED',
	network_tier     TEXT NOT NULL DEFAULT 'PREMIUM',
	user_instance_id TEXT,
	created_at       TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS firewall_rules (
	id               TEXT PRIMARY KEY,
	network_id       TEXT NOT NULL REFERENCES networks(id),
	name             TEXT NOT NULL,
	priority         INTEGER NOT NULL DEFAULT 1000,
	direction        TEXT NOT NULL,
	action           TEXT NOT NULL,
	protocol_entries TEXT NOT NULL DEFAULT '[]',
	source_ranges    TEXT NOT NULL DEFAULT '[]',
	dest_ranges      TEXT NOT NULL DEFAULT '[]',
	source_tags      TEXT NOT NULL DEFAULT '[]',
	target_tags      TEXT NOT NULL DEFAULT '[]',
	created_at       TIMESTAMP NOT NULL,
	UNIQUE (network_id, name)
);

CREATE TABLE IF NOT EXISTS routes (
	id         TEXT PRIMARY KEY,
	network_id TEXT NOT NULL REFERENCES networks(id),
	name       TEXT NOT NULL,
	dest_range TEXT NOT NULL,
	priority   INTEGER NOT NULL DEFAULT 1000,
	next_hop_type TEXT NOT NULL,
	next_hop   TEXT NOT NULL DEFAULT '',
	tags       TEXT NOT NULL DEFAULT '[]',
	created_at TIMESTAMP NOT NULL,
	UNIQUE (network_id, name)
);

CREATE TABLE IF NOT EXISTS vpc_peerings (
	id                     TEXT PRIMARY KEY,
	network_id             TEXT NOT NULL REFERENCES networks(id),
	name                   TEXT NOT NULL,
	peer_network_id        TEXT NOT NULL REFERENCES networks(id),
	state                  TEXT NOT NULL DEFAULT 'ACTIVE',
	auto_create_routes     INTEGER NOT NULL DEFAULT 1,
	exchange_subnet_routes INTEGER NOT NULL DEFAULT 1,
	created_at             TIMESTAMP NOT NULL,
	UNIQUE (network_id, name),
	UNIQUE (network_id, peer_network_id)
);

CREATE TABLE IF NOT EXISTS routers (
	id            TEXT PRIMARY KEY,
	network_id    TEXT NOT NULL REFERENCES networks(id),
	name          TEXT NOT NULL,
	region        TEXT NOT NULL,
	bgp_asn       INTEGER NOT NULL,
	keepalive_sec INTEGER NOT NULL DEFAULT 20,
	created_at    TIMESTAMP NOT NULL,
	UNIQUE (network_id, name)
);

CREATE TABLE IF NOT EXISTS vpn_tunnels (
	id         TEXT PRIMARY KEY,
	network_id TEXT NOT NULL REFERENCES networks(id),
	name       TEXT NOT NULL,
	region     TEXT NOT NULL,
	peer_ip    TEXT NOT NULL,
	gateway_ip TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'ESTABLISHED',
	created_at TIMESTAMP NOT NULL,
	UNIQUE (network_id, name)
);

CREATE TABLE IF NOT EXISTS service_accounts (
	email        TEXT PRIMARY KEY,
	project_id   TEXT NOT NULL REFERENCES projects(id),
	display_name TEXT NOT NULL DEFAULT '',
	unique_id    TEXT NOT NULL,
	disabled     INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS service_account_keys (
	id                    TEXT PRIMARY KEY,
	service_account_email TEXT NOT NULL REFERENCES service_accounts(email),
	private_key_data      TEXT NOT NULL,
	key_algorithm         TEXT NOT NULL DEFAULT 'KEY_ALG_RSA_2048',
	valid_after           TIMESTAMP NOT NULL,
	valid_before          TIMESTAMP NOT NULL,
	disabled              INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS iam_policies (
	resource_type TEXT NOT NULL,
	resource_id   TEXT NOT NULL,
	version       INTEGER NOT NULL DEFAULT 1,
	etag          TEXT NOT NULL,
	bindings      TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (resource_type, resource_id)
);
`
