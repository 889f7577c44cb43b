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

package repo

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/eschercloudai/cumulus/pkg/models"
)

// NetworkRepo stores VPC networks.
type NetworkRepo struct {
	q Queryer
}

func (r *NetworkRepo) Create(ctx context.Context, network *models.Network) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO networks (id, project_id, name, auto_create_subnets, routing_mode, mtu, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		network.ID, network.ProjectID, network.Name, network.AutoCreateSubnets,
		network.RoutingMode, network.MTU, network.CreatedAt)

	return translate(err)
}

func (r *NetworkRepo) Get(ctx context.Context, id string) (*models.Network, error) {
	var network models.Network

	if err := sqlx.GetContext(ctx, r.q, &network, `SELECT * FROM networks WHERE id = ?`, id); err != nil {
		return nil, translate(err)
	}

	return &network, nil
}

func (r *NetworkRepo) GetByName(ctx context.Context, projectID, name string) (*models.Network, error) {
	var network models.Network

	if err := sqlx.GetContext(ctx, r.q, &network,
		`SELECT * FROM networks WHERE project_id = ? AND name = ?`, projectID, name); err != nil {
		return nil, translate(err)
	}

	return &network, nil
}

func (r *NetworkRepo) List(ctx context.Context, projectID string) ([]models.Network, error) {
	var networks []models.Network

	if err := sqlx.SelectContext(ctx, r.q, &networks,
		`SELECT * FROM networks WHERE project_id = ? ORDER BY name`, projectID); err != nil {
		return nil, translate(err)
	}

	return networks, nil
}

func (r *NetworkRepo) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM networks WHERE id = ?`, id)
	if err != nil {
		return translate(err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}

// SubnetRepo stores subnetworks.
type SubnetRepo struct {
	q Queryer
}

func (r *SubnetRepo) Create(ctx context.Context, subnet *models.Subnetwork) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO subnetworks (id, network_id, name, region, cidr, gateway_ip,
			private_google_access, next_ip_index, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subnet.ID, subnet.NetworkID, subnet.Name, subnet.Region, subnet.CIDR, subnet.GatewayIP,
		subnet.PrivateGoogleAccess, subnet.NextIPIndex, subnet.CreatedAt)

	return translate(err)
}

func (r *SubnetRepo) Get(ctx context.Context, id string) (*models.Subnetwork, error) {
	var subnet models.Subnetwork

	if err := sqlx.GetContext(ctx, r.q, &subnet, `SELECT * FROM subnetworks WHERE id = ?`, id); err != nil {
		return nil, translate(err)
	}

	return &subnet, nil
}

func (r *SubnetRepo) GetByName(ctx context.Context, networkID, name string) (*models.Subnetwork, error) {
	var subnet models.Subnetwork

	if err := sqlx.GetContext(ctx, r.q, &subnet,
		`SELECT * FROM subnetworks WHERE network_id = ? AND name = ?`, networkID, name); err != nil {
		return nil, translate(err)
	}

	return &subnet, nil
}

// GetByRegion returns the subnet of a network in a region, used for default
// NIC placement.
func (r *SubnetRepo) GetByRegion(ctx context.Context, networkID, region string) (*models.Subnetwork, error) {
	var subnet models.Subnetwork

	if err := sqlx.GetContext(ctx, r.q, &subnet,
		`SELECT * FROM subnetworks WHERE network_id = ? AND region = ? ORDER BY created_at LIMIT 1`,
		networkID, region); err != nil {
		return nil, translate(err)
	}

	return &subnet, nil
}

func (r *SubnetRepo) ListByNetwork(ctx context.Context, networkID string) ([]models.Subnetwork, error) {
	var subnets []models.Subnetwork

	if err := sqlx.SelectContext(ctx, r.q, &subnets,
		`SELECT * FROM subnetworks WHERE network_id = ? ORDER BY name`, networkID); err != nil {
		return nil, translate(err)
	}

	return subnets, nil
}

func (r *SubnetRepo) ListByRegion(ctx context.Context, region string) ([]models.Subnetwork, error) {
	var subnets []models.Subnetwork

	if err := sqlx.SelectContext(ctx, r.q, &subnets,
		`SELECT * FROM subnetworks WHERE region = ? ORDER BY name`, region); err != nil {
		return nil, translate(err)
	}

	return subnets, nil
}

// UpdateNextIPIndex persists the allocation cursor.
func (r *SubnetRepo) UpdateNextIPIndex(ctx context.Context, id string, index int64) error {
	_, err := r.q.ExecContext(ctx, `UPDATE subnetworks SET next_ip_index = ? WHERE id = ?`, index, id)

	return translate(err)
}

func (r *SubnetRepo) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM subnetworks WHERE id = ?`, id)
	if err != nil {
		return translate(err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}

// NICRepo stores network interfaces.
type NICRepo struct {
	q Queryer
}

func (r *NICRepo) Create(ctx context.Context, nic *models.NetworkInterface) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO network_interfaces (id, instance_id, network_id, subnet_id, name, internal_ip, nic_index, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nic.ID, nic.InstanceID, nic.NetworkID, nic.SubnetID, nic.Name, nic.InternalIP,
		nic.NICIndex, nic.CreatedAt)

	return translate(err)
}

func (r *NICRepo) ListByInstance(ctx context.Context, instanceID string) ([]models.NetworkInterface, error) {
	var nics []models.NetworkInterface

	if err := sqlx.SelectContext(ctx, r.q, &nics,
		`SELECT * FROM network_interfaces WHERE instance_id = ? ORDER BY nic_index`, instanceID); err != nil {
		return nil, translate(err)
	}

	return nics, nil
}

// ListIPsBySubnet returns every internal IP currently allocated in a subnet.
func (r *NICRepo) ListIPsBySubnet(ctx context.Context, subnetID string) ([]string, error) {
	var ips []string

	if err := sqlx.SelectContext(ctx, r.q, &ips,
		`SELECT internal_ip FROM network_interfaces WHERE subnet_id = ?`, subnetID); err != nil {
		return nil, translate(err)
	}

	return ips, nil
}

// CountBySubnet counts NICs placed in a subnet, used to refuse subnet
// deletion while in use.
func (r *NICRepo) CountBySubnet(ctx context.Context, subnetID string) (int64, error) {
	var count int64

	if err := sqlx.GetContext(ctx, r.q, &count,
		`SELECT COUNT(*) FROM network_interfaces WHERE subnet_id = ?`, subnetID); err != nil {
		return 0, translate(err)
	}

	return count, nil
}

func (r *NICRepo) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM network_interfaces WHERE id = ?`, id)
	if err != nil {
		return translate(err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *NICRepo) DeleteByInstance(ctx context.Context, instanceID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM network_interfaces WHERE instance_id = ?`, instanceID)

	return translate(err)
}
