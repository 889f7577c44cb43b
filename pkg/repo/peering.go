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

// PeeringRepo stores peering edges.  The graph is edges in the relational
// store, in-memory projections are derived views only.
type PeeringRepo struct {
	q Queryer
}

func (r *PeeringRepo) Create(ctx context.Context, peering *models.VPCPeering) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO vpc_peerings (id, network_id, name, peer_network_id, state,
			auto_create_routes, exchange_subnet_routes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		peering.ID, peering.NetworkID, peering.Name, peering.PeerNetworkID, peering.State,
		peering.AutoCreateRoutes, peering.ExchangeSubnetRoutes, peering.CreatedAt)

	return translate(err)
}

func (r *PeeringRepo) GetByName(ctx context.Context, networkID, name string) (*models.VPCPeering, error) {
	var peering models.VPCPeering

	if err := sqlx.GetContext(ctx, r.q, &peering,
		`SELECT * FROM vpc_peerings WHERE network_id = ? AND name = ?`, networkID, name); err != nil {
		return nil, translate(err)
	}

	return &peering, nil
}

func (r *PeeringRepo) ListByNetwork(ctx context.Context, networkID string) ([]models.VPCPeering, error) {
	var peerings []models.VPCPeering

	if err := sqlx.SelectContext(ctx, r.q, &peerings,
		`SELECT * FROM vpc_peerings WHERE network_id = ? ORDER BY name`, networkID); err != nil {
		return nil, translate(err)
	}

	return peerings, nil
}

func (r *PeeringRepo) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM vpc_peerings WHERE id = ?`, id)
	if err != nil {
		return translate(err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}
