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

// AddressRepo stores reserved external IP addresses.
type AddressRepo struct {
	q Queryer
}

func (r *AddressRepo) Create(ctx context.Context, address *models.Address) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO addresses (id, project_id, region, name, ip, type, status, network_tier, user_instance_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		address.ID, address.ProjectID, address.Region, address.Name, address.IP, address.Type,
		address.Status, address.NetworkTier, address.UserInstanceID, address.CreatedAt)

	return translate(err)
}

func (r *AddressRepo) Get(ctx context.Context, id string) (*models.Address, error) {
	var address models.Address

	if err := sqlx.GetContext(ctx, r.q, &address, `SELECT * FROM addresses WHERE id = ?`, id); err != nil {
		return nil, translate(err)
	}

	return &address, nil
}

func (r *AddressRepo) GetByName(ctx context.Context, projectID, region, name string) (*models.Address, error) {
	var address models.Address

	if err := sqlx.GetContext(ctx, r.q, &address,
		`SELECT * FROM addresses WHERE project_id = ? AND region = ? AND name = ?`,
		projectID, region, name); err != nil {
		return nil, translate(err)
	}

	return &address, nil
}

// IPInUse tells you whether an IP is recorded, reserved or bound.
func (r *AddressRepo) IPInUse(ctx context.Context, ip string) (bool, error) {
	var count int64

	if err := sqlx.GetContext(ctx, r.q, &count, `SELECT COUNT(*) FROM addresses WHERE ip = ?`, ip); err != nil {
		return false, translate(err)
	}

	return count > 0, nil
}

func (r *AddressRepo) List(ctx context.Context, projectID, region string) ([]models.Address, error) {
	var addresses []models.Address

	if err := sqlx.SelectContext(ctx, r.q, &addresses,
		`SELECT * FROM addresses WHERE project_id = ? AND region = ? ORDER BY created_at`,
		projectID, region); err != nil {
		return nil, translate(err)
	}

	return addresses, nil
}

func (r *AddressRepo) Update(ctx context.Context, address *models.Address) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE addresses SET status = ?, user_instance_id = ? WHERE id = ?`,
		address.Status, address.UserInstanceID, address.ID)
	if err != nil {
		return translate(err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *AddressRepo) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM addresses WHERE id = ?`, id)
	if err != nil {
		return translate(err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}
