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

// InstanceRepo stores instances and their network interfaces.
type InstanceRepo struct {
	q Queryer
}

func (r *InstanceRepo) Create(ctx context.Context, instance *models.Instance) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO instances (id, project_id, name, zone, machine_type, status, container_handle,
			internal_ip, external_ip, network_id, subnet_id, metadata, labels, tags, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		instance.ID, instance.ProjectID, instance.Name, instance.Zone, instance.MachineType,
		instance.Status, instance.ContainerHandle, instance.InternalIP, instance.ExternalIP,
		instance.NetworkID, instance.SubnetID, instance.Metadata, instance.Labels, instance.Tags,
		instance.CreatedAt, instance.UpdatedAt)

	return translate(err)
}

func (r *InstanceRepo) Get(ctx context.Context, id string) (*models.Instance, error) {
	var instance models.Instance

	if err := sqlx.GetContext(ctx, r.q, &instance, `SELECT * FROM instances WHERE id = ?`, id); err != nil {
		return nil, translate(err)
	}

	return &instance, nil
}

func (r *InstanceRepo) GetByName(ctx context.Context, projectID, zone, name string) (*models.Instance, error) {
	var instance models.Instance

	if err := sqlx.GetContext(ctx, r.q, &instance,
		`SELECT * FROM instances WHERE project_id = ? AND zone = ? AND name = ?`,
		projectID, zone, name); err != nil {
		return nil, translate(err)
	}

	return &instance, nil
}

func (r *InstanceRepo) List(ctx context.Context, projectID, zone string) ([]models.Instance, error) {
	var instances []models.Instance

	if zone == "" {
		if err := sqlx.SelectContext(ctx, r.q, &instances,
			`SELECT * FROM instances WHERE project_id = ? ORDER BY zone, name`, projectID); err != nil {
			return nil, translate(err)
		}

		return instances, nil
	}

	if err := sqlx.SelectContext(ctx, r.q, &instances,
		`SELECT * FROM instances WHERE project_id = ? AND zone = ? ORDER BY name`, projectID, zone); err != nil {
		return nil, translate(err)
	}

	return instances, nil
}

// ListActive returns instances the reconciler cares about, everything not
// yet terminated.
func (r *InstanceRepo) ListActive(ctx context.Context) ([]models.Instance, error) {
	var instances []models.Instance

	if err := sqlx.SelectContext(ctx, r.q, &instances,
		`SELECT * FROM instances WHERE status != ? ORDER BY created_at`, models.InstanceTerminated); err != nil {
		return nil, translate(err)
	}

	return instances, nil
}

func (r *InstanceRepo) Update(ctx context.Context, instance *models.Instance) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE instances SET status = ?, container_handle = ?, internal_ip = ?, external_ip = ?,
			network_id = ?, subnet_id = ?, metadata = ?, labels = ?, tags = ?, updated_at = ?
		 WHERE id = ?`,
		instance.Status, instance.ContainerHandle, instance.InternalIP, instance.ExternalIP,
		instance.NetworkID, instance.SubnetID, instance.Metadata, instance.Labels, instance.Tags,
		instance.UpdatedAt, instance.ID)
	if err != nil {
		return translate(err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}
