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

// ProjectRepo stores projects.
type ProjectRepo struct {
	q Queryer
}

func (r *ProjectRepo) Create(ctx context.Context, project *models.Project) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO projects (id, display_name, project_number, created_at) VALUES (?, ?, ?, ?)`,
		project.ID, project.DisplayName, project.ProjectNumber, project.CreatedAt)

	return translate(err)
}

func (r *ProjectRepo) Get(ctx context.Context, id string) (*models.Project, error) {
	var project models.Project

	if err := sqlx.GetContext(ctx, r.q, &project, `SELECT * FROM projects WHERE id = ?`, id); err != nil {
		return nil, translate(err)
	}

	return &project, nil
}

func (r *ProjectRepo) List(ctx context.Context) ([]models.Project, error) {
	var projects []models.Project

	if err := sqlx.SelectContext(ctx, r.q, &projects, `SELECT * FROM projects ORDER BY id`); err != nil {
		return nil, translate(err)
	}

	return projects, nil
}

func (r *ProjectRepo) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return translate(err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}

// NextNumber allocates a monotonic project number.
func (r *ProjectRepo) NextNumber(ctx context.Context) (int64, error) {
	var max int64

	if err := sqlx.GetContext(ctx, r.q, &max, `SELECT COALESCE(MAX(project_number), 0) FROM projects`); err != nil {
		return 0, translate(err)
	}

	return max + 1, nil
}
