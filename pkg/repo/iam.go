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

// ServiceAccountRepo stores service accounts and their keys.
type ServiceAccountRepo struct {
	q Queryer
}

func (r *ServiceAccountRepo) Create(ctx context.Context, account *models.ServiceAccount) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO service_accounts (email, project_id, display_name, unique_id, disabled, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		account.Email, account.ProjectID, account.DisplayName, account.UniqueID,
		account.Disabled, account.CreatedAt)

	return translate(err)
}

func (r *ServiceAccountRepo) Get(ctx context.Context, email string) (*models.ServiceAccount, error) {
	var account models.ServiceAccount

	if err := sqlx.GetContext(ctx, r.q, &account,
		`SELECT * FROM service_accounts WHERE email = ?`, email); err != nil {
		return nil, translate(err)
	}

	return &account, nil
}

func (r *ServiceAccountRepo) List(ctx context.Context, projectID string) ([]models.ServiceAccount, error) {
	var accounts []models.ServiceAccount

	if err := sqlx.SelectContext(ctx, r.q, &accounts,
		`SELECT * FROM service_accounts WHERE project_id = ? ORDER BY email`, projectID); err != nil {
		return nil, translate(err)
	}

	return accounts, nil
}

func (r *ServiceAccountRepo) Delete(ctx context.Context, email string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM service_accounts WHERE email = ?`, email)
	if err != nil {
		return translate(err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *ServiceAccountRepo) CreateKey(ctx context.Context, key *models.ServiceAccountKey) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO service_account_keys (id, service_account_email, private_key_data,
			key_algorithm, valid_after, valid_before, disabled)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key.ID, key.ServiceAccountEmail, key.PrivateKeyData, key.KeyAlgorithm,
		key.ValidAfter, key.ValidBefore, key.Disabled)

	return translate(err)
}

func (r *ServiceAccountRepo) ListKeys(ctx context.Context, email string) ([]models.ServiceAccountKey, error) {
	var keys []models.ServiceAccountKey

	if err := sqlx.SelectContext(ctx, r.q, &keys,
		`SELECT * FROM service_account_keys WHERE service_account_email = ? ORDER BY valid_after`, email); err != nil {
		return nil, translate(err)
	}

	return keys, nil
}

func (r *ServiceAccountRepo) DeleteKey(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM service_account_keys WHERE id = ?`, id)
	if err != nil {
		return translate(err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}

// PolicyRepo stores IAM policies keyed by (resourceType, resourceID).
type PolicyRepo struct {
	q Queryer
}

func (r *PolicyRepo) Get(ctx context.Context, resourceType, resourceID string) (*models.IamPolicy, error) {
	var policy models.IamPolicy

	if err := sqlx.GetContext(ctx, r.q, &policy,
		`SELECT * FROM iam_policies WHERE resource_type = ? AND resource_id = ?`,
		resourceType, resourceID); err != nil {
		return nil, translate(err)
	}

	return &policy, nil
}

// Set replaces the policy, refreshing the etag.
func (r *PolicyRepo) Set(ctx context.Context, policy *models.IamPolicy) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO iam_policies (resource_type, resource_id, version, etag, bindings)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (resource_type, resource_id) DO UPDATE SET
			version = excluded.version,
			etag = excluded.etag,
			bindings = excluded.bindings`,
		policy.ResourceType, policy.ResourceID, policy.Version, policy.Etag, policy.Bindings)

	return translate(err)
}
