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

// Package project implements project CRUD, cascade delete and first boot
// seeding.
package project

import (
	"context"
	goerrors "errors"
	"regexp"

	"github.com/jmoiron/sqlx"

	"github.com/eschercloudai/cumulus/pkg/compute"
	"github.com/eschercloudai/cumulus/pkg/constants"
	"github.com/eschercloudai/cumulus/pkg/db"
	"github.com/eschercloudai/cumulus/pkg/errors"
	"github.com/eschercloudai/cumulus/pkg/models"
	"github.com/eschercloudai/cumulus/pkg/repo"
	"github.com/eschercloudai/cumulus/pkg/storage"
	"github.com/eschercloudai/cumulus/pkg/util/clock"
	"github.com/eschercloudai/cumulus/pkg/util/log"
	"github.com/eschercloudai/cumulus/pkg/vpc"
)

// projectIDRegex follows the provider's project id rules.
var projectIDRegex = regexp.MustCompile(`^[a-z][a-z0-9-]{4,28}[a-z0-9]$`)

// Service manages projects.
type Service struct {
	database *sqlx.DB
	repos    *repo.Repositories
	storage  *storage.Service
	compute  *compute.Service
	vpc      *vpc.Service
	clock    clock.Clock
}

// New creates the project service.  Cascade delete goes through the owning
// services so the host resources they manage are released too.
func New(database *sqlx.DB, storageService *storage.Service, computeService *compute.Service, vpcService *vpc.Service, clk clock.Clock) *Service {
	return &Service{
		database: database,
		repos:    repo.New(database),
		storage:  storageService,
		compute:  computeService,
		vpc:      vpcService,
		clock:    clk,
	}
}

// Create registers a project and seeds its default network.
func (s *Service) Create(ctx context.Context, id, displayName string) (*models.Project, error) {
	if id != constants.DefaultProject && !projectIDRegex.MatchString(id) {
		return nil, errors.InvalidArgument("invalid project id").WithValues("project", id)
	}

	number, err := s.repos.Projects.NextNumber(ctx)
	if err != nil {
		return nil, errors.Internal("failed to allocate project number").WithError(err)
	}

	if displayName == "" {
		displayName = id
	}

	project := &models.Project{
		ID:            id,
		DisplayName:   displayName,
		ProjectNumber: number,
		CreatedAt:     s.clock.Now(),
	}

	if err := s.repos.Projects.Create(ctx, project); err != nil {
		if goerrors.Is(err, repo.ErrConflict) {
			return nil, errors.AlreadyExists("project id already in use").WithValues("project", id)
		}

		return nil, errors.Internal("failed to create project").WithError(err)
	}

	_, err = s.vpc.CreateNetwork(ctx, id, &vpc.NetworkParams{
		Name:              constants.DefaultNetwork,
		AutoCreateSubnets: true,
	})
	if err != nil {
		return nil, err
	}

	return project, nil
}

// Get resolves a project by id.
func (s *Service) Get(ctx context.Context, id string) (*models.Project, error) {
	project, err := s.repos.Projects.Get(ctx, id)
	if err != nil {
		if goerrors.Is(err, repo.ErrNotFound) {
			return nil, errors.NotFound("project not found").WithValues("project", id)
		}

		return nil, errors.Internal("failed to read project").WithError(err)
	}

	return project, nil
}

// List returns all projects.
func (s *Service) List(ctx context.Context) ([]models.Project, error) {
	projects, err := s.repos.Projects.List(ctx)
	if err != nil {
		return nil, errors.Internal("failed to list projects").WithError(err)
	}

	return projects, nil
}

// cascadeStatements removes the metadata-only children the owning services
// do not tear down themselves, children before parents so the foreign keys
// hold throughout.
var cascadeStatements = []string{
	`DELETE FROM vpc_peerings WHERE network_id IN (SELECT id FROM networks WHERE project_id = ?)`,
	`DELETE FROM firewall_rules WHERE network_id IN (SELECT id FROM networks WHERE project_id = ?)`,
	`DELETE FROM routes WHERE network_id IN (SELECT id FROM networks WHERE project_id = ?)`,
	`DELETE FROM routers WHERE network_id IN (SELECT id FROM networks WHERE project_id = ?)`,
	`DELETE FROM vpn_tunnels WHERE network_id IN (SELECT id FROM networks WHERE project_id = ?)`,
	`DELETE FROM network_interfaces WHERE instance_id IN (SELECT id FROM instances WHERE project_id = ?)`,
	`DELETE FROM instances WHERE project_id = ?`,
	`DELETE FROM addresses WHERE project_id = ?`,
	`DELETE FROM service_account_keys WHERE service_account_email IN (SELECT email FROM service_accounts WHERE project_id = ?)`,
	`DELETE FROM service_accounts WHERE project_id = ?`,
}

// Delete removes a project and everything it owns.  Instances and buckets
// go through their services so backing containers and payload files are
// released, not just their rows.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	instances, err := s.compute.ListInstances(ctx, id, "")
	if err != nil {
		return err
	}

	for i := range instances {
		if _, err := s.compute.DeleteInstance(ctx, id, instances[i].Zone, instances[i].Name); err != nil {
			return err
		}
	}

	buckets, err := s.storage.ListBuckets(ctx, id)
	if err != nil {
		return err
	}

	for i := range buckets {
		if err := s.storage.PurgeBucket(ctx, buckets[i].Name); err != nil {
			return err
		}
	}

	networks, err := s.vpc.ListNetworks(ctx, id)
	if err != nil {
		return err
	}

	err = db.WithTx(ctx, s.database, func(tx *sqlx.Tx) error {
		for _, statement := range cascadeStatements {
			if _, err := tx.ExecContext(ctx, statement, id); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return errors.Internal("failed to delete project").WithError(err)
	}

	// With peerings and interfaces gone the network deletes are
	// unconditional, and tear their fabric down as they go.
	for i := range networks {
		if err := s.vpc.DeleteNetwork(ctx, id, networks[i].Name); err != nil {
			return err
		}
	}

	err = db.WithTx(ctx, s.database, func(tx *sqlx.Tx) error {
		return repo.New(tx).Projects.Delete(ctx, id)
	})
	if err != nil {
		return errors.Internal("failed to delete project").WithError(err)
	}

	return nil
}

// Seed creates the default project on first boot so SDK clients work out of
// the box.
func (s *Service) Seed(ctx context.Context) error {
	if _, err := s.repos.Projects.Get(ctx, constants.DefaultProject); err == nil {
		return nil
	} else if !goerrors.Is(err, repo.ErrNotFound) {
		return err
	}

	if _, err := s.Create(ctx, constants.DefaultProject, "Default project"); err != nil {
		return err
	}

	log.FromContext(ctx).Info("seeded default project", "project", constants.DefaultProject)

	return nil
}
