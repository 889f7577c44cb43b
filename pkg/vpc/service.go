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

// Package vpc implements the VPC control plane: networks backed by container
// fabric networks, subnet CIDR management, internal and external IP
// allocation, firewall and route metadata, peering and VPN records.
package vpc

import (
	"context"
	goerrors "errors"
	"net/netip"
	"regexp"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/eschercloudai/cumulus/pkg/container"
	"github.com/eschercloudai/cumulus/pkg/db"
	"github.com/eschercloudai/cumulus/pkg/errors"
	"github.com/eschercloudai/cumulus/pkg/models"
	"github.com/eschercloudai/cumulus/pkg/repo"
	"github.com/eschercloudai/cumulus/pkg/util/clock"
	"github.com/eschercloudai/cumulus/pkg/util/lock"
	"github.com/eschercloudai/cumulus/pkg/util/log"
)

// rfc1035Regex validates resource names, lowercase letter first, then
// lowercase alphanumerics and dashes, no trailing dash, at most 63.
var rfc1035Regex = regexp.MustCompile(`^[a-z]([-a-z0-9]{0,61}[a-z0-9])?$`)

// defaultSubnets are the regions and CIDRs auto-created subnets use, the
// provider's auto-mode assignments.
var defaultSubnets = map[string]string{
	"us-central1":  "10.128.0.0/20",
	"us-east1":     "10.142.0.0/20",
	"europe-west1": "10.132.0.0/20",
	"asia-east1":   "10.140.0.0/20",
}

// Service is the VPC control plane.
type Service struct {
	database *sqlx.DB
	repos    *repo.Repositories
	driver   container.Driver
	clock    clock.Clock

	// subnetLocks serialise IP allocation per subnet.
	subnetLocks *lock.Striped
}

// New creates the VPC control plane.
func New(database *sqlx.DB, driver container.Driver, clk clock.Clock) *Service {
	return &Service{
		database:    database,
		repos:       repo.New(database),
		driver:      driver,
		clock:       clk,
		subnetLocks: lock.NewStriped(64),
	}
}

// ValidateResourceName rejects names that do not follow RFC-1035.
func ValidateResourceName(name string) error {
	if !rfc1035Regex.MatchString(name) {
		return errors.InvalidArgument("name must follow RFC-1035").WithValues("name", name)
	}

	return nil
}

// fabricName is the container network backing a VPC network.  Stable per
// network id so re-creation after restart is idempotent.
func fabricName(network *models.Network) string {
	return "cumulus-" + network.ID
}

// NetworkParams describes a network to create.
type NetworkParams struct {
	Name              string
	AutoCreateSubnets bool
	RoutingMode       string
	MTU               int
}

// CreateNetwork creates a VPC network, optionally pre-populating subnets in
// the default regions.
func (s *Service) CreateNetwork(ctx context.Context, projectID string, params *NetworkParams) (*models.Network, error) {
	log.Stage(ctx, log.StageService)

	if err := ValidateResourceName(params.Name); err != nil {
		return nil, err
	}

	routingMode := params.RoutingMode
	if routingMode == "" {
		routingMode = "REGIONAL"
	}

	mtu := params.MTU
	if mtu == 0 {
		mtu = 1460
	}

	network := &models.Network{
		ID:                uuid.New().String(),
		ProjectID:         projectID,
		Name:              params.Name,
		AutoCreateSubnets: params.AutoCreateSubnets,
		RoutingMode:       routingMode,
		MTU:               mtu,
		CreatedAt:         s.clock.Now(),
	}

	err := db.WithTx(ctx, s.database, func(tx *sqlx.Tx) error {
		repos := repo.New(tx)

		if err := repos.Networks.Create(ctx, network); err != nil {
			return err
		}

		if !params.AutoCreateSubnets {
			return nil
		}

		for region, cidr := range defaultSubnets {
			subnet, err := s.newSubnet(network, region, region, cidr)
			if err != nil {
				return err
			}

			if err := repos.Subnets.Create(ctx, subnet); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		if goerrors.Is(err, repo.ErrConflict) {
			return nil, errors.AlreadyExists("network name already in use").WithValues("network", params.Name)
		}

		return nil, errors.Internal("failed to create network").WithError(err)
	}

	return network, nil
}

// GetNetwork resolves a network by name within a project.
func (s *Service) GetNetwork(ctx context.Context, projectID, name string) (*models.Network, error) {
	network, err := s.repos.Networks.GetByName(ctx, projectID, name)
	if err != nil {
		if goerrors.Is(err, repo.ErrNotFound) {
			return nil, errors.NotFound("network not found").WithValues("network", name)
		}

		return nil, errors.Internal("failed to read network").WithError(err)
	}

	return network, nil
}

// ListNetworks returns a project's networks.
func (s *Service) ListNetworks(ctx context.Context, projectID string) ([]models.Network, error) {
	networks, err := s.repos.Networks.List(ctx, projectID)
	if err != nil {
		return nil, errors.Internal("failed to list networks").WithError(err)
	}

	return networks, nil
}

// DeleteNetwork removes a network.  Attached subnets with live NICs, or
// existing peering edges, block the delete.
func (s *Service) DeleteNetwork(ctx context.Context, projectID, name string) error {
	network, err := s.GetNetwork(ctx, projectID, name)
	if err != nil {
		return err
	}

	peerings, err := s.repos.Peerings.ListByNetwork(ctx, network.ID)
	if err != nil {
		return errors.Internal("failed to list peerings").WithError(err)
	}

	if len(peerings) > 0 {
		return errors.FailedPrecondition("network has active peerings").WithValues("network", name)
	}

	subnets, err := s.repos.Subnets.ListByNetwork(ctx, network.ID)
	if err != nil {
		return errors.Internal("failed to list subnets").WithError(err)
	}

	for i := range subnets {
		count, err := s.repos.NICs.CountBySubnet(ctx, subnets[i].ID)
		if err != nil {
			return errors.Internal("failed to count subnet interfaces").WithError(err)
		}

		if count > 0 {
			return errors.FailedPrecondition("subnet has attached instances").
				WithValues("network", name, "subnet", subnets[i].Name)
		}
	}

	err = db.WithTx(ctx, s.database, func(tx *sqlx.Tx) error {
		repos := repo.New(tx)

		for i := range subnets {
			if err := repos.Subnets.Delete(ctx, subnets[i].ID); err != nil {
				return err
			}
		}

		return repos.Networks.Delete(ctx, network.ID)
	})
	if err != nil {
		return errors.Internal("failed to delete network").WithError(err)
	}

	// Fabric teardown is best effort, an orphaned bridge is harmless.
	if err := s.driver.RemoveNetwork(ctx, fabricName(network)); err != nil {
		log.FromContext(ctx).Info("fabric network removal failed", "network", name, "error", err.Error())
	}

	return nil
}

// EnsureFabric materialises the container network backing a subnet, called
// lazily when the first instance attaches.
func (s *Service) EnsureFabric(ctx context.Context, network *models.Network, subnet *models.Subnetwork) (string, error) {
	name := fabricName(network)

	if _, err := s.driver.EnsureNetwork(ctx, name, subnet.CIDR, subnet.GatewayIP); err != nil {
		return "", errors.Internal("failed to ensure fabric network").WithError(err)
	}

	return name, nil
}

// newSubnet validates and assembles a subnet row.
func (s *Service) newSubnet(network *models.Network, name, region, cidr string) (*models.Subnetwork, error) {
	prefix, err := parseCIDR(cidr)
	if err != nil {
		return nil, err
	}

	gateway := prefix.Addr().Next()

	return &models.Subnetwork{
		ID:          uuid.New().String(),
		NetworkID:   network.ID,
		Name:        name,
		Region:      region,
		CIDR:        prefix.String(),
		GatewayIP:   gateway.String(),
		NextIPIndex: 2,
		CreatedAt:   s.clock.Now(),
	}, nil
}

// parseCIDR validates a subnet range, strict notation, prefix 8 through 29.
func parseCIDR(cidr string) (netip.Prefix, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return netip.Prefix{}, errors.InvalidArgument("malformed CIDR").WithValues("cidr", cidr).WithError(err)
	}

	if !prefix.Addr().Is4() {
		return netip.Prefix{}, errors.InvalidArgument("only IPv4 ranges are supported").WithValues("cidr", cidr)
	}

	if prefix.Addr() != prefix.Masked().Addr() {
		return netip.Prefix{}, errors.InvalidArgument("CIDR has host bits set").WithValues("cidr", cidr)
	}

	if prefix.Bits() < 8 || prefix.Bits() > 29 {
		return netip.Prefix{}, errors.InvalidArgument("prefix length must be between 8 and 29").WithValues("cidr", cidr)
	}

	return prefix, nil
}
