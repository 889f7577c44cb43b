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

package vpc

import (
	"context"
	goerrors "errors"
	"net/netip"

	"github.com/eschercloudai/cumulus/pkg/errors"
	"github.com/eschercloudai/cumulus/pkg/models"
	"github.com/eschercloudai/cumulus/pkg/repo"
)

// SubnetParams describes a subnet to create.
type SubnetParams struct {
	Name   string
	Region string
	CIDR   string
}

// overlaps reports whether two IPv4 prefixes share any address.
func overlaps(a, b netip.Prefix) bool {
	return a.Contains(b.Addr()) || b.Contains(a.Addr())
}

// CreateSubnet carves a regional CIDR out of a network.  The range must not
// overlap any existing subnet of the same network.
func (s *Service) CreateSubnet(ctx context.Context, projectID, networkName string, params *SubnetParams) (*models.Subnetwork, error) {
	if err := ValidateResourceName(params.Name); err != nil {
		return nil, err
	}

	if params.Region == "" {
		return nil, errors.InvalidArgument("region is required")
	}

	network, err := s.GetNetwork(ctx, projectID, networkName)
	if err != nil {
		return nil, err
	}

	prefix, err := parseCIDR(params.CIDR)
	if err != nil {
		return nil, err
	}

	existing, err := s.repos.Subnets.ListByNetwork(ctx, network.ID)
	if err != nil {
		return nil, errors.Internal("failed to list subnets").WithError(err)
	}

	for i := range existing {
		other, err := netip.ParsePrefix(existing[i].CIDR)
		if err != nil {
			continue
		}

		if overlaps(prefix, other) {
			return nil, errors.InvalidArgument("CIDR overlaps an existing subnet").
				WithValues("cidr", params.CIDR, "conflictsWith", existing[i].Name)
		}
	}

	subnet, err := s.newSubnet(network, params.Name, params.Region, params.CIDR)
	if err != nil {
		return nil, err
	}

	if err := s.repos.Subnets.Create(ctx, subnet); err != nil {
		if goerrors.Is(err, repo.ErrConflict) {
			return nil, errors.AlreadyExists("subnet name already in use").WithValues("subnet", params.Name)
		}

		return nil, errors.Internal("failed to create subnet").WithError(err)
	}

	return subnet, nil
}

// GetSubnet resolves a subnet by name within a network.
func (s *Service) GetSubnet(ctx context.Context, projectID, networkName, name string) (*models.Subnetwork, error) {
	network, err := s.GetNetwork(ctx, projectID, networkName)
	if err != nil {
		return nil, err
	}

	subnet, err := s.repos.Subnets.GetByName(ctx, network.ID, name)
	if err != nil {
		if goerrors.Is(err, repo.ErrNotFound) {
			return nil, errors.NotFound("subnet not found").WithValues("subnet", name)
		}

		return nil, errors.Internal("failed to read subnet").WithError(err)
	}

	return subnet, nil
}

// ListSubnets returns a network's subnets.
func (s *Service) ListSubnets(ctx context.Context, projectID, networkName string) ([]models.Subnetwork, error) {
	network, err := s.GetNetwork(ctx, projectID, networkName)
	if err != nil {
		return nil, err
	}

	subnets, err := s.repos.Subnets.ListByNetwork(ctx, network.ID)
	if err != nil {
		return nil, errors.Internal("failed to list subnets").WithError(err)
	}

	return subnets, nil
}

// DeleteSubnet removes a subnet with no attached interfaces.
func (s *Service) DeleteSubnet(ctx context.Context, projectID, networkName, name string) error {
	subnet, err := s.GetSubnet(ctx, projectID, networkName, name)
	if err != nil {
		return err
	}

	count, err := s.repos.NICs.CountBySubnet(ctx, subnet.ID)
	if err != nil {
		return errors.Internal("failed to count subnet interfaces").WithError(err)
	}

	if count > 0 {
		return errors.FailedPrecondition("subnet has attached instances").WithValues("subnet", name)
	}

	if err := s.repos.Subnets.Delete(ctx, subnet.ID); err != nil {
		return errors.Internal("failed to delete subnet").WithError(err)
	}

	return nil
}

// SubnetForZone resolves the network's subnet covering a zone's region,
// used for implicit nic0 attachment.
func (s *Service) SubnetForZone(ctx context.Context, network *models.Network, region string) (*models.Subnetwork, error) {
	subnet, err := s.repos.Subnets.GetByRegion(ctx, network.ID, region)
	if err != nil {
		if goerrors.Is(err, repo.ErrNotFound) {
			return nil, errors.FailedPrecondition("network has no subnet in region").
				WithValues("network", network.Name, "region", region)
		}

		return nil, errors.Internal("failed to resolve regional subnet").WithError(err)
	}

	return subnet, nil
}
