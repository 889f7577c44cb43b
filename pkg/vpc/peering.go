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

	"github.com/google/uuid"

	"github.com/eschercloudai/cumulus/pkg/errors"
	"github.com/eschercloudai/cumulus/pkg/models"
	"github.com/eschercloudai/cumulus/pkg/repo"
	"github.com/eschercloudai/cumulus/pkg/util/log"
)

// PeeringParams describes a peering edge to add.
type PeeringParams struct {
	Name        string
	PeerNetwork string
}

// AddPeering creates a directed peering edge and splices the two container
// fabrics so instances on either side can reach each other.
func (s *Service) AddPeering(ctx context.Context, projectID, networkName string, params *PeeringParams) (*models.VPCPeering, error) {
	if err := ValidateResourceName(params.Name); err != nil {
		return nil, err
	}

	network, err := s.GetNetwork(ctx, projectID, networkName)
	if err != nil {
		return nil, err
	}

	peer, err := s.GetNetwork(ctx, projectID, params.PeerNetwork)
	if err != nil {
		return nil, err
	}

	if network.ID == peer.ID {
		return nil, errors.InvalidArgument("a network cannot peer with itself").WithValues("network", networkName)
	}

	existing, err := s.repos.Peerings.ListByNetwork(ctx, network.ID)
	if err != nil {
		return nil, errors.Internal("failed to list peerings").WithError(err)
	}

	for i := range existing {
		if existing[i].Name == params.Name {
			return nil, errors.AlreadyExists("peering name already in use").WithValues("peering", params.Name)
		}

		if existing[i].PeerNetworkID == peer.ID {
			return nil, errors.AlreadyExists("networks are already peered").
				WithValues("network", networkName, "peer", params.PeerNetwork)
		}
	}

	if err := s.checkNoCIDROverlap(ctx, network, peer); err != nil {
		return nil, err
	}

	peering := &models.VPCPeering{
		ID:                   uuid.New().String(),
		NetworkID:            network.ID,
		Name:                 params.Name,
		PeerNetworkID:        peer.ID,
		State:                "ACTIVE",
		AutoCreateRoutes:     true,
		ExchangeSubnetRoutes: true,
		CreatedAt:            s.clock.Now(),
	}

	if err := s.repos.Peerings.Create(ctx, peering); err != nil {
		if goerrors.Is(err, repo.ErrConflict) {
			return nil, errors.AlreadyExists("peering already exists").WithValues("peering", params.Name)
		}

		return nil, errors.Internal("failed to create peering").WithError(err)
	}

	s.splice(ctx, network, peer, true)

	return peering, nil
}

// RemovePeering deletes a peering edge by name and reverses the splice.
func (s *Service) RemovePeering(ctx context.Context, projectID, networkName, name string) error {
	network, err := s.GetNetwork(ctx, projectID, networkName)
	if err != nil {
		return err
	}

	peering, err := s.repos.Peerings.GetByName(ctx, network.ID, name)
	if err != nil {
		if goerrors.Is(err, repo.ErrNotFound) {
			return errors.NotFound("peering not found").WithValues("peering", name)
		}

		return errors.Internal("failed to read peering").WithError(err)
	}

	peer, err := s.repos.Networks.Get(ctx, peering.PeerNetworkID)
	if err == nil {
		s.splice(ctx, network, peer, false)
	}

	if err := s.repos.Peerings.Delete(ctx, peering.ID); err != nil {
		return errors.Internal("failed to delete peering").WithError(err)
	}

	return nil
}

// ListPeerings returns a network's peering edges.
func (s *Service) ListPeerings(ctx context.Context, projectID, networkName string) ([]models.VPCPeering, error) {
	network, err := s.GetNetwork(ctx, projectID, networkName)
	if err != nil {
		return nil, err
	}

	peerings, err := s.repos.Peerings.ListByNetwork(ctx, network.ID)
	if err != nil {
		return nil, errors.Internal("failed to list peerings").WithError(err)
	}

	return peerings, nil
}

// checkNoCIDROverlap refuses peering when any subnet range of one network
// overlaps any range of the other.
func (s *Service) checkNoCIDROverlap(ctx context.Context, a, b *models.Network) error {
	subnetsA, err := s.repos.Subnets.ListByNetwork(ctx, a.ID)
	if err != nil {
		return errors.Internal("failed to list subnets").WithError(err)
	}

	subnetsB, err := s.repos.Subnets.ListByNetwork(ctx, b.ID)
	if err != nil {
		return errors.Internal("failed to list subnets").WithError(err)
	}

	for i := range subnetsA {
		prefixA, err := netip.ParsePrefix(subnetsA[i].CIDR)
		if err != nil {
			continue
		}

		for j := range subnetsB {
			prefixB, err := netip.ParsePrefix(subnetsB[j].CIDR)
			if err != nil {
				continue
			}

			if overlaps(prefixA, prefixB) {
				return errors.InvalidArgument("peered networks have overlapping subnet ranges").
					WithValues("subnet", subnetsA[i].Name, "peerSubnet", subnetsB[j].Name)
			}
		}
	}

	return nil
}

// splice attaches each side's containers to the other side's fabric, or
// detaches them on removal.  Best effort per container, a failed attach is
// logged and skipped so one broken container does not abort the peering.
func (s *Service) splice(ctx context.Context, a, b *models.Network, attach bool) {
	s.spliceSide(ctx, a, fabricName(b), attach)
	s.spliceSide(ctx, b, fabricName(a), attach)
}

func (s *Service) spliceSide(ctx context.Context, network *models.Network, peerFabric string, attach bool) {
	instances, err := s.repos.Instances.ListActive(ctx)
	if err != nil {
		log.FromContext(ctx).Error(err, "failed to list instances for fabric splice")

		return
	}

	for i := range instances {
		instance := &instances[i]

		if instance.NetworkID != network.ID || instance.ContainerHandle == "" {
			continue
		}

		var opErr error

		if attach {
			opErr = s.driver.AttachToNetwork(ctx, instance.ContainerHandle, peerFabric)
		} else {
			opErr = s.driver.DetachFromNetwork(ctx, instance.ContainerHandle, peerFabric)
		}

		if opErr != nil {
			log.FromContext(ctx).Info("fabric splice failed for instance", "instance", instance.Name, "fabric", peerFabric, "error", opErr.Error())
		}
	}
}

// SpliceInstance attaches a newly created container to every peered fabric,
// called by the orchestrator after instance start.
func (s *Service) SpliceInstance(ctx context.Context, instance *models.Instance) {
	peerings, err := s.repos.Peerings.ListByNetwork(ctx, instance.NetworkID)
	if err != nil {
		log.FromContext(ctx).Error(err, "failed to list peerings for instance splice")

		return
	}

	for i := range peerings {
		peer, err := s.repos.Networks.Get(ctx, peerings[i].PeerNetworkID)
		if err != nil {
			continue
		}

		if err := s.driver.AttachToNetwork(ctx, instance.ContainerHandle, fabricName(peer)); err != nil {
			log.FromContext(ctx).Info("fabric splice failed for instance", "instance", instance.Name, "fabric", fabricName(peer), "error", err.Error())
		}
	}
}
