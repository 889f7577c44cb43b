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
	"fmt"
	"math/rand"
	"net/netip"

	"github.com/google/uuid"

	"github.com/eschercloudai/cumulus/pkg/errors"
	"github.com/eschercloudai/cumulus/pkg/models"
	"github.com/eschercloudai/cumulus/pkg/repo"
)

// RouterParams describes a cloud router to create.  Metadata only, no BGP
// session is ever established.
type RouterParams struct {
	Name         string
	Network      string
	Region       string
	BGPASN       int64
	KeepaliveSec int
}

// CreateRouter records a router.
func (s *Service) CreateRouter(ctx context.Context, projectID string, params *RouterParams) (*models.Router, error) {
	if err := ValidateResourceName(params.Name); err != nil {
		return nil, err
	}

	if params.Region == "" {
		return nil, errors.InvalidArgument("region is required")
	}

	asn := params.BGPASN
	if asn == 0 {
		asn = 64512
	}

	if asn < 1 || asn > 4294967295 {
		return nil, errors.InvalidArgument("ASN must be in [1, 4294967295]").WithValues("asn", asn)
	}

	keepalive := params.KeepaliveSec
	if keepalive == 0 {
		keepalive = 20
	}

	if keepalive < 1 || keepalive > 60 {
		return nil, errors.InvalidArgument("keepalive must be in [1, 60] seconds").WithValues("keepalive", keepalive)
	}

	network, err := s.GetNetwork(ctx, projectID, params.Network)
	if err != nil {
		return nil, err
	}

	router := &models.Router{
		ID:           uuid.New().String(),
		NetworkID:    network.ID,
		Name:         params.Name,
		Region:       params.Region,
		BGPASN:       asn,
		KeepaliveSec: keepalive,
		CreatedAt:    s.clock.Now(),
	}

	if err := s.repos.Routers.Create(ctx, router); err != nil {
		if goerrors.Is(err, repo.ErrConflict) {
			return nil, errors.AlreadyExists("router name already in use").WithValues("router", params.Name)
		}

		return nil, errors.Internal("failed to create router").WithError(err)
	}

	return router, nil
}

// ListRouters returns a project's routers in a region.
func (s *Service) ListRouters(ctx context.Context, projectID, region string) ([]models.Router, error) {
	routers, err := s.repos.Routers.ListByRegion(ctx, projectID, region)
	if err != nil {
		return nil, errors.Internal("failed to list routers").WithError(err)
	}

	return routers, nil
}

// DeleteRouter removes a router by name.
func (s *Service) DeleteRouter(ctx context.Context, projectID, region, name string) error {
	router, err := s.repos.Routers.GetByName(ctx, projectID, region, name)
	if err != nil {
		if goerrors.Is(err, repo.ErrNotFound) {
			return errors.NotFound("router not found").WithValues("router", name)
		}

		return errors.Internal("failed to read router").WithError(err)
	}

	if err := s.repos.Routers.Delete(ctx, router.ID); err != nil {
		return errors.Internal("failed to delete router").WithError(err)
	}

	return nil
}

// VPNTunnelParams describes a VPN tunnel to create.
type VPNTunnelParams struct {
	Name    string
	Network string
	Region  string
	PeerIP  string
}

// CreateVPNTunnel records a tunnel with a synthesized gateway address from
// the documentation range 192.0.2.0/24.  No IPsec is ever negotiated.
func (s *Service) CreateVPNTunnel(ctx context.Context, projectID string, params *VPNTunnelParams) (*models.VPNTunnel, error) {
	if err := ValidateResourceName(params.Name); err != nil {
		return nil, err
	}

	if params.Region == "" {
		return nil, errors.InvalidArgument("region is required")
	}

	if _, err := netip.ParseAddr(params.PeerIP); err != nil {
		return nil, errors.InvalidArgument("malformed peer address").WithValues("peerIp", params.PeerIP).WithError(err)
	}

	network, err := s.GetNetwork(ctx, projectID, params.Network)
	if err != nil {
		return nil, err
	}

	//nolint:gosec
	gateway := fmt.Sprintf("192.0.2.%d", rand.Intn(254)+1)

	tunnel := &models.VPNTunnel{
		ID:        uuid.New().String(),
		NetworkID: network.ID,
		Name:      params.Name,
		Region:    params.Region,
		PeerIP:    params.PeerIP,
		GatewayIP: gateway,
		Status:    "ESTABLISHED",
		CreatedAt: s.clock.Now(),
	}

	if err := s.repos.VPNTunnels.Create(ctx, tunnel); err != nil {
		if goerrors.Is(err, repo.ErrConflict) {
			return nil, errors.AlreadyExists("vpn tunnel name already in use").WithValues("tunnel", params.Name)
		}

		return nil, errors.Internal("failed to create vpn tunnel").WithError(err)
	}

	return tunnel, nil
}

// ListVPNTunnels returns a project's tunnels in a region.
func (s *Service) ListVPNTunnels(ctx context.Context, projectID, region string) ([]models.VPNTunnel, error) {
	tunnels, err := s.repos.VPNTunnels.ListByRegion(ctx, projectID, region)
	if err != nil {
		return nil, errors.Internal("failed to list vpn tunnels").WithError(err)
	}

	return tunnels, nil
}
