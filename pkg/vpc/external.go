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

	"github.com/google/uuid"

	"github.com/eschercloudai/cumulus/pkg/errors"
	"github.com/eschercloudai/cumulus/pkg/models"
	"github.com/eschercloudai/cumulus/pkg/repo"
)

// externalPoolAttempts bounds the random draw for an ephemeral address.
const externalPoolAttempts = 100

// randomExternalIP draws from the synthetic 34.0.0.0/8 pool.
func randomExternalIP() string {
	//nolint:gosec
	return fmt.Sprintf("34.%d.%d.%d", rand.Intn(256), rand.Intn(256), rand.Intn(254)+1)
}

// AllocateExternalIP draws an ephemeral address from the pool.  Ephemeral
// addresses are never persisted as Address rows, collision avoidance only
// consults static reservations.
func (s *Service) AllocateExternalIP(ctx context.Context) (string, error) {
	for attempt := 0; attempt < externalPoolAttempts; attempt++ {
		ip := randomExternalIP()

		inUse, err := s.repos.Addresses.IPInUse(ctx, ip)
		if err != nil {
			return "", errors.Internal("failed to check address pool").WithError(err)
		}

		if !inUse {
			return ip, nil
		}
	}

	return "", errors.ResourceExhausted("external address pool exhausted")
}

// AddressParams describes a static reservation.
type AddressParams struct {
	Name        string
	Region      string
	NetworkTier string
}

// ReserveAddress creates a static external address in state RESERVED.
func (s *Service) ReserveAddress(ctx context.Context, projectID string, params *AddressParams) (*models.Address, error) {
	if err := ValidateResourceName(params.Name); err != nil {
		return nil, err
	}

	if params.Region == "" {
		return nil, errors.InvalidArgument("region is required")
	}

	ip, err := s.AllocateExternalIP(ctx)
	if err != nil {
		return nil, err
	}

	tier := params.NetworkTier
	if tier == "" {
		tier = "PREMIUM"
	}

	name := params.Name

	address := &models.Address{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		Region:      params.Region,
		Name:        &name,
		IP:          ip,
		Type:        "EXTERNAL",
		Status:      models.AddressReserved,
		NetworkTier: tier,
		CreatedAt:   s.clock.Now(),
	}

	if err := s.repos.Addresses.Create(ctx, address); err != nil {
		if goerrors.Is(err, repo.ErrConflict) {
			return nil, errors.AlreadyExists("address name already in use").WithValues("address", params.Name)
		}

		return nil, errors.Internal("failed to reserve address").WithError(err)
	}

	return address, nil
}

// GetAddress resolves a static reservation by name.
func (s *Service) GetAddress(ctx context.Context, projectID, region, name string) (*models.Address, error) {
	address, err := s.repos.Addresses.GetByName(ctx, projectID, region, name)
	if err != nil {
		if goerrors.Is(err, repo.ErrNotFound) {
			return nil, errors.NotFound("address not found").WithValues("address", name)
		}

		return nil, errors.Internal("failed to read address").WithError(err)
	}

	return address, nil
}

// ListAddresses returns a project's reservations, optionally per region.
func (s *Service) ListAddresses(ctx context.Context, projectID, region string) ([]models.Address, error) {
	addresses, err := s.repos.Addresses.List(ctx, projectID, region)
	if err != nil {
		return nil, errors.Internal("failed to list addresses").WithError(err)
	}

	return addresses, nil
}

// BindAddress attaches a reservation to an instance, RESERVED to IN_USE.
func (s *Service) BindAddress(ctx context.Context, address *models.Address, instanceID string) error {
	if address.Status != models.AddressReserved {
		return errors.FailedPrecondition("address is already in use").WithValues("ip", address.IP)
	}

	address.Status = models.AddressInUse
	address.UserInstanceID = &instanceID

	if err := s.repos.Addresses.Update(ctx, address); err != nil {
		return errors.Internal("failed to bind address").WithError(err)
	}

	return nil
}

// ReleaseAddress detaches a reservation, IN_USE back to RESERVED.
func (s *Service) ReleaseAddress(ctx context.Context, address *models.Address) error {
	address.Status = models.AddressReserved
	address.UserInstanceID = nil

	if err := s.repos.Addresses.Update(ctx, address); err != nil {
		return errors.Internal("failed to release address").WithError(err)
	}

	return nil
}

// ReleaseAddressByIP releases whichever reservation holds an address.  A
// miss is fine, the address was ephemeral.
func (s *Service) ReleaseAddressByIP(ctx context.Context, projectID, ip string) error {
	addresses, err := s.repos.Addresses.List(ctx, projectID, "")
	if err != nil {
		return errors.Internal("failed to list addresses").WithError(err)
	}

	for i := range addresses {
		if addresses[i].IP == ip && addresses[i].Status == models.AddressInUse {
			return s.ReleaseAddress(ctx, &addresses[i])
		}
	}

	return nil
}

// DeleteAddress removes a reservation, only while RESERVED.
func (s *Service) DeleteAddress(ctx context.Context, projectID, region, name string) error {
	address, err := s.GetAddress(ctx, projectID, region, name)
	if err != nil {
		return err
	}

	if address.Status != models.AddressReserved {
		return errors.FailedPrecondition("address is in use").WithValues("address", name)
	}

	if err := s.repos.Addresses.Delete(ctx, address.ID); err != nil {
		return errors.Internal("failed to delete address").WithError(err)
	}

	return nil
}
