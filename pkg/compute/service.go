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

// Package compute maintains the illusion of VM instances backed by
// containers: a state machine per instance, catalog validation, network
// attachment through the VPC control plane and periodic reconciliation
// against the runtime.
package compute

import (
	"context"
	goerrors "errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/pflag"

	"github.com/eschercloudai/cumulus/pkg/constants"
	"github.com/eschercloudai/cumulus/pkg/container"
	"github.com/eschercloudai/cumulus/pkg/db"
	"github.com/eschercloudai/cumulus/pkg/errors"
	"github.com/eschercloudai/cumulus/pkg/models"
	"github.com/eschercloudai/cumulus/pkg/repo"
	"github.com/eschercloudai/cumulus/pkg/util/clock"
	"github.com/eschercloudai/cumulus/pkg/util/lock"
	"github.com/eschercloudai/cumulus/pkg/util/log"
	"github.com/eschercloudai/cumulus/pkg/vpc"
)

// Options configures the orchestrator.
type Options struct {
	// DefaultImage backs instances that do not name one.
	DefaultImage string

	// StopTimeout is how long a container gets to exit cleanly.
	StopTimeout time.Duration

	// ReconcileInterval is the reconciler period.
	ReconcileInterval time.Duration
}

// AddFlags registers orchestrator options.
func (o *Options) AddFlags(f *pflag.FlagSet) {
	f.StringVar(&o.DefaultImage, "instance-default-image", "registry.k8s.io/pause:3.9", "Container image for instances that do not specify one.")
	f.DurationVar(&o.StopTimeout, "instance-stop-timeout", 30*time.Second, "Grace period for a container to exit on instance stop.")
	f.DurationVar(&o.ReconcileInterval, "reconcile-interval", 15*time.Second, "How often instance state is reconciled against the runtime.")
}

// Service is the compute orchestrator.
type Service struct {
	database *sqlx.DB
	repos    *repo.Repositories
	driver   container.Driver
	vpc      *vpc.Service
	clock    clock.Clock
	options  *Options

	// locks serialise operator transitions per instance, the reconciler
	// takes the same lock so operator intent wins while in flight.
	locks *lock.Striped
}

// New creates the orchestrator.
func New(database *sqlx.DB, driver container.Driver, vpcService *vpc.Service, clk clock.Clock, options *Options) *Service {
	return &Service{
		database: database,
		repos:    repo.New(database),
		driver:   driver,
		vpc:      vpcService,
		clock:    clk,
		options:  options,
		locks:    lock.NewStriped(128),
	}
}

// instanceLockKey serialises transitions per (project, zone, name).
func instanceLockKey(projectID, zone, name string) string {
	return projectID + "/" + zone + "/" + name
}

// RunParams describes an instance to run.
type RunParams struct {
	Name             string
	Zone             string
	MachineType      string
	Image            string
	Metadata         map[string]string
	Labels           map[string]string
	Tags             []string
	Network          string
	Subnetwork       string
	AllocateExternal bool
}

// RunInstance creates and starts an instance.  The row is persisted in
// PROVISIONING before the runtime is touched, a failed container create
// leaves it TERMINATED rather than deleting it.
func (s *Service) RunInstance(ctx context.Context, projectID string, params *RunParams) (*models.Instance, error) {
	log.Stage(ctx, log.StageService)

	if err := vpc.ValidateResourceName(params.Name); err != nil {
		return nil, err
	}

	if err := ValidateZone(params.Zone); err != nil {
		return nil, err
	}

	machineType, err := LookupMachineType(params.MachineType)
	if err != nil {
		return nil, err
	}

	key := instanceLockKey(projectID, params.Zone, params.Name)

	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	networkName := params.Network
	if networkName == "" {
		networkName = constants.DefaultNetwork
	}

	network, err := s.vpc.GetNetwork(ctx, projectID, networkName)
	if err != nil {
		return nil, err
	}

	region := RegionForZone(params.Zone)

	var subnet *models.Subnetwork

	if params.Subnetwork != "" {
		subnet, err = s.vpc.GetSubnet(ctx, projectID, networkName, params.Subnetwork)
	} else {
		subnet, err = s.vpc.SubnetForZone(ctx, network, region)
	}

	if err != nil {
		return nil, err
	}

	internalIP, err := s.vpc.AllocateInternalIP(ctx, subnet)
	if err != nil {
		return nil, err
	}

	var externalIP *string

	if params.AllocateExternal {
		ip, err := s.vpc.AllocateExternalIP(ctx)
		if err != nil {
			return nil, err
		}

		externalIP = &ip
	}

	now := s.clock.Now()

	instance := &models.Instance{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		Name:        params.Name,
		Zone:        params.Zone,
		MachineType: machineType.Name,
		Status:      models.InstanceProvisioning,
		InternalIP:  internalIP,
		ExternalIP:  externalIP,
		NetworkID:   network.ID,
		SubnetID:    subnet.ID,
		Metadata:    params.Metadata,
		Labels:      params.Labels,
		Tags:        params.Tags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = db.WithTx(ctx, s.database, func(tx *sqlx.Tx) error {
		repos := repo.New(tx)

		if err := repos.Instances.Create(ctx, instance); err != nil {
			return err
		}

		return repos.NICs.Create(ctx, &models.NetworkInterface{
			ID:         uuid.New().String(),
			InstanceID: instance.ID,
			NetworkID:  network.ID,
			SubnetID:   subnet.ID,
			Name:       "nic0",
			InternalIP: internalIP,
			NICIndex:   0,
			CreatedAt:  now,
		})
	})
	if err != nil {
		if goerrors.Is(err, repo.ErrConflict) {
			return nil, errors.AlreadyExists("instance name already in use").
				WithValues("instance", params.Name, "zone", params.Zone)
		}

		return nil, errors.Internal("failed to persist instance").WithError(err)
	}

	if err := s.provision(ctx, instance, network, subnet, params.Image, machineType); err != nil {
		// The row survives as TERMINATED for post-mortems.
		s.markTerminated(ctx, instance)

		return nil, err
	}

	instanceOpsTotal.WithLabelValues("run").Inc()

	return instance, nil
}

// provision drives the runtime side of RunInstance.
func (s *Service) provision(ctx context.Context, instance *models.Instance, network *models.Network, subnet *models.Subnetwork, image string, machineType *MachineType) error {
	if image == "" {
		image = s.options.DefaultImage
	}

	fabric, err := s.vpc.EnsureFabric(ctx, network, subnet)
	if err != nil {
		return err
	}

	if err := s.driver.EnsureImage(ctx, image); err != nil {
		return errors.Internal("failed to pull instance image").WithError(err)
	}

	env := map[string]string{}

	for k, v := range instance.Metadata {
		env[k] = v
	}

	// Instances with an external address publish the ports named by their
	// "ports" metadata key on the host, that is what "external" means here.
	var ports []string

	if instance.ExternalIP != nil {
		if specs, ok := instance.Metadata["ports"]; ok && specs != "" {
			ports = strings.Split(specs, ",")
		}
	}

	handle, err := s.driver.CreateContainer(ctx, &container.CreateSpec{
		Image:    image,
		Name:     "cumulus-" + instance.ProjectID + "-" + instance.Name,
		CPUs:     machineType.CPUs,
		MemoryMB: machineType.MemoryMB,
		Env:      env,
		Network:  fabric,
		IP:       instance.InternalIP,
		Ports:    ports,
		Labels: map[string]string{
			"cumulus.instance.id":   instance.ID,
			"cumulus.instance.name": instance.Name,
			"cumulus.project.id":    instance.ProjectID,
		},
	})
	if err != nil {
		return errors.Internal("failed to create instance container").WithError(err)
	}

	instance.ContainerHandle = handle

	if err := s.driver.StartContainer(ctx, handle); err != nil {
		return errors.Internal("failed to start instance container").WithError(err)
	}

	if err := s.applyTransition(ctx, instance, EventProvisioned); err != nil {
		return err
	}

	s.vpc.SpliceInstance(ctx, instance)

	return nil
}

// markTerminated applies the create-failed edge and best-effort cleanup.
func (s *Service) markTerminated(ctx context.Context, instance *models.Instance) {
	if instance.ContainerHandle != "" {
		//nolint:errcheck
		s.driver.RemoveContainer(ctx, instance.ContainerHandle, true)
	}

	if err := s.releaseNetworking(ctx, instance); err != nil {
		log.FromContext(ctx).Error(err, "failed to release instance networking", "instance", instance.Name)
	}

	instance.Status = models.InstanceTerminated
	instance.UpdatedAt = s.clock.Now()

	if err := s.repos.Instances.Update(ctx, instance); err != nil {
		log.FromContext(ctx).Error(err, "failed to mark instance terminated", "instance", instance.Name)
	}
}

// applyTransition validates an FSM edge and persists the new state.
func (s *Service) applyTransition(ctx context.Context, instance *models.Instance, event Event) error {
	next, err := Transition(instance.Status, event)
	if err != nil {
		return err
	}

	instance.Status = next
	instance.UpdatedAt = s.clock.Now()

	if err := s.repos.Instances.Update(ctx, instance); err != nil {
		return errors.Internal("failed to persist instance state").WithError(err)
	}

	return nil
}

// GetInstance resolves an instance by name.
func (s *Service) GetInstance(ctx context.Context, projectID, zone, name string) (*models.Instance, error) {
	instance, err := s.repos.Instances.GetByName(ctx, projectID, zone, name)
	if err != nil {
		if goerrors.Is(err, repo.ErrNotFound) {
			return nil, errors.NotFound("instance not found").WithValues("instance", name, "zone", zone)
		}

		return nil, errors.Internal("failed to read instance").WithError(err)
	}

	return instance, nil
}

// ListInstances returns a project's instances, optionally one zone's.
func (s *Service) ListInstances(ctx context.Context, projectID, zone string) ([]models.Instance, error) {
	if zone != "" {
		if err := ValidateZone(zone); err != nil {
			return nil, err
		}
	}

	instances, err := s.repos.Instances.List(ctx, projectID, zone)
	if err != nil {
		return nil, errors.Internal("failed to list instances").WithError(err)
	}

	return instances, nil
}

// StopInstance stops a running instance, RUNNING to STOPPING to STOPPED.
// Any static external binding is released, the recorded address remains so
// start can re-allocate.
func (s *Service) StopInstance(ctx context.Context, projectID, zone, name string) (*models.Instance, error) {
	key := instanceLockKey(projectID, zone, name)

	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	instance, err := s.GetInstance(ctx, projectID, zone, name)
	if err != nil {
		return nil, err
	}

	if err := s.applyTransition(ctx, instance, EventStop); err != nil {
		return nil, err
	}

	if err := s.driver.StopContainer(ctx, instance.ContainerHandle, int(s.options.StopTimeout.Seconds())); err != nil {
		return nil, errors.Internal("failed to stop instance container").WithError(err)
	}

	if instance.ExternalIP != nil {
		if err := s.vpc.ReleaseAddressByIP(ctx, projectID, *instance.ExternalIP); err != nil {
			log.FromContext(ctx).Error(err, "failed to release external address", "instance", name)
		}
	}

	if err := s.applyTransition(ctx, instance, EventStopped); err != nil {
		return nil, err
	}

	instanceOpsTotal.WithLabelValues("stop").Inc()

	return instance, nil
}

// StartInstance restarts a stopped instance.  A previously held external
// address is re-allocated, possibly to a different IP.
func (s *Service) StartInstance(ctx context.Context, projectID, zone, name string) (*models.Instance, error) {
	key := instanceLockKey(projectID, zone, name)

	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	instance, err := s.GetInstance(ctx, projectID, zone, name)
	if err != nil {
		return nil, err
	}

	// Validate the edge before touching the runtime.
	if _, err := Transition(instance.Status, EventStart); err != nil {
		return nil, err
	}

	if err := s.driver.StartContainer(ctx, instance.ContainerHandle); err != nil {
		return nil, errors.Internal("failed to start instance container").WithError(err)
	}

	if instance.ExternalIP != nil {
		ip, err := s.vpc.AllocateExternalIP(ctx)
		if err != nil {
			return nil, err
		}

		instance.ExternalIP = &ip
	}

	if err := s.applyTransition(ctx, instance, EventStart); err != nil {
		return nil, err
	}

	instanceOpsTotal.WithLabelValues("start").Inc()

	return instance, nil
}

// DeleteInstance terminates an instance from any live state.  The container
// is removed, NICs released, the row stays as TERMINATED.
func (s *Service) DeleteInstance(ctx context.Context, projectID, zone, name string) (*models.Instance, error) {
	log.Stage(ctx, log.StageService)

	key := instanceLockKey(projectID, zone, name)

	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	instance, err := s.GetInstance(ctx, projectID, zone, name)
	if err != nil {
		return nil, err
	}

	if instance.Status == models.InstanceTerminated {
		return instance, nil
	}

	if instance.ContainerHandle != "" {
		if err := s.driver.RemoveContainer(ctx, instance.ContainerHandle, true); err != nil {
			return nil, errors.Internal("failed to remove instance container").WithError(err)
		}
	}

	if err := s.releaseNetworking(ctx, instance); err != nil {
		return nil, err
	}

	if err := s.applyTransition(ctx, instance, EventDelete); err != nil {
		return nil, err
	}

	instanceOpsTotal.WithLabelValues("delete").Inc()

	return instance, nil
}

// releaseNetworking frees NIC rows (implicitly freeing internal IPs) and
// any external address binding.
func (s *Service) releaseNetworking(ctx context.Context, instance *models.Instance) error {
	if err := s.repos.NICs.DeleteByInstance(ctx, instance.ID); err != nil {
		return errors.Internal("failed to release instance interfaces").WithError(err)
	}

	if instance.ExternalIP != nil {
		if err := s.vpc.ReleaseAddressByIP(ctx, instance.ProjectID, *instance.ExternalIP); err != nil {
			return err
		}

		instance.ExternalIP = nil
	}

	return nil
}

// AddAccessConfig attaches an external address to a running or stopped
// instance.  Naming a reserved address binds it, otherwise an ephemeral one
// is drawn from the pool.
func (s *Service) AddAccessConfig(ctx context.Context, projectID, zone, name, addressName string) (*models.Instance, error) {
	key := instanceLockKey(projectID, zone, name)

	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	instance, err := s.GetInstance(ctx, projectID, zone, name)
	if err != nil {
		return nil, err
	}

	if instance.Status == models.InstanceTerminated {
		return nil, errors.FailedPrecondition("instance is terminated").WithValues("instance", name)
	}

	if instance.ExternalIP != nil {
		return nil, errors.AlreadyExists("instance already has an external address").WithValues("instance", name)
	}

	var ip string

	if addressName != "" {
		address, err := s.vpc.GetAddress(ctx, projectID, RegionForZone(zone), addressName)
		if err != nil {
			return nil, err
		}

		if err := s.vpc.BindAddress(ctx, address, instance.ID); err != nil {
			return nil, err
		}

		ip = address.IP
	} else {
		ip, err = s.vpc.AllocateExternalIP(ctx)
		if err != nil {
			return nil, err
		}
	}

	instance.ExternalIP = &ip
	instance.UpdatedAt = s.clock.Now()

	if err := s.repos.Instances.Update(ctx, instance); err != nil {
		return nil, errors.Internal("failed to persist access config").WithError(err)
	}

	return instance, nil
}

// DeleteAccessConfig removes an instance's external address, releasing any
// static binding back to RESERVED.
func (s *Service) DeleteAccessConfig(ctx context.Context, projectID, zone, name string) (*models.Instance, error) {
	key := instanceLockKey(projectID, zone, name)

	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	instance, err := s.GetInstance(ctx, projectID, zone, name)
	if err != nil {
		return nil, err
	}

	if instance.ExternalIP == nil {
		return nil, errors.NotFound("instance has no external address").WithValues("instance", name)
	}

	if err := s.vpc.ReleaseAddressByIP(ctx, projectID, *instance.ExternalIP); err != nil {
		return nil, err
	}

	instance.ExternalIP = nil
	instance.UpdatedAt = s.clock.Now()

	if err := s.repos.Instances.Update(ctx, instance); err != nil {
		return nil, errors.Internal("failed to persist access config").WithError(err)
	}

	return instance, nil
}
