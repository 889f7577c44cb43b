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

package compute

import (
	"context"
	"time"

	"github.com/eschercloudai/cumulus/pkg/container"
	"github.com/eschercloudai/cumulus/pkg/models"
	"github.com/eschercloudai/cumulus/pkg/util/log"
)

// Reconciler converges persisted instance state with what the runtime
// reports.  Observed changes are authoritative, but an in-flight operator
// transition holds the per-instance lock so it always wins the race.
type Reconciler struct {
	service *Service
}

// NewReconciler creates the reconciliation worker.
func NewReconciler(service *Service) *Reconciler {
	return &Reconciler{
		service: service,
	}
}

// Run reconciles at the configured interval until cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.service.options.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				log.FromContext(ctx).Error(err, "reconcile pass failed")
			}
		}
	}
}

// RunOnce inspects every non-terminated instance once.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	instances, err := r.service.repos.Instances.ListActive(ctx)
	if err != nil {
		return err
	}

	for i := range instances {
		r.reconcileInstance(ctx, &instances[i])
	}

	return nil
}

// statusForState maps observed container state onto the FSM.
func statusForState(state container.State) (models.InstanceStatus, bool) {
	switch state {
	case container.StateRunning:
		return models.InstanceRunning, true
	case container.StateExited, container.StateDead, container.StatePaused:
		return models.InstanceStopped, true
	case container.StateNotFound:
		return models.InstanceTerminated, true
	default:
		// created/unknown carry no verdict, leave the FSM alone.
		return "", false
	}
}

func (r *Reconciler) reconcileInstance(ctx context.Context, instance *models.Instance) {
	key := instanceLockKey(instance.ProjectID, instance.Zone, instance.Name)

	r.service.locks.Lock(key)
	defer r.service.locks.Unlock(key)

	if instance.ContainerHandle == "" {
		return
	}

	state, err := r.service.driver.InspectContainer(ctx, instance.ContainerHandle)
	if err != nil {
		log.FromContext(ctx).Info("instance inspect failed", "instance", instance.Name, "error", err.Error())

		return
	}

	observed, ok := statusForState(state)
	if !ok || observed == instance.Status {
		return
	}

	// Transitional operator states settle on their own, do not fight them.
	if instance.Status == models.InstanceProvisioning && observed == models.InstanceStopped {
		return
	}

	if instance.Status == models.InstanceStopping && observed == models.InstanceStopped {
		return
	}

	log.FromContext(ctx).Info("reconciling instance state", "instance", instance.Name, "from", string(instance.Status), "to", string(observed))

	instance.Status = observed
	instance.UpdatedAt = r.service.clock.Now()

	if observed == models.InstanceTerminated {
		if err := r.service.releaseNetworking(ctx, instance); err != nil {
			log.FromContext(ctx).Error(err, "failed to release instance networking", "instance", instance.Name)
		}
	}

	if err := r.service.repos.Instances.Update(ctx, instance); err != nil {
		log.FromContext(ctx).Error(err, "failed to persist reconciled state", "instance", instance.Name)

		return
	}

	reconcileTransitionsTotal.WithLabelValues(string(observed)).Inc()
}
