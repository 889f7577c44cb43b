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

package compute_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eschercloudai/cumulus/pkg/compute"
	"github.com/eschercloudai/cumulus/pkg/container"
	"github.com/eschercloudai/cumulus/pkg/models"
)

func TestReconcileObservedExit(t *testing.T) {
	t.Parallel()

	service, _, driver := newTestService(t)
	ctx := context.Background()

	instance := runInstance(t, service, &compute.RunParams{
		Name:        "web",
		Zone:        "us-central1-a",
		MachineType: "e2-small",
	})

	// The container died behind our back.
	driver.SetState(instance.ContainerHandle, container.StateExited)

	require.NoError(t, compute.NewReconciler(service).RunOnce(ctx))

	reconciled, err := service.GetInstance(ctx, testProject, "us-central1-a", "web")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStopped, reconciled.Status)

	// A stopped instance can be started again through the normal path.
	started, err := service.StartInstance(ctx, testProject, "us-central1-a", "web")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceRunning, started.Status)
}

func TestReconcileContainerGone(t *testing.T) {
	t.Parallel()

	service, _, driver := newTestService(t)
	ctx := context.Background()

	instance := runInstance(t, service, &compute.RunParams{
		Name:        "web",
		Zone:        "us-central1-a",
		MachineType: "e2-small",
	})

	require.NoError(t, driver.RemoveContainer(ctx, instance.ContainerHandle, true))

	require.NoError(t, compute.NewReconciler(service).RunOnce(ctx))

	reconciled, err := service.GetInstance(ctx, testProject, "us-central1-a", "web")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceTerminated, reconciled.Status)
}

func TestReconcileLeavesSettledStatesAlone(t *testing.T) {
	t.Parallel()

	service, _, _ := newTestService(t)
	ctx := context.Background()

	runInstance(t, service, &compute.RunParams{
		Name:        "web",
		Zone:        "us-central1-a",
		MachineType: "e2-small",
	})

	// Nothing changed in the runtime, nothing changes in the database.
	require.NoError(t, compute.NewReconciler(service).RunOnce(ctx))

	instance, err := service.GetInstance(ctx, testProject, "us-central1-a", "web")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceRunning, instance.Status)
}
