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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eschercloudai/cumulus/pkg/compute"
	"github.com/eschercloudai/cumulus/pkg/container"
	"github.com/eschercloudai/cumulus/pkg/db"
	"github.com/eschercloudai/cumulus/pkg/errors"
	"github.com/eschercloudai/cumulus/pkg/models"
	"github.com/eschercloudai/cumulus/pkg/util/clock"
	"github.com/eschercloudai/cumulus/pkg/vpc"
)

const testProject = "default"

func newTestService(t *testing.T) (*compute.Service, *vpc.Service, *container.FakeDriver) {
	t.Helper()

	ctx := context.Background()

	database, err := db.Open(ctx, &db.Options{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)

	t.Cleanup(func() {
		database.Close()
	})

	clk := clock.NewFake(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	_, err = database.ExecContext(ctx, `INSERT INTO projects (id, display_name, project_number, created_at) VALUES (?, ?, ?, ?)`,
		testProject, "Default project", 1, clk.Now())
	require.NoError(t, err)

	driver := container.NewFakeDriver()
	vpcService := vpc.New(database, driver, clk)

	_, err = vpcService.CreateNetwork(ctx, testProject, &vpc.NetworkParams{
		Name:              "default",
		AutoCreateSubnets: true,
	})
	require.NoError(t, err)

	service := compute.New(database, driver, vpcService, clk, &compute.Options{
		DefaultImage:      "registry.k8s.io/pause:3.9",
		StopTimeout:       time.Second,
		ReconcileInterval: time.Minute,
	})

	return service, vpcService, driver
}

func runInstance(t *testing.T, service *compute.Service, params *compute.RunParams) *models.Instance {
	t.Helper()

	instance, err := service.RunInstance(context.Background(), testProject, params)
	require.NoError(t, err)

	return instance
}

func TestRunInstance(t *testing.T) {
	t.Parallel()

	service, _, driver := newTestService(t)
	ctx := context.Background()

	instance := runInstance(t, service, &compute.RunParams{
		Name:        "web",
		Zone:        "us-central1-a",
		MachineType: "e2-small",
		Metadata:    map[string]string{"startup": "true"},
	})

	assert.Equal(t, models.InstanceRunning, instance.Status)
	assert.Equal(t, "10.128.0.4", instance.InternalIP)
	assert.Nil(t, instance.ExternalIP)
	require.NotEmpty(t, instance.ContainerHandle)

	state, err := driver.InspectContainer(ctx, instance.ContainerHandle)
	require.NoError(t, err)
	assert.Equal(t, container.StateRunning, state)

	_, err = service.RunInstance(ctx, testProject, &compute.RunParams{
		Name:        "web",
		Zone:        "us-central1-a",
		MachineType: "e2-small",
	})
	require.Error(t, err)
	assert.True(t, errors.IsAlreadyExists(err))
}

func TestRunInstanceValidation(t *testing.T) {
	t.Parallel()

	service, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.RunInstance(ctx, testProject, &compute.RunParams{
		Name:        "web",
		Zone:        "mars-north1-a",
		MachineType: "e2-small",
	})
	require.Error(t, err)
	assert.Equal(t, 400, errors.StatusOf(err))

	_, err = service.RunInstance(ctx, testProject, &compute.RunParams{
		Name:        "web",
		Zone:        "us-central1-a",
		MachineType: "z9-mega",
	})
	require.Error(t, err)
	assert.Equal(t, 400, errors.StatusOf(err))
}

func TestRunInstanceCreateFailure(t *testing.T) {
	t.Parallel()

	service, _, driver := newTestService(t)
	ctx := context.Background()

	driver.FailCreate = true

	_, err := service.RunInstance(ctx, testProject, &compute.RunParams{
		Name:        "doomed",
		Zone:        "us-central1-a",
		MachineType: "e2-small",
	})
	require.Error(t, err)

	// The row survives as a tombstone for post-mortems.
	instance, err := service.GetInstance(ctx, testProject, "us-central1-a", "doomed")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceTerminated, instance.Status)
}

func TestStopStartCycle(t *testing.T) {
	t.Parallel()

	service, _, driver := newTestService(t)
	ctx := context.Background()

	runInstance(t, service, &compute.RunParams{
		Name:        "web",
		Zone:        "us-central1-a",
		MachineType: "e2-small",
	})

	instance, err := service.StopInstance(ctx, testProject, "us-central1-a", "web")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStopped, instance.Status)

	state, err := driver.InspectContainer(ctx, instance.ContainerHandle)
	require.NoError(t, err)
	assert.Equal(t, container.StateExited, state)

	// Stop is not legal twice.
	_, err = service.StopInstance(ctx, testProject, "us-central1-a", "web")
	require.Error(t, err)
	assert.Equal(t, 400, errors.StatusOf(err))

	instance, err = service.StartInstance(ctx, testProject, "us-central1-a", "web")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceRunning, instance.Status)
}

func TestStopStartKeepsExternalAddress(t *testing.T) {
	t.Parallel()

	service, _, _ := newTestService(t)
	ctx := context.Background()

	instance := runInstance(t, service, &compute.RunParams{
		Name:             "web",
		Zone:             "us-central1-a",
		MachineType:      "e2-small",
		AllocateExternal: true,
	})
	require.NotNil(t, instance.ExternalIP)

	_, err := service.StopInstance(ctx, testProject, "us-central1-a", "web")
	require.NoError(t, err)

	// Restart draws a fresh ephemeral address.
	instance, err = service.StartInstance(ctx, testProject, "us-central1-a", "web")
	require.NoError(t, err)
	require.NotNil(t, instance.ExternalIP)
	assert.Contains(t, *instance.ExternalIP, "34.")
}

func TestRunInstancePublishesPorts(t *testing.T) {
	t.Parallel()

	service, _, driver := newTestService(t)

	withExternal := runInstance(t, service, &compute.RunParams{
		Name:             "edge",
		Zone:             "us-central1-a",
		MachineType:      "e2-small",
		AllocateExternal: true,
		Metadata:         map[string]string{"ports": "8080:80/tcp,8443:443/tcp"},
	})

	assert.Equal(t, []string{"8080:80/tcp", "8443:443/tcp"}, driver.PublishedPorts(withExternal.ContainerHandle))

	// Without an external address the ports metadata is inert.
	internalOnly := runInstance(t, service, &compute.RunParams{
		Name:        "backend",
		Zone:        "us-central1-a",
		MachineType: "e2-small",
		Metadata:    map[string]string{"ports": "8080:80/tcp"},
	})

	assert.Empty(t, driver.PublishedPorts(internalOnly.ContainerHandle))
}

func TestDeleteInstance(t *testing.T) {
	t.Parallel()

	service, _, driver := newTestService(t)
	ctx := context.Background()

	created := runInstance(t, service, &compute.RunParams{
		Name:        "web",
		Zone:        "us-central1-a",
		MachineType: "e2-small",
	})

	instance, err := service.DeleteInstance(ctx, testProject, "us-central1-a", "web")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceTerminated, instance.Status)

	state, err := driver.InspectContainer(ctx, created.ContainerHandle)
	require.NoError(t, err)
	assert.Equal(t, container.StateNotFound, state)

	// Delete is idempotent on a terminated instance.
	instance, err = service.DeleteInstance(ctx, testProject, "us-central1-a", "web")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceTerminated, instance.Status)

	// The allocation cursor moves on, the next instance gets a fresh
	// address rather than immediately reusing the freed one.
	next := runInstance(t, service, &compute.RunParams{
		Name:        "web2",
		Zone:        "us-central1-a",
		MachineType: "e2-small",
	})
	assert.Equal(t, "10.128.0.5", next.InternalIP)
}

func TestAccessConfigEphemeral(t *testing.T) {
	t.Parallel()

	service, _, _ := newTestService(t)
	ctx := context.Background()

	runInstance(t, service, &compute.RunParams{
		Name:        "web",
		Zone:        "us-central1-a",
		MachineType: "e2-small",
	})

	instance, err := service.AddAccessConfig(ctx, testProject, "us-central1-a", "web", "")
	require.NoError(t, err)
	require.NotNil(t, instance.ExternalIP)

	_, err = service.AddAccessConfig(ctx, testProject, "us-central1-a", "web", "")
	require.Error(t, err)
	assert.True(t, errors.IsAlreadyExists(err))

	instance, err = service.DeleteAccessConfig(ctx, testProject, "us-central1-a", "web")
	require.NoError(t, err)
	assert.Nil(t, instance.ExternalIP)

	_, err = service.DeleteAccessConfig(ctx, testProject, "us-central1-a", "web")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestAccessConfigStaticAddress(t *testing.T) {
	t.Parallel()

	service, vpcService, _ := newTestService(t)
	ctx := context.Background()

	address, err := vpcService.ReserveAddress(ctx, testProject, &vpc.AddressParams{
		Name:   "web-ip",
		Region: "us-central1",
	})
	require.NoError(t, err)

	runInstance(t, service, &compute.RunParams{
		Name:        "web",
		Zone:        "us-central1-a",
		MachineType: "e2-small",
	})

	instance, err := service.AddAccessConfig(ctx, testProject, "us-central1-a", "web", "web-ip")
	require.NoError(t, err)
	require.NotNil(t, instance.ExternalIP)
	assert.Equal(t, address.IP, *instance.ExternalIP)

	bound, err := vpcService.GetAddress(ctx, testProject, "us-central1", "web-ip")
	require.NoError(t, err)
	assert.Equal(t, models.AddressInUse, bound.Status)

	_, err = service.DeleteAccessConfig(ctx, testProject, "us-central1-a", "web")
	require.NoError(t, err)

	released, err := vpcService.GetAddress(ctx, testProject, "us-central1", "web-ip")
	require.NoError(t, err)
	assert.Equal(t, models.AddressReserved, released.Status)
}

func TestCatalog(t *testing.T) {
	t.Parallel()

	types := compute.ListMachineTypes()
	require.NotEmpty(t, types)
	assert.True(t, sortedByName(types))

	machineType, err := compute.LookupMachineType("e2-medium")
	require.NoError(t, err)
	assert.Equal(t, int64(4096), machineType.MemoryMB)

	_, err = compute.LookupMachineType("nope")
	require.Error(t, err)

	assert.Equal(t, "us-central1", compute.RegionForZone("us-central1-a"))
	require.NoError(t, compute.ValidateZone("europe-west1-b"))
	require.Error(t, compute.ValidateZone("europe-west9-z"))
}

func sortedByName(types []compute.MachineType) bool {
	for i := 1; i < len(types); i++ {
		if types[i-1].Name > types[i].Name {
			return false
		}
	}

	return true
}
