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

package project_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eschercloudai/cumulus/pkg/compute"
	"github.com/eschercloudai/cumulus/pkg/container"
	"github.com/eschercloudai/cumulus/pkg/content"
	"github.com/eschercloudai/cumulus/pkg/db"
	"github.com/eschercloudai/cumulus/pkg/errors"
	"github.com/eschercloudai/cumulus/pkg/project"
	"github.com/eschercloudai/cumulus/pkg/storage"
	"github.com/eschercloudai/cumulus/pkg/util/clock"
	"github.com/eschercloudai/cumulus/pkg/vpc"
)

// testStack is the full service graph a project cascade reaches.
type testStack struct {
	projects *project.Service
	storage  *storage.Service
	compute  *compute.Service
	vpc      *vpc.Service
	driver   *container.FakeDriver
	store    *content.Store
}

func newTestService(t *testing.T) (*project.Service, *vpc.Service) {
	t.Helper()

	stack := newTestStack(t)

	return stack.projects, stack.vpc
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	database, err := db.Open(context.Background(), &db.Options{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)

	t.Cleanup(func() {
		database.Close()
	})

	store, err := content.New(&content.Options{Root: t.TempDir()})
	require.NoError(t, err)

	clk := clock.NewFake(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	driver := container.NewFakeDriver()

	vpcService := vpc.New(database, driver, clk)

	storageService := storage.New(database, store, clk, &storage.Options{
		EmulatorHost:      "http://localhost:6080",
		SignedURLSecret:   "test-secret",
		LifecycleInterval: time.Minute,
		SessionExpiry:     time.Hour,
	})

	computeService := compute.New(database, driver, vpcService, clk, &compute.Options{
		DefaultImage:      "registry.k8s.io/pause:3.9",
		StopTimeout:       time.Second,
		ReconcileInterval: time.Minute,
	})

	return &testStack{
		projects: project.New(database, storageService, computeService, vpcService, clk),
		storage:  storageService,
		compute:  computeService,
		vpc:      vpcService,
		driver:   driver,
		store:    store,
	}
}

func TestSeedCreatesDefaultProject(t *testing.T) {
	t.Parallel()

	service, vpcService := newTestService(t)
	ctx := context.Background()

	require.NoError(t, service.Seed(ctx))

	// Seeding twice is a no-op.
	require.NoError(t, service.Seed(ctx))

	p, err := service.Get(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ProjectNumber)

	// The default project carries an auto-mode default network.
	network, err := vpcService.GetNetwork(ctx, "default", "default")
	require.NoError(t, err)
	assert.True(t, network.AutoCreateSubnets)

	subnets, err := vpcService.ListSubnets(ctx, "default", "default")
	require.NoError(t, err)
	assert.NotEmpty(t, subnets)
}

func TestCreateProject(t *testing.T) {
	t.Parallel()

	service, _ := newTestService(t)
	ctx := context.Background()

	first, err := service.Create(ctx, "acme-prod", "Acme production")
	require.NoError(t, err)
	assert.Equal(t, "acme-prod", first.ID)

	second, err := service.Create(ctx, "acme-staging", "")
	require.NoError(t, err)
	assert.Greater(t, second.ProjectNumber, first.ProjectNumber)

	_, err = service.Create(ctx, "acme-prod", "again")
	require.Error(t, err)
	assert.True(t, errors.IsAlreadyExists(err))

	for _, id := range []string{"", "UPPER", "x", "9starts-with-digit", "ends-with-dash-"} {
		_, err := service.Create(ctx, id, "")
		assert.Error(t, err, id)
	}

	projects, err := service.List(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 2)
}

func TestDeleteProjectCascades(t *testing.T) {
	t.Parallel()

	service, vpcService := newTestService(t)
	ctx := context.Background()

	created, err := service.Create(ctx, "doomed-project", "")
	require.NoError(t, err)

	// Project creation provisions a default network.
	_, err = vpcService.GetNetwork(ctx, created.ID, "default")
	require.NoError(t, err)

	require.NoError(t, service.Delete(ctx, created.ID))

	_, err = service.Get(ctx, created.ID)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	_, err = vpcService.GetNetwork(ctx, created.ID, "default")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestDeleteProjectReleasesHostResources(t *testing.T) {
	t.Parallel()

	stack := newTestStack(t)
	ctx := context.Background()

	created, err := stack.projects.Create(ctx, "doomed-tenant", "")
	require.NoError(t, err)

	instance, err := stack.compute.RunInstance(ctx, created.ID, &compute.RunParams{
		Name:        "web",
		Zone:        "us-central1-a",
		MachineType: "e2-small",
	})
	require.NoError(t, err)

	_, err = stack.storage.CreateBucket(ctx, created.ID, &storage.BucketParams{Name: "doomed-bucket"})
	require.NoError(t, err)

	object, err := stack.storage.Upload(ctx, &storage.UploadParams{
		Bucket:      "doomed-bucket",
		Name:        "data.bin",
		Data:        []byte("payload"),
		ContentType: "application/octet-stream",
	})
	require.NoError(t, err)

	require.NoError(t, stack.projects.Delete(ctx, created.ID))

	// The backing container is gone from the runtime, not just its row.
	state, err := stack.driver.InspectContainer(ctx, instance.ContainerHandle)
	require.NoError(t, err)
	assert.Equal(t, container.StateNotFound, state)

	// The payload file is unlinked from the content store.
	_, err = stack.store.Read(object.FilePath)
	require.Error(t, err)

	_, err = stack.storage.GetBucket(ctx, "doomed-bucket")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	instances, err := stack.compute.ListInstances(ctx, created.ID, "")
	require.NoError(t, err)
	assert.Empty(t, instances)
}
