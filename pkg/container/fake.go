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

package container

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// FakeDriver is an in-memory Driver for tests and for running the emulator
// without a container runtime on the host.
type FakeDriver struct {
	mu sync.Mutex

	// containers maps handle to state.
	containers map[string]State

	// networks maps container handle to attached network names.
	networks map[string]map[string]bool

	// fabrics is the set of created fabric networks.
	fabrics map[string]string

	// ports maps container handle to published port specs.
	ports map[string][]string

	// images is the set of pulled images.
	images map[string]bool

	// FailCreate makes the next create fail, for FSM failure paths.
	FailCreate bool
}

var _ Driver = &FakeDriver{}

// NewFakeDriver returns an empty fake runtime.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		containers: map[string]State{},
		networks:   map[string]map[string]bool{},
		fabrics:    map[string]string{},
		ports:      map[string][]string{},
		images:     map[string]bool{},
	}
}

func (d *FakeDriver) EnsureImage(ctx context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.images[name] = true

	return nil
}

func (d *FakeDriver) CreateContainer(ctx context.Context, spec *CreateSpec) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.FailCreate {
		d.FailCreate = false

		return "", fmt.Errorf("%w: container create", ErrTimeout)
	}

	id := uuid.New().String()
	d.containers[id] = StateCreated
	d.networks[id] = map[string]bool{}

	if spec.Network != "" {
		d.networks[id][spec.Network] = true
	}

	if len(spec.Ports) != 0 {
		d.ports[id] = append([]string{}, spec.Ports...)
	}

	return id, nil
}

func (d *FakeDriver) StartContainer(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.containers[id]; !ok {
		return ErrNotFound
	}

	d.containers[id] = StateRunning

	return nil
}

func (d *FakeDriver) StopContainer(ctx context.Context, id string, timeoutSec int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.containers[id]; !ok {
		return ErrNotFound
	}

	d.containers[id] = StateExited

	return nil
}

func (d *FakeDriver) RemoveContainer(ctx context.Context, id string, force bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.containers, id)
	delete(d.networks, id)
	delete(d.ports, id)

	return nil
}

func (d *FakeDriver) InspectContainer(ctx context.Context, id string) (State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	state, ok := d.containers[id]
	if !ok {
		return StateNotFound, nil
	}

	return state, nil
}

// SetState overrides a container's state, used to exercise reconciliation.
func (d *FakeDriver) SetState(id string, state State) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.containers[id] = state
}

func (d *FakeDriver) AttachToNetwork(ctx context.Context, id, network string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	attached, ok := d.networks[id]
	if !ok {
		return ErrNotFound
	}

	attached[network] = true

	return nil
}

func (d *FakeDriver) DetachFromNetwork(ctx context.Context, id, network string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	attached, ok := d.networks[id]
	if !ok {
		return nil
	}

	delete(attached, network)

	return nil
}

// PublishedPorts returns the port specs a container was created with.
func (d *FakeDriver) PublishedPorts(id string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.ports[id]
}

// Attached reports whether a container is attached to a network.
func (d *FakeDriver) Attached(id, network string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.networks[id][network]
}

func (d *FakeDriver) EnsureNetwork(ctx context.Context, name, cidr, gateway string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if id, ok := d.fabrics[name]; ok {
		return id, nil
	}

	id := uuid.New().String()
	d.fabrics[name] = id

	return id, nil
}

func (d *FakeDriver) RemoveNetwork(ctx context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.fabrics, name)

	return nil
}

func (d *FakeDriver) ListImages(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	images := make([]string, 0, len(d.images))

	for image := range d.images {
		images = append(images, image)
	}

	return images, nil
}
