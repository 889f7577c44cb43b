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

// Package container abstracts the container runtime that backs instances and
// the network fabric that backs VPC networks.
package container

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/pflag"
)

var (
	// ErrNotFound is raised when a container or network does not exist.
	ErrNotFound = errors.New("container not found")

	// ErrTimeout is raised when a runtime call exceeds its deadline.
	// Classified as retryable by callers.
	ErrTimeout = errors.New("container runtime call timed out")
)

// State is the observed runtime state of a container.
type State string

const (
	StateRunning  State = "running"
	StateExited   State = "exited"
	StateDead     State = "dead"
	StatePaused   State = "paused"
	StateCreated  State = "created"
	StateNotFound State = "notfound"
	StateUnknown  State = "unknown"
)

// CreateSpec describes a container to create.
type CreateSpec struct {
	// Image is the image reference, pulled on demand.
	Image string

	// Name is the container name, unique on the host.
	Name string

	// CPUs is the virtual CPU allowance.
	CPUs float64

	// MemoryMB is the memory allowance in MiB.
	MemoryMB int64

	// Env is the environment, instance metadata travels here.
	Env map[string]string

	// Network is the fabric network to start attached to, empty for the
	// runtime default.
	Network string

	// IP is the fixed address on Network, empty for runtime assigned.
	IP string

	// Ports are docker style port specs ("8080:80/tcp", "443") published
	// on the host to emulate external reachability.
	Ports []string

	// Labels tag the container with owning resource identifiers.
	Labels map[string]string
}

// Driver is the narrow interface the orchestrator and VPC control plane
// program against.  Implementations bound every call with a hard per-call
// timeout and surface ErrTimeout so callers can classify it as retryable.
type Driver interface {
	// EnsureImage makes an image available locally, pulling if needed.
	EnsureImage(ctx context.Context, name string) error

	// CreateContainer creates a container, returning the runtime handle.
	CreateContainer(ctx context.Context, spec *CreateSpec) (string, error)

	// StartContainer starts a created or stopped container.
	StartContainer(ctx context.Context, id string) error

	// StopContainer stops a running container within timeoutSec.
	StopContainer(ctx context.Context, id string, timeoutSec int) error

	// RemoveContainer removes a container, optionally killing it first.
	// Removal of an absent container is a no-op during teardown.
	RemoveContainer(ctx context.Context, id string, force bool) error

	// InspectContainer returns the observed state.
	InspectContainer(ctx context.Context, id string) (State, error)

	// AttachToNetwork connects a container to a fabric network.
	AttachToNetwork(ctx context.Context, id, network string) error

	// DetachFromNetwork reverses AttachToNetwork.
	DetachFromNetwork(ctx context.Context, id, network string) error

	// EnsureNetwork creates the fabric network backing a VPC subnet if it
	// does not already exist, returning its handle.
	EnsureNetwork(ctx context.Context, name, cidr, gateway string) (string, error)

	// RemoveNetwork deletes a fabric network.
	RemoveNetwork(ctx context.Context, name string) error

	// ListImages returns locally available image references.
	ListImages(ctx context.Context) ([]string, error)
}

// Options configures the runtime driver.
type Options struct {
	// CallTimeout bounds every runtime round trip.
	CallTimeout time.Duration
}

// AddFlags registers container driver options.  The runtime socket itself is
// taken from DOCKER_HOST per the client's own conventions.
func (o *Options) AddFlags(f *pflag.FlagSet) {
	f.DurationVar(&o.CallTimeout, "container-call-timeout", 30*time.Second, "Hard per-call timeout for container runtime operations.")
}
