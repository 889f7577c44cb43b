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
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"

	"github.com/eschercloudai/cumulus/pkg/util/log"
)

// DockerDriver implements Driver against a docker compatible runtime.
type DockerDriver struct {
	cli     client.APIClient
	timeout time.Duration
}

var _ Driver = &DockerDriver{}

// NewDockerDriver connects to the runtime named by DOCKER_HOST (or the
// platform default socket) with API version negotiation.
func NewDockerDriver(options *Options) (*DockerDriver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &DockerDriver{
		cli:     cli,
		timeout: options.Timeout(),
	}, nil
}

// Timeout returns the per-call timeout with a safe default.
func (o *Options) Timeout() time.Duration {
	if o.CallTimeout == 0 {
		return 30 * time.Second
	}

	return o.CallTimeout
}

// call runs fn under the per-call deadline, logging the duration and
// translating deadline expiry so callers can classify it as retryable.
func (d *DockerDriver) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()

	err := fn(ctx)

	duration := time.Since(start)

	if err != nil {
		log.FromContext(ctx).Info("container runtime call failed", "op", op, "duration", duration.String(), "error", err.Error())

		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s after %s", ErrTimeout, op, duration)
		}

		if errdefs.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, op)
		}

		return err
	}

	log.FromContext(ctx).V(1).Info("container runtime call", "op", op, "duration", duration.String())

	return nil
}

func (d *DockerDriver) EnsureImage(ctx context.Context, name string) error {
	return d.call(ctx, "image pull", func(ctx context.Context) error {
		reader, err := d.cli.ImagePull(ctx, name, types.ImagePullOptions{})
		if err != nil {
			return err
		}

		defer reader.Close()

		// The pull streams progress JSON, drain it to completion.
		_, err = io.Copy(io.Discard, reader)

		return err
	})
}

func (d *DockerDriver) CreateContainer(ctx context.Context, spec *CreateSpec) (string, error) {
	var id string

	err := d.call(ctx, "container create", func(ctx context.Context) error {
		env := make([]string, 0, len(spec.Env))

		for k, v := range spec.Env {
			env = append(env, k+"="+v)
		}

		config := &container.Config{
			Image:  spec.Image,
			Env:    env,
			Labels: spec.Labels,
		}

		hostConfig := &container.HostConfig{
			Resources: container.Resources{
				NanoCPUs: int64(spec.CPUs * 1e9),
				Memory:   spec.MemoryMB << 20,
			},
		}

		if len(spec.Ports) != 0 {
			exposed, bindings, err := nat.ParsePortSpecs(spec.Ports)
			if err != nil {
				return fmt.Errorf("invalid port spec: %w", err)
			}

			config.ExposedPorts = exposed
			hostConfig.PortBindings = bindings
		}

		var networkConfig *network.NetworkingConfig

		if spec.Network != "" {
			endpoint := &network.EndpointSettings{}

			if spec.IP != "" {
				endpoint.IPAMConfig = &network.EndpointIPAMConfig{
					IPv4Address: spec.IP,
				}
			}

			networkConfig = &network.NetworkingConfig{
				EndpointsConfig: map[string]*network.EndpointSettings{
					spec.Network: endpoint,
				},
			}
		}

		response, err := d.cli.ContainerCreate(ctx, config, hostConfig, networkConfig, nil, spec.Name)
		if err != nil {
			return err
		}

		id = response.ID

		return nil
	})

	return id, err
}

func (d *DockerDriver) StartContainer(ctx context.Context, id string) error {
	return d.call(ctx, "container start", func(ctx context.Context) error {
		return d.cli.ContainerStart(ctx, id, types.ContainerStartOptions{})
	})
}

func (d *DockerDriver) StopContainer(ctx context.Context, id string, timeoutSec int) error {
	return d.call(ctx, "container stop", func(ctx context.Context) error {
		err := d.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeoutSec})

		// Already stopped is success during teardown.
		if err != nil && errdefs.IsNotModified(err) {
			return nil
		}

		return err
	})
}

func (d *DockerDriver) RemoveContainer(ctx context.Context, id string, force bool) error {
	err := d.call(ctx, "container remove", func(ctx context.Context) error {
		return d.cli.ContainerRemove(ctx, id, types.ContainerRemoveOptions{Force: force})
	})

	// No such container is success during teardown.
	if errors.Is(err, ErrNotFound) {
		return nil
	}

	return err
}

func (d *DockerDriver) InspectContainer(ctx context.Context, id string) (State, error) {
	state := StateUnknown

	err := d.call(ctx, "container inspect", func(ctx context.Context) error {
		info, err := d.cli.ContainerInspect(ctx, id)
		if err != nil {
			return err
		}

		if info.State == nil {
			return nil
		}

		switch info.State.Status {
		case "running", "restarting":
			state = StateRunning
		case "exited":
			state = StateExited
		case "dead", "removing":
			state = StateDead
		case "paused":
			state = StatePaused
		case "created":
			state = StateCreated
		}

		return nil
	})

	if errors.Is(err, ErrNotFound) {
		return StateNotFound, nil
	}

	if err != nil {
		return StateUnknown, err
	}

	return state, nil
}

func (d *DockerDriver) AttachToNetwork(ctx context.Context, id, networkName string) error {
	return d.call(ctx, "network connect", func(ctx context.Context) error {
		err := d.cli.NetworkConnect(ctx, networkName, id, &network.EndpointSettings{})

		// Already attached is idempotent success.
		if err != nil && errdefs.IsForbidden(err) {
			return nil
		}

		return err
	})
}

func (d *DockerDriver) DetachFromNetwork(ctx context.Context, id, networkName string) error {
	err := d.call(ctx, "network disconnect", func(ctx context.Context) error {
		return d.cli.NetworkDisconnect(ctx, networkName, id, true)
	})

	if errors.Is(err, ErrNotFound) {
		return nil
	}

	return err
}

func (d *DockerDriver) EnsureNetwork(ctx context.Context, name, cidr, gateway string) (string, error) {
	var id string

	err := d.call(ctx, "network create", func(ctx context.Context) error {
		existing, err := d.cli.NetworkInspect(ctx, name, types.NetworkInspectOptions{})
		if err == nil {
			id = existing.ID

			return nil
		}

		if !errdefs.IsNotFound(err) {
			return err
		}

		response, err := d.cli.NetworkCreate(ctx, name, types.NetworkCreate{
			Driver: "bridge",
			IPAM: &network.IPAM{
				Config: []network.IPAMConfig{
					{
						Subnet:  cidr,
						Gateway: gateway,
					},
				},
			},
		})
		if err != nil {
			return err
		}

		id = response.ID

		return nil
	})

	return id, err
}

func (d *DockerDriver) RemoveNetwork(ctx context.Context, name string) error {
	err := d.call(ctx, "network remove", func(ctx context.Context) error {
		return d.cli.NetworkRemove(ctx, name)
	})

	if errors.Is(err, ErrNotFound) {
		return nil
	}

	return err
}

func (d *DockerDriver) ListImages(ctx context.Context) ([]string, error) {
	var images []string

	err := d.call(ctx, "image list", func(ctx context.Context) error {
		summaries, err := d.cli.ImageList(ctx, types.ImageListOptions{})
		if err != nil {
			return err
		}

		for i := range summaries {
			images = append(images, summaries[i].RepoTags...)
		}

		return nil
	})

	return images, err
}
