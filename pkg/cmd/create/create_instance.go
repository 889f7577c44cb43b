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

package create

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eschercloudai/cumulus/pkg/cmd/errors"
	"github.com/eschercloudai/cumulus/pkg/cmd/util"
	"github.com/eschercloudai/cumulus/pkg/constants"
)

type createInstanceOptions struct {
	// name is the instance name, unique per project and zone.
	name string

	// zone places the instance.
	zone string

	// machineType selects the resource shape.
	machineType string

	// image overrides the configured default container image.
	image string

	// network attaches the instance, the project default when empty.
	network string

	// externalIP allocates an ephemeral external address.
	externalIP bool

	// flags is the shared connection configuration.
	flags *util.ClientFlags
}

func (o *createInstanceOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.zone, "zone", "us-central1-a", "Zone to place the instance in.")
	cmd.Flags().StringVar(&o.machineType, "machine-type", "e2-medium", "Machine type resource shape.")
	cmd.Flags().StringVar(&o.image, "image", "", "Container image, the server default when empty.")
	cmd.Flags().StringVar(&o.network, "network", constants.DefaultNetwork, "Network to attach the instance to.")
	cmd.Flags().BoolVar(&o.externalIP, "external-ip", false, "Allocate an ephemeral external address.")
}

// complete fills in any options not done automatically by flag parsing.
func (o *createInstanceOptions) complete(args []string) error {
	if len(args) != 1 {
		return errors.ErrIncorrectArgumentNum
	}

	if args[0] == "" {
		return errors.ErrInvalidName
	}

	o.name = args[0]

	return nil
}

type instanceNIC struct {
	Network       string              `json:"network"`
	AccessConfigs []map[string]string `json:"accessConfigs,omitempty"`
}

type instanceRequest struct {
	Name              string        `json:"name"`
	MachineType       string        `json:"machineType,omitempty"`
	Image             string        `json:"image,omitempty"`
	NetworkInterfaces []instanceNIC `json:"networkInterfaces"`
}

// run executes the command.
func (o *createInstanceOptions) run(ctx context.Context) error {
	client := o.flags.Client()

	nic := instanceNIC{
		Network: o.network,
	}

	if o.externalIP {
		nic.AccessConfigs = []map[string]string{{}}
	}

	request := &instanceRequest{
		Name:              o.name,
		MachineType:       o.machineType,
		Image:             o.image,
		NetworkInterfaces: []instanceNIC{nic},
	}

	var operation struct {
		Status     string `json:"status"`
		TargetLink string `json:"targetLink"`
	}

	path := fmt.Sprintf("/compute/v1/projects/%s/zones/%s/instances", client.ProjectID(), o.zone)

	if err := client.Post(ctx, path, request, &operation); err != nil {
		return err
	}

	fmt.Printf("Created instance %s in %s, operation %s\n", o.name, o.zone, operation.Status)

	return nil
}

func newCreateInstanceCommand(flags *util.ClientFlags) *cobra.Command {
	o := &createInstanceOptions{
		flags: flags,
	}

	cmd := &cobra.Command{
		Use:   "instance [name]",
		Short: "Create a compute instance.",
		Long:  "Create a compute instance backed by a container on the configured runtime.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.complete(args); err != nil {
				return err
			}

			return o.run(cmd.Context())
		},
	}

	o.addFlags(cmd)

	return cmd
}
