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
)

type createNetworkOptions struct {
	// name is the network name, unique per project.
	name string

	// autoSubnets provisions one subnet per region when enabled.
	autoSubnets bool

	// mtu is the advertised maximum transmission unit.
	mtu int

	// flags is the shared connection configuration.
	flags *util.ClientFlags
}

func (o *createNetworkOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.autoSubnets, "auto-subnets", false, "Provision one subnet per region automatically.")
	cmd.Flags().IntVar(&o.mtu, "mtu", 0, "Maximum transmission unit, the server defaults to 1460.")
}

// complete fills in any options not done automatically by flag parsing.
func (o *createNetworkOptions) complete(args []string) error {
	if len(args) != 1 {
		return errors.ErrIncorrectArgumentNum
	}

	if args[0] == "" {
		return errors.ErrInvalidName
	}

	o.name = args[0]

	return nil
}

// run executes the command.
func (o *createNetworkOptions) run(ctx context.Context) error {
	client := o.flags.Client()

	request := map[string]interface{}{
		"name":                  o.name,
		"autoCreateSubnetworks": o.autoSubnets,
	}

	if o.mtu != 0 {
		request["mtu"] = o.mtu
	}

	var operation struct {
		Status string `json:"status"`
	}

	path := "/compute/v1/projects/" + client.ProjectID() + "/global/networks"

	if err := client.Post(ctx, path, request, &operation); err != nil {
		return err
	}

	fmt.Printf("Created network %s, operation %s\n", o.name, operation.Status)

	return nil
}

func newCreateNetworkCommand(flags *util.ClientFlags) *cobra.Command {
	o := &createNetworkOptions{
		flags: flags,
	}

	cmd := &cobra.Command{
		Use:   "network [name]",
		Short: "Create a VPC network.",
		Long:  "Create a VPC network.",
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
