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

package get

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/eschercloudai/cumulus/pkg/cmd/util"
)

type getNetworksOptions struct {
	// flags is the shared connection configuration.
	flags *util.ClientFlags
}

// run executes the command.
func (o *getNetworksOptions) run(ctx context.Context) error {
	client := o.flags.Client()

	var response struct {
		Items []struct {
			Name                  string `json:"name"`
			AutoCreateSubnetworks bool   `json:"autoCreateSubnetworks"`
			MTU                   int    `json:"mtu"`
			RoutingConfig         struct {
				RoutingMode string `json:"routingMode"`
			} `json:"routingConfig"`
			Peerings []struct {
				Name string `json:"name"`
			} `json:"peerings"`
		} `json:"items"`
	}

	path := "/compute/v1/projects/" + client.ProjectID() + "/global/networks"

	if err := client.Get(ctx, path, &response); err != nil {
		return err
	}

	out := newTable("NAME", "MODE", "MTU", "ROUTING", "PEERINGS")

	for _, network := range response.Items {
		mode := "custom"

		if network.AutoCreateSubnetworks {
			mode = "auto"
		}

		out.row(network.Name, mode, strconv.Itoa(network.MTU), network.RoutingConfig.RoutingMode, strconv.Itoa(len(network.Peerings)))
	}

	return out.flush()
}

func newGetNetworksCommand(flags *util.ClientFlags) *cobra.Command {
	o := &getNetworksOptions{
		flags: flags,
	}

	return &cobra.Command{
		Use:   "networks",
		Short: "List VPC networks.",
		Long:  "List VPC networks.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd.Context())
		},
	}
}
