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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eschercloudai/cumulus/pkg/cmd/util"
)

type getInstancesOptions struct {
	// zone narrows the listing, all zones when empty.
	zone string

	// flags is the shared connection configuration.
	flags *util.ClientFlags
}

func (o *getInstancesOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.zone, "zone", "", "Only list instances in this zone.")
}

type instanceItem struct {
	Name              string `json:"name"`
	Zone              string `json:"zone"`
	MachineType       string `json:"machineType"`
	Status            string `json:"status"`
	NetworkInterfaces []struct {
		NetworkIP     string `json:"networkIP"`
		AccessConfigs []struct {
			NatIP string `json:"natIP"`
		} `json:"accessConfigs"`
	} `json:"networkInterfaces"`
}

// run executes the command.
func (o *getInstancesOptions) run(ctx context.Context) error {
	client := o.flags.Client()

	var response struct {
		Items []instanceItem `json:"items"`
	}

	path := fmt.Sprintf("/compute/v1/projects/%s/instances", client.ProjectID())

	if o.zone != "" {
		path = fmt.Sprintf("/compute/v1/projects/%s/zones/%s/instances", client.ProjectID(), o.zone)
	}

	if err := client.Get(ctx, path, &response); err != nil {
		return err
	}

	out := newTable("NAME", "ZONE", "MACHINE-TYPE", "INTERNAL-IP", "EXTERNAL-IP", "STATUS")

	for _, instance := range response.Items {
		var internal, external string

		if len(instance.NetworkInterfaces) != 0 {
			nic := instance.NetworkInterfaces[0]

			internal = nic.NetworkIP

			if len(nic.AccessConfigs) != 0 {
				external = nic.AccessConfigs[0].NatIP
			}
		}

		out.row(instance.Name, instance.Zone, instance.MachineType, internal, external, instance.Status)
	}

	return out.flush()
}

func newGetInstancesCommand(flags *util.ClientFlags) *cobra.Command {
	o := &getInstancesOptions{
		flags: flags,
	}

	cmd := &cobra.Command{
		Use:   "instances",
		Short: "List compute instances.",
		Long:  "List compute instances across all zones, or one zone with --zone.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd.Context())
		},
	}

	o.addFlags(cmd)

	return cmd
}
