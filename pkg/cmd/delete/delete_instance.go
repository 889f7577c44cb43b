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

package delete

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eschercloudai/cumulus/pkg/cmd/errors"
	"github.com/eschercloudai/cumulus/pkg/cmd/util"
)

type deleteInstanceOptions struct {
	// name is the instance to delete.
	name string

	// zone locates the instance.
	zone string

	// flags is the shared connection configuration.
	flags *util.ClientFlags
}

func (o *deleteInstanceOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.zone, "zone", "us-central1-a", "Zone the instance lives in.")
}

// complete fills in any options not done automatically by flag parsing.
func (o *deleteInstanceOptions) complete(args []string) error {
	if len(args) != 1 {
		return errors.ErrIncorrectArgumentNum
	}

	o.name = args[0]

	return nil
}

// run executes the command.
func (o *deleteInstanceOptions) run(ctx context.Context) error {
	client := o.flags.Client()

	path := fmt.Sprintf("/compute/v1/projects/%s/zones/%s/instances/%s", client.ProjectID(), o.zone, o.name)

	if err := client.Delete(ctx, path); err != nil {
		return err
	}

	fmt.Printf("Deleted instance %s in %s\n", o.name, o.zone)

	return nil
}

func newDeleteInstanceCommand(flags *util.ClientFlags) *cobra.Command {
	o := &deleteInstanceOptions{
		flags: flags,
	}

	cmd := &cobra.Command{
		Use:   "instance [name]",
		Short: "Delete a compute instance.",
		Long:  "Delete a compute instance, releasing its container and addresses.",
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
