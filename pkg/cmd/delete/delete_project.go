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

type deleteProjectOptions struct {
	// id is the project to delete.
	id string

	// flags is the shared connection configuration.
	flags *util.ClientFlags
}

// complete fills in any options not done automatically by flag parsing.
func (o *deleteProjectOptions) complete(args []string) error {
	if len(args) != 1 {
		return errors.ErrIncorrectArgumentNum
	}

	o.id = args[0]

	return nil
}

// run executes the command.
func (o *deleteProjectOptions) run(ctx context.Context) error {
	client := o.flags.Client()

	if err := client.Delete(ctx, "/v1/projects/"+o.id); err != nil {
		return err
	}

	fmt.Printf("Deleted project %s\n", o.id)

	return nil
}

func newDeleteProjectCommand(flags *util.ClientFlags) *cobra.Command {
	o := &deleteProjectOptions{
		flags: flags,
	}

	return &cobra.Command{
		Use:   "project [id]",
		Short: "Delete a project.",
		Long:  "Delete a project and everything scoped under it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.complete(args); err != nil {
				return err
			}

			return o.run(cmd.Context())
		},
	}
}
