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

type createProjectOptions struct {
	// id is the project identifier, lowercase DNS label shaped.
	id string

	// displayName is the human readable name.
	displayName string

	// flags is the shared connection configuration.
	flags *util.ClientFlags
}

func (o *createProjectOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.displayName, "display-name", "", "Human readable project name.")
}

// complete fills in any options not done automatically by flag parsing.
func (o *createProjectOptions) complete(args []string) error {
	if len(args) != 1 {
		return errors.ErrIncorrectArgumentNum
	}

	if args[0] == "" {
		return errors.ErrInvalidName
	}

	o.id = args[0]

	return nil
}

// run executes the command.
func (o *createProjectOptions) run(ctx context.Context) error {
	client := o.flags.Client()

	request := map[string]string{
		"projectId":   o.id,
		"displayName": o.displayName,
	}

	var project struct {
		ProjectID     string `json:"projectId"`
		ProjectNumber string `json:"projectNumber"`
	}

	if err := client.Post(ctx, "/v1/projects", request, &project); err != nil {
		return err
	}

	fmt.Printf("Created project %s, project number %s\n", project.ProjectID, project.ProjectNumber)

	return nil
}

func newCreateProjectCommand(flags *util.ClientFlags) *cobra.Command {
	o := &createProjectOptions{
		flags: flags,
	}

	cmd := &cobra.Command{
		Use:   "project [id]",
		Short: "Create a project.",
		Long:  "Create a project.  Every project is provisioned with a default auto-mode network.",
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
