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

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/eschercloudai/cumulus/pkg/cmd/create"
	"github.com/eschercloudai/cumulus/pkg/cmd/delete"
	"github.com/eschercloudai/cumulus/pkg/cmd/get"
	"github.com/eschercloudai/cumulus/pkg/cmd/util"
	"github.com/eschercloudai/cumulus/pkg/constants"
)

const rootLongDesc = `EscherCloud local cloud emulator CLI.

This CLI drives a running emulator over its REST API: object storage
buckets and objects, compute instances and VPC networks, all scoped to
a project.  Point it at your emulator with --endpoint, the seeded
"default" project is assumed unless --project says otherwise.`

// newRootCommand returns the root command and all its subordinates.
// Connection flags are persistent so every subcommand inherits them.
func newRootCommand() *cobra.Command {
	flags := util.NewClientFlags()

	cmd := &cobra.Command{
		Use:   constants.Application,
		Short: "EscherCloud local cloud emulator CLI.",
		Long:  rootLongDesc,
	}

	flags.AddFlags(cmd.PersistentFlags())

	commands := []*cobra.Command{
		newVersionCommand(),
		create.NewCreateCommand(flags),
		delete.NewDeleteCommand(flags),
		get.NewGetCommand(flags),
	}

	cmd.AddCommand(commands...)

	return cmd
}

// Generate creates a hierarchy of cobra commands for the application.  It can
// also be used to walk the structure and generate documentation for example.
func Generate() *cobra.Command {
	return newRootCommand()
}
