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

// Package create provides the "create" command family, one subcommand per
// resource kind.
package create

import (
	"github.com/spf13/cobra"

	"github.com/eschercloudai/cumulus/pkg/cmd/util"
)

// NewCreateCommand creates a command that allows creation of various resources.
func NewCreateCommand(flags *util.ClientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create emulator resources.",
		Long:  "Create emulator resources.",
	}

	commands := []*cobra.Command{
		newCreateProjectCommand(flags),
		newCreateBucketCommand(flags),
		newCreateInstanceCommand(flags),
		newCreateNetworkCommand(flags),
	}

	cmd.AddCommand(commands...)

	return cmd
}
