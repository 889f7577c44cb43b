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

// Package get provides the "get" command family, tabulated listings of
// emulator resources.
package get

import (
	"github.com/spf13/cobra"

	"github.com/eschercloudai/cumulus/pkg/cmd/util"
)

// NewGetCommand creates a command that lists various resources.
func NewGetCommand(flags *util.ClientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "List emulator resources.",
		Long:  "List emulator resources.",
	}

	commands := []*cobra.Command{
		newGetProjectsCommand(flags),
		newGetBucketsCommand(flags),
		newGetObjectsCommand(flags),
		newGetInstancesCommand(flags),
		newGetNetworksCommand(flags),
	}

	cmd.AddCommand(commands...)

	return cmd
}
