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

// Package delete provides the "delete" command family.  The package name
// shadows the builtin, callers import it for side effects on the command
// tree only.
package delete

import (
	"github.com/spf13/cobra"

	"github.com/eschercloudai/cumulus/pkg/cmd/util"
)

// NewDeleteCommand creates a command that allows deletion of various resources.
func NewDeleteCommand(flags *util.ClientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete emulator resources.",
		Long:  "Delete emulator resources.",
	}

	commands := []*cobra.Command{
		newDeleteProjectCommand(flags),
		newDeleteBucketCommand(flags),
		newDeleteObjectCommand(flags),
		newDeleteInstanceCommand(flags),
	}

	cmd.AddCommand(commands...)

	return cmd
}
