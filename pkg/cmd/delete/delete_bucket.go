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

type deleteBucketOptions struct {
	// name is the bucket to delete, it must be empty.
	name string

	// flags is the shared connection configuration.
	flags *util.ClientFlags
}

// complete fills in any options not done automatically by flag parsing.
func (o *deleteBucketOptions) complete(args []string) error {
	if len(args) != 1 {
		return errors.ErrIncorrectArgumentNum
	}

	o.name = args[0]

	return nil
}

// run executes the command.
func (o *deleteBucketOptions) run(ctx context.Context) error {
	client := o.flags.Client()

	if err := client.Delete(ctx, "/storage/v1/b/"+o.name); err != nil {
		return err
	}

	fmt.Printf("Deleted bucket %s\n", o.name)

	return nil
}

func newDeleteBucketCommand(flags *util.ClientFlags) *cobra.Command {
	o := &deleteBucketOptions{
		flags: flags,
	}

	return &cobra.Command{
		Use:   "bucket [name]",
		Short: "Delete an object storage bucket.",
		Long:  "Delete an object storage bucket.  The bucket must be empty.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.complete(args); err != nil {
				return err
			}

			return o.run(cmd.Context())
		},
	}
}
