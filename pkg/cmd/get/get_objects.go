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
	"net/url"

	"github.com/spf13/cobra"

	"github.com/eschercloudai/cumulus/pkg/cmd/errors"
	"github.com/eschercloudai/cumulus/pkg/cmd/util"
)

type getObjectsOptions struct {
	// bucket to list.
	bucket string

	// prefix narrows the listing.
	prefix string

	// versions includes noncurrent generations.
	versions bool

	// flags is the shared connection configuration.
	flags *util.ClientFlags
}

func (o *getObjectsOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.prefix, "prefix", "", "Only list objects under this name prefix.")
	cmd.Flags().BoolVar(&o.versions, "versions", false, "Include noncurrent object generations.")
}

// complete fills in any options not done automatically by flag parsing.
func (o *getObjectsOptions) complete(args []string) error {
	if len(args) != 1 {
		return errors.ErrIncorrectArgumentNum
	}

	o.bucket = args[0]

	return nil
}

// run executes the command.
func (o *getObjectsOptions) run(ctx context.Context) error {
	client := o.flags.Client()

	var response struct {
		Items []struct {
			Name        string `json:"name"`
			Generation  string `json:"generation"`
			Size        string `json:"size"`
			ContentType string `json:"contentType"`
			Updated     string `json:"updated"`
		} `json:"items"`
	}

	query := url.Values{}

	if o.prefix != "" {
		query.Set("prefix", o.prefix)
	}

	if o.versions {
		query.Set("versions", "true")
	}

	path := "/storage/v1/b/" + o.bucket + "/o"

	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	if err := client.Get(ctx, path, &response); err != nil {
		return err
	}

	out := newTable("NAME", "GENERATION", "SIZE", "CONTENT-TYPE", "UPDATED")

	for _, object := range response.Items {
		out.row(object.Name, object.Generation, object.Size, object.ContentType, object.Updated)
	}

	return out.flush()
}

func newGetObjectsCommand(flags *util.ClientFlags) *cobra.Command {
	o := &getObjectsOptions{
		flags: flags,
	}

	cmd := &cobra.Command{
		Use:   "objects [bucket]",
		Short: "List objects in a bucket.",
		Long:  "List objects in a bucket.",
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
