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

	"github.com/eschercloudai/cumulus/pkg/cmd/util"
)

type getBucketsOptions struct {
	// flags is the shared connection configuration.
	flags *util.ClientFlags
}

// run executes the command.
func (o *getBucketsOptions) run(ctx context.Context) error {
	client := o.flags.Client()

	var response struct {
		Items []struct {
			Name         string `json:"name"`
			Location     string `json:"location"`
			StorageClass string `json:"storageClass"`
			TimeCreated  string `json:"timeCreated"`
		} `json:"items"`
	}

	path := "/storage/v1/b?project=" + url.QueryEscape(client.ProjectID())

	if err := client.Get(ctx, path, &response); err != nil {
		return err
	}

	out := newTable("NAME", "LOCATION", "CLASS", "CREATED")

	for _, bucket := range response.Items {
		out.row(bucket.Name, bucket.Location, bucket.StorageClass, bucket.TimeCreated)
	}

	return out.flush()
}

func newGetBucketsCommand(flags *util.ClientFlags) *cobra.Command {
	o := &getBucketsOptions{
		flags: flags,
	}

	return &cobra.Command{
		Use:   "buckets",
		Short: "List object storage buckets.",
		Long:  "List object storage buckets.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd.Context())
		},
	}
}
