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
	"net/url"

	"github.com/spf13/cobra"

	"github.com/eschercloudai/cumulus/pkg/cmd/errors"
	"github.com/eschercloudai/cumulus/pkg/cmd/util"
)

type createBucketOptions struct {
	// name is the bucket name, globally unique.
	name string

	// location is the advertised bucket location.
	location string

	// storageClass is the default storage class for new objects.
	storageClass string

	// versioning retains noncurrent object generations when enabled.
	versioning bool

	// flags is the shared connection configuration.
	flags *util.ClientFlags
}

func (o *createBucketOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.location, "location", "", "Bucket location, the server defaults to US.")
	cmd.Flags().StringVar(&o.storageClass, "storage-class", "", "Default storage class, the server defaults to STANDARD.")
	cmd.Flags().BoolVar(&o.versioning, "versioning", false, "Retain noncurrent object generations.")
}

// complete fills in any options not done automatically by flag parsing.
func (o *createBucketOptions) complete(args []string) error {
	if len(args) != 1 {
		return errors.ErrIncorrectArgumentNum
	}

	if args[0] == "" {
		return errors.ErrInvalidName
	}

	o.name = args[0]

	return nil
}

type bucketRequest struct {
	Name         string             `json:"name"`
	Location     string             `json:"location,omitempty"`
	StorageClass string             `json:"storageClass,omitempty"`
	Versioning   *versioningRequest `json:"versioning,omitempty"`
}

type versioningRequest struct {
	Enabled bool `json:"enabled"`
}

// run executes the command.
func (o *createBucketOptions) run(ctx context.Context) error {
	client := o.flags.Client()

	request := &bucketRequest{
		Name:         o.name,
		Location:     o.location,
		StorageClass: o.storageClass,
	}

	if o.versioning {
		request.Versioning = &versioningRequest{Enabled: true}
	}

	var bucket struct {
		Name         string `json:"name"`
		Location     string `json:"location"`
		StorageClass string `json:"storageClass"`
	}

	path := "/storage/v1/b?project=" + url.QueryEscape(client.ProjectID())

	if err := client.Post(ctx, path, request, &bucket); err != nil {
		return err
	}

	fmt.Printf("Created bucket %s in %s, storage class %s\n", bucket.Name, bucket.Location, bucket.StorageClass)

	return nil
}

func newCreateBucketCommand(flags *util.ClientFlags) *cobra.Command {
	o := &createBucketOptions{
		flags: flags,
	}

	cmd := &cobra.Command{
		Use:   "bucket [name]",
		Short: "Create an object storage bucket.",
		Long:  "Create an object storage bucket.",
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
