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

	"github.com/spf13/cobra"

	"github.com/eschercloudai/cumulus/pkg/cmd/util"
)

type getProjectsOptions struct {
	// flags is the shared connection configuration.
	flags *util.ClientFlags
}

// run executes the command.
func (o *getProjectsOptions) run(ctx context.Context) error {
	client := o.flags.Client()

	var response struct {
		Items []struct {
			ProjectID     string `json:"projectId"`
			ProjectNumber string `json:"projectNumber"`
			DisplayName   string `json:"displayName"`
			CreateTime    string `json:"createTime"`
		} `json:"items"`
	}

	if err := client.Get(ctx, "/v1/projects", &response); err != nil {
		return err
	}

	out := newTable("PROJECT-ID", "NUMBER", "DISPLAY-NAME", "CREATED")

	for _, project := range response.Items {
		out.row(project.ProjectID, project.ProjectNumber, project.DisplayName, project.CreateTime)
	}

	return out.flush()
}

func newGetProjectsCommand(flags *util.ClientFlags) *cobra.Command {
	o := &getProjectsOptions{
		flags: flags,
	}

	return &cobra.Command{
		Use:   "projects",
		Short: "List projects.",
		Long:  "List projects.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd.Context())
		},
	}
}
