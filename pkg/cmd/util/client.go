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

package util

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/pflag"

	"github.com/eschercloudai/cumulus/pkg/constants"
)

// ClientFlags holds the connection options shared by every subcommand.
type ClientFlags struct {
	// Endpoint is the emulator base URL.
	Endpoint string

	// APIKey is attached to every request when set.
	APIKey string

	// Project scopes project level resources.
	Project string
}

// NewClientFlags returns an initialized flag set.
func NewClientFlags() *ClientFlags {
	return &ClientFlags{}
}

// AddFlags registers the connection flags on the root command so they are
// inherited everywhere.
func (f *ClientFlags) AddFlags(flags *pflag.FlagSet) {
	flags.StringVar(&f.Endpoint, "endpoint", "http://localhost:6080", "Emulator endpoint base URL.")
	flags.StringVar(&f.APIKey, "api-key", "", "API key to authenticate with, optional.")
	flags.StringVar(&f.Project, "project", constants.DefaultProject, "Project to operate on.")
}

// Client returns a REST client bound to the configured endpoint.
func (f *ClientFlags) Client() *Client {
	return &Client{
		flags: f,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is the decoded server error envelope.
type APIError struct {
	Code    int    `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Status, e.Code, e.Message)
}

// Client is a minimal REST client for the emulator API.
type Client struct {
	flags  *ClientFlags
	client *http.Client
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body *bytes.Reader

	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}

		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.flags.Endpoint+path, body)
	if err != nil {
		return err
	}

	request.Header.Set("User-Agent", constants.VersionString())

	if in != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	if c.flags.APIKey != "" {
		request.Header.Set("X-Api-Key", c.flags.APIKey)
	}

	response, err := c.client.Do(request)
	if err != nil {
		return err
	}

	defer response.Body.Close()

	if response.StatusCode >= http.StatusBadRequest {
		var envelope struct {
			Error APIError `json:"error"`
		}

		if err := json.NewDecoder(response.Body).Decode(&envelope); err != nil {
			return fmt.Errorf("%w: unexpected response %d", err, response.StatusCode)
		}

		return &envelope.Error
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(response.Body).Decode(out)
}

// Get issues a GET and decodes the response into out.
func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, in, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, in, out)
}

// Delete issues a DELETE, discarding any response body.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// ProjectID returns the configured project.
func (c *Client) ProjectID() string {
	return c.flags.Project
}
