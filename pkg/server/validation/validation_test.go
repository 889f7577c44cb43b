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

package validation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eschercloudai/cumulus/pkg/errors"
	"github.com/eschercloudai/cumulus/pkg/server/validation"
)

func TestValidatorAggregates(t *testing.T) {
	t.Parallel()

	err := validation.New().
		Required("name", "").
		Pattern("zone", "US-CENTRAL1-A", validation.Zone).
		Range("priority", 100000, 0, 65535).
		Error()

	require.Error(t, err)
	assert.Equal(t, 400, errors.StatusOf(err))

	message := err.Error()
	assert.Contains(t, message, "name")
	assert.Contains(t, message, "zone")
	assert.Contains(t, message, "priority")
}

func TestValidatorPasses(t *testing.T) {
	t.Parallel()

	err := validation.New().
		Required("name", "web").
		Pattern("name", "web", validation.ResourceName).
		Pattern("zone", "us-central1-a", validation.Zone).
		Pattern("region", "europe-west1", validation.Region).
		Pattern("email", "robot@default.iam.cumulus.local", validation.Email).
		Range("priority", 1000, 0, 65535).
		Enum("direction", "INGRESS", "INGRESS", "EGRESS").
		CIDR("range", "10.0.0.0/24").
		MaxLength("description", "short", 256).
		Error()

	require.NoError(t, err)
}

func TestValidatorOptionalFields(t *testing.T) {
	t.Parallel()

	// Empty values only trip Required, never Pattern, Enum or CIDR.
	err := validation.New().
		Pattern("zone", "", validation.Zone).
		Enum("direction", "", "INGRESS", "EGRESS").
		CIDR("range", "").
		Error()

	require.NoError(t, err)
}

func TestValidatorRejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
	}{
		{"bad-cidr", validation.New().CIDR("range", "10.0.0.0/99").Error()},
		{"bad-enum", validation.New().Enum("action", "LOG", "ALLOW", "DENY").Error()},
		{"bad-email", validation.New().Pattern("email", "not-an-email", validation.Email).Error()},
		{"sql", validation.New().NoSQL("name", "x'; DROP TABLE buckets; --").Error()},
		{"too-long", validation.New().MaxLength("name", string(make([]byte, 300)), 256).Error()},
	}

	for _, c := range cases {
		require.Error(t, c.err, c.name)
		assert.Equal(t, 400, errors.StatusOf(c.err), c.name)
	}
}
