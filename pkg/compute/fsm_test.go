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

package compute_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eschercloudai/cumulus/pkg/compute"
	"github.com/eschercloudai/cumulus/pkg/errors"
	"github.com/eschercloudai/cumulus/pkg/models"
)

func TestTransitions(t *testing.T) {
	t.Parallel()

	legal := []struct {
		from  models.InstanceStatus
		event compute.Event
		to    models.InstanceStatus
	}{
		{models.InstanceProvisioning, compute.EventProvisioned, models.InstanceRunning},
		{models.InstanceProvisioning, compute.EventCreateFail, models.InstanceTerminated},
		{models.InstanceRunning, compute.EventStop, models.InstanceStopping},
		{models.InstanceStopping, compute.EventStopped, models.InstanceStopped},
		{models.InstanceStopped, compute.EventStart, models.InstanceRunning},
		{models.InstanceProvisioning, compute.EventDelete, models.InstanceTerminated},
		{models.InstanceRunning, compute.EventDelete, models.InstanceTerminated},
		{models.InstanceStopping, compute.EventDelete, models.InstanceTerminated},
		{models.InstanceStopped, compute.EventDelete, models.InstanceTerminated},
	}

	for _, c := range legal {
		next, err := compute.Transition(c.from, c.event)
		require.NoError(t, err, "%s + %s", c.from, c.event)
		assert.Equal(t, c.to, next)
	}

	illegal := []struct {
		from  models.InstanceStatus
		event compute.Event
	}{
		{models.InstanceRunning, compute.EventStart},
		{models.InstanceStopped, compute.EventStop},
		{models.InstanceProvisioning, compute.EventStop},
		{models.InstanceTerminated, compute.EventStart},
		{models.InstanceTerminated, compute.EventDelete},
	}

	for _, c := range illegal {
		_, err := compute.Transition(c.from, c.event)
		require.Error(t, err, "%s + %s", c.from, c.event)
		assert.Equal(t, 400, errors.StatusOf(err))
	}
}
