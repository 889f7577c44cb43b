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

package compute

import (
	"github.com/eschercloudai/cumulus/pkg/errors"
	"github.com/eschercloudai/cumulus/pkg/models"
)

// Event is an operator or runtime initiated state machine input.
type Event string

const (
	EventProvisioned Event = "provisioned"
	EventStop        Event = "stop"
	EventStopped     Event = "stopped"
	EventStart       Event = "start"
	EventDelete      Event = "delete"
	EventCreateFail  Event = "create-failed"
)

// transitions is the legal edge set.  TERMINATED is a sink, delete is legal
// from every live state.
var transitions = map[models.InstanceStatus]map[Event]models.InstanceStatus{
	models.InstanceProvisioning: {
		EventProvisioned: models.InstanceRunning,
		EventCreateFail:  models.InstanceTerminated,
		EventDelete:      models.InstanceTerminated,
	},
	models.InstanceRunning: {
		EventStop:   models.InstanceStopping,
		EventDelete: models.InstanceTerminated,
	},
	models.InstanceStopping: {
		EventStopped: models.InstanceStopped,
		EventDelete:  models.InstanceTerminated,
	},
	models.InstanceStopped: {
		EventStart:  models.InstanceRunning,
		EventDelete: models.InstanceTerminated,
	},
}

// Transition returns the next state, or InvalidArgument when the event is
// not legal from the current state.
func Transition(from models.InstanceStatus, event Event) (models.InstanceStatus, error) {
	if next, ok := transitions[from][event]; ok {
		return next, nil
	}

	return from, errors.InvalidArgument("illegal instance state transition").
		WithValues("from", string(from), "event", string(event))
}
