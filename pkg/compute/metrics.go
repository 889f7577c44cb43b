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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	instanceOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cumulus_compute_instance_operations_total",
		Help: "Instance lifecycle operations, by operation.",
	}, []string{"operation"})

	reconcileTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cumulus_compute_reconcile_transitions_total",
		Help: "State transitions written by the reconciler, by target state.",
	}, []string{"state"})
)
