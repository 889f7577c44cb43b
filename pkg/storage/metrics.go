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

package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cumulus_storage_uploads_total",
		Help: "Object generations written, by bucket.",
	}, []string{"bucket"})

	eventsDeliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cumulus_storage_events_delivered_total",
		Help: "Object change event delivery attempts, by outcome.",
	}, []string{"outcome"})

	lifecycleActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cumulus_storage_lifecycle_actions_total",
		Help: "Lifecycle actions applied, by action.",
	}, []string{"action"})
)
