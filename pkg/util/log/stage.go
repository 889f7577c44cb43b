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

package log

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Pipeline stages, attached to spans and log lines so a request can be
// traced through its numbered processing steps.  Client is the request as
// received, options is credential resolution, entry is the server span,
// route is the matched pattern, handler is body decode, service and
// repository are the business and persistence layers, formatter is the
// response on its way out.
const (
	StageClient    = 1
	StageOptions   = 2
	StageEntry     = 3
	StageRoute     = 4
	StageHandler   = 5
	StageService   = 6
	StageRepo      = 7
	StageFormatter = 8
)

// stageNames maps stage numbers to their diagnostic names.
var stageNames = map[int]string{
	StageClient:    "client",
	StageOptions:   "options",
	StageEntry:     "entry",
	StageRoute:     "route",
	StageHandler:   "handler",
	StageService:   "service",
	StageRepo:      "repository",
	StageFormatter: "formatter",
}

// StageName returns the diagnostic name of a pipeline stage.
func StageName(stage int) string {
	return stageNames[stage]
}

// StageAttributes returns the span attributes identifying a pipeline stage.
func StageAttributes(stage int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int("pipeline.stage", stage),
		attribute.String("pipeline.stage.name", stageNames[stage]),
	}
}

// Stage marks the request as having reached a pipeline stage.  It records an
// event on the active span and a verbose log line carrying the same fields.
// A context without a span records the log line only, so services stay
// usable from background workers and tests.
func Stage(ctx context.Context, stage int) {
	trace.SpanFromContext(ctx).AddEvent("pipeline.stage",
		trace.WithAttributes(StageAttributes(stage)...))

	FromContext(ctx).V(1).Info("pipeline stage",
		"pipeline.stage", stage, "pipeline.stage.name", stageNames[stage])
}
