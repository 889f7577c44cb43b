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

package log_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/eschercloudai/cumulus/pkg/util/log"
)

func TestStageAttributes(t *testing.T) {
	t.Parallel()

	attributes := log.StageAttributes(log.StageService)
	require.Len(t, attributes, 2)
	assert.Equal(t, attribute.Int("pipeline.stage", 6), attributes[0])
	assert.Equal(t, attribute.String("pipeline.stage.name", "service"), attributes[1])

	assert.Equal(t, "client", log.StageName(log.StageClient))
	assert.Equal(t, "formatter", log.StageName(log.StageFormatter))
}

func TestStageRecordsSpanEvent(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	ctx, span := provider.Tracer("test").Start(context.Background(), "request")

	log.Stage(ctx, log.StageRepo)

	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events(), 1)

	event := spans[0].Events()[0]
	assert.Equal(t, "pipeline.stage", event.Name)
	assert.Contains(t, event.Attributes, attribute.Int("pipeline.stage", log.StageRepo))
	assert.Contains(t, event.Attributes, attribute.String("pipeline.stage.name", "repository"))
}

func TestStageWithoutSpan(t *testing.T) {
	t.Parallel()

	// Background workers call services with no span in their context.
	log.Stage(context.Background(), log.StageService)
}
