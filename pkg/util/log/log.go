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

// Package log provides a process-wide logr logger and context plumbing so
// request-scoped loggers (with trace/span IDs attached) travel with the
// request context into services, repositories and background workers.
package log

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the root logger.  It's replaced once at process startup by Init,
// before anything concurrent happens.
//
//nolint:gochecknoglobals
var Log = logr.Discard()

// Init installs a production zap logger at the requested level as the root
// logger and returns it.
func Init(level string) logr.Logger {
	zapLevel := zapcore.InfoLevel

	if parsed, err := zapcore.ParseLevel(level); err == nil {
		zapLevel = parsed
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	zapLog, err := config.Build()
	if err != nil {
		// The production config is static, this cannot happen.
		panic(err)
	}

	Log = zapr.NewLogger(zapLog)

	return Log
}

// IntoContext stores a logger in the context.
func IntoContext(ctx context.Context, log logr.Logger) context.Context {
	return logr.NewContext(ctx, log)
}

// FromContext returns the logger stored in the context, falling back to the
// root logger so callers never need a nil check.
func FromContext(ctx context.Context) logr.Logger {
	if log, err := logr.FromContext(ctx); err == nil {
		return log
	}

	return Log
}
