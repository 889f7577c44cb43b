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

package server

import (
	"context"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/trace"

	"github.com/eschercloudai/cumulus/pkg/iam"
	"github.com/eschercloudai/cumulus/pkg/server/handler"
	"github.com/eschercloudai/cumulus/pkg/server/middleware"
	"github.com/eschercloudai/cumulus/pkg/util/log"
)

type Server struct {
	// Options are server specific options e.g. listener address etc.
	Options Options

	// LogLevel configures the root logger's verbosity.
	LogLevel string

	// AuthOptions configure the authentication middleware.
	AuthOptions middleware.AuthOptions

	// RateLimitOptions configure per-client rate limiting.
	RateLimitOptions middleware.RateLimitOptions
}

func (s *Server) AddFlags(flags *pflag.FlagSet) {
	s.Options.AddFlags(flags)
	s.AuthOptions.AddFlags(flags)
	s.RateLimitOptions.AddFlags(flags)

	flags.StringVar(&s.LogLevel, "log-level", "info", "Root logger level, one of debug, info, warn or error.")
}

func (s *Server) SetupLogging() {
	log.Init(s.LogLevel)
}

// SetupOpenTelemetry adds a span processor that will print root spans to the
// logs by default, and optionally ship the spans to an OTLP listener.
func (s *Server) SetupOpenTelemetry(ctx context.Context) error {
	otel.SetLogger(log.Log)

	opts := []trace.TracerProviderOption{
		trace.WithSpanProcessor(&middleware.LoggingSpanProcessor{}),
	}

	if s.Options.OTLPEndpoint != "" {
		exporter, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(s.Options.OTLPEndpoint),
			otlptracehttp.WithInsecure(),
		)

		if err != nil {
			return err
		}

		opts = append(opts, trace.WithBatcher(exporter))
	}

	otel.SetTracerProvider(trace.NewTracerProvider(opts...))

	return nil
}

func (s *Server) GetServer(h *handler.Handler, iamService *iam.Service, apiKey string) (*http.Server, error) {
	limiter, err := middleware.NewRateLimiter(&s.RateLimitOptions)
	if err != nil {
		return nil, err
	}

	authenticator := middleware.NewAuthenticator(&s.AuthOptions, iamService, apiKey)

	// Middleware specified here is applied to all requests pre-routing.
	// NOTE: execution is top down, the span must exist before anything
	// wants to annotate it.
	router := chi.NewRouter()
	router.Use(middleware.Logger())
	router.Use(middleware.RouteMatched)
	router.Use(middleware.Metrics)
	router.Use(middleware.Timeout(s.Options.RequestTimeout))
	router.Use(limiter.Middleware)
	router.Use(authenticator.Middleware)

	router.Handle("/metrics", promhttp.Handler())

	h.Routes(router)

	server := &http.Server{
		Addr:              s.Options.ListenAddress,
		ReadTimeout:       s.Options.ReadTimeout,
		ReadHeaderTimeout: s.Options.ReadHeaderTimeout,
		WriteTimeout:      s.Options.WriteTimeout,
		Handler:           router,
	}

	return server, nil
}
