// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package telemetry

import (
	"context"
	"errors"
	"log/slog"

	mexporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/metric"
	telemetryexporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"go.opentelemetry.io/contrib/detectors/gcp"
	"go.opentelemetry.io/contrib/propagators/autoprop"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"

	"github.com/jaycherian/gcp-go-video-pipeline/internal/cloud"
)

// SetupOpenTelemetry configures the OpenTelemetry SDK for the whole service. Spans
// opened by the command chains and the HTTP middleware are exported to Cloud Trace,
// and the command counters are exported to Cloud Monitoring, both under the project
// named in config.
//
// Inputs:
//   - ctx: used while detecting the resource and creating the exporters.
//   - config: supplies the Google project id and the service name.
//
// Returns:
//   - shutdown: flushes and stops the tracer and meter providers. The caller must
//     defer it so buffered spans and metrics are not lost on exit.
//   - err: set when the resource or an exporter cannot be created.
func SetupOpenTelemetry(ctx context.Context, config *cloud.Config) (shutdown func(context.Context) error, err error) {
	// Shutdown hooks of every component started below, run in registration order.
	var shutdownFuncs []func(context.Context) error

	// The returned shutdown calls each hook once and joins their errors.
	shutdown = func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	// --- Resource Detection ---
	// The resource describes this process to the backend. Every span and metric
	// point carries its attributes.
	res, err := resource.New(ctx,
		// On Cloud Run or GKE the GCP detector adds the platform attributes, such as
		// the instance id and region.
		resource.WithDetectors(gcp.NewDetector()),
		// SDK name, language and version.
		resource.WithTelemetrySDK(),
		// service.name is what traces and dashboards are filtered by.
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.Application.Name),
		),
	)
	// A partially detected resource is still usable, for example when running locally.
	if errors.Is(err, resource.ErrPartialResource) || errors.Is(err, resource.ErrSchemaURLConflict) {
		slog.Warn("partial resource detection", "error", err)
	} else if err != nil {
		slog.Error("resource.New failed", "error", err)
		return nil, err
	}

	// --- Propagator Setup ---
	// The propagator reads and writes trace context on incoming and outgoing requests,
	// so a pipeline run triggered over HTTP or Pub/Sub joins the caller's trace.
	// autoprop honours OTEL_PROPAGATORS and defaults to W3C trace context and baggage.
	otel.SetTextMapPropagator(autoprop.NewTextMapPropagator())

	// --- Trace Exporter and Provider Setup ---
	// Spans go to Cloud Trace.
	traceExporter, err := telemetryexporter.New(telemetryexporter.WithProjectID(config.Application.GoogleProjectId))
	if err != nil {
		slog.Error("unable to set up trace exporter", "error", err)
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		// Spans are buffered and exported in batches off the request path.
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
	// Tracers obtained through otel.Tracer, including the ones in cor, use this provider.
	otel.SetTracerProvider(tp)

	// --- Metric Exporter and Provider Setup ---
	// Command success and error counters go to Cloud Monitoring.
	mExporter, err := mexporter.New(mexporter.WithProjectID(config.Application.GoogleProjectId))
	if err != nil {
		slog.Error("unable to set up metric exporter", "error", err)
		// The tracer provider is already running; stop it before giving up.
		return shutdown, errors.Join(err, shutdown(ctx))
	}
	mProvider := metric.NewMeterProvider(
		// Collected metrics are pushed on a fixed interval.
		metric.WithReader(metric.NewPeriodicReader(mExporter)),
		metric.WithResource(res),
	)
	shutdownFuncs = append(shutdownFuncs, mProvider.Shutdown)
	// Meters obtained through otel.Meter use this provider.
	otel.SetMeterProvider(mProvider)

	return shutdown, nil
}
