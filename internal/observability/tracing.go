package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns the package-scoped tracer used for pipeline spans. Until
// SetupTracing installs a provider this is the global no-op tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(ServiceName)
}

// SetupTracing installs a Zipkin-backed tracer provider when collectorURL is set.
// The returned shutdown flushes pending spans; it is a no-op when tracing is off.
func SetupTracing(collectorURL string) (func(context.Context) error, error) {
	if collectorURL == "" {
		return func(context.Context) error { return nil }, nil
	}
	exporter, err := zipkin.New(collectorURL)
	if err != nil {
		return nil, fmt.Errorf("zipkin exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(ServiceName),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown, nil
}
