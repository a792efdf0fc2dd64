// Package observability configures OpenTelemetry tracing for the queue
// service. HTTP spans come from otelgin, SQL spans from the gorm plugin and
// engine spans from the services package; all of them share the provider
// installed here.
package observability

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc/credentials"

	"github.com/tbourn/go-clinic-queue/internal/config"
)

// Shutdown flushes and stops the tracer provider.
type Shutdown func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Replaced in tests.
var (
	dialExporter = func(ctx context.Context, opts ...otlptracegrpc.Option) (*otlptrace.Exporter, error) {
		return otlptracegrpc.New(ctx, opts...)
	}
	describeService = serviceResource
)

// SetupOTel installs a global tracer provider exporting over OTLP/gRPC and
// the W3C propagators. extra attributes (e.g. the clinic time zone) are
// added to the service resource. When tracing is disabled it returns a
// no-op Shutdown and leaves the globals untouched.
func SetupOTel(ctx context.Context, cfg config.OTELConfig, version string, extra ...attribute.KeyValue) (Shutdown, error) {
	if !cfg.Enabled {
		return noopShutdown, nil
	}

	exp, err := dialExporter(ctx, transportOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter for %s: %w", cfg.Endpoint, err)
	}
	res, err := describeService(ctx, cfg.ServiceName, version, extra...)
	if err != nil {
		_ = exp.Shutdown(ctx)
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
		sdktrace.WithResource(res),
	)
	install(tp)
	log.Info().Str("endpoint", cfg.Endpoint).Bool("insecure", cfg.Insecure).
		Float64("sample_ratio", cfg.SampleRatio).Msg("tracing enabled")
	return tp.Shutdown, nil
}

func transportOptions(cfg config.OTELConfig) []otlptracegrpc.Option {
	security := otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, ""))
	if cfg.Insecure {
		security = otlptracegrpc.WithInsecure()
	}
	return []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint), security}
}

func serviceResource(ctx context.Context, name, version string, extra ...attribute.KeyValue) (*resource.Resource, error) {
	attrs := make([]attribute.KeyValue, 0, len(extra)+2)
	attrs = append(attrs, semconv.ServiceName(name), semconv.ServiceVersion(version))
	return resource.New(ctx, resource.WithAttributes(append(attrs, extra...)...))
}

// sampler honours the caller's decision and samples new roots by ratio.
// The bounds map to the always/never samplers so their intent shows in the
// provider description.
func sampler(ratio float64) sdktrace.Sampler {
	root := sdktrace.TraceIDRatioBased(ratio)
	switch {
	case ratio >= 1:
		root = sdktrace.AlwaysSample()
	case ratio <= 0:
		root = sdktrace.NeverSample()
	}
	return sdktrace.ParentBased(root)
}

func install(tp *sdktrace.TracerProvider) {
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	// Export failures go to the structured log instead of stderr.
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		log.Warn().Err(err).Str("component", "otel").Msg("telemetry error")
	}))
}
