// Package telemetry wires an optional OpenTelemetry tracer provider
// around reactor commands. It is off by default: Setup only dials an
// OTLP/gRPC exporter when OTEL_EXPORTER_OTLP_ENDPOINT is set, otherwise
// every span is recorded against a no-op provider and callers pay
// nothing for tracing they didn't ask for.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Shutdown flushes and closes the tracer provider. It is a no-op when
// Setup never dialed an exporter.
type Shutdown func(context.Context) error

// Setup returns a tracer named "rushd" and a Shutdown func. When
// OTEL_EXPORTER_OTLP_ENDPOINT is unset, the returned tracer is the
// global otel no-op tracer and Shutdown does nothing.
func Setup(ctx context.Context, serviceVersion string) (trace.Tracer, Shutdown, error) {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		return otel.Tracer("rushd"), func(context.Context) error { return nil }, nil
	}

	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: dial %s: %w", endpoint, err)
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("rushd"),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	shutdown := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("telemetry: shutdown: %w", err)
		}
		return conn.Close()
	}

	return tp.Tracer("rushd"), shutdown, nil
}

// StartCommand starts a span for a top-level reactor command (build,
// deploy, rollout, the launch cycle), tagging it with the product and
// environment it ran against.
func StartCommand(ctx context.Context, tracer trace.Tracer, name, product, environment string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "rushd."+name,
		trace.WithAttributes(
			attribute.String("rushd.product", product),
			attribute.String("rushd.environment", environment),
		),
	)
}
