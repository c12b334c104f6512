package runtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"

	"github.com/voxprep/voxprep-core/internal/config"
)

// setupTelemetry installs the global tracer and meter providers for the
// interview engine process. Spans go to OTLP when an endpoint is configured
// and to stdout otherwise; the session aggregator's instruments are exposed
// through the returned prometheus scrape handler.
func setupTelemetry(cfg config.Config, logger *slog.Logger) (func(context.Context) error, http.Handler, error) {
	ctx := context.Background()
	res, err := engineResource(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	tracerProvider, exporterName, err := buildTracerProvider(ctx, cfg, res)
	if err != nil {
		return nil, nil, err
	}
	otel.SetTracerProvider(tracerProvider)

	meterProvider, scrapeHandler := buildMeterProvider(res, logger)
	otel.SetMeterProvider(meterProvider)

	logger.Info("telemetry initialized",
		slog.String("trace_exporter", exporterName),
		slog.Bool("prometheus", scrapeHandler != nil))

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			meterProvider.Shutdown(ctx),
			tracerProvider.Shutdown(ctx),
		)
	}
	return shutdown, scrapeHandler, nil
}

// engineResource identifies this process in exported telemetry. The interview
// type and position ride along so one collector can split traffic from
// several differently-configured engines.
func engineResource(ctx context.Context, cfg config.Config) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.RuntimeName),
			semconv.ServiceNamespace("voxprep"),
			attribute.String("deployment.environment", cfg.Environment),
			attribute.String("voxprep.interview.type", cfg.Interview.Type),
			attribute.String("voxprep.interview.position", cfg.Interview.Position),
		),
	)
}

func buildTracerProvider(ctx context.Context, cfg config.Config, res *resource.Resource) (*sdktrace.TracerProvider, string, error) {
	endpoint := strings.TrimSpace(cfg.Telemetry.OTLPEndpoint)
	if endpoint == "" {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, "", err
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		return tp, "stdout", nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if cfg.Telemetry.OTLPInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, "", err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	return tp, "otlp:" + endpoint, nil
}

// buildMeterProvider wires the prometheus reader. When the exporter cannot be
// constructed the engine keeps running with metrics recorded but not scraped.
func buildMeterProvider(res *resource.Resource, logger *slog.Logger) (*sdkmetric.MeterProvider, http.Handler) {
	promExporter, err := prometheus.New()
	if err != nil {
		logger.Warn("prometheus exporter unavailable, metrics will not be scraped",
			slog.String("error", err.Error()))
		return sdkmetric.NewMeterProvider(sdkmetric.WithResource(res)), nil
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
		sdkmetric.WithResource(res),
	)
	return provider, promhttp.Handler()
}
