package otel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "tipchain"

	defaultBatchTimeout   = 2 * time.Second
	defaultMetricInterval = 15 * time.Second
)

// Config selects what tipd exports and where.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string
	Insecure       bool
	Headers        map[string]string
	Metrics        bool
	Traces         bool
	// BatchTimeout and MetricInterval fall back to 2s and 15s.
	BatchTimeout   time.Duration
	MetricInterval time.Duration
}

func (c Config) enabled() bool {
	return strings.TrimSpace(c.Endpoint) != "" && (c.Traces || c.Metrics)
}

// Tracer returns the named tracer from the global provider. Before Init runs,
// or when telemetry is disabled, spans are no-ops.
func Tracer(component string) trace.Tracer {
	if component == "" {
		component = instrumentationName
	}
	return otel.Tracer(instrumentationName + "/" + component)
}

type shutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Init installs global trace and meter providers exporting over OTLP/HTTP.
// With no endpoint, or with both signals off, it leaves the no-op providers
// in place. The returned func flushes and stops every exporter it started.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if strings.TrimSpace(cfg.ServiceName) == "" {
		return nil, errors.New("otel: service name required")
	}
	if !cfg.enabled() {
		return noopShutdown, nil
	}

	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	var stops []shutdownFunc
	if cfg.Traces {
		tp, err := newTracerProvider(ctx, cfg, res)
		if err != nil {
			return nil, err
		}
		otel.SetTracerProvider(tp)
		stops = append(stops, tp.Shutdown)
	}
	if cfg.Metrics {
		mp, err := newMeterProvider(ctx, cfg, res)
		if err != nil {
			_ = shutdownAll(ctx, stops)
			return nil, err
		}
		otel.SetMeterProvider(mp)
		stops = append(stops, mp.Shutdown)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error { return shutdownAll(ctx, stops) }, nil
}

func newResource(cfg Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceNamespaceKey.String(instrumentationName),
	}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersionKey.String(cfg.ServiceVersion))
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentKey.String(cfg.Environment))
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, fmt.Errorf("otel: build resource: %w", err)
	}
	return res, nil
}

func newTracerProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otel: trace exporter: %w", err)
	}
	timeout := cfg.BatchTimeout
	if timeout <= 0 {
		timeout = defaultBatchTimeout
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(timeout)),
	), nil
}

func newMeterProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(cfg.Headers))
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otel: metric exporter: %w", err)
	}
	interval := cfg.MetricInterval
	if interval <= 0 {
		interval = defaultMetricInterval
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	), nil
}

// shutdownAll stops providers in reverse start order and reports the first
// failure.
func shutdownAll(ctx context.Context, stops []shutdownFunc) error {
	var first error
	for i := len(stops) - 1; i >= 0; i-- {
		if err := stops[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ParseHeaders reads the "key=value,key=value" form of the Telemetry.Headers
// setting. Pairs without a key or separator are dropped.
func ParseHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers
}
