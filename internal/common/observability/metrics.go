package observability

import (
	"context"
	"log"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Options selects where spans and otel metrics go.
type Options struct {
	// JaegerEndpoint is the collector URL, e.g. http://localhost:14268/api/traces.
	JaegerEndpoint string
	// SpanExporter overrides JaegerEndpoint when set.
	SpanExporter sdktrace.SpanExporter
	// Registerer receives the otel prometheus exporter; defaults to the global registry.
	Registerer promclient.Registerer
}

type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	runCounter     otelmetric.Int64Counter
	runDuration    otelmetric.Float64Histogram
}

func New(serviceName string, opts Options) *Observability {
	o := &Observability{
		tracer: noop.NewTracerProvider().Tracer(serviceName),
	}

	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	spanExporter := opts.SpanExporter
	if spanExporter == nil && opts.JaegerEndpoint != "" {
		exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(opts.JaegerEndpoint)))
		if err != nil {
			log.Printf("Failed to create Jaeger exporter: %v", err)
		} else {
			spanExporter = exp
		}
	}
	if spanExporter != nil {
		o.tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithSyncer(spanExporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(o.tracerProvider)
		o.tracer = o.tracerProvider.Tracer(serviceName)
	}

	registerer := opts.Registerer
	if registerer == nil {
		registerer = promclient.DefaultRegisterer
	}
	exporter, err := prometheus.New(prometheus.WithRegisterer(registerer))
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return o
	}

	o.meterProvider = metric.NewMeterProvider(metric.WithReader(exporter), metric.WithResource(res))
	otel.SetMeterProvider(o.meterProvider)

	meter := o.meterProvider.Meter(serviceName)

	o.runCounter, _ = meter.Int64Counter(
		"export_runs",
		otelmetric.WithDescription("Number of export runs"),
	)

	o.runDuration, _ = meter.Float64Histogram(
		"export_run_duration",
		otelmetric.WithDescription("Export run duration"),
		otelmetric.WithUnit("ms"),
	)

	return o
}

// Tracer returns the tracer for export spans. It is a no-op tracer when no exporter is configured.
func (o *Observability) Tracer() trace.Tracer {
	return o.tracer
}

func (o *Observability) RecordRun(ctx context.Context, duration time.Duration, status string) {
	attrs := otelmetric.WithAttributes(attribute.String("status", status))
	if o.runCounter != nil {
		o.runCounter.Add(ctx, 1, attrs)
	}
	if o.runDuration != nil {
		o.runDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
}
