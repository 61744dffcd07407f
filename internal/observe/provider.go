package observe

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// ServiceName is reported as service.name on every span and metric.
const ServiceName = "cystoscribe"

// Resource attribute keys describing the configured backends.
const (
	AttrSTTProvider   = attribute.Key("cystoscribe.stt.provider")
	AttrLLMProvider   = attribute.Key("cystoscribe.llm.provider")
	AttrLLMModel      = attribute.Key("cystoscribe.llm.model")
	AttrStorageDriver = attribute.Key("cystoscribe.storage.driver")
)

// ProviderConfig configures the OpenTelemetry SDK providers.
type ProviderConfig struct {
	ServiceVersion string

	// Backends, reported as resource attributes. Empty values are omitted.
	STTProvider   string
	LLMProvider   string
	LLMModel      string
	StorageDriver string

	// Registerer receives the Prometheus collector. Default:
	// prometheus.DefaultRegisterer, which backs the /metrics handler.
	Registerer prometheus.Registerer

	// TraceExporter receives finished spans. When nil, spans are recorded for
	// correlation IDs but not exported.
	TraceExporter sdktrace.SpanExporter
}

func (c ProviderConfig) resource() (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(ServiceName),
		semconv.ServiceVersion(c.ServiceVersion),
	}
	for _, kv := range []struct {
		key attribute.Key
		val string
	}{
		{AttrSTTProvider, c.STTProvider},
		{AttrLLMProvider, c.LLMProvider},
		{AttrLLMModel, c.LLMModel},
		{AttrStorageDriver, c.StorageDriver},
	} {
		if kv.val != "" {
			attrs = append(attrs, kv.key.String(kv.val))
		}
	}
	return resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
}

// InitProvider registers global meter and tracer providers. Metrics are
// exported through a Prometheus collector; spans go to cfg.TraceExporter.
//
// The returned shutdown flushes and closes both providers. Call it in a
// defer from main().
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	res, err := cfg.resource()
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}

	var expOpts []promexporter.Option
	if cfg.Registerer != nil {
		expOpts = append(expOpts, promexporter.WithRegisterer(cfg.Registerer))
	}
	promExp, err := promexporter.New(expOpts...)
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}
