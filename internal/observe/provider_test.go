package observe

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// retainingExporter keeps spans readable after the provider shuts down.
type retainingExporter struct {
	*tracetest.InMemoryExporter
}

func (retainingExporter) Shutdown(context.Context) error { return nil }

func TestInitProvider(t *testing.T) {
	origTP, origMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
	})

	reg := prometheus.NewRegistry()
	exp := retainingExporter{tracetest.NewInMemoryExporter()}
	shutdown, err := InitProvider(context.Background(), ProviderConfig{
		ServiceVersion: "1.2.3",
		STTProvider:    "whisper",
		LLMProvider:    "openai",
		StorageDriver:  "sqlite",
		Registerer:     reg,
		TraceExporter:  exp,
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordReportRendered(context.Background(), false)

	_, span := StartSpan(context.Background(), "report.render")
	span.End()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("registry gathered no metric families")
	}

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("exported spans = %d, want 1", len(spans))
	}
	attrs := map[string]string{}
	for _, kv := range spans[0].Resource.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	want := map[string]string{
		"service.name":            ServiceName,
		"service.version":         "1.2.3",
		string(AttrSTTProvider):   "whisper",
		string(AttrLLMProvider):   "openai",
		string(AttrStorageDriver): "sqlite",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("resource %s = %q, want %q", k, attrs[k], v)
		}
	}
	if _, ok := attrs[string(AttrLLMModel)]; ok {
		t.Error("empty llm model should be omitted")
	}
}
