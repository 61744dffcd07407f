package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/cystoscribe/internal/observe"
	"github.com/MrWong99/cystoscribe/pkg/provider/llm"
	"github.com/MrWong99/cystoscribe/pkg/provider/stt"
	"go.opentelemetry.io/otel/metric"
)

// Request outcomes recorded in the provider request counter.
const (
	statusOK      = "ok"
	statusError   = "error"
	statusOpen    = "circuit_open"
	statusContent = "no_content"
)

// countsAgainstBackend reports whether err says something about backend
// health. Empty recordings and blank replies do not.
func countsAgainstBackend(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, stt.ErrNoAudio) &&
		!errors.Is(err, stt.ErrNoText) &&
		!errors.Is(err, llm.ErrNoContent) &&
		!errors.Is(err, context.Canceled)
}

func newBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	cfg.Name = name
	if cfg.IsFailure == nil {
		cfg.IsFailure = countsAgainstBackend
	}
	return NewCircuitBreaker(cfg)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return statusOK
	case errors.Is(err, ErrCircuitOpen):
		return statusOpen
	case !countsAgainstBackend(err):
		return statusContent
	default:
		return statusError
	}
}

// record updates the provider instruments for one call.
func record(ctx context.Context, m *observe.Metrics, hist metric.Float64Histogram, name, kind string, start time.Time, err error) {
	status := outcome(err)
	m.RecordProviderRequest(ctx, name, kind, status)
	if status == statusOpen {
		return
	}
	hist.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("provider", name)))
	if status == statusError {
		m.RecordProviderError(ctx, name, kind)
	}
}

// ── STT ─────────────────────────────────────────────────────────────────────

// GuardedSTT wraps an [stt.Provider] with a circuit breaker and metrics.
type GuardedSTT struct {
	name    string
	p       stt.Provider
	breaker *CircuitBreaker
	metrics *observe.Metrics
}

var _ stt.Provider = (*GuardedSTT)(nil)

// NewGuardedSTT wraps p. A nil m uses [observe.DefaultMetrics].
func NewGuardedSTT(name string, p stt.Provider, cfg CircuitBreakerConfig, m *observe.Metrics) *GuardedSTT {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &GuardedSTT{name: name, p: p, breaker: newBreaker(name, cfg), metrics: m}
}

// Breaker returns the breaker guarding the provider.
func (g *GuardedSTT) Breaker() *CircuitBreaker { return g.breaker }

// Transcribe implements [stt.Provider].
func (g *GuardedSTT) Transcribe(ctx context.Context, audio stt.Audio) (*stt.Transcript, error) {
	start := time.Now()
	var tr *stt.Transcript
	err := g.breaker.Execute(func() error {
		var err error
		tr, err = g.p.Transcribe(ctx, audio)
		return err
	})
	record(ctx, g.metrics, g.metrics.STTDuration, g.name, "stt", start, err)
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// ── LLM ─────────────────────────────────────────────────────────────────────

// GuardedLLM wraps an [llm.Provider] with a circuit breaker and metrics.
type GuardedLLM struct {
	name    string
	p       llm.Provider
	breaker *CircuitBreaker
	metrics *observe.Metrics
}

var _ llm.Provider = (*GuardedLLM)(nil)

// NewGuardedLLM wraps p. A nil m uses [observe.DefaultMetrics].
func NewGuardedLLM(name string, p llm.Provider, cfg CircuitBreakerConfig, m *observe.Metrics) *GuardedLLM {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &GuardedLLM{name: name, p: p, breaker: newBreaker(name, cfg), metrics: m}
}

// Breaker returns the breaker guarding the provider.
func (g *GuardedLLM) Breaker() *CircuitBreaker { return g.breaker }

// Complete implements [llm.Provider].
func (g *GuardedLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	start := time.Now()
	var resp *llm.CompletionResponse
	err := g.breaker.Execute(func() error {
		var err error
		resp, err = g.p.Complete(ctx, req)
		return err
	})
	record(ctx, g.metrics, g.metrics.LLMDuration, g.name, "llm", start, err)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
