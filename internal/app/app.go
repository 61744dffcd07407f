// Package app wires all cystoscribe subsystems into a running server.
//
// The App struct owns the full lifecycle: New opens the profile store and
// builds the dictation pipeline, document composer and HTTP API, Run serves
// HTTP until the context is cancelled, and Shutdown tears everything down in
// order.
//
// For testing, inject test doubles via functional options (WithProfileStore,
// WithRenderer, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/cystoscribe/internal/api"
	"github.com/MrWong99/cystoscribe/internal/config"
	"github.com/MrWong99/cystoscribe/internal/dictation"
	"github.com/MrWong99/cystoscribe/internal/document"
	"github.com/MrWong99/cystoscribe/internal/generate"
	"github.com/MrWong99/cystoscribe/internal/health"
	"github.com/MrWong99/cystoscribe/internal/mcptools"
	"github.com/MrWong99/cystoscribe/internal/observe"
	"github.com/MrWong99/cystoscribe/internal/profile"
	"github.com/MrWong99/cystoscribe/internal/render"
	"github.com/MrWong99/cystoscribe/internal/resilience"
	"github.com/MrWong99/cystoscribe/internal/vocab"
	"github.com/MrWong99/cystoscribe/pkg/provider/llm"
	"github.com/MrWong99/cystoscribe/pkg/provider/stt"
)

// readHeaderTimeout bounds slow clients sending request headers.
const readHeaderTimeout = 10 * time.Second

// Providers holds the two backends. Populated by main.go via the config
// registry.
type Providers struct {
	STT stt.Provider
	LLM llm.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	version   string

	// Subsystems, initialised in New and torn down in Shutdown.
	store    profile.Store
	profiles *profile.Service
	vocab    *vocab.Corrector
	machine  *dictation.Machine
	pipeline *dictation.Pipeline
	composer *document.Composer
	renderer render.Renderer
	metrics  *observe.Metrics
	handler  http.Handler
	server   *http.Server

	sttGuard *resilience.GuardedSTT
	llmGuard *resilience.GuardedLLM

	level    *slog.LevelVar
	listener net.Listener
	watcher  atomic.Pointer[config.Watcher]

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithProfileStore injects a profile store instead of opening one from config.
// The caller keeps ownership: Shutdown does not close it.
func WithProfileStore(s profile.Store) Option {
	return func(a *App) { a.store = s }
}

// WithRenderer injects a renderer instead of the pdfcpu one.
func WithRenderer(r render.Renderer) Option {
	return func(a *App) { a.renderer = r }
}

// WithMetrics injects a metrics instance instead of the global one.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets configuration reloads change the log level of the
// logger built around lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// WithListener makes Run serve on l instead of listening on the configured
// address.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.STT == nil || providers.LLM == nil {
		return nil, errors.New("app: stt and llm providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		version:   "dev",
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Profile store ─────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Dictation pipeline ────────────────────────────────────────────
	if err := a.initPipeline(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}

	// ── 3. Document composer + renderer ──────────────────────────────────
	a.composer = document.NewComposer(render.FontMetrics{})
	if a.renderer == nil {
		a.renderer = render.NewPDF(render.WithTempDir(cfg.Document.TempDir))
	}

	// ── 4. HTTP API ──────────────────────────────────────────────────────
	if err := a.initHTTP(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init http: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore opens the configured profile store unless one was injected.
func (a *App) initStore(ctx context.Context) error {
	if a.store == nil {
		s, err := profile.Open(ctx, string(a.cfg.Storage.Driver), a.cfg.Storage.DSN)
		if err != nil {
			return err
		}
		a.store = s
		a.closers = append(a.closers, s.Close)
		slog.Info("profile store opened", "driver", a.cfg.Storage.Driver)
	}
	a.profiles = profile.NewService(a.store)
	return nil
}

// initPipeline wraps both providers in circuit breakers and builds the
// machine, vocabulary corrector, generator and pipeline.
func (a *App) initPipeline() error {
	dc := a.cfg.Dictation
	breaker := resilience.CircuitBreakerConfig{
		MaxFailures:  a.cfg.Resilience.MaxFailures,
		ResetTimeout: a.cfg.Resilience.ResetTimeout,
	}
	a.sttGuard = resilience.NewGuardedSTT(a.cfg.Providers.STT.Name, a.providers.STT, breaker, a.metrics)
	a.llmGuard = resilience.NewGuardedLLM(a.cfg.Providers.LLM.Name, a.providers.LLM, breaker, a.metrics)

	var vopts []vocab.Option
	if dc.PhoneticThreshold > 0 {
		vopts = append(vopts, vocab.WithPhoneticThreshold(dc.PhoneticThreshold))
	}
	if dc.FuzzyThreshold > 0 {
		vopts = append(vopts, vocab.WithFuzzyThreshold(dc.FuzzyThreshold))
	}
	a.vocab = vocab.New(dc.Glossary, vopts...)

	var gopts []generate.Option
	if dc.Temperature > 0 {
		gopts = append(gopts, generate.WithTemperature(dc.Temperature))
	}
	if dc.MaxTokens > 0 {
		gopts = append(gopts, generate.WithMaxTokens(dc.MaxTokens))
	}

	a.machine = dictation.NewMachine(func(info dictation.Info) {
		slog.Debug("dictation state changed", "state", info.State, "owner", info.Owner)
	})
	p, err := dictation.NewPipeline(dictation.Config{
		Machine:   a.machine,
		STT:       a.sttGuard,
		Generator: generate.New(a.llmGuard, gopts...),
		Vocab:     a.vocab,
		Language:  dc.Language,
		Timeout:   dc.Timeout,
		Metrics:   a.metrics,
	})
	if err != nil {
		return err
	}
	a.pipeline = p
	return nil
}

// initHTTP assembles the health checks, MCP server and API router.
func (a *App) initHTTP() error {
	defaultSex, err := generate.ParseSex(a.cfg.Dictation.DefaultSex)
	if err != nil {
		return err
	}

	hh := health.New(health.Checker{Name: "profile_store", Check: a.store.Ping}).
		WithReporters(
			health.Reporter{Name: "dictation", Report: func() any { return a.machine.Info() }},
			health.Reporter{Name: "breakers", Report: a.breakerStates},
		)

	apiCfg := api.Config{
		Profiles:       a.profiles,
		Pipeline:       a.pipeline,
		Composer:       a.composer,
		Renderer:       a.renderer,
		Health:         hh,
		MetricsHandler: promhttp.Handler(),
		APIKeyHash:     a.cfg.Server.APIKeyHash,
		MaxAudioBytes:  a.cfg.Dictation.MaxAudioBytes,
		DefaultSex:     defaultSex,
		Metrics:        a.metrics,
	}
	if len(a.cfg.Server.AllowedOrigins) > 0 {
		apiCfg.SessionOptions = append(apiCfg.SessionOptions, dictation.WithOriginPatterns(a.cfg.Server.AllowedOrigins...))
	}
	if a.cfg.MCP.Enabled {
		srv := mcptools.NewServer(mcptools.Deps{
			Pipeline: a.pipeline,
			Composer: a.composer,
			Profiles: a.profiles,
			Metrics:  a.metrics,
		}, a.version)
		apiCfg.MCP = mcptools.Handler(srv)
		apiCfg.MCPPath = a.cfg.MCP.Path
		slog.Info("mcp endpoint enabled", "path", a.cfg.MCP.Path)
	}

	s, err := api.New(apiCfg)
	if err != nil {
		return err
	}
	a.handler = s.Router()
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return nil
}

func (a *App) breakerStates() any {
	return map[string]string{
		"stt": a.sttGuard.Breaker().State().String(),
		"llm": a.llmGuard.Breaker().State().String(),
	}
}

// Handler returns the HTTP handler serving the whole API.
func (a *App) Handler() http.Handler { return a.handler }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP until ctx is cancelled or the server fails. It returns nil
// after a cancellation; call Shutdown afterwards to drain connections.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.server.Addr)
		if err != nil {
			return fmt.Errorf("app: listen: %w", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			slog.Info("serving https", "addr", ln.Addr().String())
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			slog.Info("serving http", "addr", ln.Addr().String())
			err = a.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops accepting requests, waits for in-flight ones within the
// context deadline and then closes all subsystems in init order.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				slog.Warn("http shutdown error", "err", err)
				shutdownErr = err
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll runs the closers registered so far after a failed New.
func (a *App) closeAll() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			slog.Warn("closer error", "err", err)
		}
	}
	a.closers = nil
}
