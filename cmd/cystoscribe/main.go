// Command cystoscribe is the main entry point for the cystoscopy report server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/cystoscribe/internal/app"
	"github.com/MrWong99/cystoscribe/internal/config"
	"github.com/MrWong99/cystoscribe/internal/observe"
	"github.com/MrWong99/cystoscribe/pkg/provider/llm"
	"github.com/MrWong99/cystoscribe/pkg/provider/llm/anyllm"
	llmmock "github.com/MrWong99/cystoscribe/pkg/provider/llm/mock"
	oallm "github.com/MrWong99/cystoscribe/pkg/provider/llm/openai"
	llmworker "github.com/MrWong99/cystoscribe/pkg/provider/llm/worker"
	"github.com/MrWong99/cystoscribe/pkg/provider/stt"
	"github.com/MrWong99/cystoscribe/pkg/provider/stt/deepgram"
	sttmock "github.com/MrWong99/cystoscribe/pkg/provider/stt/mock"
	oastt "github.com/MrWong99/cystoscribe/pkg/provider/stt/openai"
	"github.com/MrWong99/cystoscribe/pkg/provider/stt/whisper"
	sttworker "github.com/MrWong99/cystoscribe/pkg/provider/stt/worker"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload the log level and glossary when the config file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "cystoscribe: config file %q not found, copy configs/cystoscribe.example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "cystoscribe: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.LevelFor(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("cystoscribe starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		STTProvider:    cfg.Providers.STT.Name,
		LLMProvider:    cfg.Providers.LLM.Name,
		LLMModel:       cfg.Providers.LLM.Model,
		StorageDriver:  string(cfg.Storage.Driver),
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers,
		app.WithLevelVar(level),
		app.WithVersion(version),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if *watch {
		if err := application.WatchConfig(*configPath); err != nil {
			slog.Warn("config reload disabled", "err", err)
		}
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("worker", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []sttworker.Option
		if d := optDuration(entry, "timeout"); d > 0 {
			opts = append(opts, sttworker.WithTimeout(d))
		}
		return sttworker.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.Option("language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oastt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oastt.WithModel(entry.Model))
		}
		if lang := entry.Option("language"); lang != "" {
			opts = append(opts, oastt.WithLanguage(lang))
		}
		return oastt.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := entry.Option("language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("mock", func(config.ProviderEntry) (stt.Provider, error) {
		return &sttmock.Provider{Transcript: &stt.Transcript{Text: "uretra de calibre conservado", Provider: "mock"}}, nil
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("worker", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []llmworker.Option
		if d := optDuration(entry, "timeout"); d > 0 {
			opts = append(opts, llmworker.WithTimeout(d))
		}
		return llmworker.New(entry.BaseURL, opts...)
	})

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org := entry.Option("organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		if d := optDuration(entry, "timeout"); d > 0 {
			opts = append(opts, oallm.WithTimeout(d))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	// The remaining hosted and local backends share the any-llm-go pattern:
	// optional APIKey + optional BaseURL. openai is served natively above.
	for _, providerName := range anyllm.Backends {
		if providerName == "openai" {
			continue
		}
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	reg.RegisterLLM("mock", func(config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{
			Content: "Uretra: de calibre conservado.\nConclusión: Cistoscopia normal.",
		}}, nil
	})

	for _, kind := range []string{"stt", "llm"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders instantiates both providers named in cfg using the registry.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	sttP, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider: %w", err)
	}
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)

	llmP, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider: %w", err)
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name)

	if slices.Contains([]string{cfg.Providers.STT.Name, cfg.Providers.LLM.Name}, "mock") {
		slog.Warn("mock provider in use, reports are canned")
	}
	return &app.Providers{STT: sttP, LLM: llmP}, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       cystoscribe: startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("STT", provider(cfg.Providers.STT))
	printRow("LLM", provider(cfg.Providers.LLM))
	printRow("Storage", string(cfg.Storage.Driver))
	printRow("Glossary", fmt.Sprintf("%d terms", len(cfg.Dictation.Glossary)))
	printRow("Default sex", cfg.Dictation.DefaultSex)
	if cfg.MCP.Enabled {
		printRow("MCP", cfg.MCP.Path)
	} else {
		printRow("MCP", "(disabled)")
	}
	if cfg.Server.APIKeyHash != "" {
		printRow("API key", "required")
	} else {
		printRow("API key", "(open)")
	}
	if cfg.Server.TLS != nil {
		printRow("Listen addr", cfg.Server.ListenAddr+" (tls)")
	} else {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func provider(e config.ProviderEntry) string {
	if e.Model != "" {
		return e.Name + " / " + e.Model
	}
	return e.Name
}

func printRow(kind, value string) {
	if value == "" {
		value = "(default)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optDuration parses a duration option such as "90s". Invalid values are
// logged and ignored.
func optDuration(entry config.ProviderEntry, key string) time.Duration {
	raw := entry.Option(key)
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("ignoring invalid provider option", "provider", entry.Name, "option", key, "value", raw, "err", err)
		return 0
	}
	return d
}
