// Package api serves the report assistant's HTTP interface: the physician
// profile, dictation (one-shot uploads and the WebSocket capture session),
// report parsing and preview, and PDF download. Operational endpoints
// (/healthz, /readyz, /metrics) and the MCP endpoint are mounted on the
// same router.
//
// Errors are JSON objects {"error": ..., "field": ..., "redirect": ...,
// "code": ...}; see [statusFor] for the status mapping.
package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrWong99/cystoscribe/internal/dictation"
	"github.com/MrWong99/cystoscribe/internal/document"
	"github.com/MrWong99/cystoscribe/internal/generate"
	"github.com/MrWong99/cystoscribe/internal/health"
	"github.com/MrWong99/cystoscribe/internal/observe"
	"github.com/MrWong99/cystoscribe/internal/profile"
	"github.com/MrWong99/cystoscribe/internal/render"
)

// ConfigPath is where clients are sent when the profile is missing.
const ConfigPath = "/config"

// Config holds the dependencies of a [Server].
type Config struct {
	Profiles *profile.Service
	Pipeline *dictation.Pipeline
	Composer *document.Composer
	Renderer render.Renderer

	// Health serves /healthz and /readyz. Optional.
	Health *health.Handler

	// MetricsHandler serves /metrics. Optional.
	MetricsHandler http.Handler

	// MCP is mounted at MCPPath when non-nil.
	MCP     http.Handler
	MCPPath string

	// APIKeyHash is the bcrypt hash of the API key. Empty disables auth.
	APIKeyHash string

	// MaxAudioBytes bounds uploads and captured recordings.
	MaxAudioBytes int

	// DefaultSex is used when a request carries no sex.
	DefaultSex generate.Sex

	// SessionOptions configure the WebSocket capture handler.
	SessionOptions []dictation.SessionOption

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Server is the HTTP API.
type Server struct {
	cfg     Config
	session *dictation.SessionHandler
	metrics *observe.Metrics
}

// New validates cfg and returns a Server.
func New(cfg Config) (*Server, error) {
	switch {
	case cfg.Profiles == nil:
		return nil, errors.New("api: profile service is required")
	case cfg.Pipeline == nil:
		return nil, errors.New("api: pipeline is required")
	case cfg.Composer == nil:
		return nil, errors.New("api: composer is required")
	case cfg.Renderer == nil:
		return nil, errors.New("api: renderer is required")
	}
	if cfg.MaxAudioBytes <= 0 {
		cfg.MaxAudioBytes = dictation.DefaultMaxAudioBytes
	}
	if cfg.DefaultSex == "" {
		cfg.DefaultSex = generate.SexMale
	}
	if cfg.MCPPath == "" {
		cfg.MCPPath = "/mcp"
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}

	opts := append([]dictation.SessionOption{dictation.WithMaxAudioBytes(cfg.MaxAudioBytes)}, cfg.SessionOptions...)
	return &Server{
		cfg:     cfg,
		session: dictation.NewSessionHandler(cfg.Pipeline, opts...),
		metrics: cfg.Metrics,
	}, nil
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observe.Middleware(s.metrics))

	if s.cfg.Health != nil {
		s.cfg.Health.Register(r)
	}
	if s.cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.cfg.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(apiKeyAuth(s.cfg.APIKeyHash))

		r.Get("/profile", s.getProfile)
		r.Put("/profile", s.putProfile)

		r.Post("/transcribe", s.transcribe)
		r.Post("/generate", s.generate)
		r.Post("/dictation", s.dictate)
		r.Get("/dictation/state", s.dictationState)
		r.Handle("/dictation/ws", s.session)

		r.Post("/report/sections", s.sections)
		r.Post("/report/preview", s.preview)
		r.Post("/report/plan", s.plan)
		r.Post("/report/pdf", s.pdf)
	})

	if s.cfg.MCP != nil {
		path := "/" + strings.Trim(s.cfg.MCPPath, "/")
		r.With(apiKeyAuth(s.cfg.APIKeyHash)).Handle(path, s.cfg.MCP)
	}
	return r
}

// sexOrDefault parses raw, using the configured default when it is blank.
func (s *Server) sexOrDefault(raw string) (generate.Sex, error) {
	if strings.TrimSpace(raw) == "" {
		return s.cfg.DefaultSex, nil
	}
	sex, err := generate.ParseSex(raw)
	if err != nil {
		return "", &fieldError{Field: "sex", Err: err}
	}
	return sex, nil
}
