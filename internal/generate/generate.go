// Package generate turns a free dictation into the body of a cystoscopy
// report with a single chat completion.
//
// The model receives a fixed system prompt describing the section layout
// for male and female patients and one user message carrying the patient sex
// and the dictation. The reply is trimmed and stripped of markdown markup so
// that it parses cleanly into report sections.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/cystoscribe/pkg/provider/llm"
)

// ErrEmptyDictation is returned when there is nothing to generate from.
var ErrEmptyDictation = errors.New("generate: dictation is empty")

// Sex selects the section layout of the generated report.
type Sex string

const (
	SexMale   Sex = "varon"
	SexFemale Sex = "mujer"
)

// ParseSex maps user input to a [Sex]. Blank input yields [SexMale]; the
// accented spelling "varón" and English aliases are accepted.
func ParseSex(s string) (Sex, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "varon", "varón", "male", "m", "hombre":
		return SexMale, nil
	case "mujer", "female", "f":
		return SexFemale, nil
	}
	return "", fmt.Errorf("generate: unknown sex %q", s)
}

// Generator produces report text from dictations. It is safe for concurrent
// use.
type Generator struct {
	llm         llm.Provider
	temperature float64
	maxTokens   int
	log         *slog.Logger
}

// Option configures a [Generator].
type Option func(*Generator)

// WithTemperature sets the sampling temperature. Zero leaves the provider
// default.
func WithTemperature(t float64) Option {
	return func(g *Generator) {
		g.temperature = t
	}
}

// WithMaxTokens caps the reply length. Zero leaves the provider default.
func WithMaxTokens(n int) Option {
	return func(g *Generator) {
		g.maxTokens = n
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		g.log = l
	}
}

// New returns a Generator backed by p.
func New(p llm.Provider, opts ...Option) *Generator {
	g := &Generator{llm: p, log: slog.Default()}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate asks the model for a report body. The provider is called exactly
// once; an empty reply yields an error wrapping [llm.ErrNoContent].
func (g *Generator) Generate(ctx context.Context, sex Sex, dictation string) (string, error) {
	dictation = strings.TrimSpace(dictation)
	if dictation == "" {
		return "", ErrEmptyDictation
	}
	if sex == "" {
		sex = SexMale
	}

	resp, err := g.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: UserMessage(sex, dictation)},
		},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("generate: complete: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("generate: complete: %w", llm.ErrNoContent)
	}

	text := StripMarkdown(resp.Content)
	if text == "" {
		return "", fmt.Errorf("generate: %w", llm.ErrNoContent)
	}
	g.log.Debug("report generated",
		"sex", string(sex),
		"dictation_chars", len(dictation),
		"report_chars", len(text),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return text, nil
}
