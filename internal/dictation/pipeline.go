// Package dictation runs the dictation workflow: capture a recording,
// transcribe it, snap clinical terms to the glossary, generate the report
// body and split it into sections.
//
// A single [Machine] gates the workflow so that only one dictation is in
// flight at a time. [Pipeline] drives one run through the machine; once a
// remote call has started it runs to completion even if the requesting
// client goes away, and it is never retried.
package dictation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/cystoscribe/internal/generate"
	"github.com/MrWong99/cystoscribe/internal/observe"
	"github.com/MrWong99/cystoscribe/internal/report"
	"github.com/MrWong99/cystoscribe/internal/vocab"
	"github.com/MrWong99/cystoscribe/pkg/provider/stt"
)

// Request is the input of one pipeline run. Exactly one of Audio or Text is
// used: when Audio is non-nil it is transcribed and Text is ignored.
type Request struct {
	// Owner identifies the caller holding the machine. A blank owner gets a
	// fresh one-shot identity.
	Owner string
	Audio *stt.Audio
	Text  string
	Sex   generate.Sex
}

// Result is the outcome of a successful run.
type Result struct {
	// Transcript is the raw speech-to-text output, empty for text requests.
	Transcript string `json:"transcript,omitempty"`
	// Dictation is the glossary-corrected text sent to the generator.
	Dictation   string             `json:"dictation"`
	Corrections []vocab.Correction `json:"corrections,omitempty"`
	Report      string             `json:"report"`
	Sections    []report.Section   `json:"sections"`
}

// Config holds the dependencies of a [Pipeline].
type Config struct {
	Machine   *Machine
	STT       stt.Provider
	Generator *generate.Generator

	// Vocab corrects transcripts and supplies recognition hints. Optional.
	Vocab *vocab.Corrector

	// Language is the transcription language hint. Default: "es".
	Language string

	// Timeout bounds each remote call. Zero means no timeout.
	Timeout time.Duration

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Pipeline runs dictations. It is safe for concurrent use; concurrent runs
// are rejected by the machine with [ErrBusy].
type Pipeline struct {
	machine  *Machine
	stt      stt.Provider
	gen      *generate.Generator
	vocab    *vocab.Corrector
	language string
	timeout  time.Duration
	metrics  *observe.Metrics
}

// NewPipeline validates cfg and returns a Pipeline.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if cfg.Machine == nil {
		return nil, errors.New("dictation: machine is required")
	}
	if cfg.STT == nil {
		return nil, errors.New("dictation: stt provider is required")
	}
	if cfg.Generator == nil {
		return nil, errors.New("dictation: generator is required")
	}
	if cfg.Language == "" {
		cfg.Language = "es"
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Pipeline{
		machine:  cfg.Machine,
		stt:      cfg.STT,
		gen:      cfg.Generator,
		vocab:    cfg.Vocab,
		language: cfg.Language,
		timeout:  cfg.Timeout,
		metrics:  cfg.Metrics,
	}, nil
}

// Machine returns the machine gating the pipeline.
func (p *Pipeline) Machine() *Machine { return p.machine }

// Run executes one full dictation. The machine is moved to Processing for
// req.Owner (from Idle, or from that owner's capture) and always returned to
// Idle when Run returns.
func (p *Pipeline) Run(ctx context.Context, req Request) (res *Result, err error) {
	owner, err := p.acquire(req.Owner)
	if err != nil {
		p.metrics.RecordDictationRun(ctx, "busy")
		return nil, err
	}
	defer p.release(ctx, owner)

	ctx, span := observe.StartSpan(ctx, "dictation.run",
		trace.WithAttributes(
			attribute.Bool("dictation.audio", req.Audio != nil),
			attribute.String("dictation.sex", string(req.Sex)),
		))
	defer func() { endSpan(span, err) }()
	defer func() { p.recordRun(ctx, err) }()

	res = &Result{}
	text := req.Text
	if req.Audio != nil {
		if text, err = p.transcribe(ctx, *req.Audio); err != nil {
			return nil, err
		}
		res.Transcript = text
	}

	res.Dictation, res.Corrections = p.correct(ctx, text)

	res.Report, err = p.generate(ctx, req.Sex, res.Dictation)
	if err != nil {
		return nil, err
	}
	res.Sections = report.Parse(res.Report)

	observe.Logger(ctx).Info("dictation completed",
		"owner", owner,
		"corrections", len(res.Corrections),
		"sections", len(res.Sections),
	)
	return res, nil
}

// Transcribe runs only the transcription and glossary correction, holding
// the machine like [Pipeline.Run].
func (p *Pipeline) Transcribe(ctx context.Context, owner string, audio stt.Audio) (*Result, error) {
	owner, err := p.acquire(owner)
	if err != nil {
		p.metrics.RecordDictationRun(ctx, "busy")
		return nil, err
	}
	defer p.release(ctx, owner)

	ctx, span := observe.StartSpan(ctx, "dictation.transcribe_only")
	text, err := p.transcribe(ctx, audio)
	endSpan(span, err)
	if err != nil {
		return nil, err
	}
	res := &Result{Transcript: text}
	res.Dictation, res.Corrections = p.correct(ctx, text)
	return res, nil
}

func (p *Pipeline) acquire(owner string) (string, error) {
	if owner == "" {
		owner = newOwner()
	}
	if err := p.machine.BeginProcessing(owner); err != nil {
		return "", err
	}
	p.metrics.ActiveDictations.Add(context.Background(), 1)
	return owner, nil
}

func (p *Pipeline) release(ctx context.Context, owner string) {
	p.metrics.ActiveDictations.Add(context.WithoutCancel(ctx), -1)
	if err := p.machine.Finish(owner); err != nil {
		slog.Warn("dictation: finish", "owner", owner, "err", err)
	}
}

// remote derives the context for a provider call: detached from the caller's
// cancellation, bounded by the configured timeout if any.
func (p *Pipeline) remote(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if p.timeout > 0 {
		return context.WithTimeout(ctx, p.timeout)
	}
	return ctx, func() {}
}

func (p *Pipeline) transcribe(ctx context.Context, audio stt.Audio) (text string, err error) {
	if len(audio.Data) == 0 {
		return "", stt.ErrNoAudio
	}
	if audio.Language == "" {
		audio.Language = p.language
	}
	if len(audio.Hints) == 0 && p.vocab != nil {
		audio.Hints = p.vocab.Terms()
	}

	ctx, span := observe.StartSpan(ctx, "dictation.stt",
		trace.WithAttributes(attribute.Int("audio.bytes", len(audio.Data))))
	defer func() { endSpan(span, err) }()

	rctx, cancel := p.remote(ctx)
	defer cancel()
	tr, err := p.stt.Transcribe(rctx, audio)
	if err != nil {
		return "", fmt.Errorf("dictation: transcribe: %w", err)
	}
	if tr == nil || strings.TrimSpace(tr.Text) == "" {
		return "", fmt.Errorf("dictation: transcribe: %w", stt.ErrNoText)
	}
	return strings.TrimSpace(tr.Text), nil
}

func (p *Pipeline) correct(ctx context.Context, text string) (string, []vocab.Correction) {
	if p.vocab == nil {
		return text, nil
	}
	corrected, corrections := p.vocab.Correct(text)
	for _, c := range corrections {
		observe.Logger(ctx).Debug("glossary correction",
			"original", c.Original,
			"corrected", c.Corrected,
			"method", c.Method,
			"confidence", c.Confidence,
		)
	}
	return corrected, corrections
}

func (p *Pipeline) generate(ctx context.Context, sex generate.Sex, text string) (out string, err error) {
	ctx, span := observe.StartSpan(ctx, "dictation.generate")
	defer func() { endSpan(span, err) }()

	rctx, cancel := p.remote(ctx)
	defer cancel()
	out, err = p.gen.Generate(rctx, sex, text)
	if err != nil {
		return "", fmt.Errorf("dictation: %w", err)
	}
	return out, nil
}

func (p *Pipeline) recordRun(ctx context.Context, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		observe.Logger(ctx).Error("dictation failed", "err", err)
	}
	p.metrics.RecordDictationRun(context.WithoutCancel(ctx), status)
}

func endSpan(span trace.Span, err error) {
	observe.FailSpan(span, err)
	span.End()
}
