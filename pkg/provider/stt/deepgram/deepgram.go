// Package deepgram provides an STT provider backed by the Deepgram
// pre-recorded transcription API. It implements the stt.Provider interface.
package deepgram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MrWong99/cystoscribe/pkg/provider/stt"
)

const (
	deepgramEndpoint = "https://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "es"

	// transcriptPath locates the best alternative in a Deepgram response.
	transcriptPath = "results.channels.0.alternatives.0.transcript"
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "nova-2-medical").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the default language code for recognition (e.g., "es", "es-419").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEndpoint overrides the API endpoint.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram REST API.
type Provider struct {
	apiKey   string
	model    string
	language string
	endpoint string
	client   *http.Client
}

var _ stt.Provider = (*Provider)(nil)

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: deepgramEndpoint,
		client:   &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe uploads the recording as the raw request body.
func (p *Provider) Transcribe(ctx context.Context, audio stt.Audio) (*stt.Transcript, error) {
	if len(audio.Data) == 0 {
		return nil, stt.ErrNoAudio
	}
	start := time.Now()
	audio = audio.WithDefaults()

	endpoint, err := p.buildURL(audio)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(audio.Data))
	if err != nil {
		return nil, fmt.Errorf("deepgram: create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", audio.ContentType)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("deepgram: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &stt.StatusError{Provider: "deepgram", StatusCode: resp.StatusCode, Body: stt.TruncateBody(body)}
	}

	text, ok := parseDeepgramResponse(body)
	if !ok {
		return nil, stt.ErrNoText
	}
	return &stt.Transcript{Text: text, Provider: "deepgram", Elapsed: time.Since(start)}, nil
}

// buildURL constructs the Deepgram endpoint URL for one recording.
func (p *Provider) buildURL(audio stt.Audio) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := audio.Language
	if lang == "" {
		lang = p.language
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")

	// Nova-3 takes key terms; older models take boosted keywords.
	param := "keywords"
	if strings.HasPrefix(p.model, "nova-3") {
		param = "keyterm"
	}
	for _, h := range audio.Hints {
		if h = strings.TrimSpace(h); h != "" {
			q.Add(param, h)
		}
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// parseDeepgramResponse extracts the transcript of the first channel's best
// alternative. It reports false when the body is not JSON or the transcript
// is blank.
func parseDeepgramResponse(data []byte) (string, bool) {
	if !gjson.ValidBytes(data) {
		return "", false
	}
	text := strings.TrimSpace(gjson.GetBytes(data, transcriptPath).String())
	return text, text != ""
}
