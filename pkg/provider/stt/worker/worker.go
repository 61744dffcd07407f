// Package worker provides an STT provider for the report proxy worker's audio
// endpoint: a multipart upload of the recording under the "audio" field,
// answered with {"text": "..."} or {"transcription": "..."}.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MrWong99/cystoscribe/pkg/provider/stt"
)

const (
	// audioPath is appended to the worker base URL.
	audioPath = "audio"
	// formField is the multipart field carrying the recording.
	formField = "audio"
)

// Provider implements stt.Provider against a proxy worker.
type Provider struct {
	endpoint string
	client   *http.Client
}

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.client = c
	}
}

// WithTimeout sets an overall per-request timeout. Default: none.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.client.Timeout = d
	}
}

// New constructs a worker Provider. baseURL is the worker root; the audio
// endpoint is baseURL + "audio".
func New(baseURL string, opts ...Option) (*Provider, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("worker stt: baseURL must not be empty")
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	p := &Provider{
		endpoint: baseURL + audioPath,
		client:   &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider. It issues exactly one POST.
func (p *Provider) Transcribe(ctx context.Context, audio stt.Audio) (*stt.Transcript, error) {
	if len(audio.Data) == 0 {
		return nil, stt.ErrNoAudio
	}
	start := time.Now()

	req, err := stt.NewUploadRequest(ctx, p.endpoint, formField, audio, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("worker stt: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("worker stt: read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &stt.StatusError{Provider: "worker", StatusCode: resp.StatusCode, Body: stt.TruncateBody(body)}
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.New("worker stt: response is not valid JSON")
	}

	text := extractText(body)
	if text == "" {
		return nil, stt.ErrNoText
	}
	return &stt.Transcript{Text: text, Provider: "worker", Elapsed: time.Since(start)}, nil
}

// extractText prefers "text" and falls back to "transcription".
func extractText(body []byte) string {
	for _, path := range []string{"text", "transcription"} {
		if v := strings.TrimSpace(gjson.GetBytes(body, path).String()); v != "" {
			return v
		}
	}
	return ""
}
