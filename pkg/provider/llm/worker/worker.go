// Package worker provides an LLM provider for the report proxy worker: an
// HTTP endpoint that accepts {"messages": [...]} and answers with an
// OpenAI-shaped chat completion body.
//
// The worker holds the model credentials, so this provider sends none. It is
// the default backend of a stock deployment.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MrWong99/cystoscribe/pkg/provider/llm"
)

const (
	// contentPath locates the reply text in the worker's response body.
	contentPath = "choices.0.message.content"

	// maxErrorBody bounds how much of a failed response is kept for logging.
	maxErrorBody = 2048
)

// Provider implements llm.Provider against a proxy worker.
type Provider struct {
	url    string
	client *http.Client
}

var _ llm.Provider = (*Provider)(nil)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithHTTPClient replaces the HTTP client. The client's transport is used
// as-is; no tracing is added.
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

// New constructs a worker Provider posting to url (for example
// "https://proxy.example.workers.dev/").
func New(url string, opts ...Option) (*Provider, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("worker llm: url must not be empty")
	}
	p := &Provider{
		url:    url,
		client: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type requestBody struct {
	Messages    []llm.Message `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// Complete implements llm.Provider. It issues exactly one POST.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	payload, err := json.Marshal(requestBody{
		Messages:    req.Conversation(),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("worker llm: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("worker llm: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("worker llm: send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("worker llm: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &llm.StatusError{Provider: "worker", StatusCode: resp.StatusCode, Body: truncate(body)}
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("worker llm: response is not valid JSON")
	}

	content := strings.TrimSpace(gjson.GetBytes(body, contentPath).String())
	if content == "" {
		return nil, llm.ErrNoContent
	}

	usage := gjson.GetBytes(body, "usage")
	return &llm.CompletionResponse{
		Content: content,
		Usage: llm.Usage{
			PromptTokens:     int(usage.Get("prompt_tokens").Int()),
			CompletionTokens: int(usage.Get("completion_tokens").Int()),
			TotalTokens:      int(usage.Get("total_tokens").Int()),
		},
	}, nil
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return string(b)
}
