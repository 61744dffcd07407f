package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/cystoscribe/pkg/provider/llm"
	"github.com/MrWong99/cystoscribe/pkg/provider/llm/worker"
)

type captured struct {
	Messages []llm.Message `json:"messages"`
}

func newMockServer(t *testing.T, status int, body string, got *captured, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		raw, _ := io.ReadAll(r.Body)
		if got != nil {
			if err := json.Unmarshal(raw, got); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func request() llm.CompletionRequest {
	return llm.CompletionRequest{
		SystemPrompt: "Sos un médico urólogo.",
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: "Sexo del paciente: varon.\nDictado libre del informe (texto sin procesar):\nuretra normal",
		}},
	}
}

func TestNew_EmptyURL_ReturnsError(t *testing.T) {
	if _, err := worker.New(" "); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestComplete_SendsSystemThenUser(t *testing.T) {
	var got captured
	var calls atomic.Int32
	srv := newMockServer(t, http.StatusOK,
		`{"choices":[{"message":{"role":"assistant","content":"\n Uretra: normal \n"}}]}`, &got, &calls)

	p, err := worker.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := p.Complete(context.Background(), request())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Uretra: normal" {
		t.Errorf("content = %q, want trimmed reply", resp.Content)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Role != "user" {
		t.Fatalf("messages = %+v, want system then user", got.Messages)
	}
	if got.Messages[0].Content != "Sos un médico urólogo." {
		t.Errorf("system content = %q", got.Messages[0].Content)
	}
}

func TestComplete_EmptyContent_ReturnsErrNoContent(t *testing.T) {
	for _, body := range []string{
		`{"choices":[{"message":{"content":"   "}}]}`,
		`{"choices":[]}`,
		`{}`,
	} {
		var calls atomic.Int32
		srv := newMockServer(t, http.StatusOK, body, nil, &calls)
		p, _ := worker.New(srv.URL)
		if _, err := p.Complete(context.Background(), request()); !errors.Is(err, llm.ErrNoContent) {
			t.Errorf("body %s: error = %v, want ErrNoContent", body, err)
		}
	}
}

func TestComplete_HTTPError_NoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := newMockServer(t, http.StatusBadGateway, "upstream down", nil, &calls)

	p, _ := worker.New(srv.URL)
	_, err := p.Complete(context.Background(), request())

	var se *llm.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *llm.StatusError", err)
	}
	if se.StatusCode != http.StatusBadGateway || se.Body != "upstream down" {
		t.Errorf("status error = %+v", se)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestComplete_InvalidJSON(t *testing.T) {
	var calls atomic.Int32
	srv := newMockServer(t, http.StatusOK, "<html>", nil, &calls)
	p, _ := worker.New(srv.URL)
	if _, err := p.Complete(context.Background(), request()); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestComplete_ContextCancelled(t *testing.T) {
	var calls atomic.Int32
	srv := newMockServer(t, http.StatusOK, `{}`, nil, &calls)
	p, _ := worker.New(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Complete(ctx, request()); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}
