package openai_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/cystoscribe/pkg/provider/stt"
	"github.com/MrWong99/cystoscribe/pkg/provider/stt/openai"
)

func newMockServer(t *testing.T, status int, body string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		} else {
			if got := r.FormValue("model"); got != "whisper-1" {
				t.Errorf("model = %q", got)
			}
			if got := r.FormValue("language"); got != "es" {
				t.Errorf("language = %q", got)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := openai.New(""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestTranscribe_Success(t *testing.T) {
	var calls atomic.Int32
	srv := newMockServer(t, http.StatusOK, `{"text":" próstata de tamaño normal "}`, &calls)

	p, err := openai.New("sk-test", openai.WithBaseURL(srv.URL+"/v1/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tr, err := p.Transcribe(context.Background(), stt.Audio{Data: []byte("webm")})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "próstata de tamaño normal" || tr.Provider != "openai" {
		t.Errorf("transcript = %+v", tr)
	}
}

func TestTranscribe_EmptyText(t *testing.T) {
	var calls atomic.Int32
	srv := newMockServer(t, http.StatusOK, `{"text":""}`, &calls)

	p, _ := openai.New("sk-test", openai.WithBaseURL(srv.URL+"/v1/"))
	if _, err := p.Transcribe(context.Background(), stt.Audio{Data: []byte("webm")}); !errors.Is(err, stt.ErrNoText) {
		t.Fatalf("error = %v, want ErrNoText", err)
	}
}

func TestTranscribe_StatusError_NoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := newMockServer(t, http.StatusServiceUnavailable, `{"error":{"message":"overloaded"}}`, &calls)

	p, _ := openai.New("sk-test", openai.WithBaseURL(srv.URL+"/v1/"))
	_, err := p.Transcribe(context.Background(), stt.Audio{Data: []byte("webm")})
	var se *stt.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("error = %v, want 503 StatusError", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}
