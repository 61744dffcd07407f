package worker_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/cystoscribe/pkg/provider/stt"
	"github.com/MrWong99/cystoscribe/pkg/provider/stt/worker"
)

// newMockServer answers POST /audio with body and status, recording the
// uploaded bytes.
func newMockServer(t *testing.T, status int, body string, calls *atomic.Int32, uploaded *[]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/audio" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		calls.Add(1)
		f, hdr, err := r.FormFile("audio")
		if err != nil {
			t.Errorf("FormFile(audio): %v", err)
		} else {
			defer f.Close()
			if hdr.Filename != "dictado.webm" {
				t.Errorf("filename = %q", hdr.Filename)
			}
			if uploaded != nil {
				*uploaded, _ = io.ReadAll(f)
			}
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_EmptyBaseURL_ReturnsError(t *testing.T) {
	if _, err := worker.New(""); err == nil {
		t.Fatal("expected error for empty baseURL")
	}
}

func TestTranscribe_TextField(t *testing.T) {
	var calls atomic.Int32
	var uploaded []byte
	srv := newMockServer(t, http.StatusOK, `{"text":"  uretra de calibre normal  "}`, &calls, &uploaded)

	p, err := worker.New(srv.URL) // no trailing slash
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tr, err := p.Transcribe(context.Background(), stt.Audio{Data: []byte("webm")})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "uretra de calibre normal" {
		t.Errorf("text = %q", tr.Text)
	}
	if tr.Provider != "worker" {
		t.Errorf("provider = %q", tr.Provider)
	}
	if string(uploaded) != "webm" {
		t.Errorf("uploaded = %q", uploaded)
	}
}

func TestTranscribe_TranscriptionFallback(t *testing.T) {
	var calls atomic.Int32
	srv := newMockServer(t, http.StatusOK, `{"text":"","transcription":"vejiga sin lesiones"}`, &calls, nil)

	p, _ := worker.New(srv.URL + "/")
	tr, err := p.Transcribe(context.Background(), stt.Audio{Data: []byte("webm")})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "vejiga sin lesiones" {
		t.Errorf("text = %q", tr.Text)
	}
}

func TestTranscribe_NoText(t *testing.T) {
	var calls atomic.Int32
	srv := newMockServer(t, http.StatusOK, `{"language":"es"}`, &calls, nil)

	p, _ := worker.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), stt.Audio{Data: []byte("webm")}); !errors.Is(err, stt.ErrNoText) {
		t.Fatalf("error = %v, want ErrNoText", err)
	}
}

func TestTranscribe_EmptyAudio_NoRequest(t *testing.T) {
	var calls atomic.Int32
	srv := newMockServer(t, http.StatusOK, `{"text":"x"}`, &calls, nil)

	p, _ := worker.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), stt.Audio{}); !errors.Is(err, stt.ErrNoAudio) {
		t.Fatalf("error = %v, want ErrNoAudio", err)
	}
	if calls.Load() != 0 {
		t.Errorf("server called %d times, want 0", calls.Load())
	}
}

func TestTranscribe_HTTPError_NoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := newMockServer(t, http.StatusInternalServerError, "boom", &calls, nil)

	p, _ := worker.New(srv.URL)
	_, err := p.Transcribe(context.Background(), stt.Audio{Data: []byte("webm")})
	var se *stt.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusInternalServerError {
		t.Fatalf("error = %v, want 500 StatusError", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}
