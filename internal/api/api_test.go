package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/MrWong99/cystoscribe/internal/api"
	"github.com/MrWong99/cystoscribe/internal/dictation"
	"github.com/MrWong99/cystoscribe/internal/document"
	"github.com/MrWong99/cystoscribe/internal/generate"
	"github.com/MrWong99/cystoscribe/internal/health"
	"github.com/MrWong99/cystoscribe/internal/profile"
	"github.com/MrWong99/cystoscribe/internal/render"
	"github.com/MrWong99/cystoscribe/pkg/provider/llm"
	llmmock "github.com/MrWong99/cystoscribe/pkg/provider/llm/mock"
	"github.com/MrWong99/cystoscribe/pkg/provider/stt"
	sttmock "github.com/MrWong99/cystoscribe/pkg/provider/stt/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleReport = "Uretra: de calibre conservado.\nMucosa vesical: sin lesiones.\nConclusión: Cistoscopia normal."

type fakeRenderer struct {
	err error

	mu    sync.Mutex
	plans []*document.Plan
}

func (f *fakeRenderer) Render(_ context.Context, plan *document.Plan, w io.Writer) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.plans = append(f.plans, plan)
	f.mu.Unlock()
	_, err := io.WriteString(w, "%PDF-1.7 fake")
	return err
}

func (f *fakeRenderer) renders() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.plans)
}

type fixture struct {
	stt      *sttmock.Provider
	llm      *llmmock.Provider
	renderer *fakeRenderer
	profiles *profile.Service
	pipeline *dictation.Pipeline
	cfg      api.Config
	srv      *httptest.Server
}

// option adjusts the fixture before the server starts, so mocks are never
// mutated while a handler may read them.
type option func(*fixture)

func newFixture(t *testing.T, opts ...option) *fixture {
	t.Helper()

	store, err := profile.OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	f := &fixture{
		stt:      &sttmock.Provider{Transcript: &stt.Transcript{Text: "uretra normal vejiga sin lesiones"}},
		llm:      &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: sampleReport}},
		renderer: &fakeRenderer{},
		profiles: profile.NewService(store),
	}
	f.pipeline, err = dictation.NewPipeline(dictation.Config{
		Machine:   dictation.NewMachine(nil),
		STT:       f.stt,
		Generator: generate.New(f.llm),
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	f.cfg = api.Config{
		Profiles:      f.profiles,
		Pipeline:      f.pipeline,
		Composer:      document.NewComposer(render.FontMetrics{}),
		Renderer:      f.renderer,
		Health:        health.New(),
		MaxAudioBytes: 1024,
	}
	for _, o := range opts {
		o(f)
	}
	s, err := api.New(f.cfg)
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	f.srv = httptest.NewServer(s.Router())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) configure(t *testing.T) {
	t.Helper()
	name, specialty := "Dr. Juan Pérez", "Urología"
	if _, err := f.profiles.Update(context.Background(), profile.Update{Name: &name, Specialty: &specialty}); err != nil {
		t.Fatalf("configure profile: %v", err)
	}
}

func (f *fixture) do(t *testing.T, method, path, contentType string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) postJSON(t *testing.T, path string, v any) *http.Response {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return f.do(t, http.MethodPost, path, "application/json", bytes.NewReader(data))
}

func multipartAudio(t *testing.T, audio []byte, fields map[string]string) (string, io.Reader) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if audio != nil {
		fw, err := mw.CreateFormFile("audio", "dictado.webm")
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write(audio)
	}
	mw.Close()
	return mw.FormDataContentType(), &buf
}

type errorResponse struct {
	Error    string `json:"error"`
	Field    string `json:"field"`
	Redirect string `json:"redirect"`
	Code     string `json:"code"`
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d; body: %s", resp.StatusCode, want, body)
	}
}

// ── tests ────────────────────────────────────────────────────────────────────

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()
	if _, err := api.New(api.Config{}); err == nil {
		t.Fatal("expected error for empty config")
	}
}

func TestProfile_NotConfigured(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/profile", "", nil)
	expectStatus(t, resp, http.StatusNotFound)
	body := decodeBody[errorResponse](t, resp)
	if body.Redirect != api.ConfigPath {
		t.Errorf("redirect = %q, want %q", body.Redirect, api.ConfigPath)
	}
}

func TestProfile_PutGet(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := f.do(t, http.MethodPut, "/api/profile", "application/json",
		strings.NewReader(`{"nombre":"  Dra. Ana Ruiz ","especialidad":"Urología","matricula":"MN 1234"}`))
	expectStatus(t, resp, http.StatusOK)

	resp = f.do(t, http.MethodGet, "/api/profile", "", nil)
	expectStatus(t, resp, http.StatusOK)
	got := decodeBody[profile.Profile](t, resp)
	if got.Name != "Dra. Ana Ruiz" || got.License != "MN 1234" {
		t.Errorf("profile = %+v", got)
	}
}

func TestProfile_PutValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := f.do(t, http.MethodPut, "/api/profile", "application/json",
		strings.NewReader(`{"nombre":"Dra. Ana Ruiz"}`))
	expectStatus(t, resp, http.StatusUnprocessableEntity)
	if body := decodeBody[errorResponse](t, resp); body.Field != "especialidad" {
		t.Errorf("field = %q, want especialidad", body.Field)
	}
}

func TestProfile_PutMalformed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := f.do(t, http.MethodPut, "/api/profile", "application/json", strings.NewReader(`{"nombre":`))
	expectStatus(t, resp, http.StatusBadRequest)

	resp = f.do(t, http.MethodPut, "/api/profile", "application/json", strings.NewReader(`{"printer":"x"}`))
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestGenerate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := f.postJSON(t, "/api/generate", map[string]string{"sex": "mujer", "dictation": "uretra normal"})
	expectStatus(t, resp, http.StatusOK)
	res := decodeBody[dictation.Result](t, resp)
	if res.Report != sampleReport {
		t.Errorf("report = %q", res.Report)
	}
	if len(res.Sections) != 3 {
		t.Errorf("sections = %d, want 3", len(res.Sections))
	}
	if calls := f.llm.Calls(); len(calls) != 1 {
		t.Errorf("llm calls = %d, want 1", len(calls))
	}
}

func TestGenerate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		body      map[string]string
		llmErr    error
		wantCode  int
		wantField string
	}{
		{name: "empty dictation", body: map[string]string{"dictation": "  "}, wantCode: http.StatusUnprocessableEntity, wantField: "dictation"},
		{name: "bad sex", body: map[string]string{"dictation": "x", "sex": "otro"}, wantCode: http.StatusUnprocessableEntity, wantField: "sex"},
		{name: "llm status", body: map[string]string{"dictation": "x"}, llmErr: &llm.StatusError{Provider: "openai", StatusCode: 500}, wantCode: http.StatusBadGateway},
		{name: "llm empty", body: map[string]string{"dictation": "x"}, llmErr: llm.ErrNoContent, wantCode: http.StatusBadGateway},
		{name: "unclassified", body: map[string]string{"dictation": "x"}, llmErr: errors.New("boom"), wantCode: http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, func(f *fixture) { f.llm.CompleteErr = tt.llmErr })

			resp := f.postJSON(t, "/api/generate", tt.body)
			expectStatus(t, resp, tt.wantCode)
			if body := decodeBody[errorResponse](t, resp); body.Field != tt.wantField {
				t.Errorf("field = %q, want %q", body.Field, tt.wantField)
			}
		})
	}
}

func TestGenerate_Busy(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	if err := f.pipeline.Machine().StartCapture("browser"); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}

	resp := f.postJSON(t, "/api/generate", map[string]string{"dictation": "uretra normal"})
	expectStatus(t, resp, http.StatusConflict)
	if body := decodeBody[errorResponse](t, resp); body.Code != dictation.CodeBusy {
		t.Errorf("code = %q, want %q", body.Code, dictation.CodeBusy)
	}
}

func TestDictation_Upload(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	ct, body := multipartAudio(t, []byte("webm-bytes"), map[string]string{"sex": "varon"})
	resp := f.do(t, http.MethodPost, "/api/dictation", ct, body)
	expectStatus(t, resp, http.StatusOK)
	res := decodeBody[dictation.Result](t, resp)
	if res.Transcript == "" || res.Report != sampleReport {
		t.Errorf("result = %+v", res)
	}

	calls := f.stt.Calls()
	if len(calls) != 1 {
		t.Fatalf("stt calls = %d, want 1", len(calls))
	}
	if got := string(calls[0].Audio.Data); got != "webm-bytes" {
		t.Errorf("audio = %q", got)
	}
	if calls[0].Audio.Filename != "dictado.webm" {
		t.Errorf("filename = %q", calls[0].Audio.Filename)
	}
}

func TestDictation_UploadErrors(t *testing.T) {
	t.Parallel()

	t.Run("missing audio", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ct, body := multipartAudio(t, nil, map[string]string{"sex": "varon"})
		resp := f.do(t, http.MethodPost, "/api/dictation", ct, body)
		expectStatus(t, resp, http.StatusUnprocessableEntity)
		if got := decodeBody[errorResponse](t, resp); got.Field != "audio" {
			t.Errorf("field = %q, want audio", got.Field)
		}
	})

	t.Run("too large", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ct, body := multipartAudio(t, bytes.Repeat([]byte{1}, 4096), nil)
		resp := f.do(t, http.MethodPost, "/api/dictation", ct, body)
		expectStatus(t, resp, http.StatusRequestEntityTooLarge)
		if len(f.stt.Calls()) != 0 {
			t.Error("stt must not be called for an oversized upload")
		}
	})

	t.Run("not multipart", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		resp := f.do(t, http.MethodPost, "/api/dictation", "application/json", strings.NewReader("{}"))
		expectStatus(t, resp, http.StatusBadRequest)
	})

	t.Run("empty transcript", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, func(f *fixture) { f.stt.Transcript = &stt.Transcript{Text: "  "} })
		ct, body := multipartAudio(t, []byte("webm"), nil)
		resp := f.do(t, http.MethodPost, "/api/dictation", ct, body)
		expectStatus(t, resp, http.StatusBadGateway)
		if got := decodeBody[errorResponse](t, resp); got.Code != dictation.CodeEmptyResult {
			t.Errorf("code = %q, want %q", got.Code, dictation.CodeEmptyResult)
		}
		if len(f.llm.Calls()) != 0 {
			t.Error("llm must not be called without a transcript")
		}
	})
}

func TestTranscribe(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	ct, body := multipartAudio(t, []byte("webm"), nil)
	resp := f.do(t, http.MethodPost, "/api/transcribe", ct, body)
	expectStatus(t, resp, http.StatusOK)
	res := decodeBody[dictation.Result](t, resp)
	if res.Dictation != "uretra normal vejiga sin lesiones" {
		t.Errorf("dictation = %q", res.Dictation)
	}
	if res.Report != "" {
		t.Errorf("transcribe must not generate a report, got %q", res.Report)
	}
	if len(f.llm.Calls()) != 0 {
		t.Error("llm must not be called by transcribe")
	}
}

func TestDictationState(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/dictation/state", "", nil)
	expectStatus(t, resp, http.StatusOK)
	body := decodeBody[map[string]any](t, resp)
	if body["state"] != "idle" {
		t.Errorf("state = %v, want idle", body["state"])
	}
}

func TestReportSections(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := f.postJSON(t, "/api/report/sections", map[string]string{"report": sampleReport + "\nTexto libre."})
	expectStatus(t, resp, http.StatusOK)
	body := decodeBody[struct {
		Sections []struct {
			Label string `json:"label"`
			Text  string `json:"text"`
		} `json:"sections"`
	}](t, resp)
	if len(body.Sections) != 4 {
		t.Fatalf("sections = %d, want 4", len(body.Sections))
	}
	if body.Sections[0].Text != "de calibre conservado." {
		t.Errorf("first text = %q", body.Sections[0].Text)
	}
	if body.Sections[3].Label != "paragraph" {
		t.Errorf("last label = %q, want paragraph", body.Sections[3].Label)
	}
}

func TestReportPreview(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := f.postJSON(t, "/api/report/preview", map[string]string{"report": "Uretra: <script>alert(1)</script>"})
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q", ct)
	}
	data, _ := io.ReadAll(resp.Body)
	html := string(data)
	if strings.Contains(html, "<script>") {
		t.Errorf("preview not sanitised: %s", html)
	}
	if !strings.Contains(html, "<strong>") {
		t.Errorf("preview lacks bold label: %s", html)
	}
}

func TestReportPlan(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.configure(t)

	resp := f.postJSON(t, "/api/report/plan", map[string]any{
		"patient": map[string]string{"name": "Ana María Gómez", "dni": "30111222"},
		"report":  sampleReport,
	})
	expectStatus(t, resp, http.StatusOK)
	plan := decodeBody[document.Plan](t, resp)
	if plan.Filename != "informe-cistoscopia-Ana_María_Gómez.pdf" {
		t.Errorf("filename = %q", plan.Filename)
	}
	if f.renderer.renders() != 0 {
		t.Error("plan must not render")
	}
}

func TestReportPDF(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.configure(t)

	resp := f.postJSON(t, "/api/report/pdf", map[string]any{
		"patient": map[string]string{"name": "Ana María Gómez"},
		"report":  sampleReport,
	})
	expectStatus(t, resp, http.StatusOK)

	if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %q", ct)
	}
	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition"))
	if err != nil {
		t.Fatalf("parse disposition: %v", err)
	}
	if params["filename"] != "informe-cistoscopia-Ana_María_Gómez.pdf" {
		t.Errorf("filename = %q", params["filename"])
	}
	if got := resp.Header.Get(api.TruncatedHeader); got != "0" {
		t.Errorf("%s = %q, want 0", api.TruncatedHeader, got)
	}
	data, _ := io.ReadAll(resp.Body)
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Errorf("body = %q", data)
	}
	if f.renderer.renders() != 1 {
		t.Errorf("renders = %d, want 1", f.renderer.renders())
	}
}

func TestReportPDF_Errors(t *testing.T) {
	t.Parallel()

	t.Run("not configured", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		resp := f.postJSON(t, "/api/report/pdf", map[string]any{
			"patient": map[string]string{"name": "Ana"},
			"report":  sampleReport,
		})
		expectStatus(t, resp, http.StatusConflict)
		if body := decodeBody[errorResponse](t, resp); body.Redirect != api.ConfigPath {
			t.Errorf("redirect = %q", body.Redirect)
		}
	})

	t.Run("missing patient", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.configure(t)
		resp := f.postJSON(t, "/api/report/pdf", map[string]any{"report": sampleReport})
		expectStatus(t, resp, http.StatusUnprocessableEntity)
		if body := decodeBody[errorResponse](t, resp); body.Field != document.FieldPatientName {
			t.Errorf("field = %q", body.Field)
		}
	})

	t.Run("empty report", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.configure(t)
		resp := f.postJSON(t, "/api/report/pdf", map[string]any{
			"patient": map[string]string{"name": "Ana"},
			"report":  " \n ",
		})
		expectStatus(t, resp, http.StatusUnprocessableEntity)
		if body := decodeBody[errorResponse](t, resp); body.Field != document.FieldReport {
			t.Errorf("field = %q", body.Field)
		}
	})

	t.Run("render failure", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, func(f *fixture) { f.renderer.err = errors.New("pdfcpu exploded") })
		f.configure(t)
		resp := f.postJSON(t, "/api/report/pdf", map[string]any{
			"patient": map[string]string{"name": "Ana"},
			"report":  sampleReport,
		})
		expectStatus(t, resp, http.StatusInternalServerError)
		if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
	})
}

func TestAPIKeyAuth(t *testing.T) {
	t.Parallel()
	hash, err := api.HashAPIKey("s3cret")
	if err != nil {
		t.Fatalf("HashAPIKey: %v", err)
	}
	f := newFixture(t, func(f *fixture) { f.cfg.APIKeyHash = hash })

	resp := f.do(t, http.MethodGet, "/api/dictation/state", "", nil)
	expectStatus(t, resp, http.StatusUnauthorized)
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate header")
	}

	req, _ := http.NewRequest(http.MethodGet, f.srv.URL+"/api/dictation/state", nil)
	req.Header.Set(api.APIKeyHeader, "wrong")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d", resp2.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodGet, f.srv.URL+"/api/dictation/state", nil)
	req.Header.Set(api.APIKeyHeader, "s3cret")
	resp3, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusOK {
		t.Errorf("valid key: status = %d", resp3.StatusCode)
	}

	resp4 := f.do(t, http.MethodGet, "/api/dictation/state?api_key=s3cret", "", nil)
	expectStatus(t, resp4, http.StatusOK)

	// Health endpoints stay open.
	resp5 := f.do(t, http.MethodGet, "/healthz", "", nil)
	expectStatus(t, resp5, http.StatusOK)
}

func TestMCPMount(t *testing.T) {
	t.Parallel()
	mcpHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	f := newFixture(t, func(f *fixture) {
		f.cfg.MCP = mcpHandler
		f.cfg.MCPPath = "tools/mcp/"
	})

	resp := f.do(t, http.MethodPost, "/tools/mcp", "application/json", strings.NewReader("{}"))
	expectStatus(t, resp, http.StatusTeapot)
}
