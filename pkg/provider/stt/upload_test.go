package stt_test

import (
	"context"
	"io"
	"testing"

	"github.com/MrWong99/cystoscribe/pkg/provider/stt"
)

func TestNewUploadRequest_Multipart(t *testing.T) {
	req, err := stt.NewUploadRequest(context.Background(), "http://worker.test/audio", "audio",
		stt.Audio{Data: []byte("webm-bytes")}, map[string]string{"language": "es"})
	if err != nil {
		t.Fatalf("NewUploadRequest: %v", err)
	}
	if req.Method != "POST" {
		t.Errorf("method = %s", req.Method)
	}
	if err := req.ParseMultipartForm(1 << 20); err != nil {
		t.Fatalf("ParseMultipartForm: %v", err)
	}
	if got := req.FormValue("language"); got != "es" {
		t.Errorf("language = %q", got)
	}
	f, hdr, err := req.FormFile("audio")
	if err != nil {
		t.Fatalf("FormFile: %v", err)
	}
	defer f.Close()
	if hdr.Filename != stt.DefaultFilename {
		t.Errorf("filename = %q, want %q", hdr.Filename, stt.DefaultFilename)
	}
	if ct := hdr.Header.Get("Content-Type"); ct != stt.DefaultContentType {
		t.Errorf("part Content-Type = %q", ct)
	}
	data, _ := io.ReadAll(f)
	if string(data) != "webm-bytes" {
		t.Errorf("data = %q", data)
	}
}

func TestAudio_WithDefaults_KeepsExplicitValues(t *testing.T) {
	a := stt.Audio{Filename: "x.ogg", ContentType: "audio/ogg"}.WithDefaults()
	if a.Filename != "x.ogg" || a.ContentType != "audio/ogg" {
		t.Errorf("WithDefaults overwrote explicit metadata: %+v", a)
	}
}

func TestTruncateBody(t *testing.T) {
	long := make([]byte, 5000)
	if got := len(stt.TruncateBody(long)); got != 2048 {
		t.Errorf("len = %d, want 2048", got)
	}
	if got := stt.TruncateBody([]byte("short")); got != "short" {
		t.Errorf("got %q", got)
	}
}
