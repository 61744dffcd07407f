package stt

import (
	"strings"
	"time"
)

// Default upload metadata, matching what browsers record with MediaRecorder.
const (
	DefaultFilename    = "dictado.webm"
	DefaultContentType = "audio/webm"
)

// Audio is one complete recording.
type Audio struct {
	// Data is the encoded recording.
	Data []byte

	// Filename is the upload file name. Default: [DefaultFilename].
	Filename string

	// ContentType is the MIME type of Data. Default: [DefaultContentType].
	ContentType string

	// Language is an ISO-639-1 hint ("es"). Empty lets the provider decide.
	Language string

	// Hints lists domain terms that should be recognised verbatim. Providers
	// that support prompting or keyword boosting forward them; others ignore
	// them.
	Hints []string
}

// WithDefaults returns a copy of a with empty metadata filled in.
func (a Audio) WithDefaults() Audio {
	if strings.TrimSpace(a.Filename) == "" {
		a.Filename = DefaultFilename
	}
	if strings.TrimSpace(a.ContentType) == "" {
		a.ContentType = DefaultContentType
	}
	return a
}

// Transcript is the result of transcribing one recording.
type Transcript struct {
	// Text is the transcribed speech, trimmed of surrounding whitespace.
	Text string

	// Provider names the backend that produced the transcript.
	Provider string

	// Elapsed is the wall time the backend took.
	Elapsed time.Duration
}
