// Package whisper provides an STT provider backed by a whisper.cpp server.
//
// It uploads each complete recording to a running whisper-server binary
// (REST API at POST /inference). Browser recordings (WebM/Opus) require the
// server to be started with --convert so it can decode them through ffmpeg.
// Raw 16-bit PCM, declared as "audio/L16" or "audio/pcm" with optional rate
// and channels parameters, is wrapped in a WAV container before upload.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("es"))
//	tr, err := p.Transcribe(ctx, stt.Audio{Data: webm})
package whisper

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MrWong99/cystoscribe/pkg/provider/stt"
)

const (
	// bitsPerSample is fixed at 16 for the 16-bit signed little-endian PCM
	// audio that whisper.cpp expects.
	bitsPerSample = 16

	defaultLanguage   = "es"
	defaultSampleRate = 16000
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "small", "medium"). When empty the server uses whichever model it
// was started with, which is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the ISO-639-1 language code sent to the whisper.cpp
// server when the recording carries none. Defaults to "es".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a new Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, audio stt.Audio) (*stt.Transcript, error) {
	if len(audio.Data) == 0 {
		return nil, stt.ErrNoAudio
	}
	start := time.Now()
	audio = audio.WithDefaults()

	if rate, channels, ok := pcmFormat(audio.ContentType); ok {
		audio.Data = encodeWAV(audio.Data, rate, channels)
		audio.Filename = "dictado.wav"
		audio.ContentType = "audio/wav"
	}

	fields := map[string]string{"response_format": "json"}
	lang := audio.Language
	if lang == "" {
		lang = p.language
	}
	if lang != "" {
		fields["language"] = lang
	}
	if p.model != "" {
		fields["model"] = p.model
	}
	if len(audio.Hints) > 0 {
		fields["prompt"] = strings.Join(audio.Hints, ", ")
	}

	req, err := stt.NewUploadRequest(ctx, p.serverURL+"/inference", "file", audio, fields)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whisper: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &stt.StatusError{Provider: "whisper", StatusCode: resp.StatusCode, Body: stt.TruncateBody(data)}
	}
	if !gjson.ValidBytes(data) {
		return nil, errors.New("whisper: parse JSON response: invalid JSON")
	}

	text := strings.TrimSpace(gjson.GetBytes(data, "text").String())
	if text == "" {
		return nil, stt.ErrNoText
	}
	return &stt.Transcript{Text: text, Provider: "whisper", Elapsed: time.Since(start)}, nil
}

// ---- helpers ----------------------------------------------------------------

// pcmFormat reports whether contentType declares raw 16-bit PCM and returns
// its sample rate and channel count.
func pcmFormat(contentType string) (rate, channels int, ok bool) {
	mt, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return 0, 0, false
	}
	switch mt {
	case "audio/l16", "audio/pcm":
	default:
		return 0, 0, false
	}
	rate, channels = defaultSampleRate, 1
	if v, err := strconv.Atoi(params["rate"]); err == nil && v > 0 {
		rate = v
	}
	if v, err := strconv.Atoi(params["channels"]); err == nil && v > 0 {
		channels = v
	}
	return rate, channels, true
}

// encodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container.
func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	bps := bitsPerSample
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                 // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))   // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))   // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign)) // block align
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bps))        // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}
