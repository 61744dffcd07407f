// Package stt defines the Provider interface for speech-to-text backends.
//
// Dictations are recorded in full on the client and transcribed as one batch
// upload: a [Provider] receives the complete recording and returns the whole
// transcript. Providers are called exactly once per recording; callers must
// not retry.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoAudio is returned when a recording carries no bytes.
	ErrNoAudio = errors.New("stt: recording is empty")

	// ErrNoText is returned when the backend answered successfully but
	// produced no transcript text.
	ErrNoText = errors.New("stt: transcription has no text")
)

// StatusError reports a non-success HTTP status from a backend.
type StatusError struct {
	// Provider names the backend ("worker", "whisper", ...).
	Provider string
	// StatusCode is the HTTP status returned by the backend.
	StatusCode int
	// Body is the (possibly truncated) response body, for logging.
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Provider is the abstraction over any batch transcription backend.
type Provider interface {
	// Transcribe uploads a complete recording and returns its transcript.
	// Implementations return [ErrNoAudio] for an empty recording,
	// [ErrNoText] when the transcript is blank and a [*StatusError] for HTTP
	// failures.
	Transcribe(ctx context.Context, audio Audio) (*Transcript, error)
}
