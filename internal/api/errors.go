package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MrWong99/cystoscribe/internal/dictation"
	"github.com/MrWong99/cystoscribe/internal/document"
	"github.com/MrWong99/cystoscribe/internal/generate"
	"github.com/MrWong99/cystoscribe/internal/observe"
	"github.com/MrWong99/cystoscribe/internal/profile"
	"github.com/MrWong99/cystoscribe/internal/resilience"
	"github.com/MrWong99/cystoscribe/pkg/provider/llm"
	"github.com/MrWong99/cystoscribe/pkg/provider/stt"
)

type errorBody struct {
	Error    string `json:"error"`
	Field    string `json:"field,omitempty"`
	Redirect string `json:"redirect,omitempty"`
	Code     string `json:"code,omitempty"`
}

// fieldError is a request validation failure tied to one input field.
type fieldError struct {
	Field string
	Err   error
}

func (e *fieldError) Error() string { return fmt.Sprintf("%s: %v", e.Field, e.Err) }
func (e *fieldError) Unwrap() error { return e.Err }

// badRequest marks a malformed request body.
type badRequest struct{ err error }

func (e *badRequest) Error() string { return "invalid request: " + e.err.Error() }
func (e *badRequest) Unwrap() error { return e.err }

// statusFor maps an error to the response status and body. upstream is the
// status used for unclassified errors: 502 on routes that call a provider,
// 500 elsewhere.
func statusFor(err error, upstream int) (int, errorBody) {
	body := errorBody{Error: err.Error()}

	var (
		fe   *fieldError
		br   *badRequest
		mfe  *document.MissingFieldError
		ve   *profile.ValidationError
		mbe  *http.MaxBytesError
		sse  *stt.StatusError
		lse  *llm.StatusError
		code = dictation.ErrorCode(err)
	)
	switch {
	case errors.As(err, &mbe):
		body.Code = dictation.CodeAudioTooLarge
		return http.StatusRequestEntityTooLarge, body
	case errors.As(err, &br):
		return http.StatusBadRequest, body
	case errors.Is(err, profile.ErrNotConfigured):
		body.Redirect = ConfigPath
		return http.StatusNotFound, body
	case errors.Is(err, document.ErrConfigurationMissing):
		body.Redirect = ConfigPath
		return http.StatusConflict, body
	case errors.As(err, &mfe):
		body.Field = mfe.Field
		return http.StatusUnprocessableEntity, body
	case errors.As(err, &ve):
		body.Field = ve.Field
		return http.StatusUnprocessableEntity, body
	case errors.As(err, &fe):
		body.Field = fe.Field
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, generate.ErrEmptyDictation):
		body.Field, body.Code = "dictation", code
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, stt.ErrNoAudio):
		body.Field, body.Code = "audio", code
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, dictation.ErrBusy), errors.Is(err, dictation.ErrNotOwner):
		body.Code = code
		return http.StatusConflict, body
	case errors.Is(err, resilience.ErrCircuitOpen):
		body.Code = dictation.CodeUpstream
		return http.StatusServiceUnavailable, body
	case errors.Is(err, stt.ErrNoText), errors.Is(err, llm.ErrNoContent),
		errors.As(err, &sse), errors.As(err, &lse):
		body.Code = code
		return http.StatusBadGateway, body
	default:
		if upstream == http.StatusBadGateway {
			body.Code = dictation.CodeUpstream
		}
		return upstream, body
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error, upstream int) {
	status, body := statusFor(err, upstream)
	log := observe.Logger(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", r.URL.Path, "status", status, "err", err)
	} else {
		log.Info("request rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: encode response", "err", err)
	}
}

// decodeJSON reads a JSON request body into v, bounded by limit bytes.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return err
		}
		return &badRequest{err: err}
	}
	return nil
}
