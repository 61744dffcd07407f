package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/MrWong99/cystoscribe/internal/dictation"
	"github.com/MrWong99/cystoscribe/pkg/provider/stt"
)

// multipartOverhead is allowed on top of the audio limit for form fields and
// part headers.
const multipartOverhead = 1 << 20

// maxTextBytes bounds JSON bodies carrying dictation or report text.
const maxTextBytes = 1 << 20

type generateRequest struct {
	Sex       string `json:"sex"`
	Dictation string `json:"dictation"`
}

// transcribe handles POST /api/transcribe: a multipart upload with an
// "audio" file, answered with the corrected transcript only.
func (s *Server) transcribe(w http.ResponseWriter, r *http.Request) {
	audio, _, err := s.readAudio(w, r)
	if err != nil {
		writeError(w, r, err, http.StatusBadGateway)
		return
	}
	res, err := s.cfg.Pipeline.Transcribe(r.Context(), "", audio)
	if err != nil {
		writeError(w, r, err, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// generate handles POST /api/generate: a text dictation in, report out.
func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(w, r, maxTextBytes, &req); err != nil {
		writeError(w, r, err, http.StatusInternalServerError)
		return
	}
	sex, err := s.sexOrDefault(req.Sex)
	if err != nil {
		writeError(w, r, err, http.StatusInternalServerError)
		return
	}
	res, err := s.cfg.Pipeline.Run(r.Context(), dictation.Request{Text: req.Dictation, Sex: sex})
	if err != nil {
		writeError(w, r, err, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// dictate handles POST /api/dictation: a multipart upload with an "audio"
// file and an optional "sex" field, run through the whole pipeline.
func (s *Server) dictate(w http.ResponseWriter, r *http.Request) {
	audio, rawSex, err := s.readAudio(w, r)
	if err != nil {
		writeError(w, r, err, http.StatusBadGateway)
		return
	}
	sex, err := s.sexOrDefault(rawSex)
	if err != nil {
		writeError(w, r, err, http.StatusInternalServerError)
		return
	}
	res, err := s.cfg.Pipeline.Run(r.Context(), dictation.Request{Audio: &audio, Sex: sex})
	if err != nil {
		writeError(w, r, err, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) dictationState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Pipeline.Machine().Info())
}

// readAudio extracts the "audio" part of a multipart upload together with
// the "sex" form value.
func (s *Server) readAudio(w http.ResponseWriter, r *http.Request) (stt.Audio, string, error) {
	limit := int64(s.cfg.MaxAudioBytes)
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(limit + multipartOverhead); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return stt.Audio{}, "", err
		}
		return stt.Audio{}, "", &badRequest{err: err}
	}

	f, hdr, err := r.FormFile("audio")
	if errors.Is(err, http.ErrMissingFile) {
		return stt.Audio{}, "", stt.ErrNoAudio
	}
	if err != nil {
		return stt.Audio{}, "", &badRequest{err: err}
	}
	defer f.Close()

	if hdr.Size > limit {
		return stt.Audio{}, "", &http.MaxBytesError{Limit: limit}
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return stt.Audio{}, "", fmt.Errorf("api: read audio: %w", err)
	}
	audio := stt.Audio{
		Data:        data,
		Filename:    hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
	}
	return audio.WithDefaults(), r.FormValue("sex"), nil
}
