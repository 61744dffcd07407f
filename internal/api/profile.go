package api

import (
	"net/http"

	"github.com/MrWong99/cystoscribe/internal/profile"
)

// maxProfileBytes bounds a profile update; it carries two images as data URLs.
const maxProfileBytes = 8 << 20

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.cfg.Profiles.Get(r.Context())
	if err != nil {
		writeError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) putProfile(w http.ResponseWriter, r *http.Request) {
	var u profile.Update
	if err := decodeJSON(w, r, maxProfileBytes, &u); err != nil {
		writeError(w, r, err, http.StatusInternalServerError)
		return
	}
	p, err := s.cfg.Profiles.Update(r.Context(), u)
	if err != nil {
		writeError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
