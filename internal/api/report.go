package api

import (
	"bytes"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/MrWong99/cystoscribe/internal/document"
	"github.com/MrWong99/cystoscribe/internal/observe"
	"github.com/MrWong99/cystoscribe/internal/report"
)

// TruncatedHeader carries the number of report lines dropped from a PDF.
const TruncatedHeader = "X-Report-Truncated"

type textRequest struct {
	Report string `json:"report"`
}

type documentRequest struct {
	Patient document.Patient `json:"patient"`
	Report  string           `json:"report"`
}

type sectionsResponse struct {
	Sections []report.Section `json:"sections"`
}

// sections handles POST /api/report/sections.
func (s *Server) sections(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decodeJSON(w, r, maxTextBytes, &req); err != nil {
		writeError(w, r, err, http.StatusInternalServerError)
		return
	}
	secs := report.Parse(req.Report)
	if secs == nil {
		secs = []report.Section{}
	}
	writeJSON(w, http.StatusOK, sectionsResponse{Sections: secs})
}

// preview handles POST /api/report/preview with a sanitised HTML fragment.
func (s *Server) preview(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decodeJSON(w, r, maxTextBytes, &req); err != nil {
		writeError(w, r, err, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(report.HTML(report.Parse(req.Report))))
}

// plan handles POST /api/report/plan: the page layout without rendering.
func (s *Server) plan(w http.ResponseWriter, r *http.Request) {
	plan, ok := s.compose(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// pdf handles POST /api/report/pdf. The document is rendered into memory
// first so that a failed render still produces a JSON error.
func (s *Server) pdf(w http.ResponseWriter, r *http.Request) {
	plan, ok := s.compose(w, r)
	if !ok {
		return
	}

	ctx, span := observe.StartSpan(r.Context(), "report.render")
	start := time.Now()
	var buf bytes.Buffer
	err := s.cfg.Renderer.Render(ctx, plan, &buf)
	s.metrics.RenderDuration.Record(ctx, time.Since(start).Seconds())
	span.End()
	if err != nil {
		writeError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.metrics.RecordReportRendered(ctx, plan.Truncated)
	if plan.Truncated {
		observe.Logger(ctx).Warn("report truncated to fit the page",
			"filename", plan.Filename,
			"dropped_lines", plan.DroppedLines,
		)
	}

	h := w.Header()
	h.Set("Content-Type", "application/pdf")
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": plan.Filename}))
	h.Set("Content-Length", strconv.Itoa(buf.Len()))
	h.Set(TruncatedHeader, strconv.Itoa(plan.DroppedLines))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) compose(w http.ResponseWriter, r *http.Request) (*document.Plan, bool) {
	var req documentRequest
	if err := decodeJSON(w, r, maxTextBytes, &req); err != nil {
		writeError(w, r, err, http.StatusInternalServerError)
		return nil, false
	}
	plan, err := s.cfg.Composer.ComposeText(r.Context(), s.cfg.Profiles, req.Patient, req.Report)
	if err != nil {
		writeError(w, r, err, http.StatusInternalServerError)
		return nil, false
	}
	return plan, true
}
