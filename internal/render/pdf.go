// Package render turns a [document.Plan] into a PDF file using pdfcpu.
//
// The plan is translated into pdfcpu's JSON page description. pdfcpu places
// content from the lower-left corner of the page, so every directive is
// flipped vertically on the way through. Embedded images arrive as data URLs
// and are staged in a per-render temporary directory that is removed once the
// document has been written.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/MrWong99/cystoscribe/internal/document"
	"github.com/MrWong99/cystoscribe/internal/profile"
)

// Renderer writes a composed plan as a document.
type Renderer interface {
	Render(ctx context.Context, plan *document.Plan, w io.Writer) error
}

// PDF renders plans through pdfcpu. It is safe for concurrent use.
type PDF struct {
	tmpDir string
	paper  string
}

var _ Renderer = (*PDF)(nil)

// Option configures a [PDF] renderer.
type Option func(*PDF)

// WithTempDir sets the parent directory for staged images. Default: the
// system temporary directory.
func WithTempDir(dir string) Option {
	return func(p *PDF) {
		p.tmpDir = dir
	}
}

// NewPDF returns a PDF renderer for A4 portrait pages.
func NewPDF(opts ...Option) *PDF {
	p := &PDF{paper: "A4P"}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Render writes plan as a single-page PDF to w.
func (p *PDF) Render(ctx context.Context, plan *document.Plan, w io.Writer) error {
	if plan == nil {
		return fmt.Errorf("render: nil plan")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	id := uuid.NewString()
	dir, err := os.MkdirTemp(p.tmpDir, "cystoscribe-render-"+id+"-")
	if err != nil {
		return fmt.Errorf("render: create staging dir: %w", err)
	}
	defer os.RemoveAll(dir)

	images, err := stageImages(plan, dir)
	if err != nil {
		return err
	}

	desc := describe(plan, p.paper, images)
	raw, err := json.Marshal(desc)
	if err != nil {
		return fmt.Errorf("render: encode page description: %w", err)
	}

	conf := model.NewDefaultConfiguration()
	if err := api.Create(nil, bytes.NewReader(raw), w, conf); err != nil {
		return fmt.Errorf("render: create pdf: %w", err)
	}

	slog.Debug("report rendered",
		"render_id", id,
		"filename", plan.Filename,
		"directives", len(plan.Directives),
		"truncated", plan.Truncated,
	)
	return nil
}

// stageImages decodes the data URL of every image directive into a file
// under dir and returns the file path per directive index.
func stageImages(plan *document.Plan, dir string) (map[int]string, error) {
	paths := make(map[int]string)
	for i, d := range plan.Directives {
		if d.Kind != document.KindImage {
			continue
		}
		img, err := profile.DecodeImage(d.Image)
		if err != nil {
			return nil, fmt.Errorf("render: image %d: %w", i, err)
		}
		path := filepath.Join(dir, "img-"+strconv.Itoa(i)+"."+img.Format)
		if err := os.WriteFile(path, img.Data, 0o600); err != nil {
			return nil, fmt.Errorf("render: stage image %d: %w", i, err)
		}
		paths[i] = path
	}
	return paths, nil
}
