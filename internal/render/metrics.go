package render

import (
	"math"

	"github.com/pdfcpu/pdfcpu/pkg/font"

	"github.com/MrWong99/cystoscribe/internal/document"
)

// FontMetrics measures text with the core-font metrics pdfcpu uses when it
// lays out the page, so that wrapping computed by the composer matches the
// rendered output.
type FontMetrics struct{}

var _ document.Measurer = FontMetrics{}

// TextWidth returns the advance width of text in points. Sizes are rounded
// to whole points, as in the rendered document.
func (FontMetrics) TextWidth(text, fontName string, size float64) float64 {
	if text == "" {
		return 0
	}
	return font.TextWidth(text, fontName, fontSize(size))
}

func fontSize(size float64) int {
	return max(1, int(math.Round(size)))
}

// strokeWidth rounds a border stroke to the whole points pdfcpu accepts.
// Hairline strokes become 1pt.
func strokeWidth(w float64) int {
	return max(1, int(math.Round(w)))
}
