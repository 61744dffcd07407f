package document

import "strings"

// Measurer reports the advance width of text set in a font, in points.
type Measurer interface {
	TextWidth(text, font string, size float64) float64
}

// span is a run of text in a single font.
type span struct {
	text string
	font string
}

// word is a measured token of a span.
type word struct {
	text  string
	font  string
	width float64
}

// run is a horizontal piece of a wrapped line: consecutive words sharing a
// font, joined by single spaces, starting at offset x from the line start.
type run struct {
	x    float64
	text string
	font string
}

// wrapper breaks spans into lines no wider than maxWidth.
type wrapper struct {
	m        Measurer
	size     float64
	maxWidth float64
}

// wrap tokenises spans on whitespace and greedily fills lines. A word wider
// than maxWidth on its own is broken between characters.
func (w wrapper) wrap(spans []span) [][]run {
	spaceW := w.m.TextWidth(" ", FontRegular, w.size)

	var (
		lines [][]run
		line  []word
		lineW float64
	)
	flush := func() {
		if len(line) == 0 {
			return
		}
		lines = append(lines, w.runs(line, spaceW))
		line, lineW = nil, 0
	}
	push := func(wd word) {
		if len(line) > 0 {
			lineW += spaceW
		}
		line = append(line, wd)
		lineW += wd.width
	}

	for _, s := range spans {
		for _, tok := range strings.Fields(s.text) {
			width := w.m.TextWidth(tok, s.font, w.size)
			switch {
			case len(line) > 0 && lineW+spaceW+width <= w.maxWidth:
				push(word{tok, s.font, width})
			case width <= w.maxWidth:
				flush()
				push(word{tok, s.font, width})
			default:
				flush()
				for _, piece := range w.breakWord(tok, s.font) {
					flush()
					push(piece)
				}
			}
		}
	}
	flush()
	return lines
}

// breakWord splits an over-long token into pieces that each fit maxWidth.
// A piece always holds at least one character.
func (w wrapper) breakWord(tok, font string) []word {
	var (
		pieces []word
		cur    strings.Builder
		curW   float64
	)
	for _, r := range tok {
		rw := w.m.TextWidth(string(r), font, w.size)
		if cur.Len() > 0 && curW+rw > w.maxWidth {
			pieces = append(pieces, word{cur.String(), font, curW})
			cur.Reset()
			curW = 0
		}
		cur.WriteRune(r)
		curW += rw
	}
	if cur.Len() > 0 {
		pieces = append(pieces, word{cur.String(), font, curW})
	}
	return pieces
}

// runs merges consecutive same-font words of a line.
func (w wrapper) runs(line []word, spaceW float64) []run {
	var (
		out []run
		x   float64
	)
	for i, wd := range line {
		if i > 0 {
			x += spaceW
		}
		if n := len(out); n > 0 && out[n-1].font == wd.font {
			out[n-1].text += " " + wd.text
		} else {
			out = append(out, run{x: x, text: wd.text, font: wd.font})
		}
		x += wd.width
	}
	return out
}
