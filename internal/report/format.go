package report

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// previewPolicy allows only the paragraph and emphasis markup produced by
// [HTML].
var previewPolicy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "strong")
	return p
}()

// Format renders sections back to report text, one "Label: text" line per
// labelled section and the bare text for paragraphs. Parsing the result
// yields an equivalent section list.
func Format(sections []Section) string {
	var b strings.Builder
	for i, s := range sections {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(Line(s))
	}
	return b.String()
}

// Line renders a single section as it appears in report text.
func Line(s Section) string {
	if !s.Labelled() {
		return s.Text
	}
	if s.Text == "" {
		return s.Label.String() + ":"
	}
	return s.Label.String() + ": " + s.Text
}

// HTML renders sections as a sanitised preview fragment: one paragraph per
// section with the label in bold.
func HTML(sections []Section) string {
	var b strings.Builder
	for _, s := range sections {
		b.WriteString("<p>")
		if s.Labelled() {
			b.WriteString("<strong>")
			b.WriteString(html.EscapeString(s.Label.String()))
			b.WriteString(":</strong> ")
		}
		b.WriteString(html.EscapeString(s.Text))
		b.WriteString("</p>")
	}
	return previewPolicy.Sanitize(b.String())
}
