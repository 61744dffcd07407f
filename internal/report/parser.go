package report

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Section is one labelled finding of a report, or an unlabelled paragraph
// when Label is [LabelNone]. Sections are values and are never mutated after
// [Parse] returns them.
type Section struct {
	Label Label  `json:"label"`
	Text  string `json:"text"`
}

// Labelled reports whether s carries a vocabulary label.
func (s Section) Labelled() bool {
	return s.Label != LabelNone
}

// Parse splits text into sections, one per non-blank line, in input order.
//
// A line of the form "<label>: <content>" yields a labelled section. When the
// content after the colon is empty, the next non-blank line is taken as the
// content if it is not itself a label line; that line is then consumed. Any
// other line is kept verbatim as an unlabelled paragraph. Duplicate labels
// are preserved.
func Parse(text string) []Section {
	lines := splitLines(text)
	sections := make([]Section, 0, len(lines))

	for i := 0; i < len(lines); i++ {
		label, content, ok := matchLabel(lines[i])
		if !ok {
			sections = append(sections, Section{Label: LabelNone, Text: lines[i]})
			continue
		}
		if content == "" && i+1 < len(lines) {
			if _, _, next := matchLabel(lines[i+1]); !next {
				content = lines[i+1]
				i++
			}
		}
		sections = append(sections, Section{Label: label, Text: content})
	}
	return sections
}

// splitLines returns the trimmed, NFC-normalised non-blank lines of text.
func splitLines(text string) []string {
	raw := strings.Split(norm.NFC.String(text), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func matchLabel(line string) (Label, string, bool) {
	m := labelLine.FindStringSubmatch(line)
	if m == nil {
		return LabelNone, "", false
	}
	label, ok := Canonicalize(m[1])
	if !ok {
		return LabelNone, "", false
	}
	return label, strings.TrimSpace(m[2]), true
}
