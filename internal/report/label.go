// Package report turns free-form cystoscopy report text into an ordered list
// of labelled clinical sections, and renders sections back to text or HTML.
//
// Section labels form a closed vocabulary declared in this file. Recognised
// spellings (including tolerated misspellings) live in an alias table, so
// adding a label or a variant spelling is a data change: append to
// [vocabulary] and the line pattern picks it up.
package report

import (
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Label identifies one clinical category of a cystoscopy report.
type Label int

const (
	// LabelNone marks an unlabelled passthrough paragraph.
	LabelNone Label = iota
	LabelUrethra
	LabelSphincter
	LabelProstate
	LabelBladder
	LabelMucosa
	LabelMeatus
	LabelConclusion
)

// labelDef is one row of the vocabulary: the canonical display form plus the
// alternative spellings that map onto it.
type labelDef struct {
	label     Label
	key       string
	canonical string
	aliases   []string
}

var vocabulary = []labelDef{
	{LabelUrethra, "urethra", "Uretra", nil},
	{LabelSphincter, "sphincter", "Esfínter", nil},
	{LabelProstate, "prostate", "Próstata/cuello vesical", []string{"Prostata/cuello vesical"}},
	{LabelBladder, "bladder", "Vejiga (capacidad y paredes)", nil},
	{LabelMucosa, "mucosa", "Mucosa vesical", nil},
	{LabelMeatus, "meatus", "Meatos ureterales", nil},
	{LabelConclusion, "conclusion", "Conclusión", nil},
}

// MaleOrder is the section order expected for a male patient.
var MaleOrder = []Label{
	LabelUrethra, LabelSphincter, LabelProstate, LabelBladder,
	LabelMucosa, LabelMeatus, LabelConclusion,
}

// FemaleOrder is the section order expected for a female patient. It never
// contains [LabelProstate].
var FemaleOrder = []Label{
	LabelUrethra, LabelSphincter, LabelBladder,
	LabelMucosa, LabelMeatus, LabelConclusion,
}

var (
	// aliases maps the folded spelling of every accepted label to its Label.
	aliases = buildAliases()

	// labelLine matches "<label>: <content>". Alternatives are ordered
	// longest first so that no alias shadows a longer one sharing its prefix.
	labelLine = buildLabelLine()
)

// String returns the canonical Spanish display form of l, or "" for
// [LabelNone] and unknown values.
func (l Label) String() string {
	for _, d := range vocabulary {
		if d.label == l {
			return d.canonical
		}
	}
	return ""
}

// Key returns a stable ASCII identifier for l, suitable for JSON and tool
// arguments. [LabelNone] has the key "paragraph".
func (l Label) Key() string {
	for _, d := range vocabulary {
		if d.label == l {
			return d.key
		}
	}
	return "paragraph"
}

// MarshalText encodes l by its key.
func (l Label) MarshalText() ([]byte, error) {
	return []byte(l.Key()), nil
}

// UnmarshalText accepts either a key ("urethra") or any recognised spelling
// ("Uretra", "Prostata/cuello vesical"). Unrecognised input decodes to
// [LabelNone].
func (l *Label) UnmarshalText(b []byte) error {
	s := string(b)
	for _, d := range vocabulary {
		if d.key == s {
			*l = d.label
			return nil
		}
	}
	lbl, _ := Canonicalize(s)
	*l = lbl
	return nil
}

// Canonicalize maps any accepted spelling of a label to its [Label]. The
// comparison is case-insensitive and insensitive to Unicode composition.
func Canonicalize(s string) (Label, bool) {
	l, ok := aliases[foldKey(s)]
	return l, ok
}

// Labels returns every label of the vocabulary in declaration order.
func Labels() []Label {
	out := make([]Label, 0, len(vocabulary))
	for _, d := range vocabulary {
		out = append(out, d.label)
	}
	return out
}

// foldKey builds a fresh Caser per call; a Caser must not be shared between
// goroutines.
func foldKey(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

func buildAliases() map[string]Label {
	m := make(map[string]Label)
	for _, d := range vocabulary {
		m[foldKey(d.canonical)] = d.label
		for _, a := range d.aliases {
			m[foldKey(a)] = d.label
		}
	}
	return m
}

func buildLabelLine() *regexp.Regexp {
	var alts []string
	for _, d := range vocabulary {
		alts = append(alts, d.canonical)
		alts = append(alts, d.aliases...)
	}
	slices.SortStableFunc(alts, func(a, b string) int { return len(b) - len(a) })
	for i, a := range alts {
		alts[i] = regexp.QuoteMeta(norm.NFC.String(a))
	}
	return regexp.MustCompile(`(?i)^(` + strings.Join(alts, "|") + `):\s*(.*)$`)
}
