// Package document lays out a single-page cystoscopy report.
//
// [Composer.Compose] turns the physician profile, the patient data and the
// parsed report sections into a [Plan]: an ordered list of drawing
// directives in page coordinates. The plan is renderer-agnostic; text is
// measured through a [Measurer] so that wrapping matches the fonts the
// renderer will use.
//
// The page is laid out top to bottom with no pagination:
//
//	letterhead band (optional)
//	patient data box
//	report box (fills down to the signature reserve, with a minimum height)
//	signature block (anchored to the page bottom, right-aligned)
//
// Report lines that do not fit in the report box are dropped; the plan
// records how many so callers can warn the user.
package document

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/cystoscribe/internal/profile"
	"github.com/MrWong99/cystoscribe/internal/report"
)

// ErrConfigurationMissing is returned when no physician profile exists. The
// caller should send the user to the profile configuration.
var ErrConfigurationMissing = errors.New("document: physician profile not configured")

// Required field names reported by [MissingFieldError].
const (
	FieldPatientName = "patient_name"
	FieldReport      = "report"
)

// MissingFieldError reports a required input that was empty.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("document: required field %q is missing", e.Field)
}

// Titles of the two boxes.
const (
	PatientTitle = "Datos del paciente"
	ReportTitle  = "Informe de cistoscopia"
)

// Composer lays out report pages. It is stateless and safe for concurrent
// use.
type Composer struct {
	geo Geometry
	m   Measurer
}

// Option configures a [Composer].
type Option func(*Composer)

// WithGeometry replaces the default [A4] geometry.
func WithGeometry(g Geometry) Option {
	return func(c *Composer) {
		c.geo = g
	}
}

// NewComposer returns a Composer that measures text with m.
func NewComposer(m Measurer, opts ...Option) *Composer {
	c := &Composer{geo: A4(), m: m}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Geometry returns the page geometry used by c.
func (c *Composer) Geometry() Geometry { return c.geo }

// Compose lays out one report page.
//
// It fails with [ErrConfigurationMissing] when prof is nil, then with a
// [*MissingFieldError] when the patient name is blank or there are no
// sections. Inputs are never modified.
func (c *Composer) Compose(prof *profile.Profile, patient Patient, sections []report.Section) (*Plan, error) {
	if prof == nil {
		return nil, ErrConfigurationMissing
	}
	if strings.TrimSpace(patient.Name) == "" {
		return nil, &MissingFieldError{Field: FieldPatientName}
	}
	if len(sections) == 0 {
		return nil, &MissingFieldError{Field: FieldReport}
	}

	g := c.geo
	plan := &Plan{
		PageWidth:  g.PageWidth,
		PageHeight: g.PageHeight,
		Filename:   Filename(patient.Name),
	}

	cursor := g.MarginTop
	if prof.HasLetterhead() {
		plan.add(Directive{
			Kind: KindImage, X: 0, Y: 0,
			Width: g.PageWidth, Height: g.LetterheadHeight,
			Image: prof.Letterhead,
		})
		cursor = g.LetterheadHeight + g.LetterheadGap
	}

	cursor = c.patientBox(plan, patient, cursor)
	c.reportBox(plan, sections, cursor+g.BoxGap)
	c.signature(plan, prof)
	return plan, nil
}

// patientBox draws the patient data box at top and returns its bottom edge.
func (c *Composer) patientBox(plan *Plan, patient Patient, top float64) float64 {
	g := c.geo
	rows := patient.rows()
	height := g.TitleHeight + float64(len(rows))*g.LineHeight + g.BoxPadding

	plan.PatientTop = top
	plan.PatientBoxHeight = height
	plan.PatientRows = len(rows)

	plan.add(c.box(top, height))
	plan.add(c.title(PatientTitle, top))

	for i, r := range rows {
		baseline := top + g.TitleHeight + float64(i+1)*g.LineHeight - 3
		plan.add(Directive{
			Kind: KindText, X: g.MarginX + g.LabelOffset, Y: baseline,
			Text: r.label, Font: FontBold, FontSize: g.BodySize,
		})
		plan.add(Directive{
			Kind: KindText, X: g.MarginX + g.ValueOffset, Y: baseline,
			Text: r.value, Font: FontRegular, FontSize: g.BodySize,
		})
	}
	return top + height
}

// reportBox draws the report box starting at top and fills it with the
// wrapped sections. Lines past the inner bottom edge are counted as dropped.
func (c *Composer) reportBox(plan *Plan, sections []report.Section, top float64) {
	g := c.geo
	bottom := g.PageHeight - g.SignatureReserve
	if bottom-top < g.ReportMinHeight {
		bottom = top + g.ReportMinHeight
	}
	height := bottom - top

	plan.ReportTop = top
	plan.ReportBoxHeight = height
	plan.add(c.box(top, height))
	plan.add(c.title(ReportTitle, top))

	wr := wrapper{m: c.m, size: g.BodySize, maxWidth: g.contentWidth() - 2*g.BoxPadding}
	left := g.MarginX + g.BoxPadding
	limit := bottom - g.BoxPadding/2
	baseline := top + g.TitleHeight + g.ReportLineHeight - 3

	for i, s := range sections {
		if i > 0 {
			baseline += g.ParagraphGap
		}
		for _, line := range wr.wrap(sectionSpans(s)) {
			if baseline > limit {
				plan.Truncated = true
				plan.DroppedLines++
				continue
			}
			for _, r := range line {
				plan.add(Directive{
					Kind: KindText, X: left + r.x, Y: baseline,
					Text: r.text, Font: r.font, FontSize: g.BodySize,
				})
			}
			baseline += g.ReportLineHeight
		}
	}
}

func sectionSpans(s report.Section) []span {
	if !s.Labelled() {
		return []span{{text: s.Text, font: FontRegular}}
	}
	return []span{
		{text: s.Label.String() + ":", font: FontBold},
		{text: s.Text, font: FontRegular},
	}
}

// signature draws the right-aligned signature block anchored to the page
// bottom.
func (c *Composer) signature(plan *Plan, prof *profile.Profile) {
	g := c.geo
	right := g.PageWidth - g.MarginX
	left := right - g.SignatureLineWidth
	lineY := g.PageHeight - g.SignatureBottom

	if prof.HasSignature() {
		plan.add(Directive{
			Kind:  KindImage,
			X:     left + (g.SignatureLineWidth-g.SignatureImageW)/2,
			Y:     lineY - g.SignatureImageGap - g.SignatureImageH,
			Width: g.SignatureImageW, Height: g.SignatureImageH,
			Image: prof.Signature,
		})
	}
	plan.add(Directive{
		Kind: KindLine, X: left, Y: lineY,
		Width: g.SignatureLineWidth, Stroke: g.SignatureLineStroke,
	})

	baseline := lineY
	for _, r := range signatureRows(prof) {
		baseline += g.SignatureLineHeight
		w := c.m.TextWidth(r.text, r.font, g.SignatureTextSize)
		plan.add(Directive{
			Kind: KindText, X: right - w, Y: baseline,
			Text: r.text, Font: r.font, FontSize: g.SignatureTextSize,
		})
	}
}

// signatureRows returns the physician name and the "specialty – license"
// line, omitting whatever is empty.
func signatureRows(prof *profile.Profile) []span {
	var rows []span
	if name := strings.TrimSpace(prof.Name); name != "" {
		rows = append(rows, span{text: name, font: FontBold})
	}

	var parts []string
	if sp := strings.TrimSpace(prof.Specialty); sp != "" {
		parts = append(parts, sp)
	}
	if lic := strings.TrimSpace(prof.License); lic != "" {
		parts = append(parts, "Matrícula: "+lic)
	}
	if len(parts) > 0 {
		rows = append(rows, span{text: strings.Join(parts, " – "), font: FontRegular})
	}
	return rows
}

func (c *Composer) box(top, height float64) Directive {
	g := c.geo
	return Directive{
		Kind: KindBox, X: g.MarginX, Y: top,
		Width: g.contentWidth(), Height: height,
		Radius: g.BoxRadius, Stroke: g.BoxBorderWidth,
	}
}

func (c *Composer) title(text string, top float64) Directive {
	g := c.geo
	return Directive{
		Kind: KindText, X: g.MarginX + g.BoxPadding, Y: top + g.TitleHeight - 6,
		Text: text, Font: FontBold, FontSize: g.TitleSize,
	}
}
