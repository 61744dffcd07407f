package document

// Kind identifies the drawing primitive of a [Directive].
type Kind int

const (
	// KindText draws Text with its baseline at (X, Y).
	KindText Kind = iota
	// KindImage draws Image scaled into the rectangle (X, Y, Width, Height).
	KindImage
	// KindLine draws a horizontal rule from (X, Y) to (X+Width, Y).
	KindLine
	// KindBox draws a bordered, optionally rounded rectangle.
	KindBox
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindLine:
		return "line"
	case KindBox:
		return "box"
	}
	return "unknown"
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Directive is one drawing instruction. Coordinates are PDF points measured
// from the top-left corner of the page.
type Directive struct {
	Kind Kind    `json:"kind"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`

	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`

	Text     string  `json:"text,omitempty"`
	Font     string  `json:"font,omitempty"`
	FontSize float64 `json:"fontSize,omitempty"`

	// Image is a data URL, set for KindImage.
	Image string `json:"-"`

	Radius float64 `json:"radius,omitempty"`
	Stroke float64 `json:"stroke,omitempty"`
}

// Plan is the complete layout of one report page. It is produced once by
// [Composer.Compose] and consumed once by a renderer.
type Plan struct {
	PageWidth  float64 `json:"pageWidth"`
	PageHeight float64 `json:"pageHeight"`

	Directives []Directive `json:"directives"`

	// Top edges and heights of the two boxes.
	PatientTop       float64 `json:"patientTop"`
	PatientBoxHeight float64 `json:"patientBoxHeight"`
	ReportTop        float64 `json:"reportTop"`
	ReportBoxHeight  float64 `json:"reportBoxHeight"`

	// PatientRows is the number of data rows in the patient box.
	PatientRows int `json:"patientRows"`

	// Filename is the suggested download name of the rendered document.
	Filename string `json:"filename"`

	// Truncated is set when report lines did not fit in the report box.
	// DroppedLines counts them.
	Truncated    bool `json:"truncated"`
	DroppedLines int  `json:"droppedLines"`
}

// Texts returns the text of every text directive, in order.
func (p *Plan) Texts() []string {
	var out []string
	for _, d := range p.Directives {
		if d.Kind == KindText {
			out = append(out, d.Text)
		}
	}
	return out
}

func (p *Plan) add(d Directive) {
	p.Directives = append(p.Directives, d)
}
