package document

// Font names understood by the renderer. Both are PDF core fonts.
const (
	FontRegular = "Helvetica"
	FontBold    = "Helvetica-Bold"
)

// Geometry holds every fixed size and offset of the report page, in PDF
// points (1/72 in) with the origin at the top-left corner.
type Geometry struct {
	PageWidth  float64
	PageHeight float64

	// MarginX is the left and right page margin; boxes span the width between.
	MarginX float64
	// MarginTop is the top of the first box when there is no letterhead.
	MarginTop float64

	LetterheadHeight float64
	LetterheadGap    float64

	BoxPadding     float64
	BoxRadius      float64
	BoxBorderWidth float64
	BoxGap         float64

	// TitleHeight is the height of a box's title row.
	TitleHeight float64
	TitleSize   float64

	// LineHeight is the height of one patient data row.
	LineHeight float64
	// LabelOffset and ValueOffset position the two columns of a patient row,
	// relative to the box's left edge.
	LabelOffset float64
	ValueOffset float64

	BodySize         float64
	ReportLineHeight float64
	ParagraphGap     float64

	// SignatureReserve is the distance from the page bottom kept free of the
	// report box.
	SignatureReserve float64
	// ReportMinHeight is the minimum report box height.
	ReportMinHeight float64

	// SignatureBottom is the distance from the page bottom to the signature
	// line.
	SignatureBottom     float64
	SignatureLineWidth  float64
	SignatureLineStroke float64
	SignatureImageW     float64
	SignatureImageH     float64
	SignatureImageGap   float64
	SignatureTextSize   float64
	SignatureLineHeight float64
}

// A4 returns the default geometry for an A4 portrait page.
func A4() Geometry {
	return Geometry{
		PageWidth:  595.28,
		PageHeight: 841.89,

		MarginX:   30,
		MarginTop: 30,

		LetterheadHeight: 95,
		LetterheadGap:    12,

		BoxPadding:     10,
		BoxRadius:      6,
		BoxBorderWidth: 0.8,
		BoxGap:         12,

		TitleHeight: 24,
		TitleSize:   12,

		LineHeight:  15,
		LabelOffset: 10,
		ValueOffset: 125,

		BodySize:         10,
		ReportLineHeight: 14,
		ParagraphGap:     4,

		SignatureReserve: 175,
		ReportMinHeight:  160,

		SignatureBottom:     95,
		SignatureLineWidth:  190,
		SignatureLineStroke: 0.8,
		SignatureImageW:     150,
		SignatureImageH:     60,
		SignatureImageGap:   4,
		SignatureTextSize:   9.5,
		SignatureLineHeight: 13,
	}
}

func (g Geometry) contentWidth() float64 {
	return g.PageWidth - 2*g.MarginX
}
