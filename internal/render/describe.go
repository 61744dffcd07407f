package render

import (
	"github.com/MrWong99/cystoscribe/internal/document"
)

// The types below mirror the subset of pdfcpu's JSON page description used
// for reports.

type pageDesc struct {
	Paper string              `json:"paper"`
	Pages map[string]pageBody `json:"pages"`
}

type pageBody struct {
	Content content `json:"content"`
}

type content struct {
	Text  []textDesc  `json:"text,omitempty"`
	Image []imageDesc `json:"image,omitempty"`
	Box   []boxDesc   `json:"box,omitempty"`
}

type textDesc struct {
	Value string     `json:"value"`
	Pos   [2]float64 `json:"pos"`
	Font  fontDesc   `json:"font"`
}

type fontDesc struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

type imageDesc struct {
	Src    string     `json:"src"`
	Pos    [2]float64 `json:"pos"`
	Width  float64    `json:"width"`
	Height float64    `json:"height"`
}

type boxDesc struct {
	Pos       [2]float64  `json:"pos"`
	Width     float64     `json:"width"`
	Height    float64     `json:"height"`
	FillColor string      `json:"fillCol,omitempty"`
	Border    *borderDesc `json:"border,omitempty"`
}

type borderDesc struct {
	Width int     `json:"width"`
	Color string  `json:"col"`
	Style string  `json:"style"`
}

const (
	inkColor    = "#000000"
	borderColor = "#444444"
)

// describe converts plan into a pdfcpu page description. Directive
// coordinates are measured from the top of the page; pdfcpu measures from
// the bottom. Image directives without a staged file are skipped.
func describe(plan *document.Plan, paper string, images map[int]string) pageDesc {
	h := plan.PageHeight
	var c content

	for i, d := range plan.Directives {
		switch d.Kind {
		case document.KindText:
			c.Text = append(c.Text, textDesc{
				Value: d.Text,
				Pos:   [2]float64{d.X, h - d.Y},
				Font:  fontDesc{Name: d.Font, Size: fontSize(d.FontSize)},
			})
		case document.KindImage:
			src, ok := images[i]
			if !ok {
				continue
			}
			c.Image = append(c.Image, imageDesc{
				Src:    src,
				Pos:    [2]float64{d.X, h - d.Y - d.Height},
				Width:  d.Width,
				Height: d.Height,
			})
		case document.KindLine:
			c.Box = append(c.Box, boxDesc{
				Pos:       [2]float64{d.X, h - d.Y - d.Stroke/2},
				Width:     d.Width,
				Height:    d.Stroke,
				FillColor: inkColor,
			})
		case document.KindBox:
			style := "miter"
			if d.Radius > 0 {
				style = "round"
			}
			c.Box = append(c.Box, boxDesc{
				Pos:    [2]float64{d.X, h - d.Y - d.Height},
				Width:  d.Width,
				Height: d.Height,
				Border: &borderDesc{Width: strokeWidth(d.Stroke), Color: borderColor, Style: style},
			})
		}
	}

	return pageDesc{
		Paper: paper,
		Pages: map[string]pageBody{"1": {Content: c}},
	}
}
