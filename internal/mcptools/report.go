package mcptools

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/cystoscribe/internal/report"
)

// section is the tool-facing form of a report section.
type section struct {
	// Label is the stable key ("urethra", "conclusion", or "paragraph").
	Label string `json:"label"`
	// Heading is the Spanish display label, empty for paragraphs.
	Heading string `json:"heading,omitempty"`
	Text    string `json:"text"`
}

func toSections(in []report.Section) []section {
	out := make([]section, len(in))
	for i, s := range in {
		out[i] = section{Label: s.Label.Key(), Heading: s.Label.String(), Text: s.Text}
	}
	return out
}

type parseArgs struct {
	Report string `json:"report"`
}

type parseResult struct {
	Sections []section `json:"sections"`
	// Missing lists labels of the expected layout absent from the report.
	Missing []string `json:"missing,omitempty"`
}

func parseTool() Tool {
	return Tool{
		Definition: &mcp.Tool{
			Name: "parse_report",
			Description: "Split cystoscopy report text into labelled sections " +
				"(Uretra, Esfínter, Próstata/cuello vesical, Vejiga, Mucosa vesical, Meatos ureterales, Conclusión). " +
				"Unlabelled lines are returned as paragraphs.",
			InputSchema: objectSchema(map[string]any{
				"report": stringProp("Report text, one finding per line"),
			}, "report"),
		},
		Handler: func(_ context.Context, raw json.RawMessage) (any, error) {
			var args parseArgs
			if err := decode(raw, &args); err != nil {
				return nil, err
			}
			sections := report.Parse(args.Report)
			return parseResult{Sections: toSections(sections), Missing: missing(sections)}, nil
		},
	}
}

// missing returns the keys of the labels shared by both layouts that do not
// occur in sections. The prostate is never reported.
func missing(sections []report.Section) []string {
	seen := make(map[report.Label]bool, len(sections))
	for _, s := range sections {
		seen[s.Label] = true
	}
	var out []string
	for _, l := range report.FemaleOrder {
		if !seen[l] {
			out = append(out, l.Key())
		}
	}
	return out
}

type formatArgs struct {
	Sections []report.Section `json:"sections"`
}

type formatResult struct {
	Text string `json:"text"`
	HTML string `json:"html"`
}

func formatTool() Tool {
	return Tool{
		Definition: &mcp.Tool{
			Name:        "format_report",
			Description: "Render report sections back to report text and a sanitised HTML preview.",
			InputSchema: objectSchema(map[string]any{
				"sections": map[string]any{
					"type":        "array",
					"description": "Sections in display order",
					"items": objectSchema(map[string]any{
						"label": stringProp(`Label key ("urethra") or Spanish heading ("Uretra"); anything else is a paragraph`),
						"text":  stringProp("Section content"),
					}, "text"),
				},
			}, "sections"),
		},
		Handler: func(_ context.Context, raw json.RawMessage) (any, error) {
			var args formatArgs
			if err := decode(raw, &args); err != nil {
				return nil, err
			}
			if len(args.Sections) == 0 {
				return nil, errors.New("sections must not be empty")
			}
			return formatResult{
				Text: report.Format(args.Sections),
				HTML: report.HTML(args.Sections),
			}, nil
		},
	}
}
