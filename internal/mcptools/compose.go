package mcptools

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/cystoscribe/internal/document"
)

type composeArgs struct {
	Patient document.Patient `json:"patient"`
	Report  string           `json:"report"`
}

type composeResult struct {
	Filename     string   `json:"filename"`
	PatientRows  int      `json:"patientRows"`
	Truncated    bool     `json:"truncated"`
	DroppedLines int      `json:"droppedLines"`
	Lines        []string `json:"lines"`
}

func composeTool(c *document.Composer, src document.ProfileSource) Tool {
	return Tool{
		Definition: &mcp.Tool{
			Name: "compose_report",
			Description: "Lay out the single-page PDF for a report with the configured physician profile " +
				"and summarise the result: download file name, text lines and whether lines were dropped " +
				"because the report does not fit on the page.",
			InputSchema: objectSchema(map[string]any{
				"patient": objectSchema(map[string]any{
					"name":               stringProp("Patient full name"),
					"dni":                stringProp("National ID"),
					"insurer":            stringProp("Health insurance"),
					"referringPhysician": stringProp("Referring physician"),
					"studyDate":          stringProp("Study date, YYYY-MM-DD"),
				}, "name"),
				"report": stringProp("Report text"),
			}, "patient", "report"),
		},
		Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var args composeArgs
			if err := decode(raw, &args); err != nil {
				return nil, err
			}
			plan, err := c.ComposeText(ctx, src, args.Patient, args.Report)
			if err != nil {
				return nil, err
			}
			return composeResult{
				Filename:     plan.Filename,
				PatientRows:  plan.PatientRows,
				Truncated:    plan.Truncated,
				DroppedLines: plan.DroppedLines,
				Lines:        plan.Texts(),
			}, nil
		},
	}
}
