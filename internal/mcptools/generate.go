package mcptools

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/cystoscribe/internal/dictation"
	"github.com/MrWong99/cystoscribe/internal/generate"
)

type generateArgs struct {
	Dictation string `json:"dictation"`
	Sex       string `json:"sex"`
}

type generateResult struct {
	Report    string    `json:"report"`
	Dictation string    `json:"dictation"`
	Sections  []section `json:"sections"`
}

// generateTool runs a text dictation through the pipeline. It shares the
// dictation machine with the browser, so it fails while a capture is active.
func generateTool(p *dictation.Pipeline) Tool {
	return Tool{
		Definition: &mcp.Tool{
			Name: "generate_report",
			Description: "Turn a free-form cystoscopy dictation into a structured report in the " +
				"layout for the patient's sex. Fails if another dictation is in progress.",
			InputSchema: objectSchema(map[string]any{
				"dictation": stringProp("Free dictation text"),
				"sex": map[string]any{
					"type":        "string",
					"enum":        []string{string(generate.SexMale), string(generate.SexFemale)},
					"description": "Patient sex; defaults to varon",
				},
			}, "dictation"),
		},
		Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var args generateArgs
			if err := decode(raw, &args); err != nil {
				return nil, err
			}
			sex, err := generate.ParseSex(args.Sex)
			if err != nil {
				return nil, err
			}
			res, err := p.Run(ctx, dictation.Request{Text: args.Dictation, Sex: sex})
			if err != nil {
				return nil, err
			}
			return generateResult{
				Report:    res.Report,
				Dictation: res.Dictation,
				Sections:  toSections(res.Sections),
			}, nil
		},
	}
}
