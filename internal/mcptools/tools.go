// Package mcptools exposes the report workflow as Model Context Protocol
// tools, so an MCP client (an editor assistant, an agent) can parse, format,
// lay out and generate cystoscopy reports.
//
// Four tools are exported via [Tools]:
//   - "parse_report"    splits report text into labelled sections.
//   - "format_report"   renders sections back to report text and HTML.
//   - "compose_report"  lays out the PDF page and summarises the plan.
//   - "generate_report" turns a free dictation into a report.
//
// [NewServer] registers them on an MCP server; [Handler] serves it over the
// streamable HTTP transport.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/cystoscribe/internal/dictation"
	"github.com/MrWong99/cystoscribe/internal/document"
	"github.com/MrWong99/cystoscribe/internal/observe"
)

// Tool is a tool definition paired with its handler.
type Tool struct {
	// Definition carries the name, description and JSON Schema of the
	// arguments. InputSchema must describe an object.
	Definition *mcp.Tool

	// Handler receives the raw JSON arguments and returns a value that is
	// sent back JSON-encoded. A returned error becomes a tool error result.
	// Implementations must be safe for concurrent use.
	Handler func(ctx context.Context, args json.RawMessage) (any, error)
}

// Deps are the services the tools call into. Tools whose dependencies are
// nil are not exported.
type Deps struct {
	// Pipeline backs generate_report.
	Pipeline *dictation.Pipeline

	// Composer and Profiles back compose_report.
	Composer *document.Composer
	Profiles document.ProfileSource

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Tools returns the tools available with d.
func Tools(d Deps) []Tool {
	tools := []Tool{parseTool(), formatTool()}
	if d.Composer != nil && d.Profiles != nil {
		tools = append(tools, composeTool(d.Composer, d.Profiles))
	}
	if d.Pipeline != nil {
		tools = append(tools, generateTool(d.Pipeline))
	}
	return tools
}

// NewServer returns an MCP server with every tool of d registered.
func NewServer(d Deps, version string) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "cystoscribe", Version: version}, nil)
	m := d.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	for _, t := range Tools(d) {
		Register(srv, m, t)
	}
	return srv
}

// Handler serves srv over the streamable HTTP transport.
func Handler(srv *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil)
}

// Register adds t to srv. Every call is traced and counted; handler errors
// are returned to the client as tool errors, never as protocol errors.
func Register(srv *mcp.Server, m *observe.Metrics, t Tool) {
	name := t.Definition.Name
	srv.AddTool(t.Definition, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := observe.StartSpan(ctx, "mcp.tool",
			trace.WithAttributes(attribute.String("tool", name)))
		defer span.End()

		start := time.Now()
		out, err := t.Handler(ctx, req.Params.Arguments)
		var data []byte
		if err == nil {
			data, err = json.Marshal(out)
		}

		m.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("tool", name)))
		if err != nil {
			observe.FailSpan(span, err)
			m.RecordToolCall(ctx, name, "error")
			observe.Logger(ctx).Warn("mcp tool failed", "tool", name, "err", err)

			var res mcp.CallToolResult
			res.SetError(err)
			return &res, nil
		}
		m.RecordToolCall(ctx, name, "ok")
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

// decode unmarshals tool arguments into v. Absent arguments decode as {}.
func decode(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}
