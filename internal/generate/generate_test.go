package generate_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/cystoscribe/internal/generate"
	"github.com/MrWong99/cystoscribe/pkg/provider/llm"
	"github.com/MrWong99/cystoscribe/pkg/provider/llm/mock"
)

func TestGenerate_SendsPromptAndDictation(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "  Uretra: normal\nConclusión: sin hallazgos.  "},
	}
	g := generate.New(p, generate.WithTemperature(0.2), generate.WithMaxTokens(600))

	got, err := g.Generate(context.Background(), generate.SexFemale, "  uretra normal  ")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Uretra: normal\nConclusión: sin hallazgos." {
		t.Errorf("Generate = %q", got)
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("Complete called %d times, want 1", len(calls))
	}
	req := calls[0].Req
	if req.SystemPrompt != generate.SystemPrompt() {
		t.Error("system prompt not sent")
	}
	if req.Temperature != 0.2 || req.MaxTokens != 600 {
		t.Errorf("Temperature=%v MaxTokens=%d", req.Temperature, req.MaxTokens)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != llm.RoleUser {
		t.Fatalf("Messages = %+v, want one user message", req.Messages)
	}
	want := "Sexo del paciente: mujer.\nDictado libre del informe (texto sin procesar):\nuretra normal"
	if req.Messages[0].Content != want {
		t.Errorf("user message = %q, want %q", req.Messages[0].Content, want)
	}
}

func TestGenerate_DefaultsToMale(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Conclusión: normal."}}
	g := generate.New(p)
	if _, err := g.Generate(context.Background(), "", "dictado"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	msg := p.Calls()[0].Req.Messages[0].Content
	if !strings.HasPrefix(msg, "Sexo del paciente: varon.") {
		t.Errorf("user message = %q, want varon", msg)
	}
}

func TestGenerate_EmptyDictation(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{}
	g := generate.New(p)
	_, err := g.Generate(context.Background(), generate.SexMale, " \n\t ")
	if !errors.Is(err, generate.ErrEmptyDictation) {
		t.Fatalf("err = %v, want ErrEmptyDictation", err)
	}
	if n := len(p.Calls()); n != 0 {
		t.Errorf("Complete called %d times, want 0", n)
	}
}

func TestGenerate_EmptyReply(t *testing.T) {
	t.Parallel()

	for _, content := range []string{"", "   ", "```\n```"} {
		p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: content}}
		_, err := generate.New(p).Generate(context.Background(), generate.SexMale, "dictado")
		if !errors.Is(err, llm.ErrNoContent) {
			t.Errorf("content %q: err = %v, want ErrNoContent", content, err)
		}
	}
}

func TestGenerate_ProviderErrorNotRetried(t *testing.T) {
	t.Parallel()

	upstream := &llm.StatusError{Provider: "worker", StatusCode: 502, Body: "bad gateway"}
	p := &mock.Provider{CompleteErr: upstream}
	_, err := generate.New(p).Generate(context.Background(), generate.SexMale, "dictado")

	var se *llm.StatusError
	if !errors.As(err, &se) || se.StatusCode != 502 {
		t.Fatalf("err = %v, want StatusError 502", err)
	}
	if n := len(p.Calls()); n != 1 {
		t.Errorf("Complete called %d times, want 1", n)
	}
}

func TestParseSex(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    generate.Sex
		wantErr bool
	}{
		{"", generate.SexMale, false},
		{"varon", generate.SexMale, false},
		{"Varón", generate.SexMale, false},
		{"mujer", generate.SexFemale, false},
		{" MUJER ", generate.SexFemale, false},
		{"otro", "", true},
	}
	for _, tt := range tests {
		got, err := generate.ParseSex(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSex(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSex(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSystemPrompt_ListsBothLayouts(t *testing.T) {
	t.Parallel()

	p := generate.SystemPrompt()
	for _, s := range []string{"paciente varón", "paciente mujer", "Próstata/cuello vesical", "Conclusión:"} {
		if !strings.Contains(p, s) {
			t.Errorf("system prompt lacks %q", s)
		}
	}
}

func TestStripMarkdown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain lines kept",
			in:   "Uretra: normal\nEsfínter: competente",
			want: "Uretra: normal\nEsfínter: competente",
		},
		{
			name: "bold labels",
			in:   "**Uretra:** normal\n**Conclusión:** sin hallazgos.",
			want: "Uretra: normal\nConclusión: sin hallazgos.",
		},
		{
			name: "heading and blank lines",
			in:   "## Informe\n\nUretra: normal\n\n\nConclusión: normal.",
			want: "Informe\nUretra: normal\nConclusión: normal.",
		},
		{
			name: "bullet list",
			in:   "- Uretra: normal\n- Vejiga (capacidad y paredes): conservada",
			want: "Uretra: normal\nVejiga (capacidad y paredes): conservada",
		},
		{
			name: "fenced block",
			in:   "```\nUretra: normal\nConclusión: normal.\n```",
			want: "Uretra: normal\nConclusión: normal.",
		},
		{
			name: "escaped punctuation",
			in:   "Uretra: \\*normal\\*\nConclusión: lesión \\#2 \\_sin\\_ cambios",
			want: "Uretra: *normal*\nConclusión: lesión #2 _sin_ cambios",
		},
		{
			name: "empty",
			in:   "  \n ",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := generate.StripMarkdown(tt.in); got != tt.want {
				t.Errorf("StripMarkdown(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
