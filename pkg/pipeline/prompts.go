package pipeline

import (
	"fmt"
	"strings"

	"github.com/malbeclabs/assetbot/pkg/pipeline/prompts"
)

// Prompts holds the prompt templates. Placeholders use the {{NAME}} form.
type Prompts struct {
	SQLSystem    string // System prompt for SQL synthesis
	SQL          string // User prompt for SQL synthesis
	Documents    string // User prompt for document SQL synthesis
	AnswerSystem string // System prompt for answer synthesis
	Answer       string // User prompt for answer synthesis
}

// LoadPrompts loads all prompts from the embedded filesystem.
func LoadPrompts() (*Prompts, error) {
	p := &Prompts{}

	var err error
	if p.SQLSystem, err = loadPrompt("SQL_SYSTEM.md"); err != nil {
		return nil, fmt.Errorf("failed to load SQL_SYSTEM: %w", err)
	}
	if p.SQL, err = loadPrompt("SQL.md"); err != nil {
		return nil, fmt.Errorf("failed to load SQL: %w", err)
	}
	if p.Documents, err = loadPrompt("DOCUMENTS.md"); err != nil {
		return nil, fmt.Errorf("failed to load DOCUMENTS: %w", err)
	}
	if p.AnswerSystem, err = loadPrompt("ANSWER_SYSTEM.md"); err != nil {
		return nil, fmt.Errorf("failed to load ANSWER_SYSTEM: %w", err)
	}
	if p.Answer, err = loadPrompt("ANSWER.md"); err != nil {
		return nil, fmt.Errorf("failed to load ANSWER: %w", err)
	}
	return p, nil
}

// Merge returns a copy of p with every non-empty field of o taking precedence.
func (p *Prompts) Merge(o Prompts) *Prompts {
	out := *p
	if o.SQLSystem != "" {
		out.SQLSystem = o.SQLSystem
	}
	if o.SQL != "" {
		out.SQL = o.SQL
	}
	if o.Documents != "" {
		out.Documents = o.Documents
	}
	if o.AnswerSystem != "" {
		out.AnswerSystem = o.AnswerSystem
	}
	if o.Answer != "" {
		out.Answer = o.Answer
	}
	return &out
}

func loadPrompt(path string) (string, error) {
	data, err := prompts.PromptsFS.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// render substitutes {{KEY}} placeholders in a single pass, so values that
// themselves contain placeholders are left untouched.
func render(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
