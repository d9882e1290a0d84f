package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/malbeclabs/assetbot/pkg/llm"
	"github.com/malbeclabs/assetbot/pkg/schema"
)

// SynthesizeSQL asks the model for a single SELECT answering question and
// returns its raw output. The call runs at temperature 0.
func (p *Pipeline) SynthesizeSQL(ctx context.Context, question string, desc *schema.Descriptor) (string, error) {
	userPrompt := render(p.profile.Prompts.SQL, map[string]string{
		"TABLE":         desc.Table,
		"SCHEMA":        schemaBlock(desc, p.profile.QuoteRule),
		"EXAMPLE_QUERY": desc.ExampleQuery(p.profile.QuoteRule),
		"QUESTION":      question,
	})
	return p.complete(ctx, "synthesize_sql", p.profile.Prompts.SQLSystem, userPrompt,
		llm.WithTemperature(0), llm.WithMaxTokens(p.profile.SQLMaxTokens))
}

// schemaBlock renders one "name: TYPE" line per column, quoted per rule.
func schemaBlock(desc *schema.Descriptor, rule schema.QuoteRule) string {
	var sb strings.Builder
	for i, c := range desc.Columns {
		if i > 0 {
			sb.WriteByte('\n')
		}
		typ := c.Type
		if typ == "" {
			typ = "ANY"
		}
		fmt.Fprintf(&sb, "%s: %s", rule.Quote(c.Name), typ)
	}
	return sb.String()
}

// complete makes one model call bounded by the profile's LLM timeout.
func (p *Pipeline) complete(ctx context.Context, purpose, systemPrompt, userPrompt string, opts ...llm.CompleteOption) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.profile.LLMTimeout)
	defer cancel()

	start := p.clock.Now()
	out, err := p.cfg.LLM.Complete(ctx, systemPrompt, userPrompt, opts...)
	LLMCallDuration.WithLabelValues(purpose).Observe(p.clock.Since(start).Seconds())
	if err != nil {
		LLMCallsTotal.WithLabelValues(purpose, "error").Inc()
		return "", newError(KindModelCallFailed, purpose, err)
	}
	LLMCallsTotal.WithLabelValues(purpose, "success").Inc()
	return out, nil
}
