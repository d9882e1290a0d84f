package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/malbeclabs/assetbot/pkg/llm"
	"github.com/malbeclabs/assetbot/pkg/store"
)

// NoResultsAnswer is returned for an empty result without calling the model.
const NoResultsAnswer = "No results found."

// SynthesizeAnswer phrases an answer to question from rs. Values are
// transliterated to ASCII before they reach the prompt.
func (p *Pipeline) SynthesizeAnswer(ctx context.Context, question string, rs *store.ResultSet) (string, error) {
	if rs.Empty() {
		return NoResultsAnswer, nil
	}
	records, err := rs.Records(sanitizeValue)
	if err != nil {
		return "", &Error{Kind: KindQueryExecution, Op: "synthesize_answer", SQL: rs.SQL, Err: err}
	}
	return p.answer(ctx, question, records)
}

// SynthesizeFromTexts phrases an answer from retrieved row texts.
func (p *Pipeline) SynthesizeFromTexts(ctx context.Context, question string, texts []string) (string, error) {
	if len(texts) == 0 {
		return NoResultsAnswer, nil
	}
	lines := make([]string, len(texts))
	for i, t := range texts {
		lines[i] = ToASCII(t)
	}
	return p.answer(ctx, question, strings.Join(lines, "\n"))
}

func (p *Pipeline) answer(ctx context.Context, question, data string) (string, error) {
	userPrompt := render(p.profile.Prompts.Answer, map[string]string{
		"QUESTION": question,
		"DATA":     data,
	})
	out, err := p.complete(ctx, "synthesize_answer", p.profile.Prompts.AnswerSystem, userPrompt,
		llm.WithMaxTokens(p.profile.AnswerMaxTokens))
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", newError(KindModelCallFailed, "synthesize_answer", errors.New("empty answer"))
	}
	return out, nil
}
