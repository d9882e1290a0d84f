// Package pipeline answers natural-language questions about the asset table.
// Each question runs schema lookup, SQL synthesis, extraction, read-only
// execution and answer synthesis in sequence, with an optional retrieval path
// over row embeddings.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/assetbot/pkg/llm"
	"github.com/malbeclabs/assetbot/pkg/retrieval"
	"github.com/malbeclabs/assetbot/pkg/schema"
	"github.com/malbeclabs/assetbot/pkg/store"
)

var ErrEmptyQuestion = errors.New("question is empty")

// Mode selects how context for the answer is gathered.
type Mode string

const (
	ModeSQL       Mode = "sql"
	ModeRetrieval Mode = "retrieval"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeSQL, ModeRetrieval:
		return m, nil
	case "":
		return ModeSQL, nil
	default:
		return "", fmt.Errorf("unknown pipeline mode %q", s)
	}
}

// Executor runs a read-only statement and materializes the result.
type Executor interface {
	Execute(ctx context.Context, query string, args ...any) (*store.ResultSet, error)
}

// Retriever returns the row texts nearest to a question.
type Retriever interface {
	RetrieveSimilar(ctx context.Context, question string, topK int) ([]retrieval.Hit, error)
}

// Profile parameterizes a pipeline run.
type Profile struct {
	Table    string
	IDColumn string

	QuoteRule schema.QuoteRule
	Prompts   *Prompts

	MaxAttempts          int  // Whole-sequence attempts per question (default 3)
	RetryAllErrors       bool // Retry deterministic failures too
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	Mode                Mode
	FallbackToRetrieval bool // Answer from retrieval when the SQL path fails
	TopK                int

	SQLMaxTokens    int64
	AnswerMaxTokens int64
	LLMTimeout      time.Duration
}

func (p *Profile) setDefaults() error {
	if p.Table == "" {
		p.Table = "filled_asset_data"
	}
	if p.IDColumn == "" {
		p.IDColumn = "Equipment ID"
	}
	if p.QuoteRule == "" {
		p.QuoteRule = schema.QuoteSafe
	}
	if p.Prompts == nil {
		prompts, err := LoadPrompts()
		if err != nil {
			return err
		}
		p.Prompts = prompts
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.RetryInitialInterval <= 0 {
		p.RetryInitialInterval = time.Second
	}
	if p.RetryMaxInterval <= 0 {
		p.RetryMaxInterval = 10 * time.Second
	}
	if p.Mode == "" {
		p.Mode = ModeSQL
	}
	if p.TopK <= 0 {
		p.TopK = 3
	}
	if p.SQLMaxTokens <= 0 {
		p.SQLMaxTokens = 500
	}
	if p.AnswerMaxTokens <= 0 {
		p.AnswerMaxTokens = 1024
	}
	if p.LLMTimeout <= 0 {
		p.LLMTimeout = 60 * time.Second
	}
	return nil
}

type Config struct {
	Logger    *slog.Logger
	LLM       llm.Client
	Store     Executor
	Schema    schema.Describer
	Retriever Retriever
	Clock     clockwork.Clock
	Profile   Profile
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.LLM == nil {
		return errors.New("LLM client is required")
	}
	if err := cfg.Profile.setDefaults(); err != nil {
		return err
	}
	switch cfg.Profile.Mode {
	case ModeSQL:
		if cfg.Store == nil {
			return errors.New("store is required")
		}
		if cfg.Schema == nil {
			return errors.New("schema describer is required")
		}
		if cfg.Profile.FallbackToRetrieval && cfg.Retriever == nil {
			return errors.New("retriever is required for retrieval fallback")
		}
	case ModeRetrieval:
		if cfg.Retriever == nil {
			return errors.New("retriever is required in retrieval mode")
		}
	default:
		return fmt.Errorf("unknown pipeline mode %q", cfg.Profile.Mode)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Result is the outcome of answering one question.
type Result struct {
	Question  string
	Answer    string
	Mode      Mode
	SQL       string
	ResultSet *store.ResultSet
	Contexts  []string // Row texts used in retrieval mode
	Empty     bool     // No rows or hits; Answer is NoResultsAnswer
	FellBack  bool     // Answered by retrieval after the SQL path failed
	Attempts  int
	Duration  time.Duration
}

type Pipeline struct {
	log     *slog.Logger
	cfg     Config
	profile Profile
	clock   clockwork.Clock
}

func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate pipeline config: %w", err)
	}
	return &Pipeline{
		log:     cfg.Logger,
		cfg:     cfg,
		profile: cfg.Profile,
		clock:   cfg.Clock,
	}, nil
}

func (p *Pipeline) Profile() Profile {
	return p.profile
}

// Ask answers question. Failures are returned as *Error so callers can
// recover the kind; use FriendlyMessage for end-user display.
func (p *Pipeline) Ask(ctx context.Context, question string) (*Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	start := p.clock.Now()

	mode := p.profile.Mode
	var (
		res      *Result
		attempts int
		err      error
	)
	switch mode {
	case ModeRetrieval:
		res, attempts, err = p.withRetry(ctx, func(ctx context.Context) (*Result, error) {
			return p.answerFromRetrieval(ctx, question)
		})
	default:
		res, attempts, err = p.withRetry(ctx, func(ctx context.Context) (*Result, error) {
			return p.answerFromSQL(ctx, question)
		})
		if err != nil && p.profile.FallbackToRetrieval && KindOf(err) != KindCanceled && ctx.Err() == nil {
			p.log.Warn("pipeline: sql path failed, falling back to retrieval", "kind", KindOf(err), "error", err)
			mode = ModeRetrieval
			var more int
			res, more, err = p.withRetry(ctx, func(ctx context.Context) (*Result, error) {
				return p.answerFromRetrieval(ctx, question)
			})
			attempts += more
			if res != nil {
				res.FellBack = true
			}
		}
	}

	duration := p.clock.Since(start)
	RequestDuration.WithLabelValues(string(mode)).Observe(duration.Seconds())
	if err != nil {
		RequestsTotal.WithLabelValues(string(mode), string(KindOf(err))).Inc()
		p.log.Info("pipeline: question failed", "mode", mode, "attempts", attempts, "kind", KindOf(err), "error", err)
		return nil, err
	}

	outcome := "answered"
	if res.Empty {
		outcome = "empty"
	}
	RequestsTotal.WithLabelValues(string(mode), outcome).Inc()

	res.Question = question
	res.Attempts = attempts
	res.Duration = duration
	p.log.Info("pipeline: question answered", "mode", mode, "attempts", attempts, "empty", res.Empty, "duration", duration)
	return res, nil
}

func (p *Pipeline) answerFromSQL(ctx context.Context, question string) (*Result, error) {
	desc, err := p.describe(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := p.SynthesizeSQL(ctx, question, desc)
	if err != nil {
		return nil, err
	}

	sql, err := ExtractSQL(raw)
	if err != nil {
		p.log.Debug("pipeline: extraction failed", "raw", raw, "error", err)
		return nil, err
	}
	p.log.Debug("pipeline: generated sql", "sql", sql.Text)

	rs, err := p.Execute(ctx, sql)
	if err != nil {
		return nil, err
	}

	answer, err := p.SynthesizeAnswer(ctx, question, rs)
	if err != nil {
		return nil, err
	}
	return &Result{
		Answer:    answer,
		Mode:      ModeSQL,
		SQL:       sql.Text,
		ResultSet: rs,
		Empty:     rs.Empty(),
	}, nil
}

func (p *Pipeline) answerFromRetrieval(ctx context.Context, question string) (*Result, error) {
	hits, err := p.cfg.Retriever.RetrieveSimilar(ctx, question, p.profile.TopK)
	if err != nil {
		return nil, newError(KindRetrievalFailed, "retrieve_similar", err)
	}
	texts := make([]string, 0, len(hits))
	for _, h := range hits {
		texts = append(texts, h.Text)
	}

	answer, err := p.SynthesizeFromTexts(ctx, question, texts)
	if err != nil {
		return nil, err
	}
	return &Result{
		Answer:   answer,
		Mode:     ModeRetrieval,
		Contexts: texts,
		Empty:    len(texts) == 0,
	}, nil
}

// Describe returns the schema of the configured table.
func (p *Pipeline) Describe(ctx context.Context) (*schema.Descriptor, error) {
	return p.describe(ctx)
}

func (p *Pipeline) describe(ctx context.Context) (*schema.Descriptor, error) {
	if p.cfg.Schema == nil {
		return nil, newError(KindSchemaNotFound, "describe_table", errors.New("no schema describer configured"))
	}
	desc, err := p.cfg.Schema.Describe(ctx, p.profile.Table)
	if errors.Is(err, schema.ErrSchemaNotFound) {
		return nil, newError(KindSchemaNotFound, "describe_table", err)
	}
	if err != nil {
		return nil, newError(KindQueryExecution, "describe_table", err)
	}
	return desc, nil
}
