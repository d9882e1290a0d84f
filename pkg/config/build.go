package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/malbeclabs/assetbot/pkg/llm"
	"github.com/malbeclabs/assetbot/pkg/pipeline"
	"github.com/malbeclabs/assetbot/pkg/retrieval"
	"github.com/malbeclabs/assetbot/pkg/schema"
	"github.com/malbeclabs/assetbot/pkg/store"
)

var ErrMissingAPIKey = errors.New("llm api key is not set")

// StoreConfig returns the read-only pool settings.
func (c *Config) StoreConfig(log *slog.Logger) store.Config {
	return store.Config{
		Logger:       log,
		Path:         c.Database.Path,
		MaxOpenConns: c.Database.MaxOpenConns,
		QueryTimeout: c.Database.QueryTimeout,
		BusyTimeout:  c.Database.BusyTimeout,
	}
}

// WriterConfig returns the writer settings.
func (c *Config) WriterConfig(log *slog.Logger) store.WriterConfig {
	return store.WriterConfig{
		Logger:      log,
		Path:        c.Database.Path,
		BusyTimeout: c.Database.BusyTimeout,
	}
}

// NewLLMClient builds the client for the configured provider.
func (c *Config) NewLLMClient(log *slog.Logger) (llm.Client, error) {
	if c.LLM.APIKey == "" {
		return nil, fmt.Errorf("%w for provider %s", ErrMissingAPIKey, c.LLM.Provider)
	}
	switch c.LLM.Provider {
	case ProviderAnthropic:
		return llm.NewAnthropicClient(llm.AnthropicConfig{
			Logger:    log,
			APIKey:    c.LLM.APIKey,
			BaseURL:   c.LLM.BaseURL,
			Model:     c.LLM.Model,
			MaxTokens: c.LLM.MaxTokens,
		})
	case ProviderOpenAI:
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			Logger:    log,
			APIKey:    c.LLM.APIKey,
			BaseURL:   c.LLM.BaseURL,
			Model:     c.LLM.Model,
			MaxTokens: c.LLM.MaxTokens,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
}

// Profile returns the pipeline profile with prompt overrides merged over the
// built-in prompts.
func (c *Config) Profile() (pipeline.Profile, error) {
	rule, err := schema.ParseQuoteRule(c.Pipeline.QuoteRule)
	if err != nil {
		return pipeline.Profile{}, err
	}
	mode, err := pipeline.ParseMode(c.Pipeline.Mode)
	if err != nil {
		return pipeline.Profile{}, err
	}
	prompts, err := pipeline.LoadPrompts()
	if err != nil {
		return pipeline.Profile{}, err
	}
	o := c.Pipeline.Prompts
	prompts = prompts.Merge(pipeline.Prompts{
		SQLSystem:    o.SQLSystem,
		SQL:          o.SQL,
		Documents:    o.Documents,
		AnswerSystem: o.AnswerSystem,
		Answer:       o.Answer,
	})
	return pipeline.Profile{
		Table:                c.Database.Table,
		IDColumn:             c.Database.IDColumn,
		QuoteRule:            rule,
		Prompts:              prompts,
		MaxAttempts:          c.Pipeline.MaxAttempts,
		RetryAllErrors:       c.Pipeline.RetryAllErrors,
		RetryInitialInterval: c.Pipeline.RetryInitialInterval,
		RetryMaxInterval:     c.Pipeline.RetryMaxInterval,
		Mode:                 mode,
		FallbackToRetrieval:  c.Pipeline.FallbackToRetrieval,
		TopK:                 c.Pipeline.TopK,
		SQLMaxTokens:         c.LLM.MaxTokens,
		AnswerMaxTokens:      c.Pipeline.AnswerMaxTokens,
		LLMTimeout:           c.LLM.Timeout,
	}, nil
}

// NewEmbedder builds the configured embedder.
func (c *Config) NewEmbedder() (retrieval.Embedder, error) {
	switch c.Retrieval.Embedder {
	case EmbedderHash:
		return retrieval.NewHashEmbedder(c.Retrieval.Dimensions), nil
	case EmbedderOllama:
		return retrieval.NewOllamaEmbedder(retrieval.OllamaConfig{
			BaseURL:    c.Retrieval.OllamaURL,
			Model:      c.Retrieval.Model,
			Dimensions: c.Retrieval.Dimensions,
		})
	default:
		return nil, fmt.Errorf("unknown embedder %q", c.Retrieval.Embedder)
	}
}

// IndexConfig returns the retrieval index settings for embedder.
func (c *Config) IndexConfig(log *slog.Logger, embedder retrieval.Embedder) retrieval.Config {
	return retrieval.Config{
		Logger:      log,
		Embedder:    embedder,
		BatchSize:   c.Retrieval.BatchSize,
		Concurrency: c.Retrieval.Concurrency,
	}
}

// Describer returns an introspector over db, cached when a TTL is set.
func (c *Config) Describer(db schema.DB) schema.Describer {
	intro := schema.NewIntrospector(db)
	if c.Pipeline.SchemaCacheTTL <= 0 {
		return intro
	}
	return schema.NewCached(intro, c.Pipeline.SchemaCacheTTL)
}
