package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/malbeclabs/assetbot/internal/logger"
	"github.com/malbeclabs/assetbot/pkg/llm"
	"github.com/malbeclabs/assetbot/pkg/pipeline"
	"github.com/malbeclabs/assetbot/pkg/retrieval"
	"github.com/malbeclabs/assetbot/pkg/schema"
	"github.com/stretchr/testify/require"
)

func envFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestConfig_Default(t *testing.T) {
	t.Parallel()

	cfg, err := Default()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, "filled_asset_data", cfg.Database.Table)
	require.Equal(t, "Equipment ID", cfg.Database.IDColumn)
	require.Equal(t, 30*time.Second, cfg.Database.QueryTimeout)
	require.Equal(t, ProviderAnthropic, cfg.LLM.Provider)
	require.Equal(t, 3, cfg.Pipeline.MaxAttempts)
	require.Equal(t, "safe", cfg.Pipeline.QuoteRule)
	require.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
}

func TestConfig_Load(t *testing.T) {
	t.Parallel()

	t.Run("file overrides defaults", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "assetbot.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: /data/assets.db
pipeline:
  quote_rule: spaces
  retry_all_errors: true
  schema_cache_ttl: 5m
  prompts:
    answer_system: You answer asset questions.
`), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		require.Equal(t, "/data/assets.db", cfg.Database.Path)
		require.Equal(t, "filled_asset_data", cfg.Database.Table)
		require.Equal(t, "spaces", cfg.Pipeline.QuoteRule)
		require.True(t, cfg.Pipeline.RetryAllErrors)
		require.Equal(t, 5*time.Minute, cfg.Pipeline.SchemaCacheTTL)
		require.Equal(t, 3, cfg.Pipeline.MaxAttempts)
	})

	t.Run("unknown key", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "assetbot.yaml")
		require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  retries: 5\n"), 0o600))
		_, err := Load(path)
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})
}

func TestConfig_ApplyEnv(t *testing.T) {
	t.Parallel()

	t.Run("anthropic", func(t *testing.T) {
		t.Parallel()

		cfg, err := Default()
		require.NoError(t, err)
		cfg.ApplyEnv(envFrom(map[string]string{
			"ASSETBOT_DB_PATH":   "/tmp/a.db",
			"ASSETBOT_LLM_MODEL": "claude-haiku-4-5",
			"ANTHROPIC_API_KEY":  "sk-ant",
			"GROQ_API_KEY":       "gsk",
		}))
		require.Equal(t, "/tmp/a.db", cfg.Database.Path)
		require.Equal(t, "claude-haiku-4-5", cfg.LLM.Model)
		require.Equal(t, "sk-ant", cfg.LLM.APIKey)
	})

	t.Run("openai compatible prefers groq", func(t *testing.T) {
		t.Parallel()

		cfg, err := Default()
		require.NoError(t, err)
		cfg.ApplyEnv(envFrom(map[string]string{
			"ASSETBOT_LLM_PROVIDER": "openai",
			"GROQ_API_KEY":          "gsk",
			"OPENAI_API_KEY":        "sk",
		}))
		require.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
		require.Equal(t, "gsk", cfg.LLM.APIKey)
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no path", func(c *Config) { c.Database.Path = "" }},
		{"no table", func(c *Config) { c.Database.Table = "" }},
		{"zero pool", func(c *Config) { c.Database.MaxOpenConns = 0 }},
		{"bad provider", func(c *Config) { c.LLM.Provider = "bard" }},
		{"bad quote rule", func(c *Config) { c.Pipeline.QuoteRule = "sometimes" }},
		{"bad mode", func(c *Config) { c.Pipeline.Mode = "vibes" }},
		{"zero attempts", func(c *Config) { c.Pipeline.MaxAttempts = 0 }},
		{"retrieval mode without index", func(c *Config) { c.Pipeline.Mode = "retrieval" }},
		{"fallback without index", func(c *Config) { c.Pipeline.FallbackToRetrieval = true }},
		{"bad embedder", func(c *Config) { c.Retrieval.Embedder = "word2vec" }},
		{"ollama without dimensions", func(c *Config) {
			c.Retrieval.Embedder = EmbedderOllama
			c.Retrieval.Dimensions = 0
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Default()
			require.NoError(t, err)
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_Profile(t *testing.T) {
	t.Parallel()

	cfg, err := Default()
	require.NoError(t, err)
	cfg.Pipeline.QuoteRule = "always"
	cfg.Pipeline.Mode = "retrieval"
	cfg.Pipeline.Prompts.AnswerSystem = "Answer tersely."

	p, err := cfg.Profile()
	require.NoError(t, err)
	require.Equal(t, schema.QuoteAlways, p.QuoteRule)
	require.Equal(t, pipeline.ModeRetrieval, p.Mode)
	require.Equal(t, "Answer tersely.", p.Prompts.AnswerSystem)
	require.Contains(t, p.Prompts.SQL, "{{QUESTION}}")
	require.Equal(t, 3, p.MaxAttempts)
	require.Equal(t, int64(500), p.SQLMaxTokens)
	require.Equal(t, 60*time.Second, p.LLMTimeout)
}

func TestConfig_NewLLMClient(t *testing.T) {
	t.Parallel()

	cfg, err := Default()
	require.NoError(t, err)

	_, err = cfg.NewLLMClient(logger.Discard())
	require.ErrorIs(t, err, ErrMissingAPIKey)

	cfg.LLM.APIKey = "sk-ant"
	c, err := cfg.NewLLMClient(logger.Discard())
	require.NoError(t, err)
	require.IsType(t, &llm.AnthropicClient{}, c)

	cfg.LLM.Provider = ProviderOpenAI
	c, err = cfg.NewLLMClient(logger.Discard())
	require.NoError(t, err)
	require.IsType(t, &llm.OpenAIClient{}, c)
}

func TestConfig_NewEmbedder(t *testing.T) {
	t.Parallel()

	cfg, err := Default()
	require.NoError(t, err)
	e, err := cfg.NewEmbedder()
	require.NoError(t, err)
	require.IsType(t, &retrieval.HashEmbedder{}, e)
	require.Equal(t, 384, e.Dimensions())

	cfg.Retrieval.Embedder = EmbedderOllama
	cfg.Retrieval.Dimensions = 768
	e, err = cfg.NewEmbedder()
	require.NoError(t, err)
	require.Equal(t, 768, e.Dimensions())
}

func TestConfig_Describer(t *testing.T) {
	t.Parallel()

	cfg, err := Default()
	require.NoError(t, err)
	require.IsType(t, &schema.Introspector{}, cfg.Describer(nil))

	cfg.Pipeline.SchemaCacheTTL = time.Minute
	d := cfg.Describer(nil)
	require.IsType(t, &schema.Cached{}, d)
}
