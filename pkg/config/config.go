package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/malbeclabs/assetbot/pkg/pipeline"
	"github.com/malbeclabs/assetbot/pkg/schema"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// LLM providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Embedders.
const (
	EmbedderHash   = "hash"
	EmbedderOllama = "ollama"
)

// Config is the assetbot profile.
type Config struct {
	Database  Database  `yaml:"database"`
	LLM       LLM       `yaml:"llm"`
	Pipeline  Pipeline  `yaml:"pipeline"`
	Retrieval Retrieval `yaml:"retrieval"`
	Server    Server    `yaml:"server"`
}

type Database struct {
	Path         string        `yaml:"path"`
	Table        string        `yaml:"table"`
	IDColumn     string        `yaml:"id_column"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
	BusyTimeout  time.Duration `yaml:"busy_timeout"`
}

type LLM struct {
	Provider  string        `yaml:"provider"`
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"-"`
	MaxTokens int64         `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

type Pipeline struct {
	QuoteRule            string        `yaml:"quote_rule"`
	MaxAttempts          int           `yaml:"max_attempts"`
	RetryAllErrors       bool          `yaml:"retry_all_errors"`
	RetryInitialInterval time.Duration `yaml:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `yaml:"retry_max_interval"`
	SchemaCacheTTL       time.Duration `yaml:"schema_cache_ttl"`
	Mode                 string        `yaml:"mode"`
	FallbackToRetrieval  bool          `yaml:"fallback_to_retrieval"`
	TopK                 int           `yaml:"top_k"`
	AnswerMaxTokens      int64         `yaml:"answer_max_tokens"`
	Prompts              Prompts       `yaml:"prompts"`
}

// Prompts overrides the built-in prompt templates. Empty fields keep the
// built-in text.
type Prompts struct {
	SQLSystem    string `yaml:"sql_system"`
	SQL          string `yaml:"sql"`
	Documents    string `yaml:"documents"`
	AnswerSystem string `yaml:"answer_system"`
	Answer       string `yaml:"answer"`
}

type Retrieval struct {
	Enabled     bool   `yaml:"enabled"`
	Embedder    string `yaml:"embedder"`
	OllamaURL   string `yaml:"ollama_url"`
	Model       string `yaml:"model"`
	Dimensions  int    `yaml:"dimensions"`
	BatchSize   int    `yaml:"batch_size"`
	Concurrency int    `yaml:"concurrency"`
}

type Server struct {
	ListenAddr     string   `yaml:"listen_addr"`
	MCPAddr        string   `yaml:"mcp_addr"`
	MetricsAddr    string   `yaml:"metrics_addr"`
	CORSOrigins    []string `yaml:"cors_origins"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes"`
}

// Default returns the built-in profile.
func Default() (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse defaults: %w", err)
	}
	return &cfg, nil
}

// Load reads the profile at path over the defaults. An empty path yields the
// defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes data into cfg, leaving fields absent from data untouched.
// Unknown keys are an error.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("ASSETBOT_DB_PATH"); ok && v != "" {
		c.Database.Path = v
	}
	if v, ok := lookup("ASSETBOT_LLM_PROVIDER"); ok && v != "" {
		c.LLM.Provider = v
	}
	if v, ok := lookup("ASSETBOT_LLM_MODEL"); ok && v != "" {
		c.LLM.Model = v
	}
	if v, ok := lookup("ASSETBOT_LLM_BASE_URL"); ok && v != "" {
		c.LLM.BaseURL = v
	}
	if c.LLM.APIKey != "" {
		return
	}
	switch c.LLM.Provider {
	case ProviderAnthropic:
		if v, ok := lookup("ANTHROPIC_API_KEY"); ok {
			c.LLM.APIKey = v
		}
	case ProviderOpenAI:
		for _, k := range []string{"GROQ_API_KEY", "OPENAI_API_KEY"} {
			if v, ok := lookup(k); ok && v != "" {
				c.LLM.APIKey = v
				break
			}
		}
	}
}

// Validate checks enumerations and ranges. It does not require an API key;
// commands that call the model check for one when building the client.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if c.Database.Table == "" {
		return errors.New("database.table is required")
	}
	if c.Database.IDColumn == "" {
		return errors.New("database.id_column is required")
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("database.max_open_conns must be at least 1, got %d", c.Database.MaxOpenConns)
	}
	switch c.LLM.Provider {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown llm.provider %q", c.LLM.Provider)
	}
	if _, err := schema.ParseQuoteRule(c.Pipeline.QuoteRule); err != nil {
		return fmt.Errorf("pipeline.quote_rule: %w", err)
	}
	mode, err := pipeline.ParseMode(c.Pipeline.Mode)
	if err != nil {
		return fmt.Errorf("pipeline.mode: %w", err)
	}
	if c.Pipeline.MaxAttempts < 1 {
		return fmt.Errorf("pipeline.max_attempts must be at least 1, got %d", c.Pipeline.MaxAttempts)
	}
	if c.Pipeline.SchemaCacheTTL < 0 {
		return errors.New("pipeline.schema_cache_ttl must not be negative")
	}
	if (mode == pipeline.ModeRetrieval || c.Pipeline.FallbackToRetrieval) && !c.Retrieval.Enabled {
		return errors.New("retrieval.enabled is required for retrieval mode or fallback")
	}
	switch c.Retrieval.Embedder {
	case EmbedderHash, EmbedderOllama:
	default:
		return fmt.Errorf("unknown retrieval.embedder %q", c.Retrieval.Embedder)
	}
	if c.Retrieval.Embedder == EmbedderOllama && c.Retrieval.Dimensions <= 0 {
		return errors.New("retrieval.dimensions is required for the ollama embedder")
	}
	return nil
}
