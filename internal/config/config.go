// Package config loads the application configuration from YAML, with
// sensible defaults for anything unset.
package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// TokenizerConfig selects the token counting heuristic.
type TokenizerConfig struct {
	Type string `yaml:"type"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Strategy      string `yaml:"strategy"`
	MaxTokens     int    `yaml:"max_tokens"`
	OverlapTokens int    `yaml:"overlap_tokens"`
	MinTokens     int    `yaml:"min_tokens"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
}

// EmbedderConfig selects and configures the embedder implementation.
type EmbedderConfig struct {
	Type      string                `yaml:"type"`
	Dimension int                   `yaml:"dimension"`
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// RetrieverConfig configures retrieval.
type RetrieverConfig struct {
	TopK int `yaml:"top_k"`
}

// AssemblerConfig bounds the assembled prompt.
type AssemblerConfig struct {
	MaxTokens  int    `yaml:"max_tokens"`
	MaxHistory int    `yaml:"max_history"`
	Preamble   string `yaml:"preamble"`
}

// ProviderConfig configures one chat-completion backend. Providers are tried
// in listing order.
type ProviderConfig struct {
	Type        string `yaml:"type"`
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// RouterConfig configures completion routing and retries.
type RouterConfig struct {
	Providers      []ProviderConfig `yaml:"providers"`
	Model          string           `yaml:"model"`
	MaxAttempts    int              `yaml:"max_attempts"`
	BaseDelayMs    int              `yaml:"base_delay_ms"`
	TimeoutSecs    int              `yaml:"timeout_secs"`
	DefaultCeiling int              `yaml:"default_ceiling"`
	ModelCeilings  map[string]int   `yaml:"model_ceilings"`
	RatePerSec     float64          `yaml:"rate_per_sec"`
}

// ScreenerConfig configures output screening.
type ScreenerConfig struct {
	GroundingThreshold float64 `yaml:"grounding_threshold"`
	FailMode           string  `yaml:"fail_mode"`
	ModerationURL      string  `yaml:"moderation_url"`
}

// AuditConfig selects the audit log backend.
type AuditConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Tokenizer   TokenizerConfig   `yaml:"tokenizer"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retriever   RetrieverConfig   `yaml:"retriever"`
	Assembler   AssemblerConfig   `yaml:"assembler"`
	Router      RouterConfig      `yaml:"router"`
	Screener    ScreenerConfig    `yaml:"screener"`
	Audit       AuditConfig       `yaml:"audit"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/ragpipe/config.yaml.
// If neither exists, it writes defaults to ~/.config/ragpipe/config.yaml and
// returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ragpipe", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Tokenizer:   TokenizerConfig{Type: "heuristic"},
		Chunker:     ChunkerConfig{MaxTokens: 256, OverlapTokens: 32, MinTokens: 8},
		Embedder:    EmbedderConfig{Type: "hash", Dimension: 256},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Retriever:   RetrieverConfig{TopK: 5},
		Assembler:   AssemblerConfig{MaxTokens: 4096, MaxHistory: 6},
		Router: RouterConfig{
			Providers:      []ProviderConfig{{Type: "ollama"}},
			Model:          "llama3.1",
			MaxAttempts:    3,
			BaseDelayMs:    500,
			TimeoutSecs:    60,
			DefaultCeiling: 8192,
		},
		Screener: ScreenerConfig{GroundingThreshold: 0.75, FailMode: "open"},
		Audit:    AuditConfig{Type: "memory"},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Tokenizer.Type == "" {
		cfg.Tokenizer.Type = "heuristic"
	}
	if cfg.Chunker.MaxTokens == 0 {
		cfg.Chunker.MaxTokens = 256
	}
	if cfg.Chunker.OverlapTokens == 0 {
		cfg.Chunker.OverlapTokens = cfg.Chunker.MaxTokens / 8
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hash"
	}
	if cfg.Embedder.Type == "hash" && cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 256
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 32
		}
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.VectorStore.Type == "qdrant" && cfg.VectorStore.Qdrant != nil {
		if cfg.VectorStore.Qdrant.URL == "" {
			cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.VectorStore.Qdrant.Collection == "" {
			cfg.VectorStore.Qdrant.Collection = "ragpipe"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 15
		}
	}
	if cfg.Retriever.TopK == 0 {
		cfg.Retriever.TopK = 5
	}
	if cfg.Assembler.MaxTokens == 0 {
		cfg.Assembler.MaxTokens = 4096
	}
	if cfg.Assembler.MaxHistory == 0 {
		cfg.Assembler.MaxHistory = 6
	}
	if len(cfg.Router.Providers) == 0 {
		cfg.Router.Providers = []ProviderConfig{{Type: "ollama"}}
	}
	if cfg.Router.Model == "" {
		cfg.Router.Model = "llama3.1"
	}
	if cfg.Router.MaxAttempts == 0 {
		cfg.Router.MaxAttempts = 3
	}
	if cfg.Router.BaseDelayMs == 0 {
		cfg.Router.BaseDelayMs = 500
	}
	if cfg.Router.TimeoutSecs == 0 {
		cfg.Router.TimeoutSecs = 60
	}
	if cfg.Router.DefaultCeiling == 0 {
		cfg.Router.DefaultCeiling = 8192
	}
	if cfg.Screener.GroundingThreshold == 0 {
		cfg.Screener.GroundingThreshold = 0.75
	}
	if cfg.Screener.FailMode == "" {
		cfg.Screener.FailMode = "open"
	}
	if cfg.Audit.Type == "" {
		cfg.Audit.Type = "memory"
	}
	if cfg.Audit.Type == "sqlite" && cfg.Audit.Path == "" {
		cfg.Audit.Path = "ragpipe_audit.db"
	}
}
