package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "heuristic", cfg.Tokenizer.Type)
	assert.Equal(t, "hash", cfg.Embedder.Type)
	assert.Equal(t, "memory", cfg.VectorStore.Type)
	assert.Equal(t, 256, cfg.Chunker.MaxTokens)
	assert.Equal(t, 3, cfg.Router.MaxAttempts)
	assert.Equal(t, "open", cfg.Screener.FailMode)
	assert.InDelta(t, 0.75, cfg.Screener.GroundingThreshold, 1e-9)
}

func TestLoad_AppliesDefaultsToPartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
embedder:
  type: openai
  openai:
    api_key_env: MY_KEY
vector_store:
  type: qdrant
  qdrant:
    collection: docs
router:
  model: gpt-4o-mini
audit:
  type: sqlite
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Embedder.OpenAI.BaseURL)
	assert.Equal(t, "MY_KEY", cfg.Embedder.OpenAI.APIKeyEnv)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, 32, cfg.Embedder.OpenAI.BatchSize)
	assert.Equal(t, "http://localhost:6333", cfg.VectorStore.Qdrant.URL)
	assert.Equal(t, "docs", cfg.VectorStore.Qdrant.Collection)
	assert.Equal(t, "gpt-4o-mini", cfg.Router.Model)
	assert.Equal(t, 8192, cfg.Router.DefaultCeiling)
	assert.Equal(t, "ragpipe_audit.db", cfg.Audit.Path)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Router.Model = "custom-model"
	cfg.Router.ModelCeilings = map[string]int{"custom-model": 4000}
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "custom-model", loaded.Router.Model)
	assert.Equal(t, 4000, loaded.Router.ModelCeilings["custom-model"])
	assert.Equal(t, cfg.Chunker.MaxTokens, loaded.Chunker.MaxTokens)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}
