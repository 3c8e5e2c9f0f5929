package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, StrategyHeading, cfg.Chunking.Strategy)
	assert.Equal(t, ProviderOllama, cfg.Embeddings.Provider)
	assert.True(t, cfg.Search.Hybrid)
	assert.Equal(t, 60, cfg.Search.RRFK)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docindex.yaml")
	yaml := `
docs_path: /srv/docs
chunking:
  strategy: hybrid
  max_chars: 1500
  overlap: 100
embeddings:
  provider: static
  model: test-model
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/docs", cfg.DocsPath)
	assert.Equal(t, StrategyHybrid, cfg.Chunking.Strategy)
	assert.Equal(t, 1500, cfg.Chunking.MaxChars)
	assert.Equal(t, "static/test-model", cfg.ModelIdentity())

	// And: fields the file omits keep their defaults
	assert.Equal(t, ".docindex", cfg.DataDir)
	assert.Equal(t, 5, cfg.Search.TopK)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docindex.yaml")
	require.NoError(t, os.WriteFile(path, []byte("docs_path: /from/file\n"), 0o644))

	t.Setenv("DOCINDEX_DOCS_PATH", "/from/env")
	t.Setenv("DOCINDEX_EMBEDDING_PROVIDER", "static")
	t.Setenv("DOCINDEX_HYBRID_SEARCH", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/from/env", cfg.DocsPath)
	assert.Equal(t, ProviderStatic, cfg.Embeddings.Provider)
	assert.False(t, cfg.Search.Hybrid)
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad strategy", func(c *Config) { c.Chunking.Strategy = "sentence" }},
		{"bad provider", func(c *Config) { c.Embeddings.Provider = "cohere" }},
		{"zero max chars", func(c *Config) { c.Chunking.MaxChars = 0 }},
		{"overlap >= max chars", func(c *Config) { c.Chunking.Overlap = 2000 }},
		{"zero rrf k", func(c *Config) { c.Search.RRFK = 0 }},
		{"negative weight", func(c *Config) { c.Search.VectorWeight = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestClone_DoesNotShareMutations(t *testing.T) {
	cfg := Default()
	dup := cfg.Clone()
	dup.Embeddings.Model = "other-model"

	assert.Equal(t, "nomic-embed-text", cfg.Embeddings.Model)
	assert.NotEqual(t, cfg.ModelIdentity(), dup.ModelIdentity())
}

func TestString_MasksAPIKey(t *testing.T) {
	cfg := Default()
	cfg.Embeddings.OpenAIAPIKey = "sk-secret-value"

	rendered := cfg.String()
	assert.NotContains(t, rendered, "sk-secret-value")
	assert.Contains(t, rendered, "***set***")

	// And: masking never touches the original
	assert.Equal(t, "sk-secret-value", cfg.Embeddings.OpenAIAPIKey)
}

func TestSaveLoad_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "docindex.yaml")

	cfg := Default()
	cfg.Embeddings.Provider = ProviderStatic
	cfg.Embeddings.Model = "roundtrip"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "static/roundtrip", loaded.ModelIdentity())
	assert.Equal(t, cfg.Chunking, loaded.Chunking)
}
