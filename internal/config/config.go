// Package config defines the docindex configuration.
//
// Configuration is resolved in three layers: built-in defaults, an
// optional YAML file, and DOCINDEX_* environment variables (highest
// priority). The resulting Config is treated as immutable: components
// receive a pointer and never mutate it. A model swap builds a new
// Config via Clone and rebinds it atomically, so concurrent readers
// never observe a half-updated configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Chunking strategies.
const (
	StrategyHeading = "heading"
	StrategyFixed   = "fixed"
	StrategyHybrid  = "hybrid"
)

// Embedding providers.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderStatic = "static"
)

// Config is the complete docindex configuration.
type Config struct {
	// DocsPath is the root of the document tree to index.
	DocsPath string `yaml:"docs_path"`

	// DataDir holds all persistent index state (vector collections,
	// keyword index, chunk catalog, hash caches).
	DataDir string `yaml:"data_dir"`

	Chunking   ChunkingConfig   `yaml:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Search     SearchConfig     `yaml:"search"`
	Watcher    WatcherConfig    `yaml:"watcher"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ChunkingConfig configures how documents are split into chunks.
type ChunkingConfig struct {
	// Strategy is one of "heading", "fixed", "hybrid".
	Strategy string `yaml:"strategy"`
	// MaxChars is the maximum chunk size for fixed/hybrid strategies.
	MaxChars int `yaml:"max_chars"`
	// Overlap is the character overlap between fixed-size windows.
	Overlap int `yaml:"overlap"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is one of "ollama", "openai", "static".
	Provider string `yaml:"provider"`
	// Model is the embedding model name for the chosen provider.
	Model string `yaml:"model"`
	// Endpoint is the Ollama host (default http://localhost:11434).
	Endpoint string `yaml:"endpoint"`
	// OpenAIAPIKey authenticates against the OpenAI API.
	OpenAIAPIKey string `yaml:"openai_api_key"`
	// Dimensions overrides auto-detected embedding dimensions (0 = auto).
	Dimensions int `yaml:"dimensions"`
	// CacheSize is the query-embedding LRU size (0 = default).
	CacheSize int `yaml:"cache_size"`
}

// SearchConfig configures hybrid search and fusion.
type SearchConfig struct {
	// Hybrid enables the keyword leg; vector-only when false.
	Hybrid bool `yaml:"hybrid"`
	// TopK is the default number of results per query.
	TopK int `yaml:"top_k"`
	// RRFK is the reciprocal rank fusion damping constant.
	RRFK int `yaml:"rrf_k"`
	// VectorWeight is the RRF weight of the vector result list.
	VectorWeight float64 `yaml:"vector_weight"`
	// KeywordWeight is the RRF weight of the keyword result list.
	KeywordWeight float64 `yaml:"keyword_weight"`
	// MinRelevance drops hits scoring below it (0 disables).
	MinRelevance float64 `yaml:"min_relevance"`

	Reranker RerankerConfig `yaml:"reranker"`
}

// RerankerConfig configures the optional cross-encoder rerank pass.
type RerankerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Model    string `yaml:"model"`
	Endpoint string `yaml:"endpoint"`
}

// WatcherConfig configures live reindexing on file changes.
type WatcherConfig struct {
	Enabled    bool `yaml:"enabled"`
	DebounceMS int  `yaml:"debounce_ms"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		DocsPath: "docs",
		DataDir:  ".docindex",
		Chunking: ChunkingConfig{
			Strategy: StrategyHeading,
			MaxChars: 2000,
			Overlap:  200,
		},
		Embeddings: EmbeddingsConfig{
			Provider: ProviderOllama,
			Model:    "nomic-embed-text",
			Endpoint: "http://localhost:11434",
		},
		Search: SearchConfig{
			Hybrid:        true,
			TopK:          5,
			RRFK:          60,
			VectorWeight:  0.65,
			KeywordWeight: 0.35,
			Reranker: RerankerConfig{
				Model:    "reranker-small",
				Endpoint: "http://localhost:9659",
			},
		},
		Watcher: WatcherConfig{
			DebounceMS: 2000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds a Config from defaults, an optional YAML file, and
// environment overrides, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides config fields from DOCINDEX_* environment variables.
func (c *Config) applyEnv() {
	setStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setStr("DOCINDEX_DOCS_PATH", &c.DocsPath)
	setStr("DOCINDEX_DATA_DIR", &c.DataDir)
	setStr("DOCINDEX_CHUNK_STRATEGY", &c.Chunking.Strategy)
	setStr("DOCINDEX_EMBEDDING_PROVIDER", &c.Embeddings.Provider)
	setStr("DOCINDEX_EMBEDDING_MODEL", &c.Embeddings.Model)
	setStr("DOCINDEX_EMBEDDING_ENDPOINT", &c.Embeddings.Endpoint)
	setStr("DOCINDEX_OPENAI_API_KEY", &c.Embeddings.OpenAIAPIKey)
	setStr("DOCINDEX_LOG_LEVEL", &c.Logging.Level)

	if v := os.Getenv("DOCINDEX_MIN_RELEVANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.MinRelevance = f
		}
	}
	if v := os.Getenv("DOCINDEX_HYBRID_SEARCH"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Search.Hybrid = b
		}
	}
	if v := os.Getenv("DOCINDEX_RERANKER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Search.Reranker.Enabled = b
		}
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.Chunking.Strategy {
	case StrategyHeading, StrategyFixed, StrategyHybrid:
	default:
		return fmt.Errorf("invalid chunk strategy %q (want heading, fixed, or hybrid)", c.Chunking.Strategy)
	}
	switch c.Embeddings.Provider {
	case ProviderOllama, ProviderOpenAI, ProviderStatic:
	default:
		return fmt.Errorf("invalid embedding provider %q (want ollama, openai, or static)", c.Embeddings.Provider)
	}
	if c.Chunking.MaxChars <= 0 {
		return fmt.Errorf("chunking.max_chars must be positive, got %d", c.Chunking.MaxChars)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.MaxChars {
		return fmt.Errorf("chunking.overlap must be in [0, max_chars), got %d", c.Chunking.Overlap)
	}
	if c.Search.RRFK <= 0 {
		return fmt.Errorf("search.rrf_k must be positive, got %d", c.Search.RRFK)
	}
	if c.Search.VectorWeight < 0 || c.Search.KeywordWeight < 0 {
		return fmt.Errorf("search weights must be non-negative")
	}
	return nil
}

// Clone returns a deep copy. Model swaps clone the active config,
// modify the copy, and rebind it; the original is never mutated.
func (c *Config) Clone() *Config {
	dup := *c
	return &dup
}

// ModelIdentity returns the provider-qualified model identifier used
// to decide whether a model swap is a no-op.
func (c *Config) ModelIdentity() string {
	return c.Embeddings.Provider + "/" + c.Embeddings.Model
}

// Save writes the config as YAML to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// String renders the config with secrets masked.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Embeddings.OpenAIAPIKey != "" {
		safe.Embeddings.OpenAIAPIKey = "***set***"
	}
	data, _ := yaml.Marshal(safe)
	return strings.TrimSpace(string(data))
}
