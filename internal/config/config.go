// Package config loads quill's TOML configuration.
//
// Values come from, in increasing precedence: built-in defaults, the config
// file (~/.quill/config.toml unless a path is given), and QUILL_* environment
// variables. Secrets are read only from the environment, which may be seeded
// from .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/postprocessors"
)

// Environment variables read by Load.
const (
	EnvDataDir        = "QUILL_DATA_DIR"
	EnvEmbedModel     = "QUILL_EMBED_MODEL"
	EnvEmbedTimeoutMS = "QUILL_EMBED_TIMEOUT_MS"
	EnvOllamaURL      = "QUILL_OLLAMA_URL"
	EnvOpenAIAPIKey   = "OPENAI_API_KEY"
	EnvOpenAIBaseURL  = "OPENAI_BASE_URL"
	EnvRedisAddrs     = "QUILL_REDIS_ADDRS"
	EnvRedisPassword  = "QUILL_REDIS_PASSWORD"
	EnvHTTPAddr       = "QUILL_HTTP_ADDR"
	EnvAPIKeys        = "QUILL_API_KEYS"
	EnvLogFormat      = "QUILL_LOG_FORMAT"
)

// Vector store backends.
const (
	VectorStoreSQLite = "sqlite"
	VectorStoreMemory = "memory"
)

// Config is the full application configuration.
type Config struct {
	// DataDir holds quill.db and vectors.db.
	DataDir string `toml:"data_dir"`

	// VectorStore is "sqlite" (default) or "memory".
	VectorStore string `toml:"vector_store"`

	Log       LogConfig       `toml:"log"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Cache     CacheConfig     `toml:"cache"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	HTTP      HTTPConfig      `toml:"http"`
	Reconcile ReconcileConfig `toml:"reconcile"`
	Watch     WatchConfig     `toml:"watch"`

	// Pipeline lists the article processing stages in order.
	Pipeline []StageConfig `toml:"pipeline"`
}

// LogConfig configures the logger.
type LogConfig struct {
	// Format is "console" or "json".
	Format  string `toml:"format"`
	Verbose bool   `toml:"verbose"`
}

// EmbeddingConfig configures the embedding worker and its backends.
type EmbeddingConfig struct {
	Model     string `toml:"model"`
	TimeoutMS int    `toml:"timeout_ms"`
	BatchSize int    `toml:"batch_size"`

	// InProcess serves the worker protocol over pipes inside this process
	// instead of spawning a child.
	InProcess bool `toml:"in_process"`

	OllamaURL         string  `toml:"ollama_url"`
	OpenAIBaseURL     string  `toml:"openai_base_url"`
	RequestsPerSecond float64 `toml:"requests_per_second"`

	// OpenAIAPIKey is only ever read from the environment.
	OpenAIAPIKey string `toml:"-"`
}

// CacheConfig configures the optional Redis embedding cache.
// The cache is disabled when Addrs is empty.
type CacheConfig struct {
	Addrs      []string `toml:"addrs"`
	Username   string   `toml:"username"`
	DB         int      `toml:"db"`
	TTLSeconds int      `toml:"ttl_seconds"`

	// Password is only ever read from the environment.
	Password string `toml:"-"`
}

// RetrievalConfig holds default budgets and recall tuning.
type RetrievalConfig struct {
	MaxChars      int     `toml:"max_chars"`
	MaxChunks     int     `toml:"max_chunks"`
	MaxCharacters int     `toml:"max_characters"`
	MaxSettings   int     `toml:"max_settings"`
	KeywordScore  float64 `toml:"keyword_score"`
	SemanticTopK  int     `toml:"semantic_top_k"`
	KeywordDocs   int     `toml:"keyword_docs"`
	KeywordChunks int     `toml:"keyword_chunks"`
	EntityTopK    int     `toml:"entity_top_k"`

	// KeywordMode is "terms" (default) or "raw".
	KeywordMode string `toml:"keyword_mode"`
}

// HTTPConfig configures quill serve.
type HTTPConfig struct {
	Addr string `toml:"addr"`

	// MountMCP serves the MCP streamable handler at /mcp.
	MountMCP bool `toml:"mount_mcp"`

	// APIKeys enables bearer auth when non-empty. Read only from the environment.
	APIKeys []string `toml:"-"`
}

// ReconcileConfig configures the background reconcile task.
type ReconcileConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"`
}

// WatchConfig configures quill watch.
type WatchConfig struct {
	Dir        string   `toml:"dir"`
	Extensions []string `toml:"extensions"`
}

// StageConfig names a pipeline stage and its options.
type StageConfig struct {
	Name    string         `toml:"name"`
	Options map[string]any `toml:"options"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		DataDir:     defaultDataDir(),
		VectorStore: VectorStoreSQLite,
		Log:         LogConfig{Format: "console"},
		Embedding: EmbeddingConfig{
			Model:             domain.DefaultEmbeddingModel,
			TimeoutMS:         int(domain.DefaultEmbedTimeout / time.Millisecond),
			BatchSize:         domain.DefaultEmbedBatch,
			OllamaURL:         "http://localhost:11434",
			RequestsPerSecond: 3,
		},
		Cache: CacheConfig{TTLSeconds: 7 * 24 * 3600},
		Retrieval: RetrievalConfig{
			MaxChars:      domain.DefaultMaxChars,
			MaxChunks:     domain.DefaultMaxChunks,
			MaxCharacters: domain.DefaultMaxCharacters,
			MaxSettings:   domain.DefaultMaxSettings,
			KeywordScore:  0.35,
			SemanticTopK:  20,
			KeywordDocs:   5,
			KeywordChunks: 10,
			EntityTopK:    10,
			KeywordMode:   "terms",
		},
		HTTP:      HTTPConfig{Addr: "127.0.0.1:7411"},
		Reconcile: ReconcileConfig{Enabled: true, Schedule: domain.DefaultReconcileSchedule},
		Watch:     WatchConfig{Extensions: []string{".md", ".txt"}},
	}
}

// DefaultPath is ~/.quill/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".quill", "config.toml"), nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".quill"
	}
	return filepath.Join(home, ".quill")
}

// LoadDotEnv loads .env files into the environment without overriding
// variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// Load reads path (or DefaultPath when empty), fills defaults and applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as TOML, creating the directory.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvEmbedModel); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv(EnvEmbedTimeoutMS); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Embedding.TimeoutMS = ms
		}
	}
	if v := os.Getenv(EnvOllamaURL); v != "" {
		c.Embedding.OllamaURL = v
	}
	if v := os.Getenv(EnvOpenAIBaseURL); v != "" {
		c.Embedding.OpenAIBaseURL = v
	}
	if v := os.Getenv(EnvRedisAddrs); v != "" {
		c.Cache.Addrs = splitList(v)
	}
	if v := os.Getenv(EnvHTTPAddr); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Log.Format = v
	}
	c.Embedding.OpenAIAPIKey = os.Getenv(EnvOpenAIAPIKey)
	c.Cache.Password = os.Getenv(EnvRedisPassword)
	c.HTTP.APIKeys = splitList(os.Getenv(EnvAPIKeys))
}

// applyDefaults fills fields a partial config file left at zero.
func (c *Config) applyDefaults() {
	d := Default()
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.VectorStore == "" {
		c.VectorStore = d.VectorStore
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = d.Embedding.Model
	}
	if c.Embedding.BatchSize <= 0 || c.Embedding.BatchSize > domain.MaxEmbedBatch {
		c.Embedding.BatchSize = d.Embedding.BatchSize
	}
	if c.Embedding.RequestsPerSecond <= 0 {
		c.Embedding.RequestsPerSecond = d.Embedding.RequestsPerSecond
	}
	if c.Retrieval.KeywordMode == "" {
		c.Retrieval.KeywordMode = d.Retrieval.KeywordMode
	}
	if c.Reconcile.Schedule == "" {
		c.Reconcile.Schedule = d.Reconcile.Schedule
	}
	if len(c.Watch.Extensions) == 0 {
		c.Watch.Extensions = d.Watch.Extensions
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = d.HTTP.Addr
	}
}

// Validate rejects values no component could run with.
func (c *Config) Validate() error {
	if _, ok := domain.LookupEmbeddingModel(c.Embedding.Model); !ok {
		return fmt.Errorf("embedding.model %q is not supported (choose one of %s)",
			c.Embedding.Model, strings.Join(domain.EmbeddingModelIDs(), ", "))
	}
	switch c.VectorStore {
	case VectorStoreSQLite, VectorStoreMemory:
	default:
		return fmt.Errorf("vector_store %q must be %q or %q", c.VectorStore, VectorStoreSQLite, VectorStoreMemory)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format %q must be \"console\" or \"json\"", c.Log.Format)
	}
	switch c.Retrieval.KeywordMode {
	case "terms", "raw":
	default:
		return fmt.Errorf("retrieval.keyword_mode %q must be \"terms\" or \"raw\"", c.Retrieval.KeywordMode)
	}
	return nil
}

// EmbedTimeout is the per-request timeout clamped to the allowed range.
func (c *Config) EmbedTimeout() time.Duration {
	return domain.ClampEmbedTimeout(time.Duration(c.Embedding.TimeoutMS) * time.Millisecond)
}

// CacheTTL is the embedding cache entry lifetime. Zero means no expiry.
func (c *Config) CacheTTL() time.Duration {
	if c.Cache.TTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// DefaultBudget is the retrieval budget used when a caller leaves fields unset.
func (c *Config) DefaultBudget() domain.Budget {
	return domain.Budget{
		MaxChars:      c.Retrieval.MaxChars,
		MaxChunks:     c.Retrieval.MaxChunks,
		MaxCharacters: c.Retrieval.MaxCharacters,
		MaxSettings:   c.Retrieval.MaxSettings,
	}.WithDefaults()
}

// Stages converts the pipeline section for postprocessors.Build.
// An empty section yields nil, which selects the default stages.
func (c *Config) Stages() []postprocessors.StageConfig {
	if len(c.Pipeline) == 0 {
		return nil
	}
	stages := make([]postprocessors.StageConfig, len(c.Pipeline))
	for i, s := range c.Pipeline {
		stages[i] = postprocessors.StageConfig{Name: s.Name, Options: s.Options}
	}
	return stages
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
