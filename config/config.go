package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for rolerag.
type Config struct {
	Corpus     CorpusConfig     `yaml:"corpus"`
	Chunk      ChunkConfig      `yaml:"chunk"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Index      IndexConfig      `yaml:"index"`
	Retrieve   RetrieveConfig   `yaml:"retrieve"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Server     ServerConfig     `yaml:"server"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// CorpusConfig describes the department-organized document tree.
type CorpusConfig struct {
	Root     string   `yaml:"root"`
	Includes []string `yaml:"includes"` // doublestar patterns, relative to a department dir
	Excludes []string `yaml:"excludes"`
}

// ChunkConfig holds the sliding-window parameters, in characters.
type ChunkConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"` // "hash", "openai", "ollama"
	Model             string        `yaml:"model"` // empty selects the provider default
	APIKeyEnv         string        `yaml:"api_key_env"`
	BaseURL           string        `yaml:"base_url"`
	Dimension         int           `yaml:"dimension"` // 0 selects the model default
	BatchSize         int           `yaml:"batch_size"`
	Workers           int           `yaml:"workers"`
	RequestsPerSecond float64       `yaml:"requests_per_second"` // 0 = unlimited
	Timeout           time.Duration `yaml:"timeout"`
	Stemming          bool          `yaml:"stemming"` // hash provider only
}

// IndexConfig selects the index backend and its location.
// Backend is "bolt" (persisted at Path) or "memory" (serve only, ingested at startup).
type IndexConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// RetrieveConfig holds query-time parameters.
type RetrieveConfig struct {
	TopK      int           `yaml:"top_k"`
	FallbackK int           `yaml:"fallback_k"`
	MinScore  float64       `yaml:"min_score"` // results scoring at or below are dropped
	Timeout   time.Duration `yaml:"timeout"`
	CacheSize int           `yaml:"cache_size"` // query embedding cache, 0 = disabled
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// SummarizerConfig selects the optional answer summarizer.
type SummarizerConfig struct {
	Provider     string        `yaml:"provider"` // "none", "frequency", "ollama"
	Model        string        `yaml:"model"`
	BaseURL      string        `yaml:"base_url"`
	MaxSentences int           `yaml:"max_sentences"`
	Timeout      time.Duration `yaml:"timeout"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr          string        `yaml:"addr"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	TrustBodyRole bool          `yaml:"trust_body_role"`
	Watch         bool          `yaml:"watch"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// AuthConfig lists the users known to the server.
type AuthConfig struct {
	Users []UserConfig `yaml:"users"`
}

// UserConfig is one user entry. PasswordHash (bcrypt) takes precedence over
// Password.
type UserConfig struct {
	Username     string `yaml:"username"`
	Password     string `yaml:"password,omitempty"`
	PasswordHash string `yaml:"password_hash,omitempty"`
	Role         string `yaml:"role"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Corpus: CorpusConfig{
			Root:     "resources/data",
			Includes: []string{"**/*.md", "**/*.markdown", "**/*.txt", "**/*.csv"},
			Excludes: []string{"**/.*", "**/.*/**"},
		},
		Chunk: ChunkConfig{
			Size:    500,
			Overlap: 50,
		},
		Embedding: EmbeddingConfig{
			Provider:  "hash",
			APIKeyEnv: "OPENAI_API_KEY",
			BatchSize: 64,
			Workers:   4,
			Timeout:   60 * time.Second,
			Stemming:  true,
		},
		Index: IndexConfig{
			Backend: "bolt",
			Path:    filepath.Join(".rolerag", "index.db"),
		},
		Retrieve: RetrieveConfig{
			TopK:      3,
			FallbackK: 5,
			MinScore:  0,
			Timeout:   10 * time.Second,
			CacheSize: 256,
			CacheTTL:  10 * time.Minute,
		},
		Summarizer: SummarizerConfig{
			Provider:     "none",
			Model:        "llama3",
			BaseURL:      "http://localhost:11434",
			MaxSentences: 5,
			Timeout:      60 * time.Second,
		},
		Server: ServerConfig{
			Addr:          "127.0.0.1:8000",
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  90 * time.Second,
			TrustBodyRole: true,
			WatchDebounce: 2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for rolerag.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "rolerag.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".rolerag", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Chunk.Size <= 0 {
		return fmt.Errorf("chunk.size must be positive, got %d", c.Chunk.Size)
	}
	if c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.Size {
		return fmt.Errorf("chunk.overlap must be in [0, %d), got %d", c.Chunk.Size, c.Chunk.Overlap)
	}
	if c.Retrieve.TopK <= 0 || c.Retrieve.FallbackK <= 0 {
		return fmt.Errorf("retrieve.top_k and retrieve.fallback_k must be positive")
	}
	if c.Embedding.Dimension < 0 {
		return fmt.Errorf("embedding.dimension must not be negative, got %d", c.Embedding.Dimension)
	}
	switch c.Embedding.Provider {
	case "hash", "openai", "ollama":
	default:
		return fmt.Errorf("unsupported embedding provider: %s", c.Embedding.Provider)
	}
	switch c.Summarizer.Provider {
	case "", "none", "frequency", "ollama":
	default:
		return fmt.Errorf("unsupported summarizer provider: %s", c.Summarizer.Provider)
	}
	switch c.Index.Backend {
	case "", "bolt":
		if c.Index.Path == "" {
			return fmt.Errorf("index.path is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported index backend: %s", c.Index.Backend)
	}
	return nil
}

// Resolve makes relative corpus and index paths absolute against dir.
func (c *Config) Resolve(dir string) {
	if c.Corpus.Root != "" && !filepath.IsAbs(c.Corpus.Root) {
		c.Corpus.Root = filepath.Join(dir, c.Corpus.Root)
	}
	if !filepath.IsAbs(c.Index.Path) {
		c.Index.Path = filepath.Join(dir, c.Index.Path)
	}
}
