package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Config drives one indexing run. Values load from an optional YAML file,
// then environment variables override, then defaults fill the gaps.
type Config struct {
	// DBPath is the SQLite database location. ":memory:" is accepted.
	DBPath string `yaml:"db_path"`

	// RepoPath is the repository to index.
	RepoPath string `yaml:"repo_path"`

	// IgnoreFile overrides the default <repo>/.cgrignore location.
	IgnoreFile string `yaml:"ignore_file"`

	// MaxFileBytes skips source files larger than this. 0 disables the cap.
	MaxFileBytes int64 `yaml:"max_file_bytes"`

	// ChangedOnly restricts a run to files whose content hash moved since
	// the previous run.
	ChangedOnly bool `yaml:"changed_only"`

	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
}

// PipelineConfig sizes the concurrency pools and batches.
type PipelineConfig struct {
	ParseWorkers   int `yaml:"parse_workers"`   // defaults to NumCPU
	NodeBatchSize  int `yaml:"node_batch_size"` // persist flush threshold
	EdgeBatchSize  int `yaml:"edge_batch_size"`
	ResolveBatch   int `yaml:"resolve_batch"`
	ResolveWorkers int `yaml:"resolve_workers"`
}

// EmbeddingsConfig controls the embedding stage.
type EmbeddingsConfig struct {
	Enabled     bool          `yaml:"enabled"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	BatchSize   int           `yaml:"batch_size"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// Load reads path (optional, "" skips the file), applies environment
// overrides, validates, and fills defaults. Missing credentials with
// embeddings enabled fail here, before any file is touched.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CODEGRAPH_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("CODEGRAPH_REPO"); v != "" {
		c.RepoPath = v
	}
	if v := os.Getenv("CODEGRAPH_EMBEDDINGS"); v == "1" || v == "true" {
		c.Embeddings.Enabled = true
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Embeddings.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.Embeddings.BaseURL = v
	}
	if v := os.Getenv("OPENAI_EMBEDDING_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
}

func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "codegraph.db"
	}
	if c.RepoPath == "" {
		c.RepoPath = "."
	}
	if c.Pipeline.ParseWorkers <= 0 {
		c.Pipeline.ParseWorkers = runtime.NumCPU()
	}
	if c.Pipeline.NodeBatchSize <= 0 {
		c.Pipeline.NodeBatchSize = 200
	}
	if c.Pipeline.EdgeBatchSize <= 0 {
		c.Pipeline.EdgeBatchSize = 500
	}
	if c.Pipeline.ResolveBatch <= 0 {
		c.Pipeline.ResolveBatch = 500
	}
	if c.Pipeline.ResolveWorkers <= 0 {
		c.Pipeline.ResolveWorkers = runtime.NumCPU()
	}
	if c.Embeddings.BatchSize <= 0 {
		c.Embeddings.BatchSize = 64
	}
	if c.Embeddings.IdleTimeout <= 0 {
		c.Embeddings.IdleTimeout = 200 * time.Millisecond
	}
}

func (c *Config) validate() error {
	if c.Embeddings.Enabled && c.Embeddings.APIKey == "" {
		return fmt.Errorf("embeddings enabled but no API key configured (set OPENAI_API_KEY)")
	}
	return nil
}
