package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"docrag/internal/domain"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL           string  `yaml:"base_url" toml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env" toml:"api_key_env"`
	Model             string  `yaml:"model" toml:"model"`
	TimeoutSecs       int     `yaml:"timeout_secs" toml:"timeout_secs"`
	BatchSize         int     `yaml:"batch_size" toml:"batch_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	MaxRetries        int     `yaml:"max_retries" toml:"max_retries"`
}

// TFIDFConfig configures the TF-IDF vectorizer.
type TFIDFConfig struct {
	// MaxFeatures caps the vocabulary; 0 means the index dimension.
	MaxFeatures int `yaml:"max_features" toml:"max_features"`
}

// EmbedderConfig lists embedding providers in preference order.
type EmbedderConfig struct {
	Providers []string              `yaml:"providers" toml:"providers"`
	Strict    bool                  `yaml:"strict" toml:"strict"`
	Seed      int64                 `yaml:"seed" toml:"seed"`
	Cache     bool                  `yaml:"cache" toml:"cache"`
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty" toml:"openai,omitempty"`
	TFIDF     TFIDFConfig           `yaml:"tfidf" toml:"tfidf"`
}

// IndexConfig selects and configures the vector index implementation.
type IndexConfig struct {
	Type            string        `yaml:"type" toml:"type"`
	Dimension       int           `yaml:"dimension" toml:"dimension"`
	StrictDimension bool          `yaml:"strict_dimension" toml:"strict_dimension"`
	Qdrant          *QdrantConfig `yaml:"qdrant,omitempty" toml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector index.
type QdrantConfig struct {
	URL         string `yaml:"url" toml:"url"`
	APIKey      string `yaml:"api_key" toml:"api_key"`
	APIKeyEnv   string `yaml:"api_key_env" toml:"api_key_env"`
	Collection  string `yaml:"collection" toml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"`
}

// RetrievalConfig configures voting depth.
type RetrievalConfig struct {
	TopK        int `yaml:"top_k" toml:"top_k"`
	TripletTopK int `yaml:"triplet_top_k" toml:"triplet_top_k"`
	Workers     int `yaml:"workers" toml:"workers"`
}

// NormalizerConfig adds or replaces predicate aliases.
type NormalizerConfig struct {
	Predicates      map[string]string `yaml:"predicates,omitempty" toml:"predicates,omitempty"`
	ReplaceDefaults bool              `yaml:"replace_defaults" toml:"replace_defaults"`
}

// DatasetConfig points at the labelled summaries.
type DatasetConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// StoreConfig selects the record store ("sqlite" or "none").
type StoreConfig struct {
	Type string `yaml:"type" toml:"type"`
	Dir  string `yaml:"dir" toml:"dir"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Verbose bool `yaml:"verbose" toml:"verbose"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder   EmbedderConfig   `yaml:"embedder" toml:"embedder"`
	Index      IndexConfig      `yaml:"index" toml:"index"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" toml:"retrieval"`
	Normalizer NormalizerConfig `yaml:"normalizer" toml:"normalizer"`
	Dataset    DatasetConfig    `yaml:"dataset" toml:"dataset"`
	Store      StoreConfig      `yaml:"store" toml:"store"`
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Log        LogConfig        `yaml:"log" toml:"log"`
}

// Known selector values.
var (
	Providers  = []string{"openai", "tfidf", "random"}
	IndexTypes = []string{"memory", "qdrant"}
	StoreTypes = []string{"sqlite", "none"}
)

// Load reads a config from a specified path. Files ending in .toml are TOML,
// everything else YAML. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if isTOML(path) {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml, ./config.toml, then ~/.config/docrag/config.yaml.
// If none exists, it writes defaults to ~/.config/docrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	for _, cwdPath := range []string{"config.yaml", "config.toml"} {
		if _, err := os.Stat(cwdPath); err == nil {
			cfg, err := Load(cwdPath)
			return cfg, cwdPath, err
		}
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
	var data []byte
	var err error
	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks selector values and sizes.
func (c *AppConfig) Validate() error {
	if len(c.Embedder.Providers) == 0 && c.Embedder.Strict {
		return fmt.Errorf("embedder.providers is empty in strict mode: %w", domain.ErrInvalidInput)
	}
	for _, p := range c.Embedder.Providers {
		if !contains(Providers, p) {
			return fmt.Errorf("unknown embedder provider %q: %w", p, domain.ErrInvalidInput)
		}
	}
	if !contains(IndexTypes, c.Index.Type) {
		return fmt.Errorf("unknown index type %q: %w", c.Index.Type, domain.ErrInvalidInput)
	}
	if c.Index.Type == "qdrant" && (c.Index.Qdrant == nil || c.Index.Qdrant.URL == "") {
		return fmt.Errorf("index.qdrant.url is required: %w", domain.ErrInvalidInput)
	}
	if c.Index.Dimension <= 0 {
		return fmt.Errorf("index.dimension must be positive, got %d: %w", c.Index.Dimension, domain.ErrInvalidInput)
	}
	if !contains(StoreTypes, c.Store.Type) {
		return fmt.Errorf("unknown store type %q: %w", c.Store.Type, domain.ErrInvalidInput)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docrag", "config.yaml"), nil
}

// Default returns the built-in configuration.
func Default() *AppConfig { return defaultConfig() }

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:  EmbedderConfig{Providers: []string{"tfidf"}, Seed: 42},
		Index:     IndexConfig{Type: "memory", Dimension: 384},
		Retrieval: RetrievalConfig{TopK: 5, TripletTopK: 3, Workers: 4},
		Dataset:   DatasetConfig{Path: filepath.Join("data", "summaries.json")},
		Store:     StoreConfig{Type: "sqlite"},
		Server:    ServerConfig{Addr: ":8080"},
	}
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	def := defaultConfig()
	if cfg.Embedder.Providers == nil {
		cfg.Embedder.Providers = def.Embedder.Providers
	}
	if cfg.Index.Type == "" {
		cfg.Index.Type = def.Index.Type
	}
	if cfg.Index.Dimension == 0 {
		cfg.Index.Dimension = def.Index.Dimension
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = def.Retrieval.TopK
	}
	if cfg.Retrieval.TripletTopK == 0 {
		cfg.Retrieval.TripletTopK = def.Retrieval.TripletTopK
	}
	if cfg.Retrieval.Workers == 0 {
		cfg.Retrieval.Workers = def.Retrieval.Workers
	}
	if cfg.Dataset.Path == "" {
		cfg.Dataset.Path = def.Dataset.Path
	}
	if cfg.Store.Type == "" {
		cfg.Store.Type = def.Store.Type
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if contains(cfg.Embedder.Providers, "openai") {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
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
	if cfg.Index.Type == "qdrant" && cfg.Index.Qdrant != nil {
		if cfg.Index.Qdrant.Collection == "" {
			cfg.Index.Qdrant.Collection = "docrag"
		}
		if cfg.Index.Qdrant.TimeoutSecs == 0 {
			cfg.Index.Qdrant.TimeoutSecs = 15
		}
		if cfg.Index.Qdrant.APIKey == "" && cfg.Index.Qdrant.APIKeyEnv != "" {
			cfg.Index.Qdrant.APIKey = os.Getenv(cfg.Index.Qdrant.APIKeyEnv)
		}
	}
}
