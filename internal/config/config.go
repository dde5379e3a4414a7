package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"kbqa/internal/domain"
)

// OpenAIConfig holds connection details for an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKeyEnv  string `yaml:"api_key_env"`
	MaxRetries int    `yaml:"max_retries,omitempty"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type        string        `yaml:"type"`
	Model       string        `yaml:"model"`
	Dimension   int           `yaml:"dimension"`
	TimeoutSecs int           `yaml:"timeout_secs"`
	Workers     int           `yaml:"workers"`
	OpenAI      *OpenAIConfig `yaml:"openai,omitempty"`
}

// Timeout returns the per-call embedding timeout.
func (c EmbedderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ChunkerConfig configures how documents are split into token windows.
type ChunkerConfig struct {
	Encoding  string `yaml:"encoding"`
	ChunkSize int    `yaml:"chunk_size"`
	Overlap   int    `yaml:"overlap"`
}

// RetrievalConfig configures query-time search.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// PathsConfig locates the knowledge base and the persisted store.
type PathsConfig struct {
	KnowledgeBase string `yaml:"knowledge_base"`
	Data          string `yaml:"data"`
}

// StoreConfig configures store generations.
type StoreConfig struct {
	KeepGenerations int `yaml:"keep_generations"`
}

// GeneratorConfig selects and configures the answer generator.
type GeneratorConfig struct {
	Type         string        `yaml:"type"`
	Model        string        `yaml:"model"`
	TimeoutSecs  int           `yaml:"timeout_secs"`
	MaxSentences int           `yaml:"max_sentences"`
	OpenAI       *OpenAIConfig `yaml:"openai,omitempty"`
}

// Timeout returns the per-call generation timeout.
func (c GeneratorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Paths     PathsConfig     `yaml:"paths"`
	Store     StoreConfig     `yaml:"store"`
	Generator GeneratorConfig `yaml:"generator"`
	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrConfig, path, err)
	}
	applyConfigDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/kbqa/config.yaml.
// If neither exists, it writes defaults to ~/.config/kbqa/config.yaml and returns them.
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
	cfg := Default()
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

// Validate reports the first invalid setting as domain.ErrConfig.
func (c *AppConfig) Validate() error {
	switch {
	case c.Chunker.ChunkSize <= 0:
		return fmt.Errorf("%w: chunker.chunk_size must be positive, got %d", domain.ErrConfig, c.Chunker.ChunkSize)
	case c.Chunker.Overlap < 0:
		return fmt.Errorf("%w: chunker.overlap must not be negative, got %d", domain.ErrConfig, c.Chunker.Overlap)
	case c.Chunker.Overlap >= c.Chunker.ChunkSize:
		return fmt.Errorf("%w: chunker.overlap (%d) must be smaller than chunker.chunk_size (%d)",
			domain.ErrConfig, c.Chunker.Overlap, c.Chunker.ChunkSize)
	case c.Retrieval.TopK <= 0:
		return fmt.Errorf("%w: retrieval.top_k must be positive, got %d", domain.ErrConfig, c.Retrieval.TopK)
	case c.Embedder.Type != EmbedderOpenAI && c.Embedder.Type != EmbedderHashing:
		return fmt.Errorf("%w: unknown embedder %q", domain.ErrConfig, c.Embedder.Type)
	case c.Generator.Type != GeneratorOpenAI && c.Generator.Type != GeneratorExtractive:
		return fmt.Errorf("%w: unknown generator %q", domain.ErrConfig, c.Generator.Type)
	case c.Embedder.Type == EmbedderHashing && c.Embedder.Dimension <= 0:
		return fmt.Errorf("%w: embedder.dimension must be positive, got %d", domain.ErrConfig, c.Embedder.Dimension)
	case c.Log.Format != "console" && c.Log.Format != "json":
		return fmt.Errorf("%w: unknown log format %q", domain.ErrConfig, c.Log.Format)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "kbqa", "config.yaml"), nil
}
