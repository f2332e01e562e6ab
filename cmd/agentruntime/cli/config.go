package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config drives the serve command. Every field has a default, so an absent
// config file yields a working in-memory deployment with a mock model.
type Config struct {
	// Addr is the TCP address the HTTP server listens on.
	Addr string `yaml:"addr"`

	// AppName scopes sessions, artifacts and memory records.
	AppName string `yaml:"app_name"`

	Log    LogConfig    `yaml:"log"`
	Store  StoreConfig  `yaml:"store"`
	Memory MemoryConfig `yaml:"memory"`
	Model  ModelConfig  `yaml:"model"`
	Agent  AgentConfig  `yaml:"agent"`
}

// LogConfig controls the runtime logger.
type LogConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// StoreConfig selects session and artifact persistence.
type StoreConfig struct {
	// Driver is memory or sqlite.
	Driver string `yaml:"driver"`

	// Path is the sqlite database file. Sessions and artifacts share it.
	Path string `yaml:"path"`
}

// MemoryConfig selects the index backing memory search.
type MemoryConfig struct {
	// Index is keyword or semantic. The semantic index embeds records with
	// the OpenAI embeddings API and requires OPENAI_API_KEY.
	Index string `yaml:"index"`

	// MinScore drops search matches scoring below the threshold.
	MinScore float64 `yaml:"min_score"`

	// TopK caps how many records a search returns. Zero keeps the index
	// default.
	TopK int `yaml:"top_k"`
}

// ModelConfig selects the language model. API keys are read from the
// environment (ANTHROPIC_API_KEY, OPENAI_API_KEY), never from the file.
type ModelConfig struct {
	// Provider is anthropic, openai or mock.
	Provider string `yaml:"provider"`

	// Name is the provider's model id. Empty keeps the provider default.
	Name string `yaml:"name"`
}

// AgentConfig describes the served agent.
type AgentConfig struct {
	Name        string `yaml:"name"`
	Instruction string `yaml:"instruction"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Addr:    ":8080",
		AppName: "agentruntime",
		Log:     LogConfig{Level: "info", Format: "text"},
		Store:   StoreConfig{Driver: "memory", Path: "agentruntime.db"},
		Memory:  MemoryConfig{Index: "keyword"},
		Model:   ModelConfig{Provider: "mock"},
		Agent:   AgentConfig{Name: "assistant"},
	}
}

// LoadConfig reads a YAML config file and merges it over the defaults.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Validate checks enum fields and value ranges.
func (c Config) Validate() error {
	if c.AppName == "" {
		return fmt.Errorf("app_name must not be empty")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("store.driver must be memory or sqlite, got %q", c.Store.Driver)
	}

	switch c.Memory.Index {
	case "keyword", "semantic":
	default:
		return fmt.Errorf("memory.index must be keyword or semantic, got %q", c.Memory.Index)
	}

	if c.Memory.MinScore < 0 || c.Memory.MinScore > 1 {
		return fmt.Errorf("memory.min_score must be between 0 and 1, got %g", c.Memory.MinScore)
	}

	if c.Memory.TopK < 0 {
		return fmt.Errorf("memory.top_k must not be negative, got %d", c.Memory.TopK)
	}

	switch c.Model.Provider {
	case "anthropic", "openai", "mock":
	default:
		return fmt.Errorf("model.provider must be anthropic, openai or mock, got %q", c.Model.Provider)
	}

	if c.Agent.Name == "" {
		return fmt.Errorf("agent.name must not be empty")
	}

	return nil
}
