package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the config file is looked up when no path is given.
const DefaultPath = "chaosfeed.yaml"

// Config holds all chaosfeed configuration.
type Config struct {
	// Discussion topic set at startup; can be changed while idle
	Topic string `yaml:"topic"`

	LLM        LLMConfig        `yaml:"llm"`
	Simulation SimulationConfig `yaml:"simulation"`
	Prompts    PromptsConfig    `yaml:"prompts"`
	Profiles   ProfilesConfig   `yaml:"profiles"`
	Export     ExportConfig     `yaml:"export"`
	Storage    StorageConfig    `yaml:"storage"`
	Server     ServerConfig     `yaml:"server"`
	NATS       NATSConfig       `yaml:"nats"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LLMConfig configures the language-model backend.
type LLMConfig struct {
	APIKey              string `yaml:"api_key"`
	Model               string `yaml:"model"`
	BaseURL             string `yaml:"base_url"`
	MaxCompletionTokens int    `yaml:"max_completion_tokens"`
	Timeout             string `yaml:"timeout"`
}

// SimulationConfig configures the turn loop.
type SimulationConfig struct {
	TurnDelay string `yaml:"turn_delay"`
	Selection string `yaml:"selection"` // random or model
}

type PromptsConfig struct {
	ActionPath   string `yaml:"action_path"`
	SelectorPath string `yaml:"selector_path"`
}

type ProfilesConfig struct {
	Path string `yaml:"path"`
	// Load the profiles file into the roster at startup
	Autoload bool `yaml:"autoload"`
}

// ExportConfig selects where the iteration log is saved after every turn.
type ExportConfig struct {
	FilePath string `yaml:"file_path"` // empty disables the file sink
	Badger   bool   `yaml:"badger"`
}

type StorageConfig struct {
	DataDir  string `yaml:"data_dir"`
	InMemory bool   `yaml:"in_memory"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

// NATSConfig enables the activity publisher when URL is set.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // auto, console, json
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Model:               "gpt-5-nano",
			MaxCompletionTokens: 10000,
			Timeout:             "2m",
		},
		Simulation: SimulationConfig{
			TurnDelay: "5s",
			Selection: "random",
		},
		Prompts: PromptsConfig{
			ActionPath:   "prompt_action.txt",
			SelectorPath: "prompt_selector.txt",
		},
		Profiles: ProfilesConfig{
			Path:     "profiles.json",
			Autoload: true,
		},
		Export: ExportConfig{
			FilePath: "openai-responses.json",
		},
		Storage: StorageConfig{
			DataDir: ".chaosfeed",
		},
		Server: ServerConfig{
			Port: 3000,
		},
		NATS: NATSConfig{
			SubjectPrefix: "chaosfeed",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. A .env file in the working directory is loaded first, then
// environment variables override both.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if url := os.Getenv("OPENAI_BASE_URL"); url != "" {
		c.LLM.BaseURL = url
	}
	if topic := os.Getenv("CHAOSFEED_TOPIC"); topic != "" {
		c.Topic = topic
	}
	if delay := os.Getenv("CHAOSFEED_TURN_DELAY"); delay != "" {
		c.Simulation.TurnDelay = delay
	}
	if url := os.Getenv("CHAOSFEED_NATS_URL"); url != "" {
		c.NATS.URL = url
	}
	if port := os.Getenv("CHAOSFEED_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("CHAOSFEED_PORT: %w", err)
		}
		c.Server.Port = p
	}
	return nil
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	if _, err := c.TurnDelay(); err != nil {
		return err
	}
	if _, err := c.LLMTimeout(); err != nil {
		return err
	}
	switch c.Simulation.Selection {
	case "", "random", "model":
	default:
		return fmt.Errorf("simulation.selection must be random or model, got %q", c.Simulation.Selection)
	}
	switch c.Logging.Format {
	case "", "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format must be auto, console or json, got %q", c.Logging.Format)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// TurnDelay returns the parsed pause between turns.
func (c *Config) TurnDelay() (time.Duration, error) {
	return parseDuration("simulation.turn_delay", c.Simulation.TurnDelay, 5*time.Second)
}

// LLMTimeout returns the parsed per-request timeout.
func (c *Config) LLMTimeout() (time.Duration, error) {
	return parseDuration("llm.timeout", c.LLM.Timeout, 2*time.Minute)
}

func parseDuration(name, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: negative duration", name)
	}
	return d, nil
}
