// Package config provides layered configuration: built-in defaults, an
// optional YAML file, and environment overrides, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the config file looked for when none is given.
const DefaultConfigFile = "ralph.yaml"

// Config holds everything the harness needs to run.
type Config struct {
	// Model is the Ollama model name.
	Model string `yaml:"model"`
	// Host is the Ollama endpoint.
	Host string `yaml:"host"`
	// MaxSteps bounds completion round-trips per session.
	MaxSteps int `yaml:"max_steps"`
	// RecentWindow is the duplicate-call window capacity.
	RecentWindow int `yaml:"recent_window"`
	// MaxIterations bounds outer sessions before giving up.
	MaxIterations int `yaml:"max_iterations"`
	// Temperature is the sampling temperature for completions.
	Temperature float64 `yaml:"temperature"`
	// TerminalMarker is the phrase that signals all work is done.
	TerminalMarker string `yaml:"terminal_marker"`
	// PromptPath is the system prompt document.
	PromptPath string `yaml:"prompt_path"`
	// Workspace is the working-tree root. Empty means the current directory.
	Workspace string `yaml:"workspace"`

	// HiddenPaths are glob patterns invisible to all file operations.
	HiddenPaths []string `yaml:"hidden_paths"`
	// ReadOnlyPaths are glob patterns that can be read but not written.
	ReadOnlyPaths []string `yaml:"read_only_paths"`
	// BlockedCommands extend the built-in shell command blocklist.
	BlockedCommands []string `yaml:"blocked_commands"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// LogFormat is text or json.
	LogFormat string `yaml:"log_format"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Model:          "llama3.1",
		Host:           "http://localhost:11434",
		MaxSteps:       50,
		RecentWindow:   10,
		MaxIterations:  100,
		Temperature:    0.7,
		TerminalMarker: "ALL STORIES COMPLETE",
		PromptPath:     "prompt.md",
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Load builds a Config from defaults, then the YAML file at path (or
// DefaultConfigFile when path is empty; a missing default file is not an
// error, a missing explicit file is), then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// Defaults only.
	default:
		return cfg, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("RALPH_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("RALPH_PROMPT_PATH"); v != "" {
		c.PromptPath = v
	}
	if v := os.Getenv("RALPH_TERMINAL_MARKER"); v != "" {
		c.TerminalMarker = v
	}
	if v := os.Getenv("RALPH_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if err := envInt("RALPH_MAX_TOOL_STEPS", &c.MaxSteps); err != nil {
		return err
	}
	if err := envInt("RALPH_RECENT_WINDOW", &c.RecentWindow); err != nil {
		return err
	}
	if err := envInt("RALPH_MAX_ITERATIONS", &c.MaxIterations); err != nil {
		return err
	}
	if v := os.Getenv("RALPH_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid RALPH_TEMPERATURE %q: %w", v, err)
		}
		c.Temperature = f
	}
	return nil
}

func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	*dst = n
	return nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model must not be empty")
	}
	if c.Host == "" {
		return fmt.Errorf("host must not be empty")
	}
	if c.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be positive, got %d", c.MaxSteps)
	}
	if c.RecentWindow <= 0 {
		return fmt.Errorf("recent_window must be positive, got %d", c.RecentWindow)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", c.MaxIterations)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be in [0, 2], got %g", c.Temperature)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log_format %q", c.LogFormat)
	}
	return nil
}
