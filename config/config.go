// Package config loads the service configuration from a YAML file with
// environment variable overrides. Every tunable of the pipeline is exposed
// here; library constructors keep their own defaults so the config layer is
// only needed by the serving binary.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts Go duration strings ("30s", "24h") in YAML documents;
// yaml.v3 has no native time.Duration support.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration document.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Admission AdmissionConfig `yaml:"admission"`
	Memory    MemoryConfig    `yaml:"memory"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Retry     RetryConfig     `yaml:"retry"`
	Models    ModelsConfig    `yaml:"models"`
	Tools     ToolsConfig     `yaml:"tools"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// AdmissionConfig configures the dual-scope limiter.
type AdmissionConfig struct {
	CallerLimit int      `yaml:"caller_limit"`
	GlobalLimit int      `yaml:"global_limit"`
	Window      Duration `yaml:"window"`
}

// MemoryConfig configures conversation memory. Backend is "inmemory" or
// "redis".
type MemoryConfig struct {
	Backend       string   `yaml:"backend"`
	TTL           Duration `yaml:"ttl"`
	SweepInterval Duration `yaml:"sweep_interval"`
	RedisURL      string   `yaml:"redis_url"`
}

// WorkflowConfig configures the engine.
type WorkflowConfig struct {
	RecursionBound int `yaml:"recursion_bound"`
	EventBuffer    int `yaml:"event_buffer"`
}

// RetryConfig configures the tool retry policy.
type RetryConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay"`
	MaxDelay    Duration `yaml:"max_delay"`
}

// ModelConfig selects one model tier. Provider is "openai", "anthropic",
// "ollama" or "mock".
type ModelConfig struct {
	Provider    string  `yaml:"provider"`
	Name        string  `yaml:"name"`
	HostURL     string  `yaml:"host_url"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens"`
}

// ModelsConfig pairs the two tiers.
type ModelsConfig struct {
	Fast ModelConfig `yaml:"fast"`
	Deep ModelConfig `yaml:"deep"`
}

// ToolsConfig configures the external tool endpoints.
type ToolsConfig struct {
	VectorIndexURL string   `yaml:"vector_index_url"`
	VectorTimeout  Duration `yaml:"vector_timeout"`
	TMDBAPIKey     string   `yaml:"tmdb_api_key"`
	TMDBBaseURL    string   `yaml:"tmdb_base_url"`
	SearchLimit    int      `yaml:"search_limit"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Default returns the configuration used when no file or overrides are
// provided.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Admission: AdmissionConfig{
			CallerLimit: 20,
			GlobalLimit: 100,
			Window:      Duration(time.Minute),
		},
		Memory: MemoryConfig{
			Backend:       "inmemory",
			TTL:           Duration(24 * time.Hour),
			SweepInterval: Duration(10 * time.Minute),
		},
		Workflow: WorkflowConfig{
			RecursionBound: 15,
			EventBuffer:    16,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   Duration(200 * time.Millisecond),
			MaxDelay:    Duration(2 * time.Second),
		},
		Models: ModelsConfig{
			Fast: ModelConfig{Provider: "ollama", Name: "llama3.1:8b", Temperature: 0},
			Deep: ModelConfig{Provider: "ollama", Name: "llama3.3:70b", Temperature: 0.7},
		},
		Tools: ToolsConfig{
			VectorTimeout: Duration(5 * time.Second),
			SearchLimit:   5,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads the YAML file at path (skipped when empty or missing) on top of
// the defaults, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Missing file is fine; env and defaults still apply.
		case err != nil:
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	applyEnv(&cfg)
	return cfg, cfg.Validate()
}

// Validate rejects configurations that cannot serve.
func (c Config) Validate() error {
	if c.Admission.CallerLimit < 1 || c.Admission.GlobalLimit < 1 {
		return fmt.Errorf("admission limits must be positive")
	}
	if c.Admission.CallerLimit > c.Admission.GlobalLimit {
		return fmt.Errorf("caller limit %d exceeds global limit %d", c.Admission.CallerLimit, c.Admission.GlobalLimit)
	}
	if c.Admission.Window <= 0 {
		return fmt.Errorf("admission window must be positive")
	}
	if c.Workflow.RecursionBound < 1 {
		return fmt.Errorf("recursion bound must be positive")
	}
	if c.Memory.TTL <= 0 {
		return fmt.Errorf("memory ttl must be positive")
	}
	if c.Memory.Backend != "inmemory" && c.Memory.Backend != "redis" {
		return fmt.Errorf("unknown memory backend %q", c.Memory.Backend)
	}
	if c.Memory.Backend == "redis" && c.Memory.RedisURL == "" {
		return fmt.Errorf("redis backend requires a redis url")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry attempts must be positive")
	}
	return nil
}

// applyEnv overlays QUERYFLOW_* environment variables onto cfg.
func applyEnv(cfg *Config) {
	setString(&cfg.Server.Addr, "QUERYFLOW_ADDR")
	setInt(&cfg.Admission.CallerLimit, "QUERYFLOW_CALLER_LIMIT")
	setInt(&cfg.Admission.GlobalLimit, "QUERYFLOW_GLOBAL_LIMIT")
	setDuration(&cfg.Admission.Window, "QUERYFLOW_ADMISSION_WINDOW")
	setString(&cfg.Memory.Backend, "QUERYFLOW_MEMORY_BACKEND")
	setDuration(&cfg.Memory.TTL, "QUERYFLOW_MEMORY_TTL")
	setString(&cfg.Memory.RedisURL, "QUERYFLOW_REDIS_URL")
	setInt(&cfg.Workflow.RecursionBound, "QUERYFLOW_RECURSION_BOUND")
	setInt(&cfg.Retry.MaxAttempts, "QUERYFLOW_RETRY_ATTEMPTS")
	setString(&cfg.Models.Fast.Provider, "QUERYFLOW_FAST_PROVIDER")
	setString(&cfg.Models.Fast.Name, "QUERYFLOW_FAST_MODEL")
	setString(&cfg.Models.Fast.HostURL, "QUERYFLOW_FAST_HOST")
	setString(&cfg.Models.Deep.Provider, "QUERYFLOW_DEEP_PROVIDER")
	setString(&cfg.Models.Deep.Name, "QUERYFLOW_DEEP_MODEL")
	setString(&cfg.Models.Deep.HostURL, "QUERYFLOW_DEEP_HOST")
	setString(&cfg.Tools.VectorIndexURL, "QUERYFLOW_VECTOR_URL")
	setString(&cfg.Tools.TMDBAPIKey, "TMDB_API_KEY")
	setString(&cfg.Tools.TMDBBaseURL, "QUERYFLOW_TMDB_URL")
	setString(&cfg.Logging.Level, "QUERYFLOW_LOG_LEVEL")
	setString(&cfg.Logging.Format, "QUERYFLOW_LOG_FORMAT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}
