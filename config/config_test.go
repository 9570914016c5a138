package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Admission.CallerLimit)
	assert.Equal(t, 100, cfg.Admission.GlobalLimit)
	assert.Equal(t, time.Minute, cfg.Admission.Window.Std())
	assert.Equal(t, 15, cfg.Workflow.RecursionBound)
	assert.Equal(t, 24*time.Hour, cfg.Memory.TTL.Std())
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
admission:
  caller_limit: 5
  global_limit: 50
  window: 30s
workflow:
  recursion_bound: 10
models:
  deep:
    provider: anthropic
    name: claude-3-5-sonnet-20241022
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Admission.CallerLimit)
	assert.Equal(t, 50, cfg.Admission.GlobalLimit)
	assert.Equal(t, 30*time.Second, cfg.Admission.Window.Std())
	assert.Equal(t, 10, cfg.Workflow.RecursionBound)
	assert.Equal(t, "anthropic", cfg.Models.Deep.Provider)
	assert.Equal(t, ":8080", cfg.Server.Addr, "untouched sections keep defaults")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("admission:\n  caller_limit: 5\n"), 0o644))
	t.Setenv("QUERYFLOW_CALLER_LIMIT", "7")
	t.Setenv("QUERYFLOW_MEMORY_TTL", "1h")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Admission.CallerLimit)
	assert.Equal(t, time.Hour, cfg.Memory.TTL.Std())
}

func TestLoad_MissingFileIsFine(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Admission.CallerLimit)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"caller above global", func(c *Config) { c.Admission.CallerLimit = 200 }},
		{"zero window", func(c *Config) { c.Admission.Window = 0 }},
		{"zero bound", func(c *Config) { c.Workflow.RecursionBound = 0 }},
		{"unknown backend", func(c *Config) { c.Memory.Backend = "dynamo" }},
		{"redis without url", func(c *Config) { c.Memory.Backend = "redis" }},
		{"zero retries", func(c *Config) { c.Retry.MaxAttempts = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
