// ABOUTME: Tests for configuration loading
// ABOUTME: Covers defaults, YAML files, environment overrides and validation
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 2, cfg.Queue.Capacity)
	assert.Equal(t, SinkDevice, cfg.Sink.Kind)
	assert.Equal(t, 100, cfg.Sink.OutputQueueSize)
	assert.Equal(t, 50, cfg.Sink.Target)
	assert.Equal(t, ":8927", cfg.Receiver.Listen)
	assert.True(t, cfg.HTTP.LocalOnly)
	assert.Equal(t, 100, cfg.Sender.Speed)
	assert.Equal(t, 10*time.Millisecond, cfg.Sender.Period())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pcmrelay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
queue:
  capacity: 4
sink:
  kind: stream
  stream_buffer: 3
http:
  local_only: false
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 4, cfg.Queue.Capacity)
	assert.Equal(t, SinkStream, cfg.Sink.Kind)
	assert.Equal(t, 3, cfg.Sink.StreamBuffer)
	assert.False(t, cfg.HTTP.LocalOnly)
	// untouched keys keep defaults
	assert.Equal(t, "oto", cfg.Sink.Output)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("PCMRELAY_SINK_KIND", "stream")
	t.Setenv("PCMRELAY_QUEUE_CAPACITY", "8")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, SinkStream, cfg.Sink.Kind)
	assert.Equal(t, 8, cfg.Queue.Capacity)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero queue", func(c *Config) { c.Queue.Capacity = 0 }},
		{"bad sink kind", func(c *Config) { c.Sink.Kind = "speaker" }},
		{"bad output", func(c *Config) { c.Sink.Output = "alsa" }},
		{"target above queue", func(c *Config) { c.Sink.Target = 101 }},
		{"bad quality", func(c *Config) { c.Sink.Quality = "ultra" }},
		{"slow speed", func(c *Config) { c.Sender.Speed = 50 }},
		{"zero period", func(c *Config) { c.Sender.PeriodMs = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
