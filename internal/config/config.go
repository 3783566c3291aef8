// ABOUTME: Layered configuration for the relay and sender binaries
// ABOUTME: Defaults, optional YAML file and PCMRELAY_* environment via viper
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Resonate-Protocol/pcmrelay/internal/pacer"
	"github.com/Resonate-Protocol/pcmrelay/pkg/audio/output"
	"github.com/Resonate-Protocol/pcmrelay/pkg/audio/resample"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. PCMRELAY_SINK_KIND
const EnvPrefix = "PCMRELAY"

// Sink kinds
const (
	SinkDevice = "device"
	SinkStream = "stream"
)

// Config is the full runtime configuration
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Sink     SinkConfig     `mapstructure:"sink"`
	Receiver ReceiverConfig `mapstructure:"receiver"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Sender   SenderConfig   `mapstructure:"sender"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type QueueConfig struct {
	Capacity int `mapstructure:"capacity"`
}

type SinkConfig struct {
	Kind            string `mapstructure:"kind"`
	Output          string `mapstructure:"output"`
	OutputQueueSize int    `mapstructure:"output_queue_size"`
	Target          int    `mapstructure:"target"`
	Quality         string `mapstructure:"quality"`
	StreamBuffer    int    `mapstructure:"stream_buffer"`
}

type ReceiverConfig struct {
	Listen string `mapstructure:"listen"`
	Name   string `mapstructure:"name"` // hostname-pcmrelay when empty
	MDNS   bool   `mapstructure:"mdns"`
}

type HTTPConfig struct {
	Listen    string `mapstructure:"listen"`
	LocalOnly bool   `mapstructure:"local_only"`
	BlockSize int    `mapstructure:"block_size"`
	Metrics   bool   `mapstructure:"metrics"`
}

type SenderConfig struct {
	Speed    int `mapstructure:"speed"`
	PeriodMs int `mapstructure:"period_ms"`
}

// Period returns the packet spacing as a duration
func (s SenderConfig) Period() time.Duration {
	return time.Duration(s.PeriodMs) * time.Millisecond
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetDefault("queue.capacity", 2)

	v.SetDefault("sink.kind", SinkDevice)
	v.SetDefault("sink.output", "oto")
	v.SetDefault("sink.output_queue_size", 100)
	v.SetDefault("sink.target", 50)
	v.SetDefault("sink.quality", "fastest")
	v.SetDefault("sink.stream_buffer", 2)

	v.SetDefault("receiver.listen", ":8927")
	v.SetDefault("receiver.name", "")
	v.SetDefault("receiver.mdns", true)

	v.SetDefault("http.listen", ":8928")
	v.SetDefault("http.local_only", true)
	v.SetDefault("http.block_size", 4096)
	v.SetDefault("http.metrics", true)

	v.SetDefault("sender.speed", pacer.DefaultSpeed)
	v.SetDefault("sender.period_ms", int(pacer.DefaultPeriod/time.Millisecond))
}

// Load reads defaults, then path (if not empty), then the environment
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks ranges and enumerations
func (c *Config) Validate() error {
	var errs []error

	if c.Queue.Capacity < 1 {
		errs = append(errs, fmt.Errorf("queue.capacity must be at least 1, got %d", c.Queue.Capacity))
	}

	switch c.Sink.Kind {
	case SinkDevice, SinkStream:
	default:
		errs = append(errs, fmt.Errorf("sink.kind must be %q or %q, got %q", SinkDevice, SinkStream, c.Sink.Kind))
	}
	if _, err := output.New(c.Sink.Output); err != nil {
		errs = append(errs, fmt.Errorf("sink.output: %w", err))
	}
	if c.Sink.OutputQueueSize < 1 {
		errs = append(errs, fmt.Errorf("sink.output_queue_size must be at least 1, got %d", c.Sink.OutputQueueSize))
	}
	if c.Sink.Target < 1 || c.Sink.Target > c.Sink.OutputQueueSize {
		errs = append(errs, fmt.Errorf("sink.target must be within 1..%d, got %d", c.Sink.OutputQueueSize, c.Sink.Target))
	}
	if _, err := resample.ParseQuality(c.Sink.Quality); err != nil {
		errs = append(errs, fmt.Errorf("sink.quality: %w", err))
	}
	if c.Sink.StreamBuffer < 1 {
		errs = append(errs, fmt.Errorf("sink.stream_buffer must be at least 1, got %d", c.Sink.StreamBuffer))
	}

	if c.HTTP.BlockSize < 1 {
		errs = append(errs, fmt.Errorf("http.block_size must be positive, got %d", c.HTTP.BlockSize))
	}

	if c.Sender.Speed < pacer.MinSpeed || c.Sender.Speed > pacer.MaxSpeed {
		errs = append(errs, fmt.Errorf("sender.speed must be within %d..%d, got %d", pacer.MinSpeed, pacer.MaxSpeed, c.Sender.Speed))
	}
	if c.Sender.PeriodMs < 1 {
		errs = append(errs, fmt.Errorf("sender.period_ms must be positive, got %d", c.Sender.PeriodMs))
	}

	return errors.Join(errs...)
}
