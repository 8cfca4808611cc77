// Package config loads focusd settings from file, environment and flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/realtime-ai/focusstream/pkg/connection"
	"github.com/realtime-ai/focusstream/pkg/dsp"
	"github.com/realtime-ai/focusstream/pkg/logging"
	"github.com/realtime-ai/focusstream/pkg/pipeline"
	"github.com/realtime-ai/focusstream/pkg/server"
	"github.com/realtime-ai/focusstream/pkg/trace"
	"github.com/spf13/viper"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// EnvPrefix is prepended to environment variable names, e.g. FOCUSD_CHUNK_LEN.
const EnvPrefix = "FOCUSD"

// Config represents the application configuration
type Config struct {
	SampleRate    int  `mapstructure:"sample_rate"`
	ChunkLen      int  `mapstructure:"chunk_len"`
	DisplayBuffer bool `mapstructure:"display_buffer"`

	Verdict   VerdictConfig   `mapstructure:"verdict"`
	Filter    FilterConfig    `mapstructure:"filter"`
	Bands     []dsp.Band      `mapstructure:"bands"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Data      DataConfig      `mapstructure:"data"`
	Model     ModelConfig     `mapstructure:"model"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Trace     TraceConfig     `mapstructure:"trace"`
}

// VerdictConfig contains verdict window settings
type VerdictConfig struct {
	WindowChunks int `mapstructure:"window_chunks"`
}

// FilterConfig contains the bandpass design
type FilterConfig struct {
	LowHz  float64 `mapstructure:"low_hz"`
	HighHz float64 `mapstructure:"high_hz"`
	Order  int     `mapstructure:"order"`
}

// BroadcastConfig contains the driver loop settings
type BroadcastConfig struct {
	// Tick overrides the chunk duration as the broadcast period.
	Tick        time.Duration `mapstructure:"tick"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

// DataConfig locates the recording
type DataConfig struct {
	Path string `mapstructure:"path"`
}

// ModelConfig locates the classifier artifact
type ModelConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig contains HTTP and WebSocket settings
type ServerConfig struct {
	Addr             string        `mapstructure:"addr"`
	WSPath           string        `mapstructure:"ws_path"`
	HealthPath       string        `mapstructure:"health_path"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	PongWait         time.Duration `mapstructure:"pong_wait"`
	PingPeriod       time.Duration `mapstructure:"ping_period"`
	MaxSessionsPerIP int           `mapstructure:"max_sessions_per_ip"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TraceConfig contains tracing settings
type TraceConfig struct {
	Exporter     string  `mapstructure:"exporter"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// NewViper returns a viper instance with defaults and FOCUSD_* environment
// lookup configured.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	v.SetDefault("sample_rate", 500)
	v.SetDefault("chunk_len", 200)
	v.SetDefault("display_buffer", true)

	v.SetDefault("verdict.window_chunks", 25)

	v.SetDefault("filter.low_hz", 1.0)
	v.SetDefault("filter.high_hz", 40.0)
	v.SetDefault("filter.order", 4)

	v.SetDefault("broadcast.tick", "0s")
	v.SetDefault("broadcast.send_timeout", "0s")

	v.SetDefault("data.path", "simulated_20min_eeg.npz")
	v.SetDefault("model.path", "configs/classifier.yaml")

	v.SetDefault("server.addr", ":8765")
	v.SetDefault("server.ws_path", "/ws")
	v.SetDefault("server.health_path", "/healthz")
	v.SetDefault("server.write_wait", connection.DefaultWSWriteWait.String())
	v.SetDefault("server.pong_wait", connection.DefaultWSPongWait.String())
	v.SetDefault("server.ping_period", connection.DefaultWSPingPeriod.String())
	v.SetDefault("server.max_sessions_per_ip", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logging.FormatText)

	v.SetDefault("trace.exporter", trace.ExporterNone)
	v.SetDefault("trace.otlp_endpoint", "localhost:4317")
	v.SetDefault("trace.sampling_rate", 1.0)
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}
	if len(cfg.Bands) == 0 {
		cfg.Bands = []dsp.Band{dsp.Beta}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return invalid("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.ChunkLen <= 0 {
		return invalid("chunk_len must be positive, got %d", c.ChunkLen)
	}
	if c.Verdict.WindowChunks < 1 {
		return invalid("verdict.window_chunks must be at least 1, got %d", c.Verdict.WindowChunks)
	}

	nyq := float64(c.SampleRate) / 2
	if c.Filter.Order < 1 {
		return invalid("filter.order must be at least 1, got %d", c.Filter.Order)
	}
	if !(c.Filter.LowHz > 0 && c.Filter.LowHz < c.Filter.HighHz && c.Filter.HighHz < nyq) {
		return invalid("filter passband [%g, %g] must satisfy 0 < low < high < %g",
			c.Filter.LowHz, c.Filter.HighHz, nyq)
	}
	// Zero-phase filtering pads 3*(2*order+1) samples on each side
	if pad := 3 * (2*c.Filter.Order + 1); c.ChunkLen <= pad {
		return invalid("chunk_len %d must exceed the filter pad length %d", c.ChunkLen, pad)
	}

	seen := make(map[string]bool, len(c.Bands))
	for i, b := range c.Bands {
		if b.Name == "" {
			return invalid("band %d has no name", i)
		}
		if seen[b.Name] {
			return invalid("band %q is declared twice", b.Name)
		}
		seen[b.Name] = true
		if b.Low < 0 || b.Low > b.High {
			return invalid("band %q has invalid range [%g, %g]", b.Name, b.Low, b.High)
		}
	}

	if c.Broadcast.Tick < 0 || c.Broadcast.SendTimeout < 0 {
		return invalid("broadcast durations must not be negative")
	}
	if c.Data.Path == "" {
		return invalid("data.path is required")
	}
	if c.Server.PingPeriod <= 0 || c.Server.PingPeriod >= c.Server.PongWait {
		return invalid("server.ping_period %s must be positive and below server.pong_wait %s",
			c.Server.PingPeriod, c.Server.PongWait)
	}
	if c.Server.WriteWait <= 0 {
		return invalid("server.write_wait must be positive")
	}
	if !strings.HasPrefix(c.Server.WSPath, "/") {
		return invalid("server.ws_path must start with /, got %q", c.Server.WSPath)
	}

	switch c.Log.Format {
	case logging.FormatText, logging.FormatJSON:
	default:
		return invalid("log.format must be %q or %q, got %q", logging.FormatText, logging.FormatJSON, c.Log.Format)
	}
	switch c.Trace.Exporter {
	case trace.ExporterNone, trace.ExporterStdout, trace.ExporterOTLP:
	default:
		return invalid("trace.exporter %q is not one of none, stdout, otlp", c.Trace.Exporter)
	}
	if c.Trace.SamplingRate < 0 || c.Trace.SamplingRate > 1 {
		return invalid("trace.sampling_rate must be between 0 and 1")
	}
	return nil
}

// BandList returns a copy of the configured bands in declaration order,
// which is the feature vector order.
func (c *Config) BandList() []dsp.Band {
	return append([]dsp.Band(nil), c.Bands...)
}

// PipelineOptions maps the configuration onto pipeline options.
func (c *Config) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		SampleRate:    c.SampleRate,
		ChunkLen:      c.ChunkLen,
		WindowSize:    c.Verdict.WindowChunks,
		Bands:         c.BandList(),
		Passband:      dsp.Passband{Low: c.Filter.LowHz, High: c.Filter.HighHz},
		FilterOrder:   c.Filter.Order,
		DisplayBuffer: c.DisplayBuffer,
	}
}

// TickInterval is broadcast.tick, or one chunk's duration when unset.
func (c *Config) TickInterval() time.Duration {
	if c.Broadcast.Tick > 0 {
		return c.Broadcast.Tick
	}
	return c.PipelineOptions().ChunkDuration()
}

// ServerConfig maps the configuration onto the HTTP server's.
func (c *Config) ServerConfig() *server.Config {
	sc := server.DefaultConfig()
	sc.Addr = c.Server.Addr
	sc.Path = c.Server.WSPath
	sc.HealthPath = c.Server.HealthPath
	sc.MaxSessionsPerIP = c.Server.MaxSessionsPerIP
	sc.Session = connection.WebSocketConfig{
		WriteWait:  c.Server.WriteWait,
		PongWait:   c.Server.PongWait,
		PingPeriod: c.Server.PingPeriod,
	}
	return sc
}

// TraceConfig maps the configuration onto the tracer's.
func (c *Config) TraceConfig() *trace.Config {
	tc := trace.DefaultConfig()
	tc.ExporterType = c.Trace.Exporter
	tc.OTLPEndpoint = c.Trace.OTLPEndpoint
	tc.SamplingRate = c.Trace.SamplingRate
	return tc
}
