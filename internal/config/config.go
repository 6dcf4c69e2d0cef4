package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"trafficview/pkg/model"
)

// Config is the viewer's full runtime configuration.
type Config struct {
	Engine     *EngineConfig          `yaml:"engine"`
	Stream     *StreamConfig          `yaml:"stream"`
	Canvas     *CanvasConfig          `yaml:"canvas"`
	Viewer     *ViewerConfig          `yaml:"viewer"`
	Recorder   *RecorderConfig        `yaml:"recorder"`
	Simulation model.SimulationConfig `yaml:"simulation"`
}

// EngineConfig locates the remote simulation engine.
type EngineConfig struct {
	// BaseURL is the engine's HTTP surface, e.g. "http://localhost:8000".
	BaseURL string `yaml:"base_url"`
	// WSURL is the engine's WebSocket surface. Derived from BaseURL when
	// empty.
	WSURL string `yaml:"ws_url"`
	// RequestTimeout bounds every control call.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StreamConfig tunes the streaming-channel lifecycle.
type StreamConfig struct {
	ReconnectDelay   time.Duration `yaml:"reconnect_delay"`
	AdvanceInterval  time.Duration `yaml:"advance_interval"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	PollSteps        int           `yaml:"poll_steps"`
}

// CanvasConfig sizes the render surface.
type CanvasConfig struct {
	Width       int           `yaml:"width"`
	Height      int           `yaml:"height"`
	BlinkPeriod time.Duration `yaml:"blink_period"`
	FrameRate   int           `yaml:"frame_rate"`
}

// ViewerConfig configures the local HTTP surface.
type ViewerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RecorderConfig configures the local flight recorder. An empty path
// disables recording.
type RecorderConfig struct {
	Path string `yaml:"path"`
}

// DefaultConfig returns the production defaults: a local engine, the spec
// timing values and an 800x600 surface.
func DefaultConfig() *Config {
	return &Config{
		Engine: &EngineConfig{
			BaseURL:        "http://localhost:8000",
			RequestTimeout: 10 * time.Second,
		},
		Stream: &StreamConfig{
			ReconnectDelay:   2 * time.Second,
			AdvanceInterval:  100 * time.Millisecond,
			HandshakeTimeout: 10 * time.Second,
			PollInterval:     500 * time.Millisecond,
			PollSteps:        1,
		},
		Canvas: &CanvasConfig{
			Width:       800,
			Height:      600,
			BlinkPeriod: time.Second,
			FrameRate:   10,
		},
		Viewer: &ViewerConfig{
			Host:         "0.0.0.0",
			Port:         8090,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0, // the motion stream writes indefinitely
		},
		Recorder:   &RecorderConfig{Path: "./trafficview.db"},
		Simulation: model.DefaultSimulationConfig(),
	}
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.Engine == nil || c.Engine.BaseURL == "" {
		return fmt.Errorf("engine base URL is required")
	}
	if c.Engine.RequestTimeout < 0 {
		return fmt.Errorf("engine request timeout cannot be negative")
	}
	if c.Stream == nil {
		return fmt.Errorf("stream configuration is required")
	}
	if c.Stream.ReconnectDelay <= 0 {
		return fmt.Errorf("stream reconnect delay must be positive")
	}
	if c.Stream.AdvanceInterval <= 0 {
		return fmt.Errorf("stream advance interval must be positive")
	}
	if c.Stream.PollInterval <= 0 {
		return fmt.Errorf("stream poll interval must be positive")
	}
	if c.Canvas == nil || c.Canvas.Width <= 0 || c.Canvas.Height <= 0 {
		return fmt.Errorf("canvas dimensions must be positive")
	}
	if c.Canvas.FrameRate <= 0 {
		return fmt.Errorf("canvas frame rate must be positive")
	}
	if c.Viewer == nil {
		return fmt.Errorf("viewer configuration is required")
	}
	if c.Viewer.Port <= 0 || c.Viewer.Port > 65535 {
		return fmt.Errorf("viewer port must be between 1 and 65535")
	}
	if c.Viewer.Host == "" {
		return fmt.Errorf("viewer host cannot be empty")
	}
	if err := c.Simulation.Validate(); err != nil {
		return fmt.Errorf("simulation config: %w", err)
	}
	return nil
}

// WebSocketURL returns the engine's WebSocket base, deriving it from the
// HTTP base when not set explicitly.
func (c *Config) WebSocketURL() string {
	if c.Engine.WSURL != "" {
		return strings.TrimRight(c.Engine.WSURL, "/")
	}
	ws := c.Engine.BaseURL
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	return strings.TrimRight(ws, "/")
}

// LoadFromEnv overlays TRAFFICVIEW_* environment variables onto the
// defaults. Unparseable values keep the default rather than failing.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("TRAFFICVIEW_ENGINE_URL"); v != "" {
		cfg.Engine.BaseURL = v
	}
	if v := os.Getenv("TRAFFICVIEW_ENGINE_WS_URL"); v != "" {
		cfg.Engine.WSURL = v
	}
	if v := os.Getenv("TRAFFICVIEW_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.RequestTimeout = d
		}
	}
	if v := os.Getenv("TRAFFICVIEW_RECONNECT_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Stream.ReconnectDelay = d
		}
	}
	if v := os.Getenv("TRAFFICVIEW_ADVANCE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Stream.AdvanceInterval = d
		}
	}
	if v := os.Getenv("TRAFFICVIEW_VIEWER_HOST"); v != "" {
		cfg.Viewer.Host = v
	}
	if v := os.Getenv("TRAFFICVIEW_VIEWER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Viewer.Port = p
		}
	}
	if v := os.Getenv("TRAFFICVIEW_RECORDER_PATH"); v != "" {
		cfg.Recorder.Path = v
	}
	if v := os.Getenv("TRAFFICVIEW_CANVAS_WIDTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Canvas.Width = n
		}
	}
	if v := os.Getenv("TRAFFICVIEW_CANVAS_HEIGHT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Canvas.Height = n
		}
	}
	return cfg
}

// LoadFromFile reads a YAML configuration file over the defaults and
// validates the result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

// LoadWithPrecedence resolves the effective configuration: file over
// environment over defaults. A missing or broken file falls back silently;
// environment and defaults still produce a runnable viewer.
func LoadWithPrecedence(path string) *Config {
	cfg := LoadFromEnv()
	if path != "" {
		if fileCfg, err := LoadFromFile(path); err == nil {
			cfg = fileCfg
		}
	}
	return cfg
}
