// pkg/config/config.go

// Package config loads viewer settings from defaults, an optional JSON or
// YAML file and GGW_-prefixed environment variables, in that order of
// precedence (lowest first).
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalid is wrapped by every error Validate returns.
var ErrInvalid = errors.New("invalid configuration")

// EnvPrefix is prepended to environment overrides: connection.address is
// read from GGW_CONNECTION_ADDRESS.
const EnvPrefix = "GGW"

// Frontends accepted by render.frontend.
const (
	FrontendTerminal = "terminal"
	FrontendWindow   = "window"
	FrontendHeadless = "headless"
)

// Config holds every viewer setting.
type Config struct {
	Log             LogConfig        `mapstructure:"log"`
	Connection      ConnectionConfig `mapstructure:"connection"`
	Breaker         BreakerConfig    `mapstructure:"breaker"`
	Launch          LaunchConfig     `mapstructure:"launch"`
	Viewport        ViewportConfig   `mapstructure:"viewport"`
	Camera          CameraConfig     `mapstructure:"camera"`
	Trail           TrailConfig      `mapstructure:"trail"`
	Interior        InteriorConfig   `mapstructure:"interior"`
	Comms           CommsConfig      `mapstructure:"comms"`
	Render          RenderConfig     `mapstructure:"render"`
	Status          StatusConfig     `mapstructure:"status"`
	Metrics         MetricsConfig    `mapstructure:"metrics"`
	Record          string           `mapstructure:"record"`
	ShutdownTimeout time.Duration    `mapstructure:"shutdown_timeout"`
	Style           StyleConfig      `mapstructure:"style"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// ConnectionConfig controls the transport.
type ConnectionConfig struct {
	Address        string        `mapstructure:"address"`
	RetryInterval  time.Duration `mapstructure:"retry_interval"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxLineBytes   int           `mapstructure:"max_line_bytes"`
	CommandQueue   int           `mapstructure:"command_queue"`
	LineQueue      int           `mapstructure:"line_queue"`
}

// BreakerConfig controls the circuit breaker guarding dial attempts.
type BreakerConfig struct {
	MaxRequests         uint32        `mapstructure:"max_requests"`
	Interval            time.Duration `mapstructure:"interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
}

// LaunchConfig controls launch mode, where the viewer starts the
// simulation itself and talks to it over stdio.
type LaunchConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Binary      string        `mapstructure:"binary"`
	Args        []string      `mapstructure:"args"`
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
}

// ViewportConfig is the initial drawable size in pixels.
type ViewportConfig struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

// CameraConfig controls the orbit camera and picking.
type CameraConfig struct {
	ZoomMin              float64 `mapstructure:"zoom_min"`
	ZoomStep             float64 `mapstructure:"zoom_step"`
	PickRadiusPx         float64 `mapstructure:"pick_radius_px"`
	CentralBodyTolerance float64 `mapstructure:"central_body_tolerance"`
	FollowOnSelect       bool    `mapstructure:"follow_on_select"`
}

// TrailConfig controls the per-entity position history.
type TrailConfig struct {
	Length int `mapstructure:"length"`
}

// InteriorConfig controls the tile view.
type InteriorConfig struct {
	ZoomMin   float64 `mapstructure:"zoom_min"`
	ZoomMax   float64 `mapstructure:"zoom_max"`
	MarginPx  int     `mapstructure:"margin_px"`
	MinTilePx int     `mapstructure:"min_tile_px"`
}

// CommsConfig controls the nav console comms log.
type CommsConfig struct {
	LogLimit int `mapstructure:"log_limit"`
}

// RenderConfig selects and tunes the frontend.
type RenderConfig struct {
	Frontend  string `mapstructure:"frontend"`
	FrameRate int    `mapstructure:"frame_rate"`
	Title     string `mapstructure:"title"`
	VSync     bool   `mapstructure:"vsync"`
}

// StatusConfig controls the optional health endpoint. An empty Addr
// disables it.
type StatusConfig struct {
	Addr string `mapstructure:"addr"`
}

// MetricsConfig controls metric export. Metrics are always recorded and
// served at /metrics on the status endpoint; File adds a periodic JSON
// export.
type MetricsConfig struct {
	File     string        `mapstructure:"file"`
	Interval time.Duration `mapstructure:"interval"`
}

// StyleConfig holds the palette and labels. Keys are matched without
// regard to case.
type StyleConfig struct {
	Colors       map[string]string `mapstructure:"colors"`
	BodyColors   map[string]string `mapstructure:"body_colors"`
	DeviceLabels map[string]string `mapstructure:"device_labels"`
}

// Load reads configuration. path may be empty, in which case only defaults
// and environment variables apply. overrides are applied last, typically
// from command-line flags.
func Load(path string, overrides map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	for key, value := range overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration produced by Load with no file,
// environment or overrides.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: defaults do not decode: %v", err))
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 32)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 14)

	v.SetDefault("connection.address", "127.0.0.1:40000")
	v.SetDefault("connection.retry_interval", "1s")
	v.SetDefault("connection.connect_timeout", "5s")
	v.SetDefault("connection.read_timeout", "30s")
	v.SetDefault("connection.write_timeout", "5s")
	v.SetDefault("connection.max_line_bytes", 4<<20)
	v.SetDefault("connection.command_queue", 64)
	v.SetDefault("connection.line_queue", 4)

	v.SetDefault("breaker.max_requests", 1)
	v.SetDefault("breaker.interval", "60s")
	v.SetDefault("breaker.timeout", "1s")
	v.SetDefault("breaker.consecutive_failures", 5)

	v.SetDefault("launch.enabled", false)
	v.SetDefault("launch.binary", "target/debug/ggw_world")
	v.SetDefault("launch.args", []string{"--stdio"})
	v.SetDefault("launch.stop_timeout", "2s")

	v.SetDefault("viewport.width", 900)
	v.SetDefault("viewport.height", 900)

	v.SetDefault("camera.zoom_min", 1e-4)
	v.SetDefault("camera.zoom_step", 1.1)
	v.SetDefault("camera.pick_radius_px", 12.0)
	v.SetDefault("camera.central_body_tolerance", 1.02)
	v.SetDefault("camera.follow_on_select", true)

	v.SetDefault("trail.length", 300)

	v.SetDefault("interior.zoom_min", 0.5)
	v.SetDefault("interior.zoom_max", 4.0)
	v.SetDefault("interior.margin_px", 120)
	v.SetDefault("interior.min_tile_px", 8)

	v.SetDefault("comms.log_limit", 14)

	v.SetDefault("render.frontend", FrontendTerminal)
	v.SetDefault("render.frame_rate", 30)
	v.SetDefault("render.title", "GGW Viewer")
	v.SetDefault("render.vsync", true)

	v.SetDefault("status.addr", "")
	v.SetDefault("metrics.file", "")
	v.SetDefault("metrics.interval", "30s")
	v.SetDefault("record", "")
	v.SetDefault("shutdown_timeout", "2s")

	v.SetDefault("style.colors", map[string]string{
		"bg":             "#020503",
		"grid":           "#003c1e",
		"floor":          "#0a1a0f",
		"wall":           "#00a046",
		"bed":            "#007850",
		"door":           "#009650",
		"door_open":      "#005a2d",
		"device":         "#00c878",
		"device_dim":     "#00783c",
		"pawn":           "#b6ffc9",
		"fg":             "#00ff66",
		"fg_dim":         "#008a3f",
		"fg_warn":        "#ffb000",
		"highlight":      "#b6ffc9",
		"trail":          "#006432",
		"planet_fill":    "#06140a",
		"planet_outline": "#00b45a",
		"ring_gravity":   "#005032",
		"ring_despawn":   "#3c5a1e",
		"hud_bg":         "#0a100c",
		"hud_border":     "#00783c",
	})
	v.SetDefault("style.body_colors", map[string]string{
		"ship":     "#00ff66",
		"asteroid": "#00c878",
		"debris":   "#50dc96",
		"missile":  "#00ffaa",
	})
	v.SetDefault("style.device_labels", map[string]string{
		"reactoruranium": "RX",
		"tank":           "TK",
		"dispenser":      "DS",
		"light":          "LT",
		"doordevice":     "DR",
		"beddevice":      "BD",
		"transponder":    "TR",
		"shipcomputer":   "SC",
		"navstation":     "NV",
		"foodgenerator":  "FG",
	})
}

// Validate checks ranges and required values. Every problem found is
// reported; each wraps ErrInvalid.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if !c.Launch.Enabled {
		if _, _, err := net.SplitHostPort(c.Connection.Address); err != nil {
			fail("connection.address %q: %v", c.Connection.Address, err)
		}
	} else if c.Launch.Binary == "" {
		fail("launch.binary must be set when launch.enabled is true")
	}
	if c.Connection.RetryInterval <= 0 {
		fail("connection.retry_interval must be positive, got %v", c.Connection.RetryInterval)
	}
	if c.Connection.ConnectTimeout < 0 || c.Connection.ReadTimeout < 0 || c.Connection.WriteTimeout <= 0 {
		fail("connection timeouts must not be negative and write_timeout must be positive")
	}
	if c.Connection.MaxLineBytes < 1024 {
		fail("connection.max_line_bytes must be at least 1024, got %d", c.Connection.MaxLineBytes)
	}
	if c.Connection.CommandQueue < 1 || c.Connection.LineQueue < 1 {
		fail("connection queues must hold at least one item")
	}
	if c.Breaker.ConsecutiveFailures == 0 {
		fail("breaker.consecutive_failures must be positive")
	}
	if c.Breaker.Timeout <= 0 || c.Breaker.Timeout > c.Connection.RetryInterval {
		fail("breaker.timeout must be positive and at most connection.retry_interval (%v), got %v",
			c.Connection.RetryInterval, c.Breaker.Timeout)
	}
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		fail("viewport must be positive, got %dx%d", c.Viewport.Width, c.Viewport.Height)
	}
	if c.Camera.ZoomMin <= 0 {
		fail("camera.zoom_min must be positive, got %g", c.Camera.ZoomMin)
	}
	if c.Camera.ZoomStep <= 1 {
		fail("camera.zoom_step must be greater than 1, got %g", c.Camera.ZoomStep)
	}
	if c.Camera.PickRadiusPx <= 0 || c.Camera.CentralBodyTolerance < 1 {
		fail("camera.pick_radius_px must be positive and central_body_tolerance at least 1")
	}
	if c.Trail.Length < 1 {
		fail("trail.length must be positive, got %d", c.Trail.Length)
	}
	if c.Interior.ZoomMin <= 0 || c.Interior.ZoomMax < c.Interior.ZoomMin {
		fail("interior zoom range [%g, %g] is empty", c.Interior.ZoomMin, c.Interior.ZoomMax)
	}
	if c.Interior.MinTilePx < 1 || c.Interior.MarginPx < 0 {
		fail("interior.min_tile_px must be positive and margin_px not negative")
	}
	if c.Comms.LogLimit < 1 {
		fail("comms.log_limit must be positive, got %d", c.Comms.LogLimit)
	}
	switch strings.ToLower(c.Render.Frontend) {
	case FrontendTerminal, FrontendWindow, FrontendHeadless:
	default:
		fail("render.frontend %q is not one of terminal, window, headless", c.Render.Frontend)
	}
	if c.Render.FrameRate < 1 || c.Render.FrameRate > 240 {
		fail("render.frame_rate must be between 1 and 240, got %d", c.Render.FrameRate)
	}
	if c.Status.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Status.Addr); err != nil {
			fail("status.addr %q: %v", c.Status.Addr, err)
		}
	}
	if c.Metrics.File != "" && c.Metrics.Interval <= 0 {
		fail("metrics.interval must be positive when metrics.file is set, got %v", c.Metrics.Interval)
	}
	if c.ShutdownTimeout <= 0 {
		fail("shutdown_timeout must be positive, got %v", c.ShutdownTimeout)
	}
	for name, hex := range c.Style.Colors {
		if _, err := ParseColor(hex); err != nil {
			fail("style.colors.%s: %v", name, err)
		}
	}
	for name, hex := range c.Style.BodyColors {
		if _, err := ParseColor(hex); err != nil {
			fail("style.body_colors.%s: %v", name, err)
		}
	}

	return errors.Join(errs...)
}
