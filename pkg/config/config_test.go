// pkg/config/config_test.go
package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "", cfg.Log.File)
	assert.Equal(t, 32, cfg.Log.MaxSizeMB)
	assert.Equal(t, "127.0.0.1:40000", cfg.Connection.Address)
	assert.Equal(t, time.Second, cfg.Connection.RetryInterval)
	assert.Equal(t, 30*time.Second, cfg.Connection.ReadTimeout)
	assert.Equal(t, 5*time.Second, cfg.Connection.WriteTimeout)
	assert.Equal(t, 4194304, cfg.Connection.MaxLineBytes)
	assert.Equal(t, 64, cfg.Connection.CommandQueue)
	assert.Equal(t, 4, cfg.Connection.LineQueue)
	assert.Equal(t, uint32(1), cfg.Breaker.MaxRequests)
	assert.Equal(t, uint32(5), cfg.Breaker.ConsecutiveFailures)
	assert.Equal(t, 60*time.Second, cfg.Breaker.Interval)
	assert.Equal(t, time.Second, cfg.Breaker.Timeout)
	assert.False(t, cfg.Launch.Enabled)
	assert.Equal(t, "target/debug/ggw_world", cfg.Launch.Binary)
	assert.Equal(t, []string{"--stdio"}, cfg.Launch.Args)
	assert.Equal(t, 2*time.Second, cfg.Launch.StopTimeout)
	assert.Equal(t, 900, cfg.Viewport.Width)
	assert.Equal(t, 900, cfg.Viewport.Height)
	assert.Equal(t, 1e-4, cfg.Camera.ZoomMin)
	assert.Equal(t, 1.1, cfg.Camera.ZoomStep)
	assert.Equal(t, 12.0, cfg.Camera.PickRadiusPx)
	assert.Equal(t, 1.02, cfg.Camera.CentralBodyTolerance)
	assert.True(t, cfg.Camera.FollowOnSelect)
	assert.Equal(t, 300, cfg.Trail.Length)
	assert.Equal(t, 0.5, cfg.Interior.ZoomMin)
	assert.Equal(t, 4.0, cfg.Interior.ZoomMax)
	assert.Equal(t, 120, cfg.Interior.MarginPx)
	assert.Equal(t, 8, cfg.Interior.MinTilePx)
	assert.Equal(t, 14, cfg.Comms.LogLimit)
	assert.Equal(t, FrontendTerminal, cfg.Render.Frontend)
	assert.Equal(t, 30, cfg.Render.FrameRate)
	assert.Equal(t, "", cfg.Status.Addr)
	assert.Equal(t, "", cfg.Metrics.File)
	assert.Equal(t, 30*time.Second, cfg.Metrics.Interval)
	assert.Equal(t, 2*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "RX", cfg.Style.DeviceLabels["reactoruranium"])
	assert.Equal(t, "#020503", cfg.Style.Colors["bg"])

	require.NoError(t, cfg.Validate())
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "viewer.yaml")
	content := `
log:
  level: debug
connection:
  address: 10.0.0.5:41000
  retry_interval: 250ms
camera:
  pick_radius_px: 20
style:
  colors:
    bg: "#000000"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "10.0.0.5:41000", cfg.Connection.Address)
	assert.Equal(t, 250*time.Millisecond, cfg.Connection.RetryInterval)
	assert.Equal(t, 20.0, cfg.Camera.PickRadiusPx)
	assert.Equal(t, "#000000", cfg.Style.Colors["bg"])
	assert.Equal(t, "#00ff66", cfg.Style.Colors["fg"], "unset palette entries keep their defaults")
	assert.Equal(t, 5*time.Second, cfg.Connection.WriteTimeout)
}

func TestLoad_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "viewer.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"trail": {"length": 50}, "render": {"frontend": "headless"}}`), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Trail.Length)
	assert.Equal(t, FrontendHeadless, cfg.Render.Frontend)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("GGW_LOG_LEVEL", "warn")
	t.Setenv("GGW_CONNECTION_ADDRESS", "192.168.1.100:40001")
	t.Setenv("GGW_CONNECTION_READ_TIMEOUT", "45s")
	t.Setenv("GGW_LAUNCH_ENABLED", "true")

	path := filepath.Join(t.TempDir(), "viewer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level, "environment wins over the file")
	assert.Equal(t, "192.168.1.100:40001", cfg.Connection.Address)
	assert.Equal(t, 45*time.Second, cfg.Connection.ReadTimeout)
	assert.True(t, cfg.Launch.Enabled)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("GGW_RENDER_FRONTEND", "window")

	cfg, err := Load("", map[string]any{
		"render.frontend":    "headless",
		"launch.enabled":     true,
		"connection.address": "localhost:1",
	})
	require.NoError(t, err)

	assert.Equal(t, FrontendHeadless, cfg.Render.Frontend)
	assert.True(t, cfg.Launch.Enabled)
	assert.Equal(t, "localhost:1", cfg.Connection.Address)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"ValidConfig", func(*Config) {}, ""},
		{"BadAddress", func(c *Config) { c.Connection.Address = "nowhere" }, "connection.address"},
		{"AddressIgnoredInLaunchMode", func(c *Config) {
			c.Connection.Address = ""
			c.Launch.Enabled = true
		}, ""},
		{"LaunchWithoutBinary", func(c *Config) {
			c.Launch.Enabled = true
			c.Launch.Binary = ""
		}, "launch.binary"},
		{"ZeroRetry", func(c *Config) { c.Connection.RetryInterval = 0 }, "connection.retry_interval"},
		{"BreakerOutlastsRetry", func(c *Config) { c.Breaker.Timeout = 5 * time.Second }, "breaker.timeout"},
		{"TinyLines", func(c *Config) { c.Connection.MaxLineBytes = 10 }, "connection.max_line_bytes"},
		{"EmptyQueue", func(c *Config) { c.Connection.CommandQueue = 0 }, "connection queues"},
		{"ZeroViewport", func(c *Config) { c.Viewport.Width = 0 }, "viewport"},
		{"ZoomStepTooSmall", func(c *Config) { c.Camera.ZoomStep = 1 }, "camera.zoom_step"},
		{"ZeroTrail", func(c *Config) { c.Trail.Length = 0 }, "trail.length"},
		{"InvertedInteriorZoom", func(c *Config) { c.Interior.ZoomMax = 0.1 }, "interior zoom"},
		{"UnknownFrontend", func(c *Config) { c.Render.Frontend = "vr" }, "render.frontend"},
		{"FrameRateTooHigh", func(c *Config) { c.Render.FrameRate = 1000 }, "render.frame_rate"},
		{"BadStatusAddr", func(c *Config) { c.Status.Addr = "8080" }, "status.addr"},
		{"MetricsFileWithoutInterval", func(c *Config) {
			c.Metrics.File = "metrics.json"
			c.Metrics.Interval = 0
		}, "metrics.interval"},
		{"BadColor", func(c *Config) { c.Style.Colors["bg"] = "green" }, "style.colors.bg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid), "expected ErrInvalid, got %v", err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Trail.Length = 0
	cfg.Comms.LogLimit = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trail.length")
	assert.Contains(t, err.Error(), "comms.log_limit")
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("#00ff66")
	require.NoError(t, err)
	assert.Equal(t, uint8(0x00), c.R)
	assert.Equal(t, uint8(0xff), c.G)
	assert.Equal(t, uint8(0x66), c.B)
	assert.Equal(t, uint8(0xff), c.A)

	_, err = ParseColor("#fff")
	assert.Error(t, err)
	_, err = ParseColor("zzzzzz")
	assert.Error(t, err)
}
