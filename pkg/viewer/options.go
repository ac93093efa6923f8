// pkg/viewer/options.go
package viewer

import (
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/opd-ai/ggw-viewer/pkg/camera"
	"github.com/opd-ai/ggw-viewer/pkg/config"
	"github.com/opd-ai/ggw-viewer/pkg/event"
	"github.com/opd-ai/ggw-viewer/pkg/interaction"
	"github.com/opd-ai/ggw-viewer/pkg/logging"
	"github.com/opd-ai/ggw-viewer/pkg/trail"
)

// Options configures a Viewer. Zero fields take the defaults below.
type Options struct {
	Width, Height   float64
	LineQueue       int
	CommandQueue    int
	FrameRate       int
	TrailLength     int
	ShutdownTimeout time.Duration
	SnapshotMaxAge  time.Duration
	// FaultLogInterval bounds how often a dropped line is logged per
	// reason. Every drop is still counted.
	FaultLogInterval time.Duration

	Camera      camera.Options
	Tiles       camera.TileOptions
	Interaction interaction.Options

	Logger   *logging.Logger
	Events   *event.Bus
	Recorder LineRecorder
	Clock    func() time.Time
	// MeterProvider defaults to the global provider.
	MeterProvider metric.MeterProvider
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		Width:            1280,
		Height:           800,
		LineQueue:        4,
		CommandQueue:     64,
		FrameRate:        30,
		TrailLength:      trail.DefaultLength,
		ShutdownTimeout:  2 * time.Second,
		SnapshotMaxAge:   5 * time.Second,
		FaultLogInterval: 5 * time.Second,
		Tiles:            camera.DefaultTileOptions,
		Interaction:      interaction.DefaultOptions(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Width <= 0 || o.Height <= 0 {
		o.Width, o.Height = d.Width, d.Height
	}
	if o.LineQueue <= 0 {
		o.LineQueue = d.LineQueue
	}
	if o.CommandQueue <= 0 {
		o.CommandQueue = d.CommandQueue
	}
	if o.FrameRate <= 0 {
		o.FrameRate = d.FrameRate
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = d.ShutdownTimeout
	}
	if o.SnapshotMaxAge <= 0 {
		o.SnapshotMaxAge = d.SnapshotMaxAge
	}
	if o.FaultLogInterval <= 0 {
		o.FaultLogInterval = d.FaultLogInterval
	}
	if o.Tiles == (camera.TileOptions{}) {
		o.Tiles = d.Tiles
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	if o.Events == nil {
		o.Events = event.NewEventBus()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Interaction.Clock == nil {
		o.Interaction.Clock = o.Clock
	}
	return o
}

// OptionsFromConfig maps loaded configuration onto viewer options. Logger,
// Events and Recorder are left for the caller.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	opts.Width = float64(cfg.Viewport.Width)
	opts.Height = float64(cfg.Viewport.Height)
	opts.LineQueue = cfg.Connection.LineQueue
	opts.CommandQueue = cfg.Connection.CommandQueue
	opts.FrameRate = cfg.Render.FrameRate
	opts.TrailLength = cfg.Trail.Length
	opts.ShutdownTimeout = cfg.ShutdownTimeout
	opts.SnapshotMaxAge = cfg.Connection.ReadTimeout

	opts.Camera = camera.Options{
		ZoomMin:  cfg.Camera.ZoomMin,
		ZoomStep: cfg.Camera.ZoomStep,
	}
	opts.Tiles = camera.TileOptions{
		ZoomMin:  cfg.Interior.ZoomMin,
		ZoomMax:  cfg.Interior.ZoomMax,
		ZoomStep: cfg.Camera.ZoomStep,
		Margin:   float64(cfg.Interior.MarginPx),
		MinTile:  float64(cfg.Interior.MinTilePx),
	}
	opts.Interaction.PickRadius = cfg.Camera.PickRadiusPx
	opts.Interaction.CentralBodyTolerance = cfg.Camera.CentralBodyTolerance
	opts.Interaction.FollowOnSelect = cfg.Camera.FollowOnSelect
	opts.Interaction.CommsLogLimit = cfg.Comms.LogLimit
	return opts
}
