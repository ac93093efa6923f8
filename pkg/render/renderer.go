// Package render adapts viewer frames to concrete frontends. Drawing code
// receives a RenderContext rather than reading globals, so the same
// rasterizer serves every frontend and its tests.
package render

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/ggw-viewer/pkg/input"
	"github.com/opd-ai/ggw-viewer/pkg/logging"
	"github.com/opd-ai/ggw-viewer/pkg/viewer"
)

// RenderContext is passed into every drawing call.
type RenderContext struct {
	Width, Height float64
	Style         *Style
	Now           time.Time
}

// NewRenderContext describes the frame f drawn with style.
func NewRenderContext(f *viewer.Frame, style *Style) RenderContext {
	return RenderContext{Width: f.Width, Height: f.Height, Style: style, Now: f.Now}
}

// NullRenderer is the headless frontend. It delivers no input and logs one
// debug line per frame.
type NullRenderer struct {
	logger *logging.Logger
	events chan input.Event
	frames atomic.Int64
	once   sync.Once
}

// NewNullRenderer creates a headless frontend.
func NewNullRenderer(logger *logging.Logger) *NullRenderer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &NullRenderer{
		logger: logger.With("component", "render", "frontend", "headless"),
		events: make(chan input.Event),
	}
}

// Events implements viewer.Frontend. The channel is closed by Close.
func (d *NullRenderer) Events() <-chan input.Event {
	return d.events
}

// Draw implements viewer.Frontend.
func (d *NullRenderer) Draw(f *viewer.Frame) {
	n := d.frames.Add(1)
	if f == nil {
		d.logger.Debug(context.Background(), "Draw called with nil frame")
		return
	}
	entities := 0
	if f.Snapshot != nil {
		entities = len(f.Snapshot.Entities)
	}
	d.logger.Debug(context.Background(), "frame",
		"frame", n,
		"mode", f.Mode.String(),
		"entities", entities,
		"selection", f.Selection.String(),
		"status", f.Status,
	)
}

// Frames is the number of frames drawn.
func (d *NullRenderer) Frames() int64 {
	return d.frames.Load()
}

// Close implements viewer.Frontend.
func (d *NullRenderer) Close() error {
	d.once.Do(func() { close(d.events) })
	return nil
}
