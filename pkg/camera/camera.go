// pkg/camera/camera.go

// Package camera maps simulation coordinates to the viewport. Camera handles
// the orbital view (meters, Y up); TileView handles the interior grid.
package camera

import (
	"math"

	"github.com/opd-ai/ggw-viewer/pkg/geom"
	"github.com/opd-ai/ggw-viewer/pkg/protocol"
)

// Defaults for Options.
const (
	DefaultZoomMin  = 1e-4
	DefaultZoomStep = 1.1

	fitFraction  = 0.9
	minBaseScale = 1e-12
)

// Options configures a Camera.
type Options struct {
	ZoomMin  float64
	ZoomStep float64
}

func (o Options) withDefaults() Options {
	if o.ZoomMin <= 0 {
		o.ZoomMin = DefaultZoomMin
	}
	if o.ZoomStep <= 1 {
		o.ZoomStep = DefaultZoomStep
	}
	return o
}

// Projection is an immutable copy of the camera transform, handed to
// renderers so they never touch the live Camera.
type Projection struct {
	Center geom.Vec2
	Scale  float64 // pixels per meter, base scale times zoom
	Width  float64
	Height float64
}

// WorldToScreen maps meters to pixels.
func (p Projection) WorldToScreen(w geom.Vec2) geom.Vec2 {
	return geom.Vec2{
		X: p.Width/2 + (w.X-p.Center.X)*p.Scale,
		Y: p.Height/2 - (w.Y-p.Center.Y)*p.Scale,
	}
}

// ScreenToWorld is the inverse of WorldToScreen. With a zero scale it
// returns the center.
func (p Projection) ScreenToWorld(s geom.Vec2) geom.Vec2 {
	if p.Scale == 0 {
		return p.Center
	}
	return geom.Vec2{
		X: p.Center.X + (s.X-p.Width/2)/p.Scale,
		Y: p.Center.Y - (s.Y-p.Height/2)/p.Scale,
	}
}

// MetersToPixels converts a length, never returning less than one pixel.
func (p Projection) MetersToPixels(m float64) float64 {
	return math.Max(1, m*p.Scale)
}

// VisibleRing reports whether a circle of radius r pixels is worth drawing:
// larger than a dot and not so large that its arc is effectively straight.
func (p Projection) VisibleRing(r float64) bool {
	return r > 10 && r <= 4*math.Max(p.Width, p.Height)
}

// Camera is the orbital view transform. It is owned by the viewer loop and
// is not safe for concurrent use.
type Camera struct {
	width, height float64

	baseScale   float64
	established bool

	zoom     float64
	zoomMin  float64
	zoomMax  float64
	zoomStep float64

	center geom.Vec2

	following bool
	followID  int64
	followPos geom.Vec2
	offset    geom.Vec2

	panning bool
	panLast geom.Vec2
}

// New creates a camera for a width×height pixel viewport.
func New(width, height float64, opts Options) *Camera {
	opts = opts.withDefaults()
	return &Camera{
		width:    width,
		height:   height,
		zoom:     1,
		zoomMin:  opts.ZoomMin,
		zoomMax:  math.Max(opts.ZoomMin, 1),
		zoomStep: opts.ZoomStep,
	}
}

// SetViewport records a resized window. The base scale is unaffected.
func (c *Camera) SetViewport(width, height float64) {
	c.width, c.height = width, height
}

// Viewport returns the viewport size in pixels.
func (c *Camera) Viewport() (width, height float64) {
	return c.width, c.height
}

// EstablishBaseScale sizes the view to the first snapshot's extent. Only the
// first call has any effect; it reports whether this call established it.
func (c *Camera) EstablishBaseScale(snap *protocol.Snapshot) bool {
	if c.established || snap == nil {
		return false
	}

	extent := snap.MaxExtent()
	if extent <= 0 || math.IsNaN(extent) || math.IsInf(extent, 0) {
		extent = 1
	}
	base := fitFraction * (math.Min(c.width, c.height) / 2) / extent
	if !(base > minBaseScale) {
		base = minBaseScale
	}

	c.baseScale = base
	c.zoom = 1
	c.zoomMax = math.Max(c.zoomMin, 1/base)
	c.zoom = c.clampZoom(c.zoom)
	c.center = geom.Vec2{}
	c.established = true
	return true
}

// Established reports whether the base scale has been set.
func (c *Camera) Established() bool {
	return c.established
}

// BaseScale returns pixels per meter at zoom 1.
func (c *Camera) BaseScale() float64 {
	return c.baseScale
}

// Zoom returns the current zoom factor.
func (c *Camera) Zoom() float64 {
	return c.zoom
}

// ZoomLimits returns the clamp range for Zoom.
func (c *Camera) ZoomLimits() (min, max float64) {
	return c.zoomMin, c.zoomMax
}

// Scale returns the combined pixels-per-meter factor.
func (c *Camera) Scale() float64 {
	return c.baseScale * c.zoom
}

// Center returns the world point at the middle of the viewport.
func (c *Camera) Center() geom.Vec2 {
	return c.center
}

// Projection snapshots the current transform.
func (c *Camera) Projection() Projection {
	return Projection{Center: c.center, Scale: c.Scale(), Width: c.width, Height: c.height}
}

// WorldToScreen maps meters to pixels with the current transform.
func (c *Camera) WorldToScreen(w geom.Vec2) geom.Vec2 {
	return c.Projection().WorldToScreen(w)
}

// ScreenToWorld maps pixels to meters with the current transform.
func (c *Camera) ScreenToWorld(s geom.Vec2) geom.Vec2 {
	return c.Projection().ScreenToWorld(s)
}

// ZoomIn multiplies zoom by the step and clamps. No-op before the base
// scale exists.
func (c *Camera) ZoomIn() {
	c.SetZoom(c.zoom * c.zoomStep)
}

// ZoomOut divides zoom by the step and clamps.
func (c *Camera) ZoomOut() {
	c.SetZoom(c.zoom / c.zoomStep)
}

// SetZoom sets and clamps the zoom factor.
func (c *Camera) SetZoom(zoom float64) {
	if !c.established {
		return
	}
	c.zoom = c.clampZoom(zoom)
}

func (c *Camera) clampZoom(zoom float64) float64 {
	if math.IsNaN(zoom) || zoom < c.zoomMin {
		return c.zoomMin
	}
	if zoom > c.zoomMax {
		return c.zoomMax
	}
	return zoom
}

// Pan shifts the view by a screen-space drag delta at the current scale.
// While following, the follow offset moves instead of the center.
func (c *Camera) Pan(delta geom.Vec2) {
	scale := c.Scale()
	if scale == 0 {
		return
	}
	shift := geom.Vec2{X: -delta.X / scale, Y: delta.Y / scale}
	if c.following {
		c.offset = c.offset.Add(shift)
		c.center = c.followPos.Add(c.offset)
		return
	}
	c.center = c.center.Add(shift)
}

// BeginPan starts a drag at screen position pos.
func (c *Camera) BeginPan(pos geom.Vec2) {
	c.panning = true
	c.panLast = pos
}

// DragTo continues a drag; ignored when no drag is active.
func (c *Camera) DragTo(pos geom.Vec2) {
	if !c.panning {
		return
	}
	c.Pan(pos.Sub(c.panLast))
	c.panLast = pos
}

// EndPan finishes a drag.
func (c *Camera) EndPan() {
	c.panning = false
}

// Panning reports whether a drag is in progress.
func (c *Camera) Panning() bool {
	return c.panning
}

// Follow tracks entity id, centering on pos now with a zero offset.
func (c *Camera) Follow(id int64, pos geom.Vec2) {
	c.following = true
	c.followID = id
	c.followPos = pos
	c.offset = geom.Vec2{}
	c.center = pos
}

// Unfollow stops tracking and resets the offset. The center stays put.
func (c *Camera) Unfollow() {
	c.following = false
	c.followID = 0
	c.offset = geom.Vec2{}
}

// Following returns the followed id, if any.
func (c *Camera) Following() (int64, bool) {
	return c.followID, c.following
}

// Offset returns the follow offset in meters.
func (c *Camera) Offset() geom.Vec2 {
	return c.offset
}

// Update recenters on the followed entity. If it vanished, follow is
// cancelled and the offset reset.
func (c *Camera) Update(snap *protocol.Snapshot) {
	if !c.following {
		return
	}
	e, ok := snap.Entity(c.followID)
	if !ok {
		c.Unfollow()
		return
	}
	c.followPos = e.Position
	c.center = e.Position.Add(c.offset)
}
