// pkg/camera/tileview.go
package camera

import (
	"math"

	"github.com/opd-ai/ggw-viewer/pkg/geom"
	"github.com/opd-ai/ggw-viewer/pkg/protocol"
)

// TileOptions configures a TileView.
type TileOptions struct {
	ZoomMin  float64
	ZoomMax  float64
	ZoomStep float64
	Margin   float64 // pixels reserved around the grid for panels
	MinTile  float64 // smallest base tile size in pixels
}

// DefaultTileOptions are the interior view settings.
var DefaultTileOptions = TileOptions{
	ZoomMin:  0.5,
	ZoomMax:  4,
	ZoomStep: DefaultZoomStep,
	Margin:   120,
	MinTile:  8,
}

// TileView maps interior tile coordinates to pixels. The view is centered on
// the pawn when there is one, otherwise on the middle of the grid.
type TileView struct {
	opts          TileOptions
	width, height float64

	gridW, gridH int
	baseTile     float64
	zoom         float64
	focus        geom.Vec2 // tile-space point drawn at the viewport center
}

// NewTileView creates a view for a width×height pixel viewport.
func NewTileView(width, height float64, opts TileOptions) *TileView {
	if opts.ZoomStep <= 1 {
		opts.ZoomStep = DefaultZoomStep
	}
	if opts.ZoomMax < opts.ZoomMin {
		opts.ZoomMax = opts.ZoomMin
	}
	return &TileView{opts: opts, width: width, height: height, zoom: 1}
}

// SetViewport records a resized window; the base tile size is recomputed on
// the next Layout.
func (v *TileView) SetViewport(width, height float64) {
	if width != v.width || height != v.height {
		v.width, v.height = width, height
		v.gridW, v.gridH = 0, 0
	}
}

// Layout fits the grid to the viewport (once per grid size) and refocuses on
// the pawn.
func (v *TileView) Layout(in *protocol.Interior) {
	if in == nil {
		return
	}
	if in.Width != v.gridW || in.Height != v.gridH {
		v.gridW, v.gridH = in.Width, in.Height
		usableW := v.width - 2*v.opts.Margin
		usableH := v.height - 2*v.opts.Margin
		fit := math.Min(usableW/float64(in.Width), usableH/float64(in.Height))
		v.baseTile = math.Max(v.opts.MinTile, math.Floor(fit))
	}
	if in.Pawn != nil {
		v.focus = geom.Vec2{X: float64(in.Pawn.Pos.X) + 0.5, Y: float64(in.Pawn.Pos.Y) + 0.5}
	} else {
		v.focus = geom.Vec2{X: float64(in.Width) / 2, Y: float64(in.Height) / 2}
	}
}

// TileSize is the current edge length of one tile in pixels.
func (v *TileView) TileSize() float64 {
	return v.baseTile * v.zoom
}

// Zoom returns the current zoom factor.
func (v *TileView) Zoom() float64 {
	return v.zoom
}

// ZoomIn multiplies zoom by the step, clamped to the configured range.
func (v *TileView) ZoomIn() {
	v.setZoom(v.zoom * v.opts.ZoomStep)
}

// ZoomOut divides zoom by the step, clamped to the configured range.
func (v *TileView) ZoomOut() {
	v.setZoom(v.zoom / v.opts.ZoomStep)
}

func (v *TileView) setZoom(z float64) {
	v.zoom = math.Max(v.opts.ZoomMin, math.Min(v.opts.ZoomMax, z))
}

// Projection snapshots the current transform.
func (v *TileView) Projection() TileProjection {
	return TileProjection{
		Focus:    v.focus,
		TileSize: v.TileSize(),
		Width:    v.width,
		Height:   v.height,
		GridW:    v.gridW,
		GridH:    v.gridH,
	}
}

// ScreenToTile maps a pixel to the tile under it.
func (v *TileView) ScreenToTile(s geom.Vec2) (geom.TilePos, bool) {
	return v.Projection().ScreenToTile(s)
}

// TileProjection is an immutable copy of the TileView transform.
type TileProjection struct {
	Focus        geom.Vec2
	TileSize     float64
	Width        float64
	Height       float64
	GridW, GridH int
}

// TileToScreen returns the top-left pixel of tile p.
func (p TileProjection) TileToScreen(t geom.TilePos) geom.Vec2 {
	return geom.Vec2{
		X: p.Width/2 + (float64(t.X)-p.Focus.X)*p.TileSize,
		Y: p.Height/2 + (float64(t.Y)-p.Focus.Y)*p.TileSize,
	}
}

// ScreenToTile maps a pixel to the tile under it; false when the pixel is
// outside the grid.
func (p TileProjection) ScreenToTile(s geom.Vec2) (geom.TilePos, bool) {
	if p.TileSize <= 0 {
		return geom.TilePos{}, false
	}
	t := geom.TilePos{
		X: int(math.Floor((s.X-p.Width/2)/p.TileSize + p.Focus.X)),
		Y: int(math.Floor((s.Y-p.Height/2)/p.TileSize + p.Focus.Y)),
	}
	if t.X < 0 || t.Y < 0 || t.X >= p.GridW || t.Y >= p.GridH {
		return t, false
	}
	return t, true
}
