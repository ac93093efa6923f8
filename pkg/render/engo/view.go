// pkg/render/engo/view.go
package engo

import (
	"github.com/EngoEngine/engo/common"

	"github.com/opd-ai/ggw-viewer/pkg/geom"
	"github.com/opd-ai/ggw-viewer/pkg/interaction"
	"github.com/opd-ai/ggw-viewer/pkg/protocol"
	"github.com/opd-ai/ggw-viewer/pkg/render"
	"github.com/opd-ai/ggw-viewer/pkg/viewer"
)

const (
	minBodyPx   = 10
	minPlanetPx = 2
	trailDotPx  = 2
)

// Painter turns frames into pooled shapes.
type Painter struct {
	shapes *Shapes
	style  *render.Style
	sprite func(protocol.BodyType) common.Drawable
}

// NewPainter draws with style into shapes. sprite supplies body sprites;
// it may be nil, or return nil, in which case bodies are drawn as discs.
func NewPainter(shapes *Shapes, style *render.Style, sprite func(protocol.BodyType) common.Drawable) *Painter {
	if style == nil {
		style = render.DefaultStyle()
	}
	return &Painter{shapes: shapes, style: style, sprite: sprite}
}

// Paint replaces the previous frame's shapes with f.
func (p *Painter) Paint(f *viewer.Frame) {
	p.shapes.Begin()
	if f.Snapshot != nil {
		switch f.Mode {
		case interaction.ViewInterior:
			p.interior(f)
		default:
			p.orbit(f)
		}
	}
	p.hud(f)
	p.shapes.End()
}

func (p *Painter) orbit(f *viewer.Frame) {
	snap, proj, st := f.Snapshot, f.Orbit, p.style
	c := proj.WorldToScreen(geom.Vec2{})
	cx, cy := float32(c.X), float32(c.Y)

	ring := func(meters float64, name string) {
		px := proj.MetersToPixels(meters)
		if proj.VisibleRing(px) {
			p.shapes.Ring(layerWorld, cx, cy, float32(px), 1, st.Color(name))
		}
	}
	if snap.DespawnRadius > 0 {
		ring(snap.DespawnRadius, "ring_despawn")
	}
	if snap.GravityWellRadius > 0 {
		ring(snap.GravityWellRadius, "ring_gravity")
	}

	planet := max(float32(proj.MetersToPixels(snap.PlanetRadius)), minPlanetPx)
	outline := st.Color("planet_outline")
	if f.Selection.Kind == interaction.SelectCentralBody {
		outline = st.Color("highlight")
	}
	p.shapes.Circle(layerWorld, cx, cy, planet, st.Color("planet_fill"))
	p.shapes.Ring(layerWorld, cx, cy, planet, 2, outline)

	w, h := float32(f.Width), float32(f.Height)
	trail := st.Color("trail")
	for _, points := range f.Trails {
		for _, pt := range points {
			s := proj.WorldToScreen(pt)
			x, y := float32(s.X), float32(s.Y)
			if x < 0 || y < 0 || x > w || y > h {
				continue
			}
			p.shapes.Rect(layerWorld, x-trailDotPx/2, y-trailDotPx/2, trailDotPx, trailDotPx, trail)
		}
	}

	for _, e := range snap.Entities {
		s := proj.WorldToScreen(e.Position)
		x, y := float32(s.X), float32(s.Y)
		size := max(2*float32(proj.MetersToPixels(e.Radius)), minBodyPx)
		if x < -size || y < -size || x > w+size || y > h+size {
			continue
		}
		p.body(e.Type, x, y, size)
		if f.Selection.Kind == interaction.SelectEntity && f.Selection.ID == e.ID {
			p.shapes.Ring(layerMarks, x, y, size/2+4, 2, st.Color("highlight"))
		}
	}
}

func (p *Painter) body(t protocol.BodyType, x, y, size float32) {
	col := p.style.BodyColor(t)
	if p.sprite != nil {
		if d := p.sprite(t); d != nil {
			p.shapes.Sprite(layerMarks, d, x-size/2, y-size/2, size, size, col)
			return
		}
	}
	p.shapes.Circle(layerMarks, x, y, size/2, col)
}

func (p *Painter) interior(f *viewer.Frame) {
	st := p.style
	in := f.Snapshot.Interior
	if in == nil {
		msg := "No interior data"
		x := (float32(f.Width) - float32(len(msg))*charWidth) / 2
		p.shapes.Text(layerLabels, x, float32(f.Height)/2, msg, st.Color("fg_dim"))
		return
	}
	proj := f.Tiles
	ts := float32(proj.TileSize)
	corner := func(t geom.TilePos) (float32, float32) {
		s := proj.TileToScreen(t)
		return float32(s.X), float32(s.Y)
	}

	for y := 0; y < in.Height; y++ {
		for x := 0; x < in.Width; x++ {
			pos := geom.TilePos{X: x, Y: y}
			t := in.TileAt(pos).Type
			if t == protocol.TileEmpty {
				continue
			}
			sx, sy := corner(pos)
			p.shapes.Rect(layerWorld, sx+0.5, sy+0.5, ts-1, ts-1, st.TileColor(t))
		}
	}

	for _, d := range in.Devices {
		name := "device"
		if !d.Online {
			name = "device_dim"
		}
		sx, sy := corner(d.Pos)
		dw, dh := float32(max(d.W, 1))*ts, float32(max(d.H, 1))*ts
		p.shapes.Rect(layerMarks, sx+2, sy+2, dw-4, dh-4, st.Color(name))
		label := st.DeviceLabel(d.Kind)
		if float32(len(label))*charWidth <= dw {
			p.shapes.Text(layerLabels, sx+(dw-float32(len(label))*charWidth)/2, sy+(dh-lineHeight)/2, label, st.Color("bg"))
		}
	}

	if in.Pawn != nil {
		sx, sy := corner(in.Pawn.Pos)
		p.shapes.Circle(layerMarks, sx+ts/2, sy+ts/2, ts*0.35, st.Color("pawn"))
	}

	switch f.Selection.Kind {
	case interaction.SelectTile, interaction.SelectDevice:
		sx, sy := corner(f.Selection.Tile)
		p.shapes.Outline(layerLabels, sx, sy, ts, ts, 2, st.Color("highlight"))
	}
}
