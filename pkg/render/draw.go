package render

import (
	"image/color"
	"math"

	"github.com/opd-ai/ggw-viewer/pkg/geom"
	"github.com/opd-ai/ggw-viewer/pkg/hud"
	"github.com/opd-ai/ggw-viewer/pkg/interaction"
	"github.com/opd-ai/ggw-viewer/pkg/protocol"
	"github.com/opd-ai/ggw-viewer/pkg/viewer"
)

// Glyphs for orbital bodies.
var bodyGlyphs = map[protocol.BodyType]rune{
	protocol.BodyShip:     'S',
	protocol.BodyAsteroid: 'A',
	protocol.BodyDebris:   '*',
	protocol.BodyMissile:  '!',
}

// Glyphs for interior tiles.
var tileGlyphs = map[protocol.TileType]rune{
	protocol.TileEmpty:      ' ',
	protocol.TileFloor:      '.',
	protocol.TileWall:       '#',
	protocol.TileBed:        'b',
	protocol.TileDoorClosed: '+',
	protocol.TileDoorOpen:   '/',
	protocol.TileUnknown:    '?',
}

// toCell converts virtual pixels to a cell position.
func toCell(p geom.Vec2) (int, int) {
	return int(math.Floor(p.X / CellWidth)), int(math.Floor(p.Y / CellHeight))
}

// DrawFrame rasterizes f onto c: the active view, then the panels, the
// modal and the status line on top.
func DrawFrame(c *Canvas, f *viewer.Frame, rc RenderContext) {
	st := rc.Style
	c.Clear(st.Color("bg"))
	_, rows := c.Size()

	if f.Snapshot != nil {
		switch f.Mode {
		case interaction.ViewInterior:
			drawInterior(c, f, st)
		default:
			drawOrbit(c, f, st)
		}
	}

	y := 0
	for _, p := range f.Panels {
		y += drawPanel(c, 0, y, p, st) + 1
	}
	if f.ModalPanel != nil {
		cols, _ := c.Size()
		w, h := panelSize(*f.ModalPanel)
		drawPanel(c, (cols-w)/2, (rows-h)/2, *f.ModalPanel, st)
	}

	statusColor := st.Color("fg")
	if !f.Connected {
		statusColor = st.Color("fg_warn")
	}
	c.Fill(0, rows-1, len([]rune(f.Status))+1, 1, st.Color("hud_bg"))
	c.Text(0, rows-1, f.Status, statusColor)
}

func drawOrbit(c *Canvas, f *viewer.Frame, st *Style) {
	snap, proj := f.Snapshot, f.Orbit
	cx, cy := proj.WorldToScreen(geom.Vec2{}).X/CellWidth, proj.WorldToScreen(geom.Vec2{}).Y/CellHeight

	ring := func(meters float64, r rune, name string) {
		px := proj.MetersToPixels(meters)
		if !proj.VisibleRing(px) {
			return
		}
		c.Ellipse(cx, cy, px/CellWidth, px/CellHeight, r, st.Color(name))
	}
	if snap.DespawnRadius > 0 {
		ring(snap.DespawnRadius, '·', "ring_despawn")
	}
	if snap.GravityWellRadius > 0 {
		ring(snap.GravityWellRadius, ':', "ring_gravity")
	}

	planetPx := proj.MetersToPixels(snap.PlanetRadius)
	planetColor := st.Color("planet_outline")
	if f.Selection.Kind == interaction.SelectCentralBody {
		planetColor = st.Color("highlight")
	}
	if planetPx/CellWidth < 1 {
		c.Set(int(math.Floor(cx)), int(math.Floor(cy)), 'O', planetColor)
	} else {
		c.Ellipse(cx, cy, planetPx/CellWidth, planetPx/CellHeight, 'o', planetColor)
	}

	trail := st.Color("trail")
	for _, points := range f.Trails {
		for _, p := range points {
			x, y := toCell(proj.WorldToScreen(p))
			c.Set(x, y, '.', trail)
		}
	}

	for _, e := range snap.Entities {
		glyph, ok := bodyGlyphs[e.Type]
		if !ok {
			glyph = '?'
		}
		x, y := toCell(proj.WorldToScreen(e.Position))
		if f.Selection.Kind == interaction.SelectEntity && f.Selection.ID == e.ID {
			c.SetBold(x, y, glyph, st.Color("highlight"))
			continue
		}
		c.Set(x, y, glyph, st.BodyColor(e.Type))
	}
}

func drawInterior(c *Canvas, f *viewer.Frame, st *Style) {
	in := f.Snapshot.Interior
	if in == nil {
		cols, rows := c.Size()
		msg := "No interior data"
		c.Text((cols-len(msg))/2, rows/2, msg, st.Color("fg_dim"))
		return
	}
	proj := f.Tiles
	center := func(t geom.TilePos) (int, int) {
		tl := proj.TileToScreen(t)
		return toCell(geom.V(tl.X+proj.TileSize/2, tl.Y+proj.TileSize/2))
	}

	for y := 0; y < in.Height; y++ {
		for x := 0; x < in.Width; x++ {
			pos := geom.TilePos{X: x, Y: y}
			t := in.TileAt(pos).Type
			g, ok := tileGlyphs[t]
			if !ok {
				g = '?'
			}
			cx, cy := center(pos)
			c.Set(cx, cy, g, st.TileColor(t))
		}
	}

	for _, d := range in.Devices {
		label := []rune(st.DeviceLabel(d.Kind))
		name := "device"
		if !d.Online {
			name = "device_dim"
		}
		cx, cy := center(d.Pos)
		for i, r := range label {
			if i > 0 && float64(i*CellWidth) >= float64(d.W)*proj.TileSize {
				break
			}
			c.Set(cx+i, cy, r, st.Color(name))
		}
	}

	if in.Pawn != nil {
		cx, cy := center(in.Pawn.Pos)
		c.SetBold(cx, cy, '@', st.Color("pawn"))
	}

	switch f.Selection.Kind {
	case interaction.SelectTile, interaction.SelectDevice:
		cx, cy := center(f.Selection.Tile)
		c.Fill(cx, cy, 1, 1, st.Color("highlight"))
	}
}

func panelSize(p hud.Panel) (w, h int) {
	w = len([]rune(p.Title)) + 4
	for _, l := range p.Lines {
		w = max(w, len([]rune(l))+4)
	}
	return w, len(p.Lines) + 2
}

// drawPanel draws p boxed at (x, y) and returns its height.
func drawPanel(c *Canvas, x, y int, p hud.Panel, st *Style) int {
	w, h := panelSize(p)
	c.Fill(x, y, w, h, st.Color("hud_bg"))
	c.Box(x, y, w, h, st.Color("hud_border"))
	c.Text(x+2, y, p.Title, st.Color("fg"))
	for i, line := range p.Lines {
		fg := st.Color("fg")
		if i == p.Highlight {
			fg = st.Color("highlight")
			c.Text(x+1, y+1+i, ">", fg)
		}
		c.Text(x+2, y+1+i, line, fg)
	}
	return h
}

// rgb unpacks a palette color for frontends that take components.
func rgb(col color.RGBA) (r, g, b int32) {
	return int32(col.R), int32(col.G), int32(col.B)
}
