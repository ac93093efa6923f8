// pkg/render/engo/renderer.go

// Package engo is the windowed frontend. A scene owns the main loop and
// drives viewer.Step from an ECS system; everything on screen is drawn
// through pooled shape entities that are reused between frames.
package engo

import (
	"image/color"

	"github.com/EngoEngine/ecs"
	"github.com/EngoEngine/engo"
	"github.com/EngoEngine/engo/common"
)

// Layers, back to front.
const (
	layerWorld float32 = iota
	layerMarks
	layerLabels
	layerHUD
	layerHUDText
	layerModal
	layerModalText
)

// RenderAdder is the part of common.RenderSystem the pool registers new
// entities with.
type RenderAdder interface {
	Add(basic *ecs.BasicEntity, render *common.RenderComponent, space *common.SpaceComponent)
}

// Shape is one pooled renderable.
type Shape struct {
	ecs.BasicEntity
	common.RenderComponent
	common.SpaceComponent
}

// pool holds entities of a single drawable type on a single layer. The
// render system fixes an entity's shader when it is added, so a pooled
// entity never changes drawable type.
type pool struct {
	z      float32
	shapes []*Shape
	used   int
}

func (p *pool) next(adder RenderAdder, d common.Drawable) *Shape {
	if p.used < len(p.shapes) {
		s := p.shapes[p.used]
		p.used++
		s.Drawable = d
		s.Hidden = false
		return s
	}
	s := &Shape{BasicEntity: ecs.NewBasic()}
	s.Drawable = d
	s.Scale = engo.Point{X: 1, Y: 1}
	s.StartZIndex = p.z
	adder.Add(&s.BasicEntity, &s.RenderComponent, &s.SpaceComponent)
	p.shapes = append(p.shapes, s)
	p.used++
	return s
}

// hideRest hides everything not drawn this frame.
func (p *pool) hideRest() {
	for _, s := range p.shapes[p.used:] {
		s.Hidden = true
	}
}

type poolKey struct {
	kind string
	z    float32
}

// Shapes draws circles, rectangles, sprites and text into a reusable set
// of entities. Call Begin, draw, then End once per frame.
type Shapes struct {
	adder RenderAdder
	font  *common.Font
	pools map[poolKey]*pool
}

// NewShapes creates a pool that registers entities with adder. font may
// be nil when no text is drawn.
func NewShapes(adder RenderAdder, font *common.Font) *Shapes {
	return &Shapes{
		adder: adder,
		font:  font,
		pools: make(map[poolKey]*pool),
	}
}

func (s *Shapes) pool(kind string, z float32) *pool {
	key := poolKey{kind, z}
	p, ok := s.pools[key]
	if !ok {
		p = &pool{z: z}
		s.pools[key] = p
	}
	return p
}

// Begin starts a frame.
func (s *Shapes) Begin() {
	for _, p := range s.pools {
		p.used = 0
	}
}

// End hides every entity the frame did not use.
func (s *Shapes) End() {
	for _, p := range s.pools {
		p.hideRest()
	}
}

// Used returns how many entities the current frame has drawn.
func (s *Shapes) Used() int {
	n := 0
	for _, p := range s.pools {
		n += p.used
	}
	return n
}

// Allocated returns how many entities exist, drawn or hidden.
func (s *Shapes) Allocated() int {
	n := 0
	for _, p := range s.pools {
		n += len(p.shapes)
	}
	return n
}

// Circle draws a filled disc centered on (x, y).
func (s *Shapes) Circle(z float32, x, y, r float32, fill color.Color) *Shape {
	sh := s.pool("circle", z).next(s.adder, common.Circle{})
	sh.Color = fill
	sh.Position = engo.Point{X: x - r, Y: y - r}
	sh.Width, sh.Height = 2*r, 2*r
	return sh
}

// Ring outlines a circle centered on (x, y).
func (s *Shapes) Ring(z float32, x, y, r, width float32, stroke color.Color) *Shape {
	sh := s.pool("ring", z).next(s.adder, common.Circle{BorderWidth: width, BorderColor: stroke})
	sh.Color = color.Transparent
	sh.Position = engo.Point{X: x - r, Y: y - r}
	sh.Width, sh.Height = 2*r, 2*r
	return sh
}

// Rect fills a rectangle with its top-left corner at (x, y).
func (s *Shapes) Rect(z float32, x, y, w, h float32, fill color.Color) *Shape {
	sh := s.pool("rect", z).next(s.adder, common.Rectangle{})
	sh.Color = fill
	sh.Position = engo.Point{X: x, Y: y}
	sh.Width, sh.Height = w, h
	return sh
}

// Outline strokes a rectangle.
func (s *Shapes) Outline(z float32, x, y, w, h, width float32, stroke color.Color) *Shape {
	sh := s.pool("outline", z).next(s.adder, common.Rectangle{BorderWidth: width, BorderColor: stroke})
	sh.Color = color.Transparent
	sh.Position = engo.Point{X: x, Y: y}
	sh.Width, sh.Height = w, h
	return sh
}

// Sprite draws d scaled to w×h, tinted with tint.
func (s *Shapes) Sprite(z float32, d common.Drawable, x, y, w, h float32, tint color.Color) *Shape {
	sh := s.pool("sprite", z).next(s.adder, d)
	sh.Color = tint
	sh.Position = engo.Point{X: x, Y: y}
	sh.Width, sh.Height = w, h
	if dw, dh := d.Width(), d.Height(); dw > 0 && dh > 0 {
		sh.Scale = engo.Point{X: w / dw, Y: h / dh}
	}
	return sh
}

// Text writes a single line with its top-left corner at (x, y).
func (s *Shapes) Text(z float32, x, y float32, text string, fg color.Color) *Shape {
	sh := s.pool("text", z).next(s.adder, common.Text{Font: s.font, Text: text})
	sh.Color = fg
	sh.Position = engo.Point{X: x, Y: y}
	sh.Width = float32(len([]rune(text))) * charWidth
	sh.Height = lineHeight
	return sh
}
