// Package input defines frontend-neutral input events. Each frontend
// translates its native events into these before handing them to the viewer.
package input

import (
	"unicode"

	"github.com/opd-ai/ggw-viewer/pkg/geom"
)

// Event is one input occurrence.
type Event interface {
	isEvent()
}

// Key identifies a non-printing key. Printable keys use KeyRune.
type Key int

// Keys understood by the viewer.
const (
	KeyNone Key = iota
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyEnter
	KeySpace
	KeyEscape
	KeyTab
	KeyRune
)

// KeyPress is a key going down.
type KeyPress struct {
	Key  Key
	Rune rune
}

// Is reports whether the press is the printable rune r, ignoring case.
func (k KeyPress) Is(r rune) bool {
	return k.Key == KeyRune && unicode.ToLower(k.Rune) == unicode.ToLower(r)
}

// MouseButton identifies a pointer button.
type MouseButton int

const (
	ButtonLeft MouseButton = iota
	ButtonMiddle
	ButtonRight
)

// MouseDown is a button press at Pos (screen pixels).
type MouseDown struct {
	Button MouseButton
	Pos    geom.Vec2
}

// MouseUp is a button release at Pos.
type MouseUp struct {
	Button MouseButton
	Pos    geom.Vec2
}

// MouseMove is pointer motion to Pos.
type MouseMove struct {
	Pos geom.Vec2
}

// Wheel is a scroll. Positive Delta scrolls up (zoom in).
type Wheel struct {
	Delta float64
	Pos   geom.Vec2
}

// Resize reports a new viewport size in pixels.
type Resize struct {
	Width  float64
	Height float64
}

// Quit is a window close request.
type Quit struct{}

func (KeyPress) isEvent()  {}
func (MouseDown) isEvent() {}
func (MouseUp) isEvent()   {}
func (MouseMove) isEvent() {}
func (Wheel) isEvent()     {}
func (Resize) isEvent()    {}
func (Quit) isEvent()      {}

// Rune builds a KeyPress for a printable key.
func Rune(r rune) KeyPress {
	return KeyPress{Key: KeyRune, Rune: r}
}

// Press builds a KeyPress for a named key.
func Press(k Key) KeyPress {
	return KeyPress{Key: k}
}
