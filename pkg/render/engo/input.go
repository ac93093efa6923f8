// pkg/render/engo/input.go
package engo

import (
	"github.com/EngoEngine/ecs"
	"github.com/EngoEngine/engo"

	"github.com/opd-ai/ggw-viewer/pkg/geom"
	"github.com/opd-ai/ggw-viewer/pkg/input"
)

// binding maps a named engo button onto the event it produces.
type binding struct {
	name  string
	keys  []engo.Key
	event input.Event
}

var bindings = []binding{
	{"up", []engo.Key{engo.KeyArrowUp}, input.Press(input.KeyUp)},
	{"down", []engo.Key{engo.KeyArrowDown}, input.Press(input.KeyDown)},
	{"left", []engo.Key{engo.KeyArrowLeft}, input.Press(input.KeyLeft)},
	{"right", []engo.Key{engo.KeyArrowRight}, input.Press(input.KeyRight)},
	{"enter", []engo.Key{engo.KeyEnter}, input.Press(input.KeyEnter)},
	{"space", []engo.Key{engo.KeySpace}, input.Press(input.KeySpace)},
	{"escape", []engo.Key{engo.KeyEscape}, input.Press(input.KeyEscape)},
	{"tab", []engo.Key{engo.KeyTab}, input.Press(input.KeyTab)},
	{"w", []engo.Key{engo.KeyW}, input.Rune('w')},
	{"a", []engo.Key{engo.KeyA}, input.Rune('a')},
	{"s", []engo.Key{engo.KeyS}, input.Rune('s')},
	{"d", []engo.Key{engo.KeyD}, input.Rune('d')},
	{"e", []engo.Key{engo.KeyE}, input.Rune('e')},
	{"t", []engo.Key{engo.KeyT}, input.Rune('t')},
	{"0", []engo.Key{engo.KeyZero}, input.Rune('0')},
	{"1", []engo.Key{engo.KeyOne}, input.Rune('1')},
	{"2", []engo.Key{engo.KeyTwo}, input.Rune('2')},
	{"3", []engo.Key{engo.KeyThree}, input.Rune('3')},
	{"4", []engo.Key{engo.KeyFour}, input.Rune('4')},
	{"zoomIn", []engo.Key{engo.KeyEquals}, input.Rune('=')},
	{"zoomOut", []engo.Key{engo.KeyDash}, input.Rune('-')},
}

var mouseButtons = map[engo.MouseButton]input.MouseButton{
	engo.MouseButtonLeft:   input.ButtonLeft,
	engo.MouseButtonMiddle: input.ButtonMiddle,
	engo.MouseButtonRight:  input.ButtonRight,
}

// InputSystem collects key, mouse and resize input each frame for the
// frame system to hand to the viewer.
type InputSystem struct {
	viewport *Viewport
	pressed  func(name string) bool
	mouse    func() engo.Mouse

	down    map[engo.MouseButton]bool
	last    geom.Vec2
	pending []input.Event
}

// NewInputSystem reads engo's global input state.
func NewInputSystem(vp *Viewport) *InputSystem {
	return newInputSystem(vp,
		func(name string) bool { return engo.Input.Button(name).JustPressed() },
		func() engo.Mouse { return engo.Input.Mouse },
	)
}

func newInputSystem(vp *Viewport, pressed func(string) bool, mouse func() engo.Mouse) *InputSystem {
	return &InputSystem{
		viewport: vp,
		pressed:  pressed,
		mouse:    mouse,
		down:     make(map[engo.MouseButton]bool),
	}
}

// Register binds the keyboard buttons. It needs engo's input manager and
// so runs from Scene.Setup.
func (is *InputSystem) Register() {
	for _, b := range bindings {
		engo.Input.RegisterButton(b.name, b.keys...)
	}
}

// Remove satisfies the ecs.System interface
func (is *InputSystem) Remove(basic ecs.BasicEntity) {}

// Update gathers this frame's input.
func (is *InputSystem) Update(dt float32) {
	if is.viewport != nil {
		is.pending = append(is.pending, is.viewport.Drain()...)
	}
	for _, b := range bindings {
		if is.pressed(b.name) {
			is.pending = append(is.pending, b.event)
		}
	}
	is.pending = append(is.pending, is.translateMouse(is.mouse())...)
}

// Drain returns the events gathered since the last call.
func (is *InputSystem) Drain() []input.Event {
	out := is.pending
	is.pending = nil
	return out
}

// translateMouse turns engo's per-frame mouse state into button
// transitions, motion and wheel events.
func (is *InputSystem) translateMouse(m engo.Mouse) []input.Event {
	var out []input.Event
	pos := geom.V(float64(m.X), float64(m.Y))

	if m.ScrollY != 0 {
		out = append(out, input.Wheel{Delta: float64(m.ScrollY), Pos: pos})
	}

	button, known := mouseButtons[m.Button]
	transition := false
	switch {
	case !known:
	case m.Action == engo.Press && !is.down[m.Button]:
		is.down[m.Button] = true
		transition = true
		out = append(out, input.MouseDown{Button: button, Pos: pos})
	case m.Action == engo.Release && is.down[m.Button]:
		delete(is.down, m.Button)
		transition = true
		out = append(out, input.MouseUp{Button: button, Pos: pos})
	}

	if pos != is.last {
		is.last = pos
		if !transition {
			out = append(out, input.MouseMove{Pos: pos})
		}
	}
	return out
}
