package render

import (
	"context"
	"fmt"
	"sync"

	"github.com/gdamore/tcell/v2"

	"github.com/opd-ai/ggw-viewer/pkg/geom"
	"github.com/opd-ai/ggw-viewer/pkg/input"
	"github.com/opd-ai/ggw-viewer/pkg/logging"
	"github.com/opd-ai/ggw-viewer/pkg/viewer"
)

// Screen is the part of tcell.Screen the terminal frontend uses.
type Screen interface {
	Init() error
	Fini()
	Size() (width, height int)
	SetContent(x, y int, primary rune, combining []rune, style tcell.Style)
	Show()
	Clear()
	HideCursor()
	EnableMouse(flags ...tcell.MouseFlags)
	PollEvent() tcell.Event
}

// Terminal is the text frontend. Each cell stands for CellWidth×CellHeight
// virtual pixels, so picking and zoom work the same as in a window.
type Terminal struct {
	screen Screen
	style  *Style
	logger *logging.Logger
	canvas *Canvas

	events  chan input.Event
	buttons tcell.ButtonMask
	done    chan struct{}

	closeOnce sync.Once
}

// NewTerminal takes over the controlling terminal.
func NewTerminal(style *Style, logger *logging.Logger) (*Terminal, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("creating terminal screen: %w", err)
	}
	return NewTerminalScreen(screen, style, logger)
}

// NewTerminalScreen runs the frontend on an existing screen. The screen is
// initialised here and finalised by Close.
func NewTerminalScreen(screen Screen, style *Style, logger *logging.Logger) (*Terminal, error) {
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("initializing terminal screen: %w", err)
	}
	if style == nil {
		style = DefaultStyle()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	screen.EnableMouse(tcell.MouseDragEvents)
	screen.HideCursor()

	t := &Terminal{
		screen: screen,
		style:  style,
		logger: logger.With("component", "render", "frontend", "terminal"),
		canvas: NewCanvas(screen.Size()),
		events: make(chan input.Event, 64),
		done:   make(chan struct{}),
	}
	go t.pollEvents()
	return t, nil
}

// pollEvents translates tcell events until the screen is finalised.
func (t *Terminal) pollEvents() {
	defer close(t.events)

	if w, h := t.screen.Size(); w > 0 && h > 0 {
		t.send(input.Resize{Width: float64(w * CellWidth), Height: float64(h * CellHeight)})
	}
	for {
		ev := t.screen.PollEvent()
		if ev == nil {
			return
		}
		for _, out := range t.translate(ev) {
			if !t.send(out) {
				return
			}
		}
	}
}

func (t *Terminal) send(ev input.Event) bool {
	select {
	case t.events <- ev:
		return true
	case <-t.done:
		return false
	}
}

// translate maps one tcell event onto zero or more viewer events.
func (t *Terminal) translate(ev tcell.Event) []input.Event {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		if out, ok := translateKey(ev.Key(), ev.Rune()); ok {
			return []input.Event{out}
		}
	case *tcell.EventResize:
		w, h := ev.Size()
		return []input.Event{input.Resize{Width: float64(w * CellWidth), Height: float64(h * CellHeight)}}
	case *tcell.EventMouse:
		x, y := ev.Position()
		out := t.translateMouse(ev.Buttons(), cellCenter(x, y))
		return out
	}
	return nil
}

// cellCenter is the virtual pixel at the middle of cell (x, y).
func cellCenter(x, y int) geom.Vec2 {
	return geom.V(float64(x*CellWidth)+CellWidth/2, float64(y*CellHeight)+CellHeight/2)
}

func translateKey(key tcell.Key, r rune) (input.Event, bool) {
	switch key {
	case tcell.KeyCtrlC:
		return input.Quit{}, true
	case tcell.KeyUp:
		return input.Press(input.KeyUp), true
	case tcell.KeyDown:
		return input.Press(input.KeyDown), true
	case tcell.KeyLeft:
		return input.Press(input.KeyLeft), true
	case tcell.KeyRight:
		return input.Press(input.KeyRight), true
	case tcell.KeyEnter:
		return input.Press(input.KeyEnter), true
	case tcell.KeyEscape:
		return input.Press(input.KeyEscape), true
	case tcell.KeyTab:
		return input.Press(input.KeyTab), true
	case tcell.KeyRune:
		if r == ' ' {
			return input.Press(input.KeySpace), true
		}
		return input.Rune(r), true
	}
	return nil, false
}

// translateMouse turns tcell's button state into press, release, drag and
// wheel events by comparing it with the previous state.
func (t *Terminal) translateMouse(buttons tcell.ButtonMask, pos geom.Vec2) []input.Event {
	var out []input.Event
	switch {
	case buttons&tcell.WheelUp != 0:
		return []input.Event{input.Wheel{Delta: 1, Pos: pos}}
	case buttons&tcell.WheelDown != 0:
		return []input.Event{input.Wheel{Delta: -1, Pos: pos}}
	}

	prev := t.buttons
	t.buttons = buttons & (tcell.Button1 | tcell.Button2 | tcell.Button3)

	for _, b := range []struct {
		mask   tcell.ButtonMask
		button input.MouseButton
	}{
		{tcell.Button1, input.ButtonLeft},
		{tcell.Button2, input.ButtonRight},
		{tcell.Button3, input.ButtonMiddle},
	} {
		was, is := prev&b.mask != 0, buttons&b.mask != 0
		switch {
		case is && !was:
			out = append(out, input.MouseDown{Button: b.button, Pos: pos})
		case was && !is:
			out = append(out, input.MouseUp{Button: b.button, Pos: pos})
		}
	}
	if len(out) == 0 && buttons&tcell.Button1 != 0 {
		out = append(out, input.MouseMove{Pos: pos})
	}
	return out
}

// Events implements viewer.Frontend.
func (t *Terminal) Events() <-chan input.Event {
	return t.events
}

// Draw implements viewer.Frontend.
func (t *Terminal) Draw(f *viewer.Frame) {
	w, h := t.screen.Size()
	if cw, ch := t.canvas.Size(); cw != w || ch != h {
		t.canvas.Resize(w, h)
	}
	DrawFrame(t.canvas, f, NewRenderContext(f, t.style))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			cell := t.canvas.At(x, y)
			t.screen.SetContent(x, y, cell.Rune, nil, cellStyle(cell))
		}
	}
	t.screen.Show()
}

func cellStyle(c Cell) tcell.Style {
	fr, fg, fb := rgb(c.Fg)
	br, bg, bb := rgb(c.Bg)
	return tcell.StyleDefault.
		Foreground(tcell.NewRGBColor(fr, fg, fb)).
		Background(tcell.NewRGBColor(br, bg, bb)).
		Bold(c.Bold)
}

// Close restores the terminal. The event channel is closed once the poll
// loop has stopped.
func (t *Terminal) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.screen.Fini()
		t.logger.Debug(context.Background(), "terminal restored")
	})
	return nil
}
