// pkg/interaction/controller.go

// Package interaction turns operator input and snapshot churn into selection
// and modal state, and into outbound commands.
package interaction

import (
	"context"
	"time"

	"github.com/opd-ai/ggw-viewer/pkg/camera"
	"github.com/opd-ai/ggw-viewer/pkg/geom"
	"github.com/opd-ai/ggw-viewer/pkg/input"
	"github.com/opd-ai/ggw-viewer/pkg/logging"
	"github.com/opd-ai/ggw-viewer/pkg/protocol"
	"github.com/opd-ai/ggw-viewer/pkg/validation"
)

// Dispatcher forwards a command toward the simulation without blocking. It
// reports false when the command was dropped.
type Dispatcher interface {
	Dispatch(cmd protocol.Command) bool
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(cmd protocol.Command) bool

// Dispatch calls f(cmd).
func (f DispatcherFunc) Dispatch(cmd protocol.Command) bool { return f(cmd) }

// ViewMode selects which picture the operator is looking at.
type ViewMode int

const (
	ViewOrbit ViewMode = iota
	ViewInterior
)

func (m ViewMode) String() string {
	if m == ViewInterior {
		return "interior"
	}
	return "orbit"
}

// TimeScales maps the digit keys 0-4 to simulation speeds.
var TimeScales = [...]float64{0, 1, 10, 60, 600}

// Defaults for Options.
const (
	DefaultPickRadius           = 12.0
	DefaultCentralBodyTolerance = 1.02
)

// interactRange is the Chebyshev distance within which E reaches a device.
const interactRange = 1

// Options configures a Controller.
type Options struct {
	PickRadius           float64
	CentralBodyTolerance float64
	FollowOnSelect       bool
	CommsLogLimit        int
	Clock                func() time.Time
	Logger               *logging.Logger
}

// DefaultOptions returns the stock controller settings.
func DefaultOptions() Options {
	return Options{
		PickRadius:           DefaultPickRadius,
		CentralBodyTolerance: DefaultCentralBodyTolerance,
		FollowOnSelect:       true,
		CommsLogLimit:        DefaultCommsLogLimit,
		Clock:                time.Now,
	}
}

// Controller is the selection and modal state machine. It is owned by the
// viewer loop and is not safe for concurrent use.
type Controller struct {
	camera *camera.Camera
	tiles  *camera.TileView
	out    Dispatcher
	opts   Options
	logger *logging.Logger

	snap      *protocol.Snapshot
	mode      ViewMode
	selection Selection
	modal     Modal
	comms     *CommsLog
	timeScale float64
	// scaleSet is true once the operator has picked a time scale.
	scaleSet bool
}

// NewController wires the state machine to the views it drives and the
// dispatcher commands leave through.
func NewController(cam *camera.Camera, tiles *camera.TileView, out Dispatcher, opts Options) *Controller {
	if opts.PickRadius <= 0 {
		opts.PickRadius = DefaultPickRadius
	}
	if opts.CentralBodyTolerance <= 0 {
		opts.CentralBodyTolerance = DefaultCentralBodyTolerance
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Controller{
		camera:    cam,
		tiles:     tiles,
		out:       out,
		opts:      opts,
		logger:    logger.With("component", "interaction"),
		comms:     NewCommsLog(opts.CommsLogLimit),
		timeScale: validation.DefaultTimeScale,
	}
}

// Selection returns the current selection.
func (c *Controller) Selection() Selection { return c.selection }

// Modal returns the open modal, or nil.
func (c *Controller) Modal() Modal { return c.modal }

// Mode returns the active view.
func (c *Controller) Mode() ViewMode { return c.mode }

// SetMode switches the active view.
func (c *Controller) SetMode(m ViewMode) {
	c.mode = m
	c.camera.EndPan()
}

// CommsLog returns the comms history, oldest first.
func (c *Controller) CommsLog() []string { return c.comms.Lines() }

// TimeScale is the last speed requested from the simulation.
func (c *Controller) TimeScale() float64 { return c.timeScale }

// ResendTimeScale repeats the operator's time scale, for a simulation that
// may have restarted at its default speed. It does nothing until the
// operator has picked one and reports whether a command was sent.
func (c *Controller) ResendTimeScale() bool {
	if !c.scaleSet {
		return false
	}
	c.dispatch(protocol.SetTimeScale{TimeScale: c.timeScale})
	return true
}

// HitTest resolves a screen point in the orbit view. The central body wins
// over any entity whose pick circle also covers the point.
func (c *Controller) HitTest(screen geom.Vec2) Selection {
	if c.snap == nil || !c.camera.Established() {
		return None
	}
	proj := c.camera.Projection()

	world := proj.ScreenToWorld(screen)
	if r := c.snap.PlanetRadius; r > 0 && world.Length() <= r*c.opts.CentralBodyTolerance {
		return CentralBody()
	}

	var (
		best     int64
		bestDist float64
		found    bool
	)
	for _, e := range c.snap.Entities {
		d := proj.WorldToScreen(e.Position).Distance(screen)
		if d > c.opts.PickRadius {
			continue
		}
		if !found || d < bestDist {
			best, bestDist, found = e.ID, d, true
		}
	}
	if found {
		return Entity(best)
	}
	return None
}

// Reconcile drops references the snapshot no longer backs. It runs once per
// applied snapshot, before the frame is drawn.
func (c *Controller) Reconcile(snap *protocol.Snapshot) {
	if snap == nil {
		return
	}
	c.snap = snap
	in := snap.Interior

	switch c.selection.Kind {
	case SelectEntity:
		if !snap.HasEntity(c.selection.ID) {
			c.setSelection(None)
		}
	case SelectDevice:
		if _, ok := in.Device(c.selection.ID); !ok {
			c.setSelection(None)
		}
	case SelectTile:
		if in == nil || !in.InBounds(c.selection.Tile) {
			c.setSelection(None)
		}
	}

	if c.modal != nil {
		if _, ok := in.Device(ModalDevice(c.modal)); !ok {
			c.modal = nil
		}
	}
	if m, ok := c.modal.(*ShipComputerPanel); ok {
		if n := len(OrderedPowerDevices(in.PowerSummary)); n == 0 {
			m.Highlight = 0
		} else if m.Highlight >= n {
			m.Highlight = n - 1
		}
	}
}

// HandleEvent applies one input event. It returns true when the operator
// asked to quit.
func (c *Controller) HandleEvent(ev input.Event) bool {
	switch e := ev.(type) {
	case input.Quit:
		return true
	case input.KeyPress:
		return c.handleKey(e)
	case input.MouseDown:
		c.mouseDown(e)
	case input.MouseUp:
		if e.Button == input.ButtonLeft {
			c.camera.EndPan()
		}
	case input.MouseMove:
		c.camera.DragTo(e.Pos)
	case input.Wheel:
		switch {
		case e.Delta > 0:
			c.zoomIn()
		case e.Delta < 0:
			c.zoomOut()
		}
	case input.Resize:
		c.camera.SetViewport(e.Width, e.Height)
		c.tiles.SetViewport(e.Width, e.Height)
		if c.snap != nil {
			c.tiles.Layout(c.snap.Interior)
		}
	}
	return false
}

func (c *Controller) mouseDown(e input.MouseDown) {
	switch {
	case c.mode == ViewOrbit && e.Button == input.ButtonLeft:
		if c.camera.Panning() {
			return
		}
		sel := c.HitTest(e.Pos)
		if sel.IsNone() {
			c.camera.BeginPan(e.Pos)
			return
		}
		c.modal = nil
		c.setSelection(sel)
		if sel.Kind == SelectEntity && c.opts.FollowOnSelect {
			if ent, ok := c.snap.Entity(sel.ID); ok {
				c.camera.Follow(sel.ID, ent.Position)
			}
		}

	case c.mode == ViewInterior && e.Button == input.ButtonRight:
		if c.modal != nil {
			return
		}
		c.selectTile(e.Pos)
	}
}

func (c *Controller) selectTile(pos geom.Vec2) {
	if c.snap == nil || c.snap.Interior == nil {
		c.setSelection(None)
		return
	}
	tile, ok := c.tiles.ScreenToTile(pos)
	if !ok {
		c.setSelection(None)
		return
	}
	if d, ok := c.snap.Interior.DeviceAt(tile); ok {
		c.setSelection(Device(d.ID, tile))
		return
	}
	c.setSelection(Tile(tile))
}

// setSelection replaces the selection. Follow belongs to an entity
// selection and ends with it.
func (c *Controller) setSelection(sel Selection) {
	if c.selection.Kind == SelectEntity && sel != c.selection {
		if id, ok := c.camera.Following(); ok && id == c.selection.ID {
			c.camera.Unfollow()
		}
	}
	c.selection = sel
}

func (c *Controller) zoomIn() {
	if c.mode == ViewInterior {
		c.tiles.ZoomIn()
		return
	}
	c.camera.ZoomIn()
}

func (c *Controller) zoomOut() {
	if c.mode == ViewInterior {
		c.tiles.ZoomOut()
		return
	}
	c.camera.ZoomOut()
}

func (c *Controller) handleKey(k input.KeyPress) bool {
	if k.Key == input.KeyEscape {
		switch {
		case c.modal != nil:
			c.modal = nil
		case !c.selection.IsNone():
			c.setSelection(None)
		default:
			return true
		}
		return false
	}

	if c.modal != nil {
		c.modalKey(k)
		return false
	}

	if k.Key == input.KeyRune && k.Rune >= '0' && int(k.Rune-'0') < len(TimeScales) {
		c.timeScale = TimeScales[k.Rune-'0']
		c.scaleSet = true
		c.dispatch(protocol.SetTimeScale{TimeScale: c.timeScale})
		return false
	}

	switch {
	case k.Key == input.KeyTab:
		if c.mode == ViewOrbit {
			c.SetMode(ViewInterior)
		} else {
			c.SetMode(ViewOrbit)
		}
	case k.Is('+') || k.Is('='):
		c.zoomIn()
	case k.Is('-') || k.Is('_'):
		c.zoomOut()
	case c.mode == ViewInterior:
		c.interiorKey(k)
	}
	return false
}

func moveDelta(k input.KeyPress) (dx, dy int, ok bool) {
	switch {
	case k.Key == input.KeyUp || k.Is('w'):
		return 0, -1, true
	case k.Key == input.KeyDown || k.Is('s'):
		return 0, 1, true
	case k.Key == input.KeyLeft || k.Is('a'):
		return -1, 0, true
	case k.Key == input.KeyRight || k.Is('d'):
		return 1, 0, true
	}
	return 0, 0, false
}

func (c *Controller) interiorKey(k input.KeyPress) {
	if dx, dy, ok := moveDelta(k); ok {
		c.dispatch(protocol.MovePawn{DX: dx, DY: dy})
		return
	}
	switch {
	case k.Key == input.KeySpace:
		c.dispatch(protocol.ToggleSleep{})
	case k.Is('e'):
		c.interact()
	}
}

// interact uses the device nearest the pawn and opens its modal when the
// kind allows one.
func (c *Controller) interact() {
	if c.snap == nil || c.snap.Interior == nil || c.snap.Interior.Pawn == nil {
		return
	}
	in := c.snap.Interior
	d, ok := in.NearestDevice(in.Pawn.Pos, interactRange)
	if !ok {
		return
	}
	c.dispatch(protocol.InteractAt{X: d.Pos.X, Y: d.Pos.Y})
	if Interactive(d.Kind) {
		c.modal = openModal(d)
	}
}

func isUp(k input.KeyPress) bool      { return k.Key == input.KeyUp || k.Is('w') }
func isDown(k input.KeyPress) bool    { return k.Key == input.KeyDown || k.Is('s') }
func isConfirm(k input.KeyPress) bool { return k.Key == input.KeyEnter || k.Key == input.KeySpace }

func wrap(i, n int) int {
	return ((i % n) + n) % n
}

func (c *Controller) modalKey(k input.KeyPress) {
	switch m := c.modal.(type) {
	case *NavConsole:
		switch {
		case k.Key == input.KeyLeft || k.Key == input.KeyRight:
			if m.Tab == TabNav {
				m.Tab = TabComms
				m.Highlight = 0
			} else {
				m.Tab = TabNav
			}
		case m.Tab != TabComms:
		case isUp(k):
			m.Highlight = wrap(m.Highlight-1, len(CommsMenu))
		case isDown(k):
			m.Highlight = wrap(m.Highlight+1, len(CommsMenu))
		case isConfirm(k):
			option := CommsMenu[m.Highlight]
			c.comms.Append(commsEntry(c.opts.Clock(), option))
			c.logger.Debug(context.Background(), "comms message", "device", m.DeviceID, "option", option)
		}

	case *ShipComputerPanel:
		var rows []protocol.PowerDevice
		if c.snap != nil && c.snap.Interior != nil {
			rows = OrderedPowerDevices(c.snap.Interior.PowerSummary)
		}
		if len(rows) == 0 {
			return
		}
		m.Highlight = max(0, min(m.Highlight, len(rows)-1))
		switch {
		case isUp(k):
			m.Highlight = wrap(m.Highlight-1, len(rows))
		case isDown(k):
			m.Highlight = wrap(m.Highlight+1, len(rows))
		case isConfirm(k):
			if row := rows[m.Highlight]; row.Controllable {
				c.dispatch(protocol.ShipComputerToggle{DeviceID: row.ID})
			}
		}

	case *DevicePanel:
		for _, a := range Actions(m.Kind) {
			if k.Is(a.Key) {
				c.dispatch(protocol.DeviceAction{DeviceID: m.DeviceID, Action: a.Name})
				return
			}
		}
	}
}

func (c *Controller) dispatch(cmd protocol.Command) {
	if c.out == nil {
		return
	}
	if !c.out.Dispatch(cmd) {
		c.logger.Debug(context.Background(), "command not queued", "type", cmd.Type())
	}
}
