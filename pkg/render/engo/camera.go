// pkg/render/engo/camera.go
package engo

import (
	"github.com/EngoEngine/engo"
	"github.com/EngoEngine/engo/common"

	"github.com/opd-ai/ggw-viewer/pkg/input"
)

// Viewport follows the window size. The viewer projects everything into
// window pixels itself, so engo's camera is pinned to the window center
// at zoom 1 and only moves when the window does.
type Viewport struct {
	width, height float32
	recenter      func(x, y float32)
	pending       []input.Event
}

// NewViewport starts tracking a width×height window. recenter is called
// with the new center on every resize and may be nil.
func NewViewport(width, height float32, recenter func(x, y float32)) *Viewport {
	vp := &Viewport{recenter: recenter}
	vp.Resize(int(width), int(height))
	return vp
}

// Resize records a new window size. Degenerate sizes, as reported while
// a window is minimised, are ignored.
func (vp *Viewport) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	w, h := float32(width), float32(height)
	if w == vp.width && h == vp.height {
		return
	}
	vp.width, vp.height = w, h
	if vp.recenter != nil {
		vp.recenter(w/2, h/2)
	}
	vp.pending = append(vp.pending, input.Resize{Width: float64(w), Height: float64(h)})
}

// Size returns the window size in pixels.
func (vp *Viewport) Size() (width, height float32) {
	return vp.width, vp.height
}

// Drain returns resize events since the last call.
func (vp *Viewport) Drain() []input.Event {
	out := vp.pending
	vp.pending = nil
	return out
}

// Listen subscribes to engo's window resize messages.
func (vp *Viewport) Listen() {
	engo.Mailbox.Listen(engo.WindowResizeMessage{}.Type(), func(msg engo.Message) {
		if m, ok := msg.(engo.WindowResizeMessage); ok {
			vp.Resize(m.NewWidth, m.NewHeight)
		}
	})
}

// centerCamera moves engo's camera so world and window pixels coincide.
func centerCamera(x, y float32) {
	engo.Mailbox.Dispatch(common.CameraMessage{Axis: common.XAxis, Value: x})
	engo.Mailbox.Dispatch(common.CameraMessage{Axis: common.YAxis, Value: y})
	engo.Mailbox.Dispatch(common.CameraMessage{Axis: common.ZAxis, Value: 1})
}
