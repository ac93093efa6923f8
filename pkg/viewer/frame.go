// pkg/viewer/frame.go
package viewer

import (
	"time"

	"github.com/opd-ai/ggw-viewer/pkg/camera"
	"github.com/opd-ai/ggw-viewer/pkg/geom"
	"github.com/opd-ai/ggw-viewer/pkg/hud"
	"github.com/opd-ai/ggw-viewer/pkg/interaction"
	"github.com/opd-ai/ggw-viewer/pkg/network"
	"github.com/opd-ai/ggw-viewer/pkg/protocol"
)

// Frame is everything a renderer needs for one draw. It holds copies, so
// a renderer may keep it after the viewer moves on. Snapshot is shared but
// never mutated; each update replaces it.
type Frame struct {
	Width, Height float64
	Now           time.Time
	Mode          interaction.ViewMode
	Connected     bool

	// Snapshot is nil until the first snapshot arrives.
	Snapshot *protocol.Snapshot
	Orbit    camera.Projection
	Tiles    camera.TileProjection
	Trails   map[int64][]geom.Vec2

	Selection   interaction.Selection
	Modal       interaction.Modal
	Following   int64
	IsFollowing bool

	Panels     []hud.Panel
	ModalPanel *hud.Panel
	Status     string
}

// Frame assembles the current frame.
func (v *Viewer) Frame() *Frame {
	connected := v.transport.Status() == network.Connected
	mode := v.ctrl.Mode()
	f := &Frame{
		Width:     v.width,
		Height:    v.height,
		Now:       v.opts.Clock(),
		Mode:      mode,
		Connected: connected,
		Snapshot:  v.snap,
		Orbit:     v.camera.Projection(),
		Tiles:     v.tiles.Projection(),
		Trails:    make(map[int64][]geom.Vec2, v.trails.Len()),
		Selection: v.ctrl.Selection(),
		Modal:     interaction.CloneModal(v.ctrl.Modal()),
	}
	f.Following, f.IsFollowing = v.camera.Following()

	v.trails.Each(func(id int64, points []geom.Vec2) {
		f.Trails[id] = append([]geom.Vec2(nil), points...)
	})

	if v.snap != nil {
		if mode == interaction.ViewInterior {
			if p, ok := hud.PawnPanel(v.snap.Interior); ok {
				f.Panels = append(f.Panels, p)
			}
		}
		if p, ok := hud.SelectionPanel(v.snap, f.Selection); ok {
			f.Panels = append(f.Panels, p)
		}
		if p, ok := hud.ModalPanel(v.snap, f.Modal, v.ctrl.CommsLog()); ok {
			f.ModalPanel = &p
		}
	}

	status := hud.Status{
		Connected: connected,
		Awaiting:  v.snap == nil,
		TimeScale: v.ctrl.TimeScale(),
		Mode:      mode,
		Dropped:   v.dropped.Load(),
	}
	if v.snap != nil {
		status.SimTime = v.snap.SimTime
	}
	f.Status = hud.StatusLine(status)
	return f
}
