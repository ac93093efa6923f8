// pkg/render/engo/hud.go
package engo

import (
	"github.com/opd-ai/ggw-viewer/pkg/hud"
	"github.com/opd-ai/ggw-viewer/pkg/viewer"
)

const (
	hudMargin  = 8
	hudPadding = 6
)

// panelSize returns the pixel size of a boxed panel.
func panelSize(panel hud.Panel) (w, h float32) {
	cols := len([]rune(panel.Title))
	for _, l := range panel.Lines {
		cols = max(cols, len([]rune(l))+1)
	}
	w = float32(cols)*charWidth + 2*hudPadding
	h = float32(len(panel.Lines)+1)*lineHeight + 2*hudPadding
	return w, h
}

// hud draws the info panels down the left edge, the modal in the center
// and the status line along the bottom.
func (p *Painter) hud(f *viewer.Frame) {
	st := p.style
	y := float32(hudMargin)
	for _, panel := range f.Panels {
		_, h := p.panel(layerHUD, layerHUDText, hudMargin, y, panel)
		y += h + hudMargin
	}

	if f.ModalPanel != nil {
		w, h := panelSize(*f.ModalPanel)
		p.panel(layerModal, layerModalText, (float32(f.Width)-w)/2, (float32(f.Height)-h)/2, *f.ModalPanel)
	}

	fg := st.Color("fg")
	if !f.Connected {
		fg = st.Color("fg_warn")
	}
	sy := float32(f.Height) - lineHeight - hudMargin
	p.shapes.Rect(layerHUD, 0, sy-2, float32(len([]rune(f.Status)))*charWidth+2*hudMargin, lineHeight+4, st.Color("hud_bg"))
	p.shapes.Text(layerHUDText, hudMargin, sy, f.Status, fg)
}

// panel draws one boxed panel with its top-left corner at (x, y) and
// returns its size.
func (p *Painter) panel(boxZ, textZ float32, x, y float32, panel hud.Panel) (float32, float32) {
	st := p.style
	w, h := panelSize(panel)
	p.shapes.Rect(boxZ, x, y, w, h, st.Color("hud_bg"))
	p.shapes.Outline(boxZ, x, y, w, h, 1, st.Color("hud_border"))

	tx, ty := x+hudPadding, y+hudPadding
	p.shapes.Text(textZ, tx, ty, panel.Title, st.Color("fg"))
	for i, line := range panel.Lines {
		ly := ty + float32(i+1)*lineHeight
		fg := st.Color("fg")
		if i == panel.Highlight {
			fg = st.Color("highlight")
			line = ">" + line
		} else {
			line = " " + line
		}
		p.shapes.Text(textZ, tx, ly, line, fg)
	}
	return w, h
}
