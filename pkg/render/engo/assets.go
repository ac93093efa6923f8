// pkg/render/engo/assets.go
package engo

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/EngoEngine/engo"
	"github.com/EngoEngine/engo/common"
	"golang.org/x/image/font/gofont/gomono"

	"github.com/opd-ai/ggw-viewer/pkg/protocol"
)

// fontURL is the virtual path the HUD font is registered under.
const fontURL = "gomono.ttf"

// HUD text metrics. Go Mono advances 0.6em per glyph.
const (
	fontSize   = 14
	charWidth  = fontSize * 0.6
	lineHeight = fontSize * 1.3
)

// Body patterns, one row per string. 'x' is opaque. Sprites are drawn
// white and tinted per body type at render time.
var bodyPatterns = map[protocol.BodyType][]string{
	protocol.BodyShip: {
		"....xx....",
		"...xxxx...",
		"...xxxx...",
		"..xxxxxx..",
		"..xx..xx..",
		".xxxxxxxx.",
		"xxxxxxxxxx",
		"xxx.xx.xxx",
		"xx..xx..xx",
		"x...xx...x",
	},
	protocol.BodyAsteroid: {
		"...xxxx...",
		".xxxxxxx..",
		".xxxx.xxx.",
		"xxxxxxxxxx",
		"xxx.xxxxxx",
		"xxxxxxx.xx",
		"xxxxxxxxxx",
		".xxxxxxxx.",
		"..xxx.xxx.",
		"...xxxx...",
	},
	protocol.BodyDebris: {
		"..........",
		"..x.......",
		"..xx...x..",
		"...x..xx..",
		"....xx....",
		"....xx....",
		"..xx..x...",
		".xx....x..",
		"........x.",
		"..........",
	},
	protocol.BodyMissile: {
		"....xx....",
		"...xxxx...",
		"...xxxx...",
		"...xxxx...",
		"...xxxx...",
		"...xxxx...",
		"...xxxx...",
		"..xxxxxx..",
		".xx.xx.xx.",
		".x..xx..x.",
	},
}

// BodyImage renders the pattern for t. Unknown types get a filled square.
func BodyImage(t protocol.BodyType) *image.NRGBA {
	pattern, ok := bodyPatterns[t]
	if !ok {
		pattern = []string{"xxxx", "xxxx", "xxxx", "xxxx"}
	}
	return patternImage(pattern)
}

// patternImage draws a pattern onto a transparent image.
func patternImage(pattern []string) *image.NRGBA {
	h := len(pattern)
	w := 0
	for _, row := range pattern {
		w = max(w, len(row))
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.Transparent, image.Point{}, draw.Src)
	for y, row := range pattern {
		for x, px := range row {
			if px == 'x' {
				img.SetNRGBA(x, y, color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff})
			}
		}
	}
	return img
}

// Assets holds the GPU resources of the window: body sprites and the HUD
// font. Load must run on the render thread after the window exists.
type Assets struct {
	sprites map[protocol.BodyType]common.Drawable
	font    *common.Font
}

// NewAssets creates an empty asset set.
func NewAssets() *Assets {
	return &Assets{sprites: make(map[protocol.BodyType]common.Drawable)}
}

// PreloadFont registers the embedded Go Mono font with engo's file
// loader. It runs from Scene.Preload.
func PreloadFont() error {
	if err := engo.Files.LoadReaderData(fontURL, bytes.NewReader(gomono.TTF)); err != nil {
		return fmt.Errorf("loading HUD font: %w", err)
	}
	return nil
}

// Load uploads the body sprites and prepares the HUD font.
func (a *Assets) Load() error {
	for t := range bodyPatterns {
		a.sprites[t] = common.NewTextureSingle(common.NewImageObject(BodyImage(t)))
	}
	a.sprites[""] = common.NewTextureSingle(common.NewImageObject(BodyImage("")))

	font := &common.Font{
		URL:  fontURL,
		FG:   color.White,
		Size: fontSize,
	}
	if err := font.CreatePreloaded(); err != nil {
		return fmt.Errorf("preparing HUD font: %w", err)
	}
	a.font = font
	return nil
}

// Sprite returns the sprite for a body type.
func (a *Assets) Sprite(t protocol.BodyType) common.Drawable {
	if s, ok := a.sprites[t]; ok {
		return s
	}
	return a.sprites[""]
}

// Font returns the HUD font, nil before Load.
func (a *Assets) Font() *common.Font {
	return a.font
}
