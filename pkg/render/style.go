package render

import (
	"errors"
	"fmt"
	"image/color"
	"strings"

	"github.com/opd-ai/ggw-viewer/pkg/config"
	"github.com/opd-ai/ggw-viewer/pkg/protocol"
)

var fallbackColor = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

// Palette entries for interior tiles.
var tilePalette = map[protocol.TileType]string{
	protocol.TileEmpty:      "bg",
	protocol.TileFloor:      "floor",
	protocol.TileWall:       "wall",
	protocol.TileBed:        "bed",
	protocol.TileDoorClosed: "door",
	protocol.TileDoorOpen:   "door_open",
	protocol.TileUnknown:    "fg_warn",
}

// Style is the palette and labelling every frontend draws with. It is
// built once from configuration; lookups ignore case.
type Style struct {
	colors map[string]color.RGBA
	bodies map[string]color.RGBA
	labels map[string]string
}

// NewStyle parses the configured colors. Every unparseable entry is
// reported.
func NewStyle(cfg config.StyleConfig) (*Style, error) {
	s := &Style{
		colors: make(map[string]color.RGBA, len(cfg.Colors)),
		bodies: make(map[string]color.RGBA, len(cfg.BodyColors)),
		labels: make(map[string]string, len(cfg.DeviceLabels)),
	}

	var errs []error
	parse := func(dst map[string]color.RGBA, group string, src map[string]string) {
		for name, hex := range src {
			c, err := config.ParseColor(hex)
			if err != nil {
				errs = append(errs, fmt.Errorf("style.%s.%s: %w", group, name, err))
				continue
			}
			dst[strings.ToLower(name)] = c
		}
	}
	parse(s.colors, "colors", cfg.Colors)
	parse(s.bodies, "body_colors", cfg.BodyColors)
	for kind, label := range cfg.DeviceLabels {
		s.labels[strings.ToLower(kind)] = label
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return s, nil
}

// DefaultStyle is the built-in palette.
func DefaultStyle() *Style {
	s, err := NewStyle(config.Default().Style)
	if err != nil {
		panic(fmt.Sprintf("render: default style: %v", err))
	}
	return s
}

// Color returns the named palette entry, falling back to "fg" and then
// white.
func (s *Style) Color(name string) color.RGBA {
	if c, ok := s.colors[strings.ToLower(name)]; ok {
		return c
	}
	if c, ok := s.colors["fg"]; ok {
		return c
	}
	return fallbackColor
}

// BodyColor returns the color for an orbital body type.
func (s *Style) BodyColor(t protocol.BodyType) color.RGBA {
	if c, ok := s.bodies[strings.ToLower(string(t))]; ok {
		return c
	}
	return s.Color("fg")
}

// DeviceLabel returns the short code drawn on a device. Kinds without a
// configured label use their first two letters.
func (s *Style) DeviceLabel(k protocol.DeviceKind) string {
	if l, ok := s.labels[strings.ToLower(string(k))]; ok {
		return l
	}
	r := []rune(strings.ToUpper(string(k)))
	if len(r) > 2 {
		r = r[:2]
	}
	return string(r)
}

// TileColor returns the color for an interior tile type. Unrecognised
// tiles use the warning color.
func (s *Style) TileColor(t protocol.TileType) color.RGBA {
	name, ok := tilePalette[t]
	if !ok {
		name = "fg_warn"
	}
	return s.Color(name)
}
