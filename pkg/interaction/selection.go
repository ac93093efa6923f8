// pkg/interaction/selection.go
package interaction

import (
	"fmt"

	"github.com/opd-ai/ggw-viewer/pkg/geom"
)

// SelectionKind tags a Selection.
type SelectionKind int

const (
	SelectNone SelectionKind = iota
	SelectCentralBody
	SelectEntity
	SelectDevice
	SelectTile
)

// Selection is what the operator has picked. ID is meaningful for Entity and
// Device; Tile for Device and Tile selections made in the interior view.
type Selection struct {
	Kind SelectionKind
	ID   int64
	Tile geom.TilePos
}

// None is the empty selection.
var None = Selection{}

// CentralBody selects the planet.
func CentralBody() Selection { return Selection{Kind: SelectCentralBody} }

// Entity selects an orbital body by id.
func Entity(id int64) Selection { return Selection{Kind: SelectEntity, ID: id} }

// Device selects an interior device, remembering the tile that was clicked.
func Device(id int64, at geom.TilePos) Selection {
	return Selection{Kind: SelectDevice, ID: id, Tile: at}
}

// Tile selects an interior tile with no device on it.
func Tile(at geom.TilePos) Selection { return Selection{Kind: SelectTile, Tile: at} }

// IsNone reports whether nothing is selected.
func (s Selection) IsNone() bool { return s.Kind == SelectNone }

func (s Selection) String() string {
	switch s.Kind {
	case SelectCentralBody:
		return "central-body"
	case SelectEntity:
		return fmt.Sprintf("entity(%d)", s.ID)
	case SelectDevice:
		return fmt.Sprintf("device(%d)", s.ID)
	case SelectTile:
		return fmt.Sprintf("tile(%d,%d)", s.Tile.X, s.Tile.Y)
	}
	return "none"
}
