// pkg/protocol/snapshot.go

// Package protocol defines the messages exchanged with the simulation: the
// per-tick Snapshot it streams to the viewer and the Commands the viewer
// sends back. Both travel as one JSON object per line.
package protocol

import (
	"github.com/opd-ai/ggw-viewer/pkg/geom"
)

// BodyType tags an orbital entity.
type BodyType string

const (
	BodyShip     BodyType = "Ship"
	BodyAsteroid BodyType = "Asteroid"
	BodyDebris   BodyType = "Debris"
	BodyMissile  BodyType = "Missile"
)

// BodyTypes lists every accepted BodyType.
var BodyTypes = []BodyType{BodyShip, BodyAsteroid, BodyDebris, BodyMissile}

// Valid reports whether t is one of BodyTypes.
func (t BodyType) Valid() bool {
	for _, bt := range BodyTypes {
		if t == bt {
			return true
		}
	}
	return false
}

// Snapshot is one authoritative world state. It is never mutated after
// Decode returns it.
type Snapshot struct {
	SimTime           float64
	PlanetRadius      float64
	Mu                float64
	GravityWellRadius float64 // zero when absent
	DespawnRadius     float64 // zero when absent
	Entities          []Entity
	Interior          *Interior

	byID map[int64]int
}

// Entity returns the entity with the given id.
func (s *Snapshot) Entity(id int64) (Entity, bool) {
	if s == nil {
		return Entity{}, false
	}
	i, ok := s.byID[id]
	if !ok {
		return Entity{}, false
	}
	return s.Entities[i], true
}

// HasEntity reports whether id is present.
func (s *Snapshot) HasEntity(id int64) bool {
	_, ok := s.Entity(id)
	return ok
}

// MaxExtent is the larger of the central body radius and the farthest
// entity distance from the origin, in meters.
func (s *Snapshot) MaxExtent() float64 {
	extent := s.PlanetRadius
	for _, e := range s.Entities {
		if d := e.Position.Length(); d > extent {
			extent = d
		}
	}
	return extent
}

// Entity is one orbital body.
type Entity struct {
	ID       int64
	Type     BodyType
	Position geom.Vec2
	Velocity geom.Vec2
	Radius   float64
	Hull     *Hull
}

// Hull is an optional polygon outline in the body frame, meters.
type Hull struct {
	TileSize float64
	Vertices []geom.Vec2
}

// TileType is the floor plan value of one interior cell.
type TileType string

const (
	TileEmpty      TileType = "Empty"
	TileFloor      TileType = "Floor"
	TileWall       TileType = "Wall"
	TileBed        TileType = "Bed"
	TileDoorClosed TileType = "DoorClosed"
	TileDoorOpen   TileType = "DoorOpen"
	TileUnknown    TileType = "Unknown"
)

func parseTileType(s string) TileType {
	switch t := TileType(s); t {
	case TileEmpty, TileFloor, TileWall, TileBed, TileDoorClosed, TileDoorOpen:
		return t
	case "":
		return TileEmpty
	}
	return TileUnknown
}

// Atmos is a gas sample. Only the fields the simulation reported are set.
type Atmos struct {
	PressureKPa  *float64 `json:"pressure_kpa"`
	TemperatureK *float64 `json:"temperature_k"`
	O2Fraction   *float64 `json:"o2_fraction"`
	N2Fraction   *float64 `json:"n2_fraction"`
	CO2Fraction  *float64 `json:"co2_fraction"`
	O2Kg         *float64 `json:"o2_kg"`
	N2Kg         *float64 `json:"n2_kg"`
	CO2Kg        *float64 `json:"co2_kg"`
}

// Tile is one interior cell.
type Tile struct {
	Type  TileType
	Atmos *Atmos
}

// Interior is the ship's internal grid.
type Interior struct {
	Width        int
	Height       int
	Tiles        [][]Tile // [y][x]
	Devices      []Device
	Pawn         *Pawn
	Power        *PowerInfo
	PowerSummary *PowerSummary
	Nav          *NavContext
	Atmos        *Atmos

	deviceByID map[int64]int
}

// InBounds reports whether p lies on the grid.
func (in *Interior) InBounds(p geom.TilePos) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < in.Width && p.Y < in.Height
}

// TileAt returns the tile at p, or an Empty tile for positions the
// simulation did not describe.
func (in *Interior) TileAt(p geom.TilePos) Tile {
	if !in.InBounds(p) || p.Y >= len(in.Tiles) || p.X >= len(in.Tiles[p.Y]) {
		return Tile{Type: TileEmpty}
	}
	return in.Tiles[p.Y][p.X]
}

// Device returns the device with the given id.
func (in *Interior) Device(id int64) (Device, bool) {
	if in == nil {
		return Device{}, false
	}
	i, ok := in.deviceByID[id]
	if !ok {
		return Device{}, false
	}
	return in.Devices[i], true
}

// DeviceAt returns the first device whose footprint contains p.
func (in *Interior) DeviceAt(p geom.TilePos) (Device, bool) {
	if in == nil {
		return Device{}, false
	}
	for _, d := range in.Devices {
		if d.Rect().Contains(p) {
			return d, true
		}
	}
	return Device{}, false
}

// NearestDevice returns the device closest to p by Chebyshev distance,
// limited to maxDist. Earlier devices win ties.
func (in *Interior) NearestDevice(p geom.TilePos, maxDist int) (Device, bool) {
	if in == nil {
		return Device{}, false
	}
	best, found := Device{}, false
	bestDist := maxDist + 1
	for _, d := range in.Devices {
		dist := d.Rect().Chebyshev(p)
		if dist < bestDist {
			best, bestDist, found = d, dist, true
			if dist == 0 {
				break
			}
		}
	}
	return best, found
}

// Pawn is the crew member the operator controls.
type Pawn struct {
	Pos    geom.TilePos
	Status string
	Needs  Needs
	Health []BodyPart
}

// Needs are fractions in [0, 1].
type Needs struct {
	Hunger float64
	Thirst float64
	Rest   float64
}

// BodyPart is one entry of the pawn's health report.
type BodyPart struct {
	Name  string
	HP    float64
	MaxHP float64
	Vital bool
}

// PowerInfo is the grid balance reported as "power".
type PowerInfo struct {
	NetKW         float64
	ProductionKW  float64
	ConsumptionKW float64
}

// PowerSummary is the ship computer's view of the grid.
type PowerSummary struct {
	GenerationKW float64
	LoadKW       float64
	NetKW        float64
	Devices      []PowerDevice
}

// PowerDevice is one row of the ship computer listing.
type PowerDevice struct {
	ID           int64
	Name         string
	Group        string
	DrawKW       float64
	Online       bool
	Controllable bool
}

// NavContext is the navigation console's data feed.
type NavContext struct {
	ShipPosition   geom.Vec2
	ShipVelocity   geom.Vec2
	AltitudeM      float64
	ApoapsisM      *float64
	PeriapsisM     *float64
	SpeedMPS       float64
	OrbitalPeriodS *float64
	Heading        string
	Contacts       []Contact
}

// Contact is a body visible to the nav console.
type Contact struct {
	ID        int64
	Type      BodyType
	DistanceM float64
}
