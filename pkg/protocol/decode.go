// pkg/protocol/decode.go
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opd-ai/ggw-viewer/pkg/geom"
	"github.com/opd-ai/ggw-viewer/pkg/validation"
)

// ErrMalformed is wrapped by every Decode error. A malformed line is dropped
// and the previous snapshot stays authoritative.
var ErrMalformed = errors.New("malformed snapshot")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrMalformed, err)
}

// Wire shapes. Optional scalars are pointers so a missing field can be told
// apart from a zero; convert turns them into the public types and is the only
// place defaults are applied.

type wireSnapshot struct {
	SimTime      *float64      `json:"sim_time"`
	PlanetRadius *float64      `json:"planet_radius_m"`
	Mu           *float64      `json:"mu"`
	GravityWell  *float64      `json:"gravity_well_radius_m"`
	Despawn      *float64      `json:"despawn_radius_m"`
	Bodies       *[]wireBody   `json:"bodies"`
	Interior     *wireInterior `json:"interior"`
}

type wireBody struct {
	ID       *int64    `json:"id"`
	BodyType *string   `json:"body_type"`
	X        *float64  `json:"x"`
	Y        *float64  `json:"y"`
	VX       *float64  `json:"vx"`
	VY       *float64  `json:"vy"`
	Radius   *float64  `json:"radius_m"`
	Hull     *wireHull `json:"hull_shape"`
}

type wireHull struct {
	TileSize *float64  `json:"tile_size_m"`
	Vertices []wireVec `json:"vertices"`
}

type wireVec struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

type wireInterior struct {
	Width        *int              `json:"width"`
	Height       *int              `json:"height"`
	Tiles        [][]wireTile      `json:"tiles"`
	Devices      []wireDevice      `json:"devices"`
	Pawn         *wirePawn         `json:"pawn"`
	Power        *wirePower        `json:"power"`
	PowerSummary *wirePowerSummary `json:"power_summary"`
	Nav          *wireNav          `json:"nav_context"`
	Atmos        *Atmos            `json:"atmos"`
}

// wireTile accepts an object {type, atmos}, a bare type string or null.
type wireTile struct {
	Type  string
	Atmos *Atmos
}

func (t *wireTile) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*t = wireTile{}
		return nil
	case len(data) > 0 && data[0] == '"':
		return json.Unmarshal(data, &t.Type)
	}
	var obj struct {
		Type  string `json:"type"`
		Atmos *Atmos `json:"atmos"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	t.Type, t.Atmos = obj.Type, obj.Atmos
	return nil
}

type wireDevice struct {
	ID      *int64   `json:"id"`
	Kind    *string  `json:"kind"`
	X       *int     `json:"x"`
	Y       *int     `json:"y"`
	W       *int     `json:"w"`
	H       *int     `json:"h"`
	Online  *bool    `json:"online"`
	PowerKW *float64 `json:"power_kw"`
	DeviceDetail
}

type wirePawn struct {
	X      *int       `json:"x"`
	Y      *int       `json:"y"`
	Status string     `json:"status"`
	Needs  *wireNeeds `json:"needs"`
	Health *struct {
		BodyParts []struct {
			Name  string  `json:"name"`
			HP    float64 `json:"hp"`
			MaxHP float64 `json:"max_hp"`
			Vital bool    `json:"vital"`
		} `json:"body_parts"`
	} `json:"health"`
}

type wireNeeds struct {
	Hunger float64 `json:"hunger"`
	Thirst float64 `json:"thirst"`
	Rest   float64 `json:"rest"`
}

type wirePower struct {
	NetKW         float64 `json:"net_kw"`
	ProductionKW  float64 `json:"total_production_kw"`
	ConsumptionKW float64 `json:"total_consumption_kw"`
}

type wirePowerSummary struct {
	GenerationKW float64 `json:"generation_kw"`
	LoadKW       float64 `json:"load_kw"`
	NetKW        float64 `json:"net_kw"`
	Devices      []struct {
		ID           *int64  `json:"id"`
		Name         string  `json:"name"`
		Group        string  `json:"group"`
		DrawKW       float64 `json:"draw_kw"`
		Online       *bool   `json:"online"`
		Controllable bool    `json:"controllable"`
	} `json:"devices"`
}

type wireNav struct {
	ShipPosition struct {
		X float64 `json:"x_m"`
		Y float64 `json:"y_m"`
	} `json:"ship_position"`
	ShipVelocity struct {
		X float64 `json:"x_mps"`
		Y float64 `json:"y_mps"`
	} `json:"ship_velocity"`
	AltitudeM      float64  `json:"altitude_m"`
	ApoapsisM      *float64 `json:"apoapsis_m"`
	PeriapsisM     *float64 `json:"periapsis_m"`
	SpeedMPS       float64  `json:"speed_mps"`
	OrbitalPeriodS *float64 `json:"orbital_period_s"`
	Heading        string   `json:"heading"`
	Contacts       []struct {
		ID        int64   `json:"id"`
		BodyType  string  `json:"body_type"`
		DistanceM float64 `json:"distance_m"`
	} `json:"contacts"`
}

// Decode parses one line into a Snapshot. Missing required fields, unknown
// body or device kinds, non-finite numbers and duplicate ids are rejected
// with an error wrapping ErrMalformed.
func Decode(line []byte) (*Snapshot, error) {
	var w wireSnapshot
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return w.convert()
}

func need(field string, v *float64) (float64, error) {
	if v == nil {
		return 0, malformed("missing %s", field)
	}
	if err := validation.Finite(field, *v); err != nil {
		return 0, invalid(err)
	}
	return *v, nil
}

func needNonNegative(field string, v *float64) (float64, error) {
	f, err := need(field, v)
	if err != nil {
		return 0, err
	}
	if err := validation.NonNegative(field, f); err != nil {
		return 0, invalid(err)
	}
	return f, nil
}

func optionalNonNegative(field string, v *float64) (float64, error) {
	if v == nil {
		return 0, nil
	}
	return needNonNegative(field, v)
}

func (w *wireSnapshot) convert() (*Snapshot, error) {
	simTime, err := need("sim_time", w.SimTime)
	if err != nil {
		return nil, err
	}
	planet, err := needNonNegative("planet_radius_m", w.PlanetRadius)
	if err != nil {
		return nil, err
	}
	mu, err := needNonNegative("mu", w.Mu)
	if err != nil {
		return nil, err
	}
	well, err := optionalNonNegative("gravity_well_radius_m", w.GravityWell)
	if err != nil {
		return nil, err
	}
	despawn, err := optionalNonNegative("despawn_radius_m", w.Despawn)
	if err != nil {
		return nil, err
	}
	if w.Bodies == nil {
		return nil, malformed("missing bodies")
	}

	entities := make([]Entity, 0, len(*w.Bodies))
	seen := make(map[int64]struct{}, len(*w.Bodies))
	for i, b := range *w.Bodies {
		e, err := b.convert(i)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[e.ID]; dup {
			return nil, malformed("duplicate body id %d", e.ID)
		}
		seen[e.ID] = struct{}{}
		entities = append(entities, e)
	}

	var interior *Interior
	if w.Interior != nil {
		if interior, err = w.Interior.convert(); err != nil {
			return nil, err
		}
	}

	s := NewSnapshot(simTime, planet, mu, entities, interior)
	s.GravityWellRadius = well
	s.DespawnRadius = despawn
	return s, nil
}

func (b *wireBody) convert(i int) (Entity, error) {
	if b.ID == nil {
		return Entity{}, malformed("bodies[%d]: missing id", i)
	}
	if b.BodyType == nil {
		return Entity{}, malformed("body %d: missing body_type", *b.ID)
	}
	bt := BodyType(*b.BodyType)
	if !bt.Valid() {
		return Entity{}, malformed("body %d: unknown body_type %q", *b.ID, *b.BodyType)
	}

	var vals [4]float64
	for j, f := range []struct {
		name string
		v    *float64
	}{{"x", b.X}, {"y", b.Y}, {"vx", b.VX}, {"vy", b.VY}} {
		v, err := need(f.name, f.v)
		if err != nil {
			return Entity{}, fmt.Errorf("body %d: %w", *b.ID, err)
		}
		vals[j] = v
	}
	radius, err := needNonNegative("radius_m", b.Radius)
	if err != nil {
		return Entity{}, fmt.Errorf("body %d: %w", *b.ID, err)
	}

	e := Entity{
		ID:       *b.ID,
		Type:     bt,
		Position: geom.V(vals[0], vals[1]),
		Velocity: geom.V(vals[2], vals[3]),
		Radius:   radius,
	}
	if b.Hull != nil {
		hull, err := b.Hull.convert()
		if err != nil {
			return Entity{}, fmt.Errorf("body %d: %w", e.ID, err)
		}
		e.Hull = hull
	}
	return e, nil
}

// convert returns nil for outlines with fewer than three vertices.
func (h *wireHull) convert() (*Hull, error) {
	if len(h.Vertices) < 3 {
		return nil, nil
	}
	tileSize, err := optionalNonNegative("tile_size_m", h.TileSize)
	if err != nil {
		return nil, err
	}
	hull := &Hull{TileSize: tileSize, Vertices: make([]geom.Vec2, 0, len(h.Vertices))}
	for i, v := range h.Vertices {
		x, err := need(fmt.Sprintf("hull_shape.vertices[%d].x", i), v.X)
		if err != nil {
			return nil, err
		}
		y, err := need(fmt.Sprintf("hull_shape.vertices[%d].y", i), v.Y)
		if err != nil {
			return nil, err
		}
		hull.Vertices = append(hull.Vertices, geom.V(x, y))
	}
	return hull, nil
}

func (w *wireInterior) convert() (*Interior, error) {
	if w.Width == nil || w.Height == nil {
		return nil, malformed("interior: missing width or height")
	}
	if err := validation.PositiveInt("interior.width", *w.Width); err != nil {
		return nil, invalid(err)
	}
	if err := validation.PositiveInt("interior.height", *w.Height); err != nil {
		return nil, invalid(err)
	}

	in := &Interior{Width: *w.Width, Height: *w.Height, Atmos: w.Atmos}

	rows := min(len(w.Tiles), in.Height)
	in.Tiles = make([][]Tile, rows)
	for y := 0; y < rows; y++ {
		cols := min(len(w.Tiles[y]), in.Width)
		row := make([]Tile, cols)
		for x := 0; x < cols; x++ {
			wt := w.Tiles[y][x]
			row[x] = Tile{Type: parseTileType(wt.Type), Atmos: wt.Atmos}
		}
		in.Tiles[y] = row
	}

	in.Devices = make([]Device, 0, len(w.Devices))
	seen := make(map[int64]struct{}, len(w.Devices))
	for i := range w.Devices {
		d, err := w.Devices[i].convert(i)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[d.ID]; dup {
			return nil, malformed("duplicate device id %d", d.ID)
		}
		seen[d.ID] = struct{}{}
		in.Devices = append(in.Devices, d)
	}

	if w.Pawn != nil {
		pawn, err := w.Pawn.convert()
		if err != nil {
			return nil, err
		}
		in.Pawn = pawn
	}
	if w.Power != nil {
		in.Power = &PowerInfo{
			NetKW:         w.Power.NetKW,
			ProductionKW:  w.Power.ProductionKW,
			ConsumptionKW: w.Power.ConsumptionKW,
		}
	}
	if w.PowerSummary != nil {
		ps, err := w.PowerSummary.convert()
		if err != nil {
			return nil, err
		}
		in.PowerSummary = ps
	}
	if w.Nav != nil {
		in.Nav = w.Nav.convert()
	}

	in.index()
	return in, nil
}

func (w *wireDevice) convert(i int) (Device, error) {
	if w.ID == nil {
		return Device{}, malformed("devices[%d]: missing id", i)
	}
	if w.Kind == nil {
		return Device{}, malformed("device %d: missing kind", *w.ID)
	}
	kind := DeviceKind(*w.Kind)
	if !kind.Valid() {
		return Device{}, malformed("device %d: unknown kind %q", *w.ID, *w.Kind)
	}
	if w.X == nil || w.Y == nil {
		return Device{}, malformed("device %d: missing x or y", *w.ID)
	}

	d := Device{
		ID:           *w.ID,
		Kind:         kind,
		Pos:          geom.TilePos{X: *w.X, Y: *w.Y},
		W:            1,
		H:            1,
		Online:       true,
		DeviceDetail: w.DeviceDetail,
	}
	if w.W != nil {
		d.W = *w.W
	}
	if w.H != nil {
		d.H = *w.H
	}
	if d.W < 1 || d.H < 1 {
		return Device{}, malformed("device %d: footprint %dx%d", d.ID, d.W, d.H)
	}
	if w.Online != nil {
		d.Online = *w.Online
	}
	if w.PowerKW != nil {
		if err := validation.Finite("power_kw", *w.PowerKW); err != nil {
			return Device{}, invalid(err)
		}
		d.PowerKW = *w.PowerKW
	}
	d.GasType = validation.SanitizeLabel(d.GasType)
	d.Callsign = validation.SanitizeLabel(d.Callsign)
	return d, nil
}

func (w *wirePawn) convert() (*Pawn, error) {
	if w.X == nil || w.Y == nil {
		return nil, malformed("pawn: missing x or y")
	}
	p := &Pawn{
		Pos:    geom.TilePos{X: *w.X, Y: *w.Y},
		Status: validation.SanitizeLabel(w.Status),
	}
	if p.Status == "" {
		p.Status = "Idle"
	}
	if w.Needs != nil {
		p.Needs = Needs{Hunger: w.Needs.Hunger, Thirst: w.Needs.Thirst, Rest: w.Needs.Rest}
	}
	if w.Health != nil {
		for _, bp := range w.Health.BodyParts {
			p.Health = append(p.Health, BodyPart{
				Name:  validation.SanitizeLabel(bp.Name),
				HP:    bp.HP,
				MaxHP: bp.MaxHP,
				Vital: bp.Vital,
			})
		}
	}
	return p, nil
}

func (w *wirePowerSummary) convert() (*PowerSummary, error) {
	ps := &PowerSummary{GenerationKW: w.GenerationKW, LoadKW: w.LoadKW, NetKW: w.NetKW}
	for i, d := range w.Devices {
		if d.ID == nil {
			return nil, malformed("power_summary.devices[%d]: missing id", i)
		}
		row := PowerDevice{
			ID:           *d.ID,
			Name:         validation.SanitizeLabel(d.Name),
			Group:        validation.SanitizeLabel(d.Group),
			DrawKW:       d.DrawKW,
			Online:       true,
			Controllable: d.Controllable,
		}
		if row.Name == "" {
			row.Name = fmt.Sprintf("Device %d", row.ID)
		}
		if row.Group == "" {
			row.Group = "Misc"
		}
		if d.Online != nil {
			row.Online = *d.Online
		}
		ps.Devices = append(ps.Devices, row)
	}
	return ps, nil
}

func (w *wireNav) convert() *NavContext {
	nav := &NavContext{
		ShipPosition:   geom.V(w.ShipPosition.X, w.ShipPosition.Y),
		ShipVelocity:   geom.V(w.ShipVelocity.X, w.ShipVelocity.Y),
		AltitudeM:      w.AltitudeM,
		ApoapsisM:      w.ApoapsisM,
		PeriapsisM:     w.PeriapsisM,
		SpeedMPS:       w.SpeedMPS,
		OrbitalPeriodS: w.OrbitalPeriodS,
		Heading:        validation.SanitizeLabel(w.Heading),
	}
	for _, c := range w.Contacts {
		nav.Contacts = append(nav.Contacts, Contact{ID: c.ID, Type: BodyType(c.BodyType), DistanceM: c.DistanceM})
	}
	return nav
}

// NewSnapshot assembles a Snapshot from already validated parts and builds
// its id index.
func NewSnapshot(simTime, planetRadius, mu float64, entities []Entity, interior *Interior) *Snapshot {
	s := &Snapshot{
		SimTime:      simTime,
		PlanetRadius: planetRadius,
		Mu:           mu,
		Entities:     entities,
		Interior:     interior,
		byID:         make(map[int64]int, len(entities)),
	}
	for i, e := range entities {
		s.byID[e.ID] = i
	}
	if interior != nil && interior.deviceByID == nil {
		interior.index()
	}
	return s
}

func (in *Interior) index() {
	in.deviceByID = make(map[int64]int, len(in.Devices))
	for i, d := range in.Devices {
		in.deviceByID[d.ID] = i
	}
}
