package hud

import (
	"math"
	"strings"
	"testing"

	"github.com/opd-ai/ggw-viewer/pkg/geom"
	"github.com/opd-ai/ggw-viewer/pkg/interaction"
	"github.com/opd-ai/ggw-viewer/pkg/protocol"
)

const earthMu = 3.986004418e14

func TestFormatDistance(t *testing.T) {
	tests := []struct {
		meters   float64
		expected string
	}{
		{0, "0 m"},
		{999, "999 m"},
		{1500, "1.50 km"},
		{6371000, "6.37 Mm"},
		{4.2e9, "4.20 Gm"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := FormatDistance(tt.meters); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestOrbit(t *testing.T) {
	r := 7e6
	circular := math.Sqrt(earthMu / r)

	a, period, ok := Orbit(geom.V(r, 0), geom.V(0, circular), earthMu)
	if !ok {
		t.Fatal("expected a bound orbit")
	}
	if math.Abs(a-r) > 1 {
		t.Errorf("expected semi-major axis %v, got %v", r, a)
	}
	want := 2 * math.Pi * math.Sqrt(r*r*r/earthMu)
	if math.Abs(period-want) > 1e-6*want {
		t.Errorf("expected period %v, got %v", want, period)
	}

	escape := math.Sqrt(2*earthMu/r) * 1.01
	if _, _, ok := Orbit(geom.V(r, 0), geom.V(0, escape), earthMu); ok {
		t.Error("hyperbolic state should have no period")
	}
	if _, _, ok := Orbit(geom.V(r, 0), geom.V(0, circular), 0); ok {
		t.Error("zero mu should have no period")
	}
	if _, _, ok := Orbit(geom.Vec2{}, geom.V(0, circular), earthMu); ok {
		t.Error("zero radius should have no period")
	}
}

func TestBodyPanel(t *testing.T) {
	r := 7e6
	e := protocol.Entity{
		ID:       3,
		Type:     protocol.BodyShip,
		Position: geom.V(r, 0),
		Velocity: geom.V(0, math.Sqrt(earthMu/r)),
		Radius:   25,
	}
	snap := protocol.NewSnapshot(0, 6371000, earthMu, []protocol.Entity{e}, nil)

	p := BodyPanel(snap, e)

	if p.Title != "ID 3 (Ship)" {
		t.Errorf("unexpected title %q", p.Title)
	}
	want := []string{"Alt: 629.00 km", "Speed: 7.55 km/s", "Radius: 25 m"}
	for i, line := range want {
		if p.Lines[i] != line {
			t.Errorf("line %d: expected %q, got %q", i, line, p.Lines[i])
		}
	}
	if len(p.Lines) != 4 || !strings.HasPrefix(p.Lines[3], "Period: ") {
		t.Errorf("expected a period line, got %v", p.Lines)
	}
}

func TestPlanetPanel_Fallbacks(t *testing.T) {
	snap := protocol.NewSnapshot(0, 6371000, earthMu, nil, nil)
	snap.GravityWellRadius = 9e8

	p := PlanetPanel(snap)

	want := []string{"Radius: 6.37 Mm", "Gravity well: 900.00 Mm", "Despawn: 900.00 Mm"}
	for i, line := range want {
		if p.Lines[i] != line {
			t.Errorf("line %d: expected %q, got %q", i, line, p.Lines[i])
		}
	}
}

func TestBar(t *testing.T) {
	tests := []struct {
		value, max float64
		expected   string
	}{
		{5, 10, "[#####-----]"},
		{20, 10, "[##########]"},
		{-1, 10, "[----------]"},
		{1, 0, "[----------]"},
	}
	for _, tt := range tests {
		if got := Bar(tt.value, tt.max, 10); got != tt.expected {
			t.Errorf("Bar(%v, %v) = %q, want %q", tt.value, tt.max, got, tt.expected)
		}
	}
}

func interior() *protocol.Interior {
	pressure := 101.3
	return &protocol.Interior{
		Width:  3,
		Height: 2,
		Tiles: [][]protocol.Tile{
			{{Type: protocol.TileWall}, {Type: protocol.TileFloor, Atmos: &protocol.Atmos{PressureKPa: &pressure}}, {Type: protocol.TileFloor}},
			{{Type: protocol.TileFloor}, {Type: protocol.TileFloor}, {Type: protocol.TileFloor}},
		},
		Devices: []protocol.Device{
			{ID: 1, Kind: protocol.DeviceNavStation, Pos: geom.TilePos{X: 2, Y: 1}, W: 1, H: 1, Online: true},
			{ID: 2, Kind: protocol.DeviceTransponder, Pos: geom.TilePos{X: 0, Y: 1}, W: 1, H: 1, DeviceDetail: protocol.DeviceDetail{Callsign: "GGW-7"}},
			{ID: 3, Kind: protocol.DeviceShipComputer, Pos: geom.TilePos{X: 2, Y: 0}, W: 1, H: 1},
			{ID: 4, Kind: protocol.DeviceReactorUranium, Pos: geom.TilePos{X: 1, Y: 1}, W: 1, H: 1, Online: true},
		},
		PowerSummary: &protocol.PowerSummary{
			GenerationKW: 12, LoadKW: 4.5, NetKW: 7.5,
			Devices: []protocol.PowerDevice{
				{ID: 10, Name: "Lamp", Group: "Misc", Online: true, Controllable: true, DrawKW: 0.5},
				{ID: 11, Name: "Core", Group: "Reactor", Online: true},
			},
		},
		Pawn: &protocol.Pawn{
			Status: "Idle",
			Needs:  protocol.Needs{Hunger: 0.25, Thirst: 0.5, Rest: 1},
			Health: []protocol.BodyPart{{Name: "Head", HP: 10, MaxHP: 10, Vital: true}},
		},
	}
}

func TestTilePanel(t *testing.T) {
	in := interior()
	protocol.NewSnapshot(0, 1, 1, nil, in)

	tests := []struct {
		name  string
		pos   geom.TilePos
		title string
		line  string
	}{
		{"wall", geom.TilePos{X: 0, Y: 0}, "Standard Wall", "Standard wall. No atmosphere sample."},
		{"floor with atmos", geom.TilePos{X: 1, Y: 0}, "Floor", "  P: 101.3 kPa"},
		{"device tile", geom.TilePos{X: 2, Y: 0}, "ShipComputer", "Pos: (2, 0)"},
		{"reactor tile", geom.TilePos{X: 1, Y: 1}, "ReactorUranium", "Fuel: 0.0 / 0.0 kg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := TilePanel(in, tt.pos)
			if !ok {
				t.Fatal("expected a panel")
			}
			if p.Title != tt.title {
				t.Errorf("expected title %q, got %q", tt.title, p.Title)
			}
			found := false
			for _, l := range p.Lines {
				if l == tt.line {
					found = true
				}
			}
			if !found {
				t.Errorf("expected line %q in %v", tt.line, p.Lines)
			}
		})
	}

	if _, ok := TilePanel(in, geom.TilePos{X: 5, Y: 5}); ok {
		t.Error("out of bounds tile should have no panel")
	}
}

func TestPawnPanel(t *testing.T) {
	p, ok := PawnPanel(interior())
	if !ok {
		t.Fatal("expected a pawn panel")
	}
	want := []string{"Status: Idle", "Hunger: 25%", "Thirst: 50%", "Rest: 100%", "Net power: +7.5 kW", "*Head       [##########]"}
	if len(p.Lines) != len(want) {
		t.Fatalf("expected %v, got %v", want, p.Lines)
	}
	for i := range want {
		if p.Lines[i] != want[i] {
			t.Errorf("line %d: expected %q, got %q", i, want[i], p.Lines[i])
		}
	}

	if _, ok := PawnPanel(&protocol.Interior{}); ok {
		t.Error("no pawn should mean no panel")
	}
}

func TestModalPanel(t *testing.T) {
	snap := protocol.NewSnapshot(0, 1, 1, nil, interior())

	t.Run("comms tab", func(t *testing.T) {
		m := &interaction.NavConsole{DeviceID: 1, Tab: interaction.TabComms, Highlight: 2}
		p, ok := ModalPanel(snap, m, []string{"[09:00] SHIP: hello"})
		if !ok {
			t.Fatal("expected a panel")
		}
		if p.Lines[0] != "Callsign: GGW-7" {
			t.Errorf("expected transponder callsign, got %q", p.Lines[0])
		}
		if p.Lines[p.Highlight] != "[3] Request crew list" {
			t.Errorf("highlight points at %q", p.Lines[p.Highlight])
		}
		if !strings.Contains(strings.Join(p.Lines, "\n"), "[09:00] SHIP: hello") {
			t.Error("expected the comms log in the panel")
		}
	})

	t.Run("nav tab", func(t *testing.T) {
		p, _ := ModalPanel(snap, &interaction.NavConsole{DeviceID: 1}, nil)
		if p.Lines[0] != "No nav telemetry." {
			t.Errorf("unexpected first line %q", p.Lines[0])
		}
		if p.Highlight != -1 {
			t.Errorf("nav tab has no highlight, got %d", p.Highlight)
		}
	})

	t.Run("ship computer", func(t *testing.T) {
		p, _ := ModalPanel(snap, &interaction.ShipComputerPanel{DeviceID: 3, Highlight: 1}, nil)
		if p.Lines[0] != "GEN 12.0 kW  LOAD 4.5 kW  NET +7.5 kW" {
			t.Errorf("unexpected power line %q", p.Lines[0])
		}
		got := p.Lines[p.Highlight]
		if !strings.Contains(got, "Lamp") || !strings.HasSuffix(got, "TOGGLE") {
			t.Errorf("expected the Lamp row highlighted, got %q", got)
		}
		if p.Lines[2] != "[Reactor]" {
			t.Errorf("expected the reactor group first, got %q", p.Lines[2])
		}
	})

	t.Run("device panel", func(t *testing.T) {
		p, _ := ModalPanel(snap, &interaction.DevicePanel{DeviceID: 4, Kind: protocol.DeviceReactorUranium}, nil)
		joined := strings.Join(p.Lines, "\n")
		for _, want := range []string{"Core state: Online", "[T] Toggle reactor", "[ESC] Close"} {
			if !strings.Contains(joined, want) {
				t.Errorf("expected %q in panel", want)
			}
		}
	})

	t.Run("missing device", func(t *testing.T) {
		if _, ok := ModalPanel(snap, &interaction.DevicePanel{DeviceID: 99}, nil); ok {
			t.Error("expected no panel for a vanished device")
		}
	})
}

func TestNavLines(t *testing.T) {
	apo := 8e6
	nav := &protocol.NavContext{
		AltitudeM: 400000,
		ApoapsisM: &apo,
		SpeedMPS:  7660,
		Contacts: []protocol.Contact{
			{ID: 1, Type: protocol.BodyAsteroid, DistanceM: 1200},
			{ID: 2, DistanceM: 10},
			{ID: 3}, {ID: 4}, {ID: 5},
		},
	}

	lines := NavLines(nav)

	want := map[int]string{
		0: "Altitude: 400.00 km",
		1: "Apoapsis: 8.00 Mm",
		2: "Periapsis: n/a",
		3: "Speed: 7.66 km/s",
		5: "Heading: Unknown",
		8: "  Asteroid #1: 1.20 km",
		9: "  Object #2: 10 m",
	}
	for i, line := range want {
		if lines[i] != line {
			t.Errorf("line %d: expected %q, got %q", i, line, lines[i])
		}
	}
	if got := len(lines) - 8; got != maxContacts {
		t.Errorf("expected %d contacts listed, got %d", maxContacts, got)
	}
}

func TestStatusLine(t *testing.T) {
	tests := []struct {
		name     string
		status   Status
		expected string
	}{
		{"disconnected", Status{Awaiting: true}, "LINK DOWN - retrying | awaiting snapshot"},
		{"running", Status{Connected: true, SimTime: 12.34, TimeScale: 60}, "LINK UP | t=12.3 s | x60 | orbit"},
		{"drops", Status{Connected: true, TimeScale: 1, Mode: interaction.ViewInterior, Dropped: 2}, "LINK UP | t=0.0 s | x1 | interior | 2 dropped"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusLine(tt.status); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}
