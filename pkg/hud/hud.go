// Package hud builds the text shown in panels and overlays. It has no
// drawing code; frontends lay the lines out however they like.
package hud

import (
	"fmt"
	"math"
	"strings"

	"github.com/opd-ai/ggw-viewer/pkg/geom"
	"github.com/opd-ai/ggw-viewer/pkg/interaction"
	"github.com/opd-ai/ggw-viewer/pkg/protocol"
)

// Panel is a titled block of lines. Highlight is the index of the line to
// emphasize, or -1.
type Panel struct {
	Title     string
	Lines     []string
	Highlight int
}

func panel(title string, lines ...string) Panel {
	return Panel{Title: title, Lines: lines, Highlight: -1}
}

// FormatDistance renders meters in the largest of m, km, Mm or Gm that keeps
// the value at or above one.
func FormatDistance(meters float64) string {
	switch abs := math.Abs(meters); {
	case abs < 1e3:
		return fmt.Sprintf("%.0f m", meters)
	case abs < 1e6:
		return fmt.Sprintf("%.2f km", meters/1e3)
	case abs < 1e9:
		return fmt.Sprintf("%.2f Mm", meters/1e6)
	default:
		return fmt.Sprintf("%.2f Gm", meters/1e9)
	}
}

// FormatSpeed renders meters per second as km/s.
func FormatSpeed(mps float64) string {
	return fmt.Sprintf("%.2f km/s", mps/1e3)
}

// FormatDuration renders seconds as hours.
func FormatDuration(seconds float64) string {
	return fmt.Sprintf("%.2f h", seconds/3600)
}

// Orbit derives the semi-major axis and period from vis-viva. ok is false
// for unbound or degenerate states.
func Orbit(pos, vel geom.Vec2, mu float64) (semiMajor, period float64, ok bool) {
	r := pos.Length()
	if mu <= 0 || r <= 0 {
		return 0, 0, false
	}
	speed := vel.Length()
	denom := 2/r - speed*speed/mu
	if denom <= 1e-12 {
		return 0, 0, false
	}
	semiMajor = 1 / denom
	period = 2 * math.Pi * math.Sqrt(semiMajor*semiMajor*semiMajor/mu)
	return semiMajor, period, true
}

// BodyPanel describes an orbital entity.
func BodyPanel(snap *protocol.Snapshot, e protocol.Entity) Panel {
	r := e.Position.Length()
	speed := e.Velocity.Length()
	p := panel(fmt.Sprintf("ID %d (%s)", e.ID, e.Type),
		"Alt: "+FormatDistance(math.Max(0, r-snap.PlanetRadius)),
		"Speed: "+FormatSpeed(speed),
		"Radius: "+FormatDistance(e.Radius),
	)
	if _, period, ok := Orbit(e.Position, e.Velocity, snap.Mu); ok {
		p.Lines = append(p.Lines, "Period: "+FormatDuration(period))
	}
	return p
}

// PlanetPanel describes the central body. Missing radii fall back to the
// next smaller one.
func PlanetPanel(snap *protocol.Snapshot) Panel {
	well := snap.GravityWellRadius
	if well <= 0 {
		well = snap.PlanetRadius
	}
	despawn := snap.DespawnRadius
	if despawn <= 0 {
		despawn = well
	}
	return panel("Planet",
		"Radius: "+FormatDistance(snap.PlanetRadius),
		"Gravity well: "+FormatDistance(well),
		"Despawn: "+FormatDistance(despawn),
	)
}

// PawnPanel summarizes the crew member. Vital body parts are starred.
func PawnPanel(in *protocol.Interior) (Panel, bool) {
	if in == nil || in.Pawn == nil {
		return Panel{}, false
	}
	pawn := in.Pawn
	p := panel("Pawn",
		"Status: "+pawn.Status,
		fmt.Sprintf("Hunger: %.0f%%", pawn.Needs.Hunger*100),
		fmt.Sprintf("Thirst: %.0f%%", pawn.Needs.Thirst*100),
		fmt.Sprintf("Rest: %.0f%%", pawn.Needs.Rest*100),
	)
	if line, ok := NetPowerLine(in); ok {
		p.Lines = append(p.Lines, line)
	}
	for _, part := range pawn.Health {
		mark := " "
		if part.Vital {
			mark = "*"
		}
		p.Lines = append(p.Lines, fmt.Sprintf("%s%-10s %s", mark, part.Name, Bar(part.HP, part.MaxHP, 10)))
	}
	return p, true
}

// Bar renders value/max as a fixed-width gauge.
func Bar(value, max float64, width int) string {
	frac := 0.0
	if max > 0 {
		frac = math.Max(0, math.Min(1, value/max))
	}
	filled := int(math.Round(frac * float64(width)))
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

// NetPowerLine reports the grid balance, preferring the ship computer's
// summary.
func NetPowerLine(in *protocol.Interior) (string, bool) {
	switch {
	case in.PowerSummary != nil:
		return fmt.Sprintf("Net power: %+.1f kW", in.PowerSummary.NetKW), true
	case in.Power != nil:
		return fmt.Sprintf("Net power: %+.1f kW", in.Power.NetKW), true
	}
	return "", false
}

// PowerLine is the ship computer header.
func PowerLine(s *protocol.PowerSummary) string {
	if s == nil {
		return "GEN 0.0 kW  LOAD 0.0 kW  NET +0.0 kW"
	}
	return fmt.Sprintf("GEN %.1f kW  LOAD %.1f kW  NET %+.1f kW", s.GenerationKW, s.LoadKW, s.NetKW)
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// DeviceLines describes a device, with kind-specific detail appended.
func DeviceLines(d protocol.Device) []string {
	lines := []string{
		fmt.Sprintf("Pos: (%d, %d)", d.Pos.X, d.Pos.Y),
		fmt.Sprintf("Size: %dx%d", d.W, d.H),
		fmt.Sprintf("Online: %t", d.Online),
		fmt.Sprintf("Power: %.1f kW", d.PowerKW),
	}
	switch d.Kind {
	case protocol.DeviceReactorUranium:
		lines = append(lines,
			fmt.Sprintf("Fuel: %.1f / %.1f kg", floatOr(d.FuelKg, 0), floatOr(d.MaxFuelKg, 0)),
			fmt.Sprintf("Output: %.0f kW", floatOr(d.OutputKW, 0)))
	case protocol.DeviceTank:
		lines = append(lines,
			fmt.Sprintf("O2: %.1f kg", floatOr(d.O2Kg, 0)),
			fmt.Sprintf("N2: %.1f kg", floatOr(d.N2Kg, 0)),
			fmt.Sprintf("CO2: %.1f kg", floatOr(d.CO2Kg, 0)))
	case protocol.DeviceDispenser:
		gas := d.GasType
		if gas == "" {
			gas = "Unknown"
		}
		lines = append(lines,
			"Gas: "+gas,
			fmt.Sprintf("Rate: %.3f kg/s", floatOr(d.RateKgS, 0)),
			fmt.Sprintf("Active: %t", boolOr(d.Active, false)))
	case protocol.DeviceLight:
		lines = append(lines, fmt.Sprintf("Intensity: %.1f", floatOr(d.Intensity, 0)))
	case protocol.DeviceDoor:
		lines = append(lines, fmt.Sprintf("Open: %t", boolOr(d.Open, false)))
	case protocol.DeviceFoodGenerator:
		lines = append(lines, fmt.Sprintf("Food: %.1f units", floatOr(d.FoodUnits, 0)))
	case protocol.DeviceTransponder:
		lines = append(lines, "Callsign: "+orNA(d.Callsign))
	}
	return lines
}

// AtmosLines renders a gas sample; nil when there is none.
func AtmosLines(a *protocol.Atmos) []string {
	if a == nil {
		return nil
	}
	return []string{
		"Atmos:",
		fmt.Sprintf("  P: %.1f kPa", floatOr(a.PressureKPa, 0)),
		fmt.Sprintf("  O2: %.2f kg", floatOr(a.O2Kg, 0)),
		fmt.Sprintf("  N2: %.2f kg", floatOr(a.N2Kg, 0)),
		fmt.Sprintf("  CO2: %.3f kg", floatOr(a.CO2Kg, 0)),
	}
}

// TilePanel describes the context tile, or the device on it.
func TilePanel(in *protocol.Interior, pos geom.TilePos) (Panel, bool) {
	if in == nil || !in.InBounds(pos) {
		return Panel{}, false
	}
	tile := in.TileAt(pos)
	if d, ok := in.DeviceAt(pos); ok {
		p := panel(string(d.Kind), DeviceLines(d)...)
		if atmos := AtmosLines(tile.Atmos); atmos != nil {
			p.Lines = append(append(p.Lines, ""), atmos...)
		}
		return p, true
	}

	p := panel(string(tile.Type), fmt.Sprintf("Pos: (%d, %d)", pos.X, pos.Y))
	if tile.Type == protocol.TileWall {
		p.Title = "Standard Wall"
		p.Lines = append(p.Lines, "Standard wall. No atmosphere sample.")
		return p, true
	}
	if atmos := AtmosLines(tile.Atmos); atmos != nil {
		p.Lines = append(p.Lines, atmos...)
	} else {
		p.Lines = append(p.Lines, "Atmos: n/a")
	}
	return p, true
}

// SelectionPanel describes whatever is selected.
func SelectionPanel(snap *protocol.Snapshot, sel interaction.Selection) (Panel, bool) {
	if snap == nil {
		return Panel{}, false
	}
	switch sel.Kind {
	case interaction.SelectCentralBody:
		return PlanetPanel(snap), true
	case interaction.SelectEntity:
		if e, ok := snap.Entity(sel.ID); ok {
			return BodyPanel(snap, e), true
		}
	case interaction.SelectDevice, interaction.SelectTile:
		return TilePanel(snap.Interior, sel.Tile)
	}
	return Panel{}, false
}

func optionalDistance(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return FormatDistance(*v)
}

// maxContacts is how many contacts the nav page lists.
const maxContacts = 4

// NavLines is the NAV page of the navigation console.
func NavLines(nav *protocol.NavContext) []string {
	if nav == nil {
		return []string{"No nav telemetry."}
	}
	period := "n/a"
	if nav.OrbitalPeriodS != nil {
		period = FormatDuration(*nav.OrbitalPeriodS)
	}
	heading := nav.Heading
	if heading == "" {
		heading = "Unknown"
	}
	lines := []string{
		"Altitude: " + FormatDistance(nav.AltitudeM),
		"Apoapsis: " + optionalDistance(nav.ApoapsisM),
		"Periapsis: " + optionalDistance(nav.PeriapsisM),
		"Speed: " + FormatSpeed(nav.SpeedMPS),
		"Period: " + period,
		"Heading: " + heading,
		"",
		"Contacts:",
	}
	if len(nav.Contacts) == 0 {
		return append(lines, "  None in range")
	}
	for i, c := range nav.Contacts {
		if i == maxContacts {
			break
		}
		kind := string(c.Type)
		if kind == "" {
			kind = "Object"
		}
		lines = append(lines, fmt.Sprintf("  %s #%d: %s", kind, c.ID, FormatDistance(c.DistanceM)))
	}
	return lines
}

// ModalPanel renders the open modal. comms is the shared comms history.
func ModalPanel(snap *protocol.Snapshot, m interaction.Modal, comms []string) (Panel, bool) {
	if snap == nil || snap.Interior == nil || m == nil {
		return Panel{}, false
	}
	in := snap.Interior
	d, ok := in.Device(interaction.ModalDevice(m))
	if !ok {
		return Panel{}, false
	}

	switch m := m.(type) {
	case *interaction.NavConsole:
		return navPanel(in, m, comms), true
	case *interaction.ShipComputerPanel:
		return shipComputerPanel(in, m), true
	case *interaction.DevicePanel:
		return devicePanel(in, d), true
	}
	return Panel{}, false
}

func navPanel(in *protocol.Interior, m *interaction.NavConsole, comms []string) Panel {
	tabs := "[NAV]  COMMS"
	if m.Tab == interaction.TabComms {
		tabs = " NAV  [COMMS]"
	}
	p := panel("Nav Console  " + tabs)
	if m.Tab == interaction.TabNav {
		p.Lines = append(NavLines(in.Nav), "", "[<-/->] Tab  [ESC] Close")
		return p
	}

	callsign := "N/A"
	for _, d := range in.Devices {
		if d.Kind == protocol.DeviceTransponder {
			callsign = orNA(d.Callsign)
			break
		}
	}
	p.Lines = append(p.Lines, "Callsign: "+callsign, "", "COMMS CONTROL:")
	for i, option := range interaction.CommsMenu {
		if i == m.Highlight {
			p.Highlight = len(p.Lines)
		}
		p.Lines = append(p.Lines, fmt.Sprintf("[%d] %s", i+1, option))
	}
	p.Lines = append(p.Lines, "")
	p.Lines = append(p.Lines, comms...)
	p.Lines = append(p.Lines, "", "[Up/Down] Select  [ENTER] Send  [ESC] Close")
	return p
}

func shipComputerPanel(in *protocol.Interior, m *interaction.ShipComputerPanel) Panel {
	p := panel("Ship Computer", PowerLine(in.PowerSummary), "")
	rows := interaction.OrderedPowerDevices(in.PowerSummary)
	if len(rows) == 0 {
		p.Lines = append(p.Lines, "No devices linked.")
	}
	group := ""
	for i, row := range rows {
		if i == 0 || row.Group != group {
			group = row.Group
			p.Lines = append(p.Lines, "["+group+"]")
		}
		status := "OFFLINE"
		if row.Online {
			status = "ONLINE"
		}
		line := fmt.Sprintf("* %-18s (%5.1f kW)  %s", row.Name, row.DrawKW, status)
		if row.Controllable {
			line += "  TOGGLE"
		}
		if i == m.Highlight {
			p.Highlight = len(p.Lines)
		}
		p.Lines = append(p.Lines, line)
	}
	p.Lines = append(p.Lines, "", "[Up/Down] Select  [ENTER] Toggle  [ESC] Close")
	return p
}

func devicePanel(in *protocol.Interior, d protocol.Device) Panel {
	p := panel(string(d.Kind), DeviceLines(d)...)
	switch d.Kind {
	case protocol.DeviceReactorUranium:
		state := "Offline"
		if d.Online {
			state = "Online"
		}
		p.Lines = append(p.Lines, "Core state: "+state)
	case protocol.DeviceShipComputer:
		p.Lines = append(p.Lines, fmt.Sprintf("Devices linked: %d", len(in.Devices)))
	case protocol.DeviceNavStation:
		p.Lines = append(p.Lines, "Nav telemetry available in console view.")
	}
	p.Lines = append(p.Lines, "")
	for _, a := range interaction.Actions(d.Kind) {
		p.Lines = append(p.Lines, a.Label)
	}
	p.Lines = append(p.Lines, "[ESC] Close")
	return p
}

// Status is what the status line reports.
type Status struct {
	Connected bool
	Awaiting  bool // connected but no snapshot yet
	SimTime   float64
	TimeScale float64
	Mode      interaction.ViewMode
	Dropped   int64
}

// StatusLine renders the bottom status bar.
func StatusLine(s Status) string {
	link := "LINK DOWN - retrying"
	if s.Connected {
		link = "LINK UP"
	}
	if s.Awaiting {
		return link + " | awaiting snapshot"
	}
	line := fmt.Sprintf("%s | t=%.1f s | x%g | %s", link, s.SimTime, s.TimeScale, s.Mode)
	if s.Dropped > 0 {
		line += fmt.Sprintf(" | %d dropped", s.Dropped)
	}
	return line
}
