// pkg/interaction/modal.go
package interaction

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/opd-ai/ggw-viewer/pkg/protocol"
)

// Modal is the open device dialog. At most one is open at a time; the
// concrete type carries the sub-state of its device family.
type Modal interface {
	deviceID() int64
	clone() Modal
}

// ModalDevice returns the device id a modal is bound to.
func ModalDevice(m Modal) int64 {
	if m == nil {
		return 0
	}
	return m.deviceID()
}

// CloneModal returns a copy of m that later key presses do not change.
func CloneModal(m Modal) Modal {
	if m == nil {
		return nil
	}
	return m.clone()
}

// NavTab is a navigation console page.
type NavTab int

const (
	TabNav NavTab = iota
	TabComms
)

func (t NavTab) String() string {
	if t == TabComms {
		return "COMMS"
	}
	return "NAV"
}

// NavConsole is the NavStation dialog. Highlight indexes CommsMenu while the
// COMMS tab is shown.
type NavConsole struct {
	DeviceID  int64
	Tab       NavTab
	Highlight int
}

// ShipComputerPanel lists power consumers. Highlight indexes the rows
// returned by OrderedPowerDevices.
type ShipComputerPanel struct {
	DeviceID  int64
	Highlight int
}

// DevicePanel is the generic dialog driven by the device's action table.
type DevicePanel struct {
	DeviceID int64
	Kind     protocol.DeviceKind
}

func (m *NavConsole) deviceID() int64        { return m.DeviceID }
func (m *ShipComputerPanel) deviceID() int64 { return m.DeviceID }
func (m *DevicePanel) deviceID() int64       { return m.DeviceID }

func (m *NavConsole) clone() Modal        { c := *m; return &c }
func (m *ShipComputerPanel) clone() Modal { c := *m; return &c }
func (m *DevicePanel) clone() Modal       { c := *m; return &c }

// Interactive reports whether a device kind may open a modal.
func Interactive(kind protocol.DeviceKind) bool {
	switch kind {
	case protocol.DeviceReactorUranium, protocol.DeviceNavStation,
		protocol.DeviceTransponder, protocol.DeviceShipComputer:
		return true
	}
	return false
}

func openModal(d protocol.Device) Modal {
	switch d.Kind {
	case protocol.DeviceNavStation:
		return &NavConsole{DeviceID: d.ID, Tab: TabNav}
	case protocol.DeviceShipComputer:
		return &ShipComputerPanel{DeviceID: d.ID}
	default:
		return &DevicePanel{DeviceID: d.ID, Kind: d.Kind}
	}
}

// Action is one key binding of a DevicePanel.
type Action struct {
	Key   rune
	Label string
	Name  string // sent as device_action.action
}

var actionTable = map[protocol.DeviceKind][]Action{
	protocol.DeviceReactorUranium: {{Key: 't', Label: "[T] Toggle reactor", Name: "toggle"}},
	protocol.DeviceDispenser:      {{Key: 't', Label: "[T] Toggle dispenser", Name: "toggle"}},
}

// Actions returns the key bindings for a device kind.
func Actions(kind protocol.DeviceKind) []Action {
	return actionTable[kind]
}

// CommsMenu is the fixed list of messages on the COMMS tab.
var CommsMenu = []string{
	"Request undocking clearance",
	"SOS: Out of fuel",
	"Request crew list",
	"Show on nav map",
}

// DefaultCommsLog seeds a new CommsLog.
var DefaultCommsLog = []string{
	"[15:30] LINK: Connected to GGW-PORT",
	"[15:31] CTRL: Cleared for departure. Have a safe flight.",
}

// DefaultCommsLogLimit bounds the log when no limit is configured.
const DefaultCommsLogLimit = 14

// CommsLog is a bounded, append-only message history. Old entries fall off
// the front.
type CommsLog struct {
	limit int
	lines []string
}

// NewCommsLog creates a log holding at most limit lines.
func NewCommsLog(limit int) *CommsLog {
	if limit < 1 {
		limit = DefaultCommsLogLimit
	}
	l := &CommsLog{limit: limit}
	for _, line := range DefaultCommsLog {
		l.Append(line)
	}
	return l
}

// Append adds a line, evicting the oldest past the limit.
func (l *CommsLog) Append(line string) {
	l.lines = append(l.lines, line)
	if over := len(l.lines) - l.limit; over > 0 {
		l.lines = append(l.lines[:0], l.lines[over:]...)
	}
}

// Lines returns a copy of the log, oldest first.
func (l *CommsLog) Lines() []string {
	return append([]string(nil), l.lines...)
}

func commsEntry(now time.Time, option string) string {
	return fmt.Sprintf("[%s] SHIP: %s", now.Format("15:04"), option)
}

// PowerGroupOrder is the display order of ship computer groups. Groups not
// listed follow in name order.
var PowerGroupOrder = []string{"Reactor", "Life Support", "Nav & Comms", "Misc"}

// OrderedPowerDevices returns the ship computer rows grouped by
// PowerGroupOrder and sorted by name within each group.
func OrderedPowerDevices(summary *protocol.PowerSummary) []protocol.PowerDevice {
	if summary == nil || len(summary.Devices) == 0 {
		return nil
	}
	rank := make(map[string]int, len(PowerGroupOrder))
	for i, g := range PowerGroupOrder {
		rank[g] = i
	}
	groupRank := func(g string) int {
		if r, ok := rank[g]; ok {
			return r
		}
		return len(PowerGroupOrder)
	}

	rows := append([]protocol.PowerDevice(nil), summary.Devices...)
	sort.SliceStable(rows, func(i, j int) bool {
		ri, rj := groupRank(rows[i].Group), groupRank(rows[j].Group)
		if ri != rj {
			return ri < rj
		}
		if rows[i].Group != rows[j].Group {
			return rows[i].Group < rows[j].Group
		}
		return strings.Compare(rows[i].Name, rows[j].Name) < 0
	})
	return rows
}
