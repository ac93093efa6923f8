// pkg/protocol/device.go
package protocol

import (
	"github.com/opd-ai/ggw-viewer/pkg/geom"
)

// DeviceKind tags an interior device.
type DeviceKind string

const (
	DeviceTank           DeviceKind = "Tank"
	DeviceReactorUranium DeviceKind = "ReactorUranium"
	DeviceDispenser      DeviceKind = "Dispenser"
	DeviceNavStation     DeviceKind = "NavStation"
	DeviceTransponder    DeviceKind = "Transponder"
	DeviceShipComputer   DeviceKind = "ShipComputer"
	DeviceBed            DeviceKind = "BedDevice"
	DeviceToilet         DeviceKind = "Toilet"
	DeviceFoodGenerator  DeviceKind = "FoodGenerator"
	DeviceRCSThruster    DeviceKind = "RCSThruster"
	DeviceLight          DeviceKind = "Light"
	DeviceDoor           DeviceKind = "DoorDevice"
	DevicePowerLine      DeviceKind = "PowerLine"
	DeviceGasLine        DeviceKind = "GasLine"
)

// DeviceKinds lists every accepted DeviceKind.
var DeviceKinds = []DeviceKind{
	DeviceTank, DeviceReactorUranium, DeviceDispenser, DeviceNavStation,
	DeviceTransponder, DeviceShipComputer, DeviceBed, DeviceToilet,
	DeviceFoodGenerator, DeviceRCSThruster, DeviceLight, DeviceDoor,
	DevicePowerLine, DeviceGasLine,
}

// Valid reports whether k is one of DeviceKinds.
func (k DeviceKind) Valid() bool {
	for _, dk := range DeviceKinds {
		if k == dk {
			return true
		}
	}
	return false
}

// Device is a positioned object inside an interior.
type Device struct {
	ID      int64
	Kind    DeviceKind
	Pos     geom.TilePos
	W, H    int
	Online  bool
	PowerKW float64

	DeviceDetail
}

// DeviceDetail holds the kind-specific fields. Each is nil or empty when the
// simulation did not send it.
type DeviceDetail struct {
	// ReactorUranium
	FuelKg      *float64 `json:"fuel_kg"`
	MaxFuelKg   *float64 `json:"max_fuel_kg"`
	OutputKW    *float64 `json:"power_output_kw"`
	BurnRateKgS *float64 `json:"fuel_burn_rate_kg_per_s"`

	// Tank
	O2Kg       *float64 `json:"o2_kg"`
	N2Kg       *float64 `json:"n2_kg"`
	CO2Kg      *float64 `json:"co2_kg"`
	XenonKg    *float64 `json:"xenon_kg"`
	CapacityKg *float64 `json:"capacity_kg"`

	// Dispenser
	Active          *bool    `json:"active"`
	RateKgS         *float64 `json:"rate_kg_per_s"`
	GasType         string   `json:"gas_type"`
	ConnectedTankID *int64   `json:"connected_tank_id"`

	Intensity    *float64 `json:"intensity"`
	Callsign     string   `json:"callsign"`
	Open         *bool    `json:"open"`
	FoodUnits    *float64 `json:"food_units"`
	MaxFoodUnits *float64 `json:"max_food_units"`
}

// Rect is the device footprint.
func (d Device) Rect() geom.TileRect {
	return geom.TileRect{X: d.Pos.X, Y: d.Pos.Y, W: d.W, H: d.H}
}
