// pkg/protocol/command.go
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opd-ai/ggw-viewer/pkg/validation"
)

// Command type discriminators.
const (
	TypeSetTimeScale       = "set_time_scale"
	TypeMovePawn           = "move_pawn"
	TypeToggleSleep        = "toggle_sleep"
	TypeInteractAt         = "interact_at"
	TypeDeviceAction       = "device_action"
	TypeShipComputerToggle = "ship_computer_toggle"
)

// ErrUnknownCommand is returned by DecodeCommand for an unrecognised type.
var ErrUnknownCommand = errors.New("unknown command type")

// Command is an outbound request to the simulation. The simulation answers
// only through later snapshots.
type Command interface {
	Type() string
}

// SetTimeScale changes simulation speed.
type SetTimeScale struct {
	TimeScale float64 `json:"time_scale"`
}

// MovePawn steps the pawn by one tile.
type MovePawn struct {
	DX int `json:"dx"`
	DY int `json:"dy"`
}

// ToggleSleep puts the pawn to bed or wakes it.
type ToggleSleep struct{}

// InteractAt uses whatever is at a tile.
type InteractAt struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// DeviceAction invokes a named action on a device.
type DeviceAction struct {
	DeviceID int64  `json:"device_id"`
	Action   string `json:"action"`
}

// ShipComputerToggle switches a device on or off from the ship computer.
type ShipComputerToggle struct {
	DeviceID int64 `json:"device_id"`
}

func (SetTimeScale) Type() string       { return TypeSetTimeScale }
func (MovePawn) Type() string           { return TypeMovePawn }
func (ToggleSleep) Type() string        { return TypeToggleSleep }
func (InteractAt) Type() string         { return TypeInteractAt }
func (DeviceAction) Type() string       { return TypeDeviceAction }
func (ShipComputerToggle) Type() string { return TypeShipComputerToggle }

// MarshalJSON methods add the "type" field next to the command's own fields.

func (c SetTimeScale) MarshalJSON() ([]byte, error) {
	type fields SetTimeScale
	c.TimeScale = validation.ClampTimeScale(c.TimeScale)
	return json.Marshal(struct {
		Type string `json:"type"`
		fields
	}{c.Type(), fields(c)})
}

func (c MovePawn) MarshalJSON() ([]byte, error) {
	type fields MovePawn
	return json.Marshal(struct {
		Type string `json:"type"`
		fields
	}{c.Type(), fields(c)})
}

func (c ToggleSleep) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
	}{c.Type()})
}

func (c InteractAt) MarshalJSON() ([]byte, error) {
	type fields InteractAt
	return json.Marshal(struct {
		Type string `json:"type"`
		fields
	}{c.Type(), fields(c)})
}

func (c DeviceAction) MarshalJSON() ([]byte, error) {
	type fields DeviceAction
	return json.Marshal(struct {
		Type string `json:"type"`
		fields
	}{c.Type(), fields(c)})
}

func (c ShipComputerToggle) MarshalJSON() ([]byte, error) {
	type fields ShipComputerToggle
	return json.Marshal(struct {
		Type string `json:"type"`
		fields
	}{c.Type(), fields(c)})
}

// EncodeCommand renders cmd as one newline-terminated line.
func EncodeCommand(cmd Command) ([]byte, error) {
	if cmd == nil {
		return nil, errors.New("nil command")
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", cmd.Type(), err)
	}
	return append(data, '\n'), nil
}

// DecodeCommand parses a line produced by EncodeCommand.
func DecodeCommand(line []byte) (Command, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &head); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}

	var cmd Command
	var err error
	switch head.Type {
	case TypeSetTimeScale:
		var c SetTimeScale
		err = json.Unmarshal(line, &c)
		cmd = c
	case TypeMovePawn:
		var c MovePawn
		err = json.Unmarshal(line, &c)
		cmd = c
	case TypeToggleSleep:
		cmd = ToggleSleep{}
	case TypeInteractAt:
		var c InteractAt
		err = json.Unmarshal(line, &c)
		cmd = c
	case TypeDeviceAction:
		var c DeviceAction
		err = json.Unmarshal(line, &c)
		cmd = c
	case TypeShipComputerToggle:
		var c ShipComputerToggle
		err = json.Unmarshal(line, &c)
		cmd = c
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", head.Type, err)
	}
	return cmd, nil
}
