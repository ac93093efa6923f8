// pkg/protocol/command_test.go
package protocol

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeCommand_WireShape(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want map[string]any
	}{
		{"time scale", SetTimeScale{TimeScale: 60}, map[string]any{"type": "set_time_scale", "time_scale": 60.0}},
		{"time scale clamped", SetTimeScale{TimeScale: 1e7}, map[string]any{"type": "set_time_scale", "time_scale": 10000.0}},
		{"time scale NaN", SetTimeScale{TimeScale: math.NaN()}, map[string]any{"type": "set_time_scale", "time_scale": 1.0}},
		{"move", MovePawn{DX: -1, DY: 0}, map[string]any{"type": "move_pawn", "dx": -1.0, "dy": 0.0}},
		{"sleep", ToggleSleep{}, map[string]any{"type": "toggle_sleep"}},
		{"interact", InteractAt{X: 4, Y: 2}, map[string]any{"type": "interact_at", "x": 4.0, "y": 2.0}},
		{"action", DeviceAction{DeviceID: 7, Action: "toggle"}, map[string]any{"type": "device_action", "device_id": 7.0, "action": "toggle"}},
		{"ship computer", ShipComputerToggle{DeviceID: 9}, map[string]any{"type": "ship_computer_toggle", "device_id": 9.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := EncodeCommand(tt.cmd)
			require.NoError(t, err)
			require.Equal(t, byte('\n'), line[len(line)-1], "line must end with a newline")

			var got map[string]any
			require.NoError(t, json.Unmarshal(line, &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeCommand(t *testing.T) {
	line, err := EncodeCommand(DeviceAction{DeviceID: 3, Action: "toggle"})
	require.NoError(t, err)

	cmd, err := DecodeCommand(line)
	require.NoError(t, err)
	assert.Equal(t, DeviceAction{DeviceID: 3, Action: "toggle"}, cmd)

	cmd, err = DecodeCommand([]byte(`{"type":"toggle_sleep"}`))
	require.NoError(t, err)
	assert.Equal(t, ToggleSleep{}, cmd)

	_, err = DecodeCommand([]byte(`{"type":"self_destruct"}`))
	assert.True(t, errors.Is(err, ErrUnknownCommand))

	_, err = DecodeCommand([]byte(`{"type":"move_pawn","dx":"left"}`))
	assert.Error(t, err)
}

func TestEncodeCommand_Nil(t *testing.T) {
	_, err := EncodeCommand(nil)
	assert.Error(t, err)
}
