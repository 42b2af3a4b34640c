package messages

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/model/entities"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name         string
		payload      string
		wantAction   entities.ValveState
		wantCmdID    *string
		wantDuration int
	}{
		{"open timed", `{"valveId":"V001","action":"OPEN","commandId":"c1","durationSec":5}`, entities.ValveOpen, strPtr("c1"), 5},
		{"lowercase action", `{"valveId":"V001","action":"close"}`, entities.ValveClose, nil, 0},
		{"numeric command id", `{"valveId":"V001","action":"OPEN","commandId":42}`, entities.ValveOpen, strPtr("42"), 0},
		{"string duration", `{"valveId":"V001","action":"OPEN","durationSec":"30"}`, entities.ValveOpen, nil, 30},
		{"float duration truncates", `{"valveId":"V001","action":"OPEN","durationSec":12.9}`, entities.ValveOpen, nil, 12},
		{"garbage duration is zero", `{"valveId":"V001","action":"OPEN","durationSec":"soon"}`, entities.ValveOpen, nil, 0},
		{"null duration is zero", `{"valveId":"V001","action":"OPEN","durationSec":null}`, entities.ValveOpen, nil, 0},
		{"negative duration kept", `{"valveId":"V001","action":"OPEN","durationSec":-3}`, entities.ValveOpen, nil, -3},
		{"huge duration clamped", `{"valveId":"V001","action":"OPEN","durationSec":10000000000}`, entities.ValveOpen, nil, int(MaxDurationSec)},
		{"int64 overflow clamped", `{"valveId":"V001","action":"OPEN","durationSec":99999999999999999999}`, entities.ValveOpen, nil, int(MaxDurationSec)},
		{"huge float clamped", `{"valveId":"V001","action":"OPEN","durationSec":1e30}`, entities.ValveOpen, nil, int(MaxDurationSec)},
		{"null command id", `{"valveId":"V001","action":"OPEN","commandId":null}`, entities.ValveOpen, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := ParseCommand([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, "V001", cmd.ValveID)
			assert.Equal(t, tt.wantAction, cmd.Action)
			assert.Equal(t, tt.wantCmdID, cmd.CommandID)
			assert.Equal(t, tt.wantDuration, cmd.DurationSec)
		})
	}
}

func TestParseCommandRejects(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{"not json", `open the valve`, ErrMalformedCommand},
		{"json array", `["V001","OPEN"]`, ErrMalformedCommand},
		{"missing valve", `{"action":"OPEN"}`, ErrMissingValveID},
		{"empty valve", `{"valveId":"","action":"OPEN"}`, ErrMissingValveID},
		{"missing action", `{"valveId":"V001"}`, ErrUnknownAction},
		{"toggle action", `{"valveId":"V001","action":"TOGGLE"}`, ErrUnknownAction},
		{"object action", `{"valveId":"V001","action":{"v":"OPEN"}}`, ErrUnknownAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCommand([]byte(tt.payload))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestStatusRecordNullCommandID(t *testing.T) {
	rec := StatusRecord{ValveID: "V001", State: "CLOSE", Event: EventAutoClose}
	b, err := rec.Encode()
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	v, present := m["commandId"]
	assert.True(t, present)
	assert.Nil(t, v)
	assert.Equal(t, "AUTO_CLOSE", m["event"])
}

func TestRound(t *testing.T) {
	assert.Equal(t, 21.35, Round(21.3456, 2))
	assert.Equal(t, 3.988, Round(3.98751, 3))
	assert.Equal(t, -7.3, Round(-7.26, 1))
}

func strPtr(s string) *string { return &s }

func TestTopics(t *testing.T) {
	assert.Equal(t, "devices/sensors/S001/uplink", SensorUplinkTopic("", "S001"))
	assert.Equal(t, "farm/valves/V003/downlink", ValveDownlinkTopic("farm", "V003"))
	assert.Equal(t, "devices/valves/V003/status", ValveStatusTopic("devices", "V003"))
}
