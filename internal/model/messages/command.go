package messages

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/model/entities"
)

var (
	ErrMalformedCommand = errors.New("command: malformed payload")
	ErrMissingValveID   = errors.New("command: missing valveId")
	ErrUnknownAction    = errors.New("command: action must be OPEN or CLOSE")
)

// Command is a downlink instruction for a single valve.
type Command struct {
	ValveID     string
	Action      entities.ValveState
	CommandID   *string
	DurationSec int
}

type rawCommand struct {
	ValveID     json.RawMessage `json:"valveId"`
	Action      json.RawMessage `json:"action"`
	CommandID   json.RawMessage `json:"commandId"`
	DurationSec json.RawMessage `json:"durationSec"`
}

// ParseCommand decodes a downlink payload. Field types are lenient the way
// field gateways send them: ids may be strings or numbers and durationSec may
// be a numeric string. An invalid duration is treated as 0 (open indefinitely).
func ParseCommand(payload []byte) (Command, error) {
	var raw rawCommand
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Command{}, errors.Join(ErrMalformedCommand, err)
	}

	valveID, _ := scalarString(raw.ValveID)
	if valveID == "" {
		return Command{}, ErrMissingValveID
	}

	actionStr, _ := scalarString(raw.Action)
	action, ok := entities.ParseValveState(actionStr)
	if !ok {
		return Command{}, ErrUnknownAction
	}

	cmd := Command{
		ValveID:     valveID,
		Action:      action,
		DurationSec: durationSeconds(raw.DurationSec),
	}
	if id, ok := scalarString(raw.CommandID); ok {
		cmd.CommandID = &id
	}
	return cmd, nil
}

// scalarString returns the textual form of a JSON string or number.
// ok is false for absent, null, and non-scalar values.
func scalarString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

// MaxDurationSec is the longest timed open that still fits a time.Duration.
// Longer requests are clamped to it.
const MaxDurationSec = math.MaxInt64 / int64(time.Second)

func durationSeconds(raw json.RawMessage) int {
	s, ok := scalarString(raw)
	if !ok {
		return 0
	}
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return clampDuration(n)
	}
	// JSON numbers like 30.0 truncate toward zero, out of range integers
	// land here too; numeric strings must be integers.
	if raw[0] != '"' {
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) {
			switch {
			case f >= float64(MaxDurationSec):
				return int(MaxDurationSec)
			case f <= -float64(MaxDurationSec):
				return -int(MaxDurationSec)
			}
			return int(f)
		}
	}
	return 0
}

func clampDuration(n int64) int {
	if n > MaxDurationSec {
		return int(MaxDurationSec)
	}
	if n < -MaxDurationSec {
		return -int(MaxDurationSec)
	}
	return int(n)
}
