package messages

import "encoding/json"

// StatusEvent says why a valve status was emitted.
type StatusEvent string

const (
	EventBoot      StatusEvent = "BOOT"
	EventHeartbeat StatusEvent = "HEARTBEAT"
	EventCommand   StatusEvent = "COMMAND"
	EventAutoClose StatusEvent = "AUTO_CLOSE"
)

// StatusRecord is published on the valve status topic. CommandID is nil for
// heartbeats, boot announcements and autonomous closes.
type StatusRecord struct {
	ValveID     string      `json:"valveId"`
	CommandID   *string     `json:"commandId"`
	State       string      `json:"state"`
	Event       StatusEvent `json:"event"`
	BatteryV    float64     `json:"batteryV"`
	RSSI        int         `json:"rssi"`
	SNR         float64     `json:"snr"`
	Timestamp   int64       `json:"ts"`          // command receipt, ms since epoch
	RespondedAt int64       `json:"respondedAt"` // emission, ms since epoch
}

func (r StatusRecord) Encode() ([]byte, error) {
	return json.Marshal(r)
}
