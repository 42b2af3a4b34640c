package entities

// SensorType is the type tag carried on every soil telemetry uplink.
const SensorType = "soil"

// Sensor is the immutable identity of a soil sensor in the fleet.
type Sensor struct {
	ID        string  `json:"id"`   // unique sensor identifier, e.g. "S001"
	Zone      string  `json:"zone"` // irrigation zone, e.g. "Z1"
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}
