package messages

import (
	"encoding/json"
	"math"
)

// TelemetryRecord is the soil sensor uplink published once per tick.
type TelemetryRecord struct {
	DeviceID        string  `json:"deviceId"`
	Type            string  `json:"type"`
	Zone            string  `json:"zone"`
	Timestamp       int64   `json:"ts"` // ms since epoch
	Latitude        float64 `json:"lat"`
	Longitude       float64 `json:"lon"`
	TemperatureC    float64 `json:"tempC"`
	HumidityPct     float64 `json:"humidityPct"`
	BatteryV        float64 `json:"batteryV"`
	RSSI            int     `json:"rssi"`
	SNR             float64 `json:"snr"`
	AcreageCoverage float64 `json:"acreageCoverage"`
}

// Encode serializes the record for the wire.
func (r TelemetryRecord) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// Round rounds v to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
