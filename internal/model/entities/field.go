package entities

// Fleet is the static topology handed to the runtime at startup.
// It is never mutated once the simulators are running.
type Fleet struct {
	Sensors []Sensor `json:"sensors"`
	Valves  []Valve  `json:"valves"`
	Acreage float64  `json:"acreage"` // total acreage covered by the sensors
}

// Coverage returns acreage per sensor, the coverage metric sent on every uplink.
func (f *Fleet) Coverage() float64 {
	n := len(f.Sensors)
	if n < 1 {
		n = 1
	}
	return f.Acreage / float64(n)
}
