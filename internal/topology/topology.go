// Package topology provides the static fleet the simulators run: a built-in
// default layout, or one loaded from a JSON file.
package topology

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/model"
)

const (
	DefaultSensors = 50
	DefaultValves  = 10
	DefaultAcreage = 500.0

	baseLat = 30.0
	baseLon = 120.0
)

var ErrInvalidFleet = errors.New("invalid fleet")

// DefaultFleet lays out 50 sensors, five per zone Z1..Z10, and one valve per zone.
func DefaultFleet() model.Fleet {
	fleet := model.Fleet{Acreage: DefaultAcreage}
	for i := 0; i < DefaultSensors; i++ {
		fleet.Sensors = append(fleet.Sensors, model.Sensor{
			ID:        fmt.Sprintf("S%03d", i+1),
			Zone:      fmt.Sprintf("Z%d", i/5+1),
			Latitude:  baseLat + 0.0002*float64(i+1),
			Longitude: baseLon + 0.0002*float64(i+1),
		})
	}
	for i := 0; i < DefaultValves; i++ {
		fleet.Valves = append(fleet.Valves, model.Valve{
			ID:        fmt.Sprintf("V%03d", i+1),
			Zone:      fmt.Sprintf("Z%d", i+1),
			Latitude:  baseLat + 0.00025*float64(i+1),
			Longitude: baseLon + 0.00025*float64(i+1),
		})
	}
	return fleet
}

// fleetFile is the on-disk layout:
//
//	{"acreage": 500, "sensors": [{"id": "S001", "zone": "Z1", "lat": 30.1, "lon": 120.1}], "valves": [...]}
type fleetFile struct {
	Acreage *float64       `json:"acreage"`
	Sensors []model.Sensor `json:"sensors"`
	Valves  []model.Valve  `json:"valves"`
}

// LoadFile reads a fleet from path. A missing acreage falls back to the default.
func LoadFile(path string) (model.Fleet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.Fleet{}, fmt.Errorf("read fleet config: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (model.Fleet, error) {
	var f fleetFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return model.Fleet{}, fmt.Errorf("unmarshal fleet config: %w", err)
	}
	fleet := model.Fleet{Sensors: f.Sensors, Valves: f.Valves, Acreage: DefaultAcreage}
	if f.Acreage != nil {
		fleet.Acreage = *f.Acreage
	}
	if err := Validate(fleet); err != nil {
		return model.Fleet{}, err
	}
	return fleet, nil
}

// Validate rejects empty or repeated device ids and a negative acreage.
func Validate(fleet model.Fleet) error {
	if fleet.Acreage < 0 {
		return fmt.Errorf("%w: negative acreage %v", ErrInvalidFleet, fleet.Acreage)
	}
	seen := make(map[string]struct{}, len(fleet.Sensors)+len(fleet.Valves))
	check := func(kind, id string) error {
		if id == "" {
			return fmt.Errorf("%w: %s with empty id", ErrInvalidFleet, kind)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate id %s", ErrInvalidFleet, id)
		}
		seen[id] = struct{}{}
		return nil
	}
	for _, s := range fleet.Sensors {
		if err := check("sensor", s.ID); err != nil {
			return err
		}
	}
	for _, v := range fleet.Valves {
		if err := check("valve", v.ID); err != nil {
			return err
		}
	}
	return nil
}
