package valve_simulator

import (
	"sync"
	"time"

	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/battery"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/clock"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/model/entities"
)

// closeJob is a deferred auto-close. gen identifies it so a timer that fires
// after being superseded recognizes itself as stale.
type closeJob struct {
	gen   uint64
	due   time.Time
	timer clock.Timer
}

// valve is the runtime state of one valve. mu serializes every read and
// mutation, including the cancel-then-reschedule of its close job.
// Invariant: job != nil only while state is OPEN from a timed command.
type valve struct {
	meta entities.Valve

	mu            sync.Mutex
	state         entities.ValveState
	battery       *battery.Battery
	job           *closeJob
	gen           uint64
	lastCommandID *string
	lastEmitted   time.Time
}

// ValveSnapshot is a point-in-time view of one valve.
type ValveSnapshot struct {
	ID            string              `json:"id"`
	Zone          string              `json:"zone"`
	State         entities.ValveState `json:"state"`
	BatteryV      float64             `json:"batteryV"`
	CloseAt       *time.Time          `json:"closeAt,omitempty"`
	LastCommandID *string             `json:"lastCommandId,omitempty"`
	LastEmitted   time.Time           `json:"lastEmitted"`
}

func (v *valve) snapshot() ValveSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	snap := ValveSnapshot{
		ID:            v.meta.ID,
		Zone:          v.meta.Zone,
		State:         v.state,
		BatteryV:      v.battery.Read(),
		LastCommandID: v.lastCommandID,
		LastEmitted:   v.lastEmitted,
	}
	if v.job != nil {
		due := v.job.due
		snap.CloseAt = &due
	}
	return snap
}
