package battery

import "time"

// Daylight is the local civil-time window during which solar panels charge.
type Daylight struct {
	StartHour int // inclusive
	EndHour   int // exclusive
	Location  *time.Location
}

// DefaultDaylight is 06:00-18:00 in the process' local time zone.
func DefaultDaylight() Daylight {
	return Daylight{StartHour: 6, EndHour: 18, Location: time.Local}
}

// IsZero reports whether d is the unset zero value. A window with a
// location is configured even when both hours are zero.
func (d Daylight) IsZero() bool {
	return d == Daylight{}
}

// Contains reports whether t falls inside the window. A window whose end
// precedes its start wraps around midnight.
func (d Daylight) Contains(t time.Time) bool {
	loc := d.Location
	if loc == nil {
		loc = time.Local
	}
	h := t.In(loc).Hour()
	if d.StartHour <= d.EndHour {
		return h >= d.StartHour && h < d.EndHour
	}
	return h >= d.StartHour || h < d.EndHour
}
