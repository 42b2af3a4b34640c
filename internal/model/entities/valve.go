package entities

import "strings"

// ValveState indicates whether an irrigation valve is open or closed.
type ValveState string

const (
	ValveOpen  ValveState = "OPEN"
	ValveClose ValveState = "CLOSE"
)

// ParseValveState accepts OPEN/CLOSE in any letter case.
func ParseValveState(s string) (ValveState, bool) {
	switch ValveState(strings.ToUpper(strings.TrimSpace(s))) {
	case ValveOpen:
		return ValveOpen, true
	case ValveClose:
		return ValveClose, true
	}
	return "", false
}

// Valve is the immutable identity of an irrigation valve.
type Valve struct {
	ID        string  `json:"id"`
	Zone      string  `json:"zone"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}
