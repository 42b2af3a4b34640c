package model

import (
	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/model/entities"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/model/messages"
)

// Alias per esporre tipi comuni ai servizi

type (
	Sensor          = entities.Sensor
	Valve           = entities.Valve
	ValveState      = entities.ValveState
	Fleet           = entities.Fleet
	TelemetryRecord = messages.TelemetryRecord
	StatusRecord    = messages.StatusRecord
	Command         = messages.Command
)

const (
	ValveOpen  = entities.ValveOpen
	ValveClose = entities.ValveClose
)
