package model

import "time"

type HVACMode string

const (
	ModeOff  HVACMode = "off"
	ModeHeat HVACMode = "heat"
	ModeCool HVACMode = "cool"
)

// HVACModes returns the modes a controller may be set to. An air conditioner
// only cools, a heater only heats.
func HVACModes(acMode bool) []HVACMode {
	if acMode {
		return []HVACMode{ModeCool, ModeOff}
	}
	return []HVACMode{ModeHeat, ModeOff}
}

func IsKnownMode(mode HVACMode) bool {
	switch mode {
	case ModeOff, ModeHeat, ModeCool:
		return true
	default:
		return false
	}
}

func ModeAllowed(mode HVACMode, acMode bool) bool {
	for _, m := range HVACModes(acMode) {
		if m == mode {
			return true
		}
	}
	return false
}

type HVACAction string

const (
	ActionOff     HVACAction = "off"
	ActionIdle    HVACAction = "idle"
	ActionHeating HVACAction = "heating"
	ActionCooling HVACAction = "cooling"
)

// Action is the outcome of a control decision.
type Action int

const (
	NoOp Action = iota
	TurnOn
	TurnOff
)

func (a Action) String() string {
	switch a {
	case TurnOn:
		return "turn_on"
	case TurnOff:
		return "turn_off"
	default:
		return "no_op"
	}
}

// Activity is the actuator state as last reported by the device itself.
type Activity int

const (
	ActivityUnknown Activity = iota
	ActivityInactive
	ActivityActive
)

func (a Activity) String() string {
	switch a {
	case ActivityActive:
		return "on"
	case ActivityInactive:
		return "off"
	default:
		return "unknown"
	}
}

type Trigger string

const (
	TriggerSensor    Trigger = "sensor"
	TriggerActuator  Trigger = "actuator"
	TriggerKeepAlive Trigger = "keep_alive"
	TriggerUser      Trigger = "user"
	TriggerStartup   Trigger = "startup"
)

// Command is an outbound on/off instruction for an actuator.
type Command struct {
	Entity  string
	Action  Action
	Trigger Trigger
	Reason  string
}

type SensorEvent struct {
	Entity string
	State  string
	At     time.Time
}

type ActuatorEvent struct {
	Entity   string
	Activity Activity
	At       time.Time
}

type GPIOPin struct {
	Number     int
	ActiveHigh bool
}
