package hysteresis

import "github.com/thatsimonsguy/general-thermostat/internal/model"

func TooCold(current, target, coldTolerance float64) bool {
	return target >= current+coldTolerance
}

func TooHot(current, target, hotTolerance float64) bool {
	return current >= target+hotTolerance
}

// Decide maps a reading against the setpoint band to an actuator action.
// Callers must only invoke it once both temperatures are known.
func Decide(current, target, coldTolerance, hotTolerance float64, acMode, active bool) model.Action {
	tooCold := TooCold(current, target, coldTolerance)
	tooHot := TooHot(current, target, hotTolerance)

	if active {
		if (acMode && tooCold) || (!acMode && tooHot) {
			return model.TurnOff
		}
		return model.NoOp
	}

	if (acMode && tooHot) || (!acMode && tooCold) {
		return model.TurnOn
	}
	return model.NoOp
}
