package gpio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/general-thermostat/internal/model"
	"github.com/thatsimonsguy/general-thermostat/internal/pinctrl"
)

var safeMode bool

var (
	ErrMalformedReading = errors.New("temperature data missing or malformed")
	ErrPinNotOutput     = errors.New("pin is not configured as an output")
)

func SetSafeMode(enabled bool) {
	safeMode = enabled
}

var setLevel = func(pin int, high bool) error {
	drive := "dl"
	if high {
		drive = "dh"
	}
	return pinctrl.SetPin(pin, "op", "pn", drive)
}

var readLevel = pinctrl.ReadLevel

var readPin = pinctrl.ReadPin

// MockGPIO replaces pin access for tests.
func MockGPIO(set func(pin int, high bool), read func(pin int) bool) {
	setLevel = func(pin int, high bool) error {
		set(pin, high)
		return nil
	}
	readLevel = func(pin int) (bool, error) {
		return read(pin), nil
	}
}

// ResetGPIO restores real pin access.
func ResetGPIO() {
	setLevel = func(pin int, high bool) error {
		drive := "dl"
		if high {
			drive = "dh"
		}
		return pinctrl.SetPin(pin, "op", "pn", drive)
	}
	readLevel = pinctrl.ReadLevel
	readPin = pinctrl.ReadPin
	safeMode = false
}

var Activate = func(pin model.GPIOPin) error {
	if safeMode {
		log.Debug().Int("pin", pin.Number).Msg("Safe mode, skipping activate")
		return nil
	}
	if err := setLevel(pin.Number, pin.ActiveHigh); err != nil {
		return fmt.Errorf("activate pin %d: %w", pin.Number, err)
	}
	return nil
}

var Deactivate = func(pin model.GPIOPin) error {
	if safeMode {
		log.Debug().Int("pin", pin.Number).Msg("Safe mode, skipping deactivate")
		return nil
	}
	if err := setLevel(pin.Number, !pin.ActiveHigh); err != nil {
		return fmt.Errorf("deactivate pin %d: %w", pin.Number, err)
	}
	return nil
}

var CurrentlyActive = func(pin model.GPIOPin) (bool, error) {
	level, err := readLevel(pin.Number)
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", pin.Number, err)
	}
	return pin.ActiveHigh == level, nil
}

// CheckRelayPin confirms pin is set up as an output and reports whether it is
// currently driving the relay on.
func CheckRelayPin(pin model.GPIOPin) (bool, error) {
	state, err := readPin(pin.Number)
	if err != nil {
		return false, fmt.Errorf("inspect pin %d: %w", pin.Number, err)
	}
	if state.Mode != "op" {
		return false, fmt.Errorf("pin %d mode %q: %w", pin.Number, state.Mode, ErrPinNotOutput)
	}
	return (state.Level == "hi") == pin.ActiveHigh, nil
}

// ReadSensorTemp reads a DS18B20 style w1_slave file and returns degrees
// Celsius, or Fahrenheit when fahrenheit is set.
var ReadSensorTemp = func(sensorPath string, fahrenheit bool) (float64, error) {
	data, err := os.ReadFile(filepath.Join(sensorPath, "w1_slave"))
	if err != nil {
		return 0, fmt.Errorf("read sensor data: %w", err)
	}
	return parseW1(string(data), fahrenheit)
}

func parseW1(data string, fahrenheit bool) (float64, error) {
	lines := strings.Split(data, "\n")
	if len(lines) < 2 || !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, fmt.Errorf("crc check failed: %w", ErrMalformedReading)
	}

	parts := strings.Split(lines[1], "t=")
	if len(parts) != 2 {
		return 0, ErrMalformedReading
	}

	tempMilliC, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, fmt.Errorf("convert temperature: %w", err)
	}

	tempC := float64(tempMilliC) / 1000.0
	if fahrenheit {
		return tempC*9.0/5.0 + 32.0, nil
	}
	return tempC, nil
}
