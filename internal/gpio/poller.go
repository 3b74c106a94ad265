package gpio

import (
	"context"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/general-thermostat/internal/model"
)

const w1Root = "/sys/bus/w1/devices"

// Poller turns a locally wired relay and 1-wire sensor into the same sensor
// and actuator events the MQTT bus produces.
type Poller struct {
	SensorEntity   string
	SensorBus      string
	Fahrenheit     bool
	ActuatorEntity string
	RelayPin       model.GPIOPin
	Interval       time.Duration

	OnSensor   func(model.SensorEvent)
	OnActuator func(model.ActuatorEvent)

	now func() time.Time
}

func (p *Poller) Run(ctx context.Context) {
	log.Info().
		Str("sensor", p.SensorEntity).
		Str("actuator", p.ActuatorEntity).
		Dur("interval", p.Interval).
		Msg("Starting GPIO poller")

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		p.PollOnce()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PollOnce reads the relay and then the sensor, emitting one event for each.
func (p *Poller) PollOnce() {
	sensor, actuator := p.Read()
	if p.OnActuator != nil {
		p.OnActuator(actuator)
	}
	if p.OnSensor != nil {
		p.OnSensor(sensor)
	}
}

// Read takes one reading of the sensor and the relay without emitting them.
func (p *Poller) Read() (model.SensorEvent, model.ActuatorEvent) {
	now := time.Now
	if p.now != nil {
		now = p.now
	}

	activity := model.ActivityUnknown
	active, err := CurrentlyActive(p.RelayPin)
	if err != nil {
		log.Error().Err(err).Str("device", p.ActuatorEntity).Msg("Failed to read relay state")
	} else if active {
		activity = model.ActivityActive
	} else {
		activity = model.ActivityInactive
	}
	actuator := model.ActuatorEvent{Entity: p.ActuatorEntity, Activity: activity, At: now()}

	state := "unavailable"
	temp, err := ReadSensorTemp(filepath.Join(w1Root, p.SensorBus), p.Fahrenheit)
	if err != nil {
		log.Error().Err(err).Str("sensor", p.SensorEntity).Msg("Failed to read sensor")
	} else {
		state = strconv.FormatFloat(temp, 'f', 3, 64)
	}
	sensor := model.SensorEvent{Entity: p.SensorEntity, State: state, At: now()}

	return sensor, actuator
}
