package thermostat

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/general-thermostat/internal/device"
	"github.com/thatsimonsguy/general-thermostat/internal/hysteresis"
	"github.com/thatsimonsguy/general-thermostat/internal/model"
	"github.com/thatsimonsguy/general-thermostat/internal/notifications"
	"github.com/thatsimonsguy/general-thermostat/internal/preset"
	"github.com/thatsimonsguy/general-thermostat/internal/temperature"
)

var ErrUnsupportedMode = errors.New("hvac mode not supported by this controller")

// notify sends an operator alert without blocking the caller.
var notify = func(title, message string) {
	go func() {
		if err := notifications.Send(title, message); err != nil {
			log.Debug().Err(err).Str("title", title).Msg("Notification not sent")
		}
	}()
}

// Controller owns the control state of one thermostat. Every exported method
// holds the controller's lock for its whole duration and returns the
// actuator commands the caller must dispatch.
type Controller struct {
	mu sync.Mutex

	cfg     Config
	presets *preset.Store
	tracker *device.Tracker
	guard   device.CycleGuard

	current     *float64
	cold        float64
	hot         float64
	mode        model.HVACMode
	initialized bool
	checked     bool

	now func() time.Time
}

func New(cfg Config, resolved Resolved, tracker *device.Tracker) *Controller {
	return &Controller{
		cfg:     cfg,
		presets: resolved.Presets,
		tracker: tracker,
		guard:   device.CycleGuard{MinCycle: cfg.MinCycle, History: tracker},
		cold:    resolved.ColdTolerance,
		hot:     resolved.HotTolerance,
		mode:    resolved.Mode,
		now:     time.Now,
	}
}

// Start applies whatever live readings are available and runs the startup
// check if the actuator state is already known. Otherwise the check runs on
// the first actuator report.
func (c *Controller) Start(sensor *model.SensorEvent, actuator *model.ActuatorEvent) []model.Command {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sensor != nil {
		c.updateTemperature(sensor.State)
	}
	if actuator != nil {
		c.tracker.Observe(actuator.Entity, actuator.Activity, actuator.At)
	}

	log.Info().
		Str("thermostat", c.cfg.Name).
		Str("hvac_mode", string(c.mode)).
		Str("preset", c.presets.Active()).
		Float64("target", c.presets.Target()).
		Float64("cold_tolerance", c.cold).
		Float64("hot_tolerance", c.hot).
		Msg("Thermostat starting")

	if c.tracker.Activity(c.cfg.Heater) == model.ActivityUnknown {
		log.Info().Str("device", c.cfg.Heater).Msg("Actuator state unknown, deferring startup check")
		return nil
	}
	return c.startupCheck()
}

func (c *Controller) startupCheck() []model.Command {
	c.checked = true
	if c.mode != model.ModeOff {
		return c.evaluate(model.TriggerStartup, true)
	}
	if c.isActive() {
		log.Warn().Str("device", c.cfg.Heater).Msg("The climate mode is OFF, but the switch device is ON. Turning off device")
		notify(c.cfg.Name, fmt.Sprintf("%s was on while the thermostat was off; turning it off", c.cfg.Heater))
		return c.command(model.TurnOff, model.TriggerStartup, "mode off at startup")
	}
	return nil
}

func (c *Controller) HandleSensor(ev model.SensorEvent) []model.Command {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.updateTemperature(ev.State) {
		return nil
	}
	return c.evaluate(model.TriggerSensor, false)
}

func (c *Controller) updateTemperature(state string) bool {
	temp, err := temperature.Parse(state)
	if errors.Is(err, temperature.ErrUnavailable) {
		return false
	}
	if err != nil {
		log.Error().Err(err).Str("sensor", c.cfg.Sensor).Msg("Unable to update from sensor")
		return false
	}
	c.current = &temp
	return true
}

func (c *Controller) HandleActuator(ev model.ActuatorEvent) []model.Command {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, changed := c.tracker.Observe(ev.Entity, ev.Activity, ev.At)
	if !changed || ev.Activity == model.ActivityUnknown {
		return nil
	}

	log.Debug().Str("device", ev.Entity).Str("state", ev.Activity.String()).Msg("Actuator state changed")

	if !c.checked {
		return c.startupCheck()
	}
	if c.mode == model.ModeOff {
		if ev.Activity == model.ActivityActive {
			log.Warn().Str("device", ev.Entity).Msg("Actuator switched on while thermostat is off, turning it off")
			return c.command(model.TurnOff, model.TriggerActuator, "mode off")
		}
		return nil
	}
	return c.evaluate(model.TriggerActuator, false)
}

// HandleTick is the keep-alive re-evaluation.
func (c *Controller) HandleTick() []model.Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evaluate(model.TriggerKeepAlive, false)
}

// SetHVACMode logs and ignores unrecognized modes; recognized modes outside
// this controller's pair are rejected.
func (c *Controller) SetHVACMode(mode string) ([]model.Command, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := model.HVACMode(mode)
	if !model.IsKnownMode(m) {
		log.Error().Str("hvac_mode", mode).Msg("Unrecognized hvac mode")
		return nil, nil
	}
	if !model.ModeAllowed(m, c.cfg.ACMode) {
		return nil, fmt.Errorf("%q: %w", mode, ErrUnsupportedMode)
	}

	c.mode = m
	log.Info().Str("hvac_mode", mode).Msg("HVAC mode set")
	if m == model.ModeOff {
		if c.isActive() {
			return c.command(model.TurnOff, model.TriggerUser, "mode set to off"), nil
		}
		return nil, nil
	}
	return c.evaluate(model.TriggerUser, true), nil
}

func (c *Controller) SetTemperature(temp float64) []model.Command {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.presets.SetTarget(temp)
	log.Info().Float64("target", temp).Str("preset", c.presets.Active()).Msg("Target temperature set")
	return c.evaluate(model.TriggerUser, true)
}

func (c *Controller) SetPresetMode(name string) ([]model.Command, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed, err := c.presets.Select(name)
	if err != nil || !changed {
		return nil, err
	}
	log.Info().Str("preset", name).Float64("target", c.presets.Target()).Msg("Preset selected")
	return c.evaluate(model.TriggerUser, true), nil
}

func (c *Controller) SetPresetTemperature(name string, temp float64) ([]model.Command, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	evaluate, err := c.presets.SetPresetTemperature(name, temp)
	if err != nil {
		return nil, err
	}
	log.Info().Str("preset", name).Float64("temperature", temp).Msg("Preset temperature set")
	if !evaluate {
		return nil, nil
	}
	return c.evaluate(model.TriggerUser, true), nil
}

// ResetPresetTemperature restores name, or every preset when name is empty,
// to its configured temperature.
func (c *Controller) ResetPresetTemperature(name string) ([]model.Command, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	evaluate, err := c.presets.Reset(name)
	if err != nil {
		return nil, err
	}
	log.Info().Str("preset", name).Msg("Preset temperature reset")
	if !evaluate {
		return nil, nil
	}
	return c.evaluate(model.TriggerUser, true), nil
}

func (c *Controller) SetTolerance(cold, hot *float64) []model.Command {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cold != nil {
		c.cold = math.Abs(*cold)
	}
	if hot != nil {
		c.hot = math.Abs(*hot)
	}
	if cold == nil && hot == nil {
		return nil
	}
	log.Info().Float64("cold_tolerance", c.cold).Float64("hot_tolerance", c.hot).Msg("Tolerances set")
	return c.evaluate(model.TriggerUser, true)
}

func (c *Controller) isActive() bool {
	return c.tracker.Activity(c.cfg.Heater) == model.ActivityActive
}

func (c *Controller) command(action model.Action, trigger model.Trigger, reason string) []model.Command {
	return []model.Command{{Entity: c.cfg.Heater, Action: action, Trigger: trigger, Reason: reason}}
}

// evaluate runs one control decision. Callers hold c.mu.
func (c *Controller) evaluate(trigger model.Trigger, force bool) []model.Command {
	if !c.initialized && c.current != nil {
		c.initialized = true
		log.Info().
			Float64("current", *c.current).
			Float64("target", c.presets.Target()).
			Msg("Obtained current and target temperature, thermostat active")
	}
	if !c.initialized || c.mode == model.ModeOff {
		return nil
	}

	keepAlive := trigger == model.TriggerKeepAlive
	active := c.isActive()
	if !c.guard.Allow(c.cfg.Heater, force, keepAlive, active, c.now()) {
		return nil
	}

	current, target := *c.current, c.presets.Target()
	action := hysteresis.Decide(current, target, c.cold, c.hot, c.cfg.ACMode, active)
	reason := fmt.Sprintf("current %.2f target %.2f", current, target)

	if action == model.NoOp {
		if !keepAlive {
			return nil
		}
		action = model.TurnOff
		if active {
			action = model.TurnOn
		}
		reason = "keep-alive"
	}

	log.Debug().
		Str("device", c.cfg.Heater).
		Str("action", action.String()).
		Str("trigger", string(trigger)).
		Float64("current", current).
		Float64("target", target).
		Msg("Control decision")
	return c.command(action, trigger, reason)
}
