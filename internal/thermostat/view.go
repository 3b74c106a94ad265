package thermostat

import (
	"github.com/thatsimonsguy/general-thermostat/internal/model"
)

// View is a read-only copy of the controller state.
type View struct {
	Name                  string           `json:"name"`
	CurrentTemperature    *float64         `json:"current_temperature"`
	TargetTemperature     float64          `json:"temperature"`
	ColdTolerance         float64          `json:"cold_tolerance"`
	HotTolerance          float64          `json:"hot_tolerance"`
	HVACMode              model.HVACMode   `json:"hvac_mode"`
	HVACModes             []model.HVACMode `json:"hvac_modes"`
	HVACAction            model.HVACAction `json:"hvac_action"`
	PresetMode            string           `json:"preset_mode"`
	PresetModes           []string         `json:"preset_modes"`
	PresetTemperatures    []float64        `json:"preset_temperatures"`
	AutoUpdatePresetModes []string         `json:"auto_update_preset_modes"`
	MinTemp               float64          `json:"min_temp"`
	MaxTemp               float64          `json:"max_temp"`
	Precision             float64          `json:"precision"`
	TargetTempStep        float64          `json:"target_temp_step"`
	Unit                  string           `json:"temperature_unit"`
	Actuator              string           `json:"actuator_state"`
	Initialized           bool             `json:"initialized"`
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	var current *float64
	if c.current != nil {
		v := *c.current
		current = &v
	}

	return View{
		Name:                  c.cfg.Name,
		CurrentTemperature:    current,
		TargetTemperature:     c.presets.Target(),
		ColdTolerance:         c.cold,
		HotTolerance:          c.hot,
		HVACMode:              c.mode,
		HVACModes:             model.HVACModes(c.cfg.ACMode),
		HVACAction:            c.action(),
		PresetMode:            c.presets.Active(),
		PresetModes:           c.presets.Names(),
		PresetTemperatures:    c.presets.Temperatures(),
		AutoUpdatePresetModes: c.presets.AutoUpdate(),
		MinTemp:               c.presets.MinTemp(),
		MaxTemp:               c.presets.MaxTemp(),
		Precision:             c.cfg.Precision,
		TargetTempStep:        c.cfg.TargetTempStep,
		Unit:                  c.cfg.Unit,
		Actuator:              c.tracker.Activity(c.cfg.Heater).String(),
		Initialized:           c.initialized,
	}
}

func (c *Controller) action() model.HVACAction {
	switch {
	case c.mode == model.ModeOff:
		return model.ActionOff
	case !c.isActive():
		return model.ActionIdle
	case c.cfg.ACMode:
		return model.ActionCooling
	default:
		return model.ActionHeating
	}
}

// Snapshot returns the state to persist for the next run.
func (c *Controller) Snapshot() model.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	target, cold, hot := c.presets.Target(), c.cold, c.hot
	return model.Snapshot{
		TargetTemperature:  &target,
		ColdTolerance:      &cold,
		HotTolerance:       &hot,
		PresetMode:         c.presets.Active(),
		PresetModes:        c.presets.Names(),
		PresetTemperatures: c.presets.Temperatures(),
		HVACMode:           c.mode,
	}
}
