package thermostat

import (
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/general-thermostat/internal/model"
	"github.com/thatsimonsguy/general-thermostat/internal/preset"
)

const DefaultTolerance = 0.3

// Config is the immutable controller configuration.
type Config struct {
	Name            string
	Heater          string
	Sensor          string
	ACMode          bool
	ColdTolerance   *float64
	HotTolerance    *float64
	MinCycle        time.Duration
	KeepAlive       time.Duration
	Precision       float64
	TargetTempStep  float64
	MinTemp         float64
	MaxTemp         float64
	TargetTemp      *float64
	InitialHVACMode model.HVACMode
	Unit            string
	Presets         []preset.Preset
	AutoUpdate      []string
}

// Resolved is the starting point produced by Reconcile.
type Resolved struct {
	ColdTolerance float64
	HotTolerance  float64
	Mode          model.HVACMode
	Presets       *preset.Store
}

// fallbackTarget is where an unset target starts: as far from doing work as
// the bounds allow.
func (cfg Config) fallbackTarget() float64 {
	if cfg.ACMode {
		return cfg.MaxTemp
	}
	return cfg.MinTemp
}

// Reconcile merges the configuration with a snapshot from a previous run.
// Configured values win over restored ones; anything still missing falls
// back to a default. snap may be nil.
func Reconcile(cfg Config, snap *model.Snapshot) Resolved {
	target := cfg.TargetTemp
	cold := cfg.ColdTolerance
	hot := cfg.HotTolerance
	mode := cfg.InitialHVACMode

	var manual float64
	if cfg.TargetTemp != nil {
		manual = *cfg.TargetTemp
	}
	store := preset.New(cfg.Presets, cfg.AutoUpdate, manual, cfg.MinTemp, cfg.MaxTemp)

	active := preset.None
	var names []string
	var temps []float64

	if snap != nil {
		if target == nil && snap.TargetTemperature != nil {
			target = snap.TargetTemperature
		}
		if cold == nil && snap.ColdTolerance != nil {
			v := math.Abs(*snap.ColdTolerance)
			cold = &v
		}
		if hot == nil && snap.HotTolerance != nil {
			v := math.Abs(*snap.HotTolerance)
			hot = &v
		}
		if store.Has(snap.PresetMode) {
			active = snap.PresetMode
		}
		if snap.PresetModes != nil && snap.PresetTemperatures != nil {
			names, temps = snap.PresetModes, snap.PresetTemperatures
		}
		if mode == "" && snap.HVACMode != "" {
			if model.ModeAllowed(snap.HVACMode, cfg.ACMode) {
				mode = snap.HVACMode
			} else {
				log.Warn().Str("hvac_mode", string(snap.HVACMode)).Msg("Ignoring restored hvac mode not supported by this controller")
			}
		}
	}

	if target == nil {
		v := cfg.fallbackTarget()
		target = &v
		log.Warn().Float64("target", v).Msg("No previously saved target temperature, using default")
	}
	if cold == nil {
		v := DefaultTolerance
		cold = &v
		log.Warn().Float64("cold_tolerance", v).Msg("No previously saved cold tolerance, using default")
	}
	if hot == nil {
		v := DefaultTolerance
		hot = &v
		log.Warn().Float64("hot_tolerance", v).Msg("No previously saved hot tolerance, using default")
	}
	if mode == "" {
		mode = model.ModeOff
	}

	store.Restore(active, *target, names, temps, cfg.fallbackTarget())

	return Resolved{
		ColdTolerance: *cold,
		HotTolerance:  *hot,
		Mode:          mode,
		Presets:       store,
	}
}
