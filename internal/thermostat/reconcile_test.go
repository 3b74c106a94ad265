package thermostat

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thatsimonsguy/general-thermostat/internal/model"
	"github.com/thatsimonsguy/general-thermostat/internal/preset"
)

func TestReconcile_NoSnapshot(t *testing.T) {
	cfg := Config{Heater: heater, Sensor: sensor, MinTemp: 15, MaxTemp: 25}

	r := Reconcile(cfg, nil)

	assert.Equal(t, 15.0, r.Presets.Target())
	assert.Equal(t, model.ModeOff, r.Mode)
	assert.Equal(t, DefaultTolerance, r.ColdTolerance)
	assert.Equal(t, DefaultTolerance, r.HotTolerance)
	assert.Equal(t, preset.None, r.Presets.Active())
	assert.Equal(t, []float64{15}, r.Presets.Temperatures())
}

func TestReconcile_ACModeFallsBackToMax(t *testing.T) {
	cfg := Config{Heater: heater, Sensor: sensor, ACMode: true, MinTemp: 15, MaxTemp: 25}

	r := Reconcile(cfg, &model.Snapshot{})

	assert.Equal(t, 25.0, r.Presets.Target())
	assert.Equal(t, model.ModeOff, r.Mode)
}

func TestReconcile_RestoresSnapshot(t *testing.T) {
	cfg := Config{
		Heater:  heater,
		Sensor:  sensor,
		MinTemp: 15,
		MaxTemp: 25,
		Presets: []preset.Preset{
			{Name: "away", Temperature: 16},
			{Name: "comfort", Temperature: 21},
		},
	}
	snap := model.SnapshotFromAttributes(map[string]string{
		model.AttrTemperature:        "22",
		model.AttrColdTolerance:      "-0.4",
		model.AttrPresetMode:         "comfort",
		model.AttrPresetModes:        `["none","away","comfort","boost"]`,
		model.AttrPresetTemperatures: `[19,null,21.5,28]`,
		model.AttrHVACMode:           "heat",
	})

	r := Reconcile(cfg, &snap)

	assert.Equal(t, 22.0, r.Presets.Target())
	assert.Equal(t, "comfort", r.Presets.Active())
	assert.Equal(t, 0.4, r.ColdTolerance)
	assert.Equal(t, DefaultTolerance, r.HotTolerance)
	assert.Equal(t, model.ModeHeat, r.Mode)
	assert.Equal(t, []float64{19, 16, 22}, r.Presets.Temperatures())
}

func TestReconcile_ConfiguredValuesWin(t *testing.T) {
	cfg := heatConfig()
	cfg.InitialHVACMode = model.ModeOff
	snap := &model.Snapshot{
		TargetTemperature: ptr(23),
		ColdTolerance:     ptr(1),
		HotTolerance:      ptr(1),
		PresetMode:        "away",
		HVACMode:          model.ModeHeat,
	}

	r := Reconcile(cfg, snap)

	assert.Equal(t, 20.0, r.Presets.Target())
	assert.Equal(t, 0.3, r.ColdTolerance)
	assert.Equal(t, 0.3, r.HotTolerance)
	assert.Equal(t, model.ModeOff, r.Mode)
	assert.Equal(t, "away", r.Presets.Active())
	assert.Equal(t, 20.0, r.Presets.Temperatures()[1], "active preset slot takes the resolved target")
}

func TestReconcile_IgnoresUnsupportedRestoredMode(t *testing.T) {
	cfg := Config{Heater: heater, Sensor: sensor, MinTemp: 15, MaxTemp: 25}

	r := Reconcile(cfg, &model.Snapshot{HVACMode: model.ModeCool, PresetMode: "boost"})

	assert.Equal(t, model.ModeOff, r.Mode)
	assert.Equal(t, preset.None, r.Presets.Active())
}
