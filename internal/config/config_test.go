package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/general-thermostat/internal/preset"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFile_JSONDefaults(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"heater": "switch.heater",
		"target_sensor": "sensor.living_room",
		"cold_tolerance": -0.5,
		"comfort_temp": 21,
		"away_temp": 16,
		"min_cycle_duration_seconds": 600,
		"mqtt": {"broker": "tcp://localhost:1883"}
	}`)

	cfg := LoadFile(path)

	assert.Equal(t, "General Thermostat", cfg.Name)
	assert.Equal(t, 0.5, *cfg.ColdTolerance)
	assert.Nil(t, cfg.HotTolerance)
	assert.Equal(t, 7.0, *cfg.MinTemp)
	assert.Equal(t, 35.0, *cfg.MaxTemp)
	assert.Equal(t, 0.1, cfg.Precision)
	assert.Equal(t, 0.1, cfg.TargetTempStep)
	assert.Equal(t, 10*time.Minute, cfg.MinCycleDuration())
	assert.Equal(t, time.Duration(0), cfg.KeepAlive())
	assert.Equal(t, "mqtt", cfg.Transport)
	assert.Equal(t, "sensor.living_room/state", cfg.MQTT.SensorTopic)
	assert.Equal(t, "switch.heater/set", cfg.MQTT.ActuatorCommandTopic)
	assert.Equal(t, "sqlite", cfg.SnapshotBackend)
	assert.Nil(t, cfg.AutoUpdatePresetModes)

	assert.Equal(t, []preset.Preset{
		{Name: "away", Temperature: 16},
		{Name: "comfort", Temperature: 21},
	}, cfg.Presets())
}

func TestLoadFile_YAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
heater: switch.ac
target_sensor: sensor.office
ac_mode: true
temperature_unit: f
initial_hvac_mode: cool
auto_update_preset_modes: []
eco_temp: 78
transport: gpio
gpio:
  relay_pin: 17
  sensor_bus: 28-00000abc
snapshot_backend: json
`)

	cfg := LoadFile(path)

	assert.True(t, cfg.ACMode)
	assert.Equal(t, "F", cfg.TemperatureUnit)
	assert.Equal(t, 44.6, *cfg.MinTemp)
	assert.Equal(t, 95.0, *cfg.MaxTemp)
	assert.Equal(t, 1.0, cfg.Precision)
	assert.NotNil(t, cfg.AutoUpdatePresetModes)
	assert.Empty(t, cfg.AutoUpdatePresetModes)
	assert.Equal(t, 17, cfg.RelayPin().Number)
	assert.Equal(t, 30*time.Second, cfg.PollInterval())
	assert.Equal(t, []preset.Preset{{Name: "eco", Temperature: 78}}, cfg.Presets())
}

func TestValidate_Panics(t *testing.T) {
	minTemp, maxTemp := 25.0, 15.0
	pin := 17

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing heater", Config{TargetSensor: "sensor.a", Transport: "mqtt", MQTT: MQTT{Broker: "tcp://b"}}},
		{"min above max", Config{Heater: "switch.a", TargetSensor: "sensor.a", MinTemp: &minTemp, MaxTemp: &maxTemp, Transport: "mqtt", MQTT: MQTT{Broker: "tcp://b"}}},
		{"bad precision", Config{Heater: "switch.a", TargetSensor: "sensor.a", Precision: 0.2, Transport: "mqtt", MQTT: MQTT{Broker: "tcp://b"}}},
		{"bad mode", Config{Heater: "switch.a", TargetSensor: "sensor.a", InitialHVACMode: "dry", Transport: "mqtt", MQTT: MQTT{Broker: "tcp://b"}}},
		{"mqtt without broker", Config{Heater: "switch.a", TargetSensor: "sensor.a", Transport: "mqtt"}},
		{"gpio without sensor", Config{Heater: "switch.a", TargetSensor: "sensor.a", Transport: "gpio", GPIO: GPIO{RelayPin: &pin}}},
		{"unknown backend", Config{Heater: "switch.a", TargetSensor: "sensor.a", Transport: "mqtt", MQTT: MQTT{Broker: "tcp://b"}, SnapshotBackend: "redis"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.applyDefaults()
			assert.Panics(t, func() { cfg.validate() })
		})
	}
}

func TestValidate_Valid(t *testing.T) {
	cfg := Config{Heater: "switch.a", TargetSensor: "sensor.a", MQTT: MQTT{Broker: "tcp://b"}}
	cfg.applyDefaults()
	assert.NotPanics(t, func() { cfg.validate() })
}

func TestLoadFile_MissingFilePanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for missing config file, but got none")
		}
	}()
	LoadFile(filepath.Join(t.TempDir(), "nope.json"))
}
