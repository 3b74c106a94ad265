package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ghodss/yaml"
	"github.com/rs/zerolog"

	"github.com/thatsimonsguy/general-thermostat/internal/model"
	"github.com/thatsimonsguy/general-thermostat/internal/preset"
)

type MQTT struct {
	Broker               string `json:"broker"`
	ClientID             string `json:"client_id"`
	Username             string `json:"username"`
	Password             string `json:"password"`
	QoS                  byte   `json:"qos"`
	SensorTopic          string `json:"sensor_topic"`
	ActuatorStateTopic   string `json:"actuator_state_topic"`
	ActuatorCommandTopic string `json:"actuator_command_topic"`
}

type GPIO struct {
	RelayPin            *int   `json:"relay_pin"`
	RelayActiveHigh     bool   `json:"relay_active_high"`
	SensorBus           string `json:"sensor_bus"`
	PollIntervalSeconds int    `json:"poll_interval_seconds"`
}

type Kafka struct {
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
}

type Config struct {
	ConfigFile string        `json:"-"`
	LogLevel   zerolog.Level `json:"-"`
	LogFile    string        `json:"log_file"`
	SafeMode   bool          `json:"safe_mode"`

	Name            string   `json:"name"`
	Heater          string   `json:"heater"`
	TargetSensor    string   `json:"target_sensor"`
	ACMode          bool     `json:"ac_mode"`
	ColdTolerance   *float64 `json:"cold_tolerance"`
	HotTolerance    *float64 `json:"hot_tolerance"`
	MinTemp         *float64 `json:"min_temp"`
	MaxTemp         *float64 `json:"max_temp"`
	TargetTemp      *float64 `json:"target_temp"`
	InitialHVACMode string   `json:"initial_hvac_mode"`
	Precision       float64  `json:"precision"`
	TargetTempStep  float64  `json:"target_temp_step"`
	TemperatureUnit string   `json:"temperature_unit"`

	MinCycleDurationSeconds int `json:"min_cycle_duration_seconds"`
	KeepAliveSeconds        int `json:"keep_alive_seconds"`

	AwayTemp     *float64 `json:"away_temp"`
	ComfortTemp  *float64 `json:"comfort_temp"`
	EcoTemp      *float64 `json:"eco_temp"`
	HomeTemp     *float64 `json:"home_temp"`
	SleepTemp    *float64 `json:"sleep_temp"`
	ActivityTemp *float64 `json:"activity_temp"`
	BoostTemp    *float64 `json:"boost_temp"`
	ReduceTemp   *float64 `json:"reduce_temp"`

	AutoUpdatePresetModes []string `json:"auto_update_preset_modes"`

	Transport string `json:"transport"`
	MQTT      MQTT   `json:"mqtt"`
	GPIO      GPIO   `json:"gpio"`

	SnapshotBackend string `json:"snapshot_backend"`
	DBPath          string `json:"db_path"`
	SnapshotFile    string `json:"snapshot_file"`

	APIAddr     string   `json:"api_addr"`
	CORSOrigins []string `json:"cors_origins"`

	Kafka Kafka `json:"kafka"`

	EnableDatadog bool     `json:"enable_datadog"`
	DDAgentAddr   string   `json:"dd_agent_addr"`
	DDNamespace   string   `json:"dd_namespace"`
	DDTags        []string `json:"dd_tags"`

	NtfyTopic string `json:"ntfy_topic"`

	InstallServices bool   `json:"install_services"`
	BootScriptPath  string `json:"boot_script_path"`
	BootServicePath string `json:"boot_service_path"`
	MainServicePath string `json:"main_service_path"`
	ServiceUser     string `json:"service_user"`
	WorkingDir      string `json:"working_dir"`
}

func Load() Config {
	var configFile, logLevel string
	var safeMode bool

	flag.StringVar(&configFile, "config-file", "config.json", "Path to controller config file (.json, .yaml or .yml)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.BoolVar(&safeMode, "safe-mode", false, "Never drive GPIO pins")
	flag.Parse()

	cfg := LoadFile(configFile)
	cfg.LogLevel = parseLogLevel(logLevel)
	cfg.SafeMode = cfg.SafeMode || safeMode
	return cfg
}

// LoadFile reads, defaults and validates a config file. It panics on any
// problem, since the controller cannot run without a usable config.
func LoadFile(path string) Config {
	data, err := os.ReadFile(path)
	if err != nil {
		panic("Failed to load config file: " + err.Error())
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		panic("Failed to parse config file: " + err.Error())
	}

	cfg.ConfigFile = path
	cfg.LogLevel = zerolog.InfoLevel
	cfg.applyDefaults()
	cfg.validate()
	return cfg
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.Name == "" {
		cfg.Name = "General Thermostat"
	}
	if cfg.TemperatureUnit == "" {
		cfg.TemperatureUnit = "C"
	}
	cfg.TemperatureUnit = strings.ToUpper(cfg.TemperatureUnit)

	if cfg.MinTemp == nil {
		v := 7.0
		if cfg.TemperatureUnit == "F" {
			v = 44.6
		}
		cfg.MinTemp = &v
	}
	if cfg.MaxTemp == nil {
		v := 35.0
		if cfg.TemperatureUnit == "F" {
			v = 95.0
		}
		cfg.MaxTemp = &v
	}
	if cfg.Precision == 0 {
		cfg.Precision = 0.1
		if cfg.TemperatureUnit == "F" {
			cfg.Precision = 1
		}
	}
	if cfg.TargetTempStep == 0 {
		cfg.TargetTempStep = cfg.Precision
	}
	if cfg.ColdTolerance != nil {
		v := math.Abs(*cfg.ColdTolerance)
		cfg.ColdTolerance = &v
	}
	if cfg.HotTolerance != nil {
		v := math.Abs(*cfg.HotTolerance)
		cfg.HotTolerance = &v
	}

	if cfg.Transport == "" {
		cfg.Transport = "mqtt"
	}
	if cfg.MQTT.SensorTopic == "" {
		cfg.MQTT.SensorTopic = cfg.TargetSensor + "/state"
	}
	if cfg.MQTT.ActuatorStateTopic == "" {
		cfg.MQTT.ActuatorStateTopic = cfg.Heater + "/state"
	}
	if cfg.MQTT.ActuatorCommandTopic == "" {
		cfg.MQTT.ActuatorCommandTopic = cfg.Heater + "/set"
	}
	if cfg.GPIO.PollIntervalSeconds == 0 {
		cfg.GPIO.PollIntervalSeconds = 30
	}

	if cfg.SnapshotBackend == "" {
		cfg.SnapshotBackend = "sqlite"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "data/thermostat.db"
	}
	if cfg.SnapshotFile == "" {
		cfg.SnapshotFile = "data/snapshot.json"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "thermostat-events"
	}
	if cfg.DDAgentAddr == "" {
		cfg.DDAgentAddr = "127.0.0.1:8125"
	}
	if cfg.DDNamespace == "" {
		cfg.DDNamespace = "thermostat."
	}
	if cfg.BootScriptPath == "" {
		cfg.BootScriptPath = "/usr/local/bin/thermostat-gpio.sh"
	}
	if cfg.BootServicePath == "" {
		cfg.BootServicePath = "/etc/systemd/system/thermostat-gpio.service"
	}
	if cfg.MainServicePath == "" {
		cfg.MainServicePath = "/etc/systemd/system/thermostat.service"
	}
}

func (cfg *Config) validate() {
	var problems []string

	if cfg.Heater == "" {
		problems = append(problems, "heater is required")
	}
	if cfg.TargetSensor == "" {
		problems = append(problems, "target_sensor is required")
	}
	if *cfg.MinTemp > *cfg.MaxTemp {
		problems = append(problems, fmt.Sprintf("min_temp %v is above max_temp %v", *cfg.MinTemp, *cfg.MaxTemp))
	}
	if !validStep(cfg.Precision) {
		problems = append(problems, fmt.Sprintf("precision %v must be one of 0.1, 0.5, 1", cfg.Precision))
	}
	if !validStep(cfg.TargetTempStep) {
		problems = append(problems, fmt.Sprintf("target_temp_step %v must be one of 0.1, 0.5, 1", cfg.TargetTempStep))
	}
	if cfg.TemperatureUnit != "C" && cfg.TemperatureUnit != "F" {
		problems = append(problems, "temperature_unit must be C or F")
	}
	if mode := model.HVACMode(cfg.InitialHVACMode); mode != "" && !model.ModeAllowed(mode, cfg.ACMode) {
		problems = append(problems, fmt.Sprintf("initial_hvac_mode must be one of %v", model.HVACModes(cfg.ACMode)))
	}
	if cfg.MinCycleDurationSeconds < 0 || cfg.KeepAliveSeconds < 0 {
		problems = append(problems, "durations cannot be negative")
	}

	switch cfg.Transport {
	case "mqtt":
		if cfg.MQTT.Broker == "" {
			problems = append(problems, "mqtt.broker is required for the mqtt transport")
		}
	case "gpio":
		if cfg.GPIO.RelayPin == nil {
			problems = append(problems, "gpio.relay_pin is required for the gpio transport")
		}
		if cfg.GPIO.SensorBus == "" {
			problems = append(problems, "gpio.sensor_bus is required for the gpio transport")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown transport %q", cfg.Transport))
	}

	switch cfg.SnapshotBackend {
	case "sqlite", "json":
	default:
		problems = append(problems, fmt.Sprintf("unknown snapshot_backend %q", cfg.SnapshotBackend))
	}

	if len(problems) > 0 {
		panic("Invalid config: " + strings.Join(problems, "; "))
	}
}

func validStep(v float64) bool {
	return v == 0.1 || v == 0.5 || v == 1
}

func (cfg Config) presetTemps() []*float64 {
	return []*float64{
		cfg.AwayTemp, cfg.ComfortTemp, cfg.EcoTemp, cfg.HomeTemp,
		cfg.SleepTemp, cfg.ActivityTemp, cfg.BoostTemp, cfg.ReduceTemp,
	}
}

// Presets returns the presets that were given a temperature, in table order.
func (cfg Config) Presets() []preset.Preset {
	var out []preset.Preset
	for i, temp := range cfg.presetTemps() {
		if temp == nil {
			continue
		}
		out = append(out, preset.Preset{Name: preset.Configurable[i], Temperature: *temp})
	}
	return out
}

func (cfg Config) MinCycleDuration() time.Duration {
	return time.Duration(cfg.MinCycleDurationSeconds) * time.Second
}

func (cfg Config) KeepAlive() time.Duration {
	return time.Duration(cfg.KeepAliveSeconds) * time.Second
}

func (cfg Config) PollInterval() time.Duration {
	return time.Duration(cfg.GPIO.PollIntervalSeconds) * time.Second
}

func (cfg Config) RelayPin() model.GPIOPin {
	pin := model.GPIOPin{ActiveHigh: cfg.GPIO.RelayActiveHigh}
	if cfg.GPIO.RelayPin != nil {
		pin.Number = *cfg.GPIO.RelayPin
	}
	return pin
}
