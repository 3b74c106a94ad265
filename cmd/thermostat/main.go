package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/general-thermostat/db"
	"github.com/thatsimonsguy/general-thermostat/internal/api"
	"github.com/thatsimonsguy/general-thermostat/internal/config"
	"github.com/thatsimonsguy/general-thermostat/internal/datadog"
	"github.com/thatsimonsguy/general-thermostat/internal/device"
	"github.com/thatsimonsguy/general-thermostat/internal/events"
	"github.com/thatsimonsguy/general-thermostat/internal/gpio"
	"github.com/thatsimonsguy/general-thermostat/internal/logging"
	"github.com/thatsimonsguy/general-thermostat/internal/model"
	"github.com/thatsimonsguy/general-thermostat/internal/mqtt"
	"github.com/thatsimonsguy/general-thermostat/internal/notifications"
	"github.com/thatsimonsguy/general-thermostat/internal/store"
	"github.com/thatsimonsguy/general-thermostat/internal/thermostat"
	"github.com/thatsimonsguy/general-thermostat/system/shutdown"
	"github.com/thatsimonsguy/general-thermostat/system/startup"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("thermostat", cfg.Name).
		Str("heater", cfg.Heater).
		Str("sensor", cfg.TargetSensor).
		Str("transport", cfg.Transport).
		Msg("Starting thermostat")

	notifications.Init(cfg.NtfyTopic)

	gpio.SetSafeMode(cfg.SafeMode)
	if cfg.SafeMode {
		log.Warn().Msg("SAFE MODE ENABLED - GPIO writes are disabled system-wide")
	}

	var relay *model.GPIOPin
	if cfg.Transport == "gpio" {
		pin := cfg.RelayPin()
		relay = &pin
		prepareRelay(cfg, pin)
		checkRelay(cfg, pin)
	}

	if err := run(cfg, relay); err != nil {
		shutdown.ShutdownWithError(relay, err, "Thermostat failed")
		return
	}
	shutdown.Shutdown(relay)
}

func run(cfg config.Config, relay *model.GPIOPin) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.EnableDatadog {
		datadog.InitMetrics(cfg.DDAgentAddr, cfg.DDNamespace, append(cfg.DDTags, "thermostat:"+cfg.Name))
		defer datadog.Close()
	}

	var recorder device.Recorder
	var snapshots thermostat.SnapshotStore
	switch cfg.SnapshotBackend {
	case "json":
		snapshots = store.New(cfg.SnapshotFile)
	default:
		conn, err := db.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer conn.Close()
		snapshots = db.SnapshotStore{DB: conn}
		recorder = db.TransitionRecorder{DB: conn}
	}

	tracker := device.NewTracker(recorder)
	tracker.Seed(cfg.Heater)

	snap, err := snapshots.Load(ctx, cfg.Name)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load previous snapshot, starting from config")
		snap = nil
	}

	tcfg := thermostatConfig(cfg)
	controller := thermostat.New(tcfg, thermostat.Reconcile(tcfg, snap), tracker)

	var publisher events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	}
	defer publisher.Close()

	runner := thermostat.NewRunner(controller, nil, snapshots, publisher)

	switch cfg.Transport {
	case "gpio":
		runner.Actuator = &device.RelayActuator{Pin: *relay}
		poller := &gpio.Poller{
			SensorEntity:   cfg.TargetSensor,
			SensorBus:      cfg.GPIO.SensorBus,
			Fahrenheit:     cfg.TemperatureUnit == "F",
			ActuatorEntity: cfg.Heater,
			RelayPin:       *relay,
			Interval:       cfg.PollInterval(),
			OnSensor:       runner.SensorChanged,
			OnActuator:     runner.ActuatorChanged,
		}
		sensor, actuator := poller.Read()
		runner.InitialSensor = &sensor
		runner.InitialActuator = &actuator
		go poller.Run(ctx)
	default:
		bus, err := mqtt.Connect(mqtt.Options{
			Broker:               cfg.MQTT.Broker,
			ClientID:             cfg.MQTT.ClientID,
			Username:             cfg.MQTT.Username,
			Password:             cfg.MQTT.Password,
			QoS:                  cfg.MQTT.QoS,
			SensorEntity:         cfg.TargetSensor,
			SensorTopic:          cfg.MQTT.SensorTopic,
			ActuatorEntity:       cfg.Heater,
			ActuatorStateTopic:   cfg.MQTT.ActuatorStateTopic,
			ActuatorCommandTopic: cfg.MQTT.ActuatorCommandTopic,
			OnSensor:             runner.SensorChanged,
			OnActuator:           runner.ActuatorChanged,
		})
		if err != nil {
			return err
		}
		defer bus.Close()
		runner.Actuator = bus
	}

	if cfg.APIAddr != "" {
		server := api.NewServer(runner, cfg.CORSOrigins)
		go func() {
			if err := server.Start(ctx, cfg.APIAddr); err != nil {
				log.Error().Err(err).Msg("REST API server stopped")
			}
		}()
	}

	stopped := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(stopped)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	cancel()
	<-stopped
	return nil
}

func thermostatConfig(cfg config.Config) thermostat.Config {
	return thermostat.Config{
		Name:            cfg.Name,
		Heater:          cfg.Heater,
		Sensor:          cfg.TargetSensor,
		ACMode:          cfg.ACMode,
		ColdTolerance:   cfg.ColdTolerance,
		HotTolerance:    cfg.HotTolerance,
		MinCycle:        cfg.MinCycleDuration(),
		KeepAlive:       cfg.KeepAlive(),
		Precision:       cfg.Precision,
		TargetTempStep:  cfg.TargetTempStep,
		MinTemp:         *cfg.MinTemp,
		MaxTemp:         *cfg.MaxTemp,
		TargetTemp:      cfg.TargetTemp,
		InitialHVACMode: model.HVACMode(cfg.InitialHVACMode),
		Unit:            cfg.TemperatureUnit,
		Presets:         cfg.Presets(),
		AutoUpdate:      cfg.AutoUpdatePresetModes,
	}
}

// prepareRelay makes sure a reboot leaves the locally wired relay off.
func prepareRelay(cfg config.Config, pin model.GPIOPin) {
	if cfg.SafeMode || !cfg.InstallServices {
		return
	}

	relays := []startup.Relay{{Label: cfg.Heater, Pin: pin}}
	if err := startup.WriteBootScript(cfg.BootScriptPath, relays); err != nil {
		log.Error().Err(err).Msg("Failed to write boot script")
		return
	}
	if err := startup.InstallBootService(cfg.BootServicePath, cfg.BootScriptPath); err != nil {
		log.Error().Err(err).Msg("Failed to install boot service")
	}

	exe, err := os.Executable()
	if err != nil {
		log.Error().Err(err).Msg("Failed to resolve executable path")
		return
	}
	err = startup.InstallControllerService(startup.ServiceOptions{
		UnitPath:   cfg.MainServicePath,
		After:      cfg.BootServicePath,
		User:       cfg.ServiceUser,
		WorkingDir: cfg.WorkingDir,
		ExecStart:  exe + " -config-file " + cfg.ConfigFile,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to install controller service")
	}
	if err := startup.RunBootScript(cfg.BootScriptPath); err != nil {
		log.Error().Err(err).Msg("Failed to run boot script")
	}
}

// checkRelay reports a relay pin that is not yet an output. Pins left as
// inputs are reconfigured by the first command.
func checkRelay(cfg config.Config, pin model.GPIOPin) {
	active, err := gpio.CheckRelayPin(pin)
	if err != nil {
		log.Warn().Err(err).Int("pin", pin.Number).Str("device", cfg.Heater).Msg("Relay pin is not ready")
		go func() {
			if err := notifications.Send(cfg.Name, fmt.Sprintf("relay pin %d for %s is not configured as an output", pin.Number, cfg.Heater)); err != nil {
				log.Debug().Err(err).Msg("Notification not sent")
			}
		}()
		return
	}
	log.Info().Int("pin", pin.Number).Bool("active", active).Str("device", cfg.Heater).Msg("Relay pin checked")
}
