package thermostat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/general-thermostat/internal/datadog"
	"github.com/thatsimonsguy/general-thermostat/internal/device"
	"github.com/thatsimonsguy/general-thermostat/internal/events"
	"github.com/thatsimonsguy/general-thermostat/internal/model"
)

var ErrStopped = errors.New("thermostat is not running")

// SnapshotStore persists controller state between runs. Load returns a nil
// snapshot when nothing has been saved yet.
type SnapshotStore interface {
	Load(ctx context.Context, name string) (*model.Snapshot, error)
	Save(ctx context.Context, name string, snap model.Snapshot) error
}

type request struct {
	run     func() ([]model.Command, error)
	persist bool
	reply   chan error
}

// Runner is the single task driving a Controller. Sensor, actuator and user
// requests are queued and handled one at a time in arrival order, together
// with the keep-alive ticker.
type Runner struct {
	Controller *Controller
	Actuator   device.Actuator
	Store      SnapshotStore
	Events     events.Publisher

	InitialSensor   *model.SensorEvent
	InitialActuator *model.ActuatorEvent

	mu    sync.Mutex
	queue []request
	wake  chan struct{}
	done  chan struct{}
}

func NewRunner(c *Controller, actuator device.Actuator, store SnapshotStore, publisher events.Publisher) *Runner {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Runner{
		Controller: c,
		Actuator:   actuator,
		Store:      store,
		Events:     publisher,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Run blocks until ctx is cancelled, then persists the final snapshot.
func (r *Runner) Run(ctx context.Context) {
	defer close(r.done)

	r.dispatch(ctx, r.Controller.Start(r.InitialSensor, r.InitialActuator))
	r.emitMetrics()

	var tick <-chan time.Time
	if keepAlive := r.Controller.cfg.KeepAlive; keepAlive > 0 {
		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			r.drain(context.Background(), ErrStopped)
			r.persist(context.Background())
			log.Info().Str("thermostat", r.Controller.cfg.Name).Msg("Thermostat stopped")
			return
		case <-tick:
			r.dispatch(ctx, r.Controller.HandleTick())
		case <-r.wake:
			for {
				req, ok := r.next()
				if !ok {
					break
				}
				r.execute(ctx, req)
			}
		}
		r.emitMetrics()
	}
}

func (r *Runner) enqueue(req request) {
	r.mu.Lock()
	r.queue = append(r.queue, req)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Runner) next() (request, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return request{}, false
	}
	req := r.queue[0]
	r.queue = r.queue[1:]
	return req, true
}

// drain answers anything still queued at shutdown.
func (r *Runner) drain(ctx context.Context, err error) {
	for {
		req, ok := r.next()
		if !ok {
			return
		}
		if req.reply != nil {
			req.reply <- err
		}
	}
}

func (r *Runner) execute(ctx context.Context, req request) {
	cmds, err := req.run()
	r.dispatch(ctx, cmds)
	if err == nil && req.persist {
		r.persist(ctx)
	}
	if req.reply != nil {
		req.reply <- err
	}
}

func (r *Runner) dispatch(ctx context.Context, cmds []model.Command) {
	for _, cmd := range cmds {
		datadog.Incr("commands", "action:"+cmd.Action.String(), "trigger:"+string(cmd.Trigger))
		if err := device.Dispatch(ctx, r.Actuator, cmd); err != nil {
			log.Error().Err(err).Str("device", cmd.Entity).Str("action", cmd.Action.String()).Msg("Failed to send actuator command")
		}

		v := r.Controller.View()
		ev := events.NewCommandEvent(v.Name, cmd, v.CurrentTemperature, v.TargetTemperature, v.HVACMode, time.Now())
		if err := r.Events.Publish(ctx, ev); err != nil {
			log.Warn().Err(err).Msg("Failed to publish controller event")
		}
	}
}

func (r *Runner) persist(ctx context.Context) {
	if r.Store == nil {
		return
	}
	if err := r.Store.Save(ctx, r.Controller.cfg.Name, r.Controller.Snapshot()); err != nil {
		log.Error().Err(err).Msg("Failed to persist thermostat snapshot")
	}
}

func (r *Runner) emitMetrics() {
	v := r.Controller.View()
	tag := "thermostat:" + v.Name
	if v.CurrentTemperature != nil {
		datadog.Gauge("temperature.current", *v.CurrentTemperature, tag)
	}
	datadog.Gauge("temperature.target", v.TargetTemperature, tag)
	active := 0.0
	if v.HVACAction == model.ActionHeating || v.HVACAction == model.ActionCooling {
		active = 1
	}
	datadog.Gauge("actuator.active", active, tag)
}

// SensorChanged queues a sensor report without waiting for it to be handled.
func (r *Runner) SensorChanged(ev model.SensorEvent) {
	r.enqueue(request{run: func() ([]model.Command, error) {
		return r.Controller.HandleSensor(ev), nil
	}})
}

// ActuatorChanged queues an actuator report without waiting for it to be handled.
func (r *Runner) ActuatorChanged(ev model.ActuatorEvent) {
	r.enqueue(request{run: func() ([]model.Command, error) {
		return r.Controller.HandleActuator(ev), nil
	}})
}

func (r *Runner) submit(ctx context.Context, run func() ([]model.Command, error)) error {
	select {
	case <-r.done:
		return ErrStopped
	default:
	}

	reply := make(chan error, 1)
	r.enqueue(request{run: run, persist: true, reply: reply})

	select {
	case err := <-reply:
		return err
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) State() View {
	return r.Controller.View()
}

func (r *Runner) SetHVACMode(ctx context.Context, mode string) error {
	return r.submit(ctx, func() ([]model.Command, error) {
		return r.Controller.SetHVACMode(mode)
	})
}

func (r *Runner) SetTemperature(ctx context.Context, temp float64) error {
	return r.submit(ctx, func() ([]model.Command, error) {
		return r.Controller.SetTemperature(temp), nil
	})
}

func (r *Runner) SetPresetMode(ctx context.Context, name string) error {
	return r.submit(ctx, func() ([]model.Command, error) {
		return r.Controller.SetPresetMode(name)
	})
}

func (r *Runner) SetPresetTemperature(ctx context.Context, name string, temp float64) error {
	return r.submit(ctx, func() ([]model.Command, error) {
		return r.Controller.SetPresetTemperature(name, temp)
	})
}

func (r *Runner) ResetPresetTemperature(ctx context.Context, name string) error {
	return r.submit(ctx, func() ([]model.Command, error) {
		return r.Controller.ResetPresetTemperature(name)
	})
}

func (r *Runner) SetTolerance(ctx context.Context, cold, hot *float64) error {
	return r.submit(ctx, func() ([]model.Command, error) {
		return r.Controller.SetTolerance(cold, hot), nil
	})
}
