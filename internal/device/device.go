package device

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/general-thermostat/internal/gpio"
	"github.com/thatsimonsguy/general-thermostat/internal/model"
)

// Actuator accepts on/off commands. Delivery is fire-and-forget from the
// controller's point of view; confirmation arrives later as an actuator event.
type Actuator interface {
	TurnOn(ctx context.Context, entity string) error
	TurnOff(ctx context.Context, entity string) error
}

// Dispatch sends a single command to the actuator.
func Dispatch(ctx context.Context, a Actuator, cmd model.Command) error {
	switch cmd.Action {
	case model.TurnOn:
		log.Info().Str("device", cmd.Entity).Str("trigger", string(cmd.Trigger)).Str("reason", cmd.Reason).Msg("Activating actuator")
		return a.TurnOn(ctx, cmd.Entity)
	case model.TurnOff:
		log.Info().Str("device", cmd.Entity).Str("trigger", string(cmd.Trigger)).Str("reason", cmd.Reason).Msg("Deactivating actuator")
		return a.TurnOff(ctx, cmd.Entity)
	}
	return nil
}

// RelayActuator drives a relay wired to a GPIO pin.
type RelayActuator struct {
	Pin model.GPIOPin
}

func (r *RelayActuator) TurnOn(_ context.Context, _ string) error {
	return gpio.Activate(r.Pin)
}

func (r *RelayActuator) TurnOff(_ context.Context, _ string) error {
	return gpio.Deactivate(r.Pin)
}

// CycleGuard keeps non-forced evaluations from flipping the actuator before it
// has held its current state for MinCycle.
type CycleGuard struct {
	MinCycle time.Duration
	History  History
}

// Allow reports whether an evaluation may change the actuator state. Missing
// history counts as "not long enough".
func (g CycleGuard) Allow(entity string, forced, keepAlive, active bool, now time.Time) bool {
	if forced || keepAlive || g.MinCycle <= 0 {
		return true
	}
	if g.History == nil {
		return false
	}

	held, err := g.History.HeldFor(entity, active, now)
	if err != nil {
		log.Debug().Err(err).Str("device", entity).Msg("Unable to determine time in state, holding")
		return false
	}

	if held < g.MinCycle {
		log.Debug().
			Str("device", entity).
			Bool("active", active).
			Dur("held", held).
			Dur("min_cycle", g.MinCycle).
			Msg("Minimum cycle duration not reached")
		return false
	}
	return true
}
