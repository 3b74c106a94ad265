package device

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/general-thermostat/internal/model"
)

var (
	ErrNoHistory     = errors.New("no state history for device")
	ErrStateMismatch = errors.New("device is not in the requested state")
)

// History answers how long a device has continuously held a state.
type History interface {
	HeldFor(entity string, active bool, now time.Time) (time.Duration, error)
}

// Recorder persists observed transitions so dwell times survive a restart.
type Recorder interface {
	RecordTransition(entity string, active bool, at time.Time) error
	LastTransition(entity string) (active bool, at time.Time, err error)
}

type observation struct {
	activity model.Activity
	since    time.Time
}

// Tracker keeps the last reported state of each actuator and when it last
// changed. The reported state is the only source of truth for activity; what
// the controller last commanded is never consulted.
type Tracker struct {
	mu       sync.Mutex
	states   map[string]observation
	seeded   map[string]observation
	recorder Recorder
}

func NewTracker(recorder Recorder) *Tracker {
	return &Tracker{
		states:   make(map[string]observation),
		seeded:   make(map[string]observation),
		recorder: recorder,
	}
}

// Seed loads the last persisted transition for entity. It is only used to date
// the first live observation, and only if that observation agrees with it.
func (t *Tracker) Seed(entity string) {
	if t.recorder == nil {
		return
	}
	active, at, err := t.recorder.LastTransition(entity)
	if err != nil {
		log.Debug().Err(err).Str("device", entity).Msg("No persisted transition to seed from")
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.seeded[entity] = observation{activity: activityOf(active), since: at}
}

// Observe records a reported state. first is true for the first report seen
// for entity, changed is true whenever the reported state differs from the
// previous one.
func (t *Tracker) Observe(entity string, activity model.Activity, at time.Time) (first, changed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.states[entity]
	if ok && prev.activity == activity {
		return false, false
	}

	obs := observation{activity: activity, since: at}
	if !ok {
		if seed, found := t.seeded[entity]; found && seed.activity == activity {
			obs.since = seed.since
		}
	}
	t.states[entity] = obs

	if t.recorder != nil && activity != model.ActivityUnknown && obs.since.Equal(at) {
		if err := t.recorder.RecordTransition(entity, activity == model.ActivityActive, at); err != nil {
			log.Warn().Err(err).Str("device", entity).Msg("Failed to persist actuator transition")
		}
	}

	return !ok, true
}

func (t *Tracker) Activity(entity string) model.Activity {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[entity].activity
}

func (t *Tracker) HeldFor(entity string, active bool, now time.Time) (time.Duration, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	obs, ok := t.states[entity]
	if !ok {
		return 0, fmt.Errorf("%s: %w", entity, ErrNoHistory)
	}
	want := activityOf(active)
	if obs.activity != want {
		return 0, fmt.Errorf("%s is %s, want %s: %w", entity, obs.activity, want, ErrStateMismatch)
	}
	return now.Sub(obs.since), nil
}

func activityOf(active bool) model.Activity {
	if active {
		return model.ActivityActive
	}
	return model.ActivityInactive
}
