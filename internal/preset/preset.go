package preset

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// None is the reserved slot holding the manually set target.
const None = "none"

// Configurable lists the presets that may be given a temperature, in table order.
var Configurable = []string{"away", "comfort", "eco", "home", "sleep", "activity", "boost", "reduce"}

var (
	ErrUnknownPreset = errors.New("unknown preset")
	ErrOutOfRange    = errors.New("temperature out of range")
)

type Preset struct {
	Name        string
	Temperature float64
}

// Store is the preset table plus the active selection and the target it
// implies. It is not safe for concurrent use; the controller serializes access.
type Store struct {
	names    []string
	temps    []float64
	defaults map[string]float64
	auto     map[string]bool

	active string
	target float64

	minTemp float64
	maxTemp float64
}

// New builds a store whose none slot starts at manual (0 for unset). A nil
// auto list marks every preset as auto-updating; names in auto that have no
// preset are dropped.
func New(presets []Preset, auto []string, manual, minTemp, maxTemp float64) *Store {
	s := &Store{
		names:    []string{None},
		temps:    []float64{manual},
		defaults: make(map[string]float64, len(presets)),
		auto:     make(map[string]bool),
		active:   None,
		target:   manual,
		minTemp:  minTemp,
		maxTemp:  maxTemp,
	}
	for _, p := range presets {
		s.names = append(s.names, p.Name)
		s.temps = append(s.temps, p.Temperature)
		s.defaults[p.Name] = p.Temperature
	}

	if auto == nil {
		for _, p := range presets {
			s.auto[p.Name] = true
		}
		return s
	}

	var dropped []string
	for _, name := range auto {
		if _, ok := s.defaults[name]; !ok {
			dropped = append(dropped, name)
			continue
		}
		s.auto[name] = true
	}
	if len(dropped) > 0 {
		log.Error().Strs("presets", dropped).Msg("Auto-update presets without a configured temperature, ignoring")
	}
	return s
}

func (s *Store) index(name string) int {
	for i, n := range s.names {
		if n == name {
			return i
		}
	}
	return -1
}

func (s *Store) Has(name string) bool { return s.index(name) >= 0 }

func (s *Store) Active() string   { return s.active }
func (s *Store) Target() float64  { return s.target }
func (s *Store) MinTemp() float64 { return s.minTemp }
func (s *Store) MaxTemp() float64 { return s.maxTemp }

func (s *Store) Names() []string {
	return append([]string(nil), s.names...)
}

func (s *Store) Temperatures() []float64 {
	return append([]float64(nil), s.temps...)
}

// AutoUpdate returns the auto-updating presets in table order.
func (s *Store) AutoUpdate() []string {
	var out []string
	for _, n := range s.names[1:] {
		if s.auto[n] {
			out = append(out, n)
		}
	}
	return out
}

// Restore installs a starting point. Restored temperatures are merged by
// name, skipping unknown names and zero values. The active preset's slot then
// takes target, and an unset none slot takes fallback.
func (s *Store) Restore(active string, target float64, names []string, temps []float64, fallback float64) {
	for i := 0; i < len(names) && i < len(temps); i++ {
		idx := s.index(names[i])
		if idx < 0 || temps[i] == 0 {
			continue
		}
		s.temps[idx] = temps[i]
	}

	if s.index(active) < 0 {
		active = None
	}
	s.active = active
	s.target = target
	s.temps[s.index(active)] = target

	if s.temps[0] == 0 {
		log.Warn().Float64("temperature", fallback).Msg("No previously saved 'none' preset temperature, using fallback")
		s.temps[0] = fallback
	}
}

// SetTarget applies a manual target. An active auto-updating preset absorbs
// the new value; otherwise it goes to the none slot and the active preset is
// re-derived from the table.
func (s *Store) SetTarget(temp float64) {
	s.target = temp
	slot := s.active
	if s.active == None || !s.auto[s.active] {
		slot = None
		s.relink()
	}
	s.temps[s.index(slot)] = temp
}

// Select activates name and loads its temperature as the target. It reports
// false when name is already active.
func (s *Store) Select(name string) (bool, error) {
	idx := s.index(name)
	if idx < 0 {
		return false, fmt.Errorf("%q: %w", name, ErrUnknownPreset)
	}
	if name == s.active {
		return false, nil
	}

	s.active = name
	s.target = s.temps[idx]
	if name == None {
		s.relink()
	} else if !s.auto[name] {
		s.temps[0] = s.target
	}
	return true, nil
}

// SetPresetTemperature writes temp into name's slot and reports whether the
// target changed as a result.
func (s *Store) SetPresetTemperature(name string, temp float64) (bool, error) {
	if s.index(name) < 0 {
		return false, fmt.Errorf("%q: %w", name, ErrUnknownPreset)
	}
	if temp < s.minTemp || temp > s.maxTemp {
		return false, fmt.Errorf("%v not within [%v, %v]: %w", temp, s.minTemp, s.maxTemp, ErrOutOfRange)
	}
	return s.apply(name, temp), nil
}

// Reset restores a configured preset, or every configured preset when name is
// empty, to its configured temperature. It reports whether the target changed.
func (s *Store) Reset(name string) (bool, error) {
	if name != "" {
		def, ok := s.defaults[name]
		if !ok {
			return false, fmt.Errorf("%q cannot be reset: %w", name, ErrUnknownPreset)
		}
		return s.apply(name, def), nil
	}

	for i, n := range s.names[1:] {
		s.temps[i+1] = s.defaults[n]
	}
	if s.active != None {
		s.SetTarget(s.defaults[s.active])
		return true, nil
	}
	s.relink()
	return false, nil
}

func (s *Store) apply(name string, temp float64) bool {
	if s.active != None && s.auto[s.active] {
		if name == s.active {
			s.SetTarget(temp)
			return true
		}
		s.temps[s.index(name)] = temp
		return false
	}

	switch name {
	case None:
		s.SetTarget(temp)
		return true
	case s.active:
		s.temps[s.index(name)] = temp
		s.SetTarget(temp)
		return true
	default:
		s.temps[s.index(name)] = temp
		s.relink()
		return false
	}
}

// relink selects the first fixed preset, in table order, whose temperature
// equals the target, or none.
func (s *Store) relink() {
	s.active = None
	for i, n := range s.names {
		if i == 0 || s.auto[n] {
			continue
		}
		if s.temps[i] == s.target {
			s.active = n
			return
		}
	}
}
