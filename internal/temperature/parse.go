package temperature

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrUnavailable marks a sensor that reported no value. Callers ignore it.
	ErrUnavailable = errors.New("sensor unavailable")
	ErrNotFinite   = errors.New("sensor reading is not finite")
)

// Parse decodes a sensor state string into a reading.
func Parse(state string) (float64, error) {
	s := strings.TrimSpace(state)
	switch strings.ToLower(s) {
	case "", "unavailable", "unknown":
		return 0, ErrUnavailable
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("decode sensor state %q: %w", state, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("decode sensor state %q: %w", state, ErrNotFinite)
	}
	return v, nil
}
