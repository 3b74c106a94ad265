package shutdown

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thatsimonsguy/general-thermostat/internal/gpio"
	"github.com/thatsimonsguy/general-thermostat/internal/model"
)

func TestShutdown(t *testing.T) {
	defer gpio.ResetGPIO()
	origExit := ExitFunc
	defer func() { ExitFunc = origExit }()

	levels := map[int]bool{}
	gpio.MockGPIO(func(pin int, high bool) { levels[pin] = high }, func(pin int) bool { return levels[pin] })

	tests := []struct {
		name      string
		relay     *model.GPIOPin
		withError bool
		wantCode  int
		wantLevel *bool
	}{
		{name: "no relay", wantCode: 0},
		{name: "active high relay", relay: &model.GPIOPin{Number: 17, ActiveHigh: true}, wantCode: 0, wantLevel: boolPtr(false)},
		{name: "active low relay on error", relay: &model.GPIOPin{Number: 27}, withError: true, wantCode: 1, wantLevel: boolPtr(true)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := -1
			ExitFunc = func(c int) { code = c }

			if tt.withError {
				ShutdownWithError(tt.relay, errors.New("boom"), "fatal")
			} else {
				Shutdown(tt.relay)
			}

			assert.Equal(t, tt.wantCode, code)
			if tt.wantLevel != nil {
				assert.Equal(t, *tt.wantLevel, levels[tt.relay.Number])
			}
		})
	}
}

func boolPtr(b bool) *bool { return &b }
