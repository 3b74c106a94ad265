package shutdown

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/general-thermostat/internal/gpio"
	"github.com/thatsimonsguy/general-thermostat/internal/model"
)

var ExitFunc = os.Exit

// Shutdown releases a locally wired relay, if any, and exits. Safe mode is
// honored by the gpio package.
func Shutdown(relay *model.GPIOPin) {
	shutdown(relay, 0)
}

func ShutdownWithError(relay *model.GPIOPin, err error, msg string) {
	log.Error().Err(err).Msg(msg)
	shutdown(relay, 1)
}

func shutdown(relay *model.GPIOPin, code int) {
	if relay != nil {
		if err := gpio.Deactivate(*relay); err != nil {
			log.Error().Err(err).Int("pin", relay.Number).Msg("Failed to deactivate relay on shutdown")
		} else {
			log.Info().Int("pin", relay.Number).Msg("Relay deactivated")
		}
	}
	ExitFunc(code)
}
