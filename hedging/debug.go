package hedging

import (
	"os"

	"github.com/rs/zerolog"
)

// debugLogger is the package-level zerolog logger for debug output.
// Dispatch lifecycle events (start, hedge fired, winner, exhausted) are
// logged here when debug mode is enabled, each tagged with a dispatch ID so
// the attempts of one logical request can be correlated.
var debugLogger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// SetDebugLogger replaces the package debug logger. Useful for routing debug
// output through an application's configured zerolog instance.
func SetDebugLogger(l zerolog.Logger) {
	debugLogger = l
}
