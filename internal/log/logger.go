package log

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process logger. Every binary in this repo (CLI, gateway,
// dev stub) passes its own service name so shared packages can be told apart
// in combined output.
func New(service string, environment string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
		NoColor:    environment == "production",
	}

	logger := zerolog.New(output).With().
		Timestamp().
		Str("service", service).
		Str("env", environment).
		Logger()

	if environment != "production" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	return logger
}
