package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Global logger instance
var (
	Log zerolog.Logger
)

// Initialize sets up the global logger with configuration
func Initialize(level string, pretty bool) {
	// Parse log level
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	// Configure output format
	if pretty {
		// Pretty console output for development
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		// JSON output for production
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	// Set global logger
	Log = log.With().
		Str("service", "relay").
		Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Bool("pretty", pretty).
		Msg("logger initialized")
}

// GetLogger returns the global logger instance
func GetLogger() *zerolog.Logger {
	return &Log
}

// component returns a sub-logger scoped to the given component name.
func component(name string) *zerolog.Logger {
	l := Log.With().Str("component", name).Logger()
	return &l
}

// Registry creates a logger for Connection Registry events.
func Registry() *zerolog.Logger { return component("registry") }

// Dispatcher creates a logger for Relay Dispatcher events.
func Dispatcher() *zerolog.Logger { return component("dispatcher") }

// Auth creates a logger for authentication events.
func Auth() *zerolog.Logger { return component("auth") }

// HTTP creates a logger for HTTP control-plane events.
func HTTP() *zerolog.Logger { return component("http") }

// WoL creates a logger for Wake-on-LAN events.
func WoL() *zerolog.Logger { return component("wol") }

// UserStore creates a logger for User Store events.
func UserStore() *zerolog.Logger { return component("userstore") }

// Boot creates a logger for the boot/shutdown sequence.
func Boot() *zerolog.Logger { return component("boot") }
