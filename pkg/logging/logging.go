// Package logging holds the process-wide zerolog logger. Packages derive
// their own logger with WithComponent when they are configured, so Init
// must run before the engine is opened for its settings to apply.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config selects the log level and output format.
type Config struct {
	Debug bool
	// Human switches to console output and adds readable companions
	// ("1.20 GiB", "12.3K") to the byte and count fields of completion events.
	Human bool
	// Out receives the log stream. Nil means standard error.
	Out io.Writer
}

var (
	logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	human  bool
)

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// Init replaces the process logger.
func Init(cfg Config) {
	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}
	if cfg.Human {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    out != os.Stderr,
		}
	}
	logger = zerolog.New(out).With().Timestamp().Logger()
	human = cfg.Human
}

// L returns the process logger.
func L() *zerolog.Logger { return &logger }

// WithComponent returns a logger tagged with the emitting package: cdf,
// exodus, export, cli.
func WithComponent(component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// SetLogger replaces the process logger without touching the level.
func SetLogger(l zerolog.Logger) { logger = l }

// Human reports whether readable companion fields are enabled.
func Human() bool { return human }
