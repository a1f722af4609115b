// Package obslog configures the process-wide zerolog logger and hands out
// component-scoped child loggers.
package obslog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide base logger. Configure it once via Init.
var Logger zerolog.Logger

// Config controls the base logger's behaviour.
type Config struct {
	Level   string // debug, info, warn, error
	Pretty  bool   // human-readable console writer instead of JSON
	Output  io.Writer
}

// Init configures the package-level Logger. Safe to call once at startup;
// later calls replace the global logger outright.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	zerolog.TimeFieldFormat = time.RFC3339
	Logger = zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Component returns a child logger tagged with the given component name.
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// ForServer returns a child logger tagged with a server ID, for use in the
// supervisor and controller where most log lines concern one server.
func ForServer(base zerolog.Logger, serverID string) zerolog.Logger {
	return base.With().Str("server_id", serverID).Logger()
}

func init() {
	// A usable default before Init runs, so packages can log during tests
	// without every test wiring a logger explicitly.
	Init(Config{Level: "info"})
}
