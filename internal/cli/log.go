// Package cli implements the quickmod command-line interface.
//
// This package provides commands for resolving mod dependencies, downloading
// mods, inspecting the local descriptor store and serving the HTTP API. The
// CLI is built using cobra and logs through charmbracelet/log.
//
// # Commands
//
// The main commands are:
//   - resolve: Discover the transitive dependencies of mods
//   - install: Resolve and download one version of every mod
//   - store: List, search, show and refresh stored descriptors
//   - graph: Export the dependency graph as DOT or SVG
//   - serve: Run the HTTP API
//
// # Logging
//
// Every command logs through [CLI.Logger]. Its level is the more verbose of
// --verbose and log.level from the configuration file or QUICKMOD_LOG_LEVEL.
package cli

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger creates the CLI logger. Timestamps look like "14:32:01.45".
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
		Prefix:          appName,
	})
}

// chooseLevel returns the more verbose of current and the configured level
// name. Unknown names keep current.
func chooseLevel(current log.Level, configured string) log.Level {
	lvl, err := log.ParseLevel(configured)
	if err != nil || lvl >= current {
		return current
	}
	return lvl
}

// stopwatch logs how long a step of a command took.
type stopwatch struct {
	logger *log.Logger
	start  time.Time
}

func startStopwatch(l *log.Logger) *stopwatch {
	return &stopwatch{logger: l, start: time.Now()}
}

// done logs msg with the given key-value pairs and the elapsed time.
func (s *stopwatch) done(msg string, keyvals ...any) {
	keyvals = append(keyvals, "elapsed", time.Since(s.start).Round(time.Millisecond))
	s.logger.Info(msg, keyvals...)
}
