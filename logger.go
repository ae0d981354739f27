package lumen

import (
	"log/slog"

	"github.com/gogpu/lumen/internal/logging"
)

// SetLogger configures the logger for lumen and all its sub-packages.
// By default, lumen produces no log output. Call SetLogger to enable logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by lumen:
//   - [slog.LevelDebug]: resource diagnostics (allocations, G-Buffer resizes, sweeps)
//   - [slog.LevelInfo]: lifecycle events (device opened, renderer started/stopped)
//   - [slog.LevelWarn]: leaked resources recovered by the safety registry, shader reload failures
//
// Example:
//
//	// Enable info-level logging to stderr:
//	lumen.SetLogger(slog.Default())
//
//	// Enable debug-level logging for full diagnostics:
//	lumen.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logging.Set(l)
}

// Logger returns the current logger used by lumen.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return logging.Logger()
}
