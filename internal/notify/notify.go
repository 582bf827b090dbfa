// Package notify tells the operator about failures the daemon recovered
// from, such as a clipboard that could not be written.
package notify

import (
	"log/slog"
)

// AppName is shown as the notification source.
const AppName = "expanderd"

// Reporter delivers a short message to the operator.
type Reporter interface {
	Report(title, message string)
}

// LogReporter writes reports to a logger. It is the fallback when desktop
// notifications are disabled or unavailable.
type LogReporter struct {
	logger *slog.Logger
}

// NewLogReporter creates a LogReporter. A nil logger uses slog.Default.
func NewLogReporter(logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{logger: logger.With("component", "notify")}
}

// Report logs the message at warn level.
func (r *LogReporter) Report(title, message string) {
	r.logger.Warn(title, "detail", message)
}

// New returns a desktop Reporter when enabled and supported, and a
// LogReporter otherwise.
func New(enabled bool, logger *slog.Logger) Reporter {
	fallback := NewLogReporter(logger)
	if !enabled {
		return fallback
	}
	return newDesktop(fallback)
}
