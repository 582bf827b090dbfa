package engine

import (
	"context"
	"time"

	"expanderd/internal/expansion"
)

// AppInfoProvider reports the foreground application. It never fails;
// lookups that go wrong return expansion.UnknownApp().
type AppInfoProvider interface {
	ActiveApp() expansion.ActiveAppInfo
}

// Injector synthesizes key presses into the focused application.
type Injector interface {
	// Backspace sends one backspace key press.
	Backspace() error
	// Paste sends the platform paste shortcut.
	Paste() error
}

// Clipboard replaces the system clipboard contents.
type Clipboard interface {
	WriteText(text string) error
}

// ConfigSource supplies expansion and whitelist snapshots. It is read on
// Start and on every Refresh.
type ConfigSource interface {
	LoadExpansions(ctx context.Context) ([]expansion.Expansion, error)
	LoadWhitelist(ctx context.Context) (expansion.WhitelistConfig, error)
}

// ErrorReporter surfaces capability failures to the operator.
type ErrorReporter interface {
	Report(title, message string)
}

// UsageRecorder is told about every completed substitution.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, expansionID, prefix string, at time.Time) error
}
