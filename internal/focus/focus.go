// Package focus identifies the foreground application for whitelist checks.
//
// Lookups are best effort. Whatever cannot be determined is reported as
// expansion.Unknown so the caller never has to handle an error on the
// keystroke path.
//
// Platform support:
//   - Linux X11: xdotool, falling back to xprop; process name from /proc
//   - Linux Wayland (GNOME): org.gnome.Shell.Introspect over D-Bus
//   - Windows: Win32 foreground window and process image name
//   - macOS: System Events via osascript
package focus

import (
	"context"
	"log/slog"
	"os/exec"
	"slices"
	"strings"
	"time"

	"expanderd/internal/expansion"
)

// DefaultTimeout bounds each helper command run during a lookup.
const DefaultTimeout = 500 * time.Millisecond

// runner executes a helper command and returns its trimmed stdout.
type runner func(ctx context.Context, name string, args ...string) (string, error)

func execRunner(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Provider looks up the active application.
type Provider struct {
	timeout time.Duration
	run     runner
	logger  *slog.Logger
	platform
}

// New creates a Provider for the current platform.
func New() *Provider {
	p := &Provider{
		timeout: DefaultTimeout,
		run:     execRunner,
		logger:  slog.Default().With("component", "focus"),
	}
	p.platform = newPlatform(p)
	return p
}

// ActiveApp returns the foreground application. Fields that cannot be
// determined are set to expansion.Unknown.
func (p *Provider) ActiveApp() expansion.ActiveAppInfo {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return normalize(p.activeApp(ctx))
}

// RunningApps lists the names of running applications, sorted and without
// duplicates.
func (p *Provider) RunningApps(ctx context.Context) ([]string, error) {
	names, err := p.runningApps(ctx)
	if err != nil {
		return nil, err
	}
	return dedupe(names), nil
}

// Available reports whether lookups are expected to work.
func (p *Provider) Available() (bool, string) {
	return p.available()
}

func normalize(info expansion.ActiveAppInfo) expansion.ActiveAppInfo {
	info.ProcessName = strings.TrimSpace(info.ProcessName)
	info.WindowTitle = strings.TrimSpace(info.WindowTitle)
	if info.ProcessName == "" {
		info.ProcessName = expansion.Unknown
	}
	if info.WindowTitle == "" {
		info.WindowTitle = expansion.Unknown
	}
	return info
}

func dedupe(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
