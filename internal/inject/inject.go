// Package inject writes expansion text into the focused application.
//
// The clipboard is driven through github.com/atotto/clipboard. Key presses
// are synthesized per platform:
//   - Linux X11: xdotool
//   - Linux Wayland: wtype
//   - Windows: SendInput
//   - macOS: System Events via osascript
package inject

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/atotto/clipboard"
)

// DefaultTimeout bounds each helper command.
const DefaultTimeout = time.Second

// ErrUnsupported is returned when no clipboard or injection backend exists.
var ErrUnsupported = errors.New("inject: not supported on this system")

// runner executes a helper command.
type runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if len(out) > 0 {
			return fmt.Errorf("%s: %w: %s", name, err, out)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Clipboard writes text to the system clipboard.
type Clipboard struct {
	write       func(string) error
	unsupported bool
}

// NewClipboard returns a Clipboard backed by the system clipboard.
func NewClipboard() *Clipboard {
	return &Clipboard{
		write:       clipboard.WriteAll,
		unsupported: clipboard.Unsupported,
	}
}

// WriteText replaces the clipboard contents with text.
func (c *Clipboard) WriteText(text string) error {
	if c.unsupported {
		return fmt.Errorf("clipboard: %w", ErrUnsupported)
	}
	if err := c.write(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	return nil
}

// Available reports whether a clipboard backend was found.
func (c *Clipboard) Available() (bool, string) {
	if c.unsupported {
		return false, "no clipboard utility found (install xclip, xsel or wl-clipboard)"
	}
	return true, "system clipboard available"
}

// Injector synthesizes backspace and paste key presses.
type Injector struct {
	timeout time.Duration
	run     runner
	logger  *slog.Logger
	backend
}

// New creates an Injector for the current platform.
func New() *Injector {
	i := &Injector{
		timeout: DefaultTimeout,
		run:     execRunner,
		logger:  slog.Default().With("component", "inject"),
	}
	i.backend = newBackend(i)
	return i
}

// Backspace sends one backspace key press.
func (i *Injector) Backspace() error {
	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()
	return i.backspace(ctx)
}

// Paste sends the platform paste shortcut.
func (i *Injector) Paste() error {
	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()
	return i.paste(ctx)
}

// Available reports whether key injection is expected to work.
func (i *Injector) Available() (bool, string) {
	return i.available()
}
