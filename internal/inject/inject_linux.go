//go:build linux

package inject

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

type backend struct {
	i    *Injector
	tool string
}

func newBackend(i *Injector) backend {
	return backend{i: i, tool: detectTool()}
}

// detectTool picks xdotool under X11 (including XWayland) and wtype on pure
// Wayland sessions.
func detectTool() string {
	if os.Getenv("DISPLAY") != "" {
		return "xdotool"
	}
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		return "wtype"
	}
	return ""
}

func (b backend) backspace(ctx context.Context) error {
	switch b.tool {
	case "xdotool":
		return b.i.run(ctx, "xdotool", "key", "--clearmodifiers", "BackSpace")
	case "wtype":
		return b.i.run(ctx, "wtype", "-k", "BackSpace")
	default:
		return fmt.Errorf("backspace: %w", ErrUnsupported)
	}
}

func (b backend) paste(ctx context.Context) error {
	switch b.tool {
	case "xdotool":
		return b.i.run(ctx, "xdotool", "key", "--clearmodifiers", "ctrl+v")
	case "wtype":
		return b.i.run(ctx, "wtype", "-M", "ctrl", "-k", "v", "-m", "ctrl")
	default:
		return fmt.Errorf("paste: %w", ErrUnsupported)
	}
}

func (b backend) available() (bool, string) {
	if b.tool == "" {
		return false, "no display server detected"
	}
	if _, err := exec.LookPath(b.tool); err != nil {
		return false, fmt.Sprintf("%s not found in PATH", b.tool)
	}
	return true, fmt.Sprintf("key injection available (%s)", b.tool)
}
