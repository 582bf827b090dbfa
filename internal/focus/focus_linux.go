//go:build linux

package focus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/godbus/dbus/v5"

	"expanderd/internal/expansion"
)

const (
	introspectDest  = "org.gnome.Shell"
	introspectPath  = "/org/gnome/Shell/Introspect"
	introspectIface = "org.gnome.Shell.Introspect"
)

type platform struct {
	p       *Provider
	procDir string
}

func newPlatform(p *Provider) platform {
	return platform{p: p, procDir: "/proc"}
}

// detectDisplayServer returns "x11", "wayland" or "unknown". XWayland
// sessions count as X11 since the X tools work there.
func detectDisplayServer() string {
	if os.Getenv("DISPLAY") != "" {
		return "x11"
	}
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		return "wayland"
	}
	return "unknown"
}

func (l platform) activeApp(ctx context.Context) expansion.ActiveAppInfo {
	switch detectDisplayServer() {
	case "x11":
		if info, err := l.xdotool(ctx); err == nil {
			return info
		}
		info, err := l.xprop(ctx)
		if err != nil {
			l.p.logger.Debug("active window lookup failed", "error", err)
		}
		return info
	case "wayland":
		info, err := l.gnomeIntrospect()
		if err != nil {
			l.p.logger.Debug("wayland window lookup failed", "error", err)
		}
		return info
	default:
		return expansion.UnknownApp()
	}
}

func (l platform) xdotool(ctx context.Context) (expansion.ActiveAppInfo, error) {
	id, err := l.p.run(ctx, "xdotool", "getactivewindow")
	if err != nil {
		return expansion.ActiveAppInfo{}, err
	}
	var info expansion.ActiveAppInfo
	if title, err := l.p.run(ctx, "xdotool", "getwindowname", id); err == nil {
		info.WindowTitle = title
	}
	if out, err := l.p.run(ctx, "xdotool", "getwindowpid", id); err == nil {
		if pid, err := strconv.Atoi(out); err == nil {
			info.ProcessName = l.processName(pid)
		}
	}
	return info, nil
}

func (l platform) xprop(ctx context.Context) (expansion.ActiveAppInfo, error) {
	out, err := l.p.run(ctx, "xprop", "-root", "_NET_ACTIVE_WINDOW")
	if err != nil {
		return expansion.ActiveAppInfo{}, err
	}
	// "_NET_ACTIVE_WINDOW(WINDOW): window id # 0x3a00007"
	parts := strings.Fields(out)
	if len(parts) < 5 {
		return expansion.ActiveAppInfo{}, errors.New("failed to parse xprop output")
	}
	id := parts[len(parts)-1]

	props, err := l.p.run(ctx, "xprop", "-id", id, "WM_NAME", "WM_CLASS", "_NET_WM_PID")
	if err != nil {
		return expansion.ActiveAppInfo{}, err
	}
	title, class, pid := parseXprop(props)
	info := expansion.ActiveAppInfo{WindowTitle: title, ProcessName: class}
	if name := l.processName(pid); name != "" {
		info.ProcessName = name
	}
	return info, nil
}

// parseXprop extracts the window title, WM_CLASS class and pid from
// `xprop -id <win> WM_NAME WM_CLASS _NET_WM_PID` output.
func parseXprop(out string) (title, class string, pid int) {
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "WM_NAME"):
			// WM_NAME(STRING) = "Document - App"
			if idx := strings.Index(line, "= \""); idx != -1 {
				end := strings.LastIndex(line, "\"")
				if end > idx+3 {
					title = line[idx+3 : end]
				}
			}
		case strings.HasPrefix(line, "WM_CLASS"):
			// WM_CLASS(STRING) = "instance", "class"
			if idx := strings.Index(line, ", \""); idx != -1 {
				end := strings.LastIndex(line, "\"")
				if end > idx+3 {
					class = line[idx+3 : end]
				}
			}
		case strings.HasPrefix(line, "_NET_WM_PID"):
			// _NET_WM_PID(CARDINAL) = 12345
			if idx := strings.Index(line, "= "); idx != -1 {
				pid, _ = strconv.Atoi(strings.TrimSpace(line[idx+2:]))
			}
		}
	}
	return title, class, pid
}

// processName reads the command name of pid from procfs.
func (l platform) processName(pid int) string {
	if pid <= 0 {
		return ""
	}
	if b, err := os.ReadFile(filepath.Join(l.procDir, strconv.Itoa(pid), "comm")); err == nil {
		return strings.TrimSpace(string(b))
	}
	if target, err := os.Readlink(filepath.Join(l.procDir, strconv.Itoa(pid), "exe")); err == nil {
		return filepath.Base(target)
	}
	return ""
}

// gnomeIntrospect asks GNOME Shell for its window list. The interface is
// restricted to unsafe mode on recent GNOME releases.
func (l platform) gnomeIntrospect() (expansion.ActiveAppInfo, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return expansion.UnknownApp(), fmt.Errorf("connect session bus: %w", err)
	}
	defer conn.Close()

	var windows map[uint64]map[string]dbus.Variant
	obj := conn.Object(introspectDest, introspectPath)
	if err := obj.Call(introspectIface+".GetWindows", 0).Store(&windows); err != nil {
		return expansion.UnknownApp(), fmt.Errorf("GetWindows: %w", err)
	}
	info, ok := focusedWindow(windows)
	if !ok {
		return expansion.UnknownApp(), errors.New("no focused window reported")
	}
	return info, nil
}

// focusedWindow picks the window with has-focus set from a GetWindows reply.
func focusedWindow(windows map[uint64]map[string]dbus.Variant) (expansion.ActiveAppInfo, bool) {
	for _, props := range windows {
		focused, _ := props["has-focus"].Value().(bool)
		if !focused {
			continue
		}
		var info expansion.ActiveAppInfo
		info.WindowTitle, _ = props["title"].Value().(string)
		if class, ok := props["wm-class"].Value().(string); ok {
			info.ProcessName = class
		} else if app, ok := props["app-id"].Value().(string); ok {
			info.ProcessName = strings.TrimSuffix(app, ".desktop")
		}
		return info, true
	}
	return expansion.ActiveAppInfo{}, false
}

func (l platform) runningApps(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(l.procDir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		if name := l.processName(pid); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

func (l platform) available() (bool, string) {
	switch detectDisplayServer() {
	case "x11":
		if _, err := exec.LookPath("xdotool"); err == nil {
			return true, "X11 window lookup available (xdotool)"
		}
		if _, err := exec.LookPath("xprop"); err == nil {
			return true, "X11 window lookup available (xprop)"
		}
		return false, "X11 detected but xdotool/xprop not found. Install xdotool: sudo apt install xdotool"
	case "wayland":
		return true, "Wayland detected; window lookup needs GNOME Shell introspection, whitelist checks may see \"unknown\""
	default:
		return false, "no display server detected"
	}
}
