//go:build darwin

package focus

import (
	"context"
	"strings"

	"expanderd/internal/expansion"
)

const (
	frontProcessScript = `tell application "System Events" to get name of first application process whose frontmost is true`
	frontWindowScript  = `tell application "System Events" to get name of front window of (first application process whose frontmost is true)`
	appListScript      = `tell application "System Events" to get name of every application process whose background only is false`
)

type platform struct {
	p *Provider
}

func newPlatform(p *Provider) platform { return platform{p: p} }

func (d platform) activeApp(ctx context.Context) expansion.ActiveAppInfo {
	var info expansion.ActiveAppInfo
	if name, err := d.p.run(ctx, "osascript", "-e", frontProcessScript); err == nil {
		info.ProcessName = strings.ToLower(name)
	} else {
		d.p.logger.Debug("front process lookup failed", "error", err)
		return expansion.UnknownApp()
	}
	if title, err := d.p.run(ctx, "osascript", "-e", frontWindowScript); err == nil {
		info.WindowTitle = title
	}
	return info
}

func (d platform) runningApps(ctx context.Context) ([]string, error) {
	out, err := d.p.run(ctx, "osascript", "-e", appListScript)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, n := range strings.Split(out, ",") {
		names = append(names, strings.ToLower(strings.TrimSpace(n)))
	}
	return names, nil
}

func (platform) available() (bool, string) {
	return true, "macOS window lookup via System Events (requires Automation permission)"
}
