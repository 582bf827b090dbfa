// Package whitelist decides whether an expansion may run in the current
// foreground application.
package whitelist

import (
	"strings"

	"expanderd/internal/expansion"
)

// IsAllowed reports whether expansion is permitted for app under cfg.
//
// A disabled or empty whitelist allows every application. Otherwise the first
// entry whose populated fields all match allows the expansion:
//   - process name matches when either name contains the other, ignoring case,
//     so "chrome" matches "chrome.exe";
//   - window title matches when the entry title is contained in the current
//     title, ignoring case.
func IsAllowed(app expansion.ActiveAppInfo, cfg expansion.WhitelistConfig) bool {
	if !cfg.Enabled || len(cfg.Entries) == 0 {
		return true
	}
	for _, entry := range cfg.Entries {
		if Matches(entry, app) {
			return true
		}
	}
	return false
}

// Matches reports whether a single entry matches app. An entry with no
// populated field matches everything. Fields are compared as stored; the
// store trims them on write.
func Matches(entry expansion.AppWhitelistEntry, app expansion.ActiveAppInfo) bool {
	if name := strings.ToLower(entry.ProcessName); name != "" {
		current := strings.ToLower(app.ProcessName)
		if !strings.Contains(current, name) && !strings.Contains(name, current) {
			return false
		}
	}
	if title := strings.ToLower(entry.WindowTitle); title != "" {
		if !strings.Contains(strings.ToLower(app.WindowTitle), title) {
			return false
		}
	}
	return true
}

// Gate evaluates IsAllowed against a fixed config snapshot.
type Gate struct {
	cfg expansion.WhitelistConfig
}

// NewGate captures a copy of cfg.
func NewGate(cfg expansion.WhitelistConfig) Gate {
	return Gate{cfg: cfg.Clone()}
}

// Allows reports whether app passes the captured whitelist.
func (g Gate) Allows(app expansion.ActiveAppInfo) bool {
	return IsAllowed(app, g.cfg)
}

// Config returns the captured snapshot.
func (g Gate) Config() expansion.WhitelistConfig {
	return g.cfg.Clone()
}
