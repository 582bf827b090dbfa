package whitelist

import (
	"testing"

	"expanderd/internal/expansion"
)

func TestIsAllowed(t *testing.T) {
	chrome := expansion.ActiveAppInfo{ProcessName: "chrome.exe", WindowTitle: "Inbox - Gmail - Google Chrome"}
	slack := expansion.ActiveAppInfo{ProcessName: "slack", WindowTitle: "general | Acme"}

	tests := []struct {
		name string
		app  expansion.ActiveAppInfo
		cfg  expansion.WhitelistConfig
		want bool
	}{
		{
			name: "disabled allows everything",
			app:  slack,
			cfg: expansion.WhitelistConfig{
				Enabled: false,
				Entries: []expansion.AppWhitelistEntry{{ProcessName: "chrome"}},
			},
			want: true,
		},
		{
			name: "enabled with no entries allows everything",
			app:  slack,
			cfg:  expansion.WhitelistConfig{Enabled: true},
			want: true,
		},
		{
			name: "entry name contained in process name",
			app:  chrome,
			cfg:  enabled(expansion.AppWhitelistEntry{ProcessName: "chrome"}),
			want: true,
		},
		{
			name: "process name contained in entry name",
			app:  expansion.ActiveAppInfo{ProcessName: "chrome"},
			cfg:  enabled(expansion.AppWhitelistEntry{ProcessName: "chrome.exe"}),
			want: true,
		},
		{
			name: "process match ignores case",
			app:  chrome,
			cfg:  enabled(expansion.AppWhitelistEntry{ProcessName: "CHROME"}),
			want: true,
		},
		{
			name: "process mismatch denies",
			app:  slack,
			cfg:  enabled(expansion.AppWhitelistEntry{ProcessName: "chrome"}),
			want: false,
		},
		{
			name: "title containment ignores case",
			app:  chrome,
			cfg:  enabled(expansion.AppWhitelistEntry{WindowTitle: "gmail"}),
			want: true,
		},
		{
			name: "title containment is one-directional",
			app:  expansion.ActiveAppInfo{ProcessName: "x", WindowTitle: "Mail"},
			cfg:  enabled(expansion.AppWhitelistEntry{WindowTitle: "Mail - Inbox"}),
			want: false,
		},
		{
			name: "all populated fields must match",
			app:  chrome,
			cfg:  enabled(expansion.AppWhitelistEntry{ProcessName: "chrome", WindowTitle: "outlook"}),
			want: false,
		},
		{
			name: "second entry matches",
			app:  slack,
			cfg: enabled(
				expansion.AppWhitelistEntry{ProcessName: "chrome"},
				expansion.AppWhitelistEntry{ProcessName: "slack", WindowTitle: "general"},
			),
			want: true,
		},
		{
			name: "empty entry matches vacuously",
			app:  slack,
			cfg:  enabled(expansion.AppWhitelistEntry{}),
			want: true,
		},
		{
			name: "whitespace title is a literal substring",
			app:  expansion.ActiveAppInfo{ProcessName: "xterm", WindowTitle: "Terminal"},
			cfg:  enabled(expansion.AppWhitelistEntry{WindowTitle: " "}),
			want: false,
		},
		{
			name: "whitespace title matches a spaced title",
			app:  slack,
			cfg:  enabled(expansion.AppWhitelistEntry{WindowTitle: " "}),
			want: true,
		},
		{
			name: "unknown app against named entry",
			app:  expansion.UnknownApp(),
			cfg:  enabled(expansion.AppWhitelistEntry{ProcessName: "code"}),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAllowed(tt.app, tt.cfg); got != tt.want {
				t.Errorf("IsAllowed(%+v) = %v, want %v", tt.app, got, tt.want)
			}
		})
	}
}

func TestGateCapturesSnapshot(t *testing.T) {
	cfg := enabled(expansion.AppWhitelistEntry{ProcessName: "code"})
	gate := NewGate(cfg)

	// Mutating the caller's slice must not leak into the gate.
	cfg.Entries[0].ProcessName = "slack"

	if !gate.Allows(expansion.ActiveAppInfo{ProcessName: "code"}) {
		t.Error("gate should still allow the captured entry")
	}
	if gate.Allows(expansion.ActiveAppInfo{ProcessName: "slack"}) {
		t.Error("gate should not see later edits")
	}
}

func enabled(entries ...expansion.AppWhitelistEntry) expansion.WhitelistConfig {
	return expansion.WhitelistConfig{Enabled: true, Entries: entries}
}
