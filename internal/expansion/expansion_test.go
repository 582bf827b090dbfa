package expansion

import (
	"encoding/json"
	"testing"
)

func TestExpansionUnmarshalDefaults(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		immediate bool
		delayed   bool
	}{
		{"missing trigger fields", `{"prefix": "/a", "text": "x"}`, true, false},
		{"explicit immediate", `{"prefix": "/a", "text": "x", "trigger_immediate": true, "trigger_delay_ms": 300}`, true, false},
		{"delayed", `{"prefix": "/a", "text": "x", "trigger_immediate": false, "trigger_delay_ms": 300}`, false, true},
		{"not immediate without delay", `{"prefix": "/a", "text": "x", "trigger_immediate": false}`, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e Expansion
			if err := json.Unmarshal([]byte(tt.input), &e); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if e.TriggerImmediate != tt.immediate {
				t.Errorf("TriggerImmediate = %v, want %v", e.TriggerImmediate, tt.immediate)
			}
			if e.Delayed() != tt.delayed {
				t.Errorf("Delayed() = %v, want %v", e.Delayed(), tt.delayed)
			}
			if e.Body != "x" {
				t.Errorf("Body = %q, want %q", e.Body, "x")
			}
		})
	}
}

func TestWhitelistFromSettings(t *testing.T) {
	s := Settings{
		WhitelistEnabled: true,
		WhitelistApps:    []AppWhitelistEntry{{ProcessName: "code"}},
	}
	wl := s.Whitelist()
	if !wl.Enabled || len(wl.Entries) != 1 {
		t.Fatalf("Whitelist() = %+v", wl)
	}

	wl.Entries[0].ProcessName = "changed"
	if s.WhitelistApps[0].ProcessName != "code" {
		t.Error("Whitelist() must not share the entries slice")
	}
}

func TestUnknownApp(t *testing.T) {
	app := UnknownApp()
	if app.ProcessName != Unknown || app.WindowTitle != Unknown {
		t.Errorf("UnknownApp() = %+v", app)
	}
}
