// Package expansion defines the value types shared by the matcher, the
// whitelist gate, the engine and the data store.
//
// Every type here is treated as an immutable snapshot once handed to the
// engine. Stores build fresh slices on every load.
package expansion

import (
	"encoding/json"
	"strings"
)

// Unknown is the sentinel reported when the foreground application cannot be
// determined.
const Unknown = "unknown"

// Expansion is a single trigger rule.
type Expansion struct {
	// ID is assigned by the store at creation and stays stable across edits.
	ID string `json:"id"`

	// Prefix is the text the user types to request the expansion.
	Prefix string `json:"prefix"`

	// Body is the replacement text pasted in place of the prefix.
	Body string `json:"text"`

	Description string `json:"description,omitempty"`

	// TriggerImmediate fires the substitution on the key event path. When
	// false the substitution runs TriggerDelayMs milliseconds later.
	TriggerImmediate bool `json:"trigger_immediate"`
	TriggerDelayMs   int  `json:"trigger_delay_ms"`

	// GroupID and GroupName are filled in when a store flattens its groups.
	GroupID   string `json:"group_id,omitempty"`
	GroupName string `json:"group_name,omitempty"`
}

// UnmarshalJSON decodes an expansion. Files written before delayed triggers
// existed carry no trigger_immediate field; those expansions fire at once.
func (e *Expansion) UnmarshalJSON(data []byte) error {
	type plain Expansion
	p := plain{TriggerImmediate: true}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = Expansion(p)
	return nil
}

// Delayed reports whether the substitution should be deferred.
func (e Expansion) Delayed() bool {
	return !e.TriggerImmediate && e.TriggerDelayMs > 0
}

// AppWhitelistEntry restricts expansion to matching applications. An empty
// field is not checked.
type AppWhitelistEntry struct {
	ProcessName string `json:"process_name,omitempty" toml:"process_name" yaml:"process_name,omitempty"`
	WindowTitle string `json:"window_title,omitempty" toml:"window_title" yaml:"window_title,omitempty"`
}

// IsEmpty reports whether neither field is populated.
func (e AppWhitelistEntry) IsEmpty() bool {
	return strings.TrimSpace(e.ProcessName) == "" && strings.TrimSpace(e.WindowTitle) == ""
}

// WhitelistConfig is the whitelist snapshot passed to the gate.
type WhitelistConfig struct {
	Enabled bool                `json:"enabled"`
	Entries []AppWhitelistEntry `json:"entries"`
}

// Clone returns a copy that shares no backing array with c.
func (c WhitelistConfig) Clone() WhitelistConfig {
	out := WhitelistConfig{Enabled: c.Enabled}
	if len(c.Entries) > 0 {
		out.Entries = make([]AppWhitelistEntry, len(c.Entries))
		copy(out.Entries, c.Entries)
	}
	return out
}

// ActiveAppInfo describes the foreground application.
type ActiveAppInfo struct {
	ProcessName string `json:"process_name"`
	WindowTitle string `json:"window_title"`
}

// UnknownApp is returned by providers that cannot determine the foreground
// application.
func UnknownApp() ActiveAppInfo {
	return ActiveAppInfo{ProcessName: Unknown, WindowTitle: Unknown}
}

// Group is a named collection of expansions, as persisted by the store.
type Group struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Expansions []Expansion `json:"expansions"`
}

// Settings holds the user-editable settings persisted next to the groups.
type Settings struct {
	WhitelistEnabled bool                `json:"whitelist_enabled"`
	WhitelistApps    []AppWhitelistEntry `json:"whitelist_apps"`
}

// Whitelist converts persisted settings into a gate snapshot.
func (s Settings) Whitelist() WhitelistConfig {
	return WhitelistConfig{Enabled: s.WhitelistEnabled, Entries: s.WhitelistApps}.Clone()
}
