// Package store persists expansion groups and settings for expanderd.
//
// Two backends share one interface:
//   - JSONStore keeps everything in a single data.json document, the format
//     the desktop app has always written.
//   - SQLiteStore keeps the same data in SQLite and additionally records
//     which expansions fire.
//
// Both implement engine.ConfigSource so the engine can pull snapshots from
// whichever one is configured.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"expanderd/internal/config"
	"expanderd/internal/expansion"
)

var (
	// ErrNotFound is returned when a group or expansion ID does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicatePrefix is returned when a prefix is already used by
	// another expansion.
	ErrDuplicatePrefix = errors.New("store: prefix already in use")

	// ErrDuplicateGroup is returned when a group name is already taken.
	ErrDuplicateGroup = errors.New("store: group name already in use")

	// ErrInvalid is returned for input that fails validation.
	ErrInvalid = errors.New("store: invalid input")

	// ErrSchema is returned when a document does not match the data schema.
	ErrSchema = errors.New("store: document does not match schema")
)

// MaxDelayMs caps TriggerDelayMs.
const MaxDelayMs = 60_000

// ExpansionInput holds the editable fields of an expansion.
type ExpansionInput struct {
	Prefix           string
	Body             string
	Description      string
	TriggerImmediate bool
	TriggerDelayMs   int
}

// Validate checks the input fields.
func (in ExpansionInput) Validate() error {
	var problems []string
	if in.Prefix == "" {
		problems = append(problems, "prefix is empty")
	}
	if in.Body == "" {
		problems = append(problems, "text is empty")
	}
	if in.TriggerDelayMs < 0 || in.TriggerDelayMs > MaxDelayMs {
		problems = append(problems, fmt.Sprintf("trigger delay must be between 0 and %d ms", MaxDelayMs))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func (in ExpansionInput) apply(e *expansion.Expansion) {
	e.Prefix = in.Prefix
	e.Body = in.Body
	e.Description = in.Description
	e.TriggerImmediate = in.TriggerImmediate
	e.TriggerDelayMs = in.TriggerDelayMs
}

// UsageStat summarizes how often an expansion fired.
type UsageStat struct {
	ExpansionID string    `json:"expansion_id"`
	Prefix      string    `json:"prefix"`
	Count       int       `json:"count"`
	LastUsed    time.Time `json:"last_used"`
}

// Store is the persistence interface shared by both backends.
type Store interface {
	// LoadExpansions returns every expansion with its group fields set.
	LoadExpansions(ctx context.Context) ([]expansion.Expansion, error)
	// LoadWhitelist returns the whitelist settings as a gate snapshot.
	LoadWhitelist(ctx context.Context) (expansion.WhitelistConfig, error)

	Groups(ctx context.Context) ([]expansion.Group, error)
	AddGroup(ctx context.Context, name string) (string, error)
	RenameGroup(ctx context.Context, id, name string) error
	DeleteGroup(ctx context.Context, id string) error

	AddExpansion(ctx context.Context, groupID string, in ExpansionInput) (string, error)
	UpdateExpansion(ctx context.Context, id string, in ExpansionInput) error
	DeleteExpansion(ctx context.Context, id string) error
	// IsPrefixUnique reports whether no expansion other than excludeID
	// uses prefix.
	IsPrefixUnique(ctx context.Context, prefix, excludeID string) (bool, error)

	Settings(ctx context.Context) (expansion.Settings, error)
	UpdateSettings(ctx context.Context, s expansion.Settings) error

	// Export writes the full data document as JSON.
	Export(ctx context.Context, w io.Writer) error
	// Import reads a data document. With merge, groups whose names already
	// exist are skipped and imported IDs are regenerated; otherwise the
	// document replaces all data.
	Import(ctx context.Context, r io.Reader, merge bool) error

	Close() error
}

// Open opens the backend selected by cfg.
func Open(cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "json":
		return OpenJSON(cfg.Path)
	case "sqlite":
		return OpenSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// validateSettings trims whitelist entries and rejects entries with no
// populated field, which would otherwise match every application.
func validateSettings(s expansion.Settings) (expansion.Settings, error) {
	apps := make([]expansion.AppWhitelistEntry, 0, len(s.WhitelistApps))
	for i, e := range s.WhitelistApps {
		if e.IsEmpty() {
			return s, fmt.Errorf("%w: whitelist entry %d has neither process name nor window title", ErrInvalid, i+1)
		}
		e.ProcessName = strings.TrimSpace(e.ProcessName)
		e.WindowTitle = strings.TrimSpace(e.WindowTitle)
		apps = append(apps, e)
	}
	s.WhitelistApps = apps
	return s, nil
}

func validateGroupName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: group name is empty", ErrInvalid)
	}
	return name, nil
}
