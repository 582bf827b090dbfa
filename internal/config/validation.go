package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateStorage(&c.Storage)...)
	errs = append(errs, validateEngine(&c.Engine)...)
	errs = append(errs, validateInput(&c.Input)...)
	errs = append(errs, validateWatch(&c.Watch)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateIPC(&c.IPC)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateStorage(s *StorageConfig) ValidationErrors {
	var errs ValidationErrors

	switch s.Type {
	case "json", "sqlite":
	default:
		errs = append(errs, ValidationError{
			Field:   "storage.type",
			Message: fmt.Sprintf("invalid storage type: %s (valid: json, sqlite)", s.Type),
		})
	}

	if s.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "storage.path",
			Message: "storage path is required",
		})
		return errs
	}

	if s.Type == "sqlite" && strings.EqualFold(filepath.Ext(s.Path), ".json") {
		errs = append(errs, ValidationError{
			Field:   "storage.path",
			Message: fmt.Sprintf("%s looks like a JSON data file, not a sqlite database", s.Path),
		})
	}

	// Check parent directory exists or can be created
	dir := filepath.Dir(expandPath(s.Path))
	if dir != "" && dir != "." {
		if info, err := os.Stat(dir); err != nil {
			if !os.IsNotExist(err) {
				errs = append(errs, ValidationError{
					Field:   "storage.path",
					Message: fmt.Sprintf("cannot access directory: %v", err),
				})
			}
			// Directory doesn't exist yet - that's OK, it will be created
		} else if !info.IsDir() {
			errs = append(errs, ValidationError{
				Field:   "storage.path",
				Message: fmt.Sprintf("parent path is not a directory: %s", dir),
			})
		}
	}

	return errs
}

func validateEngine(e *EngineConfig) ValidationErrors {
	var errs ValidationErrors

	if e.BackspacePacingMs < 0 || e.BackspacePacingMs > 1000 {
		errs = append(errs, *RangeError("engine.backspace_pacing_ms", 0, 1000))
	}
	if e.PasteSettleMs < 0 || e.PasteSettleMs > 5000 {
		errs = append(errs, *RangeError("engine.paste_settle_ms", 0, 5000))
	}
	if e.BufferSize < 1 || e.BufferSize > 10000 {
		errs = append(errs, *RangeError("engine.buffer_size", 1, 10000))
	}
	if e.ReportIntervalSec < 0 {
		errs = append(errs, ValidationError{
			Field:   "engine.report_interval_sec",
			Message: "report interval cannot be negative",
		})
	}

	return errs
}

func validateInput(in *InputConfig) ValidationErrors {
	var errs ValidationErrors

	if in.Layout != "" && in.Layout != "us" {
		errs = append(errs, ValidationError{
			Field:   "input.layout",
			Message: fmt.Sprintf("unknown keyboard layout: %s (valid: us)", in.Layout),
		})
	}

	if in.BufferSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "input.buffer_size",
			Message: "event buffer must hold at least 1 event",
		})
	}

	if in.Device != "" {
		if _, err := os.Stat(in.Device); err != nil {
			errs = append(errs, ValidationError{
				Field:   "input.device",
				Message: fmt.Sprintf("device not accessible: %v", err),
			})
		}
	}

	return errs
}

func validateWatch(w *WatchConfig) ValidationErrors {
	var errs ValidationErrors

	if w.Enabled && w.DebounceMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "watch.debounce_ms",
			Message: "debounce cannot be negative",
		})
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
		// Valid formats
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: fmt.Sprintf("file path is required when output is '%s'", l.Output),
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}

	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}

	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}

	return errs
}

func validateIPC(i *IPCConfig) ValidationErrors {
	var errs ValidationErrors

	if !i.Enabled {
		return errs
	}

	if i.SocketPath == "" {
		errs = append(errs, ValidationError{
			Field:   "ipc.socket_path",
			Message: "socket path is required when IPC is enabled",
		})
	}

	if i.Permissions != "" {
		if matched, _ := regexp.MatchString(`^0[0-7]{3}$`, i.Permissions); !matched {
			errs = append(errs, ValidationError{
				Field:   "ipc.permissions",
				Message: fmt.Sprintf("invalid permissions format: %s (expected octal like 0600)", i.Permissions),
			})
		}
	}

	if i.MaxConnections < 1 {
		errs = append(errs, ValidationError{
			Field:   "ipc.max_connections",
			Message: "max connections must be at least 1",
		})
	}

	if i.TimeoutSec < 1 {
		errs = append(errs, ValidationError{
			Field:   "ipc.timeout_sec",
			Message: "timeout must be at least 1 second",
		})
	}

	return errs
}

// Helper functions

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// IsWarning returns true if this is a non-fatal validation issue.
func (e *ValidationError) IsWarning() bool {
	// The pinned device may appear after login (USB keyboards).
	warningFields := []string{
		"input.device",
	}
	for _, f := range warningFields {
		if strings.HasPrefix(e.Field, f) {
			return true
		}
	}
	return false
}

// Warnings returns only warning-level validation errors.
func (e ValidationErrors) Warnings() ValidationErrors {
	var warnings ValidationErrors
	for _, err := range e {
		if err.IsWarning() {
			warnings = append(warnings, err)
		}
	}
	return warnings
}

// Errors returns only error-level validation errors.
func (e ValidationErrors) Errors() ValidationErrors {
	var errs ValidationErrors
	for _, err := range e {
		if !err.IsWarning() {
			errs = append(errs, err)
		}
	}
	return errs
}

// HasErrors returns true if there are any non-warning errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e.Errors()) > 0
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// checkValid splits a validation result into blocking errors and warnings.
func checkValid(c *Config) (warnings ValidationErrors, err error) {
	verr := c.Validate()
	if verr == nil {
		return nil, nil
	}
	var errs ValidationErrors
	if !errors.As(verr, &errs) {
		return nil, verr
	}
	if errs.HasErrors() {
		return errs.Warnings(), fmt.Errorf("%w: %v", ErrInvalidConfig, errs.Errors())
	}
	return errs.Warnings(), nil
}
