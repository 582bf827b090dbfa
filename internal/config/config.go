// Package config handles configuration loading, validation, and management for expanderd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Storage selects where groups, expansions and settings are kept.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Engine tunes substitution timing and lifecycle.
	Engine EngineConfig `toml:"engine" json:"engine" yaml:"engine"`

	// Input configures the keyboard source.
	Input InputConfig `toml:"input" json:"input" yaml:"input"`

	// Watch configures reloading when the data file changes on disk.
	Watch WatchConfig `toml:"watch" json:"watch" yaml:"watch"`

	// IPC configuration for the control socket.
	IPC IPCConfig `toml:"ipc" json:"ipc" yaml:"ipc"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Notify configures desktop notifications for errors.
	Notify NotifyConfig `toml:"notify" json:"notify" yaml:"notify"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// Type is the storage backend: "json" (default) or "sqlite".
	Type string `toml:"type" json:"type" yaml:"type"`

	// Path is the data file (json) or database file (sqlite). Empty selects
	// data.json or expanderd.db in the data directory.
	Path string `toml:"path" json:"path" yaml:"path"`
}

// EngineConfig holds expansion engine settings.
type EngineConfig struct {
	// BackspacePacingMs is the pause after each injected backspace.
	BackspacePacingMs int `toml:"backspace_pacing_ms" json:"backspace_pacing_ms" yaml:"backspace_pacing_ms"`

	// PasteSettleMs is the pause between the clipboard write and the paste.
	PasteSettleMs int `toml:"paste_settle_ms" json:"paste_settle_ms" yaml:"paste_settle_ms"`

	// BufferSize is the number of typed runes kept for matching.
	BufferSize int `toml:"buffer_size" json:"buffer_size" yaml:"buffer_size"`

	// CancelPendingOnStop drops delayed expansions that have not fired yet
	// when the engine stops.
	CancelPendingOnStop bool `toml:"cancel_pending_on_stop" json:"cancel_pending_on_stop" yaml:"cancel_pending_on_stop"`

	// Autostart starts the engine when the daemon starts.
	Autostart bool `toml:"autostart" json:"autostart" yaml:"autostart"`

	// ReportIntervalSec limits error notifications to one per interval for
	// each failing stage.
	ReportIntervalSec int `toml:"report_interval_sec" json:"report_interval_sec" yaml:"report_interval_sec"`
}

// InputConfig holds keyboard capture settings.
type InputConfig struct {
	// Device pins one evdev node (Linux). Empty reads every keyboard.
	Device string `toml:"device" json:"device" yaml:"device"`

	// Layout is the key map name. Only "us" is built in.
	Layout string `toml:"layout" json:"layout" yaml:"layout"`

	// BufferSize is the key event channel capacity.
	BufferSize int `toml:"buffer_size" json:"buffer_size" yaml:"buffer_size"`
}

// WatchConfig holds data-file watching configuration.
type WatchConfig struct {
	// Enabled reloads expansions when the data file changes.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// DebounceMs is how long the file must be quiet before reloading.
	DebounceMs int `toml:"debounce_ms" json:"debounce_ms" yaml:"debounce_ms"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log output: "stdout", "stderr", "file" or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file (when Output is "file" or "both").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of old log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is the maximum age of log files in days.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// Compress determines whether to compress rotated logs.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// IPCConfig holds control socket configuration.
type IPCConfig struct {
	// Enabled determines whether the control socket is served.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// SocketPath is the path to the Unix socket.
	SocketPath string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`

	// Permissions is the Unix socket permissions (e.g., "0600").
	Permissions string `toml:"permissions" json:"permissions" yaml:"permissions"`

	// MaxConnections is the maximum concurrent connections.
	MaxConnections int `toml:"max_connections" json:"max_connections" yaml:"max_connections"`

	// TimeoutSec is the per-request read and write timeout.
	TimeoutSec int `toml:"timeout_sec" json:"timeout_sec" yaml:"timeout_sec"`
}

// NotifyConfig holds operator notification settings.
type NotifyConfig struct {
	// Enabled shows desktop notifications when an expansion fails.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	cfg := &Config{
		Version: Version,
		Storage: StorageConfig{
			Type: "json",
		},
		Engine: EngineConfig{
			BackspacePacingMs:   10,
			PasteSettleMs:       50,
			BufferSize:          100,
			CancelPendingOnStop: true,
			Autostart:           true,
			ReportIntervalSec:   30,
		},
		Input: InputConfig{
			Layout:     "us",
			BufferSize: 256,
		},
		Watch: WatchConfig{
			Enabled:    true,
			DebounceMs: 200,
		},
		IPC: IPCConfig{
			Enabled:        true,
			SocketPath:     defaultSocketPath(),
			Permissions:    "0600",
			MaxConnections: 10,
			TimeoutSec:     30,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "both",
			FilePath:   filepath.Join(PlatformLogDir(), "expanderd.log"),
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Notify: NotifyConfig{
			Enabled: true,
		},
	}
	cfg.resolvePaths()
	return cfg
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates all necessary directories for the daemon.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Storage.Path),
		filepath.Dir(c.IPC.SocketPath),
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DataDir returns the base expanderd data directory.
// Uses platform-specific paths or the EXPANDERD_DATA_DIR environment override.
func DataDir() string {
	if envDir := os.Getenv("EXPANDERD_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// DefaultStoragePath returns the default file for a storage backend.
func DefaultStoragePath(storageType string) string {
	if strings.EqualFold(storageType, "sqlite") {
		return filepath.Join(DataDir(), "expanderd.db")
	}
	return filepath.Join(DataDir(), "data.json")
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with EXPANDERD_ and use underscores.
func (c *Config) ApplyEnvOverrides() {
	// Storage overrides
	if v := os.Getenv("EXPANDERD_STORAGE_TYPE"); v != "" {
		c.Storage.Type = v
	}
	if v := os.Getenv("EXPANDERD_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}

	// Input overrides
	if v := os.Getenv("EXPANDERD_INPUT_DEVICE"); v != "" {
		c.Input.Device = v
	}

	// Logging overrides
	if v := os.Getenv("EXPANDERD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("EXPANDERD_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}

	// IPC overrides
	if v := os.Getenv("EXPANDERD_SOCKET_PATH"); v != "" {
		c.IPC.SocketPath = v
	}

	if v := os.Getenv("EXPANDERD_NOTIFY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Notify.Enabled = b
		}
	}

	c.resolvePaths()
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// resolvePaths fills an empty storage path and expands "~/" prefixes.
func (c *Config) resolvePaths() {
	if c.Storage.Type == "" {
		c.Storage.Type = "json"
	}
	c.Storage.Type = strings.ToLower(c.Storage.Type)
	if c.Storage.Path == "" {
		c.Storage.Path = DefaultStoragePath(c.Storage.Type)
	}
	c.Storage.Path = expandPath(c.Storage.Path)
	c.Logging.FilePath = expandPath(c.Logging.FilePath)
	c.IPC.SocketPath = expandPath(c.IPC.SocketPath)
}

func defaultSocketPath() string {
	return getDefaultSocketPath(PlatformRuntimeDir())
}
