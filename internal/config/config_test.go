package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate points every path and override at a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(dir, "state"))
	t.Setenv("XDG_RUNTIME_DIR", filepath.Join(dir, "run"))
	t.Setenv("EXPANDERD_DATA_DIR", filepath.Join(dir, "expanderd"))
	for _, k := range []string{
		"EXPANDERD_STORAGE_TYPE", "EXPANDERD_STORAGE_PATH", "EXPANDERD_INPUT_DEVICE",
		"EXPANDERD_LOG_LEVEL", "EXPANDERD_LOG_PATH", "EXPANDERD_SOCKET_PATH", "EXPANDERD_NOTIFY",
	} {
		t.Setenv(k, "")
	}
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDefaultConfig(t *testing.T) {
	dir := isolate(t)
	cfg := DefaultConfig()

	if cfg.Version != Version {
		t.Errorf("expected version %d, got %d", Version, cfg.Version)
	}
	if cfg.Storage.Type != "json" {
		t.Errorf("expected json storage, got %s", cfg.Storage.Type)
	}
	if want := filepath.Join(dir, "expanderd", "data.json"); cfg.Storage.Path != want {
		t.Errorf("expected storage path %s, got %s", want, cfg.Storage.Path)
	}
	if cfg.Engine.BackspacePacingMs != 10 || cfg.Engine.PasteSettleMs != 50 || cfg.Engine.BufferSize != 100 {
		t.Errorf("unexpected engine timings: %+v", cfg.Engine)
	}
	if !cfg.Engine.CancelPendingOnStop || !cfg.Engine.Autostart {
		t.Errorf("expected cancel_pending_on_stop and autostart on: %+v", cfg.Engine)
	}
	if cfg.Watch.DebounceMs != 200 {
		t.Errorf("expected 200ms debounce, got %d", cfg.Watch.DebounceMs)
	}
	if !strings.HasSuffix(cfg.IPC.SocketPath, "expanderd.sock") {
		t.Errorf("unexpected socket path: %s", cfg.IPC.SocketPath)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigPath(t *testing.T) {
	isolate(t)
	path := ConfigPath()
	if !strings.HasSuffix(path, "config.toml") {
		t.Errorf("expected path ending with config.toml, got %s", path)
	}
	if !strings.Contains(path, "expanderd") {
		t.Errorf("config path should contain expanderd: %s", path)
	}
}

func TestDefaultStoragePath(t *testing.T) {
	dir := isolate(t)
	tests := map[string]string{
		"":       filepath.Join(dir, "expanderd", "data.json"),
		"json":   filepath.Join(dir, "expanderd", "data.json"),
		"sqlite": filepath.Join(dir, "expanderd", "expanderd.db"),
		"SQLite": filepath.Join(dir, "expanderd", "expanderd.db"),
	}
	for typ, want := range tests {
		if got := DefaultStoragePath(typ); got != want {
			t.Errorf("DefaultStoragePath(%q) = %s, want %s", typ, got, want)
		}
	}
}

func TestLoadNonexistent(t *testing.T) {
	isolate(t)
	cfg, err := Load("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Engine.BufferSize != 100 {
		t.Errorf("expected default buffer size, got %d", cfg.Engine.BufferSize)
	}
}

func TestLoadTOML(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, `
version = 1

[storage]
type = "sqlite"

[engine]
backspace_pacing_ms = 25
cancel_pending_on_stop = false

[input]
layout = "us"

[logging]
level = "debug"
`)

	cfg, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.Type != "sqlite" {
		t.Errorf("expected sqlite, got %s", cfg.Storage.Type)
	}
	if want := filepath.Join(dir, "expanderd", "expanderd.db"); cfg.Storage.Path != want {
		t.Errorf("empty sqlite path should default to %s, got %s", want, cfg.Storage.Path)
	}
	if cfg.Engine.BackspacePacingMs != 25 {
		t.Errorf("expected pacing 25, got %d", cfg.Engine.BackspacePacingMs)
	}
	if cfg.Engine.CancelPendingOnStop {
		t.Error("explicit false should override the default")
	}
	if cfg.Engine.PasteSettleMs != 50 {
		t.Errorf("unset fields keep defaults, got settle %d", cfg.Engine.PasteSettleMs)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Logging.Level)
	}
}

func TestLoadJSONAndYAML(t *testing.T) {
	dir := isolate(t)

	jsonPath := filepath.Join(dir, "config.json")
	writeFile(t, jsonPath, `{"version": 1, "engine": {"paste_settle_ms": 80}, "notify": {"enabled": false}}`)
	cfg, err := Load(jsonPath)
	if err != nil {
		t.Fatalf("Load JSON failed: %v", err)
	}
	if cfg.Engine.PasteSettleMs != 80 || cfg.Notify.Enabled {
		t.Errorf("JSON values not applied: %+v %+v", cfg.Engine, cfg.Notify)
	}

	yamlPath := filepath.Join(dir, "config.yaml")
	writeFile(t, yamlPath, "version: 1\nstorage:\n  path: ~/snippets.json\nwatch:\n  debounce_ms: 500\n")
	cfg, err = Load(yamlPath)
	if err != nil {
		t.Fatalf("Load YAML failed: %v", err)
	}
	if cfg.Watch.DebounceMs != 500 {
		t.Errorf("expected debounce 500, got %d", cfg.Watch.DebounceMs)
	}
	if want := filepath.Join(dir, "snippets.json"); cfg.Storage.Path != want {
		t.Errorf("expected expanded path %s, got %s", want, cfg.Storage.Path)
	}
}

func TestLoadMalformed(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "[engine\nbroken")
	if _, err := Load(path); err == nil {
		t.Error("expected decode error")
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := isolate(t)
	t.Setenv("EXPANDERD_STORAGE_TYPE", "sqlite")
	t.Setenv("EXPANDERD_LOG_LEVEL", "warn")
	t.Setenv("EXPANDERD_SOCKET_PATH", filepath.Join(dir, "ctl.sock"))
	t.Setenv("EXPANDERD_NOTIFY", "false")

	cfg, err := Load(filepath.Join(dir, "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.Type != "sqlite" {
		t.Errorf("expected sqlite from env, got %s", cfg.Storage.Type)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected warn from env, got %s", cfg.Logging.Level)
	}
	if cfg.IPC.SocketPath != filepath.Join(dir, "ctl.sock") {
		t.Errorf("socket path override not applied: %s", cfg.IPC.SocketPath)
	}
	if cfg.Notify.Enabled {
		t.Error("notify should be disabled from env")
	}
}

func TestValidateConfig(t *testing.T) {
	isolate(t)
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"bad version", func(c *Config) { c.Version = 9 }, "version"},
		{"bad storage type", func(c *Config) { c.Storage.Type = "redis" }, "storage.type"},
		{"sqlite json path", func(c *Config) { c.Storage.Type = "sqlite" }, "storage.path"},
		{"negative pacing", func(c *Config) { c.Engine.BackspacePacingMs = -1 }, "engine.backspace_pacing_ms"},
		{"zero buffer", func(c *Config) { c.Engine.BufferSize = 0 }, "engine.buffer_size"},
		{"unknown layout", func(c *Config) { c.Input.Layout = "dvorak" }, "input.layout"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad log output", func(c *Config) { c.Logging.Output = "syslog" }, "logging.output"},
		{"file without path", func(c *Config) { c.Logging.Output = "file"; c.Logging.FilePath = "" }, "logging.file_path"},
		{"bad permissions", func(c *Config) { c.IPC.Permissions = "777" }, "ipc.permissions"},
		{"no socket", func(c *Config) { c.IPC.SocketPath = "" }, "ipc.socket_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			var errs ValidationErrors
			if !errors.As(err, &errs) {
				t.Fatalf("expected ValidationErrors, got %v", err)
			}
			found := false
			for _, e := range errs {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %s, got %v", tt.field, errs)
			}
		})
	}
}

func TestValidationErrorsCollectAll(t *testing.T) {
	isolate(t)
	cfg := DefaultConfig()
	cfg.Logging.Level = "loud"
	cfg.Engine.BufferSize = 0

	var errs ValidationErrors
	if !errors.As(cfg.Validate(), &errs) {
		t.Fatal("expected ValidationErrors")
	}
	if len(errs) != 2 {
		t.Errorf("expected 2 errors, got %d: %v", len(errs), errs)
	}
}

func TestMissingDeviceIsWarning(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "version = 1\n[input]\ndevice = \"/dev/input/does-not-exist\"\n")

	cfg, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("a missing device should only warn: %v", err)
	}
	if cfg.Input.Device != "/dev/input/does-not-exist" {
		t.Errorf("device not loaded: %s", cfg.Input.Device)
	}
}

func TestLoaderRejectsInvalid(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "version = 1\n[logging]\nlevel = \"loud\"\n")

	_, err := NewLoader(path).Load()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	dir := isolate(t)
	for _, name := range []string{"config.toml", "config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Engine.PasteSettleMs = 75
			cfg.Input.Device = "/dev/input/event3"

			path := filepath.Join(dir, name)
			if err := SaveConfig(cfg, path); err != nil {
				t.Fatalf("SaveConfig failed: %v", err)
			}
			info, err := os.Stat(path)
			if err != nil {
				t.Fatal(err)
			}
			if info.Mode().Perm() != 0o600 {
				t.Errorf("expected 0600, got %o", info.Mode().Perm())
			}

			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if loaded.Engine.PasteSettleMs != 75 || loaded.Input.Device != "/dev/input/event3" {
				t.Errorf("round trip lost values: %+v %+v", loaded.Engine, loaded.Input)
			}
			if loaded.Storage.Path != cfg.Storage.Path {
				t.Errorf("storage path changed: %s vs %s", loaded.Storage.Path, cfg.Storage.Path)
			}
		})
	}
}

func TestLoadOrCreate(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "nested", "config.toml")

	_, created, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	if !created {
		t.Error("expected the file to be created")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file missing: %v", err)
	}

	_, created, err = LoadOrCreate(path)
	if err != nil {
		t.Fatalf("second LoadOrCreate failed: %v", err)
	}
	if created {
		t.Error("second call should load the existing file")
	}
}

func TestLoaderWatch(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "version = 1\n[logging]\nlevel = \"info\"\n")

	l := NewLoader(path)
	defer l.Close()
	if _, err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	changed := make(chan *Config, 4)
	l.OnChange(func(c *Config) { changed <- c })
	if err := l.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	writeFile(t, path, "version = 1\n[logging]\nlevel = \"debug\"\n")

	select {
	case cfg := <-changed:
		if cfg.Logging.Level != "debug" {
			t.Errorf("expected debug after reload, got %s", cfg.Logging.Level)
		}
		if l.Config().Logging.Level != "debug" {
			t.Error("Config() should return the reloaded configuration")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after file change")
	}
}

func TestLoaderWatchKeepsConfigOnBadEdit(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "version = 1\n")

	l := NewLoader(path)
	defer l.Close()
	if _, err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := l.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	writeFile(t, path, "version = 1\n[logging]\nlevel = \"loud\"\n")

	select {
	case err := <-l.Errors():
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no error reported for invalid edit")
	}
	if l.Config().Logging.Level != "info" {
		t.Errorf("previous config should stay active, got %s", l.Config().Logging.Level)
	}
}

func TestExpandPath(t *testing.T) {
	dir := isolate(t)
	if got := expandPath("~/x/y"); got != filepath.Join(dir, "x", "y") {
		t.Errorf("expandPath(~/x/y) = %s", got)
	}
	if got := expandPath("/abs"); got != "/abs" {
		t.Errorf("expandPath(/abs) = %s", got)
	}
}
