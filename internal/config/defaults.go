package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/expanderd/
//   - Linux:   ~/.local/share/expanderd/
//   - Windows: %APPDATA%\expanderd\
//
// Falls back to ~/.expanderd if platform detection fails.
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		return macOSDataDir()
	case "linux":
		return linuxDataDir()
	case "windows":
		return windowsDataDir()
	default:
		return fallbackDataDir()
	}
}

// PlatformConfigDir returns the platform-specific config directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/expanderd/
//   - Linux:   ~/.config/expanderd/
//   - Windows: %APPDATA%\expanderd\
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		return macOSDataDir() // macOS uses same dir for config and data
	case "linux":
		return linuxConfigDir()
	case "windows":
		return windowsDataDir() // Windows uses same dir for config and data
	default:
		return fallbackDataDir()
	}
}

// PlatformLogDir returns the platform-specific log directory.
//
// Platform paths:
//   - macOS:   ~/Library/Logs/expanderd/
//   - Linux:   ~/.local/state/expanderd/
//   - Windows: %LOCALAPPDATA%\expanderd\logs\
func PlatformLogDir() string {
	switch runtime.GOOS {
	case "darwin":
		return macOSLogDir()
	case "linux":
		return linuxStateDir()
	case "windows":
		return windowsLogDir()
	default:
		return filepath.Join(fallbackDataDir(), "logs")
	}
}

// PlatformRuntimeDir returns the platform-specific runtime directory for sockets.
//
// Platform paths:
//   - macOS:   /tmp/expanderd-$UID/
//   - Linux:   $XDG_RUNTIME_DIR/expanderd/ or /tmp/expanderd-$UID/
//   - Windows: %LOCALAPPDATA%\expanderd\run\
func PlatformRuntimeDir() string {
	switch runtime.GOOS {
	case "linux":
		return linuxRuntimeDir()
	case "windows":
		return filepath.Join(filepath.Dir(windowsLogDir()), "run")
	default:
		return filepath.Join(os.TempDir(), "expanderd-"+getUserID())
	}
}

// macOS-specific paths

func macOSDataDir() string {
	return filepath.Join(homeDir(), "Library", "Application Support", "expanderd")
}

func macOSLogDir() string {
	return filepath.Join(homeDir(), "Library", "Logs", "expanderd")
}

// Linux-specific paths following XDG Base Directory Specification

func linuxDataDir() string {
	// XDG_DATA_HOME or ~/.local/share
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "expanderd")
	}
	return filepath.Join(homeDir(), ".local", "share", "expanderd")
}

func linuxConfigDir() string {
	// XDG_CONFIG_HOME or ~/.config
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "expanderd")
	}
	return filepath.Join(homeDir(), ".config", "expanderd")
}

func linuxStateDir() string {
	// XDG_STATE_HOME or ~/.local/state
	if xdgState := os.Getenv("XDG_STATE_HOME"); xdgState != "" {
		return filepath.Join(xdgState, "expanderd")
	}
	return filepath.Join(homeDir(), ".local", "state", "expanderd")
}

func linuxRuntimeDir() string {
	// XDG_RUNTIME_DIR (usually /run/user/$UID)
	if xdgRuntime := os.Getenv("XDG_RUNTIME_DIR"); xdgRuntime != "" {
		return filepath.Join(xdgRuntime, "expanderd")
	}
	return filepath.Join("/tmp", "expanderd-"+getUserID())
}

// Windows-specific paths

func windowsDataDir() string {
	// %APPDATA% (roaming)
	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, "expanderd")
	}
	return filepath.Join(homeDir(), "AppData", "Roaming", "expanderd")
}

func windowsLogDir() string {
	// %LOCALAPPDATA% (local)
	if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
		return filepath.Join(localAppData, "expanderd", "logs")
	}
	return filepath.Join(homeDir(), "AppData", "Local", "expanderd", "logs")
}

func fallbackDataDir() string {
	return filepath.Join(homeDir(), ".expanderd")
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	home, _ := os.UserHomeDir()
	return home
}

func getUserID() string {
	// -1 on Windows
	if uid := os.Getuid(); uid >= 0 {
		return strconv.Itoa(uid)
	}
	return "0"
}

// DefaultPaths holds the default paths for the current platform.
type DefaultPaths struct {
	DataDir    string
	ConfigDir  string
	LogDir     string
	RuntimeDir string

	ConfigFile   string
	DataFile     string
	DatabaseFile string
	LogFile      string
	SocketPath   string
}

// GetDefaultPaths returns all default paths for the current platform.
func GetDefaultPaths() *DefaultPaths {
	dataDir := DataDir()
	configDir := PlatformConfigDir()
	logDir := PlatformLogDir()
	runtimeDir := PlatformRuntimeDir()

	return &DefaultPaths{
		DataDir:    dataDir,
		ConfigDir:  configDir,
		LogDir:     logDir,
		RuntimeDir: runtimeDir,

		ConfigFile:   filepath.Join(configDir, "config.toml"),
		DataFile:     filepath.Join(dataDir, "data.json"),
		DatabaseFile: filepath.Join(dataDir, "expanderd.db"),
		LogFile:      filepath.Join(logDir, "expanderd.log"),
		SocketPath:   getDefaultSocketPath(runtimeDir),
	}
}

func getDefaultSocketPath(runtimeDir string) string {
	if runtimeDir != "" {
		return filepath.Join(runtimeDir, "expanderd.sock")
	}
	return filepath.Join(os.TempDir(), "expanderd.sock")
}

// SupportedConfigFormats returns the list of supported config file formats.
func SupportedConfigFormats() []string {
	return []string{
		"toml",
		"json",
		"yaml",
		"yml",
	}
}

// FindConfigFile searches for a config file in standard locations.
// Returns the path to the first found config file, or empty string if none found.
func FindConfigFile() string {
	paths := GetDefaultPaths()

	// Search order:
	// 1. Current directory
	// 2. Config directory
	// 3. Data directory
	searchDirs := []string{
		".",
		paths.ConfigDir,
		paths.DataDir,
	}

	for _, dir := range searchDirs {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}

	return ""
}
