package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const socketFileName = "claude-permissions.sock"

// WindowsPipeName is the named pipe endpoint used on Windows in place of a
// Unix socket.
const WindowsPipeName = `\\.\pipe\claude-permissions`

// DefaultConfigPath returns the default path for config.toml.
//   - Windows: %APPDATA%\claude-permission-daemon\config.toml
//   - Unix: ~/.config/claude-permission-daemon/config.toml
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DefaultConfigDir returns the directory holding config.toml and the
// single-instance lock file.
func DefaultConfigDir() (string, error) {
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			userProfile := os.Getenv("USERPROFILE")
			if userProfile == "" {
				return "", errors.New("neither APPDATA nor USERPROFILE environment variable set")
			}
			appData = filepath.Join(userProfile, "AppData", "Roaming")
		}
		return filepath.Join(appData, "claude-permission-daemon"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "claude-permission-daemon"), nil
}

// DefaultLockPath returns the single-instance lock file path.
func DefaultLockPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "daemon.lock"), nil
}

// DefaultSocketPath returns the platform default endpoint the daemon listens
// on and the hook dials. On Windows this is a named pipe, not a filesystem
// path.
//
// POSIX resolution order: $XDG_RUNTIME_DIR if set, then /run/user/<uid> on
// Linux when that directory exists, then /tmp.
func DefaultSocketPath() string {
	if runtime.GOOS == "windows" {
		return WindowsPipeName
	}

	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, socketFileName)
	}

	if runtime.GOOS == "linux" {
		runDir := fmt.Sprintf("/run/user/%d", os.Getuid())
		if info, err := os.Stat(runDir); err == nil && info.IsDir() {
			return filepath.Join(runDir, socketFileName)
		}
	}

	return filepath.Join("/tmp", socketFileName)
}
