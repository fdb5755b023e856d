// Package config loads, validates, and writes the daemon's TOML
// configuration, including the CLAUDE_PERM_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration.
//
// Config file location:
//   - Windows: %APPDATA%\claude-permission-daemon\config.toml
//   - Unix: ~/.config/claude-permission-daemon/config.toml
//
// TOML format:
//
//	[daemon]
//	socket_path = "/run/user/1000/claude-permissions.sock"
//	idle_timeout = 60
//	request_timeout = 300
//	debug = false
//	ignored_notification_types = ["permission_prompt"]
//
//	[slack]
//	bot_token = "xoxb-..."
//	app_token = "xapp-..."
//	channel = "C0123456789"
//
//	[swayidle]
//	binary = "swayidle"
//
//	[mac]
//	binary = "ioreg"
type Config struct {
	Daemon   DaemonConfig   `toml:"daemon"`
	Slack    SlackConfig    `toml:"slack"`
	Swayidle SwayidleConfig `toml:"swayidle"`
	Mac      MacConfig      `toml:"mac"`
}

// DaemonConfig contains core daemon settings.
type DaemonConfig struct {
	// SocketPath is the IPC endpoint. Empty means the platform default.
	SocketPath string `toml:"socket_path"`

	// IdleTimeout is the seconds of no input before the user counts as
	// idle. Minimum: 1, Default: 60
	IdleTimeout int `toml:"idle_timeout"`

	// RequestTimeout is the seconds a forwarded permission request may
	// wait for a chat answer. Minimum: 1, Default: 300
	RequestTimeout int `toml:"request_timeout"`

	// Debug enables debug-level logging.
	Debug bool `toml:"debug"`

	// IgnoredNotificationTypes lists notification types dropped without
	// being forwarded to chat. Default: ["permission_prompt"], which the
	// assistant emits alongside the permission request itself.
	IgnoredNotificationTypes []string `toml:"ignored_notification_types"`
}

// SlackConfig contains Slack credentials and the destination channel.
type SlackConfig struct {
	// BotToken is the xoxb- token used for Web API calls.
	BotToken string `toml:"bot_token"`

	// AppToken is the xapp- token used for the Socket Mode connection.
	AppToken string `toml:"app_token"`

	// Channel is the channel ID permission requests are posted to.
	Channel string `toml:"channel"`
}

// SwayidleConfig selects the swayidle binary on Linux.
type SwayidleConfig struct {
	Binary string `toml:"binary"`
}

// MacConfig selects the ioreg binary on macOS.
type MacConfig struct {
	Binary string `toml:"binary"`
}

// Environment override variable names.
const (
	EnvBotToken       = "CLAUDE_PERM_SLACK_BOT_TOKEN"
	EnvAppToken       = "CLAUDE_PERM_SLACK_APP_TOKEN"
	EnvChannel        = "CLAUDE_PERM_SLACK_CHANNEL"
	EnvIdleTimeout    = "CLAUDE_PERM_IDLE_TIMEOUT"
	EnvRequestTimeout = "CLAUDE_PERM_REQUEST_TIMEOUT"
	EnvSocketPath     = "CLAUDE_PERM_SOCKET_PATH"
	EnvDebug          = "CLAUDE_PERM_DEBUG"
	EnvSwayidleBinary = "CLAUDE_PERM_SWAYIDLE_BINARY"
	EnvIoregBinary    = "CLAUDE_PERM_IOREG_BINARY"
)

// Validation errors.
var (
	ErrMissingBotToken       = errors.New("slack bot_token is required")
	ErrInvalidBotToken       = errors.New("slack bot_token must start with xoxb-")
	ErrMissingAppToken       = errors.New("slack app_token is required")
	ErrInvalidAppToken       = errors.New("slack app_token must start with xapp-")
	ErrMissingChannel        = errors.New("slack channel is required")
	ErrInvalidIdleTimeout    = errors.New("idle_timeout must be at least 1 second")
	ErrInvalidRequestTimeout = errors.New("request_timeout must be at least 1 second")
)

// Default returns a Config populated with default values. Slack credentials
// have no defaults and must come from the file or the environment.
func Default() *Config {
	return &Config{
		Daemon: DaemonConfig{
			SocketPath:               DefaultSocketPath(),
			IdleTimeout:              60,
			RequestTimeout:           300,
			Debug:                    false,
			IgnoredNotificationTypes: []string{"permission_prompt"},
		},
		Slack: SlackConfig{},
		Swayidle: SwayidleConfig{
			Binary: "swayidle",
		},
		Mac: MacConfig{
			Binary: "ioreg",
		},
	}
}

// Load reads configuration from the TOML file at path, then applies
// environment overrides. If path is empty the default location is used. A
// missing file is not an error; the defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			// No resolvable home directory. Environment overrides can
			// still produce a usable config.
			if envErr := cfg.applyEnv(); envErr != nil {
				return nil, envErr
			}
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv applies CLAUDE_PERM_* overrides on top of whatever the file set.
func (cfg *Config) applyEnv() error {
	if v := os.Getenv(EnvBotToken); v != "" {
		cfg.Slack.BotToken = v
	}
	if v := os.Getenv(EnvAppToken); v != "" {
		cfg.Slack.AppToken = v
	}
	if v := os.Getenv(EnvChannel); v != "" {
		cfg.Slack.Channel = v
	}
	if v := os.Getenv(EnvSocketPath); v != "" {
		cfg.Daemon.SocketPath = v
	}
	if v := os.Getenv(EnvSwayidleBinary); v != "" {
		cfg.Swayidle.Binary = v
	}
	if v := os.Getenv(EnvIoregBinary); v != "" {
		cfg.Mac.Binary = v
	}

	if v := os.Getenv(EnvIdleTimeout); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvIdleTimeout, v, err)
		}
		cfg.Daemon.IdleTimeout = n
	}
	if v := os.Getenv(EnvRequestTimeout); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvRequestTimeout, v, err)
		}
		cfg.Daemon.RequestTimeout = n
	}

	if v, ok := os.LookupEnv(EnvDebug); ok {
		cfg.Daemon.Debug = isTruthy(v)
	}

	return nil
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// Validate checks the configuration and reports every problem found,
// joined into a single error. Returns nil when the config is usable.
func (cfg *Config) Validate() error {
	var errs []error

	bot := strings.TrimSpace(cfg.Slack.BotToken)
	switch {
	case bot == "":
		errs = append(errs, ErrMissingBotToken)
	case !strings.HasPrefix(bot, "xoxb-"):
		errs = append(errs, ErrInvalidBotToken)
	}

	app := strings.TrimSpace(cfg.Slack.AppToken)
	switch {
	case app == "":
		errs = append(errs, ErrMissingAppToken)
	case !strings.HasPrefix(app, "xapp-"):
		errs = append(errs, ErrInvalidAppToken)
	}

	if strings.TrimSpace(cfg.Slack.Channel) == "" {
		errs = append(errs, ErrMissingChannel)
	}

	if cfg.Daemon.IdleTimeout < 1 {
		errs = append(errs, ErrInvalidIdleTimeout)
	}
	if cfg.Daemon.RequestTimeout < 1 {
		errs = append(errs, ErrInvalidRequestTimeout)
	}

	return errors.Join(errs...)
}

// IgnoredTypes returns the ignored notification types as a set.
func (cfg *Config) IgnoredTypes() map[string]struct{} {
	set := make(map[string]struct{}, len(cfg.Daemon.IgnoredNotificationTypes))
	for _, t := range cfg.Daemon.IgnoredNotificationTypes {
		set[t] = struct{}{}
	}
	return set
}

// Save writes the configuration to path as TOML. If path is empty the
// default location is used. Parent directories are created as needed and
// the write is atomic via a temp file and rename.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write config: %w", err)
	}

	// Tokens live in this file, keep it owner-only
	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// Template is the commented starter configuration written by
// "claude-permd config init".
const Template = `# claude-permission-daemon configuration
#
# Values here can be overridden with CLAUDE_PERM_* environment variables,
# e.g. CLAUDE_PERM_SLACK_BOT_TOKEN or CLAUDE_PERM_IDLE_TIMEOUT.

[daemon]
# IPC endpoint the hook connects to. Leave unset for the platform default
# ($XDG_RUNTIME_DIR/claude-permissions.sock on Linux).
#socket_path = ""

# Seconds of no local input before you count as away.
idle_timeout = 60

# Seconds a forwarded request waits for a chat answer before falling back
# to the local prompt.
request_timeout = 300

# Debug-level logging.
debug = false

# Notification types never forwarded to chat.
ignored_notification_types = ["permission_prompt"]

[slack]
# Bot token (xoxb-...) with chat:write scope.
bot_token = ""

# App-level token (xapp-...) with connections:write scope.
app_token = ""

# Channel ID to post permission requests to.
channel = ""

[swayidle]
# Idle detection binary on Linux (Wayland).
binary = "swayidle"

[mac]
# Idle detection binary on macOS.
binary = "ioreg"
`

// WriteTemplate writes the commented starter config to path. It refuses to
// overwrite an existing file unless force is set.
func WriteTemplate(path string, force bool) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(Template), 0600); err != nil {
		return fmt.Errorf("failed to write config template: %w", err)
	}

	return nil
}

// RedactToken masks a credential for display, keeping the token type prefix
// and the last few characters visible.
func RedactToken(token string) string {
	if token == "" {
		return "(not set)"
	}
	if i := strings.Index(token, "-"); i > 0 && len(token) > i+9 {
		return token[:i+1] + "..." + token[len(token)-4:]
	}
	return "..."
}
