//go:build linux

package idle

import (
	"fmt"
	"os/exec"
	"time"

	"github.com/jantman/claude-permission-daemon/internal/config"
	"github.com/jantman/claude-permission-daemon/internal/logging"
)

// NewBackend selects the Linux idle source: swayidle when the configured
// binary is on PATH, otherwise the desktop's D-Bus idle monitor.
func NewBackend(cfg *config.Config, logger *logging.Logger) (Backend, error) {
	if path, err := exec.LookPath(cfg.Swayidle.Binary); err == nil {
		return newSwayidleBackend(path, cfg.Daemon.IdleTimeout, logger), nil
	}
	logger.Debug().Str("binary", cfg.Swayidle.Binary).Msg("swayidle not found, trying D-Bus idle monitor")

	threshold := time.Duration(cfg.Daemon.IdleTimeout) * time.Second
	backend, err := newDBusBackend(threshold, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %q not in PATH and D-Bus probe failed: %v",
			ErrNoBackend, cfg.Swayidle.Binary, err)
	}
	return backend, nil
}
