//go:build linux

package idle

import (
	"context"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/jantman/claude-permission-daemon/internal/logging"
)

const (
	mutterIdleDest   = "org.gnome.Mutter.IdleMonitor"
	mutterIdlePath   = "/org/gnome/Mutter/IdleMonitor/Core"
	mutterIdleMethod = "org.gnome.Mutter.IdleMonitor.GetIdletime"
)

// dbusBackend polls the desktop's idle monitor over the session bus. It is
// the fallback when swayidle is not installed, and covers GNOME on both
// Wayland and X11.
type dbusBackend struct {
	threshold time.Duration
	logger    *logging.Logger
}

// newDBusBackend probes the session bus for a working idle monitor before
// committing to it.
func newDBusBackend(threshold time.Duration, logger *logging.Logger) (*dbusBackend, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer conn.Close()

	var idleMs uint64
	err = conn.Object(mutterIdleDest, mutterIdlePath).Call(mutterIdleMethod, 0).Store(&idleMs)
	if err != nil {
		return nil, fmt.Errorf("idle monitor not available on session bus: %w", err)
	}

	return &dbusBackend{threshold: threshold, logger: logger}, nil
}

func (b *dbusBackend) Name() string { return "dbus" }

func (b *dbusBackend) Run(ctx context.Context, emit func(idle bool)) error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer conn.Close()

	obj := conn.Object(mutterIdleDest, mutterIdlePath)
	b.logger.Debug().Dur("threshold", b.threshold).Msg("dbus idle polling started")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			var idleMs uint64
			if err := obj.CallWithContext(ctx, mutterIdleMethod, 0).Store(&idleMs); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("GetIdletime failed: %w", err)
			}
			emit(time.Duration(idleMs)*time.Millisecond >= b.threshold)
		}
	}
}
