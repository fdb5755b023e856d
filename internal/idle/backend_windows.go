//go:build windows

package idle

import (
	"context"
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/jantman/claude-permission-daemon/internal/config"
	"github.com/jantman/claude-permission-daemon/internal/logging"
)

var (
	moduser32            = windows.NewLazySystemDLL("user32.dll")
	modkernel32          = windows.NewLazySystemDLL("kernel32.dll")
	procGetLastInputInfo = moduser32.NewProc("GetLastInputInfo")
	procGetTickCount     = modkernel32.NewProc("GetTickCount")
)

// lastInputInfo mirrors the Win32 LASTINPUTINFO struct.
type lastInputInfo struct {
	cbSize uint32
	dwTime uint32
}

// NewBackend returns the Windows idle source, which polls the session's last
// input time through GetLastInputInfo.
func NewBackend(cfg *config.Config, logger *logging.Logger) (Backend, error) {
	return &lastInputBackend{
		threshold: time.Duration(cfg.Daemon.IdleTimeout) * time.Second,
		logger:    logger,
	}, nil
}

type lastInputBackend struct {
	threshold time.Duration
	logger    *logging.Logger
}

func (b *lastInputBackend) Name() string { return "lastinput" }

func (b *lastInputBackend) Run(ctx context.Context, emit func(bool)) error {
	b.logger.Debug().Dur("threshold", b.threshold).Msg("polling GetLastInputInfo")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		idle, err := sessionIdleTime()
		if err != nil {
			return err
		}
		emit(idle >= b.threshold)
	}
}

func sessionIdleTime() (time.Duration, error) {
	var info lastInputInfo
	info.cbSize = uint32(unsafe.Sizeof(info))

	r1, _, err := procGetLastInputInfo.Call(uintptr(unsafe.Pointer(&info)))
	if r1 == 0 {
		return 0, fmt.Errorf("GetLastInputInfo failed: %w", err)
	}

	ticks, _, _ := procGetTickCount.Call()

	// GetTickCount wraps every 49.7 days, which can make the delta go
	// negative right after a wrap. Clamp to zero rather than report a
	// bogus huge idle time.
	delta := int64(uint32(ticks)) - int64(info.dwTime)
	if delta < 0 {
		delta = 0
	}
	return time.Duration(delta) * time.Millisecond, nil
}
