//go:build darwin

package idle

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"github.com/jantman/claude-permission-daemon/internal/config"
	"github.com/jantman/claude-permission-daemon/internal/logging"
)

// NewBackend returns the macOS idle source, which polls the IOKit HID
// subsystem through ioreg.
func NewBackend(cfg *config.Config, logger *logging.Logger) (Backend, error) {
	path, err := exec.LookPath(cfg.Mac.Binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %q not in PATH", ErrNoBackend, cfg.Mac.Binary)
	}
	return &ioregBackend{
		binary:    path,
		threshold: time.Duration(cfg.Daemon.IdleTimeout) * time.Second,
		logger:    logger,
	}, nil
}

// hidIdlePattern matches the HIDIdleTime line in ioreg output. The value is
// nanoseconds since the last HID event.
var hidIdlePattern = regexp.MustCompile(`"HIDIdleTime"\s*=\s*(\d+)`)

type ioregBackend struct {
	binary    string
	threshold time.Duration
	logger    *logging.Logger
}

func (b *ioregBackend) Name() string { return "ioreg" }

func (b *ioregBackend) Run(ctx context.Context, emit func(bool)) error {
	b.logger.Debug().Str("binary", b.binary).Dur("threshold", b.threshold).Msg("polling HIDIdleTime")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		out, err := exec.CommandContext(ctx, b.binary, "-c", "IOHIDSystem").Output()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("ioreg failed: %w", err)
		}

		nanos, ok := parseHIDIdleNanos(out)
		if !ok {
			// Can't tell, treat the user as present.
			b.logger.Warn().Msg("HIDIdleTime not found in ioreg output")
			emit(false)
			continue
		}
		emit(time.Duration(nanos) >= b.threshold)
	}
}

func parseHIDIdleNanos(out []byte) (uint64, bool) {
	m := hidIdlePattern.FindSubmatch(out)
	if m == nil {
		return 0, false
	}
	nanos, err := strconv.ParseUint(string(m[1]), 10, 64)
	if err != nil {
		return 0, false
	}
	return nanos, true
}
