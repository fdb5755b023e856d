//go:build linux

package idle

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/jantman/claude-permission-daemon/internal/logging"
)

// swayidleBackend shells out to swayidle, which speaks the Wayland idle
// protocols and prints a marker line on each transition. This is the
// preferred Linux source because it is event driven.
type swayidleBackend struct {
	binary     string
	timeoutSec int
	logger     *logging.Logger
}

func newSwayidleBackend(binary string, timeoutSec int, logger *logging.Logger) *swayidleBackend {
	return &swayidleBackend{
		binary:     binary,
		timeoutSec: timeoutSec,
		logger:     logger,
	}
}

func (b *swayidleBackend) Name() string { return "swayidle" }

func (b *swayidleBackend) Run(ctx context.Context, emit func(idle bool)) error {
	cmd := exec.CommandContext(ctx, b.binary,
		"-w",
		"timeout", strconv.Itoa(b.timeoutSec), "echo IDLE",
		"resume", "echo ACTIVE",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open swayidle stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start swayidle: %w", err)
	}
	b.logger.Debug().Str("binary", b.binary).Int("timeout_sec", b.timeoutSec).Msg("swayidle started")

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		idle, ok := parseSwayidleLine(scanner.Text())
		if !ok {
			continue
		}
		emit(idle)
	}

	err = cmd.Wait()
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("swayidle exited: %w", err)
	}
	return errors.New("swayidle exited unexpectedly")
}

// parseSwayidleLine maps a swayidle marker line to an idle state.
func parseSwayidleLine(line string) (idle bool, ok bool) {
	switch strings.TrimSpace(line) {
	case "IDLE":
		return true, true
	case "ACTIVE":
		return false, true
	}
	return false, false
}
