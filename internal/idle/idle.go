// Package idle tracks whether the user is present at the machine. A
// platform backend watches input activity; the Monitor normalizes its
// reports, treats the user as active until told otherwise, and restarts a
// crashed backend once before settling into permanently active.
package idle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jantman/claude-permission-daemon/internal/logging"
)

// ErrNoBackend means the platform has no usable idle detection source.
var ErrNoBackend = errors.New("no usable idle detection backend")

// Backend watches local input activity and reports idle state.
//
// Run blocks until ctx is cancelled or the backend fails, calling emit with
// the current idle state as it observes it. Backends may emit repeated
// identical states; the Monitor deduplicates.
type Backend interface {
	Name() string
	Run(ctx context.Context, emit func(idle bool)) error
}

// Monitor runs a Backend and fans deduplicated transitions out to the
// daemon.
type Monitor struct {
	backend  Backend
	onChange func(idle bool)
	logger   *logging.Logger

	// restartDelay is the pause before relaunching a crashed backend.
	// Tests shorten it.
	restartDelay time.Duration

	mu       sync.Mutex
	lastIdle bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor wraps backend. onChange fires on every real transition, from
// the monitor's goroutine; it must not block for long.
func NewMonitor(backend Backend, onChange func(idle bool), logger *logging.Logger) *Monitor {
	return &Monitor{
		backend:      backend,
		onChange:     onChange,
		logger:       logger,
		restartDelay: time.Second,
	}
}

// Start launches the backend watch loop. The user counts as active until
// the backend reports otherwise.
func (m *Monitor) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.run(runCtx)
}

// Stop halts the backend and waits for the watch loop to exit.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.done != nil {
		<-m.done
	}
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	restarted := false
	for {
		err := m.backend.Run(ctx, m.handleReport)
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			m.logger.Error().Err(err).Str("backend", m.backend.Name()).Msg("idle backend failed")
		} else {
			m.logger.Warn().Str("backend", m.backend.Name()).Msg("idle backend exited")
		}

		// Detection loss counts as activity.
		m.handleReport(false)

		if restarted {
			m.logger.Error().Str("backend", m.backend.Name()).
				Msg("idle backend failed twice, idle detection disabled for this run")
			return
		}
		restarted = true

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.restartDelay):
		}
		m.logger.Info().Str("backend", m.backend.Name()).Msg("restarting idle backend")
	}
}

// handleReport drops repeats and forwards real transitions.
func (m *Monitor) handleReport(idle bool) {
	m.mu.Lock()
	if m.lastIdle == idle {
		m.mu.Unlock()
		return
	}
	m.lastIdle = idle
	m.mu.Unlock()

	m.onChange(idle)
}
