// Package daemon wires the idle monitor, IPC server, and chat adapter
// together and owns the per-request state machine. Every resolution path
// funnels through a single critical section keyed on removal from the
// pending table, so a request resolves exactly once no matter which event
// arrives first.
package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/jantman/claude-permission-daemon/internal/chat"
	"github.com/jantman/claude-permission-daemon/internal/config"
	"github.com/jantman/claude-permission-daemon/internal/idle"
	"github.com/jantman/claude-permission-daemon/internal/ipc"
	"github.com/jantman/claude-permission-daemon/internal/logging"
	"github.com/jantman/claude-permission-daemon/internal/state"
	"github.com/jantman/claude-permission-daemon/internal/version"
)

const (
	// chatCallTimeout bounds a single chat post or update call.
	chatCallTimeout = 10 * time.Second

	// shutdownGrace bounds teardown once a stop signal arrives.
	shutdownGrace = 5 * time.Second
)

// Daemon is the coordinator. It implements ipc.Handler for inbound hook
// traffic and consumes idle transitions and chat button presses.
type Daemon struct {
	cfg     *config.Config
	logger  *logging.Logger
	store   *state.Store
	adapter chat.Adapter
	monitor *idle.Monitor
	server  *ipc.Server

	requestTimeout time.Duration

	// Shutdown coordination
	runCtx  context.Context
	stopRun context.CancelFunc
	wg      sync.WaitGroup
}

var _ ipc.Handler = (*Daemon)(nil)

// New creates a daemon from its parts. The adapter must not be started
// yet; New registers the button callback on it.
func New(cfg *config.Config, adapter chat.Adapter, backend idle.Backend, logger *logging.Logger) *Daemon {
	endpoint := cfg.Daemon.SocketPath
	if endpoint == "" {
		endpoint = config.DefaultSocketPath()
	}

	runCtx, stopRun := context.WithCancel(context.Background())
	d := &Daemon{
		cfg:            cfg,
		logger:         logger,
		store:          state.NewStore(),
		adapter:        adapter,
		requestTimeout: time.Duration(cfg.Daemon.RequestTimeout) * time.Second,
		runCtx:         runCtx,
		stopRun:        stopRun,
	}
	d.monitor = idle.NewMonitor(backend, d.onIdleChange, logger.Sub("idle"))
	d.server = ipc.NewServer(endpoint, d, cfg.IgnoredTypes(), logger.Sub("ipc"))
	adapter.OnButton(d.onButton)
	return d
}

// Run starts every component and blocks until ctx is cancelled, then tears
// down in reverse order. Startup failures are fatal and returned.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info().
		Str("version", version.Version).
		Str("endpoint", d.server.Endpoint()).
		Int("idle_timeout", d.cfg.Daemon.IdleTimeout).
		Int("request_timeout", d.cfg.Daemon.RequestTimeout).
		Msg("daemon starting")

	lockPath, err := config.DefaultLockPath()
	if err != nil {
		return fmt.Errorf("failed to determine lock path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0700); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	fileLock := flock.New(lockPath)
	locked, err := fileLock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire daemon lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another daemon is already running (lock held on %s)", lockPath)
	}
	defer func() { _ = fileLock.Unlock() }()

	if err := d.adapter.Start(ctx); err != nil {
		return fmt.Errorf("failed to start chat adapter: %w", err)
	}

	if err := d.server.Start(); err != nil {
		d.stopAdapter()
		return fmt.Errorf("failed to start IPC server: %w", err)
	}

	d.monitor.Start(ctx)

	d.logger.Info().Msg("daemon started")

	<-ctx.Done()
	d.logger.Info().Msg("shutdown signal received")
	d.shutdown()
	d.logger.Info().Msg("daemon stopped")
	return nil
}

// shutdown stops accepting hook connections, resolves whatever is still
// pending as answered locally, then brings the remaining components down.
func (d *Daemon) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	// Abort in-flight chat posts so connection handlers exit promptly.
	d.stopRun()

	// Stop accepting before draining so no new entry can slip in behind
	// the drain.
	d.server.Stop()

	if pending := d.store.Drain(); len(pending) > 0 {
		d.logger.Info().Int("count", len(pending)).Msg("resolving pending requests before exit")
		for _, p := range pending {
			d.finish(ctx, p, chat.OutcomeAnsweredLocally, ipc.NewPassthroughResponse("daemon shutting down"))
		}
	}

	d.monitor.Stop()
	d.stopAdapter()
	d.wg.Wait()
}

func (d *Daemon) stopAdapter() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := d.adapter.Stop(ctx); err != nil {
		d.logger.Warn().Err(err).Msg("chat adapter did not stop cleanly")
	}
}

// HandlePermission runs on the IPC server's connection goroutine and owns
// conn from here on.
func (d *Daemon) HandlePermission(frame *ipc.Frame, conn net.Conn) {
	id := uuid.NewString()
	snap := d.store.SnapshotIdle()

	d.logger.Info().
		Str("request_id", id).
		Str("tool", frame.ToolName).
		Bool("idle", snap.IsIdle).
		Msg("permission request received")

	if !snap.IsIdle {
		d.respondAndClose(conn, id, ipc.NewPassthroughResponse("user active locally"))
		return
	}

	card := chat.RequestCard{
		ID:        id,
		ToolName:  frame.ToolName,
		ToolInput: frame.ToolInput,
		CreatedAt: time.Now(),
	}
	if desc, ok := frame.ToolInput["description"].(string); ok {
		card.Description = desc
	}

	postCtx, cancelPost := context.WithTimeout(d.runCtx, chatCallTimeout)
	handle, err := d.adapter.PostRequest(postCtx, card)
	cancelPost()
	if err != nil {
		d.logger.Warn().Err(err).Str("request_id", id).Msg("chat post failed, passing through")
		d.respondAndClose(conn, id, ipc.NewPassthroughResponse("failed to post to chat"))
		return
	}

	p := &state.Pending{
		ID:            id,
		ToolName:      frame.ToolName,
		ToolInput:     frame.ToolInput,
		CreatedAt:     card.CreatedAt,
		Conn:          conn,
		ChatChannel:   handle.Channel,
		ChatTimestamp: handle.Timestamp,
	}
	if err := d.store.Insert(p); err != nil {
		d.logger.Error().Err(err).Str("request_id", id).Msg("failed to track request")
		d.respondAndClose(conn, id, ipc.NewPassthroughResponse("internal error"))
		return
	}

	timer := time.AfterFunc(d.requestTimeout, func() { d.onTimeout(id) })
	watchCtx, cancelWatch := context.WithCancel(context.Background())
	d.wg.Add(1)
	go d.watchPeer(watchCtx, id, conn)

	if !d.store.Arm(id, timer, cancelWatch) {
		// Resolution already won the race; the timer and watcher are
		// still ours to dispose of.
		timer.Stop()
		cancelWatch()
		return
	}

	d.logger.Info().Str("request_id", id).Msg("awaiting chat answer")
}

// HandleNotification forwards a notification to chat when the user is
// away. Notifications never enter the pending table.
func (d *Daemon) HandleNotification(note ipc.Notification) {
	snap := d.store.SnapshotIdle()
	if !snap.IsIdle {
		d.logger.Info().
			Str("notification_type", note.Type).
			Dur("active_for", snap.Duration).
			Msg("user active, not forwarding notification")
		return
	}

	card := chat.NotificationCard{
		Type:       note.Type,
		Message:    note.Message,
		CWD:        note.CWD,
		ReceivedAt: note.ReceivedAt,
	}

	ctx, cancel := context.WithTimeout(d.runCtx, chatCallTimeout)
	defer cancel()
	if _, err := d.adapter.PostNotification(ctx, card); err != nil {
		d.logger.Error().Err(err).Str("notification_type", note.Type).Msg("failed to post notification")
		return
	}

	d.logger.Info().
		Str("notification_type", note.Type).
		Dur("idle_for", snap.Duration).
		Msg("notification forwarded to chat")
}

// onIdleChange runs on the idle monitor's goroutine. A return to the
// keyboard resolves everything pending; requests arriving during the drain
// already observe the active state and pass through directly.
func (d *Daemon) onIdleChange(isIdle bool) {
	if !d.store.SetIdle(isIdle) {
		return
	}

	if isIdle {
		d.logger.Info().Msg("user went idle, forwarding new requests to chat")
		return
	}

	d.logger.Info().Msg("user returned")
	for _, p := range d.store.Drain() {
		ctx, cancel := context.WithTimeout(context.Background(), chatCallTimeout)
		d.finish(ctx, p, chat.OutcomeAnsweredLocally, ipc.NewPassthroughResponse("user returned"))
		cancel()
	}
}

// onButton runs on the chat adapter's event goroutine.
func (d *Daemon) onButton(id string, choice chat.ButtonChoice) {
	switch choice {
	case chat.ButtonApprove:
		d.resolve(id, chat.OutcomeApproved, ipc.NewApproveResponse("Approved via chat"))
	case chat.ButtonDeny:
		d.resolve(id, chat.OutcomeDenied, ipc.NewDenyResponse("Denied via chat"))
	}
}

func (d *Daemon) onTimeout(id string) {
	d.resolve(id, chat.OutcomeAnsweredLocally, ipc.NewPassthroughResponse("request timed out"))
}

// watchPeer blocks reading the hook connection. The hook sends exactly one
// frame and then waits, so any read result while the request is pending
// means the peer is gone.
func (d *Daemon) watchPeer(ctx context.Context, id string, conn net.Conn) {
	defer d.wg.Done()

	buf := make([]byte, 1)
	_, _ = conn.Read(buf)
	if ctx.Err() != nil {
		// Normal resolution closed the connection under us.
		return
	}
	d.resolve(id, chat.OutcomeAnsweredRemotely, nil)
}

// resolve is the single path every event source funnels through. Remove is
// the winner gate: whoever gets the entry performs the side effects; a nil
// result is a losing race and is dropped.
func (d *Daemon) resolve(id string, outcome chat.Outcome, resp *ipc.Response) {
	p := d.store.Remove(id)
	if p == nil {
		d.logger.Debug().Str("request_id", id).Msg("request already resolved")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), chatCallTimeout)
	defer cancel()
	d.finish(ctx, p, outcome, resp)
}

// finish performs the resolution side effects for an entry already removed
// from the table: best-effort chat update, response write (nil resp means
// the peer is gone and gets nothing), then timer and watcher disposal.
func (d *Daemon) finish(ctx context.Context, p *state.Pending, outcome chat.Outcome, resp *ipc.Response) {
	if p.ChatChannel != "" {
		card := chat.RequestCard{
			ID:        p.ID,
			ToolName:  p.ToolName,
			ToolInput: p.ToolInput,
			CreatedAt: p.CreatedAt,
		}
		h := chat.Handle{Channel: p.ChatChannel, Timestamp: p.ChatTimestamp}
		if err := d.adapter.UpdateResolved(ctx, h, card, outcome); err != nil {
			// A stale card is acceptable; the hook response still goes out.
			d.logger.Warn().Err(err).Str("request_id", p.ID).Msg("failed to update chat card")
		}
	}

	if resp != nil {
		if err := ipc.WriteResponse(p.Conn, resp); err != nil {
			d.logger.Warn().Err(err).Str("request_id", p.ID).Msg("failed to write hook response")
		}
	}
	p.Conn.Close()

	if p.Timer != nil {
		p.Timer.Stop()
	}
	if p.CancelWatch != nil {
		p.CancelWatch()
	}

	event := d.logger.Info().
		Str("request_id", p.ID).
		Str("outcome", string(outcome))
	if resp != nil {
		event = event.Str("action", string(resp.Action)).Str("reason", resp.Reason)
	}
	event.Msg("request resolved")
}

// respondAndClose writes a response on a connection that never entered the
// pending table.
func (d *Daemon) respondAndClose(conn net.Conn, id string, resp *ipc.Response) {
	if err := ipc.WriteResponse(conn, resp); err != nil {
		d.logger.Warn().Err(err).Str("request_id", id).Msg("failed to write hook response")
	}
	conn.Close()

	d.logger.Info().
		Str("request_id", id).
		Str("action", string(resp.Action)).
		Str("reason", resp.Reason).
		Msg("request resolved")
}
