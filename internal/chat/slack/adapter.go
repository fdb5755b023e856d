// Package slack implements the chat adapter against the Slack Web API and
// Socket Mode. Cards are posted with chat.postMessage, rewritten with
// chat.update, and button presses arrive over the Socket Mode WebSocket so
// no inbound listener is needed.
package slack

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"

	"github.com/jantman/claude-permission-daemon/internal/chat"
	"github.com/jantman/claude-permission-daemon/internal/config"
	"github.com/jantman/claude-permission-daemon/internal/logging"
)

// Adapter is the Slack implementation of chat.Adapter.
type Adapter struct {
	api     *slackapi.Client
	sm      *socketmode.Client
	channel string
	logger  *logging.Logger

	mu       sync.Mutex
	onButton func(requestID string, choice chat.ButtonChoice)

	cancel context.CancelFunc
	done   chan struct{}
}

var _ chat.Adapter = (*Adapter)(nil)

// retryLogger adapts retryablehttp's leveled logging onto the daemon
// logger. Retry chatter goes to debug; only real failures surface.
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

// New builds an Adapter from the Slack section of the config. Web API
// calls retry transient failures; Socket Mode reconnects on its own.
func New(cfg config.SlackConfig, logger *logging.Logger) *Adapter {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = &retryLogger{logger: logger}

	api := slackapi.New(
		cfg.BotToken,
		slackapi.OptionAppLevelToken(cfg.AppToken),
		slackapi.OptionHTTPClient(retryClient.StandardClient()),
	)

	return &Adapter{
		api:     api,
		sm:      socketmode.New(api),
		channel: cfg.Channel,
		logger:  logger,
	}
}

// Start verifies the bot token and opens the Socket Mode connection, which
// then lives until Stop.
func (a *Adapter) Start(ctx context.Context) error {
	auth, err := a.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack authentication failed: %w", err)
	}
	a.logger.Info().Str("team", auth.Team).Str("bot_user", auth.User).Msg("Slack authenticated")

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})

	go func() {
		if err := a.sm.RunContext(runCtx); err != nil && runCtx.Err() == nil {
			a.logger.Error().Err(err).Msg("Socket Mode connection ended")
		}
	}()
	go a.eventLoop(runCtx)

	return nil
}

// Stop tears down the Socket Mode connection. ctx bounds how long to wait
// for the event loop to drain.
func (a *Adapter) Stop(ctx context.Context) error {
	if a.cancel == nil {
		return nil
	}
	a.cancel()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("slack event loop did not stop: %w", ctx.Err())
	}
}

// OnButton registers the button callback. Presses arriving before
// registration are dropped with a warning.
func (a *Adapter) OnButton(fn func(requestID string, choice chat.ButtonChoice)) {
	a.mu.Lock()
	a.onButton = fn
	a.mu.Unlock()
}

// PostRequest posts the card to the configured channel and returns the
// message handle for later updates.
func (a *Adapter) PostRequest(ctx context.Context, card chat.RequestCard) (chat.Handle, error) {
	channel, ts, err := a.api.PostMessageContext(ctx, a.channel,
		slackapi.MsgOptionText("Permission request: "+card.ToolName, false),
		slackapi.MsgOptionBlocks(requestBlocks(card)...),
	)
	if err != nil {
		return chat.Handle{}, fmt.Errorf("failed to post permission request: %w", err)
	}

	a.logger.Info().
		Str("request_id", card.ID).
		Str("channel", channel).
		Str("ts", ts).
		Msg("posted permission request")
	return chat.Handle{Channel: channel, Timestamp: ts}, nil
}

// PostNotification posts an info-only card without buttons.
func (a *Adapter) PostNotification(ctx context.Context, note chat.NotificationCard) (chat.Handle, error) {
	blocks, fallback := notificationBlocks(note)
	channel, ts, err := a.api.PostMessageContext(ctx, a.channel,
		slackapi.MsgOptionText(fallback, false),
		slackapi.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		return chat.Handle{}, fmt.Errorf("failed to post notification: %w", err)
	}

	a.logger.Info().
		Str("type", note.Type).
		Str("channel", channel).
		Str("ts", ts).
		Msg("posted notification")
	return chat.Handle{Channel: channel, Timestamp: ts}, nil
}

// UpdateResolved rewrites a posted card into its resolved, button-free
// form.
func (a *Adapter) UpdateResolved(ctx context.Context, h chat.Handle, card chat.RequestCard, outcome chat.Outcome) error {
	blocks, fallback := resolvedBlocks(card, outcome)
	_, _, _, err := a.api.UpdateMessageContext(ctx, h.Channel, h.Timestamp,
		slackapi.MsgOptionText(fallback, false),
		slackapi.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	return nil
}

func (a *Adapter) eventLoop(ctx context.Context) {
	defer close(a.done)

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-a.sm.Events:
			if !ok {
				return
			}
			switch evt.Type {
			case socketmode.EventTypeConnecting:
				a.logger.Debug().Msg("Socket Mode connecting")
			case socketmode.EventTypeConnected:
				a.logger.Info().Msg("Socket Mode connected")
			case socketmode.EventTypeConnectionError:
				a.logger.Warn().Msg("Socket Mode connection error, will retry")
			case socketmode.EventTypeInteractive:
				a.handleInteraction(evt)
			default:
				a.logger.Debug().Str("type", string(evt.Type)).Msg("ignoring Socket Mode event")
			}
		}
	}
}

// handleInteraction acks the envelope, then routes approve and deny button
// presses to the registered callback with the request ID from the button
// value.
func (a *Adapter) handleInteraction(evt socketmode.Event) {
	callback, ok := evt.Data.(slackapi.InteractionCallback)
	if !ok {
		a.logger.Warn().Msg("interactive event with unexpected payload")
		return
	}
	if evt.Request != nil {
		a.sm.Ack(*evt.Request)
	}

	if callback.Type != slackapi.InteractionTypeBlockActions {
		return
	}

	a.mu.Lock()
	fn := a.onButton
	a.mu.Unlock()

	for _, action := range callback.ActionCallback.BlockActions {
		var choice chat.ButtonChoice
		switch action.ActionID {
		case actionApprove:
			choice = chat.ButtonApprove
		case actionDeny:
			choice = chat.ButtonDeny
		default:
			continue
		}

		if fn == nil {
			a.logger.Warn().Str("request_id", action.Value).Msg("button pressed before callback registered")
			continue
		}
		a.logger.Info().
			Str("request_id", action.Value).
			Str("action", string(choice)).
			Msg("button pressed")
		fn(action.Value, choice)
	}
}
