// Package chat defines the contract between the daemon coordinator and a
// chat service. An adapter posts permission cards, streams button presses
// back, and rewrites cards once a request is resolved.
package chat

import (
	"context"
	"time"
)

// Outcome is how a forwarded permission request ended.
type Outcome string

const (
	OutcomeApproved         Outcome = "approved"
	OutcomeDenied           Outcome = "denied"
	OutcomeAnsweredLocally  Outcome = "answered_locally"
	OutcomeAnsweredRemotely Outcome = "answered_remotely"
)

// ButtonChoice is the button a user pressed on a request card.
type ButtonChoice string

const (
	ButtonApprove ButtonChoice = "approve"
	ButtonDeny    ButtonChoice = "deny"
)

// Handle identifies a posted message so it can be updated later.
type Handle struct {
	Channel   string
	Timestamp string
}

// RequestCard is the displayable form of a pending permission request.
type RequestCard struct {
	ID          string
	ToolName    string
	ToolInput   map[string]any
	Description string
	CreatedAt   time.Time
}

// NotificationCard is the displayable form of an assistant notification.
type NotificationCard struct {
	Type       string
	Message    string
	CWD        string
	ReceivedAt time.Time
}

// Adapter connects the daemon to a chat service.
//
// Start and Stop bracket the connection lifecycle. Post and update calls
// are safe for concurrent use once Start has returned.
type Adapter interface {
	// Start validates credentials and opens the event connection.
	Start(ctx context.Context) error

	// Stop closes the event connection and waits for in-flight handlers.
	Stop(ctx context.Context) error

	// PostRequest posts a permission request card with approve and deny
	// buttons and returns a handle for later updates.
	PostRequest(ctx context.Context, card RequestCard) (Handle, error)

	// PostNotification posts a notification card. Notifications are never
	// updated; the handle is returned for logging.
	PostNotification(ctx context.Context, note NotificationCard) (Handle, error)

	// UpdateResolved replaces a request card with its resolved form,
	// removing the buttons.
	UpdateResolved(ctx context.Context, h Handle, card RequestCard, outcome Outcome) error

	// OnButton registers the callback for button presses. Register before
	// Start.
	OnButton(fn func(requestID string, choice ButtonChoice))
}
