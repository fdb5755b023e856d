// Package ipc implements the daemon's local permission protocol: each hook
// connection carries exactly one newline-terminated JSON frame inbound, and
// permission requests get at most one response frame back. The transport is
// a Unix domain socket on POSIX hosts and a named pipe on Windows.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"
)

// NotificationEventName is the hook_event_name the assistant sets on
// notification payloads.
const NotificationEventName = "Notification"

// writeTimeout bounds the response write back to a hook.
const writeTimeout = 5 * time.Second

// ErrEndpointBusy means a live daemon already owns the endpoint.
var ErrEndpointBusy = errors.New("endpoint already in use by a running daemon")

// Frame is the superset of fields a hook may send. Unknown fields are
// ignored so newer assistants can add payload fields without breaking the
// daemon.
type Frame struct {
	ToolName         string         `json:"tool_name,omitempty"`
	ToolInput        map[string]any `json:"tool_input,omitempty"`
	HookEventName    string         `json:"hook_event_name,omitempty"`
	NotificationType string         `json:"notification_type,omitempty"`
	Message          string         `json:"message,omitempty"`
	CWD              string         `json:"cwd,omitempty"`
	SessionID        string         `json:"session_id,omitempty"`
}

// Kind classifies an inbound frame.
type Kind int

const (
	KindMalformed Kind = iota
	KindPermission
	KindNotification
)

// Classify determines what an inbound frame is. A notification marker wins
// over tool fields; a frame with neither is malformed.
func (f *Frame) Classify() Kind {
	if f.HookEventName == NotificationEventName || f.NotificationType != "" {
		return KindNotification
	}
	if f.ToolName != "" && f.ToolInput != nil {
		return KindPermission
	}
	return KindMalformed
}

// Notification is the transient view of a notification frame. It never
// enters the pending table.
type Notification struct {
	Type       string
	Message    string
	CWD        string
	ReceivedAt time.Time
}

// Action is the daemon's decision delivered to the hook.
type Action string

const (
	ActionApprove     Action = "approve"
	ActionDeny        Action = "deny"
	ActionPassthrough Action = "passthrough"
)

// Response is the single reply written on a permission connection.
type Response struct {
	Action Action `json:"action"`
	Reason string `json:"reason"`
}

// NewApproveResponse creates an approve response.
func NewApproveResponse(reason string) *Response {
	return &Response{Action: ActionApprove, Reason: reason}
}

// NewDenyResponse creates a deny response.
func NewDenyResponse(reason string) *Response {
	return &Response{Action: ActionDeny, Reason: reason}
}

// NewPassthroughResponse creates a response that defers to the assistant's
// local permission flow.
func NewPassthroughResponse(reason string) *Response {
	return &Response{Action: ActionPassthrough, Reason: reason}
}

// Encode serializes a Frame to JSON bytes (without trailing newline).
func (f *Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// Encode serializes a Response to JSON bytes (without trailing newline).
func (r *Response) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// DecodeFrame deserializes a Frame from JSON bytes.
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// DecodeResponse deserializes a Response from JSON bytes.
func DecodeResponse(data []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// WriteFrame writes one newline-terminated frame to conn.
func WriteFrame(conn net.Conn, f *Frame) error {
	data, err := f.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// WriteResponse writes one newline-terminated response to conn under a
// short deadline so a wedged hook cannot stall the daemon.
func WriteResponse(conn net.Conn, resp *Response) error {
	data, err := resp.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	data = append(data, '\n')
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}
