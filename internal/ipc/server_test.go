//go:build !windows

package ipc

import (
	"bufio"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jantman/claude-permission-daemon/internal/logging"
)

type permissionEvent struct {
	frame *Frame
	conn  net.Conn
}

// captureHandler records routed frames for assertions.
type captureHandler struct {
	permissions chan permissionEvent
	notes       chan Notification
}

func newCaptureHandler() *captureHandler {
	return &captureHandler{
		permissions: make(chan permissionEvent, 4),
		notes:       make(chan Notification, 4),
	}
}

func (h *captureHandler) HandlePermission(frame *Frame, conn net.Conn) {
	h.permissions <- permissionEvent{frame: frame, conn: conn}
}

func (h *captureHandler) HandleNotification(note Notification) {
	h.notes <- note
}

func startTestServer(t *testing.T, ignored map[string]struct{}) (*Server, *captureHandler, string) {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "test.sock")
	handler := newCaptureHandler()
	server := NewServer(socketPath, handler, ignored, logging.New(logging.Options{}))

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(server.Stop)

	return server, handler, socketPath
}

func TestServerRoutesPermission(t *testing.T) {
	_, handler, socketPath := startTestServer(t, nil)

	ctx := context.Background()
	conn, err := Dial(ctx, socketPath)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	req := &Frame{
		ToolName:  "Bash",
		ToolInput: map[string]any{"command": "rm -rf build/"},
	}
	if err := WriteFrame(conn, req); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	var ev permissionEvent
	select {
	case ev = <-handler.permissions:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for permission handoff")
	}

	if ev.frame.ToolName != "Bash" {
		t.Errorf("Expected ToolName=Bash, got %s", ev.frame.ToolName)
	}
	if ev.conn == nil {
		t.Fatal("Expected connection handoff, got nil")
	}

	// The handler owns the connection; answer on it like the coordinator
	// would and confirm the hook side can read the response.
	if err := WriteResponse(ev.conn, NewApproveResponse("Approved via chat")); err != nil {
		t.Fatalf("WriteResponse failed: %v", err)
	}
	ev.conn.Close()

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	resp, err := DecodeResponse(line)
	if err != nil {
		t.Fatalf("DecodeResponse failed: %v", err)
	}
	if resp.Action != ActionApprove {
		t.Errorf("Expected action=approve, got %s", resp.Action)
	}
	if resp.Reason != "Approved via chat" {
		t.Errorf("Expected reason 'Approved via chat', got %q", resp.Reason)
	}
}

func TestServerRoutesNotification(t *testing.T) {
	_, handler, socketPath := startTestServer(t, nil)

	conn, err := Dial(context.Background(), socketPath)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	note := &Frame{
		HookEventName:    "Notification",
		NotificationType: "idle_prompt",
		Message:          "Claude is waiting for your input",
		CWD:              "/home/user/project",
	}
	if err := WriteFrame(conn, note); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	select {
	case got := <-handler.notes:
		if got.Type != "idle_prompt" {
			t.Errorf("Expected type idle_prompt, got %s", got.Type)
		}
		if got.Message != "Claude is waiting for your input" {
			t.Errorf("Unexpected message: %q", got.Message)
		}
		if got.CWD != "/home/user/project" {
			t.Errorf("Unexpected cwd: %q", got.CWD)
		}
		if got.ReceivedAt.IsZero() {
			t.Error("Expected ReceivedAt to be set")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for notification")
	}

	// No response frame is owed; the server closes the connection.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := bufio.NewReader(conn).ReadBytes('\n'); err == nil {
		t.Error("Expected closed connection with no response, got data")
	}
}

func TestServerDropsFilteredNotification(t *testing.T) {
	ignored := map[string]struct{}{"permission_prompt": {}}
	_, handler, socketPath := startTestServer(t, ignored)

	conn, err := Dial(context.Background(), socketPath)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	note := &Frame{
		HookEventName:    "Notification",
		NotificationType: "permission_prompt",
		Message:          "Claude needs permission to use Bash",
	}
	if err := WriteFrame(conn, note); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	select {
	case got := <-handler.notes:
		t.Errorf("Expected filtered notification to be dropped, handler got %+v", got)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestServerClosesMalformedFrame(t *testing.T) {
	_, handler, socketPath := startTestServer(t, nil)

	conn, err := Dial(context.Background(), socketPath)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("this is not json\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// No response and no handoff.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := bufio.NewReader(conn).ReadBytes('\n'); err == nil {
		t.Error("Expected closed connection with no response, got data")
	}
	select {
	case <-handler.permissions:
		t.Error("Malformed frame must not reach the permission handler")
	case <-handler.notes:
		t.Error("Malformed frame must not reach the notification handler")
	default:
	}
}

func TestServerRemovesStaleSocket(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "stale.sock")

	// A leftover file nobody is accepting on.
	if err := os.WriteFile(socketPath, nil, 0600); err != nil {
		t.Fatalf("Failed to plant stale socket file: %v", err)
	}

	listener, err := Listen(socketPath)
	if err != nil {
		t.Fatalf("Expected stale socket to be replaced, got: %v", err)
	}
	listener.Close()
}

func TestServerRejectsBusyEndpoint(t *testing.T) {
	_, _, socketPath := startTestServer(t, nil)

	if _, err := Listen(socketPath); !errors.Is(err, ErrEndpointBusy) {
		t.Errorf("Expected ErrEndpointBusy for live endpoint, got %v", err)
	}
}

func TestSocketPermissions(t *testing.T) {
	_, _, socketPath := startTestServer(t, nil)

	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("Expected socket mode 0600, got %04o", perm)
	}
}
