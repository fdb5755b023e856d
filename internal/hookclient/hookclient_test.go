//go:build !windows

package hookclient

import (
	"bufio"
	"bytes"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jantman/claude-permission-daemon/internal/config"
	"github.com/jantman/claude-permission-daemon/internal/ipc"
)

// startFakeDaemon listens on a test socket, captures the first frame it
// receives, and answers with whatever respond returns. A nil response
// leaves the connection open until the hook gives up.
func startFakeDaemon(t *testing.T, respond func(*ipc.Frame) *ipc.Response) (string, chan *ipc.Frame) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "daemon.sock")
	listener, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	frames := make(chan *ipc.Frame, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		data, err := bufio.NewReader(conn).ReadBytes('\n')
		if err != nil {
			return
		}
		frame, err := ipc.DecodeFrame(data)
		if err != nil {
			return
		}
		frames <- frame

		if respond != nil {
			if resp := respond(frame); resp != nil {
				ipc.WriteResponse(conn, resp)
			}
		}
	}()
	return path, frames
}

func awaitFrame(t *testing.T, frames chan *ipc.Frame) *ipc.Frame {
	t.Helper()
	select {
	case f := <-frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the daemon to receive a frame")
		return nil
	}
}

func runHook(t *testing.T, socketPath, payload string) (string, string) {
	t.Helper()
	t.Setenv(config.EnvSocketPath, socketPath)

	var stdout, stderr bytes.Buffer
	if code := Run(strings.NewReader(payload), &stdout, &stderr); code != 0 {
		t.Errorf("Expected exit code 0, got %d", code)
	}
	return stdout.String(), stderr.String()
}

func TestPermissionApproved(t *testing.T) {
	path, frames := startFakeDaemon(t, func(*ipc.Frame) *ipc.Response {
		return ipc.NewApproveResponse("Approved via chat")
	})

	stdout, _ := runHook(t, path, `{"tool_name":"Bash","tool_input":{"command":"ls"}}`)

	want := `{"hookSpecificOutput":{"hookEventName":"PermissionRequest","decision":{"behavior":"allow"}}}` + "\n"
	if stdout != want {
		t.Errorf("Expected %q, got %q", want, stdout)
	}

	frame := awaitFrame(t, frames)
	if frame.ToolName != "Bash" {
		t.Errorf("Expected tool_name Bash, got %q", frame.ToolName)
	}
	if frame.ToolInput["command"] != "ls" {
		t.Errorf("Expected command ls, got %v", frame.ToolInput["command"])
	}
}

func TestPermissionDenied(t *testing.T) {
	path, _ := startFakeDaemon(t, func(*ipc.Frame) *ipc.Response {
		return ipc.NewDenyResponse("Denied via chat")
	})

	stdout, _ := runHook(t, path, `{"tool_name":"Bash","tool_input":{"command":"rm -rf /"}}`)

	want := `{"hookSpecificOutput":{"hookEventName":"PermissionRequest","decision":{"behavior":"deny"}}}` + "\n"
	if stdout != want {
		t.Errorf("Expected %q, got %q", want, stdout)
	}
}

func TestPermissionPassthroughPrintsNothing(t *testing.T) {
	path, _ := startFakeDaemon(t, func(*ipc.Frame) *ipc.Response {
		return ipc.NewPassthroughResponse("user active locally")
	})

	stdout, _ := runHook(t, path, `{"tool_name":"Bash","tool_input":{"command":"ls"}}`)
	if stdout != "" {
		t.Errorf("Expected no stdout for passthrough, got %q", stdout)
	}
}

func TestUnknownActionPassesThrough(t *testing.T) {
	path, _ := startFakeDaemon(t, func(*ipc.Frame) *ipc.Response {
		return &ipc.Response{Action: "shrug"}
	})

	stdout, stderr := runHook(t, path, `{"tool_name":"Bash","tool_input":{"command":"ls"}}`)
	if stdout != "" {
		t.Errorf("Expected no stdout for an unknown action, got %q", stdout)
	}
	if !strings.Contains(stderr, "unknown action") {
		t.Errorf("Expected an unknown-action note on stderr, got %q", stderr)
	}
}

func TestNotificationIsOneWay(t *testing.T) {
	path, frames := startFakeDaemon(t, nil)

	stdout, _ := runHook(t, path, `{"hook_event_name":"Notification","notification_type":"idle_prompt","message":"waiting for input","cwd":"/home/user"}`)
	if stdout != "" {
		t.Errorf("Expected no stdout for a notification, got %q", stdout)
	}

	frame := awaitFrame(t, frames)
	if frame.NotificationType != "idle_prompt" {
		t.Errorf("Expected notification_type idle_prompt, got %q", frame.NotificationType)
	}
	if frame.Message != "waiting for input" {
		t.Errorf("Expected the message to be relayed, got %q", frame.Message)
	}
}

func TestDaemonUnreachable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no-daemon.sock")

	stdout, stderr := runHook(t, path, `{"tool_name":"Bash","tool_input":{"command":"ls"}}`)
	if stdout != "" {
		t.Errorf("Expected no stdout when the daemon is down, got %q", stdout)
	}
	if !strings.Contains(stderr, "failed to connect") {
		t.Errorf("Expected a connect failure note on stderr, got %q", stderr)
	}
}

func TestMalformedStdin(t *testing.T) {
	path, _ := startFakeDaemon(t, nil)

	stdout, stderr := runHook(t, path, "not json at all")
	if stdout != "" {
		t.Errorf("Expected no stdout for malformed input, got %q", stdout)
	}
	if !strings.Contains(stderr, "failed to parse") {
		t.Errorf("Expected a parse failure note on stderr, got %q", stderr)
	}
}

func TestEmptyStdinIsSilent(t *testing.T) {
	path, _ := startFakeDaemon(t, nil)

	stdout, stderr := runHook(t, path, "  \n")
	if stdout != "" || stderr != "" {
		t.Errorf("Expected silence for empty input, got stdout %q stderr %q", stdout, stderr)
	}
}

func TestMissingToolName(t *testing.T) {
	path, _ := startFakeDaemon(t, nil)

	stdout, stderr := runHook(t, path, `{"tool_input":{"command":"ls"}}`)
	if stdout != "" {
		t.Errorf("Expected no stdout without a tool_name, got %q", stdout)
	}
	if !strings.Contains(stderr, "tool_name") {
		t.Errorf("Expected a tool_name note on stderr, got %q", stderr)
	}
}

func TestResponseTimeout(t *testing.T) {
	path, frames := startFakeDaemon(t, func(*ipc.Frame) *ipc.Response {
		// Stall past the hook's deadline without closing the connection.
		time.Sleep(3 * time.Second)
		return nil
	})
	t.Setenv(config.EnvRequestTimeout, "1")

	start := time.Now()
	stdout, stderr := runHook(t, path, `{"tool_name":"Bash","tool_input":{"command":"ls"}}`)
	elapsed := time.Since(start)

	if stdout != "" {
		t.Errorf("Expected no stdout on timeout, got %q", stdout)
	}
	if !strings.Contains(stderr, "no response") {
		t.Errorf("Expected a timeout note on stderr, got %q", stderr)
	}
	if elapsed > 5*time.Second {
		t.Errorf("Expected the hook to give up after about 1s, took %s", elapsed)
	}
	awaitFrame(t, frames)
}

func TestUnparsableTimeoutFallsBack(t *testing.T) {
	path, _ := startFakeDaemon(t, func(*ipc.Frame) *ipc.Response {
		return ipc.NewApproveResponse("Approved via chat")
	})
	t.Setenv(config.EnvRequestTimeout, "soon")

	stdout, stderr := runHook(t, path, `{"tool_name":"Bash","tool_input":{"command":"ls"}}`)
	if !strings.Contains(stderr, "ignoring invalid") {
		t.Errorf("Expected an invalid-timeout note on stderr, got %q", stderr)
	}
	if !strings.Contains(stdout, `"behavior":"allow"`) {
		t.Errorf("Expected an allow decision, got %q", stdout)
	}
}
