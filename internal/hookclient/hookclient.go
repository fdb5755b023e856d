// Package hookclient implements the assistant-side hook: it reads one hook
// payload from stdin, relays it to the daemon, and prints the assistant's
// decision JSON when chat produced one. Every failure path exits 0 with no
// stdout so the assistant falls back to its normal local prompt instead of
// blocking on a broken hook.
package hookclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jantman/claude-permission-daemon/internal/config"
	"github.com/jantman/claude-permission-daemon/internal/ipc"
)

// defaultTimeout is how long a permission request may wait for an answer
// when the environment does not override it. It matches the daemon's
// request_timeout default.
const defaultTimeout = 300 * time.Second

// permissionEventName is the hookEventName the assistant expects on
// decision output.
const permissionEventName = "PermissionRequest"

type hookDecision struct {
	Behavior string `json:"behavior"`
}

type hookEventOutput struct {
	HookEventName string       `json:"hookEventName"`
	Decision      hookDecision `json:"decision"`
}

type hookOutput struct {
	HookSpecificOutput hookEventOutput `json:"hookSpecificOutput"`
}

// Run executes the hook once. The returned exit code is always 0; the
// assistant treats a nonzero exit as a hook failure and surfaces it to the
// user, which is never what a missing daemon should do.
func Run(stdin io.Reader, stdout, stderr io.Writer) int {
	debug := debugEnabled()

	raw, err := io.ReadAll(stdin)
	if err != nil {
		fmt.Fprintf(stderr, "failed to read hook payload: %v\n", err)
		return 0
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return 0
	}

	frame, err := ipc.DecodeFrame(raw)
	if err != nil {
		fmt.Fprintf(stderr, "failed to parse hook payload: %v\n", err)
		return 0
	}

	notification := frame.Classify() == ipc.KindNotification
	if !notification && frame.ToolName == "" {
		fmt.Fprintln(stderr, "hook payload has no tool_name")
		return 0
	}

	// Relay the payload verbatim, compacted to one line, so fields this
	// build does not know about still reach the daemon.
	var wire bytes.Buffer
	if err := json.Compact(&wire, raw); err != nil {
		fmt.Fprintf(stderr, "failed to compact hook payload: %v\n", err)
		return 0
	}
	wire.WriteByte('\n')

	endpoint := os.Getenv(config.EnvSocketPath)
	if endpoint == "" {
		endpoint = config.DefaultSocketPath()
	}
	timeout := requestTimeout(stderr)

	dialCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	conn, err := ipc.Dial(dialCtx, endpoint)
	if err != nil {
		fmt.Fprintf(stderr, "failed to connect to daemon at %s: %v\n", endpoint, err)
		return 0
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))

	if _, err := conn.Write(wire.Bytes()); err != nil {
		fmt.Fprintf(stderr, "failed to send request to daemon: %v\n", err)
		return 0
	}

	if notification {
		// One-way; the daemon never answers a notification.
		return 0
	}

	if debug {
		fmt.Fprintln(stderr, "[debug] request sent, waiting for response")
	}

	data, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		fmt.Fprintf(stderr, "no response from daemon: %v\n", err)
		return 0
	}
	if debug {
		fmt.Fprintf(stderr, "[debug] response: %s\n", bytes.TrimSpace(data))
	}

	resp, err := ipc.DecodeResponse(data)
	if err != nil {
		fmt.Fprintf(stderr, "invalid response from daemon: %v\n", err)
		return 0
	}

	switch resp.Action {
	case ipc.ActionApprove:
		printDecision(stdout, stderr, "allow")
	case ipc.ActionDeny:
		printDecision(stdout, stderr, "deny")
	case ipc.ActionPassthrough:
		// No output; the assistant runs its normal permission flow.
	default:
		fmt.Fprintf(stderr, "unknown action from daemon: %q\n", resp.Action)
	}
	return 0
}

func printDecision(stdout, stderr io.Writer, behavior string) {
	out := hookOutput{
		HookSpecificOutput: hookEventOutput{
			HookEventName: permissionEventName,
			Decision:      hookDecision{Behavior: behavior},
		},
	}
	data, err := json.Marshal(out)
	if err != nil {
		fmt.Fprintf(stderr, "failed to encode decision: %v\n", err)
		return
	}
	fmt.Fprintln(stdout, string(data))
}

// requestTimeout reads the timeout override, falling back to the default
// on a value that does not parse.
func requestTimeout(stderr io.Writer) time.Duration {
	v := os.Getenv(config.EnvRequestTimeout)
	if v == "" {
		return defaultTimeout
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		fmt.Fprintf(stderr, "ignoring invalid %s %q\n", config.EnvRequestTimeout, v)
		return defaultTimeout
	}
	return time.Duration(n) * time.Second
}

func debugEnabled() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(config.EnvDebug))) {
	case "1", "true", "yes":
		return true
	}
	return false
}
