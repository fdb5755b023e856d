// claude-perm-hook is the Claude Code hook entrypoint. It relays one hook
// payload to the daemon and prints the decision JSON when chat produced
// one. Configure it as a PreToolUse and Notification hook.
package main

import (
	"os"

	"github.com/jantman/claude-permission-daemon/internal/hookclient"
)

func main() {
	os.Exit(hookclient.Run(os.Stdin, os.Stdout, os.Stderr))
}
