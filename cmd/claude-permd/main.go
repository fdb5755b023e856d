// claude-permd bridges Claude Code permission prompts and notifications to
// Slack while the user is away from the keyboard.
package main

import (
	"os"

	"github.com/jantman/claude-permission-daemon/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
