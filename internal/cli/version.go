package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jantman/claude-permission-daemon/internal/version"
)

// newVersionCmd creates the 'version' command.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("claude-permd %s (built %s)\n", version.Version, version.BuildTime)
		},
	}
}
