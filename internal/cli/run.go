package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jantman/claude-permission-daemon/internal/chat/slack"
	"github.com/jantman/claude-permission-daemon/internal/config"
	"github.com/jantman/claude-permission-daemon/internal/daemon"
	"github.com/jantman/claude-permission-daemon/internal/idle"
	"github.com/jantman/claude-permission-daemon/internal/logging"
)

// newRunCmd creates the 'run' command.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		Long: `Start the daemon in foreground mode. The daemon watches local input
activity, accepts hook connections from Claude Code, and forwards
permission requests to Slack while you are idle.

Press Ctrl+C to stop the daemon gracefully; pending requests fall back
to the local prompt.

Examples:
  # Run with the default configuration file
  claude-permd run

  # Run with an explicit config and a rotating log file
  claude-permd run --config ~/permd.toml --log-file ~/.local/state/permd.log`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration:\n%w", err)
			}

			if cfg.Daemon.Debug && !verbose {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
			log := GetLogger()

			backend, err := idle.NewBackend(cfg, log.Sub("idle"))
			if err != nil {
				return fmt.Errorf("no usable idle detection backend: %w", err)
			}

			adapter := slack.New(cfg.Slack, log.Sub("slack"))
			d := daemon.New(cfg, adapter, backend, log.Sub("daemon"))
			return d.Run(GetContext())
		},
	}
}
