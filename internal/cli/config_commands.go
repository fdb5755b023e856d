// Package cli provides configuration management commands.
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jantman/claude-permission-daemon/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage claude-permd configuration",
		Long: `Configuration management commands for claude-permd.

Commands:
  init      - Write a commented starter configuration
  show      - Display the resolved configuration (secrets redacted)
  validate  - Check the configuration and report every problem
  path      - Show the configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigValidateCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented starter configuration",
		Long: `Write the starter configuration template.

The template contains every setting with its default and a comment. Fill
in the Slack tokens and channel, then check the result with
'claude-permd config validate'.

Use --force to overwrite an existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgFile
			if path == "" {
				var err error
				path, err = config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("failed to determine config path: %w", err)
				}
			}

			if err := config.WriteTemplate(path, force); err != nil {
				return err
			}
			fmt.Printf("Wrote starter configuration to: %s\n", path)
			fmt.Println("Fill in the [slack] tokens, then run 'claude-permd config validate'.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	return cmd
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the resolved configuration",
		Long: `Display the configuration after applying the file and the CLAUDE_PERM_*
environment overrides. Slack tokens are redacted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			fmt.Println("[daemon]")
			fmt.Printf("  socket_path:                %s\n", cfg.Daemon.SocketPath)
			fmt.Printf("  idle_timeout:               %ds\n", cfg.Daemon.IdleTimeout)
			fmt.Printf("  request_timeout:            %ds\n", cfg.Daemon.RequestTimeout)
			fmt.Printf("  debug:                      %t\n", cfg.Daemon.Debug)
			fmt.Printf("  ignored_notification_types: %s\n", strings.Join(cfg.Daemon.IgnoredNotificationTypes, ", "))
			fmt.Println("[slack]")
			fmt.Printf("  bot_token:                  %s\n", config.RedactToken(cfg.Slack.BotToken))
			fmt.Printf("  app_token:                  %s\n", config.RedactToken(cfg.Slack.AppToken))
			fmt.Printf("  channel:                    %s\n", valueOrUnset(cfg.Slack.Channel))
			fmt.Println("[swayidle]")
			fmt.Printf("  binary:                     %s\n", cfg.Swayidle.Binary)
			fmt.Println("[mac]")
			fmt.Printf("  binary:                     %s\n", cfg.Mac.Binary)
			return nil
		},
	}
}

// newConfigValidateCmd creates the 'config validate' command.
func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and report every problem",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("configuration problems:\n%w", err)
			}
			fmt.Println("Configuration OK")
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show the configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile != "" {
				fmt.Println(cfgFile)
				return nil
			}
			path, err := config.DefaultConfigPath()
			if err != nil {
				return fmt.Errorf("failed to determine config path: %w", err)
			}
			fmt.Println(path)
			return nil
		},
	}
}

func valueOrUnset(v string) string {
	if v == "" {
		return "(not set)"
	}
	return v
}
