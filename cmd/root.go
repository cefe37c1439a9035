// Package cmd holds the yams-sync command line: the device agent, the cloud
// document API and one-shot maintenance commands.
package cmd

import (
	"context"
	"fmt"
	"slices"

	"yams-sync/config"
	"yams-sync/logger"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags and the state every command shares.
type RootOptions struct {
	Format string // "text" | "json" | "yaml"

	Config config.Config
	Logger zerolog.Logger
}

var ValidFormats = []string{"text", "json", "yaml"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "yams-sync",
		Short: "Player profiles, progression and cloud sync for Yams",
		Long: `yams-sync keeps player profiles on the device, awards XP and unlocks
after each game, and reconciles profiles with a cloud store when online.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			opts.Config = cfg
			opts.Logger = logger.New(cfg.LogLevel, cfg.LogPretty, cmd.ErrOrStderr())
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")

	cmd.AddCommand(NewAgentCommand(opts))
	cmd.AddCommand(NewCloudCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewPullCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))

	return cmd
}

// Execute runs the command line with ctx, which is cancelled on shutdown
// signals.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}
