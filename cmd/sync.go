package cmd

import (
	"fmt"

	"yams-sync/services"

	"github.com/spf13/cobra"
)

func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push pending changes to the remote store once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDevice(rootOpts)
			if err != nil {
				return err
			}
			defer d.Close()
			if err := d.connect(cmd.Context()); err != nil {
				return err
			}

			res := d.engine.SyncAll(cmd.Context())
			if err := printResult(cmd.OutOrStdout(), rootOpts.Format, res, res.Message); err != nil {
				return err
			}
			if res.Status == services.SyncPartial {
				return fmt.Errorf("%d change(s) failed to sync", res.Failed)
			}
			return nil
		},
	}
}

func NewPullCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Merge every remote profile and game into the local store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDevice(rootOpts)
			if err != nil {
				return err
			}
			defer d.Close()
			if err := d.connect(cmd.Context()); err != nil {
				return err
			}

			res := d.engine.PullAll(cmd.Context())
			return printResult(cmd.OutOrStdout(), rootOpts.Format, res, res.Message)
		},
	}
}
