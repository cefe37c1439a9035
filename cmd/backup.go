package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"yams-sync/utils"

	"github.com/spf13/cobra"
)

func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Write a JSON backup of all local profiles and games",
		Long: `Write a JSON backup of all local profiles and games.

Without a file argument the backup is written to --dir under a generated
name. Use "-" to write to stdout.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDevice(rootOpts)
			if err != nil {
				return err
			}
			defer d.Close()

			data, err := d.backup.ExportJSON()
			if err != nil {
				return err
			}
			if len(args) == 1 && args[0] == "-" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}

			path := filepath.Join(dir, d.backup.FileName())
			if len(args) == 1 {
				path = args[0]
			}
			if err := utils.WriteFileAtomic(path, data); err != nil {
				return fmt.Errorf("failed to write backup: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Backup written to %s\n", path)
			return err
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "directory for generated backup names")
	return cmd
}

func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Restore profiles and games from a JSON backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read backup: %w", err)
			}
			d, err := openDevice(rootOpts)
			if err != nil {
				return err
			}
			defer d.Close()

			res, err := d.backup.Import(data)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), rootOpts.Format, res, res.Message)
		},
	}
}
