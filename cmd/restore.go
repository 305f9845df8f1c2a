package cmd

import (
	"fmt"

	"github.com/akneni/tynkerbase-uninstall/internal/backup"
	"github.com/spf13/cobra"
)

var restoreCmd = &cobra.Command{
	Use:   "restore ARCHIVE DEST",
	Short: "Restore a projects backup written with --backup-dir",
	Long: `Restore extracts a .tar.zst archive written by tyb-uninstall --backup-dir
into DEST, creating it if needed.

Example:
  tyb-uninstall restore /var/backups/tyb-root-20261019T083005Z.tar.zst /tyb-root`,
	Args: cobra.ExactArgs(2),
	RunE: runRestore,
}

func init() {
	rootCmd.AddCommand(restoreCmd)
}

func runRestore(cmd *cobra.Command, args []string) error {
	archive, dest := args[0], args[1]
	if err := backup.Restore(archive, dest); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Restored %s to %s\n", archive, dest)
	return nil
}
