// Package cmd implements the CLI commands for tyb-uninstall.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/akneni/tynkerbase-uninstall/internal/config"
	"github.com/akneni/tynkerbase-uninstall/internal/logger"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose      bool
	dryRun       bool
	auditLogPath string
	backupDir    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tyb-uninstall",
	Short: "Remove the tynkerbase agent from this machine",
	Long: `tyb-uninstall removes the tynkerbase agent:

  /usr/local/bin/tyb_agent        agent binary, removed if present
  /usr/share/tynkerbase-agent     install directory, removed if present
  /tyb-root                       your projects, removed only if you confirm

Run it with enough privilege to delete those paths (usually via sudo).
Paths, pre-removal hooks, backups and the audit log can be configured in
~/.config/tynkerbase-uninstall/config.toml (see 'tyb-uninstall init').`,
	Args: cobra.NoArgs,
	// Uninstall by default when no subcommand is given
	RunE: runUninstall,
	// Silence usage on errors
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// An interrupt cancels the run between targets.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initApp)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output (debug logging)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Show what would be removed without removing anything")
	rootCmd.PersistentFlags().StringVar(&auditLogPath, "audit-log", "", "Append a JSON line per target to this file")
	rootCmd.PersistentFlags().StringVar(&backupDir, "backup-dir", "", "Archive the projects root here before removing it")
}

// initApp initializes the logger and loads config. A config error is kept
// and reported by the commands that depend on it.
func initApp() {
	logger.Init(logger.Options{Verbose: verbose})

	if err := config.Init(); err != nil {
		logger.Debug("config not loaded", "error", err)
	}
}

// IsVerbose returns whether verbose mode is enabled
func IsVerbose() bool {
	return verbose
}

// IsDryRun returns whether dry-run mode is enabled
func IsDryRun() bool {
	return dryRun
}
