package cmd

import (
	"context"
	"fmt"

	"github.com/akneni/tynkerbase-uninstall/internal/audit"
	"github.com/akneni/tynkerbase-uninstall/internal/backup"
	"github.com/akneni/tynkerbase-uninstall/internal/config"
	"github.com/akneni/tynkerbase-uninstall/internal/logger"
	"github.com/akneni/tynkerbase-uninstall/internal/uninstall"
	"github.com/spf13/cobra"
)

// runUninstall is the default command. Only the confirmation prompt goes to
// stdout; hook output and dry-run notes go to stderr.
func runUninstall(cmd *cobra.Command, args []string) error {
	if err := config.LoadError(); err != nil {
		return fmt.Errorf("refusing to uninstall with a broken config: %w", err)
	}
	cfg := config.Get()

	// config.Validate covers backup.dir; the flag is checked here so nothing
	// is touched before the archive step would refuse it.
	if backupDir != "" && backup.Within(cfg.Targets.ProjectsRoot, backupDir) {
		return fmt.Errorf("--backup-dir %s: %w", backupDir, config.ErrBackupInsideProjects)
	}

	if err := audit.Init(firstNonEmpty(auditLogPath, cfg.Audit.Path)); err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer audit.Close()

	u := newUninstaller(cmd, cfg)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	report, err := u.Run(ctx)
	logger.Debug("uninstall finished",
		"removed", len(report.Removed()),
		"prompted", report.Prompted(),
		"dry_run", dryRun)

	if dryRun {
		for _, res := range report.Results {
			if res.Action == uninstall.ActionWouldRemove {
				fmt.Fprintf(cmd.ErrOrStderr(), "DRY RUN: would remove %s\n", res.Target.Path)
			}
		}
	}

	return err
}

func newUninstaller(cmd *cobra.Command, cfg *config.Config) *uninstall.Uninstaller {
	return &uninstall.Uninstaller{
		Targets: uninstall.NewTargets(
			cfg.Targets.AgentBinary,
			cfg.Targets.InstallDir,
			cfg.Targets.ProjectsRoot,
		),
		In:        cmd.InOrStdin(),
		Out:       cmd.OutOrStdout(),
		DryRun:    dryRun,
		Hooks:     cfg.Hooks.PreRemove,
		HookOut:   cmd.ErrOrStderr(),
		HookErr:   cmd.ErrOrStderr(),
		BackupDir: firstNonEmpty(backupDir, cfg.Backup.Dir),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
