package cmd

import (
	"fmt"

	"github.com/akneni/tynkerbase-uninstall/internal/config"
	"github.com/akneni/tynkerbase-uninstall/internal/uninstall"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and show what would be removed",
	Long: `Validate loads the tyb-uninstall configuration and prints the resolved
targets, pre-removal hooks, backup directory and audit log path.

Nothing is removed.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	if err := config.LoadError(); err != nil {
		return err
	}
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("failed to load configuration")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Configuration valid!")
	if path := config.Path(); path != "" {
		fmt.Fprintf(out, "Loaded from: %s\n", path)
	} else {
		fmt.Fprintln(out, "Loaded from: built-in defaults")
	}
	fmt.Fprintln(out)

	targets := uninstall.NewTargets(cfg.Targets.AgentBinary, cfg.Targets.InstallDir, cfg.Targets.ProjectsRoot)
	fmt.Fprintf(out, "Targets: %d\n", len(targets))
	for _, t := range targets {
		note := ""
		if t.Confirm {
			note = " (asks first)"
		}
		fmt.Fprintf(out, "  - %s [%s]: %s%s\n", t.Name, t.Kind, t.Path, note)
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Pre-remove hooks: %d\n", len(cfg.Hooks.PreRemove))
	for _, h := range cfg.Hooks.PreRemove {
		fmt.Fprintf(out, "  - %s: %s\n", h.Name, h.Run)
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Backup dir: %s\n", orNone(firstNonEmpty(backupDir, cfg.Backup.Dir)))
	fmt.Fprintf(out, "Audit log: %s\n", orNone(firstNonEmpty(auditLogPath, cfg.Audit.Path)))

	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
