// Package testutil provides shared test utilities for tyb-uninstall tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/akneni/tynkerbase-uninstall/internal/config"
	"github.com/akneni/tynkerbase-uninstall/internal/constants"
)

// Layout is a fake filesystem root holding the agent's paths.
type Layout struct {
	Root         string
	AgentBinary  string
	InstallDir   string
	ProjectsRoot string
}

// NewLayout returns agent paths under a fresh temporary directory.
// Nothing is created on disk.
func NewLayout(t *testing.T) *Layout {
	t.Helper()
	root := t.TempDir()
	return &Layout{
		Root:         root,
		AgentBinary:  filepath.Join(root, "usr", "local", "bin", "tyb_agent"),
		InstallDir:   filepath.Join(root, "usr", "share", "tynkerbase-agent"),
		ProjectsRoot: filepath.Join(root, "tyb-root"),
	}
}

// Populate creates all three targets with some content.
func (l *Layout) Populate(t *testing.T) {
	t.Helper()
	WriteFile(t, l.AgentBinary, "\x7fELF")
	WriteFile(t, filepath.Join(l.InstallDir, "VERSION"), "0.1.0")
	WriteFile(t, filepath.Join(l.ProjectsRoot, "webapp", "main.py"), "print('hi')")
}

// TargetsConfig renders a [targets] table pointing at the layout.
func (l *Layout) TargetsConfig() string {
	return fmt.Sprintf(`
[targets]
agent_binary  = %q
install_dir   = %q
projects_root = %q
`, l.AgentBinary, l.InstallDir, l.ProjectsRoot)
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), constants.DirMode); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), constants.FileMode); err != nil {
		t.Fatal(err)
	}
}

// Exists reports whether path exists without following symlinks.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// SetupTestConfig points TYB_UNINSTALL_CONFIG at a temporary directory,
// writes configContent there (if non-empty) and reloads config.
// Returns a cleanup function that should be deferred.
func SetupTestConfig(t *testing.T, configContent string) func() {
	t.Helper()

	tmpDir := t.TempDir()
	os.Setenv(constants.EnvConfigDir, tmpDir)

	if configContent != "" {
		configPath := filepath.Join(tmpDir, constants.ConfigFileName)
		if err := os.WriteFile(configPath, []byte(configContent), constants.FileMode); err != nil {
			t.Fatal(err)
		}
	}

	config.Reset()
	config.Init()

	return func() {
		os.Unsetenv(constants.EnvConfigDir)
		config.Reset()
	}
}
