// Package constants defines shared constants used across the tyb-uninstall codebase.
package constants

import "os"

// File permissions
const (
	DirMode  os.FileMode = 0755
	FileMode os.FileMode = 0644
)

// Environment variables
const EnvConfigDir = "TYB_UNINSTALL_CONFIG"

// Application paths
const (
	AppName         = "tyb-uninstall"
	XDGConfigSubdir = ".config"
	ConfigSubdir    = "tynkerbase-uninstall"
	ConfigFileName  = "config.toml"
)

// Paths installed by the tynkerbase agent installer.
const (
	AgentBinaryPath = "/usr/local/bin/tyb_agent"
	AgentInstallDir = "/usr/share/tynkerbase-agent"
	ProjectsRootDir = "/tyb-root"
)

// ProjectsPrompt is printed before the projects root is removed.
// The two trailing spaces are part of the prompt.
const ProjectsPrompt = "Do you also want to uninstall all your tynkerbase projects? (y/n)  "
