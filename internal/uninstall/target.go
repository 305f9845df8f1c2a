package uninstall

import "github.com/akneni/tynkerbase-uninstall/internal/constants"

// Kind is how a target is removed.
type Kind string

const (
	// KindFile targets are removed as a single file.
	KindFile Kind = "file"
	// KindTree targets are removed recursively.
	KindTree Kind = "tree"
)

// Target is one filesystem entry owned by the agent.
type Target struct {
	Name string
	Path string
	Kind Kind
	// Confirm gates removal behind the projects prompt.
	Confirm bool
}

// Target names, also used in the audit log.
const (
	NameAgentBinary  = "agent_binary"
	NameInstallDir   = "install_dir"
	NameProjectsRoot = "projects_root"
)

// NewTargets builds the ordered target list for the given paths.
func NewTargets(agentBinary, installDir, projectsRoot string) []Target {
	return []Target{
		{Name: NameAgentBinary, Path: agentBinary, Kind: KindFile},
		{Name: NameInstallDir, Path: installDir, Kind: KindTree},
		{Name: NameProjectsRoot, Path: projectsRoot, Kind: KindTree, Confirm: true},
	}
}

// DefaultTargets returns the paths written by the agent installer.
func DefaultTargets() []Target {
	return NewTargets(constants.AgentBinaryPath, constants.AgentInstallDir, constants.ProjectsRootDir)
}
