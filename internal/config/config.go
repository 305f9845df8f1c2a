// Package config handles configuration loading and parsing for tyb-uninstall.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/akneni/tynkerbase-uninstall/internal/backup"
	"github.com/akneni/tynkerbase-uninstall/internal/constants"
	"github.com/akneni/tynkerbase-uninstall/internal/hooks"
	"github.com/akneni/tynkerbase-uninstall/internal/logger"
)

//go:embed config.toml
var defaultConfig []byte

var (
	// ErrRelativePath is returned when a target path is not absolute.
	ErrRelativePath = errors.New("target path must be absolute")
	// ErrBackupInsideProjects is returned when backup.dir would be removed
	// together with the projects root.
	ErrBackupInsideProjects = errors.New("backup.dir must not be inside targets.projects_root")
)

// Targets holds the filesystem paths the uninstaller removes.
type Targets struct {
	AgentBinary  string `toml:"agent_binary"`
	InstallDir   string `toml:"install_dir"`
	ProjectsRoot string `toml:"projects_root"`
}

type Backup struct {
	Dir string `toml:"dir"`
}

type Audit struct {
	Path string `toml:"path"`
}

type Hooks struct {
	PreRemove []hooks.Hook `toml:"pre_remove"`
}

// Config is the parsed config.toml.
type Config struct {
	Targets Targets `toml:"targets"`
	Backup  Backup  `toml:"backup"`
	Audit   Audit   `toml:"audit"`
	Hooks   Hooks   `toml:"hooks"`
}

var (
	globalConfig      *Config
	configInitialized bool
	loadErr           error
	loadedFrom        string
)

// GetConfigDir returns the config directory path.
// Uses TYB_UNINSTALL_CONFIG if set, otherwise ~/.config/tynkerbase-uninstall
func GetConfigDir() (string, error) {
	if dir := os.Getenv(constants.EnvConfigDir); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, constants.XDGConfigSubdir, constants.ConfigSubdir), nil
}

// Defaults returns a Config holding the built-in target paths and nothing else.
func Defaults() *Config {
	return &Config{
		Targets: Targets{
			AgentBinary:  constants.AgentBinaryPath,
			InstallDir:   constants.AgentInstallDir,
			ProjectsRoot: constants.ProjectsRootDir,
		},
	}
}

// LoadConfig parses TOML data on top of Defaults and validates the result.
// Keys missing from data keep their default value.
func LoadConfig(data []byte) (*Config, error) {
	cfg := Defaults()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	for _, key := range md.Undecoded() {
		logger.Debug("ignoring unknown config key", "key", key.String())
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks target paths and hook scripts.
func (c *Config) Validate() error {
	named := []struct{ key, path string }{
		{"targets.agent_binary", c.Targets.AgentBinary},
		{"targets.install_dir", c.Targets.InstallDir},
		{"targets.projects_root", c.Targets.ProjectsRoot},
	}
	for _, n := range named {
		if strings.TrimSpace(n.path) == "" || !filepath.IsAbs(n.path) {
			return fmt.Errorf("%s = %q: %w", n.key, n.path, ErrRelativePath)
		}
	}

	for _, opt := range []struct{ key, path string }{
		{"backup.dir", c.Backup.Dir},
		{"audit.path", c.Audit.Path},
	} {
		if opt.path != "" && !filepath.IsAbs(opt.path) {
			return fmt.Errorf("%s = %q: %w", opt.key, opt.path, ErrRelativePath)
		}
	}

	if c.Backup.Dir != "" && backup.Within(c.Targets.ProjectsRoot, c.Backup.Dir) {
		return fmt.Errorf("backup.dir = %q: %w", c.Backup.Dir, ErrBackupInsideProjects)
	}

	if err := hooks.Validate(c.Hooks.PreRemove); err != nil {
		return fmt.Errorf("invalid pre_remove hook: %w", err)
	}
	return nil
}

// Init loads config.toml from the config directory. A missing file is not an
// error: the embedded defaults apply. An unreadable or invalid file also falls
// back to defaults, but the error is kept (see LoadError) so callers can refuse
// to delete anything based on a config the user did not intend.
func Init() error {
	if configInitialized {
		return loadErr
	}
	configInitialized = true

	configDir, err := GetConfigDir()
	if err != nil {
		logger.Debug("failed to get config dir, using embedded defaults", "error", err)
		globalConfig = loadEmbeddedDefaults()
		return nil
	}

	configPath := filepath.Join(configDir, constants.ConfigFileName)
	configData, err := os.ReadFile(configPath)
	if errors.Is(err, os.ErrNotExist) {
		logger.Debug("no config file, using embedded defaults", "path", configPath)
		globalConfig = loadEmbeddedDefaults()
		return nil
	}
	if err != nil {
		globalConfig = loadEmbeddedDefaults()
		loadErr = fmt.Errorf("failed to read %s: %w", configPath, err)
		return loadErr
	}

	cfg, err := LoadConfig(configData)
	if err != nil {
		globalConfig = loadEmbeddedDefaults()
		loadErr = fmt.Errorf("failed to load %s: %w", configPath, err)
		return loadErr
	}

	globalConfig = cfg
	loadedFrom = configPath
	logger.Debug("config loaded successfully",
		"path", configPath,
		"hooks", len(cfg.Hooks.PreRemove))
	return nil
}

func loadEmbeddedDefaults() *Config {
	cfg, err := LoadConfig(defaultConfig)
	if err != nil {
		return Defaults()
	}
	return cfg
}

// Get returns the current configuration.
// If Init has not been called, it initializes first.
func Get() *Config {
	if !configInitialized {
		Init()
	}
	return globalConfig
}

// LoadError returns the error from the last Init, if any.
func LoadError() error {
	return loadErr
}

// Path returns the config file that was loaded, or "" for embedded defaults.
func Path() string {
	return loadedFrom
}

// Reset resets the configuration state. Used for testing.
func Reset() {
	configInitialized = false
	globalConfig = nil
	loadErr = nil
	loadedFrom = ""
}

// GetDefaultConfig returns the embedded default configuration.
func GetDefaultConfig() []byte {
	return defaultConfig
}
