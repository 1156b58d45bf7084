package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/tinyland-inc/picobridge/pkg/config"
	"github.com/tinyland-inc/picobridge/pkg/logger"
)

const Logo = "🌉"

// ConfigEnv overrides the default config location.
const ConfigEnv = "PICOBRIDGE_CONFIG"

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

// ConfigDir is ~/.picobridge.
func ConfigDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".picobridge")
}

// GetConfigPath resolves the config file: an explicit path wins, then
// $PICOBRIDGE_CONFIG, then config.yaml in the config dir if it exists, and
// finally config.json.
func GetConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv(ConfigEnv); p != "" {
		return p
	}
	yamlPath := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return yamlPath
	}
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig(explicit string) (*config.Config, error) {
	path := GetConfigPath(explicit)
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("error loading config %s: %w", path, err)
	}
	return cfg, nil
}

// SetupLogging applies the logging section of cfg. debug forces DEBUG.
func SetupLogging(cfg *config.Config, debug bool) error {
	level := logger.ParseLevel(cfg.Logging.Level)
	if debug {
		level = logger.DEBUG
	}
	logger.SetLevel(level)
	if cfg.Logging.File != "" {
		if err := logger.EnableFileLogging(cfg.Logging.File); err != nil {
			return fmt.Errorf("error enabling file logging: %w", err)
		}
	}
	return nil
}

// FormatVersion returns the version string with optional git commit
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// FormatBuildInfo returns build time and go version info
func FormatBuildInfo() (string, string) {
	build := buildTime
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return build, goVer
}

func GetVersion() string {
	return version
}
