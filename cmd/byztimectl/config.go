package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
)

// Config holds the daemon/CLI configuration for byztimectl.
type Config struct {
	RegionPath string `json:"region_path"` //nolint:tagliatelle // snake_case for config file
	DriftPPB   int64  `json:"drift_ppb,omitempty"`
	HistoryDir string `json:"history_dir,omitempty"`
}

// ConfigFileName is the default project config file name.
const ConfigFileName = ".byztimectl.json"

var errRegionPathEmpty = errors.New("region_path must not be empty")

// DefaultConfig returns the built-in defaults, applied before any config
// file or CLI flag is considered.
func DefaultConfig() Config {
	return Config{
		RegionPath: "/run/byztime/clock.region",
		DriftPPB:   250_000,
	}
}

// getGlobalConfigPath returns $XDG_CONFIG_HOME/byztime/config.json, falling
// back to ~/.config/byztime/config.json.
func getGlobalConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "byztime", "config.json")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".config", "byztime", "config.json")
}

// LoadConfig loads configuration with the following precedence (highest
// wins): built-in defaults, global user config, project config file
// (./.byztimectl.json or an explicit --config path), then CLI flag
// overrides applied by the caller.
func LoadConfig(workDir, explicitPath string) (Config, error) {
	cfg := DefaultConfig()

	if globalCfg, ok, err := loadConfigFile(getGlobalConfigPath(), false); err != nil {
		return Config{}, err
	} else if ok {
		cfg = mergeConfig(cfg, globalCfg)
	}

	projectPath := explicitPath
	mustExist := explicitPath != ""

	if projectPath == "" {
		projectPath = filepath.Join(workDir, ConfigFileName)
	} else if !filepath.IsAbs(projectPath) {
		projectPath = filepath.Join(workDir, projectPath)
	}

	projectCfg, ok, err := loadConfigFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if ok {
		cfg = mergeConfig(cfg, projectCfg)
	}

	if cfg.RegionPath == "" {
		return Config{}, errRegionPathEmpty
	}

	return cfg, nil
}

func loadConfigFile(path string, mustExist bool) (Config, bool, error) {
	if path == "" {
		return Config{}, false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("read config %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("parse config %s: invalid JSONC: %w", path, err)
	}

	var cfg Config

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, false, fmt.Errorf("parse config %s: %w", path, err)
	}

	// mergeConfig treats an empty region_path as "not set", so an explicit
	// empty value has to be rejected here, where the key is still visible.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(standardized, &fields); err == nil {
		if _, set := fields["region_path"]; set && cfg.RegionPath == "" {
			return Config{}, false, fmt.Errorf("parse config %s: %w", path, errRegionPathEmpty)
		}
	}

	return cfg, true, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.RegionPath != "" {
		base.RegionPath = overlay.RegionPath
	}

	if overlay.DriftPPB != 0 {
		base.DriftPPB = overlay.DriftPPB
	}

	if overlay.HistoryDir != "" {
		base.HistoryDir = overlay.HistoryDir
	}

	return base
}

// FormatConfig renders cfg as indented JSON, for the "config" REPL command.
func FormatConfig(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("format config: %w", err)
	}

	return string(data), nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
