// Package config provides configuration management for bidsbatch: the
// settings file, the per-invocation output paths and the manifest export.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/nsap/bidsbatch/internal/constants"
)

// ConfigDir is the configuration directory name
const ConfigDir = "bidsbatch"

// getConfigDir returns the platform-appropriate config directory.
// - Windows: %APPDATA%\bidsbatch
// - Unix: ~/.config/bidsbatch (XDG standard)
func getConfigDir() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, ConfigDir)
		}
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, ConfigDir)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", ConfigDir)
	}
	return ""
}

// GetDefaultConfigPath returns the default config file path, or
// "config.csv" in the working directory when no home is available.
func GetDefaultConfigPath() string {
	dir := getConfigDir()
	if dir == "" {
		return "config.csv"
	}
	return filepath.Join(dir, "config.csv")
}

// GetDefaultPipelineDir returns the directory searched for custom pipeline
// definitions referenced by name.
func GetDefaultPipelineDir() string {
	dir := getConfigDir()
	if dir == "" {
		return "pipelines"
	}
	return filepath.Join(dir, "pipelines")
}

// LogFilePath returns OUTDIR/logs/<name>_<YYYYmmdd-HHMMSS>.log.
func LogFilePath(outputRoot, name string, at time.Time) string {
	return filepath.Join(outputRoot, constants.LogsDirName,
		name+"_"+at.Format(constants.LogTimestampFormat)+".log")
}

// ClusterDir returns OUTDIR/<name>_pbs/<YYYYmmdd-HHMMSS>, unique per invocation.
func ClusterDir(outputRoot, name string, at time.Time) string {
	return filepath.Join(outputRoot, name+constants.ClusterDirSuffix,
		at.Format(constants.LogTimestampFormat))
}
