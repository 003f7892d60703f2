package config

import (
	"os"
	"path/filepath"
)

const appDir = "flr"

// DefaultDataDir returns the per-user directory for flr state. Checkpoints
// are consumer state, so XDG_STATE_HOME wins over the platform defaults.
func DefaultDataDir() string {
	if state := os.Getenv("XDG_STATE_HOME"); state != "" {
		return filepath.Join(state, appDir)
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".", "."+appDir)
	}
	if isDir(filepath.Join(home, "Library")) {
		return filepath.Join(home, "Library", "Application Support", appDir)
	}
	if isDir(filepath.Join(home, "AppData")) {
		return filepath.Join(home, "AppData", "Local", appDir)
	}
	return filepath.Join(home, ".local", "state", appDir)
}

// CheckpointDir is the pebble database holding consumer checkpoints.
func (c Config) CheckpointDir() string {
	return filepath.Join(c.DataDir, "checkpoints")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
