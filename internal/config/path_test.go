package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultDataDirStateHome(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/custom/state")
	assert.Equal(t, filepath.Join("/custom/state", "flr"), DefaultDataDir())
}

func TestDefaultDataDirHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	assert.Equal(t, filepath.Join(home, ".local", "state", "flr"), DefaultDataDir())
}

func TestDefaultDataDirNoHome(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("HOME", "")
	t.Setenv("USERPROFILE", "")
	t.Setenv("home", "")
	assert.Equal(t, ".flr", DefaultDataDir())
}

func TestCheckpointDir(t *testing.T) {
	c := Config{DataDir: filepath.Join("var", "flr")}
	assert.Equal(t, filepath.Join("var", "flr", "checkpoints"), c.CheckpointDir())
}
