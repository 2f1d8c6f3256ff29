package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupFile_Missing(t *testing.T) {
	// Given: no file
	// When: backing it up
	path, err := BackupFile(filepath.Join(t.TempDir(), "config.yaml"))

	// Then: nothing happens
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestBackupFile_KeepsNewest(t *testing.T) {
	// Given: a config file
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "version: 1\n")

	// When: backing it up more times than retained
	var last string
	for i := 0; i < MaxBackups+2; i++ {
		b, err := BackupFile(path)
		require.NoError(t, err)
		last = b
	}

	// Then: only MaxBackups remain and the newest is first
	backups, err := ListBackups(path)
	require.NoError(t, err)
	assert.Len(t, backups, MaxBackups)
	assert.Equal(t, last, backups[0])

	data, err := os.ReadFile(last)
	require.NoError(t, err)
	assert.Equal(t, "version: 1\n", string(data))
}

func TestInitUserConfig(t *testing.T) {
	// Given: an isolated user config location
	isolate(t)

	// When: initializing twice, then forcing
	path, backup, err := InitUserConfig(false)
	require.NoError(t, err)
	assert.Empty(t, backup)
	assert.FileExists(t, path)

	_, _, err = InitUserConfig(false)
	assert.Error(t, err)

	_, backup, err = InitUserConfig(true)

	// Then: the forced write backs up the previous file
	require.NoError(t, err)
	assert.FileExists(t, backup)
	assert.True(t, UserConfigExists())
}

func TestInitProjectConfig_TemplateLoadsAsDefaults(t *testing.T) {
	// Given: an empty project
	isolate(t)
	dir := t.TempDir()

	// When: writing the project template and loading it
	path, backup, err := InitProjectConfig(dir, false)
	require.NoError(t, err)
	assert.Empty(t, backup)
	assert.Equal(t, filepath.Join(dir, ProjectConfigYAML), path)

	cfg, err := Load(dir)

	// Then: every active key matches the built-in default
	require.NoError(t, err)
	want := NewConfig()
	want.resolvePaths(dir)
	assert.Equal(t, want, cfg)
}

func TestInitProjectConfig_Force(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectConfigYAML), "version: 1\n")

	_, _, err := InitProjectConfig(dir, false)
	assert.Error(t, err)

	_, backup, err := InitProjectConfig(dir, true)
	require.NoError(t, err)
	assert.FileExists(t, backup)
}
