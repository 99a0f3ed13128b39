package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/recall/internal/config"
)

func writeConfig(t *testing.T, content string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	configDir := filepath.Join(dir, "recall")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(content), 0o644))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Nil(t, cfg.Defaults.CheckContent)
	assert.Nil(t, cfg.Defaults.Workers)
	assert.Empty(t, cfg.Profiles)
	assert.Nil(t, cfg.Theme.Green)
}

func TestLoad_FullConfig(t *testing.T) {
	writeConfig(t, `
[defaults]
workers = 16
check_content = true
keep = 7
bwlimit = "100MB"
hash = "xxh3"
mtime_window = "2s"
cross_volume = "copy"

[profiles.home]
source = "/home/me"
destination = "/mnt/backup"
exclude = ["node_modules", "*.tmp"]
use_snapshot = false

[profiles.photos]
source = "/data/photos"
destination = "/mnt/archive"
check_content = true

[theme]
green = "#00ff00"
`)

	cfg, err := config.Load()
	require.NoError(t, err)

	require.NotNil(t, cfg.Defaults.Workers)
	assert.Equal(t, 16, *cfg.Defaults.Workers)
	require.NotNil(t, cfg.Defaults.CheckContent)
	assert.True(t, *cfg.Defaults.CheckContent)
	require.NotNil(t, cfg.Defaults.Keep)
	assert.Equal(t, 7, *cfg.Defaults.Keep)
	require.NotNil(t, cfg.Defaults.BWLimit)
	assert.Equal(t, "100MB", *cfg.Defaults.BWLimit)
	require.NotNil(t, cfg.Defaults.Hash)
	assert.Equal(t, "xxh3", *cfg.Defaults.Hash)
	require.NotNil(t, cfg.Defaults.MtimeWindow)
	assert.Equal(t, "2s", *cfg.Defaults.MtimeWindow)
	require.NotNil(t, cfg.Defaults.CrossVolume)
	assert.Equal(t, "copy", *cfg.Defaults.CrossVolume)

	assert.Equal(t, []string{"home", "photos"}, cfg.ProfileNames())
	home, err := cfg.Profile("home")
	require.NoError(t, err)
	assert.Equal(t, "/home/me", home.Source)
	assert.Equal(t, "/mnt/backup", home.Destination)
	assert.Equal(t, []string{"node_modules", "*.tmp"}, home.Exclude)
	require.NotNil(t, home.UseSnapshot)
	assert.False(t, *home.UseSnapshot)
	assert.Nil(t, home.CheckContent)

	photos, err := cfg.Profile("photos")
	require.NoError(t, err)
	require.NotNil(t, photos.CheckContent)
	assert.True(t, *photos.CheckContent)

	require.NotNil(t, cfg.Theme.Green)
	assert.Equal(t, "#00ff00", *cfg.Theme.Green)
	// Unset fields should remain nil.
	assert.Nil(t, cfg.Theme.Red)
}

func TestLoad_PartialConfig(t *testing.T) {
	writeConfig(t, `
[defaults]
keep = 3
`)

	cfg, err := config.Load()
	require.NoError(t, err)

	require.NotNil(t, cfg.Defaults.Keep)
	assert.Equal(t, 3, *cfg.Defaults.Keep)
	assert.Nil(t, cfg.Defaults.Workers)
	assert.Nil(t, cfg.Defaults.Hash)
	assert.Empty(t, cfg.Profiles)
}

func TestLoad_InvalidTOML(t *testing.T) {
	writeConfig(t, "invalid [[[")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoad_UnknownKey(t *testing.T) {
	writeConfig(t, `
[defaults]
verfiy = true
`)

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verfiy")
}

func TestProfile_Missing(t *testing.T) {
	_, err := config.Config{}.Profile("nope")
	assert.Error(t, err)
}

func TestLoadFile_Missing(t *testing.T) {
	cfg, err := config.LoadFile(filepath.Join(t.TempDir(), "none.toml"))
	require.NoError(t, err)
	assert.Nil(t, cfg.Defaults.Keep)
}

func TestPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	assert.Equal(t, "/custom/config/recall/config.toml", config.Path())

	t.Setenv("XDG_CONFIG_HOME", "")
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "recall", "config.toml"), config.Path())
}
