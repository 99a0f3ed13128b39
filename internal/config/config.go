package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
)

// Config represents the optional recall configuration file.
type Config struct {
	Profiles map[string]Profile `toml:"profiles"`
	Defaults DefaultsConfig     `toml:"defaults"`
	Theme    ThemeConfig        `toml:"theme"`
}

// DefaultsConfig holds persistent flag defaults.
type DefaultsConfig struct {
	Workers      *int    `toml:"workers"`
	CheckContent *bool   `toml:"check_content"`
	Keep         *int    `toml:"keep"`
	BWLimit      *string `toml:"bwlimit"`
	Hash         *string `toml:"hash"`
	MtimeWindow  *string `toml:"mtime_window"`
	CrossVolume  *string `toml:"cross_volume"`
}

// Profile is a saved backup job selected with --profile.
type Profile struct {
	CheckContent *bool    `toml:"check_content"`
	UseSnapshot  *bool    `toml:"use_snapshot"`
	Source       string   `toml:"source"`
	Destination  string   `toml:"destination"`
	Exclude      []string `toml:"exclude"`
}

// ThemeConfig holds optional color overrides for the summary line.
type ThemeConfig struct {
	Green  *string `toml:"green"`
	Yellow *string `toml:"yellow"`
	Red    *string `toml:"red"`
	Muted  *string `toml:"muted"`
	Bright *string `toml:"bright"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "recall", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}
	return LoadFile(path)
}

// LoadFile reads the config file at path. A missing file yields a zero
// Config.
func LoadFile(path string) (Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("parse %s: unknown key %q", path, undecoded[0].String())
	}
	return cfg, nil
}

// Profile returns the named profile.
func (c Config) Profile(name string) (Profile, error) {
	p, ok := c.Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("no profile %q in %s (have %v)", name, Path(), c.ProfileNames())
	}
	return p, nil
}

// ProfileNames returns the configured profile names, sorted.
func (c Config) ProfileNames() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
