package config

import (
	"path/filepath"
	"time"
)

// Snapshot is the slice of the process environment that settings depend on.
// The CLI fills it through viper; tests construct it directly.
type Snapshot struct {
	HDMHome     string `mapstructure:"home"`
	Home        string `mapstructure:"user_home"`
	UserProfile string `mapstructure:"user_profile"`
	Env         string `mapstructure:"env"`
	Manifest    string `mapstructure:"manifest"`
}

// Settings are the resolved, immutable process settings.
type Settings struct {
	Home              string
	Env               string
	Manifest          string
	ProfilePath       string
	FilePrefix        string
	StateTable        string
	ArchiveFolder     string
	MaxAttempts       int
	ConnectionTimeout time.Duration
	QueryLimit        int
}

const (
	DefaultEnv               = "dev"
	DefaultProfilePath       = ".hashmap_data_migrator/hdm_profiles.yml"
	DefaultFilePrefix        = "hdm"
	DefaultStateTable        = "state_manager"
	DefaultArchiveFolder     = "archive"
	DefaultMaxAttempts       = 3
	DefaultConnectionTimeout = 3 * time.Second
	DefaultQueryLimit        = 250
)

// Resolve computes Settings from s. HDM_HOME wins over HOME, which wins over
// USERPROFILE; the environment defaults to dev. Resolve has no side effects.
func Resolve(s Snapshot) Settings {
	home := s.HDMHome
	if home == "" {
		home = s.Home
	}
	if home == "" {
		home = s.UserProfile
	}

	env := s.Env
	if env == "" {
		env = DefaultEnv
	}

	return Settings{
		Home:              home,
		Env:               env,
		Manifest:          s.Manifest,
		ProfilePath:       DefaultProfilePath,
		FilePrefix:        DefaultFilePrefix,
		StateTable:        DefaultStateTable,
		ArchiveFolder:     DefaultArchiveFolder,
		MaxAttempts:       DefaultMaxAttempts,
		ConnectionTimeout: DefaultConnectionTimeout,
		QueryLimit:        DefaultQueryLimit,
	}
}

// ProfileFile is the absolute location of the profiles file.
func (s Settings) ProfileFile() string {
	return filepath.Join(s.Home, s.ProfilePath)
}

// ManifestName is the base name of the manifest path, stamped on ledger rows.
func (s Settings) ManifestName() string {
	if s.Manifest == "" {
		return ""
	}
	return filepath.Base(s.Manifest)
}
