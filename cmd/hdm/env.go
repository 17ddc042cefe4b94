package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ajitpratap0/hdm/pkg/config"
	"github.com/ajitpratap0/hdm/pkg/errors"
	"github.com/ajitpratap0/hdm/pkg/logger"
)

// commonFlags are shared by the commands that load a manifest.
type commonFlags struct {
	env       string
	logLevel  string
	logFormat string
	logFile   string
}

func (f *commonFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.env, "env", "e", "", "Profile environment (overrides HDM_ENV)")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&f.logFormat, "log-format", "json", "Log encoding (json, console)")
	cmd.Flags().StringVar(&f.logFile, "log-file", "", "Write logs to this file instead of stdout")
}

func (f *commonFlags) initLogger() error {
	cfg := logger.Config{Level: f.logLevel, Encoding: f.logFormat}
	if f.logFile != "" {
		cfg.OutputPaths = []string{f.logFile}
	}
	return logger.Init(cfg)
}

// snapshot reads the process environment through viper. HDM_HOME, HDM_ENV
// and HDM_MANIFEST use the HDM_ prefix; HOME and USERPROFILE are read as is.
func snapshot(cmd *cobra.Command) (config.Snapshot, error) {
	v := viper.New()
	v.SetEnvPrefix("HDM")
	for _, key := range []string{"home", "env", "manifest"} {
		if err := v.BindEnv(key); err != nil {
			return config.Snapshot{}, err
		}
	}
	if err := v.BindEnv("user_home", "HOME"); err != nil {
		return config.Snapshot{}, err
	}
	if err := v.BindEnv("user_profile", "USERPROFILE"); err != nil {
		return config.Snapshot{}, err
	}
	if f := cmd.Flags().Lookup("env"); f != nil && f.Changed {
		if err := v.BindPFlag("env", f); err != nil {
			return config.Snapshot{}, err
		}
	}

	var s config.Snapshot
	if err := v.Unmarshal(&s); err != nil {
		return config.Snapshot{}, err
	}
	return s, nil
}

// loadRun resolves settings and loads the profiles and the manifest. The
// manifest is the first argument, else HDM_MANIFEST.
func loadRun(cmd *cobra.Command, args []string) (config.Settings, config.Profiles, *config.Manifest, error) {
	snap, err := snapshot(cmd)
	if err != nil {
		return config.Settings{}, nil, nil, err
	}
	if len(args) > 0 {
		snap.Manifest = args[0]
	}
	if snap.Manifest == "" {
		return config.Settings{}, nil, nil, errors.New(errors.ErrorTypeConfig, "no manifest given and HDM_MANIFEST is not set")
	}
	settings := config.Resolve(snap)
	manifestPath := settings.Manifest

	profiles, err := config.LoadProfiles(settings.ProfileFile())
	if err != nil {
		return settings, nil, nil, err
	}
	m, err := config.LoadManifest(manifestPath)
	if err != nil {
		return settings, nil, nil, err
	}
	return settings, profiles, m, nil
}
