// Package config loads the persisted settings and resolves which
// backend mode the process runs in.
//
// Settings live in a YAML file (default $XDG_CONFIG_HOME/memod/config.yaml)
// and every key can be overridden through MEMOD_* environment variables,
// e.g. MEMOD_CLOUD_API_KEY overrides cloud.api_key.
//
// The mode preference is read once per process. Changing it rewrites the
// settings file; a running process keeps its current backend until
// restart, since swapping backends mid-session would mix two unrelated
// id spaces.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/memod-dev/memod/internal/backend"
)

// Mode is the persisted backend preference.
type Mode string

const (
	// ModeAuto picks local when an embedded store is usable, cloud
	// otherwise.
	ModeAuto Mode = "auto"

	// ModeLocal forces the embedded SQLite store.
	ModeLocal Mode = "local"

	// ModeCloud forces the hosted store.
	ModeCloud Mode = "cloud"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeAuto, ModeLocal, ModeCloud:
		return Mode(s), nil
	default:
		return "", backend.WrapConfiguration("invalid mode %q (want auto, local or cloud)", s)
	}
}

// DefaultPollInterval is the refresh cadence used when the settings
// file does not override poll_interval.
const DefaultPollInterval = 15 * time.Second

// Settings holds everything the process reads from the config file.
type Settings struct {
	// Mode is the persisted backend preference.
	Mode Mode

	// LocalPath is the embedded database file.
	LocalPath string

	// CloudURL and CloudAPIKey configure the hosted backend.
	CloudURL    string
	CloudAPIKey string

	// PollInterval is the refresh cadence for the polling notifier.
	PollInterval time.Duration

	// LogFile, when set, routes logs to a rotated file instead of
	// stderr.
	LogFile string
}

// DefaultPath returns the settings file location honoring
// $XDG_CONFIG_HOME.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(dir, "memod", "config.yaml"), nil
}

// DefaultDataPath returns the default embedded database location,
// honoring $XDG_DATA_HOME.
func DefaultDataPath() (string, error) {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "memod", "memod.db"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "memod", "memod.db"), nil
}

// newViper builds a viper instance with defaults, env binding and the
// file location wired in.
func newViper(path string) (*viper.Viper, error) {
	dataPath, err := DefaultDataPath()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("mode", string(ModeAuto))
	v.SetDefault("local.path", dataPath)
	v.SetDefault("cloud.url", "")
	v.SetDefault("cloud.api_key", "")
	v.SetDefault("poll_interval", DefaultPollInterval)
	v.SetDefault("log.file", "")

	v.SetEnvPrefix("MEMOD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// Load reads settings from path. A missing file is not an error: the
// defaults (plus any environment overrides) apply.
func Load(path string) (*Settings, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil && !ignorableReadError(err) {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	mode, err := ParseMode(v.GetString("mode"))
	if err != nil {
		return nil, err
	}

	pollInterval := v.GetDuration("poll_interval")
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	return &Settings{
		Mode:         mode,
		LocalPath:    v.GetString("local.path"),
		CloudURL:     v.GetString("cloud.url"),
		CloudAPIKey:  v.GetString("cloud.api_key"),
		PollInterval: pollInterval,
		LogFile:      v.GetString("log.file"),
	}, nil
}

// SetMode persists a new mode preference, creating the settings file
// if needed. Other keys in an existing file are preserved.
func SetMode(path string, mode Mode) error {
	if _, err := ParseMode(string(mode)); err != nil {
		return err
	}

	v, err := newViper(path)
	if err != nil {
		return err
	}
	if err := v.ReadInConfig(); err != nil && !ignorableReadError(err) {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}

	v.Set("mode", string(mode))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

// ignorableReadError reports whether a ReadInConfig failure just means
// the settings file does not exist yet.
func ignorableReadError(err error) bool {
	if os.IsNotExist(err) {
		return true
	}
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound)
}

// Resolve maps the persisted preference onto a concrete backend mode.
//
// An explicit preference is honored; requesting local when no embedded
// store is usable is a configuration error. Auto prefers local and
// falls back to cloud.
func Resolve(pref Mode, localAvailable bool) (Mode, error) {
	switch pref {
	case ModeLocal:
		if !localAvailable {
			return "", backend.WrapConfiguration("local mode requested but the embedded store is not usable")
		}
		return ModeLocal, nil
	case ModeCloud:
		return ModeCloud, nil
	case ModeAuto:
		if localAvailable {
			return ModeLocal, nil
		}
		return ModeCloud, nil
	default:
		return "", backend.WrapConfiguration("invalid mode %q", pref)
	}
}
