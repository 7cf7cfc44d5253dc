// Package buildcfg holds the generator's "build-time toggles" (spec §6):
// randomized_delay, use_runparts, persistent, use_loglevelmax, statedir,
// libdir and the package name used to compose ExecStartPre.
//
// In the original distro package these are frozen by string substitution
// at packaging time. This module has no packaging-time substitution
// step, so they are compiled-in defaults that can optionally be
// overridden by an on-disk TOML file, loaded the same way the teacher's
// internal/config.parseConfigFile loads provisr's own config: a fresh
// viper.Viper, SetConfigFile, ReadInConfig, Unmarshal.
package buildcfg

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Toggles holds every build-time-frozen default the pipeline consults.
type Toggles struct {
	RandomizedDelay bool   `mapstructure:"randomized_delay"`
	UseRunParts     bool   `mapstructure:"use_runparts"`
	Persistent      bool   `mapstructure:"persistent"`
	UseLogLevelMax  string `mapstructure:"use_loglevelmax"` // "no" disables LogLevelMax
	StateDir        string `mapstructure:"statedir"`
	LibDir          string `mapstructure:"libdir"`
	Package         string `mapstructure:"package"`
	UnitDir         string `mapstructure:"unitdir"`
}

// Defaults returns the toggle set matching upstream's usual packaging
// (systemd-cron on a standard distro layout).
func Defaults() Toggles {
	return Toggles{
		RandomizedDelay: true,
		UseRunParts:     false,
		Persistent:      true,
		UseLogLevelMax:  "no",
		StateDir:        "/var/spool/cron/crontabs",
		LibDir:          "/usr/lib",
		Package:         "systemd-cron",
		UnitDir:         "/lib/systemd/system",
	}
}

// Load returns Defaults() optionally overridden by the TOML/YAML/JSON file
// at path. An empty path, or a path that doesn't exist, is not an error —
// the compiled-in defaults stand.
func Load(path string) (Toggles, error) {
	t := Defaults()
	if path == "" {
		return t, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			return t, nil
		}
		return t, fmt.Errorf("failed to read build-time toggle file: %w", err)
	}
	if err := v.Unmarshal(&t); err != nil {
		return t, fmt.Errorf("failed to unmarshal build-time toggle file: %w", err)
	}
	return t, nil
}
