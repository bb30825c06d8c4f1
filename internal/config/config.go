// Package config provides runtime configuration via viper.
//
// Settings come from three layers, highest precedence first: BEADS_*
// environment variables, an optional .beads/config.yaml found by walking up
// from the working directory, and built-in defaults. Workspace metadata
// (prefix, history retention) lives in config.json and is handled by the
// configfile package, not here.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var v *viper.Viper

// Initialize sets up the viper singleton. Call once at startup.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	// Walk up from CWD to find a project .beads/config.yaml so commands work
	// from subdirectories.
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			configPath := filepath.Join(dir, ".beads", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				break
			}
		}
	}

	v.SetEnvPrefix("BEADS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("json", false)
	v.SetDefault("actor", "")
	v.SetDefault("debug", false)
	v.SetDefault("lock-timeout", "10s")
	v.SetDefault("busy-timeout", "5s")
	v.SetDefault("allow-stale", false)
	v.SetDefault("import.lenient", false)
	v.SetDefault("compact.model", "claude-3-5-haiku-20241022")
	v.SetDefault("compact.after-days", 90)

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}
	return nil
}

func ensure() *viper.Viper {
	if v == nil {
		_ = Initialize()
	}
	return v
}

// GetString returns a string setting.
func GetString(key string) string { return ensure().GetString(key) }

// GetBool returns a boolean setting.
func GetBool(key string) bool { return ensure().GetBool(key) }

// GetInt returns an integer setting.
func GetInt(key string) int { return ensure().GetInt(key) }

// GetDuration returns a duration setting.
func GetDuration(key string) time.Duration { return ensure().GetDuration(key) }

// Set overrides a setting for the current process.
func Set(key string, value interface{}) { ensure().Set(key, value) }

// Actor resolves the acting identity from the actor setting (BEADS_ACTOR or
// the config file), falling back to $USER and then "unknown". The --actor
// flag is handled by the CLI before this is consulted.
func Actor() string {
	if a := GetString("actor"); a != "" {
		return a
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}
