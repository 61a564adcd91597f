// Package config holds the process-wide settings singleton. Settings come
// from (highest precedence first) environment variables with the TMS prefix,
// a config.yaml discovered near the task file, and built-in defaults.
// Project-level sync mappings live in sync-config.json and are owned by the
// syncconfig package; this package covers only ambient knobs.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var v *viper.Viper

// Initialize sets up the viper configuration singleton.
// Should be called once at application startup.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	// Walk up from CWD to find a project .taskmaster/config.yaml so commands
	// work from subdirectories.
	configFileSet := false
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			configPath := filepath.Join(dir, ".taskmaster", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
				break
			}
		}
	}

	// Fall back to the user config directory (~/.config/tms/config.yaml).
	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			configPath := filepath.Join(configDir, "tms", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// Environment variables take precedence over the config file.
	// E.g. TMS_JSON, TMS_QUIET, TMS_CONCURRENCY, TMS_AUTO_CREATE_PROJECT.
	v.SetEnvPrefix("TMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("json", false)
	v.SetDefault("quiet", false)
	v.SetDefault("debounce", "400ms")
	v.SetDefault("concurrency", 8)
	v.SetDefault("request-timeout", "30s")
	v.SetDefault("auto-create-project", false)
	v.SetDefault("keep-orphans", false)
	v.SetDefault("watch-backoff-cap", "30s")

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}
	return nil
}

// ResetForTesting reinitializes the singleton. Tests that mutate settings or
// environment variables call this to restore a clean slate.
func ResetForTesting() {
	_ = Initialize()
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

// Set overrides a setting for the process lifetime (flag binding).
func Set(key string, value interface{}) { ensure().Set(key, value) }

// ConfigFileUsed reports which config file was loaded, if any.
func ConfigFileUsed() string { return ensure().ConfigFileUsed() }
