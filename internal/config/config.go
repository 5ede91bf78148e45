// Package config loads the two persisted configuration layers: a
// repo-local config (.canaveral/config.json, holding cache directory,
// default concurrency, and versioning mode) and a user-global config
// (~/.canaveral/config.json). It is split into a RepoConfig/UserConfig
// pair, each a thin wrapper over its own github.com/spf13/viper instance
// bound to CLI flags and env vars with the CANAVERAL_ prefix.
package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lucasilverentand/canaveral/internal/version"
)

const (
	defaultCacheDir       = ".canaveral/cache"
	defaultConcurrency    = 0 // 0 means "runtime.NumCPU()", resolved by the scheduler
	defaultVersioningMode = "independent"
)

// RepoConfig is the repository-local configuration: cache location,
// scheduler concurrency, and versioning mode, persisted at
// <root>/.canaveral/config.json.
type RepoConfig struct {
	v    *viper.Viper
	path string
}

// CacheDir returns the configured cache directory, relative to the
// workspace root unless absolute.
func (rc *RepoConfig) CacheDir() string {
	return rc.v.GetString("cacheDir")
}

// Concurrency returns the configured scheduler concurrency, or 0 to mean
// "use all logical CPUs" (internal/scheduler.DefaultOptions's fallback).
func (rc *RepoConfig) Concurrency() int {
	return rc.v.GetInt("concurrency")
}

// VersioningMode returns the configured versioning.Mode.
func (rc *RepoConfig) VersioningMode() version.Mode {
	switch rc.v.GetString("versioningMode") {
	case "fixed":
		return version.Fixed
	case "grouped":
		return version.Grouped
	default:
		return version.Independent
	}
}

// Groups returns the named package groups used when VersioningMode is
// Grouped.
func (rc *RepoConfig) Groups() map[string][]string {
	raw := rc.v.GetStringMapStringSlice("groups")
	if raw == nil {
		return map[string][]string{}
	}
	return raw
}

// Write persists the current values back to path, creating parent
// directories as needed.
func (rc *RepoConfig) Write() error {
	if err := os.MkdirAll(filepath.Dir(rc.path), 0o755); err != nil {
		return err
	}
	return rc.v.WriteConfig()
}

// ReadRepoConfigFile loads (or defaults) the repo config at path. The file
// need not exist yet; defaults apply until Write is called.
func ReadRepoConfigFile(path string, flags *pflag.FlagSet) (*RepoConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("canaveral")
	v.SetDefault("cacheDir", defaultCacheDir)
	v.SetDefault("concurrency", defaultConcurrency)
	v.SetDefault("versioningMode", defaultVersioningMode)
	_ = v.BindEnv("cacheDir", "CANAVERAL_CACHE_DIR")
	_ = v.BindEnv("concurrency", "CANAVERAL_CONCURRENCY")
	_ = v.BindEnv("versioningMode", "CANAVERAL_VERSIONING_MODE")
	if flags != nil {
		if f := flags.Lookup("concurrency"); f != nil {
			_ = v.BindPFlag("concurrency", f)
		}
		if f := flags.Lookup("cache-dir"); f != nil {
			_ = v.BindPFlag("cacheDir", f)
		}
	}
	if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return &RepoConfig{v: v, path: path}, nil
}

// AddRepoConfigFlags adds the flags RepoConfig binds to, to flags.
func AddRepoConfigFlags(flags *pflag.FlagSet) {
	flags.Int("concurrency", defaultConcurrency, "Limit the number of concurrently executing tasks (0 = all logical CPUs)")
	flags.String("cache-dir", defaultCacheDir, "Override the task cache directory")
}

// GetRepoConfigPath returns <root>/.canaveral/config.json.
func GetRepoConfigPath(root string) string {
	return filepath.Join(root, ".canaveral", "config.json")
}

// UserConfig is the user-global configuration persisted at
// ~/.canaveral/config.json. It currently holds only editor/telemetry-style
// preferences; credential storage is handled by external collaborators and
// is never modeled here.
type UserConfig struct {
	v    *viper.Viper
	path string
}

// TelemetryDisabled reports whether the user opted out of anonymous usage
// telemetry (an ambient CLI concern outside the core, carried here so
// `canaveral init` has somewhere to persist the choice).
func (uc *UserConfig) TelemetryDisabled() bool {
	return uc.v.GetBool("telemetryDisabled")
}

// SetTelemetryDisabled persists the telemetry opt-out choice.
func (uc *UserConfig) SetTelemetryDisabled(disabled bool) error {
	if err := uc.v.MergeConfigMap(map[string]interface{}{"telemetryDisabled": disabled}); err != nil {
		return err
	}
	return uc.write()
}

func (uc *UserConfig) write() error {
	if err := os.MkdirAll(filepath.Dir(uc.path), 0o755); err != nil {
		return err
	}
	return uc.v.WriteConfig()
}

// ReadUserConfigFile loads (or defaults) the user config at path.
func ReadUserConfigFile(path string) (*UserConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("canaveral")
	v.SetDefault("telemetryDisabled", false)
	if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return &UserConfig{v: v, path: path}, nil
}
