package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	perrors "github.com/matzehuels/psresget/pkg/errors"
	"github.com/matzehuels/psresget/pkg/inventory"
)

const (
	// AppName is the application name used for directories.
	AppName = "psresget"
	// FileName is the config file name inside [Dir].
	FileName = "config.toml"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "PSRESGET"
)

// Scope selects which package store an install writes to.
type Scope string

const (
	CurrentUser Scope = "CurrentUser"
	AllUsers    Scope = "AllUsers"
)

// ParseScope parses a scope name case-insensitively. Empty means CurrentUser.
func ParseScope(s string) (Scope, error) {
	switch {
	case s == "", strings.EqualFold(s, string(CurrentUser)):
		return CurrentUser, nil
	case strings.EqualFold(s, string(AllUsers)):
		return AllUsers, nil
	}
	return "", perrors.New(perrors.ErrCodeInvalidInput, "unknown scope %q (want CurrentUser or AllUsers)", s)
}

// Cache backends.
const (
	CacheFile  = "file"
	CacheRedis = "redis"
	CacheNone  = "none"
)

// Config holds all psresget settings.
type Config struct {
	Scope        string `mapstructure:"scope"`
	Workers      int    `mapstructure:"workers"`
	Repositories string `mapstructure:"repositories_file"`
	Credentials  string `mapstructure:"credentials_dir"`
	Staging      string `mapstructure:"staging_dir"`

	Paths PathsConfig `mapstructure:"paths"`
	Cache CacheConfig `mapstructure:"cache"`
}

// PathsConfig holds the package store roots of both scopes.
type PathsConfig struct {
	CurrentUser ScopePaths `mapstructure:"current_user"`
	AllUsers    ScopePaths `mapstructure:"all_users"`
}

// ScopePaths is one scope's module and script roots.
type ScopePaths struct {
	Modules string `mapstructure:"modules"`
	Scripts string `mapstructure:"scripts"`
}

// CacheConfig configures the feed metadata cache.
type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	Dir     string        `mapstructure:"dir"`
	TTL     time.Duration `mapstructure:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

// RedisConfig configures the redis cache backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LoadOptions overrides where configuration is read from.
type LoadOptions struct {
	// File is an explicit config file. It must exist.
	File string
	// Dir replaces [Dir] when File is empty.
	Dir string
}

// Dir returns the configuration directory ($XDG_CONFIG_HOME/psresget,
// defaulting to ~/.config/psresget).
func Dir() (string, error) {
	if home := os.Getenv("XDG_CONFIG_HOME"); home != "" {
		return filepath.Join(home, AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".config", AppName), nil
}

// CacheDir returns the cache directory ($XDG_CACHE_HOME/psresget,
// defaulting to ~/.cache/psresget).
func CacheDir() (string, error) {
	if home := os.Getenv("XDG_CACHE_HOME"); home != "" {
		return filepath.Join(home, AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".cache", AppName), nil
}

// dataDir follows the PowerShell layout: $XDG_DATA_HOME/powershell,
// defaulting to ~/.local/share/powershell.
func dataDir() (string, error) {
	if home := os.Getenv("XDG_DATA_HOME"); home != "" {
		return filepath.Join(home, "powershell"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".local", "share", "powershell"), nil
}

// Default returns the configuration used when nothing is overridden.
func Default() (*Config, error) {
	cfgDir, err := Dir()
	if err != nil {
		return nil, err
	}
	cacheDir, err := CacheDir()
	if err != nil {
		return nil, err
	}
	data, err := dataDir()
	if err != nil {
		return nil, err
	}
	return &Config{
		Scope:        string(CurrentUser),
		Workers:      4,
		Repositories: filepath.Join(cfgDir, "repositories.toml"),
		Credentials:  filepath.Join(cfgDir, "credentials"),
		Paths: PathsConfig{
			CurrentUser: ScopePaths{
				Modules: filepath.Join(data, "Modules"),
				Scripts: filepath.Join(data, "Scripts"),
			},
			AllUsers: ScopePaths{
				Modules: "/usr/local/share/powershell/Modules",
				Scripts: "/usr/local/share/powershell/Scripts",
			},
		},
		Cache: CacheConfig{
			Backend: CacheFile,
			Dir:     cacheDir,
			TTL:     time.Hour,
			Redis:   RedisConfig{Addr: "localhost:6379"},
		},
	}, nil
}

// Load reads the configuration. The returned path is the config file that
// was read, or empty when only defaults and environment applied.
func Load(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", fmt.Errorf("load config canceled: %w", err)
	}

	defaults, err := Default()
	if err != nil {
		return nil, "", err
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.SetDefault("scope", defaults.Scope)
	v.SetDefault("workers", defaults.Workers)
	v.SetDefault("repositories_file", defaults.Repositories)
	v.SetDefault("credentials_dir", defaults.Credentials)
	v.SetDefault("staging_dir", defaults.Staging)
	v.SetDefault("paths.current_user.modules", defaults.Paths.CurrentUser.Modules)
	v.SetDefault("paths.current_user.scripts", defaults.Paths.CurrentUser.Scripts)
	v.SetDefault("paths.all_users.modules", defaults.Paths.AllUsers.Modules)
	v.SetDefault("paths.all_users.scripts", defaults.Paths.AllUsers.Scripts)
	v.SetDefault("cache.backend", defaults.Cache.Backend)
	v.SetDefault("cache.dir", defaults.Cache.Dir)
	v.SetDefault("cache.ttl", defaults.Cache.TTL)
	v.SetDefault("cache.redis.addr", defaults.Cache.Redis.Addr)
	v.SetDefault("cache.redis.password", defaults.Cache.Redis.Password)
	v.SetDefault("cache.redis.db", defaults.Cache.Redis.DB)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := opts.File
	if path == "" {
		dir := opts.Dir
		if dir == "" {
			if dir, err = Dir(); err != nil {
				return nil, "", err
			}
		}
		path = filepath.Join(dir, FileName)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = ""
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, "", perrors.Wrap(perrors.ErrCodeInvalidInput, err, "read config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, path, nil
}

// Validate checks settings that decoding alone cannot.
func (c *Config) Validate() error {
	if _, err := ParseScope(c.Scope); err != nil {
		return err
	}
	if c.Workers < 1 {
		return perrors.New(perrors.ErrCodeInvalidInput, "workers must be at least 1, got %d", c.Workers)
	}
	switch c.Cache.Backend {
	case CacheFile, CacheRedis, CacheNone:
	default:
		return perrors.New(perrors.ErrCodeInvalidInput, "unknown cache backend %q (want file, redis or none)", c.Cache.Backend)
	}
	if c.Cache.TTL < 0 {
		return perrors.New(perrors.ErrCodeInvalidInput, "cache ttl cannot be negative")
	}
	return nil
}

// Layout returns the package store layout for scope. Install and script
// roots come from scope; module roots of the other scope and any
// PSModulePath entries are added as search roots.
func (c *Config) Layout(scope Scope) inventory.Layout {
	own, other := c.Paths.CurrentUser, c.Paths.AllUsers
	if scope == AllUsers {
		own, other = other, own
	}

	layout := inventory.Layout{ModuleRoot: own.Modules, ScriptRoot: own.Scripts}
	seen := map[string]bool{filepath.Clean(own.Modules): true}
	add := func(root string) {
		if root == "" {
			return
		}
		clean := filepath.Clean(root)
		if seen[clean] {
			return
		}
		seen[clean] = true
		layout.SearchModuleRoots = append(layout.SearchModuleRoots, clean)
	}
	add(other.Modules)
	for _, root := range filepath.SplitList(os.Getenv("PSModulePath")) {
		add(root)
	}
	return layout
}
