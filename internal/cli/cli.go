package cli

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/psresget/internal/config"
	"github.com/matzehuels/psresget/pkg/buildinfo"
	"github.com/matzehuels/psresget/pkg/cache"
	"github.com/matzehuels/psresget/pkg/credential"
	"github.com/matzehuels/psresget/pkg/feed"
	"github.com/matzehuels/psresget/pkg/feed/sources"
	"github.com/matzehuels/psresget/pkg/host"
	"github.com/matzehuels/psresget/pkg/install"
)

// =============================================================================
// Constants
// =============================================================================

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// Host answers confirmations and shows progress. Nil means the terminal.
	Host host.Host

	configFile string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "psresget",
		Short:        "psresget installs PowerShell modules and scripts from NuGet feeds",
		Long:         `psresget resolves packages and their dependencies against registered repositories and installs them into the local PowerShell package store.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configFile, "config", "", "config file (default $XDG_CONFIG_HOME/psresget/config.toml)")

	root.AddCommand(c.installCommand())
	root.AddCommand(c.updateCommand())
	root.AddCommand(c.findCommand())
	root.AddCommand(c.listCommand())
	root.AddCommand(c.planCommand())
	root.AddCommand(c.repoCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Runtime Environment
// =============================================================================

// env is everything a command needs after configuration is loaded.
type env struct {
	cfg      *config.Config
	registry *feed.Registry
	creds    *credential.FileStore
	cache    cache.Cache
	logger   *log.Logger
	host     host.Host
}

// loadConfig reads the configuration honoring --config.
func (c *CLI) loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, path, err := config.Load(ctx, config.LoadOptions{File: c.configFile})
	if err != nil {
		return nil, err
	}
	if path != "" {
		c.Logger.Debug("loaded config", "path", path)
	}
	return cfg, nil
}

// env loads configuration, the repository registry and the credential store,
// and opens the metadata cache. Callers must Close the result.
func (c *CLI) env(ctx context.Context, noCache bool) (*env, error) {
	cfg, err := c.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	reg, err := feed.LoadRegistry(cfg.Repositories)
	if err != nil {
		return nil, err
	}
	creds, err := credential.NewFileStore(cfg.Credentials)
	if err != nil {
		return nil, err
	}

	h := c.Host
	if h == nil {
		h = newTerminalHost()
	}
	return &env{
		cfg:      cfg,
		registry: reg,
		creds:    creds,
		cache:    c.openCache(ctx, cfg, noCache),
		logger:   loggerFromContext(ctx),
		host:     h,
	}, nil
}

// openCache opens the configured cache backend. A backend that cannot be
// opened degrades to no caching.
func (c *CLI) openCache(ctx context.Context, cfg *config.Config, noCache bool) cache.Cache {
	if noCache {
		return cache.NewNullCache()
	}
	switch cfg.Cache.Backend {
	case config.CacheFile:
		fc, err := cache.NewFileCache(cfg.Cache.Dir)
		if err != nil {
			c.Logger.Warn("file cache disabled", "dir", cfg.Cache.Dir, "err", err)
			return cache.NewNullCache()
		}
		return fc
	case config.CacheRedis:
		rc, err := cache.NewRedisCache(ctx, cache.RedisOptions{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		if err != nil {
			c.Logger.Warn("redis cache disabled", "addr", cfg.Cache.Redis.Addr, "err", err)
			return cache.NewNullCache()
		}
		return rc
	default:
		return cache.NewNullCache()
	}
}

func (e *env) Close() error {
	return e.cache.Close()
}

// repositories returns the repositories to try, in fallback order, with
// stored credentials attached. A non-empty credName attaches that stored
// credential to every repository instead.
func (e *env) repositories(ctx context.Context, names []string, credName string) ([]feed.Repository, error) {
	repos, err := e.registry.Ordered(names...)
	if err != nil {
		return nil, err
	}
	if credName != "" {
		cred, err := e.creds.Get(ctx, credName)
		if err != nil {
			return nil, err
		}
		if cred == nil {
			return nil, errNoCredential(credName)
		}
		for i := range repos {
			repos[i].Credential = cred
		}
	}
	return e.creds.Attach(ctx, repos)
}

// selector wires the feed opener, engine and selector.
func (e *env) selector(refresh bool) *install.Selector {
	open := sources.Opener(sources.Options{
		Cache:   e.cache,
		TTL:     e.cfg.Cache.TTL,
		Refresh: refresh,
	})
	engine := install.NewEngine(open, e.host, install.WithLogger(e.logger))
	return install.NewSelector(engine)
}
