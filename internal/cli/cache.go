package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/psresget/internal/config"
	"github.com/matzehuels/psresget/pkg/cache"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the feed metadata cache",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear all cached feed listings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := c.loadConfig(ctx)
			if err != nil {
				return err
			}
			if cfg.Cache.Backend == config.CacheNone {
				printInfo("Cache is disabled")
				return nil
			}

			ch := c.openCache(ctx, cfg, false)
			defer ch.Close()
			clearer, ok := ch.(cache.Clearer)
			if !ok {
				printInfo("Cache is empty")
				return nil
			}
			if err := clearer.Clear(ctx); err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}

			printSuccess("Cleared cache")
			printDetail("Backend: %s (%s)", cfg.Cache.Backend, cacheLocation(cfg))
			return nil
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache location",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cacheLocation(cfg))
			return nil
		},
	}
}

// cacheLocation is the directory of a file cache or the address of a redis one.
func cacheLocation(cfg *config.Config) string {
	if cfg.Cache.Backend == config.CacheRedis {
		return "redis://" + cfg.Cache.Redis.Addr
	}
	return cfg.Cache.Dir
}
