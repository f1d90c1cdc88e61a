package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/canvasgraph/pkg/cache"
	"github.com/matzehuels/canvasgraph/pkg/config"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the layout cache",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached layouts and renders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runCacheClear(cmd.Context())
		},
	}
}

func (c *CLI) runCacheClear(ctx context.Context) error {
	cc, err := c.newCache(ctx, false)
	if err != nil {
		return err
	}
	defer cc.Close()

	var count int
	switch cc := cc.(type) {
	case *cache.FileCache:
		count, err = cc.Clear()
		if err == nil {
			defer printDetail("Directory: %s", cc.Dir())
		}
	case *cache.RedisCache:
		count, err = cc.Clear(ctx)
	default:
		printInfo("The %s cache keeps nothing to clear", c.Config.Cache.Backend)
		return nil
	}
	if err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	if count == 0 {
		printInfo("Cache is empty")
		return nil
	}
	printSuccess("Cleared %d cached entries", count)
	return nil
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print where the cache lives",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch c.Config.Cache.Backend {
			case config.BackendRedis:
				fmt.Fprintf(stdout, "redis://%s/%d\n", c.Config.Redis.Addr, c.Config.Redis.DB)
				return nil
			case config.BackendFile:
				dir, err := c.Config.CacheDir()
				if err != nil {
					return fmt.Errorf("get cache dir: %w", err)
				}
				fmt.Fprintln(stdout, dir)
				return nil
			}
			printInfo("The %s cache has no location", c.Config.Cache.Backend)
			return nil
		},
	}
}
