// Package cli implements the canvasgraph command-line interface.
//
// Commands:
//   - layout: full layered layout of a canvas file
//   - place: add a node to a canvas file where the canvas would put it
//   - relayout: re-flow the branch around one node
//   - dot: export a canvas as DOT, SVG, PNG or PDF
//   - serve: run the HTTP and websocket API
//   - watch: follow a live canvas in the terminal
//   - cache: inspect and clear the layout cache
//
// All commands accept --verbose and --config. Settings come from a TOML file
// (see package config); flags override them.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/canvasgraph/pkg/buildinfo"
	"github.com/matzehuels/canvasgraph/pkg/cache"
	"github.com/matzehuels/canvasgraph/pkg/collab"
	"github.com/matzehuels/canvasgraph/pkg/config"
	"github.com/matzehuels/canvasgraph/pkg/pipeline"
	"github.com/matzehuels/canvasgraph/pkg/store"
)

const appName = config.AppName

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger     *log.Logger
	Config     config.Config
	configPath string
	verbose    bool
}

// New creates a CLI that logs to w at level.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		Config: config.Default(),
	}
}

// Execute runs the command tree until ctx is done.
func Execute(ctx context.Context) error {
	return New(os.Stderr, LogInfo).RootCommand().ExecuteContext(ctx)
}

// RootCommand builds the command tree.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "canvasgraph keeps node canvases laid out and in sync",
		Long:          `canvasgraph lays out, places and synchronizes the nodes and edges of a collaborative canvas.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.verbose {
				c.Logger.SetLevel(LogDebug)
			}
			if err := c.loadConfig(); err != nil {
				return err
			}
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}
	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/canvasgraph/config.toml)")

	root.AddCommand(c.layoutCommand())
	root.AddCommand(c.placeCommand())
	root.AddCommand(c.relayoutCommand())
	root.AddCommand(c.dotCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.watchCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())
	return root
}

func (c *CLI) loadConfig() error {
	path := c.configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			c.Logger.Debug("no config path", "err", err)
			return nil
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	c.Config = cfg
	c.Logger.Debug("config loaded", "path", path)
	return nil
}

// =============================================================================
// Backends
// =============================================================================

// newRunner creates a pipeline runner backed by the configured cache.
func (c *CLI) newRunner(ctx context.Context, noCache bool) (*pipeline.Runner, error) {
	cc, err := c.newCache(ctx, noCache)
	if err != nil {
		return nil, err
	}
	// Entries written by other releases are never read back.
	keyer := cache.NewScopedKeyer(nil, buildinfo.Version+":")
	return pipeline.NewRunner(cc, keyer, c.Logger), nil
}

func (c *CLI) newCache(ctx context.Context, noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	switch c.Config.Cache.Backend {
	case config.BackendNone:
		return cache.NewNullCache(), nil
	case config.BackendMemory:
		return cache.NewMemoryCache(), nil
	case config.BackendRedis:
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     c.Config.Redis.Addr,
			Password: c.Config.Redis.Password,
			DB:       c.Config.Redis.DB,
			Prefix:   c.Config.Cache.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("connect cache: %w", err)
		}
		return rc, nil
	}
	dir, err := c.Config.CacheDir()
	if err != nil {
		c.Logger.Warn("cache disabled", "err", err)
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

func (c *CLI) newStore(ctx context.Context) (store.Store, error) {
	switch c.Config.Store.Backend {
	case config.BackendMemory:
		return store.NewMemoryStore(), nil
	case config.BackendMongo:
		return store.NewMongoStore(ctx, store.MongoConfig{URI: c.Config.Mongo.URI, Database: c.Config.Mongo.Database})
	}
	dir, err := c.Config.StoreDir()
	if err != nil {
		return nil, err
	}
	return store.NewFileStore(dir)
}

func (c *CLI) newTransport(ctx context.Context) (collab.Transport, error) {
	if c.Config.Server.Transport == config.BackendRedis {
		return collab.NewRedisTransport(ctx, collab.RedisConfig{
			Addr:     c.Config.Redis.Addr,
			Password: c.Config.Redis.Password,
			DB:       c.Config.Redis.DB,
		}, c.Logger)
	}
	return collab.NewMemoryTransport(), nil
}
