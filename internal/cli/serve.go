package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/matzehuels/canvasgraph/internal/server"
	"github.com/matzehuels/canvasgraph/pkg/collab"
	"github.com/matzehuels/canvasgraph/pkg/controller"
	"github.com/matzehuels/canvasgraph/pkg/observability/prom"
	"github.com/matzehuels/canvasgraph/pkg/placement"
)

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		addr    string
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve canvases over HTTP and websockets",
		Long: `Serve canvases over HTTP and websockets.

Each canvas is loaded from the configured store on first access and shared by
all clients until the server stops. Edits are published on the configured
transport; with the redis transport several servers can serve the same
canvas. Canvases are flushed to the store periodically and on shutdown.

Prometheus metrics are exposed at /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				c.Config.Server.Addr = addr
			}
			return c.runServe(cmd.Context(), noCache)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (default from config, :8080)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable layout caching")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, noCache bool) (err error) {
	logger := loggerFromContext(ctx)
	cfg := c.Config

	st, err := c.newStore(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { err = errors.Join(err, st.Close()) }()

	transport, err := c.newTransport(ctx)
	if err != nil {
		return fmt.Errorf("open transport: %w", err)
	}
	defer func() { err = errors.Join(err, transport.Close()) }()

	runner, err := c.newRunner(ctx, noCache)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer func() { err = errors.Join(err, runner.Close()) }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom.New(reg).Install()

	planner := placement.New(append(cfg.PlacementOptions(), placement.WithLogger(logger))...)
	registry := collab.NewRegistry(transport, st,
		collab.WithLogger(logger),
		collab.WithFlushInterval(cfg.Server.FlushInterval.Duration),
		collab.WithControllerOptions(
			controller.WithLogger(logger),
			controller.WithPlanner(planner),
			controller.WithLayoutOptions(cfg.LayoutOptions()),
			controller.WithAutoLayout(cfg.Layout.AutoLayout),
		),
	)

	srv := server.New(server.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout.Duration,
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration,
	}, registry, transport, runner,
		server.WithLogger(logger),
		server.WithGatherer(reg),
		server.WithLayoutOptions(cfg.LayoutOptions()),
		server.WithSpacing(cfg.Spacing()),
	)

	logger.Info("starting server",
		"store", cfg.Store.Backend,
		"transport", cfg.Server.Transport,
		"cache", cfg.Cache.Backend)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
