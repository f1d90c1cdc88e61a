package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/canvasgraph/pkg/canvas"
	"github.com/matzehuels/canvasgraph/pkg/graph"
)

// layoutCommand creates the layout command.
func (c *CLI) layoutCommand() *cobra.Command {
	var (
		direction string
		output    string
		noCache   bool
		write     bool
	)

	cmd := &cobra.Command{
		Use:   "layout [canvas.json]",
		Short: "Lay out every node of a canvas",
		Long: `Lay out every node of a canvas file.

The layout command ranks the canvas graph, orders each rank to reduce edge
crossings and assigns coordinates. By default the positions are written to
<input>.layout.json; with --write they are applied to the canvas file itself.

Results are cached, so laying out an unchanged canvas again is instant.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runLayout(cmd.Context(), args[0], direction, output, noCache, write)
		},
	}

	cmd.Flags().StringVarP(&direction, "direction", "d", "", "layout direction: LR or TB (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: <input>.layout.json)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVarP(&write, "write", "w", false, "apply positions to the canvas file")

	return cmd
}

func (c *CLI) runLayout(ctx context.Context, input, direction, output string, noCache, write bool) error {
	snap, err := graph.ReadFile(input)
	if err != nil {
		return fmt.Errorf("load canvas %s: %w", input, err)
	}
	if snap.CanvasID == "" {
		snap.CanvasID = canvasIDFromPath(input)
	}

	opts := c.Config.LayoutOptions()
	if direction != "" {
		dir, err := canvas.ParseDirection(direction)
		if err != nil {
			return err
		}
		opts.Direction = dir
	}

	runner, err := c.newRunner(ctx, noCache)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	prog := newProgress(loggerFromContext(ctx))
	spin := newSpinner(ctx, fmt.Sprintf("Computing %s layout...", opts.Direction))
	spin.Start()

	res, cacheHit, err := runner.LayoutWithCacheInfo(ctx, snap, opts)
	if err != nil {
		spin.StopWithError("Layout failed")
		return fmt.Errorf("compute layout: %w", err)
	}
	spin.Stop()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	prog.done(fmt.Sprintf("Laid out %d nodes", len(res.Nodes)))

	l := graph.FromResult(snap.CanvasID, opts.Direction, res)
	outputPath := output
	if write {
		if outputPath == "" {
			outputPath = input
		}
		snap.Nodes = l.Apply(snap.Nodes)
		if err := graph.WriteFile(snap, outputPath); err != nil {
			return fmt.Errorf("write canvas %s: %w", outputPath, err)
		}
	} else {
		if outputPath == "" {
			outputPath = derivedPath(input, ".layout.json")
		}
		data, err := graph.MarshalLayout(l)
		if err != nil {
			return err
		}
		if err := os.WriteFile(outputPath, data, 0o644); err != nil {
			return fmt.Errorf("write layout %s: %w", outputPath, err)
		}
	}

	printSuccess("Layout complete")
	printFile(outputPath)
	printStats(len(snap.Nodes), len(snap.Edges), cacheHit)
	if l.BackEdges > 0 {
		printWarning("%d edges close a cycle and were reversed for ranking", l.BackEdges)
	}
	if len(l.Skipped) > 0 {
		printDetail("Skipped %d edges with a missing endpoint", len(l.Skipped))
	}
	if !write {
		printNewline()
		printNextStep("Apply", appName+" layout --write "+input)
	}
	return nil
}

// derivedPath replaces the extension of input with suffix.
func derivedPath(input, suffix string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + suffix
}

// canvasIDFromPath names a canvas after its file when the file carries no
// id, e.g. "boards/roadmap.json" becomes "roadmap".
func canvasIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
