package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/canvasgraph/pkg/graph"
	"github.com/matzehuels/canvasgraph/pkg/pipeline"
	"github.com/matzehuels/canvasgraph/pkg/render/nodelink"
)

// dotCommand creates the dot command.
func (c *CLI) dotCommand() *cobra.Command {
	var (
		format   string
		output   string
		detailed bool
		scale    float64
		noCache  bool
	)

	cmd := &cobra.Command{
		Use:   "dot [canvas.json]",
		Short: "Export a canvas as DOT, SVG, PNG or PDF",
		Long: `Export a canvas at its current positions.

Nodes are pinned where the canvas has them, so the picture matches what a
user sees. DOT needs nothing else; SVG uses Graphviz and PNG and PDF
additionally need rsvg-convert on PATH.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := pipeline.ValidateFormat(format); err != nil {
				return err
			}
			opts := nodelink.Options{Detailed: detailed, Scale: scale}
			return c.runDot(cmd.Context(), args[0], format, output, opts, noCache)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", pipeline.FormatDOT, "output format: dot, svg, png, pdf")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: <input>.<format>)")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "add node type and entity id to labels")
	cmd.Flags().Float64Var(&scale, "scale", nodelink.DefaultScale, "points per canvas pixel")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")

	return cmd
}

func (c *CLI) runDot(ctx context.Context, input, format, output string, opts nodelink.Options, noCache bool) error {
	snap, err := graph.ReadFile(input)
	if err != nil {
		return fmt.Errorf("load canvas %s: %w", input, err)
	}

	runner, err := c.newRunner(ctx, noCache)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	data, cacheHit, err := runner.RenderWithCacheInfo(ctx, snap, format, opts)
	if err != nil {
		return err
	}

	outputPath := output
	if outputPath == "" {
		outputPath = derivedPath(input, "."+format)
	}
	if outputPath == "-" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outputPath, err)
	}

	printSuccess("Exported %s", format)
	printFile(outputPath)
	printStats(len(snap.Nodes), len(snap.Edges), cacheHit)
	return nil
}
