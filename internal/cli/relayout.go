package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/canvasgraph/pkg/canvas"
	"github.com/matzehuels/canvasgraph/pkg/graph"
	"github.com/matzehuels/canvasgraph/pkg/pipeline"
)

// relayoutCommand creates the relayout command.
func (c *CLI) relayoutCommand() *cobra.Command {
	var (
		nodeID    string
		fromRoot  bool
		direction string
		output    string
		noCache   bool
	)

	cmd := &cobra.Command{
		Use:   "relayout [canvas.json]",
		Short: "Re-flow the branch around one node",
		Long: `Re-flow the branch a node belongs to.

The branch is every node reachable from the node's roots. By default only the
deepest level of the branch moves; with --from-root everything below the
roots is laid out again. Nodes outside the branch keep their positions.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runRelayout(cmd.Context(), args[0], nodeID, fromRoot, direction, output, noCache)
		},
	}

	cmd.Flags().StringVarP(&nodeID, "node", "n", "", "id of a node in the branch")
	cmd.Flags().BoolVar(&fromRoot, "from-root", false, "re-flow everything below the roots")
	cmd.Flags().StringVarP(&direction, "direction", "d", "", "layout direction: LR or TB (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: overwrite input)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")
	_ = cmd.MarkFlagRequired("node")

	return cmd
}

func (c *CLI) runRelayout(ctx context.Context, input, nodeID string, fromRoot bool, direction, output string, noCache bool) error {
	snap, err := graph.ReadFile(input)
	if err != nil {
		return fmt.Errorf("load canvas %s: %w", input, err)
	}
	if snap.CanvasID == "" {
		snap.CanvasID = canvasIDFromPath(input)
	}

	req := pipeline.RelayoutRequest{
		NodeID:    nodeID,
		FromRoot:  fromRoot,
		Direction: canvas.Direction(c.Config.Layout.Direction),
		Spacing:   c.Config.Spacing(),
	}
	if direction != "" {
		dir, err := canvas.ParseDirection(direction)
		if err != nil {
			return err
		}
		req.Direction = dir
	}

	runner, err := c.newRunner(ctx, noCache)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	moved, cacheHit, err := runner.RelayoutWithCacheInfo(ctx, snap, req)
	if err != nil {
		return fmt.Errorf("relayout %s: %w", nodeID, err)
	}

	positions := make(map[string]canvas.Position, len(moved))
	for _, n := range moved {
		positions[n.ID] = n.Position
	}
	snap.Nodes = graph.Layout{Positions: positions}.Apply(snap.Nodes)

	outputPath := output
	if outputPath == "" {
		outputPath = input
	}
	if err := graph.WriteFile(snap, outputPath); err != nil {
		return fmt.Errorf("write canvas %s: %w", outputPath, err)
	}

	printSuccess("Relayout complete")
	printFile(outputPath)
	printStats(len(moved), 0, cacheHit)
	return nil
}
