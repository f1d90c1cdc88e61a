package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/canvasgraph/pkg/canvas"
	"github.com/matzehuels/canvasgraph/pkg/controller"
	"github.com/matzehuels/canvasgraph/pkg/document"
	cgerrors "github.com/matzehuels/canvasgraph/pkg/errors"
	"github.com/matzehuels/canvasgraph/pkg/graph"
	"github.com/matzehuels/canvasgraph/pkg/placement"
)

type placeOptions struct {
	nodeType   string
	entityID   string
	title      string
	connectTo  []string
	x, y       float64
	noAuto     bool
	output     string
	explicitXY bool
}

// placeCommand creates the place command.
func (c *CLI) placeCommand() *cobra.Command {
	var o placeOptions

	cmd := &cobra.Command{
		Use:   "place [canvas.json]",
		Short: "Add a node to a canvas where the canvas would put it",
		Long: `Add a node to a canvas file.

The node is placed right of the nodes it connects to, in the first vertical
gap that fits it. Without connections it goes to the bottom of the leftmost
column. With auto-layout on, the children of the connected nodes are
restacked afterwards.

Connections are given as type:entityId, e.g. --connect skill:deploy.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.explicitXY = cmd.Flags().Changed("x") || cmd.Flags().Changed("y")
			return c.runPlace(cmd.Context(), args[0], o)
		},
	}

	cmd.Flags().StringVarP(&o.nodeType, "type", "t", "", "node type ("+nodeTypeList()+")")
	cmd.Flags().StringVarP(&o.entityID, "entity", "e", "", "entity id of the node")
	cmd.Flags().StringVar(&o.title, "title", "", "node title")
	cmd.Flags().StringArrayVarP(&o.connectTo, "connect", "c", nil, "connect from type:entityId (repeatable)")
	cmd.Flags().Float64Var(&o.x, "x", 0, "explicit x position")
	cmd.Flags().Float64Var(&o.y, "y", 0, "explicit y position")
	cmd.Flags().BoolVar(&o.noAuto, "no-auto-layout", false, "skip rightmost placement and restacking")
	cmd.Flags().StringVarP(&o.output, "output", "o", "", "output file (default: overwrite input)")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("entity")

	return cmd
}

func (c *CLI) runPlace(ctx context.Context, input string, o placeOptions) error {
	logger := loggerFromContext(ctx)

	nodeType, err := canvas.ParseNodeType(o.nodeType)
	if err != nil {
		return err
	}
	filters := make([]canvas.Filter, 0, len(o.connectTo))
	for _, s := range o.connectTo {
		f, err := parseFilter(s)
		if err != nil {
			return err
		}
		filters = append(filters, f)
	}

	snap, err := graph.ReadFile(input)
	if err != nil {
		return fmt.Errorf("load canvas %s: %w", input, err)
	}
	if snap.CanvasID == "" {
		snap.CanvasID = canvasIDFromPath(input)
	}
	doc, err := graph.Hydrate(snap, document.WithLogger(logger))
	if err != nil {
		return err
	}

	ctrl := controller.New(doc,
		controller.WithLogger(logger),
		controller.WithPlanner(placement.New(append(c.Config.PlacementOptions(), placement.WithLogger(logger))...)),
		controller.WithLayoutOptions(c.Config.LayoutOptions()),
		controller.WithAutoLayout(c.Config.Layout.AutoLayout && !o.noAuto),
	)
	defer ctrl.Close()

	spec := controller.NodeSpec{
		Type:     nodeType,
		EntityID: o.entityID,
		Data:     canvas.Payload{Kind: nodeType, Title: o.title},
	}
	if o.explicitXY {
		spec.Position = &canvas.Position{X: o.x, Y: o.y}
	}

	key := canvas.Filter{Type: spec.Type, EntityID: spec.EntityID}
	node, err := ctrl.AddNode(spec, filters)
	switch {
	case cgerrors.Is(err, cgerrors.ErrCodeDuplicateEntity):
		printWarning("%s is already on the canvas", key)
		printDetail("id %s at (%.0f, %.0f)", node.ID, node.Position.X, node.Position.Y)
		return nil
	case err != nil:
		return err
	}

	outputPath := o.output
	if outputPath == "" {
		outputPath = input
	}
	out := graph.FromDocument(doc)
	if err := graph.WriteFile(out, outputPath); err != nil {
		return fmt.Errorf("write canvas %s: %w", outputPath, err)
	}

	printSuccess("Placed %s", key)
	printKeyValue("id", node.ID)
	printKeyValue("position", fmt.Sprintf("(%.0f, %.0f)", node.Position.X, node.Position.Y))
	printFile(outputPath)
	printStats(len(out.Nodes), len(out.Edges), false)
	return nil
}

// parseFilter parses "type:entityId". The entity id may itself contain
// colons.
func parseFilter(s string) (canvas.Filter, error) {
	typ, entity, ok := strings.Cut(s, ":")
	if !ok || entity == "" {
		return canvas.Filter{}, cgerrors.New(cgerrors.ErrCodeInvalidInput, "connection %q must be type:entityId", s)
	}
	nodeType, err := canvas.ParseNodeType(typ)
	if err != nil {
		return canvas.Filter{}, err
	}
	return canvas.Filter{Type: nodeType, EntityID: entity}, nil
}

func nodeTypeList() string {
	names := make([]string, len(canvas.NodeTypes))
	for i, t := range canvas.NodeTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
