// Package pipeline runs layout, relayout, placement and rendering over
// canvas snapshots with caching.
//
// The CLI and the server both go through a [Runner], so a canvas laid out
// from the command line and the same canvas laid out by the server share
// cache entries when they share a backend.
//
//	runner := pipeline.NewRunner(cache.NewMemoryCache(), nil, logger)
//	res, hit, err := runner.LayoutWithCacheInfo(ctx, snap, layout.DefaultOptions())
//
// Cache keys hash the structure of the canvas: node ids, sizes and parents
// plus edge endpoints, in order. Positions only enter the key where they
// change the outcome, i.e. for pinned nodes and for branch relayouts.
package pipeline

import (
	"slices"

	"github.com/matzehuels/canvasgraph/pkg/cache"
	"github.com/matzehuels/canvasgraph/pkg/canvas"
	cgerrors "github.com/matzehuels/canvasgraph/pkg/errors"
	"github.com/matzehuels/canvasgraph/pkg/graph"
	"github.com/matzehuels/canvasgraph/pkg/placement"
)

// Output formats of Render.
const (
	FormatDOT = "dot"
	FormatSVG = "svg"
	FormatPNG = "png"
	FormatPDF = "pdf"
)

// Formats lists the supported render formats.
var Formats = []string{FormatDOT, FormatSVG, FormatPNG, FormatPDF}

// ValidateFormat checks a render format.
func ValidateFormat(format string) error {
	if !slices.Contains(Formats, format) {
		return cgerrors.New(cgerrors.ErrCodeInvalidInput, "invalid format %q (must be one of: dot, svg, png, pdf)", format)
	}
	return nil
}

// RelayoutRequest selects the branch to relayout.
type RelayoutRequest struct {
	NodeID    string
	FromRoot  bool
	Direction canvas.Direction
	Spacing   placement.Spacing
}

// PlaceRequest describes a node about to be added to a snapshot.
type PlaceRequest struct {
	// ConnectTo addresses the source nodes. Filters that match nothing are
	// ignored.
	ConnectTo  []canvas.Filter
	Explicit   *canvas.Position
	AutoLayout bool
	Spacing    placement.Spacing
}

type structNode struct {
	ID       string           `json:"id"`
	Width    float64          `json:"w,omitempty"`
	Height   float64          `json:"h,omitempty"`
	ParentID string           `json:"p,omitempty"`
	Position *canvas.Position `json:"pos,omitempty"`
}

// structureHash hashes what a layout reads from the snapshot. Unmeasured
// sizes hash as zero; the default size is part of the options key.
func structureHash(s graph.Snapshot, withPositions bool) (string, error) {
	nodes := make([]structNode, len(s.Nodes))
	for i, n := range s.Nodes {
		sn := structNode{ID: n.ID, ParentID: n.ParentID}
		if n.Measured != nil {
			sn.Width, sn.Height = n.Measured.Width, n.Measured.Height
		}
		if withPositions {
			pos := n.Position
			sn.Position = &pos
		}
		nodes[i] = sn
	}
	edges := make([][2]string, len(s.Edges))
	for i, e := range s.Edges {
		edges[i] = [2]string{e.Source, e.Target}
	}
	return cache.HashJSON(struct {
		Nodes []structNode `json:"nodes"`
		Edges [][2]string  `json:"edges"`
	}{nodes, edges})
}
