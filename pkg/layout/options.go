package layout

import (
	"github.com/charmbracelet/log"

	"github.com/matzehuels/canvasgraph/pkg/canvas"
	cgerrors "github.com/matzehuels/canvasgraph/pkg/errors"
)

// Defaults used by a full canvas layout.
const (
	DefaultNodeSep    = 100.0
	DefaultRankSep    = 80.0
	DefaultMargin     = 50.0
	DefaultIterations = 24
)

// Options configures a layout pass.
type Options struct {
	Direction canvas.Direction

	// NodeSep separates neighbors inside a rank, RankSep separates ranks.
	NodeSep float64
	RankSep float64

	// Margins offset the result when no node is fixed.
	MarginX float64
	MarginY float64

	// DefaultSize replaces the footprint of unmeasured nodes.
	DefaultSize canvas.Size

	// Fixed pins nodes to top-left positions.
	Fixed map[string]canvas.Position

	// Iterations bounds the barycenter sweeps.
	Iterations int

	Logger *log.Logger
}

// DefaultOptions returns the settings of a full left-to-right layout.
func DefaultOptions() Options {
	return Options{
		Direction:   canvas.DirectionLR,
		NodeSep:     DefaultNodeSep,
		RankSep:     DefaultRankSep,
		MarginX:     DefaultMargin,
		MarginY:     DefaultMargin,
		DefaultSize: canvas.Size{Width: canvas.DefaultWidth, Height: canvas.DefaultHeight},
		Iterations:  DefaultIterations,
	}
}

// ValidateAndSetDefaults checks the options and fills zero values.
func (o *Options) ValidateAndSetDefaults() error {
	dir, err := canvas.ParseDirection(string(o.Direction))
	if err != nil {
		return err
	}
	o.Direction = dir
	if o.NodeSep < 0 || o.RankSep < 0 || o.MarginX < 0 || o.MarginY < 0 {
		return cgerrors.New(cgerrors.ErrCodeInvalidInput, "separations and margins must not be negative")
	}
	if o.DefaultSize.Width <= 0 {
		o.DefaultSize.Width = canvas.DefaultWidth
	}
	if o.DefaultSize.Height <= 0 {
		o.DefaultSize.Height = canvas.DefaultHeight
	}
	if o.Iterations <= 0 {
		o.Iterations = DefaultIterations
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	return nil
}

// size returns the footprint of n, using the configured fallback when the
// rendering layer has not measured it yet.
func (o *Options) size(n canvas.Node) canvas.Size {
	s := o.DefaultSize
	if n.Measured != nil {
		if n.Measured.Width > 0 {
			s.Width = n.Measured.Width
		}
		if n.Measured.Height > 0 {
			s.Height = n.Measured.Height
		}
	}
	return s
}
