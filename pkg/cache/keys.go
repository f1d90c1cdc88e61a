package cache

// keyVersion is bumped when the layout algorithms change output.
const keyVersion = "v1"

// Keyer derives cache keys.
type Keyer interface {
	LayoutKey(graphHash string, opts LayoutKeyOpts) string
	RelayoutKey(graphHash string, opts RelayoutKeyOpts) string
	RenderKey(layoutHash string, opts RenderKeyOpts) string
}

// LayoutKeyOpts are the options that change the outcome of a full layout.
type LayoutKeyOpts struct {
	Direction     string  `json:"direction"`
	NodeSep       float64 `json:"nodeSep"`
	RankSep       float64 `json:"rankSep"`
	MarginX       float64 `json:"marginX"`
	MarginY       float64 `json:"marginY"`
	DefaultWidth  float64 `json:"defaultWidth"`
	DefaultHeight float64 `json:"defaultHeight"`
	Iterations    int     `json:"iterations"`

	// FixedHash identifies the set of pinned nodes and their positions.
	FixedHash string `json:"fixedHash,omitempty"`
}

// RelayoutKeyOpts are the options of a branch relayout.
type RelayoutKeyOpts struct {
	NodeID    string  `json:"nodeId"`
	FromRoot  bool    `json:"fromRoot"`
	Direction string  `json:"direction"`
	SpacingX  float64 `json:"spacingX"`
	SpacingY  float64 `json:"spacingY"`
}

// RenderKeyOpts are the options of a rendered artifact.
type RenderKeyOpts struct {
	Format   string `json:"format"`
	Detailed bool   `json:"detailed"`
}

// DefaultKeyer produces "kind:sha256" keys.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

func (DefaultKeyer) LayoutKey(graphHash string, opts LayoutKeyOpts) string {
	return hashKey("layout", keyVersion, graphHash, opts)
}

func (DefaultKeyer) RelayoutKey(graphHash string, opts RelayoutKeyOpts) string {
	return hashKey("relayout", keyVersion, graphHash, opts)
}

func (DefaultKeyer) RenderKey(layoutHash string, opts RenderKeyOpts) string {
	return hashKey("render", keyVersion, layoutHash, opts)
}
