// Package render exports canvases as images.
//
// The [nodelink] subpackage turns a canvas snapshot into Graphviz DOT with
// every node pinned to its canvas position and renders it to SVG. [ToPDF]
// and [ToPNG] convert any SVG with the external rsvg-convert tool.
//
//	dot := nodelink.ToDOT(snap, nodelink.Options{})
//	svg, err := nodelink.RenderSVG(dot)
//	png, err := render.ToPNG(svg, 2.0)
//
// [nodelink]: github.com/matzehuels/canvasgraph/pkg/render/nodelink
package render
