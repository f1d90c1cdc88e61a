package nodelink

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/canvasgraph/pkg/canvas"
	"github.com/matzehuels/canvasgraph/pkg/graph"
	"github.com/matzehuels/canvasgraph/pkg/render"
)

// DefaultScale converts CSS pixels to points.
const DefaultScale = 0.75

// Options configures DOT export.
type Options struct {
	// Detailed adds the node type and entity id to labels.
	Detailed bool

	// Scale is points per canvas pixel. Zero means DefaultScale.
	Scale float64
}

// ToDOT converts a snapshot to DOT. Nodes are pinned at their absolute
// centers; edges with a missing endpoint are left out.
func ToDOT(s graph.Snapshot, opts Options) string {
	scale := opts.Scale
	if scale <= 0 {
		scale = DefaultScale
	}
	idx := canvas.NewIndex(s.Nodes)
	nodes, _ := idx.AbsoluteNodes(s.Nodes)

	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  splines=true;\n")
	buf.WriteString("  notranslate=true;\n")
	buf.WriteString("  outputorder=edgesfirst;\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fixedsize=true, fontsize=14];\n")
	buf.WriteString("  edge [arrowsize=0.6];\n")
	buf.WriteString("\n")

	for _, n := range nodes {
		w, h := n.Width(), n.Height()
		cx := (n.Position.X + w/2) * scale
		cy := -(n.Position.Y + h/2) * scale
		attrs := []string{
			fmt.Sprintf("label=%q", label(n, opts.Detailed)),
			fmt.Sprintf("pos=\"%.2f,%.2f!\"", cx, cy),
			fmt.Sprintf("width=%.2f", w*scale/72),
			fmt.Sprintf("height=%.2f", h*scale/72),
		}
		attrs = append(attrs, styleAttrs(n)...)
		fmt.Fprintf(&buf, "  %q [%s];\n", n.ID, strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, e := range idx.ConnectedEdges(s.Edges) {
		if stroke, ok := e.Style["stroke"].(string); ok && stroke != "" {
			fmt.Fprintf(&buf, "  %q -> %q [color=%q];\n", e.Source, e.Target, stroke)
			continue
		}
		fmt.Fprintf(&buf, "  %q -> %q;\n", e.Source, e.Target)
	}
	buf.WriteString("}\n")
	return buf.String()
}

func label(n canvas.Node, detailed bool) string {
	text := n.Data.Title
	if text == "" {
		text = n.EntityID
	}
	if !detailed {
		return text
	}
	return fmt.Sprintf("%s\n%s: %s", text, n.Type, n.EntityID)
}

func styleAttrs(n canvas.Node) []string {
	var attrs []string
	if n.Type == canvas.NodeTypeGroup {
		attrs = append(attrs, "style=\"rounded,dashed\"")
	}
	if n.Selected {
		attrs = append(attrs, "penwidth=3", "color=\"#155EEF\"")
	}
	return attrs
}

// RenderSVG renders DOT with the neato engine, which keeps pinned nodes in
// place.
func RenderSVG(dot string) ([]byte, error) {
	ctx := context.Background()
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()
	gv.SetLayout(graphviz.NEATO)

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox replaces the fixed pt dimensions Graphviz writes with a
// scalable root element.
func normalizeViewBox(svg []byte) []byte {
	m := viewBoxRe.FindSubmatch(svg)
	if m == nil {
		return svg
	}
	w, _ := strconv.ParseFloat(string(m[3]), 64)
	h, _ := strconv.ParseFloat(string(m[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}
	root := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`, w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(root))
}

// RenderPNG renders DOT to PNG through SVG.
func RenderPNG(dot string, scale float64) ([]byte, error) {
	svg, err := RenderSVG(dot)
	if err != nil {
		return nil, err
	}
	return render.ToPNG(svg, scale)
}

// RenderPDF renders DOT to PDF through SVG.
func RenderPDF(dot string) ([]byte, error) {
	svg, err := RenderSVG(dot)
	if err != nil {
		return nil, err
	}
	return render.ToPDF(svg)
}
