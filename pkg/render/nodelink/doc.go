// Package nodelink draws a canvas as a Graphviz node-link diagram.
//
// Unlike a regular DOT export, nothing is laid out by Graphviz: every node
// carries a pinned pos attribute taken from its absolute canvas position,
// and the neato engine only routes the edges. Canvas pixels are converted to
// points (Scale) and the Y axis is flipped, since Graphviz grows upward.
package nodelink
