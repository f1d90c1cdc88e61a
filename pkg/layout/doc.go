// Package layout computes layered (Sugiyama-style) coordinates for canvas
// graphs.
//
// [Layout] runs the classic pipeline:
//
//  1. Build: index nodes in input order and drop edges whose endpoints are
//     missing (reported in [Result.Skipped], never an error).
//  2. Break cycles: a depth-first search removes back-edges so ranking
//     always terminates. The count is reported in [Result.BackEdges].
//  3. Rank: longest path from the roots via Kahn's algorithm.
//  4. Order: long edges are subdivided with virtual nodes, then barycenter
//     sweeps reorder each rank; the ordering with the fewest crossings
//     (counted with a Fenwick tree) wins.
//  5. Coordinates: ranks are stacked along the main axis using the deepest
//     node of each rank plus RankSep; nodes inside a rank are spread along
//     the cross axis with NodeSep and pulled toward their neighbors.
//  6. Anchor: center coordinates are converted to top-left positions.
//
// The main axis is Y for [canvas.DirectionTB] and X for [canvas.DirectionLR].
//
// # Determinism
//
// Every step iterates slices in input order. Maps are only used for lookup,
// so identical inputs produce bit-identical positions.
//
// # Fixed nodes
//
// Nodes listed in [Options.Fixed] keep the given top-left position exactly.
// Their ranks anchor the main axis of neighboring ranks and movable nodes
// in the same rank are pushed clear of them. This is what partial branch
// re-layout builds on.
package layout
