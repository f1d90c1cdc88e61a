// Package canvas defines the node and edge records that make up a canvas
// graph, together with the geometry helpers every layout component shares.
//
// # Overview
//
// A canvas is an infinite, multi-client editable surface of interconnected
// nodes: documents, AI responses, code artifacts, resources and so on. This
// package does not care what a node contains. It models only where a node
// lives ([Node.Position], [Node.Measured], [Node.ParentID]), how it connects
// ([Edge]) and how it is addressed from the outside ([Filter]).
//
// # Identity
//
// Every node has two identities:
//
//   - [Node.ID]: internal, unique and stable for the lifetime of the node
//   - ([Node.Type], [Node.EntityID]): the domain identity, unique per type
//
// Callers outside the engine should prefer the domain identity, expressed as a
// [Filter]. Edge identifiers are derived from their endpoints with [EdgeID],
// so connecting the same pair twice is detectable without a lookup table.
//
// # Coordinates
//
// Stored positions are top-left anchored and relative to the parent node when
// [Node.ParentID] is set. Layout and placement work in absolute coordinates;
// use [Index.Absolute] to resolve a parent chain. A parent id that does not
// resolve means the stored position is already absolute.
//
// Nodes that have not been measured by the rendering layer report the fallback
// footprint of [DefaultWidth] x [DefaultHeight] from [Node.Width] and
// [Node.Height].
//
// # Concurrency
//
// Values in this package are plain data. A []Node obtained from a mirror is a
// private copy and may be read from any goroutine.
package canvas
