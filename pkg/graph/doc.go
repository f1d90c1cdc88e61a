// Package graph is the wire format of canvas state.
//
// A [Snapshot] is what collaborators persist and exchange: the node and edge
// sequences of one canvas, serialized as plain JSON that matches the canvas
// data model. Positions are always parent-relative; nothing is resolved to
// absolute coordinates before serialization.
//
//	{
//	  "canvasId": "c-1",
//	  "nodes": [{"id": "n1", "type": "document", "entityId": "d1", "position": {"x": 100, "y": 300}, "data": {}}],
//	  "edges": [{"id": "edge-n1-n2", "source": "n1", "target": "n2"}]
//	}
//
// A [Layout] is the serialized outcome of a layout pass, keyed by node id.
// It is what the layout cache stores.
//
// Common operations:
//
//	snap, _ := graph.ReadFile("canvas.json")   // file → Snapshot
//	doc, _ := graph.Hydrate(snap)              // Snapshot → Document
//	graph.WriteFile(graph.FromDocument(doc), "out.json")
//
// Reading validates the uniqueness invariants of the data model, so a
// hydrated document never starts out with duplicate ids or entities.
package graph
