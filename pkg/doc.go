// Package pkg holds the canvasgraph libraries.
//
// # Overview
//
// canvasgraph keeps the nodes and edges of a collaborative canvas in sync
// between clients and arranges them automatically. The packages fall into
// three groups:
//
//  1. Model: [canvas] types, the transactional [document] and its
//     read-side [mirror] and [selection]
//  2. Arrangement: [placement] for new nodes, [layout] for whole canvases
//     and [branch] for the neighborhood of one node
//  3. Plumbing: [controller], [collab] sessions and transports, [store],
//     [cache], [pipeline], [graph] serialization and [render]
//
// # Data Flow
//
//	client edit
//	     ↓
//	[controller] (placement, auto-layout)
//	     ↓
//	[document] transaction ──→ [mirror], [selection]
//	     ↓
//	[collab] transport ──→ other clients
//	     ↓
//	[store] snapshot
//
// # Quick Start
//
//	doc := document.New("roadmap")
//	ctrl := controller.New(doc)
//	defer ctrl.Close()
//
//	root, _ := ctrl.AddNode(controller.NodeSpec{Type: canvas.NodeTypeSkill, EntityID: "plan"}, nil)
//	_, _ = ctrl.AddNode(controller.NodeSpec{Type: canvas.NodeTypeSkillResponse, EntityID: "plan-1"},
//	    []canvas.Filter{root.Key()})
//
//	res, _ := ctrl.OnLayout(ctx, canvas.DirectionTB)
//
// Errors carry a code from [errors]; hooks in [observability] report
// commits, layouts, cache and transport activity.
package pkg
