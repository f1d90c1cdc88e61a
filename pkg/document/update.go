package document

import (
	"slices"

	"github.com/matzehuels/canvasgraph/pkg/canvas"
)

// OpKind is the kind of a sequence-splice operation.
type OpKind string

const (
	OpInsert  OpKind = "insert"
	OpDelete  OpKind = "delete"
	OpReplace OpKind = "replace"
	OpUpdate  OpKind = "update"
)

// Op is one splice on an ordered sequence.
//
// Insert appends Items, Delete removes IDs, Replace swaps the whole sequence
// for Items, and Update overwrites the records in Items matched by id.
type Op[T any] struct {
	Kind  OpKind   `json:"kind"`
	Items []T      `json:"items,omitempty"`
	IDs   []string `json:"ids,omitempty"`
}

type (
	NodeOp = Op[canvas.Node]
	EdgeOp = Op[canvas.Edge]
)

// Update is the replication unit produced by one commit.
type Update struct {
	CanvasID string   `json:"canvasId"`
	Origin   string   `json:"origin"`
	Seq      uint64   `json:"seq"`
	NodeOps  []NodeOp `json:"nodeOps,omitempty"`
	EdgeOps  []EdgeOp `json:"edgeOps,omitempty"`
}

// Empty reports whether u carries no operations.
func (u Update) Empty() bool { return len(u.NodeOps) == 0 && len(u.EdgeOps) == 0 }

func nodeID(n canvas.Node) string { return n.ID }
func edgeID(e canvas.Edge) string { return e.ID }

// appendOp merges consecutive operations of the same kind so a loop of
// single-item mutations replicates as one splice.
func appendOp[T any](ops []Op[T], op Op[T]) []Op[T] {
	if n := len(ops); n > 0 && op.Kind != OpReplace && ops[n-1].Kind == op.Kind {
		last := &ops[n-1]
		last.Items = append(last.Items, op.Items...)
		last.IDs = append(last.IDs, op.IDs...)
		return ops
	}
	return append(ops, op)
}

// without removes the records whose id is in ids and reports which ids were
// actually present.
func without[T any](seq []T, ids []string, id func(T) string) ([]T, []string) {
	drop := make(map[string]bool, len(ids))
	for _, x := range ids {
		drop[x] = true
	}
	var removed []string
	out := seq[:0:0]
	for _, item := range seq {
		if drop[id(item)] {
			removed = append(removed, id(item))
			delete(drop, id(item))
			continue
		}
		out = append(out, item)
	}
	return out, removed
}

func indexOf[T any](seq []T, target string, id func(T) string) int {
	return slices.IndexFunc(seq, func(item T) bool { return id(item) == target })
}
