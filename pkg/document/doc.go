// Package document implements the replicated graph document: the single
// source of truth for a canvas's ordered node and edge sequences.
//
// # Transactions
//
// All structural mutation happens inside [Document.Transact]. The callback
// receives a [Tx] that stages changes against a private copy of both
// sequences. When the callback returns nil the staged sequences become the
// committed state in one step; when it returns an error or panics nothing
// is applied and no observer fires.
//
// Nested transactions are expressed with [Tx.Transact]. They collapse into the
// outermost transaction (one commit, one notification) but a failing nested
// callback only discards its own changes:
//
//	err := doc.Transact(func(tx *document.Tx) error {
//	    if err := tx.InsertNodes(n1, n2); err != nil {
//	        return err
//	    }
//	    return tx.InsertEdges(canvas.NewEdge(n1.ID, n2.ID))
//	})
//
// A Tx must not be retained. Using it after its transaction ended returns an
// error with code CONTRACT_VIOLATION and is logged.
//
// # Observers
//
// [Document.Observe] registers a named pair of callbacks fired once per
// commit that touched the node or edge sequence respectively. Registration
// is idempotent by name. Callbacks run synchronously on the committing
// goroutine after the write lock is released, and each one is isolated so a
// panicking observer cannot block the others. A transaction started from
// inside an observer is delivered after the current delivery completes.
//
// # Replication
//
// Every local commit produces an [Update] of sequence-splice operations,
// delivered to [Document.OnUpdate] handlers. [Document.ApplyUpdate] replays
// an update received from another client. Remote operations that no longer
// apply (a deleted id, a duplicate insert) are skipped and logged, which
// gives last-writer-wins semantics per operation.
package document
