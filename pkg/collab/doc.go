// Package collab binds canvas documents to a collaboration transport.
//
// A [Session] owns the document of one canvas. Local commits are published
// on the [Transport], updates from other clients are replayed with
// [document.Document.ApplyUpdate], and the state is persisted to a
// [store.Store] on flush and close. A [Registry] hands out one session per
// canvas id.
//
// # Transports
//
//   - [MemoryTransport]: in-process fan-out, for tests and single-node servers
//   - [RedisTransport]: Redis pub/sub on channel "canvas:<id>:updates"
//
// Both encode updates as JSON, so subscribers never share memory with the
// publisher.
package collab
