// Package crdt models the server's view of a document's CRDT state:
// an opaque accumulator of binary update blobs. The server never
// interprets update contents — commutativity, idempotency, and
// conflict resolution are guarantees the client's CRDT library
// already provides (spec §1 Non-goals); the server's only job is to
// apply updates in sequence order and encode the accumulated state
// for a snapshot.
//
// This replaces the teacher's ot.Document/ot.Operation/ot.Transform,
// which modeled a textual operational-transform document with
// explicit insert/delete semantics and server-side conflict
// resolution — a shape this spec's opaque-CRDT-update model does not
// have. See DESIGN.md for the full rationale.
package crdt

import (
	"bytes"
	"sync"
)

// Document is the server's cached view of one document's CRDT state.
// It is safe for concurrent use, matching the invariant that a Hub's
// cached state is either fully caught up or marked not-loaded.
type Document struct {
	mu      sync.RWMutex
	updates [][]byte // ordered update blobs applied since the base snapshot
	base    []byte   // snapshot bytes this state was seeded from, if any
}

// New creates a Document seeded from base snapshot bytes (nil if
// there was no snapshot to seed from).
func New(base []byte) *Document {
	return &Document{base: base}
}

// Apply appends an update blob to the cached state. Per spec §4.6
// step 3, apply failures (there are none in this opaque model, but
// the signature is kept error-returning for symmetry with a future
// real CRDT library) never affect persisted correctness.
func (d *Document) Apply(update []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cp := make([]byte, len(update))
	copy(cp, update)
	d.updates = append(d.updates, cp)

	return nil
}

// Encode returns the full state: the seed snapshot followed by every
// update applied since, each length-prefixed so a client replaying
// the stream can split it back into discrete updates. This is the
// byte layout written to the Snapshot Store.
func (d *Document) Encode() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var buf bytes.Buffer

	writeChunk(&buf, d.base)

	for _, u := range d.updates {
		writeChunk(&buf, u)
	}

	return buf.Bytes()
}

// PendingCount returns how many updates have been applied since the
// document was seeded.
func (d *Document) PendingCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.updates)
}

func writeChunk(buf *bytes.Buffer, chunk []byte) {
	var lenPrefix [8]byte
	putUint64(lenPrefix[:], uint64(len(chunk)))
	buf.Write(lenPrefix[:])
	buf.Write(chunk)
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// Decode splits a byte stream produced by Encode back into its
// length-prefixed chunks, the inverse of writeChunk.
func Decode(data []byte) [][]byte {
	var chunks [][]byte

	for len(data) >= 8 {
		n := getUint64(data[:8])
		data = data[8:]

		if uint64(len(data)) < n {
			break
		}

		chunks = append(chunks, data[:n])
		data = data[n:]
	}

	return chunks
}

func getUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}

	return v
}


