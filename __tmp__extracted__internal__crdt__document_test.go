package crdt_test

import (
	"bytes"
	"testing"

	"github.com/collabhub/server/internal/crdt"
	"github.com/stretchr/testify/require"
)

func TestDocument_ApplyAndEncode(t *testing.T) {
	t.Parallel()

	doc := crdt.New([]byte("base-state"))

	require.NoError(t, doc.Apply([]byte("update-1")))
	require.NoError(t, doc.Apply([]byte("update-2")))

	if doc.PendingCount() != 2 {
		t.Errorf("expected 2 pending updates, got %d", doc.PendingCount())
	}

	encoded := doc.Encode()

	chunks := crdt.Decode(encoded)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks (base + 2 updates), got %d", len(chunks))
	}

	if !bytes.Equal(chunks[0], []byte("base-state")) {
		t.Errorf("expected first chunk to be the base snapshot, got %q", chunks[0])
	}

	if !bytes.Equal(chunks[1], []byte("update-1")) {
		t.Errorf("expected second chunk update-1, got %q", chunks[1])
	}

	if !bytes.Equal(chunks[2], []byte("update-2")) {
		t.Errorf("expected third chunk update-2, got %q", chunks[2])
	}
}

func TestDocument_EmptyBase(t *testing.T) {
	t.Parallel()

	doc := crdt.New(nil)
	require.NoError(t, doc.Apply([]byte("only-update")))

	chunks := crdt.Decode(doc.Encode())
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks (empty base + 1 update), got %d", len(chunks))
	}

	if len(chunks[0]) != 0 {
		t.Errorf("expected empty base chunk, got %q", chunks[0])
	}
}

func TestDocument_ApplyCopiesInput(t *testing.T) {
	t.Parallel()

	doc := crdt.New(nil)

	mutable := []byte("original")
	require.NoError(t, doc.Apply(mutable))

	mutable[0] = 'X'

	chunks := crdt.Decode(doc.Encode())
	if !bytes.Equal(chunks[1], []byte("original")) {
		t.Errorf("Apply should copy its input; got %q after caller mutation", chunks[1])
	}
}

func TestDecode_TruncatedTrailingChunkIsDropped(t *testing.T) {
	t.Parallel()

	doc := crdt.New(nil)
	require.NoError(t, doc.Apply([]byte("complete")))

	full := doc.Encode()
	truncated := full[:len(full)-3] // cut into the last chunk's payload

	chunks := crdt.Decode(truncated)

	// the base chunk (empty) should still decode; the truncated update
	// chunk is dropped rather than returned partially.
	if len(chunks) != 1 {
		t.Errorf("expected only the complete base chunk to decode, got %d chunks", len(chunks))
	}
}


