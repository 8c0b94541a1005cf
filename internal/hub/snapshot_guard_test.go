package hub

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/collabhub/server/internal/blobstore"
	"github.com/collabhub/server/internal/crdt"
	"github.com/collabhub/server/internal/docstore"
	"github.com/collabhub/server/internal/updatelog"
)

// dummyBlobs constructs a *blobstore.Store good enough to make
// shouldSnapshot's nil check pass. blobstore.New only builds the
// minio client value and never dials out, so this is safe to
// construct in a unit test.
func dummyBlobs(t *testing.T) *blobstore.Store {
	t.Helper()

	store, err := blobstore.New(blobstore.Config{
		Endpoint: "snapshot-guard-test.invalid:9000",
		Bucket:   "snapshots",
	}, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, store)

	return store
}

// TestEdit_SnapshotGuardSkipsWhileATaskIsAlreadyInFlight is a
// white-box regression test for the single-flight guard around
// snapshot tasks (spec §8's replay invariant depends on atSeq never
// regressing, which in turn depends on only one snapshotAsync running
// per Hub at a time). It drives Edit with snapshotInFlight already
// set, which must suppress the spawn entirely: no SnapshotMark call,
// no blobs.Put call, and the flag left untouched.
func TestEdit_SnapshotGuardSkipsWhileATaskIsAlreadyInFlight(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := updatelog.New(db, zerolog.Nop())

	h := New(Config{
		DocID:  "doc1",
		Log:    log,
		Blobs:  dummyBlobs(t),
		Policy: SnapshotPolicy{EveryNUpdates: 1},
		Logger: zerolog.Nop(),
	})

	h.loaded = true
	h.document = crdt.New(nil)
	h.snapshotInFlight = true // simulate an already-running snapshot task

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE document_state").
		WithArgs("doc1").
		WillReturnRows(sqlmock.NewRows([]string{"latest_update_seq"}).AddRow(int64(1)))
	mock.ExpectExec("INSERT INTO document_updates").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	p := &Peer{ID: "p1", UserID: "u1", Role: docstore.RoleEditor, Sink: &discardSink{}}

	seq, err := h.Edit(context.Background(), p, []byte("update"))
	require.NoError(t, err)

	if seq != 1 {
		t.Fatalf("expected sequence 1, got %d", seq)
	}

	h.mu.Lock()
	stillInFlight := h.snapshotInFlight
	h.mu.Unlock()

	if !stillInFlight {
		t.Fatal("expected snapshotInFlight to remain true: Edit must not clear a flag it didn't set")
	}

	// Give a wrongly-spawned goroutine a chance to reach the mock before
	// asserting no unexpected SQL (SnapshotMark) ever arrived.
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, mock.ExpectationsWereMet())
}

// TestEdit_SnapshotGuardAllowsTheFirstTask is the counterpart: when no
// task is in flight, Edit must still set the guard and let exactly one
// snapshotAsync run.
func TestEdit_SnapshotGuardAllowsTheFirstTask(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := updatelog.New(db, zerolog.Nop())

	h := New(Config{
		DocID:  "doc1",
		Log:    log,
		Blobs:  dummyBlobs(t),
		Policy: SnapshotPolicy{EveryNUpdates: 1},
		Logger: zerolog.Nop(),
	})

	h.loaded = true
	h.document = crdt.New(nil)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE document_state").
		WithArgs("doc1").
		WillReturnRows(sqlmock.NewRows([]string{"latest_update_seq"}).AddRow(int64(1)))
	mock.ExpectExec("INSERT INTO document_updates").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	p := &Peer{ID: "p1", UserID: "u1", Role: docstore.RoleEditor, Sink: &discardSink{}}

	_, err = h.Edit(context.Background(), p, []byte("update"))
	require.NoError(t, err)

	h.mu.Lock()
	inFlight := h.snapshotInFlight
	h.mu.Unlock()

	if !inFlight {
		t.Fatal("expected Edit to mark a snapshot task in flight when none was running")
	}
}

// discardSink is a Sink that drops every event, for tests that only
// care about Edit's return value and guard state.
type discardSink struct{}

func (discardSink) Send(Event) error { return nil }
