package updatelog_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/collabhub/server/internal/updatelog"
)

func newTestLog(t *testing.T) (*updatelog.Log, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	return updatelog.New(db, zerolog.Nop()), mock
}

func TestAppend_AssignsSequenceFromAtomicBump(t *testing.T) {
	t.Parallel()

	log, mock := newTestLog(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE document_state`)).
		WithArgs("doc1").
		WillReturnRows(sqlmock.NewRows([]string{"latest_update_seq"}).AddRow(int64(7)))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO document_updates`)).
		WithArgs("doc1", int64(7), "actor1", []byte("payload")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	seq, err := log.Append(context.Background(), "doc1", "actor1", []byte("payload"))
	require.NoError(t, err)

	if seq != 7 {
		t.Errorf("expected sequence 7 from the atomic bump, got %d", seq)
	}

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppend_MissingDocumentStateRowIsNotFound(t *testing.T) {
	t.Parallel()

	log, mock := newTestLog(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE document_state`)).
		WithArgs("missing-doc").
		WillReturnRows(sqlmock.NewRows([]string{"latest_update_seq"})) // empty: no rows
	mock.ExpectRollback()

	_, err := log.Append(context.Background(), "missing-doc", "actor1", []byte("x"))
	if err != updatelog.ErrDocumentMissing {
		t.Errorf("expected ErrDocumentMissing, got %v", err)
	}
}

func TestSnapshotMark_ConflictWhenSequenceRacesAheadOfLog(t *testing.T) {
	t.Parallel()

	log, mock := newTestLog(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE document_state`)).
		WithArgs("doc1", int64(100), "snap-key").
		WillReturnResult(sqlmock.NewResult(0, 0)) // no rows affected: race
	mock.ExpectRollback()

	err := log.SnapshotMark(context.Background(), "doc1", 100, "snap-key", false)
	if err == nil {
		t.Fatal("expected an error when the snapshot sequence races ahead of the log")
	}
}

func TestSnapshotMark_RejectsStaleMarkBehindAnAlreadyRecordedSnapshot(t *testing.T) {
	t.Parallel()

	log, mock := newTestLog(t)

	// The query's own latest_snapshot_seq < $2 guard is what produces
	// this: a later, larger-seq snapshot already committed, so this
	// smaller-seq mark matches zero rows instead of overwriting it.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE document_state`)).
		WithArgs("doc1", int64(50), "stale-snap-key").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := log.SnapshotMark(context.Background(), "doc1", 50, "stale-snap-key", false)
	if err == nil {
		t.Fatal("expected an error when marking a snapshot sequence behind one already recorded")
	}
}

func TestSnapshotMark_PruneDeletesOldEntries(t *testing.T) {
	t.Parallel()

	log, mock := newTestLog(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE document_state`)).
		WithArgs("doc1", int64(10), "snap-key").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM document_updates WHERE document_id = $1 AND seq <= $2`)).
		WithArgs("doc1", int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 10))
	mock.ExpectCommit()

	err := log.SnapshotMark(context.Background(), "doc1", 10, "snap-key", true)
	require.NoError(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTail_ReturnsEntriesInAscendingOrder(t *testing.T) {
	t.Parallel()

	log, mock := newTestLog(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT document_id, seq, COALESCE(actor_user_id, ''), update_bytes, created_at`)).
		WithArgs("doc1", int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"document_id", "seq", "actor_user_id", "update_bytes", "created_at"}).
			AddRow("doc1", int64(6), "actor1", []byte("a"), time.Now()).
			AddRow("doc1", int64(7), "actor2", []byte("b"), time.Now()))

	entries, err := log.Tail(context.Background(), "doc1", 5)
	require.NoError(t, err)

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	if entries[0].Seq != 6 || entries[1].Seq != 7 {
		t.Errorf("expected ascending sequence order, got %d then %d", entries[0].Seq, entries[1].Seq)
	}
}
