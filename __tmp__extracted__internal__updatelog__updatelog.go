// Package updatelog implements the Update Log (spec §4.4): an
// append-only, strictly ordered, per-document log of CRDT update
// blobs, backed by Postgres. Sequence assignment is atomic: the
// document_state row's counter update and the document_updates insert
// happen in one transaction, so two concurrent appenders can never
// receive the same sequence (Postgres serializes writers on the same
// row).
package updatelog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/collabhub/server/internal/apperr"
)

// Entry is a single durable update.
type Entry struct {
	DocID     string
	Seq       int64
	ActorID   string // empty if no actor (system-applied)
	Bytes     []byte
	CreatedAt time.Time
}

// Log appends and tails CRDT updates for documents.
type Log struct {
	db  *sql.DB
	log zerolog.Logger
}

// New constructs a Log over an open database handle.
func New(db *sql.DB, logger zerolog.Logger) *Log {
	return &Log{db: db, log: logger.With().Str("component", "updatelog").Logger()}
}

// ErrDocumentMissing is returned when the document has no
// document_state row.
var ErrDocumentMissing = apperr.New(apperr.NotFound, "document has no state row")

// Append assigns the next sequence for docID and durably persists
// bytes as one atomic unit with the counter increment. actor may be
// empty when the update has no clear human author.
func (l *Log) Append(ctx context.Context, docID, actor string, bytes []byte) (int64, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperr.Wrap(apperr.Transient, "begin append", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const bump = `
		UPDATE document_state
		SET latest_update_seq = latest_update_seq + 1
		WHERE document_id = $1
		RETURNING latest_update_seq`

	var seq int64

	err = tx.QueryRowContext(ctx, bump, docID).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrDocumentMissing
	}

	if err != nil {
		return 0, apperr.Wrap(apperr.Transient, "bump sequence", err)
	}

	const insert = `
		INSERT INTO document_updates (document_id, seq, actor_user_id, update_bytes, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, now())`

	if _, err := tx.ExecContext(ctx, insert, docID, seq, actor, bytes); err != nil {
		return 0, apperr.Wrap(apperr.Transient, "insert update", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, apperr.Wrap(apperr.Transient, "commit append", err)
	}

	return seq, nil
}

// AppendFirst writes a document's sequence-1 update and advances
// document_state within a caller-supplied transaction. It exists so
// docstore.Store.Create can seed a document's initial content as part
// of the same atomic creation transaction without this package having
// to depend on docstore (the dependency would otherwise cycle).
func AppendFirst(ctx context.Context, tx *sql.Tx, docID, actor string, bytes []byte) error {
	const bump = `UPDATE document_state SET latest_update_seq = 1 WHERE document_id = $1`
	if _, err := tx.ExecContext(ctx, bump, docID); err != nil {
		return apperr.Wrap(apperr.Transient, "seed sequence", err)
	}

	const insert = `
		INSERT INTO document_updates (document_id, seq, actor_user_id, update_bytes, created_at)
		VALUES ($1, 1, NULLIF($2, ''), $3, now())`

	if _, err := tx.ExecContext(ctx, insert, docID, actor, bytes); err != nil {
		return apperr.Wrap(apperr.Transient, "insert seed update", err)
	}

	return nil
}

// Tail returns entries with sequence strictly greater than afterSeq,
// in ascending order.
func (l *Log) Tail(ctx context.Context, docID string, afterSeq int64) ([]Entry, error) {
	const q = `
		SELECT document_id, seq, COALESCE(actor_user_id, ''), update_bytes, created_at
		FROM document_updates
		WHERE document_id = $1 AND seq > $2
		ORDER BY seq ASC`

	rows, err := l.db.QueryContext(ctx, q, docID, afterSeq)
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "tail", err)
	}
	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.DocID, &e.Seq, &e.ActorID, &e.Bytes, &e.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.Transient, "scan update", err)
		}

		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// SnapshotMark advances the snapshot pointer in document_state. If
// prune is true, entries with sequence <= seq are deleted — a policy
// decision that trades storage for the ability to reconstruct full
// history (spec §4.4).
func (l *Log) SnapshotMark(ctx context.Context, docID string, seq int64, objectKey string, prune bool) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "begin snapshot mark", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const q = `
		UPDATE document_state
		SET latest_snapshot_seq = $2, latest_snapshot_key = $3
		WHERE document_id = $1 AND latest_update_seq >= $2`

	res, err := tx.ExecContext(ctx, q, docID, seq, objectKey)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "snapshot mark", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.Conflict, "snapshot sequence races ahead of log")
	}

	if prune {
		const del = `DELETE FROM document_updates WHERE document_id = $1 AND seq <= $2`
		if _, err := tx.ExecContext(ctx, del, docID, seq); err != nil {
			return apperr.Wrap(apperr.Transient, "prune updates", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.Transient, "commit snapshot mark", err)
	}

	return nil
}

// Schema is the DDL for document_updates, applied by cmd/migrate.
// document_state itself lives in docstore.Schema since it is created
// alongside the document row in the same transaction.
const Schema = `
CREATE TABLE IF NOT EXISTS document_updates (
	document_id TEXT NOT NULL REFERENCES documents(id),
	seq BIGINT NOT NULL,
	actor_user_id TEXT REFERENCES users(id),
	update_bytes BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (document_id, seq)
);`

// State is the mutable document_state row's contents.
type State struct {
	LatestSnapshotSeq int64
	LatestSnapshotKey string // empty if no snapshot pointer
	LatestUpdateSeq   int64
}

// LoadState reads the document_state row.
func (l *Log) LoadState(ctx context.Context, docID string) (State, error) {
	const q = `SELECT latest_snapshot_seq, COALESCE(latest_snapshot_key, ''), latest_update_seq FROM document_state WHERE document_id = $1`

	var st State

	err := l.db.QueryRowContext(ctx, q, docID).Scan(&st.LatestSnapshotSeq, &st.LatestSnapshotKey, &st.LatestUpdateSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, ErrDocumentMissing
	}

	if err != nil {
		return State{}, apperr.Wrap(apperr.Transient, "load document state", err)
	}

	return st, nil
}


