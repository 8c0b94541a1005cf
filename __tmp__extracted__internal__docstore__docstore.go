// Package docstore implements the Document Store & Membership
// component (spec §4.3): document CRUD, role resolution, and
// share-link rotation, backed by Postgres.
package docstore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/collabhub/server/internal/apperr"
)

// ShareStatus mirrors the data model's share status enum.
type ShareStatus string

const (
	SharePrivate    ShareStatus = "private"
	ShareRestricted ShareStatus = "restricted"
	SharePublicView ShareStatus = "public_view"
	SharePublicEdit ShareStatus = "public_edit"
)

// Role is the caller's access level for a document.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
	RoleNone   Role = "none"
)

// shareLinkEntropyBytes gives >= 144 bits of entropy per spec §4.3.
const shareLinkEntropyBytes = 18 // 144 bits

// Document is the durable document record.
type Document struct {
	ID          string
	Title       string
	OwnerID     string
	ShareStatus ShareStatus
	ShareHash   string // hex sha256, empty if no active link
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Archived    bool
}

// Store wires document, membership, folder, and share-link persistence
// to Postgres.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// New constructs a Store over an open database handle.
func New(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{db: db, log: log.With().Str("component", "docstore").Logger()}
}

// ListFor returns documents the user owns or is a member of, excluding
// archived documents, newest first.
func (s *Store) ListFor(ctx context.Context, userID string) ([]Document, error) {
	const q = `
		SELECT d.id, d.title, d.owner_id, d.share_status, COALESCE(d.share_hash, ''), d.created_at, d.updated_at, d.archived
		FROM documents d
		JOIN document_members m ON m.document_id = d.id
		WHERE m.user_id = $1 AND d.archived = false
		ORDER BY d.updated_at DESC`

	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "list documents", err)
	}
	defer rows.Close()

	var docs []Document

	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Title, &d.OwnerID, &d.ShareStatus, &d.ShareHash, &d.CreatedAt, &d.UpdatedAt, &d.Archived); err != nil {
			return nil, apperr.Wrap(apperr.Transient, "scan document", err)
		}

		docs = append(docs, d)
	}

	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Transient, "list documents", err)
	}

	return docs, nil
}

// Create atomically creates a document, its document-state row, the
// owner's membership, and, if initial bytes are supplied, writes them
// as sequence 1 via appendFirstUpdate.
func (s *Store) Create(ctx context.Context, owner, title string, initial []byte, appendFirstUpdate func(ctx context.Context, tx *sql.Tx, docID string, bytes []byte) error) (Document, error) {
	docID := uuid.New().String()
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Document{}, apperr.Wrap(apperr.Transient, "begin create document", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insertDoc = `
		INSERT INTO documents (id, title, owner_id, share_status, created_at, updated_at, archived)
		VALUES ($1, $2, $3, $4, $5, $5, false)`

	if _, err := tx.ExecContext(ctx, insertDoc, docID, title, owner, SharePrivate, now); err != nil {
		return Document{}, apperr.Wrap(apperr.Transient, "insert document", err)
	}

	const insertState = `INSERT INTO document_state (document_id, latest_snapshot_seq, latest_snapshot_key, latest_update_seq) VALUES ($1, 0, NULL, 0)`
	if _, err := tx.ExecContext(ctx, insertState, docID); err != nil {
		return Document{}, apperr.Wrap(apperr.Transient, "insert document state", err)
	}

	const insertMember = `INSERT INTO document_members (document_id, user_id, role) VALUES ($1, $2, $3)`
	if _, err := tx.ExecContext(ctx, insertMember, docID, owner, RoleOwner); err != nil {
		return Document{}, apperr.Wrap(apperr.Transient, "insert owner membership", err)
	}

	if len(initial) > 0 && appendFirstUpdate != nil {
		if err := appendFirstUpdate(ctx, tx, docID, initial); err != nil {
			return Document{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Document{}, apperr.Wrap(apperr.Transient, "commit create document", err)
	}

	return Document{
		ID: docID, Title: title, OwnerID: owner, ShareStatus: SharePrivate,
		CreatedAt: now, UpdatedAt: now,
	}, nil
}

// RoleOf returns the caller's role for a document: owner, editor,
// viewer, or none.
func (s *Store) RoleOf(ctx context.Context, userID, docID string) (Role, error) {
	const q = `SELECT role FROM document_members WHERE document_id = $1 AND user_id = $2`

	var role string

	err := s.db.QueryRowContext(ctx, q, docID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return RoleNone, nil
	}

	if err != nil {
		return RoleNone, apperr.Wrap(apperr.Transient, "role lookup", err)
	}

	return Role(role), nil
}

// CanRead reports whether a role grants read access.
func CanRead(r Role) bool { return r == RoleOwner || r == RoleEditor || r == RoleViewer }

// CanEdit reports whether a role grants write access.
func CanEdit(r Role) bool { return r == RoleOwner || r == RoleEditor }

// RotateShareLink generates a fresh high-entropy token, stores only
// its hash, and returns the raw token exactly once. Any previously
// active token is invalidated by the overwrite. Owner-only.
func (s *Store) RotateShareLink(ctx context.Context, owner, docID string, mode string) (token string, status ShareStatus, err error) {
	role, err := s.RoleOf(ctx, owner, docID)
	if err != nil {
		return "", "", err
	}

	if role != RoleOwner {
		return "", "", apperr.New(apperr.Forbidden, "only the owner may rotate the share link")
	}

	switch mode {
	case "view":
		status = SharePublicView
	case "edit":
		status = SharePublicEdit
	default:
		return "", "", apperr.New(apperr.Validation, "mode must be view or edit")
	}

	raw := make([]byte, shareLinkEntropyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", apperr.Wrap(apperr.Internal, "generate share token", err)
	}

	token = hex.EncodeToString(raw)
	hash := hashToken(token)

	const q = `UPDATE documents SET share_status = $1, share_hash = $2, updated_at = now() WHERE id = $3`
	if _, err := s.db.ExecContext(ctx, q, status, hash, docID); err != nil {
		return "", "", apperr.Wrap(apperr.Transient, "rotate share link", err)
	}

	return token, status, nil
}

// ResolveShareLink compares the presented token's hash against the
// stored hash in constant time and returns the granted role, or
// RoleNone if the token does not match or no link is active.
func (s *Store) ResolveShareLink(ctx context.Context, docID, presented string) (Role, error) {
	const q = `SELECT share_status, COALESCE(share_hash, '') FROM documents WHERE id = $1`

	var status string

	var storedHash string

	err := s.db.QueryRowContext(ctx, q, docID).Scan(&status, &storedHash)
	if errors.Is(err, sql.ErrNoRows) {
		return RoleNone, apperr.New(apperr.NotFound, "document not found")
	}

	if err != nil {
		return RoleNone, apperr.Wrap(apperr.Transient, "resolve share link", err)
	}

	if storedHash == "" || presented == "" {
		return RoleNone, nil
	}

	presentedHash := hashToken(presented)
	if subtle.ConstantTimeCompare([]byte(storedHash), []byte(presentedHash)) != 1 {
		return RoleNone, nil
	}

	switch ShareStatus(status) {
	case SharePublicView:
		return RoleViewer, nil
	case SharePublicEdit:
		return RoleEditor, nil
	default:
		return RoleNone, nil
	}
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Schema is the DDL for documents, document_members, document_state,
// folders, and document_folders, applied by cmd/migrate.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	owner_id TEXT NOT NULL REFERENCES users(id),
	share_status TEXT NOT NULL DEFAULT 'private',
	share_hash TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	archived BOOLEAN NOT NULL DEFAULT false
);
CREATE INDEX IF NOT EXISTS documents_by_owner ON documents (owner_id);

CREATE TABLE IF NOT EXISTS document_members (
	document_id TEXT NOT NULL REFERENCES documents(id),
	user_id TEXT NOT NULL REFERENCES users(id),
	role TEXT NOT NULL,
	PRIMARY KEY (document_id, user_id)
);
CREATE INDEX IF NOT EXISTS members_by_user ON document_members (user_id);

CREATE TABLE IF NOT EXISTS document_state (
	document_id TEXT PRIMARY KEY REFERENCES documents(id),
	latest_snapshot_seq BIGINT NOT NULL DEFAULT 0,
	latest_snapshot_key TEXT,
	latest_update_seq BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS folders (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL REFERENCES users(id),
	title TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS document_folders (
	document_id TEXT NOT NULL REFERENCES documents(id),
	folder_id TEXT NOT NULL REFERENCES folders(id),
	PRIMARY KEY (document_id, folder_id)
);`


