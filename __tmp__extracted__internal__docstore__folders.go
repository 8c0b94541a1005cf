package docstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/collabhub/server/internal/apperr"
)

// Folder is a lightweight organizational grouping of documents,
// referenced by the HTTP API (§6) but not detailed further by the
// base specification.
type Folder struct {
	ID        string
	OwnerID   string
	Title     string
	CreatedAt time.Time
}

// ListFolders returns the folders owned by a user.
func (s *Store) ListFolders(ctx context.Context, owner string) ([]Folder, error) {
	const q = `SELECT id, owner_id, title, created_at FROM folders WHERE owner_id = $1 ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, q, owner)
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "list folders", err)
	}
	defer rows.Close()

	var folders []Folder

	for rows.Next() {
		var f Folder
		if err := rows.Scan(&f.ID, &f.OwnerID, &f.Title, &f.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.Transient, "scan folder", err)
		}

		folders = append(folders, f)
	}

	return folders, rows.Err()
}

// CreateFolder creates a new folder for the owner.
func (s *Store) CreateFolder(ctx context.Context, owner, title string) (Folder, error) {
	if title == "" {
		return Folder{}, apperr.New(apperr.Validation, "title is required")
	}

	f := Folder{ID: uuid.New().String(), OwnerID: owner, Title: title, CreatedAt: time.Now().UTC()}

	const q = `INSERT INTO folders (id, owner_id, title, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := s.db.ExecContext(ctx, q, f.ID, f.OwnerID, f.Title, f.CreatedAt); err != nil {
		return Folder{}, apperr.Wrap(apperr.Transient, "create folder", err)
	}

	return f, nil
}

// AddDocumentToFolder links a document to a folder.
func (s *Store) AddDocumentToFolder(ctx context.Context, docID, folderID string) error {
	const q = `INSERT INTO document_folders (document_id, folder_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := s.db.ExecContext(ctx, q, docID, folderID); err != nil {
		return apperr.Wrap(apperr.Transient, "add document to folder", err)
	}

	return nil
}


