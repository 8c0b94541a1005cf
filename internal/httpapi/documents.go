package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/collabhub/server/internal/apperr"
	"github.com/collabhub/server/internal/docstore"
	"github.com/collabhub/server/internal/updatelog"
)

// createDocumentRequest is the body for POST /api/documents.
type createDocumentRequest struct {
	Title   string `json:"title"`
	Initial []byte `json:"initial,omitempty"`
}

// documentResponse is the JSON shape returned for a document.
type documentResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	OwnerID     string `json:"ownerId"`
	ShareStatus string `json:"shareStatus"`
}

// handleDocuments routes GET (list) and POST (create) on
// /api/documents.
func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListDocuments(w, r)
	case http.MethodPost:
		s.handleCreateDocument(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	docs, err := s.docs.ListFor(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]documentResponse, len(docs))
	for i, d := range docs {
		out[i] = toDocumentResponse(d)
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.Validation, "invalid request body"))
		return
	}

	if req.Title == "" {
		writeError(w, apperr.New(apperr.Validation, "title is required"))
		return
	}

	userID := UserIDFromContext(r.Context())

	var appendFirst func(ctx context.Context, tx *sql.Tx, docID string, bytes []byte) error
	if len(req.Initial) > 0 {
		appendFirst = func(ctx context.Context, tx *sql.Tx, docID string, bytes []byte) error {
			return updatelog.AppendFirst(ctx, tx, docID, userID, bytes)
		}
	}

	doc, err := s.docs.Create(r.Context(), userID, req.Title, req.Initial, appendFirst)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

// handleDocumentByID routes /api/documents/{id} and its share-link
// sub-route.
func (s *Server) handleDocumentByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/documents/")

	docID, sub, hasSub := strings.Cut(rest, "/")
	if docID == "" {
		writeError(w, apperr.New(apperr.Validation, "document id is required"))
		return
	}

	if hasSub && sub == "share-link" {
		s.handleShareLink(w, r, docID)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetDocument(w, r, docID)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request, docID string) {
	userID := UserIDFromContext(r.Context())

	role, err := s.docs.RoleOf(r.Context(), userID, docID)
	if err != nil {
		writeError(w, err)
		return
	}

	if !docstore.CanRead(role) {
		writeError(w, apperr.New(apperr.Forbidden, "access denied"))
		return
	}

	doc, err := s.docs.Get(r.Context(), docID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

type shareLinkRequest struct {
	Mode string `json:"mode"` // "view" or "edit"
}

type shareLinkResponse struct {
	Token  string `json:"token"`
	Status string `json:"status"`
}

func (s *Server) handleShareLink(w http.ResponseWriter, r *http.Request, docID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req shareLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.Validation, "invalid request body"))
		return
	}

	userID := UserIDFromContext(r.Context())

	token, status, err := s.docs.RotateShareLink(r.Context(), userID, docID, req.Mode)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, shareLinkResponse{Token: token, Status: string(status)})
}

func toDocumentResponse(d docstore.Document) documentResponse {
	return documentResponse{
		ID: d.ID, Title: d.Title, OwnerID: d.OwnerID, ShareStatus: string(d.ShareStatus),
	}
}
