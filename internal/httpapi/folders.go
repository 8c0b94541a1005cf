package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/collabhub/server/internal/apperr"
)

type createFolderRequest struct {
	Title string `json:"title"`
}

type folderResponse struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// handleFolders routes GET (list) and POST (create) on /api/folders.
func (s *Server) handleFolders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListFolders(w, r)
	case http.MethodPost:
		s.handleCreateFolder(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	folders, err := s.docs.ListFolders(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]folderResponse, len(folders))
	for i, f := range folders {
		out[i] = folderResponse{ID: f.ID, Title: f.Title}
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req createFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.Validation, "invalid request body"))
		return
	}

	userID := UserIDFromContext(r.Context())

	f, err := s.docs.CreateFolder(r.Context(), userID, req.Title)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, folderResponse{ID: f.ID, Title: f.Title})
}
