// Package httpapi implements the HTTP surface of the spec §6 external
// interface: document/folder CRUD, share-link rotation, and execute
// submission/polling, grounded on the teacher's internal/api package
// (flat ServeMux routing, one handler method per route, shared
// authMiddleware).
package httpapi

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/collabhub/server/internal/authn"
	"github.com/collabhub/server/internal/docstore"
	"github.com/collabhub/server/internal/execqueue"
	"github.com/collabhub/server/internal/ratelimit"
	"github.com/collabhub/server/internal/telemetry"
	"github.com/collabhub/server/internal/users"
)

// Server holds every dependency an HTTP handler needs.
type Server struct {
	docs     *docstore.Store
	verifier *authn.Verifier
	identity *users.Directory
	limiter  *ratelimit.Limiter
	queue    *execqueue.Queue
	started  time.Time
	execCfg  ExecConfig
	log      zerolog.Logger
}

// ExecConfig bounds what the execute endpoint accepts (spec §4.10).
type ExecConfig struct {
	MaxCodeBytes  int
	DefaultTimeout time.Duration
	SupportedLangs map[string]bool
}

// Config wires a Server's dependencies.
type Config struct {
	Docs     *docstore.Store
	Verifier *authn.Verifier
	Identity *users.Directory
	Limiter  *ratelimit.Limiter
	Queue    *execqueue.Queue
	Exec     ExecConfig
	Logger   zerolog.Logger
}

// New constructs a Server.
func New(cfg Config) *Server {
	return &Server{
		docs:     cfg.Docs,
		verifier: cfg.Verifier,
		identity: cfg.Identity,
		limiter:  cfg.Limiter,
		queue:    cfg.Queue,
		execCfg:  cfg.Exec,
		started:  time.Now(),
		log:      cfg.Logger.With().Str("component", "httpapi").Logger(),
	}
}

// Handler returns the fully routed http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/health", instrument("health", s.handleHealth))
	mux.Handle("/metrics", telemetry.Handler())

	mux.Handle("/api/documents", instrument("documents", s.authMiddleware(s.handleDocuments)))
	mux.Handle("/api/documents/", instrument("document_by_id", s.authMiddleware(s.handleDocumentByID)))

	mux.Handle("/api/folders", instrument("folders", s.authMiddleware(s.handleFolders)))

	mux.Handle("/api/execute", instrument("execute", s.authMiddleware(s.handleExecute)))
	mux.Handle("/api/execute/", instrument("execute_by_id", s.authMiddleware(s.handleExecuteResult)))

	return mux
}
