package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/collabhub/server/internal/apperr"
	"github.com/collabhub/server/internal/authn"
	"github.com/collabhub/server/internal/docstore"
	"github.com/collabhub/server/internal/hub"
	"github.com/collabhub/server/internal/users"
)

// Server upgrades and serves WebSocket connections for the
// collaboration protocol (spec §4.7), delegating all document state
// to internal/hub and identity to internal/authn + internal/users.
type Server struct {
	registry *hub.Registry
	docs     *docstore.Store
	verifier *authn.Verifier
	identity *users.Directory
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// Config wires a Server's dependencies.
type Config struct {
	Registry       *hub.Registry
	Docs           *docstore.Store
	Verifier       *authn.Verifier
	Identity       *users.Directory
	FrontendOrigin string
	Logger         zerolog.Logger
}

// New constructs a Server. CheckOrigin allows only FrontendOrigin when
// set, and allows any origin otherwise (matching the teacher's
// permissive demo default, documented as a deployment responsibility).
func New(cfg Config) *Server {
	origin := cfg.FrontendOrigin

	return &Server{
		registry: cfg.Registry,
		docs:     cfg.Docs,
		verifier: cfg.Verifier,
		identity: cfg.Identity,
		log:      cfg.Logger.With().Str("component", "gateway").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if origin == "" {
					return true
				}

				return r.Header.Get("Origin") == origin
			},
		},
	}
}

// ServeHTTP handles GET /ws?token=.... The bearer token is accepted as
// a query parameter since browser WebSocket clients cannot set an
// Authorization header on the upgrade request. The connection itself
// carries no document; a client joins (and may join several) document
// rooms over it with `join` messages (spec §4.7: "each connection may
// be part of multiple document rooms").
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	claims, err := s.verifier.Verify(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	userID, err := s.identity.Upsert(r.Context(), claims.Subject, users.Profile{
		Email: claims.Email, Name: claims.Name, Avatar: claims.Avatar,
	})
	if err != nil {
		http.Error(w, "failed to resolve identity", http.StatusInternalServerError)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	ident := connIdentity{userID: userID, name: claims.Name}

	s.serve(r.Context(), conn, ident)
}

// connIdentity is the authenticated identity attached to this
// connection for the lifetime of the socket; it is shared across every
// document room the connection joins.
type connIdentity struct {
	userID string
	name   string
}

// resolveRole grants the caller's membership role, falling back to a
// presented share link's grant when the caller has no direct
// membership (spec §4.3 share-link semantics).
func (s *Server) resolveRole(ctx context.Context, userID, docID, shareToken string) (docstore.Role, error) {
	role, err := s.docs.RoleOf(ctx, userID, docID)
	if err != nil {
		return docstore.RoleNone, err
	}

	if role != docstore.RoleNone {
		return role, nil
	}

	if shareToken == "" {
		return docstore.RoleNone, nil
	}

	return s.docs.ResolveShareLink(ctx, docID, shareToken)
}

// room tracks one document this connection has joined: its Hub and the
// Peer handle the connection addresses it with.
type room struct {
	hub  *hub.Hub
	peer *hub.Peer
}

// serve runs the connection's lifetime: pump inbound messages until
// the socket closes, joining and leaving document rooms as directed,
// then leave every room still held open.
func (s *Server) serve(ctx context.Context, conn *websocket.Conn, ident connIdentity) {
	defer conn.Close() //nolint:errcheck

	sink := newWSConn(conn)
	rooms := make(map[string]*room)

	defer func() {
		for _, rm := range rooms {
			rm.hub.Leave(rm.peer)
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}

		s.dispatch(ctx, sink, ident, rooms, env)
	}
}

func (s *Server) dispatch(ctx context.Context, sink hub.Sink, ident connIdentity, rooms map[string]*room, env Envelope) {
	switch env.Type {
	case MessageJoin:
		var p JoinPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}

		s.join(ctx, sink, ident, rooms, p)

	case MessageLeave:
		var p LeavePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}

		if rm, ok := rooms[p.DocumentID]; ok {
			rm.hub.Leave(rm.peer)
			delete(rooms, p.DocumentID)
		}

	case MessageUpdate:
		var p UpdatePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}

		rm, ok := rooms[p.DocumentID]
		if !ok {
			_ = sink.Send(hub.Event{Type: hub.EventError, DocID: p.DocumentID, ErrorReason: "not joined to document"})
			return
		}

		if _, err := rm.hub.Edit(ctx, rm.peer, p.Update); err != nil {
			_ = sink.Send(hub.Event{Type: hub.EventError, DocID: p.DocumentID, ErrorReason: errorMessage(err)})
		}

	case MessagePresence:
		var p PresencePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}

		if rm, ok := rooms[p.DocumentID]; ok {
			rm.hub.Presence(rm.peer, p.Presence)
		}

	case MessagePresenceClear:
		var p PresenceClearPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}

		if rm, ok := rooms[p.DocumentID]; ok {
			rm.hub.ClearPresence(rm.peer)
		}

	default:
		_ = sink.Send(hub.Event{Type: hub.EventError, ErrorReason: "unrecognized message type"})
	}
}

// join resolves access to the requested document and, if granted,
// registers a new room for this connection and sends its init event.
func (s *Server) join(ctx context.Context, sink hub.Sink, ident connIdentity, rooms map[string]*room, p JoinPayload) {
	if p.DocumentID == "" {
		_ = sink.Send(hub.Event{Type: hub.EventError, ErrorReason: "documentId is required"})
		return
	}

	if _, already := rooms[p.DocumentID]; already {
		return
	}

	role, err := s.resolveRole(ctx, ident.userID, p.DocumentID, p.ShareToken)
	if err != nil {
		_ = sink.Send(hub.Event{Type: hub.EventError, DocID: p.DocumentID, ErrorReason: errorMessage(err)})
		return
	}

	if !docstore.CanRead(role) {
		_ = sink.Send(hub.Event{Type: hub.EventError, DocID: p.DocumentID, ErrorReason: "forbidden"})
		return
	}

	peer := &hub.Peer{
		ID:     uuid.New().String(),
		UserID: ident.userID,
		Name:   ident.name,
		Role:   role,
		Sink:   sink,
	}

	h := s.registry.Get(p.DocumentID)

	if err := h.Init(ctx, peer); err != nil {
		s.log.Warn().Err(err).Str("doc_id", p.DocumentID).Msg("hub init failed")
		_ = sink.Send(hub.Event{Type: hub.EventError, DocID: p.DocumentID, ErrorReason: errorMessage(err)})

		return
	}

	rooms[p.DocumentID] = &room{hub: h, peer: peer}
}

func errorMessage(err error) string {
	if e, ok := err.(*apperr.Error); ok {
		return e.Message
	}

	return "internal error"
}
