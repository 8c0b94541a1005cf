package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/collabhub/server/internal/docstore"
	"github.com/collabhub/server/internal/hub"
	"github.com/collabhub/server/internal/updatelog"
)

// fakeSink records every Event sent to it, standing in for a
// connection's writer without needing a real websocket.
type fakeSink struct {
	mu     sync.Mutex
	events []hub.Event
}

func (s *fakeSink) Send(evt hub.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, evt)

	return nil
}

func (s *fakeSink) all() []hub.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]hub.Event, len(s.events))
	copy(out, s.events)

	return out
}

func payload(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}

	return raw
}

func hashOf(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newTestServer(t *testing.T) (*Server, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	return New(Config{Docs: docstore.New(db, zerolog.Nop()), Logger: zerolog.Nop()}), mock
}

func TestDispatch_JoinThenUpdateThenLeaveRoundTrips(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	docs := docstore.New(db, zerolog.Nop())
	log := updatelog.New(db, zerolog.Nop())
	registry := hub.NewRegistry(hub.RegistryConfig{Log: log, Logger: zerolog.Nop(), IdleAfter: time.Minute})

	t.Cleanup(registry.Stop)

	s := New(Config{Registry: registry, Docs: docs, Logger: zerolog.Nop()})

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT role FROM document_members`)).
		WithArgs("doc1", "user1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow(string(docstore.RoleEditor)))

	mock.ExpectQuery("SELECT latest_snapshot_seq").
		WithArgs("doc1").
		WillReturnRows(sqlmock.NewRows([]string{"latest_snapshot_seq", "latest_snapshot_key", "latest_update_seq"}).
			AddRow(int64(0), "", int64(0)))

	mock.ExpectQuery("SELECT document_id, seq").
		WithArgs("doc1", int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"document_id", "seq", "actor_user_id", "update_bytes", "created_at"}))

	// Init fetches the tail for the joining peer on top of the load.
	mock.ExpectQuery("SELECT document_id, seq").
		WithArgs("doc1", int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"document_id", "seq", "actor_user_id", "update_bytes", "created_at"}))

	sink := &fakeSink{}
	ident := connIdentity{userID: "user1", name: "Ada"}
	rooms := make(map[string]*room)

	s.dispatch(context.Background(), sink, ident, rooms, Envelope{Type: MessageJoin, Payload: payload(JoinPayload{DocumentID: "doc1"})})

	if _, ok := rooms["doc1"]; !ok {
		t.Fatal("expected a room to be registered for doc1 after join")
	}

	events := sink.all()
	if len(events) != 2 || events[0].Type != hub.EventInit || events[1].Type != hub.EventActivePeers {
		t.Fatalf("expected an init event followed by an active-peers event after join, got %+v", events)
	}

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE document_state").
		WithArgs("doc1").
		WillReturnRows(sqlmock.NewRows([]string{"latest_update_seq"}).AddRow(int64(1)))
	mock.ExpectExec("INSERT INTO document_updates").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	s.dispatch(context.Background(), sink, ident, rooms, Envelope{
		Type:    MessageUpdate,
		Payload: payload(UpdatePayload{DocumentID: "doc1", Update: []byte("hello")}),
	})

	for _, evt := range sink.all() {
		if evt.Type == hub.EventError {
			t.Errorf("unexpected error event after a valid update: %+v", evt)
		}
	}

	s.dispatch(context.Background(), sink, ident, rooms, Envelope{Type: MessageLeave, Payload: payload(LeavePayload{DocumentID: "doc1"})})

	if _, ok := rooms["doc1"]; ok {
		t.Error("expected the room to be removed after leave")
	}

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatch_UpdateWithoutJoinReturnsError(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)

	sink := &fakeSink{}
	ident := connIdentity{userID: "user1", name: "Ada"}
	rooms := make(map[string]*room)

	s.dispatch(context.Background(), sink, ident, rooms, Envelope{
		Type:    MessageUpdate,
		Payload: payload(UpdatePayload{DocumentID: "doc1", Update: []byte("hello")}),
	})

	events := sink.all()
	if len(events) != 1 || events[0].Type != hub.EventError {
		t.Fatalf("expected a single error event for an update on an unjoined document, got %+v", events)
	}
}

func TestResolveRole_ReturnsMembershipRoleWithoutConsultingShareLink(t *testing.T) {
	t.Parallel()

	s, mock := newTestServer(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT role FROM document_members`)).
		WithArgs("doc1", "user1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow(string(docstore.RoleEditor)))

	role, err := s.resolveRole(context.Background(), "user1", "doc1", "")
	require.NoError(t, err)

	if role != docstore.RoleEditor {
		t.Errorf("expected RoleEditor from membership, got %s", role)
	}

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveRole_FallsBackToShareLinkWhenNoMembership(t *testing.T) {
	t.Parallel()

	s, mock := newTestServer(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT role FROM document_members`)).
		WithArgs("doc1", "user2").
		WillReturnRows(sqlmock.NewRows([]string{"role"}))

	mock.ExpectQuery(regexp.QuoteMeta(`FROM documents`)).
		WithArgs("doc1").
		WillReturnRows(sqlmock.NewRows([]string{"share_status", "coalesce"}).
			AddRow(string(docstore.SharePublicEdit), hashOf("share-secret")))

	role, err := s.resolveRole(context.Background(), "user2", "doc1", "share-secret")
	require.NoError(t, err)

	if role != docstore.RoleEditor {
		t.Errorf("expected the share link's edit grant to resolve to RoleEditor, got %s", role)
	}
}

func TestResolveRole_NoMembershipAndNoShareTokenYieldsNone(t *testing.T) {
	t.Parallel()

	s, mock := newTestServer(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT role FROM document_members`)).
		WithArgs("doc1", "user3").
		WillReturnRows(sqlmock.NewRows([]string{"role"}))

	role, err := s.resolveRole(context.Background(), "user3", "doc1", "")
	require.NoError(t, err)

	if role != docstore.RoleNone {
		t.Errorf("expected RoleNone when the caller has no membership and presents no share token, got %s", role)
	}
}
