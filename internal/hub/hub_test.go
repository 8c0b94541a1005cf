package hub_test

import (
	"context"
	"sync"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/collabhub/server/internal/docstore"
	"github.com/collabhub/server/internal/hub"
	"github.com/collabhub/server/internal/updatelog"
)

// fakeSink records every Event sent to it, standing in for a real
// websocket connection.
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

func newTestHub(t *testing.T) (*hub.Hub, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	log := updatelog.New(db, zerolog.Nop())

	h := hub.New(hub.Config{
		DocID:  "doc1",
		Log:    log,
		Blobs:  nil, // snapshotting disabled; exercises the no-snapshot load/edit path
		Policy: hub.SnapshotPolicy{},
		Logger: zerolog.Nop(),
	})

	return h, mock
}

func expectEmptyLoad(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("SELECT latest_snapshot_seq").
		WithArgs("doc1").
		WillReturnRows(sqlmock.NewRows([]string{"latest_snapshot_seq", "latest_snapshot_key", "latest_update_seq"}).
			AddRow(int64(0), "", int64(0)))

	mock.ExpectQuery("SELECT document_id, seq").
		WithArgs("doc1", int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"document_id", "seq", "actor_user_id", "update_bytes", "created_at"}))
}

// expectInitTail mocks the tail query each Init call makes for the
// joining peer, in addition to the one the load protocol makes.
func expectInitTail(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("SELECT document_id, seq").
		WithArgs("doc1", int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"document_id", "seq", "actor_user_id", "update_bytes", "created_at"}))
}

func TestHub_InitSendsEmptyStateOnFirstJoin(t *testing.T) {
	t.Parallel()

	h, mock := newTestHub(t)
	expectEmptyLoad(mock)
	expectInitTail(mock)

	sink := &fakeSink{}
	peer := &hub.Peer{ID: "p1", UserID: "u1", Role: docstore.RoleEditor, Sink: sink}

	require.NoError(t, h.Init(context.Background(), peer))

	events := sink.all()
	if len(events) != 2 || events[0].Type != hub.EventInit {
		t.Fatalf("expected an init event followed by an active-peers event, got %+v", events)
	}

	if events[0].SnapshotSeq != 0 || len(events[0].Tail) != 0 {
		t.Errorf("expected an empty base state for a document with no history, got %+v", events[0])
	}

	if events[1].Type != hub.EventActivePeers || len(events[1].ActivePeers) != 0 {
		t.Errorf("expected an empty active-peers roster for the first peer in the room, got %+v", events[1])
	}
}

func TestHub_EditRejectsViewerRole(t *testing.T) {
	t.Parallel()

	h, mock := newTestHub(t)
	expectEmptyLoad(mock)

	sink := &fakeSink{}
	viewer := &hub.Peer{ID: "p1", UserID: "u1", Role: docstore.RoleViewer, Sink: sink}

	_, err := h.Edit(context.Background(), viewer, []byte("update"))
	if err == nil {
		t.Fatal("expected a viewer's edit to be rejected")
	}
}

func TestHub_EditBroadcastsToOtherPeersNotTheAuthor(t *testing.T) {
	t.Parallel()

	h, mock := newTestHub(t)
	expectEmptyLoad(mock)

	authorSink := &fakeSink{}
	otherSink := &fakeSink{}

	author := &hub.Peer{ID: "author", UserID: "u1", Role: docstore.RoleEditor, Sink: authorSink}
	other := &hub.Peer{ID: "other", UserID: "u2", Role: docstore.RoleEditor, Sink: otherSink}

	expectInitTail(mock)
	require.NoError(t, h.Init(context.Background(), author))
	expectInitTail(mock)
	require.NoError(t, h.Init(context.Background(), other))

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE document_state").
		WithArgs("doc1").
		WillReturnRows(sqlmock.NewRows([]string{"latest_update_seq"}).AddRow(int64(1)))
	mock.ExpectExec("INSERT INTO document_updates").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	seq, err := h.Edit(context.Background(), author, []byte("hello"))
	require.NoError(t, err)

	if seq != 1 {
		t.Errorf("expected sequence 1, got %d", seq)
	}

	found := false

	for _, evt := range other.Sink.(*fakeSink).all() {
		if evt.Type == hub.EventBroadcastUpdate {
			found = true

			if string(evt.Update) != "hello" {
				t.Errorf("expected broadcast update bytes 'hello', got %q", evt.Update)
			}
		}
	}

	if !found {
		t.Error("expected the other peer to receive a broadcast update event")
	}

	for _, evt := range authorSink.all() {
		if evt.Type == hub.EventBroadcastUpdate {
			t.Error("the editing peer should not receive its own broadcast update")
		}
	}
}

func TestHub_InitSendsActiveRosterOfExistingPeersButNotSelf(t *testing.T) {
	t.Parallel()

	h, mock := newTestHub(t)
	expectEmptyLoad(mock)

	firstSink := &fakeSink{}
	first := &hub.Peer{ID: "p1", UserID: "u1", Name: "Ada", Role: docstore.RoleEditor, Sink: firstSink}
	expectInitTail(mock)
	require.NoError(t, h.Init(context.Background(), first))

	secondSink := &fakeSink{}
	second := &hub.Peer{ID: "p2", UserID: "u2", Name: "Grace", Role: docstore.RoleEditor, Sink: secondSink}
	expectInitTail(mock)
	require.NoError(t, h.Init(context.Background(), second))

	var roster hub.Event

	found := false

	for _, evt := range secondSink.all() {
		if evt.Type == hub.EventActivePeers {
			roster = evt
			found = true

			break
		}
	}

	if !found {
		t.Fatal("expected the newcomer to receive an active-peers event")
	}

	if len(roster.ActivePeers) != 1 || roster.ActivePeers[0].PeerID != "p1" {
		t.Errorf("expected the active-peers roster to list only the first peer, got %+v", roster.ActivePeers)
	}

	for _, evt := range firstSink.all() {
		if evt.Type == hub.EventActivePeers && len(evt.ActivePeers) != 0 {
			t.Errorf("expected the first peer's own active-peers roster to be empty, got %+v", evt.ActivePeers)
		}
	}
}

func TestHub_LeaveAfterPresenceRemovesPeer(t *testing.T) {
	t.Parallel()

	h, mock := newTestHub(t)
	expectEmptyLoad(mock)
	expectInitTail(mock)

	sink := &fakeSink{}
	peer := &hub.Peer{ID: "p1", UserID: "u1", Role: docstore.RoleEditor, Sink: sink}

	require.NoError(t, h.Init(context.Background(), peer))

	h.Presence(peer, []byte("cursor-at-10"))
	h.Leave(peer)

	if h.PeerCount() != 0 {
		t.Errorf("expected 0 peers after Leave, got %d", h.PeerCount())
	}
}

func TestHub_BroadcastExecuteResultReachesEveryJoinedPeer(t *testing.T) {
	t.Parallel()

	h, mock := newTestHub(t)
	expectEmptyLoad(mock)

	oneSink := &fakeSink{}
	twoSink := &fakeSink{}

	one := &hub.Peer{ID: "p1", UserID: "u1", Role: docstore.RoleEditor, Sink: oneSink}
	two := &hub.Peer{ID: "p2", UserID: "u2", Role: docstore.RoleViewer, Sink: twoSink}

	expectInitTail(mock)
	require.NoError(t, h.Init(context.Background(), one))
	expectInitTail(mock)
	require.NoError(t, h.Init(context.Background(), two))

	h.BroadcastExecuteResult("job1", "completed", "", "hi\n", "", 0)

	for _, sink := range []*fakeSink{oneSink, twoSink} {
		found := false

		for _, evt := range sink.all() {
			if evt.Type == hub.EventExecuteResult {
				found = true

				if evt.JobID != "job1" || evt.Stdout != "hi\n" {
					t.Errorf("unexpected execute-result event: %+v", evt)
				}
			}
		}

		if !found {
			t.Error("expected every joined peer to receive the execute-result event")
		}
	}
}

func TestHub_EnsureLoadedIsSingleFlight(t *testing.T) {
	t.Parallel()

	h, mock := newTestHub(t)
	expectEmptyLoad(mock)

	var wg sync.WaitGroup

	errs := make([]error, 10)

	for i := range errs {
		wg.Add(1)

		go func(idx int) {
			defer wg.Done()

			errs[idx] = h.EnsureLoaded(context.Background())
		}(i)
	}

	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	require.NoError(t, mock.ExpectationsWereMet())
}
