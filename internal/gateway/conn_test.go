package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/collabhub/server/internal/apperr"
	"github.com/collabhub/server/internal/docstore"
	"github.com/collabhub/server/internal/hub"
)

func TestEncodeEvent_InitCarriesSnapshotTailAndRole(t *testing.T) {
	t.Parallel()

	env, err := encodeEvent(hub.Event{
		Type:          hub.EventInit,
		SnapshotBytes: []byte("base"),
		SnapshotSeq:   5,
		Tail:          [][]byte{[]byte("u1"), []byte("u2")},
		Role:          docstore.RoleEditor,
	})
	require.NoError(t, err)

	if env.Type != MessageInit {
		t.Fatalf("expected MessageInit, got %s", env.Type)
	}

	var p InitPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))

	if p.SnapshotSeq != 5 || string(p.SnapshotBytes) != "base" || len(p.Tail) != 2 {
		t.Errorf("unexpected init payload: %+v", p)
	}

	if p.Role != string(docstore.RoleEditor) {
		t.Errorf("expected role %q to round-trip to the wire payload, got %q", docstore.RoleEditor, p.Role)
	}
}

func TestEncodeEvent_BroadcastUpdateCarriesSeqAndActor(t *testing.T) {
	t.Parallel()

	env, err := encodeEvent(hub.Event{Type: hub.EventBroadcastUpdate, Seq: 9, Update: []byte("delta"), ActorID: "user1"})
	require.NoError(t, err)

	if env.Type != MessageBroadcastUpdate {
		t.Fatalf("expected MessageBroadcastUpdate, got %s", env.Type)
	}

	var p UpdateBroadcastPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))

	if p.Seq != 9 || string(p.Update) != "delta" || p.ActorID != "user1" {
		t.Errorf("unexpected broadcast payload: %+v", p)
	}
}

func TestEncodeEvent_PresenceRelayCarriesSenderAndBlob(t *testing.T) {
	t.Parallel()

	env, err := encodeEvent(hub.Event{Type: hub.EventPresence, FromPeer: "peer1", Presence: []byte("cursor")})
	require.NoError(t, err)

	var p PresenceRelayPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))

	if p.FromPeer != "peer1" || string(p.Presence) != "cursor" {
		t.Errorf("unexpected presence payload: %+v", p)
	}
}

func TestEncodeEvent_PeerJoinedAndLeftCarryRoster(t *testing.T) {
	t.Parallel()

	joined, err := encodeEvent(hub.Event{Type: hub.EventPeerJoined, PeerID: "p1", PeerName: "Ada"})
	require.NoError(t, err)

	if joined.Type != MessagePeerJoined {
		t.Errorf("expected MessagePeerJoined, got %s", joined.Type)
	}

	left, err := encodeEvent(hub.Event{Type: hub.EventPeerLeft, PeerID: "p1", PeerName: "Ada"})
	require.NoError(t, err)

	if left.Type != MessagePeerLeft {
		t.Errorf("expected MessagePeerLeft, got %s", left.Type)
	}
}

func TestEncodeEvent_ErrorCarriesReason(t *testing.T) {
	t.Parallel()

	env, err := encodeEvent(hub.Event{Type: hub.EventError, ErrorReason: "boom"})
	require.NoError(t, err)

	var p ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))

	if p.Message != "boom" {
		t.Errorf("expected error message 'boom', got %q", p.Message)
	}
}

func TestEncodeEvent_PresenceRequestCarriesDocumentID(t *testing.T) {
	t.Parallel()

	env, err := encodeEvent(hub.Event{Type: hub.EventPresenceRequest, DocID: "doc1"})
	require.NoError(t, err)

	if env.Type != MessagePresenceRequest {
		t.Errorf("expected MessagePresenceRequest, got %s", env.Type)
	}

	var p PresenceRequestPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))

	if p.DocumentID != "doc1" {
		t.Errorf("expected documentId doc1, got %q", p.DocumentID)
	}
}

func TestEncodeEvent_ActivePeersCarriesExistingRoster(t *testing.T) {
	t.Parallel()

	env, err := encodeEvent(hub.Event{
		Type:  hub.EventActivePeers,
		DocID: "doc1",
		ActivePeers: []hub.ActivePeer{
			{PeerID: "p1", Name: "Ada"},
			{PeerID: "p2", Name: "Grace"},
		},
	})
	require.NoError(t, err)

	if env.Type != MessageActivePeers {
		t.Fatalf("expected MessageActivePeers, got %s", env.Type)
	}

	var p ActivePeersPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))

	if p.DocumentID != "doc1" || len(p.Peers) != 2 {
		t.Fatalf("unexpected active-peers payload: %+v", p)
	}

	if p.Peers[0].PeerID != "p1" || p.Peers[0].PeerName != "Ada" {
		t.Errorf("unexpected first roster entry: %+v", p.Peers[0])
	}
}

func TestErrorMessage_TaggedErrorUsesItsMessage(t *testing.T) {
	t.Parallel()

	if got := errorMessage(apperr.New(apperr.Forbidden, "no access")); got != "no access" {
		t.Errorf("expected tagged error message to pass through, got %q", got)
	}
}

func TestErrorMessage_PlainErrorIsGeneric(t *testing.T) {
	t.Parallel()

	if got := errorMessage(errPlain("kaboom")); got != "internal error" {
		t.Errorf("expected the generic message for an untagged error, got %q", got)
	}
}

type errPlain string

func (e errPlain) Error() string { return string(e) }
