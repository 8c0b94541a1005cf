// Package gateway is the realtime WebSocket front door (spec §4.7): it
// upgrades connections, authenticates them, and translates the wire
// message protocol to and from calls on internal/hub. The Hub stays
// ignorant of wire format; this package owns JSON framing exactly the
// way the teacher's ws/handler packages did for their OT protocol.
package gateway

import "encoding/json"

// MessageType enumerates every message shape in the protocol (spec
// §4.7), client-to-server and server-to-client alike.
type MessageType string

const (
	// Client to server.
	MessageJoin            MessageType = "join"
	MessageLeave            MessageType = "leave"
	MessageUpdate           MessageType = "update"
	MessagePresence         MessageType = "presence"
	MessagePresenceClear    MessageType = "presence-clear"

	// Server to client.
	MessageInit             MessageType = "init"
	MessageBroadcastUpdate   MessageType = "update-broadcast"
	MessagePresenceRelay     MessageType = "presence-relay"
	MessagePresenceRequest   MessageType = "presence-request"
	MessagePeerJoined        MessageType = "peer-joined"
	MessagePeerLeft          MessageType = "peer-left"
	MessageActivePeers       MessageType = "active-peers"
	MessageExecuteResult     MessageType = "execute-result"
	MessageError             MessageType = "error"
)

// Envelope is the outer wire shape; Payload is re-parsed per Type.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinPayload requests joining a document's collaboration session.
type JoinPayload struct {
	DocumentID string `json:"documentId"`
	ShareToken string `json:"shareToken,omitempty"`
}

// LeavePayload names the document room to vacate; the connection
// itself stays open and may hold other room memberships.
type LeavePayload struct {
	DocumentID string `json:"documentId"`
}

// UpdatePayload carries one opaque CRDT update blob, base64-encoded by
// encoding/json's default []byte handling.
type UpdatePayload struct {
	DocumentID string `json:"documentId"`
	Update     []byte `json:"update"`
}

// PresencePayload carries an opaque presence blob (cursor, selection,
// whatever the client's CRDT/editor layer defines); the server never
// interprets it.
type PresencePayload struct {
	DocumentID string `json:"documentId"`
	Presence   []byte `json:"presence"`
}

// PresenceClearPayload names the document room whose presence should
// be cleared.
type PresenceClearPayload struct {
	DocumentID string `json:"documentId"`
}

// InitPayload is the server's reply to Join: the document's current
// state as a snapshot-or-empty base plus the tail of updates after it.
type InitPayload struct {
	DocumentID    string   `json:"documentId"`
	SnapshotBytes []byte   `json:"snapshotBytes,omitempty"`
	SnapshotSeq   int64    `json:"snapshotSeq"`
	Tail          [][]byte `json:"tail,omitempty"`
	Role          string   `json:"role"`
}

// UpdateBroadcastPayload relays one applied update to the other peers.
type UpdateBroadcastPayload struct {
	DocumentID string `json:"documentId"`
	Seq        int64  `json:"seq"`
	Update     []byte `json:"update"`
	ActorID    string `json:"actorId"`
}

// PresenceRelayPayload relays another peer's presence blob.
type PresenceRelayPayload struct {
	DocumentID string `json:"documentId"`
	FromPeer   string `json:"fromPeer"`
	Presence   []byte `json:"presence"`
}

// PresenceRequestPayload asks connected peers of one document room to
// rebroadcast their presence for a newcomer.
type PresenceRequestPayload struct {
	DocumentID string `json:"documentId"`
}

// RosterPayload announces a peer joining or leaving one document room.
type RosterPayload struct {
	DocumentID string `json:"documentId"`
	PeerID     string `json:"peerId"`
	PeerName   string `json:"peerName"`
}

// ExecuteResultPayload reports an execution job's outcome when it was
// submitted over this connection's document session (spec §4.10 lets
// a client poll or be pushed results; pushing avoids an extra round
// trip for the common case of an in-session execute).
type ExecuteResultPayload struct {
	DocumentID string `json:"documentId"`
	JobID      string `json:"jobId"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	Stdout     string `json:"stdout,omitempty"`
	Stderr     string `json:"stderr,omitempty"`
	ExitCode   int    `json:"exitCode"`
}

// ErrorPayload reports an error kind and a non-leaking message. The
// gateway always sets Kind to "internal": hub events carry only the
// reason text, so the apperr kind of the failure is not forwarded.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}


