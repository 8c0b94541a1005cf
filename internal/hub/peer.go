package hub

import "github.com/collabhub/server/internal/docstore"

// Event is something the Hub wants delivered to one or more peers.
// The gateway package turns these into wire messages; the Hub stays
// ignorant of wire format (spec §9: connections hold only a weak
// handle to address the Hub, no mutual ownership).
type Event struct {
	Type  EventType
	DocID string // which document room this event belongs to

	// Init
	SnapshotBytes []byte
	SnapshotSeq   int64
	Tail          [][]byte // ordered update bytes after SnapshotSeq
	Role          docstore.Role

	// Broadcast
	Seq    int64
	Update []byte
	ActorID string

	// Presence
	Presence []byte
	FromPeer string

	// Roster
	PeerID   string
	PeerName string

	// ActivePeers lists every peer already in the room, sent to a
	// newcomer right after Init (spec §4.7's active-peers message).
	ActivePeers []ActivePeer

	// Execute result
	JobID        string
	ExecStatus   string
	ExecReason   string
	Stdout       string
	Stderr       string
	ExitCode     int

	// Error
	ErrorReason string
}

// EventType enumerates the server-to-client message shapes the Hub
// can emit (spec §4.7 message list, server-originated subset).
type EventType string

const (
	EventInit            EventType = "init"
	EventBroadcastUpdate EventType = "update"
	EventPresence        EventType = "presence"
	EventPresenceRequest EventType = "presence-request"
	EventPeerJoined      EventType = "peer-joined"
	EventPeerLeft        EventType = "peer-left"
	EventActivePeers     EventType = "active-peers"
	EventExecuteResult   EventType = "execute-result"
	EventError           EventType = "error"
)

// Sink receives Events addressed to one peer. Implemented by the
// gateway's per-connection writer.
type Sink interface {
	Send(Event) error
}

// ActivePeer describes one peer already connected to a room, as
// reported to a newcomer in the active-peers roster.
type ActivePeer struct {
	PeerID string
	Name   string
}

// Peer is a connected participant in one document's Hub. The peer id
// is a weak handle: the Hub owns all mutable state, the connection
// only uses this to address the Hub (§9 ownership note).
type Peer struct {
	ID     string
	UserID string
	Name   string
	Role   docstore.Role
	Sink   Sink
}
