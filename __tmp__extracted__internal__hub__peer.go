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
	Peers    []string

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


