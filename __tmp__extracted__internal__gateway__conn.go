package gateway

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/collabhub/server/internal/hub"
)

// wsConn implements hub.Sink over a gorilla/websocket connection,
// translating Hub events into wire Envelopes. Writes are serialized
// with a mutex since gorilla's Conn forbids concurrent writers
// (mirrors the teacher's ws.Client.Send locking).
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn}
}

// Send implements hub.Sink.
func (c *wsConn) Send(evt hub.Event) error {
	env, err := encodeEvent(evt)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn.WriteJSON(env)
}

func encodeEvent(evt hub.Event) (Envelope, error) {
	switch evt.Type {
	case hub.EventInit:
		p := InitPayload{DocumentID: evt.DocID, SnapshotBytes: evt.SnapshotBytes, SnapshotSeq: evt.SnapshotSeq, Tail: evt.Tail, Role: string(evt.Role)}
		return marshalEnvelope(MessageInit, p)
	case hub.EventBroadcastUpdate:
		p := UpdateBroadcastPayload{DocumentID: evt.DocID, Seq: evt.Seq, Update: evt.Update, ActorID: evt.ActorID}
		return marshalEnvelope(MessageBroadcastUpdate, p)
	case hub.EventPresence:
		p := PresenceRelayPayload{DocumentID: evt.DocID, FromPeer: evt.FromPeer, Presence: evt.Presence}
		return marshalEnvelope(MessagePresenceRelay, p)
	case hub.EventPresenceRequest:
		return marshalEnvelope(MessagePresenceRequest, PresenceRequestPayload{DocumentID: evt.DocID})
	case hub.EventPeerJoined:
		p := RosterPayload{DocumentID: evt.DocID, PeerID: evt.PeerID, PeerName: evt.PeerName}
		return marshalEnvelope(MessagePeerJoined, p)
	case hub.EventPeerLeft:
		p := RosterPayload{DocumentID: evt.DocID, PeerID: evt.PeerID, PeerName: evt.PeerName}
		return marshalEnvelope(MessagePeerLeft, p)
	case hub.EventExecuteResult:
		p := ExecuteResultPayload{
			DocumentID: evt.DocID, JobID: evt.JobID, Status: evt.ExecStatus, Reason: evt.ExecReason,
			Stdout: evt.Stdout, Stderr: evt.Stderr, ExitCode: evt.ExitCode,
		}
		return marshalEnvelope(MessageExecuteResult, p)
	case hub.EventError:
		p := ErrorPayload{Kind: "internal", Message: evt.ErrorReason}
		return marshalEnvelope(MessageError, p)
	default:
		return Envelope{Type: MessageError}, nil
	}
}

func marshalEnvelope(t MessageType, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}

	return Envelope{Type: t, Payload: raw}, nil
}

var _ hub.Sink = (*wsConn)(nil)


