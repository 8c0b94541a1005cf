// Package hub implements the Hub (spec §4.6): the per-document
// in-memory coordinator that owns cached CRDT state, the connected
// peer set, presence relay, and snapshot-trigger policy. It is
// grounded on the teacher's collab.Session/collab.Manager pair, with
// the teacher's OT-specific load/apply/broadcast machinery replaced
// by the opaque CRDT-update model (see internal/crdt).
package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/collabhub/server/internal/apperr"
	"github.com/collabhub/server/internal/blobstore"
	"github.com/collabhub/server/internal/crdt"
	"github.com/collabhub/server/internal/docstore"
	"github.com/collabhub/server/internal/updatelog"
)

// ErrClosed is returned by operations on an evicted Hub.
var ErrClosed = errors.New("hub: document coordinator closed")

// SnapshotPolicy decides when pending updates warrant a new snapshot.
type SnapshotPolicy struct {
	EveryNUpdates int
	EveryInterval time.Duration
	Prune         bool
	// Retention is how many of this Hub's own past snapshot objects to
	// keep before removing the oldest; 0 disables pruning (spec §9's
	// open question on snapshot garbage collection, resolved by
	// SPEC_FULL.md's SNAPSHOT_RETENTION).
	Retention int
}

// Config wires a Hub's dependencies.
type Config struct {
	DocID     string
	Log       *updatelog.Log
	Blobs     *blobstore.Store // nil disables snapshotting
	Policy    SnapshotPolicy
	Logger    zerolog.Logger
}

// Hub is the per-document coordinator. Load, append+broadcast, and
// snapshot_mark are strictly serialized per spec §5 via mu; presence
// relay takes only presenceMu so it can proceed concurrently with an
// in-flight edit.
type Hub struct {
	docID string

	mu             sync.Mutex // serializes load/edit/snapshot (spec §5)
	loaded         bool
	loadErr        error
	document       *crdt.Document
	highestApplied int64
	lastSnapshotAt time.Time
	lastSnapshotSeq int64
	pendingUpdates int
	snapshotKeys   []string // this process's own snapshot uploads, oldest first, for retention pruning

	presenceMu sync.Mutex
	peers      map[string]*Peer
	presence   map[string][]byte // peer id -> opaque blob

	closed bool

	log       *updatelog.Log
	blobs     *blobstore.Store
	policy    SnapshotPolicy
	logger    zerolog.Logger
}

// New constructs an unloaded Hub. Init and Edit call EnsureLoaded
// themselves, so the load protocol runs on first use.
func New(cfg Config) *Hub {
	return &Hub{
		docID:    cfg.DocID,
		peers:    make(map[string]*Peer),
		presence: make(map[string][]byte),
		log:      cfg.Log,
		blobs:    cfg.Blobs,
		policy:   cfg.Policy,
		logger:   cfg.Logger.With().Str("component", "hub").Str("doc_id", cfg.DocID).Logger(),
	}
}

// EnsureLoaded runs the load protocol (spec §4.6) exactly once; a
// concurrent caller blocks on mu and observes the already-loaded
// result, giving the single-flight behaviour the spec requires
// without a separate future type.
func (h *Hub) EnsureLoaded(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}

	if h.loaded {
		return h.loadErr
	}

	h.loadErr = h.load(ctx)
	h.loaded = true

	return h.loadErr
}

// load implements the six-step protocol from spec §4.6.
func (h *Hub) load(ctx context.Context) error {
	state, err := h.log.LoadState(ctx, h.docID)
	if err != nil {
		return err
	}

	var (
		base        []byte
		gotSnapshot bool
	)

	if state.LatestSnapshotKey != "" && h.blobs != nil {
		b, err := h.blobs.Get(ctx, state.LatestSnapshotKey)
		if err == nil {
			base = b
			gotSnapshot = true
		} else {
			h.logger.Warn().Err(err).Msg("snapshot pointer present but unreadable")
		}
	}

	if gotSnapshot {
		h.document = crdt.New(base)
		h.highestApplied = state.LatestSnapshotSeq

		tail, err := h.log.Tail(ctx, h.docID, h.highestApplied)
		if err != nil {
			return err
		}

		for _, e := range tail {
			_ = h.document.Apply(e.Bytes)
			h.highestApplied = e.Seq
		}

		h.lastSnapshotSeq = state.LatestSnapshotSeq

		return nil
	}

	// No snapshot bytes available. If a pointer was recorded but we
	// could not read it, a full replay is only valid if the log was
	// never pruned; detect pruning by checking whether the full tail
	// starts at sequence 1.
	fullTail, err := h.log.Tail(ctx, h.docID, 0)
	if err != nil {
		return err
	}

	if state.LatestSnapshotKey != "" && len(fullTail) > 0 && fullTail[0].Seq != 1 {
		return apperr.New(apperr.InconsistentState, "snapshot unreadable and update log has been pruned")
	}

	if state.LatestSnapshotKey != "" && len(fullTail) == 0 && state.LatestUpdateSeq > 0 {
		return apperr.New(apperr.InconsistentState, "snapshot unreadable and update log has been pruned")
	}

	h.document = crdt.New(nil)
	h.highestApplied = 0

	for _, e := range fullTail {
		_ = h.document.Apply(e.Bytes)
		h.highestApplied = e.Seq
	}

	return nil
}

// Init implements the init protocol (spec §4.6): send the joining
// peer a snapshot-or-empty base plus the tail since that base, then
// ask existing peers to rebroadcast presence.
func (h *Hub) Init(ctx context.Context, p *Peer) error {
	if err := h.EnsureLoaded(ctx); err != nil {
		return err
	}

	h.mu.Lock()

	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}

	snapSeq := h.lastSnapshotSeq

	h.mu.Unlock()

	var snapshotBytes []byte

	if snapSeq > 0 && h.blobs != nil {
		state, err := h.log.LoadState(ctx, h.docID)
		if err == nil && state.LatestSnapshotKey != "" {
			if b, err := h.blobs.Get(ctx, state.LatestSnapshotKey); err == nil {
				snapshotBytes = b
			}
		}
	}

	// Without the snapshot bytes the base is empty, so the tail starts
	// from the beginning of the log.
	if snapshotBytes == nil {
		snapSeq = 0
	}

	tail, err := h.log.Tail(ctx, h.docID, snapSeq)
	if err != nil {
		return err
	}

	tailBytes := make([][]byte, len(tail))
	for i, e := range tail {
		tailBytes[i] = e.Bytes
	}

	if err := p.Sink.Send(Event{Type: EventInit, DocID: h.docID, SnapshotBytes: snapshotBytes, SnapshotSeq: snapSeq, Tail: tailBytes, Role: p.Role}); err != nil {
		return err
	}

	h.registerPeer(p)
	h.requestPresenceRepublish(p)

	return nil
}

func (h *Hub) registerPeer(p *Peer) {
	h.presenceMu.Lock()
	defer h.presenceMu.Unlock()

	h.peers[p.ID] = p
}

// requestPresenceRepublish asks every other connected peer to resend
// their presence so the newcomer sees existing cursors immediately
// (spec §4.6 init step 3 / presence protocol).
func (h *Hub) requestPresenceRepublish(newcomer *Peer) {
	h.presenceMu.Lock()
	others := make([]*Peer, 0, len(h.peers))

	for id, peer := range h.peers {
		if id == newcomer.ID {
			continue
		}

		others = append(others, peer)
	}
	h.presenceMu.Unlock()

	for _, peer := range others {
		_ = peer.Sink.Send(Event{Type: EventPresenceRequest, DocID: h.docID})
	}

	h.broadcastRoster(newcomer, EventPeerJoined)
}

func (h *Hub) broadcastRoster(p *Peer, evt EventType) {
	h.presenceMu.Lock()
	defer h.presenceMu.Unlock()

	for id, peer := range h.peers {
		if id == p.ID {
			continue
		}

		_ = peer.Sink.Send(Event{Type: evt, DocID: h.docID, PeerID: p.ID, PeerName: p.Name})
	}
}

// Leave removes a peer, clears its presence, and notifies the room.
func (h *Hub) Leave(p *Peer) {
	h.presenceMu.Lock()
	delete(h.peers, p.ID)
	delete(h.presence, p.ID)
	h.presenceMu.Unlock()

	h.broadcastRoster(p, EventPeerLeft)
}

// PeerCount reports how many peers are currently joined, used by the
// registry's idle-eviction policy.
func (h *Hub) PeerCount() int {
	h.presenceMu.Lock()
	defer h.presenceMu.Unlock()

	return len(h.peers)
}

// Edit implements the edit protocol (spec §4.6): authorize, append,
// apply-to-cache (best effort), broadcast, and maybe-snapshot.
func (h *Hub) Edit(ctx context.Context, p *Peer, update []byte) (int64, error) {
	if !docstore.CanEdit(p.Role) {
		return 0, apperr.New(apperr.Forbidden, "write access denied")
	}

	if err := h.EnsureLoaded(ctx); err != nil {
		return 0, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, ErrClosed
	}

	seq, err := h.log.Append(ctx, h.docID, p.UserID, update)
	if err != nil {
		return 0, err
	}

	if err := h.document.Apply(update); err != nil {
		h.logger.Warn().Err(err).Msg("apply to cache failed, persisted state remains authoritative")
	} else {
		h.highestApplied = seq
	}

	h.pendingUpdates++

	h.broadcastUpdate(p, seq, update)

	if h.shouldSnapshot() {
		go h.snapshotAsync(context.Background(), seq)
	}

	return seq, nil
}

func (h *Hub) broadcastUpdate(from *Peer, seq int64, update []byte) {
	h.presenceMu.Lock()
	defer h.presenceMu.Unlock()

	for id, peer := range h.peers {
		if id == from.ID {
			continue
		}

		_ = peer.Sink.Send(Event{Type: EventBroadcastUpdate, DocID: h.docID, Seq: seq, Update: update, ActorID: from.UserID})
	}
}

func (h *Hub) shouldSnapshot() bool {
	if h.blobs == nil {
		return false
	}

	if h.policy.EveryNUpdates > 0 && h.pendingUpdates >= h.policy.EveryNUpdates {
		return true
	}

	if h.policy.EveryInterval > 0 && time.Since(h.lastSnapshotAt) >= h.policy.EveryInterval {
		return true
	}

	return false
}

// snapshotAsync encodes and uploads the current state without
// blocking the edit path; failures leave counters unchanged so the
// next trigger retries (spec §4.6 step 6).
func (h *Hub) snapshotAsync(ctx context.Context, atSeq int64) {
	h.mu.Lock()
	encoded := h.document.Encode()
	h.mu.Unlock()

	key, err := h.blobs.Put(ctx, h.docID, atSeq, encoded)
	if err != nil {
		h.logger.Warn().Err(err).Msg("snapshot upload failed, will retry on next trigger")
		return
	}

	if err := h.log.SnapshotMark(ctx, h.docID, atSeq, key, h.policy.Prune); err != nil {
		h.logger.Warn().Err(err).Msg("snapshot_mark failed, will retry on next trigger")
		return
	}

	h.mu.Lock()
	h.lastSnapshotSeq = atSeq
	h.lastSnapshotAt = time.Now()
	h.pendingUpdates = 0
	h.snapshotKeys = append(h.snapshotKeys, key)

	var toRemove string
	if h.policy.Retention > 0 && len(h.snapshotKeys) > h.policy.Retention {
		toRemove = h.snapshotKeys[0]
		h.snapshotKeys = h.snapshotKeys[1:]
	}
	h.mu.Unlock()

	if toRemove != "" {
		if err := h.blobs.Remove(ctx, toRemove); err != nil {
			h.logger.Warn().Err(err).Str("key", toRemove).Msg("failed to prune retained snapshot; old object left in storage")
		}
	}
}

// Presence relays an opaque presence blob to other peers and records
// it for future republish requests. It does not take mu, so it can
// proceed concurrently with an in-flight edit (spec §5).
func (h *Hub) Presence(p *Peer, blob []byte) {
	h.presenceMu.Lock()
	h.presence[p.ID] = blob

	targets := make([]*Peer, 0, len(h.peers))

	for id, peer := range h.peers {
		if id == p.ID {
			continue
		}

		targets = append(targets, peer)
	}
	h.presenceMu.Unlock()

	for _, peer := range targets {
		_ = peer.Sink.Send(Event{Type: EventPresence, DocID: h.docID, FromPeer: p.ID, Presence: blob})
	}
}

// ClearPresence removes a peer's presence record, e.g. on an explicit
// clear message (presence is never persisted, spec §8).
func (h *Hub) ClearPresence(p *Peer) {
	h.presenceMu.Lock()
	delete(h.presence, p.ID)
	h.presenceMu.Unlock()
}

// BroadcastExecuteResult relays a completed execution job's outcome to
// every peer currently in the room (spec data flow (execute): the
// result is "broadcast to the document room" in addition to being
// returned to the original HTTP caller).
func (h *Hub) BroadcastExecuteResult(jobID string, status, reason, stdout, stderr string, exitCode int) {
	h.presenceMu.Lock()
	targets := make([]*Peer, 0, len(h.peers))

	for _, peer := range h.peers {
		targets = append(targets, peer)
	}
	h.presenceMu.Unlock()

	evt := Event{
		Type: EventExecuteResult, DocID: h.docID,
		JobID: jobID, ExecStatus: status, ExecReason: reason,
		Stdout: stdout, Stderr: stderr, ExitCode: exitCode,
	}

	for _, peer := range targets {
		_ = peer.Sink.Send(evt)
	}
}

// Close marks the Hub unusable; callers must drop it from the
// registry. Eviction is correctness-neutral since all durable state
// is reconstructable from storage (spec §4.6 Eviction).
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
}


