package hub

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/collabhub/server/internal/blobstore"
	"github.com/collabhub/server/internal/updatelog"
)

// Registry is the process-global map from document id to its Hub. Per
// spec §5's locking discipline (per-document > per-connection >
// global registry), callers must never hold a Hub's internal lock
// while calling into the Registry. The Registry holds its own lock
// while looking up or inserting an entry, and during an eviction sweep
// while it reads each Hub's peer count and closes idle Hubs; it never
// holds it while running load/edit logic.
type Registry struct {
	mu   sync.Mutex
	hubs map[string]*Hub

	log    *updatelog.Log
	blobs  *blobstore.Store
	policy SnapshotPolicy
	logger zerolog.Logger

	idleAfter time.Duration
	stopCh    chan struct{}
}

// RegistryConfig wires dependencies shared by every Hub the registry
// creates.
type RegistryConfig struct {
	Log       *updatelog.Log
	Blobs     *blobstore.Store
	Policy    SnapshotPolicy
	IdleAfter time.Duration
	Logger    zerolog.Logger
}

// NewRegistry constructs a Registry and starts its idle-eviction loop.
func NewRegistry(cfg RegistryConfig) *Registry {
	idleAfter := cfg.IdleAfter
	if idleAfter <= 0 {
		idleAfter = 10 * time.Minute
	}

	r := &Registry{
		hubs:      make(map[string]*Hub),
		log:       cfg.Log,
		blobs:     cfg.Blobs,
		policy:    cfg.Policy,
		logger:    cfg.Logger.With().Str("component", "hub_registry").Logger(),
		idleAfter: idleAfter,
		stopCh:    make(chan struct{}),
	}

	go r.evictLoop()

	return r
}

// Get returns the Hub for docID, creating it (unloaded) if necessary.
// The returned Hub has not necessarily run its load protocol yet;
// callers invoke EnsureLoaded/Init/Edit which trigger it lazily.
func (r *Registry) Get(docID string) *Hub {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.hubs[docID]; ok {
		return h
	}

	h := New(Config{
		DocID:  docID,
		Log:    r.log,
		Blobs:  r.blobs,
		Policy: r.policy,
		Logger: r.logger,
	})

	r.hubs[docID] = h

	return h
}

// Peek returns the Hub for docID only if one is already registered,
// without creating it. Used by callers that want to broadcast to a
// room if and only if it currently exists (e.g. an execute-result
// push: no point spinning up a Hub just to find it empty).
func (r *Registry) Peek(docID string) (*Hub, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.hubs[docID]

	return h, ok
}

// evictLoop periodically drops Hubs with no connected peers. This is
// correctness-neutral: a re-created Hub replays the same durable
// state on its next load (spec §4.6 Eviction).
func (r *Registry) evictLoop() {
	ticker := time.NewTicker(r.idleAfter / 2)
	defer ticker.Stop()

	idleSince := make(map[string]time.Time)

	for {
		select {
		case <-ticker.C:
			r.sweep(idleSince)
		case <-r.stopCh:
			return
		}
	}
}

func (r *Registry) sweep(idleSince map[string]time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	for docID, h := range r.hubs {
		if h.PeerCount() > 0 {
			delete(idleSince, docID)
			continue
		}

		since, tracked := idleSince[docID]
		if !tracked {
			idleSince[docID] = now
			continue
		}

		if now.Sub(since) >= r.idleAfter {
			h.Close()
			delete(r.hubs, docID)
			delete(idleSince, docID)
			r.logger.Debug().Str("doc_id", docID).Msg("evicted idle hub")
		}
	}
}

// Stop halts the eviction loop.
func (r *Registry) Stop() {
	close(r.stopCh)
}


