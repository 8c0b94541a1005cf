package httpapi

import (
	"net/http"
	"time"

	"github.com/collabhub/server/internal/telemetry"
)

type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
	QueueDepth    int64  `json:"queueDepth"`
	ActiveWorkers int    `json:"activeWorkers"`
}

// handleHealth handles GET /health: a liveness signal plus the
// queue-depth/worker gauges the supplemented Prometheus metrics also
// expose, for a quick check without a scraper.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	depth := s.queue.PendingCount()
	workers := s.queue.ActiveWorkers()

	telemetry.QueueDepth.Set(float64(depth))
	telemetry.ActiveWorkers.Set(float64(workers))

	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		QueueDepth:    depth,
		ActiveWorkers: workers,
	})
}


