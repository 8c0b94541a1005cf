package execqueue

import "time"

// Status is the lifecycle state of an execution job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
)

// Job is an execution request, validated before it is ever enqueued.
type Job struct {
	ID         string
	OwnerID    string
	DocumentID string // optional; if set, the result is also broadcast to the document's room
	Language   string
	Code       []byte
	Timeout    time.Duration
	Enqueued   time.Time
}

// Result is the outcome of running a Job, retained briefly in the
// queue backend (spec §4.10: >= 30s grace period) for HTTP polling.
type Result struct {
	Status     Status
	Reason     string // e.g. "timeout", "compile_error", "output_limit"
	Stdout     string
	Stderr     string
	ExitCode   int
	ElapsedMS  int64
}

// resultGracePeriod is how long a completed job's result stays
// retrievable after completion.
const resultGracePeriod = 60 * time.Second


