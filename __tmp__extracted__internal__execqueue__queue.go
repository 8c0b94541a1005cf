// Package execqueue implements the Execution Queue (spec §4.10): a
// durable, cross-process job queue on Redis, consumed by a bounded
// worker pool that dispatches to the Sandbox Runner. Job records live
// in Redis, not in process memory, so they survive a process restart.
// A job whose process dies mid-run is not marked failed: its record
// stays "running" until its expiry, after which GetResult reports
// NotFound.
package execqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/collabhub/server/internal/apperr"
)

const (
	pendingListKey = "execqueue:pending"
	jobKeyPrefix   = "execqueue:job:"
)

// Runner executes a validated job in an isolated sandbox.
type Runner interface {
	Run(ctx context.Context, job Job) Result
}

// Queue is the durable cross-process job queue plus its worker pool.
type Queue struct {
	client   *redis.Client
	runner   Runner
	log      zerolog.Logger
	onResult func(Job, Result)

	pool *workerPool
}

// Config configures worker concurrency and idle teardown.
type Config struct {
	MaxConcurrency int
	WorkerIdle     time.Duration
}

// New constructs a Queue. The worker pool is started lazily on the
// first Enqueue call.
func New(client *redis.Client, runner Runner, cfg Config, log zerolog.Logger) *Queue {
	l := log.With().Str("component", "execqueue").Logger()

	q := &Queue{client: client, runner: runner, log: l}
	q.pool = newWorkerPool(q, cfg, l)

	return q
}

// OnResult registers a callback invoked after a job's result is
// durably recorded (spec data flow (execute): "result is returned to
// the HTTP caller and broadcast to the document room"). Only one
// callback is supported; bootstrap wires it to the gateway's hub
// registry.
func (q *Queue) OnResult(fn func(Job, Result)) {
	q.onResult = fn
}

type jobRecord struct {
	Job    Job
	Status Status
	Result *Result
}

// Enqueue durably records the job and wakes the worker pool. Input
// validation (non-empty code, size limit, supported language, and the
// coarse exploitation-vector filter) is the caller's responsibility —
// see httpapi's execute handler — since that validation is specific
// to the HTTP boundary, not the queue's durability contract.
func (q *Queue) Enqueue(ctx context.Context, job Job) (string, error) {
	job.ID = uuid.New().String()
	job.Enqueued = time.Now().UTC()

	rec := jobRecord{Job: job, Status: StatusQueued}

	data, err := json.Marshal(rec)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "marshal job record", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(jobKeyPrefix+job.ID, data, resultGracePeriod+job.Timeout)
	pipe.LPush(pendingListKey, job.ID)

	if _, err := pipe.Exec(); err != nil {
		return "", apperr.Wrap(apperr.Transient, "enqueue job", err)
	}

	q.pool.ensureRunning()

	return job.ID, nil
}

// GetResult polls the job's current record. Returns
// apperr.NotFound if the job id is unknown or its grace period has
// elapsed.
func (q *Queue) GetResult(ctx context.Context, jobID string) (Status, *Result, error) {
	data, err := q.client.Get(jobKeyPrefix + jobID).Bytes()
	if err == redis.Nil {
		return "", nil, apperr.New(apperr.NotFound, "job not found")
	}

	if err != nil {
		return "", nil, apperr.Wrap(apperr.Transient, "get job record", err)
	}

	var rec jobRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", nil, apperr.Wrap(apperr.Internal, "unmarshal job record", err)
	}

	return rec.Status, rec.Result, nil
}

// dequeue blocks (up to timeout) for the next pending job id.
func (q *Queue) dequeue(timeout time.Duration) (string, bool, error) {
	res, err := q.client.BRPop(timeout, pendingListKey).Result()
	if err == redis.Nil {
		return "", false, nil
	}

	if err != nil {
		return "", false, err
	}

	// BRPop returns [key, value]
	if len(res) != 2 {
		return "", false, fmt.Errorf("execqueue: unexpected BRPOP shape")
	}

	return res[1], true, nil
}

func (q *Queue) loadJob(jobID string) (Job, bool, error) {
	data, err := q.client.Get(jobKeyPrefix + jobID).Bytes()
	if err == redis.Nil {
		return Job{}, false, nil
	}

	if err != nil {
		return Job{}, false, err
	}

	var rec jobRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Job{}, false, err
	}

	return rec.Job, true, nil
}

func (q *Queue) markRunning(jobID string, job Job) error {
	rec := jobRecord{Job: job, Status: StatusRunning}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	return q.client.Set(jobKeyPrefix+jobID, data, resultGracePeriod+job.Timeout).Err()
}

func (q *Queue) markDone(jobID string, job Job, result Result) error {
	rec := jobRecord{Job: job, Status: result.Status, Result: &result}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	return q.client.Set(jobKeyPrefix+jobID, data, resultGracePeriod).Err()
}

// PendingCount reports the queue depth, exposed on /health.
func (q *Queue) PendingCount() int64 {
	n, err := q.client.LLen(pendingListKey).Result()
	if err != nil {
		return 0
	}

	return n
}

// ActiveWorkers reports how many workers are currently running,
// exposed on /health.
func (q *Queue) ActiveWorkers() int {
	return q.pool.activeWorkers()
}

// Shutdown stops the worker pool, waiting for in-flight jobs.
func (q *Queue) Shutdown(ctx context.Context) {
	q.pool.shutdown(ctx)
}


