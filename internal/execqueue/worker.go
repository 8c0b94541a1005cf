package execqueue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// workerPool is a bounded set of goroutines consuming jobs from the
// queue. Workers start lazily on the first enqueued job and tear
// themselves down after an idle window, but the teardown decision is
// made under shutdownMu together with a re-check of the pending
// queue, closing the race where a worker decides to exit at the same
// instant a new job arrives (spec §4.10).
type workerPool struct {
	q   *Queue
	cfg Config
	log zerolog.Logger

	shutdownMu  sync.Mutex
	active      int
	stopping    bool
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

func newWorkerPool(q *Queue, cfg Config, log zerolog.Logger) *workerPool {
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 2
	}

	idle := cfg.WorkerIdle
	if idle <= 0 {
		idle = 30 * time.Second
	}

	cfg.MaxConcurrency = maxConcurrency
	cfg.WorkerIdle = idle

	return &workerPool{
		q:      q,
		cfg:    cfg,
		log:    log.With().Str("subcomponent", "workerpool").Logger(),
		stopCh: make(chan struct{}),
	}
}

// ensureRunning starts a new worker if the pool has spare capacity and
// is not shutting down. Safe to call on every Enqueue.
func (p *workerPool) ensureRunning() {
	p.shutdownMu.Lock()
	defer p.shutdownMu.Unlock()

	if p.stopping {
		return
	}

	if p.active >= p.cfg.MaxConcurrency {
		return
	}

	p.active++
	p.wg.Add(1)

	go p.run()
}

func (p *workerPool) activeWorkers() int {
	p.shutdownMu.Lock()
	defer p.shutdownMu.Unlock()

	return p.active
}

func (p *workerPool) run() {
	defer p.wg.Done()

	for {
		jobID, ok, err := p.q.dequeue(p.cfg.WorkerIdle)
		if err != nil {
			p.log.Error().Err(err).Msg("dequeue failed, worker backing off")
			time.Sleep(time.Second)

			continue
		}

		if !ok {
			// Idle timeout elapsed with no job. Decide whether to
			// exit under the shutdown lock, re-checking pending work
			// so a job enqueued in the gap between the timed-out
			// BRPOP and this check is not stranded.
			if p.tryExit() {
				return
			}

			continue
		}

		p.process(jobID)
	}
}

// tryExit returns true if this worker should stop (the pool is
// shutting down, or no job is pending) and false if a job is now
// pending, in which case the worker keeps polling.
func (p *workerPool) tryExit() bool {
	p.shutdownMu.Lock()
	defer p.shutdownMu.Unlock()

	select {
	case <-p.stopCh:
		p.active--
		return true
	default:
	}

	if p.q.PendingCount() > 0 {
		return false
	}

	p.active--

	return true
}

func (p *workerPool) process(jobID string) {
	job, ok, err := p.q.loadJob(jobID)
	if err != nil || !ok {
		p.log.Error().Err(err).Str("job_id", jobID).Msg("failed to load dequeued job")
		return
	}

	if err := p.q.markRunning(jobID, job); err != nil {
		p.log.Error().Err(err).Str("job_id", jobID).Msg("failed to mark job running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), job.Timeout)
	defer cancel()

	start := time.Now()
	result := p.q.runner.Run(ctx, job)
	result.ElapsedMS = time.Since(start).Milliseconds()

	if err := p.q.markDone(jobID, job, result); err != nil {
		p.log.Error().Err(err).Str("job_id", jobID).Msg("failed to record job result")
	}

	if p.q.onResult != nil {
		p.q.onResult(job, result)
	}
}

// shutdown stops accepting new idle-timeout exits from racing with
// enqueues, signals all workers to drain, and waits for them (bounded
// by ctx).
func (p *workerPool) shutdown(ctx context.Context) {
	p.shutdownMu.Lock()
	p.stopping = true
	close(p.stopCh)
	p.shutdownMu.Unlock()

	done := make(chan struct{})

	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		p.log.Warn().Msg("shutdown deadline exceeded waiting for workers to drain")
	}
}
