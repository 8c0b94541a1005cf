package execqueue_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/collabhub/server/internal/execqueue"
)

// fakeRunner stands in for the sandbox runner, returning a fixed result
// after an optional delay so tests can exercise the worker pool's
// timing without spinning up containerd.
type fakeRunner struct {
	delay  time.Duration
	result execqueue.Result
}

func (f *fakeRunner) Run(ctx context.Context, job execqueue.Job) execqueue.Result {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return execqueue.Result{Status: execqueue.StatusTimeout, Reason: "timeout"}
		}
	}

	return f.result
}

func newTestQueue(t *testing.T, runner execqueue.Runner, cfg execqueue.Config) *execqueue.Queue {
	t.Helper()

	m, err := miniredis.Run()
	require.NoError(t, err)

	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return execqueue.New(client, runner, cfg, zerolog.Nop())
}

func TestQueue_EnqueueAndPollResult(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{result: execqueue.Result{Status: execqueue.StatusCompleted, Stdout: "hi"}}
	q := newTestQueue(t, runner, execqueue.Config{MaxConcurrency: 1, WorkerIdle: 200 * time.Millisecond})

	jobID, err := q.Enqueue(context.Background(), execqueue.Job{OwnerID: "u1", Language: "python", Timeout: time.Second})
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)

	var status execqueue.Status

	for time.Now().Before(deadline) {
		var result *execqueue.Result

		status, result, err = q.GetResult(context.Background(), jobID)
		require.NoError(t, err)

		if status == execqueue.StatusCompleted {
			if result.Stdout != "hi" {
				t.Errorf("expected stdout 'hi', got %q", result.Stdout)
			}

			return
		}

		time.Sleep(20 * time.Millisecond)
	}

	t.Fatalf("job never completed, last status: %s", status)
}

func TestQueue_GetResultUnknownJobIsNotFound(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t, &fakeRunner{}, execqueue.Config{})

	_, _, err := q.GetResult(context.Background(), "does-not-exist")
	if err == nil {
		t.Fatal("expected an error for an unknown job id")
	}
}

func TestQueue_WorkerPoolTearsDownAfterIdleAndRestartsOnNewWork(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{result: execqueue.Result{Status: execqueue.StatusCompleted}}
	q := newTestQueue(t, runner, execqueue.Config{MaxConcurrency: 1, WorkerIdle: 50 * time.Millisecond})

	jobID, err := q.Enqueue(context.Background(), execqueue.Job{OwnerID: "u1", Language: "python", Timeout: time.Second})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, _, _ := q.GetResult(context.Background(), jobID)
		return status == execqueue.StatusCompleted
	}, 2*time.Second, 20*time.Millisecond)

	// Give the worker a chance to idle out.
	require.Eventually(t, func() bool {
		return q.ActiveWorkers() == 0
	}, time.Second, 20*time.Millisecond)

	// Enqueuing new work after teardown should spin the pool back up.
	jobID2, err := q.Enqueue(context.Background(), execqueue.Job{OwnerID: "u1", Language: "python", Timeout: time.Second})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, _, _ := q.GetResult(context.Background(), jobID2)
		return status == execqueue.StatusCompleted
	}, 2*time.Second, 20*time.Millisecond)
}

func TestQueue_ShutdownDrainsInFlightWork(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{delay: 100 * time.Millisecond, result: execqueue.Result{Status: execqueue.StatusCompleted}}
	q := newTestQueue(t, runner, execqueue.Config{MaxConcurrency: 1, WorkerIdle: time.Second})

	jobID, err := q.Enqueue(context.Background(), execqueue.Job{OwnerID: "u1", Language: "python", Timeout: time.Second})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return q.ActiveWorkers() > 0
	}, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	q.Shutdown(ctx)

	status, _, err := q.GetResult(context.Background(), jobID)
	require.NoError(t, err)

	if status != execqueue.StatusCompleted {
		t.Errorf("expected the in-flight job to complete before shutdown returned, got status %s", status)
	}
}
