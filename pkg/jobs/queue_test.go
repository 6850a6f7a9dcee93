package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRunsJobsInOrderWithSingleWorker(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	done := make(chan struct{})
	handler := func(_ context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, job.ID)
		if len(seen) == 3 {
			close(done)
		}
		return nil
	}
	q := NewQueue("imports", handler, QueueConfig{Workers: 1})
	q.Start(context.Background())
	defer q.Stop()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(Job{ID: id, Type: "bulk"}))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("jobs did not finish")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestQueueDoesNotReplayByDefault(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	handler := func(_ context.Context, _ Job) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		return errors.New("boom")
	}
	q := NewQueue("imports", handler, QueueConfig{RetryDelay: 10 * time.Millisecond})
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(Job{ID: "run-1"}))
	require.Eventually(t, func() bool { return q.Pending() == 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	q.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, attempts)
}

func TestQueueRetriesUpToMaxAttempts(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	handler := func(_ context.Context, _ Job) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		return errors.New("boom")
	}
	q := NewQueue("exports", handler, QueueConfig{MaxAttempts: 3, RetryDelay: 5 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "export-1"}))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts == 3
	}, time.Second, 5*time.Millisecond)
}

func TestQueueRecoversFromPanics(t *testing.T) {
	done := make(chan struct{})
	handler := func(_ context.Context, job Job) error {
		if job.ID == "bad" {
			panic("unexpected")
		}
		close(done)
		return nil
	}
	q := NewQueue("imports", handler, QueueConfig{})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "bad"}))
	require.NoError(t, q.Enqueue(Job{ID: "good"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive panic")
	}
}

func TestEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("imports", func(context.Context, Job) error { return nil }, QueueConfig{})
	assert.Error(t, q.Enqueue(Job{ID: "x"}))
}
