package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var processed atomic.Int32
	done := make(chan struct{}, 3)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		processed.Add(1)
		done <- struct{}{}
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(Job{ID: "job", Type: "noop"}))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("job not processed")
		}
	}
	assert.EqualValues(t, 3, processed.Load())
}

func TestQueueRetriesAndReportsResults(t *testing.T) {
	var attempts atomic.Int32
	var failures atomic.Int32
	finished := make(chan struct{})
	q := NewQueue("retry", func(ctx context.Context, job Job) error {
		if attempts.Add(1) < 3 {
			return errors.New("boom")
		}
		close(finished)
		return nil
	}, QueueConfig{
		MaxRetries: 3,
		RetryDelay: 5 * time.Millisecond,
		OnResult: func(job Job, _ time.Duration, err error) {
			if err != nil {
				failures.Add(1)
			}
		},
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "flaky"}))
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("job never succeeded")
	}
	assert.EqualValues(t, 3, attempts.Load())
	assert.EqualValues(t, 2, failures.Load())
}

func TestQueueEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})
	err := q.Enqueue(Job{ID: "x"})
	assert.ErrorIs(t, err, ErrQueueStopped)
}

func TestQueueEverySchedulesJobs(t *testing.T) {
	ticks := make(chan string, 4)
	q := NewQueue("ticker", func(ctx context.Context, job Job) error {
		ticks <- job.Type
		return nil
	}, QueueConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	q.Every(ctx, 5*time.Millisecond, func() Job { return Job{Type: "replay"} })

	select {
	case typ := <-ticks:
		assert.Equal(t, "replay", typ)
	case <-time.After(time.Second):
		t.Fatal("scheduled job not delivered")
	}
	cancel()
	q.Stop()
}
