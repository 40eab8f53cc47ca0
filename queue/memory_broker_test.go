package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPayload struct {
	Value string `json:"value"`
}

// consumeUntil runs a consume loop in the background and cancels it
// once done returns true or the timeout passes.
func consumeUntil(t *testing.T, b *MemoryBroker, queueName string, handler Handler, opts ConsumeOptions, done func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go b.Consume(ctx, queueName, handler, opts)

	deadline := time.After(5 * time.Second)
	for !done() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for consumption")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestEnqueueDeliversToHandler(t *testing.T) {
	b := NewMemoryBroker()

	jobID, err := b.Enqueue(context.Background(), "orders", "ship", testPayload{Value: "ok"})
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	var got atomic.Value
	consumeUntil(t, b, "orders", func(ctx context.Context, job Job) error {
		var p testPayload
		if err := job.Bind(&p); err != nil {
			return err
		}
		got.Store(job.Name + ":" + p.Value)
		return nil
	}, ConsumeOptions{}, func() bool { return got.Load() != nil })

	assert.Equal(t, "ship:ok", got.Load())
}

func TestTransientFailureRetriesUntilMaxAttempts(t *testing.T) {
	b := NewMemoryBroker()

	_, err := b.Enqueue(context.Background(), "orders", "ship", testPayload{})
	require.NoError(t, err)

	var attempts int32
	consumeUntil(t, b, "orders", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("boom")
	}, ConsumeOptions{MaxAttempts: 3}, func() bool {
		return len(b.Failed("orders")) == 1
	})

	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	failed := b.Failed("orders")
	require.Len(t, failed, 1)
	assert.Equal(t, 3, failed[0].Attempts)
}

func TestPermanentFailureSkipsRetry(t *testing.T) {
	b := NewMemoryBroker()

	_, err := b.Enqueue(context.Background(), "orders", "ship", testPayload{})
	require.NoError(t, err)

	var attempts int32
	consumeUntil(t, b, "orders", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&attempts, 1)
		return Permanent(errors.New("gone"))
	}, ConsumeOptions{MaxAttempts: 5}, func() bool {
		return len(b.Failed("orders")) == 1
	})

	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestResultsChannelReportsOutcomes(t *testing.T) {
	b := NewMemoryBroker()
	results := make(chan JobResult, 8)

	_, err := b.Enqueue(context.Background(), "orders", "ship", testPayload{})
	require.NoError(t, err)

	var handled atomic.Bool
	consumeUntil(t, b, "orders", func(ctx context.Context, job Job) error {
		handled.Store(true)
		return nil
	}, ConsumeOptions{Results: results}, func() bool { return handled.Load() })

	select {
	case r := <-results:
		assert.Equal(t, "orders", r.Queue)
		assert.Equal(t, "ship", r.Name)
		assert.NoError(t, r.Err)
		assert.Equal(t, 1, r.Attempts)
	case <-time.After(time.Second):
		t.Fatal("no result reported")
	}
}

// The rate limiter delays job starts instead of failing jobs: with a
// cap of 2 per 100ms, 6 jobs need at least ~200ms beyond the initial
// burst.
func TestRateLimitDelaysJobStarts(t *testing.T) {
	b := NewMemoryBroker()

	const jobs = 6
	for i := 0; i < jobs; i++ {
		_, err := b.Enqueue(context.Background(), "payments", "charge", testPayload{})
		require.NoError(t, err)
	}

	var processed int32
	start := time.Now()
	consumeUntil(t, b, "payments", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&processed, 1)
		return nil
	}, ConsumeOptions{
		RateLimit: &RateLimit{Max: 2, Per: 100 * time.Millisecond},
	}, func() bool {
		return atomic.LoadInt32(&processed) == jobs
	})

	elapsed := time.Since(start)
	assert.Equal(t, int32(jobs), atomic.LoadInt32(&processed))
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond, "jobs beyond the burst must wait")
}

func TestTryDequeueInspectsWaitingJobs(t *testing.T) {
	b := NewMemoryBroker()

	_, err := b.Enqueue(context.Background(), "orders", "ship", testPayload{Value: "x"})
	require.NoError(t, err)
	assert.Equal(t, 1, b.Pending("orders"))

	job, ok := b.TryDequeue("orders")
	require.True(t, ok)
	assert.Equal(t, "ship", job.Name)

	_, ok = b.TryDequeue("orders")
	assert.False(t, ok)
}
