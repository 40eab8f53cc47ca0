package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// MemoryBroker implements Broker on in-process channels. It mirrors the
// Redis broker's delivery and retry semantics but survives nothing; it
// exists for tests and for running the service without a Redis.
type MemoryBroker struct {
	mu     sync.Mutex
	queues map[string]chan []byte
	failed map[string][]Job
}

// NewMemoryBroker creates an empty in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		queues: make(map[string]chan []byte),
		failed: make(map[string][]Job),
	}
}

func (b *MemoryBroker) queue(queueName string) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.queues[queueName]
	if !ok {
		ch = make(chan []byte, 1024)
		b.queues[queueName] = ch
	}
	return ch
}

// Enqueue appends a job to the named queue.
func (b *MemoryBroker) Enqueue(ctx context.Context, queueName, jobName string, payload interface{}) (string, error) {
	job, raw, err := newEnvelope(jobName, payload)
	if err != nil {
		return "", err
	}
	select {
	case b.queue(queueName) <- raw:
		return job.ID, nil
	default:
		return "", fmt.Errorf("queue %s is full", queueName)
	}
}

// Consume blocks, delivering jobs to handler until ctx is cancelled.
func (b *MemoryBroker) Consume(ctx context.Context, queueName string, handler Handler, opts ConsumeOptions) error {
	maxAttempts := opts.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var limiter *rate.Limiter
	if opts.RateLimit != nil {
		limiter = rate.NewLimiter(rate.Limit(float64(opts.RateLimit.Max)/opts.RateLimit.Per.Seconds()), opts.RateLimit.Max)
	}

	ch := b.queue(queueName)
	for {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}

		var raw []byte
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw = <-ch:
		}

		var job Job
		if err := json.Unmarshal(raw, &job); err != nil {
			report(opts.Results, JobResult{Queue: queueName, Err: fmt.Errorf("corrupt job envelope on %s: %w", queueName, err)})
			continue
		}

		job.Attempts++
		handlerErr := handler(ctx, job)

		if handlerErr == nil {
			report(opts.Results, JobResult{Queue: queueName, JobID: job.ID, Name: job.Name, Attempts: job.Attempts})
			continue
		}

		report(opts.Results, JobResult{Queue: queueName, JobID: job.ID, Name: job.Name, Attempts: job.Attempts, Err: handlerErr})

		if IsPermanent(handlerErr) || job.Attempts >= maxAttempts {
			b.mu.Lock()
			b.failed[queueName] = append(b.failed[queueName], job)
			b.mu.Unlock()
			continue
		}

		updated, err := json.Marshal(job)
		if err != nil {
			updated = raw
		}
		select {
		case ch <- updated:
		default:
			b.mu.Lock()
			b.failed[queueName] = append(b.failed[queueName], job)
			b.mu.Unlock()
		}
	}
}

// TryDequeue pops one waiting job without blocking. Used by tests to
// inspect what a service enqueued.
func (b *MemoryBroker) TryDequeue(queueName string) (Job, bool) {
	select {
	case raw := <-b.queue(queueName):
		var job Job
		if err := json.Unmarshal(raw, &job); err != nil {
			return Job{}, false
		}
		return job, true
	default:
		return Job{}, false
	}
}

// Pending returns how many jobs are waiting on the named queue.
func (b *MemoryBroker) Pending(queueName string) int {
	return len(b.queue(queueName))
}

// Failed returns the jobs parked after permanent or exhausted failures.
func (b *MemoryBroker) Failed(queueName string) []Job {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Job, len(b.failed[queueName]))
	copy(out, b.failed[queueName])
	return out
}

// Close is a no-op.
func (b *MemoryBroker) Close() error {
	return nil
}
